package policy

import "testing"

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantDesc string
		wantSev  Severity
	}{
		{
			name:     "description and severity",
			content:  "# Blocks root.\n# Second line.\n# severity: error\npackage x\n",
			wantDesc: "Blocks root. Second line.",
			wantSev:  SeverityError,
		},
		{
			name:     "no header",
			content:  "package x\n# severity: error\n",
			wantDesc: "",
			wantSev:  SeverityWarning,
		},
		{
			name:     "unknown severity ignored",
			content:  "\n# severity: critical\npackage x\n",
			wantDesc: "",
			wantSev:  SeverityWarning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc, sev := parseHeader(tt.content)
			if desc != tt.wantDesc {
				t.Errorf("description = %q, want %q", desc, tt.wantDesc)
			}
			if sev != tt.wantSev {
				t.Errorf("severity = %s, want %s", sev, tt.wantSev)
			}
		})
	}
}
