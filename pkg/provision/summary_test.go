package provision

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfroyo/hostprov/pkg/config"
	"github.com/openfroyo/hostprov/pkg/engine"
)

func TestConnectionURL(t *testing.T) {
	tests := []struct {
		name   string
		host   string
		public string
		target string
		want   string
	}{
		{name: "wildcard local", host: "0.0.0.0", want: "http://localhost:3000"},
		{name: "ipv6 wildcard", host: "::", want: "http://localhost:3000"},
		{name: "explicit host", host: "10.0.0.7", want: "http://10.0.0.7:3000"},
		{name: "wildcard remote", host: "0.0.0.0", target: "deploy@wiki.example.com:2222", want: "http://wiki.example.com:3000"},
		{name: "public host wins", host: "127.0.0.1", public: "wiki.example.com", want: "http://wiki.example.com:3000"},
		{name: "ipv6 literal", host: "[fd00::1]", want: "http://[fd00::1]:3000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.App.Host = tt.host
			cfg.App.PublicHost = tt.public
			cfg.App.Port = 3000
			cfg.Target.Host = tt.target
			if got := ConnectionURL(cfg); got != tt.want {
				t.Errorf("ConnectionURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSummarize_DoneWithDefaultCredentials(t *testing.T) {
	cfg := loadTestConfig(t)
	findings, err := Check(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}

	report := &engine.RunReport{State: engine.StateDone}
	s := Summarize(cfg, report, findings)
	if s.URL != "http://localhost:3000" {
		t.Errorf("URL = %q", s.URL)
	}
	if len(s.CredentialWarnings) != 1 || !strings.Contains(s.CredentialWarnings[0], "admin") {
		t.Errorf("CredentialWarnings = %v, want one for admin", s.CredentialWarnings)
	}
	if s.ExitCode() != 0 {
		t.Errorf("ExitCode() = %d", s.ExitCode())
	}
}

func TestSummarize_Aborted(t *testing.T) {
	cfg := loadTestConfig(t)
	report := &engine.RunReport{
		State:       engine.StateAborted,
		FailedPhase: engine.StateServiceActivation,
		FailedStage: StageActivateService,
		Error:       engine.NewFatalError("service activation failed at enable", nil),
	}

	s := Summarize(cfg, report, nil)
	if s.URL != "" || len(s.CredentialWarnings) != 0 {
		t.Errorf("aborted summary = %+v, want no URL or credential warnings", s)
	}
	if s.Outcome != engine.OutcomeAborted || s.ExitCode() != 1 {
		t.Errorf("outcome = %s exit = %d", s.Outcome, s.ExitCode())
	}
	if s.FailedPhase != engine.StateServiceActivation || s.Error == nil {
		t.Errorf("summary = %+v", s)
	}
}

func TestCheck_DisabledPolicy(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.Policy.Disabled = []string{"default-credentials"}

	res, err := Check(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if got := res.ByPolicy("default-credentials"); len(got) != 0 {
		t.Errorf("disabled policy still reported %v", got)
	}

	cfg.Policy.Disabled = []string{"no-such-policy"}
	if _, err := Check(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Error("expected error for an unknown disabled policy")
	}
}
