package primitives

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/openfroyo/hostprov/pkg/engine"
)

const appTemplate = `server:
  host: {{ .Host | yaml }}
  port: {{ .Port }}
auth:
  password: {{ .Password | yaml }}
`

func appData() map[string]any {
	return map[string]any{"Host": "0.0.0.0", "Port": 8080, "Password": "yes: no"}
}

func TestRender_Deterministic(t *testing.T) {
	tmpl := ConfigTemplate{Name: "app", Text: appTemplate, Path: "/etc/app/config.yaml"}

	a, err := Render(tmpl, appData())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	b, err := Render(tmpl, appData())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Content, b.Content) || a.Checksum != b.Checksum {
		t.Error("equal inputs must render byte-identical output")
	}
	if !strings.Contains(string(a.Content), `password: 'yes: no'`) {
		t.Errorf("password not quoted:\n%s", a.Content)
	}
}

func TestRender_MultiLineValueStaysValidYAML(t *testing.T) {
	tmpl := ConfigTemplate{Name: "app", Text: appTemplate, Path: "/etc/app/config.yaml"}
	data := appData()
	data["Password"] = "line1\nline2\n  indented: x"

	rc, err := Render(tmpl, data)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	var doc struct {
		Server struct {
			Port int `yaml:"port"`
		} `yaml:"server"`
		Auth struct {
			Password string `yaml:"password"`
		} `yaml:"auth"`
	}
	if err := yaml.Unmarshal(rc.Content, &doc); err != nil {
		t.Fatalf("rendered config does not parse: %v\n%s", err, rc.Content)
	}
	if doc.Auth.Password != data["Password"] {
		t.Errorf("password = %q, want %q", doc.Auth.Password, data["Password"])
	}
	if doc.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", doc.Server.Port)
	}
}

func TestRender_MissingKey(t *testing.T) {
	tmpl := ConfigTemplate{Name: "app", Text: "{{ .Nope }}"}
	if _, err := Render(tmpl, map[string]any{}); err == nil {
		t.Error("expected error for a missing key")
	}
}

func TestRenderConfig_OverwritesPriorContent(t *testing.T) {
	f := newFixture()
	f.host.AddFile("/etc/app/config.yaml", "stale: true\nextra: 1\n")
	tmpl := ConfigTemplate{Name: "app", Text: appTemplate, Path: "/etc/app/config.yaml", Mode: 0600}

	rc, err := f.p.RenderConfig(context.Background(), tmpl, appData())
	if err != nil {
		t.Fatalf("RenderConfig() error = %v", err)
	}
	got, _ := f.host.Content("/etc/app/config.yaml")
	if got != string(rc.Content) {
		t.Errorf("content = %q, want rendered output only", got)
	}
	if f.host.Mode("/etc/app/config.yaml") != 0600 {
		t.Errorf("mode = %v", f.host.Mode("/etc/app/config.yaml"))
	}
}

func TestRenderConfig_CreatesParents(t *testing.T) {
	f := newFixture()
	tmpl := ConfigTemplate{Name: "app", Text: "a: 1\n", Path: "/var/lib/app/conf/app.yaml"}
	if _, err := f.p.RenderConfig(context.Background(), tmpl, nil); err != nil {
		t.Fatalf("RenderConfig() error = %v", err)
	}
	if f.host.Mode("/var/lib/app/conf/app.yaml") != 0644 {
		t.Error("default mode must be 0644")
	}
}

func TestRenderConfig_TemplateErrorIsFatal(t *testing.T) {
	f := newFixture()
	tmpl := ConfigTemplate{Name: "bad", Text: "{{ .Broken", Path: "/etc/app/config.yaml"}
	_, err := f.p.RenderConfig(context.Background(), tmpl, nil)
	if !engine.IsFatal(err) {
		t.Fatalf("error = %v, want fatal", err)
	}
	if len(f.host.Writes()) != 0 {
		t.Error("nothing must be written on a template error")
	}
}
