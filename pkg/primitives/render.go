package primitives

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/hostprov/pkg/engine"
	"github.com/openfroyo/hostprov/pkg/telemetry"
)

// ConfigTemplate is a text template and the file it renders to.
type ConfigTemplate struct {
	Name     string
	Text     string
	Path     string
	Mode     fs.FileMode
	Elevated bool
}

// RenderedConfig is a fully materialized configuration artifact.
type RenderedConfig struct {
	Path     string
	Content  []byte
	Checksum string
}

// Render executes the template against data. Only repeatable template
// functions are available, so equal inputs render byte-identical output.
func Render(tmpl ConfigTemplate, data any) (*RenderedConfig, error) {
	t, err := template.New(tmpl.Name).
		Funcs(sprig.HermeticTxtFuncMap()).
		Funcs(template.FuncMap{"yaml": yamlScalar}).
		Option("missingkey=error").
		Parse(tmpl.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", tmpl.Name, err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render template %s: %w", tmpl.Name, err)
	}

	sum := sha256.Sum256(buf.Bytes())
	return &RenderedConfig{
		Path:     tmpl.Path,
		Content:  buf.Bytes(),
		Checksum: hex.EncodeToString(sum[:]),
	}, nil
}

// yamlScalar renders v as a YAML value, quoting strings that would
// otherwise change type or break the document. Strings always come out on a
// single line: a block scalar spliced into an indented template is invalid.
func yamlScalar(v any) (string, error) {
	out, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	text := strings.TrimSuffix(string(out), "\n")
	if str, ok := v.(string); ok && strings.Contains(text, "\n") {
		out, err = yaml.Marshal(&yaml.Node{
			Kind:  yaml.ScalarNode,
			Tag:   "!!str",
			Style: yaml.DoubleQuotedStyle,
			Value: str,
		})
		if err != nil {
			return "", err
		}
		text = strings.TrimSuffix(string(out), "\n")
	}
	return text, nil
}

// RenderConfig renders the template and atomically replaces the
// destination, creating parent directories as needed. Prior content is
// overwritten, never merged.
func (p *Primitives) RenderConfig(ctx context.Context, tmpl ConfigTemplate, data any) (*RenderedConfig, error) {
	rc, err := Render(tmpl, data)
	if err != nil {
		return nil, engine.NewFatalError("configuration rendering failed", err).
			WithCode(engine.ErrCodeRenderFailed)
	}

	mode := tmpl.Mode
	if mode == 0 {
		mode = 0644
	}
	if err := p.host.MkdirAll(ctx, path.Dir(rc.Path), 0755, tmpl.Elevated); err != nil {
		return nil, engine.NewFatalError("failed to create configuration directory", err).
			WithCode(engine.ErrCodeRenderFailed)
	}
	if err := p.host.WriteFile(ctx, rc.Path, rc.Content, mode, tmpl.Elevated); err != nil {
		return nil, engine.NewFatalError("failed to write configuration", err).
			WithCode(engine.ErrCodeRenderFailed).
			WithDetail("path", rc.Path)
	}

	telemetry.FromContext(ctx).WithField("checksum", rc.Checksum[:12]).Infof("wrote %s", rc.Path)
	return rc, nil
}
