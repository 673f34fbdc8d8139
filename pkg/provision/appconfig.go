package provision

import (
	_ "embed"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/openfroyo/hostprov/pkg/config"
	"github.com/openfroyo/hostprov/pkg/engine"
	"github.com/openfroyo/hostprov/pkg/primitives"
	sshtransport "github.com/openfroyo/hostprov/pkg/transports/ssh"
)

//go:embed templates/config.yml.tmpl
var defaultConfigTemplate string

// AppData is what configuration templates are rendered against.
type AppData struct {
	Name     string
	User     string
	Dir      string
	Host     string
	Port     int
	Accounts []config.AccountConfig
	Plugins  []string
	Logging  config.AppLogging
}

func (p *Provisioner) appData() AppData {
	app := p.cfg.App
	return AppData{
		Name:     p.cfg.Name,
		User:     p.cfg.User,
		Dir:      p.workingDirectory(),
		Host:     app.Host,
		Port:     app.Port,
		Accounts: app.Accounts,
		Plugins:  app.Plugins,
		Logging:  app.Logging,
	}
}

// configTemplate loads the operator's template from the local machine, or
// the built-in one when none is configured.
func (p *Provisioner) configTemplate() (primitives.ConfigTemplate, error) {
	tmpl := primitives.ConfigTemplate{
		Name: "config",
		Text: defaultConfigTemplate,
		Path: p.cfg.App.ConfigPath,
		// Accounts carry passwords.
		Mode: 0600,
	}
	if p.cfg.App.Template != "" {
		data, err := os.ReadFile(p.cfg.App.Template)
		if err != nil {
			return tmpl, engine.NewFatalError("failed to read configuration template", err).
				WithCode(engine.ErrCodeRenderFailed).
				WithDetail("template", p.cfg.App.Template)
		}
		tmpl.Name = p.cfg.App.Template
		tmpl.Text = string(data)
	}
	return tmpl, nil
}

// RenderPreview renders the configuration and unit without touching the
// host. The unit carries no version manager PATH.
func (p *Provisioner) RenderPreview() (*primitives.RenderedConfig, []byte, error) {
	tmpl, err := p.configTemplate()
	if err != nil {
		return nil, nil, err
	}
	rc, err := primitives.Render(tmpl, p.appData())
	if err != nil {
		return nil, nil, err
	}
	unit, err := p.ServiceUnit(nil)
	if err != nil {
		return nil, nil, err
	}
	content, err := primitives.RenderUnit(unit)
	if err != nil {
		return nil, nil, err
	}
	return rc, content, nil
}

// ConnectionURL is where the deployed application answers. Wildcard
// listeners are reported under the public host, the target host or
// localhost, in that order.
func ConnectionURL(cfg *config.Config) string {
	h := cfg.App.PublicHost
	if h == "" {
		h = cfg.App.Host
		switch h {
		case "", "0.0.0.0", "::", "[::]":
			h = "localhost"
			if cfg.Target.Remote() {
				h = targetHost(cfg.Target.Host)
			}
		}
	}
	return fmt.Sprintf("http://%s", net.JoinHostPort(trimBrackets(h), strconv.Itoa(cfg.App.Port)))
}

func targetHost(target string) string {
	if sc, err := sshtransport.ParseTarget(target); err == nil {
		return sc.Host
	}
	return target
}

func trimBrackets(h string) string {
	if len(h) > 1 && h[0] == '[' && h[len(h)-1] == ']' {
		return h[1 : len(h)-1]
	}
	return h
}
