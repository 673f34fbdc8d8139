package config

import (
	"fmt"
	"path"

	"github.com/mattn/go-shellwords"

	"github.com/openfroyo/hostprov/pkg/primitives"
)

// Argv splits the service command like a shell would.
func (s ServiceConfig) Argv() ([]string, error) {
	return splitCommand(s.Command)
}

// Argv splits the dependency resolver command. An empty command yields nil.
func (d DependenciesConfig) Argv() ([]string, error) {
	if d.Command == "" {
		return nil, nil
	}
	return splitCommand(d.Command)
}

func splitCommand(s string) ([]string, error) {
	p := shellwords.NewParser()
	p.ParseEnv = false
	p.ParseBacktick = false
	argv, err := p.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("cannot split command %q: %w", s, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("command is empty")
	}
	return argv, nil
}

// checkSemantics covers rules struct tags cannot express.
func checkSemantics(cfg *Config) ValidationErrors {
	var errs ValidationErrors
	add := func(p, format string, args ...any) {
		errs = append(errs, ValidationError{Path: p, Message: fmt.Sprintf(format, args...)})
	}

	if err := primitives.ValidateChannel(cfg.Runtime.Channel); err != nil {
		add("runtime.channel", "%v", err)
	}
	if cfg.Service.Command != "" {
		if _, err := cfg.Service.Argv(); err != nil {
			add("service.command", "%v", err)
		}
	}
	if _, err := cfg.Source.Dependencies.Argv(); err != nil {
		add("source.dependencies.command", "%v", err)
	}
	if cfg.Source.Dependencies.Marker != "" && cfg.Source.Dependencies.Command == "" {
		add("source.dependencies.marker", "requires a command")
	}

	names := map[string]bool{cfg.Source.Primary.Name: true}
	paths := map[string]bool{path.Clean(cfg.Source.Primary.Path): true}
	for i, p := range cfg.Source.Plugins {
		field := fmt.Sprintf("source.plugins[%d]", i)
		if names[p.Name] {
			add(field+".name", "duplicate repository name %q", p.Name)
		}
		if paths[path.Clean(p.Path)] {
			add(field+".path", "duplicate repository path %q", p.Path)
		}
		names[p.Name] = true
		paths[path.Clean(p.Path)] = true
	}

	seen := map[string]bool{}
	for i, a := range cfg.App.Accounts {
		if seen[a.Username] {
			add(fmt.Sprintf("app.accounts[%d].username", i), "duplicate account %q", a.Username)
		}
		seen[a.Username] = true
	}

	if cfg.Target.Remote() {
		if _, err := cfg.Target.SSHConfig(); err != nil {
			add("target", "%v", err)
		}
	}
	if err := cfg.Telemetry.Validate(); err != nil {
		add("telemetry", "%v", err)
	}
	return errs
}
