package primitives

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/openfroyo/hostprov/pkg/engine"
	"github.com/openfroyo/hostprov/pkg/host"
	"github.com/openfroyo/hostprov/pkg/telemetry"
)

// VersionManagerSpec describes where the version manager lives.
type VersionManagerSpec struct {
	// Candidates are install directories in priority order. A fresh install
	// goes into the first one.
	Candidates []string

	// InstallScriptURL is the installer downloaded when no candidate exists.
	InstallScriptURL string

	// InitScript is the environment script inside a candidate directory.
	InitScript string

	// FallbackInit is sourced when no candidate holds InitScript.
	FallbackInit string
}

// EnsureVersionManager installs the version manager when no candidate
// directory exists, then sources its environment. A missing environment
// script is degraded: the returned env is flagged and carries no variables.
func (p *Primitives) EnsureVersionManager(ctx context.Context, spec VersionManagerSpec, rep *engine.Report) (*host.Env, error) {
	logger := telemetry.FromContext(ctx)

	if len(spec.Candidates) == 0 {
		return nil, engine.NewFatalError("no version manager install directory configured", nil).
			WithCode(engine.ErrCodeConfigInvalid)
	}

	installed := false
	for _, dir := range spec.Candidates {
		if p.probe.DirectoryExists(ctx, dir) {
			logger.Debugf("version manager found in %s", dir)
			installed = true
			break
		}
	}

	if !installed {
		logger.Infof("installing version manager into %s", spec.Candidates[0])
		if err := p.c.Versions.Install(ctx, spec.InstallScriptURL, spec.Candidates[0]); err != nil {
			rep.Warn(engine.NewDegradedError("version manager install failed", err).
				WithCode(engine.ErrCodeVersionManager))
		}
	}

	script := p.findInitScript(ctx, spec)
	if script == "" {
		rep.Warn(engine.NewDegradedError("version manager environment script not found, continuing without it", nil).
			WithCode(engine.ErrCodeVersionManager).
			WithDetail("candidates", spec.Candidates).
			WithDetail("fallback", spec.FallbackInit))
		return host.DegradedEnv(), nil
	}

	env, err := p.c.Versions.SourceEnvironment(ctx, script)
	if err != nil {
		rep.Warn(engine.NewDegradedError("failed to source version manager environment", err).
			WithCode(engine.ErrCodeVersionManager))
		return host.DegradedEnv(), nil
	}
	rep.Note("version manager environment sourced from %s", script)
	return env, nil
}

// findInitScript prefers the first candidate holding the init script and
// falls back to FallbackInit.
func (p *Primitives) findInitScript(ctx context.Context, spec VersionManagerSpec) string {
	name := spec.InitScript
	if name == "" {
		name = "nvm.sh"
	}
	for _, dir := range spec.Candidates {
		if s := path.Join(dir, name); p.probe.FileNonEmpty(ctx, s) {
			return s
		}
	}
	if spec.FallbackInit != "" && p.probe.FileNonEmpty(ctx, spec.FallbackInit) {
		return spec.FallbackInit
	}
	return ""
}

// RuntimeSpec selects the runtime to provision.
type RuntimeSpec struct {
	// Channel is "lts" or an exact version.
	Channel string

	// Binary is the executable that proves the runtime resolves.
	Binary string
}

// EnsureRuntimeVersion installs and selects the runtime unless it already
// resolves under env. It returns the env later stages should use.
//
// A degraded env cannot install anything; if the runtime is then still
// unresolvable the run must stop rather than assume a runtime exists.
func (p *Primitives) EnsureRuntimeVersion(ctx context.Context, env *host.Env, spec RuntimeSpec, rep *engine.Report) (*host.Env, error) {
	logger := telemetry.FromContext(ctx)

	if _, ok := p.host.LookPath(ctx, spec.Binary, env); ok {
		p.noteVersion(ctx, env, spec, rep)
		return env, nil
	}

	if env == nil || env.Degraded {
		return env, engine.NewFatalError(
			fmt.Sprintf("runtime %s is not resolvable and the version manager environment is unavailable", spec.Binary), nil).
			WithCode(engine.ErrCodeRuntimeUnavailable)
	}

	logger.Infof("installing runtime %s", spec.Channel)
	if err := p.c.Versions.InstallRuntime(ctx, env, spec.Channel); err != nil {
		return env, engine.NewFatalError("runtime installation failed", err).
			WithCode(engine.ErrCodeRuntimeUnavailable).
			WithOperation("install")
	}
	if err := p.c.Versions.SelectRuntime(ctx, env, spec.Channel); err != nil {
		return env, engine.NewFatalError("runtime selection failed", err).
			WithCode(engine.ErrCodeRuntimeUnavailable).
			WithOperation("select")
	}

	// Re-source so the selected runtime is on PATH for later stages.
	refreshed, err := p.c.Versions.SourceEnvironment(ctx, env.Source)
	if err != nil {
		return env, engine.NewFatalError("failed to refresh version manager environment", err).
			WithCode(engine.ErrCodeRuntimeUnavailable)
	}
	if _, ok := p.host.LookPath(ctx, spec.Binary, refreshed); !ok {
		return refreshed, engine.NewFatalError(
			fmt.Sprintf("runtime %s still not resolvable after installation", spec.Binary), nil).
			WithCode(engine.ErrCodeRuntimeUnavailable)
	}

	p.noteVersion(ctx, refreshed, spec, rep)
	return refreshed, nil
}

func (p *Primitives) noteVersion(ctx context.Context, env *host.Env, spec RuntimeSpec, rep *engine.Report) {
	current, err := p.c.Versions.CurrentVersion(ctx, env)
	if err != nil {
		rep.Note("runtime %s resolves (version unknown)", spec.Binary)
		return
	}
	rep.Note("runtime %s %s", spec.Binary, current)

	if want, ok := exactVersion(spec.Channel); ok {
		if have, err := semver.NewVersion(current); err == nil && !have.Equal(want) {
			rep.Note("runtime %s differs from requested %s", current, spec.Channel)
		}
	}
}

// exactVersion parses channel when it names a specific version.
func exactVersion(channel string) (*semver.Version, bool) {
	if strings.EqualFold(channel, "lts") {
		return nil, false
	}
	v, err := semver.NewVersion(channel)
	if err != nil {
		return nil, false
	}
	return v, true
}

// ValidateChannel checks that channel is "lts" or a semantic version.
func ValidateChannel(channel string) error {
	if strings.EqualFold(channel, "lts") {
		return nil
	}
	if _, err := semver.NewVersion(channel); err != nil {
		return fmt.Errorf("invalid runtime channel %q: want \"lts\" or a version: %w", channel, err)
	}
	return nil
}
