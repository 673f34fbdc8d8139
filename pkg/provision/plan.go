package provision

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/openfroyo/hostprov/pkg/engine"
	"github.com/openfroyo/hostprov/pkg/host"
	"github.com/openfroyo/hostprov/pkg/primitives"
	"github.com/openfroyo/hostprov/pkg/sanitizer"
)

// Stage names, in execution order.
const (
	StageSanitize            = "sanitize"
	StageInstallPackages     = "install-packages"
	StageInstallTools        = "install-tools"
	StageVersionManager      = "version-manager"
	StageRuntime             = "runtime"
	StageClonePrimary        = "clone-primary"
	StageClonePlugins        = "clone-plugins"
	StageResolveDependencies = "resolve-dependencies"
	StageRenderConfig        = "render-config"
	StageActivateService     = "activate-service"
)

// session carries state produced by one stage to the ones after it.
type session struct {
	env      *host.Env
	rendered *primitives.RenderedConfig
	unitPath string
}

func (p *Provisioner) plan(s *session) *engine.Plan {
	return &engine.Plan{
		Name: p.cfg.Name,
		Stages: []engine.Stage{
			{
				Name:         StageSanitize,
				Phase:        engine.StateSanitizing,
				Description:  "disable known-bad lines in system configuration",
				Precondition: p.sanitized,
				Action:       p.sanitize,
				OnFailure:    engine.PolicyIgnore,
			},
			{
				Name:        StageInstallPackages,
				Phase:       engine.StateDependencyInstall,
				Description: "install system packages",
				Action: func(ctx context.Context, rep *engine.Report) error {
					return p.prims.InstallPackages(ctx, p.cfg.Packages.Install, rep)
				},
				OnFailure: engine.PolicyFatal,
			},
			{
				Name:        StageInstallTools,
				Phase:       engine.StateDependencyInstall,
				Description: "install optional snap tools",
				Precondition: func(ctx context.Context) bool {
					for _, t := range p.snapTools() {
						if !p.prober.CommandExists(ctx, snapBinary(t)) {
							return false
						}
					}
					return true
				},
				Action: func(ctx context.Context, rep *engine.Report) error {
					return p.prims.InstallSnapTools(ctx, s.env, p.snapTools(), rep)
				},
				OnFailure: engine.PolicyWarn,
			},
			{
				Name:        StageVersionManager,
				Phase:       engine.StateRuntimeAcquisition,
				Description: "install and source the runtime version manager",
				Action: func(ctx context.Context, rep *engine.Report) error {
					env, err := p.prims.EnsureVersionManager(ctx, p.versionManagerSpec(), rep)
					if env != nil {
						s.env = env
					}
					return err
				},
				OnFailure: engine.PolicyWarn,
			},
			{
				Name:        StageRuntime,
				Phase:       engine.StateRuntimeAcquisition,
				Description: "install and select the runtime",
				Precondition: func(ctx context.Context) bool {
					return p.prober.WithEnv(s.env).CommandExists(ctx, p.cfg.Runtime.Binary)
				},
				Action: func(ctx context.Context, rep *engine.Report) error {
					env, err := p.prims.EnsureRuntimeVersion(ctx, s.env, primitives.RuntimeSpec{
						Channel: p.cfg.Runtime.Channel,
						Binary:  p.cfg.Runtime.Binary,
					}, rep)
					if env != nil {
						s.env = env
					}
					return err
				},
				OnFailure: engine.PolicyFatal,
			},
			{
				Name:        StageClonePrimary,
				Phase:       engine.StateSourceAcquisition,
				Description: "clone or update the application repository",
				Precondition: func(ctx context.Context) bool {
					return !p.cfg.Source.Update && p.prober.DirectoryExists(ctx, p.cfg.Source.Primary.Path)
				},
				Action: func(ctx context.Context, _ *engine.Report) error {
					return p.prims.CloneOrUpdate(ctx, p.primarySpec())
				},
				OnFailure: engine.PolicyFatal,
			},
			{
				Name:        StageClonePlugins,
				Phase:       engine.StateSourceAcquisition,
				Description: "clone or update plugin repositories",
				Precondition: func(ctx context.Context) bool {
					if p.cfg.Source.Update && len(p.cfg.Source.Plugins) > 0 {
						return false
					}
					for _, r := range p.cfg.Source.Plugins {
						if !p.prober.DirectoryExists(ctx, r.Path) {
							return false
						}
					}
					return true
				},
				Action: func(ctx context.Context, rep *engine.Report) error {
					return p.prims.CloneAll(ctx, p.pluginSpecs(), rep)
				},
				OnFailure: engine.PolicyWarn,
			},
			{
				Name:        StageResolveDependencies,
				Phase:       engine.StateSourceAcquisition,
				Description: "resolve application dependencies",
				Precondition: func(ctx context.Context) bool {
					spec := p.dependencySpec()
					if len(spec.Command) == 0 {
						return true
					}
					marker := spec.MarkerPath()
					if marker == "" || p.cfg.Source.Update {
						return false
					}
					return p.prober.DirectoryExists(ctx, marker) || p.prober.FileNonEmpty(ctx, marker)
				},
				Action: func(ctx context.Context, _ *engine.Report) error {
					return p.prims.ResolveDependencies(ctx, s.env, p.dependencySpec())
				},
				OnFailure: engine.PolicyFatal,
			},
			{
				Name:        StageRenderConfig,
				Phase:       engine.StateConfigGeneration,
				Description: "render the application configuration",
				Action: func(ctx context.Context, rep *engine.Report) error {
					tmpl, err := p.configTemplate()
					if err != nil {
						return err
					}
					rc, err := p.prims.RenderConfig(ctx, tmpl, p.appData())
					if err != nil {
						return err
					}
					s.rendered = rc
					rep.Note("configuration %s (sha256 %s)", rc.Path, rc.Checksum[:12])
					return nil
				},
				OnFailure: engine.PolicyFatal,
			},
			{
				Name:        StageActivateService,
				Phase:       engine.StateServiceActivation,
				Description: "write, reload, enable and start the service unit",
				Action: func(ctx context.Context, rep *engine.Report) error {
					unit, err := p.ServiceUnit(s.env)
					if err != nil {
						return err
					}
					unitPath, err := p.prims.WriteServiceUnit(ctx, unit)
					if err != nil {
						return err
					}
					s.unitPath = unitPath
					rep.Note("service %s active", unit.FileName())
					return nil
				},
				OnFailure: engine.PolicyFatal,
			},
		},
	}
}

// sanitized reports whether there is nothing for the sanitizer to repair.
func (p *Provisioner) sanitized(ctx context.Context) bool {
	if !p.cfg.Sanitize.IsEnabled() {
		return true
	}
	actions, err := p.sanitizer.Scan(ctx, p.cfg.Sanitize.Roots)
	if errors.Is(err, sanitizer.ErrNoDenylist) {
		return true
	}
	return err == nil && len(actions) == 0
}

func (p *Provisioner) sanitize(ctx context.Context, rep *engine.Report) error {
	actions, err := p.sanitizer.Sanitize(ctx, p.cfg.Sanitize.Roots)
	for _, a := range actions {
		rep.Note("disabled %d line(s) in %s (backup %s)", len(a.Lines), a.Path, a.BackupPath)
	}
	if err != nil {
		return engine.NewIgnorableError("sanitizer skipped some files", err).
			WithCode(engine.ErrCodeSanitize)
	}
	return nil
}

func (p *Provisioner) snapTools() []primitives.SnapTool {
	out := make([]primitives.SnapTool, 0, len(p.cfg.Packages.Snaps))
	for _, s := range p.cfg.Packages.Snaps {
		out = append(out, primitives.SnapTool{Name: s.Name, Binary: s.Binary, Classic: s.Classic})
	}
	return out
}

func snapBinary(t primitives.SnapTool) string {
	if t.Binary != "" {
		return t.Binary
	}
	return t.Name
}

func (p *Provisioner) versionManagerSpec() primitives.VersionManagerSpec {
	vm := p.cfg.Runtime.VersionManager
	return primitives.VersionManagerSpec{
		Candidates:       vm.Candidates,
		InstallScriptURL: vm.InstallScriptURL,
		InitScript:       vm.InitScript,
		FallbackInit:     vm.FallbackInit,
	}
}

func (p *Provisioner) primarySpec() primitives.RepositorySpec {
	r := p.cfg.Source.Primary
	return primitives.RepositorySpec{
		Name:      r.Name,
		URL:       r.URL,
		Path:      r.Path,
		Recursive: r.Recursive,
		Role:      primitives.RolePrimary,
	}
}

func (p *Provisioner) pluginSpecs() []primitives.RepositorySpec {
	specs := make([]primitives.RepositorySpec, 0, len(p.cfg.Source.Plugins))
	for _, r := range p.cfg.Source.Plugins {
		specs = append(specs, primitives.RepositorySpec{
			Name:      r.Name,
			URL:       r.URL,
			Path:      r.Path,
			Recursive: r.Recursive,
			Role:      primitives.RolePlugin,
		})
	}
	return specs
}

func (p *Provisioner) dependencySpec() primitives.DependencySpec {
	// Validation has already rejected commands that do not split.
	argv, _ := p.cfg.Source.Dependencies.Argv()
	return primitives.DependencySpec{
		Dir:     p.cfg.Source.Primary.Path,
		Command: argv,
		Marker:  p.cfg.Source.Dependencies.Marker,
	}
}

// ServiceUnit builds the unit descriptor. A non-degraded env contributes its
// PATH so the service resolves the runtime the version manager selected.
func (p *Provisioner) ServiceUnit(env *host.Env) (primitives.ServiceUnit, error) {
	svc := p.cfg.Service
	argv, err := svc.Argv()
	if err != nil {
		return primitives.ServiceUnit{}, engine.NewFatalError("invalid service command", err).
			WithCode(engine.ErrCodeConfigInvalid)
	}

	vars := make(map[string]string, len(svc.Environment)+1)
	for k, v := range svc.Environment {
		vars[k] = v
	}
	if env != nil && !env.Degraded && env.Path() != "" {
		if _, set := vars["PATH"]; !set {
			vars["PATH"] = env.Path()
		}
	}

	return primitives.ServiceUnit{
		Name:             svc.Name,
		Description:      svc.Description,
		User:             p.cfg.User,
		WorkingDirectory: p.workingDirectory(),
		Environment:      vars,
		ExecStart:        argv,
		Restart:          svc.Restart,
		RestartDelay:     svc.RestartDelay,
		After:            svc.After,
		UnitDir:          svc.UnitDir,
	}, nil
}

func (p *Provisioner) workingDirectory() string {
	if dir := p.cfg.Source.Primary.Path; dir != "" {
		return dir
	}
	return path.Dir(p.cfg.App.ConfigPath)
}

// StagePreview is a stage and whether its probe says it would be skipped.
type StagePreview struct {
	Name        string `json:"name"`
	Phase       string `json:"phase"`
	Description string `json:"description"`
	Gated       bool   `json:"gated"`
	Satisfied   bool   `json:"satisfied"`
}

// String renders a one-line summary.
func (s StagePreview) String() string {
	verdict := "run"
	switch {
	case s.Satisfied:
		verdict = "skip (already satisfied)"
	case !s.Gated:
		verdict = "run (always)"
	}
	return fmt.Sprintf("%-22s %-20s %s", s.Name, s.Phase, verdict)
}

// Preview evaluates every stage's probe without running any action. Stages
// that depend on an earlier stage's environment are probed without it.
func (p *Provisioner) Preview(ctx context.Context) []StagePreview {
	plan := p.Plan()
	out := make([]StagePreview, 0, len(plan.Stages))
	for i := range plan.Stages {
		st := &plan.Stages[i]
		pv := StagePreview{
			Name:        st.Name,
			Phase:       string(st.Phase),
			Description: st.Description,
			Gated:       st.Gated(),
		}
		if st.Precondition != nil {
			pv.Satisfied = st.Precondition(ctx)
		}
		out = append(out, pv)
	}
	return out
}
