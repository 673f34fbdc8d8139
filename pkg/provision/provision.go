package provision

import (
	"context"
	"sync"

	"github.com/openfroyo/hostprov/pkg/config"
	"github.com/openfroyo/hostprov/pkg/engine"
	"github.com/openfroyo/hostprov/pkg/host"
	"github.com/openfroyo/hostprov/pkg/primitives"
	"github.com/openfroyo/hostprov/pkg/probe"
	"github.com/openfroyo/hostprov/pkg/sanitizer"
	"github.com/openfroyo/hostprov/pkg/telemetry"
	"github.com/openfroyo/hostprov/pkg/tools"
)

// Provisioner binds a validated provisioning file to a host.
type Provisioner struct {
	cfg       *config.Config
	host      host.Host
	prims     *primitives.Primitives
	prober    *probe.Prober
	sanitizer *sanitizer.Sanitizer
	tel       *telemetry.Telemetry
	orchOpts  []engine.Option
	collab    *primitives.Collaborators
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithCollaborators replaces the default command-line collaborators.
func WithCollaborators(c primitives.Collaborators) Option {
	return func(p *Provisioner) {
		p.collab = &c
	}
}

// WithTelemetry sets the logger, tracer and metrics used for runs.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(p *Provisioner) {
		p.tel = tel
	}
}

// WithOrchestratorOptions passes options such as a run recorder to the
// orchestrator of every run.
func WithOrchestratorOptions(opts ...engine.Option) Option {
	return func(p *Provisioner) {
		p.orchOpts = append(p.orchOpts, opts...)
	}
}

// New returns a provisioner for cfg on h.
func New(cfg *config.Config, h host.Host, opts ...Option) *Provisioner {
	p := &Provisioner{
		cfg:    cfg,
		host:   h,
		prober: probe.New(h),
		tel:    telemetry.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	collab := DefaultCollaborators(h, cfg)
	if p.collab != nil {
		collab = *p.collab
	}
	p.prims = primitives.New(h, collab)
	p.sanitizer = sanitizer.New(h, sanitizer.Config{
		Denylist:     cfg.Sanitize.Denylist,
		Marker:       cfg.Sanitize.Marker,
		BackupSuffix: cfg.Sanitize.BackupSuffix,
		Elevated:     true,
	})
	return p
}

// Config returns the provisioning file the provisioner was built from.
func (p *Provisioner) Config() *config.Config {
	return p.cfg
}

// Sanitizer returns the sanitizer configured from the file.
func (p *Provisioner) Sanitizer() *sanitizer.Sanitizer {
	return p.sanitizer
}

// DefaultCollaborators drives apt/dnf, nvm, snap, git and systemd on h.
func DefaultCollaborators(h host.Host, cfg *config.Config) primitives.Collaborators {
	retry := tools.RetryPolicy{
		Attempts:        cfg.Retry.Attempts,
		InitialInterval: cfg.Retry.Interval,
	}
	return primitives.Collaborators{
		Packages:   &detectedPackages{host: h, manager: cfg.Packages.Manager},
		Versions:   tools.NewNVM(h, retry),
		Snap:       tools.NewSnap(h),
		Source:     tools.NewGit(h, retry),
		Supervisor: tools.NewSystemd(h),
	}
}

// detectedPackages resolves the package manager on first use, so a host
// without apt or dnf only fails the stage that needs one.
type detectedPackages struct {
	host    host.Host
	manager string

	once sync.Once
	pm   *tools.Packages
	err  error
}

func (d *detectedPackages) get(ctx context.Context) (*tools.Packages, error) {
	d.once.Do(func() {
		if d.manager == "" || d.manager == "auto" {
			d.pm, d.err = tools.DetectPackages(ctx, d.host)
			return
		}
		d.pm, d.err = tools.NewPackages(d.host, d.manager)
	})
	return d.pm, d.err
}

func (d *detectedPackages) RefreshCache(ctx context.Context) error {
	pm, err := d.get(ctx)
	if err != nil {
		return err
	}
	return pm.RefreshCache(ctx)
}

func (d *detectedPackages) Install(ctx context.Context, names []string) error {
	pm, err := d.get(ctx)
	if err != nil {
		return err
	}
	return pm.Install(ctx, names)
}

// Outcome is what one run produced.
type Outcome struct {
	Report *engine.RunReport

	// Env is the environment the last stage ran with.
	Env *host.Env

	// Config is the rendered application configuration, nil when the run
	// stopped before it.
	Config *primitives.RenderedConfig

	// UnitPath is the written unit file, empty when the run stopped before it.
	UnitPath string
}

// Apply builds a fresh plan and runs it.
func (p *Provisioner) Apply(ctx context.Context) (*Outcome, error) {
	s := &session{}
	plan := p.plan(s)

	orch := engine.NewOrchestrator(p.tel, p.orchOpts...)
	report, err := orch.Run(ctx, plan)
	if report == nil {
		return nil, err
	}
	return &Outcome{
		Report:   report,
		Env:      s.env,
		Config:   s.rendered,
		UnitPath: s.unitPath,
	}, err
}

// Plan returns the stage list for one run. Each call starts a new session.
func (p *Provisioner) Plan() *engine.Plan {
	return p.plan(&session{})
}
