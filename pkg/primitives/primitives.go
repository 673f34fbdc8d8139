// Package primitives implements the idempotent mutations a provisioning plan
// is made of. Each primitive classifies its failures as fatal or degraded
// *engine.EngineError values; degraded conditions that do not stop the
// primitive are recorded on the stage report.
package primitives

import (
	"context"

	"github.com/openfroyo/hostprov/pkg/host"
	"github.com/openfroyo/hostprov/pkg/probe"
)

// PackageManager installs system packages.
type PackageManager interface {
	RefreshCache(ctx context.Context) error
	Install(ctx context.Context, names []string) error
}

// VersionManager installs and selects language runtimes.
type VersionManager interface {
	Install(ctx context.Context, scriptURL, dir string) error
	SourceEnvironment(ctx context.Context, script string) (*host.Env, error)
	InstallRuntime(ctx context.Context, env *host.Env, channel string) error
	SelectRuntime(ctx context.Context, env *host.Env, channel string) error
	CurrentVersion(ctx context.Context, env *host.Env) (string, error)
}

// SnapInstaller installs optional tools as snaps.
type SnapInstaller interface {
	Install(ctx context.Context, name string, classic bool) error
}

// SourceControl clones and updates repositories.
type SourceControl interface {
	Clone(ctx context.Context, url, dest string, recursive bool) error
	Pull(ctx context.Context, dest string, recursive bool) error
}

// Supervisor manages service units.
type Supervisor interface {
	Reload(ctx context.Context) error
	Enable(ctx context.Context, unit string) error
	Start(ctx context.Context, unit string) error
	Restart(ctx context.Context, unit string) error
	IsActive(ctx context.Context, unit string) bool
}

// Collaborators are the external programs the primitives drive.
type Collaborators struct {
	Packages   PackageManager
	Versions   VersionManager
	Snap       SnapInstaller
	Source     SourceControl
	Supervisor Supervisor
}

// Primitives binds the mutation primitives to a host and its collaborators.
type Primitives struct {
	host  host.Host
	probe *probe.Prober
	c     Collaborators
}

// New returns primitives operating on h.
func New(h host.Host, c Collaborators) *Primitives {
	return &Primitives{host: h, probe: probe.New(h), c: c}
}

// Host returns the host the primitives mutate.
func (p *Primitives) Host() host.Host {
	return p.host
}
