package primitives

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/openfroyo/hostprov/pkg/engine"
	"github.com/openfroyo/hostprov/pkg/host"
	"github.com/openfroyo/hostprov/pkg/telemetry"
)

// RepositoryRole decides how clone failures are classified.
type RepositoryRole string

const (
	// RolePrimary is the application itself; failing to clone it is fatal.
	RolePrimary RepositoryRole = "primary"

	// RolePlugin is an independent add-on; failures are skipped.
	RolePlugin RepositoryRole = "plugin"
)

// RepositorySpec describes one repository to acquire.
type RepositorySpec struct {
	Name      string
	URL       string
	Path      string
	Recursive bool
	Role      RepositoryRole
}

// CloneOrUpdate pulls an existing checkout or clones a missing one. Update
// failures are degraded and leave the checkout as it is. Clone failures are
// fatal for the primary repository and degraded for plugins.
func (p *Primitives) CloneOrUpdate(ctx context.Context, spec RepositorySpec) error {
	logger := telemetry.FromContext(ctx).WithField("repository", spec.Name)

	if p.probe.DirectoryExists(ctx, spec.Path) {
		logger.Infof("updating %s", spec.Path)
		if err := p.c.Source.Pull(ctx, spec.Path, spec.Recursive); err != nil {
			return engine.NewDegradedError(fmt.Sprintf("update of %s failed, keeping existing checkout", spec.Name), err).
				WithCode(engine.ErrCodeUpdateFailed).
				WithDetail("path", spec.Path)
		}
		return nil
	}

	if err := p.host.MkdirAll(ctx, path.Dir(spec.Path), 0755, false); err != nil {
		return p.cloneFailure(spec, err)
	}

	logger.Infof("cloning %s into %s", spec.URL, spec.Path)
	if err := p.c.Source.Clone(ctx, spec.URL, spec.Path, spec.Recursive); err != nil {
		return p.cloneFailure(spec, err)
	}
	return nil
}

func (p *Primitives) cloneFailure(spec RepositorySpec, err error) error {
	msg := fmt.Sprintf("clone of %s failed", spec.Name)
	var ee *engine.EngineError
	if spec.Role == RolePrimary {
		ee = engine.NewFatalError(msg, err)
	} else {
		ee = engine.NewDegradedError(msg+", skipping", err)
	}
	return ee.WithCode(engine.ErrCodeCloneFailed).WithDetail("url", spec.URL)
}

// CloneAll acquires each repository independently. One failing repository
// never blocks the others; failures are recorded as warnings.
func (p *Primitives) CloneAll(ctx context.Context, specs []RepositorySpec, rep *engine.Report) error {
	acquired := 0
	for _, spec := range specs {
		if err := p.CloneOrUpdate(ctx, spec); err != nil {
			ee := asEngineError(err)
			// Plugins never escalate the stage.
			ee.Class = engine.ErrorClassDegraded
			rep.Warn(ee)
			continue
		}
		acquired++
	}
	rep.Note("%d of %d plugin repositories acquired", acquired, len(specs))
	return nil
}

// DependencySpec describes the application's dependency resolution step.
type DependencySpec struct {
	// Dir is the checkout the resolver runs in.
	Dir string

	// Command is the resolver argv, e.g. ["npm", "install"].
	Command []string

	// Marker is created by the resolver; its presence means resolved.
	Marker string
}

// ResolveDependencies runs the dependency resolver in the checkout under env.
func (p *Primitives) ResolveDependencies(ctx context.Context, env *host.Env, spec DependencySpec) error {
	if len(spec.Command) == 0 {
		return nil
	}
	telemetry.FromContext(ctx).Infof("resolving dependencies in %s", spec.Dir)

	cmd := host.Command{Name: spec.Command[0], Args: spec.Command[1:], Dir: spec.Dir, Env: env}
	if _, err := host.Check(ctx, p.host, cmd); err != nil {
		return engine.NewFatalError("dependency resolution failed", err).
			WithCode(engine.ErrCodeDependencies).
			WithDetail("dir", spec.Dir)
	}
	return nil
}

// MarkerPath returns the path whose existence means dependencies are
// resolved, or "" when no marker is configured.
func (s DependencySpec) MarkerPath() string {
	if s.Marker == "" {
		return ""
	}
	return path.Join(s.Dir, s.Marker)
}

// asEngineError keeps an existing classification and treats anything else
// as degraded.
func asEngineError(err error) *engine.EngineError {
	var ee *engine.EngineError
	if errors.As(err, &ee) {
		return ee
	}
	return engine.NewDegradedError(err.Error(), err)
}
