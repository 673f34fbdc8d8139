package primitives

import (
	"context"
	"strings"

	"github.com/openfroyo/hostprov/pkg/engine"
	"github.com/openfroyo/hostprov/pkg/telemetry"
)

// InstallPackages refreshes the package cache and installs names in one
// invocation. A failed refresh is degraded; a failed install is fatal.
func (p *Primitives) InstallPackages(ctx context.Context, names []string, rep *engine.Report) error {
	logger := telemetry.FromContext(ctx)

	if err := p.c.Packages.RefreshCache(ctx); err != nil {
		rep.Warn(engine.NewDegradedError("package cache refresh failed", err).
			WithCode(engine.ErrCodeCacheRefresh))
	}

	if len(names) == 0 {
		return nil
	}

	logger.Infof("installing packages: %s", strings.Join(names, " "))
	if err := p.c.Packages.Install(ctx, names); err != nil {
		return engine.NewFatalError("package installation failed", err).
			WithCode(engine.ErrCodePackageInstall).
			WithDetail("packages", names)
	}
	return nil
}
