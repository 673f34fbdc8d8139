package primitives

import (
	"context"
	"fmt"

	"github.com/openfroyo/hostprov/pkg/engine"
	"github.com/openfroyo/hostprov/pkg/host"
)

// SnapTool is an optional tool installed from the snap store.
type SnapTool struct {
	Name    string
	Binary  string
	Classic bool
}

func (t SnapTool) binary() string {
	if t.Binary != "" {
		return t.Binary
	}
	return t.Name
}

// InstallViaPackageSnap installs tool unless its binary already resolves.
// Failures are degraded: optional tools never abort a run.
func (p *Primitives) InstallViaPackageSnap(ctx context.Context, env *host.Env, tool SnapTool, rep *engine.Report) error {
	if _, ok := p.host.LookPath(ctx, tool.binary(), env); ok {
		rep.Note("%s already installed", tool.Name)
		return nil
	}
	if err := p.c.Snap.Install(ctx, tool.Name, tool.Classic); err != nil {
		return engine.NewDegradedError(fmt.Sprintf("optional tool %s could not be installed", tool.Name), err).
			WithCode(engine.ErrCodeOptionalTool)
	}
	return nil
}

// InstallSnapTools installs each tool independently, recording failures as
// warnings.
func (p *Primitives) InstallSnapTools(ctx context.Context, env *host.Env, tools []SnapTool, rep *engine.Report) error {
	for _, tool := range tools {
		if err := p.InstallViaPackageSnap(ctx, env, tool, rep); err != nil {
			rep.Warn(asEngineError(err))
		}
	}
	return nil
}
