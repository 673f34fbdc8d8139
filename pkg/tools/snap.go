package tools

import (
	"context"
	"fmt"

	"github.com/openfroyo/hostprov/pkg/host"
)

// Snap installs snap packages.
type Snap struct {
	host host.Host
}

// NewSnap returns a snap adapter.
func NewSnap(h host.Host) *Snap {
	return &Snap{host: h}
}

// Install installs name, optionally with classic confinement.
func (s *Snap) Install(ctx context.Context, name string, classic bool) error {
	args := []string{"install", name}
	if classic {
		args = append(args, "--classic")
	}
	if _, err := host.Check(ctx, s.host, host.Command{Name: "snap", Args: args, Elevated: true}); err != nil {
		return fmt.Errorf("snap install %s: %w", name, err)
	}
	return nil
}
