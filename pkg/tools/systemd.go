package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/openfroyo/hostprov/pkg/host"
)

// Systemd drives the service supervisor.
type Systemd struct {
	host host.Host
}

// NewSystemd returns a systemd adapter.
func NewSystemd(h host.Host) *Systemd {
	return &Systemd{host: h}
}

// Reload reloads unit files.
func (s *Systemd) Reload(ctx context.Context) error {
	return s.systemctl(ctx, "daemon-reload")
}

// Enable enables unit for automatic start.
func (s *Systemd) Enable(ctx context.Context, unit string) error {
	return s.systemctl(ctx, "enable", unit)
}

// Start starts unit.
func (s *Systemd) Start(ctx context.Context, unit string) error {
	return s.systemctl(ctx, "start", unit)
}

// Restart restarts unit, starting it if it is not running.
func (s *Systemd) Restart(ctx context.Context, unit string) error {
	return s.systemctl(ctx, "restart", unit)
}

// IsActive reports whether unit is running.
func (s *Systemd) IsActive(ctx context.Context, unit string) bool {
	res, err := s.host.Run(ctx, host.Command{Name: "systemctl", Args: []string{"is-active", "--quiet", unit}})
	return err == nil && res.Success()
}

func (s *Systemd) systemctl(ctx context.Context, args ...string) error {
	if _, err := host.Check(ctx, s.host, host.Command{Name: "systemctl", Args: args, Elevated: true}); err != nil {
		return fmt.Errorf("systemctl %s: %w", strings.Join(args, " "), err)
	}
	return nil
}
