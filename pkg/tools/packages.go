package tools

import (
	"context"
	"fmt"

	"github.com/openfroyo/hostprov/pkg/host"
)

// Supported package managers.
const (
	ManagerApt = "apt"
	ManagerDnf = "dnf"
)

// Packages drives the system package manager.
type Packages struct {
	host    host.Host
	manager string
}

// NewPackages returns a package manager adapter for manager.
func NewPackages(h host.Host, manager string) (*Packages, error) {
	switch manager {
	case ManagerApt, ManagerDnf:
		return &Packages{host: h, manager: manager}, nil
	default:
		return nil, fmt.Errorf("unsupported package manager: %s", manager)
	}
}

// DetectPackages picks apt or dnf based on what the host provides.
func DetectPackages(ctx context.Context, h host.Host) (*Packages, error) {
	for _, candidate := range []struct{ bin, manager string }{
		{"apt-get", ManagerApt},
		{"dnf", ManagerDnf},
	} {
		if _, ok := h.LookPath(ctx, candidate.bin, nil); ok {
			return &Packages{host: h, manager: candidate.manager}, nil
		}
	}
	return nil, fmt.Errorf("no supported package manager found (apt-get, dnf)")
}

// Manager returns the package manager name.
func (p *Packages) Manager() string {
	return p.manager
}

// RefreshCache updates the package index.
func (p *Packages) RefreshCache(ctx context.Context) error {
	var cmd host.Command
	switch p.manager {
	case ManagerApt:
		cmd = host.Command{Name: "apt-get", Args: []string{"update"}, Env: aptEnv()}
	case ManagerDnf:
		cmd = host.Command{Name: "dnf", Args: []string{"makecache", "-y"}}
	}
	cmd.Elevated = true
	if _, err := host.Check(ctx, p.host, cmd); err != nil {
		return fmt.Errorf("refresh package cache: %w", err)
	}
	return nil
}

// Install installs all names in a single invocation.
func (p *Packages) Install(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}

	var cmd host.Command
	switch p.manager {
	case ManagerApt:
		cmd = host.Command{Name: "apt-get", Args: append([]string{"install", "-y"}, names...), Env: aptEnv()}
	case ManagerDnf:
		cmd = host.Command{Name: "dnf", Args: append([]string{"install", "-y"}, names...)}
	}
	cmd.Elevated = true
	if _, err := host.Check(ctx, p.host, cmd); err != nil {
		return fmt.Errorf("install packages: %w", err)
	}
	return nil
}

func aptEnv() *host.Env {
	return host.NewEnv(map[string]string{"DEBIAN_FRONTEND": "noninteractive"})
}
