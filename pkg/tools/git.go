package tools

import (
	"context"
	"fmt"

	"github.com/openfroyo/hostprov/pkg/host"
)

// Git clones and updates repositories.
type Git struct {
	host  host.Host
	retry RetryPolicy
}

// NewGit returns a git adapter.
func NewGit(h host.Host, retry RetryPolicy) *Git {
	return &Git{host: h, retry: retry}
}

// Clone clones url into dest.
func (g *Git) Clone(ctx context.Context, url, dest string, recursive bool) error {
	args := []string{"clone"}
	if recursive {
		args = append(args, "--recursive")
	}
	args = append(args, url, dest)

	err := g.retry.do(ctx, "git clone", func() error {
		_, err := host.Check(ctx, g.host, host.Command{Name: "git", Args: args})
		return err
	})
	if err != nil {
		return fmt.Errorf("git clone %s: %w", url, err)
	}
	return nil
}

// Pull fast-forwards dest and, when recursive, updates its submodules.
func (g *Git) Pull(ctx context.Context, dest string, recursive bool) error {
	steps := [][]string{{"-C", dest, "pull", "--ff-only"}}
	if recursive {
		steps = append(steps, []string{"-C", dest, "submodule", "update", "--init", "--recursive"})
	}

	for _, args := range steps {
		err := g.retry.do(ctx, "git pull", func() error {
			_, err := host.Check(ctx, g.host, host.Command{Name: "git", Args: args})
			return err
		})
		if err != nil {
			return fmt.Errorf("git pull %s: %w", dest, err)
		}
	}
	return nil
}
