package host

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
)

// SudoArgv rewrites a command line for non-interactive sudo. Environment
// overlays go through env(1) because sudo resets the environment.
func SudoArgv(cmd Command) (string, []string) {
	args := []string{"-n"}
	if vars := cmd.Env.Assignments(); len(vars) > 0 {
		args = append(args, "env")
		args = append(args, vars...)
	}
	args = append(args, cmd.Name)
	args = append(args, cmd.Args...)
	return "sudo", args
}

// WriteElevated replaces path through sudo: tee into a sibling temp file,
// set the mode, then rename over the destination.
func WriteElevated(ctx context.Context, h Host, path string, data []byte, mode fs.FileMode) error {
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".hostprov.tmp")

	steps := []Command{
		{Name: "tee", Args: []string{tmp}, Stdin: data, Elevated: true},
		{Name: "chmod", Args: []string{strconv.FormatUint(uint64(mode.Perm()), 8), tmp}, Elevated: true},
		{Name: "mv", Args: []string{"-f", tmp, path}, Elevated: true},
	}
	for _, step := range steps {
		if _, err := Check(ctx, h, step); err != nil {
			_, _ = h.Run(ctx, Command{Name: "rm", Args: []string{"-f", tmp}, Elevated: true})
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}

// MkdirElevated creates a directory tree through sudo.
func MkdirElevated(ctx context.Context, h Host, path string, mode fs.FileMode) error {
	cmd := Command{
		Name:     "mkdir",
		Args:     []string{"-p", "-m", strconv.FormatUint(uint64(mode.Perm()), 8), path},
		Elevated: true,
	}
	if _, err := Check(ctx, h, cmd); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}
