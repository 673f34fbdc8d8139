package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
)

// Local is the machine the provisioner itself runs on.
type Local struct {
	root bool
}

// NewLocal returns the local host.
func NewLocal() *Local {
	return &Local{root: os.Geteuid() == 0}
}

// Name implements Host.
func (l *Local) Name() string {
	return "localhost"
}

// Run implements Host.
func (l *Local) Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Name == "" {
		return nil, fmt.Errorf("command is required")
	}

	name, args := cmd.Name, cmd.Args
	if cmd.Elevated && !l.root {
		name, args = SudoArgv(cmd)
	}

	c := exec.CommandContext(ctx, name, args...)
	c.Dir = cmd.Dir
	if cmd.Env != nil {
		c.Env = cmd.Env.Environ(os.Environ())
	}
	if cmd.Stdin != nil {
		c.Stdin = bytes.NewReader(cmd.Stdin)
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return nil, fmt.Errorf("failed to execute command: %w", err)
	}
	return res, nil
}

// LookPath implements Host.
func (l *Local) LookPath(_ context.Context, name string, env *Env) (string, bool) {
	if dirs := env.PathDirs(); len(dirs) > 0 {
		for _, dir := range dirs {
			p := filepath.Join(dir, name)
			if isExecutable(p) {
				return p, true
			}
		}
		return "", false
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", false
	}
	return p, true
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode().Perm()&0111 != 0
}

// Stat implements Host.
func (l *Local) Stat(_ context.Context, path string) (*FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return &FileInfo{Path: path, Size: info.Size(), Mode: info.Mode(), IsDir: info.IsDir()}, nil
}

// ReadFile implements Host.
func (l *Local) ReadFile(_ context.Context, path string) ([]byte, error) {
	return os.ReadFile(path)
}

// ReadDir implements Host.
func (l *Local) ReadDir(_ context.Context, path string) ([]FileInfo, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	out := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, FileInfo{
			Path:  filepath.Join(path, e.Name()),
			Size:  info.Size(),
			Mode:  info.Mode(),
			IsDir: info.IsDir(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// WriteFile implements Host.
func (l *Local) WriteFile(ctx context.Context, path string, data []byte, mode fs.FileMode, elevated bool) error {
	if elevated && !l.root {
		return WriteElevated(ctx, l, path, data, mode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Chmod(mode.Perm()); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to rename %s: %w", path, err)
	}
	return nil
}

// MkdirAll implements Host.
func (l *Local) MkdirAll(ctx context.Context, path string, mode fs.FileMode, elevated bool) error {
	if elevated && !l.root {
		return MkdirElevated(ctx, l, path, mode)
	}
	if err := os.MkdirAll(path, mode.Perm()); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}
