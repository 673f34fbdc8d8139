// Package host abstracts the machine being provisioned. Every other package
// reaches the machine through a Host, so the same plan can run against the
// local system or a remote one over SSH.
package host

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// Host is the narrow set of operations provisioning needs from a machine.
type Host interface {
	// Name identifies the host in logs ("localhost", "deploy@10.0.0.5").
	Name() string

	// Run executes a command. The returned error is non-nil only when the
	// command could not be started; a non-zero exit is reported in Result.
	Run(ctx context.Context, cmd Command) (*Result, error)

	// LookPath resolves an executable, consulting env's PATH when env is
	// non-nil and sets one.
	LookPath(ctx context.Context, name string, env *Env) (string, bool)

	// Stat returns file information. Missing paths return an error that
	// matches fs.ErrNotExist.
	Stat(ctx context.Context, path string) (*FileInfo, error)

	// ReadFile returns the contents of a file.
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// WriteFile replaces path atomically (temp file + rename) with data.
	WriteFile(ctx context.Context, path string, data []byte, mode fs.FileMode, elevated bool) error

	// MkdirAll creates a directory and its parents. Existing directories
	// are not an error.
	MkdirAll(ctx context.Context, path string, mode fs.FileMode, elevated bool) error

	// ReadDir lists the entries directly inside path, sorted by name.
	ReadDir(ctx context.Context, path string) ([]FileInfo, error)
}

// Command describes a process to run on a host.
type Command struct {
	// Name is the executable.
	Name string

	// Args are the arguments.
	Args []string

	// Dir is the working directory. Empty means the host default.
	Dir string

	// Env overlays variables on the host environment.
	Env *Env

	// Stdin is fed to the process.
	Stdin []byte

	// Elevated runs the command through non-interactive sudo unless the
	// host session already has root privileges.
	Elevated bool
}

// String renders the command line for logs and error messages.
func (c Command) String() string {
	parts := append([]string{c.Name}, c.Args...)
	s := strings.Join(parts, " ")
	if c.Elevated {
		return "sudo " + s
	}
	return s
}

// Result is the outcome of a command that started.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Success returns true for a zero exit code.
func (r *Result) Success() bool {
	return r.ExitCode == 0
}

// ExitError reports a command that ran but exited non-zero.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

// Error implements the error interface.
func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s: exit status %d", e.Command, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Check runs cmd and converts a non-zero exit into an *ExitError.
func Check(ctx context.Context, h Host, cmd Command) (*Result, error) {
	res, err := h.Run(ctx, cmd)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", cmd.Name, err)
	}
	if !res.Success() {
		return res, &ExitError{Command: cmd.String(), ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	return res, nil
}

// ExitCode extracts the exit code from an *ExitError, or -1.
func ExitCode(err error) int {
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode
	}
	return -1
}

// FileInfo is the subset of file metadata provisioning inspects.
type FileInfo struct {
	Path  string
	Size  int64
	Mode  fs.FileMode
	IsDir bool
}

// Exists reports whether path exists on h.
func Exists(ctx context.Context, h Host, path string) bool {
	_, err := h.Stat(ctx, path)
	return err == nil
}
