// Package ssh provides a host.Host for remote provisioning targets. Commands
// run over SSH exec sessions; file operations go through SFTP.
package ssh

import (
	"fmt"
	"strings"

	"github.com/openfroyo/hostprov/pkg/host"
)

// TransportError represents an error that occurred during SSH transport operations.
type TransportError struct {
	// Op is the operation that failed (e.g., "connect", "execute", "upload")
	Op string

	// Err is the underlying error
	Err error

	// IsTemporary indicates if the error is temporary and the operation can be retried
	IsTemporary bool

	// IsAuthError indicates if the error is authentication-related
	IsAuthError bool
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("ssh transport error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Temporary returns true if the error is temporary.
func (e *TransportError) Temporary() bool {
	return e.IsTemporary
}

// commandLine renders cmd as a POSIX shell command for an exec request.
func commandLine(cmd host.Command, root bool) string {
	name, args := cmd.Name, cmd.Args
	if cmd.Elevated && !root {
		name, args = host.SudoArgv(cmd)
	} else if vars := cmd.Env.Assignments(); len(vars) > 0 {
		args = append(append(append([]string{}, vars...), name), args...)
		name = "env"
	}

	parts := make([]string, 0, len(args)+1)
	parts = append(parts, shellQuote(name))
	for _, a := range args {
		parts = append(parts, shellQuote(a))
	}
	line := strings.Join(parts, " ")
	if cmd.Dir != "" {
		line = "cd " + shellQuote(cmd.Dir) + " && " + line
	}
	return line
}

// shellQuote single-quotes s unless it consists only of safe characters.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_./:=@%+,", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

var _ host.Host = (*Client)(nil)
