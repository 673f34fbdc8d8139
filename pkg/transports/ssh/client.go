package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"

	"github.com/openfroyo/hostprov/pkg/host"
)

// Client is a connected remote host.
type Client struct {
	config *Config
	client *ssh.Client

	sftpOnce sync.Once
	sftp     *sftp.Client
	sftpErr  error

	root bool
}

// Dial connects to the remote host described by config.
func Dial(ctx context.Context, config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	clientConfig, err := config.BuildSSHClientConfig()
	if err != nil {
		return nil, &TransportError{Op: "connect", Err: err, IsAuthError: true}
	}

	address := config.Address()
	log.Debug().Str("address", address).Msg("establishing SSH connection")

	connChan := make(chan *ssh.Client, 1)
	errChan := make(chan error, 1)
	go func() {
		client, err := ssh.Dial("tcp", address, clientConfig)
		if err != nil {
			errChan <- err
			return
		}
		connChan <- client
	}()

	var sshClient *ssh.Client
	select {
	case <-ctx.Done():
		return nil, &TransportError{Op: "connect", Err: ctx.Err(), IsTemporary: true}
	case err := <-errChan:
		return nil, &TransportError{Op: "connect", Err: err, IsTemporary: true}
	case sshClient = <-connChan:
	}

	c := &Client{config: config, client: sshClient}

	// Elevated commands skip sudo when the login is already root.
	res, err := c.Run(ctx, host.Command{Name: "id", Args: []string{"-u"}})
	if err == nil && res.Success() && strings.TrimSpace(res.Stdout) == "0" {
		c.root = true
	}

	log.Info().Str("address", address).Bool("root", c.root).Msg("SSH connection established")
	return c, nil
}

// Close releases the SFTP session and the connection.
func (c *Client) Close() error {
	if c.sftp != nil {
		_ = c.sftp.Close()
	}
	if err := c.client.Close(); err != nil {
		return &TransportError{Op: "disconnect", Err: err}
	}
	return nil
}

// Name implements host.Host.
func (c *Client) Name() string {
	return c.config.User + "@" + c.config.Host
}

// Run implements host.Host.
func (c *Client) Run(ctx context.Context, cmd host.Command) (*host.Result, error) {
	if cmd.Name == "" {
		return nil, fmt.Errorf("command is required")
	}
	line := commandLine(cmd, c.root)

	session, err := c.client.NewSession()
	if err != nil {
		return nil, &TransportError{
			Op:          "execute",
			Err:         fmt.Errorf("failed to create session: %w", err),
			IsTemporary: true,
		}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if cmd.Stdin != nil {
		session.Stdin = bytes.NewReader(cmd.Stdin)
	}

	log.Debug().Str("host", c.config.Host).Str("command", line).Msg("executing command")

	done := make(chan error, 1)
	go func() {
		done <- session.Run(line)
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		return nil, &TransportError{Op: "execute", Err: ctx.Err()}
	case err = <-done:
	}

	res := &host.Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitStatus()
			return res, nil
		}
		return nil, &TransportError{Op: "execute", Err: err}
	}
	return res, nil
}

// LookPath implements host.Host by asking the remote shell.
func (c *Client) LookPath(ctx context.Context, name string, env *host.Env) (string, bool) {
	res, err := c.Run(ctx, host.Command{
		Name: "sh",
		Args: []string{"-c", `command -v "$0"`, name},
		Env:  env,
	})
	if err != nil || !res.Success() {
		return "", false
	}
	p := strings.TrimSpace(res.Stdout)
	return p, p != ""
}

func (c *Client) sftpClient() (*sftp.Client, error) {
	c.sftpOnce.Do(func() {
		c.sftp, c.sftpErr = sftp.NewClient(c.client)
		if c.sftpErr != nil {
			c.sftpErr = &TransportError{Op: "sftp", Err: c.sftpErr, IsTemporary: true}
		}
	})
	return c.sftp, c.sftpErr
}
