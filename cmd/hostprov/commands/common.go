package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/openfroyo/hostprov/pkg/config"
	"github.com/openfroyo/hostprov/pkg/host"
	"github.com/openfroyo/hostprov/pkg/stores"
	"github.com/openfroyo/hostprov/pkg/telemetry"
	sshtransport "github.com/openfroyo/hostprov/pkg/transports/ssh"
)

// Process exit statuses.
const (
	ExitOK            = 0
	ExitAborted       = 1
	ExitInvalidConfig = 2
)

// exitError carries a process exit status. A reported error has already
// been shown to the user.
type exitError struct {
	code     int
	err      error
	reported bool
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// ExitCode maps an error returned by Execute to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	var verrs config.ValidationErrors
	if errors.As(err, &verrs) {
		return ExitInvalidConfig
	}
	return ExitAborted
}

// Reported reports whether err was already printed.
func Reported(err error) bool {
	var ee *exitError
	return errors.As(err, &ee) && ee.reported
}

func invalidConfig(err error) error {
	return &exitError{code: ExitInvalidConfig, err: err}
}

// loadConfig reads the provisioning file and applies the --host override.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		var verrs config.ValidationErrors
		if errors.As(err, &verrs) {
			for _, v := range verrs {
				fmt.Fprintln(os.Stderr, errorMsg("%s", v.String()))
			}
			return nil, &exitError{code: ExitInvalidConfig, err: err, reported: true}
		}
		return nil, invalidConfig(err)
	}
	if targetHost != "" {
		cfg.Target.Host = targetHost
	}
	return cfg, nil
}

// connect returns the host a command operates on and a function releasing
// it. Remote targets are reached over SSH.
func connect(ctx context.Context, cfg *config.Config) (host.Host, func(), error) {
	if !cfg.Target.Remote() {
		return host.NewLocal(), func() {}, nil
	}

	sc, err := cfg.Target.SSHConfig()
	if err != nil {
		return nil, nil, invalidConfig(fmt.Errorf("target: %w", err))
	}
	client, err := sshtransport.Dial(ctx, sc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", cfg.Target.Host, err)
	}
	return client, func() {
		if err := client.Close(); err != nil {
			log.Debug().Err(err).Msg("Failed to close SSH connection")
		}
	}, nil
}

func newTelemetry(cfg *config.Config, version string) (*telemetry.Telemetry, error) {
	tc := cfg.Telemetry
	tc.ServiceVersion = version
	if verbose {
		tc.Logging.Level = "debug"
	}
	tel, err := telemetry.NewTelemetry(&tc)
	if err != nil {
		return nil, invalidConfig(fmt.Errorf("telemetry: %w", err))
	}
	return tel, nil
}

// openStore opens the run history database, creating its directory.
func openStore(ctx context.Context, cfg *config.Config) (*stores.SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.State.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return stores.Open(ctx, stores.Config{Path: cfg.State.Path})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
