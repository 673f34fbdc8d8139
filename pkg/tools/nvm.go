package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openfroyo/hostprov/pkg/host"
)

// ChannelLTS selects the latest long-term-support runtime.
const ChannelLTS = "lts"

// ErrNoEnvironment is returned when a version manager operation needs a
// sourced environment and none is available.
var ErrNoEnvironment = errors.New("version manager environment is not available")

// NVM drives the Node Version Manager. nvm is a shell function, so every
// operation sources the env's init script in a fresh bash.
type NVM struct {
	host  host.Host
	retry RetryPolicy
}

// NewNVM returns an nvm adapter.
func NewNVM(h host.Host, retry RetryPolicy) *NVM {
	return &NVM{host: h, retry: retry}
}

// Install downloads and runs the nvm install script into dir.
func (n *NVM) Install(ctx context.Context, scriptURL, dir string) error {
	cmd := host.Command{
		Name: "bash",
		Args: []string{"-c", `set -o pipefail; curl -fsSL "$0" | bash`, scriptURL},
	}
	if dir != "" {
		cmd.Env = host.NewEnv(map[string]string{"NVM_DIR": dir})
	}
	err := n.retry.do(ctx, "version manager install", func() error {
		_, err := host.Check(ctx, n.host, cmd)
		return err
	})
	if err != nil {
		return fmt.Errorf("install version manager: %w", err)
	}
	return nil
}

// SourceEnvironment sources script and captures the resulting environment.
func (n *NVM) SourceEnvironment(ctx context.Context, script string) (*host.Env, error) {
	res, err := host.Check(ctx, n.host, host.Command{
		Name: "bash",
		Args: []string{"-c", `. "$0" >/dev/null 2>&1; env -0`, script},
	})
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", script, err)
	}
	env := host.NewEnv(host.ParseEnviron(res.Stdout))
	env.Source = script
	return env, nil
}

// InstallRuntime installs the runtime for channel ("lts" or a version).
func (n *NVM) InstallRuntime(ctx context.Context, env *host.Env, channel string) error {
	arg := channel
	if channel == ChannelLTS {
		arg = "--lts"
	}
	if err := n.nvm(ctx, env, "install", arg); err != nil {
		return fmt.Errorf("install runtime %s: %w", channel, err)
	}
	return nil
}

// SelectRuntime makes channel the default runtime for new shells.
func (n *NVM) SelectRuntime(ctx context.Context, env *host.Env, channel string) error {
	alias := channel
	if channel == ChannelLTS {
		alias = "lts/*"
	}
	if err := n.nvm(ctx, env, "alias", "default", alias); err != nil {
		return fmt.Errorf("select runtime %s: %w", channel, err)
	}
	return nil
}

// CurrentVersion returns the version of the runtime resolvable under env.
func (n *NVM) CurrentVersion(ctx context.Context, env *host.Env) (string, error) {
	res, err := host.Check(ctx, n.host, host.Command{Name: "node", Args: []string{"--version"}, Env: env})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

func (n *NVM) nvm(ctx context.Context, env *host.Env, args ...string) error {
	if env == nil || env.Degraded || env.Source == "" {
		return ErrNoEnvironment
	}
	argv := append([]string{"-c", `. "$0" >/dev/null 2>&1 && nvm "$@"`, env.Source}, args...)
	_, err := host.Check(ctx, n.host, host.Command{Name: "bash", Args: argv, Env: env})
	return err
}
