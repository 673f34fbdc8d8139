package config

import (
	"errors"

	sshtransport "github.com/openfroyo/hostprov/pkg/transports/ssh"
)

var errPasswordRequired = errors.New("password is required for password authentication")

// SSHConfig converts the target into a transport configuration. It does
// not touch the network.
func (t TargetConfig) SSHConfig() (*sshtransport.Config, error) {
	cfg, err := sshtransport.ParseTarget(t.Host)
	if err != nil {
		return nil, err
	}
	if t.AuthMethod != "" {
		cfg.AuthMethod = sshtransport.AuthMethod(t.AuthMethod)
	}
	if t.Password != "" {
		cfg.Password = t.Password
		if t.AuthMethod == "" {
			cfg.AuthMethod = sshtransport.AuthMethodPassword
		}
	}
	if t.PrivateKeyPath != "" {
		cfg.PrivateKeyPath = t.PrivateKeyPath
	}
	if t.KnownHostsPath != "" {
		cfg.KnownHostsPath = t.KnownHostsPath
	}
	if t.StrictHostKeyChecking != nil {
		cfg.StrictHostKeyChecking = *t.StrictHostKeyChecking
	}
	if t.ConnectionTimeout > 0 {
		cfg.ConnectionTimeout = t.ConnectionTimeout
	}
	if cfg.AuthMethod == sshtransport.AuthMethodPassword && cfg.Password == "" {
		return nil, errPasswordRequired
	}
	return cfg, nil
}
