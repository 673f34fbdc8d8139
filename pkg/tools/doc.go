// Package tools adapts the external programs provisioning relies on (apt or
// dnf, nvm, snap, git and systemd) to small Go APIs over a host.Host.
//
// Tools report failures as plain errors, usually a *host.ExitError. Deciding
// whether a failure is fatal or degraded is left to the caller.
package tools
