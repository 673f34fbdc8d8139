// Package probe answers side-effect-free questions about a host. Results are
// never cached: earlier stages change the facts later stages depend on.
package probe

import (
	"context"
	"strconv"

	"github.com/openfroyo/hostprov/pkg/host"
)

// Prober evaluates host-state predicates.
type Prober struct {
	host host.Host
	env  *host.Env
}

// New returns a prober for h.
func New(h host.Host) *Prober {
	return &Prober{host: h}
}

// WithEnv returns a prober that resolves commands through env.
func (p *Prober) WithEnv(env *host.Env) *Prober {
	return &Prober{host: p.host, env: env}
}

// CommandExists reports whether name resolves to an executable.
func (p *Prober) CommandExists(ctx context.Context, name string) bool {
	_, ok := p.host.LookPath(ctx, name, p.env)
	return ok
}

// DirectoryExists reports whether path is an existing directory.
func (p *Prober) DirectoryExists(ctx context.Context, path string) bool {
	info, err := p.host.Stat(ctx, path)
	return err == nil && info.IsDir
}

// FileNonEmpty reports whether path is a regular file with content.
func (p *Prober) FileNonEmpty(ctx context.Context, path string) bool {
	info, err := p.host.Stat(ctx, path)
	return err == nil && !info.IsDir && info.Size > 0
}

// Kind names the predicate a Check evaluates.
type Kind string

const (
	KindCommand   Kind = "command"
	KindDirectory Kind = "directory"
	KindFile      Kind = "file"
)

// Check is one fact to evaluate.
type Check struct {
	Kind   Kind
	Target string
}

// Fact is an evaluated HostFact.
type Fact struct {
	Kind   Kind   `json:"kind"`
	Target string `json:"target"`
	Value  string `json:"value"`
	Holds  bool   `json:"holds"`
}

// Facts evaluates checks in order. Command facts carry the resolved path as
// their value.
func (p *Prober) Facts(ctx context.Context, checks []Check) []Fact {
	facts := make([]Fact, 0, len(checks))
	for _, c := range checks {
		f := Fact{Kind: c.Kind, Target: c.Target}
		switch c.Kind {
		case KindCommand:
			f.Value, f.Holds = p.host.LookPath(ctx, c.Target, p.env)
		case KindDirectory:
			f.Holds = p.DirectoryExists(ctx, c.Target)
			f.Value = strconv.FormatBool(f.Holds)
		case KindFile:
			f.Holds = p.FileNonEmpty(ctx, c.Target)
			f.Value = strconv.FormatBool(f.Holds)
		}
		facts = append(facts, f)
	}
	return facts
}
