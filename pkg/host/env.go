package host

import (
	"path/filepath"
	"sort"
	"strings"
)

// Env is an explicit environment capability, typically produced by sourcing
// a version manager's init script. It is threaded into later commands
// instead of mutating the provisioner's own process environment.
type Env struct {
	// Vars holds the variables to overlay on the host environment.
	Vars map[string]string

	// Source is the script the variables were captured from.
	Source string

	// Degraded marks an env that could not be established; Vars is empty.
	Degraded bool
}

// NewEnv returns an env with the given variables.
func NewEnv(vars map[string]string) *Env {
	e := &Env{Vars: make(map[string]string, len(vars))}
	for k, v := range vars {
		e.Vars[k] = v
	}
	return e
}

// DegradedEnv returns an empty env flagged as degraded.
func DegradedEnv() *Env {
	return &Env{Vars: map[string]string{}, Degraded: true}
}

// Get returns a variable, or "" for a nil env.
func (e *Env) Get(key string) string {
	if e == nil {
		return ""
	}
	return e.Vars[key]
}

// Path returns the PATH this env sets, if any.
func (e *Env) Path() string {
	return e.Get("PATH")
}

// PathDirs returns the PATH entries in order.
func (e *Env) PathDirs() []string {
	p := e.Path()
	if p == "" {
		return nil
	}
	return filepath.SplitList(p)
}

// With returns a copy of the env with key set to value.
func (e *Env) With(key, value string) *Env {
	out := &Env{Vars: map[string]string{}}
	if e != nil {
		out.Source = e.Source
		out.Degraded = e.Degraded
		for k, v := range e.Vars {
			out.Vars[k] = v
		}
	}
	out.Vars[key] = value
	return out
}

// Environ overlays the env on base (KEY=VALUE entries) and returns the
// merged list sorted by key.
func (e *Env) Environ(base []string) []string {
	merged := make(map[string]string, len(base))
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			merged[k] = v
		}
	}
	if e != nil {
		for k, v := range e.Vars {
			merged[k] = v
		}
	}
	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// Assignments returns the env's own variables as sorted KEY=VALUE pairs.
func (e *Env) Assignments() []string {
	if e == nil || len(e.Vars) == 0 {
		return nil
	}
	return e.Environ(nil)
}

// ParseEnviron parses the NUL-separated output of `env -0`.
func ParseEnviron(out string) map[string]string {
	vars := make(map[string]string)
	for _, kv := range strings.Split(out, "\x00") {
		kv = strings.TrimPrefix(kv, "\n")
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			vars[k] = v
		}
	}
	return vars
}
