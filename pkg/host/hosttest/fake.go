// Package hosttest provides an in-memory host.Host for tests.
package hosttest

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/openfroyo/hostprov/pkg/host"
)

// Handler answers a command run on the fake host. It may mutate the fake,
// e.g. to create the directory a clone would produce.
type Handler func(f *Fake, cmd host.Command) *host.Result

type file struct {
	data []byte
	mode fs.FileMode
}

type route struct {
	prefix  string
	handler Handler
}

// Fake is an in-memory host. Commands succeed with exit 0 unless a handler
// registered with On or Fail matches their command line.
type Fake struct {
	mu       sync.Mutex
	files    map[string]*file
	dirs     map[string]bool
	commands map[string]bool
	private  map[string]bool
	routes   []route
	calls    []host.Command
	writes   []string
}

// New returns an empty fake host.
func New() *Fake {
	return &Fake{
		files:    make(map[string]*file),
		dirs:     map[string]bool{"/": true},
		commands: make(map[string]bool),
		private:  make(map[string]bool),
	}
}

// Name implements host.Host.
func (f *Fake) Name() string {
	return "fake"
}

// AddFile creates a file and its parent directories.
func (f *Fake) AddFile(p, data string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addFile(p, []byte(data), 0644)
}

func (f *Fake) addFile(p string, data []byte, mode fs.FileMode) {
	p = path.Clean(p)
	f.addDir(path.Dir(p))
	f.files[p] = &file{data: append([]byte(nil), data...), mode: mode}
}

// AddDir creates a directory and its parents.
func (f *Fake) AddDir(p string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addDir(p)
}

func (f *Fake) addDir(p string) {
	for p = path.Clean(p); ; p = path.Dir(p) {
		f.dirs[p] = true
		if p == "/" || p == "." {
			return
		}
	}
}

// AddCommand makes name resolvable on the default PATH.
func (f *Fake) AddCommand(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands[name] = true
}

// AddExecutable places an executable file at p, resolvable through any env
// whose PATH contains its directory.
func (f *Fake) AddExecutable(p string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addFile(p, []byte("#!/bin/sh\n"), 0755)
}

// Restrict makes ReadFile of p fail with a permission error, like a
// root-only file read by an unprivileged user. Commands can still see it.
func (f *Fake) Restrict(p string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.private[path.Clean(p)] = true
}

// On routes commands whose command line starts with prefix to h. Later
// registrations win over earlier ones with the same prefix; longer prefixes
// win over shorter ones.
func (f *Fake) On(prefix string, h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes = append(f.routes, route{prefix: prefix, handler: h})
}

// Fail makes commands starting with prefix exit with code.
func (f *Fake) Fail(prefix string, code int) {
	f.On(prefix, func(*Fake, host.Command) *host.Result {
		return &host.Result{ExitCode: code, Stderr: "simulated failure"}
	})
}

// Calls returns every command run so far.
func (f *Fake) Calls() []host.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]host.Command(nil), f.calls...)
}

// CommandLines returns the command lines run so far, without sudo.
func (f *Fake) CommandLines() []string {
	calls := f.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = line(c)
	}
	return out
}

// Ran reports whether any command line started with prefix.
func (f *Fake) Ran(prefix string) bool {
	for _, l := range f.CommandLines() {
		if strings.HasPrefix(l, prefix) {
			return true
		}
	}
	return false
}

// Writes returns the paths written through WriteFile, in order.
func (f *Fake) Writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

// Content returns a file's content and whether it exists.
func (f *Fake) Content(p string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fl, ok := f.files[path.Clean(p)]
	if !ok {
		return "", false
	}
	return string(fl.data), true
}

// Mode returns a file's mode.
func (f *Fake) Mode(p string) fs.FileMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fl, ok := f.files[path.Clean(p)]; ok {
		return fl.mode
	}
	return 0
}

// Reset clears recorded calls and writes but keeps the filesystem.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
	f.writes = nil
}

func line(c host.Command) string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Run implements host.Host.
func (f *Fake) Run(_ context.Context, cmd host.Command) (*host.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	l := line(cmd)
	var match *route
	for i := range f.routes {
		r := &f.routes[i]
		if strings.HasPrefix(l, r.prefix) && (match == nil || len(r.prefix) >= len(match.prefix)) {
			match = r
		}
	}
	f.mu.Unlock()

	if match == nil {
		return &host.Result{}, nil
	}
	return match.handler(f, cmd), nil
}

// LookPath implements host.Host.
func (f *Fake) LookPath(_ context.Context, name string, env *host.Env) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, dir := range env.PathDirs() {
		p := path.Join(dir, name)
		if fl, ok := f.files[p]; ok && fl.mode&0111 != 0 {
			return p, true
		}
	}
	if f.commands[name] {
		return "/usr/bin/" + name, true
	}
	return "", false
}

// Stat implements host.Host.
func (f *Fake) Stat(_ context.Context, p string) (*host.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p = path.Clean(p)
	if fl, ok := f.files[p]; ok {
		return &host.FileInfo{Path: p, Size: int64(len(fl.data)), Mode: fl.mode}, nil
	}
	if f.dirs[p] {
		return &host.FileInfo{Path: p, Mode: fs.ModeDir | 0755, IsDir: true}, nil
	}
	return nil, &fs.PathError{Op: "stat", Path: p, Err: fs.ErrNotExist}
}

// ReadFile implements host.Host.
func (f *Fake) ReadFile(_ context.Context, p string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fl, ok := f.files[path.Clean(p)]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: p, Err: fs.ErrNotExist}
	}
	if f.private[path.Clean(p)] {
		return nil, &fs.PathError{Op: "open", Path: p, Err: fs.ErrPermission}
	}
	return append([]byte(nil), fl.data...), nil
}

// ReadDir implements host.Host.
func (f *Fake) ReadDir(_ context.Context, p string) ([]host.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p = path.Clean(p)
	if !f.dirs[p] {
		return nil, &fs.PathError{Op: "open", Path: p, Err: fs.ErrNotExist}
	}
	var out []host.FileInfo
	for name, fl := range f.files {
		if path.Dir(name) == p {
			out = append(out, host.FileInfo{Path: name, Size: int64(len(fl.data)), Mode: fl.mode})
		}
	}
	for name := range f.dirs {
		if name != p && path.Dir(name) == p {
			out = append(out, host.FileInfo{Path: name, Mode: fs.ModeDir | 0755, IsDir: true})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// WriteFile implements host.Host.
func (f *Fake) WriteFile(_ context.Context, p string, data []byte, mode fs.FileMode, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p = path.Clean(p)
	if !f.dirs[path.Dir(p)] {
		return fmt.Errorf("failed to create temp file: %w", &fs.PathError{Op: "open", Path: p, Err: fs.ErrNotExist})
	}
	f.files[p] = &file{data: append([]byte(nil), data...), mode: mode.Perm()}
	f.writes = append(f.writes, p)
	return nil
}

// MkdirAll implements host.Host.
func (f *Fake) MkdirAll(_ context.Context, p string, _ fs.FileMode, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[path.Clean(p)]; ok {
		return fmt.Errorf("failed to create directory: %s is a file", p)
	}
	f.addDir(p)
	return nil
}

var _ host.Host = (*Fake)(nil)
