package primitives

import (
	"context"
	"errors"
	"path"

	"github.com/openfroyo/hostprov/pkg/host"
	"github.com/openfroyo/hostprov/pkg/host/hosttest"
)

var errSimulated = errors.New("simulated failure")

type fakePackages struct {
	refreshErr error
	installErr error
	installs   [][]string
}

func (f *fakePackages) RefreshCache(context.Context) error { return f.refreshErr }

func (f *fakePackages) Install(_ context.Context, names []string) error {
	f.installs = append(f.installs, append([]string(nil), names...))
	return f.installErr
}

// fakeVersions models nvm on a fake host: installing creates the init script,
// installing a runtime places node under the version dir, and sourcing
// returns a PATH that includes it once installed.
type fakeVersions struct {
	host       *hosttest.Fake
	dir        string
	installErr error
	runtimeErr error
	installs   []string
	runtimes   []string
	selects    []string
	sources    []string
}

const nodeBinDir = "/versions/node/v20.11.1/bin"

func (f *fakeVersions) Install(_ context.Context, _, dir string) error {
	f.installs = append(f.installs, dir)
	if f.installErr != nil {
		return f.installErr
	}
	f.host.AddFile(path.Join(dir, "nvm.sh"), "nvm() { :; }\n")
	return nil
}

func (f *fakeVersions) SourceEnvironment(_ context.Context, script string) (*host.Env, error) {
	f.sources = append(f.sources, script)
	dir := path.Dir(script)
	env := host.NewEnv(map[string]string{
		"NVM_DIR": dir,
		"PATH":    path.Join(dir, nodeBinDir) + ":/usr/bin",
	})
	env.Source = script
	return env, nil
}

func (f *fakeVersions) InstallRuntime(_ context.Context, env *host.Env, channel string) error {
	f.runtimes = append(f.runtimes, channel)
	if f.runtimeErr != nil {
		return f.runtimeErr
	}
	f.host.AddExecutable(path.Join(env.Get("NVM_DIR"), nodeBinDir, "node"))
	return nil
}

func (f *fakeVersions) SelectRuntime(_ context.Context, _ *host.Env, channel string) error {
	f.selects = append(f.selects, channel)
	return nil
}

func (f *fakeVersions) CurrentVersion(context.Context, *host.Env) (string, error) {
	return "v20.11.1", nil
}

type fakeSnap struct {
	fail     map[string]bool
	installs []string
}

func (f *fakeSnap) Install(_ context.Context, name string, _ bool) error {
	f.installs = append(f.installs, name)
	if f.fail[name] {
		return errSimulated
	}
	return nil
}

type fakeSource struct {
	host      *hosttest.Fake
	failClone map[string]bool
	failPull  map[string]bool
	clones    []string
	pulls     []string
}

func (f *fakeSource) Clone(_ context.Context, url, dest string, _ bool) error {
	f.clones = append(f.clones, url)
	if f.failClone[url] {
		return errSimulated
	}
	f.host.AddDir(dest)
	return nil
}

func (f *fakeSource) Pull(_ context.Context, dest string, _ bool) error {
	f.pulls = append(f.pulls, dest)
	if f.failPull[dest] {
		return errSimulated
	}
	return nil
}

type fakeSupervisor struct {
	fail   map[string]bool
	active bool
	calls  []string
}

func (f *fakeSupervisor) step(name string) error {
	f.calls = append(f.calls, name)
	if f.fail[name] {
		return errSimulated
	}
	return nil
}

func (f *fakeSupervisor) Reload(context.Context) error { return f.step("reload") }
func (f *fakeSupervisor) Enable(context.Context, string) error { return f.step("enable") }
func (f *fakeSupervisor) Start(context.Context, string) error { return f.step("start") }
func (f *fakeSupervisor) Restart(context.Context, string) error { return f.step("restart") }
func (f *fakeSupervisor) IsActive(context.Context, string) bool { return f.active }

type fixture struct {
	host       *hosttest.Fake
	packages   *fakePackages
	versions   *fakeVersions
	snap       *fakeSnap
	source     *fakeSource
	supervisor *fakeSupervisor
	p          *Primitives
}

func newFixture() *fixture {
	h := hosttest.New()
	f := &fixture{
		host:       h,
		packages:   &fakePackages{},
		versions:   &fakeVersions{host: h},
		snap:       &fakeSnap{fail: map[string]bool{}},
		source:     &fakeSource{host: h, failClone: map[string]bool{}, failPull: map[string]bool{}},
		supervisor: &fakeSupervisor{fail: map[string]bool{}},
	}
	f.p = New(h, Collaborators{
		Packages:   f.packages,
		Versions:   f.versions,
		Snap:       f.snap,
		Source:     f.source,
		Supervisor: f.supervisor,
	})
	return f
}
