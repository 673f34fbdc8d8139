package provision

import (
	"context"
	"path"
	"strings"
	"testing"

	"github.com/openfroyo/hostprov/pkg/config"
	"github.com/openfroyo/hostprov/pkg/engine"
	"github.com/openfroyo/hostprov/pkg/host"
	"github.com/openfroyo/hostprov/pkg/host/hosttest"
)

const testConfig = `
name: wiki
user: wiki
packages:
  install: [git, curl]
  snaps:
    - name: yq
source:
  primary:
    name: wiki
    url: https://example.com/wiki.git
    path: /home/wiki/wiki
  plugins:
    - name: auth
      url: https://example.com/auth.git
      path: /home/wiki/plugins/auth
    - name: search
      url: https://example.com/search.git
      path: /home/wiki/plugins/search
  dependencies:
    command: npm ci
    marker: node_modules
app:
  port: 3000
  config_path: /home/wiki/wiki/config.yml
  plugins: [auth, search]
  accounts:
    - username: admin
      password: admin
      role: admin
service:
  command: node server.js
retry:
  attempts: 1
state:
  enabled: false
`

const (
	nvmDir   = "/home/wiki/.nvm"
	nodeBin  = nvmDir + "/versions/node/v20.11.1/bin"
	unitPath = "/etc/systemd/system/wiki.service"

	nvmPrefix = `bash -c . "$0" >/dev/null 2>&1 && nvm`
)

func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()
	l, err := config.NewLoader(config.WithLookupEnv(func(string) (string, bool) { return "", false }))
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	cfg, err := l.Parse([]byte(testConfig), config.FormatYAML)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return cfg
}

// freshHost simulates a machine where nothing is installed yet. Its command
// handlers behave like the real tools: installs create the files later
// probes look for.
func freshHost() *hosttest.Fake {
	f := hosttest.New()
	f.AddCommand("apt-get")
	f.AddFile("/etc/apt/sources.list", "deb cdrom:[Ubuntu 22.04]/ jammy main\ndeb http://archive.ubuntu.com/ubuntu jammy main\n")

	// nvm install script
	f.On("bash -c set -o pipefail", func(f *hosttest.Fake, cmd host.Command) *host.Result {
		f.AddFile(path.Join(cmd.Env.Get("NVM_DIR"), "nvm.sh"), "# nvm\n")
		return &host.Result{}
	})
	// sourcing nvm.sh
	f.On(`bash -c . "$0" >/dev/null 2>&1; env -0`, func(_ *hosttest.Fake, cmd host.Command) *host.Result {
		dir := path.Dir(cmd.Args[2])
		return &host.Result{Stdout: "NVM_DIR=" + dir + "\x00PATH=" + dir + "/versions/node/v20.11.1/bin:/usr/bin\x00"}
	})
	// nvm install / alias
	f.On(nvmPrefix, func(f *hosttest.Fake, cmd host.Command) *host.Result {
		if len(cmd.Args) > 3 && cmd.Args[3] == "install" {
			f.AddExecutable(path.Join(path.Dir(cmd.Args[2]), "versions/node/v20.11.1/bin/node"))
		}
		return &host.Result{}
	})
	f.On("node --version", func(*hosttest.Fake, host.Command) *host.Result {
		return &host.Result{Stdout: "v20.11.1\n"}
	})
	f.On("snap install", func(f *hosttest.Fake, cmd host.Command) *host.Result {
		f.AddCommand(cmd.Args[1])
		return &host.Result{}
	})
	f.On("git clone", func(f *hosttest.Fake, cmd host.Command) *host.Result {
		f.AddDir(cmd.Args[len(cmd.Args)-1])
		return &host.Result{}
	})
	f.On("npm ci", func(f *hosttest.Fake, cmd host.Command) *host.Result {
		f.AddDir(path.Join(cmd.Dir, "node_modules"))
		return &host.Result{}
	})
	f.Fail("systemctl is-active", 3)
	return f
}

func apply(t *testing.T, cfg *config.Config, h host.Host) *Outcome {
	t.Helper()
	out, err := New(cfg, h).Apply(context.Background())
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	return out
}

func statuses(r *engine.RunReport) map[string]engine.StageStatus {
	m := make(map[string]engine.StageStatus, len(r.Results))
	for _, res := range r.Results {
		m[res.Stage] = res.Status
	}
	return m
}

func indexOf(lines []string, prefix string) int {
	for i, l := range lines {
		if strings.HasPrefix(l, prefix) {
			return i
		}
	}
	return -1
}

func TestPlan_LiteralOrder(t *testing.T) {
	plan := New(loadTestConfig(t), hosttest.New()).Plan()
	if err := plan.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	want := []string{
		StageSanitize, StageInstallPackages, StageInstallTools, StageVersionManager, StageRuntime,
		StageClonePrimary, StageClonePlugins, StageResolveDependencies, StageRenderConfig, StageActivateService,
	}
	if len(plan.Stages) != len(want) {
		t.Fatalf("stages = %d, want %d", len(plan.Stages), len(want))
	}
	for i, name := range want {
		if plan.Stages[i].Name != name {
			t.Errorf("stage %d = %s, want %s", i, plan.Stages[i].Name, name)
		}
	}

	for _, st := range plan.Stages {
		switch st.Name {
		case StageRenderConfig, StageActivateService, StageInstallPackages, StageVersionManager:
			if st.Gated() {
				t.Errorf("%s is gated, want it to run unconditionally", st.Name)
			}
		case StageRuntime, StageClonePrimary, StageClonePlugins, StageResolveDependencies:
			if !st.Gated() {
				t.Errorf("%s is not gated by a probe", st.Name)
			}
		}
	}
}

func TestApply_FreshHost(t *testing.T) {
	f := freshHost()
	out := apply(t, loadTestConfig(t), f)
	r := out.Report

	if r.State != engine.StateDone {
		t.Fatalf("State = %s, want done (error: %v)", r.State, r.Error)
	}
	if r.Outcome() != engine.OutcomeClean {
		t.Errorf("Outcome = %s, warnings: %v", r.Outcome(), r.Warnings())
	}
	for stage, status := range statuses(r) {
		if status != engine.StagePerformed {
			t.Errorf("%s = %s, want performed", stage, status)
		}
	}

	lines := f.CommandLines()
	order := []string{
		"apt-get update",
		"apt-get install -y git curl",
		"snap install yq",
		"bash -c set -o pipefail",
		nvmPrefix,
		"git clone https://example.com/wiki.git /home/wiki/wiki",
		"git clone https://example.com/auth.git",
		"npm ci",
		"systemctl daemon-reload",
		"systemctl enable wiki.service",
		"systemctl start wiki.service",
	}
	last := -1
	for _, prefix := range order {
		i := indexOf(lines, prefix)
		if i < 0 {
			t.Fatalf("command %q never ran; ran %v", prefix, lines)
		}
		if i < last {
			t.Errorf("command %q ran out of order", prefix)
		}
		last = i
	}

	sources, _ := f.Content("/etc/apt/sources.list")
	if !strings.HasPrefix(sources, "# deb cdrom:") {
		t.Errorf("sources.list = %q, want cdrom line disabled", sources)
	}
	if _, ok := f.Content("/etc/apt/sources.list.hostprov.bak"); !ok {
		t.Error("sanitizer backup missing")
	}

	cfgText, ok := f.Content("/home/wiki/wiki/config.yml")
	if !ok {
		t.Fatal("application configuration not written")
	}
	for _, want := range []string{"port: 3000", "username: admin", "role: admin", "  - auth", "  - search", "level: info"} {
		if !strings.Contains(cfgText, want) {
			t.Errorf("config missing %q:\n%s", want, cfgText)
		}
	}
	if f.Mode("/home/wiki/wiki/config.yml") != 0600 {
		t.Errorf("config mode = %v, want 0600", f.Mode("/home/wiki/wiki/config.yml"))
	}

	unit, ok := f.Content(unitPath)
	if !ok {
		t.Fatal("unit not written")
	}
	for _, want := range []string{
		"User=wiki",
		"WorkingDirectory=/home/wiki/wiki",
		"Environment=PATH=" + nodeBin + ":/usr/bin",
		"ExecStart=node server.js",
	} {
		if !strings.Contains(unit, want) {
			t.Errorf("unit missing %q:\n%s", want, unit)
		}
	}
	if out.UnitPath != unitPath || out.Config == nil {
		t.Errorf("outcome = %+v", out)
	}
	if out.Env.Path() != nodeBin+":/usr/bin" {
		t.Errorf("final env PATH = %q", out.Env.Path())
	}
}

func TestApply_SecondRunIsIdempotent(t *testing.T) {
	f := freshHost()
	cfg := loadTestConfig(t)
	first := apply(t, cfg, f)
	firstConfig, _ := f.Content("/home/wiki/wiki/config.yml")
	firstUnit, _ := f.Content(unitPath)

	f.Reset()
	second := apply(t, cfg, f)
	r := second.Report
	if r.State != engine.StateDone || len(r.Warnings()) != 0 {
		t.Fatalf("second run state = %s warnings = %v", r.State, r.Warnings())
	}

	want := map[string]engine.StageStatus{
		StageSanitize:            engine.StageSkipped,
		StageInstallTools:        engine.StageSkipped,
		StageRuntime:             engine.StageSkipped,
		StageClonePrimary:        engine.StageSkipped,
		StageClonePlugins:        engine.StageSkipped,
		StageResolveDependencies: engine.StageSkipped,
		StageRenderConfig:        engine.StagePerformed,
		StageActivateService:     engine.StagePerformed,
	}
	got := statuses(r)
	for stage, status := range want {
		if got[stage] != status {
			t.Errorf("%s = %s, want %s", stage, got[stage], status)
		}
	}

	for _, prefix := range []string{"git clone", "snap install", "npm ci", "bash -c set -o pipefail", nvmPrefix} {
		if f.Ran(prefix) {
			t.Errorf("second run ran %q", prefix)
		}
	}

	secondConfig, _ := f.Content("/home/wiki/wiki/config.yml")
	secondUnit, _ := f.Content(unitPath)
	if firstConfig != secondConfig {
		t.Error("rendered configuration differs between runs")
	}
	if firstUnit != secondUnit {
		t.Error("unit file differs between runs")
	}
	if first.Config.Checksum != second.Config.Checksum {
		t.Error("configuration checksum differs between runs")
	}
}

func TestApply_RuntimeAndPrimaryPresent(t *testing.T) {
	f := freshHost()
	f.AddCommand("node")
	f.AddDir("/home/wiki/wiki")

	r := apply(t, loadTestConfig(t), f).Report
	if r.State != engine.StateDone {
		t.Fatalf("State = %s (error: %v)", r.State, r.Error)
	}

	got := statuses(r)
	if got[StageRuntime] != engine.StageSkipped || got[StageClonePrimary] != engine.StageSkipped {
		t.Errorf("runtime = %s, clone-primary = %s, want both skipped", got[StageRuntime], got[StageClonePrimary])
	}
	if got[StageRenderConfig] != engine.StagePerformed || got[StageActivateService] != engine.StagePerformed {
		t.Errorf("render = %s, activate = %s, want both performed", got[StageRenderConfig], got[StageActivateService])
	}
	if f.Ran(nvmPrefix) {
		t.Error("runtime install or select ran although node resolves")
	}
	if f.Ran("git clone https://example.com/wiki.git") {
		t.Error("primary repository cloned although it exists")
	}
}

func TestApply_PackageInstallFailureStopsRun(t *testing.T) {
	f := freshHost()
	f.Fail("apt-get install", 100)

	out := apply(t, loadTestConfig(t), f)
	r := out.Report
	if r.State != engine.StateAborted {
		t.Fatalf("State = %s, want aborted", r.State)
	}
	if r.FailedPhase != engine.StateDependencyInstall || r.FailedStage != StageInstallPackages {
		t.Errorf("failed at %s/%s", r.FailedPhase, r.FailedStage)
	}
	if r.Error == nil || r.Error.Code != engine.ErrCodePackageInstall {
		t.Errorf("Error = %v, want PACKAGE_INSTALL", r.Error)
	}
	if len(r.Results) != 2 {
		t.Errorf("results = %d, want sanitize and install-packages only", len(r.Results))
	}
	for _, prefix := range []string{"snap", "bash", "git", "npm", "systemctl daemon-reload"} {
		if f.Ran(prefix) {
			t.Errorf("%q ran after the fatal failure", prefix)
		}
	}
	if s := Summarize(loadTestConfig(t), r, nil); s.ExitCode() == 0 || s.URL != "" {
		t.Errorf("summary = %+v, want non-zero exit and no URL", s)
	}
}

func TestApply_CacheRefreshFailureIsDegraded(t *testing.T) {
	f := freshHost()
	f.Fail("apt-get update", 100)

	r := apply(t, loadTestConfig(t), f).Report
	if r.State != engine.StateDone {
		t.Fatalf("State = %s (error: %v)", r.State, r.Error)
	}
	if r.Outcome() != engine.OutcomeWarnings {
		t.Errorf("Outcome = %s, want completed_with_warnings", r.Outcome())
	}
	if w := r.Warnings(); len(w) != 1 || w[0].Code != engine.ErrCodeCacheRefresh {
		t.Errorf("warnings = %v", w)
	}
}

func TestApply_EnableFailure(t *testing.T) {
	f := freshHost()
	f.Fail("systemctl enable", 1)

	r := apply(t, loadTestConfig(t), f).Report
	if r.State != engine.StateAborted || r.FailedPhase != engine.StateServiceActivation {
		t.Fatalf("state = %s failed phase = %s", r.State, r.FailedPhase)
	}
	if r.Error == nil || r.Error.Operation != "enable" {
		t.Errorf("Error = %+v, want operation enable", r.Error)
	}
	if f.Ran("systemctl start") || f.Ran("systemctl restart") {
		t.Error("start attempted after enable failed")
	}
	if _, ok := f.Content(unitPath); !ok {
		t.Error("unit should have been written before enable")
	}
}

func TestApply_PluginFailureIsIsolated(t *testing.T) {
	f := freshHost()
	f.Fail("git clone https://example.com/auth.git", 128)

	r := apply(t, loadTestConfig(t), f).Report
	if r.State != engine.StateDone {
		t.Fatalf("State = %s (error: %v)", r.State, r.Error)
	}
	res, _ := r.Result(StageClonePlugins)
	if res.Status != engine.StagePerformed || len(res.Warnings) != 1 {
		t.Errorf("clone-plugins = %s with %d warnings", res.Status, len(res.Warnings))
	}
	if res.Warnings[0].Code != engine.ErrCodeCloneFailed {
		t.Errorf("warning code = %s", res.Warnings[0].Code)
	}
	if _, err := f.Stat(context.Background(), "/home/wiki/plugins/search"); err != nil {
		t.Error("search plugin not cloned after auth failed")
	}
}

func TestApply_DegradedEnvWithoutRuntimeIsFatal(t *testing.T) {
	f := freshHost()
	// The install script "succeeds" without producing nvm.sh.
	f.On("bash -c set -o pipefail", func(*hosttest.Fake, host.Command) *host.Result { return &host.Result{} })

	r := apply(t, loadTestConfig(t), f).Report
	if r.State != engine.StateAborted || r.FailedStage != StageRuntime {
		t.Fatalf("state = %s failed stage = %s", r.State, r.FailedStage)
	}
	if r.Error.Code != engine.ErrCodeRuntimeUnavailable {
		t.Errorf("code = %s", r.Error.Code)
	}
	vm, _ := r.Result(StageVersionManager)
	if vm.Status != engine.StagePerformed || len(vm.Warnings) == 0 {
		t.Errorf("version-manager = %s with warnings %v, want performed and degraded", vm.Status, vm.Warnings)
	}
}

func TestApply_NoPackageManager(t *testing.T) {
	r := apply(t, loadTestConfig(t), hosttest.New()).Report
	if r.State != engine.StateAborted || r.FailedStage != StageInstallPackages {
		t.Fatalf("state = %s failed stage = %s", r.State, r.FailedStage)
	}
	res, _ := r.Result(StageInstallPackages)
	if len(res.Warnings) != 1 || res.Warnings[0].Code != engine.ErrCodeCacheRefresh {
		t.Errorf("warnings = %v, want the refresh to degrade first", res.Warnings)
	}
}

func TestApply_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := New(loadTestConfig(t), freshHost()).Apply(ctx)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if out.Report.State != engine.StateAborted || out.Report.FailedStage != StageSanitize {
		t.Errorf("state = %s failed stage = %s", out.Report.State, out.Report.FailedStage)
	}
}

func TestPreview(t *testing.T) {
	f := freshHost()
	f.AddDir("/home/wiki/wiki")
	previews := New(loadTestConfig(t), f).Preview(context.Background())

	byName := make(map[string]StagePreview, len(previews))
	for _, p := range previews {
		byName[p.Name] = p
	}
	if byName[StageSanitize].Satisfied {
		t.Error("sanitize satisfied although a cdrom line is present")
	}
	if !byName[StageClonePrimary].Satisfied {
		t.Error("clone-primary not satisfied although the checkout exists")
	}
	if byName[StageRenderConfig].Gated || byName[StageRenderConfig].Satisfied {
		t.Errorf("render-config preview = %+v", byName[StageRenderConfig])
	}
	if !strings.Contains(byName[StageRenderConfig].String(), "run (always)") {
		t.Errorf("String() = %q", byName[StageRenderConfig].String())
	}
	if len(f.Writes()) != 0 || len(f.Calls()) != 0 {
		t.Errorf("preview mutated the host: writes %v calls %v", f.Writes(), f.CommandLines())
	}
}

func TestRenderPreview_Deterministic(t *testing.T) {
	p := New(loadTestConfig(t), hosttest.New())
	a, unitA, err := p.RenderPreview()
	if err != nil {
		t.Fatalf("RenderPreview() error = %v", err)
	}
	b, unitB, _ := p.RenderPreview()
	if string(a.Content) != string(b.Content) || string(unitA) != string(unitB) {
		t.Error("RenderPreview() output differs between calls")
	}
	if strings.Contains(string(unitA), "PATH=") {
		t.Error("preview unit should not carry a version manager PATH")
	}
}
