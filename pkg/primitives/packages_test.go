package primitives

import (
	"context"
	"errors"
	"testing"

	"github.com/openfroyo/hostprov/pkg/engine"
)

func TestInstallPackages(t *testing.T) {
	f := newFixture()
	rep := &engine.Report{}

	if err := f.p.InstallPackages(context.Background(), []string{"git", "curl", "build-essential"}, rep); err != nil {
		t.Fatalf("InstallPackages() error = %v", err)
	}
	if len(f.packages.installs) != 1 {
		t.Fatalf("Install called %d times, want a single invocation", len(f.packages.installs))
	}
	if got := len(f.packages.installs[0]); got != 3 {
		t.Errorf("installed %d packages, want 3", got)
	}
	if len(rep.Warnings()) != 0 {
		t.Errorf("unexpected warnings: %v", rep.Warnings())
	}
}

func TestInstallPackages_RefreshFailureIsDegraded(t *testing.T) {
	f := newFixture()
	f.packages.refreshErr = errSimulated
	rep := &engine.Report{}

	if err := f.p.InstallPackages(context.Background(), []string{"git"}, rep); err != nil {
		t.Fatalf("InstallPackages() error = %v", err)
	}
	if len(f.packages.installs) != 1 {
		t.Error("install must still run after a failed refresh")
	}
	warnings := rep.Warnings()
	if len(warnings) != 1 || warnings[0].Code != engine.ErrCodeCacheRefresh {
		t.Errorf("warnings = %v, want one %s", warnings, engine.ErrCodeCacheRefresh)
	}
}

func TestInstallPackages_InstallFailureIsFatal(t *testing.T) {
	f := newFixture()
	f.packages.installErr = errSimulated

	err := f.p.InstallPackages(context.Background(), []string{"git"}, &engine.Report{})
	if !engine.IsFatal(err) {
		t.Fatalf("error = %v, want fatal", err)
	}
	var ee *engine.EngineError
	if errors.As(err, &ee) && ee.Code != engine.ErrCodePackageInstall {
		t.Errorf("Code = %s, want %s", ee.Code, engine.ErrCodePackageInstall)
	}
	if !errors.Is(err, errSimulated) {
		t.Error("cause must be preserved")
	}
}

func TestInstallPackages_NothingToInstall(t *testing.T) {
	f := newFixture()
	if err := f.p.InstallPackages(context.Background(), nil, &engine.Report{}); err != nil {
		t.Fatalf("InstallPackages() error = %v", err)
	}
	if len(f.packages.installs) != 0 {
		t.Error("Install must not run for an empty package list")
	}
}
