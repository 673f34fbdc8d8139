package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeRecorder struct {
	started  int
	stages   []string
	finished *RunReport
	// finishedCtxErr is the context error seen by RunFinished.
	finishedCtxErr error
	err            error
}

func (f *fakeRecorder) RunStarted(context.Context, *RunReport) error {
	f.started++
	return f.err
}

func (f *fakeRecorder) StageFinished(_ context.Context, _ string, res *StageResult) error {
	f.stages = append(f.stages, res.Stage)
	return f.err
}

func (f *fakeRecorder) RunFinished(ctx context.Context, r *RunReport) error {
	f.finished = r
	f.finishedCtxErr = ctx.Err()
	return f.err
}

// stageLog records which actions ran, in order.
type stageLog struct {
	ran []string
}

func (l *stageLog) stage(name string, phase RunState, err error) Stage {
	return Stage{
		Name:  name,
		Phase: phase,
		Action: func(context.Context, *Report) error {
			l.ran = append(l.ran, name)
			return err
		},
		OnFailure: PolicyFatal,
	}
}

func fullPlan(l *stageLog, failAt string, failErr error) *Plan {
	errFor := func(name string) error {
		if name == failAt {
			return failErr
		}
		return nil
	}
	return &Plan{
		Name: "app",
		Stages: []Stage{
			l.stage("sanitize", StateSanitizing, errFor("sanitize")),
			l.stage("install-packages", StateDependencyInstall, errFor("install-packages")),
			l.stage("install-tools", StateDependencyInstall, errFor("install-tools")),
			l.stage("version-manager", StateRuntimeAcquisition, errFor("version-manager")),
			l.stage("runtime", StateRuntimeAcquisition, errFor("runtime")),
			l.stage("clone-primary", StateSourceAcquisition, errFor("clone-primary")),
			l.stage("render-config", StateConfigGeneration, errFor("render-config")),
			l.stage("activate-service", StateServiceActivation, errFor("activate-service")),
		},
	}
}

func TestOrchestrator_RunToDone(t *testing.T) {
	l := &stageLog{}
	rec := &fakeRecorder{}
	o := NewOrchestrator(nil, WithRecorder(rec), WithIDGenerator(func() string { return "run-1" }))

	report, err := o.Run(context.Background(), fullPlan(l, "", nil))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.State != StateDone {
		t.Errorf("State = %s, want done", report.State)
	}
	if report.Outcome() != OutcomeClean {
		t.Errorf("Outcome = %s, want completed", report.Outcome())
	}
	if report.Count(StagePerformed) != 8 {
		t.Errorf("performed = %d, want 8", report.Count(StagePerformed))
	}
	if report.RunID != "run-1" {
		t.Errorf("RunID = %s", report.RunID)
	}
	if rec.started != 1 || len(rec.stages) != 8 || rec.finished != report {
		t.Errorf("recorder saw started=%d stages=%d finished=%v", rec.started, len(rec.stages), rec.finished != nil)
	}
}

func TestOrchestrator_FatalShortCircuit(t *testing.T) {
	l := &stageLog{}
	o := NewOrchestrator(nil)

	failure := NewFatalError("package install failed", nil).WithCode(ErrCodePackageInstall)
	report, err := o.Run(context.Background(), fullPlan(l, "install-packages", failure))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.State != StateAborted {
		t.Fatalf("State = %s, want aborted", report.State)
	}
	if report.FailedPhase != StateDependencyInstall || report.FailedStage != "install-packages" {
		t.Errorf("failed at %s/%s", report.FailedPhase, report.FailedStage)
	}
	if report.Outcome().ExitCode() == 0 {
		t.Error("aborted run must exit non-zero")
	}
	if len(l.ran) != 2 || l.ran[1] != "install-packages" {
		t.Errorf("ran = %v, want stages up to install-packages only", l.ran)
	}
	if report.Error == nil || report.Error.Code != ErrCodePackageInstall {
		t.Errorf("Error = %v", report.Error)
	}
}

func TestOrchestrator_DegradedCompletesWithWarnings(t *testing.T) {
	l := &stageLog{}
	o := NewOrchestrator(nil)

	degraded := NewDegradedError("plugin clone failed", nil).WithCode(ErrCodeCloneFailed)
	report, err := o.Run(context.Background(), fullPlan(l, "clone-primary", degraded))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.State != StateDone {
		t.Errorf("State = %s, want done", report.State)
	}
	if report.Outcome() != OutcomeWarnings {
		t.Errorf("Outcome = %s, want completed_with_warnings", report.Outcome())
	}
	if len(l.ran) != 8 {
		t.Errorf("ran %d stages, want 8", len(l.ran))
	}
}

func TestOrchestrator_InvalidPlan(t *testing.T) {
	o := NewOrchestrator(nil)

	plan := &Plan{
		Name: "app",
		Stages: []Stage{
			{Name: "render", Phase: StateConfigGeneration, Action: func(context.Context, *Report) error { return nil }, OnFailure: PolicyFatal},
			{Name: "sanitize", Phase: StateSanitizing, Action: func(context.Context, *Report) error { return nil }, OnFailure: PolicyFatal},
		},
	}

	report, err := o.Run(context.Background(), plan)
	if err == nil {
		t.Fatal("expected plan validation error")
	}
	if report.State != StateAborted || report.FailedPhase != StateInit {
		t.Errorf("State = %s, FailedPhase = %s", report.State, report.FailedPhase)
	}
	if len(report.Results) != 0 {
		t.Error("no stage may run for an invalid plan")
	}
	if report.Error.Code != ErrCodeConfigInvalid {
		t.Errorf("Code = %s", report.Error.Code)
	}
}

func TestOrchestrator_RecorderErrorsAreNotFatal(t *testing.T) {
	l := &stageLog{}
	rec := &fakeRecorder{err: errors.New("database is locked")}
	o := NewOrchestrator(nil, WithRecorder(rec))

	report, err := o.Run(context.Background(), fullPlan(l, "", nil))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.State != StateDone {
		t.Errorf("State = %s, want done", report.State)
	}
}

func TestOrchestrator_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := &stageLog{}
	report, err := NewOrchestrator(nil).Run(ctx, fullPlan(l, "", nil))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.State != StateAborted || report.FailedStage != "sanitize" {
		t.Errorf("State = %s, FailedStage = %s", report.State, report.FailedStage)
	}
	if len(l.ran) != 0 {
		t.Errorf("ran = %v, want nothing", l.ran)
	}
}

func TestOrchestrator_InterruptFinishesCurrentStage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		ran       []string
		actionErr error
	)
	plan := &Plan{
		Name: "app",
		Stages: []Stage{
			{
				Name:  "install-packages",
				Phase: StateDependencyInstall,
				Action: func(ctx context.Context, _ *Report) error {
					ran = append(ran, "install-packages")
					cancel()
					select {
					case <-ctx.Done():
						actionErr = ctx.Err()
						return actionErr
					case <-time.After(50 * time.Millisecond):
						return nil
					}
				},
				OnFailure: PolicyFatal,
			},
			{
				Name:  "clone-primary",
				Phase: StateSourceAcquisition,
				Action: func(context.Context, *Report) error {
					ran = append(ran, "clone-primary")
					return nil
				},
				OnFailure: PolicyFatal,
			},
		},
	}

	rec := &fakeRecorder{}
	report, err := NewOrchestrator(nil, WithRecorder(rec)).Run(ctx, plan)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if actionErr != nil {
		t.Errorf("running action saw cancellation: %v", actionErr)
	}
	if len(ran) != 1 {
		t.Errorf("ran = %v, want only install-packages", ran)
	}
	if got, ok := report.Result("install-packages"); !ok || got.Status != StagePerformed {
		t.Errorf("install-packages result = %+v, want performed", got)
	}
	if report.State != StateAborted || report.FailedStage != "clone-primary" {
		t.Errorf("State = %s, FailedStage = %s", report.State, report.FailedStage)
	}
	if report.Error == nil || report.Error.Code != ErrCodeCancelled {
		t.Errorf("Error = %v, want code %s", report.Error, ErrCodeCancelled)
	}
	if rec.finished == nil || rec.finishedCtxErr != nil {
		t.Errorf("RunFinished recorded = %v with context error %v", rec.finished != nil, rec.finishedCtxErr)
	}
}
