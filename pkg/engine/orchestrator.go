package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/openfroyo/hostprov/pkg/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// Recorder receives run lifecycle notifications, e.g. to persist history.
// Recorder errors are logged and never change the run outcome.
type Recorder interface {
	RunStarted(ctx context.Context, report *RunReport) error
	StageFinished(ctx context.Context, runID string, result *StageResult) error
	RunFinished(ctx context.Context, report *RunReport) error
}

// Orchestrator drives a plan through the fixed state machine
// Init -> Sanitizing -> ... -> ServiceActivation -> Done, stopping in Aborted
// on the first fatal stage result. There is no rollback.
type Orchestrator struct {
	executor *Executor
	tel      *telemetry.Telemetry
	recorder Recorder
	newID    func() string
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder attaches a run history recorder.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithIDGenerator overrides run ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) {
		o.newID = fn
	}
}

// NewOrchestrator creates an orchestrator using the given telemetry.
func NewOrchestrator(tel *telemetry.Telemetry, opts ...Option) *Orchestrator {
	if tel == nil {
		tel = telemetry.Nop()
	}
	o := &Orchestrator{
		executor: NewExecutor(tel),
		tel:      tel,
		newID:    func() string { return uuid.New().String() },
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes every stage of the plan in order and returns the run report.
// The returned error is non-nil only when the plan itself is invalid; stage
// failures are reported through the report's state.
func (o *Orchestrator) Run(ctx context.Context, plan *Plan) (*RunReport, error) {
	report := &RunReport{
		RunID:     o.newID(),
		Plan:      plan.Name,
		State:     StateInit,
		StartedAt: o.now(),
	}

	logger := o.tel.Logger.NewComponentLogger("orchestrator").WithRunID(report.RunID)
	ctx = logger.WithContext(ctx)
	ctx, span := o.tel.Tracer.StartRunSpan(ctx, report.RunID, plan.Name)
	defer span.End()
	recCtx := context.WithoutCancel(ctx)

	o.notify(logger, func() error { return o.recorderStarted(recCtx, report) })

	if err := plan.Validate(); err != nil {
		report.Error = NewFatalError("invalid provisioning plan", err).WithCode(ErrCodeConfigInvalid)
		report.FailedPhase = StateInit
		o.transition(logger, report, StateAborted)
		return o.finish(ctx, logger, span, report), err
	}

	logger.WithField("stages", len(plan.Stages)).Infof("starting provisioning run for %s", plan.Name)

	for i := range plan.Stages {
		stage := &plan.Stages[i]
		if report.State != stage.Phase {
			o.transition(logger, report, stage.Phase)
		}

		result := o.executor.Run(ctx, stage)
		report.Results = append(report.Results, result)
		o.notify(logger, func() error { return o.recorderStage(recCtx, report.RunID, &result) })

		if result.Status == StageFailed {
			report.FailedPhase = stage.Phase
			report.FailedStage = stage.Name
			report.Error = result.Error
			o.transition(logger, report, StateAborted)
			return o.finish(ctx, logger, span, report), nil
		}
	}

	o.transition(logger, report, StateDone)
	return o.finish(ctx, logger, span, report), nil
}

// transition moves the state machine forward. Backward moves indicate a
// programming error in plan validation and abort the run.
func (o *Orchestrator) transition(logger *telemetry.Logger, report *RunReport, next RunState) {
	if !report.State.CanTransition(next) {
		logger.Errorf("illegal state transition %s -> %s", report.State, next)
		report.Error = NewFatalError(fmt.Sprintf("illegal state transition %s -> %s", report.State, next), nil).
			WithCode(ErrCodeInternal)
		next = StateAborted
	}
	logger.WithFields(map[string]interface{}{
		"from": string(report.State),
		"to":   string(next),
	}).Debug("state transition")
	report.State = next
}

func (o *Orchestrator) finish(ctx context.Context, logger *telemetry.Logger, span trace.Span, report *RunReport) *RunReport {
	report.FinishedAt = o.now()
	outcome := report.Outcome()

	o.tel.Metrics.RecordRun(string(outcome), []string{
		string(OutcomeClean), string(OutcomeWarnings), string(OutcomeAborted),
	}, report.Duration(), report.FinishedAt)
	span.SetAttributes(telemetry.AttrRunOutcome.String(string(outcome)))
	if report.Error != nil {
		telemetry.RecordError(span, report.Error)
	}

	recCtx := context.WithoutCancel(ctx)
	o.notify(logger, func() error { return o.recorderFinished(recCtx, report) })

	l := logger.WithFields(map[string]interface{}{
		"outcome":   string(outcome),
		"performed": report.Count(StagePerformed),
		"skipped":   report.Count(StageSkipped),
		"warnings":  len(report.Warnings()),
		"duration":  report.Duration().String(),
	})
	if outcome == OutcomeAborted {
		l.WithError(report.Error).Errorf("provisioning aborted in %s", report.FailedPhase)
	} else {
		l.Info("provisioning finished")
	}
	return report
}

// notify calls the recorder. Callers pass a context detached from
// cancellation so an interrupted run is still recorded as finished.
func (o *Orchestrator) notify(logger *telemetry.Logger, fn func() error) {
	if o.recorder == nil {
		return
	}
	if err := fn(); err != nil {
		logger.WithError(err).Warn("failed to record run history")
	}
}

func (o *Orchestrator) recorderStarted(ctx context.Context, r *RunReport) error {
	return o.recorder.RunStarted(ctx, r)
}

func (o *Orchestrator) recorderStage(ctx context.Context, runID string, res *StageResult) error {
	return o.recorder.StageFinished(ctx, runID, res)
}

func (o *Orchestrator) recorderFinished(ctx context.Context, r *RunReport) error {
	return o.recorder.RunFinished(ctx, r)
}
