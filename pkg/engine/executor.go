package engine

import (
	"context"
	"errors"
	"time"

	"github.com/openfroyo/hostprov/pkg/telemetry"
)

// Executor runs single stages: it consults the stage's precondition, invokes
// the action when needed and classifies the outcome.
type Executor struct {
	tel *telemetry.Telemetry
	now func() time.Time
}

// NewExecutor creates a stage executor. A nil telemetry falls back to no-op
// logging, tracing and metrics.
func NewExecutor(tel *telemetry.Telemetry) *Executor {
	if tel == nil {
		tel = telemetry.Nop()
	}
	return &Executor{tel: tel, now: time.Now}
}

// Run executes one stage and returns its result. It never panics on action
// errors; a fatal classification is reported as StageFailed.
//
// Cancellation is only honored before a stage starts. Once started, the
// precondition and action run on a context that is never cancelled, so a
// package install or clone is not killed halfway.
func (e *Executor) Run(ctx context.Context, stage *Stage) StageResult {
	start := e.now()
	res := StageResult{
		Stage:     stage.Name,
		Phase:     stage.Phase,
		StartedAt: start,
	}

	logger := e.tel.Logger.NewComponentLogger("executor").WithStage(stage.Name, string(stage.Phase))
	ctx, span := e.tel.Tracer.StartStageSpan(ctx, stage.Name, string(stage.Phase))
	defer span.End()

	defer func() {
		res.Duration = e.now().Sub(start)
		e.tel.Metrics.RecordStage(stage.Name, string(stage.Phase), string(res.Status), res.Duration)
		span.SetAttributes(telemetry.AttrStageStatus.String(string(res.Status)))
		if res.Error != nil {
			span.SetAttributes(
				telemetry.AttrErrorClass.String(string(res.Error.Class)),
				telemetry.AttrErrorCode.String(res.Error.Code),
			)
			telemetry.RecordError(span, res.Error)
		} else {
			telemetry.RecordSuccess(span)
		}
	}()

	if err := ctx.Err(); err != nil {
		res.Status = StageFailed
		res.Error = NewFatalError("run interrupted before stage started", err).
			WithStage(stage.Name).
			WithCode(ErrCodeCancelled)
		logger.WithError(err).Error("stage not started")
		return res
	}

	stageCtx := logger.WithContext(context.WithoutCancel(ctx))
	if stage.Precondition != nil && stage.Precondition(stageCtx) {
		res.Status = StageSkipped
		logger.Info("already satisfied, skipping")
		return res
	}

	logger.Info("running stage")
	rep := &Report{}
	err := stage.Action(stageCtx, rep)
	res.Notes = rep.Notes()
	res.Warnings = rep.Warnings()

	res.Status = StagePerformed
	if err != nil {
		classified := classify(stage, err)
		switch {
		case IsFatal(classified):
			res.Status = StageFailed
			res.Error = classified
		case IsDegraded(classified):
			res.Warnings = append(res.Warnings, classified)
		case IsIgnorable(classified):
			logger.WithError(classified).Debug("ignoring stage error")
		}
	}

	for _, w := range res.Warnings {
		if w.Stage == "" {
			w.Stage = stage.Name
		}
		e.tel.Metrics.RecordWarning(stage.Name, w.Code)
		logger.WithError(w).Warn("stage completed with a degraded condition")
	}
	for _, n := range res.Notes {
		logger.Info(n)
	}

	if res.Status == StageFailed {
		logger.WithError(res.Error).Error("stage failed")
		return res
	}
	logger.WithField("warnings", len(res.Warnings)).Info("stage performed")
	return res
}

// classify keeps the class assigned at the primitive boundary and falls back
// to the stage's declared policy for plain errors.
func classify(stage *Stage, err error) *EngineError {
	var ee *EngineError
	if errors.As(err, &ee) {
		if ee.Stage == "" {
			ee.Stage = stage.Name
		}
		return ee
	}
	return &EngineError{
		Class:   stage.OnFailure.Class(),
		Message: "stage action failed",
		Stage:   stage.Name,
		Err:     err,
	}
}
