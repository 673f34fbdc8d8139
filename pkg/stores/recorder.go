package stores

import (
	"context"

	"github.com/openfroyo/hostprov/pkg/engine"
)

// RunMeta describes where a run came from.
type RunMeta struct {
	ConfigPath string
	Target     string
}

// Recorder writes orchestrator notifications to a store.
type Recorder struct {
	store *SQLiteStore
	meta  RunMeta
}

var _ engine.Recorder = (*Recorder)(nil)

// NewRecorder creates a recorder that tags every run with meta.
func NewRecorder(store *SQLiteStore, meta RunMeta) *Recorder {
	return &Recorder{store: store, meta: meta}
}

// RunStarted implements engine.Recorder.
func (r *Recorder) RunStarted(ctx context.Context, report *engine.RunReport) error {
	return r.store.CreateRun(ctx, &Run{
		ID:         report.RunID,
		Plan:       report.Plan,
		ConfigPath: r.meta.ConfigPath,
		Target:     r.meta.Target,
		State:      string(report.State),
		StartedAt:  report.StartedAt,
	})
}

// StageFinished implements engine.Recorder.
func (r *Recorder) StageFinished(ctx context.Context, runID string, res *engine.StageResult) error {
	return r.store.RecordStage(ctx, StageRecordFrom(runID, res))
}

// RunFinished implements engine.Recorder.
func (r *Recorder) RunFinished(ctx context.Context, report *engine.RunReport) error {
	run := &Run{
		ID:          report.RunID,
		State:       string(report.State),
		Outcome:     string(report.Outcome()),
		FailedPhase: string(report.FailedPhase),
		FailedStage: report.FailedStage,
	}
	if !report.FinishedAt.IsZero() {
		finished := report.FinishedAt
		run.FinishedAt = &finished
	}
	if report.Error != nil {
		msg := report.Error.Error()
		run.Error = &msg
		run.ErrorCode = report.Error.Code
	}
	return r.store.FinishRun(ctx, run)
}

// StageRecordFrom converts an engine stage result into its stored form.
func StageRecordFrom(runID string, res *engine.StageResult) *StageRecord {
	rec := &StageRecord{
		RunID:     runID,
		Stage:     res.Stage,
		Phase:     string(res.Phase),
		Status:    string(res.Status),
		Notes:     res.Notes,
		StartedAt: res.StartedAt,
		Duration:  res.Duration,
	}
	for _, w := range res.Warnings {
		rec.Warnings = append(rec.Warnings, Warning{Code: w.Code, Message: w.Error()})
	}
	if res.Error != nil {
		msg := res.Error.Error()
		rec.Error = &msg
		rec.ErrorCode = res.Error.Code
	}
	return rec
}
