package engine

import (
	"context"
	"fmt"
	"time"
)

// Precondition reports whether a stage's target state is already satisfied.
// It must be side-effect free; a nil Precondition means the stage always runs.
type Precondition func(ctx context.Context) bool

// Action performs a stage's mutation. Degraded conditions that do not stop
// the action are recorded on the report; a returned error ends the action.
type Action func(ctx context.Context, rep *Report) error

// Stage is one named unit of provisioning work.
type Stage struct {
	// Name identifies the stage in logs, results and history.
	Name string `json:"name"`

	// Phase is the orchestrator state the stage belongs to.
	Phase RunState `json:"phase"`

	// Description is a short human-readable summary.
	Description string `json:"description,omitempty"`

	// Precondition gates the action. Nil means ungated.
	Precondition Precondition `json:"-"`

	// Action performs the work.
	Action Action `json:"-"`

	// OnFailure classifies action errors that carry no EngineError class.
	OnFailure FailurePolicy `json:"on_failure"`
}

// Gated reports whether the stage has a precondition.
func (s *Stage) Gated() bool {
	return s.Precondition != nil
}

// Plan is the ordered sequence of stages for one run.
type Plan struct {
	// Name is the plan name, usually the application name.
	Name string `json:"name"`

	// Stages are executed in declared order.
	Stages []Stage `json:"stages"`
}

// Validate checks that the plan is well formed: named stages with actions,
// valid policies, unique names and phases in non-decreasing order.
func (p *Plan) Validate() error {
	if len(p.Stages) == 0 {
		return fmt.Errorf("plan %q has no stages", p.Name)
	}
	seen := make(map[string]bool, len(p.Stages))
	last := StateInit
	for i := range p.Stages {
		s := &p.Stages[i]
		if s.Name == "" {
			return fmt.Errorf("stage %d has no name", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate stage name: %s", s.Name)
		}
		seen[s.Name] = true
		if !s.Phase.IsPhase() {
			return fmt.Errorf("stage %s has invalid phase: %s", s.Name, s.Phase)
		}
		if s.Phase.rank() < last.rank() {
			return fmt.Errorf("stage %s (%s) is ordered after a %s stage", s.Name, s.Phase, last)
		}
		last = s.Phase
		if s.Action == nil {
			return fmt.Errorf("stage %s has no action", s.Name)
		}
		if err := s.OnFailure.Validate(); err != nil {
			return fmt.Errorf("stage %s: %w", s.Name, err)
		}
	}
	return nil
}

// Report collects conditions raised while an action runs.
type Report struct {
	warnings []*EngineError
	notes    []string
}

// Warn records a degraded condition. Fatal errors must be returned instead.
func (r *Report) Warn(err *EngineError) {
	if err == nil {
		return
	}
	r.warnings = append(r.warnings, err)
}

// Note records an informational message (e.g. the current runtime version).
func (r *Report) Note(format string, args ...interface{}) {
	r.notes = append(r.notes, fmt.Sprintf(format, args...))
}

// Warnings returns the degraded conditions recorded so far.
func (r *Report) Warnings() []*EngineError {
	return r.warnings
}

// Notes returns the informational messages recorded so far.
func (r *Report) Notes() []string {
	return r.notes
}

// StageResult is the outcome of executing one stage.
type StageResult struct {
	Stage     string         `json:"stage"`
	Phase     RunState       `json:"phase"`
	Status    StageStatus    `json:"status"`
	Warnings  []*EngineError `json:"warnings,omitempty"`
	Notes     []string       `json:"notes,omitempty"`
	Error     *EngineError   `json:"error,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
}

// RunReport summarizes a full orchestrator run.
type RunReport struct {
	RunID       string        `json:"run_id"`
	Plan        string        `json:"plan"`
	State       RunState      `json:"state"`
	FailedPhase RunState      `json:"failed_phase,omitempty"`
	FailedStage string        `json:"failed_stage,omitempty"`
	Error       *EngineError  `json:"error,omitempty"`
	Results     []StageResult `json:"results"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
}

// Warnings returns every degraded condition across all stages.
func (r *RunReport) Warnings() []*EngineError {
	var out []*EngineError
	for i := range r.Results {
		out = append(out, r.Results[i].Warnings...)
	}
	return out
}

// Outcome classifies the run for the final message and exit code.
func (r *RunReport) Outcome() Outcome {
	switch {
	case r.State != StateDone:
		return OutcomeAborted
	case len(r.Warnings()) > 0:
		return OutcomeWarnings
	default:
		return OutcomeClean
	}
}

// Count returns the number of results with the given status.
func (r *RunReport) Count(status StageStatus) int {
	n := 0
	for i := range r.Results {
		if r.Results[i].Status == status {
			n++
		}
	}
	return n
}

// Result returns the result for the named stage.
func (r *RunReport) Result(stage string) (StageResult, bool) {
	for i := range r.Results {
		if r.Results[i].Stage == stage {
			return r.Results[i], true
		}
	}
	return StageResult{}, false
}

// Duration returns the wall-clock duration of the run.
func (r *RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
