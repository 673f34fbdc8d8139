package stores

import (
	"time"
)

// Run is one recorded provisioning run.
type Run struct {
	ID          string     `json:"id"`
	Plan        string     `json:"plan"`
	ConfigPath  string     `json:"config_path"`
	Target      string     `json:"target"`
	State       string     `json:"state"`
	Outcome     string     `json:"outcome"`
	FailedPhase string     `json:"failed_phase,omitempty"`
	FailedStage string     `json:"failed_stage,omitempty"`
	Error       *string    `json:"error,omitempty"`
	ErrorCode   string     `json:"error_code,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`

	// Stages is filled by GetRun in execution order.
	Stages []*StageRecord `json:"stages,omitempty"`
}

// Finished reports whether the run reached a terminal state.
func (r *Run) Finished() bool {
	return r.FinishedAt != nil
}

// Duration returns the wall time of a finished run, zero otherwise.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// StageRecord is the recorded result of one stage.
type StageRecord struct {
	RunID     string        `json:"run_id"`
	Seq       int           `json:"seq"`
	Stage     string        `json:"stage"`
	Phase     string        `json:"phase"`
	Status    string        `json:"status"`
	Warnings  []Warning     `json:"warnings,omitempty"`
	Notes     []string      `json:"notes,omitempty"`
	Error     *string       `json:"error,omitempty"`
	ErrorCode string        `json:"error_code,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Warning is a degraded condition raised by a stage.
type Warning struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	// Plan restricts results to one plan name when set.
	Plan string

	Limit  int
	Offset int
}
