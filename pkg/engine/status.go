package engine

import (
	"encoding/json"
	"fmt"
)

// RunState is a state of the orchestrator state machine.
type RunState string

const (
	// StateInit is the state before any stage has run.
	StateInit RunState = "init"

	// StateSanitizing repairs known-bad system configuration.
	StateSanitizing RunState = "sanitizing"

	// StateDependencyInstall installs system packages and optional tools.
	StateDependencyInstall RunState = "dependency_install"

	// StateRuntimeAcquisition installs the version manager and runtime.
	StateRuntimeAcquisition RunState = "runtime_acquisition"

	// StateSourceAcquisition clones or updates repositories.
	StateSourceAcquisition RunState = "source_acquisition"

	// StateConfigGeneration renders the application configuration.
	StateConfigGeneration RunState = "config_generation"

	// StateServiceActivation writes and starts the service unit.
	StateServiceActivation RunState = "service_activation"

	// StateDone is the terminal success state.
	StateDone RunState = "done"

	// StateAborted is the terminal failure state.
	StateAborted RunState = "aborted"
)

// stateOrder is the fixed forward order of the state machine.
var stateOrder = []RunState{
	StateInit,
	StateSanitizing,
	StateDependencyInstall,
	StateRuntimeAcquisition,
	StateSourceAcquisition,
	StateConfigGeneration,
	StateServiceActivation,
	StateDone,
}

// Phases returns the working states in execution order.
func Phases() []RunState {
	return append([]RunState(nil), stateOrder[1:len(stateOrder)-1]...)
}

// IsTerminal returns true if the state is Done or Aborted.
func (s RunState) IsTerminal() bool {
	return s == StateDone || s == StateAborted
}

// IsPhase returns true if stages may be attached to the state.
func (s RunState) IsPhase() bool {
	return s != StateInit && !s.IsTerminal() && s.rank() >= 0
}

func (s RunState) rank() int {
	for i, st := range stateOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// CanTransition reports whether the machine may move from s to next.
// Transitions only move forward; Aborted is reachable from any non-terminal state.
func (s RunState) CanTransition(next RunState) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StateAborted {
		return true
	}
	from, to := s.rank(), next.rank()
	return from >= 0 && to >= from
}

// Validate checks if the run state is valid.
func (s RunState) Validate() error {
	if s == StateAborted || s.rank() >= 0 {
		return nil
	}
	return fmt.Errorf("invalid run state: %s", s)
}

// StageStatus is the outcome of one stage execution.
type StageStatus string

const (
	// StageSkipped indicates the precondition was already satisfied.
	StageSkipped StageStatus = "skipped"

	// StagePerformed indicates the action ran (possibly with warnings).
	StagePerformed StageStatus = "performed"

	// StageFailed indicates a fatal failure.
	StageFailed StageStatus = "failed"
)

// Validate checks if the stage status is valid.
func (s StageStatus) Validate() error {
	switch s {
	case StageSkipped, StagePerformed, StageFailed:
		return nil
	default:
		return fmt.Errorf("invalid stage status: %s", s)
	}
}

// FailurePolicy is the declared classification for unclassified action errors.
type FailurePolicy string

const (
	// PolicyFatal halts the run.
	PolicyFatal FailurePolicy = "fatal"

	// PolicyWarn logs a warning and continues.
	PolicyWarn FailurePolicy = "warn-and-continue"

	// PolicyIgnore logs at debug level and continues.
	PolicyIgnore FailurePolicy = "ignore"
)

// Validate checks if the failure policy is valid.
func (p FailurePolicy) Validate() error {
	switch p {
	case PolicyFatal, PolicyWarn, PolicyIgnore:
		return nil
	default:
		return fmt.Errorf("invalid failure policy: %s", p)
	}
}

// Class maps a policy to the error class applied to unclassified errors.
func (p FailurePolicy) Class() ErrorClass {
	switch p {
	case PolicyWarn:
		return ErrorClassDegraded
	case PolicyIgnore:
		return ErrorClassIgnorable
	default:
		return ErrorClassFatal
	}
}

// Outcome is the user-visible result of a run.
type Outcome string

const (
	// OutcomeClean means Done with no warnings.
	OutcomeClean Outcome = "completed"

	// OutcomeWarnings means Done with at least one degraded condition.
	OutcomeWarnings Outcome = "completed_with_warnings"

	// OutcomeAborted means a fatal stage failure halted the run.
	OutcomeAborted Outcome = "aborted"
)

// ExitCode returns the process exit code for the outcome.
func (o Outcome) ExitCode() int {
	if o == OutcomeAborted {
		return 1
	}
	return 0
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s RunState) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *RunState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = RunState(str)
	return s.Validate()
}
