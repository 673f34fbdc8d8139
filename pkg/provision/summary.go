package provision

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openfroyo/hostprov/pkg/config"
	"github.com/openfroyo/hostprov/pkg/engine"
	"github.com/openfroyo/hostprov/pkg/policy"
)

// Check evaluates cfg against the built-in policies and any configured
// policy files, skipping disabled ones.
func Check(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*policy.Result, error) {
	eng, err := policy.NewEngine(logger)
	if err != nil {
		return nil, err
	}
	if len(cfg.Policy.Paths) > 0 {
		if err := eng.LoadPolicies(ctx, cfg.Policy.Paths); err != nil {
			return nil, err
		}
	}
	for _, name := range cfg.Policy.Disabled {
		if err := eng.DisablePolicy(name); err != nil {
			return nil, fmt.Errorf("policy.disabled: %w", err)
		}
	}
	return eng.Evaluate(ctx, cfg)
}

// Summary is the operational output of a finished run.
type Summary struct {
	Outcome     engine.Outcome
	FailedPhase engine.RunState
	FailedStage string
	Error       error

	// URL is set only when the run reached Done.
	URL string

	// CredentialWarnings lists accounts still using default passwords.
	CredentialWarnings []string

	// Warnings are the degraded conditions raised during the run.
	Warnings []*engine.EngineError
}

// Summarize builds the final status of a run. findings may be nil.
func Summarize(cfg *config.Config, report *engine.RunReport, findings *policy.Result) Summary {
	s := Summary{
		Outcome:     report.Outcome(),
		FailedPhase: report.FailedPhase,
		FailedStage: report.FailedStage,
		Warnings:    report.Warnings(),
	}
	if report.Error != nil {
		s.Error = report.Error
	}
	if report.State != engine.StateDone {
		return s
	}

	s.URL = ConnectionURL(cfg)
	if findings != nil {
		for _, f := range findings.ByPolicy(policy.PolicyDefaultCredentials) {
			s.CredentialWarnings = append(s.CredentialWarnings, f.Message)
		}
	}
	return s
}

// ExitCode maps a summary to the process exit status.
func (s Summary) ExitCode() int {
	if s.Outcome == engine.OutcomeAborted {
		return 1
	}
	return 0
}
