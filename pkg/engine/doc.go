// Package engine provides the staged provisioning engine used by hostprov.
//
// # Overview
//
// A provisioning run is a fixed, literal list of stages. Each stage belongs to
// one phase of the orchestrator state machine:
//
//	Init -> Sanitizing -> DependencyInstall -> RuntimeAcquisition ->
//	SourceAcquisition -> ConfigGeneration -> ServiceActivation -> Done
//
// Aborted is reachable from every non-terminal state. There is no rollback:
// re-running the plan from Init is the recovery mechanism, and every stage
// re-derives its idempotence from live host state.
//
// # Stages
//
// A Stage carries a Precondition (a side-effect-free probe) and an Action.
// The Executor skips the action when the precondition reports the target
// state is already satisfied:
//
//	stage := engine.Stage{
//	    Name:         "install-runtime",
//	    Phase:        engine.StateRuntimeAcquisition,
//	    Precondition: func(ctx context.Context) bool { return probe.CommandExists(ctx, "node") },
//	    Action:       ensureRuntime,
//	    OnFailure:    engine.PolicyFatal,
//	}
//
// Stages without a precondition always run; configuration and service stages
// are ungated because their artifacts are regenerated in full every run.
//
// # Failure Classification
//
// Errors are classified where they happen, as an *EngineError with class
// fatal, degraded or ignorable. The Executor never reclassifies them. Plain
// errors fall back to the stage's FailurePolicy. A fatal result aborts the
// run; degraded conditions are collected so the run can finish as
// "completed with warnings".
//
// # Observability
//
// Each run gets a UUID, an OpenTelemetry span, Prometheus counters and
// structured zerolog output. A Recorder can persist run history; recording
// failures never change the outcome.
package engine
