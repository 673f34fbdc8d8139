// Package telemetry provides logging, tracing and metrics for provisioning runs.
//
// Logging uses zerolog through the Logger wrapper, which adds run and stage
// fields. Tracing uses OpenTelemetry with an otlp, stdout or no-op exporter:
// every run gets a "run.execute" span and every stage a "stage.<name>" child
// span. Metrics use a private Prometheus registry that is either served over
// HTTP (watch mode) or written to a node_exporter textfile after each run:
//
//   - hostprov_stages_executed_total{stage,phase,status}
//   - hostprov_stage_duration_seconds{stage}
//   - hostprov_stage_warnings_total{stage,code}
//   - hostprov_runs_completed_total{outcome}
//   - hostprov_run_duration_seconds
//   - hostprov_last_run_outcome{outcome}
//   - hostprov_last_run_timestamp_seconds
//
// Typical setup:
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
package telemetry
