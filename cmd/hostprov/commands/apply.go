package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/hostprov/pkg/config"
	"github.com/openfroyo/hostprov/pkg/engine"
	"github.com/openfroyo/hostprov/pkg/policy"
	"github.com/openfroyo/hostprov/pkg/provision"
	"github.com/openfroyo/hostprov/pkg/stores"
	"github.com/openfroyo/hostprov/pkg/telemetry"
)

type applyOptions struct {
	version     string
	watch       bool
	metricsFile string
	trace       string
}

func newApplyCommand(version string) *cobra.Command {
	opts := applyOptions{version: version}

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Provision the target host",
		Long: `Provision the target host from the provisioning file.

This command:
  - Validates the file and evaluates policies against it
  - Disables known-bad package source lines
  - Installs system packages, optional tools and the runtime
  - Clones or updates the application and plugin repositories
  - Renders the application configuration
  - Installs, enables and starts the service unit
  - Records the run in the history database

Steps whose outcome is already present on the host are skipped. A failure
in a required step stops the run; nothing is rolled back.`,
		Example: `  # Provision this machine
  hostprov apply -c wiki.yaml

  # Provision a remote host
  hostprov apply -c wiki.yaml --host deploy@10.0.0.5

  # Re-provision whenever the file changes
  hostprov apply -c wiki.yaml --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !opts.watch {
				return runApply(cmd.Context(), opts, nil)
			}
			return watchApply(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "re-run whenever the provisioning file or template changes")
	cmd.Flags().StringVar(&opts.metricsFile, "metrics-file", "", "write run metrics in node_exporter textfile format")
	cmd.Flags().StringVar(&opts.trace, "trace", "", "export spans (stdout or otlp)")

	return cmd
}

// runApply performs one provisioning run and maps its outcome to an exit
// status. A nil tel builds telemetry from the file for this run only.
func runApply(ctx context.Context, opts applyOptions, tel *telemetry.Telemetry) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	opts.override(cfg)

	findings, err := provision.Check(ctx, cfg, log.Logger)
	if err != nil {
		return invalidConfig(fmt.Errorf("policy evaluation: %w", err))
	}
	if cfg.Policy.Strict && findings.Blocking() {
		printFindings(findings)
		return &exitError{code: ExitInvalidConfig, err: fmt.Errorf("policy violations"), reported: true}
	}

	if tel == nil {
		tel, err = newTelemetry(cfg, opts.version)
		if err != nil {
			return err
		}
		defer func() {
			if err := tel.Shutdown(context.Background()); err != nil {
				log.Warn().Err(err).Msg("Failed to flush telemetry")
			}
		}()
	} else {
		defer func() {
			if err := tel.Flush(); err != nil {
				log.Warn().Err(err).Msg("Failed to write metrics")
			}
		}()
	}

	h, release, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer release()

	provOpts := []provision.Option{provision.WithTelemetry(tel)}
	if cfg.State.IsEnabled() {
		store, err := openStore(ctx, cfg)
		if err != nil {
			// History is informational; provisioning proceeds without it.
			log.Warn().Err(err).Str("path", cfg.State.Path).Msg("Run history unavailable")
		} else {
			defer store.Close()
			rec := stores.NewRecorder(store, stores.RunMeta{ConfigPath: configPath, Target: h.Name()})
			provOpts = append(provOpts, provision.WithOrchestratorOptions(engine.WithRecorder(rec)))
		}
	}

	out, err := provision.New(cfg, h, provOpts...).Apply(ctx)
	if err != nil {
		return err
	}

	summary := provision.Summarize(cfg, out.Report, findings)
	if jsonOutput {
		if err := printJSON(jsonSummary(out.Report, summary)); err != nil {
			return err
		}
	} else {
		fmt.Print(renderSummary(cfg, out.Report, summary))
	}

	if code := summary.ExitCode(); code != ExitOK {
		var cause error = errors.New("provisioning aborted")
		if out.Report.Error != nil {
			cause = out.Report.Error
		}
		return &exitError{code: code, err: cause, reported: true}
	}
	return nil
}

func (o applyOptions) override(cfg *config.Config) {
	if o.metricsFile != "" {
		cfg.Telemetry.Metrics.Enabled = true
		cfg.Telemetry.Metrics.TextfilePath = o.metricsFile
	}
	if o.trace != "" {
		cfg.Telemetry.Tracing.Enabled = true
		cfg.Telemetry.Tracing.Exporter = o.trace
	}
}

// watchApply runs once and again after every change to the provisioning
// file or its template. Failed runs are reported and watching continues.
// Telemetry is built once from the initial file so metrics accumulate
// across runs and can be scraped.
func watchApply(ctx context.Context, opts applyOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	opts.override(cfg)
	paths := []string{configPath}
	if cfg.App.Template != "" {
		paths = append(paths, cfg.App.Template)
	}

	tel, err := newTelemetry(cfg, opts.version)
	if err != nil {
		return err
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Failed to flush telemetry")
		}
	}()
	go func() {
		if err := tel.Metrics.Serve(ctx); err != nil {
			log.Error().Err(err).Msg("Metrics endpoint stopped")
		}
	}()

	w := provision.NewWatcher(paths, provision.DefaultDebounce, log.Logger)
	return w.Run(ctx, func(ctx context.Context) error {
		err := runApply(ctx, opts, tel)
		if ExitCode(err) == ExitOK || Reported(err) {
			return nil
		}
		return err
	})
}

func renderSummary(cfg *config.Config, report *engine.RunReport, s provision.Summary) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(titleStyle.Render(fmt.Sprintf("hostprov: %s", cfg.Name)))
	b.WriteString("\n\n")

	rows := make([][]string, 0, len(report.Results))
	for _, r := range report.Results {
		detail := ""
		switch {
		case r.Error != nil:
			detail = r.Error.Error()
		case len(r.Warnings) > 0:
			detail = fmt.Sprintf("%d warning(s)", len(r.Warnings))
		case len(r.Notes) > 0:
			detail = r.Notes[len(r.Notes)-1]
		}
		rows = append(rows, []string{r.Stage, string(r.Phase), stageStatus(string(r.Status)), r.Duration.Round(time.Millisecond).String(), detail})
	}
	b.WriteString(renderTable([]string{"STAGE", "PHASE", "STATUS", "TIME", "DETAIL"}, rows))
	b.WriteString("\n\n")

	pairs := []pair{
		{"Run", report.RunID},
		{"Outcome", outcomeText(s.Outcome)},
		{"Duration", report.Duration().Round(time.Millisecond).String()},
	}
	if s.Outcome == engine.OutcomeAborted {
		pairs = append(pairs, pair{"Failed", fmt.Sprintf("%s / %s", s.FailedPhase, s.FailedStage)})
	}
	if s.URL != "" {
		pairs = append(pairs, pair{"URL", accentStyle.Render(s.URL)})
	}
	b.WriteString(keyValues("", pairs...))

	for _, w := range s.Warnings {
		b.WriteString(warnMsg("%s", w.Error()) + "\n")
	}
	if s.Error != nil {
		b.WriteString(errorMsg("%s", s.Error.Error()) + "\n")
	}
	for _, c := range s.CredentialWarnings {
		b.WriteString(warnMsg("%s", c) + "\n")
	}
	return b.String()
}

type summaryJSON struct {
	RunID              string                `json:"run_id"`
	Outcome            engine.Outcome        `json:"outcome"`
	State              engine.RunState       `json:"state"`
	FailedPhase        engine.RunState       `json:"failed_phase,omitempty"`
	FailedStage        string                `json:"failed_stage,omitempty"`
	Error              *engine.EngineError   `json:"error,omitempty"`
	URL                string                `json:"url,omitempty"`
	CredentialWarnings []string              `json:"credential_warnings,omitempty"`
	Warnings           []*engine.EngineError `json:"warnings,omitempty"`
	Stages             []engine.StageResult  `json:"stages"`
}

func jsonSummary(report *engine.RunReport, s provision.Summary) summaryJSON {
	return summaryJSON{
		RunID:              report.RunID,
		Outcome:            s.Outcome,
		State:              report.State,
		FailedPhase:        s.FailedPhase,
		FailedStage:        s.FailedStage,
		Error:              report.Error,
		URL:                s.URL,
		CredentialWarnings: s.CredentialWarnings,
		Warnings:           s.Warnings,
		Stages:             report.Results,
	}
}

func printFindings(res *policy.Result) {
	for _, f := range res.Findings {
		fmt.Fprintln(os.Stderr, findingLine(f))
	}
	for _, e := range res.Errors {
		fmt.Fprintln(os.Stderr, errorMsg("%s", e))
	}
}
