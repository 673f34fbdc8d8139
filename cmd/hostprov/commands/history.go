package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/hostprov/pkg/engine"
	"github.com/openfroyo/hostprov/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		limit int
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded provisioning runs",
		Long: `List recorded runs, newest first, or show the stages of one run.

Runs are recorded in the state database named by state.path in the
provisioning file.`,
		Example: `  # Recent runs of this file's application
  hostprov history

  # Stages of one run
  hostprov history 1b4e28ba-2fa1-11d2-883f-0016d3cca427

  # Keep only the ten newest runs
  hostprov history prune --keep 10`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, store *stores.SQLiteStore, plan string) error {
				if len(args) == 1 {
					return showRun(ctx, store, args[0])
				}
				filter := stores.RunFilter{Plan: plan, Limit: limit}
				if all {
					filter.Plan = ""
				}
				return listRuns(ctx, store, filter)
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to list")
	cmd.Flags().BoolVar(&all, "all", false, "include runs of every application")

	cmd.AddCommand(newHistoryPruneCommand())

	return cmd
}

func newHistoryPruneCommand() *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if keep < 0 {
				return fmt.Errorf("--keep must not be negative")
			}
			return withStore(cmd.Context(), func(ctx context.Context, store *stores.SQLiteStore, _ string) error {
				n, err := store.PruneRuns(ctx, keep)
				if err != nil {
					return err
				}
				fmt.Println(successMsg("deleted %d run(s)", n))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 20, "number of runs to keep")

	return cmd
}

func withStore(ctx context.Context, fn func(context.Context, *stores.SQLiteStore, string) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(ctx, store, cfg.Name)
}

func listRuns(ctx context.Context, store *stores.SQLiteStore, filter stores.RunFilter) error {
	runs, err := store.ListRuns(ctx, filter)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(runs)
	}
	if len(runs) == 0 {
		fmt.Println(infoMsg("no runs recorded"))
		return nil
	}

	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		outcome := "running"
		if r.Finished() {
			outcome = outcomeText(engine.Outcome(r.Outcome))
		}
		failed := ""
		if r.FailedStage != "" {
			failed = r.FailedStage
		}
		rows = append(rows, []string{
			r.ID,
			r.Plan,
			r.Target,
			r.StartedAt.Local().Format(time.DateTime),
			r.Duration().Round(time.Second).String(),
			outcome,
			failed,
		})
	}
	fmt.Println(renderTable([]string{"RUN", "PLAN", "TARGET", "STARTED", "TOOK", "OUTCOME", "FAILED AT"}, rows))
	return nil
}

func showRun(ctx context.Context, store *stores.SQLiteStore, id string) error {
	run, err := store.GetRun(ctx, id)
	if errors.Is(err, stores.ErrNotFound) {
		return fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(run)
	}

	pairs := []pair{
		{"Run", run.ID},
		{"Plan", run.Plan},
		{"Target", run.Target},
		{"Config", run.ConfigPath},
		{"Started", run.StartedAt.Local().Format(time.DateTime)},
		{"State", run.State},
	}
	if run.Finished() {
		pairs = append(pairs, pair{"Outcome", outcomeText(engine.Outcome(run.Outcome))})
	}
	if run.Error != nil {
		pairs = append(pairs, pair{"Error", errorStyle.Render(*run.Error)})
	}
	fmt.Print(keyValues("", pairs...))
	fmt.Println()

	rows := make([][]string, 0, len(run.Stages))
	for _, st := range run.Stages {
		detail := ""
		switch {
		case st.Error != nil:
			detail = *st.Error
		case len(st.Warnings) > 0:
			detail = st.Warnings[0].Message
		case len(st.Notes) > 0:
			detail = st.Notes[len(st.Notes)-1]
		}
		rows = append(rows, []string{
			fmt.Sprint(st.Seq),
			st.Stage,
			st.Phase,
			stageStatus(st.Status),
			st.Duration.Round(time.Millisecond).String(),
			detail,
		})
	}
	fmt.Println(renderTable([]string{"#", "STAGE", "PHASE", "STATUS", "TIME", "DETAIL"}, rows))
	return nil
}
