package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/hostprov/pkg/provision"
)

func newPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show which steps a run would perform",
		Long: `Probe the target host and show, for every step, whether a run would
perform it or skip it because its outcome is already present.

Nothing on the host is changed. Steps that depend on the environment an
earlier step produces are probed without it, so the runtime step may show
as pending on a host where a run would find it.`,
		Example: `  # Preview a run on this machine
  hostprov plan -c wiki.yaml

  # Preview a remote host as JSON
  hostprov plan -c wiki.yaml --host deploy@10.0.0.5 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			h, release, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer release()

			previews := provision.New(cfg, h).Preview(ctx)
			if jsonOutput {
				return printJSON(previews)
			}

			rows := make([][]string, 0, len(previews))
			pending := 0
			for _, p := range previews {
				verdict := successStyle.Render("run")
				switch {
				case p.Satisfied:
					verdict = mutedStyle.Render("skip")
				case !p.Gated:
					verdict = accentStyle.Render("always")
				default:
					pending++
				}
				rows = append(rows, []string{p.Name, p.Phase, verdict, p.Description})
			}
			fmt.Println(renderTable([]string{"STAGE", "PHASE", "ACTION", "DESCRIPTION"}, rows))
			fmt.Println(infoMsg("%d gated step(s) pending on %s", pending, h.Name()))
			return nil
		},
	}
	return cmd
}
