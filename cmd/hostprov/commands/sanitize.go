package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/hostprov/pkg/provision"
	"github.com/openfroyo/hostprov/pkg/sanitizer"
)

func newSanitizeCommand() *cobra.Command {
	var (
		dryRun  bool
		restore []string
	)

	cmd := &cobra.Command{
		Use:   "sanitize",
		Short: "Disable known-bad lines in package source configuration",
		Long: `Comment out denylisted lines (for example "cdrom:" package sources) in
the configured roots, keeping a backup of every changed file.

This is the first step of every run; the command runs it on its own.
--restore puts a file's backup back in place.`,
		Example: `  # Show what would change
  hostprov sanitize --dry-run

  # Undo a repair
  hostprov sanitize --restore /etc/apt/sources.list`,
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

			s := provision.New(cfg, h).Sanitizer()

			if len(restore) > 0 {
				for _, file := range restore {
					if err := s.Restore(ctx, file); err != nil {
						return err
					}
					fmt.Println(successMsg("restored %s", file))
				}
				return nil
			}

			var actions []sanitizer.RepairAction
			if dryRun {
				actions, err = s.Scan(ctx, cfg.Sanitize.Roots)
			} else {
				actions, err = s.Sanitize(ctx, cfg.Sanitize.Roots)
			}
			if err != nil {
				return invalidConfig(err)
			}

			if jsonOutput {
				return printJSON(actions)
			}
			if len(actions) == 0 {
				fmt.Println(successMsg("nothing to repair"))
				return nil
			}
			verb := "disabled"
			if dryRun {
				verb = "would disable"
			}
			for _, a := range actions {
				fmt.Println(infoMsg("%s lines %v in %s", verb, a.Lines, a.Path))
				if a.BackupCreated {
					fmt.Println(mutedStyle.Render("  backup " + a.BackupPath))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report without changing files")
	cmd.Flags().StringSliceVar(&restore, "restore", nil, "restore file(s) from their backup")

	return cmd
}
