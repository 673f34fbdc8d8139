package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openfroyo/hostprov/pkg/provision"
)

func newRenderCommand() *cobra.Command {
	var only string

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the generated configuration and service unit",
		Long: `Render the application configuration and the service unit exactly as a
run would write them, without contacting the target host.

The unit is rendered without the runtime PATH that a run learns from the
version manager.`,
		Example: `  # Print both files
  hostprov render -c wiki.yaml

  # Print only the unit
  hostprov render -c wiki.yaml --only unit`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			rc, unit, err := provision.New(cfg, nil).RenderPreview()
			if err != nil {
				return invalidConfig(err)
			}

			switch only {
			case "config":
				_, err = os.Stdout.Write(rc.Content)
			case "unit":
				_, err = os.Stdout.Write(unit)
			case "":
				fmt.Println(mutedStyle.Render(fmt.Sprintf("# %s (sha256 %s)", rc.Path, rc.Checksum[:12])))
				fmt.Print(string(rc.Content))
				fmt.Println()
				fmt.Println(mutedStyle.Render("# " + cfg.Service.Name + ".service"))
				fmt.Print(string(unit))
			default:
				return fmt.Errorf("--only must be config or unit, got %q", only)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&only, "only", "", "print only config or unit")

	return cmd
}
