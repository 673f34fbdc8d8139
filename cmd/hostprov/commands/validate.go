package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/hostprov/pkg/provision"
)

func newValidateCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the provisioning file",
		Long: `Validate the provisioning file against its schema and evaluate the
built-in and configured policies.

This command checks:
  - YAML/CUE syntax and schema conformance
  - Field constraints and cross-field rules
  - Policy findings (default credentials, open listeners, ...)

Invalid files exit with status 2. With --strict, error-severity policy
findings do too.`,
		Example: `  # Validate the default file
  hostprov validate

  # Fail on policy errors
  hostprov validate -c wiki.cue --strict`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			res, err := provision.Check(cmd.Context(), cfg, log.Logger)
			if err != nil {
				return invalidConfig(fmt.Errorf("policy evaluation: %w", err))
			}

			if jsonOutput {
				if err := printJSON(res); err != nil {
					return err
				}
			} else {
				fmt.Println(successMsg("%s is valid (%d policies evaluated)", configPath, len(res.EvaluatedPolicies)))
				printFindings(res)
			}

			if (strict || cfg.Policy.Strict) && res.Blocking() {
				return &exitError{code: ExitInvalidConfig, err: fmt.Errorf("policy violations"), reported: true}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "treat error-severity policy findings as invalid")

	return cmd
}
