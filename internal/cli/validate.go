package cli

import (
	"fmt"

	"github.com/devrev/pairdb/contextmap/internal/service"
	"github.com/devrev/pairdb/contextmap/internal/util"
	"github.com/devrev/pairdb/contextmap/internal/validation"
	"github.com/spf13/cobra"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate SCRIPT...",
		Short: "Check scripts without replaying them",
		Long: `Parse and validate scripts against the configured limits.

Exit codes:
  0 - All scripts are valid
  2 - A script is unreadable or invalid`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts.ConfigPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			v := validation.NewValidatorWithLimits(cfg.Validation.MaxKeySize, cfg.Validation.MaxValueSize, cfg.Validation.MaxSteps)

			for _, path := range args {
				script, err := service.LoadScript(path)
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to load script", err)
				}
				if err := v.ValidateScript(script); err != nil {
					return WrapExitError(ExitCommandError, fmt.Sprintf("invalid script %s", path), err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok %s %s (%d steps, %s)\n",
					script.Name, path, len(script.Steps), util.FormatChecksum(script.Checksum))
			}
			return nil
		},
	}
}
