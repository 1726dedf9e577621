package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd() *cobra.Command {
	var inputPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Validates one finished run",
		Long: `Reads INPUT from the configured key-value store (or from --input, which is
written to INPUT first), validates the target and writes OUTPUT.
Validation findings do not fail the command; operational errors do.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			outcome, err := appInstance.RunOnce(cmd.Context(), inputPath)
			if err != nil {
				return fmt.Errorf("run validation: %w", err)
			}
			appInstance.Logger().Info("run finished",
				zap.Bool("passed", outcome.Passed()),
				zap.Int("errors", len(outcome.Errors)),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&inputPath, "input", "", "path to a JSON input record stored as INPUT before running")
	return cmd
}
