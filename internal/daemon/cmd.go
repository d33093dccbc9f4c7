package daemon

import (
	"fmt"
	"log/slog"

	"github.com/compose-network/rollup-job-handler/configs"
	"github.com/spf13/cobra"
)

var CMD = &cobra.Command{
	Use:   "run",
	Short: "Process rollup lifecycle jobs until the job source is exhausted or the process is interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		slog.Info("validating config", slog.Any("source", configs.Values.Source))

		if err := configs.Values.Validate(); err != nil {
			return err
		}

		slog.Info("config validation successful. Starting job handler...")

		if err := start(cmd.Context(), configs.Values); err != nil {
			return fmt.Errorf("error occurred running job handler: %w", err)
		}

		slog.Info("job handler stopped")

		return nil
	},
}
