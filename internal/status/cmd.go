package status

import (
	"errors"
	"fmt"

	"github.com/compose-network/rollup-job-handler/configs"
	"github.com/compose-network/rollup-job-handler/internal/infra/docker"
	fsjson "github.com/compose-network/rollup-job-handler/internal/infra/filesystem/json"
	"github.com/compose-network/rollup-job-handler/internal/registry"
	"github.com/compose-network/rollup-job-handler/internal/rollup"
	"github.com/spf13/cobra"
)

var CMD = &cobra.Command{
	Use:   "status [rollup-id]",
	Short: "Print the registered rollups and, optionally, their container state or logs",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stateFile := configs.Values.Registry.StateFile
		if cmd.Flags().Changed("state-file") {
			stateFile, _ = cmd.Flags().GetString("state-file")
		}
		if stateFile == "" {
			return errors.New("registry.state-file is required")
		}

		var only rollup.ID
		if len(args) == 1 {
			only = rollup.ID(args[0])
		}

		withLogs, _ := cmd.Flags().GetBool("logs")
		if withLogs && only == "" {
			return errors.New("--logs requires a rollup id")
		}

		store := registry.NewFileStore(stateFile, fsjson.NewReader(), fsjson.NewWriter())

		var lister containerLister
		if withContainers, _ := cmd.Flags().GetBool("containers"); withContainers || withLogs {
			cli, err := docker.New(docker.Options{NetworkName: configs.Values.Runtime.NetworkName})
			if err != nil {
				return errors.Join(err, errors.New("failed to instantiate Docker client"))
			}
			defer cli.Close()

			if withLogs {
				tail, _ := cmd.Flags().GetString("tail")
				return WriteLogs(cmd.Context(), store, cli, only, tail, cmd.OutOrStdout(), cmd.ErrOrStderr())
			}
			lister = cli
		}

		report, err := Build(cmd.Context(), store, lister, only)
		if err != nil {
			return fmt.Errorf("error occurred building status report: %w", err)
		}

		return Write(cmd.OutOrStdout(), report)
	},
}

func init() {
	CMD.Flags().String("state-file", "", "Rollup registry snapshot file (defaults to registry.state-file)")
	CMD.Flags().Bool("containers", false, "Query the container runtime for the state of each rollup")
	CMD.Flags().Bool("logs", false, "Print the container logs of the given rollup instead of the report")
	CMD.Flags().String("tail", "100", "Number of log lines to print, 'all' for everything")
}
