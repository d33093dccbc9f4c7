package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/compose-network/rollup-job-handler/configs"
	"github.com/compose-network/rollup-job-handler/internal/daemon"
	"github.com/compose-network/rollup-job-handler/internal/logger"
	"github.com/compose-network/rollup-job-handler/internal/status"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const appName = "rollupd"

var configFile string

var rootCmd = &cobra.Command{
	Use:          appName,
	Short:        "Off-chain handler for rollup lifecycle jobs",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger.Initialize(slog.LevelInfo, logger.FormatJSON)

		var searchPaths []string
		if execPath, err := os.Executable(); err == nil {
			searchPaths = append(searchPaths, filepath.Dir(execPath))
		}
		searchPaths = append(searchPaths, ".", "./configs")

		// A missing config.yaml is fine, embedded defaults and flags cover every setting
		cfg, used, err := configs.Load(viper.GetViper(), configFile, searchPaths...)
		if err != nil {
			const errMsg = "unable to load application config"
			slog.With("err", err.Error()).Error(errMsg)
			return errors.Join(err, errors.New(errMsg))
		}
		configs.Values = cfg

		level, err := logger.ParseLevel(configs.Values.Log.Level)
		if err != nil {
			return err
		}
		logger.Initialize(level, configs.Values.Log.Format)

		slog.With("config_file", used).Debug("configuration loaded")

		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to the config file")

	rootCmd.AddCommand(daemon.CMD)
	rootCmd.AddCommand(status.CMD)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.With("err", err.Error()).Error("failed to execute root command")
		stop()
		os.Exit(1)
	}
}
