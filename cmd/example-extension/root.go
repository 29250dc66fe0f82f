package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/extension-bridge/backend/internal/observability"
	"github.com/extension-bridge/backend/pkg/bridge"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var envFileFlag string
	var portFlag int
	var logLevelFlag string

	rootCmd := &cobra.Command{
		Use:           "example-extension",
		Short:         "Example extension served to the host editor over the bridge",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(envFileFlag); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}

			cfg, err := bridge.LoadConfig(configFlag)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = portFlag
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevelFlag
			}

			if _, err := observability.InitLogger("example-extension", observability.LogConfig{
				Level:  cfg.LogLevel,
				Format: cfg.LogFormat,
				Output: os.Stderr,
			}); err != nil {
				return err
			}

			ext := bridge.New()
			if err := registerCommands(ext); err != nil {
				return err
			}

			if err := ext.Run(cmd.Context(), cfg); err != nil {
				log.Error().Err(err).Msg("bridge stopped")
				return err
			}
			return nil
		},
	}

	rootCmd.Flags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (TOML)")
	rootCmd.Flags().StringVar(&envFileFlag, "env-file", ".env", "Environment file loaded before configuration")
	rootCmd.Flags().IntVarP(&portFlag, "port", "p", 0, "Port to listen on (0 picks a free port)")
	rootCmd.Flags().StringVar(&logLevelFlag, "log-level", "", "Log level (trace, debug, info, warn, error)")

	return rootCmd
}
