package main

import (
	"fmt"
	"os"

	"github.com/KBrobotics/InfoPointKiosk-v1/internal/config"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	configPath string
	logLevel   string
	port       int
	gatewayURL string
	mockMode   bool
)

var rootCmd = &cobra.Command{
	Use:   "kiosk",
	Short: "Employee information point kiosk",
	Long: `kiosk runs the information point: it follows the field gateway for card
scans and button presses, signs employees in against the directory, and
serves the display feed and admin API.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup(cmd.Flags())
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg, log, cmd.Flags().Changed("gateway"))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")

	rootCmd.Flags().IntVar(&port, "port", 0, "Override server port")
	rootCmd.Flags().StringVar(&gatewayURL, "gateway", "", "Override gateway WebSocket URL")
	rootCmd.Flags().BoolVar(&mockMode, "mock", false, "Replay scripted visits instead of waiting for hardware")

	rootCmd.AddCommand(importCmd, worklogsCmd)
}

// setup loads the config, applies flag overrides and builds the logger.
func setup(flags *pflag.FlagSet) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("loading config: %w", err)
	}

	if flags.Changed("port") {
		cfg.Server.Port = port
	}
	if flags.Changed("gateway") {
		cfg.Gateway.URL = gatewayURL
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), err
	}

	log, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	})
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, log, nil
}
