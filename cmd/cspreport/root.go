package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/cspreport/common/logging"
	"github.com/telhawk-systems/cspreport/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "cspreport",
	Short: "CSP violation report collector",
	Long: `cspreport receives Content-Security-Policy violation reports sent by
browsers to a report-uri endpoint, validates them, and forwards accepted
reports to the configured log and metric destinations.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or /etc/cspreport/config.yaml)")
}

// setup loads configuration and installs the process-wide logger.
func setup() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("cspreport"))
	logging.SetDefault(logger)

	return cfg, logger, nil
}
