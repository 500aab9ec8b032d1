package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/cspreport/internal/lambdaurl"
)

var lambdaCmd = &cobra.Command{
	Use:   "lambda",
	Short: "Run the report endpoint in the AWS Lambda runtime behind a Function URL",
	RunE:  runLambda,
}

func init() {
	rootCmd.AddCommand(lambdaCmd)
}

func runLambda(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}

	// Start never returns; sink connections are drained on SIGTERM.
	slog.Info("Starting cspreport Lambda handler")
	lambdaurl.NewAdapter(a.service, a.builder, logger).Start(a.Close)
	return nil
}
