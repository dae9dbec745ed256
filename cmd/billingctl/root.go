package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kevin07696/billing-service/internal/app"
	"github.com/kevin07696/billing-service/internal/config"
	"github.com/kevin07696/billing-service/pkg/logging"
)

type rootOptions struct {
	verbose bool
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "billingctl",
		Short: "Operate the subscription billing engine",
		Long: `billingctl runs billing operations against the configured database
and payment gateway. Configuration is read from the environment and an
optional .env file, the same way the server reads it.

Examples:
  billingctl migrate up
  billingctl process-billing --as-of 2026-03-01
  billingctl expiring-trials
  billingctl show 6f1c...`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Minute, "overall command timeout")

	cmd.AddCommand(
		newMigrateCmd(opts),
		newProcessBillingCmd(opts),
		newExpiringTrialsCmd(opts),
		newShowCmd(opts),
		newChargeCmd(opts),
	)
	return cmd
}

// setup loads configuration and a logger for a command
func (o *rootOptions) setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	level := cfg.Logger.Level
	if o.verbose {
		level = "debug"
	}
	logger, err := logging.New(level, cfg.Logger.Development)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

// withApp assembles the billing engine, runs fn and closes everything
func (o *rootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, logger, err := o.setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	defer cancel()

	// The CLI exposes no metrics endpoint
	a, err := app.New(ctx, cfg, logger, app.Options{Registerer: prometheus.NewRegistry()})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("Close failed", zap.Error(err))
		}
	}()

	return fn(ctx, a)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
