package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kevin07696/billing-service/internal/app"
	"github.com/kevin07696/billing-service/pkg/timeutil"
)

func newProcessBillingCmd(opts *rootOptions) *cobra.Command {
	var (
		asOf      string
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "process-billing",
		Short: "Charge every active subscription due on a day",
		Long: `Charge every active subscription whose renewal falls on the given UTC
day (today by default). Subscriptions locked by another run are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var day time.Time
			if asOf != "" {
				parsed, err := timeutil.ParseDate(asOf)
				if err != nil {
					return fmt.Errorf("invalid --as-of: %w", err)
				}
				day = parsed
			}

			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				result, err := a.Service.ProcessDueBilling(ctx, day, batchSize)
				if result != nil {
					if printErr := printJSON(cmd.OutOrStdout(), result); printErr != nil {
						return printErr
					}
				}
				if err != nil {
					return err
				}
				if result.FailedCount > 0 {
					return fmt.Errorf("%d of %d charges failed", result.FailedCount, result.ProcessedCount)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&asOf, "as-of", "", "billing day as YYYY-MM-DD (default today)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "maximum subscriptions to charge (default from BILLING_BATCH_SIZE)")
	return cmd
}

func newExpiringTrialsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "expiring-trials",
		Short: "Send reminders for trials ending in seven days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				result, err := a.Service.NotifyExpiringTrials(ctx)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
				if result.FailedCount > 0 {
					return fmt.Errorf("%d of %d reminders failed", result.FailedCount, result.Found)
				}
				return nil
			})
		},
	}
}

func newShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <subscription-id>",
		Short: "Show a subscription and its payment ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				sub, err := a.Service.Get(ctx, args[0])
				if err != nil {
					return err
				}
				payments, err := a.Service.Payments(ctx, sub.ID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]interface{}{
					"subscription":       sub,
					"needs_payment_info": sub.NeedsPaymentInfo(),
					"payments":           payments,
				})
			})
		},
	}
}

func newChargeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "charge <subscription-id>",
		Short: "Run the renewal charge for one subscription now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				outcome, err := a.Service.Charge(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), outcome)
			})
		},
	}
}
