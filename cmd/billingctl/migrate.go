package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kevin07696/billing-service/internal/adapters/sqlite"
	"github.com/kevin07696/billing-service/internal/config"
	"github.com/kevin07696/billing-service/internal/db/migrations"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withProvider(cmd, func(ctx context.Context, p *goose.Provider) error {
					results, err := p.Up(ctx)
					for _, r := range results {
						fmt.Fprintf(cmd.OutOrStdout(), "applied %s (%s)\n", r.Source.Path, r.Duration)
					}
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withProvider(cmd, func(ctx context.Context, p *goose.Provider) error {
					result, err := p.Down(ctx)
					if result != nil {
						fmt.Fprintf(cmd.OutOrStdout(), "rolled back %s\n", result.Source.Path)
					}
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List migrations and whether they are applied",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withProvider(cmd, func(ctx context.Context, p *goose.Provider) error {
					statuses, err := p.Status(ctx)
					if err != nil {
						return err
					}
					for _, s := range statuses {
						fmt.Fprintf(cmd.OutOrStdout(), "%-10s %s\n", s.State, s.Source.Path)
					}
					return nil
				})
			},
		},
	)
	return cmd
}

func (o *rootOptions) withProvider(cmd *cobra.Command, fn func(ctx context.Context, p *goose.Provider) error) error {
	cfg, logger, err := o.setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	defer cancel()

	db, closeDB, err := openMigrationDB(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = closeDB() }()

	provider, err := migrations.NewProvider(db, cfg.Database.Driver)
	if err != nil {
		return err
	}
	return fn(ctx, provider)
}

func openMigrationDB(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*sql.DB, func() error, error) {
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.Database.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return store.DB(), store.Close, nil
	case config.DriverPostgres:
		db, err := sql.Open("pgx", cfg.Database.ConnectionString())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		return db, db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}
