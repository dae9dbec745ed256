// Package sqlite implements the billing store on an embedded SQLite
// database using the pure Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/kevin07696/billing-service/internal/db/migrations"
	"github.com/kevin07696/billing-service/internal/domain/ports"
)

// MemoryPath opens a private in-memory database
const MemoryPath = ":memory:"

// dbtx is satisfied by *sql.DB and *sql.Tx
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements ports.Store, ports.CatalogRepository and
// ports.SubscriberDirectory on SQLite
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

var (
	_ ports.Store               = (*Store)(nil)
	_ ports.CatalogRepository   = (*Store)(nil)
	_ ports.SubscriberDirectory = (*Store)(nil)
)

// Open opens the database at path, creating its directory if needed
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?"
	} else {
		dsn += "&"
	}
	dsn += "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path != MemoryPath {
		dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// SQLite has a single writer; an in-memory database also lives on one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	logger.Info("SQLite store initialized", zap.String("path", path))
	return &Store{db: db, logger: logger}, nil
}

// Migrate applies all pending migrations
func (s *Store) Migrate(ctx context.Context) error {
	provider, err := migrations.NewProvider(s.db, migrations.DriverSQLite)
	if err != nil {
		return err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate sqlite: %w", err)
	}
	s.logger.Info("SQLite migrations applied", zap.Int("count", len(results)))
	return nil
}

// DB returns the underlying sql.DB
func (s *Store) DB() *sql.DB {
	return s.db
}

// Repositories returns repositories outside any transaction
func (s *Store) Repositories() ports.Repositories {
	return repositories(s.db)
}

func repositories(q dbtx) ports.Repositories {
	return ports.Repositories{
		Subscriptions: &subscriptionRepository{q: q},
		Payments:      &paymentRepository{q: q},
	}
}

// WithTransaction executes fn within a transaction
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, repos ports.Repositories) error) error {
	return s.inTx(ctx, nil, fn)
}

// WithReadOnlyTransaction executes fn within a transaction that is always rolled back
func (s *Store) WithReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context, repos ports.Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return fn(ctx, repositories(tx))
}

func (s *Store) inTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, repos ports.Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, repositories(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Ping verifies the connection is still alive
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
