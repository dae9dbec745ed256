// Package app assembles the billing engine from configuration. It is shared
// by the HTTP server and the operator CLI.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kevin07696/billing-service/internal/adapters/catalog"
	"github.com/kevin07696/billing-service/internal/adapters/lock"
	"github.com/kevin07696/billing-service/internal/adapters/nmi"
	"github.com/kevin07696/billing-service/internal/adapters/notify"
	"github.com/kevin07696/billing-service/internal/adapters/postgres"
	"github.com/kevin07696/billing-service/internal/adapters/secrets"
	"github.com/kevin07696/billing-service/internal/adapters/sqlite"
	"github.com/kevin07696/billing-service/internal/config"
	"github.com/kevin07696/billing-service/internal/domain/ports"
	"github.com/kevin07696/billing-service/internal/services/subscription"
	"github.com/kevin07696/billing-service/pkg/logging"
	"github.com/kevin07696/billing-service/pkg/observability"
)

// Store is a billing store that also serves the catalog and subscriber
// directory and can migrate its own schema
type Store interface {
	ports.Store
	ports.CatalogRepository
	ports.SubscriberDirectory
	Migrate(ctx context.Context) error
}

// Options adjust assembly
type Options struct {
	// Registerer receives the billing metrics. Nil uses the default registry.
	Registerer prometheus.Registerer
	// SkipMigrate leaves the schema untouched even when auto-migrate is on
	SkipMigrate bool
}

type closer struct {
	name string
	fn   func() error
}

// App holds the assembled components
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Store   Store
	Catalog *catalog.CachedRepository
	Vault   *nmi.VaultAdapter
	Metrics *observability.BillingMetrics
	Health  *observability.HealthChecker
	Service *subscription.Service

	closers []closer
}

// OpenStore opens the store selected by cfg.Database.Driver
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, error) {
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.Database.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverPostgres:
		pgCfg := postgres.DefaultConfig(cfg.Database.ConnectionString())
		pgCfg.MaxConns = cfg.Database.MaxConns
		pgCfg.MinConns = cfg.Database.MinConns
		store, err := postgres.NewStore(ctx, pgCfg, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

// New wires every component. On error, whatever was opened is closed.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (_ *App, err error) {
	a := &App{
		Config: cfg,
		Logger: logger,
		Health: observability.NewHealthChecker(),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	store, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.Store = store
	a.addCloser("store", store.Close)
	a.Health.Register("database", store.Ping)

	if !opts.SkipMigrate && (cfg.Database.AutoMigrate || cfg.Database.Driver == config.DriverSQLite) {
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
	}

	a.Catalog = catalog.NewCachedRepository(store, catalog.CacheConfig{
		MaxSize: cfg.Billing.CatalogCacheSize,
		TTL:     cfg.Billing.CatalogCacheTTL,
	})

	a.Vault, err = newVault(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	notifier, err := a.newNotifier(cfg, logger)
	if err != nil {
		return nil, err
	}

	locker, err := a.newLocker(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a.Metrics = observability.NewBillingMetrics(reg)

	a.Service = subscription.NewService(subscription.Dependencies{
		Store:       store,
		Catalog:     a.Catalog,
		Subscribers: store,
		Vault:       a.Vault,
		Notifier:    notifier,
		Locker:      locker,
		Metrics:     a.Metrics,
		Logger:      logging.NewZapLogger(logger),
	}, subscription.Config{
		ChargeTimeout:    cfg.Billing.ChargeTimeout,
		LockTTL:          cfg.Redis.LockTTL,
		BatchWorkers:     cfg.Billing.Workers,
		DefaultBatchSize: cfg.Billing.BatchSize,
	})

	logger.Info("Billing engine assembled",
		zap.String("database", cfg.Database.Driver),
		zap.String("secrets", cfg.Secrets.Source),
		zap.Bool("redis_locks", cfg.Redis.URL != ""),
		zap.Int("notifiers", len(notifier)),
	)
	return a, nil
}

// newVault resolves the merchant security key and builds the NMI adapter
func newVault(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*nmi.VaultAdapter, error) {
	vaultCfg := secrets.DefaultVaultConfig(cfg.Secrets.VaultAddr)
	vaultCfg.Token = cfg.Secrets.VaultToken
	if cfg.Secrets.VaultMount != "" {
		vaultCfg.MountPath = cfg.Secrets.VaultMount
	}

	provider, err := secrets.NewProvider(ctx, secrets.Config{
		Source:    cfg.Secrets.Source,
		LocalPath: cfg.Secrets.LocalPath,
		Vault:     vaultCfg,
		AWS:       &secrets.AWSSecretsManagerConfig{Region: cfg.Secrets.AWSRegion},
		CacheTTL:  cfg.Secrets.CacheTTL,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init secrets provider: %w", err)
	}

	secret, err := provider.GetSecret(ctx, cfg.Gateway.SecurityKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load gateway security key: %w", err)
	}

	nmiCfg := nmi.DefaultConfig()
	nmiCfg.SecurityKey = secret.Value
	if cfg.Gateway.BaseURL != "" {
		nmiCfg.BaseURL = cfg.Gateway.BaseURL
	}
	if cfg.Gateway.Timeout > 0 {
		nmiCfg.Timeout = cfg.Gateway.Timeout
	}
	nmiCfg.MaxRetries = cfg.Gateway.MaxRetries

	return nmi.NewVaultAdapter(nmiCfg, logger), nil
}

func (a *App) newNotifier(cfg *config.Config, logger *zap.Logger) (notify.Multi, error) {
	var notifiers notify.Multi

	if cfg.Notify.SMTPHost != "" {
		notifiers = append(notifiers, notify.NewEmailNotifier(notify.EmailConfig{
			SMTPHost:     cfg.Notify.SMTPHost,
			SMTPPort:     cfg.Notify.SMTPPort,
			SMTPUser:     cfg.Notify.SMTPUser,
			SMTPPassword: cfg.Notify.SMTPPassword,
			FromEmail:    cfg.Notify.FromEmail,
			OpsEmail:     cfg.Notify.OpsEmail,
		}, logger))
	} else {
		logger.Warn("SMTP_HOST not set, email notifications disabled")
	}

	if cfg.Notify.RabbitMQURL != "" {
		publisher, err := notify.NewRabbitMQPublisher(cfg.Notify.RabbitMQURL, cfg.Notify.Exchange, logger)
		if err != nil {
			return nil, err
		}
		a.addCloser("rabbitmq", publisher.Close)
		notifiers = append(notifiers, notify.NewEventNotifier(publisher))
	}

	return notifiers, nil
}

func (a *App) newLocker(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.Locker, error) {
	if cfg.Redis.URL == "" {
		logger.Warn("REDIS_URL not set, billing locks are process-local")
		return lock.NewMemoryLocker(), nil
	}

	client, err := lock.NewRedisClient(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	a.addCloser("redis", client.Close)
	a.Health.Register("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	return lock.NewRedisLocker(client, logger), nil
}

func (a *App) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Close releases everything in reverse order of opening
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].fn(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", a.closers[i].name, err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
