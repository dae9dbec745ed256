package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all application configuration
type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Gateway     GatewayConfig
	Secrets     SecretsConfig
	Notify      NotifyConfig
	Redis       RedisConfig
	Billing     BillingConfig
	Logger      LoggerConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int
	Host        string
	MetricsPort int
	// CronSecret authenticates the periodic trigger endpoints
	CronSecret     string
	RateLimitRPS   float64
	RateLimitBurst int
}

// DatabaseConfig holds PostgreSQL or SQLite configuration
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
	MinConns int32
	// SQLitePath is a file path or ":memory:"
	SQLitePath string
	// AutoMigrate applies pending migrations at startup
	AutoMigrate bool
}

// GatewayConfig holds NMI customer vault configuration
type GatewayConfig struct {
	BaseURL string
	Timeout time.Duration
	// SecurityKeyPath locates the merchant security key in the secret source
	SecurityKeyPath string
	MaxRetries      int
}

// SecretsConfig selects where credentials come from
type SecretsConfig struct {
	Source     string // local, vault or aws
	LocalPath  string
	CacheTTL   time.Duration
	VaultAddr  string
	VaultToken string
	VaultMount string
	AWSRegion  string
}

// NotifyConfig holds email and event settings
type NotifyConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	FromEmail    string
	OpsEmail     string
	RabbitMQURL  string
	Exchange     string
}

// RedisConfig holds the lock store connection
type RedisConfig struct {
	URL     string
	LockTTL time.Duration
}

// MinScheduleInterval is the shortest in-process billing interval; runs
// select by calendar day, so more than one run a day repeats work.
const MinScheduleInterval = 24 * time.Hour

// BillingConfig tunes the billing engine
type BillingConfig struct {
	BatchSize     int
	Workers       int
	ChargeTimeout time.Duration
	// ScheduleInterval runs due billing in process when non-zero.
	// Must be at least MinScheduleInterval.
	ScheduleInterval time.Duration
	CatalogCacheSize int
	CatalogCacheTTL  time.Duration
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string // debug, info, warn, error
	Development bool
}

// LoadFromEnv loads .env when present, then reads environment variables
func LoadFromEnv() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			MetricsPort:    getEnvAsInt("METRICS_PORT", 9090),
			CronSecret:     getEnv("CRON_SECRET", ""),
			RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 20),
			RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 40),
		},
		Database: DatabaseConfig{
			Driver:      getEnv("DB_DRIVER", DriverPostgres),
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnvAsInt("DB_PORT", 5432),
			User:        getEnv("DB_USER", "postgres"),
			Password:    getEnv("DB_PASSWORD", ""),
			Database:    getEnv("DB_NAME", "billing"),
			SSLMode:     getEnv("DB_SSL_MODE", "disable"),
			MaxConns:    int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:    int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			SQLitePath:  getEnv("SQLITE_PATH", "data/billing.db"),
			AutoMigrate: getEnvAsBool("DB_AUTO_MIGRATE", false),
		},
		Gateway: GatewayConfig{
			BaseURL:         getEnv("NMI_BASE_URL", "https://secure.nmi.com/api/transact.php"),
			Timeout:         getEnvAsDuration("NMI_TIMEOUT", 30*time.Second),
			SecurityKeyPath: getEnv("NMI_SECURITY_KEY_PATH", "nmi/security_key"),
			MaxRetries:      getEnvAsInt("NMI_MAX_RETRIES", 2),
		},
		Secrets: SecretsConfig{
			Source:     getEnv("SECRETS_SOURCE", "local"),
			LocalPath:  getEnv("SECRETS_LOCAL_PATH", "./secrets"),
			CacheTTL:   getEnvAsDuration("SECRETS_CACHE_TTL", 5*time.Minute),
			VaultAddr:  getEnv("VAULT_ADDR", ""),
			VaultToken: getEnv("VAULT_TOKEN", ""),
			VaultMount: getEnv("VAULT_MOUNT", "secret"),
			AWSRegion:  getEnv("AWS_REGION", "us-east-1"),
		},
		Notify: NotifyConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
			SMTPUser:     getEnv("SMTP_USER", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			FromEmail:    getEnv("SMTP_FROM", "billing@example.com"),
			OpsEmail:     getEnv("OPS_EMAIL", ""),
			RabbitMQURL:  getEnv("RABBITMQ_URL", ""),
			Exchange:     getEnv("RABBITMQ_EXCHANGE", "billing.events"),
		},
		Redis: RedisConfig{
			URL:     getEnv("REDIS_URL", ""),
			LockTTL: getEnvAsDuration("LOCK_TTL", 2*time.Minute),
		},
		Billing: BillingConfig{
			BatchSize:        getEnvAsInt("BILLING_BATCH_SIZE", 100),
			Workers:          getEnvAsInt("BILLING_WORKERS", 4),
			ChargeTimeout:    getEnvAsDuration("BILLING_CHARGE_TIMEOUT", 30*time.Second),
			ScheduleInterval: getEnvAsDuration("BILLING_SCHEDULE_INTERVAL", 0),
			CatalogCacheSize: getEnvAsInt("CATALOG_CACHE_SIZE", 256),
			CatalogCacheTTL:  getEnvAsDuration("CATALOG_CACHE_TTL", 5*time.Minute),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether ENVIRONMENT is production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Validate rejects missing required values
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.Password == "" && c.IsProduction() {
			errs = append(errs, errors.New("DB_PASSWORD is required"))
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required when DB_DRIVER is sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver))
	}

	if c.IsProduction() && c.Server.CronSecret == "" {
		errs = append(errs, errors.New("CRON_SECRET is required in production"))
	}
	if c.Gateway.SecurityKeyPath == "" {
		errs = append(errs, errors.New("NMI_SECURITY_KEY_PATH is required"))
	}

	switch c.Secrets.Source {
	case "local":
	case "vault":
		if c.Secrets.VaultAddr == "" {
			errs = append(errs, errors.New("VAULT_ADDR is required when SECRETS_SOURCE is vault"))
		}
	case "aws":
		if c.Secrets.AWSRegion == "" {
			errs = append(errs, errors.New("AWS_REGION is required when SECRETS_SOURCE is aws"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported SECRETS_SOURCE %q", c.Secrets.Source))
	}

	if c.Billing.BatchSize <= 0 {
		errs = append(errs, errors.New("BILLING_BATCH_SIZE must be positive"))
	}
	// A run re-sends trial reminders and retries declines for the whole day
	if c.Billing.ScheduleInterval > 0 && c.Billing.ScheduleInterval < MinScheduleInterval {
		errs = append(errs, fmt.Errorf("BILLING_SCHEDULE_INTERVAL must be at least %s", MinScheduleInterval))
	}

	return errors.Join(errs...)
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
