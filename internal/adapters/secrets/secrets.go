// Package secrets resolves gateway credentials from the local filesystem,
// HashiCorp Vault or AWS Secrets Manager.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

// ErrSecretNotFound is returned when no secret exists at a path
var ErrSecretNotFound = errors.New("secret not found")

// Secret represents a retrieved secret with metadata
type Secret struct {
	Value     string
	Version   string
	Metadata  map[string]string
	CreatedAt string
}

// Provider reads secrets by path. Path format depends on the backend:
//   - local: file path relative to the base directory
//   - Vault: "billing-service/nmi" under the KV mount
//   - AWS: secret name or ARN
type Provider interface {
	GetSecret(ctx context.Context, path string) (*Secret, error)
}

// Sources
const (
	SourceLocal = "local"
	SourceVault = "vault"
	SourceAWS   = "aws"
)

// Config selects and configures a Provider
type Config struct {
	Source    string
	LocalPath string
	Vault     *VaultConfig
	AWS       *AWSSecretsManagerConfig
	CacheSize int
	CacheTTL  time.Duration
}

// NewProvider builds the provider named by cfg.Source, wrapped in a TTL cache
func NewProvider(ctx context.Context, cfg Config, logger *zap.Logger) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch cfg.Source {
	case SourceLocal, "":
		p = NewLocalProvider(cfg.LocalPath, logger)
	case SourceVault:
		if cfg.Vault == nil {
			return nil, fmt.Errorf("vault configuration is required")
		}
		p, err = NewVaultProvider(ctx, cfg.Vault, logger)
	case SourceAWS:
		if cfg.AWS == nil {
			return nil, fmt.Errorf("aws configuration is required")
		}
		p, err = NewAWSSecretsManagerProvider(ctx, cfg.AWS, logger)
	default:
		return nil, fmt.Errorf("unsupported secret source: %s", cfg.Source)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheTTL <= 0 {
		return p, nil
	}
	return NewCachedProvider(p, cfg.CacheSize, cfg.CacheTTL), nil
}

// CachedProvider caches secrets of an inner provider for a fixed TTL
type CachedProvider struct {
	inner Provider
	cache *expirable.LRU[string, *Secret]
}

// NewCachedProvider wraps inner. size <= 0 defaults to 64 entries.
func NewCachedProvider(inner Provider, size int, ttl time.Duration) *CachedProvider {
	if size <= 0 {
		size = 64
	}
	return &CachedProvider{
		inner: inner,
		cache: expirable.NewLRU[string, *Secret](size, nil, ttl),
	}
}

// GetSecret returns the cached secret or fetches it
func (c *CachedProvider) GetSecret(ctx context.Context, path string) (*Secret, error) {
	if s, ok := c.cache.Get(path); ok {
		return s, nil
	}
	s, err := c.inner.GetSecret(ctx, path)
	if err != nil {
		return nil, err
	}
	c.cache.Add(path, s)
	return s, nil
}

// Invalidate drops a cached secret so the next read fetches it again
func (c *CachedProvider) Invalidate(path string) {
	c.cache.Remove(path)
}
