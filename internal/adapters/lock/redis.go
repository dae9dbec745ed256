// Package lock provides per-key billing locks backed by Redis or held in
// process memory.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/ports"
)

const keyPrefix = "billing:lock:"

// releaseScript deletes the key only while it still holds our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker holds locks as expiring Redis keys
type RedisLocker struct {
	client redis.UniversalClient
	logger *zap.Logger
}

var _ ports.Locker = (*RedisLocker)(nil)

// NewRedisLocker creates a locker on an existing client
func NewRedisLocker(client redis.UniversalClient, logger *zap.Logger) *RedisLocker {
	return &RedisLocker{client: client, logger: logger}
}

// NewRedisClient parses url and verifies the connection
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Acquire sets the key if absent. A held key yields domain.ErrSubscriptionBusy.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (ports.Unlock, error) {
	token := uuid.NewString()
	redisKey := keyPrefix + key

	ok, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		l.logger.Debug("Lock busy", zap.String("key", key))
		return nil, domain.ErrSubscriptionBusy
	}

	return func(ctx context.Context) error {
		err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("release lock %s: %w", key, err)
		}
		return nil
	}, nil
}
