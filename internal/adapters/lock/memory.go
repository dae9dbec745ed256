package lock

import (
	"context"
	"sync"
	"time"

	"github.com/kevin07696/billing-service/internal/domain"
	"github.com/kevin07696/billing-service/internal/domain/ports"
)

// MemoryLocker holds locks in process memory. Expired locks are taken over.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]memoryLock
	now   func() time.Time
	token uint64
}

type memoryLock struct {
	token     uint64
	expiresAt time.Time
}

var _ ports.Locker = (*MemoryLocker)(nil)

// NewMemoryLocker creates an in-process locker
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]memoryLock), now: time.Now}
}

// Acquire implements ports.Locker
func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (ports.Unlock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.held[key]; ok && now.Before(cur.expiresAt) {
		return nil, domain.ErrSubscriptionBusy
	}

	l.token++
	token := l.token
	l.held[key] = memoryLock{token: token, expiresAt: now.Add(ttl)}

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if cur, ok := l.held[key]; ok && cur.token == token {
			delete(l.held, key)
		}
		return nil
	}, nil
}
