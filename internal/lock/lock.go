package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hackgods/telemed-scheduling/internal/apperr"
)

// ErrNotAcquired is an infrastructure failure: the caller may retry.
var ErrNotAcquired = fmt.Errorf("lock not acquired: %w", apperr.ErrUnavailable)

// Locker guards critical sections keyed by a resource name, for example
// "physician:<id>". Implementations wait up to their configured budget for a
// contended key before giving up with ErrNotAcquired.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// Key builds a lock key from a resource kind and id.
func Key(kind string, id any) string {
	return kind + ":" + toString(id)
}

func toString(id any) string {
	if s, ok := id.(interface{ String() string }); ok {
		return s.String()
	}
	if s, ok := id.(string); ok {
		return s
	}
	return ""
}

type localLocker struct {
	mu   sync.Mutex
	keys map[string]chan struct{}
	wait time.Duration
}

// NewLocalLocker returns an in-process locker used when no Redis is configured.
func NewLocalLocker(wait time.Duration) Locker {
	return &localLocker{
		keys: make(map[string]chan struct{}),
		wait: wait,
	}
}

func (l *localLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	for {
		l.mu.Lock()
		held, busy := l.keys[key]
		if !busy {
			l.keys[key] = make(chan struct{})
			l.mu.Unlock()
			break
		}
		l.mu.Unlock()

		select {
		case <-held:
		case <-waitCtx.Done():
			return ErrNotAcquired
		}
	}

	defer func() {
		l.mu.Lock()
		close(l.keys[key])
		delete(l.keys, key)
		l.mu.Unlock()
	}()

	return fn(ctx)
}
