package lock

import (
	"context"
	"fmt"
	"sync"
)

// Locker provides mutual exclusion for migration runs that target the same
// database, across goroutines or processes.
type Locker interface {
	// Acquire obtains the lock for key and blocks until it is free or ctx is
	// done. The returned release function must be called exactly once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Key is the lock key for migrations of database on the server at baseURL.
func Key(baseURL, database string) string {
	return fmt.Sprintf("migrate/%s/%s", baseURL, database)
}

// Local is an in-process Locker keyed by string.
type Local struct {
	mu   sync.Mutex
	held map[string]chan struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[string]chan struct{})}
}

// Acquire implements Locker.
func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}

		l.mu.Lock()
		wait, busy := l.held[key]
		if !busy {
			done := make(chan struct{})
			l.held[key] = done
			l.mu.Unlock()

			var once sync.Once
			return func() {
				once.Do(func() {
					l.mu.Lock()
					delete(l.held, key)
					l.mu.Unlock()
					close(done)
				})
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
		}
	}
}
