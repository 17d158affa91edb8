package etcd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/toolsascode/arcade/internal/logger"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

// Config describes the etcd cluster that holds migration locks.
type Config struct {
	Endpoints   []string
	Username    string
	Password    string
	Prefix      string        // default /arcade/locks/
	TTL         time.Duration // session lease, default 60s
	DialTimeout time.Duration // default 5s
}

// Locker implements lock.Locker with etcd mutexes. Each acquisition opens
// its own lease-backed session, so a crashed holder releases the lock when
// its lease expires.
type Locker struct {
	client *clientv3.Client
	prefix string
	ttl    time.Duration
}

// NewLocker connects to etcd and checks that the cluster answers.
func NewLocker(cfg Config) (*Locker, error) {
	endpoints := make([]string, 0, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		if ep = strings.TrimSpace(ep); ep != "" {
			endpoints = append(endpoints, ep)
		}
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("etcd endpoints are required")
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		Username:    cfg.Username,
		Password:    cfg.Password,
		DialTimeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	l := &Locker{
		client: client,
		prefix: normalizePrefix(cfg.Prefix),
		ttl:    cfg.TTL,
	}
	if l.ttl <= 0 {
		l.ttl = 60 * time.Second
	}

	if err := l.HealthCheck(context.Background()); err != nil {
		_ = client.Close()
		return nil, err
	}
	return l, nil
}

// Acquire implements lock.Locker.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	session, err := concurrency.NewSession(l.client,
		concurrency.WithTTL(int(l.ttl.Seconds())),
		concurrency.WithContext(context.WithoutCancel(ctx)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open etcd session: %w", err)
	}

	name := l.keyFor(key)
	mutex := concurrency.NewMutex(session, name)
	if err := mutex.Lock(ctx); err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	logger.Debugf("Acquired etcd lock %s", name)

	return func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mutex.Unlock(unlockCtx); err != nil {
			logger.Warnf("Failed to release etcd lock %s: %v", name, err)
		}
		if err := session.Close(); err != nil {
			logger.Warnf("Failed to close etcd session for %s: %v", name, err)
		}
	}, nil
}

// HealthCheck verifies the cluster is reachable.
func (l *Locker) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := l.client.Get(ctx, l.prefix+"health_check"); err != nil {
		return fmt.Errorf("failed to communicate with etcd: %w", err)
	}
	return nil
}

func (l *Locker) Close() error {
	if l.client != nil {
		return l.client.Close()
	}
	return nil
}

func (l *Locker) keyFor(key string) string {
	return l.prefix + strings.TrimPrefix(key, "/")
}

func normalizePrefix(prefix string) string {
	if prefix == "" {
		prefix = "/arcade/locks/"
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}
