// Package app wires configuration into the engine, connections, lock,
// history store and queue shared by the server, worker and CLI.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
	"github.com/toolsascode/arcade/client"
	"github.com/toolsascode/arcade/internal/config"
	"github.com/toolsascode/arcade/internal/executor"
	"github.com/toolsascode/arcade/internal/lock"
	"github.com/toolsascode/arcade/internal/lock/etcd"
	"github.com/toolsascode/arcade/internal/logger"
	"github.com/toolsascode/arcade/internal/queue"
	"github.com/toolsascode/arcade/internal/queuefactory"
	"github.com/toolsascode/arcade/internal/registry"
	"github.com/toolsascode/arcade/internal/state"
	statepg "github.com/toolsascode/arcade/internal/state/postgresql"
)

// App holds the components built from a Config. History and Queue are nil
// when disabled.
type App struct {
	Config   *config.Config
	Engine   *executor.Engine
	Registry *registry.Registry
	Conns    map[string]client.Conn
	History  state.HistoryStore
	Queue    queue.Queue

	closers []io.Closer
}

type options struct {
	executor  client.Executor
	registry  *registry.Registry
	withQueue bool
}

// Option configures New.
type Option func(*options)

// WithExecutor routes every connection through x.
func WithExecutor(x client.Executor) Option {
	return func(o *options) { o.executor = x }
}

// WithRegistry uses reg instead of loading migrations from disk.
func WithRegistry(reg *registry.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithQueue opens the configured queue when it is enabled.
func WithQueue() Option {
	return func(o *options) { o.withQueue = true }
}

// New builds the application. Anything opened before a failure is closed.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *App, err error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	a := &App{Config: cfg, Conns: make(map[string]client.Conn)}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.Registry = o.registry
	if a.Registry == nil {
		if a.Registry, err = LoadRegistry(cfg.Migrations.Path, cfg.Migrations.Language); err != nil {
			return nil, err
		}
	}
	logger.Infof("Loaded %d migration(s)", a.Registry.Len())

	for name, c := range cfg.Connections {
		cc := c.ClientConfig()
		cc.Executor = o.executor
		conn, err := client.Connect(ctx, cc)
		if err != nil {
			return nil, fmt.Errorf("connection %s: %w", name, err)
		}
		a.Conns[name] = conn
	}

	tracker, err := state.NewTracker(cfg.Migrations.TrackingType)
	if err != nil {
		return nil, err
	}
	engineOpts := []executor.Option{}

	if cfg.Lock.Enabled {
		locker, err := etcd.NewLocker(etcd.Config{
			Endpoints: cfg.Lock.EtcdEndpoints,
			Username:  cfg.Lock.Username,
			Password:  cfg.Lock.Password,
			Prefix:    cfg.Lock.Prefix,
			TTL:       cfg.Lock.TTL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create migration lock: %w", err)
		}
		a.closers = append(a.closers, locker)
		engineOpts = append(engineOpts, executor.WithLocker(locker))
		logger.Info("Distributed migration lock enabled (etcd)")
	} else {
		engineOpts = append(engineOpts, executor.WithLocker(lock.NewLocal()))
	}

	if cfg.History.DSN != "" {
		history, err := statepg.NewHistoryStore(ctx, cfg.History.DSN, cfg.History.Schema)
		if err != nil {
			return nil, fmt.Errorf("failed to create history store: %w", err)
		}
		a.History = history
		a.closers = append(a.closers, history)
		engineOpts = append(engineOpts, executor.WithHistory(history))
		logger.Info("Execution history enabled (postgresql)")
	}

	if o.withQueue && cfg.Queue.Enabled {
		q, err := queuefactory.NewQueue(queuefactory.FromConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("failed to create queue: %w", err)
		}
		a.Queue = q
		a.closers = append(a.closers, q)
		logger.Infof("Queue enabled (%s) - migrations will be queued for async execution", cfg.Queue.Type)
	}

	a.Engine = executor.New(tracker, engineOpts...)
	return a, nil
}

// LoadRegistry merges the scripts under dir with the migrations registered
// from Go code. A Go unit replaces the script of the same version and name,
// which is how generated files that embed their scripts are loaded once.
func LoadRegistry(dir, language string) (*registry.Registry, error) {
	fromDir, err := registry.LoadDir(dir, language)
	if err != nil {
		return nil, err
	}
	global, err := registry.Global()
	if err != nil {
		return nil, err
	}
	if global.Len() == 0 {
		return fromDir, nil
	}

	units := global.All()
	for _, m := range fromDir.All() {
		if g, ok := global.Get(m.Version()); ok && registry.NameOf(g) == registry.NameOf(m) {
			continue
		}
		units = append(units, m)
	}
	return registry.Sorted(units...)
}

// Conn returns the stateless handle of a configured connection.
func (a *App) Conn(name string) (client.Conn, error) {
	conn, ok := a.Conns[name]
	if !ok {
		return client.Conn{}, &client.Error{Kind: client.KindNotFound, Op: "connection", Message: fmt.Sprintf("connection %q is not configured", name)}
	}
	return conn, nil
}

// Run executes job synchronously.
func (a *App) Run(ctx context.Context, job *queue.Job) (*executor.Result, error) {
	if err := job.Validate(); err != nil {
		return &executor.Result{Versions: []int64{}, Planned: []int64{}, DryRun: job.DryRun},
			&client.Error{Kind: client.KindValidation, Op: "job", Message: err.Error()}
	}
	conn, err := a.Conn(job.Connection)
	if err != nil {
		return &executor.Result{Versions: []int64{}, Planned: []int64{}, DryRun: job.DryRun}, err
	}

	opts := executor.Options{DryRun: job.DryRun, Connection: job.Connection}
	if job.Direction == queue.DirectionDown {
		return a.Engine.Down(ctx, conn, a.Registry, job.TargetVersion, opts)
	}
	return a.Engine.Up(ctx, conn, a.Registry, opts)
}

// Close releases every component, newest first.
func (a *App) Close() error {
	var result *multierror.Error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	a.closers = nil
	return result.ErrorOrNil()
}
