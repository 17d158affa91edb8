package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/toolsascode/arcade/client"
	"github.com/toolsascode/arcade/internal/lock"
	"github.com/toolsascode/arcade/internal/logger"
	"github.com/toolsascode/arcade/internal/registry"
	"github.com/toolsascode/arcade/internal/state"
)

// Context keys for execution metadata
type contextKey string

const (
	executedByKey       contextKey = "executed_by"
	executionMethodKey  contextKey = "execution_method"
	executionContextKey contextKey = "execution_context"
)

// SetExecutionContext sets execution context in the context
func SetExecutionContext(ctx context.Context, executedBy, executionMethod string, executionContext map[string]interface{}) context.Context {
	ctx = context.WithValue(ctx, executedByKey, executedBy)
	ctx = context.WithValue(ctx, executionMethodKey, executionMethod)
	if executionContext != nil {
		ctxBytes, _ := json.Marshal(executionContext)
		ctx = context.WithValue(ctx, executionContextKey, string(ctxBytes))
	}
	return ctx
}

// GetExecutionContext extracts execution context from context
func GetExecutionContext(ctx context.Context) (executedBy, executionMethod, executionContext string) {
	executedBy = "system"
	executionMethod = "manual"

	if s, ok := ctx.Value(executedByKey).(string); ok && s != "" {
		executedBy = s
	}
	if s, ok := ctx.Value(executionMethodKey).(string); ok && s != "" {
		executionMethod = s
	}
	if s, ok := ctx.Value(executionContextKey).(string); ok {
		executionContext = s
	}
	return executedBy, executionMethod, executionContext
}

// MigrationError reports the unit that stopped a run. Units after it were
// not attempted.
type MigrationError struct {
	Version int64
	Name    string
	Op      string // "up" or "down"
	Cause   error
}

func (e *MigrationError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("migration %d (%s) %s failed: %v", e.Version, e.Name, e.Op, e.Cause)
	}
	return fmt.Sprintf("migration %d %s failed: %v", e.Version, e.Op, e.Cause)
}

func (e *MigrationError) Unwrap() error {
	return e.Cause
}

// Options tunes a single run.
type Options struct {
	// DryRun computes what would run without writing anything.
	DryRun bool
	// Connection names the configured connection, for history records.
	Connection string
}

// Result describes one run. Versions lists what was applied (up) or
// reverted (down) in this call, in execution order; Planned lists what the
// run set out to do.
type Result struct {
	Versions []int64
	Planned  []int64
	DryRun   bool
}

// VersionStatus is the state of one version in a database.
type VersionStatus struct {
	Version   int64
	Name      string
	Applied   bool
	AppliedAt time.Time
	// Unknown is set for versions applied in the database but absent from
	// the registry.
	Unknown bool
}

// Engine applies and reverts registry migrations, one transaction per unit.
type Engine struct {
	tracker *state.Tracker
	locker  lock.Locker
	history state.HistoryStore
	txOpts  client.TxOptions
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocker serialises runs against the same database.
func WithLocker(l lock.Locker) Option {
	return func(e *Engine) { e.locker = l }
}

// WithHistory records every attempted unit in h.
func WithHistory(h state.HistoryStore) Option {
	return func(e *Engine) { e.history = h }
}

// WithTxOptions sets the options of each unit's transaction.
func WithTxOptions(opts client.TxOptions) Option {
	return func(e *Engine) { e.txOpts = opts }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine. A nil tracker uses the default tracking type.
func New(tracker *state.Tracker, opts ...Option) *Engine {
	if tracker == nil {
		tracker, _ = state.NewTracker("")
	}
	e := &Engine{tracker: tracker, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tracker returns the engine's tracker.
func (e *Engine) Tracker() *state.Tracker {
	return e.tracker
}

// Migrate applies every pending migration of reg in ascending order and
// returns the versions applied in this call. It stops at the first failure
// with a *MigrationError; the versions applied before it stay applied.
func (e *Engine) Migrate(ctx context.Context, conn client.Conn, reg *registry.Registry) ([]int64, error) {
	res, err := e.Up(ctx, conn, reg, Options{})
	return res.Versions, err
}

// Rollback reverts every applied version greater than target, newest first.
func (e *Engine) Rollback(ctx context.Context, conn client.Conn, reg *registry.Registry, target int64) ([]int64, error) {
	res, err := e.Down(ctx, conn, reg, target, Options{})
	return res.Versions, err
}

// Pending returns the registry versions not yet applied, ascending.
func (e *Engine) Pending(ctx context.Context, conn client.Conn, reg *registry.Registry) ([]int64, error) {
	if err := checkArgs("pending", conn, reg); err != nil {
		return nil, err
	}
	applied, err := e.tracker.Applied(ctx, conn)
	if err != nil {
		return nil, err
	}
	return pendingVersions(reg, applied), nil
}

// Status reports every registry version plus applied versions the registry
// does not know, ascending.
func (e *Engine) Status(ctx context.Context, conn client.Conn, reg *registry.Registry) ([]VersionStatus, error) {
	if err := checkArgs("status", conn, reg); err != nil {
		return nil, err
	}
	records, err := e.tracker.Records(ctx, conn)
	if err != nil {
		return nil, err
	}

	byVersion := make(map[int64]state.AppliedVersion, len(records))
	for _, r := range records {
		byVersion[r.Version] = r
	}

	out := make([]VersionStatus, 0, reg.Len()+len(records))
	for _, m := range reg.All() {
		st := VersionStatus{Version: m.Version(), Name: registry.NameOf(m)}
		if r, ok := byVersion[m.Version()]; ok {
			st.Applied = true
			st.AppliedAt = r.AppliedAt
			delete(byVersion, m.Version())
		}
		out = append(out, st)
	}
	for _, r := range byVersion {
		out = append(out, VersionStatus{Version: r.Version, Name: r.Name, Applied: true, AppliedAt: r.AppliedAt, Unknown: true})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Up applies pending migrations. The returned Result is never nil.
func (e *Engine) Up(ctx context.Context, conn client.Conn, reg *registry.Registry, opts Options) (*Result, error) {
	res := &Result{Versions: []int64{}, Planned: []int64{}, DryRun: opts.DryRun}
	if err := checkArgs("migrate", conn, reg); err != nil {
		return res, err
	}

	release, err := e.acquire(ctx, conn, opts)
	if err != nil {
		return res, err
	}
	defer release()

	applied, err := e.tracker.Applied(ctx, conn)
	if err != nil {
		return res, fmt.Errorf("failed to read applied versions: %w", err)
	}
	for _, v := range applied {
		if _, ok := reg.Get(v); !ok {
			logger.Warnf("Version %d is applied in %s but not registered", v, conn.Database())
		}
	}

	res.Planned = pendingVersions(reg, applied)
	if opts.DryRun || len(res.Planned) == 0 {
		return res, nil
	}

	if err := e.tracker.Ensure(ctx, conn); err != nil {
		return res, err
	}

	for _, v := range res.Planned {
		m, _ := reg.Get(v)
		name := registry.NameOf(m)
		start := e.now()

		err := client.TransactionWith(ctx, conn, e.txOpts, func(ctx context.Context, tx client.Conn) error {
			if err := m.Up(ctx, tx); err != nil {
				return err
			}
			return e.tracker.Record(ctx, tx, v, name, e.now())
		})

		log := unitLog(conn, v, name)
		if err != nil {
			e.recordHistory(ctx, conn, opts, v, name, "up", state.StatusFailed, err, start)
			log.Warnf("Migration failed: %v", err)
			return res, &MigrationError{Version: v, Name: name, Op: "up", Cause: err}
		}
		e.recordHistory(ctx, conn, opts, v, name, "up", state.StatusSuccess, nil, start)
		log.Info("Migration applied")
		res.Versions = append(res.Versions, v)
	}
	return res, nil
}

// Down reverts applied versions strictly greater than target, in descending
// order. Applied versions above target that the registry does not contain
// fail the run before anything is reverted.
func (e *Engine) Down(ctx context.Context, conn client.Conn, reg *registry.Registry, target int64, opts Options) (*Result, error) {
	res := &Result{Versions: []int64{}, Planned: []int64{}, DryRun: opts.DryRun}
	if err := checkArgs("rollback", conn, reg); err != nil {
		return res, err
	}
	if target < 0 {
		return res, &client.Error{Kind: client.KindValidation, Op: "rollback", Message: fmt.Sprintf("invalid target version %d", target)}
	}

	release, err := e.acquire(ctx, conn, opts)
	if err != nil {
		return res, err
	}
	defer release()

	applied, err := e.tracker.Applied(ctx, conn)
	if err != nil {
		return res, fmt.Errorf("failed to read applied versions: %w", err)
	}

	for _, v := range applied {
		if v <= target {
			continue
		}
		if _, ok := reg.Get(v); !ok {
			return res, &client.Error{Kind: client.KindValidation, Op: "rollback", Message: fmt.Sprintf("applied version %d is not in the registry", v)}
		}
		res.Planned = append(res.Planned, v)
	}
	sort.Slice(res.Planned, func(i, j int) bool { return res.Planned[i] > res.Planned[j] })

	if opts.DryRun {
		return res, nil
	}

	for _, v := range res.Planned {
		m, _ := reg.Get(v)
		name := registry.NameOf(m)
		start := e.now()

		err := client.TransactionWith(ctx, conn, e.txOpts, func(ctx context.Context, tx client.Conn) error {
			if err := m.Down(ctx, tx); err != nil {
				return err
			}
			return e.tracker.Forget(ctx, tx, v)
		})

		log := unitLog(conn, v, name)
		if err != nil {
			e.recordHistory(ctx, conn, opts, v, name, "down", state.StatusFailed, err, start)
			log.Warnf("Rollback failed: %v", err)
			return res, &MigrationError{Version: v, Name: name, Op: "down", Cause: err}
		}
		e.recordHistory(ctx, conn, opts, v, name, "down", state.StatusRolledBack, nil, start)
		log.Info("Migration rolled back")
		res.Versions = append(res.Versions, v)
	}
	return res, nil
}

func (e *Engine) acquire(ctx context.Context, conn client.Conn, opts Options) (func(), error) {
	if e.locker == nil || opts.DryRun {
		return func() {}, nil
	}
	release, err := e.locker.Acquire(ctx, lock.Key(conn.BaseURL(), conn.Database()))
	if err != nil {
		return nil, fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	return release, nil
}

// recordHistory never fails the run; the tracking type is authoritative.
func (e *Engine) recordHistory(ctx context.Context, conn client.Conn, opts Options, version int64, name, direction, status string, runErr error, start time.Time) {
	if e.history == nil {
		return
	}
	executedBy, executionMethod, executionContext := GetExecutionContext(ctx)

	rec := &state.ExecutionRecord{
		ID:               uuid.NewString(),
		Connection:       opts.Connection,
		BaseURL:          conn.BaseURL(),
		Database:         conn.Database(),
		Version:          version,
		Name:             name,
		Direction:        direction,
		Status:           status,
		ExecutedBy:       executedBy,
		ExecutionMethod:  executionMethod,
		ExecutionContext: executionContext,
		Duration:         e.now().Sub(start),
		AppliedAt:        e.now(),
	}
	if runErr != nil {
		rec.ErrorMessage = runErr.Error()
	}

	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.history.RecordExecution(hctx, rec); err != nil {
		logger.Warnf("Failed to record execution history for %d: %v", version, err)
	}
}

func checkArgs(op string, conn client.Conn, reg *registry.Registry) error {
	if reg == nil {
		return &client.Error{Kind: client.KindValidation, Op: op, Message: "registry is required"}
	}
	if conn.InTransaction() {
		return &client.Error{Kind: client.KindValidation, Op: op, Message: "migrations need a connection without an open transaction"}
	}
	if conn.Database() == "" {
		return &client.Error{Kind: client.KindValidation, Op: op, Message: "no database selected"}
	}
	return nil
}

// pendingVersions is registry versions minus applied, sorted ascending.
func pendingVersions(reg *registry.Registry, applied []int64) []int64 {
	done := make(map[int64]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}
	pending := []int64{}
	for _, v := range reg.Versions() {
		if !done[v] {
			pending = append(pending, v)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i] < pending[j] })
	return pending
}

func unitLog(conn client.Conn, version int64, name string) *logrus.Entry {
	return logger.WithFields(map[string]interface{}{
		"database": conn.Database(),
		"version":  version,
		"name":     name,
	})
}
