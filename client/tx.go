package client

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/toolsascode/arcade/internal/logger"
)

// IsolationLevel selects the isolation of a server session.
type IsolationLevel string

const (
	ReadCommitted  IsolationLevel = "READ_COMMITTED"
	RepeatableRead IsolationLevel = "REPEATABLE_READ"
)

// DefaultRollbackTimeout bounds a rollback issued after the caller's context
// has been cancelled.
const DefaultRollbackTimeout = 10 * time.Second

// TxOptions tunes a transaction.
type TxOptions struct {
	Isolation       IsolationLevel // server default when empty
	RollbackTimeout time.Duration
}

// RunTransaction opens a server session on conn, calls work with a
// transaction-scoped copy of conn, and then commits if work returned a nil
// error or rolls back otherwise. Exactly one of commit or rollback is issued
// once the session is open.
//
// A work error is returned unchanged after a successful rollback. If the
// rollback fails too, a *RollbackError wrapping the work error is returned.
// A panic inside work triggers a rollback and is then re-raised.
//
// conn must be stateless: nesting transactions is rejected with a validation
// error before any request is sent. If the process stops between begin and
// commit/rollback, the session stays open until the server expires it.
func RunTransaction[T any](ctx context.Context, conn Conn, work func(ctx context.Context, tx Conn) (T, error)) (T, error) {
	return RunTransactionWith(ctx, conn, TxOptions{}, work)
}

// RunTransactionWith is RunTransaction with explicit options.
func RunTransactionWith[T any](ctx context.Context, conn Conn, opts TxOptions, work func(ctx context.Context, tx Conn) (T, error)) (T, error) {
	var zero T

	if conn.InTransaction() {
		return zero, validationError("begin", "connection already has an open transaction (session %s); use it directly", conn.session)
	}
	if err := conn.requireDatabase("begin"); err != nil {
		return zero, err
	}

	tx, err := conn.begin(ctx, opts)
	if err != nil {
		return zero, err
	}

	out := callWork(ctx, tx, work)

	if out.panicked {
		if rbErr := tx.rollback(ctx, opts); rbErr != nil {
			txLog(tx).Errorf("rollback after panic failed: %v", rbErr)
		}
		panic(out.recovered)
	}

	if out.err != nil {
		if rbErr := tx.rollback(ctx, opts); rbErr != nil {
			txLog(tx).Errorf("rollback failed: %v (transaction error: %v)", rbErr, out.err)
			return zero, &RollbackError{Cause: out.err, Rollback: rbErr}
		}
		return zero, out.err
	}

	if err := tx.commit(ctx); err != nil {
		return zero, err
	}
	return out.value, nil
}

// Transaction is RunTransaction for work that produces no value.
func Transaction(ctx context.Context, conn Conn, work func(ctx context.Context, tx Conn) error) error {
	return TransactionWith(ctx, conn, TxOptions{}, work)
}

// TransactionWith is Transaction with explicit options.
func TransactionWith(ctx context.Context, conn Conn, opts TxOptions, work func(ctx context.Context, tx Conn) error) error {
	_, err := RunTransactionWith(ctx, conn, opts, func(ctx context.Context, tx Conn) (struct{}, error) {
		return struct{}{}, work(ctx, tx)
	})
	return err
}

// MustTransaction is like Transaction but panics with the error.
func MustTransaction(ctx context.Context, conn Conn, work func(ctx context.Context, tx Conn) error) {
	if err := Transaction(ctx, conn, work); err != nil {
		panic(err)
	}
}

// MustRunTransaction is like RunTransaction but panics with the error.
func MustRunTransaction[T any](ctx context.Context, conn Conn, work func(ctx context.Context, tx Conn) (T, error)) T {
	return must(RunTransaction(ctx, conn, work))
}

type workOutcome[T any] struct {
	value     T
	err       error
	panicked  bool
	recovered interface{}
}

func callWork[T any](ctx context.Context, tx Conn, work func(ctx context.Context, tx Conn) (T, error)) (out workOutcome[T]) {
	defer func() {
		if r := recover(); r != nil {
			out.panicked = true
			out.recovered = r
		}
	}()
	out.value, out.err = work(ctx, tx)
	return out
}

type beginBody struct {
	IsolationLevel IsolationLevel `json:"isolationLevel,omitempty"`
}

func (c Conn) begin(ctx context.Context, opts TxOptions) (Conn, error) {
	var body interface{}
	if opts.Isolation != "" {
		body = beginBody{IsolationLevel: opts.Isolation}
	}

	resp, err := c.do(ctx, "begin", http.MethodPost, c.dbPath("begin"), body)
	if err != nil {
		return Conn{}, err
	}

	session := resp.Header.Get(SessionHeader)
	if session == "" {
		return Conn{}, &Error{
			Kind:    KindServer,
			Op:      "begin",
			Message: "server did not return a session id",
			Status:  resp.Status,
		}
	}

	tx := c.withSession(session)
	txLog(tx).Debug("transaction begun")
	return tx, nil
}

func (c Conn) commit(ctx context.Context) error {
	if _, err := c.do(ctx, "commit", http.MethodPost, c.dbPath("commit"), nil); err != nil {
		txLog(c).Warnf("commit failed: %v", err)
		return err
	}
	txLog(c).Debug("transaction committed")
	return nil
}

// rollback runs even when ctx is already cancelled; it gets its own deadline.
func (c Conn) rollback(ctx context.Context, opts TxOptions) error {
	timeout := opts.RollbackTimeout
	if timeout <= 0 {
		timeout = DefaultRollbackTimeout
	}
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if _, err := c.do(rbCtx, "rollback", http.MethodPost, c.dbPath("rollback"), nil); err != nil {
		return err
	}
	txLog(c).Debug("transaction rolled back")
	return nil
}

func txLog(c Conn) *logrus.Entry {
	return logger.WithFields(map[string]interface{}{
		"database": c.database,
		"session":  c.session,
	})
}
