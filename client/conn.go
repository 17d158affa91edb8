package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const apiPrefix = "/api/v1"

// DefaultPool is the pool identifier used when Config.Pool is empty.
const DefaultPool = "default"

// Config describes how to reach a database.
type Config struct {
	URL      string // e.g. http://localhost:2480
	Database string
	Username string
	Password string
	Pool     string
	Timeout  time.Duration // per-request timeout, 0 = caller's context only

	// Executor overrides the shared HTTP executor.
	Executor Executor

	// AllowNoDatabase permits a handle without a database, for server-level
	// calls such as CreateDatabase.
	AllowNoDatabase bool

	// Verify pings the server during Connect.
	Verify bool
}

// Conn is an immutable handle on a database. Methods that change the target
// (WithDatabase) or open a transaction return a new Conn and leave the
// receiver untouched.
//
// A Conn without a session id is stateless and may be shared between
// goroutines. A transaction-scoped Conn (the one handed to transaction work)
// carries a session id; it must not be used concurrently, since the server
// session handles a single operation at a time.
type Conn struct {
	baseURL  string
	database string
	username string
	password string
	pool     string
	session  string
	timeout  time.Duration
	exec     Executor
}

// Connect validates cfg and returns a stateless handle.
func Connect(ctx context.Context, cfg Config) (Conn, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || cfg.URL == "" {
		return Conn{}, validationError("connect", "invalid base URL %q", cfg.URL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Conn{}, validationError("connect", "unsupported URL scheme %q", u.Scheme)
	}
	if cfg.Database == "" && !cfg.AllowNoDatabase {
		return Conn{}, validationError("connect", "database name is required")
	}

	c := Conn{
		baseURL:  u.String(),
		database: cfg.Database,
		username: cfg.Username,
		password: cfg.Password,
		pool:     cfg.Pool,
		timeout:  cfg.Timeout,
		exec:     cfg.Executor,
	}
	if c.pool == "" {
		c.pool = DefaultPool
	}
	if c.exec == nil {
		c.exec = defaultExecutor
	}

	if cfg.Verify {
		if err := c.Ready(ctx); err != nil {
			return Conn{}, err
		}
	}
	return c, nil
}

// MustConnect is like Connect but panics with the error.
func MustConnect(ctx context.Context, cfg Config) Conn {
	c, err := Connect(ctx, cfg)
	if err != nil {
		panic(err)
	}
	return c
}

// WithDatabase returns a copy of c targeting another database. Base URL,
// credentials, pool and session are preserved.
func (c Conn) WithDatabase(name string) Conn {
	c.database = name
	return c
}

func (c Conn) withSession(id string) Conn {
	c.session = id
	return c
}

func (c Conn) BaseURL() string   { return c.baseURL }
func (c Conn) Database() string  { return c.database }
func (c Conn) Username() string  { return c.username }
func (c Conn) Pool() string      { return c.pool }
func (c Conn) SessionID() string { return c.session }

// InTransaction reports whether c is transaction-scoped.
func (c Conn) InTransaction() bool { return c.session != "" }

// String describes the handle without exposing the password.
func (c Conn) String() string {
	s := fmt.Sprintf("%s/%s (user=%s pool=%s)", c.baseURL, c.database, c.username, c.pool)
	if c.session != "" {
		s += " session=" + c.session
	}
	return s
}

func (c Conn) dbPath(endpoint string) string {
	return apiPrefix + "/" + endpoint + "/" + url.PathEscape(c.database)
}

func (c Conn) requireDatabase(op string) error {
	if c.exec == nil {
		return validationError(op, "connection is not initialised; use Connect")
	}
	if c.database == "" {
		return validationError(op, "no database selected")
	}
	return nil
}

// do sends one request and normalizes any failure. Only 2xx responses are
// returned without error.
func (c Conn) do(ctx context.Context, op, method, path string, body interface{}) (*Response, error) {
	if c.exec == nil {
		return nil, validationError(op, "connection is not initialised; use Connect")
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.exec.Execute(ctx, &Request{
		BaseURL:   c.baseURL,
		Username:  c.username,
		Password:  c.password,
		Pool:      c.pool,
		Method:    method,
		Path:      path,
		SessionID: c.session,
		Body:      body,
	})
	if err != nil {
		return nil, NormalizeTransport(op, err)
	}
	if resp.Status < http.StatusOK || resp.Status >= http.StatusMultipleChoices {
		return nil, Normalize(op, resp.Status, resp.Body)
	}
	return resp, nil
}
