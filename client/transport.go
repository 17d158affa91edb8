package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/hashicorp/go-cleanhttp"
)

// SessionHeader carries the server-side transaction session id.
const SessionHeader = "arcadedb-session-id"

// Request is one call to the database's HTTP API.
type Request struct {
	BaseURL   string
	Username  string
	Password  string
	Pool      string
	Method    string
	Path      string
	SessionID string
	Body      interface{}
}

// Response is the raw outcome of a Request that reached the server.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Executor issues requests against the database. A non-nil error means no
// response was obtained; HTTP error statuses are returned as a Response.
// Implementations must be safe for concurrent use.
type Executor interface {
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, req *Request) (*Response, error)

func (f ExecutorFunc) Execute(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// HTTPExecutor is the default Executor. It keeps one pooled http.Client per
// pool identifier so that independent pools never share keep-alive
// connections.
type HTTPExecutor struct {
	mu        sync.Mutex
	clients   map[string]*http.Client
	userAgent string
}

// HTTPOption configures an HTTPExecutor.
type HTTPOption func(*HTTPExecutor)

// WithPoolClient installs a preconfigured client for a pool identifier.
func WithPoolClient(pool string, c *http.Client) HTTPOption {
	return func(x *HTTPExecutor) {
		x.clients[pool] = c
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) HTTPOption {
	return func(x *HTTPExecutor) {
		x.userAgent = ua
	}
}

// NewHTTPExecutor creates an executor backed by go-cleanhttp pooled clients.
func NewHTTPExecutor(opts ...HTTPOption) *HTTPExecutor {
	x := &HTTPExecutor{
		clients:   make(map[string]*http.Client),
		userAgent: "arcade-go",
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

var defaultExecutor = NewHTTPExecutor()

func (x *HTTPExecutor) client(pool string) *http.Client {
	x.mu.Lock()
	defer x.mu.Unlock()
	c, ok := x.clients[pool]
	if !ok {
		c = cleanhttp.DefaultPooledClient()
		x.clients[pool] = c
	}
	return c
}

// CloseIdle drops idle keep-alive connections of every pool.
func (x *HTTPExecutor) CloseIdle() {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, c := range x.clients {
		c.CloseIdleConnections()
	}
}

// Execute implements Executor.
func (x *HTTPExecutor) Execute(ctx context.Context, req *Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, &Error{Kind: KindValidation, Op: "encode", Message: "request body cannot be encoded as JSON", Err: err}
		}
		body = bytes.NewReader(data)
	}

	url := strings.TrimRight(req.BaseURL, "/") + req.Path
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if x.userAgent != "" {
		httpReq.Header.Set("User-Agent", x.userAgent)
	}
	if req.Username != "" {
		httpReq.SetBasicAuth(req.Username, req.Password)
	}
	if req.SessionID != "" {
		httpReq.Header.Set(SessionHeader, req.SessionID)
	}

	resp, err := x.client(req.Pool).Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   data,
	}, nil
}
