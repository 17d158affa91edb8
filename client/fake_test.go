package client

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// recordingExecutor is an in-memory Executor that records every request and
// answers from per-endpoint handlers.
type recordingExecutor struct {
	mu       sync.Mutex
	requests []*Request
	handlers map[string]func(req *Request) (*Response, error)
}

func newRecordingExecutor() *recordingExecutor {
	x := &recordingExecutor{handlers: make(map[string]func(req *Request) (*Response, error))}
	x.on("begin", func(req *Request) (*Response, error) {
		h := http.Header{}
		h.Set(SessionHeader, "AS-1")
		return &Response{Status: http.StatusNoContent, Header: h}, nil
	})
	x.on("commit", ok)
	x.on("rollback", ok)
	x.on("command", func(req *Request) (*Response, error) {
		return &Response{Status: http.StatusOK, Body: []byte(`{"result":[{"count":1}]}`)}, nil
	})
	x.on("query", func(req *Request) (*Response, error) {
		return &Response{Status: http.StatusOK, Body: []byte(`{"result":[]}`)}, nil
	})
	return x
}

func ok(*Request) (*Response, error) {
	return &Response{Status: http.StatusNoContent}, nil
}

func statusResponse(status int, body string) func(*Request) (*Response, error) {
	return func(*Request) (*Response, error) {
		return &Response{Status: status, Body: []byte(body)}, nil
	}
}

func (x *recordingExecutor) on(endpoint string, h func(req *Request) (*Response, error)) {
	x.handlers[endpoint] = h
}

func (x *recordingExecutor) Execute(ctx context.Context, req *Request) (*Response, error) {
	x.mu.Lock()
	x.requests = append(x.requests, req)
	h := x.handlers[endpointOf(req.Path)]
	x.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h == nil {
		return &Response{Status: http.StatusNotFound}, nil
	}
	return h(req)
}

// endpoints returns the endpoint name of every recorded request, in order.
func (x *recordingExecutor) endpoints() []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make([]string, 0, len(x.requests))
	for _, r := range x.requests {
		out = append(out, endpointOf(r.Path))
	}
	return out
}

func (x *recordingExecutor) count(endpoint string) int {
	n := 0
	for _, e := range x.endpoints() {
		if e == endpoint {
			n++
		}
	}
	return n
}

// endpointOf turns /api/v1/commit/db into "commit".
func endpointOf(path string) string {
	parts := strings.Split(strings.TrimPrefix(path, apiPrefix+"/"), "/")
	return parts[0]
}

func testConn(t *testing.T, x Executor) Conn {
	t.Helper()
	conn, err := Connect(context.Background(), Config{
		URL:      "http://db.local:2480",
		Database: "inventory",
		Username: "root",
		Password: "secret",
		Pool:     "main",
		Executor: x,
	})
	require.NoError(t, err)
	return conn
}
