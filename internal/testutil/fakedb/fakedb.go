// Package fakedb is an in-memory stand-in for the database's HTTP API, used
// by tests. It understands sessions and the statements the migration
// tracker sends; every other statement succeeds with an empty result.
package fakedb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/toolsascode/arcade/client"
)

// BaseURL is the URL handles returned by Connect point at.
const BaseURL = "http://fakedb.local:2480"

var (
	createTypeRegex = regexp.MustCompile(`CREATE DOCUMENT TYPE (\w+)`)
	selectRegex     = regexp.MustCompile(`^SELECT version, name, applied_at FROM (\w+)`)
	insertRegex     = regexp.MustCompile(`^INSERT INTO (\w+) SET version = :version`)
	deleteRegex     = regexp.MustCompile(`^DELETE FROM (\w+) WHERE version = :version`)
)

// Call is one request the fake received.
type Call struct {
	Endpoint  string
	Database  string
	SessionID string
	Language  string
	Command   string
	Params    map[string]interface{}
}

type row struct {
	Version   int64  `json:"version"`
	Name      string `json:"name"`
	AppliedAt string `json:"applied_at"`
}

type failure struct {
	endpoint  string
	substring string
	status    int
	message   string
	remaining int // <0 = forever
}

// DB is the fake server. It implements client.Executor.
type DB struct {
	mu          sync.Mutex
	types       map[string]bool
	rows        map[string]map[int64]row
	sessions    map[string][]func()
	nextSession int
	calls       []Call
	failures    []*failure
}

func New() *DB {
	return &DB{
		types:    make(map[string]bool),
		rows:     make(map[string]map[int64]row),
		sessions: make(map[string][]func()),
	}
}

// Connect returns a stateless handle on database backed by db.
func (db *DB) Connect(database string) client.Conn {
	return client.MustConnect(context.Background(), client.Config{
		URL:      BaseURL,
		Database: database,
		Username: "root",
		Password: "secret",
		Executor: db,
	})
}

// FailOn makes every statement containing substring fail with status.
// An empty substring matches all statements.
func (db *DB) FailOn(substring string, status int, message string) {
	db.addFailure(&failure{endpoint: "", substring: substring, status: status, message: message, remaining: -1})
}

// FailOnce is FailOn for the next matching statement only.
func (db *DB) FailOnce(substring string, status int, message string) {
	db.addFailure(&failure{substring: substring, status: status, message: message, remaining: 1})
}

// FailEndpoint makes every call to endpoint (begin, commit, rollback, ...)
// fail with status.
func (db *DB) FailEndpoint(endpoint string, status int, message string) {
	db.addFailure(&failure{endpoint: endpoint, status: status, message: message, remaining: -1})
}

// ClearFailures removes every failure rule.
func (db *DB) ClearFailures() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.failures = nil
}

func (db *DB) addFailure(f *failure) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.failures = append(db.failures, f)
}

// Seed marks versions as already applied in the tracking type typeName.
func (db *DB) Seed(typeName string, versions ...int64) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.types[typeName] = true
	for _, v := range versions {
		db.insert(typeName, row{Version: v, Name: fmt.Sprintf("seed_%d", v), AppliedAt: "2025-01-01T00:00:00Z"})
	}
}

// Applied returns the committed versions of the tracking type, ascending.
func (db *DB) Applied(typeName string) []int64 {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]int64, 0, len(db.rows[typeName]))
	for v := range db.rows[typeName] {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HasType reports whether a document type was created.
func (db *DB) HasType(name string) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.types[name]
}

// OpenSessions returns the number of sessions neither committed nor rolled back.
func (db *DB) OpenSessions() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.sessions)
}

// Calls returns every request received, in order.
func (db *DB) Calls() []Call {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]Call, len(db.calls))
	copy(out, db.calls)
	return out
}

// Endpoints returns the endpoint of every call, in order.
func (db *DB) Endpoints() []string {
	calls := db.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Endpoint
	}
	return out
}

// Count returns how many calls hit endpoint.
func (db *DB) Count(endpoint string) int {
	n := 0
	for _, e := range db.Endpoints() {
		if e == endpoint {
			n++
		}
	}
	return n
}

// Commands returns the statements sent to the command endpoint, in order.
func (db *DB) Commands() []string {
	var out []string
	for _, c := range db.Calls() {
		if c.Endpoint == "command" {
			out = append(out, c.Command)
		}
	}
	return out
}

// Execute implements client.Executor.
func (db *DB) Execute(ctx context.Context, req *client.Request) (*client.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	call, err := parseCall(req)
	if err != nil {
		return nil, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	db.calls = append(db.calls, call)

	if resp := db.injectedFailure(call); resp != nil {
		return resp, nil
	}

	switch call.Endpoint {
	case "ready":
		return &client.Response{Status: http.StatusNoContent}, nil
	case "exists":
		return jsonResponse(http.StatusOK, map[string]interface{}{"result": true}), nil
	case "server":
		return jsonResponse(http.StatusOK, map[string]interface{}{"result": "ok"}), nil
	case "begin":
		db.nextSession++
		id := fmt.Sprintf("AS-fake-%d", db.nextSession)
		db.sessions[id] = nil
		h := http.Header{}
		h.Set(client.SessionHeader, id)
		return &client.Response{Status: http.StatusNoContent, Header: h}, nil
	case "commit", "rollback":
		ops, ok := db.sessions[call.SessionID]
		if !ok {
			return errorResponse(http.StatusNotFound, "session not found"), nil
		}
		delete(db.sessions, call.SessionID)
		if call.Endpoint == "commit" {
			for _, op := range ops {
				op()
			}
		}
		return &client.Response{Status: http.StatusNoContent}, nil
	case "query", "command":
		return db.statement(call), nil
	default:
		return errorResponse(http.StatusNotFound, "unknown endpoint "+call.Endpoint), nil
	}
}

func (db *DB) injectedFailure(call Call) *client.Response {
	for _, f := range db.failures {
		if f.remaining == 0 {
			continue
		}
		if f.endpoint != "" {
			if f.endpoint != call.Endpoint {
				continue
			}
		} else if call.Endpoint != "query" && call.Endpoint != "command" || !strings.Contains(call.Command, f.substring) {
			continue
		}
		if f.remaining > 0 {
			f.remaining--
		}
		return errorResponse(f.status, f.message)
	}
	return nil
}

func (db *DB) statement(call Call) *client.Response {
	if call.SessionID != "" {
		if _, ok := db.sessions[call.SessionID]; !ok {
			return errorResponse(http.StatusNotFound, "session not found")
		}
	}

	cmd := strings.TrimSpace(call.Command)
	switch {
	case strings.HasPrefix(cmd, "SELECT name FROM schema:types"):
		name, _ := call.Params["name"].(string)
		records := []map[string]interface{}{}
		if db.types[name] {
			records = append(records, map[string]interface{}{"name": name})
		}
		return jsonResponse(http.StatusOK, map[string]interface{}{"result": records})

	case createTypeRegex.MatchString(cmd):
		for _, m := range createTypeRegex.FindAllStringSubmatch(cmd, -1) {
			db.types[m[1]] = true
		}
		return jsonResponse(http.StatusOK, map[string]interface{}{"result": []interface{}{}})

	case selectRegex.MatchString(cmd):
		typeName := selectRegex.FindStringSubmatch(cmd)[1]
		if !db.types[typeName] {
			return errorResponse(http.StatusBadRequest, fmt.Sprintf("Type with name '%s' was not found", typeName))
		}
		rows := make([]row, 0, len(db.rows[typeName]))
		for _, r := range db.rows[typeName] {
			rows = append(rows, r)
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].Version < rows[j].Version })
		return jsonResponse(http.StatusOK, map[string]interface{}{"result": rows})

	case insertRegex.MatchString(cmd):
		typeName := insertRegex.FindStringSubmatch(cmd)[1]
		if !db.types[typeName] {
			return errorResponse(http.StatusBadRequest, fmt.Sprintf("Type with name '%s' was not found", typeName))
		}
		r := row{Version: paramInt(call.Params, "version")}
		r.Name, _ = call.Params["name"].(string)
		r.AppliedAt, _ = call.Params["applied_at"].(string)
		if _, dup := db.rows[typeName][r.Version]; dup {
			return errorResponse(http.StatusConflict, fmt.Sprintf("Duplicated key %d", r.Version))
		}
		db.apply(call.SessionID, func() { db.insert(typeName, r) })
		return jsonResponse(http.StatusOK, map[string]interface{}{"result": []interface{}{map[string]interface{}{"version": r.Version}}})

	case deleteRegex.MatchString(cmd):
		typeName := deleteRegex.FindStringSubmatch(cmd)[1]
		version := paramInt(call.Params, "version")
		db.apply(call.SessionID, func() { delete(db.rows[typeName], version) })
		return jsonResponse(http.StatusOK, map[string]interface{}{"result": []interface{}{map[string]interface{}{"count": 1}}})
	}

	return jsonResponse(http.StatusOK, map[string]interface{}{"result": []interface{}{}})
}

// apply runs op now, or at commit when issued inside a session.
func (db *DB) apply(session string, op func()) {
	if session == "" {
		op()
		return
	}
	db.sessions[session] = append(db.sessions[session], op)
}

func (db *DB) insert(typeName string, r row) {
	if db.rows[typeName] == nil {
		db.rows[typeName] = make(map[int64]row)
	}
	db.rows[typeName][r.Version] = r
}

func parseCall(req *client.Request) (Call, error) {
	path := strings.TrimPrefix(req.Path, "/api/v1/")
	parts := strings.SplitN(path, "/", 2)
	call := Call{Endpoint: parts[0], SessionID: req.SessionID}
	if len(parts) == 2 {
		call.Database = parts[1]
	}

	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return Call{}, err
		}
		var body struct {
			Language string                 `json:"language"`
			Command  string                 `json:"command"`
			Params   map[string]interface{} `json:"params"`
		}
		if err := json.Unmarshal(data, &body); err != nil {
			return Call{}, err
		}
		call.Language = body.Language
		call.Command = body.Command
		call.Params = body.Params
	}
	return call, nil
}

func paramInt(params map[string]interface{}, key string) int64 {
	switch v := params[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}

func jsonResponse(status int, v interface{}) *client.Response {
	data, _ := json.Marshal(v)
	return &client.Response{Status: status, Body: data}
}

func errorResponse(status int, message string) *client.Response {
	return jsonResponse(status, map[string]string{"error": message})
}
