package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toolsascode/arcade/client"
	"github.com/toolsascode/arcade/internal/api/http/dto"
	"github.com/toolsascode/arcade/internal/app"
	"github.com/toolsascode/arcade/internal/config"
	"github.com/toolsascode/arcade/internal/executor"
	"github.com/toolsascode/arcade/internal/queue"
	"github.com/toolsascode/arcade/internal/registry"
	"github.com/toolsascode/arcade/internal/state"
	"github.com/toolsascode/arcade/internal/testutil/fakedb"
)

const testToken = "test-token"

// mockHistoryStore is an in-memory state.HistoryStore
type mockHistoryStore struct {
	mu      sync.Mutex
	records []*state.ExecutionRecord
	err     error
	filters *state.HistoryFilters
}

func (m *mockHistoryStore) Initialize(ctx context.Context) error { return nil }

func (m *mockHistoryStore) RecordExecution(ctx context.Context, rec *state.ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *mockHistoryStore) History(ctx context.Context, filters *state.HistoryFilters) ([]*state.ExecutionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filters = filters
	if m.err != nil {
		return nil, m.err
	}
	out := make([]*state.ExecutionRecord, len(m.records))
	copy(out, m.records)
	return out, nil
}

func (m *mockHistoryStore) Close() error { return nil }

func noop(context.Context, client.Conn) error { return nil }

func testRegistry(upErr error) *registry.Registry {
	return registry.MustNew(
		&registry.Func{ID: 1, Label: "create_product", UpFn: noop, DownFn: noop},
		&registry.Func{ID: 2, Label: "index_sku", UpFn: func(context.Context, client.Conn) error { return upErr }, DownFn: noop},
	)
}

type testEnv struct {
	router *gin.Engine
	db     *fakedb.DB
	app    *app.App
}

func setupTestRouter(t *testing.T, reg *registry.Registry, mutate func(*app.App)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{Connections: map[string]*config.Connection{
		"core": {Name: "core", URL: fakedb.BaseURL, Database: "core", Username: "root", Password: "secret"},
	}}
	cfg.Server.APIToken = testToken
	cfg.Migrations.TrackingType = "SchemaMigration"

	db := fakedb.New()
	a, err := app.New(context.Background(), cfg, app.WithExecutor(db), app.WithRegistry(reg))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	if mutate != nil {
		mutate(a)
	}

	router := gin.New()
	router.Use(RequestID())
	NewHandler(a).RegisterRoutes(router)
	return &testEnv{router: router, db: db, app: a}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+testToken)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHandler_Health(t *testing.T) {
	env := setupTestRouter(t, testRegistry(nil), nil)

	w := env.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[map[string]interface{}](t, w)
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "ok", resp["checks"].(map[string]interface{})["core"])
}

func TestHandler_Health_Unhealthy(t *testing.T) {
	env := setupTestRouter(t, testRegistry(nil), nil)
	env.db.FailEndpoint("ready", http.StatusServiceUnavailable, "starting up")

	w := env.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp := decode[map[string]interface{}](t, w)
	assert.Equal(t, "unhealthy", resp["status"])
	assert.Contains(t, resp["checks"].(map[string]interface{})["core"], "starting up")
}

func TestHandler_authenticate(t *testing.T) {
	env := setupTestRouter(t, testRegistry(nil), nil)

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{name: "valid token", authHeader: "Bearer " + testToken, wantStatus: http.StatusOK},
		{name: "invalid token", authHeader: "Bearer wrong", wantStatus: http.StatusUnauthorized},
		{name: "missing header", authHeader: "", wantStatus: http.StatusUnauthorized},
		{name: "basic scheme", authHeader: "Basic dGVzdDp0ZXN0", wantStatus: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/connections", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestHandler_migrateUp(t *testing.T) {
	env := setupTestRouter(t, testRegistry(nil), nil)

	w := env.do(t, http.MethodPost, "/api/v1/migrations/up", dto.MigrateUpRequest{Connection: "core"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[dto.MigrateResponse](t, w)
	assert.True(t, resp.Success)
	assert.Equal(t, []int64{1, 2}, resp.Applied)
	assert.Equal(t, []int64{1, 2}, env.db.Applied("SchemaMigration"))

	w = env.do(t, http.MethodPost, "/api/v1/migrations/up", dto.MigrateUpRequest{Connection: "core"})
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[dto.MigrateResponse](t, w)
	assert.Empty(t, resp.Applied)
}

func TestHandler_migrateUp_DryRun(t *testing.T) {
	env := setupTestRouter(t, testRegistry(nil), nil)

	w := env.do(t, http.MethodPost, "/api/v1/migrations/up", dto.MigrateUpRequest{Connection: "core", DryRun: true})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[dto.MigrateResponse](t, w)
	assert.True(t, resp.DryRun)
	assert.Equal(t, []int64{1, 2}, resp.Pending)
	assert.Empty(t, resp.Applied)
	assert.Empty(t, env.db.Applied("SchemaMigration"))
}

func TestHandler_migrateUp_Failure(t *testing.T) {
	upErr := &client.Error{Kind: client.KindConflict, Message: "duplicated key"}
	env := setupTestRouter(t, testRegistry(upErr), nil)

	w := env.do(t, http.MethodPost, "/api/v1/migrations/up", dto.MigrateUpRequest{Connection: "core"})
	require.Equal(t, http.StatusConflict, w.Code)
	resp := decode[dto.MigrateResponse](t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, []int64{1}, resp.Applied)
	assert.Equal(t, "conflict", resp.Kind)
	require.NotNil(t, resp.Failed)
	assert.Equal(t, int64(2), *resp.Failed)
	assert.Contains(t, resp.Error, "duplicated key")
}

func TestHandler_migrateUp_BadRequests(t *testing.T) {
	env := setupTestRouter(t, testRegistry(nil), nil)

	w := env.do(t, http.MethodPost, "/api/v1/migrations/up", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/migrations/up", dto.MigrateUpRequest{Connection: "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	resp := decode[dto.ErrorResponse](t, w)
	assert.Equal(t, "not_found", resp.Kind)
}

func TestHandler_migrateDown(t *testing.T) {
	env := setupTestRouter(t, testRegistry(nil), nil)
	env.db.Seed("SchemaMigration", 1, 2)

	w := env.do(t, http.MethodPost, "/api/v1/migrations/down", map[string]interface{}{"connection": "core"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "target_version is required")

	w = env.do(t, http.MethodPost, "/api/v1/migrations/down", map[string]interface{}{"connection": "core", "target_version": 0})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[dto.MigrateResponse](t, w)
	assert.Equal(t, []int64{2, 1}, resp.Applied)
	assert.Empty(t, env.db.Applied("SchemaMigration"))
}

func TestHandler_migrateDown_UnknownApplied(t *testing.T) {
	env := setupTestRouter(t, testRegistry(nil), nil)
	env.db.Seed("SchemaMigration", 1, 2, 7)

	w := env.do(t, http.MethodPost, "/api/v1/migrations/down", map[string]interface{}{"connection": "core", "target_version": 1})
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode[dto.MigrateResponse](t, w)
	assert.Equal(t, "validation", resp.Kind)
	assert.Equal(t, []int64{1, 2, 7}, env.db.Applied("SchemaMigration"))
}

func TestHandler_Queued(t *testing.T) {
	q := queue.NewMemory(4)
	env := setupTestRouter(t, testRegistry(nil), func(a *app.App) { a.Queue = q })

	w := env.do(t, http.MethodPost, "/api/v1/migrations/up", dto.MigrateUpRequest{Connection: "core"}, "X-Request-ID", "req-42")
	require.Equal(t, http.StatusAccepted, w.Code)
	resp := decode[dto.QueuedResponse](t, w)
	assert.True(t, resp.Queued)
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, 1, q.Pending())
	assert.Empty(t, env.db.Applied("SchemaMigration"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = q.Consume(ctx, func(ctx context.Context, job *queue.Job) (*queue.JobResult, error) {
		assert.Equal(t, resp.JobID, job.ID)
		assert.Equal(t, queue.DirectionUp, job.Direction)
		assert.Equal(t, "req-42", job.Metadata["request_id"])
		assert.Equal(t, "api_user", job.Metadata["executed_by"])
		cancel()
		return &queue.JobResult{JobID: job.ID, Success: true}, nil
	})

	// dry runs are answered inline even with a queue
	w = env.do(t, http.MethodPost, "/api/v1/migrations/up", dto.MigrateUpRequest{Connection: "core", DryRun: true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, q.Pending())
}

func TestHandler_Queued_PublishError(t *testing.T) {
	q := queue.NewMemory(1)
	require.NoError(t, q.Close())
	env := setupTestRouter(t, testRegistry(nil), func(a *app.App) { a.Queue = q })

	w := env.do(t, http.MethodPost, "/api/v1/migrations/up", dto.MigrateUpRequest{Connection: "core"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandler_migrationStatus(t *testing.T) {
	env := setupTestRouter(t, testRegistry(nil), nil)
	env.db.Seed("SchemaMigration", 1, 9)

	w := env.do(t, http.MethodGet, "/api/v1/migrations/status?connection=core", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[dto.MigrationStatusResponse](t, w)
	assert.Equal(t, "core", resp.Database)
	assert.Equal(t, int64(9), resp.Current)
	assert.Equal(t, int64(2), resp.Latest)
	require.Len(t, resp.Items, 3)
	assert.True(t, resp.Items[0].Applied)
	assert.False(t, resp.Items[1].Applied)
	assert.Equal(t, int64(9), resp.Items[2].Version)
	assert.True(t, resp.Items[2].Unknown)
}

func TestHandler_migrationStatus_Errors(t *testing.T) {
	env := setupTestRouter(t, testRegistry(nil), nil)

	w := env.do(t, http.MethodGet, "/api/v1/migrations/status?connection=nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	env.db.FailOn("schema:types", http.StatusUnauthorized, "bad credentials")
	w = env.do(t, http.MethodGet, "/api/v1/migrations/status?connection=core", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	resp := decode[dto.ErrorResponse](t, w)
	assert.Equal(t, "auth", resp.Kind)
}

func TestHandler_pendingMigrations(t *testing.T) {
	env := setupTestRouter(t, testRegistry(nil), nil)
	env.db.Seed("SchemaMigration", 1)

	w := env.do(t, http.MethodGet, "/api/v1/migrations/pending?connection=core", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[dto.PendingResponse](t, w)
	assert.Equal(t, []int64{2}, resp.Pending)
}

func TestHandler_migrationHistory(t *testing.T) {
	t.Run("not enabled", func(t *testing.T) {
		env := setupTestRouter(t, testRegistry(nil), nil)
		w := env.do(t, http.MethodGet, "/api/v1/migrations/history", nil)
		assert.Equal(t, http.StatusNotImplemented, w.Code)
	})

	t.Run("records", func(t *testing.T) {
		history := &mockHistoryStore{records: []*state.ExecutionRecord{{
			ID: "r1", Connection: "core", Database: "core", Version: 1, Name: "create_product",
			Direction: "up", Status: state.StatusSuccess, ExecutedBy: "api_user", ExecutionMethod: "api",
			Duration: 250 * time.Millisecond, AppliedAt: time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
		}}}
		env := setupTestRouter(t, testRegistry(nil), func(a *app.App) { a.History = history })

		w := env.do(t, http.MethodGet, "/api/v1/migrations/history?connection=core&status=success&limit=5", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decode[dto.MigrationHistoryResponse](t, w)
		require.Equal(t, 1, resp.Total)
		assert.Equal(t, "r1", resp.Items[0].ID)
		assert.Equal(t, int64(250), resp.Items[0].DurationMS)
		assert.Equal(t, "2025-01-15T10:00:00Z", resp.Items[0].AppliedAt)
		assert.Equal(t, &state.HistoryFilters{Connection: "core", Status: "success", Limit: 5}, history.filters)
	})

	t.Run("store error", func(t *testing.T) {
		history := &mockHistoryStore{err: errors.New("db down")}
		env := setupTestRouter(t, testRegistry(nil), func(a *app.App) { a.History = history })
		w := env.do(t, http.MethodGet, "/api/v1/migrations/history", nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("bad filter", func(t *testing.T) {
		env := setupTestRouter(t, testRegistry(nil), func(a *app.App) { a.History = &mockHistoryStore{} })
		w := env.do(t, http.MethodGet, "/api/v1/migrations/history?version=abc", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandler_listConnections(t *testing.T) {
	env := setupTestRouter(t, testRegistry(nil), nil)

	w := env.do(t, http.MethodGet, "/api/v1/connections", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[struct {
		Items []dto.ConnectionItem `json:"items"`
		Total int                  `json:"total"`
	}](t, w)
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, dto.ConnectionItem{Name: "core", URL: fakedb.BaseURL, Database: "core"}, resp.Items[0])
}

func TestHandler_ExecutionContextRecorded(t *testing.T) {
	history := &mockHistoryStore{}
	env := setupTestRouter(t, testRegistry(nil), func(a *app.App) {
		a.Engine = executor.New(nil, executor.WithHistory(history))
	})

	w := env.do(t, http.MethodPost, "/api/v1/migrations/up", dto.MigrateUpRequest{Connection: "core"}, "Origin", "http://localhost:3000")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	history.mu.Lock()
	defer history.mu.Unlock()
	require.Len(t, history.records, 2)
	rec := history.records[0]
	assert.Equal(t, "core", rec.Connection)
	assert.Equal(t, "frontend_user", rec.ExecutedBy)
	assert.Equal(t, "manual", rec.ExecutionMethod)
	assert.Contains(t, rec.ExecutionContext, "/api/v1/migrations/up")
	assert.Equal(t, state.StatusSuccess, rec.Status)
}

func TestHandler_isManualExecution(t *testing.T) {
	h := &Handler{}
	tests := []struct {
		name    string
		headers map[string]string
		want    bool
	}{
		{name: "frontend client type", headers: map[string]string{"X-Client-Type": "frontend"}, want: true},
		{name: "xhr", headers: map[string]string{"X-Requested-With": "XMLHttpRequest"}, want: true},
		{name: "origin", headers: map[string]string{"Origin": "http://localhost:3000"}, want: true},
		{name: "plain api call", headers: map[string]string{"User-Agent": "curl/8.0"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				c.Request.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, h.isManualExecution(c))
		})
	}
}

func TestHandler_Options(t *testing.T) {
	env := setupTestRouter(t, testRegistry(nil), nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/migrations/up", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestHandler_RequestID(t *testing.T) {
	env := setupTestRouter(t, testRegistry(nil), nil)

	w := env.do(t, http.MethodGet, "/api/v1/health", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = env.do(t, http.MethodGet, "/api/v1/health", nil, "X-Request-ID", "abc")
	assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))
}

func TestHandler_OpenAPISpec(t *testing.T) {
	env := setupTestRouter(t, testRegistry(nil), nil)

	w := env.do(t, http.MethodGet, "/api/v1/openapi.yaml", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "openapi: 3.0.3")

	w = env.do(t, http.MethodGet, "/api/v1/openapi.json", nil)
	require.Equal(t, http.StatusOK, w.Code)
	spec := decode[map[string]interface{}](t, w)
	assert.Contains(t, spec["paths"], "/migrations/up")
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&client.Error{Kind: client.KindValidation}, http.StatusBadRequest},
		{&client.Error{Kind: client.KindAuth}, http.StatusBadGateway},
		{&client.Error{Kind: client.KindNotFound}, http.StatusNotFound},
		{&client.Error{Kind: client.KindConflict}, http.StatusConflict},
		{&client.Error{Kind: client.KindTransport}, http.StatusServiceUnavailable},
		{&client.Error{Kind: client.KindServer}, http.StatusInternalServerError},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusForError(tt.err), tt.err.Error())
	}
}
