package http

import (
	"context"
	_ "embed"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/toolsascode/arcade/client"
	"github.com/toolsascode/arcade/internal/api/http/dto"
	"github.com/toolsascode/arcade/internal/app"
	"github.com/toolsascode/arcade/internal/auth"
	"github.com/toolsascode/arcade/internal/executor"
	"github.com/toolsascode/arcade/internal/logger"
	"github.com/toolsascode/arcade/internal/queue"
	"github.com/toolsascode/arcade/internal/state"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Handler handles HTTP API requests
type Handler struct {
	app *app.App
}

// NewHandler creates a new HTTP handler
func NewHandler(a *app.App) *Handler {
	return &Handler{app: a}
}

// RegisterRoutes registers HTTP routes
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		// Handle OPTIONS for all routes
		api.OPTIONS("/*path", func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})

		api.POST("/migrations/up", h.authenticate, h.migrateUp)
		api.POST("/migrations/down", h.authenticate, h.migrateDown)
		api.GET("/migrations/status", h.authenticate, h.migrationStatus)
		api.GET("/migrations/pending", h.authenticate, h.pendingMigrations)
		api.GET("/migrations/history", h.authenticate, h.migrationHistory)
		api.GET("/connections", h.authenticate, h.listConnections)
		api.GET("/health", h.Health)
		api.GET("/openapi.yaml", h.OpenAPISpec)
		api.GET("/openapi.json", h.OpenAPISpecJSON)
	}
}

// RequestID tags every request with an X-Request-ID, generating one when
// the client sent none.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

// authenticate middleware validates API token
func (h *Handler) authenticate(c *gin.Context) {
	token, err := auth.ExtractToken(c.GetHeader("Authorization"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{Error: err.Error()})
		return
	}

	if err := auth.ValidateToken(h.app.Config.Server.APIToken, token); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{Error: err.Error()})
		return
	}

	c.Next()
}

// isManualExecution checks if the request comes from a browser
func (h *Handler) isManualExecution(c *gin.Context) bool {
	if clientType := c.GetHeader("X-Client-Type"); clientType == "frontend" {
		return true
	}
	if c.GetHeader("X-Requested-With") == "XMLHttpRequest" {
		return true
	}
	// Browsers send Origin on cross-site requests
	return c.GetHeader("Origin") != ""
}

// setExecutionContext sets execution context in the request context
func (h *Handler) setExecutionContext(c *gin.Context) context.Context {
	executedBy, executionMethod := "api_user", "api"
	if h.isManualExecution(c) {
		executedBy, executionMethod = "frontend_user", "manual"
	}

	executionContext := map[string]interface{}{
		"endpoint":   c.Request.URL.Path,
		"method":     c.Request.Method,
		"request_id": c.GetString("request_id"),
	}

	return executor.SetExecutionContext(c.Request.Context(), executedBy, executionMethod, executionContext)
}

// migrateUp handles up migration requests
func (h *Handler) migrateUp(c *gin.Context) {
	var req dto.MigrateUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error(), Kind: string(client.KindValidation)})
		return
	}

	h.run(c, &queue.Job{
		Connection: req.Connection,
		Direction:  queue.DirectionUp,
		DryRun:     req.DryRun,
	})
}

// migrateDown handles down migration requests
func (h *Handler) migrateDown(c *gin.Context) {
	var req dto.MigrateDownRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error(), Kind: string(client.KindValidation)})
		return
	}

	h.run(c, &queue.Job{
		Connection:    req.Connection,
		Direction:     queue.DirectionDown,
		TargetVersion: *req.TargetVersion,
		DryRun:        req.DryRun,
	})
}

// run executes job, or queues it when a queue is configured. Dry runs are
// always answered synchronously.
func (h *Handler) run(c *gin.Context, job *queue.Job) {
	if _, err := h.app.Conn(job.Connection); err != nil {
		h.writeError(c, err)
		return
	}

	if h.app.Queue != nil && !job.DryRun {
		executedBy := "api_user"
		if h.isManualExecution(c) {
			executedBy = "frontend_user"
		}
		job.Metadata = map[string]interface{}{
			"request_id":  c.GetString("request_id"),
			"executed_by": executedBy,
		}
		if err := job.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error(), Kind: string(client.KindValidation)})
			return
		}
		if err := h.app.Queue.PublishJob(c.Request.Context(), job); err != nil {
			logger.Errorf("Failed to queue migration job: %v", err)
			c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Error: err.Error(), Kind: string(client.KindTransport)})
			return
		}
		c.JSON(http.StatusAccepted, dto.QueuedResponse{Queued: true, JobID: job.ID})
		return
	}

	res, err := h.app.Run(h.setExecutionContext(c), job)
	response := dto.MigrateResponse{
		Success: err == nil,
		DryRun:  res.DryRun,
		Applied: res.Versions,
		Pending: res.Planned,
	}
	if err == nil {
		c.JSON(http.StatusOK, response)
		return
	}

	response.Error = err.Error()
	response.Kind = string(client.KindOf(err))
	var migErr *executor.MigrationError
	if errors.As(err, &migErr) {
		response.Failed = &migErr.Version
	}
	c.JSON(statusForError(err), response)
}

// migrationStatus reports every version of a connection
func (h *Handler) migrationStatus(c *gin.Context) {
	name := c.Query("connection")
	conn, err := h.app.Conn(name)
	if err != nil {
		h.writeError(c, err)
		return
	}

	statuses, err := h.app.Engine.Status(c.Request.Context(), conn, h.app.Registry)
	if err != nil {
		h.writeError(c, err)
		return
	}

	response := dto.MigrationStatusResponse{
		Connection: name,
		Database:   conn.Database(),
		Latest:     h.app.Registry.Latest(),
		Items:      make([]dto.MigrationStatusItem, 0, len(statuses)),
	}
	for _, st := range statuses {
		item := dto.MigrationStatusItem{
			Version: st.Version,
			Name:    st.Name,
			Applied: st.Applied,
			Unknown: st.Unknown,
		}
		if st.Applied {
			if !st.AppliedAt.IsZero() {
				item.AppliedAt = st.AppliedAt.UTC().Format(time.RFC3339)
			}
			if st.Version > response.Current {
				response.Current = st.Version
			}
		}
		response.Items = append(response.Items, item)
	}

	c.JSON(http.StatusOK, response)
}

// pendingMigrations lists versions not yet applied
func (h *Handler) pendingMigrations(c *gin.Context) {
	name := c.Query("connection")
	conn, err := h.app.Conn(name)
	if err != nil {
		h.writeError(c, err)
		return
	}

	pending, err := h.app.Engine.Pending(c.Request.Context(), conn, h.app.Registry)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.PendingResponse{Connection: name, Pending: pending})
}

// migrationHistory returns execution records, newest first
func (h *Handler) migrationHistory(c *gin.Context) {
	if h.app.History == nil {
		c.JSON(http.StatusNotImplemented, dto.ErrorResponse{Error: "execution history is not enabled (set ARCADE_HISTORY_DSN)"})
		return
	}

	var filters dto.HistoryFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error(), Kind: string(client.KindValidation)})
		return
	}

	records, err := h.app.History.History(c.Request.Context(), &state.HistoryFilters{
		Connection: filters.Connection,
		Database:   filters.Database,
		Status:     filters.Status,
		Version:    filters.Version,
		Limit:      filters.Limit,
	})
	if err != nil {
		logger.Errorf("Failed to read execution history: %v", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: err.Error()})
		return
	}

	items := make([]dto.MigrationHistoryItem, 0, len(records))
	for _, rec := range records {
		items = append(items, dto.MigrationHistoryItem{
			ID:               rec.ID,
			Connection:       rec.Connection,
			Database:         rec.Database,
			Version:          rec.Version,
			Name:             rec.Name,
			Direction:        rec.Direction,
			Status:           rec.Status,
			ErrorMessage:     rec.ErrorMessage,
			ExecutedBy:       rec.ExecutedBy,
			ExecutionMethod:  rec.ExecutionMethod,
			ExecutionContext: rec.ExecutionContext,
			DurationMS:       rec.Duration.Milliseconds(),
			AppliedAt:        rec.AppliedAt.UTC().Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, dto.MigrationHistoryResponse{Items: items, Total: len(items)})
}

// listConnections lists the configured connections
func (h *Handler) listConnections(c *gin.Context) {
	items := make([]dto.ConnectionItem, 0, len(h.app.Conns))
	for name, conn := range h.app.Conns {
		items = append(items, dto.ConnectionItem{Name: name, URL: conn.BaseURL(), Database: conn.Database()})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

// Health handles health check requests
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := gin.H{}
	healthy := true
	for name, conn := range h.app.Conns {
		if err := conn.Ready(ctx); err != nil {
			healthy = false
			checks[name] = err.Error()
		} else {
			checks[name] = "ok"
		}
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "checks": checks})
}

//go:embed openapi.yaml
var openAPISpecYAML []byte

// OpenAPISpec serves the OpenAPI specification in YAML format
func (h *Handler) OpenAPISpec(c *gin.Context) {
	c.Data(http.StatusOK, "application/x-yaml", openAPISpecYAML)
}

// OpenAPISpecJSON serves the OpenAPI specification in JSON format
func (h *Handler) OpenAPISpecJSON(c *gin.Context) {
	var spec map[string]interface{}
	if err := yaml.Unmarshal(openAPISpecYAML, &spec); err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Failed to parse OpenAPI spec"})
		return
	}
	c.JSON(http.StatusOK, spec)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	c.JSON(statusForError(err), dto.ErrorResponse{Error: err.Error(), Kind: string(client.KindOf(err))})
}

// statusForError maps a client error kind to the API status code. Auth
// failures against the database are the server's problem, not the caller's.
func statusForError(err error) int {
	switch client.KindOf(err) {
	case client.KindValidation:
		return http.StatusBadRequest
	case client.KindAuth:
		return http.StatusBadGateway
	case client.KindNotFound:
		return http.StatusNotFound
	case client.KindConflict:
		return http.StatusConflict
	case client.KindTransport:
		return http.StatusServiceUnavailable
	default:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusInternalServerError
	}
}
