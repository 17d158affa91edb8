package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	httpapi "github.com/toolsascode/arcade/internal/api/http"
	"github.com/toolsascode/arcade/internal/app"
	"github.com/toolsascode/arcade/internal/config"
	"github.com/toolsascode/arcade/internal/logger"
	"github.com/toolsascode/arcade/internal/queue"
	"github.com/toolsascode/arcade/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(true); err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	logger.Info("Initializing Arcade server...")

	a, err := app.New(context.Background(), cfg, app.WithQueue())
	if err != nil {
		logger.Fatalf("Failed to initialize: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warnf("Error during shutdown: %v", err)
		}
	}()

	stopWorker := startInProcessWorker(a)
	router := newRouter(a)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Starting HTTP server on port %s", cfg.Server.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	logger.Info("Arcade server started successfully")
	logger.Infof("HTTP API available at http://localhost:%s/api/v1", cfg.Server.HTTPPort)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warnf("HTTP server forced to shutdown: %v", err)
	}
	stopWorker()

	logger.Info("Server exited")
}

func newRouter(a *app.App) *gin.Engine {
	router := gin.New()

	// Custom logger middleware that skips health check endpoints
	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		if param.Path == "/health" || param.Path == "/api/v1/health" {
			return ""
		}
		return fmt.Sprintf("[GIN] %s | %3d | %13v | %15s | %-7s %s\n",
			param.TimeStamp.Format("2006/01/02 - 15:04:05"),
			param.StatusCode,
			param.Latency,
			param.ClientIP,
			param.Method,
			param.Path,
		)
	}))
	router.Use(gin.Recovery())
	router.Use(httpapi.RequestID())

	// CORS must run before the routes
	router.Use(cors(a.Config.Server.AllowedOrigins))

	handler := httpapi.NewHandler(a)
	handler.RegisterRoutes(router)

	// /health mirrors /api/v1/health for load balancers
	router.GET("/health", handler.Health)
	return router
}

// cors answers browsers from the allowed origins only. A listed origin is
// echoed with credentials; "*" allows the rest without them.
func cors(allowed []string) gin.HandlerFunc {
	listed := make(map[string]bool, len(allowed))
	wildcard := false
	for _, origin := range allowed {
		if origin == "*" {
			wildcard = true
			continue
		}
		listed[strings.TrimRight(origin, "/")] = true
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		if origin := c.Request.Header.Get("Origin"); origin != "" {
			h.Add("Vary", "Origin")
			switch {
			case listed[origin]:
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
			case wildcard:
				h.Set("Access-Control-Allow-Origin", "*")
			}
		}
		if h.Get("Access-Control-Allow-Origin") != "" {
			h.Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Client-Type, X-Request-ID")
			h.Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")
			h.Set("Access-Control-Max-Age", "86400")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// startInProcessWorker consumes the memory queue inside the server, since no
// other process can reach it. Broker queues are left to cmd/worker. The
// returned func stops the worker and waits for the job in flight.
func startInProcessWorker(a *app.App) (stop func()) {
	if a.Queue == nil || !strings.EqualFold(a.Config.Queue.Type, "memory") {
		return func() {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		err := worker.NewWorker(a, a.Queue).Start(ctx)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, queue.ErrClosed) {
			logger.Errorf("In-process worker stopped: %v", err)
		}
	}()
	logger.Info("Memory queue enabled - jobs run by the in-process worker")

	return func() {
		cancel()
		<-done
	}
}
