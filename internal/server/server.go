// Package server exposes the orchestrator over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ppiankov/applytrail/internal/logging"
	"github.com/ppiankov/applytrail/internal/model"
	"github.com/ppiankov/applytrail/internal/pipeline"
	"github.com/ppiankov/applytrail/internal/store"
)

// maxTrackedRuns bounds how many finished runs stay queryable
const maxTrackedRuns = 16

// SettingsStore is the settings persistence the server edits
type SettingsStore interface {
	Load(ctx context.Context) (model.Settings, error)
	Update(ctx context.Context, fn func(*model.Settings) error) (model.Settings, error)
}

// Deps are the collaborators of a Server
type Deps struct {
	Orchestrator *pipeline.Orchestrator
	Records      store.RecordStore
	Settings     SettingsStore
	Logger       *zap.Logger
}

// Config configures the listener
type Config struct {
	Addr string
}

type trackedRun struct {
	run    *pipeline.Run
	events *broadcaster
}

// Server is the HTTP control surface
type Server struct {
	orch     *pipeline.Orchestrator
	records  store.RecordStore
	settings SettingsStore
	logger   *zap.Logger
	cfg      Config
	engine   *gin.Engine

	// runCtx outlives individual requests; runs stop when it is cancelled
	runCtx context.Context

	mu    sync.Mutex
	runs  map[string]*trackedRun
	order []string
}

// New creates a server
func New(deps Deps, cfg Config) *Server {
	s := &Server{
		orch:     deps.Orchestrator,
		records:  deps.Records,
		settings: deps.Settings,
		logger:   logging.OrNop(deps.Logger),
		cfg:      cfg,
		runCtx:   context.Background(),
		runs:     make(map[string]*trackedRun),
	}
	s.engine = s.setupRouter()
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
// Cancelling ctx also aborts runs started over HTTP.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.runCtx = ctx

	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", zap.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(s.logger))

	router.GET("/health", s.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/runs", s.startRun)
		v1.GET("/runs/active", s.activeRun)
		v1.POST("/runs/active/cancel", s.cancelRun)
		v1.GET("/runs/:id", s.getRun)
		v1.GET("/runs/:id/events", s.streamEvents)

		v1.GET("/records", s.listRecords)
		v1.POST("/export", s.export)
		v1.GET("/stats", s.stats)
		v1.DELETE("/seen", s.clearSeen)

		v1.GET("/settings", s.getSettings)
		v1.PUT("/settings", s.putSettings)
	}

	return router
}

func (s *Server) track(run *pipeline.Run, events *broadcaster) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = &trackedRun{run: run, events: events}
	s.order = append(s.order, run.ID)
	for len(s.order) > maxTrackedRuns {
		delete(s.runs, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *Server) lookup(id string) (*trackedRun, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, ok := s.runs[id]
	return tr, ok
}

// requestLogger logs one line per request
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// statusFor maps the error taxonomy onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrRunActive):
		return http.StatusConflict
	case errors.Is(err, model.ErrInvalidSettings):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrAuth):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}
