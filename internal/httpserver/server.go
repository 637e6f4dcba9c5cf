// Package httpserver exposes recent classification events, service health
// and Prometheus metrics over HTTP.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	apperrors "github.com/tphakala/ambient-go/internal/errors"
	"github.com/tphakala/ambient-go/internal/events"
	"github.com/tphakala/ambient-go/internal/logger"
)

const shutdownTimeout = 5 * time.Second

// Server is the HTTP API server.
type Server struct {
	echo      *echo.Echo
	listen    string
	history   *events.History
	metrics   http.Handler
	device    string
	startTime time.Time
	log       logger.Logger
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithDevice sets the device name reported by the health endpoint.
func WithDevice(name string) ServerOption {
	return func(s *Server) {
		s.device = name
	}
}

// WithLogger overrides the package logger.
func WithLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		s.log = l
	}
}

// New creates a server listening on listen and serving history.
func New(listen string, history *events.History, opts ...ServerOption) *Server {
	s := &Server{
		listen:    listen,
		history:   history,
		startTime: time.Now(),
		log:       GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = 10 * time.Second
	s.echo.Server.WriteTimeout = 30 * time.Second
	s.echo.Server.IdleTimeout = 60 * time.Second

	s.echo.Use(echomw.Recover())
	s.echo.Use(newRequestLogger(s.log))

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api/v1")
	api.GET("/events", s.listEvents)
	api.GET("/events/latest", s.latestEvent)
	api.GET("/health", s.healthCheck)

	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics))
	}
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Go(func() {
		s.log.Info("HTTP server starting", logger.String("address", s.listen))
		if err := s.echo.Start(s.listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	})

	select {
	case err := <-errCh:
		wg.Wait()
		return apperrors.New(err).
			Component("httpserver").
			Category(apperrors.CategoryNetwork).
			Context("address", s.listen).
			Build()
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.echo.Shutdown(shutdownCtx)
	wg.Wait()
	s.log.Info("HTTP server stopped")
	return err
}

// listEvents returns the stored events, oldest first. The optional limit
// query parameter keeps only the newest n.
func (s *Server) listEvents(c echo.Context) error {
	list := s.history.Snapshot()

	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a non-negative integer")
		}
		if limit < len(list) {
			list = list[len(list)-limit:]
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"events": list,
		"count":    len(list),
		"capacity": s.history.Cap(),
		"total":    s.history.Total(),
	})
}

func (s *Server) latestEvent(c echo.Context) error {
	e, ok := s.history.Latest()
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "no events yet")
	}
	return c.JSON(http.StatusOK, e)
}

func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)

	resp := map[string]any{
		"status":         "healthy",
		"device":         s.device,
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"events_total":   s.history.Total(),
		"timestamp":      time.Now().Format(time.RFC3339),
	}
	if e, ok := s.history.Latest(); ok {
		resp["last_event"] = e.Timestamp.Format(time.RFC3339)
	}
	return c.JSON(http.StatusOK, resp)
}
