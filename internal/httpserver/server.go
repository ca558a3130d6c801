// Package httpserver exposes liveness and connection lookups over HTTP.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sheraliortiqboyev4-del/spy-bot/identity"
	"github.com/sheraliortiqboyev4-del/spy-bot/shadow"
)

type Connections interface {
	Resolve(ctx context.Context, handle string) (int64, error)
	Connections() []identity.ConnectionRecord
	Pending() int
}

type CacheStats interface {
	Stats() shadow.Stats
}

type Options struct {
	Bind      string
	Port      int
	StartedAt time.Time
	Logger    *slog.Logger
}

type Server struct {
	echo   *echo.Echo
	conns  Connections
	cache  CacheStats
	opts   Options
	logger *slog.Logger
}

func New(conns Connections, cache CacheStats, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if strings.TrimSpace(opts.Bind) == "" {
		opts.Bind = "127.0.0.1"
	}
	if opts.Port <= 0 {
		opts.Port = 8787
	}
	if opts.StartedAt.IsZero() {
		opts.StartedAt = time.Now()
	}
	s := &Server{conns: conns, cache: cache, opts: opts, logger: opts.Logger}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug("http_request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
			)
			return nil
		},
	}))
	e.GET("/healthz", s.Health)
	e.GET("/v1/connections", s.ListConnections)
	e.GET("/v1/connections/:handle", s.GetConnection)
	s.echo = e
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Addr() string {
	return net.JoinHostPort(s.opts.Bind, strconv.Itoa(s.opts.Port))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http_server_start", "addr", s.Addr())
		errCh <- s.echo.Start(s.Addr())
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

type healthResponse struct {
	OK                   bool  `json:"ok"`
	Connections          int   `json:"connections"`
	PendingRegistrations int   `json:"pending_registrations"`
	CachedMessages       int   `json:"cached_messages"`
	Conversations        int   `json:"conversations"`
	UptimeSeconds        int64 `json:"uptime_seconds"`
}

// Health reports liveness and a few counters.
// GET /healthz
func (s *Server) Health(c echo.Context) error {
	stats := s.cache.Stats()
	return c.JSON(http.StatusOK, healthResponse{
		OK:                   true,
		Connections:          len(s.conns.Connections()),
		PendingRegistrations: s.conns.Pending(),
		CachedMessages:       stats.Messages,
		Conversations:        stats.Partitions,
		UptimeSeconds:        int64(time.Since(s.opts.StartedAt).Seconds()),
	})
}

type connectionResponse struct {
	Handle    string    `json:"handle"`
	OwnerID   int64     `json:"owner_id"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ListConnections returns every registered connection.
// GET /v1/connections
func (s *Server) ListConnections(c echo.Context) error {
	recs := s.conns.Connections()
	out := make([]connectionResponse, 0, len(recs))
	for _, r := range recs {
		out = append(out, connectionResponse{Handle: r.Handle, OwnerID: r.OwnerID, CreatedAt: r.CreatedAt})
	}
	return c.JSON(http.StatusOK, map[string]any{"connections": out})
}

// GetConnection resolves one handle to its owner.
// GET /v1/connections/:handle
func (s *Server) GetConnection(c echo.Context) error {
	handle := strings.TrimSpace(c.Param("handle"))
	if handle == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "handle is required"})
	}
	owner, err := s.conns.Resolve(c.Request().Context(), handle)
	switch {
	case errors.Is(err, identity.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": "connection not found"})
	case err != nil:
		s.logger.Warn("http_resolve_error", "handle", handle, "error", err.Error())
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "resolve failed"})
	}
	return c.JSON(http.StatusOK, connectionResponse{Handle: handle, OwnerID: owner})
}
