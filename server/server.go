// Package server hosts the HTTP surface of the agent: the conversation
// endpoint, health checks, and the metrics scrape target.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/luoshen/linkmate/ai/metrics"
	"github.com/luoshen/linkmate/internal/profile"
	apiv1 "github.com/luoshen/linkmate/server/router/api/v1"
)

// Server wraps the echo instance and its lifecycle.
type Server struct {
	profile *profile.Profile
	echo    *echo.Echo
}

// NewServer builds the HTTP server around an assembled conversation service.
func NewServer(_ context.Context, instanceProfile *profile.Profile, api *apiv1.APIV1Service, exporter *metrics.PrometheusExporter) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("http: request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
			)
			return nil
		},
	}))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if exporter != nil {
		e.GET("/metrics", echo.WrapHandler(exporter.Handler()))
	}
	api.Register(e)

	return &Server{profile: instanceProfile, echo: e}, nil
}

// Start begins serving. It returns once the listener stops.
func (s *Server) Start(_ context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.profile.Addr, s.profile.Port)
	slog.Info("server: listening", "addr", addr, "mode", s.profile.Mode)
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests before stopping.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		slog.Error("server: failed to shutdown gracefully", "error", err)
	}
	slog.Info("server: stopped")
}
