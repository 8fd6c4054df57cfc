// Package server exposes the dispatcher over an OpenAI-compatible HTTP
// facade.
package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultBodySizeLimit = 10 << 20

// Config holds server options.
type Config struct {
	// MasterKey, when set, is required as a Bearer token on API routes.
	MasterKey string
	// MetricsEnabled exposes Prometheus metrics on /metrics.
	MetricsEnabled bool
	// BodySizeLimit caps request bodies in bytes (default 10MB).
	BodySizeLimit int64
}

// Server wraps the Echo server.
type Server struct {
	echo    *echo.Echo
	handler *Handler
}

// New builds the HTTP server around a dispatcher.
func New(handler *Handler, logger *slog.Logger, cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(requestLogger(logger))

	bodyLimit := cfg.BodySizeLimit
	if bodyLimit <= 0 {
		bodyLimit = defaultBodySizeLimit
	}
	e.Use(middleware.BodyLimit(strconv.FormatInt(bodyLimit, 10)))

	skipAuth := []string{"/health"}
	if cfg.MetricsEnabled {
		skipAuth = append(skipAuth, "/metrics")
	}
	if cfg.MasterKey != "" {
		e.Use(AuthMiddleware(cfg.MasterKey, skipAuth))
	}

	e.GET("/health", handler.Health)
	if cfg.MetricsEnabled {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	e.GET("/v1/models", handler.ListModels)
	e.POST("/v1/chat/completions", handler.ChatCompletion)

	return &Server{echo: e, handler: handler}
}

// requestLogger logs one line per request through the process logger.
func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "err", v.Error)
				logger.Warn("request", attrs...)
				return nil
			}
			logger.Info("request", attrs...)
			return nil
		},
	})
}

// Start starts the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements http.Handler so the server works with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
