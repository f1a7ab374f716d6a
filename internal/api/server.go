// Package api exposes the resolver over HTTP.
package api

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"poolscope/internal/resolver"
)

// Server hosts the pools API.
type Server struct {
	echo   *echo.Echo
	logger *zap.Logger
}

// NewServer wires routes and middleware. registry may be nil to skip the
// /metrics endpoint.
func NewServer(res *resolver.Resolver, registry *prometheus.Registry, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(requestLogger(logger))

	handler := &PoolsHandler{resolver: res}
	handler.Register(e)

	if registry != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	return &Server{echo: e, logger: logger}
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("api listening", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// requestLogger tags each request with an ID and logs its outcome.
func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := uuid.NewString()
			c.Response().Header().Set("X-Request-Id", requestID)

			started := time.Now()
			err := next(c)

			logger.Info("request",
				zap.String("id", requestID),
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.Int("status", c.Response().Status),
				zap.Duration("elapsed", time.Since(started)),
			)
			return err
		}
	}
}
