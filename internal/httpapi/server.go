package httpapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"DigestAgent/internal/ports"
	"DigestAgent/internal/usecase"
)

// RefreshService is the on-demand trigger and status query surface.
type RefreshService interface {
	RequestRefresh(ctx context.Context, topics []string, date string) []usecase.RefreshRequestStatus
	GetLeaseStatus(ctx context.Context, topic, date string) (usecase.LeaseStatus, error)
}

// Deps wires the handlers.
type Deps struct {
	Refresher RefreshService
	Users     ports.UserDirectory
	News      ports.NewsRepository
	Logs      ports.SystemLogReader
	Location  *time.Location
	Now       func() time.Time
	Logger    *slog.Logger
}

// NewServer builds the echo instance with every route registered.
func NewServer(deps Deps) *echo.Echo {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	logger := deps.Logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return path == "/healthz" || path == "/metrics"
		},
		LogStatus:   true,
		LogURI:      true,
		LogError:    true,
		LogMethod:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			rctx := c.Request().Context()
			if v.Error == nil {
				logger.InfoContext(rctx, "request completed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds())
			} else {
				logger.ErrorContext(rctx, "request failed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds(),
					"error", v.Error.Error())
			}
			return nil
		},
	}))
	e.Use(middleware.Recover())

	h := &Handler{deps: deps}
	e.GET("/healthz", h.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	api.POST("/refresh", h.TriggerRefresh)
	api.GET("/refresh-status", h.RefreshStatus)
	api.GET("/stats", h.Stats)
	api.GET("/logs", h.Logs)

	return e
}
