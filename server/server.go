// Package server exposes the observability surface: health, sync status,
// Prometheus metrics, and the offline fallback document.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/kvelle/parley/internal/profile"
	"github.com/kvelle/parley/metrics"
	"github.com/kvelle/parley/netcache"
	"github.com/kvelle/parley/sync"
)

type Server struct {
	e *echo.Echo

	Profile     *profile.Profile
	Coordinator *sync.Coordinator
	Queue       *sync.Queue
	Cache       *netcache.Transport
	Exporter    *metrics.Exporter
}

func NewServer(_ context.Context, instanceProfile *profile.Profile, coordinator *sync.Coordinator, queue *sync.Queue, cache *netcache.Transport, exporter *metrics.Exporter) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request", "method", v.Method, "uri", v.URI, "status", v.Status)
			return nil
		},
	}))
	e.Use(middleware.CORS())

	s := &Server{
		e:           e,
		Profile:     instanceProfile,
		Coordinator: coordinator,
		Queue:       queue,
		Cache:       cache,
		Exporter:    exporter,
	}

	e.GET("/healthz", s.healthz)
	e.GET("/offline", s.offline)
	if exporter != nil {
		e.GET("/metrics", echo.WrapHandler(exporter.Handler()))
	}

	apiGroup := e.Group("/api/v1")
	apiGroup.GET("/sync/status", s.syncStatus)
	apiGroup.POST("/sync/trigger", s.syncTrigger)
	apiGroup.POST("/cache/activate", s.cacheActivate)
	apiGroup.POST("/cache/urls", s.cacheURLs)

	return s, nil
}

func (s *Server) Start(_ context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	go func() {
		if err := s.e.Start(address); err != nil && err != http.ErrServerClosed {
			slog.Error("server stopped", "error", err)
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.e.Shutdown(ctx); err != nil {
		slog.Error("failed to shut down server", "error", err)
	}
	slog.Info("server shutdown complete")
}

func (s *Server) healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.Profile.Version,
	})
}

type syncStatusResponse struct {
	Online     bool   `json:"online"`
	Degraded   bool   `json:"degraded"`
	State      string `json:"state"`
	QueueDepth int    `json:"queueDepth"`

	LastSucceeded *int `json:"lastSucceeded,omitempty"`
	LastFailed    *int `json:"lastFailed,omitempty"`
}

func (s *Server) syncStatus(c echo.Context) error {
	depth := 0
	if pending, err := s.Queue.List(c.Request().Context()); err == nil {
		depth = len(pending)
	}

	resp := &syncStatusResponse{
		Online:     s.Coordinator.Online(),
		Degraded:   s.Coordinator.Degraded(),
		State:      s.Coordinator.State().String(),
		QueueDepth: depth,
	}
	if report := s.Coordinator.LastReport(); report != nil {
		resp.LastSucceeded = &report.Succeeded
		resp.LastFailed = &report.Failed
	}
	return c.JSON(http.StatusOK, resp)
}

// syncTrigger forces a drain pass. Intended as a development aid; the normal
// path is a connectivity event.
func (s *Server) syncTrigger(c echo.Context) error {
	report, err := s.Coordinator.Sync(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if report == nil {
		return c.JSON(http.StatusAccepted, map[string]string{"status": "pass already in flight"})
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) cacheActivate(c echo.Context) error {
	s.Cache.Send(netcache.Control{Kind: netcache.ControlSkipWaiting})
	return c.NoContent(http.StatusAccepted)
}

type cacheURLsRequest struct {
	URLs []string `json:"urls"`
}

func (s *Server) cacheURLs(c echo.Context) error {
	req := &cacheURLsRequest{}
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.URLs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "urls is required")
	}
	s.Cache.Send(netcache.Control{Kind: netcache.ControlCacheURLs, URLs: req.URLs})
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) offline(c echo.Context) error {
	return c.HTML(http.StatusOK, offlineDocument)
}
