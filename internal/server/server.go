// Package server exposes the engine's HTTP surface: the trust score query
// API, the review webhook, the websocket subscription endpoint, and the
// health and metrics endpoints.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ZulAmi/proofwork-reputation/internal/config"
	"github.com/ZulAmi/proofwork-reputation/internal/domain"
	"github.com/ZulAmi/proofwork-reputation/internal/events"
	"github.com/ZulAmi/proofwork-reputation/internal/hub"
)

// HealthCheck verifies one dependency for the readiness probe.
type HealthCheck func(ctx context.Context) error

type Server struct {
	echo      *echo.Echo
	config    *config.Config
	service   domain.ReputationService
	hub       *hub.Hub
	listener  *events.Listener
	checks    map[string]HealthCheck
	startTime time.Time
}

func NewServer(cfg *config.Config, service domain.ReputationService, h *hub.Hub, listener *events.Listener) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	srv := &Server{
		echo:      e,
		config:    cfg,
		service:   service,
		hub:       h,
		listener:  listener,
		checks:    make(map[string]HealthCheck),
		startTime: time.Now(),
	}
	srv.registerRoutes()
	return srv
}

// AddHealthCheck registers a named dependency check for /health/ready.
func (s *Server) AddHealthCheck(name string, check HealthCheck) {
	s.checks[name] = check
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
