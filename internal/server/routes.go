package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Query API
	s.echo.GET("/api/freelancers/:subject/trust-score", s.handleTrustScore)
	s.echo.GET("/api/freelancers/:subject/reviews/analyze", s.handleAnalyzeReviews)

	// Ledger feed webhook
	s.echo.POST("/webhooks/reviews", s.handleReviewWebhook)

	// Live subscriptions
	s.echo.GET("/ws/reputation/:subject", s.handleWebSocket)
}
