package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ZulAmi/proofwork-reputation/internal/domain"
	apperrors "github.com/ZulAmi/proofwork-reputation/internal/errors"
	"github.com/ZulAmi/proofwork-reputation/internal/events"
)

const apiKeyHeader = "X-API-Key"

// respondError maps a service error onto the structured JSON error body.
func respondError(c echo.Context, err error) error {
	structured := apperrors.AsStructured(err)
	if structured.Type == apperrors.TypeInternal {
		slog.Error("Request failed", "path", c.Request().URL.Path, "error", err)
	}
	return c.JSON(structured.HTTPStatus(), structured.ToResponse())
}

func (s *Server) handleTrustScore(c echo.Context) error {
	subjectID := c.Param("subject")
	if subjectID == "" {
		return respondError(c, apperrors.Validation("subject id is required"))
	}

	ctx := c.Request().Context()

	if c.QueryParam("force_refresh") == "true" {
		if s.config.APIKey == "" || c.Request().Header.Get(apiKeyHeader) != s.config.APIKey {
			return c.JSON(http.StatusUnauthorized, apperrors.Response{
				Error: "valid API key required for force_refresh",
				Type:  apperrors.TypeValidation,
			})
		}
		snapshot, err := s.service.RecomputeNow(ctx, subjectID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(http.StatusOK, snapshot)
	}

	snapshot, err := s.service.GetReputation(ctx, subjectID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, snapshot)
}

func (s *Server) handleAnalyzeReviews(c echo.Context) error {
	subjectID := c.Param("subject")
	if subjectID == "" {
		return respondError(c, apperrors.Validation("subject id is required"))
	}

	report, err := s.service.AnalyzeReviews(c.Request().Context(), subjectID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// handleReviewWebhook accepts one "review submitted" notification. The body
// mirrors the feed schema; delivery is at-least-once so the caller may
// retry on 503.
func (s *Server) handleReviewWebhook(c echo.Context) error {
	var event domain.ReviewEvent
	if err := c.Bind(&event); err != nil {
		return respondError(c, apperrors.Validation("malformed review event"))
	}

	if err := s.listener.Submit(event); err != nil {
		if errors.Is(err, events.ErrQueueFull) {
			return c.JSON(http.StatusServiceUnavailable, apperrors.Response{
				Error: "event queue full, retry later",
				Type:  apperrors.TypeInternal,
			})
		}
		return respondError(c, apperrors.Validation(err.Error()))
	}
	return c.JSON(http.StatusAccepted, map[string]string{"status": "accepted"})
}
