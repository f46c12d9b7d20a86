package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZulAmi/proofwork-reputation/internal/config"
	"github.com/ZulAmi/proofwork-reputation/internal/domain"
	apperrors "github.com/ZulAmi/proofwork-reputation/internal/errors"
	"github.com/ZulAmi/proofwork-reputation/internal/events"
	"github.com/ZulAmi/proofwork-reputation/internal/hub"
)

type stubService struct {
	getFn       func(ctx context.Context, subjectID string) (domain.ReputationSnapshot, error)
	recomputeFn func(ctx context.Context, subjectID string) (domain.ReputationSnapshot, error)
	analyzeFn   func(ctx context.Context, subjectID string) (*domain.AnalyzeReport, error)
}

func (s *stubService) GetReputation(ctx context.Context, subjectID string) (domain.ReputationSnapshot, error) {
	return s.getFn(ctx, subjectID)
}

func (s *stubService) RecomputeNow(ctx context.Context, subjectID string) (domain.ReputationSnapshot, error) {
	return s.recomputeFn(ctx, subjectID)
}

func (s *stubService) AnalyzeReviews(ctx context.Context, subjectID string) (*domain.AnalyzeReport, error) {
	return s.analyzeFn(ctx, subjectID)
}

func testServer(t *testing.T, service domain.ReputationService, listener *events.Listener) *Server {
	t.Helper()

	cfg := &config.Config{Port: "0", APIKey: "test-key", MaxClientsPerSubject: 10}
	h := hub.NewHub(nil, clockwork.NewRealClock(), cfg.MaxClientsPerSubject)
	t.Cleanup(func() { h.Stop() })

	if listener == nil {
		listener = events.NewListener(16, func(context.Context, domain.ReviewEvent) {})
	}
	return NewServer(cfg, service, h, listener)
}

func doRequest(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func TestTrustScoreEndpoint(t *testing.T) {
	service := &stubService{
		getFn: func(_ context.Context, subjectID string) (domain.ReputationSnapshot, error) {
			return domain.ReputationSnapshot{SubjectID: subjectID, TrustScore: 83, ReviewCount: 7}, nil
		},
	}
	srv := testServer(t, service, nil)

	rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/freelancers/0xfreelancer/trust-score", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot domain.ReputationSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Equal(t, "0xfreelancer", snapshot.SubjectID)
	assert.Equal(t, 83, snapshot.TrustScore)
	assert.Equal(t, 7, snapshot.ReviewCount)
}

func TestTrustScoreEndpoint_SourceUnavailable(t *testing.T) {
	service := &stubService{
		getFn: func(context.Context, string) (domain.ReputationSnapshot, error) {
			return domain.ReputationSnapshot{}, apperrors.External("review source unreachable", nil)
		},
	}
	srv := testServer(t, service, nil)

	rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/freelancers/0xfreelancer/trust-score", nil))
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var body apperrors.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, apperrors.TypeExternal, body.Type)
}

func TestTrustScoreEndpoint_ForceRefreshRequiresAPIKey(t *testing.T) {
	recomputed := false
	service := &stubService{
		getFn: func(context.Context, string) (domain.ReputationSnapshot, error) {
			return domain.ReputationSnapshot{}, nil
		},
		recomputeFn: func(_ context.Context, subjectID string) (domain.ReputationSnapshot, error) {
			recomputed = true
			return domain.ReputationSnapshot{SubjectID: subjectID, TrustScore: 91}, nil
		},
	}
	srv := testServer(t, service, nil)

	// Without key
	rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/freelancers/0xf/trust-score?force_refresh=true", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, recomputed)

	// Wrong key
	req := httptest.NewRequest(http.MethodGet, "/api/freelancers/0xf/trust-score?force_refresh=true", nil)
	req.Header.Set(apiKeyHeader, "wrong")
	rec = doRequest(srv, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Correct key
	req = httptest.NewRequest(http.MethodGet, "/api/freelancers/0xf/trust-score?force_refresh=true", nil)
	req.Header.Set(apiKeyHeader, "test-key")
	rec = doRequest(srv, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, recomputed)
}

func TestAnalyzeEndpoint(t *testing.T) {
	service := &stubService{
		analyzeFn: func(_ context.Context, subjectID string) (*domain.AnalyzeReport, error) {
			return &domain.AnalyzeReport{SubjectID: subjectID, ReviewCount: 3, AverageRating: 4.2}, nil
		},
	}
	srv := testServer(t, service, nil)

	rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/api/freelancers/0xf/reviews/analyze", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var report domain.AnalyzeReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 3, report.ReviewCount)
	assert.InDelta(t, 4.2, report.AverageRating, 1e-9)
}

func webhookRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/reviews", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestReviewWebhook_Accepted(t *testing.T) {
	received := make(chan domain.ReviewEvent, 1)
	listener := events.NewListener(16, func(_ context.Context, event domain.ReviewEvent) {
		received <- event
	})
	listener.Start(context.Background())
	t.Cleanup(listener.Stop)

	srv := testServer(t, &stubService{}, listener)

	rec := doRequest(srv, webhookRequest(`{
		"reviewerId": "0xclient",
		"subjectId": "0xfreelancer",
		"rating": 5,
		"comment": "great work",
		"timestamp": "2026-03-15T12:00:00Z"
	}`))
	require.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case event := <-received:
		assert.Equal(t, "0xfreelancer", event.SubjectID)
		assert.Equal(t, 5, event.Rating)
	case <-time.After(time.Second):
		t.Fatal("event never reached the handler")
	}
}

func TestReviewWebhook_InvalidEvent(t *testing.T) {
	srv := testServer(t, &stubService{}, nil)

	rec := doRequest(srv, webhookRequest(`{"reviewerId": "0xclient", "subjectId": "0xfreelancer", "rating": 9}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, webhookRequest(`{"reviewerId": "0xclient", "rating": 4}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReviewWebhook_MalformedBody(t *testing.T) {
	srv := testServer(t, &stubService{}, nil)

	rec := doRequest(srv, webhookRequest(`{not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReviewWebhook_QueueFull(t *testing.T) {
	// Listener never started, queue size 1.
	listener := events.NewListener(1, func(context.Context, domain.ReviewEvent) {})
	srv := testServer(t, &stubService{}, listener)

	body := `{"reviewerId": "0xclient", "subjectId": "0xfreelancer", "rating": 4, "timestamp": "2026-03-15T12:00:00Z"}`
	rec := doRequest(srv, webhookRequest(body))
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doRequest(srv, webhookRequest(body))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLivenessEndpoint(t *testing.T) {
	srv := testServer(t, &stubService{}, nil)

	rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadinessEndpoint(t *testing.T) {
	srv := testServer(t, &stubService{}, nil)
	srv.AddHealthCheck("always_ok", func(context.Context) error { return nil })

	rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadinessEndpoint_FailingCheck(t *testing.T) {
	srv := testServer(t, &stubService{}, nil)
	srv.AddHealthCheck("redis", func(context.Context) error {
		return context.DeadlineExceeded
	})

	rec := doRequest(srv, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "redis", body["failed_check"])
}

func TestWebSocketEndpoint(t *testing.T) {
	service := &stubService{}
	cfg := &config.Config{Port: "0", MaxClientsPerSubject: 10}
	h := hub.NewHub(nil, clockwork.NewRealClock(), cfg.MaxClientsPerSubject)
	t.Cleanup(func() { h.Stop() })
	srv := NewServer(cfg, service, h, events.NewListener(16, func(context.Context, domain.ReviewEvent) {}))

	ts := httptest.NewServer(srv.echo)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/reputation/0xfreelancer"
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	waitFor := func(expected int) bool {
		for i := 0; i < 100; i++ {
			if h.ClientCount("0xfreelancer") == expected {
				return true
			}
			time.Sleep(time.Millisecond)
		}
		return false
	}
	require.True(t, waitFor(1))

	h.Broadcast("0xfreelancer", domain.ReputationSnapshot{SubjectID: "0xfreelancer", TrustScore: 79})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var update domain.ReputationUpdate
	require.NoError(t, json.Unmarshal(msg, &update))
	assert.Equal(t, 79, update.Snapshot.TrustScore)

	// Attach to a second subject over the same connection.
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "subjectId": "0xother"}))
	waitOther := func() bool {
		for i := 0; i < 100; i++ {
			if h.ClientCount("0xother") == 1 {
				return true
			}
			time.Sleep(time.Millisecond)
		}
		return false
	}
	assert.True(t, waitOther())
}
