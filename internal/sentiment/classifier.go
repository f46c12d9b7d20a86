// Package sentiment scores review comments via an external NLP service with a
// deterministic rating-derived fallback for when the service is unavailable.
package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/ZulAmi/proofwork-reputation/internal/metrics"
)

// Client calls the sentiment analysis HTTP API. It is safe for concurrent
// use; a token-bucket limiter caps the request rate across all callers.
type Client struct {
	baseURL    string
	token      string
	timeout    time.Duration
	limiter    *rate.Limiter
	httpClient *http.Client
}

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Sentiment float64 `json:"sentiment"`
}

// NewClient creates a sentiment client. baseURL may be empty, in which case
// every Classify call fails immediately and callers fall back to the rating
// proxy.
func NewClient(baseURL, token string, timeout time.Duration, requestsPerSecond float64) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		timeout:    timeout,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), int(requestsPerSecond)),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Classify scores a comment in [-1, 1]. Errors are expected during outages;
// callers substitute the rating proxy and never retry within a pass.
func (c *Client) Classify(ctx context.Context, text string) (float64, error) {
	if c.baseURL == "" {
		metrics.ClassifierFallbacksTotal.WithLabelValues("not_configured").Inc()
		return 0, fmt.Errorf("sentiment service not configured")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		metrics.ClassifierRequestsTotal.WithLabelValues("rate_limited").Inc()
		return 0, fmt.Errorf("sentiment rate limit wait: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return 0, fmt.Errorf("marshaling sentiment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/sentiment", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("creating sentiment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ClassifierDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ClassifierRequestsTotal.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("calling sentiment service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.ClassifierRequestsTotal.WithLabelValues("error").Inc()
		io.Copy(io.Discard, resp.Body)
		return 0, fmt.Errorf("sentiment service returned status %d", resp.StatusCode)
	}

	var parsed classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		metrics.ClassifierRequestsTotal.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("decoding sentiment response: %w", err)
	}

	if parsed.Sentiment < -1 || parsed.Sentiment > 1 {
		metrics.ClassifierRequestsTotal.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("sentiment %f outside [-1, 1]", parsed.Sentiment)
	}

	metrics.ClassifierRequestsTotal.WithLabelValues("ok").Inc()
	return parsed.Sentiment, nil
}

// RatingProxy derives a stand-in sentiment from the star rating when the
// classifier is unavailable. Maps 1..5 onto [-1, 1] linearly.
func RatingProxy(rating int) float64 {
	return (float64(rating) - 3) / 2
}
