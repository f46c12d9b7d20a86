// Package reviews provides the durable review sources the engine aggregates
// from: the ledger indexer HTTP API and a direct Postgres mirror.
package reviews

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ZulAmi/proofwork-reputation/internal/domain"
	"github.com/ZulAmi/proofwork-reputation/internal/errors"
	"github.com/ZulAmi/proofwork-reputation/internal/metrics"
)

// HTTPSource reads reviews from the ledger indexer's REST API.
type HTTPSource struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type reviewRecord struct {
	SubjectID   string    `json:"subjectId"`
	ReviewerID  string    `json:"reviewerId"`
	Rating      int       `json:"rating"`
	Comment     string    `json:"comment"`
	SubmittedAt time.Time `json:"submittedAt"`
}

type reviewsEnvelope struct {
	Data struct {
		Reviews []reviewRecord `json:"reviews"`
	} `json:"data"`
}

type profilesEnvelope struct {
	Data struct {
		Reviewers []domain.ReviewerProfile `json:"reviewers"`
	} `json:"data"`
}

// FetchReviews returns the full review set for a subject. Unavailability of
// the indexer is a hard failure for the aggregation pass.
func (s *HTTPSource) FetchReviews(ctx context.Context, subjectID string) ([]domain.Review, error) {
	endpoint := fmt.Sprintf("%s/freelancers/%s/reviews", s.baseURL, url.PathEscape(subjectID))

	var envelope reviewsEnvelope
	if err := s.getJSON(ctx, endpoint, &envelope); err != nil {
		return nil, errors.External("review source unreachable", fmt.Errorf("%w: %w", domain.ErrReviewSourceUnavailable, err))
	}

	reviews := make([]domain.Review, 0, len(envelope.Data.Reviews))
	for _, rec := range envelope.Data.Reviews {
		review, ok := sanitize(rec)
		if !ok {
			metrics.InvalidReviewsDropped.Inc()
			slog.Warn("Dropping malformed review record",
				"subjectId", subjectID,
				"reviewerId", rec.ReviewerID,
				"rating", rec.Rating,
			)
			continue
		}
		reviews = append(reviews, review)
	}
	return reviews, nil
}

// FetchReviewerProfiles returns the profiles it can resolve. Missing
// reviewers are simply absent from the map; callers use default credibility.
func (s *HTTPSource) FetchReviewerProfiles(ctx context.Context, reviewerIDs []string) (map[string]domain.ReviewerProfile, error) {
	if len(reviewerIDs) == 0 {
		return map[string]domain.ReviewerProfile{}, nil
	}

	endpoint := fmt.Sprintf("%s/reviewers?ids=%s", s.baseURL, url.QueryEscape(strings.Join(reviewerIDs, ",")))

	var envelope profilesEnvelope
	if err := s.getJSON(ctx, endpoint, &envelope); err != nil {
		return nil, fmt.Errorf("fetching reviewer profiles: %w", err)
	}

	profiles := make(map[string]domain.ReviewerProfile, len(envelope.Data.Reviewers))
	for _, p := range envelope.Data.Reviewers {
		profiles[p.ReviewerID] = p
	}
	return profiles, nil
}

func (s *HTTPSource) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling review API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("review API returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding review API response: %w", err)
	}
	return nil
}

// sanitize validates one upstream record and truncates oversized comments.
func sanitize(rec reviewRecord) (domain.Review, bool) {
	if rec.SubjectID == "" || rec.ReviewerID == "" {
		return domain.Review{}, false
	}
	if rec.Rating < 1 || rec.Rating > 5 {
		return domain.Review{}, false
	}
	if rec.SubmittedAt.IsZero() {
		return domain.Review{}, false
	}
	comment := rec.Comment
	if len(comment) > domain.MaxCommentLength {
		comment = comment[:domain.MaxCommentLength]
	}
	return domain.Review{
		SubjectID:   rec.SubjectID,
		ReviewerID:  rec.ReviewerID,
		Rating:      rec.Rating,
		Comment:     comment,
		SubmittedAt: rec.SubmittedAt,
	}, true
}
