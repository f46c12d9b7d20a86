package reviews

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ZulAmi/proofwork-reputation/internal/domain"
	"github.com/ZulAmi/proofwork-reputation/internal/errors"
	"github.com/ZulAmi/proofwork-reputation/internal/metrics"
)

// PostgresSource reads reviews from a Postgres mirror of the ledger. Used
// when the engine runs next to the indexer database instead of its API.
type PostgresSource struct {
	pool *pgxpool.Pool
}

func NewPostgresSource(ctx context.Context, databaseURL string) (*PostgresSource, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PostgresSource{pool: pool}, nil
}

func (s *PostgresSource) Close() {
	s.pool.Close()
}

func (s *PostgresSource) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresSource) FetchReviews(ctx context.Context, subjectID string) ([]domain.Review, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT subject_id, reviewer_id, rating, comment, submitted_at
		FROM reviews
		WHERE subject_id = $1
		ORDER BY submitted_at DESC
	`, subjectID)
	if err != nil {
		return nil, errors.External("review source unreachable", fmt.Errorf("%w: %w", domain.ErrReviewSourceUnavailable, err))
	}
	defer rows.Close()

	var reviews []domain.Review
	for rows.Next() {
		var rec reviewRecord
		if err := rows.Scan(&rec.SubjectID, &rec.ReviewerID, &rec.Rating, &rec.Comment, &rec.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scanning review row: %w", err)
		}
		review, ok := sanitize(rec)
		if !ok {
			metrics.InvalidReviewsDropped.Inc()
			slog.Warn("Dropping malformed review row", "subjectId", subjectID, "reviewerId", rec.ReviewerID)
			continue
		}
		reviews = append(reviews, review)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.External("review source unreachable", fmt.Errorf("%w: %w", domain.ErrReviewSourceUnavailable, err))
	}
	return reviews, nil
}

func (s *PostgresSource) FetchReviewerProfiles(ctx context.Context, reviewerIDs []string) (map[string]domain.ReviewerProfile, error) {
	if len(reviewerIDs) == 0 {
		return map[string]domain.ReviewerProfile{}, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT reviewer_id, reviews_given, account_age_days, verified
		FROM reviewers
		WHERE reviewer_id = ANY($1)
	`, reviewerIDs)
	if err != nil {
		return nil, fmt.Errorf("querying reviewer profiles: %w", err)
	}
	defer rows.Close()

	profiles := make(map[string]domain.ReviewerProfile, len(reviewerIDs))
	for rows.Next() {
		var p domain.ReviewerProfile
		if err := rows.Scan(&p.ReviewerID, &p.ReviewsGiven, &p.AccountAgeDays, &p.Verified); err != nil {
			return nil, fmt.Errorf("scanning reviewer row: %w", err)
		}
		profiles[p.ReviewerID] = p
	}
	return profiles, rows.Err()
}
