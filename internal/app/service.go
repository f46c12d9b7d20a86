// Package app wires the review sources, sentiment classifier, scoring
// engine, and cache tiers into the reputation service consumed by the HTTP
// and websocket layers.
package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ZulAmi/proofwork-reputation/internal/cache"
	"github.com/ZulAmi/proofwork-reputation/internal/domain"
	"github.com/ZulAmi/proofwork-reputation/internal/metrics"
	"github.com/ZulAmi/proofwork-reputation/internal/scoring"
	"github.com/ZulAmi/proofwork-reputation/internal/sentiment"
)

// Publisher announces recomputed snapshots to other engine instances.
type Publisher interface {
	PublishSnapshot(ctx context.Context, snapshot domain.ReputationSnapshot) error
}

// Service implements domain.ReputationService. It owns the aggregation pass
// and the cache coordinator; recomputations for the same subject are
// collapsed inside the coordinator.
type Service struct {
	source      domain.ReviewSource
	classifier  domain.SentimentClassifier
	disputes    domain.DisputeChecker
	credibility *scoring.CredibilityEstimator
	scorer      *scoring.Scorer
	cache       *cache.Coordinator
	clock       clockwork.Clock

	broadcaster domain.Broadcaster
	publisher   Publisher
}

func NewService(
	source domain.ReviewSource,
	classifier domain.SentimentClassifier,
	disputes domain.DisputeChecker,
	credibility *scoring.CredibilityEstimator,
	scorer *scoring.Scorer,
	local, distributed domain.CacheTier,
	localTTL, distributedTTL time.Duration,
	clock clockwork.Clock,
) *Service {
	s := &Service{
		source:      source,
		classifier:  classifier,
		disputes:    disputes,
		credibility: credibility,
		scorer:      scorer,
		clock:       clock,
	}
	s.cache = cache.NewCoordinator(local, distributed, s.aggregate, localTTL, distributedTTL)
	return s
}

// SetBroadcaster wires the websocket hub in after construction. The hub
// needs the service for initial snapshots and the service needs the hub for
// update fan-out; this breaks the cycle. Must be called before events flow.
func (s *Service) SetBroadcaster(b domain.Broadcaster) {
	s.broadcaster = b
}

// SetPublisher wires the cross-instance fan-out. Optional; single-instance
// deployments leave it nil.
func (s *Service) SetPublisher(p Publisher) {
	s.publisher = p
}

// GetReputation serves a snapshot from the cache tiers, recomputing only on
// a full miss.
func (s *Service) GetReputation(ctx context.Context, subjectID string) (domain.ReputationSnapshot, error) {
	return s.cache.Get(ctx, subjectID)
}

// RecomputeNow bypasses both cache tiers and recomputes immediately.
func (s *Service) RecomputeNow(ctx context.Context, subjectID string) (domain.ReputationSnapshot, error) {
	return s.cache.Recompute(ctx, subjectID, "forced")
}

// HandleReviewSubmitted reacts to one ledger feed event: invalidate, eagerly
// recompute, and push the fresh snapshot to subscribers everywhere. On
// failure the caches stay cold and the next query recomputes instead; the
// feed is at-least-once, so nothing is retried here.
func (s *Service) HandleReviewSubmitted(ctx context.Context, event domain.ReviewEvent) {
	s.cache.Invalidate(ctx, event.SubjectID)

	snapshot, err := s.cache.Recompute(ctx, event.SubjectID, "event")
	if err != nil {
		slog.Error("Recomputation after review event failed",
			"subjectId", event.SubjectID,
			"reviewerId", event.ReviewerID,
			"error", err,
		)
		return
	}

	if s.broadcaster != nil {
		s.broadcaster.Broadcast(event.SubjectID, snapshot)
	}
	if s.publisher != nil {
		if err := s.publisher.PublishSnapshot(ctx, snapshot); err != nil {
			slog.Warn("Cross-instance publish failed, remote subscribers lag until next read",
				"subjectId", event.SubjectID,
				"error", err,
			)
		}
	}
}

// aggregate is the full aggregation pass. Review source failure is the only
// hard error; profiles, sentiment, and dispute lookups all degrade.
func (s *Service) aggregate(ctx context.Context, subjectID string) (domain.ReputationSnapshot, error) {
	now := s.clock.Now()

	reviews, err := s.source.FetchReviews(ctx, subjectID)
	if err != nil {
		return domain.ReputationSnapshot{}, err
	}
	if len(reviews) == 0 {
		return s.scorer.Score(subjectID, nil, now), nil
	}

	profiles := s.fetchProfiles(ctx, reviews)
	scored := s.scoreReviews(ctx, subjectID, reviews, profiles, now)

	return s.scorer.Score(subjectID, scored, now), nil
}

func (s *Service) fetchProfiles(ctx context.Context, reviews []domain.Review) map[string]domain.ReviewerProfile {
	seen := make(map[string]struct{}, len(reviews))
	ids := make([]string, 0, len(reviews))
	for _, r := range reviews {
		if _, ok := seen[r.ReviewerID]; ok {
			continue
		}
		seen[r.ReviewerID] = struct{}{}
		ids = append(ids, r.ReviewerID)
	}

	profiles, err := s.source.FetchReviewerProfiles(ctx, ids)
	if err != nil {
		slog.Warn("Reviewer profile fetch failed, using default credibility for all reviewers",
			"reviewers", len(ids),
			"error", err,
		)
		return nil
	}
	return profiles
}

// scoreReviews annotates each review with its per-pass weights. Sentiment
// classification runs concurrently across comments; each review gets at
// most one classifier attempt per pass.
func (s *Service) scoreReviews(ctx context.Context, subjectID string, reviews []domain.Review, profiles map[string]domain.ReviewerProfile, now time.Time) []domain.ScoredReview {
	scored := make([]domain.ScoredReview, len(reviews))

	var wg sync.WaitGroup
	for i, review := range reviews {
		age := now.Sub(review.SubmittedAt)

		var profile *domain.ReviewerProfile
		if p, ok := profiles[review.ReviewerID]; ok {
			profile = &p
		}

		scored[i] = domain.ScoredReview{
			Review:            review,
			AgeSeconds:        age.Seconds(),
			DecayWeight:       s.scorer.DecayWeight(age),
			CredibilityWeight: scoring.CredibilityWeight(s.credibility.Estimate(profile)),
			DisputeWeight:     s.disputeWeight(ctx, subjectID, review.ReviewerID),
		}

		if review.Comment == "" {
			continue
		}
		wg.Add(1)
		go func(i int, comment string, rating int) {
			defer wg.Done()
			value, err := s.classifier.Classify(ctx, comment)
			if err != nil {
				metrics.ClassifierFallbacksTotal.WithLabelValues("classify_error").Inc()
				scored[i].Sentiment = sentiment.RatingProxy(rating)
				scored[i].SentimentFallback = true
				return
			}
			scored[i].Sentiment = value
		}(i, review.Comment, review.Rating)
	}
	wg.Wait()

	for i := range scored {
		scored[i].TotalWeight = scored[i].DecayWeight * scored[i].CredibilityWeight * scored[i].DisputeWeight
	}
	return scored
}

func (s *Service) disputeWeight(ctx context.Context, subjectID, reviewerID string) float64 {
	disputed, err := s.disputes.HasDispute(ctx, subjectID, reviewerID)
	if err != nil {
		slog.Warn("Dispute lookup failed, treating review as undisputed",
			"subjectId", subjectID,
			"reviewerId", reviewerID,
			"error", err,
		)
		return scoring.NoDisputeWeight
	}
	if disputed {
		return scoring.DisputeWeight
	}
	return scoring.NoDisputeWeight
}

// AnalyzeReviews returns the per-review breakdown for a subject. Always
// computed fresh; the result is not cached.
func (s *Service) AnalyzeReviews(ctx context.Context, subjectID string) (*domain.AnalyzeReport, error) {
	now := s.clock.Now()

	reviews, err := s.source.FetchReviews(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	report := &domain.AnalyzeReport{
		SubjectID:   subjectID,
		Reviews:     []domain.ReviewAnalysis{},
		ReviewCount: len(reviews),
	}
	if len(reviews) == 0 {
		return report, nil
	}

	profiles := s.fetchProfiles(ctx, reviews)
	scored := s.scoreReviews(ctx, subjectID, reviews, profiles, now)

	var ratingSum, sentimentSum float64
	verified := 0
	for _, r := range scored {
		report.Reviews = append(report.Reviews, domain.ReviewAnalysis{
			Review:          r.Review,
			Sentiment:       r.Sentiment,
			DecayWeight:     r.DecayWeight,
			EffectiveWeight: r.TotalWeight,
		})
		ratingSum += float64(r.Rating)
		sentimentSum += r.Sentiment
		if p, ok := profiles[r.ReviewerID]; ok && p.Verified {
			verified++
		}
	}

	n := float64(len(scored))
	report.AverageRating = ratingSum / n
	report.AverageSentiment = sentimentSum / n
	report.VerifiedPercent = float64(verified) / n * 100
	return report, nil
}
