package domain

import (
	"context"
	"time"
)

// MaxCommentLength is the upper bound the ledger enforces on review comments.
// Longer comments from upstream are truncated at ingestion.
const MaxCommentLength = 280

// --- Model types ---

// Review is an immutable fact recorded by the ledger. It is never mutated
// after creation; the ledger is assumed append-only.
type Review struct {
	SubjectID   string    `json:"subjectId"`
	ReviewerID  string    `json:"reviewerId"`
	Rating      int       `json:"rating"`
	Comment     string    `json:"comment"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// ReviewerProfile holds the reviewer history used to derive credibility.
// It is refreshed on each aggregation pass, never persisted by this engine.
type ReviewerProfile struct {
	ReviewerID     string `json:"reviewerId"`
	ReviewsGiven   int    `json:"reviewsGiven"`
	AccountAgeDays int    `json:"accountAgeDays"`
	Verified       bool   `json:"verified"`
}

// ScoredReview is a Review annotated with the weights of one aggregation
// pass. Computed fresh every pass, never cached individually.
type ScoredReview struct {
	Review
	AgeSeconds        float64
	DecayWeight       float64
	CredibilityWeight float64
	DisputeWeight     float64
	Sentiment         float64
	SentimentFallback bool
	TotalWeight       float64
}

// ReputationSnapshot is the cached, user-visible aggregation result. One
// live snapshot per subject; recomputation replaces it atomically.
type ReputationSnapshot struct {
	SubjectID         string    `json:"subjectId"`
	TrustScore        int       `json:"trustScore"`
	RawScore          float64   `json:"rawScore"`
	WeightedScore     float64   `json:"weightedScore"`
	SentimentScore    float64   `json:"sentimentScore"`
	TimeDecayFactor   float64   `json:"timeDecayFactor"`
	ActivityFactor    float64   `json:"activityFactor"`
	ReviewCount       int       `json:"reviewCount"`
	RecentReviewCount int       `json:"recentReviewCount"`
	ComputedAt        time.Time `json:"computedAt"`
}

// ReviewEvent is one "review submitted" notification from the ledger feed.
// Delivery is at-least-once; duplicates must be tolerated downstream.
type ReviewEvent struct {
	ReviewerID string    `json:"reviewerId"`
	SubjectID  string    `json:"subjectId"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment"`
	Timestamp  time.Time `json:"timestamp"`
}

// Validate reports whether the event is well-formed enough to process.
// Oversized comments are truncated rather than rejected.
func (e *ReviewEvent) Validate() error {
	if e.SubjectID == "" {
		return ErrMissingSubject
	}
	if e.ReviewerID == "" {
		return ErrMissingReviewer
	}
	if e.Rating < 1 || e.Rating > 5 {
		return ErrRatingOutOfRange
	}
	if len(e.Comment) > MaxCommentLength {
		e.Comment = e.Comment[:MaxCommentLength]
	}
	return nil
}

// ReputationUpdate is the message pushed to live subscribers.
type ReputationUpdate struct {
	Type      string             `json:"type"`
	SubjectID string             `json:"subjectId"`
	Snapshot  ReputationSnapshot `json:"snapshot"`
	Timestamp time.Time          `json:"timestamp"`
}

// UpdateTypeReputation is the Type value for ReputationUpdate messages.
const UpdateTypeReputation = "reputation_update"

// ReviewAnalysis is one review with its per-pass sentiment and weights,
// returned by the analyze endpoint.
type ReviewAnalysis struct {
	Review
	Sentiment       float64 `json:"sentimentScore"`
	DecayWeight     float64 `json:"timeDecayFactor"`
	EffectiveWeight float64 `json:"effectiveWeight"`
}

// AnalyzeReport is the full per-review breakdown for a subject.
type AnalyzeReport struct {
	SubjectID        string           `json:"subjectId"`
	Reviews          []ReviewAnalysis `json:"reviews"`
	ReviewCount      int              `json:"reviewCount"`
	AverageRating    float64          `json:"averageRating"`
	AverageSentiment float64          `json:"averageSentiment"`
	VerifiedPercent  float64          `json:"verifiedClientPercentage"`
}

// --- Collaborator interfaces ---

// ReviewSource reads the durable review set for a subject. FetchReviews
// errors are hard failures of the aggregation; FetchReviewerProfiles errors
// degrade to default credibility and must not fail the caller.
type ReviewSource interface {
	FetchReviews(ctx context.Context, subjectID string) ([]Review, error)
	FetchReviewerProfiles(ctx context.Context, reviewerIDs []string) (map[string]ReviewerProfile, error)
}

// SentimentClassifier scores free text in [-1, 1]. Any failure makes the
// caller fall back to the rating-derived proxy.
type SentimentClassifier interface {
	Classify(ctx context.Context, text string) (float64, error)
}

// DisputeChecker reports whether an unresolved dispute exists between the
// two parties of a review.
type DisputeChecker interface {
	HasDispute(ctx context.Context, subjectID, reviewerID string) (bool, error)
}

// CacheTier is one tier of the snapshot cache. Implementations are
// best-effort: the distributed tier may return errors, which callers absorb.
type CacheTier interface {
	Get(ctx context.Context, subjectID string) (*ReputationSnapshot, error)
	Set(ctx context.Context, snapshot ReputationSnapshot, ttl time.Duration) error
	Delete(ctx context.Context, subjectID string) error
}

// Broadcaster pushes a recomputed snapshot to live subscribers of a subject.
type Broadcaster interface {
	Broadcast(subjectID string, snapshot ReputationSnapshot)
}

// ReputationService is the application surface consumed by the HTTP layer.
type ReputationService interface {
	GetReputation(ctx context.Context, subjectID string) (ReputationSnapshot, error)
	RecomputeNow(ctx context.Context, subjectID string) (ReputationSnapshot, error)
	AnalyzeReviews(ctx context.Context, subjectID string) (*AnalyzeReport, error)
}
