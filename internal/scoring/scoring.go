// Package scoring implements the weighted reputation aggregation algorithm:
// exponential recency decay, reviewer credibility, dispute penalties, and
// sentiment adjustment combined into one normalized trust score.
package scoring

import (
	"math"
	"time"

	"github.com/ZulAmi/proofwork-reputation/internal/domain"
)

const (
	// NeutralTrustScore is returned for subjects with no reviews.
	NeutralTrustScore = 50

	// DisputeWeight dampens a review involved in an unresolved dispute.
	DisputeWeight = 0.7

	// NoDisputeWeight is the neutral dispute multiplier.
	NoDisputeWeight = 1.0

	activityFactorCap = 1.1
	activityPerReview = 0.1
)

// Params holds the configuration-exposed scoring constants.
type Params struct {
	DecayFactor     float64
	TimeUnit        time.Duration
	SentimentWeight float64
	RecentWindow    time.Duration
}

// DefaultParams returns the production defaults: 0.1 decay per 30-day unit,
// 0.3 sentiment weight, 90-day recent-activity window.
func DefaultParams() Params {
	return Params{
		DecayFactor:     0.1,
		TimeUnit:        30 * 24 * time.Hour,
		SentimentWeight: 0.3,
		RecentWindow:    90 * 24 * time.Hour,
	}
}

// Scorer is the pure aggregation function over scored reviews. It performs
// no I/O; callers annotate reviews with sentiment and credibility first.
type Scorer struct {
	params Params
}

func NewScorer(params Params) *Scorer {
	return &Scorer{params: params}
}

// DecayWeight computes the exponential recency factor for a review of the
// given age: exp(-decayFactor * age/timeUnit). Always in (0, 1] for
// non-negative ages.
func (s *Scorer) DecayWeight(age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	units := age.Seconds() / s.params.TimeUnit.Seconds()
	return math.Exp(-s.params.DecayFactor * units)
}

// CredibilityWeight maps a 0-100 credibility value onto the [0.5, 1.5]
// multiplier applied to a review's influence.
func CredibilityWeight(credibility float64) float64 {
	return 0.5 + clamp(credibility, 0, 100)/100
}

// IsRecent reports whether a review falls inside the activity window.
func (s *Scorer) IsRecent(submittedAt, now time.Time) bool {
	return now.Sub(submittedAt) < s.params.RecentWindow
}

// Score aggregates a subject's scored reviews into a snapshot. Deterministic
// given identical inputs and now; an empty review set yields the canonical
// neutral snapshot (trust 50, all factors zero).
func (s *Scorer) Score(subjectID string, reviews []domain.ScoredReview, now time.Time) domain.ReputationSnapshot {
	if len(reviews) == 0 {
		return domain.ReputationSnapshot{
			SubjectID:      subjectID,
			TrustScore:     NeutralTrustScore,
			ActivityFactor: 1,
			ComputedAt:     now,
		}
	}

	var (
		weightedSum  float64
		weightSum    float64
		sentimentSum float64
		decaySum     float64
		recentCount  int
	)

	for _, r := range reviews {
		weightedSum += float64(r.Rating) * r.TotalWeight
		sentimentSum += r.Sentiment * r.TotalWeight
		weightSum += r.TotalWeight
		decaySum += r.DecayWeight

		if s.IsRecent(r.SubmittedAt, now) {
			recentCount++
		}
	}

	// Zero total weight can only happen with all-zero weights; treat the
	// quotients as zero rather than dividing.
	var weightedRating, averageSentiment float64
	if weightSum > 0 {
		weightedRating = weightedSum / weightSum
		averageSentiment = sentimentSum / weightSum
	}

	sentimentAdjustment := averageSentiment * s.params.SentimentWeight
	activityFactor := min(activityFactorCap, 1+float64(recentCount)*activityPerReview)
	finalWeightedScore := clamp((weightedRating+sentimentAdjustment)*activityFactor, 1, 5)

	return domain.ReputationSnapshot{
		SubjectID:         subjectID,
		TrustScore:        int(math.Round((finalWeightedScore - 1) * 25)),
		RawScore:          weightedRating,
		WeightedScore:     finalWeightedScore,
		SentimentScore:    averageSentiment,
		TimeDecayFactor:   decaySum / float64(len(reviews)),
		ActivityFactor:    activityFactor,
		ReviewCount:       len(reviews),
		RecentReviewCount: recentCount,
		ComputedAt:        now,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
