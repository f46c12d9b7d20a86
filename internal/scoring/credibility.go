package scoring

import (
	"log/slog"

	"github.com/ZulAmi/proofwork-reputation/internal/domain"
)

// Credibility factor bounds and inputs.
const (
	minReviewsFactor  = 0.5
	perReviewBonus    = 0.05
	minAccountFactor  = 0.8
	accountAgeFullDay = 365.0
	verifiedFactor    = 1.2
	unverifiedFactor  = 0.9
)

// CredibilityEstimator derives a 0-100 credibility weight from a reviewer's
// history. It never fails its caller: missing or unavailable profiles yield
// the configured default and a degraded-mode log line.
type CredibilityEstimator struct {
	base       float64
	defaultVal float64
}

func NewCredibilityEstimator(base, defaultVal float64) *CredibilityEstimator {
	return &CredibilityEstimator{base: base, defaultVal: defaultVal}
}

// Estimate computes credibility for one reviewer. A nil profile means the
// lookup failed or the reviewer is unknown; both degrade to the default.
func (e *CredibilityEstimator) Estimate(profile *domain.ReviewerProfile) float64 {
	if profile == nil {
		slog.Warn("Reviewer profile unavailable, using default credibility", "default", e.defaultVal)
		return e.defaultVal
	}

	reviewsFactor := min(1.0, minReviewsFactor+float64(profile.ReviewsGiven)*perReviewBonus)
	accountAgeFactor := min(1.0, minAccountFactor+float64(profile.AccountAgeDays)/accountAgeFullDay*(1.0-minAccountFactor))

	verificationFactor := unverifiedFactor
	if profile.Verified {
		verificationFactor = verifiedFactor
	}

	return clamp(e.base*accountAgeFactor*reviewsFactor*verificationFactor, 0, 100)
}
