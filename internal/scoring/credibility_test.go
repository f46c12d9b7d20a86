package scoring

import (
	"testing"

	"github.com/ZulAmi/proofwork-reputation/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestEstimate_NilProfileUsesDefault(t *testing.T) {
	e := NewCredibilityEstimator(70, 50)
	assert.Equal(t, 50.0, e.Estimate(nil))
}

func TestEstimate_VerifiedSeniorReviewer(t *testing.T) {
	e := NewCredibilityEstimator(70, 50)

	// Enough reviews and account age to saturate both factors.
	got := e.Estimate(&domain.ReviewerProfile{
		ReviewerID:     "0xreviewer",
		ReviewsGiven:   20,
		AccountAgeDays: 730,
		Verified:       true,
	})

	// 70 * 1.0 * 1.0 * 1.2
	assert.InDelta(t, 84.0, got, 1e-9)
}

func TestEstimate_FreshUnverifiedAccount(t *testing.T) {
	e := NewCredibilityEstimator(70, 50)

	got := e.Estimate(&domain.ReviewerProfile{
		ReviewerID:     "0xreviewer",
		ReviewsGiven:   0,
		AccountAgeDays: 0,
		Verified:       false,
	})

	// 70 * 0.8 * 0.5 * 0.9
	assert.InDelta(t, 25.2, got, 1e-9)
}

func TestEstimate_MoreHistoryNeverLowersCredibility(t *testing.T) {
	e := NewCredibilityEstimator(70, 50)

	prev := 0.0
	for reviews := 0; reviews <= 30; reviews += 5 {
		got := e.Estimate(&domain.ReviewerProfile{
			ReviewsGiven:   reviews,
			AccountAgeDays: 100,
		})
		assert.GreaterOrEqual(t, got, prev)
		prev = got
	}
}

func TestEstimate_ClampedToHundred(t *testing.T) {
	e := NewCredibilityEstimator(95, 50)

	got := e.Estimate(&domain.ReviewerProfile{
		ReviewsGiven:   100,
		AccountAgeDays: 3650,
		Verified:       true,
	})

	assert.LessOrEqual(t, got, 100.0)
	assert.Equal(t, 100.0, got)
}
