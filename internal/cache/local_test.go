package cache

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZulAmi/proofwork-reputation/internal/domain"
)

func snapshotAt(subjectID string, computedAt time.Time) domain.ReputationSnapshot {
	return domain.ReputationSnapshot{
		SubjectID:  subjectID,
		TrustScore: 80,
		ComputedAt: computedAt,
	}
}

func TestLocalTier_SetAndGet(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tier := NewLocalTier(clock)
	ctx := context.Background()

	require.NoError(t, tier.Set(ctx, snapshotAt("0xfreelancer", clock.Now()), 5*time.Minute))

	got, err := tier.Get(ctx, "0xfreelancer")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 80, got.TrustScore)
}

func TestLocalTier_MissForUnknownSubject(t *testing.T) {
	tier := NewLocalTier(clockwork.NewFakeClock())

	got, err := tier.Get(context.Background(), "0xnobody")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLocalTier_ExpiryIsAMiss(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tier := NewLocalTier(clock)
	ctx := context.Background()

	require.NoError(t, tier.Set(ctx, snapshotAt("0xfreelancer", clock.Now()), 5*time.Minute))
	clock.Advance(5*time.Minute + time.Second)

	got, err := tier.Get(ctx, "0xfreelancer")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLocalTier_StaleWriteDoesNotOverwriteFresher(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tier := NewLocalTier(clock)
	ctx := context.Background()

	fresh := snapshotAt("0xfreelancer", clock.Now())
	stale := snapshotAt("0xfreelancer", clock.Now().Add(-time.Minute))
	stale.TrustScore = 10

	require.NoError(t, tier.Set(ctx, fresh, 5*time.Minute))
	require.NoError(t, tier.Set(ctx, stale, 5*time.Minute))

	got, err := tier.Get(ctx, "0xfreelancer")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 80, got.TrustScore)
	assert.Equal(t, fresh.ComputedAt, got.ComputedAt)
}

func TestLocalTier_StaleWriteReplacesExpiredEntry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tier := NewLocalTier(clock)
	ctx := context.Background()

	fresh := snapshotAt("0xfreelancer", clock.Now())
	require.NoError(t, tier.Set(ctx, fresh, time.Minute))
	clock.Advance(2 * time.Minute)

	// The fresher entry expired, so even an older snapshot may replace it.
	stale := snapshotAt("0xfreelancer", fresh.ComputedAt.Add(-time.Hour))
	require.NoError(t, tier.Set(ctx, stale, time.Minute))

	got, err := tier.Get(ctx, "0xfreelancer")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, stale.ComputedAt, got.ComputedAt)
}

func TestLocalTier_Delete(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tier := NewLocalTier(clock)
	ctx := context.Background()

	require.NoError(t, tier.Set(ctx, snapshotAt("0xfreelancer", clock.Now()), 5*time.Minute))
	require.NoError(t, tier.Delete(ctx, "0xfreelancer"))

	got, err := tier.Get(ctx, "0xfreelancer")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLocalTier_EvictExpired(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tier := NewLocalTier(clock)
	ctx := context.Background()

	require.NoError(t, tier.Set(ctx, snapshotAt("0xold", clock.Now()), time.Minute))
	require.NoError(t, tier.Set(ctx, snapshotAt("0xnew", clock.Now()), time.Hour))
	clock.Advance(2 * time.Minute)

	assert.Equal(t, 1, tier.EvictExpired())
	assert.Equal(t, 1, tier.Size())
}

func TestLocalTier_EvictionTimer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tier := NewLocalTier(clock)
	ctx := context.Background()

	require.NoError(t, tier.Set(ctx, snapshotAt("0xfreelancer", clock.Now()), time.Minute))

	stop := tier.StartEvictionTimer(time.Minute)
	defer stop()

	clock.BlockUntil(1)
	clock.Advance(2 * time.Minute)

	assert.Eventually(t, func() bool {
		return tier.Size() == 0
	}, time.Second, 5*time.Millisecond)
}
