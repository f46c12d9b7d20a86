package cache

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ZulAmi/proofwork-reputation/internal/domain"
	"github.com/ZulAmi/proofwork-reputation/internal/metrics"
)

// ComputeFunc runs one full aggregation pass for a subject.
type ComputeFunc func(ctx context.Context, subjectID string) (domain.ReputationSnapshot, error)

// Coordinator layers the local and distributed tiers in front of the
// aggregation pass and collapses concurrent recomputations of the same
// subject into a single flight. The distributed tier is best-effort
// throughout: its failures are logged and absorbed, never surfaced.
type Coordinator struct {
	local          domain.CacheTier
	distributed    domain.CacheTier
	compute        ComputeFunc
	localTTL       time.Duration
	distributedTTL time.Duration
	group          singleflight.Group
}

func NewCoordinator(local, distributed domain.CacheTier, compute ComputeFunc, localTTL, distributedTTL time.Duration) *Coordinator {
	return &Coordinator{
		local:          local,
		distributed:    distributed,
		compute:        compute,
		localTTL:       localTTL,
		distributedTTL: distributedTTL,
	}
}

// Get serves a snapshot from the local tier, then the distributed tier, and
// only recomputes when both miss. A distributed hit back-fills the local
// tier so subsequent reads stay in memory.
func (c *Coordinator) Get(ctx context.Context, subjectID string) (domain.ReputationSnapshot, error) {
	if snapshot, err := c.local.Get(ctx, subjectID); err == nil && snapshot != nil {
		return *snapshot, nil
	}

	if c.distributed != nil {
		snapshot, err := c.distributed.Get(ctx, subjectID)
		if err != nil {
			slog.Warn("Distributed cache read failed, continuing without it",
				"subjectId", subjectID,
				"error", err,
			)
		} else if snapshot != nil {
			if err := c.local.Set(ctx, *snapshot, c.localTTL); err != nil {
				slog.Warn("Local cache population failed", "subjectId", subjectID, "error", err)
			}
			return *snapshot, nil
		}
	}

	return c.Recompute(ctx, subjectID, "query")
}

// Recompute runs the aggregation pass for a subject, deduplicated per
// subject within this instance, and writes the result through both tiers.
func (c *Coordinator) Recompute(ctx context.Context, subjectID string, trigger string) (domain.ReputationSnapshot, error) {
	result, err, shared := c.group.Do(subjectID, func() (any, error) {
		start := time.Now()
		snapshot, err := c.compute(ctx, subjectID)
		metrics.RecomputeDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.RecomputesTotal.WithLabelValues(trigger, "error").Inc()
			return nil, err
		}
		metrics.RecomputesTotal.WithLabelValues(trigger, "ok").Inc()

		c.store(ctx, snapshot)
		return snapshot, nil
	})
	if shared {
		metrics.SingleflightSharedTotal.Inc()
	}
	if err != nil {
		return domain.ReputationSnapshot{}, err
	}
	return result.(domain.ReputationSnapshot), nil
}

// Invalidate drops the subject from both tiers so the next read recomputes.
// It also forgets any in-flight computation for the subject: a flight started
// before the invalidation may have read a review set that no longer reflects
// the triggering event, so recomputes requested after this point must not
// join it.
func (c *Coordinator) Invalidate(ctx context.Context, subjectID string) {
	c.group.Forget(subjectID)
	if err := c.local.Delete(ctx, subjectID); err != nil {
		slog.Warn("Local cache invalidation failed", "subjectId", subjectID, "error", err)
	}
	if c.distributed != nil {
		if err := c.distributed.Delete(ctx, subjectID); err != nil {
			slog.Warn("Distributed cache invalidation failed", "subjectId", subjectID, "error", err)
		}
	}
}

func (c *Coordinator) store(ctx context.Context, snapshot domain.ReputationSnapshot) {
	if err := c.local.Set(ctx, snapshot, c.localTTL); err != nil {
		slog.Warn("Local cache write failed", "subjectId", snapshot.SubjectID, "error", err)
	}
	if c.distributed != nil {
		if err := c.distributed.Set(ctx, snapshot, c.distributedTTL); err != nil {
			slog.Warn("Distributed cache write failed, snapshot served from local only",
				"subjectId", snapshot.SubjectID,
				"error", err,
			)
		}
	}
}
