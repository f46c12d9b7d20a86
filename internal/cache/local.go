// Package cache implements the two-tier snapshot cache and the coordinator
// that collapses concurrent recomputations per subject.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ZulAmi/proofwork-reputation/internal/domain"
	"github.com/ZulAmi/proofwork-reputation/internal/metrics"
)

// LocalTier is the per-instance in-memory snapshot cache. Reads here avoid
// both Redis and recomputation entirely, so the hot path for popular
// subjects is a single RLock.
type LocalTier struct {
	mu      sync.RWMutex
	entries map[string]*localEntry
	clock   clockwork.Clock
}

type localEntry struct {
	snapshot  domain.ReputationSnapshot
	expiresAt time.Time
}

func NewLocalTier(clock clockwork.Clock) *LocalTier {
	return &LocalTier{
		entries: make(map[string]*localEntry),
		clock:   clock,
	}
}

// Get returns the cached snapshot or nil on miss. Expired entries count as
// misses; eviction happens on the background timer, not here.
func (c *LocalTier) Get(_ context.Context, subjectID string) (*domain.ReputationSnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[subjectID]
	if !ok || c.clock.Now().After(entry.expiresAt) {
		metrics.CacheMissesTotal.WithLabelValues("local").Inc()
		return nil, nil
	}

	metrics.CacheHitsTotal.WithLabelValues("local").Inc()
	snapshot := entry.snapshot
	return &snapshot, nil
}

// Set stores a snapshot unless a strictly fresher one is already cached.
// The freshness check makes out-of-order writes from racing recomputations
// harmless.
func (c *LocalTier) Set(_ context.Context, snapshot domain.ReputationSnapshot, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[snapshot.SubjectID]; ok {
		if existing.snapshot.ComputedAt.After(snapshot.ComputedAt) && c.clock.Now().Before(existing.expiresAt) {
			return nil
		}
	}

	c.entries[snapshot.SubjectID] = &localEntry{
		snapshot:  snapshot,
		expiresAt: c.clock.Now().Add(ttl),
	}
	return nil
}

func (c *LocalTier) Delete(_ context.Context, subjectID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, subjectID)
	return nil
}

// Size returns the entry count, including not-yet-evicted expired entries.
func (c *LocalTier) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// EvictExpired removes expired entries and returns the count evicted.
func (c *LocalTier) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	evicted := 0
	for subjectID, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, subjectID)
			evicted++
		}
	}
	return evicted
}

// StartEvictionTimer starts periodic eviction of expired entries. Returns a
// stop function.
func (c *LocalTier) StartEvictionTimer(interval time.Duration) func() {
	ticker := c.clock.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.Chan():
				evicted := c.EvictExpired()
				if evicted > 0 {
					slog.Debug("Evicted expired snapshots from local cache",
						"count", evicted,
						"remaining", c.Size(),
					)
					metrics.LocalCacheEvictions.Add(float64(evicted))
				}
				metrics.LocalCacheSize.Set(float64(c.Size()))

			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() {
		close(done)
	}
}
