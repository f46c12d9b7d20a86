package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ZulAmi/proofwork-reputation/internal/domain"
	"github.com/ZulAmi/proofwork-reputation/internal/metrics"
)

const snapshotKeyPrefix = "reputation:snapshot:"

// RedisTier is the distributed snapshot cache shared across engine
// instances. Every operation carries its own timeout so a slow Redis can
// never stall an aggregation pass; callers treat errors as misses.
type RedisTier struct {
	client    redis.UniversalClient
	opTimeout time.Duration
}

func NewRedisTier(client redis.UniversalClient, opTimeout time.Duration) *RedisTier {
	return &RedisTier{client: client, opTimeout: opTimeout}
}

func snapshotKey(subjectID string) string {
	return snapshotKeyPrefix + subjectID
}

func (c *RedisTier) Get(ctx context.Context, subjectID string) (*domain.ReputationSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	raw, err := c.client.Get(ctx, snapshotKey(subjectID)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMissesTotal.WithLabelValues("distributed").Inc()
		return nil, nil
	}
	if err != nil {
		metrics.CacheTierErrors.WithLabelValues("distributed", "get").Inc()
		return nil, fmt.Errorf("reading snapshot from redis: %w", err)
	}

	var snapshot domain.ReputationSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		metrics.CacheTierErrors.WithLabelValues("distributed", "get").Inc()
		return nil, fmt.Errorf("unmarshaling cached snapshot: %w", err)
	}

	metrics.CacheHitsTotal.WithLabelValues("distributed").Inc()
	return &snapshot, nil
}

// Set writes a snapshot unless Redis already holds a strictly fresher one.
// The read-compare-write is not atomic; losing the race only means a fresher
// snapshot survives, which is the outcome we want anyway.
func (c *RedisTier) Set(ctx context.Context, snapshot domain.ReputationSnapshot, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	key := snapshotKey(snapshot.SubjectID)

	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var existing domain.ReputationSnapshot
		if json.Unmarshal(raw, &existing) == nil && existing.ComputedAt.After(snapshot.ComputedAt) {
			return nil
		}
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	if err := c.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		metrics.CacheTierErrors.WithLabelValues("distributed", "set").Inc()
		return fmt.Errorf("writing snapshot to redis: %w", err)
	}
	return nil
}

func (c *RedisTier) Delete(ctx context.Context, subjectID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	if err := c.client.Del(ctx, snapshotKey(subjectID)).Err(); err != nil {
		metrics.CacheTierErrors.WithLabelValues("distributed", "delete").Inc()
		return fmt.Errorf("deleting snapshot from redis: %w", err)
	}
	return nil
}
