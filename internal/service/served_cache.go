package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/assessio/assessio-backend/internal/config"
	"github.com/assessio/assessio-backend/internal/model"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ServedCache keeps the answer-stripped question payload of a test in Redis
// so serving an attempt skips the questions join on the hot path. Correct
// answers never enter the cache; access checks (active flag, start window,
// existing result) always run against PostgreSQL.
type ServedCache struct {
	rdb *redis.Client
}

// NewServedCache creates a ServedCache.
func NewServedCache(rdb *redis.Client) *ServedCache {
	return &ServedCache{rdb: rdb}
}

// Get returns the cached served questions, or (nil, nil) on a cache miss.
func (c *ServedCache) Get(ctx context.Context, testID uuid.UUID) ([]model.ServedQuestion, error) {
	data, err := c.rdb.Get(ctx, config.CacheKey.TestPayloadKey(testID.String())).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payload: %w", err)
	}

	var questions []model.ServedQuestion
	if err := json.Unmarshal(data, &questions); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return questions, nil
}

// Set stores the served questions for a test.
func (c *ServedCache) Set(ctx context.Context, testID uuid.UUID, questions []model.ServedQuestion) error {
	data, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.rdb.Set(ctx, config.CacheKey.TestPayloadKey(testID.String()), data, 0).Err()
}

// Invalidate drops a test's cached payload. Called whenever the test or its
// questions change, or the test is deactivated/deleted.
func (c *ServedCache) Invalidate(ctx context.Context, testID uuid.UUID) error {
	return c.rdb.Del(ctx, config.CacheKey.TestPayloadKey(testID.String())).Err()
}
