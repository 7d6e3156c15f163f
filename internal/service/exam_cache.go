package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// ErrCacheMiss is returned by PayloadCache.Get when nothing is cached.
var ErrCacheMiss = errors.New("exam payload not cached")

// PayloadCache stores sanitized exam payloads keyed by exam id.
type PayloadCache interface {
	Get(ctx context.Context, examID uuid.UUID) (*model.ExamPayload, error)
	Set(ctx context.Context, payload *model.ExamPayload) error
	Delete(ctx context.Context, examID uuid.UUID) error
}

// RedisPayloadCache is the Redis-backed PayloadCache.
type RedisPayloadCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisPayloadCache creates a cache whose entries expire after ttl. Zero ttl keeps entries forever.
func NewRedisPayloadCache(rdb *redis.Client, ttl time.Duration) *RedisPayloadCache {
	return &RedisPayloadCache{rdb: rdb, ttl: ttl}
}

func (c *RedisPayloadCache) Get(ctx context.Context, examID uuid.UUID) (*model.ExamPayload, error) {
	data, err := c.rdb.Get(ctx, config.CacheKey.ExamPayloadKey(examID.String())).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("get payload: %w", err)
	}

	var payload model.ExamPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &payload, nil
}

func (c *RedisPayloadCache) Set(ctx context.Context, payload *model.ExamPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return c.rdb.Set(ctx, config.CacheKey.ExamPayloadKey(payload.ExamID.String()), data, c.ttl).Err()
}

func (c *RedisPayloadCache) Delete(ctx context.Context, examID uuid.UUID) error {
	return c.rdb.Del(ctx, config.CacheKey.ExamPayloadKey(examID.String())).Err()
}
