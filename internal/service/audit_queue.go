package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// AuditQueue accepts grade override records for asynchronous persistence.
type AuditQueue interface {
	Push(ctx context.Context, audit model.GradeAudit) error
}

// RedisAuditQueue pushes audits onto the Redis list drained by the grade audit worker.
type RedisAuditQueue struct {
	rdb *redis.Client
}

// NewRedisAuditQueue creates a new RedisAuditQueue.
func NewRedisAuditQueue(rdb *redis.Client) *RedisAuditQueue {
	return &RedisAuditQueue{rdb: rdb}
}

func (q *RedisAuditQueue) Push(ctx context.Context, audit model.GradeAudit) error {
	data, err := json.Marshal(audit)
	if err != nil {
		return fmt.Errorf("marshal audit: %w", err)
	}
	return q.rdb.RPush(ctx, config.WorkerKey.PersistGradeAuditQueue, data).Err()
}
