package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/model"
)

const (
	AuditBatchSize    = 50
	AuditBatchTimeout = 2 * time.Second
	AuditPollTimeout  = 1 * time.Second
)

// AuditStore persists grade audits.
type AuditStore interface {
	InsertBatch(ctx context.Context, audits []model.GradeAudit) error
	Insert(ctx context.Context, audit model.GradeAudit) error
}

// Queue is a blocking FIFO of raw payloads. Pop returns nil, nil when the poll times out.
type Queue interface {
	Pop(ctx context.Context, timeout time.Duration) ([]byte, error)
	Push(ctx context.Context, raw []byte) error
}

// RedisQueue is a Queue backed by a Redis list.
type RedisQueue struct {
	rdb *redis.Client
	key string
}

// NewRedisQueue creates a Queue over the list at key.
func NewRedisQueue(rdb *redis.Client, key string) *RedisQueue {
	return &RedisQueue{rdb: rdb, key: key}
}

func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	item, err := q.rdb.BLPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(item) < 2 {
		return nil, nil
	}
	return []byte(item[1]), nil
}

func (q *RedisQueue) Push(ctx context.Context, raw []byte) error {
	return q.rdb.RPush(ctx, q.key, raw).Err()
}

// Len reports the number of queued payloads.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

// GradeAuditWorker drains grade override audits from the queue into Postgres in batches.
type GradeAuditWorker struct {
	queue Queue
	store AuditStore
	log   zerolog.Logger

	batchSize    int
	batchTimeout time.Duration
	pollTimeout  time.Duration
}

func NewGradeAuditWorker(queue Queue, store AuditStore, log zerolog.Logger) *GradeAuditWorker {
	return &GradeAuditWorker{
		queue:        queue,
		store:        store,
		log:          log.With().Str("component", "grade_audit_worker").Str("queue", config.WorkerKey.PersistGradeAuditQueue).Logger(),
		batchSize:    AuditBatchSize,
		batchTimeout: AuditBatchTimeout,
		pollTimeout:  AuditPollTimeout,
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

// Start blocks until ctx is cancelled, then flushes whatever is still batched.
func (w *GradeAuditWorker) Start(ctx context.Context) {
	w.log.Info().Msg("GradeAuditWorker started")

	batch := make([]model.GradeAudit, 0, w.batchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= w.batchSize || time.Since(lastFlush) >= w.batchTimeout) {

			w.flush(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Int("pending", len(batch)).Msg("Shutdown requested. Flushing remaining batch...")
			w.flush(context.Background(), batch)
			return

		default:
			raw, err := w.queue.Pop(ctx, w.pollTimeout)
			if err != nil {
				if ctx.Err() == nil {
					w.log.Error().Err(err).Msg("Queue pop failed")
					w.backoff(ctx)
				}
				continue
			}
			if raw == nil {
				continue
			}

			var a model.GradeAudit
			if err := json.Unmarshal(raw, &a); err != nil {
				w.log.Error().Err(err).Msg("Invalid audit payload, dropping")
				continue
			}

			batch = append(batch, a)
		}
	}
}

func (w *GradeAuditWorker) backoff(ctx context.Context) {
	t := time.NewTimer(w.pollTimeout)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// flush writes the batch with COPY, falling back to row inserts. Rows that still fail are requeued.
func (w *GradeAuditWorker) flush(ctx context.Context, batch []model.GradeAudit) {
	if len(batch) == 0 {
		return
	}

	err := w.store.InsertBatch(ctx, batch)
	if err == nil {
		w.log.Debug().Int("count", len(batch)).Msg("Persisted grade audits")
		return
	}

	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Batch audit insert failed, using fallback")

	for _, a := range batch {
		if err := w.store.Insert(ctx, a); err != nil {
			w.log.Error().Err(err).
				Str("session_id", a.SessionID.String()).
				Str("question_id", a.QuestionID.String()).
				Msg("Audit insert failed, requeueing")

			raw, _ := json.Marshal(a)
			if err := w.queue.Push(ctx, raw); err != nil {
				w.log.Error().Err(err).Msg("Requeue failed, audit lost")
			}
		}
	}
}
