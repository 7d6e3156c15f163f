package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// EventPublisher broadcasts session lifecycle events to exam monitors.
type EventPublisher interface {
	Publish(ctx context.Context, event model.SessionEvent) error
}

// RedisEventPublisher publishes events on the exam's Redis monitor channel.
type RedisEventPublisher struct {
	rdb *redis.Client
}

// NewRedisEventPublisher creates a new RedisEventPublisher.
func NewRedisEventPublisher(rdb *redis.Client) *RedisEventPublisher {
	return &RedisEventPublisher{rdb: rdb}
}

func (p *RedisEventPublisher) Publish(ctx context.Context, event model.SessionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return p.rdb.Publish(ctx, config.CacheKey.ExamMonitorChannel(event.ExamID.String()), data).Err()
}

// Stream subscribes to an exam's monitor channel and yields raw event payloads until ctx ends
// or stop is called.
func (p *RedisEventPublisher) Stream(ctx context.Context, examID uuid.UUID) (<-chan string, func() error, error) {
	pubsub := p.rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(examID.String()))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe monitor channel: %w", err)
	}

	out := make(chan string)
	go func() {
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, pubsub.Close, nil
}
