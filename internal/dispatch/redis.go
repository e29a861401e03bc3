package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueKey is the Redis list holding queued job ids.
const DefaultQueueKey = "bulkimport:jobs"

// RedisQueue pushes job ids onto a Redis list.
type RedisQueue struct {
	client redis.UniversalClient
	key    string
}

// NewRedisQueue returns a dispatcher backed by the list at key.
func NewRedisQueue(client redis.UniversalClient, key string) *RedisQueue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Dispatch(ctx context.Context, jobID uuid.UUID) error {
	if err := q.client.LPush(ctx, q.key, jobID.String()).Err(); err != nil {
		return fmt.Errorf("enqueue import job: %w", err)
	}
	return nil
}

// Worker pops job ids from a Redis list and processes them one at a time.
type Worker struct {
	client      redis.UniversalClient
	key         string
	runner      Runner
	logger      *slog.Logger
	pollTimeout time.Duration
	retryDelay  time.Duration
}

// NewWorker builds a worker for the list at key.
func NewWorker(client redis.UniversalClient, key string, runner Runner, logger *slog.Logger) *Worker {
	if key == "" {
		key = DefaultQueueKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		client:      client,
		key:         key,
		runner:      runner,
		logger:      logger,
		pollTimeout: 5 * time.Second,
		retryDelay:  time.Second,
	}
}

// Run consumes the queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("import worker started", "queue", w.key)
	for {
		if ctx.Err() != nil {
			w.logger.Info("import worker stopped", "queue", w.key)
			return nil
		}

		result, err := w.client.BRPop(ctx, w.pollTimeout, w.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			w.logger.Error("failed to pop import job", "queue", w.key, "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(w.retryDelay):
			}
			continue
		}

		// BRPOP replies with [key, value].
		if len(result) != 2 {
			w.logger.Warn("unexpected queue reply", "reply", result)
			continue
		}
		w.handle(ctx, result[1])
	}
}

func (w *Worker) handle(ctx context.Context, raw string) {
	jobID, err := uuid.Parse(raw)
	if err != nil {
		w.logger.Warn("discarding malformed job id", "value", raw, "error", err)
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			w.logger.Error("panic while processing import job", "job_id", jobID, "panic", fmt.Sprint(rec))
		}
	}()

	if err := w.runner.Process(ctx, jobID); err != nil {
		w.logger.Error("import job failed", "job_id", jobID, "error", err)
	}
}
