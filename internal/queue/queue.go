package queue

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smefinder/smefinder/pkg/errors"
	"github.com/smefinder/smefinder/pkg/logging"
)

// Redis keys for the embedding queue
const (
	pendingKey    = "smefinder:embeddings:pending"
	deadLetterKey = "smefinder:embeddings:dead"
)

// Queue is a Redis-backed FIFO of embedding jobs. Producers push from the
// webhook path; the worker blocks on Dequeue.
type Queue struct {
	redis  *RedisClient
	logger *logging.Logger
}

// NewQueue creates a queue over the given Redis connection
func NewQueue(redisClient *RedisClient) *Queue {
	return &Queue{
		redis:  redisClient,
		logger: logging.GetLogger().WithComponent("embedding_queue"),
	}
}

// Enqueue pushes a job onto the pending list
func (q *Queue) Enqueue(ctx context.Context, job *EmbeddingJob) error {
	payload, err := job.ToJSON()
	if err != nil {
		return errors.NewInternalError("failed to encode job").WithCause(err)
	}
	if err := q.redis.Client().LPush(ctx, pendingKey, payload).Err(); err != nil {
		return errors.NewInternalError("failed to enqueue job").WithCause(err)
	}

	q.logger.WithContext(ctx).Debug("Embedding job enqueued",
		"job_id", job.ID, "ticket_id", job.TicketID)
	return nil
}

// Dequeue blocks up to timeout for the next job. A nil job with a nil
// error means the timeout elapsed with the queue empty.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*EmbeddingJob, error) {
	values, err := q.redis.Client().BRPop(ctx, timeout, pendingKey).Result()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NewInternalError("failed to dequeue job").WithCause(err)
	}
	// BRPop returns [key, value].
	if len(values) != 2 {
		return nil, errors.NewInternalError("unexpected BRPOP reply shape")
	}

	job, err := JobFromJSON([]byte(values[1]))
	if err != nil {
		return nil, errors.NewInternalError("failed to decode job").WithCause(err)
	}
	return job, nil
}

// Requeue returns a failed job to the pending list for another attempt
func (q *Queue) Requeue(ctx context.Context, job *EmbeddingJob) error {
	job.Status = JobStatusQueued
	return q.Enqueue(ctx, job)
}

// DeadLetter parks a job that exhausted its retry budget
func (q *Queue) DeadLetter(ctx context.Context, job *EmbeddingJob) error {
	payload, err := job.ToJSON()
	if err != nil {
		return errors.NewInternalError("failed to encode job").WithCause(err)
	}
	if err := q.redis.Client().LPush(ctx, deadLetterKey, payload).Err(); err != nil {
		return errors.NewInternalError("failed to dead-letter job").WithCause(err)
	}

	q.logger.WithContext(ctx).Warn("Embedding job dead-lettered",
		"job_id", job.ID, "ticket_id", job.TicketID, "error", job.LastError)
	return nil
}

// PendingCount returns the current depth of the pending list
func (q *Queue) PendingCount(ctx context.Context) (int64, error) {
	count, err := q.redis.Client().LLen(ctx, pendingKey).Result()
	if err != nil {
		return 0, errors.NewInternalError("failed to read queue depth").WithCause(err)
	}
	return count, nil
}
