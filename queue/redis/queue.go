// Package redis provides a Redis-backed job queue implementation.
// This package offers distributed queue operations with blocking dequeue and processing tracking.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue handles job queue operations using Redis. Jobs are opaque to the
// queue: Enqueue/Dequeue marshal/unmarshal whatever the caller passes
// through, so this package has no notion of what a "job" contains — only
// that it has a queue name and survives a JSON round trip.
type Queue struct {
	client *redis.Client
	ctx    context.Context
	prefix string // Key prefix for queue keys (e.g., "notify:")
}

// Config configures the Redis queue
type Config struct {
	RedisURL  string // Redis URL (defaults to WORKFLOW_REDIS_URL or redis://localhost:6379/0)
	KeyPrefix string // Key prefix for queue keys (defaults to "queue:")
}

// NewQueue creates a new Redis queue client
func NewQueue(ctx context.Context, config Config) (*Queue, error) {
	redisURL := config.RedisURL
	if redisURL == "" {
		redisURL = os.Getenv("WORKFLOW_REDIS_URL")
	}
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := config.KeyPrefix
	if prefix == "" {
		prefix = "queue:"
	}

	return &Queue{
		client: client,
		ctx:    ctx,
		prefix: prefix,
	}, nil
}

// Close closes the Redis connection
func (q *Queue) Close() error {
	return q.client.Close()
}

// queueEnvelope is the wire shape every job is wrapped in so Dequeue can
// route without knowing the payload type.
type queueEnvelope struct {
	QueueName string          `json:"queueName"`
	Payload   json.RawMessage `json:"payload"`
}

// Enqueue appends job (marshaled as JSON) to the named queue. job must
// itself marshal to an object carrying enough information for the caller
// to recover a queue name on Dequeue; the queue name to push onto is taken
// from queueName.
func (q *Queue) Enqueue(queueName string, job interface{}) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	envelope, err := json.Marshal(queueEnvelope{QueueName: queueName, Payload: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	queueKey := fmt.Sprintf("%s%s", q.prefix, queueName)
	return q.client.RPush(q.ctx, queueKey, string(envelope)).Err()
}

// Dequeue removes and returns the next job's raw payload from a queue
// (blocking up to timeout). Returns nil payload, nil error on timeout.
func (q *Queue) Dequeue(queueName string, timeout time.Duration) (json.RawMessage, error) {
	queueKey := fmt.Sprintf("%s%s", q.prefix, queueName)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result, err := q.client.BLPop(ctx, timeout, queueKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}
	if len(result) < 2 {
		return nil, nil
	}

	var envelope queueEnvelope
	if err := json.Unmarshal([]byte(result[1]), &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return envelope.Payload, nil
}

// MarkProcessing adds a job id to the processing set with a deadline.
func (q *Queue) MarkProcessing(jobID string, deadline time.Time) error {
	processingKey := fmt.Sprintf("%sprocessing", q.prefix)
	return q.client.ZAdd(q.ctx, processingKey, redis.Z{
		Score:  float64(deadline.Unix()),
		Member: jobID,
	}).Err()
}

// CompleteJob removes a job id from the processing set.
func (q *Queue) CompleteJob(jobID string) error {
	processingKey := fmt.Sprintf("%sprocessing", q.prefix)
	return q.client.ZRem(q.ctx, processingKey, jobID).Err()
}

// FailJob removes a job id from the processing set. Unlike the in-process
// worker pool, this queue never reconstructs a job body to requeue:
// requeuing is the caller's job, since only the caller (notify's
// dispatcher) still holds the payload with an incremented retry count.
func (q *Queue) FailJob(jobID string) error {
	return q.CompleteJob(jobID)
}

// GetQueueDepth returns the number of jobs waiting in a queue.
func (q *Queue) GetQueueDepth(queueName string) (int, error) {
	queueKey := fmt.Sprintf("%s%s", q.prefix, queueName)
	depth, err := q.client.LLen(q.ctx, queueKey).Result()
	if err != nil {
		return 0, err
	}
	return int(depth), nil
}
