package notify

import (
	"encoding/json"
	"fmt"
	"time"

	redisq "eve.evalgo.org/workflow/queue/redis"
)

// RedisQueue is the durable alternative to MemoryQueue, backing
// notification/webhook delivery with the Redis-backed generic job queue
// (_examples/evalgo-org-eve/queue/redis/queue.go, adapted to carry
// arbitrary payloads). Implements worker.Queue so it drops into the same
// Dispatcher/worker.Pool wiring as the default in-memory backend.
type RedisQueue struct {
	backend *redisq.Queue
}

// NewRedisQueue wraps an already-connected Redis-backed queue.
func NewRedisQueue(backend *redisq.Queue) *RedisQueue {
	return &RedisQueue{backend: backend}
}

func (q *RedisQueue) Enqueue(job interface{}) error {
	d, ok := job.(*Delivery)
	if !ok {
		return fmt.Errorf("notify: unsupported job type %T", job)
	}
	return q.backend.Enqueue(d.Kind, d)
}

func (q *RedisQueue) Dequeue(queueName string, timeout time.Duration) (interface{}, error) {
	raw, err := q.backend.Dequeue(queueName, timeout)
	if err != nil || raw == nil {
		return nil, err
	}
	var d Delivery
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("notify: failed to decode queued delivery: %w", err)
	}
	return &d, nil
}

func (q *RedisQueue) MarkProcessing(jobID string, deadline time.Time) error {
	return q.backend.MarkProcessing(jobID, deadline)
}

func (q *RedisQueue) CompleteJob(jobID string) error {
	return q.backend.CompleteJob(jobID)
}

// FailJob never requeues on the caller's behalf: deliveryProcessor.Process
// already re-enqueues with an incremented RetryCount when retries remain,
// so the requeue/retryCount arguments worker.Worker passes here are
// intentionally unused.
func (q *RedisQueue) FailJob(jobID string, requeue bool, queueName string, retryCount int) error {
	return q.backend.FailJob(jobID)
}

// Size sums the depth of both the email and webhook queues.
func (q *RedisQueue) Size() int {
	total := 0
	for _, kind := range []string{"email", "webhook"} {
		if n, err := q.backend.GetQueueDepth(kind); err == nil {
			total += n
		}
	}
	return total
}
