package notify

import (
	"fmt"
	"sync"
	"time"
)

// MemoryQueue is the default, in-process notification queue: one buffered
// channel per delivery kind ("email", "webhook"). It implements
// worker.Queue so it can drive worker.Pool directly, generalizing the
// teacher's Queue/JobProcessor/Pool/Worker shape from "queue of jobs" to
// "queue of notification/webhook deliveries" (grounded on
// _examples/evalgo-org-eve/worker/pool.go). Translates Python's
// queue.Queue()+qsize() into idiomatic buffered channels.
type MemoryQueue struct {
	mu       sync.Mutex
	channels map[string]chan interface{}
	capacity int
}

// NewMemoryQueue builds a MemoryQueue where each kind's channel holds up
// to capacity pending deliveries before Enqueue starts rejecting.
func NewMemoryQueue(capacity int) *MemoryQueue {
	return &MemoryQueue{channels: make(map[string]chan interface{}), capacity: capacity}
}

func (q *MemoryQueue) channelFor(kind string) chan interface{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	ch, ok := q.channels[kind]
	if !ok {
		ch = make(chan interface{}, q.capacity)
		q.channels[kind] = ch
	}
	return ch
}

// Enqueue implements worker.Queue. job must be a *Delivery; its Kind
// selects the channel.
func (q *MemoryQueue) Enqueue(job interface{}) error {
	d, ok := job.(*Delivery)
	if !ok {
		return fmt.Errorf("notify: unsupported job type %T", job)
	}
	select {
	case q.channelFor(d.Kind) <- job:
		return nil
	default:
		return fmt.Errorf("notify: %s queue is full", d.Kind)
	}
}

// Dequeue implements worker.Queue, blocking up to timeout for the next job.
func (q *MemoryQueue) Dequeue(queueName string, timeout time.Duration) (interface{}, error) {
	select {
	case job := <-q.channelFor(queueName):
		return job, nil
	case <-time.After(timeout):
		return nil, nil
	}
}

// MarkProcessing, CompleteJob and FailJob are no-ops: MemoryQueue keeps no
// separate processing bookkeeping, since retry/failure accounting lives in
// deliveryProcessor (the pool's JobProcessor), not the queue, matching worker.Pool's own
// "processor should handle retry logic" contract.
func (q *MemoryQueue) MarkProcessing(jobID string, deadline time.Time) error { return nil }
func (q *MemoryQueue) CompleteJob(jobID string) error                        { return nil }
func (q *MemoryQueue) FailJob(jobID string, requeue bool, queueName string, retryCount int) error {
	return nil
}

// Size returns the total number of deliveries currently queued across all
// kinds, matching get_queue_size/qsize.
func (q *MemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	total := 0
	for _, ch := range q.channels {
		total += len(ch)
	}
	return total
}
