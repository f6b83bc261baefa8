package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nemanja-m/inferq/internal/broker/core"
)

// MemoryQueue is an in-process FIFO job queue. It is safe for concurrent use
// by any number of producers and consumers.
//
// With a visibility timeout, dequeued jobs stay in flight until acknowledged
// and are put back at the head of the queue once their deadline passes.
type MemoryQueue struct {
	mu       sync.Mutex
	items    []entry
	inflight map[string]inflightEntry
	sequence uint64
	closed   bool

	// ready is closed and replaced whenever items are added, waking blocked consumers.
	ready chan struct{}

	capacity   int
	visibility time.Duration
}

type entry struct {
	job     core.Job
	attempt int
}

type inflightEntry struct {
	entry
	deadline time.Time
}

type MemoryQueueConfig struct {
	// Capacity bounds the number of pending jobs. Zero means unbounded.
	Capacity int
	// VisibilityTimeout enables redelivery of unacknowledged jobs. Zero disables it.
	VisibilityTimeout time.Duration
}

func NewMemoryQueue(cfg MemoryQueueConfig) *MemoryQueue {
	return &MemoryQueue{
		items:      make([]entry, 0, 64),
		inflight:   make(map[string]inflightEntry),
		ready:      make(chan struct{}),
		capacity:   cfg.Capacity,
		visibility: cfg.VisibilityTimeout,
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job core.Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return core.ErrQueueClosed
	}
	if q.capacity > 0 && len(q.items) >= q.capacity {
		return fmt.Errorf("%w: capacity %d reached", core.ErrQueueFull, q.capacity)
	}
	q.items = append(q.items, entry{job: job, attempt: 1})
	q.signalLocked()
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (core.Delivery, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return core.Delivery{}, false, core.ErrQueueClosed
		}
		q.requeueExpiredLocked(time.Now())
		if len(q.items) > 0 {
			d := q.popLocked()
			q.mu.Unlock()
			return d, true, nil
		}
		ready := q.ready
		expiry := q.nextDeadlineLocked()
		q.mu.Unlock()

		var expired <-chan time.Time
		if !expiry.IsZero() {
			expired = time.After(time.Until(expiry))
		}

		select {
		case <-ctx.Done():
			return core.Delivery{}, false, ctx.Err()
		case <-timer.C:
			return core.Delivery{}, false, nil
		case <-ready:
		case <-expired:
		}
	}
}

func (q *MemoryQueue) Ack(_ context.Context, d core.Delivery) error {
	if d.Receipt == "" {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	// An unknown receipt means the delivery already expired and was handed out again.
	delete(q.inflight, d.Receipt)
	return nil
}

func (q *MemoryQueue) Cancel(_ context.Context, jobID string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.items {
		if e.job.ID == jobID {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (q *MemoryQueue) RequeueExpired(_ context.Context, now time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.requeueExpiredLocked(now), nil
}

func (q *MemoryQueue) Len(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items), nil
}

// InFlight returns the number of dequeued but unacknowledged jobs.
func (q *MemoryQueue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight)
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		q.signalLocked()
	}
	return nil
}

func (q *MemoryQueue) popLocked() core.Delivery {
	head := q.items[0]
	q.items[0] = entry{}
	q.items = q.items[1:]

	d := core.Delivery{Job: head.job, Attempt: head.attempt}
	if q.visibility > 0 {
		q.sequence++
		d.Receipt = fmt.Sprintf("mem:%d", q.sequence)
		q.inflight[d.Receipt] = inflightEntry{entry: head, deadline: time.Now().Add(q.visibility)}
	}
	return d
}

func (q *MemoryQueue) requeueExpiredLocked(now time.Time) int {
	if len(q.inflight) == 0 {
		return 0
	}
	var expired []entry
	for receipt, in := range q.inflight {
		if in.deadline.After(now) {
			continue
		}
		delete(q.inflight, receipt)
		expired = append(expired, entry{job: in.job, attempt: in.attempt + 1})
	}
	if len(expired) == 0 {
		return 0
	}
	sort.SliceStable(expired, func(i, j int) bool {
		return expired[i].job.EnqueuedAt.Before(expired[j].job.EnqueuedAt)
	})
	// Redelivered jobs are older than anything pending, so they go first.
	q.items = append(expired, q.items...)
	q.signalLocked()
	return len(expired)
}

// nextDeadlineLocked returns the earliest in-flight deadline, or the zero time.
func (q *MemoryQueue) nextDeadlineLocked() time.Time {
	var next time.Time
	for _, in := range q.inflight {
		if next.IsZero() || in.deadline.Before(next) {
			next = in.deadline
		}
	}
	return next
}

func (q *MemoryQueue) signalLocked() {
	close(q.ready)
	q.ready = make(chan struct{})
}
