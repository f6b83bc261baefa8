package core

import "context"

// State is the position of a worker loop in its dequeue, process, publish cycle.
type State int32

const (
	StateIdle State = iota
	StateDequeuing
	StateProcessing
	StatePublishing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateDequeuing:
		return "DEQUEUING"
	case StateProcessing:
		return "PROCESSING"
	case StatePublishing:
		return "PUBLISHING"
	default:
		return "UNKNOWN"
	}
}

type WorkerService interface {
	// Run consumes jobs until ctx is cancelled or the queue is closed.
	Run(ctx context.Context) error
	State() State
}
