package queue

import (
	"context"

	"github.com/souqbot/server/internal/bot/model"
)

// DefaultCapacity bounds the shared queue when no capacity is configured.
const DefaultCapacity = 100

// Dispatch is the single bounded FIFO shared by all tenant sessions. Enqueue
// blocks while the queue is full and Dequeue blocks while it is empty; both
// abort when their context is cancelled.
//
// There is no per-tenant fairness: a burst from one tenant delays the others.
// That is a deliberate simplicity tradeoff; callers needing fairness would
// have to layer per-tenant sub-queues on top.
type Dispatch struct {
	jobs chan model.InboundJob
}

func NewDispatch(capacity int) *Dispatch {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Dispatch{jobs: make(chan model.InboundJob, capacity)}
}

// Enqueue submits a job, suspending the caller while the queue is full. This
// is the backpressure point for session event handlers.
func (d *Dispatch) Enqueue(ctx context.Context, job model.InboundJob) error {
	select {
	case d.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue claims the next job, suspending the caller while the queue is
// empty. Each job is delivered to exactly one caller.
func (d *Dispatch) Dequeue(ctx context.Context) (model.InboundJob, error) {
	select {
	case job := <-d.jobs:
		return job, nil
	case <-ctx.Done():
		return model.InboundJob{}, ctx.Err()
	}
}

// Len returns the number of queued jobs.
func (d *Dispatch) Len() int {
	return len(d.jobs)
}

// Cap returns the queue capacity.
func (d *Dispatch) Cap() int {
	return cap(d.jobs)
}
