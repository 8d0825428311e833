// Package queue provides the asynchronous dispatch of moderation work: an
// explicit in-process job queue and a runner that executes each job with a
// bounded attempt budget and per-attempt timeout.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrFull is returned by Enqueue when the queue has no capacity left.
var ErrFull = errors.New("queue: full")

// A Job asks the moderation pipeline to resolve a single chirp. Jobs carry no
// sequencing token: when a chirp is edited twice in quick succession both
// jobs run and the moderation fields settle last-write-wins.
type Job struct {
	ID         string
	ChirpID    string
	EnqueuedAt time.Time
}

// Queue is a bounded FIFO of moderation jobs. The submitting request returns
// as soon as its job is enqueued and never blocks on moderation.
type Queue struct {
	jobs chan Job
}

// New returns a queue holding at most size pending jobs.
func New(size int) *Queue {
	return &Queue{
		jobs: make(chan Job, size),
	}
}

// Enqueue adds a moderation job for the given chirp. It fails with ErrFull
// rather than blocking the submitting request.
func (q *Queue) Enqueue(_ context.Context, chirpID string) (Job, error) {
	job := Job{
		ID:         uuid.NewString(),
		ChirpID:    chirpID,
		EnqueuedAt: time.Now(),
	}
	select {
	case q.jobs <- job:
		return job, nil
	default:
		return Job{}, ErrFull
	}
}

// Dequeue blocks until a job is available or the context is done.
func (q *Queue) Dequeue(ctx context.Context) (Job, error) {
	select {
	case job := <-q.jobs:
		return job, nil
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

// Len returns the number of jobs waiting to be dequeued.
func (q *Queue) Len() int {
	return len(q.jobs)
}
