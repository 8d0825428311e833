package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
)

func TestQueue_EnqueueDequeue(t *testing.T) {
	ctx := context.Background()
	q := New(4)

	first, err := q.Enqueue(ctx, "chirp-1")
	if err != nil {
		t.Fatal(err)
	}
	if first.ID == "" {
		t.Error("Job has no ID")
	}
	if _, err := q.Enqueue(ctx, "chirp-2"); err != nil {
		t.Fatal(err)
	}
	if got := q.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}

	job, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if job.ChirpID != "chirp-1" {
		t.Errorf("Got chirp %q, want chirp-1 (FIFO)", job.ChirpID)
	}
}

func TestQueue_Full(t *testing.T) {
	ctx := context.Background()
	q := New(1)

	if _, err := q.Enqueue(ctx, "chirp-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Enqueue(ctx, "chirp-2"); !errors.Is(err, ErrFull) {
		t.Fatalf("Got error %v, want ErrFull", err)
	}
}

func TestQueue_DequeueContextDone(t *testing.T) {
	q := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := q.Dequeue(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Got error %v, want context.Canceled", err)
	}
}

func TestRunner_SucceedsAfterRetry(t *testing.T) {
	q := New(1)
	var attempts atomic.Int32
	var failures atomic.Int32

	done := make(chan struct{})
	r := &Runner{
		Logger:  slogt.New(t),
		Queue:   q,
		Backoff: time.Millisecond,
		Handle: func(ctx context.Context, job Job) error {
			if attempts.Add(1) == 1 {
				return errors.New("transient fault")
			}
			close(done)
			return nil
		},
		OnFailure: func(ctx context.Context, job Job, err error) {
			failures.Add(1)
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	if _, err := q.Enqueue(ctx, "chirp-1"); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Job did not complete")
	}
	if got := attempts.Load(); got != 2 {
		t.Errorf("Got %d attempts, want 2", got)
	}
	if failures.Load() != 0 {
		t.Error("Failure handler ran for a job that eventually succeeded")
	}
}

func TestRunner_FailureHandlerRunsOnceAfterAttemptsExhaust(t *testing.T) {
	q := New(1)
	var attempts atomic.Int32
	var failures atomic.Int32

	done := make(chan struct{})
	r := &Runner{
		Logger:  slogt.New(t),
		Queue:   q,
		Backoff: time.Millisecond,
		Handle: func(ctx context.Context, job Job) error {
			attempts.Add(1)
			return errors.New("persistent fault")
		},
		OnFailure: func(ctx context.Context, job Job, err error) {
			failures.Add(1)
			close(done)
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	if _, err := q.Enqueue(ctx, "chirp-1"); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Failure handler did not run")
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("Got %d attempts, want 3", got)
	}
	if got := failures.Load(); got != 1 {
		t.Errorf("Failure handler ran %d times, want 1", got)
	}
}

func TestRunner_DrainsInFlightJobsOnShutdown(t *testing.T) {
	q := New(1)
	started := make(chan struct{})
	finished := make(chan struct{})

	r := &Runner{
		Logger:  slogt.New(t),
		Queue:   q,
		Backoff: time.Millisecond,
		Handle: func(ctx context.Context, job Job) error {
			close(started)
			time.Sleep(50 * time.Millisecond)
			close(finished)
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		_ = r.Run(ctx)
		close(runDone)
	}()

	if _, err := q.Enqueue(ctx, "chirp-1"); err != nil {
		t.Fatal(err)
	}
	<-started
	cancel()

	select {
	case <-runDone:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	select {
	case <-finished:
	default:
		t.Error("Run returned before the in-flight job finished")
	}
}
