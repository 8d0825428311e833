package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/semaphore"
)

const (
	defaultMaxAttempts    = 3
	defaultAttemptTimeout = 60 * time.Second
	defaultWorkers        = 4
	retryBackoff          = time.Second
)

// Runner pulls jobs off a queue and executes them concurrently. Each job gets
// MaxAttempts tries with AttemptTimeout each; once the budget is exhausted
// the failure handler runs exactly once for that job.
type Runner struct {
	Logger *slog.Logger
	Queue  *Queue

	// Handle executes one attempt of a job.
	Handle func(ctx context.Context, job Job) error
	// OnFailure runs after all attempts failed. Optional.
	OnFailure func(ctx context.Context, job Job, err error)

	// MaxAttempts defaults to 3.
	MaxAttempts int
	// AttemptTimeout defaults to 60s.
	AttemptTimeout time.Duration
	// Backoff between attempts defaults to 1s.
	Backoff time.Duration
	// Workers defaults to 4.
	Workers int
}

// Run processes jobs until the context is done, then waits for in-flight
// jobs to finish.
func (r *Runner) Run(ctx context.Context) error {
	workers := int64(r.workers())
	sem := semaphore.NewWeighted(workers)

	for {
		job, err := r.Queue.Dequeue(ctx)
		if err != nil {
			// Context is done. Drain in-flight jobs before returning.
			_ = sem.Acquire(context.Background(), workers)
			return nil
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			_ = sem.Acquire(context.Background(), workers)
			return nil
		}
		go func(job Job) {
			defer sem.Release(1)
			// In-flight jobs finish even when the runner is shutting down, so
			// a chirp is not left pending by a deploy.
			r.process(context.WithoutCancel(ctx), job)
		}(job)
	}
}

func (r *Runner) process(ctx context.Context, job Job) {
	attempt := 0
	backoff := retry.WithMaxRetries(uint64(r.maxAttempts()-1), retry.NewConstant(r.backoff()))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		actx, cancel := context.WithTimeout(ctx, r.attemptTimeout())
		defer cancel()

		if err := r.Handle(actx, job); err != nil {
			r.Logger.Warn("Moderation job attempt failed",
				"job_id", job.ID,
				"chirp_id", job.ChirpID,
				"attempt", attempt,
				"error", err.Error(),
			)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		r.Logger.Error("Moderation job failed permanently",
			"job_id", job.ID,
			"chirp_id", job.ChirpID,
			"attempts", attempt,
			"error", err.Error(),
		)
		if r.OnFailure != nil {
			r.OnFailure(ctx, job, err)
		}
	}
}

func (r *Runner) maxAttempts() int {
	if r.MaxAttempts > 0 {
		return r.MaxAttempts
	}
	return defaultMaxAttempts
}

func (r *Runner) attemptTimeout() time.Duration {
	if r.AttemptTimeout > 0 {
		return r.AttemptTimeout
	}
	return defaultAttemptTimeout
}

func (r *Runner) backoff() time.Duration {
	if r.Backoff > 0 {
		return r.Backoff
	}
	return retryBackoff
}

func (r *Runner) workers() int {
	if r.Workers > 0 {
		return r.Workers
	}
	return defaultWorkers
}
