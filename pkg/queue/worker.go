package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flowrun/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

// Backend is the storage a Worker pulls jobs from and pushes outcomes to.
type Backend interface {
	// Pop blocks until a job of family is available or ctx is done.
	Pop(ctx context.Context, family Family) (*Job, error)
	Retry(ctx context.Context, job *Job, delay time.Duration) error
	Bury(ctx context.Context, job *Job) error
	// Ack releases a popped job once its outcome is recorded. Jobs never
	// acknowledged are handed out again by backends that track leases.
	Ack(ctx context.Context, job *Job) error
}

// Worker runs handlers over jobs popped from a backend, applying the retry policy.
type Worker struct {
	Backend Backend
	Policy  RetryPolicy
	Logger  *slog.Logger
}

// Run starts concurrency loops for family and blocks until ctx is done.
func (w *Worker) Run(ctx context.Context, family Family, concurrency int, handler Handler) error {
	if concurrency < 1 {
		concurrency = 1
	}

	logger := w.Logger.With("family", family)
	group, ctx := errgroup.WithContext(ctx)

	for i := range concurrency {
		workerLogger := logger.With("worker_id", i)

		group.Go(func() error {
			for {
				job, err := w.Backend.Pop(ctx, family)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}

					if errors.Is(err, ErrClosed) {
						return nil
					}

					workerLogger.ErrorContext(ctx, "failed to pop job", "error", err)

					select {
					case <-ctx.Done():
						return nil
					case <-time.After(time.Second):
					}

					continue
				}

				if job == nil {
					continue
				}

				w.process(ctx, workerLogger, job, handler)
			}
		})
	}

	return group.Wait()
}

func (w *Worker) process(ctx context.Context, logger *slog.Logger, job *Job, handler Handler) {
	logger = logger.With("job_id", job.ID, "job_name", job.Name)
	started := time.Now()

	err := safeHandle(ctx, job, handler)

	defer func() {
		if ackErr := w.Backend.Ack(context.WithoutCancel(ctx), job); ackErr != nil {
			logger.ErrorContext(ctx, "failed to acknowledge job", "error", ackErr)
		}
	}()

	metrics.JobDuration.WithLabelValues(string(job.Family)).Observe(time.Since(started).Seconds())

	if err == nil {
		metrics.JobsProcessed.WithLabelValues(string(job.Family), "success").Inc()
		logger.DebugContext(ctx, "job completed")

		return
	}

	job.Attempt++
	job.LastError = err.Error()

	// Outcomes are recorded even after shutdown starts.
	ctx = context.WithoutCancel(ctx)

	if w.Policy.ShouldRetry(job.Attempt) {
		delay := w.Policy.Delay(job.Attempt)
		metrics.JobsProcessed.WithLabelValues(string(job.Family), "retry").Inc()
		logger.WarnContext(ctx, "job failed, retrying", "error", err, "attempt", job.Attempt, "delay", delay)

		if err := w.Backend.Retry(ctx, job, delay); err != nil {
			logger.ErrorContext(ctx, "failed to schedule retry", "error", err)
		}

		return
	}

	metrics.JobsProcessed.WithLabelValues(string(job.Family), "dead").Inc()
	logger.ErrorContext(ctx, "job failed permanently", "error", err, "attempt", job.Attempt)

	if err := w.Backend.Bury(ctx, job); err != nil {
		logger.ErrorContext(ctx, "failed to move job to dead set", "error", err)
	}
}

func safeHandle(ctx context.Context, job *Job, handler Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()

	return handler(ctx, job)
}
