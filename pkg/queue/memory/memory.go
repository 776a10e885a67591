// Package memory provides an in-process queue backend.
package memory

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/dukex/flowrun/pkg/queue"
	"github.com/robfig/cron/v3"
)

type repeatable struct {
	entry    cron.EntryID
	schedule queue.Schedule
	job      *queue.Job
}

// Queue keeps jobs in memory. Delayed jobs are timers and repeatable jobs are
// entries of a robfig cron scheduler.
type Queue struct {
	mu      sync.Mutex
	ready   map[queue.Family][]*queue.Job
	signal  map[queue.Family]chan struct{}
	delayed map[string]*time.Timer
	dead    []*queue.Job
	repeat  map[string]repeatable
	cron    *cron.Cron
	closed  bool

	worker *queue.Worker
	logger *slog.Logger
}

var _ queue.Queue = (*Queue)(nil)

// New creates a started in-memory queue.
func New(logger *slog.Logger, policy queue.RetryPolicy) *Queue {
	logger = logger.With("module", "queue", "backend", "memory")

	q := &Queue{
		ready: make(map[queue.Family][]*queue.Job),
		signal: map[queue.Family]chan struct{}{
			queue.FamilyWorkflow: make(chan struct{}, 1),
			queue.FamilyNode:     make(chan struct{}, 1),
		},
		delayed: make(map[string]*time.Timer),
		repeat:  make(map[string]repeatable),
		cron:    cron.New(),
		logger:  logger,
	}

	q.worker = &queue.Worker{Backend: q, Policy: policy, Logger: logger}
	q.cron.Start()

	return q
}

func (q *Queue) Add(_ context.Context, job *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return queue.ErrClosed
	}

	q.push(job)

	return nil
}

// push requires q.mu.
func (q *Queue) push(job *queue.Job) {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	q.ready[job.Family] = append(q.ready[job.Family], job)
	q.notify(job.Family)
}

// notify requires q.mu.
func (q *Queue) notify(family queue.Family) {
	select {
	case q.signal[family] <- struct{}{}:
	default:
	}
}

func (q *Queue) AddDelayed(ctx context.Context, job *queue.Job, delay time.Duration) error {
	if delay <= 0 {
		return q.Add(ctx, job)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return queue.ErrClosed
	}

	q.delayed[job.ID] = time.AfterFunc(delay, func() {
		q.mu.Lock()
		defer q.mu.Unlock()

		if _, ok := q.delayed[job.ID]; !ok {
			return
		}

		delete(q.delayed, job.ID)
		q.push(job)
	})

	return nil
}

func (q *Queue) UpsertRepeatable(_ context.Context, key string, schedule queue.Schedule, job *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return queue.ErrClosed
	}

	if existing, ok := q.repeat[key]; ok {
		q.cron.Remove(existing.entry)
	}

	entry, err := q.cron.AddFunc(schedule.Spec(), func() {
		tick := job.Clone()

		if err := q.Add(context.Background(), tick); err != nil {
			q.logger.Error("failed to enqueue repeatable job", "key", key, "error", err)
		}
	})
	if err != nil {
		return err
	}

	q.repeat[key] = repeatable{entry: entry, schedule: schedule, job: job}

	return nil
}

func (q *Queue) RemoveRepeatable(_ context.Context, key string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if existing, ok := q.repeat[key]; ok {
		q.cron.Remove(existing.entry)
		delete(q.repeat, key)
	}

	return nil
}

func (q *Queue) ListRepeatable(_ context.Context) ([]queue.Repeatable, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	list := make([]queue.Repeatable, 0, len(q.repeat))

	for _, key := range slices.Sorted(maps.Keys(q.repeat)) {
		r := q.repeat[key]
		list = append(list, queue.Repeatable{
			Key:      key,
			Cron:     r.schedule.Expr,
			Timezone: r.schedule.Timezone,
			Job:      r.job,
			NextRun:  r.schedule.Next(now),
		})
	}

	return list, nil
}

func (q *Queue) Consume(ctx context.Context, family queue.Family, concurrency int, handler queue.Handler) error {
	return q.worker.Run(ctx, family, concurrency, handler)
}

// Pop implements queue.Backend.
func (q *Queue) Pop(ctx context.Context, family queue.Family) (*queue.Job, error) {
	for {
		q.mu.Lock()

		if q.closed {
			q.mu.Unlock()

			return nil, queue.ErrClosed
		}

		if jobs := q.ready[family]; len(jobs) > 0 {
			job := jobs[0]
			q.ready[family] = jobs[1:]

			if len(jobs) > 1 {
				q.notify(family)
			}

			q.mu.Unlock()

			return job, nil
		}

		signal := q.signal[family]
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-signal:
		}
	}
}

// Retry implements queue.Backend.
func (q *Queue) Retry(ctx context.Context, job *queue.Job, delay time.Duration) error {
	return q.AddDelayed(ctx, job, delay)
}

// Ack implements queue.Backend. Popped jobs live only in the handler.
func (q *Queue) Ack(context.Context, *queue.Job) error {
	return nil
}

// Bury implements queue.Backend.
func (q *Queue) Bury(_ context.Context, job *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.dead = append(q.dead, job)

	return nil
}

// Dead returns the jobs that exhausted their attempts.
func (q *Queue) Dead() []*queue.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	return slices.Clone(q.dead)
}

func (q *Queue) Stats(_ context.Context) (queue.Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := 0
	for _, jobs := range q.ready {
		pending += len(jobs)
	}

	return queue.Stats{Pending: pending, Delayed: len(q.delayed), Dead: len(q.dead)}, nil
}

func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	q.cron.Stop()

	for id, timer := range q.delayed {
		timer.Stop()
		delete(q.delayed, id)
	}

	for _, signal := range q.signal {
		close(signal)
	}

	return nil
}
