// Package redisqueue provides a queue backend on Redis lists and sorted sets.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/dukex/flowrun/pkg/queue"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultPrefix       = "flowrun"
	DefaultPollInterval = 500 * time.Millisecond
	DefaultLeaseTimeout = 5 * time.Minute

	popTimeout = time.Second
	batchSize  = 100
)

// Options configures a Queue.
type Options struct {
	Prefix       string
	PollInterval time.Duration
	// LeaseTimeout is how long a popped job may stay unacknowledged before the
	// poller hands it out again. It must exceed the longest handler run.
	LeaseTimeout time.Duration
	Policy       queue.RetryPolicy
}

// Queue stores ready jobs in one list per family. Delayed jobs and the next
// run of repeatable jobs live in sorted sets scored by due time; a poller
// moves due entries to the ready lists. Entries are claimed with ZREM so
// several processes can poll the same keys.
//
// Pop moves a job into a per-family processing list and leases it; Ack removes
// it. Jobs whose lease expires, for instance after a worker crash, go back to
// the ready list, so every job is handled at least once.
type Queue struct {
	client *redis.Client
	prefix string
	poll   time.Duration
	lease  time.Duration
	worker *queue.Worker
	logger *slog.Logger

	mu       sync.Mutex
	inflight map[string]inflightJob

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

var _ queue.Queue = (*Queue)(nil)

// New creates a queue and starts its poller. The client stays owned by the caller.
func New(client *redis.Client, logger *slog.Logger, opts Options) *Queue {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	if opts.LeaseTimeout <= 0 {
		opts.LeaseTimeout = DefaultLeaseTimeout
	}

	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = queue.DefaultRetryPolicy
	}

	logger = logger.With("module", "queue", "backend", "redis")
	ctx, cancel := context.WithCancel(context.Background())

	q := &Queue{
		client: client,
		prefix: opts.Prefix,
		poll:     opts.PollInterval,
		lease:    opts.LeaseTimeout,
		logger:   logger,
		cancel:   cancel,
		inflight: make(map[string]inflightJob),
	}

	q.worker = &queue.Worker{Backend: q, Policy: opts.Policy, Logger: logger}

	q.wg.Add(1)

	go q.runPoller(ctx)

	return q
}

func (q *Queue) readyKey(family queue.Family) string { return q.prefix + ":ready:" + string(family) }
func (q *Queue) delayedKey() string                  { return q.prefix + ":delayed" }
func (q *Queue) deadKey() string                     { return q.prefix + ":dead" }
func (q *Queue) repeatKey() string                   { return q.prefix + ":repeat" }
func (q *Queue) repeatNextKey() string               { return q.prefix + ":repeat:next" }

func (q *Queue) processingKey(family queue.Family) string {
	return q.prefix + ":processing:" + string(family)
}

func (q *Queue) leaseKey(family queue.Family) string { return q.prefix + ":leases:" + string(family) }

var families = []queue.Family{queue.FamilyWorkflow, queue.FamilyNode}

type inflightJob struct {
	family queue.Family
	data   string
}

func (q *Queue) Add(ctx context.Context, job *queue.Job) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	if err := q.client.LPush(ctx, q.readyKey(job.Family), data).Err(); err != nil {
		return fmt.Errorf("failed to push job %s: %w", job.ID, err)
	}

	return nil
}

func (q *Queue) AddDelayed(ctx context.Context, job *queue.Job, delay time.Duration) error {
	if delay <= 0 {
		return q.Add(ctx, job)
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	due := time.Now().Add(delay).UnixMilli()

	err = q.client.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(due), Member: data}).Err()
	if err != nil {
		return fmt.Errorf("failed to delay job %s: %w", job.ID, err)
	}

	return nil
}

func (q *Queue) UpsertRepeatable(ctx context.Context, key string, schedule queue.Schedule, job *queue.Job) error {
	next := schedule.Next(time.Now())

	data, err := json.Marshal(queue.Repeatable{
		Key:      key,
		Cron:     schedule.Expr,
		Timezone: schedule.Timezone,
		Job:      job,
		NextRun:  next,
	})
	if err != nil {
		return fmt.Errorf("failed to encode repeatable job: %w", err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.repeatKey(), key, data)
		pipe.ZAdd(ctx, q.repeatNextKey(), redis.Z{Score: float64(next.UnixMilli()), Member: key})

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to upsert repeatable job %s: %w", key, err)
	}

	return nil
}

func (q *Queue) RemoveRepeatable(ctx context.Context, key string) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, q.repeatKey(), key)
		pipe.ZRem(ctx, q.repeatNextKey(), key)

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove repeatable job %s: %w", key, err)
	}

	return nil
}

func (q *Queue) ListRepeatable(ctx context.Context) ([]queue.Repeatable, error) {
	entries, err := q.client.HGetAll(ctx, q.repeatKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list repeatable jobs: %w", err)
	}

	list := make([]queue.Repeatable, 0, len(entries))

	for key, data := range entries {
		var repeatable queue.Repeatable
		if err := json.Unmarshal([]byte(data), &repeatable); err != nil {
			return nil, fmt.Errorf("failed to decode repeatable job %s: %w", key, err)
		}

		if score, err := q.client.ZScore(ctx, q.repeatNextKey(), key).Result(); err == nil {
			repeatable.NextRun = time.UnixMilli(int64(score)).UTC()
		}

		list = append(list, repeatable)
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].Key < list[j].Key
	})

	return list, nil
}

func (q *Queue) Consume(ctx context.Context, family queue.Family, concurrency int, handler queue.Handler) error {
	return q.worker.Run(ctx, family, concurrency, handler)
}

// Pop implements queue.Backend. It returns a nil job when nothing arrived
// within the pop timeout.
func (q *Queue) Pop(ctx context.Context, family queue.Family) (*queue.Job, error) {
	data, err := q.client.BLMove(ctx, q.readyKey(family), q.processingKey(family), "RIGHT", "LEFT", popTimeout).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		if errors.Is(err, redis.ErrClosed) {
			return nil, queue.ErrClosed
		}

		return nil, fmt.Errorf("failed to pop %s job: %w", family, err)
	}

	deadline := time.Now().Add(q.lease).UnixMilli()
	if err := q.client.ZAdd(ctx, q.leaseKey(family), redis.Z{Score: float64(deadline), Member: data}).Err(); err != nil {
		q.logger.WarnContext(ctx, "failed to lease job", "error", err)
	}

	var job queue.Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		q.release(ctx, family, data)

		return nil, fmt.Errorf("failed to decode job: %w", err)
	}

	q.mu.Lock()
	q.inflight[job.ID] = inflightJob{family: family, data: data}
	q.mu.Unlock()

	return &job, nil
}

// Ack implements queue.Backend.
func (q *Queue) Ack(ctx context.Context, job *queue.Job) error {
	q.mu.Lock()
	entry, ok := q.inflight[job.ID]
	delete(q.inflight, job.ID)
	q.mu.Unlock()

	if !ok {
		return nil
	}

	return q.release(ctx, entry.family, entry.data)
}

func (q *Queue) release(ctx context.Context, family queue.Family, data string) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processingKey(family), 1, data)
		pipe.ZRem(ctx, q.leaseKey(family), data)

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to release job: %w", err)
	}

	return nil
}

// Retry implements queue.Backend.
func (q *Queue) Retry(ctx context.Context, job *queue.Job, delay time.Duration) error {
	return q.AddDelayed(ctx, job, delay)
}

// Bury implements queue.Backend.
func (q *Queue) Bury(ctx context.Context, job *queue.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	return q.client.LPush(ctx, q.deadKey(), data).Err()
}

// Dead returns the jobs that exhausted their attempts, newest first.
func (q *Queue) Dead(ctx context.Context) ([]*queue.Job, error) {
	entries, err := q.client.LRange(ctx, q.deadKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dead jobs: %w", err)
	}

	jobs := make([]*queue.Job, 0, len(entries))

	for _, data := range entries {
		var job queue.Job
		if err := json.Unmarshal([]byte(data), &job); err != nil {
			return nil, fmt.Errorf("failed to decode dead job: %w", err)
		}

		jobs = append(jobs, &job)
	}

	return jobs, nil
}

func (q *Queue) Stats(ctx context.Context) (queue.Stats, error) {
	pipe := q.client.Pipeline()
	workflow := pipe.LLen(ctx, q.readyKey(queue.FamilyWorkflow))
	node := pipe.LLen(ctx, q.readyKey(queue.FamilyNode))
	workflowProcessing := pipe.LLen(ctx, q.processingKey(queue.FamilyWorkflow))
	nodeProcessing := pipe.LLen(ctx, q.processingKey(queue.FamilyNode))
	delayed := pipe.ZCard(ctx, q.delayedKey())
	dead := pipe.LLen(ctx, q.deadKey())

	if _, err := pipe.Exec(ctx); err != nil {
		return queue.Stats{}, fmt.Errorf("failed to read queue stats: %w", err)
	}

	return queue.Stats{
		Pending: int(workflow.Val() + node.Val()),
		Running: int(workflowProcessing.Val() + nodeProcessing.Val()),
		Delayed: int(delayed.Val()),
		Dead:    int(dead.Val()),
	}, nil
}

// Close stops the poller.
func (q *Queue) Close() error {
	q.once.Do(func() {
		q.cancel()
		q.wg.Wait()
	})

	return nil
}

func (q *Queue) runPoller(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()

			if err := q.promoteDelayed(ctx, now); err != nil && ctx.Err() == nil {
				q.logger.ErrorContext(ctx, "failed to promote delayed jobs", "error", err)
			}

			if err := q.fireRepeatable(ctx, now); err != nil && ctx.Err() == nil {
				q.logger.ErrorContext(ctx, "failed to enqueue repeatable jobs", "error", err)
			}

			if err := q.requeueExpired(ctx, now); err != nil && ctx.Err() == nil {
				q.logger.ErrorContext(ctx, "failed to requeue expired jobs", "error", err)
			}
		}
	}
}

func (q *Queue) due(ctx context.Context, key string, now time.Time) ([]string, error) {
	return q.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: batchSize,
	}).Result()
}

func (q *Queue) promoteDelayed(ctx context.Context, now time.Time) error {
	members, err := q.due(ctx, q.delayedKey(), now)
	if err != nil {
		return err
	}

	for _, member := range members {
		claimed, err := q.client.ZRem(ctx, q.delayedKey(), member).Result()
		if err != nil {
			return err
		}

		if claimed == 0 {
			continue
		}

		var job queue.Job
		if err := json.Unmarshal([]byte(member), &job); err != nil {
			q.logger.ErrorContext(ctx, "dropping undecodable delayed job", "error", err)

			continue
		}

		if err := q.client.LPush(ctx, q.readyKey(job.Family), member).Err(); err != nil {
			return err
		}
	}

	return nil
}

// requeueExpired moves processing entries whose lease ran out back to the
// ready list. Entries left without a lease by a crash right after the move get
// one here, so they expire too.
func (q *Queue) requeueExpired(ctx context.Context, now time.Time) error {
	for _, family := range families {
		entries, err := q.client.LRange(ctx, q.processingKey(family), 0, -1).Result()
		if err != nil {
			return err
		}

		deadline := float64(now.Add(q.lease).UnixMilli())
		for _, entry := range entries {
			if err := q.client.ZAddNX(ctx, q.leaseKey(family), redis.Z{Score: deadline, Member: entry}).Err(); err != nil {
				return err
			}
		}

		expired, err := q.due(ctx, q.leaseKey(family), now)
		if err != nil {
			return err
		}

		for _, member := range expired {
			claimed, err := q.client.ZRem(ctx, q.leaseKey(family), member).Result()
			if err != nil {
				return err
			}

			if claimed == 0 {
				continue
			}

			removed, err := q.client.LRem(ctx, q.processingKey(family), 1, member).Result()
			if err != nil {
				return err
			}

			if removed == 0 {
				continue
			}

			if err := q.client.RPush(ctx, q.readyKey(family), member).Err(); err != nil {
				return err
			}

			q.logger.WarnContext(ctx, "requeued job with expired lease", "family", family)
		}
	}

	return nil
}

func (q *Queue) fireRepeatable(ctx context.Context, now time.Time) error {
	keys, err := q.due(ctx, q.repeatNextKey(), now)
	if err != nil {
		return err
	}

	for _, key := range keys {
		claimed, err := q.client.ZRem(ctx, q.repeatNextKey(), key).Result()
		if err != nil {
			return err
		}

		if claimed == 0 {
			continue
		}

		data, err := q.client.HGet(ctx, q.repeatKey(), key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}

		if err != nil {
			return err
		}

		var repeatable queue.Repeatable
		if err := json.Unmarshal([]byte(data), &repeatable); err != nil {
			q.logger.ErrorContext(ctx, "dropping undecodable repeatable job", "key", key, "error", err)

			continue
		}

		schedule, err := queue.ParseSchedule(repeatable.Cron, repeatable.Timezone)
		if err != nil {
			q.logger.ErrorContext(ctx, "dropping repeatable job with invalid schedule", "key", key, "error", err)

			continue
		}

		if err := q.Add(ctx, repeatable.Job.Clone()); err != nil {
			return err
		}

		next := schedule.Next(now)

		err = q.client.ZAdd(ctx, q.repeatNextKey(), redis.Z{Score: float64(next.UnixMilli()), Member: key}).Err()
		if err != nil {
			return err
		}
	}

	return nil
}
