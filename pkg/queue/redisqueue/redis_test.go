package redisqueue

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dukex/flowrun/pkg/queue"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()

	return newQueueWithLease(t, time.Minute)
}

func newQueueWithLease(t *testing.T, lease time.Duration) (*Queue, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})

	q := New(client, slog.Default(), Options{
		Prefix:       "test",
		PollInterval: 10 * time.Millisecond,
		LeaseTimeout: lease,
		Policy:       queue.RetryPolicy{MaxAttempts: 2, InitialInterval: 10 * time.Millisecond},
	})

	t.Cleanup(func() {
		_ = q.Close()
		_ = client.Close()
	})

	return q, server
}

func consume(t *testing.T, q *Queue, family queue.Family, handler queue.Handler) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)

		assert.NoError(t, q.Consume(ctx, family, 1, handler))
	}()

	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestQueue_AddAndPop(t *testing.T) {
	t.Parallel()

	q, server := newQueue(t)
	ctx := context.Background()

	first, err := queue.NewNodeJob("set", queue.NodeJob{ExecutionID: "e", NodeID: "a"})
	require.NoError(t, err)
	second, err := queue.NewNodeJob("set", queue.NodeJob{ExecutionID: "e", NodeID: "b"})
	require.NoError(t, err)

	require.NoError(t, q.Add(ctx, first))
	require.NoError(t, q.Add(ctx, second))

	items, err := server.List("test:ready:node")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, queue.Stats{Pending: 2}, stats)

	popped, err := q.Pop(ctx, queue.FamilyNode)
	require.NoError(t, err)
	assert.Equal(t, first.ID, popped.ID)

	var payload queue.NodeJob
	require.NoError(t, popped.Decode(&payload))
	assert.Equal(t, "a", payload.NodeID)

	stats, err = q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, queue.Stats{Pending: 1, Running: 1}, stats)

	require.NoError(t, q.Ack(ctx, popped))

	processing, err := server.List("test:processing:node")
	if err == nil {
		assert.Empty(t, processing)
	}

	leases, err := server.ZMembers("test:leases:node")
	if err == nil {
		assert.Empty(t, leases)
	}
}

func TestQueue_ExpiredLeaseRequeuesJob(t *testing.T) {
	t.Parallel()

	q, server := newQueueWithLease(t, 50*time.Millisecond)
	ctx := context.Background()

	job, err := queue.NewNodeJob("set", queue.NodeJob{ExecutionID: "e", NodeID: "a"})
	require.NoError(t, err)
	require.NoError(t, q.Add(ctx, job))

	// Popped and never acknowledged, as when a worker dies mid-job.
	lost, err := q.Pop(ctx, queue.FamilyNode)
	require.NoError(t, err)
	require.NotNil(t, lost)

	processing, err := server.List("test:processing:node")
	require.NoError(t, err)
	assert.Len(t, processing, 1)

	handled := make(chan *queue.Job, 1)

	consume(t, q, queue.FamilyNode, func(_ context.Context, job *queue.Job) error {
		handled <- job

		return nil
	})

	select {
	case got := <-handled:
		assert.Equal(t, job.ID, got.ID)
	case <-time.After(3 * time.Second):
		t.Fatal("job with expired lease was not handed out again")
	}

	require.Eventually(t, func() bool {
		stats, err := q.Stats(ctx)

		return err == nil && stats == queue.Stats{}
	}, time.Second, 10*time.Millisecond)
}

func TestQueue_PopTimesOutWithNilJob(t *testing.T) {
	t.Parallel()

	q, _ := newQueue(t)

	job, err := q.Pop(context.Background(), queue.FamilyWorkflow)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestQueue_DelayedJobsArePromoted(t *testing.T) {
	t.Parallel()

	q, _ := newQueue(t)
	ctx := context.Background()

	job, err := queue.NewNodeJob("wait", queue.NodeJob{ExecutionID: "e", NodeID: "w", Resumed: true})
	require.NoError(t, err)
	require.NoError(t, q.AddDelayed(ctx, job, 50*time.Millisecond))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Delayed)

	handled := make(chan *queue.Job, 1)

	consume(t, q, queue.FamilyNode, func(_ context.Context, job *queue.Job) error {
		handled <- job

		return nil
	})

	select {
	case got := <-handled:
		assert.Equal(t, job.ID, got.ID)
	case <-time.After(3 * time.Second):
		t.Fatal("delayed job was not promoted")
	}
}

func TestQueue_RetriesThenBuries(t *testing.T) {
	t.Parallel()

	q, _ := newQueue(t)
	ctx := context.Background()

	var attempts atomic.Int32

	consume(t, q, queue.FamilyWorkflow, func(context.Context, *queue.Job) error {
		attempts.Add(1)

		return errors.New("workflow not found")
	})

	job, err := queue.NewWorkflowJob(queue.WorkflowJob{WorkflowID: "missing"})
	require.NoError(t, err)
	require.NoError(t, q.Add(ctx, job))

	require.Eventually(t, func() bool {
		dead, err := q.Dead(ctx)

		return err == nil && len(dead) == 1
	}, 3*time.Second, 10*time.Millisecond)

	dead, err := q.Dead(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.ID, dead[0].ID)
	assert.Equal(t, 2, dead[0].Attempt)
	assert.Equal(t, "workflow not found", dead[0].LastError)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestQueue_Repeatable(t *testing.T) {
	t.Parallel()

	q, _ := newQueue(t)
	ctx := context.Background()

	schedule, err := queue.ParseSchedule("@every 1s", "UTC")
	require.NoError(t, err)

	job, err := queue.NewCronJob(queue.WorkflowJob{WorkflowID: "wf"})
	require.NoError(t, err)

	require.NoError(t, q.UpsertRepeatable(ctx, "cron-trg_1", schedule, job))

	list, err := q.ListRepeatable(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "cron-trg_1", list[0].Key)
	assert.Equal(t, "@every 1s", list[0].Cron)
	assert.Equal(t, job.ID, list[0].Job.ID)

	ticks := make(chan *queue.Job, 4)

	consume(t, q, queue.FamilyWorkflow, func(_ context.Context, job *queue.Job) error {
		ticks <- job

		return nil
	})

	select {
	case tick := <-ticks:
		assert.Equal(t, queue.JobNameCron, tick.Name)
		assert.NotEqual(t, job.ID, tick.ID)
	case <-time.After(3 * time.Second):
		t.Fatal("repeatable job never fired")
	}

	require.NoError(t, q.RemoveRepeatable(ctx, "cron-trg_1"))

	list, err = q.ListRepeatable(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
