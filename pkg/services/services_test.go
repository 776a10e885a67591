package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/models"
	persistencememory "github.com/dukex/flowrun/pkg/persistence/memory"
	"github.com/dukex/flowrun/pkg/queue"
	queuememory "github.com/dukex/flowrun/pkg/queue/memory"
	"github.com/dukex/flowrun/pkg/registry"
	"github.com/dukex/flowrun/pkg/testutil"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	persistence *persistencememory.Persistence
	queue       *queuememory.Queue
	bus         *eventbus.WatermillEventBus
	scheduler   *Scheduler
	workflows   *Workflow
	triggers    *Trigger
	executions  *Execution
	webhooks    *Webhook
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.Default()
	p := persistencememory.NewPersistence()
	q := queuememory.New(logger, queue.DefaultRetryPolicy)
	bus := eventbus.NewGoChannel(logger)

	t.Cleanup(func() {
		_ = q.Close()
		_ = bus.Close()
	})

	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultNodes()

	validate := validator.New()
	scheduler := NewScheduler(p, q, logger)
	workflows := NewWorkflow(p, reg, scheduler, validate, logger)
	executions := NewExecution(p, workflows, q, bus, logger)

	return &fixture{
		persistence: p,
		queue:       q,
		bus:         bus,
		scheduler:   scheduler,
		workflows:   workflows,
		triggers:    NewTrigger(p, scheduler, validate, logger),
		executions:  executions,
		webhooks:    NewWebhook(p, executions),
	}
}

// simpleWorkflow is start -> set.
func simpleWorkflow() *models.Workflow {
	return testutil.CreateTestWorkflow(
		[]models.WorkflowNode{
			testutil.CreateTestNode(testutil.WithID("start"), testutil.WithManualTrigger()),
			testutil.CreateTestNode(testutil.WithID("set")),
		},
		[]models.WorkflowEdge{testutil.CreateTestEdge("start", "set")},
	)
}

func (f *fixture) createWorkflow(t *testing.T, workflow *models.Workflow) *models.Workflow {
	t.Helper()

	created, err := f.workflows.Create(context.Background(), workflow)
	require.NoError(t, err)

	return created
}

func (f *fixture) popWorkflowJob(t *testing.T) queue.WorkflowJob {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	job, err := f.queue.Pop(ctx, queue.FamilyWorkflow)
	require.NoError(t, err)

	var payload queue.WorkflowJob
	require.NoError(t, job.Decode(&payload))

	return payload
}

func (f *fixture) pending(t *testing.T) int {
	t.Helper()

	stats, err := f.queue.Stats(context.Background())
	require.NoError(t, err)

	return stats.Pending
}
