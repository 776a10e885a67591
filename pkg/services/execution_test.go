package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukex/flowrun/pkg/events"
	"github.com/dukex/flowrun/pkg/mocks"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func (f *fixture) createExecution(t *testing.T, workflowID string) *models.WorkflowExecution {
	t.Helper()

	execution := &models.WorkflowExecution{
		ID:          models.NewExecutionID(),
		WorkflowID:  workflowID,
		TriggerType: models.TriggerTypeManual,
		Status:      models.ExecutionStatusRunning,
		StartedAt:   time.Now().UTC(),
		StateOut:    map[string]any{},
	}
	require.NoError(t, f.persistence.CreateExecution(context.Background(), execution))

	return execution
}

func TestExecution_Start(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	workflow := f.createWorkflow(t, simpleWorkflow())

	executionID, err := f.executions.Start(context.Background(), StartRequest{
		WorkflowID: workflow.ID,
		StateIn:    map[string]any{"input": map[string]any{"user": "ada"}},
	})
	require.NoError(t, err)
	assert.Contains(t, executionID, "exec_")

	job := f.popWorkflowJob(t)
	assert.Equal(t, workflow.ID, job.WorkflowID)
	assert.Equal(t, executionID, job.ExecutionID)
	assert.Equal(t, models.TriggerTypeManual, job.TriggerType)
	assert.Equal(t, map[string]any{"input": map[string]any{"user": "ada"}}, job.StateIn)
}

func TestExecution_StartRejections(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.executions.Start(ctx, StartRequest{WorkflowID: "missing"})
	assert.True(t, IsNotFoundError(err))

	noTrigger := f.createWorkflow(t, testutil.CreateTestWorkflow(
		[]models.WorkflowNode{testutil.CreateTestNode(testutil.WithID("set"))}, nil,
	))

	_, err = f.executions.Start(ctx, StartRequest{WorkflowID: noTrigger.ID})
	require.Error(t, err)

	var serviceErr *ServiceError
	require.ErrorAs(t, err, &serviceErr)
	assert.Equal(t, CodeNoStartNode, serviceErr.Code)
	assert.Equal(t, 0, f.pending(t))
}

func TestExecution_MutateRetriesConflicts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	workflow := f.createWorkflow(t, simpleWorkflow())
	execution := f.createExecution(t, workflow.ID)

	var wg sync.WaitGroup

	for i := range 10 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := f.executions.Mutate(context.Background(), execution.ID, func(current *models.WorkflowExecution) error {
				current.StateOut[string(rune('a'+i))] = i

				return nil
			})
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	stored, err := f.executions.FetchByID(context.Background(), execution.ID)
	require.NoError(t, err)
	assert.Len(t, stored.StateOut, 10)
	assert.Equal(t, 11, stored.Version)
}

func TestExecution_MutateUnchanged(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	workflow := f.createWorkflow(t, simpleWorkflow())
	execution := f.createExecution(t, workflow.ID)

	got, err := f.executions.Mutate(context.Background(), execution.ID, func(*models.WorkflowExecution) error {
		return ErrUnchanged
	})
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)

	boom := errors.New("boom")
	_, err = f.executions.Mutate(context.Background(), execution.ID, func(*models.WorkflowExecution) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestExecution_FinishFirstWins(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	workflow := f.createWorkflow(t, simpleWorkflow())
	execution := f.createExecution(t, workflow.ID)

	listener, err := f.bus.Subscribe(t.Context(), execution.ID)
	require.NoError(t, err)

	finished, ok, err := f.executions.Finish(ctx, execution.ID, models.ExecutionStatusFailed, "boom")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.ExecutionStatusFailed, finished.Status)

	again, ok, err := f.executions.Finish(ctx, execution.ID, models.ExecutionStatusSuccess, "")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, models.ExecutionStatusFailed, again.Status)
	assert.Equal(t, "boom", again.Error)

	select {
	case event := <-listener:
		completed, ok := event.(*events.ExecutionCompleted)
		require.True(t, ok)
		assert.Equal(t, models.ExecutionStatusFailed, completed.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("no execution.completed event")
	}
}

func TestExecution_Cancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	workflow := f.createWorkflow(t, simpleWorkflow())
	execution := f.createExecution(t, workflow.ID)

	for _, nodeID := range []string{"start", "set"} {
		_, _, err := f.persistence.FindOrCreateNodeRun(ctx, &models.WorkflowNodeRun{
			ID:          models.NewNodeRunID(),
			ExecutionID: execution.ID,
			WorkflowID:  workflow.ID,
			NodeID:      nodeID,
			Status:      models.NodeRunStatusPending,
		})
		require.NoError(t, err)
	}

	canceled, err := f.executions.Cancel(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCanceled, canceled.Status)
	assert.NotNil(t, canceled.FinishedAt)

	runs, err := f.executions.NodeRuns(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	for _, run := range runs {
		assert.Equal(t, models.NodeRunStatusCanceled, run.Status)
	}

	_, err = f.executions.Cancel(ctx, execution.ID)
	assert.True(t, IsConflictError(err))

	_, err = f.executions.Cancel(ctx, "exec_missing")
	assert.True(t, IsNotFoundError(err))
}

func TestExecution_CancelIgnoresPublishFailures(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	workflow := f.createWorkflow(t, simpleWorkflow())
	execution := f.createExecution(t, workflow.ID)

	_, _, err := f.persistence.FindOrCreateNodeRun(ctx, &models.WorkflowNodeRun{
		ID:          models.NewNodeRunID(),
		ExecutionID: execution.ID,
		WorkflowID:  workflow.ID,
		NodeID:      "start",
		Status:      models.NodeRunStatusPending,
	})
	require.NoError(t, err)

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.AnythingOfType("*events.ExecutionCompleted")).
		Return(errors.New("broker unavailable")).Once()
	bus.On("Publish", mock.Anything, mock.AnythingOfType("*events.NodeRunUpdated")).
		Return(nil).Once()

	executions := NewExecution(f.persistence, f.workflows, f.queue, bus, slog.Default())

	canceled, err := executions.Cancel(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCanceled, canceled.Status)

	bus.AssertExpectations(t)
}

func TestExecution_ListByWorkflow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	workflow := f.createWorkflow(t, simpleWorkflow())
	f.createExecution(t, workflow.ID)
	f.createExecution(t, workflow.ID)

	executions, err := f.executions.ListByWorkflow(context.Background(), workflow.ID)
	require.NoError(t, err)
	assert.Len(t, executions, 2)

	_, err = f.executions.ListByWorkflow(context.Background(), "missing")
	assert.True(t, IsNotFoundError(err))
}
