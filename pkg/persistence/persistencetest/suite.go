// Package persistencetest holds behaviour tests shared by every persistence
// implementation.
package persistencetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store for one test.
type Factory func(t *testing.T) persistence.Persistence

// Run executes the shared behaviour tests against the store built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := map[string]func(t *testing.T, store persistence.Persistence){
		"workflow round trip":           testWorkflowRoundTrip,
		"workflow node upsert":          testWorkflowNodeUpsert,
		"workflow dangling edges":       testWorkflowDanglingEdges,
		"workflow not found":            testWorkflowNotFound,
		"workflow delete cascades":      testWorkflowDeleteCascades,
		"triggers":                      testTriggers,
		"execution version conflict":    testExecutionVersionConflict,
		"node run find or create":       testNodeRunFindOrCreate,
		"node run stale update":         testNodeRunStaleUpdate,
		"node run cancel active":        testNodeRunCancelActive,
		"node run concurrent create":    testNodeRunConcurrentCreate,
		"executions listed by workflow": testExecutionsByWorkflow,
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			test(t, newStore(t))
		})
	}
}

func saveWorkflow(t *testing.T, store persistence.Persistence, nodeIDs ...string) *models.Workflow {
	t.Helper()

	nodes := make([]models.WorkflowNode, 0, len(nodeIDs))
	for i, id := range nodeIDs {
		if i == 0 {
			nodes = append(nodes, testutil.CreateTestNode(testutil.WithID(id), testutil.WithManualTrigger()))

			continue
		}

		nodes = append(nodes, testutil.CreateTestNode(testutil.WithID(id)))
	}

	edges := make([]models.WorkflowEdge, 0)
	for i := 1; i < len(nodeIDs); i++ {
		edges = append(edges, testutil.CreateTestEdge(nodeIDs[i-1], nodeIDs[i]))
	}

	workflow := testutil.CreateTestWorkflow(nodes, edges)
	workflow.ID = ""
	require.NoError(t, store.SaveWorkflow(context.Background(), workflow))

	return workflow
}

func startExecution(t *testing.T, store persistence.Persistence, workflowID string) *models.WorkflowExecution {
	t.Helper()

	execution := &models.WorkflowExecution{
		ID:          models.NewExecutionID(),
		WorkflowID:  workflowID,
		TriggerType: models.TriggerTypeManual,
		Status:      models.ExecutionStatusRunning,
		StateIn:     map[string]any{"input": map[string]any{"a": float64(1)}},
		StateOut:    map[string]any{},
	}
	require.NoError(t, store.CreateExecution(context.Background(), execution))

	return execution
}

func pendingRun(execution *models.WorkflowExecution, nodeID string) *models.WorkflowNodeRun {
	return &models.WorkflowNodeRun{
		ID:          models.NewNodeRunID(),
		ExecutionID: execution.ID,
		WorkflowID:  execution.WorkflowID,
		NodeID:      nodeID,
		Status:      models.NodeRunStatusPending,
	}
}

func testWorkflowRoundTrip(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	workflow := saveWorkflow(t, store, "start", "fetch")

	assert.NotEmpty(t, workflow.ID)
	assert.Equal(t, 1, workflow.Version)

	loaded, err := store.WorkflowByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.Name, loaded.Name)
	assert.True(t, loaded.IsActive)
	require.Len(t, loaded.Nodes, 2)
	require.Len(t, loaded.Edges, 1)
	assert.Equal(t, "start", loaded.Edges[0].SourceNodeID)
	assert.Equal(t, workflow.ID, loaded.Nodes[0].WorkflowID)

	loaded.Description = "changed"
	require.NoError(t, store.SaveWorkflow(ctx, loaded))
	assert.Equal(t, 2, loaded.Version)

	all, err := store.Workflows(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "changed", all[0].Description)
}

func testWorkflowNodeUpsert(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	workflow := saveWorkflow(t, store, "a", "b")

	workflow.Nodes = []models.WorkflowNode{
		workflow.Nodes[0],
		testutil.CreateTestNode(testutil.WithID("c"), testutil.WithLabel("C")),
	}
	workflow.Edges = []models.WorkflowEdge{testutil.CreateTestEdge("a", "c")}
	require.NoError(t, store.SaveWorkflow(ctx, workflow))

	loaded, err := store.WorkflowByID(ctx, workflow.ID)
	require.NoError(t, err)

	ids := make([]string, 0, len(loaded.Nodes))
	for _, node := range loaded.Nodes {
		ids = append(ids, node.ID)
	}

	assert.ElementsMatch(t, []string{"a", "c"}, ids)
	require.Len(t, loaded.Edges, 1)
	assert.Equal(t, "c", loaded.Edges[0].TargetNodeID)
}

func testWorkflowDanglingEdges(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	workflow := saveWorkflow(t, store, "a", "b")

	workflow.Edges = append(workflow.Edges, testutil.CreateTestEdge("b", "ghost"))
	require.NoError(t, store.SaveWorkflow(ctx, workflow))

	loaded, err := store.WorkflowByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Edges, 1)
}

func testWorkflowNotFound(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()

	_, err := store.WorkflowByID(ctx, models.NewWorkflowID())
	require.ErrorIs(t, err, persistence.ErrWorkflowNotFound)

	err = store.DeleteWorkflow(ctx, models.NewWorkflowID())
	require.ErrorIs(t, err, persistence.ErrWorkflowNotFound)

	_, err = store.ExecutionByID(ctx, "exec_missing")
	require.ErrorIs(t, err, persistence.ErrExecutionNotFound)

	_, err = store.TriggerByID(ctx, "trg_missing")
	require.ErrorIs(t, err, persistence.ErrTriggerNotFound)
}

func testWorkflowDeleteCascades(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	workflow := saveWorkflow(t, store, "a")
	execution := startExecution(t, store, workflow.ID)

	_, _, err := store.FindOrCreateNodeRun(ctx, pendingRun(execution, "a"))
	require.NoError(t, err)

	trigger := &models.Trigger{WorkflowID: workflow.ID, Type: models.TriggerTypeManual, IsActive: true}
	require.NoError(t, store.SaveTrigger(ctx, trigger))

	require.NoError(t, store.DeleteWorkflow(ctx, workflow.ID))

	_, err = store.ExecutionByID(ctx, execution.ID)
	require.ErrorIs(t, err, persistence.ErrExecutionNotFound)

	_, err = store.TriggerByID(ctx, trigger.ID)
	require.ErrorIs(t, err, persistence.ErrTriggerNotFound)

	runs, err := store.NodeRunsByExecution(ctx, execution.ID)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func testTriggers(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	active := saveWorkflow(t, store, "a")
	inactive := saveWorkflow(t, store, "a")

	inactive.IsActive = false
	require.NoError(t, store.SaveWorkflow(ctx, inactive))

	cron := &models.Trigger{WorkflowID: active.ID, Type: models.TriggerTypeCron, CronExpr: "*/5 * * * *", Timezone: "UTC", IsActive: true}
	manual := &models.Trigger{WorkflowID: active.ID, Type: models.TriggerTypeManual, IsActive: true}
	paused := &models.Trigger{WorkflowID: active.ID, Type: models.TriggerTypeCron, CronExpr: "@hourly", IsActive: false}
	orphan := &models.Trigger{WorkflowID: inactive.ID, Type: models.TriggerTypeCron, CronExpr: "@daily", IsActive: true}

	for _, trigger := range []*models.Trigger{cron, manual, paused, orphan} {
		require.NoError(t, store.SaveTrigger(ctx, trigger))
		assert.NotEmpty(t, trigger.ID)
	}

	byWorkflow, err := store.TriggersByWorkflow(ctx, active.ID)
	require.NoError(t, err)
	assert.Len(t, byWorkflow, 3)

	crons, err := store.ActiveCronTriggers(ctx)
	require.NoError(t, err)
	require.Len(t, crons, 1)
	assert.Equal(t, cron.ID, crons[0].ID)
	assert.Equal(t, "*/5 * * * *", crons[0].CronExpr)

	require.NoError(t, store.DeleteTrigger(ctx, cron.ID))

	crons, err = store.ActiveCronTriggers(ctx)
	require.NoError(t, err)
	assert.Empty(t, crons)

	err = store.SaveTrigger(ctx, &models.Trigger{WorkflowID: models.NewWorkflowID(), Type: models.TriggerTypeManual})
	require.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
}

func testExecutionVersionConflict(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	workflow := saveWorkflow(t, store, "a")
	execution := startExecution(t, store, workflow.ID)
	assert.Equal(t, 1, execution.Version)

	first, err := store.ExecutionByID(ctx, execution.ID)
	require.NoError(t, err)

	second, err := store.ExecutionByID(ctx, execution.ID)
	require.NoError(t, err)

	first.StateOut = map[string]any{"count": float64(1)}
	require.NoError(t, store.UpdateExecution(ctx, first))
	assert.Equal(t, 2, first.Version)

	second.StateOut = map[string]any{"count": float64(2)}
	err = store.UpdateExecution(ctx, second)
	require.ErrorIs(t, err, persistence.ErrVersionConflict)

	require.NoError(t, first.Finish(models.ExecutionStatusSuccess, "", time.Now().UTC()))
	require.NoError(t, store.UpdateExecution(ctx, first))

	loaded, err := store.ExecutionByID(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSuccess, loaded.Status)
	assert.Equal(t, map[string]any{"count": float64(1)}, loaded.StateOut)
	assert.Equal(t, map[string]any{"input": map[string]any{"a": float64(1)}}, loaded.StateIn)
	assert.NotNil(t, loaded.FinishedAt)
	assert.Equal(t, 3, loaded.Version)
}

func testNodeRunFindOrCreate(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	workflow := saveWorkflow(t, store, "a", "b")
	execution := startExecution(t, store, workflow.ID)

	run, created, err := store.FindOrCreateNodeRun(ctx, pendingRun(execution, "a"))
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := store.FindOrCreateNodeRun(ctx, pendingRun(execution, "a"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, run.ID, again.ID)

	require.NoError(t, again.Transition(models.NodeRunStatusRunning, time.Now().UTC()))
	again.Input = map[string]any{"x": "y"}
	require.NoError(t, store.UpdateNodeRun(ctx, again, models.NodeRunStatusPending))

	loaded, err := store.NodeRunByNode(ctx, execution.ID, "a")
	require.NoError(t, err)
	assert.Equal(t, models.NodeRunStatusRunning, loaded.Status)
	assert.Equal(t, map[string]any{"x": "y"}, loaded.Input)
	assert.NotNil(t, loaded.StartedAt)

	_, err = store.NodeRunByNode(ctx, execution.ID, "b")
	require.ErrorIs(t, err, persistence.ErrNodeRunNotFound)
}

func testNodeRunStaleUpdate(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	workflow := saveWorkflow(t, store, "a")
	execution := startExecution(t, store, workflow.ID)

	run, _, err := store.FindOrCreateNodeRun(ctx, pendingRun(execution, "a"))
	require.NoError(t, err)

	require.NoError(t, run.Transition(models.NodeRunStatusRunning, time.Now().UTC()))
	err = store.UpdateNodeRun(ctx, run, models.NodeRunStatusRunning)
	require.ErrorIs(t, err, persistence.ErrStaleNodeRun)
}

func testNodeRunCancelActive(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	workflow := saveWorkflow(t, store, "a", "b", "c")
	execution := startExecution(t, store, workflow.ID)

	done, _, err := store.FindOrCreateNodeRun(ctx, pendingRun(execution, "a"))
	require.NoError(t, err)
	require.NoError(t, done.Transition(models.NodeRunStatusRunning, time.Now().UTC()))
	require.NoError(t, store.UpdateNodeRun(ctx, done, models.NodeRunStatusPending))
	require.NoError(t, done.Transition(models.NodeRunStatusSuccess, time.Now().UTC()))
	require.NoError(t, store.UpdateNodeRun(ctx, done, models.NodeRunStatusRunning))

	running, _, err := store.FindOrCreateNodeRun(ctx, pendingRun(execution, "b"))
	require.NoError(t, err)
	require.NoError(t, running.Transition(models.NodeRunStatusRunning, time.Now().UTC()))
	require.NoError(t, store.UpdateNodeRun(ctx, running, models.NodeRunStatusPending))

	_, _, err = store.FindOrCreateNodeRun(ctx, pendingRun(execution, "c"))
	require.NoError(t, err)

	count, err := store.CountActiveNodeRuns(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	canceled, err := store.CancelActiveNodeRuns(ctx, execution.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.Len(t, canceled, 2)

	count, err = store.CountActiveNodeRuns(ctx, execution.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	runs, err := store.NodeRunsByExecution(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, runs, 3)

	statuses := map[string]models.NodeRunStatus{}
	for _, run := range runs {
		statuses[run.NodeID] = run.Status
	}

	assert.Equal(t, map[string]models.NodeRunStatus{
		"a": models.NodeRunStatusSuccess,
		"b": models.NodeRunStatusCanceled,
		"c": models.NodeRunStatusCanceled,
	}, statuses)
}

func testNodeRunConcurrentCreate(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	workflow := saveWorkflow(t, store, "a")
	execution := startExecution(t, store, workflow.ID)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[string]struct{}{}
		created int
	)

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			run, isNew, err := store.FindOrCreateNodeRun(ctx, pendingRun(execution, "a"))
			assert.NoError(t, err)

			if run == nil {
				return
			}

			mu.Lock()
			defer mu.Unlock()

			ids[run.ID] = struct{}{}

			if isNew {
				created++
			}
		}()
	}

	wg.Wait()

	assert.Len(t, ids, 1)
	assert.Equal(t, 1, created)
}

func testExecutionsByWorkflow(t *testing.T, store persistence.Persistence) {
	ctx := context.Background()
	workflow := saveWorkflow(t, store, "a")
	other := saveWorkflow(t, store, "a")

	startExecution(t, store, workflow.ID)
	startExecution(t, store, workflow.ID)
	startExecution(t, store, other.ID)

	executions, err := store.ExecutionsByWorkflow(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Len(t, executions, 2)
}
