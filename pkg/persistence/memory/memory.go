// Package memory provides an in-process persistence implementation used for
// development and tests.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/dukex/flowrun/pkg/graph"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
)

// Persistence keeps every record in maps guarded by a single mutex. Records
// are deep copied on the way in and out.
type Persistence struct {
	mu         sync.RWMutex
	workflows  map[string]*models.Workflow
	triggers   map[string]*models.Trigger
	executions map[string]*models.WorkflowExecution
	nodeRuns   map[string]*models.WorkflowNodeRun
	now        func() time.Time
}

// NewPersistence creates an empty store.
func NewPersistence() *Persistence {
	return &Persistence{
		workflows:  make(map[string]*models.Workflow),
		triggers:   make(map[string]*models.Trigger),
		executions: make(map[string]*models.WorkflowExecution),
		nodeRuns:   make(map[string]*models.WorkflowNodeRun),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

var _ persistence.Persistence = (*Persistence)(nil)

func (p *Persistence) HealthCheck(_ context.Context) error { return nil }
func (p *Persistence) Close(_ context.Context) error       { return nil }

func (p *Persistence) Workflows(_ context.Context) ([]*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	workflows := make([]*models.Workflow, 0, len(p.workflows))
	for _, workflow := range p.workflows {
		workflows = append(workflows, clone(workflow))
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})

	return workflows, nil
}

func (p *Persistence) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	workflow, ok := p.workflows[id]
	if !ok {
		return nil, persistence.NewWorkflowError("WorkflowByID", id, persistence.ErrWorkflowNotFound)
	}

	return clone(workflow), nil
}

func (p *Persistence) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()

	if workflow.ID == "" {
		workflow.ID = models.NewWorkflowID()
	}

	if existing, ok := p.workflows[workflow.ID]; ok {
		workflow.CreatedAt = existing.CreatedAt
		workflow.Version = existing.Version + 1
	} else {
		workflow.CreatedAt = now
		workflow.Version = 1
	}

	workflow.UpdatedAt = now
	workflow.Edges = graph.FilterDanglingEdges(workflow.Nodes, workflow.Edges)

	for i := range workflow.Nodes {
		workflow.Nodes[i].WorkflowID = workflow.ID
	}

	for i := range workflow.Edges {
		workflow.Edges[i].WorkflowID = workflow.ID
	}

	p.workflows[workflow.ID] = clone(workflow)

	return nil
}

func (p *Persistence) DeleteWorkflow(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.workflows[id]; !ok {
		return persistence.NewWorkflowError("DeleteWorkflow", id, persistence.ErrWorkflowNotFound)
	}

	delete(p.workflows, id)

	for triggerID, trigger := range p.triggers {
		if trigger.WorkflowID == id {
			delete(p.triggers, triggerID)
		}
	}

	for executionID, execution := range p.executions {
		if execution.WorkflowID == id {
			delete(p.executions, executionID)
		}
	}

	for runID, run := range p.nodeRuns {
		if run.WorkflowID == id {
			delete(p.nodeRuns, runID)
		}
	}

	return nil
}

func (p *Persistence) TriggerByID(_ context.Context, id string) (*models.Trigger, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	trigger, ok := p.triggers[id]
	if !ok {
		return nil, persistence.ErrTriggerNotFound
	}

	return clone(trigger), nil
}

func (p *Persistence) TriggersByWorkflow(_ context.Context, workflowID string) ([]*models.Trigger, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.filterTriggers(func(trigger *models.Trigger) bool {
		return trigger.WorkflowID == workflowID
	}), nil
}

func (p *Persistence) ActiveCronTriggers(_ context.Context) ([]*models.Trigger, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.filterTriggers(func(trigger *models.Trigger) bool {
		workflow, ok := p.workflows[trigger.WorkflowID]

		return ok && workflow.IsActive && trigger.IsActive && trigger.Type == models.TriggerTypeCron
	}), nil
}

func (p *Persistence) filterTriggers(keep func(*models.Trigger) bool) []*models.Trigger {
	triggers := make([]*models.Trigger, 0)

	for _, trigger := range p.triggers {
		if keep(trigger) {
			triggers = append(triggers, clone(trigger))
		}
	}

	sort.Slice(triggers, func(i, j int) bool {
		return triggers[i].ID < triggers[j].ID
	})

	return triggers
}

func (p *Persistence) SaveTrigger(_ context.Context, trigger *models.Trigger) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.workflows[trigger.WorkflowID]; !ok {
		return persistence.NewWorkflowError("SaveTrigger", trigger.WorkflowID, persistence.ErrWorkflowNotFound)
	}

	now := p.now()

	if trigger.ID == "" {
		trigger.ID = models.NewTriggerID()
	}

	if existing, ok := p.triggers[trigger.ID]; ok {
		trigger.CreatedAt = existing.CreatedAt
	} else {
		trigger.CreatedAt = now
	}

	trigger.UpdatedAt = now
	p.triggers[trigger.ID] = clone(trigger)

	return nil
}

func (p *Persistence) DeleteTrigger(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.triggers[id]; !ok {
		return persistence.ErrTriggerNotFound
	}

	delete(p.triggers, id)

	return nil
}

func (p *Persistence) CreateExecution(_ context.Context, execution *models.WorkflowExecution) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.workflows[execution.WorkflowID]; !ok {
		return persistence.NewWorkflowError("CreateExecution", execution.WorkflowID, persistence.ErrWorkflowNotFound)
	}

	if execution.ID == "" {
		execution.ID = models.NewExecutionID()
	}

	if execution.StartedAt.IsZero() {
		execution.StartedAt = p.now()
	}

	execution.Version = 1
	p.executions[execution.ID] = clone(execution)

	return nil
}

func (p *Persistence) ExecutionByID(_ context.Context, id string) (*models.WorkflowExecution, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	execution, ok := p.executions[id]
	if !ok {
		return nil, persistence.NewExecutionError("ExecutionByID", id, persistence.ErrExecutionNotFound)
	}

	return clone(execution), nil
}

func (p *Persistence) ExecutionsByWorkflow(_ context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	executions := make([]*models.WorkflowExecution, 0)

	for _, execution := range p.executions {
		if execution.WorkflowID == workflowID {
			executions = append(executions, clone(execution))
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})

	return executions, nil
}

func (p *Persistence) UpdateExecution(_ context.Context, execution *models.WorkflowExecution) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	stored, ok := p.executions[execution.ID]
	if !ok {
		return persistence.NewExecutionError("UpdateExecution", execution.ID, persistence.ErrExecutionNotFound)
	}

	if stored.Version != execution.Version {
		return persistence.NewExecutionError("UpdateExecution", execution.ID, persistence.ErrVersionConflict)
	}

	execution.Version++
	p.executions[execution.ID] = clone(execution)

	return nil
}

func (p *Persistence) FindOrCreateNodeRun(_ context.Context, run *models.WorkflowNodeRun) (*models.WorkflowNodeRun, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing := p.nodeRunByNode(run.ExecutionID, run.NodeID); existing != nil {
		return clone(existing), false, nil
	}

	if _, ok := p.executions[run.ExecutionID]; !ok {
		return nil, false, persistence.NewExecutionError("FindOrCreateNodeRun", run.ExecutionID, persistence.ErrExecutionNotFound)
	}

	if run.ID == "" {
		run.ID = models.NewNodeRunID()
	}

	if run.CreatedAt.IsZero() {
		run.CreatedAt = p.now()
	}

	p.nodeRuns[run.ID] = clone(run)

	return clone(run), true, nil
}

func (p *Persistence) NodeRunByNode(_ context.Context, executionID, nodeID string) (*models.WorkflowNodeRun, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	run := p.nodeRunByNode(executionID, nodeID)
	if run == nil {
		return nil, persistence.NewNodeRunError("NodeRunByNode", executionID, nodeID, persistence.ErrNodeRunNotFound)
	}

	return clone(run), nil
}

func (p *Persistence) nodeRunByNode(executionID, nodeID string) *models.WorkflowNodeRun {
	for _, run := range p.nodeRuns {
		if run.ExecutionID == executionID && run.NodeID == nodeID {
			return run
		}
	}

	return nil
}

func (p *Persistence) NodeRunsByExecution(_ context.Context, executionID string) ([]*models.WorkflowNodeRun, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	runs := make([]*models.WorkflowNodeRun, 0)

	for _, run := range p.nodeRuns {
		if run.ExecutionID == executionID {
			runs = append(runs, clone(run))
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID < runs[j].ID
		}

		return runs[i].CreatedAt.Before(runs[j].CreatedAt)
	})

	return runs, nil
}

func (p *Persistence) UpdateNodeRun(_ context.Context, run *models.WorkflowNodeRun, from models.NodeRunStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	stored, ok := p.nodeRuns[run.ID]
	if !ok {
		return persistence.NewNodeRunError("UpdateNodeRun", run.ExecutionID, run.NodeID, persistence.ErrNodeRunNotFound)
	}

	if stored.Status != from {
		return persistence.NewNodeRunError("UpdateNodeRun", run.ExecutionID, run.NodeID, persistence.ErrStaleNodeRun)
	}

	p.nodeRuns[run.ID] = clone(run)

	return nil
}

func (p *Persistence) CountActiveNodeRuns(_ context.Context, executionID string) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	count := 0

	for _, run := range p.nodeRuns {
		if run.ExecutionID == executionID && run.Status.IsActive() {
			count++
		}
	}

	return count, nil
}

func (p *Persistence) CancelActiveNodeRuns(_ context.Context, executionID string, at time.Time) ([]*models.WorkflowNodeRun, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	canceled := make([]*models.WorkflowNodeRun, 0)

	for _, run := range p.nodeRuns {
		if run.ExecutionID != executionID || !run.Status.IsActive() {
			continue
		}

		if err := run.Transition(models.NodeRunStatusCanceled, at); err != nil {
			return nil, err
		}

		canceled = append(canceled, clone(run))
	}

	return canceled, nil
}

// clone deep copies a record through its JSON form, matching what a
// database round trip returns.
func clone[T any](v *T) *T {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}

	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		panic(err)
	}

	return &out
}

// Snapshot is a copy of every record held by a store.
type Snapshot struct {
	Workflows  []*models.Workflow          `json:"workflows"`
	Triggers   []*models.Trigger           `json:"triggers"`
	Executions []*models.WorkflowExecution `json:"executions"`
	NodeRuns   []*models.WorkflowNodeRun   `json:"node_runs"`
}

// Snapshot copies every record.
func (p *Persistence) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return Snapshot{
		Workflows:  cloneAll(p.workflows),
		Triggers:   cloneAll(p.triggers),
		Executions: cloneAll(p.executions),
		NodeRuns:   cloneAll(p.nodeRuns),
	}
}

// Restore replaces every record with the contents of snapshot.
func (p *Persistence) Restore(snapshot Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.workflows = indexByID(snapshot.Workflows, func(w *models.Workflow) string { return w.ID })
	p.triggers = indexByID(snapshot.Triggers, func(t *models.Trigger) string { return t.ID })
	p.executions = indexByID(snapshot.Executions, func(e *models.WorkflowExecution) string { return e.ID })
	p.nodeRuns = indexByID(snapshot.NodeRuns, func(r *models.WorkflowNodeRun) string { return r.ID })
}

func cloneAll[T any](records map[string]*T) []*T {
	out := make([]*T, 0, len(records))
	for _, record := range records {
		out = append(out, clone(record))
	}

	return out
}

func indexByID[T any](records []*T, id func(*T) string) map[string]*T {
	out := make(map[string]*T, len(records))
	for _, record := range records {
		out[id(record)] = clone(record)
	}

	return out
}
