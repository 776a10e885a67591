// Package persistence provides the data storage abstraction for workflows,
// triggers, executions and node runs.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/flowrun/pkg/models"
)

type Persistence interface {
	Workflows(ctx context.Context) ([]*models.Workflow, error)
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	// SaveWorkflow inserts or updates the workflow, replacing its nodes and
	// edges and bumping its version. Edges with missing endpoints are dropped.
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
	// DeleteWorkflow removes the workflow and everything it owns.
	DeleteWorkflow(ctx context.Context, id string) error

	TriggerByID(ctx context.Context, id string) (*models.Trigger, error)
	TriggersByWorkflow(ctx context.Context, workflowID string) ([]*models.Trigger, error)
	// ActiveCronTriggers returns active cron triggers of active workflows.
	ActiveCronTriggers(ctx context.Context) ([]*models.Trigger, error)
	SaveTrigger(ctx context.Context, trigger *models.Trigger) error
	DeleteTrigger(ctx context.Context, id string) error

	CreateExecution(ctx context.Context, execution *models.WorkflowExecution) error
	ExecutionByID(ctx context.Context, id string) (*models.WorkflowExecution, error)
	ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error)
	// UpdateExecution writes status, state and error when the stored version
	// still equals execution.Version, then increments it. ErrVersionConflict
	// otherwise.
	UpdateExecution(ctx context.Context, execution *models.WorkflowExecution) error

	// FindOrCreateNodeRun returns the run of (run.ExecutionID, run.NodeID),
	// inserting run when there is none. created reports the insert.
	FindOrCreateNodeRun(ctx context.Context, run *models.WorkflowNodeRun) (stored *models.WorkflowNodeRun, created bool, err error)
	NodeRunByNode(ctx context.Context, executionID, nodeID string) (*models.WorkflowNodeRun, error)
	NodeRunsByExecution(ctx context.Context, executionID string) ([]*models.WorkflowNodeRun, error)
	// UpdateNodeRun writes run when the stored status still equals from.
	// ErrStaleNodeRun otherwise.
	UpdateNodeRun(ctx context.Context, run *models.WorkflowNodeRun, from models.NodeRunStatus) error
	CountActiveNodeRuns(ctx context.Context, executionID string) (int, error)
	// CancelActiveNodeRuns moves every PENDING or RUNNING run to CANCELED.
	CancelActiveNodeRuns(ctx context.Context, executionID string, at time.Time) ([]*models.WorkflowNodeRun, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
