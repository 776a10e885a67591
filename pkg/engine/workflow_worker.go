package engine

import (
	"context"
	"fmt"

	"github.com/dukex/flowrun/pkg/graph"
	"github.com/dukex/flowrun/pkg/metrics"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/otelhelper"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/queue"
	"go.opentelemetry.io/otel/attribute"
)

// HandleWorkflowJob creates the execution named by the job (or a new one) and
// enqueues its start nodes. A job for an execution that already exists and is
// still running re-enqueues start nodes that have no run yet.
func (e *Engine) HandleWorkflowJob(ctx context.Context, job *queue.Job) error {
	var payload queue.WorkflowJob
	if err := job.Decode(&payload); err != nil {
		return err
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "workflow.start",
		attribute.String(otelhelper.WorkflowIDKey, payload.WorkflowID),
		attribute.String(otelhelper.JobIDKey, job.ID),
		attribute.String(otelhelper.TriggerTypeKey, string(payload.TriggerType)),
	)
	defer span.End()

	logger := e.logger.With("workflow_id", payload.WorkflowID, "job_id", job.ID)

	workflow, err := e.loadWorkflow(ctx, payload.WorkflowID)
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	if payload.TriggerType == models.TriggerTypeCron && !workflow.IsActive {
		logger.Info("skipping scheduled run of inactive workflow")

		return nil
	}

	execution, created, err := e.openExecution(ctx, workflow, payload)
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	span.SetAttributes(attribute.String(otelhelper.ExecutionIDKey, execution.ID))
	logger = logger.With("execution_id", execution.ID)

	if execution.Status.IsTerminal() {
		logger.Info("execution already finished", "status", execution.Status)

		return nil
	}

	if created {
		metrics.ExecutionsStarted.Inc()
		logger.Info("execution started", "trigger_type", execution.TriggerType)
	}

	starts := graph.StartNodes(workflow.Nodes)
	if len(starts) == 0 {
		_, _, err := e.executions.Finish(ctx, execution.ID, models.ExecutionStatusFailed, "workflow has no start nodes")

		return err
	}

	// Every start run exists before the first job is enqueued, so the first
	// start node to finish cannot complete the execution alone.
	var runs []*models.WorkflowNodeRun

	for _, node := range starts {
		run, err := e.pendingRun(ctx, execution, node)
		if err != nil {
			otelhelper.SetError(span, err)

			return err
		}

		if run != nil {
			runs = append(runs, run)
		}
	}

	if err := e.enqueue(ctx, execution, workflow, runs); err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	return nil
}

// openExecution loads the execution of the job or creates it RUNNING.
func (e *Engine) openExecution(
	ctx context.Context,
	workflow *models.Workflow,
	payload queue.WorkflowJob,
) (*models.WorkflowExecution, bool, error) {
	if payload.ExecutionID != "" {
		existing, err := e.persistence.ExecutionByID(ctx, payload.ExecutionID)
		if err == nil {
			return existing, false, nil
		}

		if !persistence.IsNotFound(err) {
			return nil, false, fmt.Errorf("failed to load execution %s: %w", payload.ExecutionID, err)
		}
	}

	triggerType := payload.TriggerType
	if triggerType == "" {
		triggerType = models.TriggerTypeManual
	}

	stateIn := payload.StateIn
	if stateIn == nil {
		stateIn = map[string]any{}
	}

	execution := &models.WorkflowExecution{
		ID:          payload.ExecutionID,
		WorkflowID:  workflow.ID,
		TriggerType: triggerType,
		Status:      models.ExecutionStatusRunning,
		StartedAt:   e.now(),
		StateIn:     stateIn,
		StateOut:    map[string]any{},
	}

	if execution.ID == "" {
		execution.ID = models.NewExecutionID()
	}

	if err := e.persistence.CreateExecution(ctx, execution); err != nil {
		return nil, false, fmt.Errorf("failed to create execution: %w", err)
	}

	return execution, true, nil
}
