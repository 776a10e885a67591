package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/events"
	"github.com/dukex/flowrun/pkg/metrics"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/queue"
)

// ErrUnchanged is returned by a Mutate function to skip the write.
var ErrUnchanged = errors.New("execution unchanged")

// maxWriteAttempts bounds the compare-and-swap retries of one execution write.
const maxWriteAttempts = 10

type Execution struct {
	persistence persistence.Persistence
	workflows   *Workflow
	queue       queue.Queue
	bus         eventbus.EventPublisher
	logger      *slog.Logger
}

// NewExecution creates a new execution service.
func NewExecution(
	p persistence.Persistence,
	workflows *Workflow,
	q queue.Queue,
	bus eventbus.EventPublisher,
	logger *slog.Logger,
) *Execution {
	return &Execution{
		persistence: p,
		workflows:   workflows,
		queue:       q,
		bus:         bus,
		logger:      logger.With("module", "execution_service"),
	}
}

// StartRequest describes a new execution.
type StartRequest struct {
	WorkflowID  string
	StateIn     map[string]any
	TriggerType models.TriggerType
}

// Start validates the workflow and enqueues a workflow job. The execution id is
// allocated here so callers can follow the execution before a worker picks it up.
func (e *Execution) Start(ctx context.Context, req StartRequest) (string, error) {
	workflow, err := e.persistence.WorkflowByID(ctx, req.WorkflowID)
	if err != nil {
		return "", notFound("Start", CodeWorkflowNotFound, err)
	}

	if err := e.workflows.validateForExecution("Start", workflow); err != nil {
		return "", err
	}

	return e.enqueue(ctx, req)
}

func (e *Execution) enqueue(ctx context.Context, req StartRequest) (string, error) {
	if req.TriggerType == "" {
		req.TriggerType = models.TriggerTypeManual
	}

	executionID := models.NewExecutionID()

	job, err := queue.NewWorkflowJob(queue.WorkflowJob{
		WorkflowID:  req.WorkflowID,
		ExecutionID: executionID,
		StateIn:     req.StateIn,
		TriggerType: req.TriggerType,
	})
	if err != nil {
		return "", err
	}

	if err := e.queue.Add(ctx, job); err != nil {
		return "", fmt.Errorf("failed to enqueue workflow job: %w", err)
	}

	e.logger.Info("execution requested",
		"workflow_id", req.WorkflowID,
		"execution_id", executionID,
		"trigger_type", req.TriggerType,
	)

	return executionID, nil
}

// FetchByID retrieves an execution by its ID.
func (e *Execution) FetchByID(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	execution, err := e.persistence.ExecutionByID(ctx, id)
	if err != nil {
		return nil, notFound("FetchByID", CodeExecutionNotFound, err)
	}

	return execution, nil
}

// ListByWorkflow returns the executions of a workflow, newest first.
func (e *Execution) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	if _, err := e.persistence.WorkflowByID(ctx, workflowID); err != nil {
		return nil, notFound("ListByWorkflow", CodeWorkflowNotFound, err)
	}

	executions, err := e.persistence.ExecutionsByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	return executions, nil
}

// NodeRuns returns the node runs of an execution in creation order.
func (e *Execution) NodeRuns(ctx context.Context, executionID string) ([]*models.WorkflowNodeRun, error) {
	if _, err := e.persistence.ExecutionByID(ctx, executionID); err != nil {
		return nil, notFound("NodeRuns", CodeExecutionNotFound, err)
	}

	runs, err := e.persistence.NodeRunsByExecution(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list node runs: %w", err)
	}

	return runs, nil
}

// Mutate applies fn to the latest stored execution and writes it back with a
// version check, reloading and reapplying fn on conflicts. When fn returns
// ErrUnchanged nothing is written and the loaded execution is returned.
func (e *Execution) Mutate(
	ctx context.Context,
	executionID string,
	fn func(*models.WorkflowExecution) error,
) (*models.WorkflowExecution, error) {
	var execution *models.WorkflowExecution

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 5 * time.Millisecond
	policy.MaxInterval = 200 * time.Millisecond

	operation := func() error {
		current, err := e.persistence.ExecutionByID(ctx, executionID)
		if err != nil {
			return backoff.Permanent(err)
		}

		execution = current

		if err := fn(current); err != nil {
			return backoff.Permanent(err)
		}

		err = e.persistence.UpdateExecution(ctx, current)
		if persistence.IsConflict(err) {
			return err
		}

		if err != nil {
			return backoff.Permanent(err)
		}

		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, maxWriteAttempts), ctx))
	if errors.Is(err, ErrUnchanged) {
		return execution, nil
	}

	if err != nil {
		return nil, err
	}

	return execution, nil
}

// Finish moves a running execution to a terminal status and publishes
// execution.completed. finished is false when the execution was already
// terminal, which makes the first terminal status win.
func (e *Execution) Finish(
	ctx context.Context,
	executionID string,
	status models.ExecutionStatus,
	errMsg string,
) (execution *models.WorkflowExecution, finished bool, err error) {
	execution, err = e.Mutate(ctx, executionID, func(current *models.WorkflowExecution) error {
		finished = false

		if current.Status.IsTerminal() {
			return ErrUnchanged
		}

		finished = true

		return current.Finish(status, errMsg, time.Now().UTC())
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to finish execution %s: %w", executionID, err)
	}

	if finished {
		metrics.ExecutionsFinished.WithLabelValues(string(status)).Inc()
		e.publish(ctx, events.NewExecutionCompleted(execution))

		e.logger.Info("execution finished",
			"execution_id", executionID,
			"workflow_id", execution.WorkflowID,
			"status", status,
		)
	}

	return execution, finished, nil
}

// Cancel stops a running execution and cancels its pending and running node runs.
// Node handlers already executing are not interrupted.
func (e *Execution) Cancel(ctx context.Context, executionID string) (*models.WorkflowExecution, error) {
	current, err := e.persistence.ExecutionByID(ctx, executionID)
	if err != nil {
		return nil, notFound("Cancel", CodeExecutionNotFound, err)
	}

	if current.Status.IsTerminal() {
		return nil, NewConflictError("Cancel", CodeExecutionNotRunning,
			fmt.Sprintf("execution is %s", current.Status))
	}

	execution, finished, err := e.Finish(ctx, executionID, models.ExecutionStatusCanceled, "")
	if err != nil {
		return nil, err
	}

	if !finished {
		return nil, NewConflictError("Cancel", CodeExecutionNotRunning,
			fmt.Sprintf("execution is %s", execution.Status))
	}

	canceled, err := e.persistence.CancelActiveNodeRuns(ctx, executionID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to cancel node runs: %w", err)
	}

	for _, run := range canceled {
		e.publish(ctx, events.NewNodeRunUpdated(run))
	}

	e.logger.Info("execution canceled", "execution_id", executionID, "node_runs", len(canceled))

	return execution, nil
}

func (e *Execution) publish(ctx context.Context, event events.Event) {
	if e.bus == nil {
		return
	}

	if err := e.bus.Publish(ctx, event); err != nil {
		e.logger.Warn("failed to publish event",
			"event_type", event.GetType(),
			"execution_id", event.GetExecutionID(),
			"error", err,
		)
	}
}
