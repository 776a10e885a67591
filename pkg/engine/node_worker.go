package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/dukex/flowrun/pkg/events"
	"github.com/dukex/flowrun/pkg/graph"
	"github.com/dukex/flowrun/pkg/metrics"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/otelhelper"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/queue"
	"go.opentelemetry.io/otel/attribute"
)

// ErrNodeNotFound is returned when a node job names a node missing from its workflow.
var ErrNodeNotFound = errors.New("node not found in workflow")

// HandleNodeJob runs one node of an execution, records the outcome and schedules
// what follows: successors, skipped branches, a delayed resume, or the end of
// the execution. A returned error marks the node and the execution FAILED and
// lets the queue retry the job, which is then acknowledged as already finished.
func (e *Engine) HandleNodeJob(ctx context.Context, job *queue.Job) error {
	var payload queue.NodeJob
	if err := job.Decode(&payload); err != nil {
		return err
	}

	logger := e.logger.With("execution_id", payload.ExecutionID, "node_id", payload.NodeID, "job_id", job.ID)

	execution, err := e.persistence.ExecutionByID(ctx, payload.ExecutionID)
	if err != nil {
		return fmt.Errorf("failed to load execution %s: %w", payload.ExecutionID, err)
	}

	run, err := e.persistence.NodeRunByNode(ctx, payload.ExecutionID, payload.NodeID)
	if err != nil {
		return fmt.Errorf("failed to load run of node %s: %w", payload.NodeID, err)
	}

	if execution.Status.IsTerminal() {
		e.cancelPending(ctx, run, logger)

		return nil
	}

	if !e.claim(ctx, run, payload.Resumed, logger) {
		return nil
	}

	workflow, err := e.workflow(ctx, payload.WorkflowID)
	if err != nil {
		return e.fail(ctx, run, "", err, logger)
	}

	node, ok := workflow.NodeByID(payload.NodeID)
	if !ok {
		return e.fail(ctx, run, "", fmt.Errorf("%w: %s", ErrNodeNotFound, payload.NodeID), logger)
	}

	runs, err := e.persistence.NodeRunsByExecution(ctx, execution.ID)
	if err != nil {
		return e.fail(ctx, run, node.Type, err, logger)
	}

	nodes := finishedNodes(runs)

	input := run.Input
	if !payload.Resumed || input == nil {
		input = nodeInput(workflow, node, execution, runs)
	}

	run.Input = input

	result, err := e.execute(ctx, execution, node, run, nodes, input, payload.Resumed, logger)
	if err != nil {
		return e.fail(ctx, run, node.Type, err, logger)
	}

	if result.Delay > 0 && !payload.Resumed {
		return e.delay(ctx, run, node, payload, result.Delay, logger)
	}

	// Successor runs exist before this run leaves RUNNING, so a sibling branch
	// finishing meanwhile never counts zero active runs too early. Their jobs
	// are enqueued only after SUCCESS so successors read this node's output.
	successors, err := e.advance(ctx, execution, workflow, node, result)
	if err != nil {
		e.discard(ctx, successors, logger)

		return e.fail(ctx, run, node.Type, err, logger)
	}

	if !e.succeed(ctx, run, node.Type, result.Output, logger) {
		e.discard(ctx, successors, logger)

		return nil
	}

	if err := e.enqueue(ctx, execution, workflow, successors); err != nil {
		message := fmt.Sprintf("node %s could not schedule successors: %v", node.ID, err)
		if _, _, finishErr := e.executions.Finish(ctx, execution.ID, models.ExecutionStatusFailed, message); finishErr != nil {
			logger.Error("failed to finish execution", "error", finishErr)
		}

		return err
	}

	return e.complete(ctx, execution.ID)
}

// claim moves a PENDING run to RUNNING. A RUNNING run is taken again when the job
// resumes a delayed node or retries after a crash. Finished runs are not rerun.
func (e *Engine) claim(ctx context.Context, run *models.WorkflowNodeRun, resumed bool, logger *slog.Logger) bool {
	switch run.Status {
	case models.NodeRunStatusPending:
		if err := run.Transition(models.NodeRunStatusRunning, e.now()); err != nil {
			return false
		}

		if err := e.persistence.UpdateNodeRun(ctx, run, models.NodeRunStatusPending); err != nil {
			logger.Info("node run taken by another worker", "error", err)

			return false
		}

		e.publish(ctx, events.NewNodeRunUpdated(run))

		return true
	case models.NodeRunStatusRunning:
		if !resumed {
			logger.Warn("rerunning node run left RUNNING", "run_id", run.ID)
		}

		return true
	default:
		logger.Debug("node run already finished", "status", run.Status)

		return false
	}
}

func (e *Engine) execute(
	ctx context.Context,
	execution *models.WorkflowExecution,
	node models.WorkflowNode,
	run *models.WorkflowNodeRun,
	nodes map[string]models.NodeIO,
	input map[string]any,
	resumed bool,
	logger *slog.Logger,
) (protocol.Result, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "node.execute",
		attribute.String(otelhelper.WorkflowIDKey, execution.WorkflowID),
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeTypeKey, node.Type),
		attribute.String(otelhelper.NodeRunIDKey, run.ID),
	)
	defer span.End()

	handler, err := e.registry.CreateNode(ctx, node.Type, node.ID, node.Config)
	if err != nil {
		otelhelper.SetError(span, err)

		return protocol.Result{}, err
	}

	nctx := &nodeContext{
		engine:      e,
		executionID: execution.ID,
		workflowID:  execution.WorkflowID,
		nodeID:      node.ID,
		runID:       run.ID,
		resumed:     resumed,
		logger:      logger.With("run_id", run.ID, "node_type", node.Type),
		state:       maps.Clone(execution.StateOut),
		nodes:       nodes,
	}

	start := time.Now()
	result, err := handler.Execute(ctx, nctx, input)

	metrics.NodeDuration.WithLabelValues(node.Type).Observe(time.Since(start).Seconds())

	if err != nil {
		otelhelper.SetError(span, err)

		return protocol.Result{}, err
	}

	return result, nil
}

// fail records err on the run, finishes the execution FAILED and hands err back
// to the queue.
func (e *Engine) fail(ctx context.Context, run *models.WorkflowNodeRun, nodeType string, err error, logger *slog.Logger) error {
	logger.Error("node failed", "error", err)

	run.Error = err.Error()

	if transitionErr := run.Transition(models.NodeRunStatusFailed, e.now()); transitionErr == nil {
		if updateErr := e.persistence.UpdateNodeRun(ctx, run, models.NodeRunStatusRunning); updateErr != nil {
			logger.Warn("failed to record node failure", "error", updateErr)
		} else {
			metrics.NodeRuns.WithLabelValues(nodeType, string(models.NodeRunStatusFailed)).Inc()
			e.publish(ctx, events.NewNodeRunUpdated(run))
		}
	}

	message := fmt.Sprintf("node %s failed: %v", run.NodeID, err)
	if _, _, finishErr := e.executions.Finish(ctx, run.ExecutionID, models.ExecutionStatusFailed, message); finishErr != nil {
		logger.Error("failed to finish execution", "error", finishErr)
	}

	return err
}

func (e *Engine) succeed(ctx context.Context, run *models.WorkflowNodeRun, nodeType string, output map[string]any, logger *slog.Logger) bool {
	run.Output = output

	if err := run.Transition(models.NodeRunStatusSuccess, e.now()); err != nil {
		logger.Warn("cannot complete node run", "error", err)

		return false
	}

	if err := e.persistence.UpdateNodeRun(ctx, run, models.NodeRunStatusRunning); err != nil {
		if errors.Is(err, persistence.ErrStaleNodeRun) {
			logger.Info("node run changed while running, dropping result")
		} else {
			logger.Error("failed to record node result", "error", err)
		}

		return false
	}

	metrics.NodeRuns.WithLabelValues(nodeType, string(models.NodeRunStatusSuccess)).Inc()
	e.publish(ctx, events.NewNodeRunUpdated(run))

	logger.Debug("node succeeded")

	return true
}

// delay keeps the run RUNNING and schedules the same node again once d has elapsed.
func (e *Engine) delay(
	ctx context.Context,
	run *models.WorkflowNodeRun,
	node models.WorkflowNode,
	payload queue.NodeJob,
	d time.Duration,
	logger *slog.Logger,
) error {
	if err := e.persistence.UpdateNodeRun(ctx, run, models.NodeRunStatusRunning); err != nil {
		logger.Warn("failed to record node input", "error", err)
	}

	payload.Resumed = true

	job, err := queue.NewNodeJob(node.Type, payload)
	if err != nil {
		return err
	}

	if err := e.queue.AddDelayed(ctx, job, d); err != nil {
		return e.fail(ctx, run, node.Type, fmt.Errorf("failed to schedule resume: %w", err), logger)
	}

	logger.Info("node delayed", "delay", d)

	return nil
}

// advance creates the runs that follow node: PENDING for selected successors and
// SKIPPED for targets the branch did not take. It returns the PENDING runs it
// created, whose jobs are not enqueued yet.
func (e *Engine) advance(
	ctx context.Context,
	execution *models.WorkflowExecution,
	workflow *models.Workflow,
	node models.WorkflowNode,
	result protocol.Result,
) ([]*models.WorkflowNodeRun, error) {
	current, err := e.persistence.ExecutionByID(ctx, execution.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload execution: %w", err)
	}

	if current.Status.IsTerminal() {
		return nil, nil
	}

	var created []*models.WorkflowNodeRun

	if !result.BranchEnded {
		for _, next := range graph.NextNodes(workflow.Nodes, workflow.Edges, node.ID, result.NextEdgeLabel) {
			run, err := e.pendingRun(ctx, current, next)
			if err != nil {
				return created, err
			}

			if run != nil {
				created = append(created, run)
			}
		}
	}

	unselected := graph.UnselectedNodes(workflow.Nodes, workflow.Edges, node.ID, result.NextEdgeLabel, result.BranchEnded)
	if len(unselected) == 0 {
		return created, nil
	}

	runs, err := e.persistence.NodeRunsByExecution(ctx, current.ID)
	if err != nil {
		return created, fmt.Errorf("failed to load node runs: %w", err)
	}

	for _, skipped := range unselected {
		if !otherPathsDecided(workflow.Edges, runs, node.ID, skipped.ID) {
			continue
		}

		if err := e.skippedRun(ctx, current, skipped); err != nil {
			return created, err
		}
	}

	return created, nil
}

// otherPathsDecided reports whether every predecessor of target other than
// source has finished. A predecessor that selected target has already created
// its run, so a finished set means no path is left to reach it.
func otherPathsDecided(edges []models.WorkflowEdge, runs []*models.WorkflowNodeRun, source, target string) bool {
	status := make(map[string]models.NodeRunStatus, len(runs))
	for _, run := range runs {
		status[run.NodeID] = run.Status
	}

	for _, predecessor := range graph.Predecessors(edges, target) {
		if predecessor == source {
			continue
		}

		current, ok := status[predecessor]
		if !ok || !current.IsTerminal() {
			return false
		}
	}

	return true
}

// enqueue adds the jobs of runs created by advance.
func (e *Engine) enqueue(ctx context.Context, execution *models.WorkflowExecution, workflow *models.Workflow, runs []*models.WorkflowNodeRun) error {
	for _, run := range runs {
		node, ok := workflow.NodeByID(run.NodeID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNodeNotFound, run.NodeID)
		}

		job, err := queue.NewNodeJob(node.Type, queue.NodeJob{
			ExecutionID: execution.ID,
			WorkflowID:  execution.WorkflowID,
			NodeID:      node.ID,
		})
		if err != nil {
			return err
		}

		if err := e.queue.Add(ctx, job); err != nil {
			return fmt.Errorf("failed to enqueue node %s: %w", node.ID, err)
		}
	}

	return nil
}

// discard cancels PENDING runs created by advance whose jobs will never be enqueued.
func (e *Engine) discard(ctx context.Context, runs []*models.WorkflowNodeRun, logger *slog.Logger) {
	for _, run := range runs {
		e.cancelPending(ctx, run, logger)
	}
}

// complete finishes the execution SUCCESS once no run is PENDING or RUNNING.
func (e *Engine) complete(ctx context.Context, executionID string) error {
	active, err := e.persistence.CountActiveNodeRuns(ctx, executionID)
	if err != nil {
		return fmt.Errorf("failed to count active node runs: %w", err)
	}

	if active > 0 {
		return nil
	}

	_, _, err = e.executions.Finish(ctx, executionID, models.ExecutionStatusSuccess, "")

	return err
}

// cancelPending acknowledges a job whose execution already finished.
func (e *Engine) cancelPending(ctx context.Context, run *models.WorkflowNodeRun, logger *slog.Logger) {
	if run.Status != models.NodeRunStatusPending {
		return
	}

	if err := run.Transition(models.NodeRunStatusCanceled, e.now()); err != nil {
		return
	}

	if err := e.persistence.UpdateNodeRun(ctx, run, models.NodeRunStatusPending); err != nil {
		logger.Debug("pending run already changed", "error", err)

		return
	}

	e.publish(ctx, events.NewNodeRunUpdated(run))
}

// finishedNodes exposes successful runs to templates as nodes.<id>.
func finishedNodes(runs []*models.WorkflowNodeRun) map[string]models.NodeIO {
	nodes := make(map[string]models.NodeIO, len(runs))

	for _, run := range runs {
		if run.Status == models.NodeRunStatusSuccess {
			nodes[run.NodeID] = models.NodeIO{Input: run.Input, Output: run.Output}
		}
	}

	return nodes
}

// nodeInput is the trigger input for start nodes and the merged output of
// finished predecessors, in edge order, for every other node.
func nodeInput(
	workflow *models.Workflow,
	node models.WorkflowNode,
	execution *models.WorkflowExecution,
	runs []*models.WorkflowNodeRun,
) map[string]any {
	if node.IsTrigger() {
		if input, ok := execution.StateIn["input"].(map[string]any); ok {
			return maps.Clone(input)
		}

		return maps.Clone(execution.StateIn)
	}

	outputs := make(map[string]map[string]any, len(runs))
	for _, run := range runs {
		if run.Status == models.NodeRunStatusSuccess {
			outputs[run.NodeID] = run.Output
		}
	}

	input := map[string]any{}

	for _, edge := range workflow.Edges {
		if edge.TargetNodeID != node.ID {
			continue
		}

		maps.Copy(input, outputs[edge.SourceNodeID])
	}

	return input
}
