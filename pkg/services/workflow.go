package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/flowrun/pkg/graph"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/registry"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Workflow struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	scheduler   *Scheduler
	validator   *validator.Validate
	logger      *slog.Logger
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(
	p persistence.Persistence,
	reg *registry.Registry,
	scheduler *Scheduler,
	validate *validator.Validate,
	logger *slog.Logger,
) *Workflow {
	return &Workflow{
		persistence: p,
		registry:    reg,
		scheduler:   scheduler,
		validator:   validate,
		logger:      logger.With("module", "workflow_service"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// List returns every workflow, newest first.
func (w *Workflow) List(ctx context.Context) ([]*models.Workflow, error) {
	workflows, err := w.persistence.Workflows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowByID(ctx, id)
	if err != nil {
		return nil, notFound("FetchByID", CodeWorkflowNotFound, err)
	}

	return workflow, nil
}

// Create validates and stores a new workflow. Missing node and edge ids are generated.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	workflow.ID = ""

	if err := w.prepare("Create", workflow); err != nil {
		return nil, err
	}

	if err := w.persistence.SaveWorkflow(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	w.sync(ctx, workflow.ID)

	w.logger.Info("workflow created", "workflow_id", workflow.ID, "nodes", len(workflow.Nodes))

	return workflow, nil
}

// Update replaces an existing workflow. Nodes are upserted by id and nodes missing
// from the new definition are removed together with their edges.
func (w *Workflow) Update(ctx context.Context, workflowID string, workflow *models.Workflow) (*models.Workflow, error) {
	if _, err := w.persistence.WorkflowByID(ctx, workflowID); err != nil {
		return nil, notFound("Update", CodeWorkflowNotFound, err)
	}

	workflow.ID = workflowID

	if err := w.prepare("Update", workflow); err != nil {
		return nil, err
	}

	if err := w.persistence.SaveWorkflow(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	w.sync(ctx, workflow.ID)

	w.logger.Info("workflow updated", "workflow_id", workflow.ID, "version", workflow.Version)

	return workflow, nil
}

// SetActive toggles whether triggers may start the workflow.
func (w *Workflow) SetActive(ctx context.Context, workflowID string, active bool) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, notFound("SetActive", CodeWorkflowNotFound, err)
	}

	workflow.IsActive = active

	if err := w.persistence.SaveWorkflow(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	w.sync(ctx, workflow.ID)

	return workflow, nil
}

// Delete removes a workflow, everything it owns and its schedules.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	if err := w.persistence.DeleteWorkflow(ctx, workflowID); err != nil {
		return notFound("Delete", CodeWorkflowNotFound, err)
	}

	w.sync(ctx, workflowID)

	w.logger.Info("workflow deleted", "workflow_id", workflowID)

	return nil
}

// Validate checks a workflow definition without storing it.
func (w *Workflow) Validate(workflow *models.Workflow) error {
	return w.prepare("Validate", workflow)
}

// prepare fills generated ids, drops dangling edges and validates the definition.
func (w *Workflow) prepare(op string, workflow *models.Workflow) error {
	for i := range workflow.Nodes {
		if workflow.Nodes[i].ID == "" {
			workflow.Nodes[i].ID = models.NewNodeID()
		}
	}

	for i := range workflow.Edges {
		if workflow.Edges[i].ID == "" {
			workflow.Edges[i].ID = uuid.New().String()
		}
	}

	if dangling := graph.DanglingEdges(workflow.Nodes, workflow.Edges); len(dangling) > 0 {
		w.logger.Warn("dropping edges with missing endpoints", "workflow_id", workflow.ID, "count", len(dangling))
		workflow.Edges = graph.FilterDanglingEdges(workflow.Nodes, workflow.Edges)
	}

	if err := w.validator.Struct(workflow); err != nil {
		return NewValidationError(op, CodeInvalidWorkflow, err.Error())
	}

	seen := make(map[string]bool, len(workflow.Nodes))

	for _, node := range workflow.Nodes {
		if seen[node.ID] {
			return NewValidationError(op, CodeInvalidWorkflow, fmt.Sprintf("duplicate node id '%s'", node.ID))
		}

		seen[node.ID] = true

		if _, ok := w.registry.Get(node.Type); !ok {
			return NewValidationError(op, CodeUnknownNodeType, fmt.Sprintf("node '%s' has unknown type '%s'", node.ID, node.Type))
		}

		if err := w.registry.ValidateConfig(node.Type, node.Config); err != nil {
			return NewValidationError(op, CodeInvalidNodeConfig, fmt.Sprintf("node '%s': %v", node.ID, err))
		}
	}

	if _, err := graph.TopologicalSort(workflow.Nodes, workflow.Edges); err != nil {
		return NewValidationError(op, CodeCycle, "workflow graph contains a cycle")
	}

	return nil
}

// validateForExecution checks a stored workflow is runnable.
func (w *Workflow) validateForExecution(op string, workflow *models.Workflow) error {
	if len(graph.StartNodes(workflow.Nodes)) == 0 {
		return NewValidationError(op, CodeNoStartNode, "workflow has no trigger node")
	}

	var problems []string

	for _, node := range workflow.Nodes {
		if err := w.registry.ValidateConfig(node.Type, node.Config); err != nil {
			problems = append(problems, fmt.Sprintf("node '%s': %v", node.ID, err))
		}
	}

	if len(problems) > 0 {
		return NewValidationError(op, CodeInvalidNodeConfig, strings.Join(problems, "; "))
	}

	return nil
}

func (w *Workflow) sync(ctx context.Context, workflowID string) {
	if w.scheduler == nil {
		return
	}

	if err := w.scheduler.Sync(ctx, workflowID); err != nil {
		w.logger.Error("failed to synchronize schedules", "workflow_id", workflowID, "error", err)
	}
}
