package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/queue"
	"github.com/go-playground/validator/v10"
)

type Trigger struct {
	persistence persistence.Persistence
	scheduler   *Scheduler
	validator   *validator.Validate
	logger      *slog.Logger
}

// NewTrigger creates a new trigger service.
func NewTrigger(p persistence.Persistence, scheduler *Scheduler, validate *validator.Validate, logger *slog.Logger) *Trigger {
	return &Trigger{
		persistence: p,
		scheduler:   scheduler,
		validator:   validate,
		logger:      logger.With("module", "trigger_service"),
	}
}

// ListByWorkflow returns the triggers of a workflow.
func (t *Trigger) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Trigger, error) {
	if _, err := t.persistence.WorkflowByID(ctx, workflowID); err != nil {
		return nil, notFound("ListByWorkflow", CodeWorkflowNotFound, err)
	}

	triggers, err := t.persistence.TriggersByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list triggers: %w", err)
	}

	return triggers, nil
}

// FetchByID retrieves a trigger by its ID.
func (t *Trigger) FetchByID(ctx context.Context, id string) (*models.Trigger, error) {
	trigger, err := t.persistence.TriggerByID(ctx, id)
	if err != nil {
		return nil, notFound("FetchByID", CodeTriggerNotFound, err)
	}

	return trigger, nil
}

// Create registers a trigger on a workflow and resynchronizes its schedules.
func (t *Trigger) Create(ctx context.Context, workflowID string, trigger *models.Trigger) (*models.Trigger, error) {
	if _, err := t.persistence.WorkflowByID(ctx, workflowID); err != nil {
		return nil, notFound("Create", CodeWorkflowNotFound, err)
	}

	now := time.Now().UTC()
	trigger.ID = models.NewTriggerID()
	trigger.WorkflowID = workflowID
	trigger.CreatedAt = now
	trigger.UpdatedAt = now

	if err := t.validate("Create", trigger); err != nil {
		return nil, err
	}

	if err := t.persistence.SaveTrigger(ctx, trigger); err != nil {
		return nil, notFound("Create", CodeWorkflowNotFound, err)
	}

	t.sync(ctx, workflowID)

	t.logger.Info("trigger created", "trigger_id", trigger.ID, "workflow_id", workflowID, "type", trigger.Type)

	return trigger, nil
}

// Update replaces a trigger's settings. The workflow it belongs to cannot change.
func (t *Trigger) Update(ctx context.Context, id string, trigger *models.Trigger) (*models.Trigger, error) {
	existing, err := t.persistence.TriggerByID(ctx, id)
	if err != nil {
		return nil, notFound("Update", CodeTriggerNotFound, err)
	}

	trigger.ID = id
	trigger.WorkflowID = existing.WorkflowID
	trigger.CreatedAt = existing.CreatedAt
	trigger.UpdatedAt = time.Now().UTC()

	if err := t.validate("Update", trigger); err != nil {
		return nil, err
	}

	if err := t.persistence.SaveTrigger(ctx, trigger); err != nil {
		return nil, fmt.Errorf("failed to update trigger: %w", err)
	}

	t.sync(ctx, trigger.WorkflowID)

	return trigger, nil
}

// Delete removes a trigger and resynchronizes its workflow's schedules.
func (t *Trigger) Delete(ctx context.Context, id string) error {
	existing, err := t.persistence.TriggerByID(ctx, id)
	if err != nil {
		return notFound("Delete", CodeTriggerNotFound, err)
	}

	if err := t.persistence.DeleteTrigger(ctx, id); err != nil {
		return notFound("Delete", CodeTriggerNotFound, err)
	}

	t.sync(ctx, existing.WorkflowID)

	return nil
}

func (t *Trigger) validate(op string, trigger *models.Trigger) error {
	if trigger.Timezone == "" {
		trigger.Timezone = models.DefaultTimezone
	}

	if err := t.validator.Struct(trigger); err != nil {
		return NewValidationError(op, CodeInvalidTrigger, err.Error())
	}

	if trigger.Type != models.TriggerTypeCron {
		return nil
	}

	if _, err := queue.ParseSchedule(trigger.CronExpr, trigger.Timezone); err != nil {
		return NewValidationError(op, CodeInvalidCron, err.Error())
	}

	return nil
}

func (t *Trigger) sync(ctx context.Context, workflowID string) {
	if t.scheduler == nil {
		return
	}

	if err := t.scheduler.Sync(ctx, workflowID); err != nil {
		t.logger.Error("failed to synchronize schedules", "workflow_id", workflowID, "error", err)
	}
}
