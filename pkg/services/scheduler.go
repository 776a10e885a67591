package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/queue"
)

// Scheduler keeps the queue's repeatable jobs in line with the stored cron triggers.
type Scheduler struct {
	persistence persistence.Persistence
	queue       queue.Queue
	logger      *slog.Logger
}

func NewScheduler(p persistence.Persistence, q queue.Queue, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		persistence: p,
		queue:       q,
		logger:      logger.With("module", "scheduler"),
	}
}

// Sync replaces every schedule of the workflow: all of its keys are removed,
// then one is added per active cron trigger when the workflow is active.
// A deleted workflow ends up with no schedules.
func (s *Scheduler) Sync(ctx context.Context, workflowID string) error {
	if err := s.removeWorkflow(ctx, workflowID); err != nil {
		return err
	}

	workflow, err := s.persistence.WorkflowByID(ctx, workflowID)
	if persistence.IsWorkflowNotFound(err) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to load workflow %s: %w", workflowID, err)
	}

	if !workflow.IsActive {
		return nil
	}

	triggers, err := s.persistence.TriggersByWorkflow(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to load triggers of workflow %s: %w", workflowID, err)
	}

	for _, trigger := range triggers {
		if trigger.Type != models.TriggerTypeCron || !trigger.IsActive {
			continue
		}

		if err := s.add(ctx, trigger); err != nil {
			return err
		}
	}

	return nil
}

// SyncAll rebuilds the schedules of every workflow from the store. Workers call
// it on startup so a fresh queue picks up existing triggers.
func (s *Scheduler) SyncAll(ctx context.Context) error {
	repeatables, err := s.queue.ListRepeatable(ctx)
	if err != nil {
		return fmt.Errorf("failed to list schedules: %w", err)
	}

	for _, repeatable := range repeatables {
		if err := s.queue.RemoveRepeatable(ctx, repeatable.Key); err != nil {
			return fmt.Errorf("failed to remove schedule %s: %w", repeatable.Key, err)
		}
	}

	triggers, err := s.persistence.ActiveCronTriggers(ctx)
	if err != nil {
		return fmt.Errorf("failed to load cron triggers: %w", err)
	}

	for _, trigger := range triggers {
		if err := s.add(ctx, trigger); err != nil {
			s.logger.Error("skipping invalid cron trigger", "trigger_id", trigger.ID, "error", err)
		}
	}

	s.logger.Info("schedules synchronized", "count", len(triggers))

	return nil
}

func (s *Scheduler) add(ctx context.Context, trigger *models.Trigger) error {
	schedule, err := queue.ParseSchedule(trigger.CronExpr, trigger.Location())
	if err != nil {
		return fmt.Errorf("trigger %s: %w", trigger.ID, err)
	}

	job, err := queue.NewCronJob(queue.WorkflowJob{WorkflowID: trigger.WorkflowID})
	if err != nil {
		return err
	}

	if err := s.queue.UpsertRepeatable(ctx, trigger.ScheduleKey(), schedule, job); err != nil {
		return fmt.Errorf("failed to schedule trigger %s: %w", trigger.ID, err)
	}

	s.logger.Debug("schedule added", "trigger_id", trigger.ID, "workflow_id", trigger.WorkflowID, "cron", schedule.Spec())

	return nil
}

func (s *Scheduler) removeWorkflow(ctx context.Context, workflowID string) error {
	repeatables, err := s.queue.ListRepeatable(ctx)
	if err != nil {
		return fmt.Errorf("failed to list schedules: %w", err)
	}

	for _, repeatable := range repeatables {
		if repeatable.Job == nil {
			continue
		}

		var payload queue.WorkflowJob
		if err := repeatable.Job.Decode(&payload); err != nil || payload.WorkflowID != workflowID {
			continue
		}

		if err := s.queue.RemoveRepeatable(ctx, repeatable.Key); err != nil {
			return fmt.Errorf("failed to remove schedule %s: %w", repeatable.Key, err)
		}
	}

	return nil
}
