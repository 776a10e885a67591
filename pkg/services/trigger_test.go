package services

import (
	"context"
	"testing"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrigger_CronLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	workflow := f.createWorkflow(t, simpleWorkflow())

	trigger, err := f.triggers.Create(ctx, workflow.ID, &models.Trigger{
		Type:     models.TriggerTypeCron,
		CronExpr: "*/5 * * * *",
		IsActive: true,
	})
	require.NoError(t, err)
	assert.Contains(t, trigger.ID, "trg_")
	assert.Equal(t, models.DefaultTimezone, trigger.Timezone)

	repeatables, err := f.queue.ListRepeatable(ctx)
	require.NoError(t, err)
	require.Len(t, repeatables, 1)
	assert.Equal(t, "cron-"+trigger.ID, repeatables[0].Key)
	assert.Equal(t, queue.JobNameCron, repeatables[0].Job.Name)

	var payload queue.WorkflowJob
	require.NoError(t, repeatables[0].Job.Decode(&payload))
	assert.Equal(t, workflow.ID, payload.WorkflowID)
	assert.Equal(t, models.TriggerTypeCron, payload.TriggerType)

	trigger.IsActive = false
	_, err = f.triggers.Update(ctx, trigger.ID, trigger)
	require.NoError(t, err)

	repeatables, err = f.queue.ListRepeatable(ctx)
	require.NoError(t, err)
	assert.Empty(t, repeatables)

	trigger.IsActive = true
	_, err = f.triggers.Update(ctx, trigger.ID, trigger)
	require.NoError(t, err)

	require.NoError(t, f.triggers.Delete(ctx, trigger.ID))

	repeatables, err = f.queue.ListRepeatable(ctx)
	require.NoError(t, err)
	assert.Empty(t, repeatables)
}

func TestTrigger_InactiveWorkflowHasNoSchedule(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	workflow := f.createWorkflow(t, simpleWorkflow())

	_, err := f.triggers.Create(ctx, workflow.ID, &models.Trigger{
		Type:     models.TriggerTypeCron,
		CronExpr: "@hourly",
		IsActive: true,
	})
	require.NoError(t, err)

	_, err = f.workflows.SetActive(ctx, workflow.ID, false)
	require.NoError(t, err)

	repeatables, err := f.queue.ListRepeatable(ctx)
	require.NoError(t, err)
	assert.Empty(t, repeatables)

	_, err = f.workflows.SetActive(ctx, workflow.ID, true)
	require.NoError(t, err)

	repeatables, err = f.queue.ListRepeatable(ctx)
	require.NoError(t, err)
	assert.Len(t, repeatables, 1)

	require.NoError(t, f.workflows.Delete(ctx, workflow.ID))

	repeatables, err = f.queue.ListRepeatable(ctx)
	require.NoError(t, err)
	assert.Empty(t, repeatables)
}

func TestTrigger_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		trigger models.Trigger
		code    string
	}{
		{"missing cron", models.Trigger{Type: models.TriggerTypeCron}, CodeInvalidTrigger},
		{"bad cron", models.Trigger{Type: models.TriggerTypeCron, CronExpr: "every day"}, CodeInvalidCron},
		{"bad timezone", models.Trigger{Type: models.TriggerTypeCron, CronExpr: "* * * * *", Timezone: "Mars/Base"}, CodeInvalidCron},
		{"bad type", models.Trigger{Type: "email"}, CodeInvalidTrigger},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			workflow := f.createWorkflow(t, simpleWorkflow())

			_, err := f.triggers.Create(context.Background(), workflow.ID, &tt.trigger)
			require.Error(t, err)

			var serviceErr *ServiceError
			require.ErrorAs(t, err, &serviceErr)
			assert.True(t, IsValidationError(err))
			assert.Equal(t, tt.code, serviceErr.Code)
		})
	}
}

func TestTrigger_UnknownWorkflow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.triggers.Create(context.Background(), "missing", &models.Trigger{Type: models.TriggerTypeManual})
	assert.True(t, IsNotFoundError(err))
}

func TestScheduler_SyncAll(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	workflow := f.createWorkflow(t, simpleWorkflow())

	require.NoError(t, f.persistence.SaveTrigger(ctx, &models.Trigger{
		ID:         "trg_a",
		WorkflowID: workflow.ID,
		Type:       models.TriggerTypeCron,
		CronExpr:   "0 9 * * 1-5",
		Timezone:   "Europe/Berlin",
		IsActive:   true,
	}))

	schedule, err := queue.ParseSchedule("@daily", "UTC")
	require.NoError(t, err)

	stale, err := queue.NewCronJob(queue.WorkflowJob{WorkflowID: "deleted"})
	require.NoError(t, err)
	require.NoError(t, f.queue.UpsertRepeatable(ctx, "cron-stale", schedule, stale))

	require.NoError(t, f.scheduler.SyncAll(ctx))

	repeatables, err := f.queue.ListRepeatable(ctx)
	require.NoError(t, err)
	require.Len(t, repeatables, 1)
	assert.Equal(t, "cron-trg_a", repeatables[0].Key)
	assert.Equal(t, "Europe/Berlin", repeatables[0].Timezone)
}
