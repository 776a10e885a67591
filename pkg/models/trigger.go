package models

import "time"

// TriggerType is the way an execution was started.
type TriggerType string

const (
	TriggerTypeCron    TriggerType = "cron"
	TriggerTypeManual  TriggerType = "manual"
	TriggerTypeAPI     TriggerType = "api"
	TriggerTypeWebhook TriggerType = "webhook"
)

// DefaultTimezone is used for cron triggers that do not set one.
const DefaultTimezone = "UTC"

// Trigger registers a way to start a workflow. Cron triggers are scheduled as
// repeatable jobs while the trigger and its workflow are active.
type Trigger struct {
	ID         string      `json:"id"`
	WorkflowID string      `json:"workflow_id" validate:"required"`
	Type       TriggerType `json:"type"        validate:"required,oneof=cron manual api"`
	CronExpr   string      `json:"cron_expr,omitempty" validate:"required_if=Type cron"`
	Timezone   string      `json:"timezone"`
	IsActive   bool        `json:"is_active"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// ScheduleKey is the stable repeatable job key of a cron trigger.
func (t *Trigger) ScheduleKey() string {
	return "cron-" + t.ID
}

// Location returns the configured timezone name, falling back to UTC.
func (t *Trigger) Location() string {
	if t.Timezone == "" {
		return DefaultTimezone
	}

	return t.Timezone
}
