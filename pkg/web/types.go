package web

import "github.com/dukex/flowrun/pkg/models"

// WorkflowRequest is the body of workflow create and update calls.
type WorkflowRequest struct {
	Name        string                `json:"name"        validate:"required,min=3"`
	Description string                `json:"description"`
	OwnerID     string                `json:"owner_id"`
	IsActive    bool                  `json:"is_active"`
	Nodes       []models.WorkflowNode `json:"nodes"`
	Edges       []models.WorkflowEdge `json:"edges"`
}

// ToModel builds a workflow from the request.
func (r WorkflowRequest) ToModel() *models.Workflow {
	return &models.Workflow{
		Name:        r.Name,
		Description: r.Description,
		OwnerID:     r.OwnerID,
		IsActive:    r.IsActive,
		Nodes:       r.Nodes,
		Edges:       r.Edges,
	}
}

// TriggerRequest is the body of trigger create and update calls.
type TriggerRequest struct {
	Type     models.TriggerType `json:"type"      validate:"required,oneof=cron manual api"`
	CronExpr string             `json:"cron_expr" validate:"required_if=Type cron"`
	Timezone string             `json:"timezone"`
	IsActive bool               `json:"is_active"`
}

// ToModel builds a trigger from the request.
func (r TriggerRequest) ToModel() *models.Trigger {
	return &models.Trigger{
		Type:     r.Type,
		CronExpr: r.CronExpr,
		Timezone: r.Timezone,
		IsActive: r.IsActive,
	}
}

// ExecuteRequest is the body of a manual execution. Input becomes the trigger output.
type ExecuteRequest struct {
	Input map[string]any `json:"input"`
}

// ExecutionAccepted answers calls that enqueue an execution.
type ExecutionAccepted struct {
	ExecutionID string `json:"executionId"`
}

// WebhookErrorResponse is the body of rejected webhook calls.
type WebhookErrorResponse struct {
	Error string `json:"error"`
}
