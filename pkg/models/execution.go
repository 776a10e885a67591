package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is returned when a status change would move backwards.
var ErrInvalidTransition = errors.New("invalid status transition")

// ExecutionStatus is the lifecycle state of a workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusRunning  ExecutionStatus = "RUNNING"
	ExecutionStatusSuccess  ExecutionStatus = "SUCCESS"
	ExecutionStatusFailed   ExecutionStatus = "FAILED"
	ExecutionStatusCanceled ExecutionStatus = "CANCELED"
)

// IsTerminal reports whether no further transition is allowed.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusSuccess || s == ExecutionStatusFailed || s == ExecutionStatusCanceled
}

// WorkflowExecution is one run of a workflow. StateOut is the document shared by
// every node run of the execution; Version guards concurrent writes to it.
type WorkflowExecution struct {
	ID          string          `json:"id"`
	WorkflowID  string          `json:"workflow_id"`
	TriggerType TriggerType     `json:"trigger_type"`
	Status      ExecutionStatus `json:"status"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
	StateIn     map[string]any  `json:"state_in"`
	StateOut    map[string]any  `json:"state_out"`
	Error       string          `json:"error,omitempty"`
	Version     int             `json:"version"`
}

// Finish moves a running execution to a terminal status.
func (e *WorkflowExecution) Finish(status ExecutionStatus, errMsg string, at time.Time) error {
	if e.Status.IsTerminal() || !status.IsTerminal() {
		return fmt.Errorf("%w: execution %s -> %s", ErrInvalidTransition, e.Status, status)
	}

	e.Status = status
	e.Error = errMsg
	e.FinishedAt = &at

	return nil
}

// NodeRunStatus is the lifecycle state of a single node run.
type NodeRunStatus string

const (
	NodeRunStatusPending  NodeRunStatus = "PENDING"
	NodeRunStatusRunning  NodeRunStatus = "RUNNING"
	NodeRunStatusSuccess  NodeRunStatus = "SUCCESS"
	NodeRunStatusFailed   NodeRunStatus = "FAILED"
	NodeRunStatusSkipped  NodeRunStatus = "SKIPPED"
	NodeRunStatusCanceled NodeRunStatus = "CANCELED"
)

var nodeRunTransitions = map[NodeRunStatus][]NodeRunStatus{
	NodeRunStatusPending: {NodeRunStatusRunning, NodeRunStatusSkipped, NodeRunStatusCanceled},
	NodeRunStatusRunning: {NodeRunStatusSuccess, NodeRunStatusFailed, NodeRunStatusCanceled},
}

// IsTerminal reports whether the run has finished.
func (s NodeRunStatus) IsTerminal() bool {
	_, open := nodeRunTransitions[s]

	return !open
}

// IsActive reports whether the run still counts against execution completion.
func (s NodeRunStatus) IsActive() bool {
	return s == NodeRunStatusPending || s == NodeRunStatusRunning
}

// CanTransitionTo reports whether moving from s to next is a forward transition.
func (s NodeRunStatus) CanTransitionTo(next NodeRunStatus) bool {
	for _, allowed := range nodeRunTransitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// WorkflowNodeRun is the record of one node inside one execution.
type WorkflowNodeRun struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"`
	WorkflowID  string         `json:"workflow_id"`
	NodeID      string         `json:"node_id"`
	Status      NodeRunStatus  `json:"status"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
	Input       map[string]any `json:"input,omitempty"`
	Output      map[string]any `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Transition moves the run to next, stamping start and finish times.
func (r *WorkflowNodeRun) Transition(next NodeRunStatus, at time.Time) error {
	if !r.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: node run %s %s -> %s", ErrInvalidTransition, r.ID, r.Status, next)
	}

	r.Status = next

	if next == NodeRunStatusRunning {
		r.StartedAt = &at
	}

	if next.IsTerminal() {
		r.FinishedAt = &at
	}

	return nil
}
