// Package events defines the status messages published while executions run.
package events

import (
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every execution event.
const Topic = "flowrun.events"

const (
	EventMetadataKey       = "key"
	EventTypeMetadataKey   = "event_type"
	ExecutionIDMetadataKey = "executionId"
)

const (
	NodeRunUpdatedEvent        EventType = "node_run.updated"
	NodeRunLogEvent            EventType = "node_run.log"
	ExecutionStateUpdatedEvent EventType = "execution.state.updated"
	ExecutionCompletedEvent    EventType = "execution.completed"
)

// Event is implemented by every message sent through the event bus.
type Event interface {
	GetType() EventType
	GetExecutionID() string
}

type BaseEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	ExecutionID string    `json:"executionId"`
	WorkflowID  string    `json:"workflowId"`
}

func NewBaseEvent(eventType EventType, executionID, workflowID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		ExecutionID: executionID,
		WorkflowID:  workflowID,
	}
}

func (b BaseEvent) GetExecutionID() string {
	return b.ExecutionID
}

// NodeRunUpdated reports a node run status change.
type NodeRunUpdated struct {
	BaseEvent

	NodeRunID  string               `json:"nodeRunId"`
	NodeID     string               `json:"nodeId"`
	Status     models.NodeRunStatus `json:"status"`
	StartedAt  *time.Time           `json:"startedAt,omitempty"`
	FinishedAt *time.Time           `json:"finishedAt,omitempty"`
	Output     map[string]any       `json:"output,omitempty"`
	Error      string               `json:"error,omitempty"`
}

func (NodeRunUpdated) GetType() EventType {
	return NodeRunUpdatedEvent
}

// NewNodeRunUpdated builds the event from the current state of run.
func NewNodeRunUpdated(run *models.WorkflowNodeRun) *NodeRunUpdated {
	return &NodeRunUpdated{
		BaseEvent:  NewBaseEvent(NodeRunUpdatedEvent, run.ExecutionID, run.WorkflowID),
		NodeRunID:  run.ID,
		NodeID:     run.NodeID,
		Status:     run.Status,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Output:     run.Output,
		Error:      run.Error,
	}
}

// NodeRunLog is a message logged by a node while it runs.
type NodeRunLog struct {
	BaseEvent

	NodeRunID string         `json:"nodeRunId"`
	NodeID    string         `json:"nodeId"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

func (NodeRunLog) GetType() EventType {
	return NodeRunLogEvent
}

// ExecutionStateUpdated carries the full state after a write.
type ExecutionStateUpdated struct {
	BaseEvent

	State   map[string]any `json:"state"`
	Version int            `json:"version"`
}

func (ExecutionStateUpdated) GetType() EventType {
	return ExecutionStateUpdatedEvent
}

// NewExecutionStateUpdated builds the event from the current state of execution.
func NewExecutionStateUpdated(execution *models.WorkflowExecution) *ExecutionStateUpdated {
	return &ExecutionStateUpdated{
		BaseEvent: NewBaseEvent(ExecutionStateUpdatedEvent, execution.ID, execution.WorkflowID),
		State:     execution.StateOut,
		Version:   execution.Version,
	}
}

// ExecutionCompleted is published once when an execution reaches a terminal status.
type ExecutionCompleted struct {
	BaseEvent

	Status     models.ExecutionStatus `json:"status"`
	Error      string                 `json:"error,omitempty"`
	FinishedAt *time.Time             `json:"finishedAt,omitempty"`
}

func (ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

// NewExecutionCompleted builds the event from a finished execution.
func NewExecutionCompleted(execution *models.WorkflowExecution) *ExecutionCompleted {
	return &ExecutionCompleted{
		BaseEvent:  NewBaseEvent(ExecutionCompletedEvent, execution.ID, execution.WorkflowID),
		Status:     execution.Status,
		Error:      execution.Error,
		FinishedAt: execution.FinishedAt,
	}
}

// New returns an empty event value for eventType, ready to be decoded into.
func New(eventType EventType) (Event, bool) {
	switch eventType {
	case NodeRunUpdatedEvent:
		return &NodeRunUpdated{}, true
	case NodeRunLogEvent:
		return &NodeRunLog{}, true
	case ExecutionStateUpdatedEvent:
		return &ExecutionStateUpdated{}, true
	case ExecutionCompletedEvent:
		return &ExecutionCompleted{}, true
	default:
		return nil, false
	}
}
