// Package queue defines the job queue that drives workflow and node execution.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"go.jetify.com/typeid"
)

// Family groups jobs consumed by the same worker pool.
type Family string

const (
	FamilyWorkflow Family = "workflow"
	FamilyNode     Family = "node"
)

// Job names outside the node types.
const (
	JobNameWorkflow = "workflow"
	JobNameCron     = "cron"
)

// ErrClosed is returned by operations on a closed queue.
var ErrClosed = errors.New("queue closed")

// Job is a unit of work. Node jobs are named after the node type they run.
type Job struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Family     Family          `json:"family"`
	Payload    json.RawMessage `json:"payload"`
	Attempt    int             `json:"attempt"`
	LastError  string          `json:"last_error,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Decode unmarshals the job payload into v.
func (j *Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s job %s: %w", j.Name, j.ID, err)
	}

	return nil
}

// Clone returns a copy of the job with a fresh id and no attempts.
func (j *Job) Clone() *Job {
	return &Job{
		ID:      NewJobID(),
		Name:    j.Name,
		Family:  j.Family,
		Payload: append(json.RawMessage(nil), j.Payload...),
	}
}

// WorkflowJob starts an execution of a workflow.
type WorkflowJob struct {
	WorkflowID  string             `json:"workflowId"`
	ExecutionID string             `json:"executionId,omitempty"`
	StateIn     map[string]any     `json:"stateIn,omitempty"`
	TriggerType models.TriggerType `json:"triggerType,omitempty"`
}

// NodeJob runs one node of an execution.
type NodeJob struct {
	ExecutionID string `json:"executionId"`
	WorkflowID  string `json:"workflowId"`
	NodeID      string `json:"nodeId"`
	Resumed     bool   `json:"resumed,omitempty"`
}

// NewWorkflowJob builds a job for the workflow pool.
func NewWorkflowJob(payload WorkflowJob) (*Job, error) {
	return newJob(JobNameWorkflow, FamilyWorkflow, payload)
}

// NewCronJob builds the job a cron schedule enqueues on every tick.
func NewCronJob(payload WorkflowJob) (*Job, error) {
	payload.TriggerType = models.TriggerTypeCron

	return newJob(JobNameCron, FamilyWorkflow, payload)
}

// NewNodeJob builds a job for the node pool named after nodeType.
func NewNodeJob(nodeType string, payload NodeJob) (*Job, error) {
	return newJob(nodeType, FamilyNode, payload)
}

func newJob(name string, family Family, payload any) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s job: %w", name, err)
	}

	return &Job{ID: NewJobID(), Name: name, Family: family, Payload: data}, nil
}

// NewJobID returns a new type id for a job.
func NewJobID() string {
	id, err := typeid.WithPrefix("job")
	if err != nil {
		panic(err)
	}

	return id.String()
}

// Handler processes a job. A returned error schedules a retry.
type Handler func(ctx context.Context, job *Job) error

// Repeatable is a job enqueued on a cron schedule.
type Repeatable struct {
	Key      string    `json:"key"`
	Cron     string    `json:"cron"`
	Timezone string    `json:"timezone"`
	Job      *Job      `json:"job"`
	NextRun  time.Time `json:"next_run"`
}

// Stats counts jobs by state.
type Stats struct {
	Pending int `json:"pending"`
	Running int `json:"running"`
	Delayed int `json:"delayed"`
	Dead    int `json:"dead"`
}

type Queue interface {
	// Add enqueues job for immediate processing.
	Add(ctx context.Context, job *Job) error

	// AddDelayed enqueues job once delay has elapsed.
	AddDelayed(ctx context.Context, job *Job, delay time.Duration) error

	// UpsertRepeatable registers job under key, replacing any schedule with the same key.
	UpsertRepeatable(ctx context.Context, key string, schedule Schedule, job *Job) error

	// RemoveRepeatable drops the schedule registered under key. Unknown keys are ignored.
	RemoveRepeatable(ctx context.Context, key string) error

	// ListRepeatable returns every registered schedule sorted by key.
	ListRepeatable(ctx context.Context) ([]Repeatable, error)

	// Consume runs concurrency workers for family until ctx is done.
	Consume(ctx context.Context, family Family, concurrency int, handler Handler) error

	// Stats returns job counts.
	Stats(ctx context.Context) (Stats, error)

	Close() error
}
