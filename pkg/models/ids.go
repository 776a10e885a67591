package models

import (
	"github.com/google/uuid"
	"go.jetify.com/typeid"
)

// NewWorkflowID returns a time ordered UUID for a workflow.
func NewWorkflowID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewNodeID returns a random UUID for a workflow node or edge.
func NewNodeID() string {
	return uuid.NewString()
}

// NewExecutionID returns a new type id for an execution.
func NewExecutionID() string {
	return newTypeID("exec")
}

// NewNodeRunID returns a new type id for a node run.
func NewNodeRunID() string {
	return newTypeID("run")
}

// NewTriggerID returns a new type id for a trigger.
func NewTriggerID() string {
	return newTypeID("trg")
}

func newTypeID(prefix string) string {
	id, err := typeid.WithPrefix(prefix)
	if err != nil {
		panic(err)
	}

	return id.String()
}
