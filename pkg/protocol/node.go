// Package protocol defines the contracts between the engine and node types.
package protocol

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/template"
)

// Node is a configured, stateless node handler.
type Node interface {
	// ID returns the workflow node id this instance was created for
	ID() string

	// Type returns the registry key of the node type
	Type() string

	// Execute runs the node once against the execution context
	Execute(ctx context.Context, nctx NodeContext, input map[string]any) (Result, error)

	// Validate checks a configuration for this node type
	Validate(config map[string]any) error
}

// NodeFactory creates node instances and provides metadata about the node type.
type NodeFactory interface {
	// Create creates a new node instance with the given configuration
	Create(ctx context.Context, id string, config map[string]any) (Node, error)

	// ID returns the unique identifier for this node type
	ID() string

	// Name returns the human-readable name for this node type
	Name() string

	// Description returns a description of what this node does
	Description() string

	// Schema returns the JSON schema for configuring this node
	Schema() map[string]any
}

// Result is what a node hands back to the engine.
type Result struct {
	// Output is recorded on the node run and exposed as nodes.<id>.output
	Output map[string]any

	// NextEdgeLabel selects outgoing edges by label or source handle.
	// Empty means follow every outgoing edge.
	NextEdgeLabel string

	// BranchEnded stops traversal after this node even though it succeeded.
	BranchEnded bool

	// Delay asks the engine to resume this node after the given duration
	// instead of completing it now.
	Delay time.Duration
}

// NodeContext gives a running node access to its execution.
type NodeContext interface {
	ExecutionID() string
	WorkflowID() string
	NodeID() string
	RunID() string

	// State returns a copy of the current execution state
	State() map[string]any

	// Nodes returns the recorded input and output of finished nodes
	Nodes() map[string]models.NodeIO

	// Template returns the rendering context with scope added
	Template(scope map[string]any) template.Context

	// Render renders tpl, returning tpl unchanged when rendering fails
	Render(tpl string, scope map[string]any) string

	// Log records a message attached to the current node run
	Log(ctx context.Context, level slog.Level, msg string, data map[string]any)

	// SaveState merges patch into the execution state
	SaveState(ctx context.Context, patch map[string]any) error

	// ReplaceState replaces the execution state with state
	ReplaceState(ctx context.Context, state map[string]any) error

	// Resumed reports whether this run is continuing after a delay
	Resumed() bool
}
