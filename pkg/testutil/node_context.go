package testutil

import (
	"context"
	"log/slog"
	"maps"
	"sync"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/template"
)

// LogEntry is a message recorded by NodeContext.Log.
type LogEntry struct {
	Level   slog.Level
	Message string
	Data    map[string]any
}

// NodeContext is an in-memory protocol.NodeContext for node tests.
type NodeContext struct {
	mu sync.Mutex

	Execution string
	Workflow  string
	Node      string
	Run       string
	IsResumed bool

	state   map[string]any
	nodes   map[string]models.NodeIO
	Logs    []LogEntry
	Patches []map[string]any

	SaveErr error
}

// NewNodeContext creates a context holding a copy of state.
func NewNodeContext(state map[string]any) *NodeContext {
	if state == nil {
		state = map[string]any{}
	}

	return &NodeContext{
		Execution: "exec-test",
		Workflow:  "wf-test",
		Node:      "node-test",
		Run:       "run-test",
		state:     maps.Clone(state),
		nodes:     map[string]models.NodeIO{},
	}
}

// WithNodeOutput records the output of a finished node.
func (c *NodeContext) WithNodeOutput(nodeID string, output map[string]any) *NodeContext {
	c.nodes[nodeID] = models.NodeIO{Output: output}

	return c
}

func (c *NodeContext) ExecutionID() string { return c.Execution }
func (c *NodeContext) WorkflowID() string  { return c.Workflow }
func (c *NodeContext) NodeID() string      { return c.Node }
func (c *NodeContext) RunID() string       { return c.Run }
func (c *NodeContext) Resumed() bool       { return c.IsResumed }

func (c *NodeContext) State() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	return maps.Clone(c.state)
}

func (c *NodeContext) Nodes() map[string]models.NodeIO {
	return c.nodes
}

func (c *NodeContext) Template(scope map[string]any) template.Context {
	return template.Context{State: c.State(), Nodes: c.nodes}.With(scope)
}

func (c *NodeContext) Render(tpl string, scope map[string]any) string {
	return template.RenderOrOriginal(tpl, c.Template(scope))
}

func (c *NodeContext) Log(_ context.Context, level slog.Level, msg string, data map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Logs = append(c.Logs, LogEntry{Level: level, Message: msg, Data: data})
}

func (c *NodeContext) SaveState(_ context.Context, patch map[string]any) error {
	if c.SaveErr != nil {
		return c.SaveErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.Patches = append(c.Patches, patch)
	maps.Copy(c.state, patch)

	return nil
}

func (c *NodeContext) ReplaceState(_ context.Context, state map[string]any) error {
	if c.SaveErr != nil {
		return c.SaveErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.Patches = append(c.Patches, state)
	c.state = maps.Clone(state)

	return nil
}
