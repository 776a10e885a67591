package engine

import (
	"context"
	"log/slog"
	"maps"
	"sync"

	"github.com/dukex/flowrun/pkg/events"
	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/template"
)

// nodeContext is the protocol.NodeContext handed to a running node.
type nodeContext struct {
	engine      *Engine
	executionID string
	workflowID  string
	nodeID      string
	runID       string
	resumed     bool
	logger      *slog.Logger

	mu    sync.Mutex
	state map[string]any
	nodes map[string]models.NodeIO
}

var _ protocol.NodeContext = (*nodeContext)(nil)

func (c *nodeContext) ExecutionID() string { return c.executionID }
func (c *nodeContext) WorkflowID() string  { return c.workflowID }
func (c *nodeContext) NodeID() string      { return c.nodeID }
func (c *nodeContext) RunID() string       { return c.runID }
func (c *nodeContext) Resumed() bool       { return c.resumed }

func (c *nodeContext) State() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	return maps.Clone(c.state)
}

func (c *nodeContext) Nodes() map[string]models.NodeIO {
	return c.nodes
}

func (c *nodeContext) Template(scope map[string]any) template.Context {
	return template.Context{State: c.State(), Nodes: c.nodes}.With(scope)
}

func (c *nodeContext) Render(tpl string, scope map[string]any) string {
	return template.RenderOrOriginal(tpl, c.Template(scope))
}

func (c *nodeContext) Log(ctx context.Context, level slog.Level, msg string, data map[string]any) {
	c.logger.Log(ctx, level, msg, "data", data)

	event := &events.NodeRunLog{
		BaseEvent: events.NewBaseEvent(events.NodeRunLogEvent, c.executionID, c.workflowID),
		NodeRunID: c.runID,
		NodeID:    c.nodeID,
		Level:     level.String(),
		Message:   msg,
		Data:      data,
	}

	c.engine.publish(ctx, event)
}

func (c *nodeContext) SaveState(ctx context.Context, patch map[string]any) error {
	return c.writeState(ctx, func(current map[string]any) map[string]any {
		next := maps.Clone(current)
		if next == nil {
			next = make(map[string]any, len(patch))
		}

		maps.Copy(next, patch)

		return next
	})
}

func (c *nodeContext) ReplaceState(ctx context.Context, state map[string]any) error {
	return c.writeState(ctx, func(map[string]any) map[string]any {
		return maps.Clone(state)
	})
}

// writeState serializes state writes of one execution inside this process and
// relies on the execution version for writes racing from other processes.
func (c *nodeContext) writeState(ctx context.Context, apply func(map[string]any) map[string]any) error {
	unlock := c.engine.stateLocks.Lock(c.executionID)
	defer unlock()

	execution, err := c.engine.executions.Mutate(ctx, c.executionID, func(current *models.WorkflowExecution) error {
		current.StateOut = apply(current.StateOut)

		return nil
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.state = maps.Clone(execution.StateOut)
	c.mu.Unlock()

	c.engine.publish(ctx, events.NewExecutionStateUpdated(execution))

	return nil
}
