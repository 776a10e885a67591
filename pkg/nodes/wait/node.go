// Package wait provides the node that pauses a branch for a duration.
package wait

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/template"
)

const (
	UnitSeconds = "seconds"
	UnitMinutes = "minutes"
	UnitHours   = "hours"
)

var units = map[string]time.Duration{
	UnitSeconds: time.Second,
	UnitMinutes: time.Minute,
	UnitHours:   time.Hour,
}

// Node resolves a duration and asks the engine to resume the branch after it.
// The worker slot is released while waiting.
type Node struct {
	id       string
	duration any
	unit     string
}

// NewNode creates a new wait node.
func NewNode(id string, config map[string]any) (*Node, error) {
	node := &Node{id: id, unit: UnitSeconds}
	if err := node.Validate(config); err != nil {
		return nil, err
	}

	node.duration = config["duration"]

	if unit, ok := config["unit"].(string); ok && unit != "" {
		node.unit = unit
	}

	return node, nil
}

// ID returns the node ID.
func (n *Node) ID() string {
	return n.id
}

// Type returns the node type.
func (n *Node) Type() string {
	return models.NodeTypeWait
}

// Execute returns the delay on the first run and completes when resumed.
func (n *Node) Execute(_ context.Context, nctx protocol.NodeContext, input map[string]any) (protocol.Result, error) {
	delay, err := n.resolve(nctx.Template(map[string]any{"input": input}))
	if err != nil {
		return protocol.Result{}, err
	}

	output := map[string]any{"waitedMs": delay.Milliseconds()}

	if nctx.Resumed() || delay == 0 {
		return protocol.Result{Output: output}, nil
	}

	return protocol.Result{Output: output, Delay: delay}, nil
}

func (n *Node) resolve(tctx template.Context) (time.Duration, error) {
	var amount float64

	switch v := n.duration.(type) {
	case float64:
		amount = v
	case int:
		amount = float64(v)
	case string:
		rendered := strings.TrimSpace(template.RenderOrOriginal(v, tctx))

		parsed, err := strconv.ParseFloat(rendered, 64)
		if err != nil {
			return 0, fmt.Errorf("duration '%s' is not a number", rendered)
		}

		amount = parsed
	default:
		return 0, errors.New("missing required field 'duration'")
	}

	if amount < 0 {
		return 0, fmt.Errorf("duration must not be negative, got %v", amount)
	}

	return time.Duration(amount * float64(units[n.unit])), nil
}

// Validate validates the node configuration.
func (n *Node) Validate(config map[string]any) error {
	switch config["duration"].(type) {
	case float64, int, string:
	default:
		return errors.New("missing required field 'duration'")
	}

	if unit, ok := config["unit"].(string); ok && unit != "" {
		if _, known := units[unit]; !known {
			return fmt.Errorf("invalid unit '%s'", unit)
		}
	}

	return nil
}
