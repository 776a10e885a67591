// Package log provides the node that writes a rendered message to the node run log.
package log

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
)

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Node logs a message and passes its input through unchanged.
type Node struct {
	id      string
	message string
	level   string
}

// NewNode creates a new log node.
func NewNode(id string, config map[string]any) (*Node, error) {
	message, ok := config["message"].(string)
	if !ok {
		return nil, errors.New("missing required field 'message'")
	}

	level := "info"
	if lvl, ok := config["level"].(string); ok && lvl != "" {
		level = strings.ToLower(lvl)
	}

	if _, ok := logLevels[level]; !ok {
		return nil, fmt.Errorf("unknown log level '%s'", level)
	}

	return &Node{id: id, message: message, level: level}, nil
}

// ID returns the node ID.
func (n *Node) ID() string {
	return n.id
}

// Type returns the node type.
func (n *Node) Type() string {
	return models.NodeTypeLog
}

// Execute renders the message against the input and records it on the run.
func (n *Node) Execute(ctx context.Context, nctx protocol.NodeContext, input map[string]any) (protocol.Result, error) {
	message := nctx.Render(n.message, map[string]any{"input": input})

	nctx.Log(ctx, logLevels[n.level], message, map[string]any{"input": input})

	output := make(map[string]any, len(input)+1)
	for key, value := range input {
		output[key] = value
	}

	output["_log"] = map[string]any{"message": message, "level": n.level}

	return protocol.Result{Output: output}, nil
}

// Validate validates the node configuration.
func (n *Node) Validate(config map[string]any) error {
	_, err := NewNode(n.id, config)

	return err
}
