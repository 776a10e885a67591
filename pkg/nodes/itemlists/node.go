// Package itemlists provides the node that limits or sorts a list held in the state.
package itemlists

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/template"
)

const (
	OperationLimit = "limit"
	OperationSort  = "sort"

	OrderAsc  = "asc"
	OrderDesc = "desc"

	// ItemsKey receives the result when the list lives under a nested path.
	ItemsKey = "items"
)

// Config defines the configuration for item list nodes.
type Config struct {
	Path      string
	Operation string
	Limit     int
	SortBy    string
	Order     string
}

// Node reads a list at a dotted state path, limits or sorts it, and writes the
// result back.
type Node struct {
	id     string
	config Config
}

// NewNode creates a new item lists node.
func NewNode(id string, config map[string]any) (*Node, error) {
	parsed, err := parseConfig(config)
	if err != nil {
		return nil, err
	}

	return &Node{id: id, config: parsed}, nil
}

func parseConfig(config map[string]any) (Config, error) {
	parsed := Config{Order: OrderAsc}

	path, ok := config["path"].(string)
	if !ok || path == "" {
		return parsed, errors.New("missing required field 'path'")
	}

	parsed.Path = path

	operation, _ := config["operation"].(string)

	switch operation {
	case OperationLimit:
		limit, ok := toInt(config["limit"])
		if !ok || limit < 0 {
			return parsed, errors.New("field 'limit' must be a non-negative integer")
		}

		parsed.Limit = limit
	case OperationSort:
		sortBy, ok := config["sortBy"].(string)
		if !ok || sortBy == "" {
			return parsed, errors.New("missing required field 'sortBy'")
		}

		parsed.SortBy = sortBy

		if order, ok := config["order"].(string); ok && order != "" {
			if order != OrderAsc && order != OrderDesc {
				return parsed, fmt.Errorf("invalid order '%s'", order)
			}

			parsed.Order = order
		}
	default:
		return parsed, fmt.Errorf("invalid operation '%s', expected '%s' or '%s'", operation, OperationLimit, OperationSort)
	}

	parsed.Operation = operation

	return parsed, nil
}

func toInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), v == float64(int(v))
	default:
		return 0, false
	}
}

// ID returns the node ID.
func (n *Node) ID() string {
	return n.id
}

// Type returns the node type.
func (n *Node) Type() string {
	return models.NodeTypeItemLists
}

// Execute applies the operation and saves the result.
func (n *Node) Execute(ctx context.Context, nctx protocol.NodeContext, _ map[string]any) (protocol.Result, error) {
	value, _ := template.Lookup(nctx.State(), n.config.Path)

	items, ok := value.([]any)
	if !ok {
		return protocol.Result{}, fmt.Errorf("path '%s' does not reference a list", n.config.Path)
	}

	result := make([]any, len(items))
	copy(result, items)

	switch n.config.Operation {
	case OperationLimit:
		if n.config.Limit < len(result) {
			result = result[:n.config.Limit]
		}
	case OperationSort:
		sortItems(result, n.config.SortBy, n.config.Order == OrderDesc)
	}

	key := ItemsKey
	if !strings.Contains(n.config.Path, ".") {
		key = n.config.Path
	}

	patch := map[string]any{key: result}
	if err := nctx.SaveState(ctx, patch); err != nil {
		return protocol.Result{}, fmt.Errorf("failed to save state: %w", err)
	}

	return protocol.Result{Output: patch}, nil
}

// sortItems orders items by the named property. Items missing the property
// always sort last.
func sortItems(items []any, property string, desc bool) {
	sort.SliceStable(items, func(i, j int) bool {
		a, aok := propertyOf(items[i], property)
		b, bok := propertyOf(items[j], property)

		if !aok || !bok {
			return aok && !bok
		}

		if desc {
			return less(b, a)
		}

		return less(a, b)
	})
}

func propertyOf(item any, property string) (any, bool) {
	value, ok := template.Lookup(item, property)

	return value, ok && value != nil
}

func less(a, b any) bool {
	x, xNum := a.(float64)
	y, yNum := b.(float64)

	switch {
	case xNum && yNum:
		return x < y
	case xNum != yNum:
		return xNum
	default:
		return fmt.Sprint(a) < fmt.Sprint(b)
	}
}

// Validate validates the node configuration.
func (n *Node) Validate(config map[string]any) error {
	_, err := parseConfig(config)

	return err
}
