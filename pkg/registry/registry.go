// Package registry maps node types to the factories that build them.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

// ErrUnknownNodeType is returned for node types that were never registered.
var ErrUnknownNodeType = errors.New("unknown node type")

// NodeType describes a registered node type.
type NodeType struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema"`
}

type Registry struct {
	logger    *slog.Logger
	mu        sync.RWMutex
	factories map[string]protocol.NodeFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:    log.With("module", "registry"),
		factories: make(map[string]protocol.NodeFactory),
	}
}

// Register adds factory under its ID, replacing any previous one.
func (r *Registry) Register(factory protocol.NodeFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[factory.ID()] = factory
	r.logger.Debug("registered node type", "type", factory.ID())
}

// Get returns the factory for nodeType.
func (r *Registry) Get(nodeType string) (protocol.NodeFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[nodeType]

	return factory, ok
}

// CreateNode builds a node of the given type.
func (r *Registry) CreateNode(ctx context.Context, nodeType, id string, config map[string]any) (protocol.Node, error) {
	factory, ok := r.Get(nodeType)
	if !ok {
		return nil, fmt.Errorf("%w '%s'", ErrUnknownNodeType, nodeType)
	}

	if config == nil {
		config = map[string]any{}
	}

	node, err := factory.Create(ctx, id, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s node '%s': %w", nodeType, id, err)
	}

	return node, nil
}

// ValidateConfig checks config against the type's JSON schema and then against
// the node's own validation.
func (r *Registry) ValidateConfig(nodeType string, config map[string]any) error {
	factory, ok := r.Get(nodeType)
	if !ok {
		return fmt.Errorf("%w '%s'", ErrUnknownNodeType, nodeType)
	}

	if config == nil {
		config = map[string]any{}
	}

	if err := validateSchema(factory.Schema(), config); err != nil {
		return err
	}

	node, err := factory.Create(context.Background(), "", config)
	if err != nil {
		return err
	}

	return node.Validate(config)
}

// List returns every registered node type sorted by type.
func (r *Registry) List() []NodeType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]NodeType, 0, len(r.factories))
	for _, factory := range r.factories {
		types = append(types, NodeType{
			Type:        factory.ID(),
			Name:        factory.Name(),
			Description: factory.Description(),
			Schema:      factory.Schema(),
		})
	}

	sort.Slice(types, func(i, j int) bool {
		return types[i].Type < types[j].Type
	})

	return types
}

func validateSchema(schema map[string]any, config map[string]any) error {
	if len(schema) == 0 {
		return nil
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(config),
	)
	if err != nil {
		return fmt.Errorf("failed to validate config: %w", err)
	}

	if result.Valid() {
		return nil
	}

	messages := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		messages = append(messages, desc.String())
	}

	return fmt.Errorf("invalid config: %s", strings.Join(messages, "; "))
}
