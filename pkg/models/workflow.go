// Package models defines the core domain models for DAG workflow execution.
package models

import (
	"strings"
	"time"
)

// Workflow is a persisted automation graph made of nodes and edges.
type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"        validate:"required,min=3"`
	Description string         `json:"description"`
	OwnerID     string         `json:"owner_id"`
	IsActive    bool           `json:"is_active"`
	Version     int            `json:"version"`
	Nodes       []WorkflowNode `json:"nodes"       validate:"dive"`
	Edges       []WorkflowEdge `json:"edges"       validate:"dive"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NodeByID returns the node with the given id.
func (w *Workflow) NodeByID(id string) (WorkflowNode, bool) {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node, true
		}
	}

	return WorkflowNode{}, false
}

// NodesOfType returns every node of the given type, in declaration order.
func (w *Workflow) NodesOfType(nodeType string) []WorkflowNode {
	var nodes []WorkflowNode

	for _, node := range w.Nodes {
		if node.Type == nodeType {
			nodes = append(nodes, node)
		}
	}

	return nodes
}

// WorkflowNode is a node instance inside a workflow. Ids are supplied by the caller.
type WorkflowNode struct {
	ID         string         `json:"id"          yaml:"id"          validate:"required"`
	WorkflowID string         `json:"workflow_id" yaml:"-"`
	Type       string         `json:"type"        yaml:"type"        validate:"required"`
	Label      string         `json:"label"       yaml:"label"`
	PositionX  float64        `json:"position_x"  yaml:"position_x"`
	PositionY  float64        `json:"position_y"  yaml:"position_y"`
	Config     map[string]any `json:"config"      yaml:"config"`
}

// IsTrigger reports whether the node starts an execution.
func (n WorkflowNode) IsTrigger() bool {
	return strings.HasSuffix(n.Type, TriggerSuffix)
}

// WorkflowEdge connects a source node to a target node. Label or SourceHandle
// discriminate between outgoing edges of branching nodes.
type WorkflowEdge struct {
	ID           string `json:"id"                      yaml:"id"            validate:"required"`
	WorkflowID   string `json:"workflow_id"             yaml:"-"`
	SourceNodeID string `json:"source_node_id"          yaml:"source"        validate:"required"`
	TargetNodeID string `json:"target_node_id"          yaml:"target"        validate:"required"`
	SourceHandle string `json:"source_handle,omitempty" yaml:"source_handle"`
	TargetHandle string `json:"target_handle,omitempty" yaml:"target_handle"`
	Label        string `json:"label,omitempty"         yaml:"label"`
	Condition    string `json:"condition,omitempty"     yaml:"condition"`
}

// Matches reports whether the edge is selected by the given label or handle.
func (e WorkflowEdge) Matches(selector string) bool {
	return e.Label == selector || e.SourceHandle == selector
}
