// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/dukex/flowrun/pkg/models"
	"github.com/google/uuid"
)

// CreateTestNode creates a test WorkflowNode with default values that can be overridden.
func CreateTestNode(overrides ...func(*models.WorkflowNode)) models.WorkflowNode {
	node := models.WorkflowNode{
		ID:        uuid.New().String(),
		Type:      models.NodeTypeSet,
		Label:     "Test Node",
		Config:    map[string]any{"values": map[string]any{"greeting": "hello"}},
		PositionX: 100,
		PositionY: 200,
	}

	for _, override := range overrides {
		override(&node)
	}

	return node
}

// WithID sets the node id.
func WithID(id string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.ID = id
	}
}

// WithType sets the node type.
func WithType(nodeType string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Type = nodeType
	}
}

// WithManualTrigger configures the node as a manual trigger node.
func WithManualTrigger() func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Type = models.NodeTypeManualTrigger
		n.Label = "Start"
		n.Config = map[string]any{}
	}
}

// WithWebhookTrigger configures the node as a webhook trigger node.
func WithWebhookTrigger(config map[string]any) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Type = models.NodeTypeWebhookTrigger
		n.Label = "Webhook"
		n.Config = config
	}
}

// WithConfig sets the node configuration.
func WithConfig(config map[string]any) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Config = config
	}
}

// WithLabel sets the node label.
func WithLabel(label string) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.Label = label
	}
}

// WithPosition sets the node position.
func WithPosition(x, y float64) func(*models.WorkflowNode) {
	return func(n *models.WorkflowNode) {
		n.PositionX = x
		n.PositionY = y
	}
}

// CreateTestEdge creates an edge between two nodes.
func CreateTestEdge(source, target string, overrides ...func(*models.WorkflowEdge)) models.WorkflowEdge {
	edge := models.WorkflowEdge{
		ID:           source + "->" + target,
		SourceNodeID: source,
		TargetNodeID: target,
	}

	for _, override := range overrides {
		override(&edge)
	}

	return edge
}

// WithEdgeLabel sets the edge label used for branch selection.
func WithEdgeLabel(label string) func(*models.WorkflowEdge) {
	return func(e *models.WorkflowEdge) {
		e.Label = label
	}
}

// WithSourceHandle sets the edge source handle.
func WithSourceHandle(handle string) func(*models.WorkflowEdge) {
	return func(e *models.WorkflowEdge) {
		e.SourceHandle = handle
	}
}

// CreateTestWorkflow creates an active workflow holding the given nodes and edges.
func CreateTestWorkflow(nodes []models.WorkflowNode, edges []models.WorkflowEdge, overrides ...func(*models.Workflow)) *models.Workflow {
	workflow := &models.Workflow{
		ID:          uuid.New().String(),
		Name:        "Test Workflow",
		Description: "workflow used in tests",
		OwnerID:     "user-1",
		IsActive:    true,
		Version:     1,
		Nodes:       nodes,
		Edges:       edges,
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// WithInactive marks the workflow inactive.
func WithInactive() func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.IsActive = false
	}
}
