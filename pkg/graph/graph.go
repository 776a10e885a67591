// Package graph provides pure traversal and validation helpers over workflow
// nodes and edges.
package graph

import (
	"errors"
	"fmt"

	dgraph "github.com/dominikbraun/graph"
	"github.com/dukex/flowrun/pkg/models"
)

// ErrCycle is returned when a graph that must be acyclic contains a cycle.
var ErrCycle = errors.New("workflow graph contains a cycle")

// BuildAdjacency groups outgoing edges by source node. Every node has an entry.
func BuildAdjacency(nodes []models.WorkflowNode, edges []models.WorkflowEdge) map[string][]models.WorkflowEdge {
	adjacency := make(map[string][]models.WorkflowEdge, len(nodes))

	for _, node := range nodes {
		adjacency[node.ID] = []models.WorkflowEdge{}
	}

	for _, edge := range edges {
		adjacency[edge.SourceNodeID] = append(adjacency[edge.SourceNodeID], edge)
	}

	return adjacency
}

// StartNodes returns the trigger nodes of a graph.
func StartNodes(nodes []models.WorkflowNode) []models.WorkflowNode {
	var starts []models.WorkflowNode

	for _, node := range nodes {
		if node.IsTrigger() {
			starts = append(starts, node)
		}
	}

	return starts
}

// NextNodes returns the targets of the outgoing edges of currentNodeID. A
// non-empty selector keeps only edges whose label or source handle equals it.
func NextNodes(nodes []models.WorkflowNode, edges []models.WorkflowEdge, currentNodeID, selector string) []models.WorkflowNode {
	return targets(nodes, edges, currentNodeID, func(edge models.WorkflowEdge) bool {
		return selector == "" || edge.Matches(selector)
	})
}

// UnselectedNodes returns the targets of outgoing edges that a selector did not
// choose. Targets also reachable through a selected edge are excluded.
func UnselectedNodes(nodes []models.WorkflowNode, edges []models.WorkflowEdge, currentNodeID, selector string, branchEnded bool) []models.WorkflowNode {
	if selector == "" && !branchEnded {
		return nil
	}

	selected := make(map[string]struct{})

	if !branchEnded {
		for _, node := range NextNodes(nodes, edges, currentNodeID, selector) {
			selected[node.ID] = struct{}{}
		}
	}

	return targets(nodes, edges, currentNodeID, func(edge models.WorkflowEdge) bool {
		_, ok := selected[edge.TargetNodeID]

		return !ok
	})
}

// Predecessors returns the distinct sources of the edges entering nodeID, in
// edge order.
func Predecessors(edges []models.WorkflowEdge, nodeID string) []string {
	seen := make(map[string]struct{})

	var sources []string

	for _, edge := range edges {
		if edge.TargetNodeID != nodeID {
			continue
		}

		if _, dup := seen[edge.SourceNodeID]; dup {
			continue
		}

		seen[edge.SourceNodeID] = struct{}{}
		sources = append(sources, edge.SourceNodeID)
	}

	return sources
}

func targets(nodes []models.WorkflowNode, edges []models.WorkflowEdge, source string, keep func(models.WorkflowEdge) bool) []models.WorkflowNode {
	index := indexNodes(nodes)
	seen := make(map[string]struct{})

	var result []models.WorkflowNode

	for _, edge := range edges {
		if edge.SourceNodeID != source || !keep(edge) {
			continue
		}

		node, ok := index[edge.TargetNodeID]
		if !ok {
			continue
		}

		if _, dup := seen[node.ID]; dup {
			continue
		}

		seen[node.ID] = struct{}{}
		result = append(result, node)
	}

	return result
}

// IsValidDAG reports whether the graph has no cycle, using a depth-first search
// that tracks the nodes currently on the recursion stack.
func IsValidDAG(nodes []models.WorkflowNode, edges []models.WorkflowEdge) bool {
	adjacency := BuildAdjacency(nodes, edges)
	visited := make(map[string]bool, len(nodes))
	onStack := make(map[string]bool, len(nodes))

	var visit func(id string) bool

	visit = func(id string) bool {
		visited[id] = true
		onStack[id] = true

		for _, edge := range adjacency[id] {
			next := edge.TargetNodeID
			if onStack[next] {
				return false
			}

			if !visited[next] && !visit(next) {
				return false
			}
		}

		onStack[id] = false

		return true
	}

	for id := range adjacency {
		if !visited[id] && !visit(id) {
			return false
		}
	}

	return true
}

// TopologicalSort orders nodes so that every edge source precedes its target.
// Ties are broken by node id so the order is stable. Edges with a missing
// endpoint are ignored.
func TopologicalSort(nodes []models.WorkflowNode, edges []models.WorkflowEdge) ([]models.WorkflowNode, error) {
	g := dgraph.New(dgraph.StringHash, dgraph.Directed())

	for _, node := range nodes {
		if err := g.AddVertex(node.ID); err != nil && !errors.Is(err, dgraph.ErrVertexAlreadyExists) {
			return nil, fmt.Errorf("failed to add node %s: %w", node.ID, err)
		}
	}

	for _, edge := range FilterDanglingEdges(nodes, edges) {
		err := g.AddEdge(edge.SourceNodeID, edge.TargetNodeID)
		if err != nil && !errors.Is(err, dgraph.ErrEdgeAlreadyExists) {
			return nil, fmt.Errorf("failed to add edge %s: %w", edge.ID, err)
		}
	}

	order, err := dgraph.StableTopologicalSort(g, func(a, b string) bool { return a < b })
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCycle, err)
	}

	index := indexNodes(nodes)
	sorted := make([]models.WorkflowNode, 0, len(order))

	for _, id := range order {
		sorted = append(sorted, index[id])
	}

	return sorted, nil
}

// DanglingEdges returns edges whose source or target is not one of nodes.
func DanglingEdges(nodes []models.WorkflowNode, edges []models.WorkflowEdge) []models.WorkflowEdge {
	index := indexNodes(nodes)

	var dangling []models.WorkflowEdge

	for _, edge := range edges {
		_, hasSource := index[edge.SourceNodeID]
		_, hasTarget := index[edge.TargetNodeID]

		if !hasSource || !hasTarget {
			dangling = append(dangling, edge)
		}
	}

	return dangling
}

// FilterDanglingEdges returns only the edges whose endpoints both exist.
func FilterDanglingEdges(nodes []models.WorkflowNode, edges []models.WorkflowEdge) []models.WorkflowEdge {
	index := indexNodes(nodes)
	kept := make([]models.WorkflowEdge, 0, len(edges))

	for _, edge := range edges {
		_, hasSource := index[edge.SourceNodeID]
		_, hasTarget := index[edge.TargetNodeID]

		if hasSource && hasTarget {
			kept = append(kept, edge)
		}
	}

	return kept
}

func indexNodes(nodes []models.WorkflowNode) map[string]models.WorkflowNode {
	index := make(map[string]models.WorkflowNode, len(nodes))
	for _, node := range nodes {
		index[node.ID] = node
	}

	return index
}
