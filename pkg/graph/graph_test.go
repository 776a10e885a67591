package graph

import (
	"testing"

	"github.com/dukex/flowrun/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func node(id, nodeType string) models.WorkflowNode {
	return models.WorkflowNode{ID: id, Type: nodeType}
}

func edge(id, source, target, label string) models.WorkflowEdge {
	return models.WorkflowEdge{ID: id, SourceNodeID: source, TargetNodeID: target, Label: label}
}

func ids(nodes []models.WorkflowNode) []string {
	result := make([]string, 0, len(nodes))
	for _, n := range nodes {
		result = append(result, n.ID)
	}

	return result
}

func branchingGraph() ([]models.WorkflowNode, []models.WorkflowEdge) {
	nodes := []models.WorkflowNode{
		node("start", models.NodeTypeManualTrigger),
		node("check", models.NodeTypeCondition),
		node("yes", models.NodeTypeOutput),
		node("no", models.NodeTypeOutput),
	}
	edges := []models.WorkflowEdge{
		edge("e1", "start", "check", ""),
		edge("e2", "check", "yes", "true"),
		edge("e3", "check", "no", "false"),
	}

	return nodes, edges
}

func TestBuildAdjacency(t *testing.T) {
	t.Parallel()

	nodes, edges := branchingGraph()
	adjacency := BuildAdjacency(nodes, edges)

	require.Len(t, adjacency, 4)
	assert.Len(t, adjacency["start"], 1)
	assert.Len(t, adjacency["check"], 2)
	assert.NotNil(t, adjacency["yes"])
	assert.Empty(t, adjacency["yes"])
}

func TestStartNodes(t *testing.T) {
	t.Parallel()

	nodes := []models.WorkflowNode{
		node("a", models.NodeTypeManualTrigger),
		node("b", models.NodeTypeSet),
		node("c", models.NodeTypeCronTrigger),
		node("d", models.NodeTypeWebhookTrigger),
	}

	assert.Equal(t, []string{"a", "c", "d"}, ids(StartNodes(nodes)))
	assert.Empty(t, StartNodes([]models.WorkflowNode{node("x", models.NodeTypeMerge)}))
}

func TestNextNodes_SelectorResolution(t *testing.T) {
	t.Parallel()

	nodes, edges := branchingGraph()

	assert.Equal(t, []string{"yes"}, ids(NextNodes(nodes, edges, "check", "true")))
	assert.Equal(t, []string{"no"}, ids(NextNodes(nodes, edges, "check", "false")))
	assert.Empty(t, NextNodes(nodes, edges, "check", "maybe"))
}

func TestNextNodes_MatchesSourceHandle(t *testing.T) {
	t.Parallel()

	nodes := []models.WorkflowNode{node("s", models.NodeTypeSwitch), node("a", models.NodeTypeSet), node("b", models.NodeTypeSet)}
	edges := []models.WorkflowEdge{
		{ID: "1", SourceNodeID: "s", TargetNodeID: "a", SourceHandle: "case-a"},
		{ID: "2", SourceNodeID: "s", TargetNodeID: "b", SourceHandle: "case-b"},
	}

	assert.Equal(t, []string{"b"}, ids(NextNodes(nodes, edges, "s", "case-b")))
}

func TestNextNodes_FanOut(t *testing.T) {
	t.Parallel()

	nodes := []models.WorkflowNode{node("root", models.NodeTypeManualTrigger)}
	var edges []models.WorkflowEdge

	for _, id := range []string{"a", "b", "c", "d"} {
		nodes = append(nodes, node(id, models.NodeTypeSet))
		edges = append(edges, edge("e-"+id, "root", id, ""))
	}

	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(NextNodes(nodes, edges, "root", "")))
	assert.Empty(t, NextNodes(nodes, edges, "a", ""))
}

func TestNextNodes_IgnoresMissingTargetsAndDuplicates(t *testing.T) {
	t.Parallel()

	nodes := []models.WorkflowNode{node("a", models.NodeTypeManualTrigger), node("b", models.NodeTypeSet)}
	edges := []models.WorkflowEdge{
		edge("1", "a", "b", ""),
		edge("2", "a", "b", ""),
		edge("3", "a", "ghost", ""),
	}

	assert.Equal(t, []string{"b"}, ids(NextNodes(nodes, edges, "a", "")))
}

func TestUnselectedNodes(t *testing.T) {
	t.Parallel()

	nodes, edges := branchingGraph()

	assert.Equal(t, []string{"no"}, ids(UnselectedNodes(nodes, edges, "check", "true", false)))
	assert.Equal(t, []string{"yes", "no"}, ids(UnselectedNodes(nodes, edges, "check", "", true)))
	assert.Nil(t, UnselectedNodes(nodes, edges, "start", "", false))
}

func TestPredecessors(t *testing.T) {
	t.Parallel()

	edges := []models.WorkflowEdge{
		edge("e1", "check", "join", "false"),
		edge("e2", "slow", "join", ""),
		edge("e3", "check", "join", "other"),
		edge("e4", "check", "done", "true"),
	}

	assert.Equal(t, []string{"check", "slow"}, Predecessors(edges, "join"))
	assert.Equal(t, []string{"check"}, Predecessors(edges, "done"))
	assert.Empty(t, Predecessors(edges, "check"))
}

func TestIsValidDAG(t *testing.T) {
	t.Parallel()

	nodes, edges := branchingGraph()
	assert.True(t, IsValidDAG(nodes, edges))
	assert.True(t, IsValidDAG(nil, nil))

	tests := []struct {
		name  string
		edges []models.WorkflowEdge
	}{
		{"self loop", []models.WorkflowEdge{edge("1", "a", "a", "")}},
		{"two node cycle", []models.WorkflowEdge{edge("1", "a", "b", ""), edge("2", "b", "a", "")}},
		{"long cycle", []models.WorkflowEdge{
			edge("1", "a", "b", ""), edge("2", "b", "c", ""), edge("3", "c", "d", ""), edge("4", "d", "b", ""),
		}},
	}

	cycleNodes := []models.WorkflowNode{node("a", "x"), node("b", "x"), node("c", "x"), node("d", "x")}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.False(t, IsValidDAG(cycleNodes, tt.edges))
		})
	}
}

func TestIsValidDAG_DiamondIsAcyclic(t *testing.T) {
	t.Parallel()

	nodes := []models.WorkflowNode{node("a", "x"), node("b", "x"), node("c", "x"), node("d", "x")}
	edges := []models.WorkflowEdge{
		edge("1", "a", "b", ""), edge("2", "a", "c", ""), edge("3", "b", "d", ""), edge("4", "c", "d", ""),
	}

	assert.True(t, IsValidDAG(nodes, edges))
}

func TestTopologicalSort(t *testing.T) {
	t.Parallel()

	nodes := []models.WorkflowNode{
		node("merge", models.NodeTypeMerge),
		node("left", models.NodeTypeSet),
		node("start", models.NodeTypeManualTrigger),
		node("right", models.NodeTypeSet),
		node("out", models.NodeTypeOutput),
		node("lonely", models.NodeTypeSet),
	}
	edges := []models.WorkflowEdge{
		edge("1", "start", "left", ""),
		edge("2", "start", "right", ""),
		edge("3", "left", "merge", ""),
		edge("4", "right", "merge", ""),
		edge("5", "merge", "out", ""),
	}

	sorted, err := TopologicalSort(nodes, edges)
	require.NoError(t, err)
	require.Len(t, sorted, len(nodes))

	position := make(map[string]int)
	for i, n := range sorted {
		position[n.ID] = i
	}

	for _, e := range edges {
		assert.Less(t, position[e.SourceNodeID], position[e.TargetNodeID], "edge %s", e.ID)
	}
}

func TestTopologicalSort_Cycle(t *testing.T) {
	t.Parallel()

	nodes := []models.WorkflowNode{node("a", "x"), node("b", "x")}
	edges := []models.WorkflowEdge{edge("1", "a", "b", ""), edge("2", "b", "a", "")}

	_, err := TopologicalSort(nodes, edges)
	require.ErrorIs(t, err, ErrCycle)
}

func TestDanglingEdges(t *testing.T) {
	t.Parallel()

	nodes := []models.WorkflowNode{node("a", "x"), node("c", "x")}
	edges := []models.WorkflowEdge{
		edge("keep", "a", "c", ""),
		edge("bad-target", "a", "b", ""),
		edge("bad-source", "b", "c", ""),
	}

	dangling := DanglingEdges(nodes, edges)
	require.Len(t, dangling, 2)
	assert.Equal(t, "bad-target", dangling[0].ID)

	kept := FilterDanglingEdges(nodes, edges)
	require.Len(t, kept, 1)
	assert.Equal(t, "keep", kept[0].ID)
}
