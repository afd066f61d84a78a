package maapipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flowSnapshot(t *testing.T, pipeline string) *Snapshot {
	t.Helper()
	i, _ := newTestInterface(t, map[string]string{
		ws("interface.json"):                 singleResource,
		ws("resource", "pipeline", "a.json"): pipeline,
	})
	return i.Snapshot()
}

func depthsOf(g *FlowGraph) map[string]int {
	out := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		out[n.Name] = n.Depth
	}
	return out
}

// =============================================================================
// TransitiveSuccessors
// =============================================================================

func TestTransitiveSuccessors_Depth1MatchesDirectSuccessors(t *testing.T) {
	t.Parallel()
	s := flowSnapshot(t, `{"A": {"next": ["B", "C"]}, "B": {"next": "D"}, "C": {}, "D": {}}`)

	graph, err := s.TransitiveSuccessors("A", 1)
	require.NoError(t, err)
	require.NotNil(t, graph)

	assert.Equal(t, "A", graph.Root)
	assert.Equal(t, map[string]int{"A": 0, "B": 1, "C": 1}, depthsOf(graph))
	assert.Len(t, graph.Edges, 2)
	assert.Equal(t, 1, graph.Depth)
}

func TestTransitiveSuccessors_FollowsMultiHopChains(t *testing.T) {
	t.Parallel()
	s := flowSnapshot(t, `{"A": {"next": "B"}, "B": {"on_error": "C"}, "C": {}}`)

	graph, err := s.TransitiveSuccessors("A", 3)
	require.NoError(t, err)
	require.NotNil(t, graph)

	assert.Equal(t, map[string]int{"A": 0, "B": 1, "C": 2}, depthsOf(graph))
	assert.Equal(t, 2, graph.Depth)
	require.Len(t, graph.Edges, 2)
	assert.Equal(t, "on_error", graph.Edges[1].Field)
}

func TestTransitiveSuccessors_Depth0ReturnsRootOnly(t *testing.T) {
	t.Parallel()
	s := flowSnapshot(t, `{"A": {"next": "B"}, "B": {}}`)

	graph, err := s.TransitiveSuccessors("A", 0)
	require.NoError(t, err)
	require.NotNil(t, graph)

	assert.Equal(t, []FlowNode{{Name: "A", Depth: 0}}, graph.Nodes)
	assert.Empty(t, graph.Edges)
	assert.Equal(t, 0, graph.Depth)
}

func TestTransitiveSuccessors_HandlesCycles(t *testing.T) {
	t.Parallel()
	s := flowSnapshot(t, `{"A": {"next": "B"}, "B": {"next": "[JumpBack]A"}}`)

	graph, err := s.TransitiveSuccessors("A", 10)
	require.NoError(t, err)
	require.NotNil(t, graph)

	assert.Len(t, graph.Nodes, 2)
	require.Len(t, graph.Edges, 2)
	assert.True(t, graph.Edges[1].JumpBack)
}

func TestTransitiveSuccessors_ResolvesAnchors(t *testing.T) {
	t.Parallel()
	s := flowSnapshot(t, `{"A": {"next": "[Anchor]L"}, "B": {"anchor": "L"}, "C": {}}`)

	graph, err := s.TransitiveSuccessors("A", 1)
	require.NoError(t, err)
	require.NotNil(t, graph)

	require.Len(t, graph.Edges, 1)
	assert.Equal(t, "B", graph.Edges[0].To)
	assert.True(t, graph.Edges[0].Anchor)
}

func TestTransitiveSuccessors_UnknownTaskReturnsNil(t *testing.T) {
	t.Parallel()
	s := flowSnapshot(t, `{"A": {}}`)

	graph, err := s.TransitiveSuccessors("Nope", 5)
	require.NoError(t, err)
	assert.Nil(t, graph)
}

func TestTransitiveSuccessors_NegativeDepthReturnsError(t *testing.T) {
	t.Parallel()
	s := flowSnapshot(t, `{"A": {}}`)

	graph, err := s.TransitiveSuccessors("A", -1)
	require.Error(t, err)
	assert.Nil(t, graph)
}

func TestTransitiveSuccessors_MaxDepthCappedAt100(t *testing.T) {
	t.Parallel()
	s := flowSnapshot(t, `{"A": {}}`)

	graph, err := s.TransitiveSuccessors("A", 200)
	require.NoError(t, err)
	require.NotNil(t, graph)
	assert.Equal(t, "A", graph.Root)
}

// =============================================================================
// TransitivePredecessors
// =============================================================================

func TestTransitivePredecessors_FollowsChains(t *testing.T) {
	t.Parallel()
	s := flowSnapshot(t, `{"A": {"next": "B"}, "B": {"next": "C"}, "X": {"next": "C"}, "C": {}}`)

	graph, err := s.TransitivePredecessors("C", 5)
	require.NoError(t, err)
	require.NotNil(t, graph)

	assert.Equal(t, map[string]int{"C": 0, "B": 1, "X": 1, "A": 2}, depthsOf(graph))
	assert.Len(t, graph.Edges, 3)
	assert.Equal(t, 2, graph.Depth)
}

func TestTransitivePredecessors_NoneReturnsRootOnly(t *testing.T) {
	t.Parallel()
	s := flowSnapshot(t, `{"A": {"next": "B"}, "B": {}}`)

	graph, err := s.TransitivePredecessors("A", 5)
	require.NoError(t, err)
	require.NotNil(t, graph)
	assert.Len(t, graph.Nodes, 1)
	assert.Empty(t, graph.Edges)
}

func TestPredecessors_Direct(t *testing.T) {
	t.Parallel()
	s := flowSnapshot(t, `{"A": {"next": "C"}, "B": {"timeout_next": "C"}, "C": {}}`)

	edges := s.Predecessors("C")
	require.Len(t, edges, 2)
	assert.ElementsMatch(t, []string{"A", "B"}, []string{edges[0].From, edges[1].From})
}

// =============================================================================
// UnusedTasks and Hotspots
// =============================================================================

func TestUnusedTasks_ExcludesReferencedAndEntries(t *testing.T) {
	t.Parallel()
	i, _ := newTestInterface(t, map[string]string{
		ws("interface.json"):                 testManifest,
		ws("resource", "pipeline", "a.json"): `{"Start": {"next": "Mid"}, "Mid": {}, "Orphan": {}}`,
	})
	assert.Equal(t, []string{"Orphan"}, i.Snapshot().UnusedTasks())
}

func TestHotspots_TopNByPredecessors(t *testing.T) {
	t.Parallel()
	s := flowSnapshot(t, `{
		"A": {"next": ["Hub", "Side"]},
		"B": {"next": "Hub"},
		"C": {"next": "Hub"},
		"Hub": {"next": "Side"},
		"Side": {}
	}`)

	hot, err := s.Hotspots(1)
	require.NoError(t, err)
	assert.Equal(t, []HotspotResult{{Name: "Hub", Predecessors: 3, Successors: 1}}, hot)

	all, err := s.Hotspots(10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Side", all[1].Name)
}

func TestHotspots_TopNZeroReturnsEmpty(t *testing.T) {
	t.Parallel()
	s := flowSnapshot(t, `{"A": {"next": "B"}, "B": {}}`)

	hot, err := s.Hotspots(0)
	require.NoError(t, err)
	assert.Empty(t, hot)
}

func TestHotspots_NegativeTopNReturnsError(t *testing.T) {
	t.Parallel()
	s := flowSnapshot(t, `{"A": {}}`)

	_, err := s.Hotspots(-1)
	require.Error(t, err)
}
