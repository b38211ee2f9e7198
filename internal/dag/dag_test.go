package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildGraph(t *testing.T, edges [][2]string, nodes ...string) *Graph {
	t.Helper()
	g := New()
	for _, id := range nodes {
		g.AddNode(id)
	}
	for _, e := range edges {
		require.NoError(t, g.AddEdge(e[0], e[1]))
	}
	return g
}

func TestAddEdgeUnknownNode(t *testing.T) {
	g := New()
	g.AddNode("a")
	require.Error(t, g.AddEdge("a", "missing"))
	require.Error(t, g.AddEdge("missing", "a"))
}

func TestSelfEdgeRejected(t *testing.T) {
	g := New()
	g.AddNode("a")
	require.Error(t, g.AddEdge("a", "a"))
}

func TestDependencies(t *testing.T) {
	g := buildGraph(t, [][2]string{{"a", "c"}, {"b", "c"}}, "a", "b", "c")

	deps, err := g.Dependencies("c")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, deps)

	deps, err = g.Dependencies("a")
	require.NoError(t, err)
	assert.Empty(t, deps)

	_, err = g.Dependencies("missing")
	require.Error(t, err)
}

func TestDetectCycles(t *testing.T) {
	g := buildGraph(t, [][2]string{{"a", "b"}, {"b", "c"}}, "a", "b", "c")
	require.NoError(t, g.DetectCycles())

	require.NoError(t, g.AddEdge("c", "a"))
	err := g.DetectCycles()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle detected")
}
