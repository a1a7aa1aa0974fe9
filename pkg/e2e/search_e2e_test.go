package e2e

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/shulou/pkg/detect"
	"github.com/dd0wney/shulou/pkg/graph"
	"github.com/dd0wney/shulou/pkg/restart"
)

// TestShuffledSearchWorkflow tests the complete search pipeline the way
// a caller would use it: build a graph, pick an engine, run restarts,
// inspect the winning partition.
func TestShuffledSearchWorkflow(t *testing.T) {
	t.Log("=== E2E Test: Shuffled Restart Search ===")

	// Step 1: a graph with a planted three-community structure
	g, err := graph.Cliques(3, 6)
	require.NoError(t, err)
	t.Logf("✓ Built graph: %d nodes, %d edges", g.NodeCount(), g.EdgeCount())

	// Step 2: parallel restart search with label propagation
	result, err := restart.Search(context.Background(), g, detect.LabelPropagation{},
		restart.Options{Trials: 20, Seed: 1234, Parallel: true, Workers: 4})
	require.NoError(t, err)
	t.Logf("✓ Search finished: modularity %.4f", result.Modularity)

	// Step 3: the winning partition covers every node and scores sanely
	require.Len(t, result.Membership, g.NodeCount())
	assert.GreaterOrEqual(t, result.Modularity, -1.0)
	assert.LessOrEqual(t, result.Modularity, 1.0)

	// Planted cliques are dense enough that any reasonable engine finds
	// a clearly positive modularity
	assert.Greater(t, result.Modularity, 0.3)

	// Each planted clique should be internally uniform
	for clique := 0; clique < 3; clique++ {
		base := clique * 6
		label := result.Membership[base]
		for i := 1; i < 6; i++ {
			assert.Equal(t, label, result.Membership[base+i],
				"clique %d split at node %d", clique, base+i)
		}
	}

	// Step 4: re-scoring the returned membership reproduces the score
	assert.InDelta(t, result.Modularity, graph.Modularity(g, result.Membership), 1e-9)

	// Step 5: the same seed reproduces the same best
	again, err := restart.Search(context.Background(), g, detect.LabelPropagation{},
		restart.Options{Trials: 20, Seed: 1234, Parallel: true, Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, result.Modularity, again.Modularity)
}

// TestEngineComparison runs both engines over the same graph and checks
// the relative quality ordering on a graph with one connected component.
func TestEngineComparison(t *testing.T) {
	g, err := graph.Cliques(2, 5)
	require.NoError(t, err)

	byComponents, err := restart.Search(context.Background(), g, detect.ConnectedComponents{},
		restart.Options{Trials: 5, Seed: 42})
	require.NoError(t, err)

	byPropagation, err := restart.Search(context.Background(), g, detect.LabelPropagation{},
		restart.Options{Trials: 5, Seed: 42})
	require.NoError(t, err)

	// The bridged cliques form a single component, so the component
	// engine is stuck at modularity 0 while propagation splits them.
	assert.InDelta(t, 0.0, byComponents.Modularity, 1e-9)
	assert.Greater(t, byPropagation.Modularity, byComponents.Modularity)
}
