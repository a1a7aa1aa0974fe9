package detect

import (
	"context"

	"github.com/dd0wney/shulou/pkg/graph"
)

// DefaultMaxIterations bounds label propagation when the labels keep
// oscillating instead of converging.
const DefaultMaxIterations = 100

// LabelPropagation detects communities by iteratively adopting the most
// frequent label among each node's neighbors. Fast and scalable; the
// result depends on node ordering, which is why it benefits from the
// shuffled-restart search.
type LabelPropagation struct {
	// MaxIterations caps the number of label sweeps. Zero means
	// DefaultMaxIterations.
	MaxIterations int
}

// Name implements Engine.
func (LabelPropagation) Name() string {
	return "propagation"
}

// Detect implements Engine. The sweep order and tie-breaking are
// deterministic, so identical inputs yield identical results.
func (lp LabelPropagation) Detect(ctx context.Context, g *graph.Graph) (Result, error) {
	maxIter := lp.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	adj := g.Adjacency()
	n := g.NodeCount()

	// Each node starts in its own community
	labels := make([]int, n)
	for i := range labels {
		labels[i] = i
	}

	for iter := 0; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		changed := false
		for node := 0; node < n; node++ {
			if len(adj[node]) == 0 {
				continue
			}

			counts := make(map[int]int)
			for _, neighbor := range adj[node] {
				counts[labels[neighbor]]++
			}

			// Most frequent neighbor label, largest label on ties.
			// The node keeps its current label unless a neighbor label
			// is strictly more frequent; without that stickiness a
			// single bridge edge can flood its label across community
			// boundaries.
			candidate, candidateCount := labels[node], 0
			for label, count := range counts {
				if count > candidateCount || (count == candidateCount && label > candidate) {
					candidate = label
					candidateCount = count
				}
			}

			if candidateCount > counts[labels[node]] && candidate != labels[node] {
				labels[node] = candidate
				changed = true
			}
		}

		if !changed {
			break // Converged
		}
	}

	membership := compactLabels(labels)
	return Result{
		Membership: membership,
		Modularity: graph.Modularity(g, membership),
	}, nil
}
