// Package detect provides community-detection engines for the shuffled
// random-restart search. An Engine is a black box that assigns every node
// of a graph to a community and scores the assignment by modularity; the
// search loop in pkg/restart is agnostic to which engine it drives.
package detect

import (
	"context"

	"github.com/dd0wney/shulou/pkg/graph"
)

// Result is one community assignment and its quality score.
type Result struct {
	// Membership holds one community id per node, indexed by node id.
	// Community ids are compact (0..k-1) and only meaningful within a
	// single result.
	Membership []int

	// Modularity is the Newman modularity of the assignment, in [-1, 1].
	Modularity float64
}

// Engine detects the community structure of a graph.
type Engine interface {
	// Detect assigns every node of g to a community. The returned
	// membership has exactly g.NodeCount() entries.
	Detect(ctx context.Context, g *graph.Graph) (Result, error)

	// Name identifies the engine in logs and metrics.
	Name() string
}

// compactLabels renumbers arbitrary labels to 0..k-1, preserving first
// appearance order so the output is deterministic.
func compactLabels(labels []int) []int {
	next := 0
	seen := make(map[int]int)
	out := make([]int, len(labels))
	for i, l := range labels {
		id, ok := seen[l]
		if !ok {
			id = next
			seen[l] = id
			next++
		}
		out[i] = id
	}
	return out
}
