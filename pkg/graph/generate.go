package graph

import (
	"math/rand"
)

// Ring builds a cycle graph over n nodes: (0,1), (1,2), ..., (n-1,0).
func Ring(n int) (*Graph, error) {
	edges := make([]Edge, 0, n)
	for i := 0; i < n; i++ {
		edges = append(edges, Edge{From: i, To: (i + 1) % n})
	}
	return New(n, edges)
}

// Random builds a random graph over n nodes with approximately
// n*avgDegree/2 distinct edges, seeded for reproducible benchmarks.
func Random(n, avgDegree int, seed int64) (*Graph, error) {
	rng := rand.New(rand.NewSource(seed))
	target := n * avgDegree / 2
	if maxEdges := n * (n - 1) / 2; target > maxEdges {
		target = maxEdges
	}

	seen := make(map[[2]int]bool, target)
	edges := make([]Edge, 0, target)
	for len(edges) < target {
		u := rng.Intn(n)
		v := rng.Intn(n)
		if u == v {
			continue
		}
		if u > v {
			u, v = v, u
		}
		key := [2]int{u, v}
		if seen[key] {
			continue
		}
		seen[key] = true
		edges = append(edges, Edge{From: u, To: v})
	}

	return New(n, edges)
}

// Cliques builds k disjoint cliques of size s each, then connects
// consecutive cliques with a single bridge edge. Useful as a graph with
// a known strong community structure.
func Cliques(k, s int) (*Graph, error) {
	n := k * s
	var edges []Edge
	for c := 0; c < k; c++ {
		base := c * s
		for i := 0; i < s; i++ {
			for j := i + 1; j < s; j++ {
				edges = append(edges, Edge{From: base + i, To: base + j})
			}
		}
		if c > 0 {
			edges = append(edges, Edge{From: base - 1, To: base})
		}
	}
	return New(n, edges)
}
