package graph

import (
	"errors"
	"fmt"
)

// ErrInvalidGraph is the base error for malformed graph input.
var ErrInvalidGraph = errors.New("invalid graph")

// Edge is an undirected edge between two node indices.
type Edge struct {
	From int
	To   int
}

// Graph is an immutable undirected graph over the node set {0..N-1}.
// Construct with New; the zero value is not usable.
type Graph struct {
	nodeCount int
	edges     []Edge
}

// New builds a graph from a node count and an edge list.
// Self-loops and disconnected nodes are allowed; edges that reference
// nodes outside {0..nodeCount-1} are not.
func New(nodeCount int, edges []Edge) (*Graph, error) {
	if nodeCount <= 0 {
		return nil, fmt.Errorf("%w: node count %d must be positive", ErrInvalidGraph, nodeCount)
	}

	for i, e := range edges {
		if e.From < 0 || e.From >= nodeCount || e.To < 0 || e.To >= nodeCount {
			return nil, fmt.Errorf("%w: edge %d (%d,%d) references node outside [0,%d)",
				ErrInvalidGraph, i, e.From, e.To, nodeCount)
		}
	}

	owned := make([]Edge, len(edges))
	copy(owned, edges)

	return &Graph{nodeCount: nodeCount, edges: owned}, nil
}

// NodeCount returns the number of nodes N.
func (g *Graph) NodeCount() int {
	return g.nodeCount
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// Edges returns a copy of the edge list.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Adjacency builds an adjacency list treating every edge as undirected.
// A self-loop contributes a single entry on its node.
func (g *Graph) Adjacency() [][]int {
	adj := make([][]int, g.nodeCount)
	for _, e := range g.edges {
		if e.From == e.To {
			adj[e.From] = append(adj[e.From], e.To)
			continue
		}
		adj[e.From] = append(adj[e.From], e.To)
		adj[e.To] = append(adj[e.To], e.From)
	}
	return adj
}

// Degrees returns the undirected degree of every node.
// A self-loop counts 2 toward its node's degree.
func (g *Graph) Degrees() []int {
	deg := make([]int, g.nodeCount)
	for _, e := range g.edges {
		deg[e.From]++
		deg[e.To]++
	}
	return deg
}

// Relabel returns a new graph whose edges are relabeled under perm.
// The node count is unchanged.
func (g *Graph) Relabel(perm Permutation) (*Graph, error) {
	if len(perm) != g.nodeCount {
		return nil, fmt.Errorf("%w: permutation length %d != node count %d",
			ErrInvalidGraph, len(perm), g.nodeCount)
	}
	return New(g.nodeCount, perm.ApplyEdges(g.edges))
}
