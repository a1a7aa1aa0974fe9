package graph

import (
	"math/rand"
)

// Permutation is a bijection over the node set {0..N-1}, stored as a
// lookup table: perm[old] = new.
type Permutation []int

// Identity returns the identity permutation over n nodes.
func Identity(n int) Permutation {
	p := make(Permutation, n)
	for i := range p {
		p[i] = i
	}
	return p
}

// Shuffled returns a uniformly random permutation over n nodes drawn
// from rng.
func Shuffled(n int, rng *rand.Rand) Permutation {
	return Permutation(rng.Perm(n))
}

// Valid reports whether p is a bijection over {0..len(p)-1}.
func (p Permutation) Valid() bool {
	seen := make([]bool, len(p))
	for _, v := range p {
		if v < 0 || v >= len(p) || seen[v] {
			return false
		}
		seen[v] = true
	}
	return true
}

// Inverse returns the inverse permutation q with q[p[i]] = i.
func (p Permutation) Inverse() Permutation {
	inv := make(Permutation, len(p))
	for i, v := range p {
		inv[v] = i
	}
	return inv
}

// ApplyEdges relabels every edge (u,v) to (p[u], p[v]).
func (p Permutation) ApplyEdges(edges []Edge) []Edge {
	out := make([]Edge, len(edges))
	for i, e := range edges {
		out[i] = Edge{From: p[e.From], To: p[e.To]}
	}
	return out
}

// RecoverMembership maps a membership computed on the relabeled graph
// back to original node ids: recovered[i] = permuted[p[i]].
func (p Permutation) RecoverMembership(permuted []int) []int {
	recovered := make([]int, len(p))
	for i := range p {
		recovered[i] = permuted[p[i]]
	}
	return recovered
}
