package graph

// Modularity computes the Newman modularity Q of a membership assignment
// over the graph, treating every edge as undirected with unit weight.
//
//	Q = sum_c ( e_c/m - (d_c/2m)^2 )
//
// where m is the edge count, e_c the number of edges inside community c
// and d_c the total degree of c. Returns 0 for an edgeless graph.
// Membership must have one entry per node; entries outside the node set
// are treated as distinct singleton communities.
func Modularity(g *Graph, membership []int) float64 {
	m := float64(g.EdgeCount())
	if m == 0 || len(membership) != g.NodeCount() {
		return 0
	}

	internal := make(map[int]float64) // community -> edges inside
	degree := make(map[int]float64)   // community -> total degree

	for _, e := range g.edges {
		cu := membership[e.From]
		cv := membership[e.To]
		degree[cu]++
		degree[cv]++
		if cu == cv {
			internal[cu]++
		}
	}

	q := 0.0
	for c, d := range degree {
		q += internal[c]/m - (d/(2*m))*(d/(2*m))
	}
	return q
}
