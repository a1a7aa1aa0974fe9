package detect

import (
	"container/list"
	"context"

	"github.com/dd0wney/shulou/pkg/graph"
)

// ConnectedComponents treats every connected component as one community.
// Cheap baseline engine; on a connected graph it returns a single
// community with modularity 0.
type ConnectedComponents struct{}

// Name implements Engine.
func (ConnectedComponents) Name() string {
	return "components"
}

// Detect implements Engine using BFS over the undirected adjacency.
func (ConnectedComponents) Detect(ctx context.Context, g *graph.Graph) (Result, error) {
	adj := g.Adjacency()
	n := g.NodeCount()

	membership := make([]int, n)
	for i := range membership {
		membership[i] = -1
	}

	componentID := 0
	for start := 0; start < n; start++ {
		if membership[start] != -1 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		// New component found
		queue := list.New()
		queue.PushBack(start)
		membership[start] = componentID

		for queue.Len() > 0 {
			node := queue.Remove(queue.Front()).(int)
			for _, neighbor := range adj[node] {
				if membership[neighbor] == -1 {
					membership[neighbor] = componentID
					queue.PushBack(neighbor)
				}
			}
		}

		componentID++
	}

	return Result{
		Membership: membership,
		Modularity: graph.Modularity(g, membership),
	}, nil
}
