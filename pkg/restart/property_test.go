package restart

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/dd0wney/shulou/pkg/detect"
	"github.com/dd0wney/shulou/pkg/graph"
)

// TestSearchInvariants uses property-based testing to verify the search
// contract across random graphs, seeds and pool sizes.
func TestSearchInvariants(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping property-based test in short mode")
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30

	properties := gopter.NewProperties(parameters)

	// Property 1: the result always covers every original node with a
	// community id inside the node range
	properties.Property("membership has canonical shape", prop.ForAll(
		func(n, degree, trials int, seed int64) bool {
			g, err := graph.Random(n, degree, seed)
			if err != nil {
				return true
			}

			res, err := Search(context.Background(), g, detect.LabelPropagation{},
				Options{Trials: trials, Seed: seed, Parallel: true, Workers: 3})
			if err != nil {
				return false
			}

			if len(res.Membership) != n {
				return false
			}
			for _, c := range res.Membership {
				if c < 0 || c >= n {
					return false
				}
			}
			return true
		},
		gen.IntRange(2, 40),
		gen.IntRange(1, 4),
		gen.IntRange(0, 10),
		gen.Int64(),
	))

	// Property 2: restarts never do worse than the canonical run
	properties.Property("modularity is monotone in restarts", prop.ForAll(
		func(n, trials int, seed int64) bool {
			g, err := graph.Random(n, 3, seed)
			if err != nil {
				return true
			}

			canonical, err := detect.LabelPropagation{}.Detect(context.Background(), g)
			if err != nil {
				return false
			}

			res, err := Search(context.Background(), g, detect.LabelPropagation{},
				Options{Trials: trials, Seed: seed})
			if err != nil {
				return false
			}

			return res.Modularity >= canonical.Modularity
		},
		gen.IntRange(4, 40),
		gen.IntRange(0, 8),
		gen.Int64(),
	))

	// Property 3: the reported modularity matches re-scoring the
	// returned membership on the original graph
	properties.Property("reported score matches recovered membership", prop.ForAll(
		func(n, trials int, seed int64) bool {
			g, err := graph.Random(n, 3, seed)
			if err != nil {
				return true
			}

			res, err := Search(context.Background(), g, detect.LabelPropagation{},
				Options{Trials: trials, Seed: seed})
			if err != nil {
				return false
			}

			diff := res.Modularity - graph.Modularity(g, res.Membership)
			return diff < 1e-9 && diff > -1e-9
		},
		gen.IntRange(4, 40),
		gen.IntRange(0, 6),
		gen.Int64(),
	))

	properties.TestingRun(t)
}
