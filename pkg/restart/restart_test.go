package restart

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/dd0wney/shulou/pkg/detect"
	"github.com/dd0wney/shulou/pkg/graph"
	"github.com/dd0wney/shulou/pkg/metrics"
)

// orderEngine is a deterministic stub whose score depends on the node
// labeling: it rewards edge lists whose first edge has a small source
// id, so different permutations score differently.
type orderEngine struct {
	calls int64
}

func (e *orderEngine) Name() string { return "order-stub" }

func (e *orderEngine) Detect(ctx context.Context, g *graph.Graph) (detect.Result, error) {
	atomic.AddInt64(&e.calls, 1)

	membership := make([]int, g.NodeCount())
	for i := range membership {
		membership[i] = i % 2
	}

	score := 0.0
	if edges := g.Edges(); len(edges) > 0 {
		score = 1 / float64(edges[0].From+1)
	}
	return detect.Result{Membership: membership, Modularity: score}, nil
}

// constEngine always returns the same result
type constEngine struct {
	result detect.Result
}

func (e constEngine) Name() string { return "const-stub" }

func (e constEngine) Detect(ctx context.Context, g *graph.Graph) (detect.Result, error) {
	return e.result, nil
}

// failAfterEngine fails every call past the first n
type failAfterEngine struct {
	allowed int64
	calls   int64
}

func (e *failAfterEngine) Name() string { return "fail-stub" }

func (e *failAfterEngine) Detect(ctx context.Context, g *graph.Graph) (detect.Result, error) {
	if atomic.AddInt64(&e.calls, 1) > e.allowed {
		return detect.Result{}, fmt.Errorf("engine exploded")
	}
	membership := make([]int, g.NodeCount())
	return detect.Result{Membership: membership, Modularity: 0}, nil
}

// panicEngine panics on every randomized trial but not the canonical one
type panicEngine struct {
	calls int64
}

func (e *panicEngine) Name() string { return "panic-stub" }

func (e *panicEngine) Detect(ctx context.Context, g *graph.Graph) (detect.Result, error) {
	if atomic.AddInt64(&e.calls, 1) > 1 {
		panic("unreachable partition")
	}
	return detect.Result{Membership: make([]int, g.NodeCount()), Modularity: 0}, nil
}

func ringGraph(t *testing.T, n int) *graph.Graph {
	t.Helper()
	g, err := graph.Ring(n)
	if err != nil {
		t.Fatalf("Ring failed: %v", err)
	}
	return g
}

// TestSearch_ZeroTrialsReturnsCanonical tests that Trials=0 is exactly
// the unpermuted engine result
func TestSearch_ZeroTrialsReturnsCanonical(t *testing.T) {
	g := ringGraph(t, 6)
	engine := &orderEngine{}

	got, err := Search(context.Background(), g, engine, Options{Trials: 0, Seed: 1})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	want, _ := engine.Detect(context.Background(), g)
	if got.Modularity != want.Modularity {
		t.Errorf("Expected canonical modularity %f, got %f", want.Modularity, got.Modularity)
	}
	for i := range want.Membership {
		if got.Membership[i] != want.Membership[i] {
			t.Errorf("Membership differs from canonical at node %d", i)
		}
	}
}

// TestSearch_RunsCanonicalPlusTrials tests the engine call count
func TestSearch_RunsCanonicalPlusTrials(t *testing.T) {
	g := ringGraph(t, 5)
	engine := &orderEngine{}

	_, err := Search(context.Background(), g, engine, Options{Trials: 7, Seed: 3})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if calls := atomic.LoadInt64(&engine.calls); calls != 8 {
		t.Errorf("Expected 8 engine calls (1 canonical + 7 trials), got %d", calls)
	}
}

// TestSearch_Monotonicity tests that restarts never return less than
// the canonical modularity
func TestSearch_Monotonicity(t *testing.T) {
	g := ringGraph(t, 8)
	engine := &orderEngine{}

	canonical, _ := engine.Detect(context.Background(), g)

	for _, trials := range []int{0, 1, 5, 20} {
		got, err := Search(context.Background(), g, engine, Options{Trials: trials, Seed: 9})
		if err != nil {
			t.Fatalf("Search with %d trials failed: %v", trials, err)
		}
		if got.Modularity < canonical.Modularity {
			t.Errorf("Trials=%d: modularity %f below canonical %f",
				trials, got.Modularity, canonical.Modularity)
		}
	}
}

// TestSearch_SequentialDeterminism tests repeatability under a fixed seed
func TestSearch_SequentialDeterminism(t *testing.T) {
	g := ringGraph(t, 10)

	first, err := Search(context.Background(), g, &orderEngine{}, Options{Trials: 12, Seed: 77})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	for run := 0; run < 3; run++ {
		again, err := Search(context.Background(), g, &orderEngine{}, Options{Trials: 12, Seed: 77})
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if again.Modularity != first.Modularity {
			t.Fatalf("Run %d: modularity %f != %f", run, again.Modularity, first.Modularity)
		}
		for i := range first.Membership {
			if again.Membership[i] != first.Membership[i] {
				t.Fatalf("Run %d: membership differs at node %d", run, i)
			}
		}
	}
}

// TestSearch_ParallelMatchesSequentialBest tests that worker count does
// not change the best modularity under a fixed seed
func TestSearch_ParallelMatchesSequentialBest(t *testing.T) {
	g := ringGraph(t, 12)

	sequential, err := Search(context.Background(), g, &orderEngine{},
		Options{Trials: 16, Seed: 5})
	if err != nil {
		t.Fatalf("Sequential search failed: %v", err)
	}

	parallel, err := Search(context.Background(), g, &orderEngine{},
		Options{Trials: 16, Seed: 5, Parallel: true, Workers: 4})
	if err != nil {
		t.Fatalf("Parallel search failed: %v", err)
	}

	if parallel.Modularity != sequential.Modularity {
		t.Errorf("Parallel best %f != sequential best %f",
			parallel.Modularity, sequential.Modularity)
	}
}

// TestSearch_MembershipShape tests the end-to-end result shape: 4-ring,
// 5 trials, membership of length 4, modularity within [-1, 1]
func TestSearch_MembershipShape(t *testing.T) {
	g := ringGraph(t, 4)

	got, err := Search(context.Background(), g, detect.LabelPropagation{},
		Options{Trials: 5, Seed: 2, Parallel: true, Workers: 2})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(got.Membership) != 4 {
		t.Errorf("Expected membership length 4, got %d", len(got.Membership))
	}
	if got.Modularity < -1 || got.Modularity > 1 {
		t.Errorf("Modularity %f outside [-1, 1]", got.Modularity)
	}
}

// TestSearch_EngineErrorFailsFast tests that a failing trial aborts the
// run instead of hanging the reducer
func TestSearch_EngineErrorFailsFast(t *testing.T) {
	g := ringGraph(t, 6)
	engine := &failAfterEngine{allowed: 3}

	_, err := Search(context.Background(), g, engine,
		Options{Trials: 50, Seed: 4, Parallel: true, Workers: 3})
	if !errors.Is(err, ErrDetection) {
		t.Errorf("Expected ErrDetection, got %v", err)
	}
}

// TestSearch_CanonicalErrorSurfaces tests failure of the unpermuted run
func TestSearch_CanonicalErrorSurfaces(t *testing.T) {
	g := ringGraph(t, 6)
	engine := &failAfterEngine{allowed: 0}

	_, err := Search(context.Background(), g, engine, Options{Trials: 3, Seed: 4})
	if !errors.Is(err, ErrDetection) {
		t.Errorf("Expected ErrDetection, got %v", err)
	}
}

// TestSearch_EnginePanicIsRecovered tests that a panicking engine
// surfaces as an error, not a crashed worker
func TestSearch_EnginePanicIsRecovered(t *testing.T) {
	g := ringGraph(t, 6)

	_, err := Search(context.Background(), g, &panicEngine{},
		Options{Trials: 8, Seed: 6, Parallel: true, Workers: 2})
	if !errors.Is(err, ErrDetection) {
		t.Errorf("Expected ErrDetection from panic, got %v", err)
	}
}

// TestSearch_BadMembershipLength tests the engine contract check
func TestSearch_BadMembershipLength(t *testing.T) {
	g := ringGraph(t, 6)
	engine := constEngine{result: detect.Result{Membership: []int{0, 1}, Modularity: 0.9}}

	_, err := Search(context.Background(), g, engine, Options{Trials: 2, Seed: 8})
	if !errors.Is(err, ErrDetection) {
		t.Errorf("Expected ErrDetection for short membership, got %v", err)
	}
}

// TestSearch_InputValidation tests nil and negative argument handling
func TestSearch_InputValidation(t *testing.T) {
	g := ringGraph(t, 4)

	if _, err := Search(context.Background(), nil, &orderEngine{}, Options{}); !errors.Is(err, graph.ErrInvalidGraph) {
		t.Errorf("Expected ErrInvalidGraph for nil graph, got %v", err)
	}
	if _, err := Search(context.Background(), g, nil, Options{}); !errors.Is(err, ErrNilEngine) {
		t.Errorf("Expected ErrNilEngine, got %v", err)
	}
	if _, err := Search(context.Background(), g, &orderEngine{}, Options{Trials: -1}); !errors.Is(err, ErrNegativeTrials) {
		t.Errorf("Expected ErrNegativeTrials, got %v", err)
	}
}

// TestSearch_ContextCancellation tests that a cancelled context stops
// the search
func TestSearch_ContextCancellation(t *testing.T) {
	g := ringGraph(t, 6)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Search(ctx, g, detect.LabelPropagation{},
		Options{Trials: 100, Seed: 1, Parallel: true})
	if err == nil {
		t.Error("Expected error from cancelled context")
	}
}

// TestSearch_RecordsMetrics tests the instrumentation wiring
func TestSearch_RecordsMetrics(t *testing.T) {
	g := ringGraph(t, 6)
	reg := metrics.NewRegistry()

	_, err := Search(context.Background(), g, &orderEngine{},
		Options{Trials: 4, Seed: 3, Metrics: reg})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	families, err := reg.Gather().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	var trials float64
	for _, mf := range families {
		if mf.GetName() == "shulou_trials_total" {
			for _, m := range mf.GetMetric() {
				trials += m.GetCounter().GetValue()
			}
		}
	}
	if trials != 5 {
		t.Errorf("Expected 5 recorded trials, got %f", trials)
	}
}

// TestDefaultWorkers tests the pool-size default
func TestDefaultWorkers(t *testing.T) {
	if DefaultWorkers() < 1 {
		t.Errorf("DefaultWorkers() = %d, want >= 1", DefaultWorkers())
	}
}

// TestTrialSeed_Distinct tests that nearby trials get distinct seeds
func TestTrialSeed_Distinct(t *testing.T) {
	seen := make(map[int64]bool)
	for i := 0; i < 1000; i++ {
		s := trialSeed(42, i)
		if seen[s] {
			t.Fatalf("Duplicate trial seed at index %d", i)
		}
		seen[s] = true
	}
}
