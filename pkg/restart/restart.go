// Package restart implements the shuffled random-restart search. Each
// trial relabels the graph's nodes under a fresh random permutation,
// runs a community-detection engine on the relabeled graph, maps the
// membership back to original node ids, and the trial with the highest
// modularity wins. Engines whose output depends on node ordering (most
// greedy detectors do) explore different local optima this way.
package restart

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/shulou/pkg/detect"
	"github.com/dd0wney/shulou/pkg/graph"
	"github.com/dd0wney/shulou/pkg/logging"
	"github.com/dd0wney/shulou/pkg/metrics"
)

var (
	// ErrDetection wraps any failure raised by the detection engine,
	// including recovered panics.
	ErrDetection = errors.New("detection engine failed")

	// ErrNilEngine is returned when Search is called without an engine.
	ErrNilEngine = errors.New("detection engine is nil")

	// ErrNegativeTrials is returned for a negative trial count.
	ErrNegativeTrials = errors.New("trial count must be non-negative")
)

// Options configures a Search.
type Options struct {
	// Trials is the number of randomized trials run in addition to the
	// canonical unpermuted one. Must be >= 0.
	Trials int

	// Parallel fans trials out over a worker pool. When false a single
	// worker processes every trial in order.
	Parallel bool

	// Workers overrides the pool size when Parallel is set. Zero means
	// DefaultWorkers().
	Workers int

	// Seed drives every trial's permutation. Each trial derives its own
	// RNG from Seed and the trial index, so a fixed seed reproduces the
	// same permutation set regardless of worker count. A zero seed is
	// replaced with the current time.
	Seed int64

	// Logger receives structured progress output. Nil disables logging.
	Logger logging.Logger

	// Metrics receives trial and search instrumentation. Optional.
	Metrics *metrics.Registry
}

// DefaultWorkers returns the default pool size: one worker per CPU,
// leaving one CPU for the reducer.
func DefaultWorkers() int {
	if n := runtime.NumCPU() - 1; n > 1 {
		return n
	}
	return 1
}

// task is one unit of work drawn by a trial worker.
type task struct {
	index int
}

// trialResult travels from a worker to the reducer.
type trialResult struct {
	index  int
	result detect.Result
	err    error
}

// Search runs the canonical detection plus opts.Trials randomized
// restarts and returns the highest-modularity result, indexed by
// original node ids.
//
// Ties keep the first result seen; with more than one worker that order
// is not deterministic. Any engine failure aborts the whole search.
func Search(ctx context.Context, g *graph.Graph, engine detect.Engine, opts Options) (detect.Result, error) {
	if g == nil {
		return detect.Result{}, fmt.Errorf("%w: graph is nil", graph.ErrInvalidGraph)
	}
	if engine == nil {
		return detect.Result{}, ErrNilEngine
	}
	if opts.Trials < 0 {
		return detect.Result{}, fmt.Errorf("%w: got %d", ErrNegativeTrials, opts.Trials)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop{}
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	workers := 1
	if opts.Parallel {
		workers = opts.Workers
		if workers <= 0 {
			workers = DefaultWorkers()
		}
	}
	if workers > opts.Trials && opts.Trials > 0 {
		workers = opts.Trials
	}

	runID := uuid.NewString()
	logger = logger.With(logging.RunID(runID), logging.Engine(engine.Name()))
	logger.Info("search started",
		logging.Nodes(g.NodeCount()),
		logging.EdgesCount(g.EdgeCount()),
		logging.Trials(opts.Trials),
		logging.Workers(workers),
	)
	started := time.Now()

	best, err := runCanonical(ctx, g, engine, opts.Metrics)
	if err != nil {
		if opts.Metrics != nil {
			opts.Metrics.RecordSearch("error", time.Since(started))
		}
		return detect.Result{}, err
	}
	logger.Debug("canonical trial complete", logging.Modularity(best.Modularity))
	if opts.Metrics != nil {
		opts.Metrics.RecordImprovement(best.Modularity)
	}

	if opts.Trials > 0 {
		best, err = runShuffled(ctx, g, engine, best, seed, workers, opts, logger)
		if err != nil {
			if opts.Metrics != nil {
				opts.Metrics.RecordSearch("error", time.Since(started))
			}
			return detect.Result{}, err
		}
	}

	elapsed := time.Since(started)
	logger.Info("search finished",
		logging.Modularity(best.Modularity),
		logging.Latency(elapsed),
	)
	if opts.Metrics != nil {
		opts.Metrics.RecordSearch("ok", elapsed)
	}
	return best, nil
}

// runCanonical runs the unpermuted detection that seeds the reducer.
func runCanonical(ctx context.Context, g *graph.Graph, engine detect.Engine, reg *metrics.Registry) (detect.Result, error) {
	started := time.Now()
	res, err := Canonical(ctx, g, engine)
	if reg != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		reg.RecordTrial(status, time.Since(started))
	}
	if err != nil {
		return detect.Result{}, fmt.Errorf("canonical trial: %w", err)
	}
	return res, nil
}

// runShuffled fans the randomized trials out over the pool and reduces
// results to the best one, seeded with the canonical result.
func runShuffled(ctx context.Context, g *graph.Graph, engine detect.Engine, best detect.Result,
	seed int64, workers int, opts Options, logger logging.Logger) (detect.Result, error) {

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tasks := make(chan task, workers*2)
	results := make(chan trialResult, workers)

	// Task generator: one task per trial, then close. The closed
	// channel is the shutdown signal; no sentinel values travel the
	// queue.
	go func() {
		defer close(tasks)
		for i := 0; i < opts.Trials; i++ {
			select {
			case tasks <- task{index: i}:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			trialWorker(ctx, g, engine, seed, tasks, results, opts.Metrics)
		}()
	}
	if opts.Metrics != nil {
		opts.Metrics.ActiveWorkers.Add(float64(workers))
		defer opts.Metrics.ActiveWorkers.Sub(float64(workers))
	}

	// Reducer owns the accumulator. It drains every worker's stream;
	// the first error cancels the remaining trials but draining
	// continues so no worker blocks on send.
	go func() {
		wg.Wait()
		close(results)
	}()

	var firstErr error
	for r := range results {
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
				cancel()
			}
			continue
		}
		if r.result.Modularity > best.Modularity {
			best = r.result
			logger.Debug("best improved",
				logging.Trial(r.index),
				logging.Modularity(best.Modularity),
			)
			if opts.Metrics != nil {
				opts.Metrics.RecordImprovement(best.Modularity)
			}
		}
	}

	if firstErr != nil {
		return detect.Result{}, firstErr
	}
	if err := ctx.Err(); err != nil {
		return detect.Result{}, err
	}
	return best, nil
}

// trialWorker draws tasks until the queue closes, running one shuffled
// trial per task.
func trialWorker(ctx context.Context, g *graph.Graph, engine detect.Engine, seed int64,
	tasks <-chan task, results chan<- trialResult, reg *metrics.Registry) {

	for t := range tasks {
		if ctx.Err() != nil {
			return
		}

		started := time.Now()
		res, err := runTrial(ctx, g, engine, trialSeed(seed, t.index))
		if reg != nil {
			status := "ok"
			if err != nil {
				status = "error"
			}
			reg.RecordTrial(status, time.Since(started))
		}

		select {
		case results <- trialResult{index: t.index, result: res, err: err}:
		case <-ctx.Done():
			// Reducer is draining until all workers exit, so this only
			// triggers when the reducer itself was cancelled from above.
			return
		}
	}
}

// runTrial executes one shuffled trial: permute, detect, un-permute.
func runTrial(ctx context.Context, g *graph.Graph, engine detect.Engine, seed int64) (detect.Result, error) {
	rng := rand.New(rand.NewSource(seed))
	perm := graph.Shuffled(g.NodeCount(), rng)

	relabeled, err := g.Relabel(perm)
	if err != nil {
		return detect.Result{}, err
	}

	res, err := safeDetect(ctx, relabeled, engine)
	if err != nil {
		return detect.Result{}, err
	}
	if len(res.Membership) != g.NodeCount() {
		return detect.Result{}, fmt.Errorf("%w: membership length %d != node count %d",
			ErrDetection, len(res.Membership), g.NodeCount())
	}

	return detect.Result{
		Membership: perm.RecoverMembership(res.Membership),
		Modularity: res.Modularity,
	}, nil
}

// Trial runs a single shuffled trial with an explicit RNG seed: permute
// the node labels, detect on the relabeled graph, map the membership
// back. Exposed for the remote transport so distributed workers execute
// exactly the semantics of the local pool.
func Trial(ctx context.Context, g *graph.Graph, engine detect.Engine, seed int64) (detect.Result, error) {
	return runTrial(ctx, g, engine, seed)
}

// Canonical runs the unpermuted detection with the same failure
// hardening as a shuffled trial.
func Canonical(ctx context.Context, g *graph.Graph, engine detect.Engine) (detect.Result, error) {
	res, err := safeDetect(ctx, g, engine)
	if err != nil {
		return detect.Result{}, err
	}
	if len(res.Membership) != g.NodeCount() {
		return detect.Result{}, fmt.Errorf("%w: membership length %d != node count %d",
			ErrDetection, len(res.Membership), g.NodeCount())
	}
	return res, nil
}

// TrialSeed derives the RNG seed for one trial from the search seed.
func TrialSeed(seed int64, trial int) int64 {
	return trialSeed(seed, trial)
}

// safeDetect invokes the engine, converting failures and panics into
// ErrDetection so one bad trial cannot hang or kill the pipeline.
func safeDetect(ctx context.Context, g *graph.Graph, engine detect.Engine) (res detect.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrDetection, r)
		}
	}()

	res, err = engine.Detect(ctx, g)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return detect.Result{}, err
		}
		return detect.Result{}, fmt.Errorf("%w: %w", ErrDetection, err)
	}
	return res, nil
}

// trialSeed derives a per-trial RNG seed. The multiplier is the
// splitmix64 increment, keeping nearby trial indices well separated.
func trialSeed(seed int64, trial int) int64 {
	return seed + int64(trial+1)*-0x61c8864680b583eb
}
