package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/dd0wney/shulou/pkg/config"
	"github.com/dd0wney/shulou/pkg/detect"
	"github.com/dd0wney/shulou/pkg/graph"
	"github.com/dd0wney/shulou/pkg/logging"
	"github.com/dd0wney/shulou/pkg/metrics"
	"github.com/dd0wney/shulou/pkg/remote"
	"github.com/dd0wney/shulou/pkg/restart"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	graphKind := flag.String("graph", "random", "Graph generator: random, ring, cliques")
	numNodes := flag.Int("nodes", 200, "Number of nodes (random, ring)")
	avgDegree := flag.Int("degree", 8, "Average degree per node (random)")
	numCliques := flag.Int("cliques", 4, "Number of cliques (cliques)")
	cliqueSize := flag.Int("clique-size", 10, "Nodes per clique (cliques)")
	trials := flag.Int("trials", -1, "Number of randomized trials (-1 = config value)")
	workers := flag.Int("workers", -1, "Worker goroutines (-1 = config value, 0 = CPU count - 1)")
	seed := flag.Int64("seed", 0, "Search seed (0 = time-based)")
	engineName := flag.String("engine", "", "Detection engine: propagation, components")
	sequential := flag.Bool("sequential", false, "Run trials on a single goroutine")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}

	// Flags override the config file
	if *trials >= 0 {
		cfg.Trials = *trials
	}
	if *workers >= 0 {
		cfg.Workers = *workers
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}
	if *engineName != "" {
		cfg.Engine = *engineName
	}
	if *sequential {
		cfg.Parallel = false
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	engine, err := buildEngine(cfg.Engine)
	if err != nil {
		log.Fatalf("Failed to select engine: %v", err)
	}

	logger := logging.NewJSONLogger(os.Stderr, logging.ParseLevel(cfg.LogLevel))
	registry := metrics.NewRegistry()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, registry)
	}

	g, err := buildGraph(*graphKind, *numNodes, *avgDegree, *numCliques, *cliqueSize, cfg.Seed)
	if err != nil {
		log.Fatalf("Failed to build graph: %v", err)
	}

	fmt.Printf("Shulou - Shuffled Restart Community Search\n")
	fmt.Printf("==========================================\n\n")
	fmt.Printf("Configuration:\n")
	fmt.Printf("  Graph:    %s (%d nodes, %d edges)\n", *graphKind, g.NodeCount(), g.EdgeCount())
	fmt.Printf("  Engine:   %s\n", engine.Name())
	fmt.Printf("  Trials:   %d\n", cfg.Trials)
	fmt.Printf("  Parallel: %v\n", cfg.Parallel)
	if cfg.Parallel {
		poolSize := cfg.Workers
		if poolSize == 0 {
			poolSize = restart.DefaultWorkers()
		}
		fmt.Printf("  Workers:  %d (of %d CPUs)\n", poolSize, runtime.NumCPU())
	}
	if cfg.Remote.TaskAddr != "" {
		fmt.Printf("  Mode:     remote (%s)\n", cfg.Remote.TaskAddr)
	}
	fmt.Printf("\n")

	start := time.Now()
	result, err := runSearch(cfg, g, engine, logger, registry)
	if err != nil {
		log.Fatalf("Search failed: %v", err)
	}
	elapsed := time.Since(start)

	fmt.Printf("Results:\n")
	fmt.Printf("  Best Modularity: %.6f\n", result.Modularity)
	fmt.Printf("  Communities:     %d\n", communityCount(result.Membership))
	fmt.Printf("  Duration:        %s\n", elapsed)
	fmt.Printf("  Trials/sec:      %.1f\n", float64(cfg.Trials+1)/elapsed.Seconds())
}

func runSearch(cfg config.Config, g *graph.Graph, engine detect.Engine,
	logger logging.Logger, registry *metrics.Registry) (detect.Result, error) {

	if cfg.Remote.TaskAddr != "" {
		coordinator, err := remote.NewCoordinator(remote.CoordinatorConfig{
			TaskAddr:   cfg.Remote.TaskAddr,
			ResultAddr: cfg.Remote.ResultAddr,
			Timeout:    cfg.Remote.Timeout,
			Logger:     logger,
			Metrics:    registry,
		})
		if err != nil {
			return detect.Result{}, err
		}
		defer coordinator.Close()
		return coordinator.Run(context.Background(), g, cfg.Trials, cfg.Seed)
	}

	return restart.Search(context.Background(), g, engine, restart.Options{
		Trials:   cfg.Trials,
		Parallel: cfg.Parallel,
		Workers:  cfg.Workers,
		Seed:     cfg.Seed,
		Logger:   logger,
		Metrics:  registry,
	})
}

func buildEngine(name string) (detect.Engine, error) {
	switch name {
	case "propagation":
		return detect.LabelPropagation{}, nil
	case "components":
		return detect.ConnectedComponents{}, nil
	default:
		return nil, fmt.Errorf("unknown engine %q", name)
	}
}

func buildGraph(kind string, nodes, degree, cliques, cliqueSize int, seed int64) (*graph.Graph, error) {
	switch kind {
	case "random":
		return graph.Random(nodes, degree, seed)
	case "ring":
		return graph.Ring(nodes)
	case "cliques":
		return graph.Cliques(cliques, cliqueSize)
	default:
		return nil, fmt.Errorf("unknown graph kind %q", kind)
	}
}

func communityCount(membership []int) int {
	seen := make(map[int]struct{})
	for _, label := range membership {
		seen[label] = struct{}{}
	}
	return len(seen)
}

func serveMetrics(addr string, registry *metrics.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("Metrics server failed: %v", err)
	}
}
