package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dd0wney/shulou/pkg/detect"
	"github.com/dd0wney/shulou/pkg/logging"
	"github.com/dd0wney/shulou/pkg/metrics"
	"github.com/dd0wney/shulou/pkg/remote"
)

func main() {
	taskAddr := flag.String("task-addr", "tcp://localhost:9301", "Coordinator task socket")
	resultAddr := flag.String("result-addr", "tcp://localhost:9302", "Coordinator result socket")
	engineName := flag.String("engine", "propagation", "Detection engine: propagation, components")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	var engine detect.Engine
	switch *engineName {
	case "propagation":
		engine = detect.LabelPropagation{}
	case "components":
		engine = detect.ConnectedComponents{}
	default:
		log.Fatalf("Unknown engine %q", *engineName)
	}

	logger := logging.NewJSONLogger(os.Stderr, logging.ParseLevel(*logLevel))

	worker, err := remote.NewWorker(remote.WorkerConfig{
		TaskAddr:   *taskAddr,
		ResultAddr: *resultAddr,
		Engine:     engine,
		Logger:     logger,
		Metrics:    metrics.NewRegistry(),
	})
	if err != nil {
		log.Fatalf("Failed to start worker: %v", err)
	}
	defer worker.Close()

	fmt.Printf("Shulou Worker\n")
	fmt.Printf("=============\n\n")
	fmt.Printf("  Tasks:   %s\n", *taskAddr)
	fmt.Printf("  Results: %s\n", *resultAddr)
	fmt.Printf("  Engine:  %s\n\n", engine.Name())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Worker failed: %v", err)
	}

	fmt.Printf("\nShutting down...\n")
}
