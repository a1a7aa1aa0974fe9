package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pull"
	"go.nanomsg.org/mangos/v3/protocol/push"

	// Register all transports
	_ "go.nanomsg.org/mangos/v3/transport/all"

	"github.com/dd0wney/shulou/pkg/detect"
	"github.com/dd0wney/shulou/pkg/graph"
	"github.com/dd0wney/shulou/pkg/logging"
	"github.com/dd0wney/shulou/pkg/metrics"
	"github.com/dd0wney/shulou/pkg/restart"
)

// pollInterval bounds each blocking receive so the worker notices a
// cancelled context reasonably quickly.
const pollInterval = 500 * time.Millisecond

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	// TaskAddr is the coordinator's task socket address to dial.
	TaskAddr string

	// ResultAddr is the coordinator's result socket address to dial.
	ResultAddr string

	// Engine runs the detection for each received trial.
	Engine detect.Engine

	Logger  logging.Logger
	Metrics *metrics.Registry
}

// Worker pulls trial tasks from a coordinator, runs them with a local
// engine and pushes results back. Workers hold no state between tasks.
type Worker struct {
	cfg    WorkerConfig
	tasks  mangos.Socket
	result mangos.Socket
	logger logging.Logger
}

// NewWorker dials the coordinator's sockets.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Engine == nil {
		return nil, restart.ErrNilEngine
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop{}
	}

	tasks, err := pull.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("failed to create task socket: %w", err)
	}
	if err := tasks.Dial(cfg.TaskAddr); err != nil {
		tasks.Close()
		return nil, fmt.Errorf("failed to dial task socket %s: %w", cfg.TaskAddr, err)
	}

	result, err := push.NewSocket()
	if err != nil {
		tasks.Close()
		return nil, fmt.Errorf("failed to create result socket: %w", err)
	}
	if err := result.Dial(cfg.ResultAddr); err != nil {
		tasks.Close()
		result.Close()
		return nil, fmt.Errorf("failed to dial result socket %s: %w", cfg.ResultAddr, err)
	}

	logger := cfg.Logger.With(logging.Component("worker"), logging.Engine(cfg.Engine.Name()))
	logger.Info("worker connected",
		logging.String("task_addr", cfg.TaskAddr),
		logging.String("result_addr", cfg.ResultAddr),
	)

	return &Worker{cfg: cfg, tasks: tasks, result: result, logger: logger}, nil
}

// Close shuts both sockets down.
func (w *Worker) Close() error {
	err := w.tasks.Close()
	if cerr := w.result.Close(); err == nil {
		err = cerr
	}
	return err
}

// Run processes tasks until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.tasks.SetOption(mangos.OptionRecvDeadline, pollInterval); err != nil {
		return fmt.Errorf("failed to set receive deadline: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			w.logger.Info("worker stopping")
			return err
		}

		data, err := w.tasks.Recv()
		if err != nil {
			if errors.Is(err, mangos.ErrRecvTimeout) {
				continue
			}
			if errors.Is(err, mangos.ErrClosed) {
				return nil
			}
			return fmt.Errorf("failed to receive task: %w", err)
		}
		w.record("received", "ok", len(data))

		if err := w.handleTask(ctx, data); err != nil {
			return err
		}
	}
}

// handleTask decodes and executes one task frame, pushing either a
// result or an error frame back.
func (w *Worker) handleTask(ctx context.Context, data []byte) error {
	frameType, payload, err := decodeFrame(data)
	if err != nil {
		// A corrupt frame has no run id to report back to; log and
		// keep serving.
		w.logger.Error("dropping corrupt task frame", logging.Error(err))
		return nil
	}
	if frameType != frameTask {
		w.logger.Error("dropping unexpected frame",
			logging.Int("frame_type", int(frameType)))
		return nil
	}

	task, err := decodeTask(payload)
	if err != nil {
		w.logger.Error("dropping undecodable task", logging.Error(err))
		return nil
	}

	started := time.Now()
	res, err := w.runTask(ctx, task)
	elapsed := time.Since(started)

	if err != nil {
		w.logger.Error("trial failed",
			logging.Trial(int(task.Trial)),
			logging.Error(err),
		)
		if w.cfg.Metrics != nil {
			w.cfg.Metrics.RecordTrial("error", elapsed)
		}
		frame := errorFrame{RunID: task.RunID, Trial: task.Trial, Message: err.Error()}
		return w.send(frame.encode())
	}

	w.logger.Debug("trial complete",
		logging.Trial(int(task.Trial)),
		logging.Modularity(res.Modularity),
		logging.Latency(elapsed),
	)
	if w.cfg.Metrics != nil {
		w.cfg.Metrics.RecordTrial("ok", elapsed)
	}

	frame := resultFrame{
		RunID:      task.RunID,
		Trial:      task.Trial,
		Modularity: res.Modularity,
		Membership: res.Membership,
	}
	return w.send(frame.encode())
}

// runTask rebuilds the graph from the frame and runs the trial.
func (w *Worker) runTask(ctx context.Context, task taskFrame) (detect.Result, error) {
	g, err := graph.New(int(task.NodeCount), task.Edges)
	if err != nil {
		return detect.Result{}, err
	}

	if task.Canonical {
		return restart.Canonical(ctx, g, w.cfg.Engine)
	}
	return restart.Trial(ctx, g, w.cfg.Engine, task.Seed)
}

func (w *Worker) send(data []byte) error {
	if err := w.result.Send(data); err != nil {
		w.record("sent", "error", 0)
		return fmt.Errorf("failed to send result: %w", err)
	}
	w.record("sent", "ok", len(data))
	return nil
}

func (w *Worker) record(direction, status string, bytes int) {
	if w.cfg.Metrics != nil {
		w.cfg.Metrics.RecordRemoteFrame(direction, status, bytes)
	}
}
