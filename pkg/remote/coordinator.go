package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
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

var (
	// ErrWorkerTimeout is returned when no result arrives within the
	// configured window, typically because every worker died.
	ErrWorkerTimeout = errors.New("timed out waiting for worker results")

	// ErrRemoteTrial wraps a failure reported by a remote worker.
	ErrRemoteTrial = errors.New("remote trial failed")
)

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	// TaskAddr is the listen address for the PUSH socket workers pull
	// tasks from.
	TaskAddr string

	// ResultAddr is the listen address for the PULL socket workers push
	// results to.
	ResultAddr string

	// Timeout bounds the wait for each result frame.
	Timeout time.Duration

	Logger  logging.Logger
	Metrics *metrics.Registry
}

// Coordinator distributes trials to remote workers and reduces their
// results to the best partition.
type Coordinator struct {
	cfg    CoordinatorConfig
	tasks  mangos.Socket
	result mangos.Socket
	logger logging.Logger
}

// NewCoordinator binds the task and result sockets.
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop{}
	}

	tasks, err := push.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("failed to create task socket: %w", err)
	}
	if err := tasks.Listen(cfg.TaskAddr); err != nil {
		tasks.Close()
		return nil, fmt.Errorf("failed to bind task socket to %s: %w", cfg.TaskAddr, err)
	}
	// Push blocks forever with no pullers attached; a deadline turns an
	// empty fleet into an error instead of a hang.
	if err := tasks.SetOption(mangos.OptionSendDeadline, cfg.Timeout); err != nil {
		tasks.Close()
		return nil, fmt.Errorf("failed to set send deadline: %w", err)
	}

	result, err := pull.NewSocket()
	if err != nil {
		tasks.Close()
		return nil, fmt.Errorf("failed to create result socket: %w", err)
	}
	if err := result.Listen(cfg.ResultAddr); err != nil {
		tasks.Close()
		result.Close()
		return nil, fmt.Errorf("failed to bind result socket to %s: %w", cfg.ResultAddr, err)
	}

	logger := cfg.Logger.With(logging.Component("coordinator"))
	logger.Info("coordinator listening",
		logging.String("task_addr", cfg.TaskAddr),
		logging.String("result_addr", cfg.ResultAddr),
	)

	return &Coordinator{cfg: cfg, tasks: tasks, result: result, logger: logger}, nil
}

// Close shuts both sockets down.
func (c *Coordinator) Close() error {
	err := c.tasks.Close()
	if cerr := c.result.Close(); err == nil {
		err = cerr
	}
	return err
}

// Run distributes the canonical trial plus `trials` shuffled trials and
// returns the best result. Worker failures and silent workers surface
// as errors instead of hanging the reduction.
func (c *Coordinator) Run(ctx context.Context, g *graph.Graph, trials int, seed int64) (detect.Result, error) {
	if g == nil {
		return detect.Result{}, fmt.Errorf("%w: graph is nil", graph.ErrInvalidGraph)
	}
	if trials < 0 {
		return detect.Result{}, fmt.Errorf("%w: got %d", restart.ErrNegativeTrials, trials)
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	runID := uuid.New()
	logger := c.logger.With(logging.RunID(runID.String()))
	logger.Info("distributing trials",
		logging.Trials(trials),
		logging.Nodes(g.NodeCount()),
		logging.EdgesCount(g.EdgeCount()),
	)

	edges := g.Edges()
	for trial := 0; trial <= trials; trial++ {
		if err := ctx.Err(); err != nil {
			return detect.Result{}, err
		}

		frame := taskFrame{
			RunID:     runID,
			Trial:     uint32(trial),
			Seed:      restart.TrialSeed(seed, trial),
			Canonical: trial == 0,
			NodeCount: uint32(g.NodeCount()),
			Edges:     edges,
		}
		data := frame.encode()
		if err := c.tasks.Send(data); err != nil {
			c.record("sent", "error", 0)
			if errors.Is(err, mangos.ErrSendTimeout) {
				return detect.Result{}, fmt.Errorf("%w: no worker accepted task %d", ErrWorkerTimeout, trial)
			}
			return detect.Result{}, fmt.Errorf("failed to send task %d: %w", trial, err)
		}
		c.record("sent", "ok", len(data))
	}

	return c.reduce(ctx, g, runID, trials, logger)
}

// reduce collects one result per distributed trial, keeping the best.
func (c *Coordinator) reduce(ctx context.Context, g *graph.Graph, runID uuid.UUID,
	trials int, logger logging.Logger) (detect.Result, error) {

	if err := c.result.SetOption(mangos.OptionRecvDeadline, c.cfg.Timeout); err != nil {
		return detect.Result{}, fmt.Errorf("failed to set receive deadline: %w", err)
	}

	var best detect.Result
	seeded := false

	for received := 0; received <= trials; {
		if err := ctx.Err(); err != nil {
			return detect.Result{}, err
		}

		data, err := c.result.Recv()
		if err != nil {
			c.record("received", "error", 0)
			if errors.Is(err, mangos.ErrRecvTimeout) {
				return detect.Result{}, fmt.Errorf("%w: after %v", ErrWorkerTimeout, c.cfg.Timeout)
			}
			return detect.Result{}, fmt.Errorf("failed to receive result: %w", err)
		}

		frameType, payload, err := decodeFrame(data)
		if err != nil {
			c.record("received", "error", len(data))
			return detect.Result{}, err
		}

		switch frameType {
		case frameResult:
			frame, err := decodeResult(payload)
			if err != nil {
				c.record("received", "error", len(data))
				return detect.Result{}, err
			}
			if frame.RunID != runID {
				logger.Warn("dropping stale result frame", logging.Trial(int(frame.Trial)))
				continue
			}
			if len(frame.Membership) != g.NodeCount() {
				c.record("received", "error", len(data))
				return detect.Result{}, fmt.Errorf("%w: trial %d membership length %d != %d",
					ErrRemoteTrial, frame.Trial, len(frame.Membership), g.NodeCount())
			}
			c.record("received", "ok", len(data))
			received++

			res := detect.Result{Membership: frame.Membership, Modularity: frame.Modularity}
			if !seeded || res.Modularity > best.Modularity {
				best = res
				seeded = true
				logger.Debug("best improved",
					logging.Trial(int(frame.Trial)),
					logging.Modularity(best.Modularity),
				)
				if c.cfg.Metrics != nil {
					c.cfg.Metrics.RecordImprovement(best.Modularity)
				}
			}

		case frameError:
			frame, err := decodeError(payload)
			if err != nil {
				c.record("received", "error", len(data))
				return detect.Result{}, err
			}
			if frame.RunID != runID {
				continue
			}
			c.record("received", "ok", len(data))
			return detect.Result{}, fmt.Errorf("%w: trial %d: %s", ErrRemoteTrial, frame.Trial, frame.Message)

		default:
			c.record("received", "error", len(data))
			return detect.Result{}, fmt.Errorf("%w: unexpected frame type 0x%02x", ErrBadFrame, frameType)
		}
	}

	logger.Info("reduction complete", logging.Modularity(best.Modularity))
	return best, nil
}

func (c *Coordinator) record(direction, status string, bytes int) {
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.RecordRemoteFrame(direction, status, bytes)
	}
}
