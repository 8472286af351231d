// File: internal/service/components.go
package service

import (
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/xkilldash9x/goalpilot/internal/config"
	"github.com/xkilldash9x/goalpilot/internal/engine"
	"github.com/xkilldash9x/goalpilot/internal/executor"
	"github.com/xkilldash9x/goalpilot/internal/observability"
	"github.com/xkilldash9x/goalpilot/internal/planner"
	"github.com/xkilldash9x/goalpilot/internal/retry"
	"github.com/xkilldash9x/goalpilot/internal/sandbox"
	"github.com/xkilldash9x/goalpilot/internal/session"
	"github.com/xkilldash9x/goalpilot/internal/store"
)

// consumerShutdownTimeout bounds how long Shutdown waits for queued runs to be persisted.
const consumerShutdownTimeout = 30 * time.Second

// Components holds the process-wide services goal executions share: heuristics, the
// planner, the retry coordinator with its histories, metrics, sessions and persistence.
// Per-goal state lives in an Execution.
type Components struct {
	Config      config.Interface
	Logger      *zap.Logger
	Registry    *prometheus.Registry
	Metrics     *observability.Metrics
	Heuristics  Heuristics
	Planner     *planner.Planner
	Coordinator *retry.Coordinator
	History     *engine.History
	Sessions    *session.Manager
	Store       *store.Store
	DBPool      *pgxpool.Pool

	// runs decouples run recording from persistence.
	runs *RunQueue

	// consumerWG is used to ensure the run consumer has finished draining the queue.
	consumerWG *sync.WaitGroup

	shutdownOnce sync.Once
}

// Execution is the browser and engine serving exactly one goal.
type Execution struct {
	Browser *sandbox.Browser
	Engine  *engine.Engine
}

// Recorder returns the engine.Recorder runs are persisted through, or nil when
// persistence is disabled.
func (c *Components) Recorder() engine.Recorder {
	if c.runs == nil {
		return nil
	}
	return c.runs
}

// NewExecution builds a fresh sandbox page, executor loop and engine for one goal. Everything
// that outlives the goal (history, coordinator, recorder, metrics) is shared from c.
func (c *Components) NewExecution(opts ...sandbox.Option) (*Execution, error) {
	if c.Planner == nil || c.Coordinator == nil {
		return nil, errors.New("components are not initialized")
	}
	logger := c.Logger
	if logger == nil {
		logger = observability.GetLogger()
	}

	cfg := c.Config
	browserOpts := []sandbox.Option{sandbox.WithLatency(cfg.Sandbox().Latency)}
	browser, err := sandbox.New(logger, append(browserOpts, opts...)...)
	if err != nil {
		return nil, err
	}
	loop := executor.NewLoop(logger, c.Planner, browser, c.Coordinator, cfg.Executor())

	engineOpts := []engine.Option{
		engine.WithInterpreter(c.Heuristics.Interpreter),
		engine.WithDecomposer(c.Heuristics.Decomposer),
		engine.WithCriticalKeywords(c.Heuristics.Critical),
		engine.WithHistory(c.History),
		engine.WithMetrics(c.Metrics),
	}
	if rec := c.Recorder(); rec != nil {
		engineOpts = append(engineOpts, engine.WithRecorder(rec))
	}
	eng, err := engine.New(cfg.Engine(), logger, loop, engineOpts...)
	if err != nil {
		return nil, err
	}
	return &Execution{Browser: browser, Engine: eng}, nil
}

// Shutdown gracefully closes all components, ensuring resources are released in the correct order.
func (c *Components) Shutdown() {
	c.shutdownOnce.Do(c.shutdown)
}

func (c *Components) shutdown() {
	logger := c.Logger
	if logger == nil {
		logger = observability.GetLogger()
	}
	logger.Debug("Beginning components shutdown sequence.")

	// 1. Close the run queue. This signals the consumer to drain and stop.
	if c.runs != nil {
		c.runs.Close()
		logger.Debug("Run queue closed.")
	}

	// 2. Wait for the consumer to finish persisting the drained queue.
	if c.consumerWG != nil {
		if timedWait(c.consumerWG, consumerShutdownTimeout) {
			logger.Debug("Run consumer finished processing.")
		} else {
			logger.Warn("Timed out waiting for the run consumer; queued runs may be lost.")
		}
	}

	// 3. Close the database connection pool.
	if c.DBPool != nil {
		c.DBPool.Close()
		logger.Debug("Database connection pool closed.")
	}

	logger.Info("All components shut down successfully.")
}

// timedWait waits for wg and reports whether it finished within timeout.
func timedWait(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
