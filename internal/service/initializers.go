// File: internal/service/initializers.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/goalpilot/internal/engine"
	"github.com/xkilldash9x/goalpilot/internal/goal"
	"github.com/xkilldash9x/goalpilot/internal/recovery"
	"github.com/xkilldash9x/goalpilot/internal/rules"
)

// ErrRecorderClosed is returned by RunQueue.RecordRun after Close.
var ErrRecorderClosed = errors.New("run recorder is closed")

// Batching parameters of the run consumer.
const (
	runBatchSize    = 50
	runBatchTimeout = 2 * time.Second
	runQueueSize    = 1024
	persistTimeout  = 30 * time.Second
)

// Heuristics are the keyword tables the engine and the retry coordinator run on: the
// built-in defaults, overridden table by table by an optional rule book.
type Heuristics struct {
	Classifier  *recovery.Classifier
	Interpreter *goal.Interpreter
	Decomposer  *goal.Decomposer
	Critical    []string
}

// InitializeHeuristics loads the rule book at path, if any, and builds the tables from it.
func InitializeHeuristics(path string, logger *zap.Logger) (Heuristics, error) {
	book := &rules.Book{}
	if path != "" {
		loaded, err := rules.Load(path)
		if err != nil {
			return Heuristics{}, fmt.Errorf("failed to load rule book: %w", err)
		}
		book = loaded
		logger.Info("Rule book loaded.", zap.String("path", path))
	}

	var errorKinds rules.Table[recovery.ErrorKind]
	if book.ErrorKinds != nil {
		errorKinds = rules.Convert[recovery.ErrorKind](*book.ErrorKinds)
	}
	var interpreterOpts []goal.InterpreterOption
	if book.Domains != nil {
		interpreterOpts = append(interpreterOpts, goal.WithDomainRules(*book.Domains))
	}
	var criteria rules.Table[string]
	if book.SubgoalCriteria != nil {
		criteria = *book.SubgoalCriteria
	}

	return Heuristics{
		Classifier:  recovery.NewClassifier(errorKinds),
		Interpreter: goal.NewInterpreter(interpreterOpts...),
		Decomposer:  goal.NewDecomposer(criteria),
		Critical:    book.CriticalSubgoals,
	}, nil
}

// InitializeDBPool opens a pgx pool with the standard pool settings and verifies it.
func InitializeDBPool(ctx context.Context, dbURL string, logger *zap.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse PGX pool config: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create PGX connection pool: %w", err)
	}

	// Ensure the connection is valid before proceeding.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}
	logger.Info("PostgreSQL connection pool initialized.",
		zap.String("host", poolConfig.ConnConfig.Host), zap.String("database", poolConfig.ConnConfig.Database))
	return pool, nil
}

// RunQueue is an engine.Recorder that hands run records to a background consumer
// instead of writing them on the request path.
type RunQueue struct {
	mu     sync.RWMutex
	ch     chan engine.RunRecord
	closed bool
}

// NewRunQueue creates a queue buffering up to size records.
func NewRunQueue(size int) *RunQueue {
	if size <= 0 {
		size = runQueueSize
	}
	return &RunQueue{ch: make(chan engine.RunRecord, size)}
}

// RecordRun enqueues run. It never blocks: a full queue drops the record with an error.
func (q *RunQueue) RecordRun(_ context.Context, run engine.RunRecord) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrRecorderClosed
	}
	select {
	case q.ch <- run:
		return nil
	default:
		return fmt.Errorf("run queue full, dropping run %s", run.GoalID)
	}
}

// Runs is the consumer side of the queue.
func (q *RunQueue) Runs() <-chan engine.RunRecord { return q.ch }

// Close stops accepting records and lets the consumer drain. Safe to call twice.
func (q *RunQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// RunSink persists batches of run records. *store.Store satisfies it.
type RunSink interface {
	RecordRuns(ctx context.Context, runs []engine.RunRecord) error
}

// StartRunConsumer launches a goroutine that reads from runs and persists them using batching.
// It manages its lifecycle using the provided WaitGroup.
func StartRunConsumer(ctx context.Context, wg *sync.WaitGroup, runs <-chan engine.RunRecord, sink RunSink, logger *zap.Logger) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("Starting run consumer goroutine (with batching)...")
		defer logger.Info("Run consumer goroutine shut down.")

		batch := make([]engine.RunRecord, 0, runBatchSize)
		ticker := time.NewTicker(runBatchTimeout)
		defer ticker.Stop()

		processBatch := func() {
			if len(batch) == 0 {
				return
			}
			logger.Debug("Persisting run batch.", zap.Int("count", len(batch)))

			// Persistence must outlive a cancelled main context during shutdown.
			persistCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
			defer cancel()

			if err := sink.RecordRuns(persistCtx, batch); err != nil {
				logger.Error("Failed to persist run batch. Data may be lost.", zap.Error(err), zap.Int("batch_size", len(batch)))
			}
			batch = batch[:0]
		}

		for {
			select {
			case run, ok := <-runs:
				if !ok {
					logger.Info("Run queue closed, processing remaining batch and shutting down.")
					processBatch()
					return
				}
				batch = append(batch, run)
				if len(batch) >= runBatchSize {
					processBatch()
					ticker.Reset(runBatchTimeout)
				}

			case <-ticker.C:
				processBatch()

			case <-ctx.Done():
				logger.Warn("Run consumer context canceled, attempting to drain queue and process remaining batch.")
				drainChannel(runs, &batch)
				processBatch()
				return
			}
		}
	}()
}

// drainChannel reads whatever is buffered in ch into batch without blocking.
func drainChannel(ch <-chan engine.RunRecord, batch *[]engine.RunRecord) {
	for {
		select {
		case run, ok := <-ch:
			if !ok {
				return
			}
			*batch = append(*batch, run)
		default:
			return
		}
	}
}
