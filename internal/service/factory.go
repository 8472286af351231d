// File: internal/service/factory.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/xkilldash9x/goalpilot/internal/config"
	"github.com/xkilldash9x/goalpilot/internal/engine"
	"github.com/xkilldash9x/goalpilot/internal/observability"
	"github.com/xkilldash9x/goalpilot/internal/planner"
	"github.com/xkilldash9x/goalpilot/internal/recovery"
	"github.com/xkilldash9x/goalpilot/internal/retry"
	"github.com/xkilldash9x/goalpilot/internal/session"
	"github.com/xkilldash9x/goalpilot/internal/store"
)

// ComponentFactory defines the interface for creating the shared components.
// This abstraction is what makes the commands testable without a database.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error)
}

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct{}

// NewComponentFactory creates a new production-ready component factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

// Create handles the full dependency injection and initialization of the components.
// Persistence is only wired when a database URL is configured.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	components := &Components{
		Config:     cfg,
		Logger:     logger,
		consumerWG: &sync.WaitGroup{},
	}

	// Ensure cleanup happens if initialization fails midway.
	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	components.Registry = registry
	components.Metrics = observability.NewMetrics(registry)

	// 2. Heuristics
	heuristics, err := InitializeHeuristics(cfg.Rules().File, logger)
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	components.Heuristics = heuristics
	logger.Debug("Heuristics initialized.")

	// 3. Recovery and retry
	retryCfg := cfg.Retry()
	policy := recovery.NewPolicy(
		recovery.WithScrollAmount(retryCfg.ScrollAmount),
		recovery.WithWaitDuration(retryCfg.WaitDuration),
		recovery.WithTimeoutScale(retryCfg.TimeoutScale),
	)
	components.Coordinator = retry.NewCoordinator(logger, heuristics.Classifier, policy,
		retry.WithMaxRetries(retryCfg.MaxRetries),
		retry.WithSettleDelay(retryCfg.SettleDelay),
		retry.WithHistory(retry.NewHistory(retryCfg.HistoryLimit)),
		retry.WithErrorHistory(recovery.NewHistory(retryCfg.ErrorHistoryLimit)),
		retry.WithMetrics(components.Metrics),
	)
	logger.Debug("Retry coordinator initialized.")

	// 4. Planner
	p, err := planner.New(logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize planner: %w", err)
		return nil, initializationErr
	}
	components.Planner = p

	// 5. Execution history
	components.History = engine.NewHistory(cfg.Engine().HistoryLimit)

	// 6. Sessions
	sessions, err := session.NewManager(cfg.Session().Dir, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize session manager: %w", err)
		return nil, initializationErr
	}
	components.Sessions = sessions
	if maxAge := cfg.Session().MaxAge; maxAge > 0 {
		if _, err := sessions.Cleanup(maxAge); err != nil {
			logger.Warn("Failed to clean up expired sessions.", zap.Error(err))
		}
	}
	logger.Debug("Session manager initialized.", zap.String("dir", sessions.Dir()))

	// 7. Database, store and run consumer
	if cfg.Database().URL == "" {
		logger.Info("No database configured (hint: set GOALPILOT_DATABASE_URL); runs will not be persisted.")
		logger.Info("All components initialized successfully.")
		return components, nil
	}

	dbPool, err := InitializeDBPool(ctx, cfg.Database().URL, logger)
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	// Add to components immediately so the deferred Shutdown can close it if later steps fail.
	components.DBPool = dbPool

	dbStore, err := store.New(ctx, dbPool, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize database store: %w", err)
		return nil, initializationErr
	}
	if err := dbStore.EnsureSchema(ctx); err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	components.Store = dbStore
	logger.Debug("Store service initialized.")

	components.runs = NewRunQueue(runQueueSize)
	StartRunConsumer(ctx, components.consumerWG, components.runs.Runs(), dbStore, logger)
	logger.Debug("Run consumer started (with batching).")

	logger.Info("All components initialized successfully.")
	return components, nil
}
