package retry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/goalpilot/internal/action"
	"github.com/xkilldash9x/goalpilot/internal/observability"
	"github.com/xkilldash9x/goalpilot/internal/recovery"
)

// ExecuteFunc performs one action and reports its outcome. It must not panic on
// ordinary failures; errors belong in the outcome.
type ExecuteFunc func(ctx context.Context, a action.Action) action.Outcome

// Coordinator runs an action with bounded retries, consulting the recovery policy
// between attempts.
type Coordinator struct {
	logger      *zap.Logger
	classifier  *recovery.Classifier
	policy      *recovery.Policy
	errors      *recovery.History
	history     *History
	metrics     *observability.Metrics
	maxRetries  int
	settleDelay time.Duration
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMaxRetries sets the budget used for actions that carry none of their own.
func WithMaxRetries(n int) Option {
	return func(c *Coordinator) { c.maxRetries = n }
}

// WithSettleDelay pauses after a successful scroll or wait prefix before retrying.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Coordinator) { c.settleDelay = d }
}

func WithHistory(h *History) Option {
	return func(c *Coordinator) { c.history = h }
}

func WithErrorHistory(h *recovery.History) Option {
	return func(c *Coordinator) { c.errors = h }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// NewCoordinator builds a coordinator. Nil classifier or policy select the defaults.
func NewCoordinator(logger *zap.Logger, classifier *recovery.Classifier, policy *recovery.Policy, opts ...Option) *Coordinator {
	if classifier == nil {
		classifier = recovery.NewClassifier(recovery.DefaultClassifierRules())
	}
	if policy == nil {
		policy = recovery.NewPolicy()
	}
	c := &Coordinator{
		logger:     logger.Named("retry"),
		classifier: classifier,
		policy:     policy,
		maxRetries: action.DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.history == nil {
		c.history = NewHistory(DefaultHistoryLimit)
	}
	if c.errors == nil {
		c.errors = recovery.NewHistory(0)
	}
	return c
}

// History returns the retry log.
func (c *Coordinator) History() *History { return c.history }

// ErrorHistory returns the classified error log.
func (c *Coordinator) ErrorHistory() *recovery.History { return c.errors }

// ExecuteWithRetry executes a, retrying failures up to the action's retry budget.
// The caller's action is never modified.
func (c *Coordinator) ExecuteWithRetry(ctx context.Context, a action.Action, exec ExecuteFunc) Result {
	start := time.Now()
	maxRetries := a.Retries(c.maxRetries)
	original := a.Clone()
	current := a.Clone()

	var (
		last     action.Outcome
		lastKind recovery.ErrorKind
		attempts int
	)

	for attempts < maxRetries {
		last = exec(ctx, current)
		attempts++
		c.metrics.ObserveAttempt(string(current.Kind), last.OK)

		if last.OK {
			if attempts > 1 {
				c.logger.Info("Action succeeded after retry",
					zap.String("kind", string(current.Kind)),
					zap.Int("attempts", attempts))
			}
			return c.finish(start, Success{Outcome: last, Action: current, AttemptCount: attempts})
		}

		lastKind = c.classifier.Classify(last.Error)
		log := c.logger.With(
			zap.String("kind", string(current.Kind)),
			zap.String("selector", current.Selector),
			zap.String("error_kind", string(lastKind)),
			zap.Int("attempt", attempts),
			zap.Int("max_retries", maxRetries),
		)

		if recovery.ShouldAbort(lastKind, attempts, maxRetries) {
			c.errors.Record(recovery.ErrorRecord{Kind: lastKind, Message: last.Error, Attempt: attempts - 1, ActionKind: current.Kind})
			log.Warn("Aborting retries", zap.String("error", last.Error))
			return c.finish(start, Exhausted{
				Action: current, LastError: last.Error, Kind: lastKind,
				Aborted: true, LastOutcome: last, AttemptCount: attempts,
			})
		}

		// The final attempt gets no correction; its failure ends the loop.
		if attempts >= maxRetries {
			c.errors.Record(recovery.ErrorRecord{Kind: lastKind, Message: last.Error, Attempt: attempts - 1, ActionKind: current.Kind})
			break
		}

		strategy, correction := c.policy.Correct(lastKind, attempts-1, maxRetries, current)
		c.errors.Record(recovery.ErrorRecord{
			Kind: lastKind, Message: last.Error, Strategy: strategy, Attempt: attempts - 1, ActionKind: current.Kind,
		})
		c.metrics.ObserveRecovery(string(lastKind), string(strategy))
		log.Warn("Action failed, applying recovery", zap.String("strategy", string(strategy)), zap.String("error", last.Error))

		switch corr := correction.(type) {
		case recovery.Replan:
			return c.finish(start, ReplanRequired{
				Action: original, LastError: last.Error, Kind: lastKind,
				Reason: corr.Reason, AttemptCount: attempts,
			})
		case recovery.Replace:
			current = corr.Action
		case recovery.Prefix:
			pre := exec(ctx, corr.Prefix)
			c.metrics.ObserveAttempt(string(corr.Prefix.Kind), pre.OK)
			if pre.OK {
				current = original.WithScaledTimeout(c.policy.TimeoutScale())
				current.RecoveryReason = corr.Then.RecoveryReason
				if err := c.settle(ctx); err != nil {
					return c.cancelled(start, current, err, attempts, last)
				}
			} else {
				log.Debug("Recovery prefix failed, retrying corrected action", zap.String("prefix_error", pre.Error))
				current = corr.Then
			}
		}

		if err := ctx.Err(); err != nil {
			return c.cancelled(start, current, err, attempts, last)
		}
	}

	c.logger.Warn("Retries exhausted",
		zap.String("kind", string(current.Kind)),
		zap.String("error_kind", string(lastKind)),
		zap.Int("attempts", attempts))
	return c.finish(start, Exhausted{
		Action: current, LastError: last.Error, Kind: lastKind,
		LastOutcome: last, AttemptCount: attempts,
	})
}

func (c *Coordinator) settle(ctx context.Context) error {
	if c.settleDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(c.settleDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Coordinator) cancelled(start time.Time, a action.Action, err error, attempts int, last action.Outcome) Result {
	return c.finish(start, Exhausted{
		Action: a, LastError: err.Error(), Kind: recovery.KindTimeout,
		Aborted: true, LastOutcome: last, AttemptCount: attempts,
	})
}

func (c *Coordinator) finish(start time.Time, r Result) Result {
	rec := Record{
		Outcome:   Label(r),
		Attempts:  r.Attempts(),
		Duration:  time.Since(start),
		Timestamp: time.Now(),
	}
	switch v := r.(type) {
	case Success:
		rec.ActionKind, rec.Selector, rec.Success = v.Action.Kind, v.Action.Selector, true
	case ReplanRequired:
		rec.ActionKind, rec.Selector, rec.FinalError = v.Action.Kind, v.Action.Selector, v.LastError
	case Exhausted:
		rec.ActionKind, rec.Selector, rec.FinalError = v.Action.Kind, v.Action.Selector, v.LastError
	}
	c.history.Append(rec)
	c.metrics.ObserveRetryOutcome(rec.Outcome)
	return r
}
