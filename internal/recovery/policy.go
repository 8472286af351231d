package recovery

import (
	"fmt"
	"time"

	"github.com/xkilldash9x/goalpilot/internal/action"
)

// Strategy is the recovery decision for a classified failure.
type Strategy string

const (
	StrategyFallbackSelector      Strategy = "fallback_selector"
	StrategyScrollAndRetry        Strategy = "scroll_and_retry"
	StrategyWaitAndRetry          Strategy = "wait_and_retry"
	StrategyRetryWithAlternatives Strategy = "retry_with_alternatives"
	StrategyReplan                Strategy = "replan"
)

// DefaultStrategies maps each kind to its strategy. element_not_found is attempt-sensitive
// and handled separately by Policy.Strategy.
func DefaultStrategies() map[ErrorKind]Strategy {
	return map[ErrorKind]Strategy{
		KindElementNotVisible: StrategyScrollAndRetry,
		KindElementDisabled:   StrategyReplan,
		KindTimeout:           StrategyWaitAndRetry,
		KindPageNotLoaded:     StrategyWaitAndRetry,
		KindNetworkError:      StrategyWaitAndRetry,
		KindSelectorInvalid:   StrategyFallbackSelector,
		KindUnknown:           StrategyRetryWithAlternatives,
	}
}

// Correction is what the policy asks the coordinator to do before the next attempt.
// It is one of Replace, Prefix or Replan.
type Correction interface {
	isCorrection()
}

// Replace makes Action the next attempt's action.
type Replace struct {
	Action action.Action
}

// Prefix runs Prefix first. If it succeeds the original action is retried with a scaled
// timeout; otherwise Then is retried as-is.
type Prefix struct {
	Prefix action.Action
	Then   action.Action
}

// Replan stops retrying: the action itself needs to be reconsidered upstream.
type Replan struct {
	Reason string
}

func (Replace) isCorrection() {}
func (Prefix) isCorrection()  {}
func (Replan) isCorrection()  {}

// Policy maps (error kind, attempt) to a strategy and synthesizes the corrected action.
type Policy struct {
	strategies   map[ErrorKind]Strategy
	catalog      *Catalog
	scrollAmount int
	waitDuration time.Duration
	timeoutScale float64
}

// PolicyOption configures a Policy.
type PolicyOption func(*Policy)

func WithStrategies(s map[ErrorKind]Strategy) PolicyOption {
	return func(p *Policy) { p.strategies = s }
}

func WithCatalog(c *Catalog) PolicyOption {
	return func(p *Policy) { p.catalog = c }
}

func WithScrollAmount(px int) PolicyOption {
	return func(p *Policy) { p.scrollAmount = px }
}

func WithWaitDuration(d time.Duration) PolicyOption {
	return func(p *Policy) { p.waitDuration = d }
}

func WithTimeoutScale(f float64) PolicyOption {
	return func(p *Policy) { p.timeoutScale = f }
}

// NewPolicy returns a policy with the built-in tables unless overridden.
func NewPolicy(opts ...PolicyOption) *Policy {
	p := &Policy{
		strategies:   DefaultStrategies(),
		catalog:      NewCatalog(nil),
		scrollAmount: action.DefaultScrollAmount,
		waitDuration: 2 * time.Second,
		timeoutScale: 1.5,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// TimeoutScale is the factor applied when an action is retried with more time.
func (p *Policy) TimeoutScale() float64 { return p.timeoutScale }

// Catalog returns the alternative selector catalog.
func (p *Policy) Catalog() *Catalog { return p.catalog }

// Strategy selects the recovery strategy. attempt is the zero-based index of the failed attempt.
func (p *Policy) Strategy(kind ErrorKind, attempt, maxRetries int, a action.Action) Strategy {
	// The retry coordinator stops before correcting its final attempt, so this only serves
	// callers that drive the policy directly.
	if attempt >= maxRetries {
		return StrategyReplan
	}
	if kind == KindElementNotFound {
		switch {
		case attempt == 0 && p.catalog.HasAlternatives(a):
			return StrategyFallbackSelector
		case attempt <= 1:
			return StrategyScrollAndRetry
		case attempt == 2:
			return StrategyWaitAndRetry
		default:
			return StrategyReplan
		}
	}
	if s, ok := p.strategies[kind]; ok {
		return s
	}
	return StrategyRetryWithAlternatives
}

// Correct picks a strategy and builds the matching correction. a is never modified.
func (p *Policy) Correct(kind ErrorKind, attempt, maxRetries int, a action.Action) (Strategy, Correction) {
	strategy := p.Strategy(kind, attempt, maxRetries, a)
	reason := fmt.Sprintf("%s after %s on attempt %d", strategy, kind, attempt+1)

	switch strategy {
	case StrategyFallbackSelector:
		alts := p.catalog.Alternatives(a)
		if len(alts) == 0 {
			// Nothing to fall back to; give the same selector more time instead.
			next := a.WithScaledTimeout(p.timeoutScale)
			next.RecoveryReason = reason + " (no alternatives)"
			return strategy, Replace{Action: next}
		}
		next := a.Clone()
		next.OriginalSelector = a.Selector
		if a.OriginalSelector != "" {
			next.OriginalSelector = a.OriginalSelector
		}
		next.Selector = alts[0]
		next.Strategy = action.StrategyCSS
		next.Alternatives = alts[1:]
		next.RecoveryReason = reason
		return strategy, Replace{Action: next}

	case StrategyScrollAndRetry:
		then := a.Clone()
		then.RecoveryReason = reason
		return strategy, Prefix{Prefix: action.Scroll(action.DirectionDown, p.scrollAmount), Then: then}

	case StrategyWaitAndRetry:
		then := a.Clone()
		then.RecoveryReason = reason
		return strategy, Prefix{Prefix: action.Wait(p.waitDuration), Then: then}

	case StrategyRetryWithAlternatives:
		next := a.WithScaledTimeout(p.timeoutScale)
		next.RecoveryReason = reason
		return strategy, Replace{Action: next}

	default:
		return StrategyReplan, Replan{Reason: reason}
	}
}

// ShouldAbort short-circuits retrying before a correction is generated. failures counts
// the failed attempts so far, starting at 1.
func ShouldAbort(kind ErrorKind, failures, maxRetries int) bool {
	switch kind {
	case KindElementDisabled, KindSelectorInvalid:
		return failures >= maxRetries
	case KindNetworkError:
		return failures >= 2
	default:
		return false
	}
}
