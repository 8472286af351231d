// Package executor runs the plan, act and observe loop for a single instruction.
//
// The loop asks a Planner for the next action, runs it through the retry coordinator
// against an ActionExecutor and feeds the outcome back into the RunContext the planner
// sees on the next turn. It stops when the planner reports a terminal status, when the
// coordinator asks for a replan, or when the step or time budget runs out.
package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/goalpilot/internal/action"
	"github.com/xkilldash9x/goalpilot/internal/config"
	"github.com/xkilldash9x/goalpilot/internal/retry"
)

// PlanStatus is the planner's view of the instruction.
type PlanStatus string

const (
	PlanCompleted  PlanStatus = "completed"
	PlanError      PlanStatus = "error"
	PlanInProgress PlanStatus = "in_progress"
)

// Plan is a planner's answer for one turn. NextAction is set only when in progress.
type Plan struct {
	Status     PlanStatus     `json:"status"`
	NextAction *action.Action `json:"next_action,omitempty"`
	Message    string         `json:"message,omitempty"`
}

// Planner decides the next action for an instruction given what has happened so far.
type Planner interface {
	Plan(ctx context.Context, command string, run *RunContext) (Plan, error)
}

// ActionExecutor performs one primitive action. Failures are reported in the outcome.
type ActionExecutor interface {
	Execute(ctx context.Context, a action.Action) action.Outcome
}

// Status is how a run ended.
type Status string

const (
	StatusCompleted      Status = "completed"
	StatusError          Status = "error"
	StatusTimeout        Status = "timeout"
	StatusMaxSteps       Status = "max_steps_reached"
	StatusReplanRequired Status = "replan_required"
)

// Terminal reports whether s ends a run on the planner's or coordinator's say-so.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusReplanRequired
}

// Step records one executed action.
type Step struct {
	Action    action.Action  `json:"action"`
	Outcome   action.Outcome `json:"outcome"`
	Result    string         `json:"result"`
	Attempts  int            `json:"attempts"`
	Timestamp time.Time      `json:"timestamp"`
}

// RunContext is the mutable state of one run. It is owned by the loop for the duration
// of Run and handed to the planner on every turn.
type RunContext struct {
	Values          map[string]any
	History         []Step
	CurrentStep     int
	CurrentURL      string
	LastAction      *action.Action
	LastOutcome     *action.Outcome
	LastObservation *action.Observation

	Status       Status
	ReplanReason string
	FailedAction *action.Action
}

// NewRunContext copies values so callers can reuse their map.
func NewRunContext(values map[string]any) *RunContext {
	rc := &RunContext{Values: make(map[string]any, len(values))}
	for k, v := range values {
		rc.Values[k] = v
	}
	return rc
}

// String returns Values[key] if it is a string.
func (rc *RunContext) String(key string) string {
	s, _ := rc.Values[key].(string)
	return s
}

// Result summarizes a finished run.
type Result struct {
	Status            Status              `json:"status"`
	Message           string              `json:"message"`
	Steps             int                 `json:"steps"`
	TotalActions      int                 `json:"total_actions"`
	ErrorsEncountered int                 `json:"errors_encountered"`
	RetryAttempts     int                 `json:"retry_attempts"`
	Data              []string            `json:"data,omitempty"`
	LastOutcome       *action.Outcome     `json:"last_outcome,omitempty"`
	Observation       *action.Observation `json:"observation,omitempty"`
	ReplanReason      string              `json:"replan_reason,omitempty"`
}

// Loop executes instructions one action at a time. A Loop holds no per-run state and
// can serve concurrent runs when its collaborators can.
type Loop struct {
	logger   *zap.Logger
	planner  Planner
	exec     ActionExecutor
	retry    *retry.Coordinator
	maxSteps int
	timeout  time.Duration
}

// NewLoop wires a loop. Zero budgets in cfg select the defaults.
func NewLoop(logger *zap.Logger, planner Planner, exec ActionExecutor, coordinator *retry.Coordinator, cfg config.ExecutorConfig) *Loop {
	l := &Loop{
		logger:   logger.Named("executor"),
		planner:  planner,
		exec:     exec,
		retry:    coordinator,
		maxSteps: cfg.MaxSteps,
		timeout:  cfg.Timeout,
	}
	if l.maxSteps <= 0 {
		l.maxSteps = config.DefaultExecutorMaxSteps
	}
	if l.timeout <= 0 {
		l.timeout = config.DefaultExecutorTimeout
	}
	return l
}

// Run drives command to a stop condition. Budgets are checked at the top of every
// iteration; an action already in flight is bounded only by its own timeout.
func (l *Loop) Run(ctx context.Context, command string, rc *RunContext) Result {
	if rc == nil {
		rc = NewRunContext(nil)
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	log := l.logger.With(zap.String("command", command))
	res := Result{}

	for {
		if rc.Status.Terminal() {
			return l.finish(res, rc, rc.Status, "Run context already terminal")
		}
		if err := ctx.Err(); err != nil {
			log.Warn("Execution budget exhausted", zap.Error(err), zap.Int("step", rc.CurrentStep))
			return l.finish(res, rc, StatusTimeout, "Execution stopped: "+err.Error())
		}
		if rc.CurrentStep >= l.maxSteps {
			log.Warn("Step budget exhausted", zap.Int("max_steps", l.maxSteps))
			return l.finish(res, rc, StatusMaxSteps, "Execution stopped")
		}

		plan, err := l.planner.Plan(ctx, command, rc)
		if err != nil {
			log.Error("Planner failed", zap.Error(err))
			return l.finish(res, rc, StatusError, fmt.Sprintf("planner failed: %v", err))
		}

		switch plan.Status {
		case PlanCompleted:
			msg := plan.Message
			if msg == "" {
				msg = "Goal completed successfully"
			}
			return l.finish(res, rc, StatusCompleted, msg)
		case PlanError:
			msg := plan.Message
			if msg == "" {
				msg = "Unknown error"
			}
			return l.finish(res, rc, StatusError, msg)
		case PlanInProgress:
		default:
			return l.finish(res, rc, StatusError, fmt.Sprintf("planner returned unknown status %q", plan.Status))
		}
		if plan.NextAction == nil {
			return l.finish(res, rc, StatusError, "planner returned no action")
		}

		step := l.step(ctx, *plan.NextAction, rc, &res)
		log.Debug("Action executed",
			zap.Int("step", rc.CurrentStep),
			zap.String("kind", string(step.Action.Kind)),
			zap.String("result", step.Result),
			zap.Int("attempts", step.Attempts))

		if rc.Status == StatusReplanRequired {
			log.Info("Replan requested", zap.String("reason", rc.ReplanReason))
			return l.finish(res, rc, StatusReplanRequired, rc.ReplanReason)
		}
	}
}

// step executes one planned action with retries and folds the result into rc and res.
func (l *Loop) step(ctx context.Context, a action.Action, rc *RunContext, res *Result) Step {
	r := l.retry.ExecuteWithRetry(ctx, a, l.exec.Execute)

	step := Step{Action: a, Result: retry.Label(r), Attempts: r.Attempts(), Timestamp: time.Now()}
	switch v := r.(type) {
	case retry.Success:
		step.Action, step.Outcome = v.Action, v.Outcome
		res.Data = append(res.Data, v.Outcome.Data...)
		if obs := v.Outcome.Observation; obs != nil && obs.URL != "" {
			rc.CurrentURL = obs.URL
		}
	case retry.ReplanRequired:
		step.Outcome = action.Failed(v.LastError, nil)
		failed := v.Action.Clone()
		rc.Status = StatusReplanRequired
		rc.ReplanReason = v.Reason
		if rc.ReplanReason == "" {
			rc.ReplanReason = "Replan required: " + v.LastError
		}
		rc.FailedAction = &failed
	case retry.Exhausted:
		step.Action, step.Outcome = v.Action, v.LastOutcome
		if step.Outcome.OK || step.Outcome.Error == "" {
			step.Outcome = action.Failed(v.LastError, v.LastOutcome.Observation)
		}
	}

	res.TotalActions++
	res.RetryAttempts += max(step.Attempts-1, 0)
	if step.Outcome.OK {
		res.ErrorsEncountered += max(step.Attempts-1, 0)
	} else {
		res.ErrorsEncountered += max(step.Attempts, 1)
	}

	rc.History = append(rc.History, step)
	rc.CurrentStep++
	acted := step.Action
	outcome := step.Outcome
	rc.LastAction = &acted
	rc.LastOutcome = &outcome
	if outcome.Observation != nil {
		rc.LastObservation = outcome.Observation
	}
	return step
}

func (l *Loop) finish(res Result, rc *RunContext, status Status, msg string) Result {
	res.Status = status
	res.Message = msg
	res.Steps = rc.CurrentStep
	res.LastOutcome = rc.LastOutcome
	res.Observation = rc.LastObservation
	res.ReplanReason = rc.ReplanReason
	if status == StatusCompleted || status == StatusError {
		rc.Status = status
	}
	return res
}
