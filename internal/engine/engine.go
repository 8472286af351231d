// Package engine drives a natural-language goal from interpretation to a final verdict.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/goalpilot/internal/action"
	"github.com/xkilldash9x/goalpilot/internal/completion"
	"github.com/xkilldash9x/goalpilot/internal/config"
	"github.com/xkilldash9x/goalpilot/internal/executor"
	"github.com/xkilldash9x/goalpilot/internal/goal"
	"github.com/xkilldash9x/goalpilot/internal/observability"
	"github.com/xkilldash9x/goalpilot/internal/rules"
)

// -- Interfaces for Dependency Inversion --

// Runner executes one instruction to a stop condition. *executor.Loop satisfies it.
type Runner interface {
	Run(ctx context.Context, command string, rc *executor.RunContext) executor.Result
}

// Recorder persists a summary of every finished execution. Failures are logged and
// never change the FinalOutput.
type Recorder interface {
	RecordRun(ctx context.Context, run RunRecord) error
}

// RunRecord is what a Recorder receives.
type RunRecord struct {
	GoalID            string
	Command           string
	GoalType          goal.Type
	Domain            string
	Status            OutputStatus
	SubgoalsTotal     int
	SubgoalsCompleted int
	TotalActions      int
	Errors            int
	Retries           int
	Duration          time.Duration
	QualityScore      int
	CreatedAt         time.Time
}

// DefaultCriticalKeywords mark subgoals whose failure aborts the whole goal.
var DefaultCriticalKeywords = []string{"navigate", "search", "access"}

// Keys added to the caller's context for each subgoal.
const (
	ContextCurrentSubgoal  = "current_subgoal"
	ContextSubgoalID       = "subgoal_id"
	ContextGoal            = "goal"
	ContextSuccessCriteria = "success_criteria"
)

const recordTimeout = 5 * time.Second

// Engine runs goals. It holds no per-goal state, so one Engine can serve concurrent
// executions; everything a run mutates is created inside ExecuteGoal.
type Engine struct {
	logger      *zap.Logger
	runner      Runner
	interpreter *goal.Interpreter
	decomposer  *goal.Decomposer
	checker     *completion.Checker
	critical    []string
	maxTime     time.Duration
	maxSubgoals int
	history     *History
	recorder    Recorder
	metrics     *observability.Metrics
	now         func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

func WithInterpreter(i *goal.Interpreter) Option { return func(e *Engine) { e.interpreter = i } }
func WithDecomposer(d *goal.Decomposer) Option   { return func(e *Engine) { e.decomposer = d } }
func WithChecker(c *completion.Checker) Option   { return func(e *Engine) { e.checker = c } }
func WithRecorder(r Recorder) Option             { return func(e *Engine) { e.recorder = r } }
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithCriticalKeywords replaces DefaultCriticalKeywords. An empty list keeps the defaults.
func WithCriticalKeywords(keywords []string) Option {
	return func(e *Engine) {
		if len(keywords) > 0 {
			e.critical = append([]string(nil), keywords...)
		}
	}
}

// WithHistory shares an execution log between engines, e.g. one engine per request.
func WithHistory(h *History) Option { return func(e *Engine) { e.history = h } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// New creates an Engine. Unset collaborators get their defaults.
func New(cfg config.EngineConfig, logger *zap.Logger, runner Runner, opts ...Option) (*Engine, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if runner == nil {
		return nil, errors.New("runner cannot be nil")
	}

	e := &Engine{
		logger:      logger.With(zap.String("component", "engine")),
		runner:      runner,
		critical:    DefaultCriticalKeywords,
		maxTime:     cfg.MaxExecutionTime,
		maxSubgoals: cfg.MaxSubgoals,
		now:         time.Now,
	}
	if e.maxTime <= 0 {
		e.maxTime = config.DefaultMaxExecutionTime
	}
	if e.maxSubgoals <= 0 {
		e.maxSubgoals = config.DefaultMaxSubgoals
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.interpreter == nil {
		e.interpreter = goal.NewInterpreter()
	}
	if e.decomposer == nil {
		e.decomposer = goal.NewDecomposer(rules.Table[string]{})
	}
	if e.checker == nil {
		e.checker = completion.NewChecker(rules.Table[completion.Requirement]{})
	}
	if e.history == nil {
		e.history = NewHistory(cfg.HistoryLimit)
	}
	return e, nil
}

// History returns the execution log used for statistics.
func (e *Engine) History() *History { return e.history }

// Statistics aggregates past executions.
func (e *Engine) Statistics() ExecutionStats { return e.history.Stats() }

// Interpreter exposes the goal interpreter, for callers that only want a plan.
func (e *Engine) Interpreter() *goal.Interpreter { return e.interpreter }

// Decomposer exposes the subgoal decomposer.
func (e *Engine) Decomposer() *goal.Decomposer { return e.decomposer }

// ExecuteGoal interprets command, runs its subgoals in dependency order and checks the
// result. It never panics and never returns a Go error: unexpected failures come back
// as an error-status FinalOutput.
func (e *Engine) ExecuteGoal(ctx context.Context, command string, values map[string]any) (out FinalOutput) {
	start := e.now()
	log := e.logger.With(zap.String("command", command))

	defer func() {
		if r := recover(); r != nil {
			log.Error("Goal execution panicked",
				zap.Any("panicValue", r),
				zap.String("stack", string(debug.Stack())),
			)
			out = errorOutput(command, fmt.Errorf("panic: %v", r), e.now())
			e.metrics.ObserveGoal(string(OutputError), "", e.now().Sub(start))
		}
	}()

	log.Info("Interpreting goal")
	g := e.interpreter.Interpret(command)
	log = log.With(zap.String("goal_id", g.ID), zap.String("goal_type", string(g.Type)))
	log.Info("Goal extracted", zap.String("goal", g.Statement), zap.String("domain", g.Domain))

	subgoals := e.decomposer.Decompose(g)
	if len(subgoals) > e.maxSubgoals {
		log.Warn("Limiting subgoals", zap.Int("decomposed", len(subgoals)), zap.Int("max_subgoals", e.maxSubgoals))
		subgoals = subgoals[:e.maxSubgoals]
	}

	graph, err := goal.NewGraph(subgoals)
	if err != nil {
		log.Error("Invalid subgoal graph", zap.Error(err))
		e.metrics.ObserveGoal(string(OutputError), string(g.Type), e.now().Sub(start))
		return errorOutput(command, fmt.Errorf("failed to build task graph: %w", err), e.now())
	}
	log.Info("Created task graph", zap.Int("subgoals", graph.Len()))

	state := e.run(ctx, log, g, graph, values, start)

	check := e.checker.CheckGoal(g, graph, state)
	out = buildOutput(g, graph, check, state, e.now())
	log.Info("Goal finished",
		zap.String("status", string(out.Status)),
		zap.String("reason", check.Reason),
		zap.Duration("elapsed", state.ExecutionTime))

	e.history.Append(ExecutionRecord{
		GoalID:            g.ID,
		Goal:              g.Statement,
		Timestamp:         start,
		Duration:          state.ExecutionTime,
		Completed:         check.Completed,
		SubgoalsCompleted: check.Progress.Completed,
		TotalSubgoals:     graph.Len(),
	})
	e.metrics.ObserveGoal(string(out.Status), string(g.Type), state.ExecutionTime)
	e.record(ctx, log, g, graph, out, state, start)
	return out
}

// run is the subgoal loop. It stops on the time budget, when nothing is eligible, or when
// a failed subgoal is not worth continuing past.
func (e *Engine) run(ctx context.Context, log *zap.Logger, g goal.Goal, graph *goal.Graph, values map[string]any, start time.Time) *goal.ExecutionState {
	state := goal.NewExecutionState()
	deadline := start.Add(e.maxTime)
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	for !graph.IsComplete() {
		if e.now().After(deadline) || runCtx.Err() != nil {
			log.Warn("Execution timeout reached", zap.Duration("budget", e.maxTime))
			break
		}
		sg, ok := graph.Next()
		if !ok {
			log.Warn("No more subgoals to execute")
			break
		}

		sgLog := log.With(zap.String("subgoal_id", sg.ID))
		sgLog.Info("Executing subgoal", zap.String("description", sg.Description))
		state.Absorb(sg.ID, e.executeSubgoal(runCtx, sg, g, values, state))

		check := e.checker.CheckSubgoal(sg, state)
		if check.Completed {
			// sg came from the graph, so its id is always known.
			_ = graph.MarkCompleted(sg.ID)
			state.Collect()
			e.metrics.ObserveSubgoal(string(goal.StatusCompleted))
			sgLog.Info("Subgoal completed", zap.String("reason", check.Reason))
		} else {
			_ = graph.MarkFailed(sg.ID)
			e.metrics.ObserveSubgoal(string(goal.StatusFailed))
			sgLog.Warn("Subgoal failed", zap.String("reason", check.Reason), zap.Strings("suggestions", check.Suggestions))
			if !e.ShouldContinueOnFailure(sg, graph) {
				sgLog.Error("Critical subgoal failed, aborting execution")
				break
			}
		}

		p := graph.Progress()
		log.Info("Progress",
			zap.String("subgoal_id", sg.ID),
			zap.Float64("percentage", p.Percentage),
			zap.Int("completed", p.Completed),
			zap.Int("total", p.Total),
			zap.Duration("elapsed", e.now().Sub(start)))
	}

	state.ExecutionTime = e.now().Sub(start)
	return state
}

// executeSubgoal runs the executor loop for one subgoal and converts its result.
func (e *Engine) executeSubgoal(ctx context.Context, sg goal.Subgoal, g goal.Goal, values map[string]any, state *goal.ExecutionState) goal.SubgoalOutcome {
	rc := executor.NewRunContext(values)
	rc.Values[ContextCurrentSubgoal] = sg.Description
	rc.Values[ContextSubgoalID] = sg.ID
	rc.Values[ContextGoal] = g.Statement
	rc.Values[ContextSuccessCriteria] = sg.SuccessCriteria
	if state.DOMState != nil {
		rc.CurrentURL = state.DOMState.URL
		rc.LastObservation = state.DOMState
	}

	command := fmt.Sprintf("%s for %s", sg.Description, g.Statement)
	res := e.runner.Run(ctx, command, rc)

	out := goal.SubgoalOutcome{
		Status:            string(res.Status),
		Message:           res.Message,
		TotalActions:      res.TotalActions,
		ErrorsEncountered: res.ErrorsEncountered,
		RetryAttempts:     res.RetryAttempts,
		Data:              res.Data,
		LastOutcome:       res.LastOutcome,
		Observation:       res.Observation,
	}

	switch {
	case res.Status != executor.StatusCompleted:
		// Anything short of the planner declaring completion fails the subgoal,
		// including a replan request.
		failed := action.Failed(res.Message, res.Observation)
		out.LastOutcome = &failed
	case res.LastOutcome == nil:
		// Nothing needed doing.
		done := action.Succeeded(res.Message, state.DOMState)
		out.LastOutcome = &done
	}
	return out
}

// ShouldContinueOnFailure decides whether the loop keeps going after sg failed. Critical
// subgoals abort immediately, as does losing more than half the graph.
func (e *Engine) ShouldContinueOnFailure(sg goal.Subgoal, graph *goal.Graph) bool {
	if rules.ContainsAny(sg.Description, e.critical) {
		return false
	}
	p := graph.Progress()
	return float64(p.Failed) <= float64(p.Total)*0.5
}

func (e *Engine) record(ctx context.Context, log *zap.Logger, g goal.Goal, graph *goal.Graph, out FinalOutput, state *goal.ExecutionState, start time.Time) {
	if e.recorder == nil {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	err := e.recorder.RecordRun(rctx, RunRecord{
		GoalID:            g.ID,
		Command:           g.OriginalCommand,
		GoalType:          g.Type,
		Domain:            g.Domain,
		Status:            out.Status,
		SubgoalsTotal:     graph.Len(),
		SubgoalsCompleted: out.Statistics.SubgoalsCompleted,
		TotalActions:      state.TotalActions,
		Errors:            state.ErrorsEncountered,
		Retries:           state.RetryAttempts,
		Duration:          state.ExecutionTime,
		QualityScore:      out.QualityScore,
		CreatedAt:         start,
	})
	if err != nil {
		log.Error("Failed to record run", zap.Error(err))
	}
}
