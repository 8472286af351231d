// File: internal/service/goals.go
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/goalpilot/internal/action"
	"github.com/xkilldash9x/goalpilot/internal/engine"
	"github.com/xkilldash9x/goalpilot/internal/goal"
	"github.com/xkilldash9x/goalpilot/internal/planner"
	"github.com/xkilldash9x/goalpilot/internal/sandbox"
	"github.com/xkilldash9x/goalpilot/internal/session"
)

// ContextSessionID is added to the execution context of a goal run under a session.
const ContextSessionID = "session_id"

// GoalRun is one goal execution request.
type GoalRun struct {
	Command string
	// SessionID is optional. When set, the session's variables seed the execution context,
	// its last page is reopened first and the run is appended to its log.
	SessionID string
	// Context overrides session variables with the same key.
	Context map[string]any
}

// RunGoal executes one goal on a fresh Execution. Session lookup and setup failures are
// returned as errors (session.ErrNotFound and session.ErrInvalidID are wrapped); every
// other outcome, failures included, is reported in the FinalOutput.
func (c *Components) RunGoal(ctx context.Context, run GoalRun, opts ...sandbox.Option) (engine.FinalOutput, error) {
	values := make(map[string]any, len(run.Context)+1)
	var sess *session.Session
	if run.SessionID != "" {
		if c.Sessions == nil {
			return engine.FinalOutput{}, errors.New("sessions are not configured")
		}
		var err error
		if sess, err = c.Sessions.Get(run.SessionID); err != nil {
			return engine.FinalOutput{}, fmt.Errorf("failed to load session: %w", err)
		}
		for k, v := range sess.Variables {
			values[k] = v
		}
		values[ContextSessionID] = sess.ID
	}
	for k, v := range run.Context {
		values[k] = v
	}

	exec, err := c.NewExecution(opts...)
	if err != nil {
		return engine.FinalOutput{}, fmt.Errorf("failed to build execution: %w", err)
	}
	if sess != nil && sess.CurrentTab != nil {
		// Resume on the page the session was left on.
		if restored := exec.Browser.Execute(ctx, action.OpenURL(sess.CurrentTab.URL)); !restored.OK {
			c.Logger.Debug("Could not restore session page",
				zap.String("url", sess.CurrentTab.URL), zap.String("error", restored.Error))
		}
	}

	out := exec.Engine.ExecuteGoal(ctx, run.Command, values)

	if sess != nil {
		results := len(out.Results)
		if results == 0 {
			results = len(out.PartialResults)
		}
		_, err := c.Sessions.AppendRun(sess.ID, session.Run{
			GoalID:       out.GoalID,
			Command:      run.Command,
			Status:       string(out.Status),
			Results:      results,
			QualityScore: out.QualityScore,
			Duration:     out.Statistics.ExecutionTime,
			FinalURL:     exec.Browser.URL(),
		})
		if err != nil {
			c.Logger.Warn("Failed to record run in session", zap.String("session_id", sess.ID), zap.Error(err))
		}
	}
	return out, nil
}

// Plan interprets command and plans every subgoal without executing anything.
func (c *Components) Plan(command string) (goal.Goal, []planner.Step, error) {
	if c.Planner == nil {
		return goal.Goal{}, nil, errors.New("components are not initialized")
	}
	interpreter, decomposer := c.Heuristics.Interpreter, c.Heuristics.Decomposer
	if interpreter == nil {
		interpreter = goal.NewInterpreter()
	}
	if decomposer == nil {
		decomposer = goal.NewDecomposer(goal.DefaultCriteriaRules())
	}
	g := interpreter.Interpret(command)
	return g, c.Planner.Preview(g, decomposer.Decompose(g)), nil
}
