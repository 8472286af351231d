package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/goalpilot/internal/action"
	"github.com/xkilldash9x/goalpilot/internal/config"
	"github.com/xkilldash9x/goalpilot/internal/retry"
)

// MockPlanner is a testify mock of Planner.
type MockPlanner struct {
	mock.Mock
}

func (m *MockPlanner) Plan(ctx context.Context, command string, run *RunContext) (Plan, error) {
	args := m.Called(ctx, command, run)
	return args.Get(0).(Plan), args.Error(1)
}

// listPlanner hands out actions in order and completes when they run out.
type listPlanner struct {
	actions []action.Action
}

func (p *listPlanner) Plan(_ context.Context, _ string, run *RunContext) (Plan, error) {
	if run.CurrentStep >= len(p.actions) {
		return Plan{Status: PlanCompleted}, nil
	}
	a := p.actions[run.CurrentStep]
	return Plan{Status: PlanInProgress, NextAction: &a}, nil
}

type funcExecutor func(ctx context.Context, a action.Action) action.Outcome

func (f funcExecutor) Execute(ctx context.Context, a action.Action) action.Outcome { return f(ctx, a) }

func alwaysOK(_ context.Context, a action.Action) action.Outcome {
	out := action.Succeeded("done", &action.Observation{URL: "https://example.com/" + string(a.Kind)})
	if a.Kind == action.KindExtractContent {
		out.Data = []string{"first", "second"}
	}
	return out
}

func newLoop(t *testing.T, p Planner, exec ActionExecutor, cfg config.ExecutorConfig) *Loop {
	t.Helper()
	logger := zaptest.NewLogger(t)
	return NewLoop(logger, p, exec, retry.NewCoordinator(logger, nil, nil), cfg)
}

func TestRun_CompletesWhenPlannerIsDone(t *testing.T) {
	p := &listPlanner{actions: []action.Action{
		action.OpenURL("https://example.com"),
		action.Extract(".result"),
	}}
	rc := NewRunContext(map[string]any{"subgoal_id": "subgoal_1"})

	res := newLoop(t, p, funcExecutor(alwaysOK), config.ExecutorConfig{}).Run(context.Background(), "do it", rc)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "Goal completed successfully", res.Message)
	assert.Equal(t, 2, res.Steps)
	assert.Equal(t, 2, res.TotalActions)
	assert.Zero(t, res.ErrorsEncountered)
	assert.Zero(t, res.RetryAttempts)
	assert.Equal(t, []string{"first", "second"}, res.Data)
	require.NotNil(t, res.LastOutcome)
	assert.True(t, res.LastOutcome.OK)

	assert.Equal(t, StatusCompleted, rc.Status)
	assert.Len(t, rc.History, 2)
	assert.Equal(t, "https://example.com/extractContent", rc.CurrentURL)
	assert.Equal(t, action.KindExtractContent, rc.LastAction.Kind)
	assert.Equal(t, "subgoal_1", rc.String("subgoal_id"))
}

func TestRun_PlannerOutcomes(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name   string
		plan   Plan
		err    error
		status Status
		msg    string
	}{
		{"error status", Plan{Status: PlanError, Message: "unsafe command"}, nil, StatusError, "unsafe command"},
		{"error without message", Plan{Status: PlanError}, nil, StatusError, "Unknown error"},
		{"planner failure", Plan{}, boom, StatusError, "planner failed: boom"},
		{"unknown status", Plan{Status: "dreaming"}, nil, StatusError, `planner returned unknown status "dreaming"`},
		{"missing action", Plan{Status: PlanInProgress}, nil, StatusError, "planner returned no action"},
		{"completed with message", Plan{Status: PlanCompleted, Message: "nothing to do"}, nil, StatusCompleted, "nothing to do"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := new(MockPlanner)
			p.On("Plan", mock.Anything, "cmd", mock.AnythingOfType("*executor.RunContext")).Return(tt.plan, tt.err).Once()

			res := newLoop(t, p, funcExecutor(alwaysOK), config.ExecutorConfig{}).Run(context.Background(), "cmd", nil)

			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.msg, res.Message)
			assert.Zero(t, res.TotalActions)
			p.AssertExpectations(t)
		})
	}
}

func TestRun_StepBudget(t *testing.T) {
	p := new(MockPlanner)
	click := action.Click("#more")
	p.On("Plan", mock.Anything, "cmd", mock.Anything).Return(Plan{Status: PlanInProgress, NextAction: &click}, nil)

	res := newLoop(t, p, funcExecutor(alwaysOK), config.ExecutorConfig{MaxSteps: 3}).Run(context.Background(), "cmd", nil)

	assert.Equal(t, StatusMaxSteps, res.Status)
	assert.Equal(t, 3, res.Steps)
	p.AssertNumberOfCalls(t, "Plan", 3)
}

func TestRun_TimeBudget(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := new(MockPlanner)

	res := newLoop(t, p, funcExecutor(alwaysOK), config.ExecutorConfig{Timeout: time.Minute}).Run(ctx, "cmd", nil)

	assert.Equal(t, StatusTimeout, res.Status)
	assert.Contains(t, res.Message, context.Canceled.Error())
	p.AssertNotCalled(t, "Plan", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_ReplanStopsTheRun(t *testing.T) {
	p := &listPlanner{actions: []action.Action{action.Click("#buy"), action.Click("#never")}}
	calls := 0
	exec := funcExecutor(func(_ context.Context, a action.Action) action.Outcome {
		calls++
		return action.Failed("button is disabled", nil)
	})
	rc := NewRunContext(nil)

	res := newLoop(t, p, exec, config.ExecutorConfig{}).Run(context.Background(), "cmd", rc)

	assert.Equal(t, StatusReplanRequired, res.Status)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, res.TotalActions)
	assert.Equal(t, 1, res.ErrorsEncountered)
	assert.NotEmpty(t, res.ReplanReason)
	require.NotNil(t, rc.FailedAction)
	assert.Equal(t, "#buy", rc.FailedAction.Selector)
	assert.False(t, res.LastOutcome.OK)
}

func TestRun_ExhaustedActionIsReportedToPlanner(t *testing.T) {
	p := new(MockPlanner)
	click := action.Click("#gone")
	p.On("Plan", mock.Anything, "cmd", mock.MatchedBy(func(rc *RunContext) bool { return rc.CurrentStep == 0 })).
		Return(Plan{Status: PlanInProgress, NextAction: &click}, nil).Once()
	p.On("Plan", mock.Anything, "cmd", mock.MatchedBy(func(rc *RunContext) bool {
		return rc.LastOutcome != nil && !rc.LastOutcome.OK
	})).Return(Plan{Status: PlanError, Message: "giving up"}, nil).Once()

	exec := funcExecutor(func(_ context.Context, a action.Action) action.Outcome {
		if a.Kind == action.KindWait || a.Kind == action.KindScrollPage {
			return action.Succeeded("ok", nil)
		}
		return action.Failed("weird failure", nil)
	})

	res := newLoop(t, p, exec, config.ExecutorConfig{}).Run(context.Background(), "cmd", nil)

	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, "giving up", res.Message)
	assert.Equal(t, 1, res.TotalActions)
	assert.Equal(t, 2, res.RetryAttempts)
	assert.Equal(t, 3, res.ErrorsEncountered)
	assert.Equal(t, "weird failure", res.LastOutcome.Error)
	p.AssertExpectations(t)
}

func TestRun_AlreadyTerminalContext(t *testing.T) {
	rc := NewRunContext(nil)
	rc.Status = StatusCompleted
	p := new(MockPlanner)

	res := newLoop(t, p, funcExecutor(alwaysOK), config.ExecutorConfig{}).Run(context.Background(), "cmd", rc)

	assert.Equal(t, StatusCompleted, res.Status)
	p.AssertNotCalled(t, "Plan", mock.Anything, mock.Anything, mock.Anything)
}

func TestNewRunContext_CopiesValues(t *testing.T) {
	in := map[string]any{"goal": "x", "n": 3}
	rc := NewRunContext(in)
	rc.Values["goal"] = "y"
	assert.Equal(t, "x", in["goal"])
	assert.Empty(t, rc.String("n"), "non-string values read as empty")
}
