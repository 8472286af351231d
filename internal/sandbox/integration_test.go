package sandbox_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/goalpilot/internal/action"
	"github.com/xkilldash9x/goalpilot/internal/config"
	"github.com/xkilldash9x/goalpilot/internal/engine"
	"github.com/xkilldash9x/goalpilot/internal/executor"
	"github.com/xkilldash9x/goalpilot/internal/planner"
	"github.com/xkilldash9x/goalpilot/internal/retry"
	"github.com/xkilldash9x/goalpilot/internal/sandbox"
)

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

type stack struct {
	browser     *sandbox.Browser
	coordinator *retry.Coordinator
	engine      *engine.Engine
}

func newStack(t *testing.T, opts ...sandbox.Option) stack {
	t.Helper()
	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))

	browser, err := sandbox.New(logger, append([]sandbox.Option{sandbox.WithSleep(noSleep)}, opts...)...)
	require.NoError(t, err)
	p, err := planner.New(logger)
	require.NoError(t, err)

	coordinator := retry.NewCoordinator(logger, nil, nil)
	loop := executor.NewLoop(logger, p, browser, coordinator, config.ExecutorConfig{})
	eng, err := engine.New(config.EngineConfig{}, logger, loop)
	require.NoError(t, err)
	return stack{browser: browser, coordinator: coordinator, engine: eng}
}

func TestExecuteGoal_SearchOnKnownSite(t *testing.T) {
	s := newStack(t)

	out := s.engine.ExecuteGoal(context.Background(), "search for wireless mice on amazon", nil)

	require.Equal(t, engine.OutputSuccess, out.Status, "reason: %s", out.Reason)
	assert.Equal(t, "amazon", out.Domain)
	assert.Len(t, out.Results, 5)
	assert.Contains(t, out.Results[0], "wireless mice")
	require.NotNil(t, out.ExecutionSummary)
	assert.Equal(t, 5, out.ExecutionSummary.CompletedSubgoals)
	assert.Equal(t, 5, out.Statistics.SubgoalsCompleted)
	assert.Zero(t, out.Statistics.ErrorsEncountered)
	assert.Positive(t, out.QualityScore)

	assert.Equal(t, []string{
		"https://www.amazon.com",
		"https://www.amazon.com/s?k=wireless+mice",
	}, s.browser.History())
}

func TestExecuteGoal_GeneralSearchUsesDefaultEngine(t *testing.T) {
	s := newStack(t)

	out := s.engine.ExecuteGoal(context.Background(), "please find top 5 golang tutorials", nil)

	require.Equal(t, engine.OutputSuccess, out.Status, "reason: %s", out.Reason)
	assert.Equal(t, "general", out.Domain)
	assert.Len(t, out.Results, 5)
	assert.Equal(t, "https://www.google.com/search?q=find+top+5+golang+tutorials", s.browser.URL())
}

func TestExecuteGoal_NavigationFailureIsCritical(t *testing.T) {
	s := newStack(t, sandbox.WithUnreachableHosts("github.com"))

	out := s.engine.ExecuteGoal(context.Background(), "search for zap loggers on github", nil)

	assert.Equal(t, engine.OutputPartial, out.Status)
	require.NotNil(t, out.Progress)
	assert.Equal(t, 1, out.Progress.Failed)
	assert.Zero(t, out.Progress.Completed)
	assert.Empty(t, out.PartialResults)
	assert.Equal(t, 2, out.Statistics.ErrorsEncountered, "network errors abort after the second failure")

	summary := s.coordinator.ErrorHistory().Summary()
	assert.Equal(t, 2, summary.Total)
}

func TestExecuteGoal_UnsafeCommandIsRefused(t *testing.T) {
	s := newStack(t)

	out := s.engine.ExecuteGoal(context.Background(), "search for a payment form on amazon", nil)

	assert.Equal(t, engine.OutputPartial, out.Status)
	assert.Zero(t, out.Statistics.TotalActions)
	assert.Empty(t, s.browser.History())
}

func TestCoordinator_FallsBackToAlternativeSelector(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	require.True(t, s.browser.Execute(ctx, action.OpenURL("https://www.google.com")).OK)

	res := s.coordinator.ExecuteWithRetry(ctx, action.TypeText("#missing-box", "weather"), s.browser.Execute)

	success, ok := res.(retry.Success)
	require.True(t, ok, "got %T", res)
	assert.Equal(t, 2, success.Attempts())
	assert.Equal(t, "input[type='search']", success.Action.Selector)
	assert.Equal(t, "#missing-box", success.Action.OriginalSelector)
}

func TestCoordinator_DisabledElementRequestsReplan(t *testing.T) {
	s := newStack(t, sandbox.WithDisabled("input[name='q']"))
	ctx := context.Background()
	require.True(t, s.browser.Execute(ctx, action.OpenURL("https://www.google.com")).OK)

	res := s.coordinator.ExecuteWithRetry(ctx, action.TypeText("input[name='q']", "weather"), s.browser.Execute)

	replan, ok := res.(retry.ReplanRequired)
	require.True(t, ok, "got %T", res)
	assert.Equal(t, 1, replan.Attempts())
	assert.Equal(t, "element disabled: input[name='q']", replan.LastError)
}
