package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/goalpilot/internal/action"
	"github.com/xkilldash9x/goalpilot/internal/goal"
	"github.com/xkilldash9x/goalpilot/internal/rules"
)

func TestPreview(t *testing.T) {
	p := newPlanner(t)
	g := goal.NewInterpreter().Interpret("search for lofi beats on youtube")
	subgoals := goal.NewDecomposer(rules.Table[string]{}).Decompose(g)

	steps := p.Preview(g, subgoals)
	require.Len(t, steps, len(subgoals))

	assert.Equal(t, subgoals[0].ID, steps[0].Subgoal.ID)
	assert.Equal(t, []action.Kind{action.KindOpenURL}, kinds(steps[0].Actions))
	assert.Equal(t, []action.Kind{action.KindWaitForElement}, kinds(steps[1].Actions),
		"the page opened by the first step is carried forward")
	assert.Equal(t, []action.Kind{action.KindTypeText, action.KindKeyPress}, kinds(steps[2].Actions))
	assert.NotNil(t, steps[4].Actions)
	assert.Empty(t, steps[4].Actions)
	for _, s := range steps {
		assert.Empty(t, s.Error)
	}
}

func TestPreview_ReportsRefusals(t *testing.T) {
	p := newPlanner(t)
	g := goal.NewInterpreter().Interpret("search for a payment form on amazon")
	subgoals := goal.NewDecomposer(rules.Table[string]{}).Decompose(g)

	steps := p.Preview(g, subgoals)
	require.NotEmpty(t, steps)
	for _, s := range steps {
		assert.Contains(t, s.Error, "unsafe")
		assert.Empty(t, s.Actions)
	}
}
