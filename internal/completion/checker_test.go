package completion

import (
	"fmt"
	"strings"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/goalpilot/internal/action"
	"github.com/xkilldash9x/goalpilot/internal/goal"
	"github.com/xkilldash9x/goalpilot/internal/rules"
)

func okOutcome(data ...string) *action.Outcome {
	o := action.Succeeded("ok", nil)
	o.Data = data
	return &o
}

func completedGraph(t *testing.T, n int) *goal.Graph {
	t.Helper()
	subgoals := make([]goal.Subgoal, n)
	for i := range subgoals {
		subgoals[i] = goal.Subgoal{ID: goal.SubgoalID(i + 1)}
	}
	g, err := goal.NewGraph(subgoals)
	require.NoError(t, err)
	for _, sg := range subgoals {
		require.NoError(t, g.MarkCompleted(sg.ID))
	}
	return g
}

func items(n int, prefix string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s %d", prefix, i+1)
	}
	return out
}

func TestCheckSubgoal(t *testing.T) {
	c := NewChecker(rules.Table[Requirement]{})
	failed := action.Failed("element not found: #q", nil)

	tests := []struct {
		name     string
		criteria string
		state    goal.ExecutionState
		want     bool
		reason   string
	}{
		{"no action", "Subgoal completed successfully", goal.ExecutionState{}, false, "Last action failed: no action executed"},
		{"failed action", "Subgoal completed successfully", goal.ExecutionState{LastOutcome: &failed}, false, "Last action failed: element not found: #q"},
		{"page loaded", "Target page loaded successfully", goal.ExecutionState{
			LastOutcome: okOutcome(), DOMState: &action.Observation{URL: "https://www.google.com/"},
		}, true, "Navigation successful"},
		{"blank page", "Target page loaded successfully", goal.ExecutionState{
			LastOutcome: okOutcome(), DOMState: &action.Observation{URL: "about:blank"},
		}, false, "Navigation not completed"},
		{"no dom", "navigate to home", goal.ExecutionState{LastOutcome: okOutcome()}, false, "Navigation not completed"},
		{"search input present", "Search executed and results displayed", goal.ExecutionState{
			LastOutcome: okOutcome(), DOMState: &action.Observation{SearchInputs: []string{"input[name='q']"}},
		}, true, "Search functionality found"},
		{"search input missing", "Search executed and results displayed", goal.ExecutionState{
			LastOutcome: okOutcome(), DOMState: &action.Observation{URL: "https://x"},
		}, false, "Search functionality not found"},
		{"extracted", "Required data extracted successfully", goal.ExecutionState{
			LastOutcome: okOutcome("a", "b"), ExtractedData: []string{"a", "b"},
		}, true, "Extracted 2 items"},
		{"nothing extracted", "Required data extracted successfully", goal.ExecutionState{LastOutcome: okOutcome()}, false, "No data extracted"},
		{"generic", "Data properly formatted and structured", goal.ExecutionState{LastOutcome: okOutcome()}, true, "Subgoal completed successfully"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sg := goal.Subgoal{ID: "subgoal_1", Description: "step", SuccessCriteria: tt.criteria}
			got := c.CheckSubgoal(sg, &tt.state)
			assert.Equal(t, tt.want, got.Completed)
			assert.Equal(t, tt.reason, got.Reason)
			if !tt.want {
				assert.NotEmpty(t, got.Suggestions)
			}
		})
	}
}

func TestCheckSubgoal_SearchChainRequirements(t *testing.T) {
	g := goal.NewInterpreter().Interpret("search for wireless mice")
	subgoals := goal.NewDecomposer(goal.DefaultCriteriaRules()).Decompose(g)
	require.Len(t, subgoals, 5)

	criteria := DefaultCriteriaRules()
	want := []Requirement{RequirePageLoaded, RequireSearchInput, RequireSearchInput, RequireSearchInput, RequireActionOK}
	for i, sg := range subgoals {
		assert.Equal(t, want[i], criteria.Resolve(sg.SuccessCriteria), "%s: %s", sg.ID, sg.Description)
	}
}

func TestCheckSubgoal_DataValidation(t *testing.T) {
	c := NewChecker(rules.Table[Requirement]{})
	state := &goal.ExecutionState{
		LastOutcome: okOutcome(),
		DOMState:    &action.Observation{URL: "https://github.com/"},
	}

	got := c.CheckSubgoal(goal.Subgoal{Description: "Navigate to target website", SuccessCriteria: "anything"}, state)
	require.True(t, got.Completed)
	assert.True(t, got.DataValid)
	assert.Equal(t, "Navigation to https://github.com/ successful", got.DataDetails)

	got = c.CheckSubgoal(goal.Subgoal{Description: "Extract results", SuccessCriteria: "anything"}, state)
	require.True(t, got.Completed)
	assert.False(t, got.DataValid)
}

func TestCheckGoal_TopN(t *testing.T) {
	c := NewChecker(rules.Table[Requirement]{})
	g := goal.Goal{Statement: "Search for laptops", SuccessCondition: "find top 5 results", EstimatedSteps: 3}
	graph := completedGraph(t, 2)

	state := goal.NewExecutionState()
	state.Results = items(3, "laptop")
	got := c.CheckGoal(g, graph, state)
	assert.False(t, got.Completed)
	assert.Equal(t, "Success condition not met: Required top 5 results, only found 3", got.Reason)

	state.Results = items(5, "laptop")
	got = c.CheckGoal(g, graph, state)
	require.True(t, got.Completed, got.Reason)
	assert.Equal(t, "Goal completed successfully", got.Reason)
	require.NotNil(t, got.Summary)
	assert.Equal(t, 2, got.Summary.CompletedSubgoals)
	assert.InDelta(t, 100.0, got.Summary.SuccessRate, 1e-9)
	assert.GreaterOrEqual(t, got.QualityScore, 0)
	assert.LessOrEqual(t, got.QualityScore, 100)
}

func TestCheckGoal_IncompleteGraph(t *testing.T) {
	graph, err := goal.NewGraph([]goal.Subgoal{{ID: "a"}, {ID: "b"}})
	require.NoError(t, err)
	require.NoError(t, graph.MarkCompleted("a"))
	require.NoError(t, graph.MarkFailed("b"))

	got := NewChecker(rules.Table[Requirement]{}).CheckGoal(goal.Goal{}, graph, goal.NewExecutionState())
	assert.False(t, got.Completed)
	assert.Equal(t, "Not all subgoals completed", got.Reason)
	assert.Equal(t, 1, got.Progress.Failed)
	assert.Nil(t, got.Summary)
}

func TestEvaluateCondition(t *testing.T) {
	long := strings.Repeat("wireless mouse ", 2)
	tests := []struct {
		name      string
		condition string
		state     goal.ExecutionState
		want      bool
	}{
		{"at least met", "at least 2 items", goal.ExecutionState{CollectedData: []string{"a"}, Results: []string{"b"}}, true},
		{"at least unmet", "at least 3 entries", goal.ExecutionState{Results: []string{"b"}}, false},
		{"minimum", "minimum 1", goal.ExecutionState{}, false},
		{"relevant without content", "relevant information extracted", goal.ExecutionState{CollectedData: []string{"short"}}, false},
		{"relevant with content", "relevant information extracted", goal.ExecutionState{CollectedData: []string{long}}, true},
		{"comprehensive", "comprehensive list", goal.ExecutionState{Results: []string{"a", "b"}}, false},
		{"completed is not complete", "Comparison completed and best option identified", goal.ExecutionState{}, true},
		{"no requirements", "Target page reached", goal.ExecutionState{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, ok := EvaluateCondition(tt.condition, &tt.state)
			assert.Equal(t, tt.want, ok, reason)
		})
	}
}

func TestEvaluateCondition_CountsEachItemOnce(t *testing.T) {
	state := goal.NewExecutionState()
	state.Absorb("subgoal_1", goal.SubgoalOutcome{Status: "completed", Data: []string{"first", "second", "third"}})
	state.Collect()
	require.Equal(t, 3, state.ItemCount())

	reason, ok := EvaluateCondition("Collect at least 6 items", state)
	assert.False(t, ok)
	assert.Equal(t, "Required 6 items, only found 3", reason)

	_, ok = EvaluateCondition("Collect at least 3 items", state)
	assert.True(t, ok)

	in := InputsFor(goal.Goal{Statement: "Collect items"}, state)
	assert.Equal(t, 3, in.TotalItems)
	assert.Equal(t, 3, in.CollectedItems)
}

func TestParseRequirements(t *testing.T) {
	assert.Equal(t, Requirements{Top: 10, Count: 10}, ParseRequirements("Top 10 results obtained"))
	assert.Equal(t, Requirements{Count: 4}, ParseRequirements("4 listings"))
	assert.Equal(t, Requirements{}, ParseRequirements("anything else"))
}

func TestScore(t *testing.T) {
	score, details := Score(QualityInputs{
		TotalItems: 6, CollectedItems: 3, RichItems: 3, GoalAligned: true, TotalActions: 4, EstimatedSteps: 3,
	})
	assert.Equal(t, 100, score)
	assert.Len(t, details, 4)

	score, details = Score(QualityInputs{TotalItems: 1, TotalActions: 20, EstimatedSteps: 3})
	assert.Equal(t, 10, score)
	assert.Equal(t, []string{"Low data volume", "Limited goal alignment", "Execution could be more efficient"}, details)

	score, _ = Score(QualityInputs{TotalItems: 2, CollectedItems: 2, RichItems: 1, EstimatedSteps: 2})
	assert.Equal(t, 15+10+25, score)
}

func TestInputsFor(t *testing.T) {
	state := goal.NewExecutionState()
	state.CollectedData = []string{strings.Repeat("x", 60), "short"}
	state.Results = []string{"Logitech wireless mouse"}
	state.TotalActions = 7

	in := InputsFor(goal.Goal{Statement: "Search for wireless mice", EstimatedSteps: 3}, state)
	assert.Equal(t, QualityInputs{
		TotalItems: 3, CollectedItems: 2, RichItems: 1, GoalAligned: true, TotalActions: 7, EstimatedSteps: 3,
	}, in)
}

func FuzzScoreBounds(f *testing.F) {
	f.Add([]byte{1, 2, 3, 4, 5, 6})
	f.Fuzz(func(t *testing.T, data []byte) {
		c := fuzz.NewConsumer(data)
		var in QualityInputs
		if err := c.GenerateStruct(&in); err != nil {
			return
		}
		score, details := Score(in)
		if score < 0 || score > 100 {
			t.Fatalf("Score(%+v) = %d, outside [0,100]", in, score)
		}
		if len(details) == 0 {
			t.Fatalf("Score(%+v) produced no details", in)
		}
	})
}
