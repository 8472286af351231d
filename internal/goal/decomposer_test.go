package goal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/goalpilot/internal/rules"
)

func TestDecompose_SearchChain(t *testing.T) {
	g := NewInterpreter().Interpret("search for wireless mice")
	subgoals := NewDecomposer(rules.Table[string]{}).Decompose(g)

	require.Len(t, subgoals, 5)
	for i, sg := range subgoals {
		assert.Equal(t, SubgoalID(i+1), sg.ID)
		assert.Len(t, sg.Dependencies, i, "subgoal %d depends on every predecessor", i+1)
		for j, dep := range sg.Dependencies {
			assert.Equal(t, SubgoalID(j+1), dep)
		}
		assert.Equal(t, DefaultEstimatedActions, sg.EstimatedActions)
		assert.Equal(t, StatusPending, sg.Status)
	}
	assert.Equal(t, "Navigate to target website", subgoals[0].Description)
	assert.Equal(t, "Target page loaded successfully", subgoals[0].SuccessCriteria)
	assert.Equal(t, "Search executed and results displayed", subgoals[2].SuccessCriteria)
	// "Extract search results" mentions search, and the search rule is checked first.
	assert.Equal(t, "Extract search results", subgoals[3].Description)
	assert.Equal(t, "Search executed and results displayed", subgoals[3].SuccessCriteria)
	assert.Equal(t, "Data properly formatted and structured", subgoals[4].SuccessCriteria)
}

func TestDecompose_TemplatesPerType(t *testing.T) {
	d := NewDecomposer(rules.Table[string]{})
	tests := map[Type]int{
		TypeSearch:      5,
		TypeExtraction:  5,
		TypeComparison:  6,
		TypeAnalysis:    5,
		TypeNavigation:  4,
		TypeInteraction: 4,
	}
	for typ, n := range tests {
		t.Run(string(typ), func(t *testing.T) {
			assert.Len(t, d.Decompose(Goal{Type: typ, Domain: DomainGeneral}), n)
		})
	}
}

func TestDecompose_DomainOverrides(t *testing.T) {
	in := NewInterpreter()
	d := NewDecomposer(rules.Table[string]{})

	yt := d.Decompose(in.Interpret("search for lofi beats on youtube"))
	assert.Equal(t, "Open YouTube and navigate to relevant section", yt[0].Description)
	assert.Equal(t, "Find YouTube search bar", yt[1].Description)
	assert.Equal(t, "Search for: lofi beats", yt[2].Description)

	li := d.Decompose(in.Interpret("search for golang jobs in linkedin"))
	assert.Equal(t, "Search for jobs: golang jobs", li[2].Description)
	assert.Equal(t, "Extract job listings with details", li[3].Description)
	// Steps without an override keep the template wording.
	assert.Equal(t, "Format and present results", li[4].Description)
}

func TestSearchTerm(t *testing.T) {
	assert.Equal(t, "red shoes", SearchTerm("Search for red shoes on amazon"))
	assert.Equal(t, "flats", SearchTerm("find flats in paris"))
	assert.Equal(t, "No verb here", SearchTerm("No verb here"))
}

func TestDecompose_CustomCriteria(t *testing.T) {
	d := NewDecomposer(rules.Table[string]{
		Rules: []rules.Rule[string]{{Any: []string{"locate"}, Result: "Element located"}},
	})
	subgoals := d.Decompose(Goal{Type: TypeSearch})
	assert.Equal(t, "Element located", subgoals[1].SuccessCriteria)
	assert.Equal(t, "Subgoal completed successfully", subgoals[0].SuccessCriteria)
}
