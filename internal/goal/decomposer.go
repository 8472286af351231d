package goal

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/goalpilot/internal/rules"
)

// DefaultEstimatedActions is the action estimate given to every decomposed subgoal.
const DefaultEstimatedActions = 3

var templates = map[Type][]string{
	TypeSearch: {
		"Navigate to target website",
		"Locate search functionality",
		"Execute search query",
		"Extract search results",
		"Format and present results",
	},
	TypeExtraction: {
		"Navigate to target page",
		"Locate target elements",
		"Extract required data",
		"Structure extracted data",
		"Validate data completeness",
	},
	TypeComparison: {
		"Identify items to compare",
		"Extract data for first item",
		"Extract data for second item",
		"Perform comparison analysis",
		"Identify best option",
		"Present comparison results",
	},
	TypeAnalysis: {
		"Gather relevant data",
		"Extract key information",
		"Perform analysis",
		"Generate insights",
		"Create summary",
	},
}

var defaultTemplate = []string{
	"Navigate to target location",
	"Perform primary action",
	"Extract results",
	"Format output",
}

// domainOverrides rewrite template steps with site wording. %s receives the search term.
var domainOverrides = map[string]map[string]string{
	"youtube": {
		"Navigate to target website": "Open YouTube and navigate to relevant section",
		"Locate search functionality": "Find YouTube search bar",
		"Execute search query":        "Search for: %s",
		"Extract search results":      "Extract video results from search page",
	},
	"amazon": {
		"Navigate to target website": "Open Amazon homepage",
		"Locate search functionality": "Find Amazon search bar",
		"Execute search query":        "Search for: %s",
		"Extract search results":      "Extract product listings with prices",
	},
	"linkedin": {
		"Navigate to target website": "Open LinkedIn and navigate to jobs section",
		"Locate search functionality": "Find LinkedIn job search bar",
		"Execute search query":        "Search for jobs: %s",
		"Extract search results":      "Extract job listings with details",
	},
}

var searchTermRes = compileAll(
	`search\s+(?:for\s+)?(.+?)(?:\s+on|\s+in|$)`,
	`find\s+(.+?)(?:\s+on|\s+in|$)`,
	`look\s+for\s+(.+?)(?:\s+on|\s+in|$)`,
)

// DefaultCriteriaRules derive a subgoal's success criteria from its description.
func DefaultCriteriaRules() rules.Table[string] {
	return rules.Table[string]{
		Default: "Subgoal completed successfully",
		Rules: []rules.Rule[string]{
			{Any: []string{"navigate"}, Result: "Target page loaded successfully"},
			{Any: []string{"search"}, Result: "Search executed and results displayed"},
			{Any: []string{"extract"}, Result: "Required data extracted successfully"},
			{Any: []string{"format"}, Result: "Data properly formatted and structured"},
		},
	}
}

// Decomposer breaks a Goal into a linear chain of subgoals.
type Decomposer struct {
	criteria rules.Table[string]
}

// NewDecomposer returns a decomposer. A criteria table without rules selects the defaults.
func NewDecomposer(criteria rules.Table[string]) *Decomposer {
	if len(criteria.Rules) == 0 {
		criteria = DefaultCriteriaRules()
	}
	if criteria.Default == "" {
		criteria.Default = DefaultCriteriaRules().Default
	}
	return &Decomposer{criteria: criteria}
}

// Decompose returns one subgoal per template step. subgoal_k depends on every earlier
// subgoal, so the result is always a totally ordered chain.
func (d *Decomposer) Decompose(g Goal) []Subgoal {
	steps, ok := templates[g.Type]
	if !ok {
		steps = defaultTemplate
	}

	subgoals := make([]Subgoal, 0, len(steps))
	for i, step := range steps {
		desc := customize(step, g)
		deps := make([]string, 0, i)
		for j := 1; j <= i; j++ {
			deps = append(deps, SubgoalID(j))
		}
		subgoals = append(subgoals, Subgoal{
			ID:               SubgoalID(i + 1),
			Description:      desc,
			Dependencies:     deps,
			SuccessCriteria:  d.criteria.Resolve(desc),
			EstimatedActions: DefaultEstimatedActions,
			Status:           StatusPending,
		})
	}
	return subgoals
}

// SubgoalID names the n-th (1-based) subgoal of a decomposition.
func SubgoalID(n int) string {
	return fmt.Sprintf("subgoal_%d", n)
}

func customize(step string, g Goal) string {
	override, ok := domainOverrides[g.Domain][step]
	if !ok {
		return step
	}
	if strings.Contains(override, "%s") {
		return fmt.Sprintf(override, SearchTerm(g.Statement))
	}
	return override
}

// SearchTerm pulls the searched-for phrase out of a goal statement, stopping before a
// trailing "on <site>" or "in <place>". The whole statement is returned when no pattern matches.
func SearchTerm(statement string) string {
	lower := strings.ToLower(statement)
	for _, re := range searchTermRes {
		if m := re.FindStringSubmatch(lower); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return statement
}
