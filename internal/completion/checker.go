// Package completion decides whether subgoals and goals have been achieved.
package completion

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xkilldash9x/goalpilot/internal/action"
	"github.com/xkilldash9x/goalpilot/internal/goal"
	"github.com/xkilldash9x/goalpilot/internal/rules"
)

// Requirement is the evidence a subgoal's success criteria ask for.
type Requirement string

const (
	RequirePageLoaded    Requirement = "page_loaded"
	RequireSearchInput   Requirement = "search_input"
	RequireDataExtracted Requirement = "data_extracted"
	RequireActionOK      Requirement = "action_ok"
)

// DefaultCriteriaRules map success-criteria text to the evidence checked for it.
func DefaultCriteriaRules() rules.Table[Requirement] {
	return rules.Table[Requirement]{
		Default: RequireActionOK,
		Rules: []rules.Rule[Requirement]{
			{Any: []string{"navigate", "page loaded"}, Result: RequirePageLoaded},
			{Any: []string{"search"}, Result: RequireSearchInput},
			{Any: []string{"extract"}, Result: RequireDataExtracted},
		},
	}
}

var placeholderURLs = map[string]bool{
	"about:blank":  true,
	"about:srcdoc": true,
	"data:,":       true,
}

var (
	topRe   = regexp.MustCompile(`top\s+(\d+)`)
	countRe = []*regexp.Regexp{
		regexp.MustCompile(`(\d+)\s+items?`),
		regexp.MustCompile(`(\d+)\s+results?`),
		regexp.MustCompile(`(\d+)\s+listings?`),
		regexp.MustCompile(`at\s+least\s+(\d+)`),
		regexp.MustCompile(`minimum\s+(\d+)`),
	}
	completeRe = regexp.MustCompile(`\b(?:complete|comprehensive)\b`)
)

// Thresholds for the qualitative checks.
const (
	minRelevantLength  = 10
	minCompleteResults = 3
)

// SubgoalCheck is the verdict for one subgoal.
type SubgoalCheck struct {
	Completed   bool     `json:"completed"`
	Reason      string   `json:"reason"`
	Suggestions []string `json:"suggestions,omitempty"`
	DataValid   bool     `json:"data_valid"`
	DataDetails string   `json:"data_details,omitempty"`
}

// Summary describes a finished run.
type Summary struct {
	TotalSubgoals     int           `json:"total_subgoals"`
	CompletedSubgoals int           `json:"completed_subgoals"`
	FailedSubgoals    int           `json:"failed_subgoals"`
	SuccessRate       float64       `json:"success_rate"`
	TotalActions      int           `json:"total_actions"`
	ExecutionTime     time.Duration `json:"execution_time"`
	ErrorsEncountered int           `json:"errors_encountered"`
	RetryAttempts     int           `json:"retry_attempts"`
}

// GoalCheck is the verdict for a whole goal.
type GoalCheck struct {
	Completed      bool          `json:"completed"`
	Reason         string        `json:"reason"`
	QualityScore   int           `json:"quality_score,omitempty"`
	QualityDetails []string      `json:"quality_details,omitempty"`
	Progress       goal.Progress `json:"progress"`
	Summary        *Summary      `json:"execution_summary,omitempty"`
}

// Checker evaluates completion. It holds no mutable state.
type Checker struct {
	criteria rules.Table[Requirement]
}

// NewChecker returns a checker over the given criteria table. A table without rules
// selects the defaults.
func NewChecker(criteria rules.Table[Requirement]) *Checker {
	if len(criteria.Rules) == 0 {
		criteria = DefaultCriteriaRules()
	}
	if criteria.Default == "" {
		criteria.Default = RequireActionOK
	}
	return &Checker{criteria: criteria}
}

// CheckSubgoal evaluates sg's success criteria against the latest state. A failed or
// missing last action always fails the check.
func (c *Checker) CheckSubgoal(sg goal.Subgoal, state *goal.ExecutionState) SubgoalCheck {
	last := state.LastOutcome
	if last == nil || !last.OK {
		msg := "no action executed"
		if last != nil && last.Error != "" {
			msg = last.Error
		}
		return SubgoalCheck{
			Reason:      "Last action failed: " + msg,
			Suggestions: []string{"Retry the action", "Try alternative approach"},
		}
	}

	var check SubgoalCheck
	switch c.criteria.Resolve(sg.SuccessCriteria) {
	case RequirePageLoaded:
		if state.DOMState == nil || !loaded(state.DOMState.URL) {
			return SubgoalCheck{
				Reason:      "Navigation not completed",
				Suggestions: []string{"Wait for page to load", "Check network connection"},
			}
		}
		check = SubgoalCheck{Completed: true, Reason: "Navigation successful"}
	case RequireSearchInput:
		if !state.DOMState.HasSearchInputs() {
			return SubgoalCheck{
				Reason:      "Search functionality not found",
				Suggestions: []string{"Try alternative search selectors", "Scroll to find search bar"},
			}
		}
		check = SubgoalCheck{Completed: true, Reason: "Search functionality found"}
	case RequireDataExtracted:
		if len(state.ExtractedData) == 0 {
			return SubgoalCheck{
				Reason:      "No data extracted",
				Suggestions: []string{"Check element selectors", "Wait for content to load"},
			}
		}
		check = SubgoalCheck{Completed: true, Reason: fmt.Sprintf("Extracted %d items", len(state.ExtractedData))}
	default:
		check = SubgoalCheck{Completed: true, Reason: "Subgoal completed successfully"}
	}

	check.DataValid, check.DataDetails = validateData(sg, state, last)
	return check
}

func validateData(sg goal.Subgoal, state *goal.ExecutionState, last *action.Outcome) (bool, string) {
	desc := strings.ToLower(sg.Description)
	switch {
	case strings.Contains(desc, "extract"):
		if len(last.Data) == 0 {
			return false, "No data extracted"
		}
		return true, fmt.Sprintf("Extracted %d items", len(last.Data))
	case strings.Contains(desc, "navigate"):
		if state.DOMState == nil || state.DOMState.URL == "" {
			return false, "Navigation not confirmed"
		}
		return true, fmt.Sprintf("Navigation to %s successful", state.DOMState.URL)
	default:
		return true, "Action completed successfully"
	}
}

func loaded(url string) bool {
	url = strings.TrimSpace(url)
	return url != "" && !placeholderURLs[url]
}

// CheckGoal requires every subgoal to be complete, then the success condition's numeric
// and qualitative requirements to hold. A completed goal carries a quality score.
func (c *Checker) CheckGoal(g goal.Goal, graph *goal.Graph, state *goal.ExecutionState) GoalCheck {
	progress := graph.Progress()
	if !graph.IsComplete() {
		return GoalCheck{Reason: "Not all subgoals completed", Progress: progress}
	}
	if reason, ok := EvaluateCondition(g.SuccessCondition, state); !ok {
		return GoalCheck{Reason: "Success condition not met: " + reason, Progress: progress}
	}

	score, details := Score(InputsFor(g, state))
	return GoalCheck{
		Completed:      true,
		Reason:         "Goal completed successfully",
		QualityScore:   score,
		QualityDetails: details,
		Progress:       progress,
		Summary:        summarize(progress, state),
	}
}

// Requirements are the numeric targets embedded in a success condition. Zero means none.
type Requirements struct {
	Top   int
	Count int
}

// ParseRequirements extracts "top N" and the first count phrase ("N items", "N results",
// "N listings", "at least N", "minimum N") from condition.
func ParseRequirements(condition string) Requirements {
	lower := strings.ToLower(condition)
	var req Requirements
	if m := topRe.FindStringSubmatch(lower); m != nil {
		req.Top, _ = strconv.Atoi(m[1])
	}
	for _, re := range countRe {
		if m := re.FindStringSubmatch(lower); m != nil {
			req.Count, _ = strconv.Atoi(m[1])
			break
		}
	}
	return req
}

// EvaluateCondition checks condition against the state and returns the first unmet
// requirement as the reason.
func EvaluateCondition(condition string, state *goal.ExecutionState) (string, bool) {
	req := ParseRequirements(condition)
	if req.Top > 0 && len(state.Results) < req.Top {
		return fmt.Sprintf("Required top %d results, only found %d", req.Top, len(state.Results)), false
	}
	if req.Count > 0 && state.ItemCount() < req.Count {
		return fmt.Sprintf("Required %d items, only found %d", req.Count, state.ItemCount()), false
	}

	lower := strings.ToLower(condition)
	if strings.Contains(lower, "relevant") && !hasSubstantialItem(state.CollectedData) {
		return "Results lack sufficient content for relevance assessment", false
	}
	if completeRe.MatchString(lower) && len(state.Results) < minCompleteResults {
		return "Results may not be comprehensive enough", false
	}
	return "All success conditions met", true
}

func hasSubstantialItem(items []string) bool {
	for _, it := range items {
		if len(it) >= minRelevantLength {
			return true
		}
	}
	return false
}

func summarize(p goal.Progress, state *goal.ExecutionState) *Summary {
	s := &Summary{
		TotalSubgoals:     p.Total,
		CompletedSubgoals: p.Completed,
		FailedSubgoals:    p.Failed,
		TotalActions:      state.TotalActions,
		ExecutionTime:     state.ExecutionTime,
		ErrorsEncountered: state.ErrorsEncountered,
		RetryAttempts:     state.RetryAttempts,
	}
	if p.Total > 0 {
		s.SuccessRate = float64(p.Completed) / float64(p.Total) * 100
	}
	return s
}
