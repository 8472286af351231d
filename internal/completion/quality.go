package completion

import (
	"strings"

	"github.com/xkilldash9x/goalpilot/internal/goal"
)

// Each quality bucket contributes at most bucketMax points.
const (
	bucketMax       = 25
	partialVolume   = 15
	partialBucket   = 10
	goodVolume      = 5
	moderateVolume  = 2
	richItemLength  = 50
	richShare       = 0.7
	efficiencySlack = 1.5
)

// QualityInputs are the raw measurements behind a quality score.
type QualityInputs struct {
	TotalItems     int
	CollectedItems int
	RichItems      int
	GoalAligned    bool
	TotalActions   int
	EstimatedSteps int
}

// InputsFor measures the state of a finished goal.
func InputsFor(g goal.Goal, state *goal.ExecutionState) QualityInputs {
	in := QualityInputs{
		TotalItems:     state.ItemCount(),
		CollectedItems: len(state.CollectedData),
		TotalActions:   state.TotalActions,
		EstimatedSteps: g.EstimatedSteps,
	}
	for _, item := range state.CollectedData {
		if len(item) > richItemLength {
			in.RichItems++
		}
	}
	in.GoalAligned = aligned(g.Statement, state.Results)
	return in
}

// aligned reports whether any significant word of the statement occurs in the results.
func aligned(statement string, results []string) bool {
	if len(results) == 0 {
		return false
	}
	text := strings.ToLower(strings.Join(results, " "))
	for _, word := range strings.Fields(strings.ToLower(statement)) {
		if len(word) > 2 && strings.Contains(text, word) {
			return true
		}
	}
	return false
}

// Score sums four independently capped buckets (volume, richness, alignment, efficiency)
// into a score in [0, 100], with one detail line per bucket.
func Score(in QualityInputs) (int, []string) {
	score := 0
	details := make([]string, 0, 4)

	switch {
	case in.TotalItems >= goodVolume:
		score += bucketMax
		details = append(details, "Good data volume")
	case in.TotalItems >= moderateVolume:
		score += partialVolume
		details = append(details, "Moderate data volume")
	default:
		details = append(details, "Low data volume")
	}

	if in.CollectedItems > 0 {
		if float64(in.RichItems) >= float64(in.CollectedItems)*richShare {
			score += bucketMax
			details = append(details, "Rich data content")
		} else {
			score += partialBucket
			details = append(details, "Moderate data content")
		}
	}

	if in.GoalAligned {
		score += bucketMax
		details = append(details, "Good goal alignment")
	} else {
		details = append(details, "Limited goal alignment")
	}

	if float64(max(in.TotalActions, 0)) <= float64(in.EstimatedSteps)*efficiencySlack {
		score += bucketMax
		details = append(details, "Efficient execution")
	} else {
		score += partialBucket
		details = append(details, "Execution could be more efficient")
	}

	return min(max(score, 0), 4*bucketMax), details
}
