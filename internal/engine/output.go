package engine

import (
	"time"

	"github.com/xkilldash9x/goalpilot/internal/completion"
	"github.com/xkilldash9x/goalpilot/internal/goal"
)

// OutputStatus is the overall verdict of a goal execution.
type OutputStatus string

const (
	OutputSuccess OutputStatus = "success"
	OutputPartial OutputStatus = "partial"
	OutputError   OutputStatus = "error"
)

// Statistics are the counters of one execution.
type Statistics struct {
	TotalActions      int     `json:"total_actions"`
	ExecutionTime     float64 `json:"execution_time"`
	ErrorsEncountered int     `json:"errors_encountered"`
	RetryAttempts     int     `json:"retry_attempts"`
	SubgoalsCompleted int     `json:"subgoals_completed"`
}

// FinalOutput is the structured result of ExecuteGoal. Failures are reported here,
// never as a Go error.
type FinalOutput struct {
	Status           OutputStatus          `json:"status"`
	GoalID           string                `json:"goal_id,omitempty"`
	Goal             string                `json:"goal"`
	GoalType         goal.Type             `json:"goal_type,omitempty"`
	Domain           string                `json:"domain,omitempty"`
	OriginalCommand  string                `json:"original_command"`
	SuccessCondition string                `json:"success_condition,omitempty"`
	CompletionCheck  *completion.GoalCheck `json:"completion_check,omitempty"`

	Results          []string            `json:"results,omitempty"`
	PartialResults   []string            `json:"partial_results,omitempty"`
	QualityScore     int                 `json:"quality_score,omitempty"`
	ExecutionSummary *completion.Summary `json:"execution_summary,omitempty"`
	Reason           string              `json:"reason,omitempty"`
	Progress         *goal.Progress      `json:"progress,omitempty"`
	Error            string              `json:"error,omitempty"`

	Subgoals   []goal.Subgoal `json:"subgoals,omitempty"`
	Statistics Statistics     `json:"statistics"`
	Message    string         `json:"message"`
	Timestamp  time.Time      `json:"timestamp"`
}

func buildOutput(g goal.Goal, graph *goal.Graph, check completion.GoalCheck, state *goal.ExecutionState, now time.Time) FinalOutput {
	out := FinalOutput{
		GoalID:           g.ID,
		Goal:             g.Statement,
		GoalType:         g.Type,
		Domain:           g.Domain,
		OriginalCommand:  g.OriginalCommand,
		SuccessCondition: g.SuccessCondition,
		CompletionCheck:  &check,
		Subgoals:         graph.Subgoals(),
		Timestamp:        now,
		Statistics: Statistics{
			TotalActions:      state.TotalActions,
			ExecutionTime:     state.ExecutionTime.Seconds(),
			ErrorsEncountered: state.ErrorsEncountered,
			RetryAttempts:     state.RetryAttempts,
			SubgoalsCompleted: check.Progress.Completed,
		},
	}

	if check.Completed {
		out.Status = OutputSuccess
		out.Results = append([]string{}, state.CollectedData...)
		out.ExecutionSummary = check.Summary
		out.QualityScore = check.QualityScore
		out.Message = "Goal completed successfully"
		return out
	}

	progress := check.Progress
	out.Status = OutputPartial
	out.PartialResults = append([]string{}, state.CollectedData...)
	out.Reason = check.Reason
	out.Progress = &progress
	out.Message = "Goal partially completed or failed"
	return out
}

func errorOutput(command string, err error, now time.Time) FinalOutput {
	return FinalOutput{
		Status:          OutputError,
		Goal:            command,
		OriginalCommand: command,
		Error:           err.Error(),
		Message:         "Goal execution failed",
		Timestamp:       now,
	}
}
