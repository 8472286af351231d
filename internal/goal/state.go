package goal

import (
	"time"

	"github.com/xkilldash9x/goalpilot/internal/action"
)

// SubgoalOutcome summarizes how the executor loop ended for one subgoal.
type SubgoalOutcome struct {
	Status            string              `json:"status"`
	Message           string              `json:"message,omitempty"`
	TotalActions      int                 `json:"total_actions"`
	ErrorsEncountered int                 `json:"errors_encountered"`
	RetryAttempts     int                 `json:"retry_attempts"`
	Data              []string            `json:"data,omitempty"`
	LastOutcome       *action.Outcome     `json:"last_outcome,omitempty"`
	Observation       *action.Observation `json:"observation,omitempty"`
}

// ExecutionState accumulates everything observed while one goal runs. It is owned by a
// single execution and discarded afterwards.
type ExecutionState struct {
	// CollectedData holds items from subgoals that passed their completion check.
	CollectedData []string `json:"collected_data"`
	// Results holds every item extracted during the run, whether or not its subgoal passed.
	Results []string `json:"results"`
	// ExtractedData is what the most recent subgoal extracted.
	ExtractedData     []string                  `json:"extracted_data,omitempty"`
	DOMState          *action.Observation       `json:"dom_state,omitempty"`
	LastOutcome       *action.Outcome           `json:"last_outcome,omitempty"`
	TotalActions      int                       `json:"total_actions"`
	ErrorsEncountered int                       `json:"errors_encountered"`
	RetryAttempts     int                       `json:"retry_attempts"`
	SubgoalResults    map[string]SubgoalOutcome `json:"subgoal_results"`
	ExecutionTime     time.Duration             `json:"execution_time"`
}

func NewExecutionState() *ExecutionState {
	return &ExecutionState{
		CollectedData:  []string{},
		Results:        []string{},
		SubgoalResults: make(map[string]SubgoalOutcome),
	}
}

// Absorb merges a subgoal's counters and payload into the state.
func (s *ExecutionState) Absorb(id string, out SubgoalOutcome) {
	s.SubgoalResults[id] = out
	s.TotalActions += out.TotalActions
	s.ErrorsEncountered += out.ErrorsEncountered
	s.RetryAttempts += out.RetryAttempts

	s.ExtractedData = append([]string(nil), out.Data...)
	s.Results = append(s.Results, out.Data...)
	if out.Observation != nil {
		obs := *out.Observation
		s.DOMState = &obs
	}
	s.LastOutcome = out.LastOutcome
}

// Collect records the latest subgoal's data as confirmed results.
func (s *ExecutionState) Collect() {
	s.CollectedData = append(s.CollectedData, s.ExtractedData...)
}

// ItemCount is the number of items across CollectedData and Results. Collected items are
// normally also in Results, so an item present in both counts once; repeated items count
// as many times as the longer of the two lists holds them.
func (s *ExecutionState) ItemCount() int {
	unmatched := make(map[string]int, len(s.Results))
	for _, r := range s.Results {
		unmatched[r]++
	}
	n := len(s.Results)
	for _, c := range s.CollectedData {
		if unmatched[c] > 0 {
			unmatched[c]--
			continue
		}
		n++
	}
	return n
}
