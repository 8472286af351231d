package engine

import (
	"sync"
	"time"
)

// recentExecutions is how many records Stats returns verbatim.
const recentExecutions = 5

// ExecutionRecord is the in-process summary of one goal execution.
type ExecutionRecord struct {
	GoalID            string        `json:"goal_id"`
	Goal              string        `json:"goal"`
	Timestamp         time.Time     `json:"timestamp"`
	Duration          time.Duration `json:"duration"`
	Completed         bool          `json:"completed"`
	SubgoalsCompleted int           `json:"subgoals_completed"`
	TotalSubgoals     int           `json:"total_subgoals"`
}

// ExecutionStats aggregates the retained records.
type ExecutionStats struct {
	TotalExecutions      int               `json:"total_executions"`
	SuccessfulExecutions int               `json:"successful_executions"`
	SuccessRate          float64           `json:"success_rate"`
	AverageExecutionTime time.Duration     `json:"average_execution_time"`
	AverageSubgoals      float64           `json:"average_subgoals"`
	RecentExecutions     []ExecutionRecord `json:"recent_executions"`
}

// History is a bounded, mutex-guarded log of executions shared by concurrent goals.
type History struct {
	mu      sync.Mutex
	limit   int
	records []ExecutionRecord
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 100
	}
	return &History{limit: limit}
}

func (h *History) Append(r ExecutionRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	if over := len(h.records) - h.limit; over > 0 {
		h.records = append([]ExecutionRecord(nil), h.records[over:]...)
	}
}

// Records returns a copy of the retained records, oldest first.
func (h *History) Records() []ExecutionRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ExecutionRecord(nil), h.records...)
}

// Stats computes aggregate statistics. SuccessRate is a percentage.
func (h *History) Stats() ExecutionStats {
	records := h.Records()
	s := ExecutionStats{TotalExecutions: len(records), RecentExecutions: []ExecutionRecord{}}
	if s.TotalExecutions == 0 {
		return s
	}

	var total time.Duration
	subgoals := 0
	for _, r := range records {
		if r.Completed {
			s.SuccessfulExecutions++
		}
		total += r.Duration
		subgoals += r.TotalSubgoals
	}
	n := len(records)
	s.SuccessRate = float64(s.SuccessfulExecutions) / float64(n) * 100
	s.AverageExecutionTime = total / time.Duration(n)
	s.AverageSubgoals = float64(subgoals) / float64(n)
	s.RecentExecutions = records[max(n-recentExecutions, 0):]
	return s
}
