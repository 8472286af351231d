package retry

import (
	"sort"
	"sync"
	"time"

	"github.com/xkilldash9x/goalpilot/internal/action"
)

// Record summarizes one ExecuteWithRetry call.
type Record struct {
	ActionKind action.Kind   `json:"action_kind"`
	Selector   string        `json:"selector,omitempty"`
	Outcome    string        `json:"outcome"`
	Attempts   int           `json:"attempts"`
	Success    bool          `json:"success"`
	FinalError string        `json:"final_error,omitempty"`
	Duration   time.Duration `json:"duration"`
	Timestamp  time.Time     `json:"timestamp"`
}

// ErrorCount pairs an error message with its frequency.
type ErrorCount struct {
	Error string `json:"error"`
	Count int    `json:"count"`
}

// Stats aggregates the retained retry records. SuccessRate is a percentage.
type Stats struct {
	Total           int          `json:"total_retries"`
	Successful      int          `json:"successful_retries"`
	Failed          int          `json:"failed_retries"`
	SuccessRate     float64      `json:"success_rate"`
	AverageAttempts float64      `json:"average_attempts"`
	CommonErrors    []ErrorCount `json:"common_errors"`
}

// DefaultHistoryLimit is the number of retry records kept.
const DefaultHistoryLimit = 50

// History is a bounded append-only log of retry records, safe for concurrent goals.
type History struct {
	mu      sync.Mutex
	limit   int
	records []Record
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit}
}

func (h *History) Append(r Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	if over := len(h.records) - h.limit; over > 0 {
		h.records = append([]Record(nil), h.records[over:]...)
	}
}

// Records returns a copy of the retained records, oldest first.
func (h *History) Records() []Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Record(nil), h.records...)
}

func (h *History) Stats() Stats {
	records := h.Records()
	s := Stats{Total: len(records), CommonErrors: []ErrorCount{}}
	if s.Total == 0 {
		return s
	}

	attempts := 0
	errCounts := make(map[string]int)
	for _, r := range records {
		attempts += r.Attempts
		if r.Success {
			s.Successful++
		} else {
			s.Failed++
		}
		if r.FinalError != "" {
			errCounts[r.FinalError]++
		}
	}
	s.SuccessRate = float64(s.Successful) / float64(s.Total) * 100
	s.AverageAttempts = float64(attempts) / float64(s.Total)

	for msg, n := range errCounts {
		s.CommonErrors = append(s.CommonErrors, ErrorCount{Error: msg, Count: n})
	}
	sort.Slice(s.CommonErrors, func(i, j int) bool {
		if s.CommonErrors[i].Count != s.CommonErrors[j].Count {
			return s.CommonErrors[i].Count > s.CommonErrors[j].Count
		}
		return s.CommonErrors[i].Error < s.CommonErrors[j].Error
	})
	if len(s.CommonErrors) > 5 {
		s.CommonErrors = s.CommonErrors[:5]
	}
	return s
}
