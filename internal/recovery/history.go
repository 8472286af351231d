package recovery

import (
	"sort"
	"sync"
	"time"

	"github.com/xkilldash9x/goalpilot/internal/action"
)

// ErrorRecord is one classified failure and the decision taken for it.
type ErrorRecord struct {
	Kind       ErrorKind   `json:"kind"`
	Message    string      `json:"message"`
	Strategy   Strategy    `json:"strategy,omitempty"`
	Attempt    int         `json:"attempt"`
	ActionKind action.Kind `json:"action_kind"`
	Timestamp  time.Time   `json:"timestamp"`
}

// ErrorSummary aggregates the retained history.
type ErrorSummary struct {
	Total      int               `json:"total_errors"`
	ByKind     map[ErrorKind]int `json:"by_kind"`
	ByStrategy map[Strategy]int  `json:"by_strategy"`
	MostCommon ErrorKind         `json:"most_common,omitempty"`
}

// History is a bounded append-only log shared by concurrent goal executions.
type History struct {
	mu      sync.Mutex
	limit   int
	records []ErrorRecord
}

// NewHistory keeps at most limit records, dropping the oldest.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 100
	}
	return &History{limit: limit}
}

func (h *History) Record(r ErrorRecord) {
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	if over := len(h.records) - h.limit; over > 0 {
		h.records = append([]ErrorRecord(nil), h.records[over:]...)
	}
}

// Records returns a copy of the retained records, oldest first.
func (h *History) Records() []ErrorRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ErrorRecord(nil), h.records...)
}

func (h *History) Summary() ErrorSummary {
	records := h.Records()
	s := ErrorSummary{
		Total:      len(records),
		ByKind:     make(map[ErrorKind]int),
		ByStrategy: make(map[Strategy]int),
	}
	for _, r := range records {
		s.ByKind[r.Kind]++
		if r.Strategy != "" {
			s.ByStrategy[r.Strategy]++
		}
	}

	kinds := make([]ErrorKind, 0, len(s.ByKind))
	for k := range s.ByKind {
		kinds = append(kinds, k)
	}
	// Ties resolve alphabetically so the summary is stable.
	sort.Slice(kinds, func(i, j int) bool {
		if s.ByKind[kinds[i]] != s.ByKind[kinds[j]] {
			return s.ByKind[kinds[i]] > s.ByKind[kinds[j]]
		}
		return kinds[i] < kinds[j]
	})
	if len(kinds) > 0 {
		s.MostCommon = kinds[0]
	}
	return s
}
