// Package retry wraps single action executions with bounded, policy-driven retries.
package retry

import (
	"github.com/xkilldash9x/goalpilot/internal/action"
	"github.com/xkilldash9x/goalpilot/internal/recovery"
)

// Result is the terminal outcome of ExecuteWithRetry: exactly one of Success,
// ReplanRequired or Exhausted.
type Result interface {
	// Attempts is the number of times the main action was executed.
	Attempts() int
	isResult()
}

// Success carries the successful outcome and the action that produced it.
type Success struct {
	Outcome      action.Outcome
	Action       action.Action
	AttemptCount int
}

// ReplanRequired means the policy decided the action should be reconsidered upstream.
type ReplanRequired struct {
	Action       action.Action
	LastError    string
	Kind         recovery.ErrorKind
	Reason       string
	AttemptCount int
}

// Exhausted means the retry budget ran out, or retrying was aborted early.
type Exhausted struct {
	Action       action.Action
	LastError    string
	Kind         recovery.ErrorKind
	Aborted      bool
	LastOutcome  action.Outcome
	AttemptCount int
}

func (s Success) Attempts() int        { return s.AttemptCount }
func (r ReplanRequired) Attempts() int { return r.AttemptCount }
func (e Exhausted) Attempts() int      { return e.AttemptCount }

func (Success) isResult()        {}
func (ReplanRequired) isResult() {}
func (Exhausted) isResult()      {}

// Label names the outcome kind, for logs and metrics.
func Label(r Result) string {
	switch r.(type) {
	case Success:
		return "success"
	case ReplanRequired:
		return "replan_required"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}
