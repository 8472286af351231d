// Package recovery classifies failed actions and decides how to correct them.
package recovery

import (
	"github.com/xkilldash9x/goalpilot/internal/rules"
)

// ErrorKind is the classification of a failed action.
type ErrorKind string

const (
	KindElementNotFound   ErrorKind = "element_not_found"
	KindElementNotVisible ErrorKind = "element_not_visible"
	KindElementDisabled   ErrorKind = "element_disabled"
	KindTimeout           ErrorKind = "timeout"
	KindPageNotLoaded     ErrorKind = "page_not_loaded"
	KindSelectorInvalid   ErrorKind = "selector_invalid"
	KindNetworkError      ErrorKind = "network_error"
	KindUnknown           ErrorKind = "unknown_error"
)

// DefaultClassifierRules is the built-in ordered substring table. First match wins.
func DefaultClassifierRules() rules.Table[ErrorKind] {
	return rules.Table[ErrorKind]{
		Default: KindUnknown,
		Rules: []rules.Rule[ErrorKind]{
			{Any: []string{"not found"}, Result: KindElementNotFound},
			{Any: []string{"not visible"}, Result: KindElementNotVisible},
			{Any: []string{"disabled"}, Result: KindElementDisabled},
			{Any: []string{"timeout", "timed out"}, Result: KindTimeout},
			{Any: []string{"page not loaded", "loading"}, Result: KindPageNotLoaded},
			{All: []string{"selector", "invalid"}, Result: KindSelectorInvalid},
			{Any: []string{"network", "connection"}, Result: KindNetworkError},
		},
	}
}

// Classifier maps error messages to an ErrorKind using an ordered rule table.
type Classifier struct {
	table rules.Table[ErrorKind]
}

// NewClassifier returns a classifier over table. A table without rules uses the defaults.
func NewClassifier(table rules.Table[ErrorKind]) *Classifier {
	if len(table.Rules) == 0 {
		table = DefaultClassifierRules()
	}
	if table.Default == "" {
		table.Default = KindUnknown
	}
	return &Classifier{table: table}
}

// Classify returns the kind of the first matching rule, or the table default.
func (c *Classifier) Classify(message string) ErrorKind {
	return c.table.Resolve(message)
}
