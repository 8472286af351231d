// Package rules implements ordered keyword rule tables.
//
// A table is an ordered list of predicate -> result rules evaluated against lower-cased text;
// the first matching rule wins and Default applies when none match. The classifier, the goal
// interpreter and the completion checker all keep their heuristics in tables of this shape so
// they can be tested in isolation and overridden from a rule book file.
package rules

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrInvalidRule is returned when a rule cannot ever match or has no result.
var ErrInvalidRule = errors.New("invalid rule")

// Rule matches when every keyword in All occurs in the text and, if Any or Words is
// non-empty, at least one keyword in Any occurs or one entry of Words appears as a whole word.
// Words is for short aliases that would otherwise match inside longer words.
type Rule[T ~string] struct {
	All    []string `yaml:"all,omitempty" json:"all,omitempty"`
	Any    []string `yaml:"any,omitempty" json:"any,omitempty"`
	Words  []string `yaml:"words,omitempty" json:"words,omitempty"`
	Result T        `yaml:"result" json:"result"`
}

// Matches reports whether the rule applies to text. Matching is case-insensitive.
func (r Rule[T]) Matches(text string) bool {
	if len(r.All) == 0 && len(r.Any) == 0 && len(r.Words) == 0 {
		return false
	}
	lower := strings.ToLower(text)
	for _, kw := range r.All {
		if !strings.Contains(lower, strings.ToLower(kw)) {
			return false
		}
	}
	if len(r.Any) == 0 && len(r.Words) == 0 {
		return true
	}
	for _, kw := range r.Any {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	if len(r.Words) > 0 {
		for _, w := range words(lower) {
			for _, kw := range r.Words {
				if w == strings.ToLower(kw) {
					return true
				}
			}
		}
	}
	return false
}

// words splits text on anything that is not a letter or digit.
func words(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Table is an ordered rule list with a fallback result.
type Table[T ~string] struct {
	Rules   []Rule[T] `yaml:"rules" json:"rules"`
	Default T         `yaml:"default" json:"default"`
}

// Match returns the result of the first matching rule.
func (t Table[T]) Match(text string) (T, bool) {
	for _, r := range t.Rules {
		if r.Matches(text) {
			return r.Result, true
		}
	}
	var zero T
	return zero, false
}

// Resolve returns the first matching result or the table default.
func (t Table[T]) Resolve(text string) T {
	if res, ok := t.Match(text); ok {
		return res
	}
	return t.Default
}

// Validate rejects rules without keywords or results.
func (t Table[T]) Validate() error {
	for i, r := range t.Rules {
		if len(r.All) == 0 && len(r.Any) == 0 && len(r.Words) == 0 {
			return fmt.Errorf("%w: rule %d has no keywords", ErrInvalidRule, i)
		}
		if r.Result == "" {
			return fmt.Errorf("%w: rule %d has an empty result", ErrInvalidRule, i)
		}
	}
	return nil
}

// Convert retypes a string table, as decoded from a rule book, into a table of a named string type.
func Convert[T ~string](in Table[string]) Table[T] {
	out := Table[T]{Default: T(in.Default), Rules: make([]Rule[T], len(in.Rules))}
	for i, r := range in.Rules {
		out.Rules[i] = Rule[T]{
			All:    append([]string(nil), r.All...),
			Any:    append([]string(nil), r.Any...),
			Words:  append([]string(nil), r.Words...),
			Result: T(r.Result),
		}
	}
	return out
}

// ContainsAny reports whether text contains any of the keywords, case-insensitively.
func ContainsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
