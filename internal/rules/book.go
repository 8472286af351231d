package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// Book is the on-disk form of the overridable heuristics. Absent sections keep the built-in tables.
//
//	error_kinds:
//	  default: unknown_error
//	  rules:
//	    - any: ["not found"]
//	      result: element_not_found
//	critical_subgoals: [navigate, search, access]
type Book struct {
	ErrorKinds       *Table[string] `yaml:"error_kinds"`
	Domains          *Table[string] `yaml:"domains"`
	SubgoalCriteria  *Table[string] `yaml:"subgoal_criteria"`
	CriticalSubgoals []string       `yaml:"critical_subgoals"`
}

// Load reads a rule book from path. A leading ~ is expanded to the home directory.
func Load(path string) (*Book, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand rule book path: %w", err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule book: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a rule book. Unknown keys are rejected.
func Parse(data []byte) (*Book, error) {
	var book Book
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&book); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode rule book: %w", err)
	}

	tables := map[string]*Table[string]{
		"error_kinds":      book.ErrorKinds,
		"domains":          book.Domains,
		"subgoal_criteria": book.SubgoalCriteria,
	}
	for name, t := range tables {
		if t == nil {
			continue
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
	}
	for i, kw := range book.CriticalSubgoals {
		if kw == "" {
			return nil, fmt.Errorf("critical_subgoals: %w: keyword %d is empty", ErrInvalidRule, i)
		}
	}
	return &book, nil
}
