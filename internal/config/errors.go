package config

import (
	"fmt"
	"strings"
)

// ParseError is a malformed rules file or rule definition. A ParseError at
// startup is fatal; on reload the previous rule set stays active.
type ParseError struct {
	File string // empty when parsing from memory
	Line int    // 0 when unknown
	Rule string // offending rule id, if known
	Err  error
}

func (e *ParseError) Error() string {
	var loc []string
	if e.File != "" {
		loc = append(loc, e.File)
	}
	if e.Line > 0 {
		loc = append(loc, fmt.Sprintf("line %d", e.Line))
	}
	if e.Rule != "" {
		loc = append(loc, fmt.Sprintf("rule %q", e.Rule))
	}
	if len(loc) == 0 {
		return "parse rules: " + e.Err.Error()
	}
	return fmt.Sprintf("parse rules (%s): %v", strings.Join(loc, ", "), e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// DuplicateRuleIDError reports two rules sharing an id.
type DuplicateRuleIDError struct {
	ID          string
	First, Then int // zero-based positions in the rules sequence
}

func (e *DuplicateRuleIDError) Error() string {
	return fmt.Sprintf("duplicate rule id %q (rules[%d] and rules[%d])", e.ID, e.First, e.Then)
}

// ValidationError aggregates every problem found by Validate.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation errors:\n  - %s", strings.Join(e.Problems, "\n  - "))
}
