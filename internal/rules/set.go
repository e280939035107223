// Package rules holds the compiled, immutable rule set and the atomic
// holder used to swap it on reload.
package rules

import (
	"sync/atomic"

	"github.com/gyaneshwarpardhi/fishrules/internal/action"
	"github.com/gyaneshwarpardhi/fishrules/internal/condition"
	"github.com/gyaneshwarpardhi/fishrules/internal/diag"
	"github.com/gyaneshwarpardhi/fishrules/internal/value"
)

// Rule is a condition plus its ordered actions.
type Rule struct {
	ID        string
	Priority  int // lower evaluates first
	Order     int // position in the rules file
	Condition condition.Node
	Actions   []action.Action
}

// Stops reports whether the rule halts evaluation once matched.
func (r *Rule) Stops() bool { return action.HasStop(r.Actions) }

// Placeholder returns the rule's SetPlaceholder for key, if any.
func (r *Rule) Placeholder(key string) (action.SetPlaceholder, bool) {
	for _, a := range r.Actions {
		if sp, ok := a.(action.SetPlaceholder); ok && sp.Key == key {
			return sp, true
		}
	}
	return action.SetPlaceholder{}, false
}

// Vars returns every variable the rule's condition and actions read, in
// no particular order and possibly repeated.
func (r *Rule) Vars() []string {
	vars := condition.Vars(r.Condition)
	for _, a := range r.Actions {
		vars = append(vars, action.Vars(a)...)
	}
	return vars
}

// Matches evaluates the rule's condition. A rule without one always matches.
func (r *Rule) Matches(ctx *value.Context, sink diag.Sink) bool {
	return condition.Evaluate(r.Condition, ctx, diag.ForRule(sink, r.ID))
}

// Set is an ordered, read-only collection of rules. It is immutable once
// built; hot reload builds a new Set and swaps it through a Holder.
type Set struct {
	version string
	rules   []*Rule // sorted by (Priority, Order)
	byID    map[string]*Rule
	vars    []string // sorted, unique
}

// Empty returns a Set with no rules.
func Empty() *Set { return &Set{byID: map[string]*Rule{}} }

// EvaluateAll returns matching rules in evaluation order. A matched rule
// containing StopProcessing is the last one returned.
func (s *Set) EvaluateAll(ctx *value.Context, sink diag.Sink) []*Rule {
	var matched []*Rule
	for _, r := range s.rules {
		if !r.Matches(ctx, sink) {
			continue
		}
		matched = append(matched, r)
		if r.Stops() {
			break
		}
	}
	return matched
}

// EvaluateFirst returns the first matching rule accepted by filter, or nil.
// A nil filter accepts every rule.
func (s *Set) EvaluateFirst(ctx *value.Context, sink diag.Sink, filter func(*Rule) bool) *Rule {
	for _, r := range s.rules {
		if filter != nil && !filter(r) {
			continue
		}
		if r.Matches(ctx, sink) {
			return r
		}
	}
	return nil
}

// PlaceholderRules returns, in evaluation order, the rules that set key.
func (s *Set) PlaceholderRules(key string) []*Rule {
	var out []*Rule
	for _, r := range s.rules {
		if _, ok := r.Placeholder(key); ok {
			out = append(out, r)
		}
	}
	return out
}

// HasPlaceholder reports whether any rule sets key.
func (s *Set) HasPlaceholder(key string) bool { return len(s.PlaceholderRules(key)) > 0 }

// Rule returns a rule by ID (nil if not found).
func (s *Set) Rule(id string) *Rule { return s.byID[id] }

// Rules returns the rules in evaluation order. The slice must not be modified.
func (s *Set) Rules() []*Rule { return s.rules }

// Vars returns the sorted set of variable names the rules reference.
func (s *Set) Vars() []string { return s.vars }

// Len returns the number of rules.
func (s *Set) Len() int { return len(s.rules) }

// Version is the version string of the config the set was built from.
func (s *Set) Version() string { return s.version }

// Holder publishes the active Set. Readers never block and keep the Set
// they loaded even if a new one is stored meanwhile.
type Holder struct {
	p atomic.Pointer[Set]
}

// NewHolder creates a Holder with s active (Empty when nil).
func NewHolder(s *Set) *Holder {
	h := &Holder{}
	if s == nil {
		s = Empty()
	}
	h.p.Store(s)
	return h
}

// Load returns the active Set.
func (h *Holder) Load() *Set { return h.p.Load() }

// Swap installs s and returns the previous Set.
func (h *Holder) Swap(s *Set) *Set {
	if s == nil {
		s = Empty()
	}
	return h.p.Swap(s)
}
