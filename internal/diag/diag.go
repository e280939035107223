// Package diag is the non-fatal diagnostic channel used during rule
// evaluation. Evaluation never returns errors to the host; anything that
// went wrong is reported here and the affected leaf or token degrades to
// false or the empty string.
package diag

import (
	"log/slog"
	"sync"

	"github.com/gyaneshwarpardhi/fishrules/internal/metrics"
)

// Kind classifies a diagnostic.
type Kind string

const (
	UnresolvedVariable Kind = "unresolved_variable"
	TypeMismatch       Kind = "type_mismatch"
	ActionFailed       Kind = "action_failed"
	DuplicateDelivery  Kind = "duplicate_delivery"
)

// Diagnostic describes one non-fatal evaluation problem.
type Diagnostic struct {
	Kind   Kind   `json:"kind"`
	RuleID string `json:"rule_id,omitempty"`
	Name   string `json:"name,omitempty"` // variable, counter or placeholder involved
	Detail string `json:"detail,omitempty"`
}

func (d Diagnostic) String() string {
	s := string(d.Kind)
	if d.RuleID != "" {
		s += " rule=" + d.RuleID
	}
	if d.Name != "" {
		s += " name=" + d.Name
	}
	if d.Detail != "" {
		s += ": " + d.Detail
	}
	return s
}

// Sink receives diagnostics. Implementations must be safe for concurrent
// use and must not block.
type Sink interface {
	Report(d Diagnostic)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Diagnostic)

func (f SinkFunc) Report(d Diagnostic) { f(d) }

// Nop discards everything.
var Nop Sink = SinkFunc(func(Diagnostic) {})

type ruleSink struct {
	next   Sink
	ruleID string
}

func (r ruleSink) Report(d Diagnostic) {
	if d.RuleID == "" {
		d.RuleID = r.ruleID
	}
	r.next.Report(d)
}

// ForRule tags every diagnostic passing through with ruleID.
func ForRule(s Sink, ruleID string) Sink {
	if s == nil {
		s = Nop
	}
	return ruleSink{next: s, ruleID: ruleID}
}

// LogSink logs diagnostics at warn level and counts them by kind.
func LogSink(logger *slog.Logger) Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return SinkFunc(func(d Diagnostic) {
		metrics.Diagnostics.WithLabelValues(string(d.Kind)).Inc()
		logger.Warn("rule diagnostic",
			"kind", d.Kind,
			"rule_id", d.RuleID,
			"name", d.Name,
			"detail", d.Detail,
		)
	})
}

// Collector records diagnostics in memory.
type Collector struct {
	mu   sync.Mutex
	list []Diagnostic
}

func (c *Collector) Report(d Diagnostic) {
	c.mu.Lock()
	c.list = append(c.list, d)
	c.mu.Unlock()
}

// All returns a copy of everything collected so far.
func (c *Collector) All() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Diagnostic, len(c.list))
	copy(out, c.list)
	return out
}

// Kinds returns the kinds of all collected diagnostics in order.
func (c *Collector) Kinds() []Kind {
	all := c.All()
	out := make([]Kind, len(all))
	for i, d := range all {
		out[i] = d.Kind
	}
	return out
}
