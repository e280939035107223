package action

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/gyaneshwarpardhi/fishrules/internal/diag"
	"github.com/gyaneshwarpardhi/fishrules/internal/value"
)

// GlobalScope is the counter scope shared by all players.
const GlobalScope = "global"

// Renderer turns rich-text markup into the host's output format.
type Renderer interface {
	Render(markup string) string
}

// Message is a rendered chat line addressed to a player.
type Message struct {
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name,omitempty"`
	RuleID     string `json:"rule_id"`
	Text       string `json:"text"`
}

// Messenger delivers rendered messages to players.
type Messenger interface {
	Send(ctx context.Context, m Message) error
}

// CounterKey names one counter. Scope is a player ID or GlobalScope; Label
// is the holder's display name, recorded for leaderboards.
type CounterKey struct {
	Scope string
	Name  string
	Label string
}

func (k CounterKey) String() string { return k.Scope + ":" + k.Name }

// CounterStore is the external counter state. IncrBy must be an atomic
// increment-and-fetch so concurrent callers never lose updates.
type CounterStore interface {
	IncrBy(ctx context.Context, key CounterKey, amount int64) (int64, error)
}

// Ledger records which counter applications already happened. Claim
// returns true exactly once per key for as long as the ledger remembers it.
type Ledger interface {
	Claim(ctx context.Context, key string) (bool, error)
}

// Invocation identifies one action of one matched rule for one event.
type Invocation struct {
	EventID    string
	RuleID     string
	Index      int // position of the action within the rule
	PlayerID   string
	PlayerName string
}

// DedupeKey is the at-most-once key for this invocation.
func (inv Invocation) DedupeKey() string {
	return inv.EventID + "/" + inv.RuleID + "/" + strconv.Itoa(inv.Index)
}

// ActionResult holds the outcome of executing a single action.
type ActionResult struct {
	RuleID  string `json:"rule_id"`
	Index   int    `json:"index"`
	Kind    Kind   `json:"kind"`
	Success bool   `json:"success"`
	Skipped bool   `json:"skipped,omitempty"`
	Stop    bool   `json:"stop,omitempty"`
	Message string `json:"message,omitempty"`
	Output  string `json:"output,omitempty"`  // rendered placeholder value or message text
	Key     string `json:"key,omitempty"`     // placeholder key or counter key
	Counter *int64 `json:"counter,omitempty"` // counter value after increment
}

// Dispatcher executes actions against external collaborators. Any
// collaborator may be nil: without Counters IncrementCounter fails, without
// Messenger SendMessage only returns the rendered text, and without Ledger
// increments are not deduplicated.
type Dispatcher struct {
	Renderer  Renderer
	Messenger Messenger
	Counters  CounterStore
	Ledger    Ledger
	Sink      diag.Sink
}

func (d *Dispatcher) sink(inv Invocation) diag.Sink {
	s := d.Sink
	if s == nil {
		s = diag.Nop
	}
	return diag.ForRule(s, inv.RuleID)
}

func (d *Dispatcher) render(t *Template, c *value.Context, sink diag.Sink) string {
	out := t.Render(c, sink)
	if d.Renderer != nil {
		out = d.Renderer.Render(out)
	}
	return out
}

// Execute runs one action. It never panics on collaborator failures and
// never returns an error; failures are carried in the result and reported
// as diagnostics.
func (d *Dispatcher) Execute(ctx context.Context, c *value.Context, inv Invocation, a Action) *ActionResult {
	res := &ActionResult{RuleID: inv.RuleID, Index: inv.Index, Kind: a.Kind()}
	sink := d.sink(inv)

	switch act := a.(type) {
	case SetPlaceholder:
		res.Key = act.Key
		res.Output = d.render(act.Template, c, sink)
		res.Success = true

	case SendMessage:
		res.Output = d.render(act.Template, c, sink)
		if inv.PlayerID == "" {
			return d.fail(res, sink, "", "send_message: no player in context")
		}
		if d.Messenger != nil {
			msg := Message{PlayerID: inv.PlayerID, PlayerName: inv.PlayerName, RuleID: inv.RuleID, Text: res.Output}
			if err := d.Messenger.Send(ctx, msg); err != nil {
				return d.fail(res, sink, "", fmt.Sprintf("send_message: %v", err))
			}
		}
		res.Success = true

	case IncrementCounter:
		d.increment(ctx, c, inv, act, res, sink)

	case StopProcessing:
		res.Stop = true
		res.Success = true

	default:
		return d.fail(res, sink, "", fmt.Sprintf("unknown action %T", a))
	}
	return res
}

func (d *Dispatcher) increment(ctx context.Context, c *value.Context, inv Invocation, act IncrementCounter, res *ActionResult, sink diag.Sink) {
	name := act.Name.Render(c, sink)
	if name == "" {
		d.fail(res, sink, act.Name.Source(), "increment_counter: counter name rendered empty")
		return
	}
	key := CounterKey{Scope: GlobalScope, Name: name}
	if !act.Global {
		if inv.PlayerID == "" {
			d.fail(res, sink, name, "increment_counter: no player in context")
			return
		}
		key.Scope, key.Label = inv.PlayerID, inv.PlayerName
	}
	res.Key = key.String()

	amount := act.Amount
	if act.AmountVar != "" {
		v, ok := c.Lookup(act.AmountVar)
		if !ok {
			sink.Report(diag.Diagnostic{Kind: diag.UnresolvedVariable, Name: act.AmountVar, Detail: "counter amount unresolved"})
			res.Message = "amount variable unresolved"
			return
		}
		f, ok := v.AsNumber()
		if !ok {
			sink.Report(diag.Diagnostic{Kind: diag.TypeMismatch, Name: act.AmountVar, Detail: "counter amount is " + v.Kind().String()})
			res.Message = "amount variable is not a number"
			return
		}
		r := math.Round(f)
		if math.IsNaN(r) || r >= math.MaxInt64 || r < math.MinInt64 {
			sink.Report(diag.Diagnostic{Kind: diag.TypeMismatch, Name: act.AmountVar, Detail: fmt.Sprintf("counter amount %v is not a finite int64", f)})
			res.Message = "amount variable out of range"
			return
		}
		amount = int64(r)
	}

	if d.Counters == nil {
		d.fail(res, sink, name, "increment_counter: no counter store configured")
		return
	}
	if d.Ledger != nil && inv.EventID != "" {
		claimed, err := d.Ledger.Claim(ctx, inv.DedupeKey())
		if err != nil {
			// Without a claim the increment could be applied twice; skip it.
			d.fail(res, sink, name, fmt.Sprintf("increment_counter: ledger: %v", err))
			return
		}
		if !claimed {
			sink.Report(diag.Diagnostic{Kind: diag.DuplicateDelivery, Name: res.Key, Detail: "counter already applied for " + inv.DedupeKey()})
			res.Success, res.Skipped = true, true
			res.Message = "duplicate delivery suppressed"
			return
		}
	}
	n, err := d.Counters.IncrBy(ctx, key, amount)
	if err != nil {
		d.fail(res, sink, name, fmt.Sprintf("increment_counter: %v", err))
		return
	}
	res.Counter = &n
	res.Success = true
}

func (d *Dispatcher) fail(res *ActionResult, sink diag.Sink, name, msg string) *ActionResult {
	sink.Report(diag.Diagnostic{Kind: diag.ActionFailed, Name: name, Detail: msg})
	res.Success = false
	res.Message = msg
	return res
}

// Preview renders a SetPlaceholder without publishing it anywhere. The
// placeholder query path uses it so that lookups stay read-only.
func (d *Dispatcher) Preview(c *value.Context, ruleID string, a SetPlaceholder) string {
	return d.render(a.Template, c, diag.ForRule(d.sinkOrNop(), ruleID))
}

func (d *Dispatcher) sinkOrNop() diag.Sink {
	if d.Sink == nil {
		return diag.Nop
	}
	return d.Sink
}
