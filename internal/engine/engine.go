// Package engine is the boundary between the host and the rule engine. It
// turns fishing outcomes and placeholder queries into evaluation contexts,
// runs the active rule set and dispatches the resulting actions.
package engine

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/fishrules/internal/action"
	"github.com/gyaneshwarpardhi/fishrules/internal/diag"
	"github.com/gyaneshwarpardhi/fishrules/internal/event"
	"github.com/gyaneshwarpardhi/fishrules/internal/metrics"
	"github.com/gyaneshwarpardhi/fishrules/internal/rules"
	"github.com/gyaneshwarpardhi/fishrules/internal/stats"
	"github.com/gyaneshwarpardhi/fishrules/internal/value"
)

// OutcomeResult is what processing a single fishing outcome produced.
type OutcomeResult struct {
	EventID      string                 `json:"event_id"`
	DurationUs   int64                  `json:"duration_us"`
	RulesMatched []string               `json:"rules_matched"`
	Actions      []*action.ActionResult `json:"actions"`
	Messages     []action.Message       `json:"messages,omitempty"`
	Placeholders map[string]string      `json:"placeholders,omitempty"`
}

// Options configures an Engine. Zero values select in-memory collaborators.
type Options struct {
	Logger    *slog.Logger
	Sink      diag.Sink // defaults to diag.LogSink(Logger)
	Store     stats.Store
	Ledger    action.Ledger
	Renderer  action.Renderer
	Messenger action.Messenger

	// Namespace is stripped from placeholder query keys ("customfishing").
	Namespace string

	BatchWorkers int
	QueueDepth   int

	// Resolvers registers host-specific variables next to the built-ins.
	Resolvers func(reg *value.Registry)

	Now func() time.Time
}

// Engine processes fishing outcomes and placeholder queries against the
// active rule set. All methods are safe for concurrent use.
type Engine struct {
	rules      *rules.Holder
	registry   *value.Registry
	dispatcher *action.Dispatcher
	store      stats.Store
	cache      *placeholderCache
	pool       *workerPool[*event.FishingOutcome]
	namespace  string
	logger     *slog.Logger
	sink       diag.Sink
	now        func() time.Time
}

// New creates an Engine with set active and starts the async worker pool.
// Cancelling ctx stops the workers.
func New(ctx context.Context, set *rules.Set, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Sink == nil {
		opts.Sink = diag.LogSink(opts.Logger)
	}
	if opts.Store == nil {
		opts.Store = stats.NewMemoryStore()
	}
	if opts.Ledger == nil {
		opts.Ledger = stats.NewMemoryLedger(10 * time.Minute)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = 1000
	}

	e := &Engine{
		rules:     rules.NewHolder(set),
		store:     opts.Store,
		cache:     &placeholderCache{},
		namespace: opts.Namespace,
		logger:    opts.Logger,
		sink:      opts.Sink,
		now:       opts.Now,
	}
	e.registry = e.buildRegistry(opts.Resolvers)
	e.dispatcher = &action.Dispatcher{
		Renderer:  opts.Renderer,
		Messenger: opts.Messenger,
		Counters:  opts.Store,
		Ledger:    opts.Ledger,
		Sink:      opts.Sink,
	}
	e.pool = newWorkerPool[*event.FishingOutcome](ctx, opts.BatchWorkers, opts.QueueDepth,
		func(ctx context.Context, o *event.FishingOutcome) {
			e.OnFishingOutcome(ctx, o)
			metrics.QueueUtilization.Set(e.QueueUtilization())
		},
	)
	metrics.ActiveRules.Set(float64(e.rules.Load().Len()))
	return e
}

func (e *Engine) buildRegistry(extra func(*value.Registry)) *value.Registry {
	reg := value.NewRegistry()
	event.RegisterResolvers(reg)
	if extra != nil {
		extra(reg)
	}
	reg.Freeze()
	return reg
}

// Counter variable prefixes. Their values live in the store, so they are
// read once per evaluation by counterVars rather than by a resolver.
const (
	playerCounterPrefix = "counter."
	globalCounterPrefix = "global."
)

// KnownVar reports whether name is a variable rules can read: a registry
// variable or a counter.<name> / global.<name> counter.
func (e *Engine) KnownVar(name string) bool {
	for _, p := range []string{playerCounterPrefix, globalCounterPrefix} {
		if strings.HasPrefix(name, p) && len(name) > len(p) {
			return true
		}
	}
	return e.registry.Known(name)
}

// counterVars reads the counters set references for playerID. Counters
// that cannot be read are left out and stay unresolved. Unset counters
// read as 0.
func (e *Engine) counterVars(ctx context.Context, set *rules.Set, playerID string) map[string]value.Value {
	var out map[string]value.Value
	for _, name := range set.Vars() {
		var key action.CounterKey
		switch {
		case strings.HasPrefix(name, playerCounterPrefix):
			if playerID == "" {
				continue
			}
			key = action.CounterKey{Scope: playerID, Name: strings.TrimPrefix(name, playerCounterPrefix)}
		case strings.HasPrefix(name, globalCounterPrefix):
			key = action.CounterKey{Scope: action.GlobalScope, Name: strings.TrimPrefix(name, globalCounterPrefix)}
		default:
			continue
		}
		if key.Name == "" {
			continue
		}
		if ctx.Err() != nil {
			return out
		}
		n, _, err := e.store.Get(ctx, key)
		if err != nil {
			e.logger.Warn("counter variable unavailable", "var", name, "err", err)
			continue
		}
		if out == nil {
			out = make(map[string]value.Value)
		}
		out[name] = value.Int(n)
	}
	return out
}

// evalContext binds src to the registry with set's counter variables
// snapshotted for playerID.
func (e *Engine) evalContext(ctx context.Context, set *rules.Set, src *event.Source, playerID string) *value.Context {
	c := value.NewContext(e.registry, src)
	if vars := e.counterVars(ctx, set, playerID); len(vars) > 0 {
		c = c.With(vars)
	}
	return c
}

// Registry returns the frozen variable registry.
func (e *Engine) Registry() *value.Registry { return e.registry }

// Rules returns the active rule set.
func (e *Engine) Rules() *rules.Set { return e.rules.Load() }

// SwapRules atomically installs set (used on hot reload) and returns the
// previous one. Evaluations already running keep the set they loaded.
func (e *Engine) SwapRules(set *rules.Set) *rules.Set {
	prev := e.rules.Swap(set)
	metrics.ActiveRules.Set(float64(e.rules.Load().Len()))
	e.logger.Info("rule set swapped", "rules", e.rules.Load().Len(), "previous", prev.Len())
	return prev
}

// Store returns the counter store.
func (e *Engine) Store() stats.Store { return e.store }

// OnFishingOutcome evaluates every rule against o and runs the actions of
// each match in priority order, synchronously. A missing o.ID is replaced
// by a fresh UUID; hosts that may redeliver must set it so counters are
// applied at most once.
//
// Counter variables are read once with ctx before any rule runs. A nil o
// is reported and matches nothing.
func (e *Engine) OnFishingOutcome(ctx context.Context, o *event.FishingOutcome) *OutcomeResult {
	if o == nil {
		e.sink.Report(diag.Diagnostic{Kind: diag.ActionFailed, Detail: "nil fishing outcome ignored"})
		return &OutcomeResult{RulesMatched: []string{}}
	}
	start := time.Now()
	oc := *o
	if oc.ID == "" {
		oc.ID = uuid.NewString()
	}
	if oc.OccurredAt.IsZero() {
		oc.OccurredAt = e.now()
	}

	set := e.rules.Load()
	c := e.evalContext(ctx, set, event.ForOutcome(&oc), oc.Player.ID)
	matched := set.EvaluateAll(c, e.sink)

	res := &OutcomeResult{
		EventID:      oc.ID,
		RulesMatched: make([]string, 0, len(matched)),
	}
	for _, r := range matched {
		res.RulesMatched = append(res.RulesMatched, r.ID)
		metrics.RulesMatched.WithLabelValues(r.ID).Inc()
		for i, a := range r.Actions {
			inv := action.Invocation{
				EventID:    oc.ID,
				RuleID:     r.ID,
				Index:      i,
				PlayerID:   oc.Player.ID,
				PlayerName: oc.Player.Name,
			}
			ar := e.dispatcher.Execute(ctx, c, inv, a)
			res.Actions = append(res.Actions, ar)
			e.record(res, inv, ar)
		}
	}

	if oc.Player.ID != "" {
		for k, v := range res.Placeholders {
			e.cache.put(oc.Player.ID, k, v)
		}
	}

	elapsed := time.Since(start)
	res.DurationUs = elapsed.Microseconds()
	metrics.OutcomesProcessed.Inc()
	metrics.OutcomeProcessingDuration.Observe(float64(elapsed.Microseconds()))
	e.logger.Debug("outcome processed",
		"event_id", oc.ID,
		"player_id", oc.Player.ID,
		"rules_matched", len(res.RulesMatched),
		"took", elapsed,
	)
	return res
}

func (e *Engine) record(res *OutcomeResult, inv action.Invocation, ar *action.ActionResult) {
	status := "success"
	switch {
	case ar.Skipped:
		status = "skipped"
	case !ar.Success:
		status = "error"
	}
	metrics.ActionsExecuted.WithLabelValues(string(ar.Kind), status).Inc()
	if !ar.Success {
		return
	}
	switch ar.Kind {
	case action.KindSendMessage:
		res.Messages = append(res.Messages, action.Message{
			PlayerID:   inv.PlayerID,
			PlayerName: inv.PlayerName,
			RuleID:     inv.RuleID,
			Text:       ar.Output,
		})
	case action.KindSetPlaceholder:
		if res.Placeholders == nil {
			res.Placeholders = make(map[string]string)
		}
		// The highest-priority rule setting a key wins.
		if _, seen := res.Placeholders[ar.Key]; !seen {
			res.Placeholders[ar.Key] = ar.Output
		}
	}
}

// ProcessAsync enqueues o for background processing. Returns false if o
// is nil, the queue is full or the engine is shutting down.
func (e *Engine) ProcessAsync(o *event.FishingOutcome) bool {
	if o == nil {
		return false
	}
	if !e.pool.Submit(o) {
		metrics.OutcomesDropped.Inc()
		return false
	}
	metrics.OutcomesEnqueued.Inc()
	metrics.QueueUtilization.Set(e.QueueUtilization())
	return true
}

// QueueUtilization returns queue used / capacity (0–1).
func (e *Engine) QueueUtilization() float64 {
	if e.pool.QueueCap() == 0 {
		return 0
	}
	return float64(e.pool.QueueLen()) / float64(e.pool.QueueCap())
}

// AdjustCounter adds amount (possibly negative) to a counter outside of
// rule evaluation.
func (e *Engine) AdjustCounter(ctx context.Context, key action.CounterKey, amount int64) (int64, error) {
	return e.store.IncrBy(ctx, key, amount)
}

// Shutdown drains the async queue.
func (e *Engine) Shutdown() {
	e.pool.Drain()
}
