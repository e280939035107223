package action

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/fishrules/internal/diag"
	"github.com/gyaneshwarpardhi/fishrules/internal/value"
)

type fakeCounters struct {
	mu   sync.Mutex
	vals map[CounterKey]int64
	err  error
}

func (f *fakeCounters) IncrBy(_ context.Context, k CounterKey, n int64) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.vals == nil {
		f.vals = make(map[CounterKey]int64)
	}
	k.Label = ""
	f.vals[k] += n
	return f.vals[k], nil
}

type fakeLedger struct {
	seen map[string]bool
	err  error
}

func (f *fakeLedger) Claim(_ context.Context, key string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

type fakeMessenger struct {
	sent []Message
	err  error
}

func (f *fakeMessenger) Send(_ context.Context, m Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m)
	return nil
}

type upper struct{}

func (upper) Render(s string) string { return strings.ToUpper(s) }

func testCtx() *value.Context {
	return value.Static(map[string]value.Value{
		"fish.name":   value.String("Pike"),
		"fish.size":   value.Number(12.5),
		"fish.score":  value.Number(7.6),
		"player.name": value.String("Ann"),
	})
}

var inv = Invocation{EventID: "ev-1", RuleID: "r1", PlayerID: "p1", PlayerName: "Ann"}

func TestTemplateRender(t *testing.T) {
	cases := []struct {
		src, want string
	}{
		{"Caught {fish.name} ({fish.size}cm)", "Caught Pike (12.5cm)"},
		{"{{literal}} {fish.name}", "{literal} Pike"},
		{"no tokens", "no tokens"},
		{"{missing}!", "!"},
		{"{not a var} {", "{not a var} {"},
		{"}}{{", "}{"},
	}
	for _, tc := range cases {
		t.Run(tc.src, func(t *testing.T) {
			assert.Equal(t, tc.want, CompileTemplate(tc.src).Render(testCtx(), nil))
		})
	}
}

func TestTemplateUnresolvedReportsDiag(t *testing.T) {
	var sink diag.Collector
	out := CompileTemplate("a{nope}b").Render(testCtx(), &sink)
	assert.Equal(t, "ab", out)
	require.Len(t, sink.All(), 1)
	assert.Equal(t, diag.UnresolvedVariable, sink.All()[0].Kind)
	assert.Equal(t, "nope", sink.All()[0].Name)
	assert.Equal(t, []string{"nope"}, CompileTemplate("a{nope}b").Vars())
}

func TestExecuteSetPlaceholder(t *testing.T) {
	d := &Dispatcher{Renderer: upper{}}
	res := d.Execute(context.Background(), testCtx(), inv, SetPlaceholder{Key: "last_fish", Template: CompileTemplate("{fish.name}")})
	assert.True(t, res.Success)
	assert.Equal(t, "PIKE", res.Output)
	assert.Equal(t, "last_fish", res.Key)
	assert.Equal(t, "PIKE", d.Preview(testCtx(), "r1", SetPlaceholder{Key: "x", Template: CompileTemplate("{fish.name}")}))
}

func TestExecuteSendMessage(t *testing.T) {
	m := &fakeMessenger{}
	d := &Dispatcher{Messenger: m}
	res := d.Execute(context.Background(), testCtx(), inv, SendMessage{Template: CompileTemplate("Nice {fish.name}, {player.name}")})
	require.True(t, res.Success)
	require.Len(t, m.sent, 1)
	assert.Equal(t, Message{PlayerID: "p1", PlayerName: "Ann", RuleID: "r1", Text: "Nice Pike, Ann"}, m.sent[0])

	var sink diag.Collector
	d = &Dispatcher{Messenger: &fakeMessenger{err: errors.New("offline")}, Sink: &sink}
	res = d.Execute(context.Background(), testCtx(), inv, SendMessage{Template: CompileTemplate("x")})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "offline")
	assert.Equal(t, []diag.Kind{diag.ActionFailed}, sink.Kinds())
	assert.Equal(t, "r1", sink.All()[0].RuleID)

	noPlayer := inv
	noPlayer.PlayerID = ""
	res = (&Dispatcher{}).Execute(context.Background(), testCtx(), noPlayer, SendMessage{Template: CompileTemplate("x")})
	assert.False(t, res.Success)
}

func TestExecuteIncrementCounter(t *testing.T) {
	counters := &fakeCounters{}
	d := &Dispatcher{Counters: counters, Ledger: &fakeLedger{}}
	ctx := context.Background()

	res := d.Execute(ctx, testCtx(), inv, IncrementCounter{Name: CompileTemplate("fish_caught"), Amount: 2})
	require.True(t, res.Success)
	assert.False(t, res.Skipped)
	require.NotNil(t, res.Counter)
	assert.EqualValues(t, 2, *res.Counter)
	assert.Equal(t, "p1:fish_caught", res.Key)

	second := inv
	second.EventID = "ev-2"
	res = d.Execute(ctx, testCtx(), second, IncrementCounter{Name: CompileTemplate("fish_caught"), Amount: 2})
	assert.EqualValues(t, 4, *res.Counter)

	third := inv
	third.Index = 2
	res = d.Execute(ctx, testCtx(), third, IncrementCounter{Name: CompileTemplate("{fish.name}_total"), Global: true, AmountVar: "fish.score"})
	require.True(t, res.Success)
	assert.False(t, res.Skipped)
	assert.Equal(t, "global:Pike_total", res.Key)
	assert.EqualValues(t, 8, counters.vals[CounterKey{Scope: GlobalScope, Name: "Pike_total"}])
}

func TestIncrementCounterAtMostOnce(t *testing.T) {
	counters := &fakeCounters{}
	var sink diag.Collector
	d := &Dispatcher{Counters: counters, Ledger: &fakeLedger{}, Sink: &sink}
	act := IncrementCounter{Name: CompileTemplate("fish_caught"), Amount: 1}

	for i := 0; i < 3; i++ {
		d.Execute(context.Background(), testCtx(), inv, act)
	}
	assert.EqualValues(t, 1, counters.vals[CounterKey{Scope: "p1", Name: "fish_caught"}])
	assert.Equal(t, []diag.Kind{diag.DuplicateDelivery, diag.DuplicateDelivery}, sink.Kinds())

	other := inv
	other.Index = 1
	d.Execute(context.Background(), testCtx(), other, act)
	assert.EqualValues(t, 2, counters.vals[CounterKey{Scope: "p1", Name: "fish_caught"}])
}

func TestIncrementCounterFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("ledger error skips increment", func(t *testing.T) {
		counters := &fakeCounters{}
		d := &Dispatcher{Counters: counters, Ledger: &fakeLedger{err: errors.New("down")}}
		res := d.Execute(ctx, testCtx(), inv, IncrementCounter{Name: CompileTemplate("c"), Amount: 1})
		assert.False(t, res.Success)
		assert.Empty(t, counters.vals)
	})

	t.Run("store error", func(t *testing.T) {
		var sink diag.Collector
		d := &Dispatcher{Counters: &fakeCounters{err: errors.New("boom")}, Sink: &sink}
		res := d.Execute(ctx, testCtx(), inv, IncrementCounter{Name: CompileTemplate("c"), Amount: 1})
		assert.False(t, res.Success)
		assert.Equal(t, []diag.Kind{diag.ActionFailed}, sink.Kinds())
	})

	t.Run("amount var not numeric", func(t *testing.T) {
		var sink diag.Collector
		d := &Dispatcher{Counters: &fakeCounters{}, Sink: &sink}
		res := d.Execute(ctx, testCtx(), inv, IncrementCounter{Name: CompileTemplate("c"), AmountVar: "fish.name"})
		assert.False(t, res.Success)
		assert.Equal(t, []diag.Kind{diag.TypeMismatch}, sink.Kinds())
	})

	t.Run("amount var out of range", func(t *testing.T) {
		for _, f := range []float64{1e30, -1e30, math.Inf(1), math.NaN(), 9223372036854775807} {
			counters := &fakeCounters{}
			var sink diag.Collector
			d := &Dispatcher{Counters: counters, Sink: &sink}
			c := testCtx().With(map[string]value.Value{"extra.bonus": value.Number(f)})
			res := d.Execute(ctx, c, inv, IncrementCounter{Name: CompileTemplate("c"), AmountVar: "extra.bonus"})
			assert.False(t, res.Success, "amount %v", f)
			assert.Nil(t, res.Counter)
			assert.Empty(t, counters.vals)
			assert.Equal(t, []diag.Kind{diag.TypeMismatch}, sink.Kinds())
		}
	})

	t.Run("empty name", func(t *testing.T) {
		d := &Dispatcher{Counters: &fakeCounters{}}
		res := d.Execute(ctx, testCtx(), inv, IncrementCounter{Name: CompileTemplate("{nope}"), Amount: 1})
		assert.False(t, res.Success)
	})
}

func TestExecuteStopProcessing(t *testing.T) {
	res := (&Dispatcher{}).Execute(context.Background(), testCtx(), inv, StopProcessing{})
	assert.True(t, res.Success)
	assert.True(t, res.Stop)
}

func TestHelpers(t *testing.T) {
	acts := []Action{
		SetPlaceholder{Key: "a", Template: CompileTemplate("x")},
		SendMessage{Template: CompileTemplate("y")},
		SetPlaceholder{Key: "b", Template: CompileTemplate("z")},
	}
	assert.False(t, HasStop(acts))
	assert.True(t, HasStop(append(acts, StopProcessing{})))
	assert.Equal(t, []string{"a", "b"}, PlaceholderKeys(acts))
	assert.Equal(t, "ev-1/r1/0", inv.DedupeKey())
	assert.Equal(t, `set_placeholder(a, "x")`, acts[0].(SetPlaceholder).String())
}
