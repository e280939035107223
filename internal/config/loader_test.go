package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
version: "1"
settings:
  placeholders:
    namespace: fishing
  dedupe:
    ttl: 30s
rules:
  - id: big_fish
    priority: 5
    condition: {var: fish.weight, op: ">", value: 10}
    actions:
      - SetPlaceholder: {key: last_big_fish, template: "Caught {fish.name} at {fish.weight}kg"}
  - id: night
    condition:
      all:
        - {var: time.hour, op: ">=", value: 20}
        - not: {var: bait.id, op: "==", value: "none"}
        - expr: 'fish.tier == "legendary" OR fish.score > 90'
    actions:
      - send_message: "<gold>Night catch!</gold>"
      - increment_counter: {name: "night_{fish.id}", amount: 2, global: true}
      - {type: increment_counter, name: score, amount_var: fish.score}
      - increment_counter: caught
      - stop_processing
  - id: fallback
    condition: 'fish.weight <= 1'
    actions:
      - {stop: true}
`

func TestParseSample(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	require.Len(t, cfg.Rules, 3)

	assert.Equal(t, "fishing", cfg.Settings.Placeholders.Namespace)
	assert.Equal(t, 30*time.Second, cfg.Settings.Dedupe.TTL)
	assert.Equal(t, ":8080", cfg.Settings.Server.Addr)
	assert.Equal(t, "memory", cfg.Settings.Storage.Backend)
	assert.Equal(t, 4, cfg.Settings.Workers.BatchWorkers)

	big := cfg.Rules[0]
	require.NotNil(t, big.Priority)
	assert.Equal(t, 5, *big.Priority)
	assert.Equal(t, "leaf", big.Condition.Form())
	assert.Equal(t, "fish.weight", big.Condition.Var)
	assert.Equal(t, ">", big.Condition.Op)
	assert.Equal(t, 10, big.Condition.Value)
	assert.Equal(t, ActionDef{Type: ActionSetPlaceholder, Key: "last_big_fish", Template: "Caught {fish.name} at {fish.weight}kg", Line: big.Actions[0].Line}, big.Actions[0])

	night := cfg.Rules[1]
	assert.Nil(t, night.Priority)
	require.Equal(t, "all", night.Condition.Form())
	require.Len(t, night.Condition.All, 3)
	assert.Equal(t, "not", night.Condition.All[1].Form())
	assert.Equal(t, "expr", night.Condition.All[2].Form())

	acts := night.Actions
	require.Len(t, acts, 5)
	assert.Equal(t, ActionSendMessage, acts[0].Type)
	assert.Equal(t, "<gold>Night catch!</gold>", acts[0].Template)
	assert.Equal(t, ActionIncrementCounter, acts[1].Type)
	assert.Equal(t, "night_{fish.id}", acts[1].Counter)
	assert.EqualValues(t, 2, acts[1].Amount)
	assert.True(t, acts[1].Global)
	assert.Equal(t, "fish.score", acts[2].AmountVar)
	assert.Equal(t, "caught", acts[3].Counter)
	assert.EqualValues(t, 1, acts[3].Amount)
	assert.Equal(t, ActionStopProcessing, acts[4].Type)

	assert.Equal(t, "expr", cfg.Rules[2].Condition.Form())
	assert.Equal(t, ActionStopProcessing, cfg.Rules[2].Actions[0].Type)
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"not yaml", "rules: [\n"},
		{"unknown action", "rules:\n  - id: a\n    actions:\n      - explode: {}\n"},
		{"two tags", "rules:\n  - id: a\n    actions:\n      - {send_message: x, stop: true}\n"},
		{"placeholder without key", "rules:\n  - id: a\n    actions:\n      - set_placeholder: {template: x}\n"},
		{"leaf missing op", "rules:\n  - id: a\n    condition: {var: x, value: 1}\n    actions: [stop]\n"},
		{"mixed condition", "rules:\n  - id: a\n    condition: {all: [], var: x}\n    actions: [stop]\n"},
		{"unknown rule key", "rules:\n  - id: a\n    when: x\n    actions: [stop]\n"},
		{"bare non-stop", "rules:\n  - id: a\n    actions: [send_message]\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			require.Error(t, err)
			var pe *ParseError
			assert.True(t, errors.As(err, &pe), "want *ParseError, got %T: %v", err, err)
		})
	}
}

func TestParseErrorCarriesLine(t *testing.T) {
	_, err := Parse([]byte("rules:\n  - id: a\n    actions:\n      - explode: {}\n"))
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 4, pe.Line)
	assert.Contains(t, pe.Error(), "line 4")
}

func TestValidate(t *testing.T) {
	_, err := Parse([]byte("rules:\n  - id: a\n    actions: [stop]\n  - id: a\n    actions: [stop]\n"))
	var dup *DuplicateRuleIDError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "a", dup.ID)
	assert.Equal(t, 0, dup.First)
	assert.Equal(t, 1, dup.Then)

	_, err = Parse([]byte("settings:\n  storage:\n    backend: etcd\nrules:\n  - id: 'bad id'\n    actions: []\n"))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Problems, 3)
}

func TestLoaderReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	l, err := NewLoader(path)
	require.NoError(t, err)
	assert.Len(t, l.Config().Rules, 3)

	var got []*RuleConfig
	l.OnChange(func(c *RuleConfig) { got = append(got, c) })

	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - id: only\n    actions: [stop]\n"), 0o644))
	cfg, err := l.Reload()
	require.NoError(t, err)
	assert.Len(t, cfg.Rules, 1)
	assert.Len(t, got, 1)

	// A broken file is rejected and the previous config stays.
	require.NoError(t, os.WriteFile(path, []byte("rules: [\n"), 0o644))
	_, err = l.Reload()
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, l.Path(), pe.File)
	assert.Len(t, l.Config().Rules, 1)
	assert.Len(t, got, 1)
}

func TestLoaderConcurrentReloadsKeepOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	l, err := NewLoader(path)
	require.NoError(t, err)

	var (
		mu       sync.Mutex
		last     *RuleConfig
		inFlight atomic.Int32
		overlap  atomic.Bool
	)
	l.OnChange(func(c *RuleConfig) {
		if inFlight.Add(1) > 1 {
			overlap.Store(true)
		}
		time.Sleep(time.Millisecond)
		mu.Lock()
		last = c
		mu.Unlock()
		inFlight.Add(-1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Reload()
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.False(t, overlap.Load(), "callbacks ran concurrently")
	mu.Lock()
	defer mu.Unlock()
	assert.Same(t, l.Config(), last)
}

func TestLoaderCheckRejects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	_, err := NewLoader(path, WithCheck(func(*RuleConfig) error { return errors.New("nope") }))
	assert.EqualError(t, err, "nope")
}

func TestLoaderWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	l, err := NewLoader(path)
	require.NoError(t, err)

	changed := make(chan *RuleConfig, 4)
	l.OnChange(func(c *RuleConfig) { changed <- c })
	stop, err := l.Watch()
	require.NoError(t, err)
	defer stop()

	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - id: watched\n    actions: [stop]\n"), 0o644))
	// The write may surface as several events, the first possibly on a
	// truncated file.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case c := <-changed:
			if len(c.Rules) == 1 && c.Rules[0].ID == "watched" {
				return
			}
		case <-deadline:
			t.Fatal("no reload after file write")
		}
	}
}
