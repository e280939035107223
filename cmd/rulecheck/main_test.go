package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRules = "../../configs/rules.yaml"

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestRulecheckSampleConfig(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(&out, options{config: sampleRules}))
	assert.Contains(t, out.String(), "OK (8 rules, version 2026-10-01)")
	assert.Contains(t, out.String(), "legendary_catch  priority=0  stops")
	assert.NotContains(t, out.String(), "warning:")
	assert.NotContains(t, out.String(), "variables:")
}

func TestRulecheckVariables(t *testing.T) {
	cfg := writeFile(t, "rules.yaml", `
rules:
  - id: typo
    condition: {var: fish.wieght, op: ">", value: 1}
    actions: [{send_message: "{player.name} {global.caught}"}]
`)
	var out bytes.Buffer
	require.NoError(t, run(&out, options{config: cfg, vars: true}))
	s := out.String()
	assert.Contains(t, s, `warning: unknown variable "fish.wieght"`)
	assert.NotContains(t, s, `"player.name"`)
	assert.NotContains(t, s, `"global.caught"`)
	assert.Contains(t, s, "variables:\n")
	assert.Contains(t, s, "  counter.*\n")
	assert.Contains(t, s, "  fish.weight\n")
}

func TestRulecheckOutcome(t *testing.T) {
	outcome := writeFile(t, "catch.json", `{
		"id": "o-1",
		"occurred_at": "2026-10-14T12:00:00Z",
		"player": {"id": "p1", "name": "Ann"},
		"loot": {"id": "tuna", "name": "Tuna", "weight": 12},
		"gear": {"rod": "carbon_rod"},
		"reel_time_ms": 2000
	}`)

	var out bytes.Buffer
	err := run(&out, options{
		config:  sampleRules,
		outcome: outcome,
		render:  "plain",
		queries: keyList{"customfishing_title", "counter_caught"},
	})
	require.NoError(t, err)
	s := out.String()
	assert.Contains(t, s, "matched: big_fish, weight_total, quick_reel, rookie_title")
	assert.Contains(t, s, "[big_fish] Nice catch! Tuna weighs 12kg")
	assert.Contains(t, s, `last_big_fish = "Tuna (12kg)"`)
	assert.Contains(t, s, `reel_badge = "Quick hands"`)
	assert.Contains(t, s, "p1:total_weight = 12")
	assert.Contains(t, s, "p1:caught_tuna = 1")
	assert.Contains(t, s, `customfishing_title = "Rookie Ann"`)
	assert.Contains(t, s, `counter_caught = "1"`)
}

func TestRulecheckRejectsInvalid(t *testing.T) {
	bad := writeFile(t, "rules.yaml", `
rules:
  - id: a
    actions: [{send_message: hi}]
  - id: a
    actions: [{send_message: again}]
`)
	err := run(&bytes.Buffer{}, options{config: bad})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate rule id "a"`)

	err = run(&bytes.Buffer{}, options{config: sampleRules, outcome: writeFile(t, "o.json", "{")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode outcome")
}
