package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/fishrules/internal/config"
	"github.com/gyaneshwarpardhi/fishrules/internal/diag"
	"github.com/gyaneshwarpardhi/fishrules/internal/engine"
	"github.com/gyaneshwarpardhi/fishrules/internal/rules"
)

const rulesDoc = `
version: "1"
rules:
  - id: big_fish
    condition: {var: fish.weight, op: ">", value: 10}
    actions:
      - set_placeholder: {key: last_big_fish, template: "{fish.name} {fish.weight}kg"}
      - increment_counter: big_fish
`

type fixture struct {
	path    string
	eng     *engine.Engine
	handler http.Handler
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(rulesDoc), 0o644))

	var compiler rules.Compiler
	loader, err := config.NewLoader(path, config.WithCheck(compiler.Check), config.WithLogger(quietLogger()))
	require.NoError(t, err)
	set, err := compiler.For(loader.Config())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	eng := engine.New(ctx, set, engine.Options{Sink: diag.Nop, Logger: quietLogger(), BatchWorkers: 2})
	t.Cleanup(func() {
		eng.Shutdown()
		cancel()
	})
	loader.OnChange(func(cfg *config.RuleConfig) {
		if s, err := compiler.For(cfg); err == nil {
			eng.SwapRules(s)
		}
	})

	return &fixture{path: path, eng: eng, handler: New(eng, loader, quietLogger())}
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var out map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

const tunaOutcome = `{"id":"o1","player":{"id":"p1","name":"Ann"},"loot":{"id":"tuna","name":"Tuna","weight":12.5}}`

func TestIngestOutcome(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodPost, "/v1/outcomes", tunaOutcome)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "o1", body["event_id"])
	assert.Equal(t, []interface{}{"big_fish"}, body["rules_matched"])
	assert.Equal(t, map[string]interface{}{"last_big_fish": "Tuna 12.5kg"}, body["placeholders"])

	code, body = f.do(t, http.MethodGet, "/v1/placeholders/p1/last_big_fish?name=Ann", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Tuna 12.5kg", body["value"])

	// Redelivery of the same id must not count twice.
	code, _ = f.do(t, http.MethodPost, "/v1/outcomes", tunaOutcome)
	require.Equal(t, http.StatusOK, code)
	_, body = f.do(t, http.MethodGet, "/v1/counters/p1/big_fish", "")
	assert.EqualValues(t, 1, body["value"])
	assert.Equal(t, true, body["exists"])
}

func TestIngestOutcomeRejects(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name, body, want string
	}{
		{"invalid json", `{`, "invalid JSON"},
		{"no player", `{"loot":{"id":"tuna"}}`, "player.id is required"},
		{"bad kind", `{"kind":"maybe","player":{"id":"p1"}}`, "kind must be"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := f.do(t, http.MethodPost, "/v1/outcomes", tc.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Contains(t, body["error"], tc.want)
			assert.EqualValues(t, http.StatusBadRequest, body["status"])
		})
	}
}

func TestIngestBatch(t *testing.T) {
	f := newFixture(t)

	batch := `[
		{"player":{"id":"p1","name":"Ann"},"loot":{"id":"tuna","name":"Tuna","weight":20}},
		{"player":{"id":"p1","name":"Ann"},"loot":{"id":"pike","name":"Pike","weight":30}},
		{"loot":{"id":"cod","name":"Cod","weight":40}}
	]`
	code, body := f.do(t, http.MethodPost, "/v1/outcomes/batch", batch)
	require.Equal(t, http.StatusAccepted, code)
	assert.NotEmpty(t, body["job_id"])
	assert.EqualValues(t, 3, body["total"])
	assert.EqualValues(t, 2, body["queued"])
	assert.EqualValues(t, 1, body["rejected"])
	assert.Len(t, body["invalid"], 1)

	f.eng.Shutdown()
	_, body = f.do(t, http.MethodGet, "/v1/counters/p1/big_fish", "")
	assert.EqualValues(t, 2, body["value"])

	t.Run("empty", func(t *testing.T) {
		code, _ := f.do(t, http.MethodPost, "/v1/outcomes/batch", `[]`)
		assert.Equal(t, http.StatusBadRequest, code)
	})
	t.Run("too large", func(t *testing.T) {
		items := make([]string, maxBatchSize+1)
		for i := range items {
			items[i] = `{}`
		}
		code, body := f.do(t, http.MethodPost, "/v1/outcomes/batch", "["+strings.Join(items, ",")+"]")
		assert.Equal(t, http.StatusBadRequest, code)
		assert.Contains(t, body["error"], "exceeds max")
	})
}

func TestCountersAndLeaderboard(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodPost, "/v1/counters/p1/caught", `{"amount":5,"label":"Ann"}`)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 5, body["value"])

	_, body = f.do(t, http.MethodPost, "/v1/counters/p1/caught", `{"amount":-2}`)
	assert.EqualValues(t, 3, body["value"])

	_, _ = f.do(t, http.MethodPost, "/v1/counters/p2/caught", `{"amount":10,"label":"Bob"}`)

	code, _ = f.do(t, http.MethodPost, "/v1/counters/p1/caught", `{"amount":0}`)
	assert.Equal(t, http.StatusBadRequest, code)

	_, body = f.do(t, http.MethodGet, "/v1/counters/p3/none", "")
	assert.EqualValues(t, 0, body["value"])
	assert.Equal(t, false, body["exists"])

	code, body = f.do(t, http.MethodGet, "/v1/top/caught?limit=1", "")
	require.Equal(t, http.StatusOK, code)
	entries := body["entries"].([]interface{})
	require.Len(t, entries, 1)
	first := entries[0].(map[string]interface{})
	assert.EqualValues(t, 1, first["rank"])
	assert.Equal(t, "Bob", first["name"])
	assert.EqualValues(t, 10, first["value"])

	_, body = f.do(t, http.MethodGet, "/v1/top/caught", "")
	assert.Len(t, body["entries"], 2)

	code, _ = f.do(t, http.MethodGet, "/v1/top/caught?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRulesAndReload(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodGet, "/v1/rules", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "1", body["version"])
	assert.EqualValues(t, 1, body["count"])
	rule := body["rules"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "big_fish", rule["id"])
	assert.NotEmpty(t, rule["condition"])
	assert.Len(t, rule["actions"], 2)
	assert.Equal(t, []interface{}{"last_big_fish"}, rule["placeholders"])

	code, body = f.do(t, http.MethodGet, "/v1/rules/big_fish", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "big_fish", body["id"])
	assert.Equal(t, false, body["stops"])
	assert.Equal(t, []interface{}{"last_big_fish"}, body["placeholders"])

	code, _ = f.do(t, http.MethodGet, "/v1/rules/nope", "")
	assert.Equal(t, http.StatusNotFound, code)

	next := rulesDoc + "  - id: greet\n    actions: [{send_message: hi}]\n"
	require.NoError(t, os.WriteFile(f.path, []byte(next), 0o644))
	code, body = f.do(t, http.MethodPost, "/v1/rules/reload", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, body["rules"])

	require.NoError(t, os.WriteFile(f.path, []byte("rules: ["), 0o644))
	code, _ = f.do(t, http.MethodPost, "/v1/rules/reload", "")
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	_, body = f.do(t, http.MethodGet, "/v1/rules", "")
	assert.EqualValues(t, 2, body["count"], "failed reload keeps the active set")

	t.Run("not configured", func(t *testing.T) {
		h := New(f.eng, nil, quietLogger())
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/rules/reload", nil))
		assert.Equal(t, http.StatusNotImplemented, rec.Code)
	})
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t)

	code, body := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	code, body = f.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", body["status"])

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fishrules_active_rules")
}
