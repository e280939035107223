package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/fishrules/internal/action"
	"github.com/gyaneshwarpardhi/fishrules/internal/config"
	"github.com/gyaneshwarpardhi/fishrules/internal/engine"
	"github.com/gyaneshwarpardhi/fishrules/internal/event"
	"github.com/gyaneshwarpardhi/fishrules/internal/metrics"
	"github.com/gyaneshwarpardhi/fishrules/internal/rules"
)

const (
	maxBatchSize = 100
	maxBodyBytes = 1 << 20
	defaultTop   = 10
	maxTop       = 100
)

// Reloader re-reads the rules file. The loader's change callbacks install
// the rebuilt rule set on the engine.
type Reloader interface {
	Reload() (*config.RuleConfig, error)
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	eng    *engine.Engine
	reload Reloader
	logger *slog.Logger
}

// New creates the HTTP handler and registers all routes. reload may be nil,
// in which case POST /v1/rules/reload answers 501.
func New(eng *engine.Engine, reload Reloader, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{eng: eng, reload: reload, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/outcomes", h.ingestOutcome)
		r.Post("/outcomes/batch", h.ingestBatch)
		r.Get("/placeholders/{player}/{key}", h.placeholder)

		r.Get("/counters/{scope}/{name}", h.getCounter)
		r.Post("/counters/{scope}/{name}", h.adjustCounter)
		r.Get("/top/{name}", h.top)

		r.Get("/rules", h.listRules)
		r.Get("/rules/{id}", h.getRule)
		r.Post("/rules/reload", h.reloadRules)
	})
	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// requestLogger logs one line per request through slog.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"took", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return false
	}
	return true
}

// checkOutcome fills the outcome kind and rejects outcomes the engine
// cannot attribute to a player.
func checkOutcome(o *event.FishingOutcome) error {
	if o.Player.ID == "" {
		return fmt.Errorf("player.id is required")
	}
	switch o.Kind {
	case "":
		o.Kind = event.KindSuccess
	case event.KindSuccess, event.KindFailure:
	default:
		return fmt.Errorf("kind must be %q or %q, got %q", event.KindSuccess, event.KindFailure, o.Kind)
	}
	return nil
}

// POST /v1/outcomes: synchronous single-outcome processing.
func (h *Handler) ingestOutcome(w http.ResponseWriter, r *http.Request) {
	var o event.FishingOutcome
	if !decodeBody(w, r, &o) {
		return
	}
	if err := checkOutcome(&o); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.eng.OnFishingOutcome(r.Context(), &o))
}

// POST /v1/outcomes/batch: async batch ingestion (up to 100 outcomes).
func (h *Handler) ingestBatch(w http.ResponseWriter, r *http.Request) {
	var outcomes []*event.FishingOutcome
	if !decodeBody(w, r, &outcomes) {
		return
	}
	if len(outcomes) == 0 {
		writeError(w, http.StatusBadRequest, "batch must contain at least one outcome")
		return
	}
	if len(outcomes) > maxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch size %d exceeds max %d", len(outcomes), maxBatchSize))
		return
	}

	jobID := uuid.NewString()
	queued := 0
	var invalid []string
	for i, o := range outcomes {
		if o == nil {
			invalid = append(invalid, fmt.Sprintf("[%d]: null outcome", i))
			continue
		}
		if err := checkOutcome(o); err != nil {
			invalid = append(invalid, fmt.Sprintf("[%d]: %s", i, err))
			continue
		}
		if h.eng.ProcessAsync(o) {
			queued++
		}
	}
	h.logger.Debug("batch accepted", "job_id", jobID, "total", len(outcomes), "queued", queued)

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":   jobID,
		"total":    len(outcomes),
		"queued":   queued,
		"rejected": len(outcomes) - queued,
		"invalid":  invalid,
	})
}

// GET /v1/placeholders/{player}/{key}?name=: placeholder lookup.
func (h *Handler) placeholder(w http.ResponseWriter, r *http.Request) {
	p := event.Player{
		ID:    chi.URLParam(r, "player"),
		Name:  r.URL.Query().Get("name"),
		World: r.URL.Query().Get("world"),
	}
	key := chi.URLParam(r, "key")
	writeJSON(w, http.StatusOK, map[string]string{
		"player": p.ID,
		"key":    key,
		"value":  h.eng.OnPlaceholderQuery(r.Context(), p, key),
	})
}

func counterKey(r *http.Request) action.CounterKey {
	return action.CounterKey{Scope: chi.URLParam(r, "scope"), Name: chi.URLParam(r, "name")}
}

// GET /v1/counters/{scope}/{name}
func (h *Handler) getCounter(w http.ResponseWriter, r *http.Request) {
	key := counterKey(r)
	n, ok, err := h.eng.Store().Get(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"scope":  key.Scope,
		"name":   key.Name,
		"value":  n,
		"exists": ok,
	})
}

type adjustRequest struct {
	Amount int64  `json:"amount"`
	Label  string `json:"label,omitempty"`
}

// POST /v1/counters/{scope}/{name}: add amount (may be negative).
func (h *Handler) adjustCounter(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Amount == 0 {
		writeError(w, http.StatusBadRequest, "amount must be non-zero")
		return
	}
	key := counterKey(r)
	key.Label = req.Label
	n, err := h.eng.AdjustCounter(r.Context(), key, req.Amount)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	h.logger.Info("counter adjusted", "counter", key.String(), "amount", req.Amount, "value", n)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"scope": key.Scope,
		"name":  key.Name,
		"value": n,
	})
}

type topEntry struct {
	Rank  int    `json:"rank"`
	Scope string `json:"scope"`
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

// GET /v1/top/{name}?limit=: leaderboard.
func (h *Handler) top(w http.ResponseWriter, r *http.Request) {
	limit := defaultTop
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxTop {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxTop))
			return
		}
		limit = n
	}
	name := chi.URLParam(r, "name")
	entries, err := h.eng.Store().Top(r.Context(), name, limit)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	out := make([]topEntry, len(entries))
	for i, e := range entries {
		out[i] = topEntry{Rank: i + 1, Scope: e.Scope, Name: e.DisplayName(), Value: e.Value}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"counter": name,
		"entries": out,
	})
}

type ruleView struct {
	ID           string   `json:"id"`
	Priority     int      `json:"priority"`
	Order        int      `json:"order"`
	Condition    string   `json:"condition,omitempty"`
	Actions      []string `json:"actions"`
	Placeholders []string `json:"placeholders,omitempty"`
	Stops        bool     `json:"stops"`
}

func viewRule(rule *rules.Rule) ruleView {
	v := ruleView{
		ID:           rule.ID,
		Priority:     rule.Priority,
		Order:        rule.Order,
		Actions:      make([]string, len(rule.Actions)),
		Placeholders: action.PlaceholderKeys(rule.Actions),
		Stops:        rule.Stops(),
	}
	if rule.Condition != nil {
		v.Condition = rule.Condition.String()
	}
	for i, a := range rule.Actions {
		v.Actions[i] = fmt.Sprint(a)
	}
	return v
}

// GET /v1/rules: list the active rule set in evaluation order.
func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	set := h.eng.Rules()
	views := make([]ruleView, 0, set.Len())
	for _, rule := range set.Rules() {
		views = append(views, viewRule(rule))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version": set.Version(),
		"count":   set.Len(),
		"rules":   views,
	})
}

// GET /v1/rules/{id}
func (h *Handler) getRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rule := h.eng.Rules().Rule(id)
	if rule == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("rule %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, viewRule(rule))
}

// POST /v1/rules/reload: hot-reload rules from disk.
func (h *Handler) reloadRules(w http.ResponseWriter, r *http.Request) {
	if h.reload == nil {
		writeError(w, http.StatusNotImplemented, "rule reload is not configured")
		return
	}
	if _, err := h.reload.Reload(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	set := h.eng.Rules()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded": true,
		"version":  set.Version(),
		"rules":    set.Len(),
	})
}

// GET /healthz: always 200.
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 if the outcome queue is more than 80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.eng.QueueUtilization()
	metrics.QueueUtilization.Set(util)
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ready",
		"queue_utilization": util,
		"rules":             h.eng.Rules().Len(),
	})
}
