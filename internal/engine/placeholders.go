package engine

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/gyaneshwarpardhi/fishrules/internal/action"
	"github.com/gyaneshwarpardhi/fishrules/internal/diag"
	"github.com/gyaneshwarpardhi/fishrules/internal/event"
	"github.com/gyaneshwarpardhi/fishrules/internal/metrics"
	"github.com/gyaneshwarpardhi/fishrules/internal/rules"
	"github.com/gyaneshwarpardhi/fishrules/internal/stats"
)

// placeholderCache holds the last value each player's outcomes produced
// for a placeholder key.
type placeholderCache struct {
	m sync.Map // playerID + "\x00" + key → string
}

func (c *placeholderCache) put(playerID, key, v string) {
	c.m.Store(playerID+"\x00"+key, v)
}

func (c *placeholderCache) get(playerID, key string) (string, bool) {
	v, ok := c.m.Load(playerID + "\x00" + key)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Placeholder answer sources, used as metric labels.
const (
	sourceLive    = "live"
	sourceCached  = "cached"
	sourceBuiltin = "builtin"
	sourceMiss    = "miss"
)

// OnPlaceholderQuery answers a placeholder lookup for p. The key may carry
// the "<namespace>_" prefix. Lookup order:
//
//  1. the first rule, in priority order, that sets key and whose condition
//     holds for a player-only context, rendered live;
//  2. the value the player's most recent outcome produced for key;
//  3. the built-in stat placeholders (counter_, global_, top_name_,
//     top_value_, rank_);
//  4. the empty string.
//
// Lookups never mutate counters or the cache.
func (e *Engine) OnPlaceholderQuery(ctx context.Context, p event.Player, key string) string {
	v, src := e.placeholder(ctx, p, key)
	metrics.PlaceholderQueries.WithLabelValues(src).Inc()
	return v
}

func (e *Engine) placeholder(ctx context.Context, p event.Player, key string) (string, string) {
	key = e.stripNamespace(key)
	if key == "" {
		return "", sourceMiss
	}

	set := e.rules.Load()
	if set.HasPlaceholder(key) {
		c := e.evalContext(ctx, set, event.ForPlayer(p, e.now()), p.ID)
		r := set.EvaluateFirst(c, e.querySink(), func(r *rules.Rule) bool {
			_, ok := r.Placeholder(key)
			return ok
		})
		if r != nil {
			sp, _ := r.Placeholder(key)
			return e.dispatcher.Preview(c, r.ID, sp), sourceLive
		}
	}
	if p.ID != "" {
		if v, ok := e.cache.get(p.ID, key); ok {
			return v, sourceCached
		}
	}
	if v, ok := e.builtin(ctx, p, key); ok {
		return v, sourceBuiltin
	}
	return "", sourceMiss
}

// querySink drops unresolved-variable reports: outcome variables are
// always missing from player-only contexts.
func (e *Engine) querySink() diag.Sink {
	return diag.SinkFunc(func(d diag.Diagnostic) {
		if d.Kind != diag.UnresolvedVariable {
			e.sink.Report(d)
		}
	})
}

func (e *Engine) stripNamespace(key string) string {
	if e.namespace == "" {
		return key
	}
	if rest, ok := strings.CutPrefix(key, e.namespace+"_"); ok {
		return rest
	}
	return key
}

// builtin serves the stat placeholders:
//
//	counter_<name>           player counter, "0" when unset
//	global_<name>            global counter, "0" when unset
//	top_name_<name>_<pos>    name at 1-based leaderboard pos, "---" when empty
//	top_value_<name>_<pos>   value at pos, "0" when empty
//	rank_<name>              player's rank, "N/A" when unranked
func (e *Engine) builtin(ctx context.Context, p event.Player, key string) (string, bool) {
	switch {
	case strings.HasPrefix(key, "counter_"):
		if p.ID == "" {
			return "0", true
		}
		return e.counterString(ctx, action.CounterKey{Scope: p.ID, Name: strings.TrimPrefix(key, "counter_")}), true
	case strings.HasPrefix(key, "global_"):
		return e.counterString(ctx, action.CounterKey{Scope: action.GlobalScope, Name: strings.TrimPrefix(key, "global_")}), true
	case strings.HasPrefix(key, "top_name_"):
		name, pos, ok := splitPos(strings.TrimPrefix(key, "top_name_"))
		if !ok {
			return "", false
		}
		if entry, ok := e.topAt(ctx, name, pos); ok {
			return entry.DisplayName(), true
		}
		return "---", true
	case strings.HasPrefix(key, "top_value_"):
		name, pos, ok := splitPos(strings.TrimPrefix(key, "top_value_"))
		if !ok {
			return "", false
		}
		if entry, ok := e.topAt(ctx, name, pos); ok {
			return strconv.FormatInt(entry.Value, 10), true
		}
		return "0", true
	case strings.HasPrefix(key, "rank_"):
		if p.ID == "" {
			return "N/A", true
		}
		r, ok, err := e.store.Rank(ctx, strings.TrimPrefix(key, "rank_"), p.ID)
		if err != nil || !ok {
			return "N/A", true
		}
		return strconv.Itoa(r), true
	}
	return "", false
}

func (e *Engine) counterString(ctx context.Context, key action.CounterKey) string {
	n, _, err := e.store.Get(ctx, key)
	if err != nil {
		e.logger.Warn("counter lookup failed", "counter", key.String(), "err", err)
		return "0"
	}
	return strconv.FormatInt(n, 10)
}

func (e *Engine) topAt(ctx context.Context, name string, pos int) (stats.Entry, bool) {
	top, err := e.store.Top(ctx, name, pos)
	if err != nil {
		e.logger.Warn("leaderboard lookup failed", "counter", name, "err", err)
		return stats.Entry{}, false
	}
	if len(top) < pos {
		return stats.Entry{}, false
	}
	return top[pos-1], true
}

// splitPos splits "big_fish_3" into ("big_fish", 3).
func splitPos(s string) (string, int, bool) {
	i := strings.LastIndexByte(s, '_')
	if i <= 0 {
		return "", 0, false
	}
	pos, err := strconv.Atoi(s[i+1:])
	if err != nil || pos < 1 {
		return "", 0, false
	}
	return s[:i], pos, true
}
