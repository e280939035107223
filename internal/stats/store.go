// Package stats provides the counter stores and at-most-once ledgers used
// by IncrementCounter, plus leaderboards over player counters.
package stats

import (
	"context"

	"github.com/gyaneshwarpardhi/fishrules/internal/action"
)

// Entry is one leaderboard row.
type Entry struct {
	Scope string `json:"scope"` // player id
	Label string `json:"label"` // player name at last increment
	Value int64  `json:"value"`
}

// DisplayName is the label, or the scope when no label was recorded.
func (e Entry) DisplayName() string {
	if e.Label != "" {
		return e.Label
	}
	return e.Scope
}

// Store is a counter store with read access and rankings. Only
// player-scoped counters appear on leaderboards.
type Store interface {
	action.CounterStore
	Get(ctx context.Context, key action.CounterKey) (value int64, ok bool, err error)
	Top(ctx context.Context, name string, limit int) ([]Entry, error)
	// Rank is the 1-based position of scope on the name leaderboard.
	Rank(ctx context.Context, name, scope string) (rank int, ok bool, err error)
	Close() error
}

var (
	_ Store         = (*MemoryStore)(nil)
	_ Store         = (*RedisStore)(nil)
	_ action.Ledger = (*MemoryLedger)(nil)
	_ action.Ledger = (*RedisLedger)(nil)
)
