package stats

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gyaneshwarpardhi/fishrules/internal/action"
)

type memKey struct {
	scope, name string
}

type memCounter struct {
	n     atomic.Int64
	label atomic.Pointer[string]
}

// MemoryStore keeps counters in process memory. Increments are lock-free
// atomic adds.
type MemoryStore struct {
	counters sync.Map // memKey → *memCounter
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) IncrBy(_ context.Context, key action.CounterKey, amount int64) (int64, error) {
	v, _ := m.counters.LoadOrStore(memKey{key.Scope, key.Name}, &memCounter{})
	c := v.(*memCounter)
	if key.Label != "" {
		label := key.Label
		c.label.Store(&label)
	}
	return c.n.Add(amount), nil
}

func (m *MemoryStore) Get(_ context.Context, key action.CounterKey) (int64, bool, error) {
	v, ok := m.counters.Load(memKey{key.Scope, key.Name})
	if !ok {
		return 0, false, nil
	}
	return v.(*memCounter).n.Load(), true, nil
}

func (m *MemoryStore) board(name string) []Entry {
	var out []Entry
	m.counters.Range(func(k, v interface{}) bool {
		mk := k.(memKey)
		if mk.name != name || mk.scope == action.GlobalScope {
			return true
		}
		c := v.(*memCounter)
		e := Entry{Scope: mk.scope, Value: c.n.Load()}
		if l := c.label.Load(); l != nil {
			e.Label = *l
		}
		out = append(out, e)
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Scope < out[j].Scope
	})
	return out
}

func (m *MemoryStore) Top(_ context.Context, name string, limit int) ([]Entry, error) {
	b := m.board(name)
	if limit > 0 && len(b) > limit {
		b = b[:limit]
	}
	return b, nil
}

func (m *MemoryStore) Rank(_ context.Context, name, scope string) (int, bool, error) {
	for i, e := range m.board(name) {
		if e.Scope == scope {
			return i + 1, true, nil
		}
	}
	return 0, false, nil
}

func (m *MemoryStore) Close() error { return nil }

// MemoryLedger remembers claimed keys for ttl. A zero ttl keeps them
// forever.
type MemoryLedger struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	claimed map[string]time.Time // key → expiry
	sweepAt time.Time
}

// NewMemoryLedger creates a MemoryLedger.
func NewMemoryLedger(ttl time.Duration) *MemoryLedger {
	return &MemoryLedger{ttl: ttl, now: time.Now, claimed: make(map[string]time.Time)}
}

func (l *MemoryLedger) Claim(_ context.Context, key string) (bool, error) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ttl > 0 && now.After(l.sweepAt) {
		for k, exp := range l.claimed {
			if now.After(exp) {
				delete(l.claimed, k)
			}
		}
		l.sweepAt = now.Add(l.ttl)
	}
	if exp, ok := l.claimed[key]; ok && (l.ttl == 0 || !now.After(exp)) {
		return false, nil
	}
	l.claimed[key] = now.Add(l.ttl)
	return true, nil
}

// Len returns the number of remembered keys.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.claimed)
}
