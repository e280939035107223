package stats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gyaneshwarpardhi/fishrules/internal/action"
)

// RedisStore keeps counters in Redis:
//
//	<prefix>:counter:<scope>:<name>  string, INCRBY
//	<prefix>:board:<name>            sorted set of player scopes
//	<prefix>:names                   hash scope → display name
//
// The counter and its leaderboard entry are updated in one MULTI/EXEC.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisOptions configures NewRedisStore.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	slog.Info("connecting to redis", "addr", opts.Addr, "db", opts.DB)
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return NewRedisStoreFromClient(client, opts.KeyPrefix), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "fishrules"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Client exposes the underlying client, for sharing with a RedisLedger.
func (s *RedisStore) Client() *redis.Client { return s.client }

func (s *RedisStore) counterKey(scope, name string) string {
	return s.prefix + ":counter:" + scope + ":" + name
}

func (s *RedisStore) boardKey(name string) string { return s.prefix + ":board:" + name }

func (s *RedisStore) namesKey() string { return s.prefix + ":names" }

func (s *RedisStore) IncrBy(ctx context.Context, key action.CounterKey, amount int64) (int64, error) {
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.IncrBy(ctx, s.counterKey(key.Scope, key.Name), amount)
		if key.Scope != action.GlobalScope {
			p.ZIncrBy(ctx, s.boardKey(key.Name), float64(amount), key.Scope)
			if key.Label != "" {
				p.HSet(ctx, s.namesKey(), key.Scope, key.Label)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	return incr.Val(), nil
}

func (s *RedisStore) Get(ctx context.Context, key action.CounterKey) (int64, bool, error) {
	n, err := s.client.Get(ctx, s.counterKey(key.Scope, key.Name)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return n, true, nil
}

func (s *RedisStore) Top(ctx context.Context, name string, limit int) ([]Entry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	zs, err := s.client.ZRevRangeWithScores(ctx, s.boardKey(name), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis top %s: %w", name, err)
	}
	if len(zs) == 0 {
		return nil, nil
	}
	scopes := make([]string, len(zs))
	for i, z := range zs {
		scopes[i], _ = z.Member.(string)
	}
	labels, err := s.client.HMGet(ctx, s.namesKey(), scopes...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis names: %w", err)
	}
	out := make([]Entry, len(zs))
	for i, z := range zs {
		out[i] = Entry{Scope: scopes[i], Value: int64(z.Score)}
		if l, ok := labels[i].(string); ok {
			out[i].Label = l
		}
	}
	return out, nil
}

func (s *RedisStore) Rank(ctx context.Context, name, scope string) (int, bool, error) {
	r, err := s.client.ZRevRank(ctx, s.boardKey(name), scope).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis rank %s: %w", name, err)
	}
	return int(r) + 1, true, nil
}

func (s *RedisStore) Close() error { return s.client.Close() }

// RedisLedger claims keys with SET NX EX under <prefix>:dedupe:.
type RedisLedger struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisLedger creates a ledger on client. A zero ttl keeps claims forever.
func NewRedisLedger(client *redis.Client, prefix string, ttl time.Duration) *RedisLedger {
	if prefix == "" {
		prefix = "fishrules"
	}
	return &RedisLedger{client: client, prefix: prefix, ttl: ttl}
}

func (l *RedisLedger) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.prefix+":dedupe:"+key, 1, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis claim %s: %w", key, err)
	}
	return ok, nil
}
