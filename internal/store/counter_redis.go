package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/serroba/gatekeeper/internal/ratelimit"
)

//go:embed admit.lua
var admitScriptSource string

const malformedReplyPrefix = "MALFORMED "

var admitOutcomes = map[int64]ratelimit.Outcome{
	0: ratelimit.OutcomeAdmitted,
	1: ratelimit.OutcomeDeniedRecipient,
	2: ratelimit.OutcomeDeniedGlobal,
}

// RedisCounterStore is a Redis implementation of ratelimit.CounterStore.
// Counters are stored as decimal strings with a millisecond TTL.
//
// AdmitIfBelow runs as a single Lua script and is the mode to use when several
// gatekeeper processes share one Redis. Both keys must live on the same node,
// so it is not usable against Redis Cluster.
type RedisCounterStore struct {
	client redis.UniversalClient
	admit  *redis.Script
}

// NewRedisCounterStore creates a Redis-backed counter store.
func NewRedisCounterStore(client redis.UniversalClient) *RedisCounterStore {
	return &RedisCounterStore{
		client: client,
		admit:  redis.NewScript(admitScriptSource),
	}
}

func (r *RedisCounterStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}

		return "", false, unavailable("get", key, err)
	}

	return val, true, nil
}

func (r *RedisCounterStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable("set", key, err)
	}

	return nil
}

// SetMany writes all entries inside MULTI/EXEC.
func (r *RedisCounterStore) SetMany(ctx context.Context, entries []ratelimit.Entry, ttl time.Duration) error {
	if len(entries) == 0 {
		return nil
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range entries {
			pipe.Set(ctx, e.Key, e.Value, ttl)
		}

		return nil
	})
	if err != nil {
		return unavailable("set", entries[0].Key, err)
	}

	return nil
}

func (r *RedisCounterStore) AdmitIfBelow(
	ctx context.Context, recipientKey, globalKey string, limits ratelimit.Limits, ttl time.Duration,
) (ratelimit.Decision, error) {
	window := max(ttl.Milliseconds(), 1)

	vals, err := r.admit.Run(ctx, r.client, []string{recipientKey, globalKey},
		limits.Recipient, limits.Global, window,
	).Int64Slice()
	if err != nil {
		if malformed := parseMalformedReply(err); malformed != nil {
			return ratelimit.Decision{}, malformed
		}

		return ratelimit.Decision{}, unavailable("admit", recipientKey, err)
	}

	if len(vals) != 3 {
		return ratelimit.Decision{}, unavailable("admit", recipientKey,
			fmt.Errorf("unexpected script reply of %d values", len(vals)))
	}

	outcome, ok := admitOutcomes[vals[0]]
	if !ok {
		return ratelimit.Decision{}, unavailable("admit", recipientKey,
			fmt.Errorf("unexpected script outcome %d", vals[0]))
	}

	return ratelimit.Decision{
		Outcome:        outcome,
		RecipientCount: vals[1],
		GlobalCount:    vals[2],
	}, nil
}

// Ping checks Redis connectivity.
func (r *RedisCounterStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func parseMalformedReply(err error) error {
	msg, ok := strings.CutPrefix(err.Error(), malformedReplyPrefix)
	if !ok {
		return nil
	}

	key, value, _ := strings.Cut(msg, " ")

	return &ratelimit.MalformedValueError{Key: key, Value: value}
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("%w: redis %s %s: %w", ratelimit.ErrStorageUnavailable, op, key, err)
}

// Compile-time checks.
var (
	_ ratelimit.CounterStore   = (*RedisCounterStore)(nil)
	_ ratelimit.BatchSetter    = (*RedisCounterStore)(nil)
	_ ratelimit.AtomicAdmitter = (*RedisCounterStore)(nil)
)
