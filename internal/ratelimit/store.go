package ratelimit

import (
	"context"
	"time"
)

// CounterStore is the shared key-value store holding admission counters.
// Implementations must be safe for concurrent use.
type CounterStore interface {
	// Get returns the raw value stored at key. found is false when the key is
	// absent or has expired.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	// Set writes value at key, expiring it after ttl.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Entry is a single key/value pair written by BatchSetter.
type Entry struct {
	Key   string
	Value string
}

// BatchSetter is implemented by stores that can write several keys as one
// indivisible operation. The controller prefers it over repeated Set calls so
// that the recipient and global counters are never left half-updated.
type BatchSetter interface {
	SetMany(ctx context.Context, entries []Entry, ttl time.Duration) error
}

// AtomicAdmitter is implemented by stores that can run the whole
// read-decide-increment sequence server-side. It is the only mode that stays
// correct when several gatekeeper processes share one store.
type AtomicAdmitter interface {
	AdmitIfBelow(ctx context.Context, recipientKey, globalKey string, limits Limits, ttl time.Duration) (Decision, error)
}
