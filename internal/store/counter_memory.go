package store

import (
	"context"
	"sync"
	"time"

	"github.com/serroba/gatekeeper/internal/ratelimit"
)

const memorySweepInterval = time.Minute

type counterEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e counterEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryCounterStore is an in-memory implementation of ratelimit.CounterStore.
// It also implements ratelimit.BatchSetter and ratelimit.AtomicAdmitter, both
// serialised by the store's own mutex. Suitable for single-instance deployments
// and tests.
type MemoryCounterStore struct {
	mu       sync.Mutex
	entries  map[string]counterEntry
	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryCounterStore creates a store that sweeps expired counters in the background.
func NewMemoryCounterStore() *MemoryCounterStore {
	s := &MemoryCounterStore{
		entries: make(map[string]counterEntry),
		stop:    make(chan struct{}),
	}

	go s.sweep(memorySweepInterval)

	return s
}

func (s *MemoryCounterStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.lookup(key, time.Now())
	if !ok {
		return "", false, nil
	}

	return entry.value, true, nil
}

func (s *MemoryCounterStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.put(key, value, ttl, time.Now())

	return nil
}

func (s *MemoryCounterStore) SetMany(_ context.Context, entries []ratelimit.Entry, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, e := range entries {
		s.put(e.Key, e.Value, ttl, now)
	}

	return nil
}

func (s *MemoryCounterStore) AdmitIfBelow(
	_ context.Context, recipientKey, globalKey string, limits ratelimit.Limits, ttl time.Duration,
) (ratelimit.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	recipientCount, err := s.count(recipientKey, now)
	if err != nil {
		return ratelimit.Decision{}, err
	}

	globalCount, err := s.count(globalKey, now)
	if err != nil {
		return ratelimit.Decision{}, err
	}

	decision := ratelimit.Decision{
		Outcome:        limits.Evaluate(recipientCount, globalCount),
		RecipientCount: recipientCount,
		GlobalCount:    globalCount,
	}

	if decision.Allowed() {
		s.put(recipientKey, ratelimit.FormatCount(recipientCount+1), ttl, now)
		s.put(globalKey, ratelimit.FormatCount(globalCount+1), ttl, now)
	}

	return decision, nil
}

// Close stops the background sweep.
func (s *MemoryCounterStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })

	return nil
}

// Shutdown closes the store when the injector shuts down.
func (s *MemoryCounterStore) Shutdown() error {
	return s.Close()
}

func (s *MemoryCounterStore) lookup(key string, now time.Time) (counterEntry, bool) {
	entry, ok := s.entries[key]
	if !ok {
		return counterEntry{}, false
	}

	if entry.expired(now) {
		delete(s.entries, key)

		return counterEntry{}, false
	}

	return entry, true
}

func (s *MemoryCounterStore) count(key string, now time.Time) (int64, error) {
	entry, ok := s.lookup(key, now)
	if !ok {
		return 0, nil
	}

	return ratelimit.ParseCount(key, entry.value)
}

func (s *MemoryCounterStore) put(key, value string, ttl time.Duration, now time.Time) {
	entry := counterEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}

	s.entries[key] = entry
}

func (s *MemoryCounterStore) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()

			s.mu.Lock()
			for key, entry := range s.entries {
				if entry.expired(now) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		case <-s.stop:
			return
		}
	}
}

// Compile-time checks.
var (
	_ ratelimit.CounterStore   = (*MemoryCounterStore)(nil)
	_ ratelimit.BatchSetter    = (*MemoryCounterStore)(nil)
	_ ratelimit.AtomicAdmitter = (*MemoryCounterStore)(nil)
)
