package ratelimit

import (
	"context"
	"slices"
	"sync"
)

// KeyLocker hands out one mutual-exclusion lock per key. Waiting for a lock
// honours context cancellation, and locks for keys nobody holds or waits on are
// dropped so the map does not grow with the number of recipients seen.
type KeyLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

type heldLock struct {
	key  string
	lock *keyLock
}

// NewKeyLocker creates an empty KeyLocker.
func NewKeyLocker() *KeyLocker {
	return &KeyLocker{
		locks: make(map[string]*keyLock),
	}
}

// Lock acquires the locks for all keys, blocking until every one is held or
// ctx is done. Keys are taken in sorted order so two callers locking
// overlapping sets cannot deadlock. On error nothing is held.
// The returned unlock func is safe to call more than once.
func (l *KeyLocker) Lock(ctx context.Context, keys ...string) (func(), error) {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	held := make([]heldLock, 0, len(sorted))

	for _, key := range sorted {
		lock, err := l.acquire(ctx, key)
		if err != nil {
			l.release(held)

			return nil, err
		}

		held = append(held, heldLock{key: key, lock: lock})
	}

	var once sync.Once

	return func() {
		once.Do(func() { l.release(held) })
	}, nil
}

// Len returns the number of keys currently locked or waited on.
func (l *KeyLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.locks)
}

func (l *KeyLocker) acquire(ctx context.Context, key string) (*keyLock, error) {
	l.mu.Lock()

	lock, ok := l.locks[key]
	if !ok {
		lock = &keyLock{sem: make(chan struct{}, 1)}
		l.locks[key] = lock
	}

	lock.refs++
	l.mu.Unlock()

	select {
	case lock.sem <- struct{}{}:
		return lock, nil
	case <-ctx.Done():
		l.forget(key, lock)

		return nil, ctx.Err()
	}
}

// release unlocks in reverse acquisition order.
func (l *KeyLocker) release(held []heldLock) {
	for i := len(held) - 1; i >= 0; i-- {
		<-held[i].lock.sem
		l.forget(held[i].key, held[i].lock)
	}
}

func (l *KeyLocker) forget(key string, lock *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, key)
	}
}
