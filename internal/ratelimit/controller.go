package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	defaultLockTimeout  = 2 * time.Second
	defaultWriteTimeout = time.Second
)

// Controller admits message sends against a per-recipient and a global budget.
//
// Counters live in the CounterStore under RecipientKey(id) and GlobalKey. A
// counter expires Window after its last admission, so a steady stream of
// admissions keeps it alive and it only resets after a full quiet window.
// Denied checks never touch either counter.
type Controller struct {
	store        CounterStore
	admitter     AtomicAdmitter
	policy       Policy
	locker       *KeyLocker
	metrics      *Metrics
	logger       *zap.Logger
	lockTimeout  time.Duration
	writeTimeout time.Duration
	atomic       bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger used for denials and storage failures.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithMetrics sets the collectors decisions are recorded to.
func WithMetrics(metrics *Metrics) Option {
	return func(c *Controller) {
		c.metrics = metrics
	}
}

// WithLockTimeout bounds how long a check waits for its counter locks.
// Zero or negative means wait until the caller's context is done.
func WithLockTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.lockTimeout = d
	}
}

// WithWriteTimeout bounds the counter write that follows an admission.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

// WithAtomicStore delegates the whole check to the store's AtomicAdmitter
// instead of locking in-process.
func WithAtomicStore(enabled bool) Option {
	return func(c *Controller) {
		c.atomic = enabled
	}
}

// WithKeyLocker shares a KeyLocker between controllers backed by the same store.
func WithKeyLocker(locker *KeyLocker) Option {
	return func(c *Controller) {
		if locker != nil {
			c.locker = locker
		}
	}
}

// NewController creates a controller enforcing policy on store.
func NewController(store CounterStore, policy Policy, opts ...Option) (*Controller, error) {
	if store == nil {
		return nil, errors.New("counter store is required")
	}

	if err := policy.Validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		store:        store,
		policy:       policy,
		locker:       NewKeyLocker(),
		logger:       zap.NewNop(),
		lockTimeout:  defaultLockTimeout,
		writeTimeout: defaultWriteTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.atomic {
		admitter, ok := store.(AtomicAdmitter)
		if !ok {
			return nil, ErrAtomicUnsupported
		}

		c.admitter = admitter
	}

	return c, nil
}

// Policy returns the policy the controller enforces.
func (c *Controller) Policy() Policy {
	return c.policy
}

// CheckAndAdmit reports whether a message may be sent to recipientID, counting
// it against both budgets when it may. A storage failure is returned as an
// error and is never turned into an admit or a deny.
func (c *Controller) CheckAndAdmit(ctx context.Context, recipientID string) (bool, error) {
	decision, err := c.Decide(ctx, recipientID)
	if err != nil {
		return false, err
	}

	return decision.Allowed(), nil
}

// Decide is CheckAndAdmit with the counts the decision was based on.
func (c *Controller) Decide(ctx context.Context, recipientID string) (Decision, error) {
	if recipientID == "" {
		return Decision{}, ErrEmptyRecipient
	}

	recipientKey := RecipientKey(recipientID)
	if recipientKey == GlobalKey {
		return Decision{}, ErrReservedRecipient
	}

	start := time.Now()

	var (
		decision Decision
		err      error
	)

	if c.admitter != nil {
		decision, err = c.decideAtomically(ctx, recipientKey)
	} else {
		decision, err = c.decideLocked(ctx, recipientKey)
	}

	if err != nil {
		c.metrics.RecordError(time.Since(start))
		c.logger.Error("admission check failed",
			zap.String("recipient_key", recipientKey),
			zap.Error(err),
		)

		return Decision{}, err
	}

	c.metrics.RecordDecision(decision.Outcome, time.Since(start))

	if !decision.Allowed() {
		c.logger.Debug("admission denied",
			zap.String("recipient_key", recipientKey),
			zap.String("outcome", string(decision.Outcome)),
			zap.Int64("recipient_count", decision.RecipientCount),
			zap.Int64("global_count", decision.GlobalCount),
		)
	}

	return decision, nil
}

func (c *Controller) decideAtomically(ctx context.Context, recipientKey string) (Decision, error) {
	decision, err := c.admitter.AdmitIfBelow(ctx, recipientKey, GlobalKey, c.policy.Limits(), c.policy.Window)
	if err != nil {
		return Decision{}, storageError("admit", recipientKey, err)
	}

	return decision, nil
}

func (c *Controller) decideLocked(ctx context.Context, recipientKey string) (Decision, error) {
	unlock, err := c.lock(ctx, recipientKey, GlobalKey)
	if err != nil {
		return Decision{}, err
	}
	defer unlock()

	recipientCount, err := c.readCount(ctx, recipientKey)
	if err != nil {
		return Decision{}, err
	}

	globalCount, err := c.readCount(ctx, GlobalKey)
	if err != nil {
		return Decision{}, err
	}

	decision := Decision{
		Outcome:        c.policy.Limits().Evaluate(recipientCount, globalCount),
		RecipientCount: recipientCount,
		GlobalCount:    globalCount,
	}

	if !decision.Allowed() {
		return decision, nil
	}

	// Last point at which a cancelled caller leaves both counters untouched.
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	if err := c.writeCounts(ctx, []Entry{
		{Key: recipientKey, Value: FormatCount(recipientCount + 1)},
		{Key: GlobalKey, Value: FormatCount(globalCount + 1)},
	}, []Entry{
		{Key: recipientKey, Value: FormatCount(recipientCount)},
		{Key: GlobalKey, Value: FormatCount(globalCount)},
	}); err != nil {
		return Decision{}, err
	}

	return decision, nil
}

func (c *Controller) lock(ctx context.Context, keys ...string) (func(), error) {
	start := time.Now()

	if c.lockTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, c.lockTimeout)
		defer cancel()
	}

	unlock, err := c.locker.Lock(ctx, keys...)
	c.metrics.RecordLockWait(time.Since(start))

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLockTimeout, err)
	}

	return unlock, nil
}

func (c *Controller) readCount(ctx context.Context, key string) (int64, error) {
	raw, found, err := c.store.Get(ctx, key)
	if err != nil {
		return 0, storageError("get", key, err)
	}

	if !found {
		return 0, nil
	}

	return ParseCount(key, raw)
}

// writeCounts runs detached from the caller's cancellation so an admission is
// recorded on both counters or, on store failure, reported as an error.
// previous holds the values read under the lock, in the same order as entries.
func (c *Controller) writeCounts(ctx context.Context, entries, previous []Entry) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.writeTimeout)
	defer cancel()

	if batch, ok := c.store.(BatchSetter); ok {
		if err := batch.SetMany(writeCtx, entries, c.policy.Window); err != nil {
			return storageError("set", entries[0].Key, err)
		}

		return nil
	}

	for i, e := range entries {
		if err := c.store.Set(writeCtx, e.Key, e.Value, c.policy.Window); err != nil {
			c.restoreCounts(ctx, previous[:i])

			return storageError("set", e.Key, err)
		}
	}

	return nil
}

// restoreCounts puts back counters already written by a failed admission.
// A counter that was absent is restored as "0", which reads the same.
func (c *Controller) restoreCounts(ctx context.Context, entries []Entry) {
	if len(entries) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.writeTimeout)
	defer cancel()

	for _, e := range entries {
		if err := c.store.Set(ctx, e.Key, e.Value, c.policy.Window); err != nil {
			c.logger.Error("failed to restore counter after partial admission",
				zap.String("key", e.Key),
				zap.String("value", e.Value),
				zap.Error(err),
			)
		}
	}
}
