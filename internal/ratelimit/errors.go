package ratelimit

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrEmptyRecipient is returned when CheckAndAdmit is called without a recipient id.
	ErrEmptyRecipient = errors.New("recipient id is empty")
	// ErrReservedRecipient is returned for recipient ids whose key collides with the global counter.
	ErrReservedRecipient = errors.New("recipient id is reserved")
	// ErrStorageUnavailable is returned when the counter store cannot be read or written.
	ErrStorageUnavailable = errors.New("counter store unavailable")
	// ErrMalformedValue is returned when a stored counter is not a non-negative integer.
	ErrMalformedValue = errors.New("malformed counter value")
	// ErrLockTimeout is returned when the counter locks could not be acquired in time.
	ErrLockTimeout = errors.New("timed out waiting for counter lock")
	// ErrAtomicUnsupported is returned when atomic admission is requested from a store that cannot provide it.
	ErrAtomicUnsupported = errors.New("counter store does not support atomic admission")
)

// MalformedValueError describes a counter whose stored value could not be parsed.
// It matches both ErrMalformedValue and ErrStorageUnavailable.
type MalformedValueError struct {
	Key   string
	Value string
}

func (e *MalformedValueError) Error() string {
	return fmt.Sprintf("malformed counter value %q at key %s", e.Value, e.Key)
}

func (e *MalformedValueError) Unwrap() []error {
	return []error{ErrMalformedValue, ErrStorageUnavailable}
}

// ParseCount converts a stored counter value into a count. Only plain decimal
// digits are accepted, matching the admit script.
func ParseCount(key, raw string) (int64, error) {
	if !isDigits(raw) {
		return 0, &MalformedValueError{Key: key, Value: raw}
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &MalformedValueError{Key: key, Value: raw}
	}

	return n, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}

	for i := range len(s) {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}

	return true
}

// FormatCount renders a count the way it is stored.
func FormatCount(n int64) string {
	return strconv.FormatInt(n, 10)
}

// storageError tags err as a storage failure unless the store already did.
func storageError(op, key string, err error) error {
	if errors.Is(err, ErrStorageUnavailable) {
		return err
	}

	return fmt.Errorf("%w: %s %s: %w", ErrStorageUnavailable, op, key, err)
}
