/*
errors.go - Error taxonomy for the event engine

PURPOSE:
  All error types in one place. Every operation that can fail returns one of
  these as a value; nothing panics and nothing silently succeeds.

ERROR CATEGORIES:
  1. ErrInvalidRecord      - structural invariant violated; caller fixes input
  2. ErrSlotConflict       - Fixed start slot already taken on that day
  3. ErrNotFound           - update/delete of an ID that is not live
  4. ErrStorageUnavailable - the durable medium failed; not retried

USAGE:
  if errors.Is(err, event.ErrSlotConflict) {
      var conflict *event.SlotConflictError
      errors.As(err, &conflict) // conflict.ExistingID holds the occupant
  }

SEE ALSO:
  - validate.go: Produces ValidationError
  - index/index.go: Produces SlotConflictError
  - schedule/store.go: Produces NotFoundError and StorageError
*/
package event

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRecord is returned when a record breaks a structural rule
	// (blank title, malformed time pair, unknown duration).
	ErrInvalidRecord = errors.New("invalid record")

	// ErrSlotConflict is returned when a Fixed record's (day, start time) is
	// already held by a different record.
	ErrSlotConflict = errors.New("time slot already taken")

	// ErrNotFound is returned when an ID does not refer to a live record.
	ErrNotFound = errors.New("event not found")

	// ErrStorageUnavailable is returned when the storage medium failed to
	// open or a durable write failed.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrClosed is returned for operations on a closed store.
	ErrClosed = errors.New("store closed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the field that broke a structural rule.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid record: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidRecord
}

// SlotConflictError describes a collision on the (day, start time) slot.
type SlotConflictError struct {
	Day        Day
	StartTime  string
	ExistingID ID
}

func (e *SlotConflictError) Error() string {
	return fmt.Sprintf("time slot already taken: %s at %s (event %d)",
		e.Day, e.StartTime, e.ExistingID)
}

func (e *SlotConflictError) Unwrap() error {
	return ErrSlotConflict
}

// NotFoundError carries the ID that was looked up.
type NotFoundError struct {
	ID ID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("event not found: %d", e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// StorageError wraps a failure of the durable medium.
type StorageError struct {
	Op  string // "open", "insert", "replace", "delete", "load"
	Err error
}

func (e *StorageError) Error() string {
	if e.Err == nil {
		return "storage unavailable: " + e.Op
	}
	return fmt.Sprintf("storage unavailable: %s: %v", e.Op, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *StorageError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrStorageUnavailable}
	}
	return []error{ErrStorageUnavailable, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the caller can fix the request and retry.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRecord) ||
		errors.Is(err, ErrSlotConflict) ||
		errors.Is(err, ErrNotFound)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable returns true if retrying (after reopening) might succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}
