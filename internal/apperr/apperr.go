// Package apperr defines the error taxonomy shared by the tracker packages.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrValidation marks input that must be corrected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks an operation rejected because of the current entity state.
	ErrConflict = errors.New("state conflict")
	// ErrNotFound marks a reference to a missing or deleted entity.
	ErrNotFound = errors.New("not found")
)

// Validation returns an error wrapping ErrValidation.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Conflict returns an error wrapping ErrConflict.
func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// NotFound returns an error wrapping ErrNotFound.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}

// ItemFailure is one rejected update inside a batch.
type ItemFailure struct {
	ItemID string `json:"item_id"`
	Err    error  `json:"-"`
	Reason string `json:"reason"`
}

// BatchError reports a batch where some per-item updates failed and the rest
// were left applied.
type BatchError struct {
	Applied  int
	Failures []ItemFailure
}

func (e *BatchError) Error() string {
	ids := e.FailedIDs()
	return fmt.Sprintf("batch partially applied: %d ok, %d failed (%s)", e.Applied, len(e.Failures), strings.Join(ids, ", "))
}

// Unwrap exposes the per-item errors to errors.Is / errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}

// FailedIDs returns the sorted ids of the failed items.
func (e *BatchError) FailedIDs() []string {
	ids := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		ids = append(ids, f.ItemID)
	}
	sort.Strings(ids)
	return ids
}

// NewBatchError builds a BatchError, or returns nil when nothing failed.
func NewBatchError(applied int, failures []ItemFailure) error {
	if len(failures) == 0 {
		return nil
	}
	for i := range failures {
		if failures[i].Reason == "" && failures[i].Err != nil {
			failures[i].Reason = failures[i].Err.Error()
		}
		if failures[i].Err == nil && failures[i].Reason != "" {
			failures[i].Err = errors.New(failures[i].Reason)
		}
	}
	return &BatchError{Applied: applied, Failures: failures}
}

// IsBatch reports whether err carries a partial batch failure.
func IsBatch(err error) (*BatchError, bool) {
	var be *BatchError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
