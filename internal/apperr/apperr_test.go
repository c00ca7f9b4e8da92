package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelsWrap(t *testing.T) {
	err := fmt.Errorf("sprint: start: %w", Conflict("sprint %q is already active", "s-1"))
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict in chain, got %v", err)
	}
	if errors.Is(err, ErrValidation) {
		t.Fatal("conflict must not match ErrValidation")
	}
	if !errors.Is(NotFound("item", "x"), ErrNotFound) {
		t.Fatal("expected ErrNotFound")
	}
	if !errors.Is(Validation("title is required"), ErrValidation) {
		t.Fatal("expected ErrValidation")
	}
}

func TestNewBatchError(t *testing.T) {
	if err := NewBatchError(3, nil); err != nil {
		t.Fatalf("expected nil for empty failures, got %v", err)
	}

	err := NewBatchError(1, []ItemFailure{
		{ItemID: "b", Err: NotFound("item", "b")},
		{ItemID: "a", Reason: "disk full"},
	})
	be, ok := IsBatch(fmt.Errorf("wrapped: %w", err))
	if !ok {
		t.Fatalf("expected batch error, got %T", err)
	}
	if got := be.FailedIDs(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("FailedIDs = %v, want [a b]", got)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Fatal("batch error should unwrap to per-item errors")
	}
	if be.Failures[0].Reason == "" {
		t.Fatal("reason should be filled from the error")
	}
}
