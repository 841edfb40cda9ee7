package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIdempotencyStatusValid(t *testing.T) {
	tests := []struct {
		name   string
		status IdempotencyStatus
		want   bool
	}{
		{name: "processing", status: IdempotencyStatusProcessing, want: true},
		{name: "done", status: IdempotencyStatusDone, want: true},
		{name: "failed", status: IdempotencyStatusFailed, want: true},
		{name: "invalid", status: IdempotencyStatus("broken"), want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.status.Valid(); got != tc.want {
				t.Fatalf("status %q valid=%v, want %v", tc.status, got, tc.want)
			}
		})
	}
}

func TestIsIdempotencyConflict_Wrapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "in flight", err: ErrIdempotencyKeyAlreadyExists, want: true},
		{name: "reused with other body", err: fmt.Errorf("begin: %w", ErrIdempotencyHashMismatch), want: true},
		{name: "wrapped in domain error", err: &Error{Kind: KindConflict, Code: ErrIdempotencyHashMismatch}, want: true},
		{name: "expired key", err: ErrIdempotencyKeyNotFound, want: false},
		{name: "unrelated", err: errors.New("boom"), want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsIdempotencyConflict(tc.err); got != tc.want {
				t.Fatalf("IsIdempotencyConflict(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
