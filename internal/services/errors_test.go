package services_test

import (
	"errors"
	"testing"

	"curator/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	base := errors.New("disk full")
	err := services.Wrap(services.ErrEncode, "export", "encode", "sample img-1", base)
	if !errors.Is(err, services.ErrEncode) {
		t.Fatalf("expected ErrEncode marker, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped cause preserved, got %v", err)
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "ledger", "write", "", nil)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation fallback, got %v", err)
	}
}

func TestKind(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"not found", services.ErrNotFound, "not_found"},
		{"conflict", services.Wrap(services.ErrConflict, "ledger", "write", "", nil), "conflict"},
		{"retry budget", services.Wrap(services.ErrRetryBudget, "runner", "item", "", services.ErrStallTimeout), "retry_budget_exceeded"},
		{"unknown format", services.ErrUnknownFormat, "unknown_format"},
		{"plain", errors.New("boom"), "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.Kind(tc.err); got != tc.want {
				t.Fatalf("Kind(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}
