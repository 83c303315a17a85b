package syncerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewAndError(t *testing.T) {
	t.Parallel()
	err := New(AuthRequired, "not logged in")
	want := "AUTH_REQUIRED: not logged in"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWrapIncludesUnderlying(t *testing.T) {
	t.Parallel()
	underlying := errors.New("connection refused")
	err := Wrap(RemoteUnavailable, "fetching issue", underlying)

	if err.Unwrap() != underlying {
		t.Error("Unwrap() should return the wrapped error")
	}
	if got := err.Error(); got == "" {
		t.Fatal("Error() should not be empty")
	}
}

func TestIsMatchesDirectError(t *testing.T) {
	t.Parallel()
	err := New(UUIDMismatch, "mismatch")
	if !Is(err, UUIDMismatch) {
		t.Error("Is() should match the error's own code")
	}
	if Is(err, SyncConflict) {
		t.Error("Is() should not match an unrelated code")
	}
}

func TestIsWalksWrapChain(t *testing.T) {
	t.Parallel()
	base := New(ValidationFailed, "bad spec_id")
	outer := fmt.Errorf("pushing spec: %w", base)
	if !Is(outer, ValidationFailed) {
		t.Error("Is() should walk through fmt.Errorf %w wrapping")
	}
}

func TestIsFalseForPlainError(t *testing.T) {
	t.Parallel()
	if Is(errors.New("plain"), AuthRequired) {
		t.Error("Is() should return false for an error with no Code")
	}
	if Is(nil, AuthRequired) {
		t.Error("Is() should return false for nil")
	}
}
