package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapUnwrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(AnalysisError, "session run failed", cause)

	if !errors.Is(err, cause) {
		t.Errorf("errors.Is should see through Wrap to the cause")
	}
	if err.Kind() != AnalysisError {
		t.Errorf("Kind() = %v, want AnalysisError", err.Kind())
	}
}

func TestNewHasNoCause(t *testing.T) {
	err := New(LoadError, "malformed position file")
	if err.Unwrap() != nil {
		t.Errorf("New() should have no wrapped cause")
	}
}

func TestIsCancelledMatchesThroughFmtErrorf(t *testing.T) {
	cancelled := New(Cancelled, "superseded by a newer request")
	wrapped := fmt.Errorf("facade: %w", cancelled)

	if !IsCancelled(wrapped) {
		t.Errorf("IsCancelled should see through fmt.Errorf wrapping")
	}
	if IsCancelled(errors.New("unrelated")) {
		t.Errorf("IsCancelled should be false for an unrelated error")
	}
}

func TestKindStringIsUsedInErrorMessage(t *testing.T) {
	err := New(ConfigurationError, "unsupported board size")
	want := "ConfigurationError: unsupported board size"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
