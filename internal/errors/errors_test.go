package errors

import (
	stderrors "errors"
	"testing"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(CodeFetchFailure, cause, "fetch calendar feed")

	if !stderrors.Is(err, cause) {
		t.Fatal("wrapped error must match its cause")
	}
	if got := CodeOf(err); got != CodeFetchFailure {
		t.Fatalf("CodeOf = %s, want %s", got, CodeFetchFailure)
	}
}

func TestCodeOfPlainError(t *testing.T) {
	if got := CodeOf(stderrors.New("boom")); got != CodeUnknown {
		t.Fatalf("CodeOf(plain error) = %s, want %s", got, CodeUnknown)
	}
	if got := CodeOf(nil); got != CodeUnknown {
		t.Fatalf("CodeOf(nil) = %s, want %s", got, CodeUnknown)
	}
}

func TestIsCodeThroughWrapping(t *testing.T) {
	inner := New(CodeNotFound, "plugin type ical not found")
	outer := Wrap(CodeReconciliation, inner, "reconcile types")

	if !IsCode(outer, CodeReconciliation) {
		t.Fatal("outer code must match")
	}
	if !IsCode(outer, CodeNotFound) {
		t.Fatal("inner code must still be reachable through the chain")
	}
	if IsCode(outer, CodeTimeout) {
		t.Fatal("unrelated codes must not match")
	}
}

func TestMetadata(t *testing.T) {
	err := New(CodeConfigValidation, "required field missing",
		WithMetadata("field", "ical_url"),
	)
	if got := err.Metadata()["field"]; got != "ical_url" {
		t.Fatalf("metadata field = %q, want ical_url", got)
	}
}
