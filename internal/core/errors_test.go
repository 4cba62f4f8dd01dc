package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesKindAndReason(t *testing.T) {
	err := fmt.Errorf("claim: %w", ErrNameTaken)

	if !errors.Is(err, ErrNameTaken) {
		t.Fatal("expected wrapped error to match ErrNameTaken")
	}
	if !errors.Is(err, &Error{Kind: KindValidation}) {
		t.Fatal("expected kind-only target to match")
	}
	if errors.Is(err, ErrNameEmpty) {
		t.Fatal("different reason must not match")
	}
	if errors.Is(err, ErrForbidden) {
		t.Fatal("different kind must not match")
	}
}

func TestReasonOf(t *testing.T) {
	cause := errors.New("boom")
	if got := ReasonOf(ErrTransport.Wrap(cause)); got != "TransportFailure" {
		t.Fatalf("reason = %q", got)
	}
	if got := ReasonOf(cause); got != "InternalError" {
		t.Fatalf("reason of plain error = %q", got)
	}
	if !errors.Is(ErrTransport.Wrap(cause), cause) {
		t.Fatal("wrapped cause must be reachable")
	}
}
