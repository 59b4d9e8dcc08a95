package failure

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesReason(t *testing.T) {
	err := fmt.Errorf("binding: %w", Wrap(errors.New("conn reset"), Busy, "submission_in_progress", "busy"))

	if !errors.Is(err, ErrInProgress) {
		t.Fatal("expected wrapped failure to match ErrInProgress by reason")
	}
	if errors.Is(err, ErrCartNotFound) {
		t.Fatal("did not expect a match on a different reason")
	}
}

func TestWithFieldsCopies(t *testing.T) {
	e := ErrCartNotFound.WithFields(map[string]string{"id": "missing"})

	if ErrCartNotFound.Fields != nil {
		t.Fatal("WithFields must not modify the receiver")
	}
	if e.Fields["id"] != "missing" {
		t.Fatalf("expected field to be set, got %v", e.Fields)
	}
	if !errors.Is(e, ErrCartNotFound) {
		t.Fatal("copy should keep matching the original reason")
	}
}

func TestClassOf(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		class Class
		ok    bool
	}{
		{"direct", ErrCartCompleted, Terminal, true},
		{"wrapped", fmt.Errorf("outer: %w", ErrRecreateLimit), Staleness, true},
		{"plain", errors.New("boom"), "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			class, ok := ClassOf(tc.err)
			if class != tc.class || ok != tc.ok {
				t.Fatalf("expected (%q, %v), got (%q, %v)", tc.class, tc.ok, class, ok)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := Wrap(errors.New("timeout"), Backend, "backend_failed", "commerce backend failed")
	if got, exp := err.Error(), "commerce backend failed: timeout"; got != exp {
		t.Fatalf("expected %q, got %q", exp, got)
	}
	if !errors.Is(err, err.Err) {
		t.Fatal("expected the cause to be reachable")
	}
}
