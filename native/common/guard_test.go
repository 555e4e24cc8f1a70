package common

import (
	"errors"
	"testing"
)

func TestGuardPausedModule(t *testing.T) {
	called := false
	err := Guard(Pauses{"requests": true}, "requests", func() error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if called {
		t.Fatalf("checks must not run for a paused module")
	}
}

func TestGuardStopsAtFirstFailure(t *testing.T) {
	first := errors.New("first")
	var order []int
	err := Guard(nil, "identity",
		func() error { order = append(order, 1); return nil },
		nil,
		func() error { order = append(order, 2); return first },
		func() error { order = append(order, 3); return nil },
	)
	if !errors.Is(err, first) {
		t.Fatalf("expected first failure, got %v", err)
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("unexpected evaluation order %v", order)
	}
}
