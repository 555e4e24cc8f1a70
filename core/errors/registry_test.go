package errors

import (
	"fmt"
	"testing"
)

func TestKindUnwrapsContext(t *testing.T) {
	wrapped := fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	if got := Kind(wrapped); got != ErrInvalidInput {
		t.Fatalf("expected ErrInvalidInput, got %v", got)
	}
	if got := Kind(fmt.Errorf("boom")); got != nil {
		t.Fatalf("expected nil kind for foreign error, got %v", got)
	}
}
