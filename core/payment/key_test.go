package payment

import (
	"testing"

	"github.com/google/uuid"
)

func TestIdempotencyKey(t *testing.T) {
	k1 := IdempotencyKey("cart_1", 1)

	if k1 != IdempotencyKey("cart_1", 1) {
		t.Fatal("expected the key to be deterministic")
	}
	if k1 == IdempotencyKey("cart_1", 2) {
		t.Fatal("expected a new attempt to get a new key")
	}
	if k1 == IdempotencyKey("cart_2", 1) {
		t.Fatal("expected carts not to share keys")
	}

	id, err := uuid.Parse(k1)
	if err != nil {
		t.Fatalf("expected a uuid, got %q: %v", k1, err)
	}
	if id.Version() != 5 {
		t.Fatalf("expected a name based uuid, got version %d", id.Version())
	}
}
