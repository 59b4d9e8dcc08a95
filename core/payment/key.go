package payment

import (
	"strconv"

	"github.com/google/uuid"
)

var keySpace = uuid.MustParse("5b1f0b7e-8d2a-4d8c-9a57-3c1e2f6a9d40")

// IdempotencyKey is deterministic per cart and attempt. Every bind takes a new
// attempt, so a stale session's key is never sent again.
func IdempotencyKey(cartID string, attempt int64) string {
	return uuid.NewSHA1(keySpace, []byte(cartID+":"+strconv.FormatInt(attempt, 10))).String()
}
