package id

import (
	"github.com/google/uuid"
)

// NewLoanID returns a UUIDv7: 48-bit unix-millisecond prefix followed by
// 74 random bits, so ids sort lexicographically by creation time.
// It panics only if crypto/rand cannot supply entropy.
func NewLoanID() string {
	return uuid.Must(uuid.NewV7()).String()
}
