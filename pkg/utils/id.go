package utils

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NewID returns a time-prefixed unique identifier. The nanosecond prefix
// keeps IDs roughly sortable by creation time; the UUID suffix guarantees
// uniqueness across concurrent writers.
func NewID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixNano(), uuid.NewString())
}

// ValidClientID reports whether s is a well-formed client-supplied
// idempotency key (a UUID).
func ValidClientID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
