package util

import "github.com/google/uuid"

// NewID returns a random UUIDv4 string, used for user and request IDs.
func NewID() string {
	return uuid.NewString()
}
