package util

import "github.com/google/uuid"

// NewID returns a random UUIDv4 string. Users, letters, deliveries and
// request ids all share this format.
func NewID() string {
	return uuid.NewString()
}
