package idempotency

import "github.com/google/uuid"

// HeaderName carries the key alongside the request body field.
const HeaderName = "Idempotency-Key"

// Generator yields a fresh key per logical transfer attempt.
type Generator interface {
	NewKey() string
}

// UUIDGenerator draws random (version 4) UUIDs from crypto/rand.
type UUIDGenerator struct{}

// NewKey returns a new random UUID string.
func (UUIDGenerator) NewKey() string {
	return uuid.NewString()
}

// Func adapts a plain function to Generator.
type Func func() string

// NewKey calls f.
func (f Func) NewKey() string {
	return f()
}
