package wal

import "github.com/google/uuid"

// IDGenerator stamps records that arrive without an id.
type IDGenerator interface {
	NewID() string
}

// UUIDv7Generator generates time-sortable UUIDv7 record ids, so ids in a
// file sort the same way as the lines.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// NewID returns a hyphenated UUIDv7.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
