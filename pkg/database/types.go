package database

import (
	"github.com/google/uuid"
)

// ============================================================================
// UUID HELPERS
// ============================================================================

// NullUUID aliases uuid.NullUUID for nullable UUID columns.
type NullUUID = uuid.NullUUID

// ParseUUID parses a string into a UUID.
func ParseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

// NewUUID generates a new random UUID.
func NewUUID() uuid.UUID {
	return uuid.New()
}
