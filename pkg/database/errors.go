// Package database provides sentinel errors for repository operations.

package database

import "errors"

// Sentinel errors for database operations.
var (
	// ErrNotFound is returned when a requested entity is not found in the database.
	ErrNotFound = errors.New("entity not found")

	// ErrClaimNotFound is returned when a ledger claim is not found.
	ErrClaimNotFound = errors.New("ledger claim not found")
)
