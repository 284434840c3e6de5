// Package ledger provides sentinel errors for ledger operations.

package ledger

import "errors"

// ErrClaimNotFound is returned when a lookup names a claim the ledger
// has no record of.
var ErrClaimNotFound = errors.New("ledger claim not found")
