// Copyright 2025 Certen Protocol
//
// Commitment key derivation shared across Provider implementations.
// These are the four pure functions spec.md §4.1 requires for the hub
// to generate proofs over message state: given a 32-byte commitment,
// derive the storage key it is stored under on a given destination.

package commitment

import (
	"crypto/sha256"
	"encoding/hex"
)

// Commitment is a 32-byte opaque message commitment (request or
// response hash) as produced by the hub.
type Commitment [32]byte

const (
	requestCommitmentsPrefix     = "ISMP_REQUEST_COMMITMENTS"
	requestReceiptsPrefix        = "ISMP_REQUEST_RECEIPTS"
	responseCommitmentsPrefix    = "ISMP_RESPONSE_COMMITMENTS"
	responseReceiptsPrefix       = "ISMP_RESPONSE_RECEIPTS"
)

// RequestCommitmentFullKey derives the destination storage key under
// which a pending request's commitment is stored.
func RequestCommitmentFullKey(c Commitment) []byte {
	return HashConcat([]byte(requestCommitmentsPrefix), c[:])
}

// RequestReceiptFullKey derives the destination storage key recording
// that a request has already been delivered (receipt).
func RequestReceiptFullKey(c Commitment) []byte {
	return HashConcat([]byte(requestReceiptsPrefix), c[:])
}

// ResponseCommitmentFullKey derives the destination storage key under
// which a pending response's commitment is stored.
func ResponseCommitmentFullKey(c Commitment) []byte {
	return HashConcat([]byte(responseCommitmentsPrefix), c[:])
}

// ResponseReceiptFullKey derives the destination storage key recording
// that a response has already been delivered (receipt).
func ResponseReceiptFullKey(c Commitment) []byte {
	return HashConcat([]byte(responseReceiptsPrefix), c[:])
}

// HashConcat returns SHA256 of concatenated byte slices.
func HashConcat(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// HashHex returns hex-encoded SHA256 of concatenated byte slices.
func HashHex(parts ...[]byte) string {
	return hex.EncodeToString(HashConcat(parts...))
}

// HashBytes returns hex-encoded SHA256 of bytes with a 0x prefix.
func HashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return "0x" + hex.EncodeToString(h[:])
}
