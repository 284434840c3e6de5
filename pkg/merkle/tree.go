// Copyright 2025 Certen Protocol
//
// Shared hashing primitives for membership-proof verification.
// The Merkle Mountain Range proof in pkg/mmr composes these rather than
// a binary tree's fixed level structure, but the node-combination rule
// (SHA256(left || right)) is the same one this package always used.

package merkle

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashPair combines two 32-byte hashes into one: SHA256(left || right).
func HashPair(left, right []byte) []byte {
	combined := make([]byte, 0, len(left)+len(right))
	combined = append(combined, left...)
	combined = append(combined, right...)
	hash := sha256.Sum256(combined)
	return hash[:]
}

// HashData creates a SHA256 hash of arbitrary data.
func HashData(data []byte) []byte {
	hash := sha256.Sum256(data)
	return hash[:]
}

// HashDataHex creates a SHA256 hash and returns it as hex.
func HashDataHex(data []byte) string {
	return hex.EncodeToString(HashData(data))
}

// CombineHashes concatenates and hashes multiple byte slices.
func CombineHashes(hashes ...[]byte) []byte {
	var combined []byte
	for _, h := range hashes {
		combined = append(combined, h...)
	}
	return HashData(combined)
}
