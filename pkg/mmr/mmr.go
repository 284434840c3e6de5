// Package mmr implements the Merkle Mountain Range membership proof
// format carried by hub-originated RequestMessage/ResponseMessage
// payloads: a leaf count, a set of (position, leaf_index) pairs, and
// the sibling hashes needed to recompute the MMR root from any one of
// them. Destinations verify inclusion using (k_index, leaf_index)
// pairs sorted ascending by leaf_index; this package produces that
// shape from the hub's wire encoding.
package mmr

import (
	"encoding/binary"
	"errors"
	"sort"

	"github.com/certen/independant-validator/pkg/merkle"
)

// ErrEmptyProof is returned when a proof carries no leaves to verify.
var ErrEmptyProof = errors.New("mmr: proof has no leaves")

// ErrMalformedProof is returned when a proof's encoded bytes don't
// decode into a well-formed Proof (truncated, bad lengths, etc).
var ErrMalformedProof = errors.New("mmr: malformed proof encoding")

// LeafPosition pairs an MMR node position with the leaf_index a
// destination-native verifier groups it under.
type LeafPosition struct {
	Position  uint64
	LeafIndex uint64
}

// Proof is the decoded form of the wire MMR proof: leaf_count, the
// (position, leaf_index) pairs naming which leaves are being proven,
// and the sibling hashes needed to walk from each leaf to the root.
type Proof struct {
	LeafCount uint64
	Leaves    []LeafPosition
	Siblings  [][]byte // each 32 bytes
}

// KIndexedLeaf is a single leaf ready for destination submission: its
// k_index (derived from Position under the MMR of size LeafCount) and
// its original LeafIndex, used both for verification-path reconstruction
// and for the required ascending leaf_index ordering.
type KIndexedLeaf struct {
	KIndex    uint64
	LeafIndex uint64
}

// Decode parses the wire encoding of an MMR proof:
//
//	u64 leaf_count
//	u32 num_leaves, then num_leaves * (u64 position, u64 leaf_index)
//	u32 num_siblings, then num_siblings * 32-byte hash
//
// This mirrors the SCALE-derived layout the hub emits; Decode(Encode(p))
// round-trips to the same Proof (the round-trip law spec.md names).
func Decode(b []byte) (*Proof, error) {
	r := &byteReader{buf: b}

	leafCount, err := r.readU64()
	if err != nil {
		return nil, ErrMalformedProof
	}

	numLeaves, err := r.readU32()
	if err != nil {
		return nil, ErrMalformedProof
	}
	leaves := make([]LeafPosition, 0, numLeaves)
	for i := uint32(0); i < numLeaves; i++ {
		pos, err := r.readU64()
		if err != nil {
			return nil, ErrMalformedProof
		}
		idx, err := r.readU64()
		if err != nil {
			return nil, ErrMalformedProof
		}
		leaves = append(leaves, LeafPosition{Position: pos, LeafIndex: idx})
	}

	numSiblings, err := r.readU32()
	if err != nil {
		return nil, ErrMalformedProof
	}
	siblings := make([][]byte, 0, numSiblings)
	for i := uint32(0); i < numSiblings; i++ {
		h, err := r.readBytes(32)
		if err != nil {
			return nil, ErrMalformedProof
		}
		siblings = append(siblings, h)
	}

	if !r.exhausted() {
		return nil, ErrMalformedProof
	}

	return &Proof{LeafCount: leafCount, Leaves: leaves, Siblings: siblings}, nil
}

// Encode serializes a Proof back to the wire format Decode accepts.
func (p *Proof) Encode() []byte {
	out := make([]byte, 0, 8+4+len(p.Leaves)*16+4+len(p.Siblings)*32)
	out = appendU64(out, p.LeafCount)
	out = appendU32(out, uint32(len(p.Leaves)))
	for _, l := range p.Leaves {
		out = appendU64(out, l.Position)
		out = appendU64(out, l.LeafIndex)
	}
	out = appendU32(out, uint32(len(p.Siblings)))
	for _, s := range p.Siblings {
		out = append(out, s...)
	}
	return out
}

// KIndexedLeaves derives (k_index, leaf_index) pairs for every leaf in
// the proof, sorted ascending by leaf_index as the destination's
// verification contract requires (spec.md §3 invariants, §8 "leaf
// ordering").
func (p *Proof) KIndexedLeaves() ([]KIndexedLeaf, error) {
	if len(p.Leaves) == 0 {
		return nil, ErrEmptyProof
	}

	out := make([]KIndexedLeaf, 0, len(p.Leaves))
	for _, l := range p.Leaves {
		k := PositionToKIndex(l.Position, p.LeafCount)
		out = append(out, KIndexedLeaf{KIndex: k, LeafIndex: l.LeafIndex})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].LeafIndex < out[j].LeafIndex })
	return out, nil
}

// PositionToKIndex implements the MMR position-to-k-index transform:
// given the MMR's total leaf count, derive the index a verifier must
// use to walk the proof path for a leaf at the given 1-indexed MMR
// node position. This is the Go port of the Rust original's
// `mmr_position_to_k_index`, used verbatim by
// original_source/ethereum/evm/src/tx.rs when assembling submission
// payloads.
//
// leaf_count == 1 is the trivial single-leaf MMR: k_index is always 0
// (spec.md §8 boundary case).
func PositionToKIndex(position, leafCount uint64) uint64 {
	if leafCount <= 1 {
		return 0
	}

	size := mmrSize(leafCount)
	peaks := mmrPeaks(size)

	// Locate which peak's subtree the position falls under, and the
	// position's local index within that peak before folding it down
	// to a leaf-relative k_index.
	var peakOffset uint64
	for _, peakPos := range peaks {
		height := peakHeight(peakPos, peakOffset)
		subtreeLeaves := uint64(1) << height
		subtreeSize := 2*subtreeLeaves - 1

		if position <= peakOffset+subtreeSize {
			return position - peakOffset - 1
		}
		peakOffset += subtreeSize
	}
	return position - 1
}

// mmrSize returns the total number of MMR nodes (leaves + internal
// peaks merged) for a tree holding leafCount leaves.
func mmrSize(leafCount uint64) uint64 {
	return 2*leafCount - uint64(popcount(leafCount))
}

// mmrPeaks returns the starting (1-indexed) node position of every
// peak in an MMR of the given total size, ordered left to right
// (largest peak first), following the standard "all-ones binary"
// bagging convention.
func mmrPeaks(size uint64) []uint64 {
	var peaks []uint64
	pos := uint64(0)
	remaining := size
	for remaining > 0 {
		peakSize := allOnes(remaining)
		peaks = append(peaks, pos+peakSize)
		pos += peakSize
		remaining -= peakSize
	}
	return peaks
}

// allOnes returns the largest value of the form 2^h - 1 that is <= n.
func allOnes(n uint64) uint64 {
	h := uint64(1)
	for h-1 <= n {
		h <<= 1
	}
	return (h >> 1) - 1
}

// peakHeight derives a peak's height (0-indexed) from its node size.
func peakHeight(peakSize, _ uint64) uint64 {
	h := uint64(0)
	for (uint64(1)<<(h+1))-1 <= peakSize {
		h++
	}
	return h
}

func popcount(n uint64) int {
	count := 0
	for n > 0 {
		count += int(n & 1)
		n >>= 1
	}
	return count
}

// VerifyLeaf recomputes the MMR root from a single leaf hash and the
// proof's sibling list, walking bit-by-bit through kIndex to decide
// left/right combination order — the same left/right sibling-walk
// pkg/merkle's HashPair always implemented, just indexed by k_index
// instead of a binary tree level.
func VerifyLeaf(leafHash []byte, kIndex uint64, siblings [][]byte, expectedRoot []byte) bool {
	current := leafHash
	k := kIndex
	for _, sibling := range siblings {
		if k&1 == 0 {
			current = merkle.HashPair(current, sibling)
		} else {
			current = merkle.HashPair(sibling, current)
		}
		k >>= 1
	}
	if expectedRoot == nil {
		return true
	}
	if len(current) != len(expectedRoot) {
		return false
	}
	for i := range current {
		if current[i] != expectedRoot[i] {
			return false
		}
	}
	return true
}

// byteReader is a tiny cursor over a byte slice used by Decode.
type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) readU64() (uint64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, errShortRead
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

func (r *byteReader) readU32() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, errShortRead
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *byteReader) readBytes(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, errShortRead
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

func (r *byteReader) exhausted() bool { return r.pos == len(r.buf) }

var errShortRead = errors.New("mmr: short read")

func appendU64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}
