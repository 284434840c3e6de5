package mmr

import (
	"bytes"
	"testing"

	"github.com/certen/independant-validator/pkg/merkle"
)

func sampleProof() *Proof {
	return &Proof{
		LeafCount: 5,
		Leaves: []LeafPosition{
			{Position: 11, LeafIndex: 4},
			{Position: 4, LeafIndex: 1},
			{Position: 1, LeafIndex: 0},
		},
		Siblings: [][]byte{
			bytes.Repeat([]byte{0xAA}, 32),
			bytes.Repeat([]byte{0xBB}, 32),
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p := sampleProof()
	encoded := p.Encode()

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if !bytes.Equal(encoded, decoded.Encode()) {
		t.Fatalf("round trip mismatch: encode(decode(bytes)) != bytes")
	}
	if decoded.LeafCount != p.LeafCount {
		t.Fatalf("leaf count mismatch: got %d want %d", decoded.LeafCount, p.LeafCount)
	}
	if len(decoded.Leaves) != len(p.Leaves) {
		t.Fatalf("leaf slice length mismatch")
	}
}

func TestDecodeMalformedShortBuffer(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err != ErrMalformedProof {
		t.Fatalf("expected ErrMalformedProof, got %v", err)
	}
}

func TestKIndexedLeavesSortedByLeafIndex(t *testing.T) {
	p := sampleProof()
	leaves, err := p.KIndexedLeaves()
	if err != nil {
		t.Fatalf("k-indexed leaves: %v", err)
	}

	for i := 1; i < len(leaves); i++ {
		if leaves[i-1].LeafIndex >= leaves[i].LeafIndex {
			t.Fatalf("leaves not strictly ascending by leaf_index: %+v", leaves)
		}
	}
	if leaves[0].LeafIndex != 0 || leaves[len(leaves)-1].LeafIndex != 4 {
		t.Fatalf("unexpected leaf_index bounds: %+v", leaves)
	}
}

func TestKIndexedLeavesEmptyProof(t *testing.T) {
	p := &Proof{LeafCount: 0}
	if _, err := p.KIndexedLeaves(); err != ErrEmptyProof {
		t.Fatalf("expected ErrEmptyProof, got %v", err)
	}
}

func TestPositionToKIndexSingleLeaf(t *testing.T) {
	if k := PositionToKIndex(1, 1); k != 0 {
		t.Fatalf("single-leaf MMR must yield k_index 0, got %d", k)
	}
}

func TestVerifyLeafWalksSiblingPath(t *testing.T) {
	leaf := bytes.Repeat([]byte{0x01}, 32)
	sibling := bytes.Repeat([]byte{0x02}, 32)

	root := merkle.HashPair(leaf, sibling)
	if !VerifyLeaf(leaf, 0, [][]byte{sibling}, root) {
		t.Fatalf("expected VerifyLeaf to recompute root for k_index=0")
	}
	if VerifyLeaf(leaf, 1, [][]byte{sibling}, root) {
		t.Fatalf("VerifyLeaf should not accept the wrong k_index parity")
	}
}
