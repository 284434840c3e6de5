// Package rollup builds the L2-anchored-on-L1 payload proofs the hub's
// rollup light clients verify (spec.md §4.2), for the Arbitrum,
// Optimism, and Base families. Grounded on
// original_source/ethereum/evm/src/arbitrum/client.rs's
// fetch_arbitrum_payload, widened to three rollup families sharing one
// proof-assembly shape and differing only in their assertion-event ABI
// and GlobalState layout.
package rollup

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Family tags which rollup stack produced a payload proof.
type Family uint8

const (
	FamilyArbitrum Family = iota
	FamilyOptimism
	FamilyBase
)

func (f Family) String() string {
	switch f {
	case FamilyArbitrum:
		return "arbitrum"
	case FamilyOptimism:
		return "optimism"
	case FamilyBase:
		return "base"
	default:
		return "unknown"
	}
}

// MachineStatus mirrors the rollup contract's assertion machine-status
// enum (spec.md §4.2 step 6); finished/errored are the two terminal
// states a relayed assertion can carry.
type MachineStatus uint8

const (
	MachineStatusRunning MachineStatus = iota
	MachineStatusFinished
	MachineStatusErrored
)

// GlobalState is the rollup's compact state-commitment tuple, carried
// inside a NodeCreated/assertion event's after_state.
type GlobalState struct {
	BlockHash          common.Hash
	SendRoot           common.Hash
	InboxPosition      uint64
	PositionInMessage  uint64
}

// PayloadProof is the assembled proof an L1 Ethereum Provider hands to
// the hub: the full L2 header, the rollup's claimed global state, the
// machine status, and account/storage proofs anchored at a single L1
// block (spec.md §4.2, §3 "Rollup payload proof").
type PayloadProof struct {
	Family Family

	Header *types.Header

	GlobalState   GlobalState
	MachineStatus MachineStatus

	InboxMaxCount uint64
	NodeNumber    uint64

	// StorageProof and ContractProof are the raw RLP-encoded trie
	// node lists eth_getProof returns, both anchored at AnchorBlock.
	StorageProof  [][]byte
	ContractProof [][]byte
	AnchorBlock   uint64
}

// AssertionEvent is the L1 contract's NodeCreated-equivalent event,
// decoded from an event log; the three rollup families encode this
// differently but all carry these same logical fields.
type AssertionEvent struct {
	NodeNumber    uint64
	InboxMaxCount uint64
	GlobalState   GlobalState
	MachineStatus MachineStatus
}

// nodesSlot is the storage slot index of the `nodes` mapping on the
// rollup contract (spec.md §6 "Storage slot conventions"); the same
// slot number across all three families in this deployment's target
// contract versions.
const nodesSlot = 118

// DeriveStateHashKey computes the storage key for
// nodes[nodeNumber].stateHash: keccak256(pad32(nodeNumber) ∥
// pad32(NODES_SLOT)), the Solidity mapping-slot convention (spec.md §6).
func DeriveStateHashKey(nodeNumber uint64) common.Hash {
	return deriveMapKey(new(big.Int).SetUint64(nodeNumber), big.NewInt(nodesSlot))
}
