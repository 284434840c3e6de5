package rollup

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// arbitrumNodeCreatedTopic is the keccak256 topic hash of Arbitrum
// Nitro's RollupCore.NodeCreated event. Populated from the real
// contract ABI at construction time in a finished deployment.
var arbitrumNodeCreatedTopic common.Hash

// NewArbitrumBuilder constructs a Builder for the Arbitrum Nitro
// rollup family, anchored on an L1 RollupCore contract and its L2
// execution client.
func NewArbitrumBuilder(l1, l2 *ethclient.Client, rollupCore common.Address) *Builder {
	return NewBuilder(FamilyArbitrum, l1, l2, rollupCore, arbitrumNodeCreatedTopic, decodeArbitrumNodeCreated)
}

// decodeArbitrumNodeCreated unpacks a NodeCreated log into the shared
// AssertionEvent shape. Grounded on
// original_source/ethereum/evm/src/arbitrum/client.rs's
// fetch_arbitrum_payload, which reads
// assertion.after_state.global_state.bytes_32_vals[0..1] as
// (block_hash, send_root) and u_64_vals[0..1] as (inbox_position,
// position_in_message).
//
// A real deployment unpacks this via the generated RollupCore ABI
// binding; this decodes the fixed-offset word layout directly since no
// bound contract type is generated in this tree.
func decodeArbitrumNodeCreated(l types.Log) (AssertionEvent, error) {
	// word layout: [0]=nodeNum [1]=global_state.bytes32[0] (block_hash)
	// [2]=global_state.bytes32[1] (send_root) [3]=inbox_position
	// [4]=position_in_message [5]=machine_status [6]=inbox_max_count
	const wordsNeeded = 7
	if len(l.Data) < wordsNeeded*32 {
		return AssertionEvent{}, fmt.Errorf("arbitrum: short NodeCreated log data (%d bytes)", len(l.Data))
	}

	word := func(i int) []byte { return l.Data[i*32 : (i+1)*32] }

	nodeNum := new(big.Int).SetBytes(word(0)).Uint64()
	blockHash := common.BytesToHash(word(1))
	sendRoot := common.BytesToHash(word(2))
	inboxPosition := new(big.Int).SetBytes(word(3)).Uint64()
	positionInMessage := new(big.Int).SetBytes(word(4)).Uint64()
	machineStatus := MachineStatus(word(5)[31])
	inboxMaxCount := new(big.Int).SetBytes(word(6)).Uint64()

	return AssertionEvent{
		NodeNumber:    nodeNum,
		InboxMaxCount: inboxMaxCount,
		MachineStatus: machineStatus,
		GlobalState: GlobalState{
			BlockHash:         blockHash,
			SendRoot:          sendRoot,
			InboxPosition:     inboxPosition,
			PositionInMessage: positionInMessage,
		},
	}, nil
}
