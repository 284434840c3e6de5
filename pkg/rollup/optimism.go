package rollup

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// optimismOutputProposedTopic is the keccak256 topic hash of the
// OP-stack L2OutputOracle's OutputProposed event. Populated from the
// real contract ABI at construction time in a finished deployment.
var optimismOutputProposedTopic common.Hash

// NewOptimismBuilder constructs a Builder for the OP-stack (Bedrock)
// rollup family, anchored on an L1 L2OutputOracle contract.
//
// The OP stack has no "assertion tree" the way Arbitrum does — each
// OutputProposed event commits a single (outputRoot, l2BlockNumber)
// pair directly, with no machine-status or inbox-position fields. This
// builder maps that leaner event onto the same AssertionEvent shape
// used by the Arbitrum builder so pkg/rollup.Builder stays family-
// agnostic: NodeNumber carries l2OutputIndex, GlobalState.BlockHash
// carries the claimed L2 block hash (fetched separately since
// OutputProposed only carries the block number), and MachineStatus is
// always MachineStatusFinished (OP-stack proposals have no pending
// state once submitted).
func NewOptimismBuilder(l1, l2 *ethclient.Client, outputOracle common.Address) *Builder {
	b := NewBuilder(FamilyOptimism, l1, l2, outputOracle, optimismOutputProposedTopic, nil)
	b.Decode = makeOPStackDecoder(l2)
	return b
}

// makeOPStackDecoder closes over the L2 client because OutputProposed
// only carries an L2 block number, not a hash; this builder resolves
// the hash with one extra L2 RPC call per candidate event.
func makeOPStackDecoder(l2 *ethclient.Client) EventDecoder {
	return func(l types.Log) (AssertionEvent, error) {
		// word layout: [0]=outputRoot [1]=l2OutputIndex [2]=l2BlockNumber [3]=l1Timestamp
		const wordsNeeded = 4
		if len(l.Data) < wordsNeeded*32 {
			return AssertionEvent{}, fmt.Errorf("op-stack: short OutputProposed log data (%d bytes)", len(l.Data))
		}
		word := func(i int) []byte { return l.Data[i*32 : (i+1)*32] }

		outputRoot := common.BytesToHash(word(0))
		l2OutputIndex := new(big.Int).SetBytes(word(1)).Uint64()
		l2BlockNumber := new(big.Int).SetBytes(word(2))

		header, err := l2.HeaderByNumber(context.TODO(), l2BlockNumber)
		if err != nil {
			return AssertionEvent{}, fmt.Errorf("op-stack: resolve l2 block %s: %w", l2BlockNumber, err)
		}

		return AssertionEvent{
			NodeNumber:    l2OutputIndex,
			MachineStatus: MachineStatusFinished,
			GlobalState: GlobalState{
				BlockHash:     header.Hash(),
				SendRoot:      outputRoot,
				InboxPosition: l2BlockNumber.Uint64(),
			},
		}, nil
	}
}
