package rollup

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// baseOutputProposedTopic is the same OutputProposed event signature
// Optimism uses — Base is itself an OP-stack chain, differing only in
// its L1 contract addresses and rollup configuration, never in wire
// format (spec.md §4.2 "or Optimism/Base analogue").
var baseOutputProposedTopic = optimismOutputProposedTopic

// NewBaseBuilder constructs a Builder for Base, reusing the OP-stack
// decoder wholesale.
func NewBaseBuilder(l1, l2 *ethclient.Client, outputOracle common.Address) *Builder {
	b := NewBuilder(FamilyBase, l1, l2, outputOracle, baseOutputProposedTopic, nil)
	b.Decode = makeOPStackDecoder(l2)
	return b
}
