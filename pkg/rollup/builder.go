package rollup

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
)

// EventDecoder turns a raw L1 log into this rollup family's
// AssertionEvent shape; families differ only in ABI layout, so
// Builder stays generic over this one function.
type EventDecoder func(types.Log) (AssertionEvent, error)

// Builder assembles PayloadProofs for one rollup family, grounded on
// ArbHost's latest_event/fetch_arbitrum_payload pair.
type Builder struct {
	Family Family

	L1Client    *ethclient.Client
	L1Geth      *gethclient.Client
	L2Client    *ethclient.Client
	RollupCore  common.Address
	AssertTopic common.Hash

	Decode EventDecoder
}

// NewBuilder wraps an L1 ethclient.Client with the gethclient
// extension needed for eth_getProof (account/storage proofs are not
// part of the standard ethclient API).
func NewBuilder(family Family, l1, l2 *ethclient.Client, rollupCore common.Address, assertTopic common.Hash, decode EventDecoder) *Builder {
	return &Builder{
		Family:      family,
		L1Client:    l1,
		L1Geth:      gethclient.New(l1.Client()),
		L2Client:    l2,
		RollupCore:  rollupCore,
		AssertTopic: assertTopic,
		Decode:      decode,
	}
}

// LatestAssertion scans L1 block range [from, to] for assertion-creation
// events on the rollup contract, returning the one with the highest
// node number, or ok=false if none were found in range (spec.md §4.2
// step 1, §8 "empty result; no panic").
func (b *Builder) LatestAssertion(ctx context.Context, from, to uint64) (event AssertionEvent, ok bool, err error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{b.RollupCore},
		Topics:    [][]common.Hash{{b.AssertTopic}},
	}
	logs, err := b.L1Client.FilterLogs(ctx, query)
	if err != nil {
		return AssertionEvent{}, false, fmt.Errorf("rollup builder: filter logs: %w", err)
	}

	events := make([]AssertionEvent, 0, len(logs))
	for _, l := range logs {
		ev, err := b.Decode(l)
		if err != nil {
			continue // malformed log: skip, never fatal for the round
		}
		events = append(events, ev)
	}
	if len(events) == 0 {
		return AssertionEvent{}, false, nil
	}

	sort.Slice(events, func(i, j int) bool { return events[i].NodeNumber < events[j].NodeNumber })
	return events[len(events)-1], true, nil
}

// BuildPayloadProof assembles the full PayloadProof anchored at L1
// block `at`, per spec.md §4.2 steps 2-6. Missing header and empty
// storage proof are both fatal for this round, per spec.md §8.
func (b *Builder) BuildPayloadProof(ctx context.Context, at uint64, event AssertionEvent) (*PayloadProof, error) {
	stateHashKey := DeriveStateHashKey(event.NodeNumber)

	proof, err := b.L1Geth.GetProof(ctx, b.RollupCore, []string{stateHashKey.Hex()}, new(big.Int).SetUint64(at))
	if err != nil {
		return nil, fmt.Errorf("rollup builder: get proof at %d: %w", at, err)
	}
	if len(proof.StorageProof) == 0 {
		return nil, fmt.Errorf("rollup builder: empty storage proof for node %d at %d", event.NodeNumber, at)
	}

	header, err := b.L2Client.HeaderByHash(ctx, event.GlobalState.BlockHash)
	if err != nil {
		return nil, fmt.Errorf("rollup builder: fetch l2 header %s: %w", event.GlobalState.BlockHash, err)
	}

	storageProof := make([][]byte, 0, len(proof.StorageProof[0].Proof))
	for _, node := range proof.StorageProof[0].Proof {
		storageProof = append(storageProof, common.FromHex(node))
	}
	contractProof := make([][]byte, 0, len(proof.AccountProof))
	for _, node := range proof.AccountProof {
		contractProof = append(contractProof, common.FromHex(node))
	}

	return &PayloadProof{
		Family:        b.Family,
		Header:        header,
		GlobalState:   event.GlobalState,
		MachineStatus: event.MachineStatus,
		InboxMaxCount: event.InboxMaxCount,
		NodeNumber:    event.NodeNumber,
		StorageProof:  storageProof,
		ContractProof: contractProof,
		AnchorBlock:   at,
	}, nil
}
