package provider

import (
	"context"
	"fmt"

	"github.com/certen/independant-validator/pkg/statemachine"
)

// BackendKind tags which concrete backend an AnyClient wraps. EVM-family
// rollups (Arbitrum/Optimism/Base) share EVMProvider's RPC/signing path
// but carry a distinct consensus-proof strategy in pkg/rollup, so they
// get their own tag even though the Provider field holds the same
// *EVMProvider type for all four.
type BackendKind uint8

const (
	BackendEthereum BackendKind = iota
	BackendArbitrum
	BackendOptimism
	BackendBase
	BackendSubstrate
)

func (k BackendKind) String() string {
	switch k {
	case BackendEthereum:
		return "ethereum"
	case BackendArbitrum:
		return "arbitrum"
	case BackendOptimism:
		return "optimism"
	case BackendBase:
		return "base"
	case BackendSubstrate:
		return "substrate"
	default:
		return "unknown"
	}
}

// AnyClient is a tagged variant over the relayer's supported chain
// backends, generalized from pkg/chain/strategy's now-deleted
// ChainPlatform enum (interface.go) — the same one-of-N backend
// selection, widened from "execution strategy" to "Provider instance"
// and covering the rollup family alongside plain EVM and Substrate.
//
// The Orchestrator builds one AnyClient per configured chain and hands
// out its embedded Provider to the relay engines; engines never switch
// on Kind themselves, since every backend already satisfies Provider.
// Kind exists for logging, metrics labeling, and rollup-specific proof
// dispatch in pkg/rollup.
type AnyClient struct {
	Kind     BackendKind
	Provider Provider
}

// NewAnyClient wraps an already-constructed Provider with its backend
// tag, validating that the tag and the Provider's StateMachine kind
// are compatible (EVM-family backends must report statemachine.KindEVM;
// BackendSubstrate must report statemachine.KindSubstrate, KindPolkadot
// or KindKusama).
func NewAnyClient(kind BackendKind, p Provider) (*AnyClient, error) {
	switch kind {
	case BackendEthereum, BackendArbitrum, BackendOptimism, BackendBase:
		if p.StateMachineID().Kind != statemachine.KindEVM {
			return nil, fmt.Errorf("any client: backend %s requires an EVM state machine, got %s", kind, p.StateMachineID())
		}
	case BackendSubstrate:
		k := p.StateMachineID().Kind
		if k != statemachine.KindSubstrate && k != statemachine.KindPolkadot && k != statemachine.KindKusama {
			return nil, fmt.Errorf("any client: backend %s requires a substrate-family state machine, got %s", kind, p.StateMachineID())
		}
	default:
		return nil, fmt.Errorf("any client: unknown backend kind %d", kind)
	}
	return &AnyClient{Kind: kind, Provider: p}, nil
}

// IsRollup reports whether this backend anchors its consensus proofs
// to an L1 host rather than verifying independently (spec.md §4.3).
func (c *AnyClient) IsRollup() bool {
	switch c.Kind {
	case BackendArbitrum, BackendOptimism, BackendBase:
		return true
	default:
		return false
	}
}

// Name delegates to the wrapped Provider, prefixed with the backend
// tag so logs distinguish "arbitrum/evm-42161" from a plain
// "ethereum/evm-42161" wrapper.
func (c *AnyClient) Name() string {
	return fmt.Sprintf("%s/%s", c.Kind, c.Provider.Name())
}

// Reconnect delegates to the wrapped Provider's Reconnect, under the
// same not-restartable-stream contract documented on Provider.
func (c *AnyClient) Reconnect(ctx context.Context, counterparty Provider) error {
	return c.Provider.Reconnect(ctx, counterparty)
}
