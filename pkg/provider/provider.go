// Package provider defines the Provider capability contract every
// chain implementation must satisfy (spec.md §4.1), generalized from
// pkg/chain/strategy/interface.go's ChainExecutionStrategy: the same
// per-chain identity/submission/observation shape, widened to the
// full ISMP query/submission/stream/reconnect surface.
package provider

import (
	"context"
	"time"

	"github.com/certen/independant-validator/pkg/ismp"
	"github.com/certen/independant-validator/pkg/statemachine"
)

// Query identifies a single commitment to fetch a proof for.
type Query struct {
	Commitment [32]byte
	Height     uint64
}

// MessageKind tags which ISMP message variant a Message wraps, so a
// Provider's Submit implementation can dispatch to the right
// destination-native call without re-decoding the payload.
type MessageKind uint8

const (
	MessageConsensus MessageKind = iota
	MessageRequest
	MessageResponse
	MessageTimeoutPost
	MessageTimeoutPostResponse
	MessageTimeoutGet
)

// Message is a destination-native wire payload, already translated by
// the Message Encoder (pkg/encoder) from a hub-native ismp.* message.
// Providers never decode Payload; they only dispatch on Kind to the
// matching destination-native submission call.
type Message struct {
	Kind    MessageKind
	Payload []byte
}

// StateMachineUpdateStream delivers StateMachineUpdated events lazily;
// it is not restartable (spec.md §4.1, §9) — a Recv error means the
// caller must ask the Provider to Reconnect and request a fresh
// stream via StateMachineUpdateNotification.
type StateMachineUpdateStream interface {
	Recv(ctx context.Context) (ismp.StateMachineUpdated, error)
	Close() error
}

// ConsensusMessageStream delivers ConsensusMessage events for the
// Consensus Relay Engine, under the same not-restartable contract.
type ConsensusMessageStream interface {
	Recv(ctx context.Context) (ismp.ConsensusMessage, error)
	Close() error
}

// Provider is the single capability abstraction every chain
// implementation (EVM, Arbitrum, Optimism, Base, Substrate/hub) must
// satisfy.
type Provider interface {
	// Identity/parameters.
	Name() string
	StateMachineID() statemachine.StateMachine
	BlockMaxGas() uint64
	InitialHeight() uint64
	EstimateGas(ctx context.Context, msgs []Message) (uint64, error)

	// Queries.
	QueryConsensusState(ctx context.Context, at *uint64, id statemachine.ConsensusStateId) ([]byte, error)
	QueryLatestHeight(ctx context.Context, id statemachine.ConsensusStateId) (uint32, error)
	QueryLatestMessagingHeight(ctx context.Context, id statemachine.ConsensusStateId) (uint64, error)
	QueryConsensusUpdateTime(ctx context.Context, id statemachine.ConsensusStateId) (time.Duration, error)
	QueryChallengePeriod(ctx context.Context, id statemachine.ConsensusStateId) (time.Duration, error)
	QueryTimestamp(ctx context.Context) (time.Duration, error)

	QueryRequestsProof(ctx context.Context, at uint64, queries []Query) ([]byte, error)
	QueryResponsesProof(ctx context.Context, at uint64, queries []Query) ([]byte, error)
	QueryStateProof(ctx context.Context, at uint64, keys [][]byte) ([]byte, error)

	// QueryISMPEvents returns every event observed on this chain since
	// previousHeight up to event.LatestHeight that is verifiable at
	// that height (the two-argument form spec.md §9 prefers, avoiding
	// a re-scan from genesis).
	QueryISMPEvents(ctx context.Context, previousHeight uint64, event ismp.StateMachineUpdated) ([]ismp.Event, error)
	QueryPendingGetRequests(ctx context.Context, height uint64) ([]ismp.GetRequest, error)

	// Streams.
	StateMachineUpdateNotification(ctx context.Context, counterparty statemachine.StateMachine) (StateMachineUpdateStream, error)
	ConsensusNotification(ctx context.Context, counterparty Provider) (ConsensusMessageStream, error)

	// Submission.
	Submit(ctx context.Context, msgs []Message) error

	// Setup-mode consensus seeding (spec.md §6's --setup-eth/--setup-para,
	// §8 scenario 6). QueryInitialConsensusState reads this chain's own
	// state to hand to a counterparty; InstallInitialConsensusState
	// seeds that state on this chain's light client for a counterparty,
	// exactly once — a second call is rejected, never silently ignored.
	QueryInitialConsensusState(ctx context.Context) ([]byte, bool, error)
	InstallInitialConsensusState(ctx context.Context, state []byte) error

	// Commitment key derivation (pure functions; see pkg/commitment).
	RequestCommitmentFullKey(commitment [32]byte) []byte
	RequestReceiptFullKey(commitment [32]byte) []byte
	ResponseCommitmentFullKey(commitment [32]byte) []byte
	ResponseReceiptFullKey(commitment [32]byte) []byte

	// Nonce management.
	InitializeNonce(ctx context.Context) (*NonceProvider, error)
	SetNonceProvider(n *NonceProvider)
	NonceProvider() *NonceProvider

	// Address & signing.
	Address() []byte
	Sign(ctx context.Context, msg []byte) ([]byte, error)

	// Byzantine handling.
	QueryConsensusMessage(ctx context.Context, challenge ismp.StateMachineUpdated) (ismp.ConsensusMessage, error)
	CheckForByzantineAttack(ctx context.Context, counterparty Provider, msg ismp.ConsensusMessage) error

	// Reconnect rebuilds the Provider's transport-level connections
	// in place, preserving the NonceProvider (spec.md §9,
	// original_source host.rs's reconnect). Streams opened before the
	// call are not re-subscribed; callers open fresh ones.
	Reconnect(ctx context.Context, counterparty Provider) error
}
