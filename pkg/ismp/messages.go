// Package ismp defines the hub-native message and event types that
// flow through the relay engines, before the Message Encoder
// translates them into destination-specific wire forms. Grounded on
// original_source/ethereum/evm/src/tx.rs's Message enum and
// original_source/substrate/common/src/host.rs's StateMachineUpdated
// usage.
package ismp

import "github.com/certen/independant-validator/pkg/statemachine"

// StateMachineUpdated is emitted on a chain when its light client for
// some remote chain advances to a new height. It is the trigger for
// the Messaging Relay Engine (spec.md §3, §4.6).
type StateMachineUpdated struct {
	StateMachineID statemachine.StateMachine
	LatestHeight   uint64
}

// ConsensusMessage carries an opaque consensus proof, verified
// on-chain by the destination's light client. The relayer never
// inspects its contents.
type ConsensusMessage struct {
	ConsensusStateID statemachine.ConsensusStateId
	Proof            []byte
}

// PostRequest is a single cross-chain request leaf, as emitted by the
// source chain.
type PostRequest struct {
	Source      statemachine.StateMachine
	Dest        statemachine.StateMachine
	Nonce       uint64
	From        []byte
	To          []byte
	TimeoutTimestamp uint64
	Body        []byte
	Gaslimit    uint64
}

// GetRequest is a cross-chain storage-read request: it names the Keys
// to read on Dest at Height.
type GetRequest struct {
	Source statemachine.StateMachine
	Dest   statemachine.StateMachine
	Nonce  uint64
	From   []byte
	Keys   [][]byte
	Height uint64
	Gaslimit uint64
}

// PostResponse is a response to a previously delivered PostRequest.
type PostResponse struct {
	Request  PostRequest
	Response []byte
	Timeout  uint64
	Gaslimit uint64
}

// StorageValue is a single (key, value) pair returned for a GetRequest.
type StorageValue struct {
	Key   []byte
	Value []byte
}

// RequestResponseKind tags which variant a RequestResponse carries.
type RequestResponseKind uint8

const (
	KindRequest RequestResponseKind = iota
	KindResponse
)

// RequestResponse is a tagged variant over either a set of
// GetRequests-with-storage-proof or a set of
// PostResponses-with-inclusion-proof (spec.md §3).
type RequestResponse struct {
	Kind      RequestResponseKind
	Requests  []GetRequest
	Responses []PostResponse
}

// MembershipProof is the decoded Merkle-Mountain-Range proof carried
// alongside request/response message bodies (see pkg/mmr for the wire
// codec this wraps). StateMachine names which chain's state trie the
// proof is anchored in — post-request encoding requires this to be a
// Polkadot or Kusama relay chain (spec.md §4.4); other message kinds
// carry it through unchecked.
type MembershipProof struct {
	LeafCount    uint64
	Raw          []byte // opaque SCALE-encoded bytes, decoded lazily via pkg/mmr
	StateMachine statemachine.StateMachine
}

// RequestMessage carries a batch of requests plus the membership
// proof attesting to their inclusion on the source chain.
type RequestMessage struct {
	Proof    MembershipProof
	Requests []PostRequest
}

// ResponseMessage carries a batch of responses (or get-request
// answers) plus the attesting proof.
type ResponseMessage struct {
	Proof    MembershipProof
	Datagram RequestResponse
}

// TimeoutKind tags which of the three timeout shapes a TimeoutMessage
// carries.
type TimeoutKind uint8

const (
	TimeoutPost TimeoutKind = iota
	TimeoutPostResponse
	TimeoutGet
)

// TimeoutMessage represents an unserved request (Post), an
// unacknowledged response (PostResponse), or an unanswered
// storage-read (Get).
type TimeoutMessage struct {
	Kind      TimeoutKind
	Requests  []PostRequest
	Responses []PostResponse
	GetRequests []GetRequest
	Proof     []byte // state proof of non-delivery, opaque
}
