// Package encoder is the Message Encoder: it translates hub-native
// ismp.* messages into the destination-native provider.Message wire
// form a Provider's Submit dispatches on, grounded on
// original_source/ethereum/evm/src/tx.rs's submit_messages — in
// particular its membership-proof decode, k_index/leaf_index
// derivation via pkg/mmr, and ascending-leaf_index sort before
// handing leaves to the destination contract call.
package encoder

import (
	"encoding/binary"
	"fmt"
	"log"
	"sort"

	"github.com/certen/independant-validator/pkg/ismp"
	"github.com/certen/independant-validator/pkg/mmr"
	"github.com/certen/independant-validator/pkg/provider"
)

// EncodingError wraps a message this encoder could not translate —
// an unexpected StateMachine variant or an undecodable proof. Callers
// treat it as skip-and-continue, never a panic (spec.md §9).
type EncodingError struct {
	Reason string
	Err    error
}

func (e *EncodingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("encoder: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("encoder: %s", e.Reason)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// Encoder translates hub-native messages into provider.Message wire
// forms. It holds no state; every method is a pure function of its
// input.
type Encoder struct {
	Logger *log.Logger
}

// New constructs an Encoder, defaulting to the standard logger when
// none is supplied.
func New(logger *log.Logger) *Encoder {
	if logger == nil {
		logger = log.Default()
	}
	return &Encoder{Logger: logger}
}

// EncodeConsensus wraps an opaque consensus proof for submission; the
// relayer never inspects ConsensusMessage.Proof's contents.
func (e *Encoder) EncodeConsensus(msg ismp.ConsensusMessage) (provider.Message, error) {
	if len(msg.Proof) == 0 {
		return provider.Message{}, &EncodingError{Reason: "consensus message carries an empty proof"}
	}
	return provider.Message{Kind: provider.MessageConsensus, Payload: msg.Proof}, nil
}

// leaf is one request or response paired with its k_index/leaf_index,
// the shape original_source/tx.rs sorts by leaf_index before handing
// leaves to the destination's handler contract.
type leaf struct {
	kIndex    uint64
	leafIndex uint64
	body      []byte
}

func sortedLeaves(proofBytes []byte, bodies [][]byte) ([]leaf, error) {
	proof, err := mmr.Decode(proofBytes)
	if err != nil {
		return nil, fmt.Errorf("decode membership proof: %w", err)
	}
	if len(proof.Leaves) == 0 {
		return nil, fmt.Errorf("derive k-indices: %w", mmr.ErrEmptyProof)
	}
	if len(proof.Leaves) != len(bodies) {
		return nil, fmt.Errorf("proof names %d leaves, got %d message bodies", len(proof.Leaves), len(bodies))
	}

	// Pair each body with its proof leaf in wire order, then sort.
	leaves := make([]leaf, len(bodies))
	for i, l := range proof.Leaves {
		leaves[i] = leaf{kIndex: mmr.PositionToKIndex(l.Position, proof.LeafCount), leafIndex: l.LeafIndex, body: bodies[i]}
	}
	sort.Slice(leaves, func(i, j int) bool { return leaves[i].leafIndex < leaves[j].leafIndex })
	return leaves, nil
}

// encodeLeaves serializes the MMR proof header plus the sorted leaves
// into a flat payload: a destination-specific ABI encoder would
// normally take this shape apart and call the matching handler
// method; here it is the wire contract between pkg/encoder and a
// Provider's Submit.
func encodeLeaves(proof *mmr.Proof, leaves []leaf) []byte {
	out := proof.Encode()
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(leaves)))
	out = append(out, countBuf[:]...)
	for _, l := range leaves {
		var hdr [20]byte
		binary.BigEndian.PutUint64(hdr[0:8], l.kIndex)
		binary.BigEndian.PutUint64(hdr[8:16], l.leafIndex)
		binary.BigEndian.PutUint32(hdr[16:20], uint32(len(l.body)))
		out = append(out, hdr[:]...)
		out = append(out, l.body...)
	}
	return out
}

// EncodeRequestMessage translates a batch of post requests plus their
// membership proof into a destination-native submission payload. The
// proof's state machine tag must be Polkadot or Kusama — a post
// request's inclusion proof is only meaningful anchored in a relay
// chain's state trie (spec.md §4.4); any other tag is rejected.
func (e *Encoder) EncodeRequestMessage(msg ismp.RequestMessage) (provider.Message, error) {
	if len(msg.Requests) == 0 {
		return provider.Message{}, &EncodingError{Reason: "request message carries no requests"}
	}
	if !msg.Proof.StateMachine.IsPolkadotOrKusama() {
		return provider.Message{}, &EncodingError{Reason: fmt.Sprintf("request message proof anchored in %s, expected Polkadot or Kusama", msg.Proof.StateMachine)}
	}

	bodies := make([][]byte, len(msg.Requests))
	for i, req := range msg.Requests {
		bodies[i] = encodePostRequest(req)
	}

	leaves, err := sortedLeaves(msg.Proof.Raw, bodies)
	if err != nil {
		return provider.Message{}, &EncodingError{Reason: "request message proof", Err: err}
	}

	proof, err := mmr.Decode(msg.Proof.Raw)
	if err != nil {
		return provider.Message{}, &EncodingError{Reason: "request message proof", Err: err}
	}

	return provider.Message{Kind: provider.MessageRequest, Payload: encodeLeaves(proof, leaves)}, nil
}

// EncodeResponseMessage translates a batch of responses (or answered
// Get-request storage reads) plus their attesting proof.
func (e *Encoder) EncodeResponseMessage(msg ismp.ResponseMessage) (provider.Message, error) {
	switch msg.Datagram.Kind {
	case ismp.KindResponse:
		if len(msg.Datagram.Responses) == 0 {
			return provider.Message{}, &EncodingError{Reason: "response message carries no responses"}
		}
		bodies := make([][]byte, len(msg.Datagram.Responses))
		for i, r := range msg.Datagram.Responses {
			bodies[i] = encodePostResponse(r)
		}
		leaves, err := sortedLeaves(msg.Proof.Raw, bodies)
		if err != nil {
			return provider.Message{}, &EncodingError{Reason: "response message proof", Err: err}
		}
		proof, err := mmr.Decode(msg.Proof.Raw)
		if err != nil {
			return provider.Message{}, &EncodingError{Reason: "response message proof", Err: err}
		}
		return provider.Message{Kind: provider.MessageResponse, Payload: encodeLeaves(proof, leaves)}, nil

	case ismp.KindRequest:
		if len(msg.Datagram.Requests) == 0 {
			return provider.Message{}, &EncodingError{Reason: "get-response message carries no requests"}
		}
		bodies := make([][]byte, len(msg.Datagram.Requests))
		for i, r := range msg.Datagram.Requests {
			bodies[i] = encodeGetRequest(r)
		}
		leaves, err := sortedLeaves(msg.Proof.Raw, bodies)
		if err != nil {
			return provider.Message{}, &EncodingError{Reason: "get-response message proof", Err: err}
		}
		proof, err := mmr.Decode(msg.Proof.Raw)
		if err != nil {
			return provider.Message{}, &EncodingError{Reason: "get-response message proof", Err: err}
		}
		return provider.Message{Kind: provider.MessageResponse, Payload: encodeLeaves(proof, leaves)}, nil

	default:
		return provider.Message{}, &EncodingError{Reason: fmt.Sprintf("unexpected request/response datagram kind %d", msg.Datagram.Kind)}
	}
}

// EncodeTimeoutMessage translates one of the three timeout shapes
// (unserved post, unacknowledged response, unanswered get) into a
// submission payload. The accompanying proof is a state-non-inclusion
// proof, opaque to the relayer, so it is carried through unparsed.
func (e *Encoder) EncodeTimeoutMessage(msg ismp.TimeoutMessage) (provider.Message, error) {
	var kind provider.MessageKind
	var bodies [][]byte

	switch msg.Kind {
	case ismp.TimeoutPost:
		if len(msg.Requests) == 0 {
			return provider.Message{}, &EncodingError{Reason: "post-timeout message carries no requests"}
		}
		kind = provider.MessageTimeoutPost
		for _, r := range msg.Requests {
			bodies = append(bodies, encodePostRequest(r))
		}
	case ismp.TimeoutPostResponse:
		if len(msg.Responses) == 0 {
			return provider.Message{}, &EncodingError{Reason: "post-response-timeout message carries no responses"}
		}
		kind = provider.MessageTimeoutPostResponse
		for _, r := range msg.Responses {
			bodies = append(bodies, encodePostResponse(r))
		}
	case ismp.TimeoutGet:
		if len(msg.GetRequests) == 0 {
			return provider.Message{}, &EncodingError{Reason: "get-timeout message carries no requests"}
		}
		kind = provider.MessageTimeoutGet
		for _, r := range msg.GetRequests {
			bodies = append(bodies, encodeGetRequest(r))
		}
	default:
		return provider.Message{}, &EncodingError{Reason: fmt.Sprintf("unexpected timeout kind %d", msg.Kind)}
	}

	payload := make([]byte, 0, len(msg.Proof))
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(bodies)))
	payload = append(payload, countBuf[:]...)
	for _, b := range bodies {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
		payload = append(payload, lenBuf[:]...)
		payload = append(payload, b...)
	}
	payload = append(payload, msg.Proof...)

	return provider.Message{Kind: kind, Payload: payload}, nil
}

func encodePostRequest(r ismp.PostRequest) []byte {
	out := make([]byte, 0, 64+len(r.From)+len(r.To)+len(r.Body))
	out = appendU64(out, r.Nonce)
	out = appendU64(out, r.TimeoutTimestamp)
	out = appendU64(out, r.Gaslimit)
	out = appendBytes(out, r.From)
	out = appendBytes(out, r.To)
	out = appendBytes(out, r.Body)
	return out
}

func encodePostResponse(r ismp.PostResponse) []byte {
	out := make([]byte, 0, 32+len(r.Response))
	out = appendU64(out, r.Timeout)
	out = appendU64(out, r.Gaslimit)
	out = append(out, encodePostRequest(r.Request)...)
	out = appendBytes(out, r.Response)
	return out
}

func encodeGetRequest(r ismp.GetRequest) []byte {
	out := make([]byte, 0, 32+len(r.From))
	out = appendU64(out, r.Nonce)
	out = appendU64(out, r.Height)
	out = appendU64(out, r.Gaslimit)
	out = appendBytes(out, r.From)
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(r.Keys)))
	out = append(out, countBuf[:]...)
	for _, k := range r.Keys {
		out = appendBytes(out, k)
	}
	return out
}

func appendU64(b []byte, v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return append(b, buf[:]...)
}

func appendBytes(b []byte, v []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
	b = append(b, lenBuf[:]...)
	return append(b, v...)
}
