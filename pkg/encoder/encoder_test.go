package encoder

import (
	"testing"

	"github.com/certen/independant-validator/pkg/ismp"
	"github.com/certen/independant-validator/pkg/mmr"
	"github.com/certen/independant-validator/pkg/provider"
	"github.com/certen/independant-validator/pkg/statemachine"
)

func singleLeafProof() []byte {
	p := &mmr.Proof{
		LeafCount: 1,
		Leaves:    []mmr.LeafPosition{{Position: 1, LeafIndex: 0}},
		Siblings:  nil,
	}
	return p.Encode()
}

func TestEncodeConsensusRejectsEmptyProof(t *testing.T) {
	e := New(nil)
	if _, err := e.EncodeConsensus(ismp.ConsensusMessage{}); err == nil {
		t.Fatal("expected an EncodingError for an empty consensus proof")
	}
}

func TestEncodeRequestMessageProducesRequestKindPayload(t *testing.T) {
	e := New(nil)
	msg := ismp.RequestMessage{
		Proof: ismp.MembershipProof{LeafCount: 1, Raw: singleLeafProof(), StateMachine: statemachine.Polkadot(2000)},
		Requests: []ismp.PostRequest{
			{
				Source: statemachine.EVM(1), Dest: statemachine.EVM(2),
				Nonce: 7, From: []byte("alice"), To: []byte("bob"),
				TimeoutTimestamp: 100, Body: []byte("payload"), Gaslimit: 21000,
			},
		},
	}

	out, err := e.EncodeRequestMessage(msg)
	if err != nil {
		t.Fatalf("EncodeRequestMessage: %v", err)
	}
	if out.Kind != provider.MessageRequest {
		t.Fatalf("expected MessageRequest kind, got %v", out.Kind)
	}
	if len(out.Payload) == 0 {
		t.Fatal("expected a non-empty payload")
	}
}

func TestEncodeRequestMessageRejectsNonRelayChainProof(t *testing.T) {
	e := New(nil)
	msg := ismp.RequestMessage{
		Proof:    ismp.MembershipProof{LeafCount: 1, Raw: singleLeafProof(), StateMachine: statemachine.EVM(1)},
		Requests: []ismp.PostRequest{{Nonce: 1}},
	}

	if _, err := e.EncodeRequestMessage(msg); err == nil {
		t.Fatal("expected an EncodingError when the proof isn't anchored in a Polkadot/Kusama state machine")
	}
}

func TestEncodeRequestMessageRejectsMismatchedLeafCount(t *testing.T) {
	e := New(nil)
	msg := ismp.RequestMessage{
		Proof:    ismp.MembershipProof{LeafCount: 1, Raw: singleLeafProof(), StateMachine: statemachine.Polkadot(2000)},
		Requests: []ismp.PostRequest{{Nonce: 1}, {Nonce: 2}},
	}

	if _, err := e.EncodeRequestMessage(msg); err == nil {
		t.Fatal("expected an EncodingError when proof leaves don't match request count")
	}
}

func TestEncodeTimeoutMessageDispatchesByKind(t *testing.T) {
	e := New(nil)
	msg := ismp.TimeoutMessage{
		Kind:     ismp.TimeoutPost,
		Requests: []ismp.PostRequest{{Nonce: 1}},
		Proof:    []byte("non-inclusion-proof"),
	}

	out, err := e.EncodeTimeoutMessage(msg)
	if err != nil {
		t.Fatalf("EncodeTimeoutMessage: %v", err)
	}
	if out.Kind != provider.MessageTimeoutPost {
		t.Fatalf("expected MessageTimeoutPost kind, got %v", out.Kind)
	}
}

func TestEncodeTimeoutMessageRejectsEmptyBucket(t *testing.T) {
	e := New(nil)
	msg := ismp.TimeoutMessage{Kind: ismp.TimeoutGet}

	if _, err := e.EncodeTimeoutMessage(msg); err == nil {
		t.Fatal("expected an EncodingError for an empty get-timeout bucket")
	}
}
