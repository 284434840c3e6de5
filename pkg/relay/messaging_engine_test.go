package relay

import (
	"context"
	"testing"
	"time"

	"github.com/certen/independant-validator/pkg/encoder"
	"github.com/certen/independant-validator/pkg/ismp"
	"github.com/certen/independant-validator/pkg/provider"
	"github.com/certen/independant-validator/pkg/statemachine"
)

// stubProvider is a no-op provider.Provider; tests override only the
// methods relayUpdate actually calls.
type stubProvider struct {
	id          statemachine.StateMachine
	events      []ismp.Event
	submitCalls int
}

func (s *stubProvider) Name() string                             { return "stub" }
func (s *stubProvider) StateMachineID() statemachine.StateMachine { return s.id }
func (s *stubProvider) BlockMaxGas() uint64                       { return 0 }
func (s *stubProvider) InitialHeight() uint64                     { return 0 }
func (s *stubProvider) EstimateGas(ctx context.Context, msgs []provider.Message) (uint64, error) {
	return 21000, nil
}
func (s *stubProvider) QueryConsensusState(ctx context.Context, at *uint64, id statemachine.ConsensusStateId) ([]byte, error) {
	return nil, nil
}
func (s *stubProvider) QueryLatestHeight(ctx context.Context, id statemachine.ConsensusStateId) (uint32, error) {
	return 0, nil
}
func (s *stubProvider) QueryLatestMessagingHeight(ctx context.Context, id statemachine.ConsensusStateId) (uint64, error) {
	return 0, nil
}
func (s *stubProvider) QueryConsensusUpdateTime(ctx context.Context, id statemachine.ConsensusStateId) (time.Duration, error) {
	return 0, nil
}
func (s *stubProvider) QueryChallengePeriod(ctx context.Context, id statemachine.ConsensusStateId) (time.Duration, error) {
	return 0, nil
}
func (s *stubProvider) QueryTimestamp(ctx context.Context) (time.Duration, error) { return 0, nil }
func (s *stubProvider) QueryRequestsProof(ctx context.Context, at uint64, queries []provider.Query) ([]byte, error) {
	return nil, nil
}
func (s *stubProvider) QueryResponsesProof(ctx context.Context, at uint64, queries []provider.Query) ([]byte, error) {
	return nil, nil
}
func (s *stubProvider) QueryStateProof(ctx context.Context, at uint64, keys [][]byte) ([]byte, error) {
	return nil, nil
}
func (s *stubProvider) QueryISMPEvents(ctx context.Context, previousHeight uint64, event ismp.StateMachineUpdated) ([]ismp.Event, error) {
	return s.events, nil
}
func (s *stubProvider) QueryPendingGetRequests(ctx context.Context, height uint64) ([]ismp.GetRequest, error) {
	return nil, nil
}
func (s *stubProvider) StateMachineUpdateNotification(ctx context.Context, counterparty statemachine.StateMachine) (provider.StateMachineUpdateStream, error) {
	return nil, nil
}
func (s *stubProvider) ConsensusNotification(ctx context.Context, counterparty provider.Provider) (provider.ConsensusMessageStream, error) {
	return nil, nil
}
func (s *stubProvider) Submit(ctx context.Context, msgs []provider.Message) error {
	s.submitCalls++
	return nil
}
func (s *stubProvider) QueryInitialConsensusState(ctx context.Context) ([]byte, bool, error) {
	return nil, false, nil
}
func (s *stubProvider) InstallInitialConsensusState(ctx context.Context, state []byte) error {
	return nil
}
func (s *stubProvider) RequestCommitmentFullKey(c [32]byte) []byte  { return nil }
func (s *stubProvider) RequestReceiptFullKey(c [32]byte) []byte     { return nil }
func (s *stubProvider) ResponseCommitmentFullKey(c [32]byte) []byte { return nil }
func (s *stubProvider) ResponseReceiptFullKey(c [32]byte) []byte    { return nil }
func (s *stubProvider) InitializeNonce(ctx context.Context) (*provider.NonceProvider, error) {
	return provider.NewNonceProvider(0), nil
}
func (s *stubProvider) SetNonceProvider(n *provider.NonceProvider) {}
func (s *stubProvider) NonceProvider() *provider.NonceProvider     { return nil }
func (s *stubProvider) Address() []byte                           { return nil }
func (s *stubProvider) Sign(ctx context.Context, msg []byte) ([]byte, error) {
	return nil, nil
}
func (s *stubProvider) QueryConsensusMessage(ctx context.Context, challenge ismp.StateMachineUpdated) (ismp.ConsensusMessage, error) {
	return ismp.ConsensusMessage{}, nil
}
func (s *stubProvider) CheckForByzantineAttack(ctx context.Context, counterparty provider.Provider, msg ismp.ConsensusMessage) error {
	return nil
}
func (s *stubProvider) Reconnect(ctx context.Context, counterparty provider.Provider) error {
	return nil
}

func TestRelayUpdateSkipsWhenPartitionEmpty(t *testing.T) {
	source := &stubProvider{id: statemachine.EVM(1)}
	dest := &stubProvider{id: statemachine.EVM(2)}
	eng := NewMessagingEngine(source, dest, encoder.New(nil), nil, nil)

	if err := eng.relayUpdate(context.Background(), ismp.StateMachineUpdated{StateMachineID: source.id, LatestHeight: 10}); err != nil {
		t.Fatalf("relayUpdate: %v", err)
	}
	if dest.submitCalls != 0 {
		t.Fatalf("expected no submissions for an empty partition, got %d", dest.submitCalls)
	}
}

func TestRelayUpdateSubmitsTimeoutBucketWithoutAProofQuery(t *testing.T) {
	req := ismp.PostRequest{Nonce: 1, Source: statemachine.EVM(1), Dest: statemachine.EVM(2)}
	source := &stubProvider{
		id: statemachine.EVM(1),
		events: []ismp.Event{
			{Kind: ismp.EventTimeoutPost, Request: &req, Height: 10, StateMachine: statemachine.EVM(1)},
		},
	}
	dest := &stubProvider{id: statemachine.EVM(2)}
	eng := NewMessagingEngine(source, dest, encoder.New(nil), nil, nil)

	if err := eng.relayUpdate(context.Background(), ismp.StateMachineUpdated{StateMachineID: source.id, LatestHeight: 10}); err != nil {
		t.Fatalf("relayUpdate: %v", err)
	}
	if dest.submitCalls != 1 {
		t.Fatalf("expected exactly one submission for the timeout-posts bucket, got %d", dest.submitCalls)
	}
}
