package provider

import (
	"context"
	"testing"
	"time"

	"github.com/certen/independant-validator/pkg/ismp"
	"github.com/certen/independant-validator/pkg/statemachine"
)

// fakeProvider is a minimal stand-in satisfying Provider, used only to
// exercise AnyClient's kind-compatibility validation without dialing
// any real chain.
type fakeProvider struct {
	id statemachine.StateMachine
}

func (f *fakeProvider) Name() string                             { return "fake" }
func (f *fakeProvider) StateMachineID() statemachine.StateMachine { return f.id }
func (f *fakeProvider) BlockMaxGas() uint64                       { return 0 }
func (f *fakeProvider) InitialHeight() uint64                     { return 0 }
func (f *fakeProvider) EstimateGas(ctx context.Context, msgs []Message) (uint64, error) {
	return 0, nil
}
func (f *fakeProvider) QueryConsensusState(ctx context.Context, at *uint64, id statemachine.ConsensusStateId) ([]byte, error) {
	return nil, nil
}
func (f *fakeProvider) QueryLatestHeight(ctx context.Context, id statemachine.ConsensusStateId) (uint32, error) {
	return 0, nil
}
func (f *fakeProvider) QueryLatestMessagingHeight(ctx context.Context, id statemachine.ConsensusStateId) (uint64, error) {
	return 0, nil
}
func (f *fakeProvider) QueryConsensusUpdateTime(ctx context.Context, id statemachine.ConsensusStateId) (time.Duration, error) {
	return 0, nil
}
func (f *fakeProvider) QueryChallengePeriod(ctx context.Context, id statemachine.ConsensusStateId) (time.Duration, error) {
	return 0, nil
}
func (f *fakeProvider) QueryTimestamp(ctx context.Context) (time.Duration, error) { return 0, nil }
func (f *fakeProvider) QueryRequestsProof(ctx context.Context, at uint64, queries []Query) ([]byte, error) {
	return nil, nil
}
func (f *fakeProvider) QueryResponsesProof(ctx context.Context, at uint64, queries []Query) ([]byte, error) {
	return nil, nil
}
func (f *fakeProvider) QueryStateProof(ctx context.Context, at uint64, keys [][]byte) ([]byte, error) {
	return nil, nil
}
func (f *fakeProvider) QueryISMPEvents(ctx context.Context, previousHeight uint64, event ismp.StateMachineUpdated) ([]ismp.Event, error) {
	return nil, nil
}
func (f *fakeProvider) QueryPendingGetRequests(ctx context.Context, height uint64) ([]ismp.GetRequest, error) {
	return nil, nil
}
func (f *fakeProvider) StateMachineUpdateNotification(ctx context.Context, counterparty statemachine.StateMachine) (StateMachineUpdateStream, error) {
	return nil, nil
}
func (f *fakeProvider) ConsensusNotification(ctx context.Context, counterparty Provider) (ConsensusMessageStream, error) {
	return nil, nil
}
func (f *fakeProvider) Submit(ctx context.Context, msgs []Message) error { return nil }
func (f *fakeProvider) QueryInitialConsensusState(ctx context.Context) ([]byte, bool, error) {
	return nil, false, nil
}
func (f *fakeProvider) InstallInitialConsensusState(ctx context.Context, state []byte) error {
	return nil
}
func (f *fakeProvider) RequestCommitmentFullKey(c [32]byte) []byte      { return nil }
func (f *fakeProvider) RequestReceiptFullKey(c [32]byte) []byte         { return nil }
func (f *fakeProvider) ResponseCommitmentFullKey(c [32]byte) []byte     { return nil }
func (f *fakeProvider) ResponseReceiptFullKey(c [32]byte) []byte        { return nil }
func (f *fakeProvider) InitializeNonce(ctx context.Context) (*NonceProvider, error) {
	return NewNonceProvider(0), nil
}
func (f *fakeProvider) SetNonceProvider(n *NonceProvider) {}
func (f *fakeProvider) NonceProvider() *NonceProvider     { return nil }
func (f *fakeProvider) Address() []byte                   { return nil }
func (f *fakeProvider) Sign(ctx context.Context, msg []byte) ([]byte, error) { return nil, nil }
func (f *fakeProvider) QueryConsensusMessage(ctx context.Context, challenge ismp.StateMachineUpdated) (ismp.ConsensusMessage, error) {
	return ismp.ConsensusMessage{}, nil
}
func (f *fakeProvider) CheckForByzantineAttack(ctx context.Context, counterparty Provider, msg ismp.ConsensusMessage) error {
	return nil
}
func (f *fakeProvider) Reconnect(ctx context.Context, counterparty Provider) error { return nil }

func TestNewAnyClientRejectsMismatchedBackendAndStateMachine(t *testing.T) {
	evmProvider := &fakeProvider{id: statemachine.EVM(1)}
	substrateProvider := &fakeProvider{id: statemachine.Substrate([4]byte{'h', 'u', 'b', '0'})}

	if _, err := NewAnyClient(BackendArbitrum, evmProvider); err != nil {
		t.Fatalf("expected arbitrum over EVM state machine to be accepted, got: %v", err)
	}
	if _, err := NewAnyClient(BackendSubstrate, substrateProvider); err != nil {
		t.Fatalf("expected substrate backend over substrate state machine to be accepted, got: %v", err)
	}
	if _, err := NewAnyClient(BackendArbitrum, substrateProvider); err == nil {
		t.Fatalf("expected arbitrum backend over substrate state machine to be rejected")
	}
	if _, err := NewAnyClient(BackendSubstrate, evmProvider); err == nil {
		t.Fatalf("expected substrate backend over EVM state machine to be rejected")
	}
}

func TestAnyClientIsRollup(t *testing.T) {
	p := &fakeProvider{id: statemachine.EVM(42161)}
	c, err := NewAnyClient(BackendArbitrum, p)
	if err != nil {
		t.Fatalf("NewAnyClient: %v", err)
	}
	if !c.IsRollup() {
		t.Fatalf("expected arbitrum backend to report IsRollup() == true")
	}

	plain, err := NewAnyClient(BackendEthereum, &fakeProvider{id: statemachine.EVM(1)})
	if err != nil {
		t.Fatalf("NewAnyClient: %v", err)
	}
	if plain.IsRollup() {
		t.Fatalf("expected ethereum backend to report IsRollup() == false")
	}
}
