package reconnect

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/certen/independant-validator/pkg/ismp"
	"github.com/certen/independant-validator/pkg/provider"
	"github.com/certen/independant-validator/pkg/statemachine"
)

// flakyProvider satisfies provider.Provider with every method a no-op
// except Reconnect, which fails failUntil times before succeeding.
type flakyProvider struct {
	failUntil int
	attempts  int
}

func (f *flakyProvider) Name() string                             { return "flaky" }
func (f *flakyProvider) StateMachineID() statemachine.StateMachine { return statemachine.EVM(1) }
func (f *flakyProvider) BlockMaxGas() uint64                       { return 0 }
func (f *flakyProvider) InitialHeight() uint64                     { return 0 }
func (f *flakyProvider) EstimateGas(ctx context.Context, msgs []provider.Message) (uint64, error) {
	return 0, nil
}
func (f *flakyProvider) QueryConsensusState(ctx context.Context, at *uint64, id statemachine.ConsensusStateId) ([]byte, error) {
	return nil, nil
}
func (f *flakyProvider) QueryLatestHeight(ctx context.Context, id statemachine.ConsensusStateId) (uint32, error) {
	return 0, nil
}
func (f *flakyProvider) QueryLatestMessagingHeight(ctx context.Context, id statemachine.ConsensusStateId) (uint64, error) {
	return 0, nil
}
func (f *flakyProvider) QueryConsensusUpdateTime(ctx context.Context, id statemachine.ConsensusStateId) (time.Duration, error) {
	return 0, nil
}
func (f *flakyProvider) QueryChallengePeriod(ctx context.Context, id statemachine.ConsensusStateId) (time.Duration, error) {
	return 0, nil
}
func (f *flakyProvider) QueryTimestamp(ctx context.Context) (time.Duration, error) { return 0, nil }
func (f *flakyProvider) QueryRequestsProof(ctx context.Context, at uint64, queries []provider.Query) ([]byte, error) {
	return nil, nil
}
func (f *flakyProvider) QueryResponsesProof(ctx context.Context, at uint64, queries []provider.Query) ([]byte, error) {
	return nil, nil
}
func (f *flakyProvider) QueryStateProof(ctx context.Context, at uint64, keys [][]byte) ([]byte, error) {
	return nil, nil
}
func (f *flakyProvider) QueryISMPEvents(ctx context.Context, previousHeight uint64, event ismp.StateMachineUpdated) ([]ismp.Event, error) {
	return nil, nil
}
func (f *flakyProvider) QueryPendingGetRequests(ctx context.Context, height uint64) ([]ismp.GetRequest, error) {
	return nil, nil
}
func (f *flakyProvider) StateMachineUpdateNotification(ctx context.Context, counterparty statemachine.StateMachine) (provider.StateMachineUpdateStream, error) {
	return nil, nil
}
func (f *flakyProvider) ConsensusNotification(ctx context.Context, counterparty provider.Provider) (provider.ConsensusMessageStream, error) {
	return nil, nil
}
func (f *flakyProvider) Submit(ctx context.Context, msgs []provider.Message) error { return nil }
func (f *flakyProvider) QueryInitialConsensusState(ctx context.Context) ([]byte, bool, error) {
	return nil, false, nil
}
func (f *flakyProvider) InstallInitialConsensusState(ctx context.Context, state []byte) error {
	return nil
}
func (f *flakyProvider) RequestCommitmentFullKey(c [32]byte) []byte               { return nil }
func (f *flakyProvider) RequestReceiptFullKey(c [32]byte) []byte                  { return nil }
func (f *flakyProvider) ResponseCommitmentFullKey(c [32]byte) []byte              { return nil }
func (f *flakyProvider) ResponseReceiptFullKey(c [32]byte) []byte                 { return nil }
func (f *flakyProvider) InitializeNonce(ctx context.Context) (*provider.NonceProvider, error) {
	return provider.NewNonceProvider(0), nil
}
func (f *flakyProvider) SetNonceProvider(n *provider.NonceProvider) {}
func (f *flakyProvider) NonceProvider() *provider.NonceProvider     { return nil }
func (f *flakyProvider) Address() []byte                           { return nil }
func (f *flakyProvider) Sign(ctx context.Context, msg []byte) ([]byte, error) {
	return nil, nil
}
func (f *flakyProvider) QueryConsensusMessage(ctx context.Context, challenge ismp.StateMachineUpdated) (ismp.ConsensusMessage, error) {
	return ismp.ConsensusMessage{}, nil
}
func (f *flakyProvider) CheckForByzantineAttack(ctx context.Context, counterparty provider.Provider, msg ismp.ConsensusMessage) error {
	return nil
}
func (f *flakyProvider) Reconnect(ctx context.Context, counterparty provider.Provider) error {
	f.attempts++
	if f.attempts <= f.failUntil {
		return errors.New("transport still down")
	}
	return nil
}

func TestWithExponentialBackoffSucceedsAfterFailures(t *testing.T) {
	chain := &flakyProvider{failUntil: 2}
	counterparty := &flakyProvider{}

	if err := WithExponentialBackoff(context.Background(), chain, counterparty, 5); err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if chain.attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", chain.attempts)
	}
}

func TestWithExponentialBackoffGivesUpAfterAttempts(t *testing.T) {
	chain := &flakyProvider{failUntil: 100}
	counterparty := &flakyProvider{}

	err := WithExponentialBackoff(context.Background(), chain, counterparty, 3)
	if err == nil {
		t.Fatal("expected an error after exhausting attempts")
	}
	if chain.attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", chain.attempts)
	}
}
