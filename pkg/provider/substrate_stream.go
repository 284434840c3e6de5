package provider

import (
	"context"
	"fmt"
	"sync"
	"time"

	cometbfthttp "github.com/cometbft/cometbft/rpc/client/http"

	"github.com/certen/independant-validator/pkg/ismp"
	"github.com/certen/independant-validator/pkg/statemachine"
)

// substrateHeightStream polls CometBFT's /status for height advances
// and turns each one into a StateMachineUpdated event, under the same
// poll-loop/not-restartable contract evmLogStream uses for its EVM
// counterpart — the hub has no separate per-counterparty light-client
// contract to watch, so block height itself is the trigger.
type substrateHeightStream struct {
	rpc          *cometbfthttp.HTTP
	counterparty statemachine.StateMachine

	ctx    context.Context
	cancel context.CancelFunc

	events chan ismp.StateMachineUpdated
	errs   chan error

	mu           sync.Mutex
	lastReported uint64

	wg sync.WaitGroup
}

func newSubstrateHeightStream(parent context.Context, rpc *cometbfthttp.HTTP, counterparty statemachine.StateMachine) *substrateHeightStream {
	ctx, cancel := context.WithCancel(parent)
	s := &substrateHeightStream{
		rpc:          rpc,
		counterparty: counterparty,
		ctx:          ctx,
		cancel:       cancel,
		events:       make(chan ismp.StateMachineUpdated, 64),
		errs:         make(chan error, 4),
	}
	s.wg.Add(1)
	go s.pollLoop()
	return s
}

func (s *substrateHeightStream) pollLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(6 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.pollOnce(); err != nil {
				select {
				case s.errs <- err:
				default:
				}
			}
		}
	}
}

func (s *substrateHeightStream) pollOnce() error {
	status, err := s.rpc.Status(s.ctx)
	if err != nil {
		return fmt.Errorf("substrate height stream: status: %w", err)
	}
	height := uint64(status.SyncInfo.LatestBlockHeight)

	s.mu.Lock()
	advanced := height > s.lastReported
	s.lastReported = height
	s.mu.Unlock()

	if !advanced {
		return nil
	}

	select {
	case s.events <- ismp.StateMachineUpdated{StateMachineID: s.counterparty, LatestHeight: height}:
	default:
		// consumer too slow; drop rather than block the poll loop
	}
	return nil
}

func (s *substrateHeightStream) Recv(ctx context.Context) (ismp.StateMachineUpdated, error) {
	select {
	case e := <-s.events:
		return e, nil
	case err := <-s.errs:
		return ismp.StateMachineUpdated{}, err
	case <-s.ctx.Done():
		return ismp.StateMachineUpdated{}, s.ctx.Err()
	case <-ctx.Done():
		return ismp.StateMachineUpdated{}, ctx.Err()
	}
}

func (s *substrateHeightStream) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

// substrateConsensusStream polls finalized blocks for an
// "ismp.consensus_message" ABCI event and yields its opaque proof,
// the Substrate-side source for Provider.ConsensusNotification.
type substrateConsensusStream struct {
	rpc *cometbfthttp.HTTP

	ctx    context.Context
	cancel context.CancelFunc

	events chan ismp.ConsensusMessage
	errs   chan error

	mu             sync.Mutex
	lastScanHeight int64

	wg sync.WaitGroup
}

func newSubstrateConsensusStream(parent context.Context, rpc *cometbfthttp.HTTP) *substrateConsensusStream {
	ctx, cancel := context.WithCancel(parent)
	s := &substrateConsensusStream{
		rpc:    rpc,
		ctx:    ctx,
		cancel: cancel,
		events: make(chan ismp.ConsensusMessage, 64),
		errs:   make(chan error, 4),
	}
	s.wg.Add(1)
	go s.pollLoop()
	return s
}

func (s *substrateConsensusStream) pollLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(6 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.pollOnce(); err != nil {
				select {
				case s.errs <- err:
				default:
				}
			}
		}
	}
}

func (s *substrateConsensusStream) pollOnce() error {
	status, err := s.rpc.Status(s.ctx)
	if err != nil {
		return fmt.Errorf("substrate consensus stream: status: %w", err)
	}
	latest := status.SyncInfo.LatestBlockHeight

	s.mu.Lock()
	from := s.lastScanHeight + 1
	s.mu.Unlock()

	if from > latest {
		return nil
	}

	for h := from; h <= latest; h++ {
		height := h
		results, err := s.rpc.BlockResults(s.ctx, &height)
		if err != nil {
			return fmt.Errorf("substrate consensus stream: block results at %d: %w", h, err)
		}
		for _, txResult := range results.TxsResults {
			for _, ev := range txResult.Events {
				if ev.Type != "ismp.consensus_message" {
					continue
				}
				for _, attr := range ev.Attributes {
					if attr.Key != "proof" {
						continue
					}
					select {
					case s.events <- ismp.ConsensusMessage{Proof: []byte(attr.Value)}:
					default:
					}
				}
			}
		}
	}

	s.mu.Lock()
	s.lastScanHeight = latest
	s.mu.Unlock()
	return nil
}

func (s *substrateConsensusStream) Recv(ctx context.Context) (ismp.ConsensusMessage, error) {
	select {
	case e := <-s.events:
		return e, nil
	case err := <-s.errs:
		return ismp.ConsensusMessage{}, err
	case <-s.ctx.Done():
		return ismp.ConsensusMessage{}, s.ctx.Err()
	case <-ctx.Done():
		return ismp.ConsensusMessage{}, ctx.Err()
	}
}

func (s *substrateConsensusStream) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}
