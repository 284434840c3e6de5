package provider

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/certen/independant-validator/pkg/ismp"
	"github.com/certen/independant-validator/pkg/statemachine"
)

// stateMachineUpdatedTopic is the keccak256 topic hash of the
// StateMachineUpdated(bytes,uint256) event every EvmHost-style ISMP
// host contract emits when its light client for a remote chain
// advances to a new height.
var stateMachineUpdatedTopic = crypto.Keccak256Hash([]byte("StateMachineUpdated(bytes,uint256)"))

// evmLogStream polls an EVM ISMP host contract for StateMachineUpdated
// logs and turns them into a StateMachineUpdateStream. Grounded on
// pkg/anchor/event_watcher.go's pollLoop/pollEvents: block-range
// capping, retry-then-fail, buffered channel, dropped-on-full policy
// for slow consumers (never the producer's problem to block forever).
//
// Not restartable: once pollLoop exits (context cancel or terminal
// error), Recv returns an error forever and the caller must ask the
// Provider to Reconnect and request a fresh stream (spec.md §9).
type evmLogStream struct {
	client      *ethclient.Client
	host        common.Address
	maxBlocks   uint64
	counterparty statemachine.StateMachine

	ctx    context.Context
	cancel context.CancelFunc

	events chan ismp.StateMachineUpdated
	errs   chan error

	mu                 sync.Mutex
	lastProcessedBlock uint64
	terminalErr        error

	wg sync.WaitGroup
}

// newEVMLogStream polls host for StateMachineUpdated logs on behalf of
// counterparty — the remote chain whose light client this host
// contract tracks. The log itself carries only the new height; the
// chain it is about is already known from which Provider.
// StateMachineUpdateNotification call opened this stream, so it is
// stamped onto every decoded event here rather than re-derived from
// log data.
func newEVMLogStream(parent context.Context, client *ethclient.Client, host common.Address, counterparty statemachine.StateMachine) *evmLogStream {
	ctx, cancel := context.WithCancel(parent)
	s := &evmLogStream{
		client:       client,
		host:         host,
		maxBlocks:    9, // mirrors the teacher's Alchemy-free-tier cap
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

func (s *evmLogStream) pollLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(6 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.setTerminal(s.ctx.Err())
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

func (s *evmLogStream) pollOnce() error {
	currentBlock, err := s.client.BlockNumber(s.ctx)
	if err != nil {
		return fmt.Errorf("evm log stream: get current block: %w", err)
	}

	s.mu.Lock()
	fromBlock := s.lastProcessedBlock + 1
	s.mu.Unlock()

	if fromBlock > currentBlock {
		return nil
	}

	toBlock := currentBlock
	if toBlock-fromBlock > s.maxBlocks {
		toBlock = fromBlock + s.maxBlocks
	}

	query := ethereum.FilterQuery{
		FromBlock: big.NewInt(int64(fromBlock)),
		ToBlock:   big.NewInt(int64(toBlock)),
		Addresses: []common.Address{s.host},
		Topics:    [][]common.Hash{{stateMachineUpdatedTopic}},
	}

	var logs []types.Log
	const retryAttempts = 3
	for attempt := 0; attempt < retryAttempts; attempt++ {
		logs, err = s.client.FilterLogs(s.ctx, query)
		if err == nil {
			break
		}
		if attempt < retryAttempts-1 {
			time.Sleep(500 * time.Millisecond)
		}
	}
	if err != nil {
		return fmt.Errorf("evm log stream: filter logs after %d attempts: %w", retryAttempts, err)
	}

	for _, l := range logs {
		event, err := s.decodeStateMachineUpdated(l)
		if err != nil {
			continue // decode error: skip this log, never poison the stream
		}
		select {
		case s.events <- event:
		default:
			// consumer too slow; drop rather than block the poll loop
		}
	}

	s.mu.Lock()
	s.lastProcessedBlock = toBlock
	s.mu.Unlock()
	return nil
}

func (s *evmLogStream) decodeStateMachineUpdated(l types.Log) (ismp.StateMachineUpdated, error) {
	if len(l.Data) < 32 {
		return ismp.StateMachineUpdated{}, fmt.Errorf("evm log stream: short log data")
	}
	height := new(big.Int).SetBytes(l.Data[len(l.Data)-32:])
	return ismp.StateMachineUpdated{
		StateMachineID: s.counterparty,
		LatestHeight:   height.Uint64(),
	}, nil
}

func (s *evmLogStream) setTerminal(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminalErr == nil {
		s.terminalErr = err
	}
}

func (s *evmLogStream) Recv(ctx context.Context) (ismp.StateMachineUpdated, error) {
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

func (s *evmLogStream) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}

// consensusMessageTopic is the keccak256 topic hash of the
// ConsensusMessage(bytes) event an EvmHost-style ISMP host contract
// emits when it has a consensus proof ready for a counterparty's
// light client, the EVM-side source for Provider.ConsensusNotification.
var consensusMessageTopic = crypto.Keccak256Hash([]byte("ConsensusMessage(bytes)"))

// evmConsensusStream polls an EVM ISMP host contract for
// ConsensusMessage logs, under the same poll-loop/not-restartable
// contract as evmLogStream, just against a different topic and a
// flatter decoded shape (the proof is carried opaquely).
type evmConsensusStream struct {
	client    *ethclient.Client
	host      common.Address
	maxBlocks uint64

	ctx    context.Context
	cancel context.CancelFunc

	events chan ismp.ConsensusMessage
	errs   chan error

	mu                 sync.Mutex
	lastProcessedBlock uint64

	wg sync.WaitGroup
}

func newEVMConsensusStream(parent context.Context, client *ethclient.Client, host common.Address) *evmConsensusStream {
	ctx, cancel := context.WithCancel(parent)
	s := &evmConsensusStream{
		client:    client,
		host:      host,
		maxBlocks: 9,
		ctx:       ctx,
		cancel:    cancel,
		events:    make(chan ismp.ConsensusMessage, 64),
		errs:      make(chan error, 4),
	}
	s.wg.Add(1)
	go s.pollLoop()
	return s
}

func (s *evmConsensusStream) pollLoop() {
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

func (s *evmConsensusStream) pollOnce() error {
	currentBlock, err := s.client.BlockNumber(s.ctx)
	if err != nil {
		return fmt.Errorf("evm consensus stream: get current block: %w", err)
	}

	s.mu.Lock()
	fromBlock := s.lastProcessedBlock + 1
	s.mu.Unlock()

	if fromBlock > currentBlock {
		return nil
	}

	toBlock := currentBlock
	if toBlock-fromBlock > s.maxBlocks {
		toBlock = fromBlock + s.maxBlocks
	}

	query := ethereum.FilterQuery{
		FromBlock: big.NewInt(int64(fromBlock)),
		ToBlock:   big.NewInt(int64(toBlock)),
		Addresses: []common.Address{s.host},
		Topics:    [][]common.Hash{{consensusMessageTopic}},
	}

	logs, err := s.client.FilterLogs(s.ctx, query)
	if err != nil {
		return fmt.Errorf("evm consensus stream: filter logs: %w", err)
	}

	for _, l := range logs {
		select {
		case s.events <- ismp.ConsensusMessage{Proof: l.Data}:
		default:
		}
	}

	s.mu.Lock()
	s.lastProcessedBlock = toBlock
	s.mu.Unlock()
	return nil
}

func (s *evmConsensusStream) Recv(ctx context.Context) (ismp.ConsensusMessage, error) {
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

func (s *evmConsensusStream) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}
