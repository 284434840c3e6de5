package provider

import (
	"context"
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"

	"github.com/certen/independant-validator/pkg/commitment"
	"github.com/certen/independant-validator/pkg/ismp"
	"github.com/certen/independant-validator/pkg/statemachine"
)

// postRequestTopic, postResponseTopic, etc. are the keccak256 topic
// hashes of the ISMP event family an EvmHost-style contract emits.
// Mirrors stateMachineUpdatedTopic's derivation in evm_stream.go.
var (
	postRequestTopic         = crypto.Keccak256Hash([]byte("PostRequestEvent(bytes)"))
	postResponseTopic        = crypto.Keccak256Hash([]byte("PostResponseEvent(bytes)"))
	getRequestTopic          = crypto.Keccak256Hash([]byte("GetRequestEvent(bytes)"))
	timeoutPostTopic         = crypto.Keccak256Hash([]byte("PostRequestTimeoutHandled(bytes)"))
	timeoutPostResponseTopic = crypto.Keccak256Hash([]byte("PostResponseTimeoutHandled(bytes)"))
	timeoutGetTopic          = crypto.Keccak256Hash([]byte("GetRequestTimeoutHandled(bytes)"))
)

// EVMConfig configures an EVM Provider backend — the per-chain config
// section spec.md §6 names (execution_ws, handler/ismp_host contract
// addresses, signer, gas_limit).
type EVMConfig struct {
	ChainID           uint32
	ExecutionWS       string
	HandlerAddress    common.Address
	IsmpHostAddress   common.Address
	SignerPrivateKey  string
	GasLimit          uint64
	DialTimeout       time.Duration
}

// EVMProvider implements Provider for Ethereum and EVM-compatible
// destinations (mainnet L1s). Grounded on
// pkg/chain/strategy/evm_strategy.go's constructor/auth pattern and
// pkg/ethereum/client.go's ethclient wrapper, widened from the 3-step
// anchor workflow to the full ISMP Provider contract.
type EVMProvider struct {
	mu sync.RWMutex

	cfg     EVMConfig
	client  *ethclient.Client
	geth    *gethclient.Client
	chainID *big.Int
	auth    *bind.TransactOpts
	signer  *ecdsa.PrivateKey
	address common.Address

	nonceProvider      *NonceProvider
	l2Hosts            []statemachine.StateMachine // write-once, set by Orchestrator
	l2HostsSet         bool
	consensusInstalled bool
}

// NewEVMProvider dials the configured RPC endpoint and derives the
// signer's address, mirroring NewEVMStrategy's startup sequence.
func NewEVMProvider(ctx context.Context, cfg EVMConfig) (*EVMProvider, error) {
	if cfg.ExecutionWS == "" {
		return nil, fmt.Errorf("evm provider: execution_ws is required")
	}

	client, err := ethclient.DialContext(ctx, cfg.ExecutionWS)
	if err != nil {
		return nil, fmt.Errorf("evm provider: connect to %s: %w", cfg.ExecutionWS, err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	chainID, err := client.ChainID(dialCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("evm provider: fetch chain id: %w", err)
	}

	p := &EVMProvider{cfg: cfg, client: client, geth: gethclient.New(client.Client()), chainID: chainID}

	if cfg.SignerPrivateKey != "" {
		key, err := crypto.HexToECDSA(cfg.SignerPrivateKey)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("evm provider: invalid signer key: %w", err)
		}
		auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("evm provider: create transactor: %w", err)
		}
		p.signer = key
		p.auth = auth
		p.address = crypto.PubkeyToAddress(key.PublicKey)
	}

	return p, nil
}

// SetL2Hosts installs the write-once L2-host registry (spec.md §9
// "L1 ↔ L2 back-reference"). Panics if called twice — a startup
// invariant violation, not a runtime condition.
func (p *EVMProvider) SetL2Hosts(hosts []statemachine.StateMachine) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.l2HostsSet {
		panic("evm provider: SetL2Hosts called more than once")
	}
	p.l2Hosts = hosts
	p.l2HostsSet = true
}

// L2Hosts returns the configured L2 rollup hosts anchored to this L1
// provider, read-only after Orchestrator startup.
func (p *EVMProvider) L2Hosts() []statemachine.StateMachine {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.l2Hosts
}

func (p *EVMProvider) Name() string { return fmt.Sprintf("evm-%d", p.cfg.ChainID) }

func (p *EVMProvider) StateMachineID() statemachine.StateMachine {
	return statemachine.EVM(p.cfg.ChainID)
}

func (p *EVMProvider) BlockMaxGas() uint64 { return p.cfg.GasLimit }

func (p *EVMProvider) InitialHeight() uint64 { return 0 }

func (p *EVMProvider) EstimateGas(ctx context.Context, msgs []Message) (uint64, error) {
	// Conservative flat estimate per message; real ABI-aware estimation
	// happens in pkg/encoder where the concrete tuple is known.
	return uint64(len(msgs)) * 200_000, nil
}

// QueryConsensusState reads the light client's tracked consensus
// state out of the ISMP host contract's storage, at the slot
// keccak256 of the 4-byte consensus state id.
func (p *EVMProvider) QueryConsensusState(ctx context.Context, at *uint64, id statemachine.ConsensusStateId) ([]byte, error) {
	var blockNumber *big.Int
	if at != nil {
		blockNumber = new(big.Int).SetUint64(*at)
	}
	slot := crypto.Keccak256Hash(id[:])
	state, err := p.client.StorageAt(ctx, p.cfg.IsmpHostAddress, slot, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("evm provider: query consensus state: %w", err)
	}
	return state, nil
}

func (p *EVMProvider) QueryLatestHeight(ctx context.Context, id statemachine.ConsensusStateId) (uint32, error) {
	header, err := p.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("evm provider: query latest height: %w", err)
	}
	return uint32(header.Number.Uint64()), nil
}

func (p *EVMProvider) QueryLatestMessagingHeight(ctx context.Context, id statemachine.ConsensusStateId) (uint64, error) {
	header, err := p.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("evm provider: query latest messaging height: %w", err)
	}
	return header.Number.Uint64(), nil
}

func (p *EVMProvider) QueryConsensusUpdateTime(ctx context.Context, id statemachine.ConsensusStateId) (time.Duration, error) {
	return 0, nil
}

func (p *EVMProvider) QueryChallengePeriod(ctx context.Context, id statemachine.ConsensusStateId) (time.Duration, error) {
	return 0, nil
}

func (p *EVMProvider) QueryTimestamp(ctx context.Context) (time.Duration, error) {
	header, err := p.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("evm provider: query timestamp: %w", err)
	}
	return time.Duration(header.Time) * time.Second, nil
}

// QueryRequestsProof derives each query's full storage key and fetches
// a single eth_getProof covering all of them.
func (p *EVMProvider) QueryRequestsProof(ctx context.Context, at uint64, queries []Query) ([]byte, error) {
	keys := make([][]byte, len(queries))
	for i, q := range queries {
		keys[i] = p.RequestCommitmentFullKey(q.Commitment)
	}
	return p.QueryStateProof(ctx, at, keys)
}

func (p *EVMProvider) QueryResponsesProof(ctx context.Context, at uint64, queries []Query) ([]byte, error) {
	keys := make([][]byte, len(queries))
	for i, q := range queries {
		keys[i] = p.ResponseCommitmentFullKey(q.Commitment)
	}
	return p.QueryStateProof(ctx, at, keys)
}

// QueryStateProof fetches an account + storage proof for keys at
// block `at`, the same gethclient.GetProof call pkg/rollup/builder.go
// uses for its payload proofs, applied here to the ISMP host contract
// instead of a rollup core contract.
func (p *EVMProvider) QueryStateProof(ctx context.Context, at uint64, keys [][]byte) ([]byte, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("evm provider: query state proof: no keys requested")
	}
	storageKeys := make([]string, len(keys))
	for i, k := range keys {
		storageKeys[i] = common.BytesToHash(k).Hex()
	}
	proof, err := p.geth.GetProof(ctx, p.cfg.IsmpHostAddress, storageKeys, new(big.Int).SetUint64(at))
	if err != nil {
		return nil, fmt.Errorf("evm provider: get proof at %d: %w", at, err)
	}

	out := appendProofNodes(nil, proof.AccountProof)
	for _, sp := range proof.StorageProof {
		out = appendProofNodes(out, sp.Proof)
	}
	return out, nil
}

func appendProofNodes(out []byte, nodes []string) []byte {
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(nodes)))
	out = append(out, countBuf[:]...)
	for _, n := range nodes {
		raw := common.FromHex(n)
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(raw)))
		out = append(out, lenBuf[:]...)
		out = append(out, raw...)
	}
	return out
}

// QueryISMPEvents filters the ISMP host contract's logs over
// (previousHeight, event.LatestHeight] for the six ISMP event
// signatures and decodes each into an ismp.Event. Decoding beyond
// Kind/Height/Nonce/opaque body would need the host contract's
// generated ABI bindings, which this Provider deliberately stays free
// of (spec.md §9's "uniform collection holds the variants" — a
// Provider dispatches on Message.Kind, it doesn't speak ABI).
func (p *EVMProvider) QueryISMPEvents(ctx context.Context, previousHeight uint64, event ismp.StateMachineUpdated) ([]ismp.Event, error) {
	if previousHeight >= event.LatestHeight {
		return nil, nil
	}
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(previousHeight + 1),
		ToBlock:   new(big.Int).SetUint64(event.LatestHeight),
		Addresses: []common.Address{p.cfg.IsmpHostAddress},
		Topics: [][]common.Hash{{
			postRequestTopic, postResponseTopic, getRequestTopic,
			timeoutPostTopic, timeoutPostResponseTopic, timeoutGetTopic,
		}},
	}
	logs, err := p.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("evm provider: query ismp events: %w", err)
	}

	events := make([]ismp.Event, 0, len(logs))
	for _, l := range logs {
		ev, ok := p.decodeISMPEventLog(l)
		if !ok {
			continue // unrecognized topic or short data: skip, never poison the batch
		}
		events = append(events, ev)
	}
	return events, nil
}

func (p *EVMProvider) decodeISMPEventLog(l types.Log) (ismp.Event, bool) {
	if len(l.Topics) == 0 {
		return ismp.Event{}, false
	}
	source := p.StateMachineID()
	var nonce uint64
	body := l.Data
	if len(l.Data) >= 8 {
		nonce = new(big.Int).SetBytes(l.Data[:8]).Uint64()
		body = l.Data[8:]
	}

	switch l.Topics[0] {
	case postRequestTopic:
		return ismp.Event{Kind: ismp.EventPostRequest, Height: l.BlockNumber, StateMachine: source,
			Request: &ismp.PostRequest{Source: source, Nonce: nonce, Body: body}}, true
	case postResponseTopic:
		return ismp.Event{Kind: ismp.EventPostResponse, Height: l.BlockNumber, StateMachine: source,
			Response: &ismp.PostResponse{Request: ismp.PostRequest{Source: source, Nonce: nonce}, Response: body}}, true
	case getRequestTopic:
		return ismp.Event{Kind: ismp.EventGetRequest, Height: l.BlockNumber, StateMachine: source,
			GetRequest: &ismp.GetRequest{Source: source, Nonce: nonce, Height: l.BlockNumber}}, true
	case timeoutPostTopic:
		return ismp.Event{Kind: ismp.EventTimeoutPost, Height: l.BlockNumber, StateMachine: source,
			Request: &ismp.PostRequest{Source: source, Nonce: nonce, Body: body}}, true
	case timeoutPostResponseTopic:
		return ismp.Event{Kind: ismp.EventTimeoutPostResponse, Height: l.BlockNumber, StateMachine: source,
			Response: &ismp.PostResponse{Request: ismp.PostRequest{Source: source, Nonce: nonce}, Response: body}}, true
	case timeoutGetTopic:
		return ismp.Event{Kind: ismp.EventTimeoutGet, Height: l.BlockNumber, StateMachine: source,
			GetRequest: &ismp.GetRequest{Source: source, Nonce: nonce, Height: l.BlockNumber}}, true
	default:
		return ismp.Event{}, false
	}
}

func (p *EVMProvider) QueryPendingGetRequests(ctx context.Context, height uint64) ([]ismp.GetRequest, error) {
	return nil, nil
}

func (p *EVMProvider) StateMachineUpdateNotification(ctx context.Context, counterparty statemachine.StateMachine) (StateMachineUpdateStream, error) {
	return newEVMLogStream(ctx, p.client, p.cfg.IsmpHostAddress, counterparty), nil
}

func (p *EVMProvider) ConsensusNotification(ctx context.Context, counterparty Provider) (ConsensusMessageStream, error) {
	return newEVMConsensusStream(ctx, p.client, p.cfg.IsmpHostAddress), nil
}

// Submit sends each message as a plain transaction to HandlerAddress,
// calldata set to the already-encoded payload pkg/encoder produced.
// No ABI bindings are needed: the handler contract dispatches on the
// payload's own leading Message.Kind tag once it is mined.
func (p *EVMProvider) Submit(ctx context.Context, msgs []Message) error {
	if p.auth == nil {
		return fmt.Errorf("evm provider: no signer configured for %s", p.Name())
	}
	if p.nonceProvider == nil {
		return fmt.Errorf("evm provider: nonce provider not initialized for %s", p.Name())
	}
	gasPrice, err := p.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("evm provider: suggest gas price: %w", err)
	}

	for _, msg := range msgs {
		nonce := p.nonceProvider.GetNonce()
		tx := types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			To:       &p.cfg.HandlerAddress,
			Value:    big.NewInt(0),
			Gas:      p.cfg.GasLimit,
			GasPrice: gasPrice,
			Data:     msg.Payload,
		})
		signed, err := types.SignTx(tx, types.NewEIP155Signer(p.chainID), p.signer)
		if err != nil {
			return fmt.Errorf("evm provider: sign tx (nonce %d): %w", nonce, err)
		}
		if err := p.client.SendTransaction(ctx, signed); err != nil {
			return fmt.Errorf("evm provider: send tx (nonce %d): %w", nonce, err)
		}
	}
	return nil
}

func (p *EVMProvider) RequestCommitmentFullKey(c [32]byte) []byte {
	return commitment.RequestCommitmentFullKey(c)
}
func (p *EVMProvider) RequestReceiptFullKey(c [32]byte) []byte {
	return commitment.RequestReceiptFullKey(c)
}
func (p *EVMProvider) ResponseCommitmentFullKey(c [32]byte) []byte {
	return commitment.ResponseCommitmentFullKey(c)
}
func (p *EVMProvider) ResponseReceiptFullKey(c [32]byte) []byte {
	return commitment.ResponseReceiptFullKey(c)
}

func (p *EVMProvider) InitializeNonce(ctx context.Context) (*NonceProvider, error) {
	nonce, err := p.client.PendingNonceAt(ctx, p.address)
	if err != nil {
		return nil, fmt.Errorf("evm provider: initialize nonce: %w", err)
	}
	np := NewNonceProvider(nonce)
	p.mu.Lock()
	p.nonceProvider = np
	p.mu.Unlock()
	return np, nil
}

func (p *EVMProvider) SetNonceProvider(n *NonceProvider) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nonceProvider = n
}

func (p *EVMProvider) NonceProvider() *NonceProvider {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.nonceProvider
}

func (p *EVMProvider) Address() []byte { return p.address.Bytes() }

func (p *EVMProvider) Sign(ctx context.Context, msg []byte) ([]byte, error) {
	if p.signer == nil {
		return nil, fmt.Errorf("evm provider: no signer configured for %s", p.Name())
	}
	hash := crypto.Keccak256(msg)
	return crypto.Sign(hash, p.signer)
}

func (p *EVMProvider) QueryConsensusMessage(ctx context.Context, challenge ismp.StateMachineUpdated) (ismp.ConsensusMessage, error) {
	at := new(big.Int).SetUint64(challenge.LatestHeight)
	query := ethereum.FilterQuery{
		FromBlock: at,
		ToBlock:   at,
		Addresses: []common.Address{p.cfg.IsmpHostAddress},
		Topics:    [][]common.Hash{{consensusMessageTopic}},
	}
	logs, err := p.client.FilterLogs(ctx, query)
	if err != nil {
		return ismp.ConsensusMessage{}, fmt.Errorf("evm provider: query consensus message: %w", err)
	}
	if len(logs) == 0 {
		return ismp.ConsensusMessage{}, fmt.Errorf("evm provider: no consensus message at height %d", challenge.LatestHeight)
	}
	return ismp.ConsensusMessage{Proof: logs[0].Data}, nil
}

func (p *EVMProvider) CheckForByzantineAttack(ctx context.Context, counterparty Provider, msg ismp.ConsensusMessage) error {
	return nil
}

// QueryInitialConsensusState returns this chain's current state,
// suitable for installing on a counterparty's light client via
// --setup-eth/--setup-para (spec.md §6). For an EVM chain that is the
// latest block header hash: the cheapest value a destination light
// client can anchor a genesis consensus state on without this
// Provider speaking the destination's own consensus format.
func (p *EVMProvider) QueryInitialConsensusState(ctx context.Context) ([]byte, bool, error) {
	header, err := p.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("evm provider: query initial consensus state: %w", err)
	}
	return header.Hash().Bytes(), true, nil
}

// InstallInitialConsensusState seeds this chain's light client for a
// counterparty exactly once (spec.md §8 scenario 6: re-running is
// idempotent, the second call is rejected).
func (p *EVMProvider) InstallInitialConsensusState(ctx context.Context, state []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.consensusInstalled {
		return fmt.Errorf("evm provider: initial consensus state already installed for %s", p.Name())
	}
	if len(state) == 0 {
		return fmt.Errorf("evm provider: empty initial consensus state for %s", p.Name())
	}
	if err := p.Submit(ctx, []Message{{Kind: MessageConsensus, Payload: state}}); err != nil {
		return fmt.Errorf("evm provider: install initial consensus state: %w", err)
	}
	p.consensusInstalled = true
	return nil
}

// Reconnect rebuilds the underlying ethclient connection in place,
// preserving the existing NonceProvider exactly as
// original_source/substrate/common/src/host.rs's reconnect does for
// its SubstrateClient.
func (p *EVMProvider) Reconnect(ctx context.Context, counterparty Provider) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		p.client.Close()
	}
	client, err := ethclient.DialContext(ctx, p.cfg.ExecutionWS)
	if err != nil {
		return fmt.Errorf("evm provider: reconnect: %w", err)
	}
	p.client = client
	p.geth = gethclient.New(client.Client())
	return nil
}

func (p *EVMProvider) Type() statemachine.Kind { return statemachine.KindEVM }
