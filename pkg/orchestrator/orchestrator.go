// Package orchestrator wires Providers, the Message Encoder, the
// transaction-payment ledger, and the relay engines into one running
// relayer, grounded on the teacher's startValidator() sequence in
// main.go and original_source/relayer/src/cli.rs's per-chain startup
// loop: build every configured chain's client, seed its nonce and
// consensus state, then fan out one Messaging and one Consensus
// engine per direction of every hub<->spoke pair.
package orchestrator

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/certen/independant-validator/pkg/config"
	"github.com/certen/independant-validator/pkg/encoder"
	"github.com/certen/independant-validator/pkg/ledger"
	"github.com/certen/independant-validator/pkg/provider"
	"github.com/certen/independant-validator/pkg/reconnect"
	"github.com/certen/independant-validator/pkg/relay"
	"github.com/certen/independant-validator/pkg/rollup"
	"github.com/certen/independant-validator/pkg/statemachine"
)

// Spoke is one configured destination chain, its Provider, and (for
// rollups) the AnyClient/Builder pair needed to keep its L1 anchor
// height fresh.
type Spoke struct {
	Name         string
	Client       *provider.AnyClient
	RollupBuilder *rollup.Builder // nil for non-rollup families
}

// Orchestrator owns the hub Provider, every configured spoke, and the
// relay engines driving messages between them.
type Orchestrator struct {
	Logger *log.Logger

	hub    *provider.SubstrateProvider
	spokes []*Spoke

	encoder *encoder.Encoder
	ledger  *ledger.Store

	reconnects uint32
	runConsensus bool
	runMessaging bool

	wg sync.WaitGroup
}

// New constructs an Orchestrator from the parsed relay topology. It
// dials every configured chain; a dial failure for any one chain
// fails the whole startup (spec.md §9's fail-fast boundary — a
// relayer half-wired to its destinations is worse than one that never
// started).
func New(ctx context.Context, relayCfg *config.RelayConfig, store *ledger.Store, logger *log.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = log.Default()
	}

	hub, err := provider.NewSubstrateProvider(ctx, provider.SubstrateConfig{
		CometEndpoint: relayCfg.Hub.CometEndpoint,
		SignerSeedHex: relayCfg.Hub.SignerSeedHex,
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: dial hub: %w", err)
	}

	o := &Orchestrator{
		Logger:       logger,
		hub:          hub,
		encoder:      encoder.New(logger),
		ledger:       store,
		reconnects:   relayCfg.Relayer.Reconnects,
		runConsensus: relayCfg.Relayer.Consensus,
		runMessaging: relayCfg.Relayer.Messaging,
	}

	for name, entry := range relayCfg.Chains {
		if entry.Family == "arbitrum" || entry.Family == "optimism" || entry.Family == "base" {
			continue // built after every L1 anchor entry is dialed
		}
		spoke, err := o.buildSpoke(ctx, name, entry)
		if err != nil {
			return nil, err
		}
		o.spokes = append(o.spokes, spoke)
	}

	for name, entry := range relayCfg.Chains {
		if entry.Family != "arbitrum" && entry.Family != "optimism" && entry.Family != "base" {
			continue
		}
		spoke, err := o.buildRollupSpoke(ctx, name, entry, relayCfg)
		if err != nil {
			return nil, err
		}
		o.spokes = append(o.spokes, spoke)
	}

	o.wireL2Hosts(relayCfg)

	return o, nil
}

// wireL2Hosts installs the write-once L2-host registry on every L1
// EVMProvider, so a destination chain's rollup children are
// discoverable from its anchor (spec.md §9's L1<->L2 back-reference).
// Every L1 chain gets exactly one SetL2Hosts call, even anchors with
// no rollup children, since the registry panics on a second call and
// nothing else in the Orchestrator writes it afterward.
func (o *Orchestrator) wireL2Hosts(relayCfg *config.RelayConfig) {
	childrenByAnchor := map[string][]string{}
	for name, entry := range relayCfg.Chains {
		if entry.Family == "arbitrum" || entry.Family == "optimism" || entry.Family == "base" {
			childrenByAnchor[entry.L1Anchor] = append(childrenByAnchor[entry.L1Anchor], name)
		}
	}

	for _, spoke := range o.spokes {
		if spoke.Client.Kind != provider.BackendEthereum {
			continue
		}
		evm, ok := spoke.Client.Provider.(*provider.EVMProvider)
		if !ok {
			continue
		}
		var hosts []statemachine.StateMachine
		for _, childName := range childrenByAnchor[spoke.Name] {
			if childID, err := parseEVMChainID(childName); err == nil {
				hosts = append(hosts, statemachine.EVM(childID))
			}
		}
		evm.SetL2Hosts(hosts)
	}
}

func (o *Orchestrator) buildSpoke(ctx context.Context, name string, entry config.ChainEntry) (*Spoke, error) {
	switch entry.Family {
	case "ethereum", "":
		chainID, err := parseEVMChainID(name)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: chain %s: %w", name, err)
		}
		p, err := provider.NewEVMProvider(ctx, provider.EVMConfig{
			ChainID:          chainID,
			ExecutionWS:      entry.ExecutionWS,
			HandlerAddress:   common.HexToAddress(entry.Handler),
			IsmpHostAddress:  common.HexToAddress(entry.IsmpHost),
			SignerPrivateKey: entry.Signer,
			GasLimit:         entry.GasLimit,
			DialTimeout:      entry.DialTimeout.Duration(),
		})
		if err != nil {
			return nil, fmt.Errorf("orchestrator: build chain %s: %w", name, err)
		}
		client, err := provider.NewAnyClient(provider.BackendEthereum, p)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: chain %s: %w", name, err)
		}
		return &Spoke{Name: name, Client: client}, nil

	case "substrate":
		tag, err := parseSubstrateTag(name)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: chain %s: %w", name, err)
		}
		p, err := provider.NewSubstrateProvider(ctx, provider.SubstrateConfig{
			Tag:           tag,
			CometEndpoint: entry.ExecutionWS,
			SignerSeedHex: entry.Signer,
			GasLimit:      entry.GasLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("orchestrator: build chain %s: %w", name, err)
		}
		client, err := provider.NewAnyClient(provider.BackendSubstrate, p)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: chain %s: %w", name, err)
		}
		return &Spoke{Name: name, Client: client}, nil

	default:
		return nil, fmt.Errorf("orchestrator: chain %s: family %q is a rollup family, built in the second pass", name, entry.Family)
	}
}

// parseEVMChainID recovers the numeric chain id from a chains map key
// of the form "EVM(1)" (statemachine.StateMachine.String()'s format).
func parseEVMChainID(key string) (uint32, error) {
	var id uint32
	if _, err := fmt.Sscanf(key, "EVM(%d)", &id); err != nil {
		return 0, fmt.Errorf("expected an EVM(chain_id) key, got %q: %w", key, err)
	}
	return id, nil
}

// parseSubstrateTag recovers the 4-byte consensus tag from a chains
// map key of the form "Substrate(68617a6c)".
func parseSubstrateTag(key string) ([4]byte, error) {
	var hexTag string
	if _, err := fmt.Sscanf(key, "Substrate(%s", &hexTag); err != nil {
		return [4]byte{}, fmt.Errorf("expected a Substrate(tag) key, got %q: %w", key, err)
	}
	hexTag = strings.TrimSuffix(hexTag, ")")
	raw, err := hex.DecodeString(hexTag)
	if err != nil || len(raw) != 4 {
		return [4]byte{}, fmt.Errorf("invalid substrate tag in key %q", key)
	}
	var tag [4]byte
	copy(tag[:], raw)
	return tag, nil
}

func (o *Orchestrator) buildRollupSpoke(ctx context.Context, name string, entry config.ChainEntry, relayCfg *config.RelayConfig) (*Spoke, error) {
	chainID, err := parseEVMChainID(name)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: chain %s: %w", name, err)
	}
	p, err := provider.NewEVMProvider(ctx, provider.EVMConfig{
		ChainID:          chainID,
		ExecutionWS:      entry.ExecutionWS,
		HandlerAddress:   common.HexToAddress(entry.Handler),
		IsmpHostAddress:  common.HexToAddress(entry.IsmpHost),
		SignerPrivateKey: entry.Signer,
		GasLimit:         entry.GasLimit,
		DialTimeout:      entry.DialTimeout.Duration(),
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: build rollup chain %s: %w", name, err)
	}

	var kind provider.BackendKind
	var family rollup.Family
	switch entry.Family {
	case "arbitrum":
		kind, family = provider.BackendArbitrum, rollup.FamilyArbitrum
	case "optimism":
		kind, family = provider.BackendOptimism, rollup.FamilyOptimism
	case "base":
		kind, family = provider.BackendBase, rollup.FamilyBase
	}

	client, err := provider.NewAnyClient(kind, p)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: chain %s: %w", name, err)
	}

	l1, err := ethclient.DialContext(ctx, entry.BeaconExecutionWS)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: chain %s: dial L1 anchor %s: %w", name, entry.BeaconExecutionWS, err)
	}
	l2, err := ethclient.DialContext(ctx, entry.ExecutionWS)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: chain %s: dial L2 %s: %w", name, entry.ExecutionWS, err)
	}

	var builder *rollup.Builder
	switch family {
	case rollup.FamilyArbitrum:
		builder = rollup.NewArbitrumBuilder(l1, l2, common.HexToAddress(entry.RollupCore))
	case rollup.FamilyOptimism:
		builder = rollup.NewOptimismBuilder(l1, l2, common.HexToAddress(entry.RollupCore))
	case rollup.FamilyBase:
		builder = rollup.NewBaseBuilder(l1, l2, common.HexToAddress(entry.RollupCore))
	}

	if l1Entry, ok := relayCfg.Chains[entry.L1Anchor]; ok {
		o.Logger.Printf("orchestrator: chain %s anchors to L1 %s (%s)", name, entry.L1Anchor, l1Entry.Family)
	}

	return &Spoke{Name: name, Client: client, RollupBuilder: builder}, nil
}

// Start seeds every spoke's nonce provider, starts the hub's health
// monitor, and launches the configured relay engines for every
// hub<->spoke pair. It blocks until ctx is cancelled.
func (o *Orchestrator) Start(ctx context.Context) error {
	if _, err := o.hub.InitializeNonce(ctx); err != nil {
		return fmt.Errorf("orchestrator: seed hub nonce: %w", err)
	}
	if err := o.hub.StartHealthMonitor(); err != nil {
		o.Logger.Printf("orchestrator: hub health monitor: %v", err)
	}

	for _, spoke := range o.spokes {
		if _, err := spoke.Client.Provider.InitializeNonce(ctx); err != nil {
			o.Logger.Printf("orchestrator: seed nonce for %s: %v", spoke.Name, err)
			continue
		}
		o.launchEnginePair(ctx, spoke)
	}

	<-ctx.Done()
	o.wg.Wait()
	return ctx.Err()
}

// SeedConsensus implements the --setup-eth/--setup-para CLI flags
// (spec.md §6, §8 scenario 6), grounded on
// original_source/relayer/src/cli.rs's initialize_consensus_clients:
// --setup-eth installs the hub's initial consensus state on every
// configured spoke; --setup-para installs every spoke's initial
// consensus state on the hub. Each install is independent — one
// spoke's failure or already-installed state never blocks the rest.
func (o *Orchestrator) SeedConsensus(ctx context.Context, setupEth, setupPara bool) error {
	if setupEth {
		state, ok, err := o.hub.QueryInitialConsensusState(ctx)
		if err != nil {
			return fmt.Errorf("orchestrator: fetch hub initial consensus state: %w", err)
		}
		if !ok {
			return fmt.Errorf("orchestrator: hub has no initial consensus state to seed")
		}
		for _, spoke := range o.spokes {
			o.Logger.Printf("orchestrator: setting consensus state on %s", spoke.Name)
			if err := spoke.Client.Provider.InstallInitialConsensusState(ctx, state); err != nil {
				o.Logger.Printf("orchestrator: install consensus state on %s: %v", spoke.Name, err)
			}
		}
	}

	if setupPara {
		for _, spoke := range o.spokes {
			state, ok, err := spoke.Client.Provider.QueryInitialConsensusState(ctx)
			if err != nil {
				o.Logger.Printf("orchestrator: fetch initial consensus state for %s: %v", spoke.Name, err)
				continue
			}
			if !ok {
				continue
			}
			o.Logger.Printf("orchestrator: setting consensus state for %s on hub", spoke.Name)
			if err := o.hub.InstallInitialConsensusState(ctx, state); err != nil {
				o.Logger.Printf("orchestrator: install consensus state for %s on hub: %v", spoke.Name, err)
			}
		}
	}
	return nil
}

func (o *Orchestrator) launchEnginePair(ctx context.Context, spoke *Spoke) {
	reconnectFn := func(ctx context.Context, chain, counterparty provider.Provider) error {
		return reconnect.WithExponentialBackoff(ctx, chain, counterparty, o.reconnects)
	}

	if o.runConsensus {
		hubToSpoke := relay.NewConsensusEngine(o.hub, spoke.Client.Provider, o.encoder, o.ledger, o.Logger)
		hubToSpoke.ReconnectFn = reconnectFn
		spokeToHub := relay.NewConsensusEngine(spoke.Client.Provider, o.hub, o.encoder, o.ledger, o.Logger)
		spokeToHub.ReconnectFn = reconnectFn

		o.runEngine(ctx, hubToSpoke.Run)
		o.runEngine(ctx, spokeToHub.Run)
	}

	if o.runMessaging {
		hubToSpoke := relay.NewMessagingEngine(o.hub, spoke.Client.Provider, o.encoder, o.ledger, o.Logger)
		hubToSpoke.ReconnectFn = reconnectFn
		spokeToHub := relay.NewMessagingEngine(spoke.Client.Provider, o.hub, o.encoder, o.ledger, o.Logger)
		spokeToHub.ReconnectFn = reconnectFn

		o.runEngine(ctx, hubToSpoke.Run)
		o.runEngine(ctx, spokeToHub.Run)
	}
}

func (o *Orchestrator) runEngine(ctx context.Context, run func(context.Context) error) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := run(ctx); err != nil && ctx.Err() == nil {
			o.Logger.Printf("orchestrator: relay engine exited: %v", err)
		}
	}()
}

// Spokes exposes the configured destination chains, e.g. for an HTTP
// status endpoint.
func (o *Orchestrator) Spokes() []*Spoke { return o.spokes }

// Hub exposes the hub Provider.
func (o *Orchestrator) Hub() *provider.SubstrateProvider { return o.hub }
