// Package relay implements the two long-running relay engines
// (Consensus and Messaging) that drive messages between a source
// Provider and a destination Provider, grounded on
// pkg/anchor/event_watcher.go's poll/dispatch-loop shape and
// original_source/ethereum/evm/src/tx.rs's submit_messages pipeline.
package relay

import (
	"context"
	"log"
	"time"

	"github.com/certen/independant-validator/pkg/encoder"
	"github.com/certen/independant-validator/pkg/ledger"
	"github.com/certen/independant-validator/pkg/metrics"
	"github.com/certen/independant-validator/pkg/provider"
)

// ConsensusEngine relays ConsensusMessage events observed on one
// chain to a counterparty chain's light client, retrying the stream
// via the caller-supplied Reconnect hook when Recv fails.
type ConsensusEngine struct {
	Source       provider.Provider
	Dest         provider.Provider
	Encoder      *encoder.Encoder
	Ledger       *ledger.Store
	Logger       *log.Logger
	ReconnectFn  func(ctx context.Context, chain, counterparty provider.Provider) error
}

// NewConsensusEngine constructs a ConsensusEngine relaying from
// source to dest.
func NewConsensusEngine(source, dest provider.Provider, enc *encoder.Encoder, store *ledger.Store, logger *log.Logger) *ConsensusEngine {
	if logger == nil {
		logger = log.Default()
	}
	return &ConsensusEngine{Source: source, Dest: dest, Encoder: enc, Ledger: store, Logger: logger}
}

// Run drives the engine until ctx is cancelled. Each iteration opens
// (or re-opens, after a Recv error) a ConsensusNotification stream
// from Source and submits every message it yields to Dest.
func (e *ConsensusEngine) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		stream, err := e.Source.ConsensusNotification(ctx, e.Dest)
		if err != nil {
			e.Logger.Printf("consensus engine: %s -> %s: open stream: %v", e.Source.Name(), e.Dest.Name(), err)
			if !e.reconnectOrWait(ctx) {
				return ctx.Err()
			}
			continue
		}

		e.drain(ctx, stream)
		if !e.reconnectOrWait(ctx) {
			return ctx.Err()
		}
	}
}

func (e *ConsensusEngine) drain(ctx context.Context, stream provider.ConsensusMessageStream) {
	defer stream.Close()

	for {
		msg, err := stream.Recv(ctx)
		if err != nil {
			if ctx.Err() == nil {
				e.Logger.Printf("consensus engine: %s: stream error, reconnecting: %v", e.Source.Name(), err)
			}
			return
		}

		if err := e.Source.CheckForByzantineAttack(ctx, e.Dest, msg); err != nil {
			e.Logger.Printf("consensus engine: byzantine check failed for %s: %v", e.Source.Name(), err)
			continue
		}

		out, err := e.Encoder.EncodeConsensus(msg)
		if err != nil {
			metrics.EncodeErrors.WithLabelValues("consensus").Inc()
			e.Logger.Printf("consensus engine: skipping undecodable consensus message: %v", err)
			continue
		}

		gasUsed, estErr := e.Dest.EstimateGas(ctx, []provider.Message{out})
		if estErr != nil {
			e.Logger.Printf("consensus engine: estimate gas on %s failed: %v", e.Dest.Name(), estErr)
		}
		if estErr == nil {
			if maxGas := e.Dest.BlockMaxGas(); maxGas > 0 && gasUsed > maxGas {
				e.Logger.Printf("consensus engine: message to %s estimated at %d gas exceeds block max %d; splitting is not supported for consensus messages, skipping", e.Dest.Name(), gasUsed, maxGas)
				continue
			}
		}

		if err := e.Dest.Submit(ctx, []provider.Message{out}); err != nil {
			metrics.SubmitErrors.WithLabelValues("consensus", e.Source.Name(), e.Dest.Name()).Inc()
			e.Logger.Printf("consensus engine: submit to %s failed: %v", e.Dest.Name(), err)
			continue
		}
		metrics.MessagesRelayed.WithLabelValues("consensus", e.Source.Name(), e.Dest.Name()).Inc()

		e.recordClaim(ctx, gasUsed)
	}
}

func (e *ConsensusEngine) recordClaim(ctx context.Context, gasUsed uint64) {
	if e.Ledger == nil {
		return
	}
	np := e.Dest.NonceProvider()
	if np == nil {
		return
	}
	metrics.PendingNonce.WithLabelValues(e.Dest.Name()).Set(float64(np.Current()))
	if _, err := e.Ledger.RecordSubmission(ctx, e.Dest.StateMachineID(), np.Current(), gasUsed, nil); err != nil {
		e.Logger.Printf("consensus engine: record ledger claim for %s failed: %v", e.Dest.Name(), err)
	}
}

func (e *ConsensusEngine) reconnectOrWait(ctx context.Context) bool {
	reconnect := e.ReconnectFn
	if reconnect == nil {
		reconnect = func(ctx context.Context, chain, counterparty provider.Provider) error {
			return chain.Reconnect(ctx, counterparty)
		}
	}
	metrics.ReconnectAttempts.WithLabelValues(e.Source.Name()).Inc()
	if err := reconnect(ctx, e.Source, e.Dest); err != nil {
		e.Logger.Printf("consensus engine: reconnect failed for %s: %v", e.Source.Name(), err)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(5 * time.Second):
		}
	}
	return ctx.Err() == nil
}
