// Package metrics exposes the Prometheus counters and gauges the
// Consensus and Messaging Relay Engines instrument themselves with,
// grounded on the way the teacher's pkg/server wires
// prometheus/client_golang collectors into its HTTP mux.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesRelayed counts messages successfully submitted to a
	// destination, labeled by engine ("consensus"|"messaging"), source
	// chain, and destination chain.
	MessagesRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relayer_messages_relayed_total",
		Help: "Messages successfully submitted to a destination chain.",
	}, []string{"engine", "source", "dest"})

	// SubmitErrors counts Provider.Submit failures, labeled the same way.
	SubmitErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relayer_submit_errors_total",
		Help: "Provider.Submit failures.",
	}, []string{"engine", "source", "dest"})

	// EncodeErrors counts messages dropped by the skip-and-continue
	// decode-error policy, labeled by engine ("consensus"|"messaging").
	EncodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relayer_encode_errors_total",
		Help: "Messages dropped because they failed to encode.",
	}, []string{"engine"})

	// ReconnectAttempts counts exponential-backoff reconnect attempts.
	ReconnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relayer_reconnect_attempts_total",
		Help: "Reconnection Supervisor attempts, per chain.",
	}, []string{"chain"})

	// PendingNonce tracks each Provider's last-allocated nonce, labeled
	// by chain name.
	PendingNonce = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relayer_pending_nonce",
		Help: "Last nonce allocated by a Provider's NonceProvider.",
	}, []string{"chain"})
)
