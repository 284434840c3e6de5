// Package reconnect implements exponential-backoff reconnection for a
// Provider whose transport has dropped, ported from
// original_source/primitives/src/lib.rs's
// reconnect_with_exponential_back_off.
package reconnect

import (
	"context"
	"fmt"
	"time"

	"github.com/certen/independant-validator/pkg/provider"
)

const maxBackoff = 512 * time.Second

// WithExponentialBackoff retries chain.Reconnect(counterparty) up to
// attempts times, doubling the delay between tries starting at one
// second and resetting to one second once the delay would exceed
// maxBackoff — the same schedule as the Rust original.
func WithExponentialBackoff(ctx context.Context, chain, counterparty provider.Provider, attempts uint32) error {
	backoff := time.Second
	for i := uint32(0); i < attempts; i++ {
		if err := chain.Reconnect(ctx, counterparty); err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		if backoff >= maxBackoff {
			backoff = time.Second
		} else {
			backoff *= 2
		}
	}
	return fmt.Errorf("reconnect: failed to reconnect %s after %d tries", chain.Name(), attempts)
}
