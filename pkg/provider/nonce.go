package provider

import "sync"

// NonceProvider serializes transaction nonce issuance for one signer.
// Ported from original_source/primitives/src/lib.rs's NonceProvider
// (Arc<Mutex<u64>>, get-then-post-increment), using sync.Mutex the
// way the teacher's pkg/consensus already guards shared counters.
//
// Shared by reference between any number of submission tasks
// targeting the same signer (spec.md §4.3, §9). Hold time under the
// lock is a single increment — no I/O is ever performed while held.
type NonceProvider struct {
	mu    sync.Mutex
	nonce uint64
}

// NewNonceProvider constructs a NonceProvider seeded at the given
// initial value, as returned by Provider.InitializeNonce querying the
// chain's current nonce for this signer.
func NewNonceProvider(initial uint64) *NonceProvider {
	return &NonceProvider{nonce: initial}
}

// GetNonce returns the current value and atomically post-increments
// it. Concurrent callers observe a total order consistent with the
// order in which their GetNonce calls completed (spec.md §8 nonce
// monotonicity: the returned multiset across n calls is exactly
// {initial, initial+1, …, initial+n-1}).
func (n *NonceProvider) GetNonce() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	nonce := n.nonce
	n.nonce = nonce + 1
	return nonce
}

// Current returns the next value that will be issued, without
// consuming it. Intended for diagnostics/metrics only.
func (n *NonceProvider) Current() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.nonce
}
