package provider

import (
	"sort"
	"sync"
	"testing"
)

func TestNonceProviderMonotonicityUnderConcurrency(t *testing.T) {
	const initial = 100
	const callers = 50

	n := NewNonceProvider(initial)
	results := make([]uint64, callers)

	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		i := i
		go func() {
			defer wg.Done()
			results[i] = n.GetNonce()
		}()
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	for i, v := range results {
		want := uint64(initial + i)
		if v != want {
			t.Fatalf("nonce multiset mismatch at index %d: got %d want %d (full=%v)", i, v, want, results)
		}
	}
}
