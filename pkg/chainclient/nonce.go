package chainclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// nonceSyncInterval is how long a cached pending nonce is trusted before
// re-reading it from the chain.
const nonceSyncInterval = 5 * time.Minute

// PendingNonceReader is the part of the RPC client the nonce manager needs.
type PendingNonceReader interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// txRecord tracks a submitted transaction by nonce.
type txRecord struct {
	hash      common.Hash
	createdAt time.Time
}

// NonceManager allocates and tracks nonces for a single signer on a single
// chain. It hands out sequential nonces, records which were attached to
// submitted transactions, and reclaims the slot when the lowest pending
// transaction fails before inclusion.
type NonceManager struct {
	mu sync.Mutex

	current  uint64
	lastSync time.Time
	pending  map[uint64]*txRecord
}

// NewNonceManager creates an empty nonce manager. The first Reserve call
// synchronizes with the chain.
func NewNonceManager() *NonceManager {
	return &NonceManager{
		pending: make(map[uint64]*txRecord),
	}
}

// Reserve allocates the next nonce, re-syncing with the chain when the
// cached value is stale.
func (nm *NonceManager) Reserve(ctx context.Context, client PendingNonceReader, address common.Address) (uint64, error) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if nm.lastSync.IsZero() || time.Since(nm.lastSync) > nonceSyncInterval {
		onchain, err := client.PendingNonceAt(ctx, address)
		if err != nil {
			return 0, fmt.Errorf("failed to get pending nonce: %v", err)
		}
		if onchain > nm.current {
			nm.current = onchain
		}
		nm.lastSync = time.Now()
	}

	nonce := nm.current
	nm.current++
	return nonce, nil
}

// Track records that a transaction carrying nonce was submitted.
func (nm *NonceManager) Track(nonce uint64, hash common.Hash) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	nm.pending[nonce] = &txRecord{hash: hash, createdAt: time.Now()}
}

// Confirmed removes a mined transaction from the pending set.
func (nm *NonceManager) Confirmed(nonce uint64) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	delete(nm.pending, nonce)
}

// Failed removes a failed transaction from the pending set. When the failed
// nonce is the lowest outstanding one its slot is reclaimed, so the next
// Reserve reuses it instead of leaving a gap.
func (nm *NonceManager) Failed(nonce uint64) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if nonce == nm.lowestPendingLocked() && nm.current > nonce {
		nm.current = nonce
	}
	delete(nm.pending, nonce)
}

// Release returns a reserved nonce that was never submitted. Only the slot
// directly below the allocation counter can be returned; anything else would
// reassign a nonce that may already be in flight.
func (nm *NonceManager) Release(nonce uint64) {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	if _, submitted := nm.pending[nonce]; submitted {
		return
	}
	if nonce == nm.current-1 {
		nm.current = nonce
	}
}

// PendingCount returns the number of submitted, not yet resolved
// transactions.
func (nm *NonceManager) PendingCount() int {
	nm.mu.Lock()
	defer nm.mu.Unlock()

	return len(nm.pending)
}

func (nm *NonceManager) lowestPendingLocked() uint64 {
	var lowest uint64
	found := false
	for nonce := range nm.pending {
		if !found || nonce < lowest {
			lowest = nonce
			found = true
		}
	}
	return lowest
}
