package chainclient

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// allowanceExpiry bounds how long a cached allowance is trusted before the
// chain is consulted again.
const allowanceExpiry = 10 * time.Minute

type allowanceKey struct {
	token   common.Address
	spender common.Address
}

type allowanceEntry struct {
	amount    *big.Int
	updatedAt time.Time
}

// allowanceCache remembers recently confirmed ERC20 allowances so repeated
// fills of the same token do not re-check or re-approve every time.
type allowanceCache struct {
	mu      sync.RWMutex
	entries map[allowanceKey]*allowanceEntry
}

func newAllowanceCache() *allowanceCache {
	return &allowanceCache{
		entries: make(map[allowanceKey]*allowanceEntry),
	}
}

// covers reports whether a fresh cached allowance is at least amount.
func (c *allowanceCache) covers(token, spender common.Address, amount *big.Int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[allowanceKey{token: token, spender: spender}]
	if !ok {
		return false
	}
	if time.Since(entry.updatedAt) > allowanceExpiry {
		return false
	}
	return entry.amount.Cmp(amount) >= 0
}

// put records a confirmed allowance.
func (c *allowanceCache) put(token, spender common.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[allowanceKey{token: token, spender: spender}] = &allowanceEntry{
		amount:    new(big.Int).Set(amount),
		updatedAt: time.Now(),
	}
}

// invalidate drops a cached allowance, e.g. after a spend consumed it.
func (c *allowanceCache) invalidate(token, spender common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, allowanceKey{token: token, spender: spender})
}
