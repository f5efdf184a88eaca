package protocol

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openintent-hq/solver/pkg/chains"
)

// AdapterInfo is the per-destination record naming the contract responsible
// for fills on that chain. Read-only at runtime.
type AdapterInfo struct {
	DestinationChainID int64             `json:"destinationChainId"`
	Address            common.Address    `json:"address"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

// Registry resolves destination chain IDs to adapters for one protocol.
// Entries are validated at construction; Resolve never sees a malformed one.
type Registry struct {
	protocolName string
	adapters     map[int64]AdapterInfo
}

// NewRegistry validates the adapter table and builds a registry. Malformed
// entries are rejected here, at load time, not at use time.
func NewRegistry(protocolName string, entries []AdapterInfo) (*Registry, error) {
	if protocolName == "" {
		return nil, fmt.Errorf("protocol name must be provided")
	}

	adapters := make(map[int64]AdapterInfo, len(entries))
	for _, entry := range entries {
		if entry.Address == (common.Address{}) {
			return nil, fmt.Errorf("%s: adapter address must be provided for chain %d",
				protocolName, entry.DestinationChainID)
		}
		if !chains.IsSupported(entry.DestinationChainID) {
			return nil, fmt.Errorf("%s: unknown destination chain id %d",
				protocolName, entry.DestinationChainID)
		}
		if _, dup := adapters[entry.DestinationChainID]; dup {
			return nil, fmt.Errorf("%s: duplicate adapter for chain %d",
				protocolName, entry.DestinationChainID)
		}
		adapters[entry.DestinationChainID] = entry
	}

	return &Registry{protocolName: protocolName, adapters: adapters}, nil
}

// ProtocolName returns the protocol this registry belongs to.
func (r *Registry) ProtocolName() string {
	return r.protocolName
}

// Resolve returns the adapter for a destination chain, or ErrNoAdapter.
func (r *Registry) Resolve(destinationChainID int64) (AdapterInfo, error) {
	adapter, ok := r.adapters[destinationChainID]
	if !ok {
		return AdapterInfo{}, fmt.Errorf("%w: %d", ErrNoAdapter, destinationChainID)
	}
	return adapter, nil
}

// Chains lists every destination chain with a registered adapter.
func (r *Registry) Chains() []int64 {
	ids := make([]int64, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	return ids
}
