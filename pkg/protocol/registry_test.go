package protocol

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEntry(chainID int64) AdapterInfo {
	return AdapterInfo{
		DestinationChainID: chainID,
		Address:            common.HexToAddress("0x4444444444444444444444444444444444444444"),
	}
}

func TestNewRegistryValidation(t *testing.T) {
	tests := []struct {
		name    string
		proto   string
		entries []AdapterInfo
		wantErr string
	}{
		{
			name:    "empty protocol name",
			proto:   "",
			entries: []AdapterInfo{validEntry(1)},
			wantErr: "protocol name",
		},
		{
			name:    "zero adapter address",
			proto:   "erc7683",
			entries: []AdapterInfo{{DestinationChainID: 1}},
			wantErr: "adapter address",
		},
		{
			name:    "unknown chain id",
			proto:   "erc7683",
			entries: []AdapterInfo{validEntry(999999)},
			wantErr: "unknown destination chain",
		},
		{
			name:    "duplicate chain id",
			proto:   "erc7683",
			entries: []AdapterInfo{validEntry(1), validEntry(1)},
			wantErr: "duplicate adapter",
		},
		{
			name:    "valid table",
			proto:   "erc7683",
			entries: []AdapterInfo{validEntry(1), validEntry(42161)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry, err := NewRegistry(tt.proto, tt.entries)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Len(t, registry.Chains(), len(tt.entries))
		})
	}
}

func TestResolve(t *testing.T) {
	registry, err := NewRegistry("erc7683", []AdapterInfo{validEntry(42161)})
	require.NoError(t, err)

	adapter, err := registry.Resolve(42161)
	require.NoError(t, err)
	assert.Equal(t, int64(42161), adapter.DestinationChainID)

	_, err = registry.Resolve(8453)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoAdapter))
}
