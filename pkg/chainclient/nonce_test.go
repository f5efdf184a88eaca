package chainclient

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNonceReader struct {
	nonce uint64
	err   error
	calls int
}

func (f *fakeNonceReader) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	f.calls++
	return f.nonce, f.err
}

func TestReserveSequential(t *testing.T) {
	nm := NewNonceManager()
	reader := &fakeNonceReader{nonce: 7}
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")

	first, err := nm.Reserve(context.Background(), reader, addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), first)

	second, err := nm.Reserve(context.Background(), reader, addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), second)

	// Second reservation uses the cached counter.
	assert.Equal(t, 1, reader.calls)
}

func TestReserveSyncError(t *testing.T) {
	nm := NewNonceManager()
	reader := &fakeNonceReader{err: errors.New("rpc down")}

	_, err := nm.Reserve(context.Background(), reader, common.Address{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get pending nonce")
}

func TestFailedReclaimsLowestPending(t *testing.T) {
	nm := NewNonceManager()
	reader := &fakeNonceReader{nonce: 10}
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")

	n1, err := nm.Reserve(context.Background(), reader, addr)
	require.NoError(t, err)
	n2, err := nm.Reserve(context.Background(), reader, addr)
	require.NoError(t, err)

	nm.Track(n1, common.HexToHash("0xaa"))
	nm.Track(n2, common.HexToHash("0xbb"))
	assert.Equal(t, 2, nm.PendingCount())

	// n2 fails while n1 is still in flight: the slot cannot be reclaimed.
	nm.Failed(n2)
	n3, err := nm.Reserve(context.Background(), reader, addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), n3)

	// n1 fails with nothing below it pending: its slot is reclaimed.
	nm.Failed(n1)
	n4, err := nm.Reserve(context.Background(), reader, addr)
	require.NoError(t, err)
	assert.Equal(t, n1, n4)
}

func TestConfirmedClearsPending(t *testing.T) {
	nm := NewNonceManager()
	reader := &fakeNonceReader{nonce: 3}

	n, err := nm.Reserve(context.Background(), reader, common.Address{})
	require.NoError(t, err)
	nm.Track(n, common.HexToHash("0xcc"))
	require.Equal(t, 1, nm.PendingCount())

	nm.Confirmed(n)
	assert.Equal(t, 0, nm.PendingCount())

	next, err := nm.Reserve(context.Background(), reader, common.Address{})
	require.NoError(t, err)
	assert.Equal(t, n+1, next)
}

func TestReleaseUnsubmitted(t *testing.T) {
	nm := NewNonceManager()
	reader := &fakeNonceReader{nonce: 5}

	n, err := nm.Reserve(context.Background(), reader, common.Address{})
	require.NoError(t, err)

	// Never submitted: the nonce goes straight back.
	nm.Release(n)
	again, err := nm.Reserve(context.Background(), reader, common.Address{})
	require.NoError(t, err)
	assert.Equal(t, n, again)

	// Submitted nonces are not releasable.
	nm.Track(again, common.HexToHash("0xdd"))
	nm.Release(again)
	next, err := nm.Reserve(context.Background(), reader, common.Address{})
	require.NoError(t, err)
	assert.Equal(t, again+1, next)
}
