package pipeline

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openintent-hq/solver/pkg/filter"
	"github.com/openintent-hq/solver/pkg/logger"
	"github.com/openintent-hq/solver/pkg/models"
	"github.com/openintent-hq/solver/pkg/protocol"
	"github.com/openintent-hq/solver/pkg/rules"
)

var (
	testToken     = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	testSender    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testRecipient = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testAdapter   = common.HexToAddress("0x3333333333333333333333333333333333333333")
	testSigner    = common.HexToAddress("0x4444444444444444444444444444444444444444")
)

type fakeClient struct {
	chainID  int64
	balances map[common.Address]*big.Int
	native   *big.Int

	mu          sync.Mutex
	approvals   []common.Address
	invalidated []common.Address
	approveErr  error
}

func (f *fakeClient) ChainID() int64                { return f.chainID }
func (f *fakeClient) SignerAddress() common.Address { return testSigner }

func (f *fakeClient) TokenBalance(_ context.Context, token, _ common.Address) (*big.Int, error) {
	if bal, ok := f.balances[token]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (f *fakeClient) NativeBalance(_ context.Context, _ common.Address) (*big.Int, error) {
	if f.native == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(f.native), nil
}

func (f *fakeClient) Approve(_ context.Context, token, _ common.Address, _ *big.Int) error {
	if f.approveErr != nil {
		return f.approveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approvals = append(f.approvals, token)
	return nil
}

func (f *fakeClient) InvalidateAllowance(token, _ common.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, token)
}

func (f *fakeClient) Transactor(_ context.Context) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{From: testSigner}, nil
}

func (f *fakeClient) Backend() bind.ContractBackend { return nil }

func (f *fakeClient) ReleaseNonce(_ *bind.TransactOpts) {}

func (f *fakeClient) WaitMined(_ context.Context, _ *types.Transaction) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

type fakeProtocol struct {
	fillErr   error
	settleErr error
	filled    []string
	settled   []string
}

func (f *fakeProtocol) Name() string                                  { return "erc7683" }
func (f *fakeProtocol) DescribeOrigin(_ *models.Intent) []string      { return []string{"reward"} }
func (f *fakeProtocol) DescribeTarget(_ *models.Intent) []string      { return []string{"target"} }

func (f *fakeProtocol) Fill(_ context.Context, _ protocol.ChainClient, _ protocol.AdapterInfo, intent *models.Intent) error {
	if f.fillErr != nil {
		return f.fillErr
	}
	f.filled = append(f.filled, intent.ID)
	return nil
}

func (f *fakeProtocol) Settle(_ context.Context, _ protocol.ChainClient, intent *models.Intent) error {
	if f.settleErr != nil {
		return f.settleErr
	}
	f.settled = append(f.settled, intent.ID)
	return nil
}

type fakeRecorder struct {
	inserted  []models.OpenOrder
	statuses  map[string]models.OrderStatus
	insertErr error
}

func (f *fakeRecorder) InsertIfAbsent(_ context.Context, order models.OpenOrder) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, order)
	return nil
}

func (f *fakeRecorder) SetStatus(_ context.Context, orderID string, status models.OrderStatus) error {
	if f.statuses == nil {
		f.statuses = make(map[string]models.OrderStatus)
	}
	f.statuses[orderID] = status
	return nil
}

type harness struct {
	pipeline *Pipeline
	proto    *fakeProtocol
	recorder *fakeRecorder
	dest     *fakeClient
}

func newHarness(t *testing.T, destBalance int64) *harness {
	t.Helper()

	registry, err := protocol.NewRegistry("erc7683", []protocol.AdapterInfo{
		{DestinationChainID: 42161, Address: testAdapter},
	})
	require.NoError(t, err)

	origin := &fakeClient{chainID: 1}
	dest := &fakeClient{
		chainID:  42161,
		balances: map[common.Address]*big.Int{testToken: big.NewInt(destBalance)},
		native:   big.NewInt(1_000_000),
	}

	proto := &fakeProtocol{}
	recorder := &fakeRecorder{}

	p := New(Config{
		Protocol: proto,
		Registry: registry,
		Lists:    filter.AllowBlockLists{},
		Rules:    rules.NewEvaluator(),
		RuleCtx:  rules.NewContext(nil),
		Clients: map[int64]protocol.ChainClient{
			1:     origin,
			42161: dest,
		},
		Recorder: recorder,
		Logger:   &logger.EmptyLogger{},
	})

	return &harness{pipeline: p, proto: proto, recorder: recorder, dest: dest}
}

func sampleIntent() *models.Intent {
	return &models.Intent{
		ID:                 "0xintent1",
		Protocol:           "erc7683",
		OriginChainID:      1,
		DestinationChainID: 42161,
		Sender:             testSender,
		Recipient:          testRecipient,
		TargetLegs: []models.TokenAmount{
			{Token: testToken, Amount: big.NewInt(600)},
			{Token: testToken, Amount: big.NewInt(400)},
		},
		FillDeadline: time.Now().Add(time.Hour).Unix(),
	}
}

func TestProcessFillsAndSettles(t *testing.T) {
	h := newHarness(t, 1000)
	intent := sampleIntent()

	require.NoError(t, h.pipeline.Process(context.Background(), intent))

	assert.Equal(t, []string{"0xintent1"}, h.proto.filled)
	assert.Equal(t, []string{"0xintent1"}, h.proto.settled)
	require.Len(t, h.recorder.inserted, 1)
	assert.Equal(t, models.OrderStatusOpen, h.recorder.inserted[0].Status)
	assert.Equal(t, models.OrderStatusFiled, h.recorder.statuses["0xintent1"])
	// Legs in the same token are prepared with a single aggregate approval,
	// and the spent allowance is dropped once the fill lands.
	assert.Equal(t, []common.Address{testToken}, h.dest.approvals)
	assert.Equal(t, []common.Address{testToken}, h.dest.invalidated)
}

func TestProcessInsufficientBalance(t *testing.T) {
	h := newHarness(t, 400)
	intent := sampleIntent()

	err := h.pipeline.Process(context.Background(), intent)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientBalance))
	assert.Empty(t, h.proto.filled)
	// The order is still recorded so the expiry scanner can refund it.
	assert.Len(t, h.recorder.inserted, 1)
}

func TestProcessApprovalFailure(t *testing.T) {
	h := newHarness(t, 1000)
	h.dest.approveErr = errors.New("approval reverted")
	intent := sampleIntent()

	err := h.pipeline.Process(context.Background(), intent)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrApprovalFailed))
	assert.Empty(t, h.proto.filled)
}

func TestProcessNoAdapter(t *testing.T) {
	h := newHarness(t, 1000)
	intent := sampleIntent()
	intent.DestinationChainID = 8453

	err := h.pipeline.Process(context.Background(), intent)
	require.Error(t, err)
	assert.True(t, errors.Is(err, protocol.ErrNoAdapter))
}

func TestProcessSameChainRejected(t *testing.T) {
	h := newHarness(t, 1000)
	intent := sampleIntent()
	intent.DestinationChainID = intent.OriginChainID

	err := h.pipeline.Process(context.Background(), intent)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedChain))
	assert.Empty(t, h.recorder.inserted)
}

func TestProcessExpiredDeadline(t *testing.T) {
	h := newHarness(t, 1000)
	intent := sampleIntent()
	intent.FillDeadline = time.Now().Add(-time.Minute).Unix()

	err := h.pipeline.Process(context.Background(), intent)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExpired))
}

func TestProcessBlockedSender(t *testing.T) {
	h := newHarness(t, 1000)
	h.pipeline.lists = filter.AllowBlockLists{
		BlockList: []filter.ListItem{{
			SenderAddress:     []string{testSender.Hex()},
			DestinationDomain: []string{"*"},
			RecipientAddress:  []string{"*"},
		}},
	}

	err := h.pipeline.Process(context.Background(), sampleIntent())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFilteredOut))
	// A rejected intent must never reach the open-order store.
	assert.Empty(t, h.recorder.inserted)
	assert.Empty(t, h.proto.filled)
}

func TestProcessRuleRejection(t *testing.T) {
	h := newHarness(t, 1000)
	h.pipeline.rules = rules.NewEvaluator(
		func(_ context.Context, _ *models.Intent, _ *rules.Context) rules.Result {
			return rules.Fail("reward below minimum")
		},
	)

	err := h.pipeline.Process(context.Background(), sampleIntent())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRuleRejected))
	assert.Contains(t, err.Error(), "reward below minimum")
}

func TestProcessFillSubmitFailure(t *testing.T) {
	h := newHarness(t, 1000)
	h.proto.fillErr = protocol.ErrSubmitFailed

	err := h.pipeline.Process(context.Background(), sampleIntent())
	require.Error(t, err)
	assert.True(t, errors.Is(err, protocol.ErrSubmitFailed))
	assert.Empty(t, h.proto.settled)
	// Not marked filled; the order remains OPEN for the expiry scanner.
	assert.NotContains(t, h.recorder.statuses, "0xintent1")
	// Nothing was spent, so the cached allowance stays valid.
	assert.Empty(t, h.dest.invalidated)
}

func TestProcessSettleFailureKeepsFill(t *testing.T) {
	h := newHarness(t, 1000)
	h.proto.settleErr = errors.New("settle reverted")

	err := h.pipeline.Process(context.Background(), sampleIntent())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSettlementFailed))
	// The fill stands and the order is still marked filled.
	assert.Equal(t, models.OrderStatusFiled, h.recorder.statuses["0xintent1"])
}

func TestProcessNativeLegSkipsApproval(t *testing.T) {
	h := newHarness(t, 1000)
	intent := sampleIntent()
	intent.TargetLegs = []models.TokenAmount{
		{Token: common.Address{}, Amount: big.NewInt(500)},
	}

	require.NoError(t, h.pipeline.Process(context.Background(), intent))
	assert.Empty(t, h.dest.approvals)
	assert.Empty(t, h.dest.invalidated)
	assert.Equal(t, []string{"0xintent1"}, h.proto.filled)
}
