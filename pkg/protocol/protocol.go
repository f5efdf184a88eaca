// Package protocol defines the contract between the shared orchestration
// core and each intent protocol integration. The pipeline depends only on
// the interfaces here, never on a concrete protocol.
package protocol

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/openintent-hq/solver/pkg/models"
)

var (
	// ErrNoAdapter is returned when an intent targets a destination chain
	// with no registered adapter.
	ErrNoAdapter = errors.New("no adapter registered for destination chain")

	// ErrSubmitFailed marks a fill whose transaction was never accepted by
	// the node; nothing was committed and the intent may be re-observed.
	ErrSubmitFailed = errors.New("fill submission failed")

	// ErrConfirmationTimeout marks a fill that was submitted but not seen
	// mined in time. The transaction may still land; callers must not
	// resubmit, that would risk a double fill.
	ErrConfirmationTimeout = errors.New("fill confirmation timed out")
)

// ChainClient is the per-chain capability surface a protocol integration
// uses to read state and move funds.
type ChainClient interface {
	ChainID() int64
	SignerAddress() common.Address

	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)

	// Approve grants the spender an ERC20 allowance of exactly amount and
	// waits for the approval to be mined.
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) error

	// InvalidateAllowance drops any cached allowance for (token, spender).
	// Callers invoke it once a fill has spent the approval.
	InvalidateAllowance(token, spender common.Address)

	// Transactor returns fresh signing options with a reserved nonce and a
	// current gas price.
	Transactor(ctx context.Context) (*bind.TransactOpts, error)

	// ReleaseNonce returns a reserved nonce after a failed submission so the
	// slot is not burned.
	ReleaseNonce(opts *bind.TransactOpts)

	// Backend exposes the raw bound-contract backend for protocol bindings.
	Backend() bind.ContractBackend

	// WaitMined blocks until the transaction is mined or ctx expires.
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// Protocol is implemented once per intent protocol variant.
type Protocol interface {
	Name() string

	// DescribeOrigin and DescribeTarget return human-readable summaries of
	// the reward and target legs for lifecycle log lines.
	DescribeOrigin(intent *models.Intent) []string
	DescribeTarget(intent *models.Intent) []string

	// Fill quotes any protocol fee, submits the fulfillment transaction to
	// the destination adapter and waits for inclusion. Submission and
	// confirmation failures are reported as ErrSubmitFailed and
	// ErrConfirmationTimeout respectively.
	Fill(ctx context.Context, dest ChainClient, adapter AdapterInfo, intent *models.Intent) error

	// Settle claims the reward owed to the filler on the origin chain after
	// a confirmed fill.
	Settle(ctx context.Context, origin ChainClient, intent *models.Intent) error
}
