// Package chainclient provides the per-chain RPC client the solver uses to
// read state, sign and submit transactions. One Client is created per
// configured chain and owns that chain's signer, nonce state and allowance
// cache.
package chainclient

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/params"

	"github.com/openintent-hq/solver/pkg/contracts"
	"github.com/openintent-hq/solver/pkg/logger"
	"github.com/openintent-hq/solver/pkg/metrics"
)

const (
	// defaultGasMultiplier adds a 10% buffer on suggested gas prices.
	defaultGasMultiplier = 1.1

	// rpcCallTimeout bounds individual read calls.
	rpcCallTimeout = 10 * time.Second
)

// Client contains the connection and signing state for one blockchain.
type Client struct {
	chainID int64
	rpcURL  string

	eth  *ethclient.Client
	auth *bind.TransactOpts

	// MaxGasPrice caps the effective gas price; transactions are not sent
	// when the multiplied suggestion exceeds it.
	MaxGasPrice   *big.Int
	GasMultiplier float64

	nonces     *NonceManager
	allowances *allowanceCache
	logger     logger.Logger
}

// New dials the RPC endpoint and prepares the signer for the chain.
func New(ctx context.Context, chainID int64, rpcURL, privateKey string, log logger.Logger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chain %d: %v", chainID, err)
	}

	c := &Client{
		chainID:       chainID,
		rpcURL:        rpcURL,
		eth:           eth,
		GasMultiplier: defaultGasMultiplier,
		nonces:        NewNonceManager(),
		allowances:    newAllowanceCache(),
		logger:        log,
	}

	if privateKey != "" {
		auth, err := createAuthenticator(ctx, eth, privateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create authenticator for chain %d: %v", chainID, err)
		}
		c.auth = auth
	}

	return c, nil
}

// ChainID returns the chain this client is connected to.
func (c *Client) ChainID() int64 {
	return c.chainID
}

// RPCURL returns the configured endpoint, for the status surface.
func (c *Client) RPCURL() string {
	return c.rpcURL
}

// SignerAddress returns the filler's address on this chain.
func (c *Client) SignerAddress() common.Address {
	if c.auth == nil {
		return common.Address{}
	}
	return c.auth.From
}

// Backend exposes the underlying client for contract bindings.
func (c *Client) Backend() bind.ContractBackend {
	return c.eth
}

// Connected reports whether the RPC connection was established.
func (c *Client) Connected() bool {
	return c.eth != nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	if c.eth != nil {
		c.eth.Close()
	}
}

// TokenBalance reads the ERC20 balance of owner.
func (c *Client) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	erc20, err := contracts.NewERC20(token, c.eth)
	if err != nil {
		return nil, fmt.Errorf("failed to bind token %s: %v", token.Hex(), err)
	}

	callCtx, cancel := context.WithTimeout(ctx, rpcCallTimeout)
	defer cancel()

	return erc20.BalanceOf(&bind.CallOpts{Context: callCtx}, owner)
}

// NativeBalance reads the gas-token balance of owner.
func (c *Client) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	callCtx, cancel := context.WithTimeout(ctx, rpcCallTimeout)
	defer cancel()

	return c.eth.BalanceAt(callCtx, owner, nil)
}

// LatestBlockNumber gets the latest block number from the chain.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

// LatestBlockTimestamp reads the timestamp of the chain's latest block.
func (c *Client) LatestBlockTimestamp(ctx context.Context) (int64, error) {
	callCtx, cancel := context.WithTimeout(ctx, rpcCallTimeout)
	defer cancel()

	header, err := c.eth.HeaderByNumber(callCtx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to read latest header on chain %d: %v", c.chainID, err)
	}
	return int64(header.Time), nil
}

// EffectiveGasPrice returns the network's suggested gas price with the
// multiplier applied, without mutating signer state.
func (c *Client) EffectiveGasPrice(ctx context.Context) (*big.Int, error) {
	callCtx, cancel := context.WithTimeout(ctx, rpcCallTimeout)
	defer cancel()

	gasPrice, err := c.eth.SuggestGasPrice(callCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %v", err)
	}

	multiplied := new(big.Float).Mul(
		new(big.Float).SetInt(gasPrice),
		big.NewFloat(c.GasMultiplier),
	)
	final := new(big.Int)
	multiplied.Int(final)

	gwei, _ := new(big.Float).Quo(
		new(big.Float).SetInt(final),
		big.NewFloat(params.GWei),
	).Float64()
	metrics.GasPrice.WithLabelValues(strconv.FormatInt(c.chainID, 10)).Set(gwei)

	return final, nil
}

// IsWithinMax reports whether a gas price respects the configured ceiling.
func (c *Client) IsWithinMax(gasPrice *big.Int) bool {
	if c.MaxGasPrice == nil || c.MaxGasPrice.Sign() == 0 {
		return true
	}
	return gasPrice.Cmp(c.MaxGasPrice) <= 0
}

// Transactor returns signing options with a reserved nonce and the current
// effective gas price. Callers that fail to submit must call ReleaseNonce.
func (c *Client) Transactor(ctx context.Context) (*bind.TransactOpts, error) {
	if c.auth == nil {
		return nil, fmt.Errorf("no signer configured for chain %d", c.chainID)
	}

	gasPrice, err := c.EffectiveGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	if !c.IsWithinMax(gasPrice) {
		return nil, fmt.Errorf("gas price %s exceeds maximum %s on chain %d",
			gasPrice.String(), c.MaxGasPrice.String(), c.chainID)
	}

	nonce, err := c.nonces.Reserve(ctx, c.eth, c.auth.From)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve nonce on chain %d: %v", c.chainID, err)
	}

	opts := *c.auth
	opts.Context = ctx
	opts.Nonce = new(big.Int).SetUint64(nonce)
	opts.GasPrice = gasPrice
	return &opts, nil
}

// ReleaseNonce returns a reserved nonce that was never attached to a
// submitted transaction.
func (c *Client) ReleaseNonce(opts *bind.TransactOpts) {
	if opts != nil && opts.Nonce != nil {
		c.nonces.Release(opts.Nonce.Uint64())
	}
}

// WaitMined blocks until the transaction is mined or ctx expires, and
// updates nonce bookkeeping accordingly. A receipt with status 0 is
// reported as an error.
func (c *Client) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	c.nonces.Track(tx.Nonce(), tx.Hash())

	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		c.nonces.Failed(tx.Nonce())
		return nil, err
	}
	if receipt.Status == types.ReceiptStatusFailed {
		c.nonces.Failed(tx.Nonce())
		return receipt, fmt.Errorf("transaction %s reverted on chain %d", tx.Hash().Hex(), c.chainID)
	}

	c.nonces.Confirmed(tx.Nonce())
	return receipt, nil
}

// Approve grants spender an ERC20 allowance of exactly amount and waits
// for inclusion. Approvals are skipped when a cached or on-chain allowance
// already covers the amount.
func (c *Client) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) error {
	owner := c.SignerAddress()

	if c.allowances.covers(token, spender, amount) {
		c.logger.DebugWithChain(c.chainID, "Using cached allowance for token %s", token.Hex())
		return nil
	}

	erc20, err := contracts.NewERC20(token, c.eth)
	if err != nil {
		return fmt.Errorf("failed to bind token %s: %v", token.Hex(), err)
	}

	allowance, err := erc20.Allowance(&bind.CallOpts{Context: ctx}, owner, spender)
	if err != nil {
		return fmt.Errorf("failed to check allowance: %v", err)
	}
	if allowance.Cmp(amount) >= 0 {
		c.allowances.put(token, spender, allowance)
		return nil
	}

	opts, err := c.Transactor(ctx)
	if err != nil {
		return err
	}

	tx, err := erc20.Approve(opts, spender, amount)
	if err != nil {
		c.ReleaseNonce(opts)
		return fmt.Errorf("failed to send approval: %v", err)
	}

	c.logger.DebugWithChain(c.chainID, "Approval transaction sent: %s (token: %s, spender: %s)",
		tx.Hash().Hex(), token.Hex(), spender.Hex())

	if _, err := c.WaitMined(ctx, tx); err != nil {
		return fmt.Errorf("approval not confirmed: %v", err)
	}

	c.allowances.put(token, spender, amount)
	return nil
}

// InvalidateAllowance drops the cached allowance for (token, spender).
// Approvals grant exactly the amount a fill spends, so a cached entry is
// stale the moment the fill lands.
func (c *Client) InvalidateAllowance(token, spender common.Address) {
	c.allowances.invalidate(token, spender)
}

// EstimateGasWithMargin estimates gas for a call and applies a percentage
// headroom, clamped by cap when cap is non-zero.
func (c *Client) EstimateGasWithMargin(ctx context.Context, msg ethereum.CallMsg, marginPercent uint64, cap uint64) (uint64, error) {
	callCtx, cancel := context.WithTimeout(ctx, rpcCallTimeout)
	defer cancel()

	estimate, err := c.eth.EstimateGas(callCtx, msg)
	if err != nil {
		return 0, fmt.Errorf("gas estimation failed on chain %d: %v", c.chainID, err)
	}

	limit := estimate * (100 + marginPercent) / 100
	if cap > 0 && limit > cap {
		limit = cap
	}
	return limit, nil
}

// Helper function to create authenticator
func createAuthenticator(ctx context.Context, client *ethclient.Client, privateKeyHex string) (*bind.TransactOpts, error) {
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %v", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %v", err)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(privateKey, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %v", err)
	}

	return auth, nil
}
