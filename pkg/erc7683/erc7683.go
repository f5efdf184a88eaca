// Package erc7683 implements the ERC-7683 settler integration: the fill and
// settle calls used by the fulfillment pipeline and the refund gateway used
// by the expiry scanner.
package erc7683

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/openintent-hq/solver/pkg/chains"
	"github.com/openintent-hq/solver/pkg/contracts"
	"github.com/openintent-hq/solver/pkg/logger"
	"github.com/openintent-hq/solver/pkg/models"
	"github.com/openintent-hq/solver/pkg/protocol"
)

// ProtocolName identifies this integration in adapter tables and logs.
const ProtocolName = "erc7683"

// OrderDataTypeHash is the EIP-712 type hash carried in refund calldata.
var OrderDataTypeHash = common.HexToHash("0x08d75650babf4de09c9273d48ef647876057ed91d4323f8a2e3ebc2cd8a63b5e")

// fillConfirmationTimeout bounds the wait for a submitted fill to be mined.
// Past it the transaction may still land, so the fill is never resubmitted.
const fillConfirmationTimeout = 5 * time.Minute

// Protocol is the ERC-7683 implementation of the protocol interface.
type Protocol struct {
	registry *protocol.Registry
	logger   logger.Logger
}

var _ protocol.Protocol = (*Protocol)(nil)

// New creates the ERC-7683 protocol over an adapter registry. The registry
// must also carry the origin-chain settlers used for settlement.
func New(registry *protocol.Registry, log logger.Logger) *Protocol {
	return &Protocol{registry: registry, logger: log}
}

// Name returns the protocol identifier.
func (p *Protocol) Name() string {
	return ProtocolName
}

// DescribeOrigin summarizes the reward legs for lifecycle logging.
func (p *Protocol) DescribeOrigin(intent *models.Intent) []string {
	return describeLegs(intent.RewardLegs, intent.OriginChainID)
}

// DescribeTarget summarizes the target legs for lifecycle logging.
func (p *Protocol) DescribeTarget(intent *models.Intent) []string {
	return describeLegs(intent.TargetLegs, intent.DestinationChainID)
}

func describeLegs(legs []models.TokenAmount, chainID int64) []string {
	lines := make([]string, 0, len(legs))
	for _, leg := range legs {
		asset := leg.Token.Hex()
		if leg.IsNative() {
			asset = "native"
		}
		lines = append(lines, fmt.Sprintf("%s %s on %s",
			leg.Amount.String(), asset, chains.GetChainName(chainID)))
	}
	return lines
}

// Fill submits the fulfillment transaction to the destination settler and
// waits for inclusion. The transaction value covers native target legs plus
// the settler's quoted cross-chain message fee.
func (p *Protocol) Fill(ctx context.Context, dest protocol.ChainClient, adapter protocol.AdapterInfo, intent *models.Intent) error {
	settler, err := contracts.NewSettler(adapter.Address, dest.Backend())
	if err != nil {
		return fmt.Errorf("failed to bind settler %s: %v", adapter.Address.Hex(), err)
	}

	fee, err := settler.QuoteGasPayment(&bind.CallOpts{Context: ctx}, uint32(intent.OriginChainID))
	if err != nil {
		return fmt.Errorf("failed to quote gas payment: %v", err)
	}

	value := new(big.Int).Set(fee)
	for _, leg := range intent.TargetLegs {
		if leg.IsNative() {
			value.Add(value, leg.Amount)
		}
	}

	opts, err := dest.Transactor(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrSubmitFailed, err)
	}
	opts.Value = value

	orderID := common.HexToHash(intent.ID)
	fillerData := common.LeftPadBytes(dest.SignerAddress().Bytes(), 32)

	tx, err := settler.Fill(opts, orderID, intent.OrderData, fillerData)
	if err != nil {
		dest.ReleaseNonce(opts)
		return fmt.Errorf("%w: %v", protocol.ErrSubmitFailed, err)
	}

	p.logger.InfoWithChain(intent.DestinationChainID,
		"Fill transaction sent for intent %s: %s", intent.ID, tx.Hash().Hex())

	waitCtx, cancel := context.WithTimeout(ctx, fillConfirmationTimeout)
	defer cancel()

	if _, err := dest.WaitMined(waitCtx, tx); err != nil {
		if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: tx %s", protocol.ErrConfirmationTimeout, tx.Hash().Hex())
		}
		return fmt.Errorf("fill transaction failed: %v", err)
	}
	return nil
}

// Settle claims the filler's reward by calling settle on the origin-chain
// settler, paying the quoted message fee for the destination domain.
func (p *Protocol) Settle(ctx context.Context, origin protocol.ChainClient, intent *models.Intent) error {
	adapter, err := p.registry.Resolve(intent.OriginChainID)
	if err != nil {
		return fmt.Errorf("no settler on origin chain %d: %v", intent.OriginChainID, err)
	}

	settler, err := contracts.NewSettler(adapter.Address, origin.Backend())
	if err != nil {
		return fmt.Errorf("failed to bind settler %s: %v", adapter.Address.Hex(), err)
	}

	fee, err := settler.QuoteGasPayment(&bind.CallOpts{Context: ctx}, uint32(intent.DestinationChainID))
	if err != nil {
		return fmt.Errorf("failed to quote settlement fee: %v", err)
	}

	opts, err := origin.Transactor(ctx)
	if err != nil {
		return err
	}
	opts.Value = fee

	tx, err := settler.Settle(opts, [][32]byte{common.HexToHash(intent.ID)})
	if err != nil {
		origin.ReleaseNonce(opts)
		return fmt.Errorf("failed to submit settlement: %v", err)
	}

	if _, err := origin.WaitMined(ctx, tx); err != nil {
		return fmt.Errorf("settlement not confirmed: %v", err)
	}
	return nil
}
