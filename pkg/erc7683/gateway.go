package erc7683

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/openintent-hq/solver/pkg/chains"
	"github.com/openintent-hq/solver/pkg/contracts"
	"github.com/openintent-hq/solver/pkg/logger"
	"github.com/openintent-hq/solver/pkg/models"
	"github.com/openintent-hq/solver/pkg/protocol"
)

// refundGasMarginPercent is the headroom applied over the gas estimate of a
// refund transaction.
const refundGasMarginPercent = 10

// OrderState is the interpreted on-chain status of an order.
type OrderState int

const (
	// StateUnknown means the settler has no record of a fill or refund; the
	// order is still refundable.
	StateUnknown OrderState = iota
	// StateFilled means someone already delivered the order's value.
	StateFilled
	// StateRefunded means the deposit was already returned to the sponsor.
	StateRefunded
)

// interpretStatus maps the settler's raw status word to an order state. Any
// unrecognized non-zero word is treated as filled: acting on it with a
// refund could double-pay.
func interpretStatus(word [32]byte) OrderState {
	switch word {
	case contracts.OrderUnknown:
		return StateUnknown
	case contracts.OrderRefunded:
		return StateRefunded
	default:
		return StateFilled
	}
}

// RefundClient is the chain access the gateway needs on each destination.
type RefundClient interface {
	protocol.ChainClient
	LatestBlockTimestamp(ctx context.Context) (int64, error)
	EstimateGasWithMargin(ctx context.Context, msg ethereum.CallMsg, marginPercent uint64, cap uint64) (uint64, error)
}

// Gateway performs the on-chain half of the expiry scanner's work against
// ERC-7683 settlers: status reads and refund submission.
type Gateway struct {
	clients map[int64]RefundClient
	logger  logger.Logger
}

// NewGateway builds a gateway over the configured destination chains.
func NewGateway(clients map[int64]RefundClient, log logger.Logger) *Gateway {
	return &Gateway{clients: clients, logger: log}
}

func (g *Gateway) client(chainID int64) (RefundClient, error) {
	client, ok := g.clients[chainID]
	if !ok {
		return nil, fmt.Errorf("no client configured for chain %d", chainID)
	}
	return client, nil
}

// LatestBlockTimestamp reads the chain's current block time, used to
// re-check expiry against on-chain time rather than local clocks.
func (g *Gateway) LatestBlockTimestamp(ctx context.Context, chainID int64) (int64, error) {
	client, err := g.client(chainID)
	if err != nil {
		return 0, err
	}
	return client.LatestBlockTimestamp(ctx)
}

// OrderStatus reads the authoritative order state from the destination
// settler.
func (g *Gateway) OrderStatus(ctx context.Context, order models.OpenOrder) (OrderState, error) {
	client, err := g.client(order.DestinationChainID)
	if err != nil {
		return StateUnknown, err
	}

	settler, err := contracts.NewSettler(common.HexToAddress(order.DestinationSettler), client.Backend())
	if err != nil {
		return StateUnknown, fmt.Errorf("failed to bind settler %s: %v", order.DestinationSettler, err)
	}

	word, err := settler.OrderStatus(&bind.CallOpts{Context: ctx}, common.HexToHash(order.OrderID))
	if err != nil {
		return StateUnknown, fmt.Errorf("failed to read status of order %s: %v", order.OrderID, err)
	}
	return interpretStatus(word), nil
}

// Refund submits the refund transaction for one expired order and waits for
// confirmation. The transaction value is the settler's quoted message fee
// for notifying the origin chain.
func (g *Gateway) Refund(ctx context.Context, order models.OpenOrder) error {
	client, err := g.client(order.DestinationChainID)
	if err != nil {
		return err
	}

	settlerAddr := common.HexToAddress(order.DestinationSettler)
	settler, err := contracts.NewSettler(settlerAddr, client.Backend())
	if err != nil {
		return fmt.Errorf("failed to bind settler %s: %v", order.DestinationSettler, err)
	}

	fee, err := settler.QuoteGasPayment(&bind.CallOpts{Context: ctx}, uint32(order.OriginChainID))
	if err != nil {
		return fmt.Errorf("failed to quote refund fee for order %s: %v", order.OrderID, err)
	}

	onchainOrders := []contracts.OnchainCrossChainOrder{{
		FillDeadline:  uint32(order.FillDeadline),
		OrderDataType: OrderDataTypeHash,
		OrderData:     order.OrderData,
	}}

	calldata, err := contracts.RefundABIPack(onchainOrders)
	if err != nil {
		return fmt.Errorf("failed to pack refund calldata: %v", err)
	}

	gasLimit, err := client.EstimateGasWithMargin(ctx, ethereum.CallMsg{
		From:  client.SignerAddress(),
		To:    &settlerAddr,
		Value: fee,
		Data:  calldata,
	}, refundGasMarginPercent, chains.RefundGasLimitCap[order.DestinationChainID])
	if err != nil {
		return fmt.Errorf("failed to estimate refund gas for order %s: %v", order.OrderID, err)
	}

	opts, err := client.Transactor(ctx)
	if err != nil {
		return err
	}
	opts.Value = fee
	opts.GasLimit = gasLimit

	tx, err := settler.Refund(opts, onchainOrders)
	if err != nil {
		client.ReleaseNonce(opts)
		return fmt.Errorf("failed to submit refund for order %s: %v", order.OrderID, err)
	}

	g.logger.InfoWithChain(order.DestinationChainID,
		"Refund transaction sent for order %s: %s", order.OrderID, tx.Hash().Hex())

	if _, err := client.WaitMined(ctx, tx); err != nil {
		return fmt.Errorf("refund not confirmed for order %s: %v", order.OrderID, err)
	}
	return nil
}
