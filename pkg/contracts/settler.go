package contracts

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Settler order status markers, as returned by orderStatus. The settler
// reports UNKNOWN (all zeroes) until the order is filled, refunded or
// settled on that chain.
var (
	OrderUnknown  = [32]byte{}
	OrderFilled   = statusWord("FILLED")
	OrderSettled  = statusWord("SETTLED")
	OrderRefunded = statusWord("REFUNDED")
)

func statusWord(s string) [32]byte {
	var word [32]byte
	copy(word[:], s)
	return word
}

// OnchainCrossChainOrder mirrors the settler's order tuple used by refund.
type OnchainCrossChainOrder struct {
	FillDeadline  uint32
	OrderDataType [32]byte
	OrderData     []byte
}

// SettlerABI is the ABI of the ERC-7683 destination settler contract.
const SettlerABI = `[
	{
		"inputs": [
			{"name": "orderId", "type": "bytes32"},
			{"name": "originData", "type": "bytes"},
			{"name": "fillerData", "type": "bytes"}
		],
		"name": "fill",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [{"name": "orderIds", "type": "bytes32[]"}],
		"name": "settle",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [
			{
				"components": [
					{"name": "fillDeadline", "type": "uint32"},
					{"name": "orderDataType", "type": "bytes32"},
					{"name": "orderData", "type": "bytes"}
				],
				"name": "orders",
				"type": "tuple[]"
			}
		],
		"name": "refund",
		"outputs": [],
		"stateMutability": "payable",
		"type": "function"
	},
	{
		"inputs": [{"name": "orderId", "type": "bytes32"}],
		"name": "orderStatus",
		"outputs": [{"name": "", "type": "bytes32"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [{"name": "destinationDomain", "type": "uint32"}],
		"name": "quoteGasPayment",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// Settler is a Go binding around the ERC-7683 settlement contract.
type Settler struct {
	address  common.Address
	contract *bind.BoundContract
}

// NewSettler creates a Settler instance bound to a deployed contract.
func NewSettler(address common.Address, backend bind.ContractBackend) (*Settler, error) {
	parsed, err := abi.JSON(strings.NewReader(SettlerABI))
	if err != nil {
		return nil, err
	}
	return &Settler{
		address:  address,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
	}, nil
}

// Address returns the bound contract address.
func (s *Settler) Address() common.Address {
	return s.address
}

// Fill executes the fulfillment call for an order.
func (s *Settler) Fill(opts *bind.TransactOpts, orderID [32]byte, originData, fillerData []byte) (*types.Transaction, error) {
	return s.contract.Transact(opts, "fill", orderID, originData, fillerData)
}

// Settle claims the rewards for already-filled orders.
func (s *Settler) Settle(opts *bind.TransactOpts, orderIDs [][32]byte) (*types.Transaction, error) {
	return s.contract.Transact(opts, "settle", orderIDs)
}

// Refund returns the locked deposits of expired, unfilled orders to their
// sponsors.
func (s *Settler) Refund(opts *bind.TransactOpts, orders []OnchainCrossChainOrder) (*types.Transaction, error) {
	return s.contract.Transact(opts, "refund", orders)
}

// OrderStatus reads the authoritative status word for an order.
func (s *Settler) OrderStatus(opts *bind.CallOpts, orderID [32]byte) ([32]byte, error) {
	var out []interface{}
	if err := s.contract.Call(opts, &out, "orderStatus", orderID); err != nil {
		return [32]byte{}, err
	}
	return *abi.ConvertType(out[0], new([32]byte)).(*[32]byte), nil
}

// QuoteGasPayment quotes the cross-chain message fee for a destination
// domain, paid as transaction value on fill and refund.
func (s *Settler) QuoteGasPayment(opts *bind.CallOpts, destinationDomain uint32) (*big.Int, error) {
	var out []interface{}
	if err := s.contract.Call(opts, &out, "quoteGasPayment", destinationDomain); err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// RefundABIPack packs a refund calldata payload for gas estimation.
func RefundABIPack(orders []OnchainCrossChainOrder) ([]byte, error) {
	parsed, err := abi.JSON(strings.NewReader(SettlerABI))
	if err != nil {
		return nil, err
	}
	return parsed.Pack("refund", orders)
}
