package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TokenAmount is a single value leg of an intent: an amount of a token on
// some chain. The zero token address denotes the chain's native asset.
type TokenAmount struct {
	Token  common.Address `json:"token"`
	Amount *big.Int       `json:"amount"`
}

// IsNative reports whether the leg is denominated in the chain's gas token.
func (t TokenAmount) IsNative() bool {
	return t.Token == (common.Address{})
}

// Intent is the protocol-agnostic envelope for an observed cross-chain
// intent. It is immutable once observed; the poller may redeliver the same
// intent and downstream components must tolerate that.
type Intent struct {
	// ID is the stable unique identifier assigned by the origin protocol.
	ID string `json:"id"`

	// Protocol names the intent protocol this envelope belongs to.
	Protocol string `json:"protocol"`

	OriginChainID      int64 `json:"origin_chain_id"`
	DestinationChainID int64 `json:"destination_chain_id"`

	// Sender is the sponsor who locked the deposit on the origin chain.
	Sender common.Address `json:"sender"`
	// Recipient receives the delivered value on the destination chain.
	Recipient common.Address `json:"recipient"`

	// RewardLegs are paid to the filler on the origin chain once the fill
	// settles. TargetLegs are owed to the recipient on the destination chain.
	RewardLegs []TokenAmount `json:"reward_legs"`
	TargetLegs []TokenAmount `json:"target_legs"`

	// FillDeadline is the unix timestamp after which the deposit becomes
	// refundable to the sender.
	FillDeadline int64 `json:"fill_deadline"`

	// OrderData is the opaque protocol payload needed to build the fill call.
	OrderData []byte `json:"order_data"`
}

// RequiredByToken aggregates target legs per token so callers can run a
// single balance check and a single approval per token even when several
// legs pay out the same asset.
func RequiredByToken(legs []TokenAmount) map[common.Address]*big.Int {
	required := make(map[common.Address]*big.Int)
	for _, leg := range legs {
		total, ok := required[leg.Token]
		if !ok {
			total = new(big.Int)
			required[leg.Token] = total
		}
		total.Add(total, leg.Amount)
	}
	return required
}
