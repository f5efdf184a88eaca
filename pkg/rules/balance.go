package rules

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openintent-hq/solver/pkg/models"
)

// EnoughBalanceOnDestination checks that the filler holds at least the
// aggregate required amount of every target-leg token on the destination
// chain. This is the soft baseline check; the pipeline repeats it as the
// authoritative pre-flight gate right before committing funds.
func EnoughBalanceOnDestination(ctx context.Context, intent *models.Intent, ec *Context) Result {
	reader, ok := ec.Chain(intent.DestinationChainID)
	if !ok {
		return Fail("no chain client for destination chain %d", intent.DestinationChainID)
	}

	required := models.RequiredByToken(intent.TargetLegs)
	filler := reader.SignerAddress()

	for token, amount := range required {
		balance, err := balanceOf(ctx, reader, token, filler)
		if err != nil {
			return Fail("balance read failed on chain %d for token %s: %v",
				intent.DestinationChainID, token.Hex(), err)
		}
		if balance.Cmp(amount) < 0 {
			return Fail("insufficient balance on destination chain %d for token %s",
				intent.DestinationChainID, token.Hex())
		}
	}

	return Pass("enough tokens to fulfill the intent")
}

// balanceOf dispatches between the native asset and ERC20 balances.
func balanceOf(ctx context.Context, reader ChainReader, token, owner common.Address) (*big.Int, error) {
	if token == (common.Address{}) {
		return reader.NativeBalance(ctx, owner)
	}
	return reader.TokenBalance(ctx, token, owner)
}
