// Package pipeline orchestrates the processing of one observed intent
// through the fixed stage order: filter, record, rules, prepare, fill,
// settle. Each stage either advances the intent or stops it with a typed
// error naming the stage that rejected it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/openintent-hq/solver/pkg/chains"
	"github.com/openintent-hq/solver/pkg/filter"
	"github.com/openintent-hq/solver/pkg/logger"
	"github.com/openintent-hq/solver/pkg/models"
	"github.com/openintent-hq/solver/pkg/protocol"
	"github.com/openintent-hq/solver/pkg/rules"
)

var (
	// ErrUnsupportedChain rejects intents naming a chain the solver is not
	// configured for.
	ErrUnsupportedChain = errors.New("unsupported chain")

	// ErrFilteredOut rejects intents failing the allow/block lists.
	ErrFilteredOut = errors.New("intent rejected by allow/block lists")

	// ErrExpired rejects intents whose fill deadline has already passed.
	ErrExpired = errors.New("intent fill deadline passed")

	// ErrRuleRejected rejects intents failing the rule chain.
	ErrRuleRejected = errors.New("intent rejected by rules")

	// ErrInsufficientBalance stops processing when the filler cannot cover
	// the target legs on the destination chain.
	ErrInsufficientBalance = errors.New("insufficient balance on destination chain")

	// ErrApprovalFailed stops processing when a required token approval did
	// not confirm.
	ErrApprovalFailed = errors.New("token approval failed")

	// ErrSettlementFailed reports a confirmed fill whose reward claim on the
	// origin chain failed. The fill itself stands.
	ErrSettlementFailed = errors.New("settlement failed")
)

// Recorder is the slice of the order store the pipeline writes to.
type Recorder interface {
	InsertIfAbsent(ctx context.Context, order models.OpenOrder) error
	SetStatus(ctx context.Context, orderID string, status models.OrderStatus) error
}

// Pipeline processes intents for a single protocol across the configured
// chains.
type Pipeline struct {
	proto    protocol.Protocol
	registry *protocol.Registry
	lists    filter.AllowBlockLists
	rules    *rules.Evaluator
	ruleCtx  *rules.Context
	clients  map[int64]protocol.ChainClient
	recorder Recorder
	logger   logger.Logger
}

// Config bundles the pipeline's collaborators.
type Config struct {
	Protocol protocol.Protocol
	Registry *protocol.Registry
	Lists    filter.AllowBlockLists
	Rules    *rules.Evaluator
	RuleCtx  *rules.Context
	Clients  map[int64]protocol.ChainClient
	Recorder Recorder
	Logger   logger.Logger
}

// New builds a pipeline.
func New(cfg Config) *Pipeline {
	return &Pipeline{
		proto:    cfg.Protocol,
		registry: cfg.Registry,
		lists:    cfg.Lists,
		rules:    cfg.Rules,
		ruleCtx:  cfg.RuleCtx,
		clients:  cfg.Clients,
		recorder: cfg.Recorder,
		logger:   cfg.Logger,
	}
}

// Process runs one intent through every stage. The returned error names the
// stage that stopped it; nil means the intent was filled and settled.
func (p *Pipeline) Process(ctx context.Context, intent *models.Intent) error {
	if err := p.validate(intent); err != nil {
		return err
	}

	// Ineligible intents must never touch the store: a recorded order would
	// later be refunded at the operator's expense.
	if err := p.applyFilter(intent); err != nil {
		return err
	}

	// Record before attempting anything else so the order is refundable even
	// if the process dies mid-fill.
	if err := p.record(ctx, intent); err != nil {
		return err
	}

	p.logObserved(intent)

	if err := p.applyRules(ctx, intent); err != nil {
		return err
	}

	adapter, err := p.registry.Resolve(intent.DestinationChainID)
	if err != nil {
		return err
	}

	dest, ok := p.clients[intent.DestinationChainID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnsupportedChain, intent.DestinationChainID)
	}

	if err := p.prepare(ctx, dest, adapter, intent); err != nil {
		return err
	}
	if err := p.fill(ctx, dest, adapter, intent); err != nil {
		return err
	}

	// The fill spent the exact-amount approvals; drop the cached allowances
	// so the next intent in the same token re-reads the chain.
	for token := range models.RequiredByToken(intent.TargetLegs) {
		if token == (common.Address{}) {
			continue
		}
		dest.InvalidateAllowance(token, adapter.Address)
	}

	// The fill is confirmed; the order can no longer be refunded.
	if err := p.recorder.SetStatus(ctx, intent.ID, models.OrderStatusFiled); err != nil {
		p.logger.ErrorWithChain(intent.OriginChainID,
			"Failed to mark order %s filled: %v", intent.ID, err)
	}

	return p.settle(ctx, intent)
}

func (p *Pipeline) validate(intent *models.Intent) error {
	if !chains.IsSupported(intent.OriginChainID) {
		return fmt.Errorf("%w: origin %d", ErrUnsupportedChain, intent.OriginChainID)
	}
	if !chains.IsSupported(intent.DestinationChainID) {
		return fmt.Errorf("%w: destination %d", ErrUnsupportedChain, intent.DestinationChainID)
	}
	if intent.OriginChainID == intent.DestinationChainID {
		return fmt.Errorf("%w: origin and destination are both %d",
			ErrUnsupportedChain, intent.OriginChainID)
	}
	if intent.FillDeadline > 0 && intent.FillDeadline <= time.Now().Unix() {
		return fmt.Errorf("%w: deadline %d", ErrExpired, intent.FillDeadline)
	}
	return nil
}

func (p *Pipeline) record(ctx context.Context, intent *models.Intent) error {
	adapter, err := p.registry.Resolve(intent.DestinationChainID)
	if err != nil {
		return err
	}
	order := models.OpenOrder{
		OrderID:            intent.ID,
		OriginChainID:      intent.OriginChainID,
		DestinationChainID: intent.DestinationChainID,
		DestinationSettler: adapter.Address.Hex(),
		FillDeadline:       intent.FillDeadline,
		OrderData:          intent.OrderData,
		Status:             models.OrderStatusOpen,
	}
	if err := p.recorder.InsertIfAbsent(ctx, order); err != nil {
		return fmt.Errorf("failed to record order %s: %v", intent.ID, err)
	}
	return nil
}

func (p *Pipeline) logObserved(intent *models.Intent) {
	p.logger.NoticeWithChain(intent.OriginChainID,
		"Observed intent %s: %s -> chain %d (%s)",
		intent.ID, intent.Sender.Hex(), intent.DestinationChainID,
		chains.GetChainName(intent.DestinationChainID))
	for _, line := range p.proto.DescribeOrigin(intent) {
		p.logger.InfoWithChain(intent.OriginChainID, "  reward: %s", line)
	}
	for _, line := range p.proto.DescribeTarget(intent) {
		p.logger.InfoWithChain(intent.DestinationChainID, "  target: %s", line)
	}
}

func (p *Pipeline) applyFilter(intent *models.Intent) error {
	candidate := filter.Candidate{
		SenderAddress:     intent.Sender.Hex(),
		DestinationDomain: intent.DestinationChainID,
		RecipientAddress:  intent.Recipient.Hex(),
	}
	if !p.lists.IsAllowed(candidate) {
		return fmt.Errorf("%w: sender %s", ErrFilteredOut, intent.Sender.Hex())
	}
	return nil
}

func (p *Pipeline) applyRules(ctx context.Context, intent *models.Intent) error {
	result := p.rules.Evaluate(ctx, intent, p.ruleCtx)
	if !result.OK() {
		return fmt.Errorf("%w: %s", ErrRuleRejected, result.Reason)
	}
	return nil
}

// prepare verifies destination balances cover every target leg and grants
// the adapter the ERC20 allowances the fill will spend. Tokens are prepared
// concurrently; one per-token failure aborts the whole stage.
func (p *Pipeline) prepare(ctx context.Context, dest protocol.ChainClient, adapter protocol.AdapterInfo, intent *models.Intent) error {
	required := models.RequiredByToken(intent.TargetLegs)

	g, gctx := errgroup.WithContext(ctx)
	for token, amount := range required {
		token, amount := token, amount
		g.Go(func() error {
			return p.prepareToken(gctx, dest, adapter, token, amount)
		})
	}
	return g.Wait()
}

func (p *Pipeline) prepareToken(ctx context.Context, dest protocol.ChainClient, adapter protocol.AdapterInfo, token common.Address, amount *big.Int) error {
	owner := dest.SignerAddress()

	var balance *big.Int
	var err error
	if token == (common.Address{}) {
		balance, err = dest.NativeBalance(ctx, owner)
	} else {
		balance, err = dest.TokenBalance(ctx, token, owner)
	}
	if err != nil {
		return fmt.Errorf("failed to read balance of %s on chain %d: %v",
			token.Hex(), dest.ChainID(), err)
	}
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: token %s needs %s, have %s",
			ErrInsufficientBalance, token.Hex(), amount.String(), balance.String())
	}

	if token == (common.Address{}) {
		return nil
	}
	if err := dest.Approve(ctx, token, adapter.Address, amount); err != nil {
		return fmt.Errorf("%w: token %s: %v", ErrApprovalFailed, token.Hex(), err)
	}
	return nil
}

func (p *Pipeline) fill(ctx context.Context, dest protocol.ChainClient, adapter protocol.AdapterInfo, intent *models.Intent) error {
	p.logger.InfoWithChain(intent.DestinationChainID, "Filling intent %s via adapter %s",
		intent.ID, adapter.Address.Hex())

	if err := p.proto.Fill(ctx, dest, adapter, intent); err != nil {
		return err
	}

	p.logger.NoticeWithChain(intent.DestinationChainID, "Intent %s filled", intent.ID)
	return nil
}

// settle claims the filler's reward on the origin chain. A failure here does
// not undo the fill; it is surfaced as ErrSettlementFailed so the caller can
// log and count it without treating the intent as unfilled.
func (p *Pipeline) settle(ctx context.Context, intent *models.Intent) error {
	origin, ok := p.clients[intent.OriginChainID]
	if !ok {
		return fmt.Errorf("%w: no client for origin chain %d",
			ErrSettlementFailed, intent.OriginChainID)
	}

	if err := p.proto.Settle(ctx, origin, intent); err != nil {
		return fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}

	p.logger.NoticeWithChain(intent.OriginChainID, "Intent %s settled", intent.ID)
	return nil
}
