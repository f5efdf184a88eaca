// Package refunder runs the background expiry scanner: it finds orders
// whose fill deadline passed without a fill and drives the deposit back to
// its sponsor through the refund state machine.
package refunder

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/openintent-hq/solver/pkg/erc7683"
	"github.com/openintent-hq/solver/pkg/logger"
	"github.com/openintent-hq/solver/pkg/metrics"
	"github.com/openintent-hq/solver/pkg/models"
)

const (
	// DefaultScanInterval between expiry scans.
	DefaultScanInterval = 15 * time.Second

	// orderTimeout bounds the handling of a single order within a cycle.
	orderTimeout = 2 * time.Minute
)

// OrderStore is the slice of the open-order ledger the scanner uses.
type OrderStore interface {
	ListExpiredOpen(ctx context.Context, now int64) (map[int64][]models.OpenOrder, error)
	ClaimRefunding(ctx context.Context, orderID string) (bool, error)
	SetStatus(ctx context.Context, orderID string, status models.OrderStatus) error
	ListStaleRefunding(ctx context.Context, cutoff time.Time) ([]models.OpenOrder, error)
}

// Gateway is the on-chain surface the scanner drives refunds through.
type Gateway interface {
	LatestBlockTimestamp(ctx context.Context, chainID int64) (int64, error)
	OrderStatus(ctx context.Context, order models.OpenOrder) (erc7683.OrderState, error)
	Refund(ctx context.Context, order models.OpenOrder) error
}

// Scanner periodically sweeps the open-order ledger for expired orders.
type Scanner struct {
	store    OrderStore
	gateway  Gateway
	interval time.Duration
	logger   logger.Logger

	now func() time.Time
}

// New creates a scanner. A non-positive interval falls back to the default.
func New(store OrderStore, gateway Gateway, interval time.Duration, log logger.Logger) *Scanner {
	if interval <= 0 {
		interval = DefaultScanInterval
	}
	return &Scanner{
		store:    store,
		gateway:  gateway,
		interval: interval,
		logger:   log,
		now:      time.Now,
	}
}

// Run scans until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) {
	s.logger.Info("Expiry scanner started with interval %v", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Expiry scanner shutting down")
			return
		case <-ticker.C:
			s.scan(ctx)
		}
	}
}

// scan performs one full sweep: reconcile stuck claims, then work through
// expired orders. A refund failure aborts the remaining orders of the cycle;
// the next tick resumes from clean OPEN state.
func (s *Scanner) scan(ctx context.Context) {
	cycleID := uuid.NewString()
	start := time.Now()
	defer func() {
		metrics.RefundCycleDuration.Observe(time.Since(start).Seconds())
	}()

	s.reconcileStale(ctx, cycleID)

	expired, err := s.store.ListExpiredOpen(ctx, s.now().Unix())
	if err != nil {
		s.logger.Error("Scan %s: failed to list expired orders: %v", cycleID, err)
		return
	}
	if len(expired) == 0 {
		return
	}

	for chainID, orders := range expired {
		blockTime, err := s.gateway.LatestBlockTimestamp(ctx, chainID)
		if err != nil {
			s.logger.ErrorWithChain(chainID, "Scan %s: failed to read block time: %v", cycleID, err)
			continue
		}

		for _, order := range orders {
			if blockTime <= order.FillDeadline {
				// Local clock ran ahead of the chain; not expired yet.
				continue
			}
			if !s.processOrder(ctx, cycleID, order) {
				return
			}
		}
	}
}

// processOrder drives one expired order through the state machine. It
// returns false when the cycle must be aborted.
func (s *Scanner) processOrder(ctx context.Context, cycleID string, order models.OpenOrder) bool {
	orderCtx, cancel := context.WithTimeout(ctx, orderTimeout)
	defer cancel()

	state, err := s.gateway.OrderStatus(orderCtx, order)
	if err != nil {
		s.logger.ErrorWithChain(order.DestinationChainID,
			"Scan %s: failed to read status of order %s: %v", cycleID, order.OrderID, err)
		return true
	}

	switch state {
	case erc7683.StateFilled:
		// Someone delivered the value; refunding would double-pay.
		if err := s.store.SetStatus(orderCtx, order.OrderID, models.OrderStatusFiled); err != nil {
			s.logger.Error("Scan %s: failed to mark order %s filed: %v", cycleID, order.OrderID, err)
		}
		return true
	case erc7683.StateRefunded:
		if err := s.store.SetStatus(orderCtx, order.OrderID, models.OrderStatusRefunded); err != nil {
			s.logger.Error("Scan %s: failed to mark order %s refunded: %v", cycleID, order.OrderID, err)
		}
		return true
	}

	claimed, err := s.store.ClaimRefunding(orderCtx, order.OrderID)
	if err != nil {
		s.logger.Error("Scan %s: failed to claim order %s: %v", cycleID, order.OrderID, err)
		return true
	}
	if !claimed {
		// Another scanner instance got there first.
		return true
	}

	s.logger.NoticeWithChain(order.DestinationChainID,
		"Refunding order %s (scan %s)", order.OrderID, cycleID)

	if err := s.gateway.Refund(orderCtx, order); err != nil {
		s.logger.ErrorWithChain(order.DestinationChainID,
			"Scan %s: refund of order %s failed: %v", cycleID, order.OrderID, err)
		metrics.RefundsExecuted.WithLabelValues(
			strconv.FormatInt(order.DestinationChainID, 10), "failed").Inc()
		if err := s.store.SetStatus(orderCtx, order.OrderID, models.OrderStatusOpen); err != nil {
			s.logger.Error("Scan %s: failed to reopen order %s: %v", cycleID, order.OrderID, err)
		}
		return false
	}
	metrics.RefundsExecuted.WithLabelValues(
		strconv.FormatInt(order.DestinationChainID, 10), "success").Inc()

	if err := s.store.SetStatus(orderCtx, order.OrderID, models.OrderStatusRefunded); err != nil {
		s.logger.Error("Scan %s: failed to mark order %s refunded: %v", cycleID, order.OrderID, err)
	}
	s.logger.NoticeWithChain(order.DestinationChainID,
		"Order %s refunded (scan %s)", order.OrderID, cycleID)
	return true
}

// reconcileStale re-checks REFUNDING rows older than two scan intervals
// against the chain. The local status alone cannot distinguish a crash
// before submission from one after it, so the settler is the authority.
func (s *Scanner) reconcileStale(ctx context.Context, cycleID string) {
	cutoff := s.now().Add(-2 * s.interval)

	stale, err := s.store.ListStaleRefunding(ctx, cutoff)
	if err != nil {
		s.logger.Error("Scan %s: failed to list stale refunding orders: %v", cycleID, err)
		return
	}

	for _, order := range stale {
		state, err := s.gateway.OrderStatus(ctx, order)
		if err != nil {
			s.logger.ErrorWithChain(order.DestinationChainID,
				"Scan %s: failed to reconcile order %s: %v", cycleID, order.OrderID, err)
			continue
		}

		var next models.OrderStatus
		switch state {
		case erc7683.StateRefunded:
			next = models.OrderStatusRefunded
		case erc7683.StateFilled:
			next = models.OrderStatusFiled
		default:
			// Nothing landed on chain; release the claim for a retry.
			next = models.OrderStatusOpen
		}

		s.logger.NoticeWithChain(order.DestinationChainID,
			"Reconciling stuck order %s -> %s (scan %s)", order.OrderID, next, cycleID)
		if err := s.store.SetStatus(ctx, order.OrderID, next); err != nil {
			s.logger.Error("Scan %s: failed to reconcile order %s: %v", cycleID, order.OrderID, err)
		}
	}
}
