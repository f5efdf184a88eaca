package solver

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/openintent-hq/solver/pkg/metrics"
	"github.com/openintent-hq/solver/pkg/models"
	"github.com/openintent-hq/solver/pkg/pipeline"
)

// worker drains pendingJobs until the channel is closed. Each worker gates
// on the destination chain's circuit breaker before spending gas.
func (s *Service) worker(ctx context.Context, id int) {
	s.logger.Debug("Worker %d started", id)

	for intent := range s.pendingJobs {
		s.processIntent(ctx, intent)
		s.wg.Done()
		metrics.PendingIntents.Set(float64(len(s.pendingJobs)))
	}

	s.logger.Debug("Worker %d stopped", id)
}

func (s *Service) processIntent(ctx context.Context, intent models.Intent) {
	destLabel := chainLabel(intent.DestinationChainID)

	if breaker, ok := s.circuitBreakers[intent.DestinationChainID]; ok && breaker.IsOpen() {
		s.logger.InfoWithChain(intent.DestinationChainID,
			"Circuit breaker open, skipping intent %s", intent.ID)
		metrics.IntentsRejected.WithLabelValues(destLabel, "circuit_open").Inc()
		return
	}

	start := time.Now()
	err := s.pipeline.Process(ctx, &intent)
	metrics.IntentProcessingTime.WithLabelValues(destLabel).Observe(time.Since(start).Seconds())

	if err == nil {
		metrics.IntentsFilled.WithLabelValues(destLabel).Inc()
		return
	}

	switch {
	case errors.Is(err, pipeline.ErrUnsupportedChain),
		errors.Is(err, pipeline.ErrExpired),
		errors.Is(err, pipeline.ErrFilteredOut),
		errors.Is(err, pipeline.ErrRuleRejected),
		errors.Is(err, pipeline.ErrInsufficientBalance):
		// Ineligible, not a chain failure. The expiry scanner owns the
		// order from here.
		s.logger.Debug("Intent %s not eligible: %v", intent.ID, err)
		metrics.IntentsRejected.WithLabelValues(destLabel, rejectionStage(err)).Inc()

	case errors.Is(err, pipeline.ErrSettlementFailed):
		// The fill stands; only the settlement leg needs operator attention.
		s.logger.ErrorWithChain(intent.OriginChainID,
			"Settlement failed for intent %s: %v", intent.ID, err)
		metrics.SettlementFailures.WithLabelValues(chainLabel(intent.OriginChainID)).Inc()

	default:
		s.logger.ErrorWithChain(intent.DestinationChainID,
			"Failed to process intent %s: %v", intent.ID, err)
		metrics.PipelineErrors.WithLabelValues(destLabel, errorType(err)).Inc()
		if breaker, ok := s.circuitBreakers[intent.DestinationChainID]; ok {
			breaker.RecordFailure()
			if breaker.IsOpen() {
				metrics.CircuitBreakerTrips.WithLabelValues(destLabel).Inc()
			}
		}
	}
}

func rejectionStage(err error) string {
	switch {
	case errors.Is(err, pipeline.ErrUnsupportedChain):
		return "unsupported_chain"
	case errors.Is(err, pipeline.ErrExpired):
		return "expired"
	case errors.Is(err, pipeline.ErrFilteredOut):
		return "filtered"
	case errors.Is(err, pipeline.ErrRuleRejected):
		return "rule"
	case errors.Is(err, pipeline.ErrInsufficientBalance):
		return "balance"
	}
	return "other"
}

func errorType(err error) string {
	if errors.Is(err, pipeline.ErrApprovalFailed) {
		return "approval"
	}
	return "fill"
}

func chainLabel(chainID int64) string {
	return strconv.FormatInt(chainID, 10)
}
