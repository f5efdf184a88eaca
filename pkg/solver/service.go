// Package solver wires the configured chains, the order store and the
// processing pipeline into a running service: the poller feeds a worker
// pool, the expiry scanner runs alongside it, and the health server exposes
// the operational surface.
package solver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/openintent-hq/solver/pkg/chainclient"
	"github.com/openintent-hq/solver/pkg/circuitbreaker"
	"github.com/openintent-hq/solver/pkg/config"
	"github.com/openintent-hq/solver/pkg/erc7683"
	"github.com/openintent-hq/solver/pkg/health"
	"github.com/openintent-hq/solver/pkg/intentsource"
	"github.com/openintent-hq/solver/pkg/logger"
	"github.com/openintent-hq/solver/pkg/metrics"
	"github.com/openintent-hq/solver/pkg/models"
	"github.com/openintent-hq/solver/pkg/pipeline"
	"github.com/openintent-hq/solver/pkg/poller"
	"github.com/openintent-hq/solver/pkg/protocol"
	"github.com/openintent-hq/solver/pkg/refunder"
	"github.com/openintent-hq/solver/pkg/rules"
	"github.com/openintent-hq/solver/pkg/store"
)

// orderGaugeInterval is how often the open-order gauges are refreshed.
const orderGaugeInterval = 30 * time.Second

// Service is the assembled solver.
type Service struct {
	cfg    *config.Config
	logger logger.Logger

	clients         map[int64]*chainclient.Client
	circuitBreakers map[int64]*circuitbreaker.CircuitBreaker
	store           *store.Store
	pipeline        *pipeline.Pipeline
	poller          *poller.Poller
	scanner         *refunder.Scanner
	health          *health.Server

	pendingJobs chan models.Intent
	workers     int
	wg          sync.WaitGroup
}

// NewService connects every configured chain, opens the order store and
// assembles the processing pipeline.
func NewService(ctx context.Context, cfg *config.Config) (*Service, error) {
	log := logger.NewStdLogger(cfg.LoggerConfig.Coloring, cfg.LoggerConfig.Level)

	clients := make(map[int64]*chainclient.Client, len(cfg.Chains))
	adapters := make([]protocol.AdapterInfo, 0, len(cfg.Chains))
	breakers := make(map[int64]*circuitbreaker.CircuitBreaker, len(cfg.Chains))

	for chainID, chainCfg := range cfg.Chains {
		client, err := chainclient.New(ctx, chainID, chainCfg.RPCURL, cfg.PrivateKey, log)
		if err != nil {
			return nil, fmt.Errorf("failed to set up chain %d: %v", chainID, err)
		}
		client.MaxGasPrice = cfg.MaxGasPrice
		clients[chainID] = client

		adapters = append(adapters, protocol.AdapterInfo{
			DestinationChainID: chainID,
			Address:            common.HexToAddress(chainCfg.SettlerAddress),
		})

		breakers[chainID] = circuitbreaker.NewCircuitBreaker(
			cfg.CircuitBreaker.Enabled,
			cfg.CircuitBreaker.Threshold,
			cfg.CircuitBreaker.WindowDuration,
			cfg.CircuitBreaker.ResetTimeout,
			log,
		)
	}

	registry, err := protocol.NewRegistry(erc7683.ProtocolName, adapters)
	if err != nil {
		return nil, err
	}

	st, err := store.New(ctx, cfg.DatabaseDSN, log)
	if err != nil {
		return nil, err
	}

	proto := erc7683.New(registry, log)

	readers := make(map[int64]rules.ChainReader, len(clients))
	pipeClients := make(map[int64]protocol.ChainClient, len(clients))
	refundClients := make(map[int64]erc7683.RefundClient, len(clients))
	for chainID, client := range clients {
		readers[chainID] = client
		pipeClients[chainID] = client
		refundClients[chainID] = client
	}

	pipe := pipeline.New(pipeline.Config{
		Protocol: proto,
		Registry: registry,
		Lists:    cfg.Lists,
		Rules:    rules.NewEvaluator(rules.EnoughBalanceOnDestination),
		RuleCtx:  rules.NewContext(readers),
		Clients:  pipeClients,
		Recorder: st,
		Logger:   log,
	})

	gateway := erc7683.NewGateway(refundClients, log)

	return &Service{
		cfg:             cfg,
		logger:          log,
		clients:         clients,
		circuitBreakers: breakers,
		store:           st,
		pipeline:        pipe,
		poller:          poller.New(intentsource.New(cfg.IndexerEndpoint, log), cfg.PollInterval, log),
		scanner:         refunder.New(st, gateway, cfg.ScanInterval, log),
		health:          health.NewServer(cfg.MetricsPort, clients, breakers, st, cfg.MetricsAPIKey, log),
		pendingJobs:     make(chan models.Intent, cfg.WorkerCount*4),
		workers:         cfg.WorkerCount,
	}, nil
}

// Start runs the service until ctx is cancelled, then drains the workers
// and releases every connection.
func (s *Service) Start(ctx context.Context) {
	go s.health.Start()

	s.logger.Info("Starting %d worker goroutines", s.workers)
	for i := 0; i < s.workers; i++ {
		go s.worker(ctx, i)
	}

	go s.scanner.Run(ctx)
	go s.orderGaugeLoop(ctx)

	s.poller.Run(ctx, s.enqueue)

	close(s.pendingJobs)
	s.wg.Wait()
	s.shutdown()
}

func (s *Service) enqueue(intent models.Intent) {
	metrics.IntentsObserved.WithLabelValues(chainLabel(intent.OriginChainID)).Inc()
	metrics.PendingIntents.Set(float64(len(s.pendingJobs) + 1))
	s.wg.Add(1)
	s.pendingJobs <- intent
}

// orderGaugeLoop refreshes the open-order gauges from the ledger.
func (s *Service) orderGaugeLoop(ctx context.Context) {
	ticker := time.NewTicker(orderGaugeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			counts, err := s.store.CountByStatus(ctx)
			if err != nil {
				s.logger.Debug("Failed to read order counts: %v", err)
				continue
			}
			for status, n := range counts {
				metrics.OpenOrders.WithLabelValues(string(status)).Set(float64(n))
			}
		}
	}
}

func (s *Service) shutdown() {
	for _, client := range s.clients {
		client.Close()
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("Failed to close order store: %v", err)
	}
	s.logger.Info("Solver shut down")
}
