// Package health serves the operational HTTP surface: liveness, readiness,
// chain status and Prometheus metrics.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openintent-hq/solver/pkg/chainclient"
	"github.com/openintent-hq/solver/pkg/chains"
	"github.com/openintent-hq/solver/pkg/circuitbreaker"
	"github.com/openintent-hq/solver/pkg/logger"
	"github.com/openintent-hq/solver/pkg/models"
)

// OrderCounter is the slice of the order store the status endpoint reads.
type OrderCounter interface {
	Ping(ctx context.Context) error
	CountByStatus(ctx context.Context) (map[models.OrderStatus]int, error)
}

// Server represents the health check HTTP server
type Server struct {
	port            string
	clients         map[int64]*chainclient.Client
	circuitBreakers map[int64]*circuitbreaker.CircuitBreaker
	orders          OrderCounter
	metricsAPIKey   string
	logger          logger.Logger
}

// NewServer creates a new health check server
func NewServer(port string, clients map[int64]*chainclient.Client, circuitBreakers map[int64]*circuitbreaker.CircuitBreaker, orders OrderCounter, metricsAPIKey string, log logger.Logger) *Server {
	return &Server{
		port:            port,
		clients:         clients,
		circuitBreakers: circuitBreakers,
		orders:          orders,
		metricsAPIKey:   metricsAPIKey,
		logger:          log,
	}
}

// metricsAuthMiddleware is a middleware that checks for a valid API key
func (s *Server) metricsAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth if no API key is configured
		if s.metricsAPIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		if parts[1] != s.metricsAPIKey {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/circuit/reset", s.handleCircuitReset)
	mux.Handle("/metrics", s.metricsAuthMiddleware(promhttp.Handler()))

	return mux
}

// Start starts the health check server. It blocks until the listener fails.
func (s *Server) Start() {
	s.logger.Info("Starting health and metrics server on port %s", s.port)
	if err := http.ListenAndServe(":"+s.port, s.Handler()); err != nil {
		s.logger.Error("Health server error: %v", err)
	}
}

// handleReady reports ready only when every chain client is connected and
// the order store answers a ping.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	for chainID, client := range s.clients {
		if !client.Connected() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(fmt.Sprintf("Chain %d client not connected", chainID)))
			return
		}
	}

	if s.orders != nil {
		if err := s.orders.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(fmt.Sprintf("Order store unreachable: %v", err)))
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Ready"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := make(map[string]interface{})

	for chainID, client := range s.clients {
		circuitStatus := "closed"
		if cb, ok := s.circuitBreakers[chainID]; ok && cb.IsOpen() {
			circuitStatus = "open"
		}

		chainStatus := map[string]interface{}{
			"name":      chains.GetChainName(chainID),
			"rpc_url":   client.RPCURL(),
			"signer":    client.SignerAddress().Hex(),
			"connected": client.Connected(),
			"circuit":   circuitStatus,
		}

		if blockNumber, err := client.LatestBlockNumber(r.Context()); err == nil {
			chainStatus["latest_block"] = blockNumber
		}

		status[fmt.Sprintf("chain_%d", chainID)] = chainStatus
	}

	if s.orders != nil {
		if counts, err := s.orders.CountByStatus(r.Context()); err == nil {
			orderCounts := make(map[string]int, len(counts))
			for st, n := range counts {
				orderCounts[string(st)] = n
			}
			status["orders"] = orderCounts
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error("Error encoding status JSON: %v", err)
	}
}

// handleCircuitReset lets an operator close a tripped breaker.
func (s *Server) handleCircuitReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	chainIDStr := r.URL.Query().Get("chain")
	if chainIDStr == "" {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("Missing chain parameter"))
		return
	}

	chainID, err := strconv.ParseInt(chainIDStr, 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("Invalid chain ID"))
		return
	}

	cb, ok := s.circuitBreakers[chainID]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(fmt.Sprintf("No circuit breaker for chain %d", chainID)))
		return
	}

	cb.Reset()
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(fmt.Sprintf("Circuit breaker for chain %d reset", chainID)))
}
