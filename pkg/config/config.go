// Package config loads the solver configuration from environment variables.
package config

import (
	"fmt"
	"log"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/openintent-hq/solver/pkg/filter"
	"github.com/openintent-hq/solver/pkg/logger"
)

// Config holds the configuration for the solver service
type Config struct {
	IndexerEndpoint string
	PollInterval    time.Duration
	ScanInterval    time.Duration
	DatabaseDSN     string
	PrivateKey      string
	Chains          map[int64]ChainConfig
	WorkerCount     int
	MetricsPort     string
	MetricsAPIKey   string
	MaxGasPrice     *big.Int
	CircuitBreaker  CircuitBreakerConfig
	Lists           filter.AllowBlockLists
	LoggerConfig    LoggerConfig
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled        bool
	Threshold      int
	WindowDuration time.Duration
	ResetTimeout   time.Duration
}

// LoggerConfig holds the configuration for logging
type LoggerConfig struct {
	Level    logger.Level
	Coloring bool
}

// ChainConfig holds the configuration for a specific blockchain
type ChainConfig struct {
	ChainID        int64
	RPCURL         string
	SettlerAddress string
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	indexerEndpoint, err := GetEnvIndexerEndpoint()
	if err != nil {
		return nil, err
	}

	pollInterval, err := GetEnvPollInterval()
	if err != nil {
		return nil, err
	}

	scanInterval, err := GetEnvScanInterval()
	if err != nil {
		return nil, err
	}

	workerCount, err := GetEnvWorkerCount()
	if err != nil {
		return nil, err
	}

	metricsPort, err := GetEnvMetricsPort()
	if err != nil {
		return nil, err
	}

	cbEnabled, err := GetEnvCircuitBreakerEnabled()
	if err != nil {
		return nil, err
	}

	cbThreshold, err := GetEnvCircuitBreakerThreshold()
	if err != nil {
		return nil, err
	}

	cbWindow, err := GetEnvCircuitBreakerWindow()
	if err != nil {
		return nil, err
	}

	cbReset, err := GetEnvCircuitBreakerReset()
	if err != nil {
		return nil, err
	}

	maxGasPrice, err := GetEnvMaxGasPrice()
	if err != nil {
		return nil, err
	}

	logLevel, err := GetEnvLogLevel()
	if err != nil {
		return nil, err
	}

	logColoring, err := GetEnvLogColoring()
	if err != nil {
		return nil, err
	}

	lists, err := GetEnvAllowBlockLists()
	if err != nil {
		return nil, err
	}

	chainConfigs, err := GetEnvChainConfigs()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		IndexerEndpoint: indexerEndpoint,
		PollInterval:    pollInterval,
		ScanInterval:    scanInterval,
		DatabaseDSN:     os.Getenv("DATABASE_DSN"),
		PrivateKey:      os.Getenv("PRIVATE_KEY"),
		Chains:          chainConfigs,
		WorkerCount:     workerCount,
		MetricsPort:     metricsPort,
		MetricsAPIKey:   os.Getenv("METRICS_API_KEY"),
		MaxGasPrice:     maxGasPrice,
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:        cbEnabled,
			Threshold:      cbThreshold,
			WindowDuration: cbWindow,
			ResetTimeout:   cbReset,
		},
		Lists: lists,
		LoggerConfig: LoggerConfig{
			Level:    logLevel,
			Coloring: logColoring,
		},
	}

	// Validate required environment variables
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig validates the configuration. Failures here are fatal at
// startup: a solver with a malformed adapter table cannot act correctly for
// any intent.
func validateConfig(cfg *Config) error {
	if cfg.PrivateKey == "" {
		return fmt.Errorf("PRIVATE_KEY environment variable is required")
	}
	if cfg.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN environment variable is required")
	}
	if len(cfg.Chains) == 0 {
		return fmt.Errorf("at least one chain with a settler address is required")
	}
	for chainID, chainConfig := range cfg.Chains {
		if chainConfig.RPCURL == "" {
			return fmt.Errorf("RPC URL for chain %d is required", chainID)
		}
		if !common.IsHexAddress(chainConfig.SettlerAddress) {
			return fmt.Errorf("invalid settler address for chain %d: %s",
				chainID, chainConfig.SettlerAddress)
		}
	}
	return nil
}
