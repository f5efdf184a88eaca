package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/openintent-hq/solver/pkg/chains"
	"github.com/openintent-hq/solver/pkg/filter"
	"github.com/openintent-hq/solver/pkg/logger"
)

const (
	// DefaultPollInterval defines the default indexer polling interval in seconds
	DefaultPollInterval = 4

	// DefaultScanInterval defines the default expiry scan interval in seconds
	DefaultScanInterval = 15

	// DefaultWorkerCount defines the default number of workers to process intents
	DefaultWorkerCount = 5

	// DefaultMetricsPort defines the default port for the metrics server
	DefaultMetricsPort = "8080"

	// DefaultCircuitBreakerEnabled defines whether the circuit breaker is enabled
	DefaultCircuitBreakerEnabled = true

	// DefaultCircuitBreakerThreshold defines the number of failures before the circuit breaker trips
	DefaultCircuitBreakerThreshold = 5

	// DefaultCircuitBreakerWindow defines the time window for the circuit breaker in seconds
	DefaultCircuitBreakerWindow = 60

	// DefaultCircuitBreakerReset defines the reset timeout for the circuit breaker in seconds
	DefaultCircuitBreakerReset = 300

	// DefaultMaxGasPrice defines the maximum gas price for transactions
	DefaultMaxGasPrice = "1000000000" // 1 Gwei
)

// defaultRPCURLs are the public endpoints used when no override is set.
var defaultRPCURLs = map[int64]string{
	1:     "https://eth.llamarpc.com",
	10:    "https://mainnet.optimism.io",
	137:   "https://polygon-rpc.com",
	42161: "https://arb1.arbitrum.io/rpc",
	8453:  "https://mainnet.base.org",
	56:    "https://bsc-dataseed.bnbchain.org",
	43114: "https://avalanche-c-chain-rpc.publicnode.com",
}

// GetEnvIndexerEndpoint returns the indexer endpoint from environment variables
func GetEnvIndexerEndpoint() (string, error) {
	endpoint := os.Getenv("INDEXER_ENDPOINT")
	if endpoint == "" {
		return "", fmt.Errorf("INDEXER_ENDPOINT environment variable is required")
	}

	// Validate URL format
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return "", fmt.Errorf("invalid INDEXER_ENDPOINT value: %s, must be a valid URL", endpoint)
	}
	return endpoint, nil
}

// GetEnvPollInterval returns the polling interval in seconds from environment variables
func GetEnvPollInterval() (time.Duration, error) {
	pollInterval := os.Getenv("POLL_INTERVAL")
	if pollInterval == "" {
		return time.Duration(DefaultPollInterval) * time.Second, nil
	}

	interval, err := strconv.Atoi(pollInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid POLL_INTERVAL value: %s, must be an integer", pollInterval)
	}
	if interval <= 0 {
		return 0, fmt.Errorf("POLL_INTERVAL must be greater than 0")
	}
	return time.Duration(interval) * time.Second, nil
}

// GetEnvScanInterval returns the expiry scan interval in seconds from environment variables
func GetEnvScanInterval() (time.Duration, error) {
	scanInterval := os.Getenv("SCAN_INTERVAL")
	if scanInterval == "" {
		return time.Duration(DefaultScanInterval) * time.Second, nil
	}

	interval, err := strconv.Atoi(scanInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid SCAN_INTERVAL value: %s, must be an integer", scanInterval)
	}
	if interval <= 0 {
		return 0, fmt.Errorf("SCAN_INTERVAL must be greater than 0")
	}
	return time.Duration(interval) * time.Second, nil
}

// GetEnvWorkerCount returns the number of workers from environment variables
func GetEnvWorkerCount() (int, error) {
	workerCount := os.Getenv("WORKER_COUNT")
	if workerCount == "" {
		return DefaultWorkerCount, nil
	}

	count, err := strconv.Atoi(workerCount)
	if err != nil {
		return 0, fmt.Errorf("invalid WORKER_COUNT value: %s, must be an integer", workerCount)
	}
	if count <= 0 {
		return 0, fmt.Errorf("WORKER_COUNT must be greater than 0")
	}
	return count, nil
}

// GetEnvMetricsPort returns the metrics server port from environment variables
func GetEnvMetricsPort() (string, error) {
	metricsPort := os.Getenv("METRICS_PORT")
	if metricsPort == "" {
		return DefaultMetricsPort, nil
	}

	// Validate port format
	if _, err := strconv.Atoi(metricsPort); err != nil {
		return "", fmt.Errorf("invalid METRICS_PORT value: %s, must be a valid integer", metricsPort)
	}
	return metricsPort, nil
}

// GetEnvCircuitBreakerEnabled returns whether the circuit breaker is enabled from environment variables
func GetEnvCircuitBreakerEnabled() (bool, error) {
	enabled := os.Getenv("CIRCUIT_BREAKER_ENABLED")
	if enabled == "" {
		return DefaultCircuitBreakerEnabled, nil
	}

	if enabled == "true" {
		return true, nil
	} else if enabled == "false" {
		return false, nil
	}

	return false, fmt.Errorf("invalid CIRCUIT_BREAKER_ENABLED value: %s, must be 'true' or 'false'", enabled)
}

// GetEnvCircuitBreakerThreshold returns the circuit breaker threshold from environment variables
func GetEnvCircuitBreakerThreshold() (int, error) {
	threshold := os.Getenv("CIRCUIT_BREAKER_THRESHOLD")
	if threshold == "" {
		return DefaultCircuitBreakerThreshold, nil
	}

	thresholdInt, err := strconv.Atoi(threshold)
	if err != nil {
		return 0, fmt.Errorf("invalid CIRCUIT_BREAKER_THRESHOLD value: %s, must be an integer", threshold)
	}
	if thresholdInt <= 0 {
		return 0, fmt.Errorf("CIRCUIT_BREAKER_THRESHOLD must be greater than 0")
	}
	return thresholdInt, nil
}

// GetEnvCircuitBreakerWindow returns the circuit breaker window duration from environment variables
func GetEnvCircuitBreakerWindow() (time.Duration, error) {
	window := os.Getenv("CIRCUIT_BREAKER_WINDOW")
	if window == "" {
		return DefaultCircuitBreakerWindow * time.Second, nil
	}

	parsed, err := time.ParseDuration(window)
	if err != nil {
		return 0, fmt.Errorf("invalid CIRCUIT_BREAKER_WINDOW value: %s, must be a valid duration string", window)
	}
	return parsed, nil
}

// GetEnvCircuitBreakerReset returns the circuit breaker reset timeout from environment variables
func GetEnvCircuitBreakerReset() (time.Duration, error) {
	reset := os.Getenv("CIRCUIT_BREAKER_RESET")
	if reset == "" {
		return DefaultCircuitBreakerReset * time.Second, nil
	}

	parsed, err := time.ParseDuration(reset)
	if err != nil {
		return 0, fmt.Errorf("invalid CIRCUIT_BREAKER_RESET value: %s, must be a valid duration string", reset)
	}
	return parsed, nil
}

// GetEnvMaxGasPrice returns the maximum gas price from environment variables
func GetEnvMaxGasPrice() (*big.Int, error) {
	maxGasPrice := os.Getenv("MAX_GAS_PRICE")
	if maxGasPrice == "" {
		maxGasPrice = DefaultMaxGasPrice
	}

	maxGasPriceBig := new(big.Int)
	if _, ok := maxGasPriceBig.SetString(maxGasPrice, 10); !ok {
		return nil, fmt.Errorf("invalid MAX_GAS_PRICE value: %s, must be a valid integer string", maxGasPrice)
	}

	if maxGasPriceBig.Sign() < 0 {
		return nil, fmt.Errorf("MAX_GAS_PRICE must be greater than or equal to 0")
	}
	return maxGasPriceBig, nil
}

// GetEnvLogLevel returns the log level from environment variables
func GetEnvLogLevel() (logger.Level, error) {
	level := os.Getenv("LOG_LEVEL")
	switch level {
	case "":
		return logger.InfoLevel, nil
	case "debug":
		return logger.DebugLevel, nil
	case "info":
		return logger.InfoLevel, nil
	case "notice":
		return logger.NoticeLevel, nil
	case "error":
		return logger.ErrorLevel, nil
	}
	return 0, fmt.Errorf("invalid LOG_LEVEL value: %s, must be 'debug', 'info', 'notice' or 'error'", level)
}

// GetEnvLogColoring returns whether log coloring is enabled from environment variables
func GetEnvLogColoring() (bool, error) {
	coloring := os.Getenv("LOG_COLORING")
	if coloring == "" {
		return true, nil
	}

	if coloring == "true" {
		return true, nil
	} else if coloring == "false" {
		return false, nil
	}

	return false, fmt.Errorf("invalid LOG_COLORING value: %s, must be 'true' or 'false'", coloring)
}

// GetEnvAllowBlockLists returns the sender/recipient allow and block lists
// from environment variables, as JSON arrays of list items.
func GetEnvAllowBlockLists() (filter.AllowBlockLists, error) {
	var lists filter.AllowBlockLists

	if raw := os.Getenv("ALLOW_LIST"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &lists.AllowList); err != nil {
			return filter.AllowBlockLists{}, fmt.Errorf("invalid ALLOW_LIST value: %v", err)
		}
	}
	if raw := os.Getenv("BLOCK_LIST"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &lists.BlockList); err != nil {
			return filter.AllowBlockLists{}, fmt.Errorf("invalid BLOCK_LIST value: %v", err)
		}
	}
	return lists, nil
}

// GetEnvChainConfigs returns the chain configurations for every supported
// chain that has a settler address configured. A chain without a settler is
// simply not served.
func GetEnvChainConfigs() (map[int64]ChainConfig, error) {
	configs := make(map[int64]ChainConfig)

	for _, chainID := range chains.ChainList {
		name := chains.GetChainName(chainID)

		settler := os.Getenv(name + "_SETTLER_ADDRESS")
		if settler == "" {
			continue
		}

		rpc := os.Getenv(name + "_RPC_URL")
		if rpc == "" {
			rpc = defaultRPCURLs[chainID]
		}

		configs[chainID] = ChainConfig{
			ChainID:        chainID,
			RPCURL:         rpc,
			SettlerAddress: settler,
		}
	}

	return configs, nil
}
