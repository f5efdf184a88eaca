package chains

// ChainList contains the list of supported chain IDs
var ChainList = []int64{
	1,     // Ethereum
	10,    // Optimism
	137,   // Polygon
	42161, // Arbitrum
	8453,  // Base
	56,    // Binance Smart Chain
	43114, // Avalanche
}

// chainNames maps chain IDs to their names
var chainNames = map[int64]string{
	1:     "ETHEREUM",
	10:    "OPTIMISM",
	137:   "POLYGON",
	42161: "ARBITRUM",
	8453:  "BASE",
	56:    "BSC",
	43114: "AVALANCHE",
}

// RefundGasLimitCap caps the gas limit used for refund transactions per chain.
// The scanner estimates gas and adds a margin; the cap keeps a pathological
// estimate from draining the signer.
var RefundGasLimitCap = map[int64]uint64{
	1:     400000,
	10:    400000,
	137:   400000,
	42161: 1000000, // Arbitrum gas accounting inflates estimates
	8453:  400000,
	56:    400000,
	43114: 400000,
}

// GetChainName returns the name of the chain for a given chain ID
func GetChainName(chainID int64) string {
	name, exists := chainNames[chainID]
	if !exists {
		return ""
	}
	return name
}

// IsSupported reports whether the chain ID is in the supported set
func IsSupported(chainID int64) bool {
	_, exists := chainNames[chainID]
	return exists
}
