package registry

import "fmt"

// NativeCurrency describes the gas token of a chain, in the shape
// wallet_addEthereumChain expects.
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// ChainInfo is the full metadata for a supported chain. The set is fixed at
// compile time; there is no runtime chain discovery.
type ChainInfo struct {
	ChainID        int64          `json:"chain_id"`
	Name           string         `json:"name"`
	Slug           string         `json:"slug"`
	NativeCurrency NativeCurrency `json:"native_currency"`
	RPCURL         string         `json:"rpc_url"`
	ExplorerURL    string         `json:"explorer_url"`
	USDCAddress    string         `json:"usdc_address"`
}

var supportedChains = []ChainInfo{
	{
		ChainID:        1,
		Name:           "Ethereum",
		Slug:           "ethereum",
		NativeCurrency: NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
		RPCURL:         "https://eth.llamarpc.com",
		ExplorerURL:    "https://etherscan.io",
		USDCAddress:    "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
	},
	{
		ChainID:        42161,
		Name:           "Arbitrum",
		Slug:           "arbitrum",
		NativeCurrency: NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
		RPCURL:         "https://arb1.arbitrum.io/rpc",
		ExplorerURL:    "https://arbiscan.io",
		USDCAddress:    "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
	},
	{
		ChainID:        10,
		Name:           "Optimism",
		Slug:           "optimism",
		NativeCurrency: NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
		RPCURL:         "https://mainnet.optimism.io",
		ExplorerURL:    "https://optimistic.etherscan.io",
		USDCAddress:    "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85",
	},
	{
		ChainID:        137,
		Name:           "Polygon",
		Slug:           "polygon",
		NativeCurrency: NativeCurrency{Name: "MATIC", Symbol: "MATIC", Decimals: 18},
		RPCURL:         "https://polygon-rpc.com",
		ExplorerURL:    "https://polygonscan.com",
		USDCAddress:    "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
	},
	{
		ChainID:        8453,
		Name:           "Base",
		Slug:           "base",
		NativeCurrency: NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
		RPCURL:         "https://mainnet.base.org",
		ExplorerURL:    "https://basescan.org",
		USDCAddress:    "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
	},
}

func SupportedChains() []ChainInfo {
	out := make([]ChainInfo, len(supportedChains))
	copy(out, supportedChains)
	return out
}

func ChainInfoByID(chainID int64) (ChainInfo, bool) {
	for _, chain := range supportedChains {
		if chain.ChainID == chainID {
			return chain, true
		}
	}
	return ChainInfo{}, false
}

func IsSupportedChain(chainID int64) bool {
	_, ok := ChainInfoByID(chainID)
	return ok
}

// AddChainParams is the wallet_addEthereumChain parameter object for a chain.
type AddChainParams struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls"`
}

func AddChainParamsFor(chainID int64) (AddChainParams, bool) {
	chain, ok := ChainInfoByID(chainID)
	if !ok {
		return AddChainParams{}, false
	}
	return AddChainParams{
		ChainID:           fmt.Sprintf("0x%x", chain.ChainID),
		ChainName:         chain.Name,
		NativeCurrency:    chain.NativeCurrency,
		RPCURLs:           []string{chain.RPCURL},
		BlockExplorerURLs: []string{chain.ExplorerURL},
	}, true
}

// ExplorerTxURL returns the block explorer link for a transaction hash, or
// empty when the chain is unknown.
func ExplorerTxURL(chainID int64, txHash string) string {
	chain, ok := ChainInfoByID(chainID)
	if !ok || txHash == "" {
		return ""
	}
	return fmt.Sprintf("%s/tx/%s", chain.ExplorerURL, txHash)
}
