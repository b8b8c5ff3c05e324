package registry

import "strings"

// ZeroAddress doubles as the native-token sentinel in routing requests and
// the "not deployed on this chain" sentinel in the per-chain tables below.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

func IsZeroAddress(address string) bool {
	return strings.EqualFold(strings.TrimSpace(address), ZeroAddress)
}

// TokenInfo is a symbol plus display metadata; the chain-specific address
// comes from tokenAddressByChain.
type TokenInfo struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int    `json:"decimals"`
}

// receiveTokens is the fixed menu of destination tokens offered for payment
// requests, in display order.
var receiveTokens = []TokenInfo{
	{Symbol: "ETH", Name: "Ethereum", Decimals: 18},
	{Symbol: "USDC", Name: "USD Coin", Decimals: 6},
	{Symbol: "USDT", Name: "Tether USD", Decimals: 6},
	{Symbol: "DAI", Name: "Dai Stablecoin", Decimals: 18},
	{Symbol: "WBTC", Name: "Wrapped Bitcoin", Decimals: 8},
	{Symbol: "ARB", Name: "Arbitrum", Decimals: 18},
	{Symbol: "OP", Name: "Optimism", Decimals: 18},
	{Symbol: "POL", Name: "Polygon", Decimals: 18},
	{Symbol: "LINK", Name: "Chainlink", Decimals: 18},
	{Symbol: "UNI", Name: "Uniswap", Decimals: 18},
	{Symbol: "AAVE", Name: "Aave", Decimals: 18},
}

// tokenAddressByChain maps symbol -> chainID -> deployed address. The zero
// address marks tokens with no deployment on that chain; callers must treat
// it as unavailable, never as a real destination.
var tokenAddressByChain = map[string]map[int64]string{
	"ETH": {
		1:     ZeroAddress,
		42161: ZeroAddress,
		10:    ZeroAddress,
		8453:  ZeroAddress,
	},
	"USDC": {
		1:     "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		42161: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
		10:    "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85",
		137:   "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359",
		8453:  "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
	},
	"USDT": {
		1:     "0xdAC17F958D2ee523a2206206994597C13D831ec7",
		42161: "0xFd086bC7CD5C481DCC9C85ebe478A1C0b69FCbb9",
		10:    "0x94b008aA00579c1307B0EF2c499aD98a8ce58e58",
		137:   "0xc2132D05D31c914a87C6611C10748AEb04B58e8F",
	},
	"DAI": {
		1:     "0x6B175474E89094C44Da98b954EedeAC495271d0F",
		42161: "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1",
		10:    "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1",
		137:   "0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063",
		8453:  "0x50c5725949A6F0c72E6C4a641F24049A917DB0Cb",
	},
	"WBTC": {
		1:     "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599",
		42161: "0x2f2a2543B76A4166549F7aaB2e75Bef0aefC5B0f",
		10:    "0x68f180fcCe6836688e9084f035309E29Bf0A2095",
		137:   "0x1BFD67037B42Cf73acF2047067bd4F2C47D9BfD6",
	},
	"ARB": {
		42161: "0x912CE59144191C1204E64559FE8253a0e49E6548",
	},
	"OP": {
		10: "0x4200000000000000000000000000000000000042",
	},
	"POL": {
		137: ZeroAddress,
	},
	"LINK": {
		1:     "0x514910771AF9Ca656af840dff83E8264EcF986CA",
		42161: "0xf97f4df75117a78c1A5a0DBb814Af92458539FB4",
		10:    "0x350a791Bfc2C21F9Ed5d10980Dad2e2638ffa7f6",
		137:   "0x53E0bca35eC356BD5ddDFebbD1Fc0fD03FaBad39",
		8453:  "0x88Fb150BDc53A65fe94Dea0c9BA0a6dAf8C6e196",
	},
	"UNI": {
		1:     "0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984",
		42161: "0xFa7F8980b0f1E64A2062791cc3b0871572f1F7f0",
		10:    "0x6fd9d7AD17242c41f7131d257212c54A0e816691",
		137:   "0xb33EaAd8d922B1083446DC23f610c2567fB5180f",
	},
	"AAVE": {
		1:     "0x7Fc66500c84A76Ad7e9c93437bFc5Ac33E2DDaE9",
		42161: "0xba5DdD1f9d7F570dc94a51479a000E3BCE967196",
		10:    "0x76FB31fb4af56892A25e32cFC43De717950c9278",
		137:   "0xD6DF932A45C0f255f85145f286eA0b292B21C90B",
	},
}

func ReceiveTokens() []TokenInfo {
	out := make([]TokenInfo, len(receiveTokens))
	copy(out, receiveTokens)
	return out
}

func ReceiveTokenBySymbol(symbol string) (TokenInfo, bool) {
	for _, t := range receiveTokens {
		if strings.EqualFold(t.Symbol, symbol) {
			return t, true
		}
	}
	return TokenInfo{}, false
}

// TokenAddressOnChain resolves a receive-token symbol on a chain. The second
// return is false when the token table has no entry for the chain at all.
// A zero-address result for a non-native token means "listed but not
// deployed"; IsNativeToken distinguishes the two cases.
func TokenAddressOnChain(symbol string, chainID int64) (string, bool) {
	byChain, ok := tokenAddressByChain[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return "", false
	}
	address, ok := byChain[chainID]
	return address, ok
}

// IsNativeToken reports whether the symbol is the chain's gas token, where
// the zero address is a legitimate routing identifier.
func IsNativeToken(symbol string, chainID int64) bool {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	switch chainID {
	case 137:
		return s == "POL" || s == "MATIC"
	default:
		return s == "ETH"
	}
}
