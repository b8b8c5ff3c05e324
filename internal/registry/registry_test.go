package registry

import "testing"

func TestSupportedChainSet(t *testing.T) {
	chains := SupportedChains()
	if len(chains) != 5 {
		t.Fatalf("expected 5 chains, got %d", len(chains))
	}
	want := map[int64]string{1: "Ethereum", 10: "Optimism", 137: "Polygon", 8453: "Base", 42161: "Arbitrum"}
	for _, chain := range chains {
		if want[chain.ChainID] != chain.Name {
			t.Fatalf("unexpected chain entry: %+v", chain)
		}
		if chain.RPCURL == "" || chain.ExplorerURL == "" || chain.USDCAddress == "" {
			t.Fatalf("incomplete chain metadata: %+v", chain)
		}
	}
	if IsSupportedChain(56) {
		t.Fatal("bsc should not be supported")
	}
}

func TestAddChainParamsFor(t *testing.T) {
	params, ok := AddChainParamsFor(8453)
	if !ok {
		t.Fatal("expected params for base")
	}
	if params.ChainID != "0x2105" {
		t.Fatalf("chain id must be hex: %s", params.ChainID)
	}
	if params.ChainName != "Base" || params.NativeCurrency.Symbol != "ETH" {
		t.Fatalf("unexpected params: %+v", params)
	}
	if len(params.RPCURLs) != 1 || len(params.BlockExplorerURLs) != 1 {
		t.Fatalf("expected singleton url lists: %+v", params)
	}

	if _, ok := AddChainParamsFor(56); ok {
		t.Fatal("unknown chain must not yield params")
	}
}

func TestExplorerTxURL(t *testing.T) {
	if got := ExplorerTxURL(42161, "0xabc"); got != "https://arbiscan.io/tx/0xabc" {
		t.Fatalf("unexpected url: %s", got)
	}
	if got := ExplorerTxURL(56, "0xabc"); got != "" {
		t.Fatalf("unknown chain should yield empty url, got %s", got)
	}
	if got := ExplorerTxURL(1, ""); got != "" {
		t.Fatalf("empty hash should yield empty url, got %s", got)
	}
}

func TestTokenAddressSentinels(t *testing.T) {
	address, ok := TokenAddressOnChain("ETH", 1)
	if !ok || !IsZeroAddress(address) {
		t.Fatalf("native ETH on mainnet should be the zero sentinel: %s", address)
	}
	if !IsNativeToken("ETH", 1) {
		t.Fatal("ETH is native on mainnet")
	}

	address, ok = TokenAddressOnChain("POL", 137)
	if !ok || !IsZeroAddress(address) {
		t.Fatalf("POL on polygon should be the zero sentinel: %s", address)
	}
	if !IsNativeToken("POL", 137) || !IsNativeToken("MATIC", 137) {
		t.Fatal("POL/MATIC are native on polygon")
	}
	if IsNativeToken("ETH", 137) {
		t.Fatal("ETH is not native on polygon")
	}

	address, ok = TokenAddressOnChain("USDC", 8453)
	if !ok || IsZeroAddress(address) {
		t.Fatalf("USDC on base should be a contract address: %s", address)
	}

	if _, ok := TokenAddressOnChain("USDT", 8453); ok {
		t.Fatal("USDT is not listed on base")
	}
}

func TestReceiveTokenRegistry(t *testing.T) {
	token, ok := ReceiveTokenBySymbol("usdc")
	if !ok || token.Decimals != 6 {
		t.Fatalf("unexpected USDC entry: %+v", token)
	}
	if _, ok := ReceiveTokenBySymbol("DOGE"); ok {
		t.Fatal("DOGE should not be a receive token")
	}
}

func TestIsAllowedStatusURL(t *testing.T) {
	cases := []struct {
		endpoint string
		want     bool
	}{
		{"", true},
		{"https://li.quest/v1/status", true},
		{"https://li.quest/v1/status/", true},
		{"http://li.quest/v1/status", false},
		{"https://li.quest/v1/quote", false},
		{"https://evil.example/v1/status", false},
		{"http://127.0.0.1:8080/status", true},
		{"http://localhost:9999/anything", true},
	}
	for _, tc := range cases {
		if got := IsAllowedStatusURL(tc.endpoint); got != tc.want {
			t.Fatalf("IsAllowedStatusURL(%q) = %v, want %v", tc.endpoint, got, tc.want)
		}
	}
}

func TestDefaultRPCEndpointsCopy(t *testing.T) {
	endpoints := DefaultRPCEndpoints()
	if len(endpoints) != 5 {
		t.Fatalf("expected 5 endpoints, got %d", len(endpoints))
	}
	endpoints[1] = "mutated"
	if fresh := DefaultRPCEndpoints(); fresh[1] == "mutated" {
		t.Fatal("DefaultRPCEndpoints must return a copy")
	}
}
