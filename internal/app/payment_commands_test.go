package app

import (
	"testing"

	clierr "github.com/payflowhq/payflow/internal/errors"
	"github.com/payflowhq/payflow/internal/id"
	"github.com/payflowhq/payflow/internal/registry"
)

func mustChain(t *testing.T, slug string) id.Chain {
	t.Helper()
	chain, err := id.ParseChain(slug)
	if err != nil {
		t.Fatalf("ParseChain(%s) failed: %v", slug, err)
	}
	return chain
}

func TestResolveTokenUsesChainTable(t *testing.T) {
	cases := []struct {
		symbol   string
		chain    string
		address  string
		decimals int
	}{
		{"OP", "optimism", "0x4200000000000000000000000000000000000042", 18},
		{"ARB", "arbitrum", "0x912CE59144191C1204E64559FE8253a0e49E6548", 18},
		{"WBTC", "optimism", "0x68f180fcCe6836688e9084f035309E29Bf0A2095", 8},
		{"LINK", "base", "0x88Fb150BDc53A65fe94Dea0c9BA0a6dAf8C6e196", 18},
		{"usdc", "base", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", 6},
	}
	for _, tc := range cases {
		token, err := resolveToken(tc.symbol, mustChain(t, tc.chain))
		if err != nil {
			t.Fatalf("resolveToken(%s, %s) failed: %v", tc.symbol, tc.chain, err)
		}
		if token.Address != tc.address || token.Decimals != tc.decimals {
			t.Fatalf("resolveToken(%s, %s) = %+v", tc.symbol, tc.chain, token)
		}
	}
}

func TestResolveTokenRejectsUndeployedSymbol(t *testing.T) {
	cases := []struct {
		symbol string
		chain  string
	}{
		{"OP", "polygon"},
		{"ARB", "ethereum"},
		{"USDT", "base"},
		{"WBTC", "base"},
	}
	for _, tc := range cases {
		_, err := resolveToken(tc.symbol, mustChain(t, tc.chain))
		cErr, ok := clierr.As(err)
		if !ok || cErr.Code != clierr.CodeUnsupported {
			t.Fatalf("resolveToken(%s, %s): expected unsupported error, got %v", tc.symbol, tc.chain, err)
		}
	}
}

func TestResolveTokenNativeSentinel(t *testing.T) {
	token, err := resolveToken("ETH", mustChain(t, "base"))
	if err != nil {
		t.Fatalf("resolveToken(ETH, base) failed: %v", err)
	}
	if !registry.IsZeroAddress(token.Address) || token.Decimals != 18 {
		t.Fatalf("native token should resolve to the zero-address sentinel: %+v", token)
	}

	pol, err := resolveToken("POL", mustChain(t, "polygon"))
	if err != nil {
		t.Fatalf("resolveToken(POL, polygon) failed: %v", err)
	}
	if !registry.IsZeroAddress(pol.Address) {
		t.Fatalf("POL on Polygon should resolve to the zero-address sentinel: %+v", pol)
	}
}

func TestResolveTokenKeepsAddressPassthrough(t *testing.T) {
	address := "0x9999999999999999999999999999999999999999"
	token, err := resolveToken(address, mustChain(t, "base"))
	if err != nil {
		t.Fatalf("resolveToken(address) failed: %v", err)
	}
	if token.Address != address {
		t.Fatalf("unknown addresses pass through unchanged: %+v", token)
	}
}
