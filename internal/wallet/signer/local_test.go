package signer

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const (
	testKeyHex     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testKeyAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func TestHexKeyPrefixIsOptional(t *testing.T) {
	plain, err := NewLocalSigner(LocalSignerConfig{PrivateKeyHex: testKeyHex})
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	prefixed, err := NewLocalSigner(LocalSignerConfig{PrivateKeyHex: "0x" + testKeyHex})
	if err != nil {
		t.Fatalf("NewLocalSigner with prefix failed: %v", err)
	}
	if plain.Address() != prefixed.Address() {
		t.Fatalf("addresses differ: %s vs %s", plain.Address(), prefixed.Address())
	}
	if plain.Address() != common.HexToAddress(testKeyAddress) {
		t.Fatalf("unexpected address: %s", plain.Address())
	}
}

func TestPrivateKeyFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.hex")
	if err := os.WriteFile(path, []byte(testKeyHex+"\n"), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	s, err := NewLocalSigner(LocalSignerConfig{PrivateKeyFile: path})
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	if s.Address() != common.HexToAddress(testKeyAddress) {
		t.Fatalf("unexpected address: %s", s.Address())
	}
}

func TestMissingKeyIsAnError(t *testing.T) {
	if _, err := NewLocalSigner(LocalSignerConfig{}); err == nil {
		t.Fatal("expected error when no key material is configured")
	}
}

func TestEnvSourceIgnoresKeyFiles(t *testing.T) {
	t.Setenv(EnvPrivateKey, "")
	t.Setenv(EnvPrivateKeyFile, filepath.Join(t.TempDir(), "missing"))
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if _, err := NewLocalSignerFromEnv(KeySourceEnv); err == nil {
		t.Fatal("env source without the env var must fail")
	}

	t.Setenv(EnvPrivateKey, testKeyHex)
	s, err := NewLocalSignerFromEnv(KeySourceEnv)
	if err != nil {
		t.Fatalf("NewLocalSignerFromEnv failed: %v", err)
	}
	if s.Address() != common.HexToAddress(testKeyAddress) {
		t.Fatalf("unexpected address: %s", s.Address())
	}
}

func TestUnsupportedKeySource(t *testing.T) {
	if _, err := NewLocalSignerFromEnv("ledger"); err == nil {
		t.Fatal("expected error for unsupported source")
	}
}

func TestSignTxProducesChainBoundSignature(t *testing.T) {
	s, err := NewLocalSigner(LocalSignerConfig{PrivateKeyHex: testKeyHex})
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(8453),
		Nonce:     0,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(1),
	})
	signed, err := s.SignTx(big.NewInt(8453), tx)
	if err != nil {
		t.Fatalf("SignTx failed: %v", err)
	}
	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(8453)), signed)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if sender != s.Address() {
		t.Fatalf("recovered sender %s does not match signer %s", sender, s.Address())
	}
}
