package wallet

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/payflowhq/payflow/internal/registry"
	"github.com/payflowhq/payflow/internal/wallet/signer"
)

const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func testWallet(t *testing.T) *LocalWallet {
	t.Helper()
	s, err := signer.NewLocalSigner(signer.LocalSignerConfig{PrivateKeyHex: testKeyHex})
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	w, err := NewLocalWallet(s, 1, nil)
	if err != nil {
		t.Fatalf("NewLocalWallet failed: %v", err)
	}
	t.Cleanup(w.Close)
	return w
}

func TestNewLocalWalletRequiresSigner(t *testing.T) {
	if _, err := NewLocalWallet(nil, 1, nil); err == nil {
		t.Fatal("expected error for nil signer")
	}
}

func TestNewLocalWalletRejectsUnknownStartChain(t *testing.T) {
	s, err := signer.NewLocalSigner(signer.LocalSignerConfig{PrivateKeyHex: testKeyHex})
	if err != nil {
		t.Fatalf("NewLocalSigner failed: %v", err)
	}
	if _, err := NewLocalWallet(s, 56, nil); err == nil {
		t.Fatal("expected error for chain without an endpoint")
	}
}

func TestChainIDAndAccounts(t *testing.T) {
	w := testWallet(t)

	raw, err := w.Request(context.Background(), "eth_chainId")
	if err != nil {
		t.Fatalf("eth_chainId failed: %v", err)
	}
	var chainHex string
	if err := json.Unmarshal(raw, &chainHex); err != nil {
		t.Fatalf("decode chain id: %v", err)
	}
	if chainHex != "0x1" {
		t.Fatalf("unexpected chain id: %s", chainHex)
	}

	raw, err = w.Request(context.Background(), "eth_accounts")
	if err != nil {
		t.Fatalf("eth_accounts failed: %v", err)
	}
	var accounts []string
	if err := json.Unmarshal(raw, &accounts); err != nil {
		t.Fatalf("decode accounts: %v", err)
	}
	if len(accounts) != 1 || accounts[0] != "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266" {
		t.Fatalf("unexpected accounts: %v", accounts)
	}
}

func TestSwitchChainUpdatesActiveChain(t *testing.T) {
	w := testWallet(t)

	_, err := w.Request(context.Background(), "wallet_switchEthereumChain", SwitchChainParams{ChainID: "0x2105"})
	if err != nil {
		t.Fatalf("switch failed: %v", err)
	}
	if w.ChainID() != 8453 {
		t.Fatalf("expected active chain 8453, got %d", w.ChainID())
	}
}

func TestSwitchUnknownChainReturns4902(t *testing.T) {
	w := testWallet(t)

	_, err := w.Request(context.Background(), "wallet_switchEthereumChain", SwitchChainParams{ChainID: "0x38"})
	rpcErr, ok := AsRPCError(err)
	if !ok || rpcErr.Code != CodeUnrecognizedChain {
		t.Fatalf("expected 4902, got %v", err)
	}
	if w.ChainID() != 1 {
		t.Fatal("failed switch must not change the active chain")
	}
}

func TestAddChainThenSwitch(t *testing.T) {
	w := testWallet(t)

	params, ok := registry.AddChainParamsFor(8453)
	if !ok {
		t.Fatal("missing add-chain params for base")
	}
	params.ChainID = "0x38"
	params.RPCURLs = []string{"http://127.0.0.1:1"}
	if _, err := w.Request(context.Background(), "wallet_addEthereumChain", params); err != nil {
		t.Fatalf("add chain failed: %v", err)
	}
	if _, err := w.Request(context.Background(), "wallet_switchEthereumChain", SwitchChainParams{ChainID: "0x38"}); err != nil {
		t.Fatalf("switch after add failed: %v", err)
	}
	if w.ChainID() != 56 {
		t.Fatalf("expected active chain 56, got %d", w.ChainID())
	}
}

func TestAddChainRequiresRPCURL(t *testing.T) {
	w := testWallet(t)

	_, err := w.Request(context.Background(), "wallet_addEthereumChain", registry.AddChainParams{ChainID: "0x38"})
	rpcErr, ok := AsRPCError(err)
	if !ok || rpcErr.Code != -32602 {
		t.Fatalf("expected invalid params, got %v", err)
	}
}

func TestUnsupportedMethod(t *testing.T) {
	w := testWallet(t)

	_, err := w.Request(context.Background(), "personal_sign", "0xdeadbeef")
	rpcErr, ok := AsRPCError(err)
	if !ok || rpcErr.Code != -32601 {
		t.Fatalf("expected method-not-found, got %v", err)
	}
}

func TestSendTransactionRequiresTo(t *testing.T) {
	w := testWallet(t)

	_, err := w.Request(context.Background(), "eth_sendTransaction", SendTransactionParams{Data: "0x"})
	rpcErr, ok := AsRPCError(err)
	if !ok || rpcErr.Code != -32602 {
		t.Fatalf("expected invalid params, got %v", err)
	}
}
