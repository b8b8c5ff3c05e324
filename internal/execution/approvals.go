package execution

import (
	"context"
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	clierr "github.com/payflowhq/payflow/internal/errors"
	"github.com/payflowhq/payflow/internal/registry"
	"github.com/payflowhq/payflow/internal/wallet"
)

var erc20ABI = mustABI(registry.ERC20MinimalABI)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// Allowance reads the current ERC-20 allowance through the wallet provider.
// A failed read degrades to zero so the caller approves rather than sends a
// transfer that would revert.
func Allowance(ctx context.Context, provider wallet.Provider, token, owner, spender string) *big.Int {
	data, err := erc20ABI.Pack("allowance", common.HexToAddress(owner), common.HexToAddress(spender))
	if err != nil {
		return big.NewInt(0)
	}
	raw, err := provider.Request(ctx, "eth_call", wallet.CallParams{
		From: owner,
		To:   token,
		Data: "0x" + hex.EncodeToString(data),
	})
	if err != nil {
		return big.NewInt(0)
	}
	var result string
	if err := unmarshalRaw(raw, &result); err != nil {
		return big.NewInt(0)
	}
	out, err := erc20ABI.Unpack("allowance", hexBytes(result))
	if err != nil || len(out) == 0 {
		return big.NewInt(0)
	}
	allowance, ok := out[0].(*big.Int)
	if !ok {
		return big.NewInt(0)
	}
	return allowance
}

// Approve submits an exact-amount approval and returns the transaction hash.
// Unlimited approvals are deliberately not offered.
func Approve(ctx context.Context, provider wallet.Provider, token, owner, spender string, amount *big.Int) (string, error) {
	data, err := erc20ABI.Pack("approve", common.HexToAddress(spender), amount)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "pack approve calldata", err)
	}
	raw, err := provider.Request(ctx, "eth_sendTransaction", wallet.SendTransactionParams{
		From: owner,
		To:   token,
		Data: "0x" + hex.EncodeToString(data),
	})
	if err != nil {
		return "", clierr.Wrap(clierr.CodeWallet, "submit approval", err)
	}
	var txHash string
	if err := unmarshalRaw(raw, &txHash); err != nil {
		return "", clierr.Wrap(clierr.CodeWallet, "decode approval response", err)
	}
	return txHash, nil
}

// NeedsApproval reports whether an approval transaction must run before the
// main transfer. Native-token sends never need one.
func NeedsApproval(ctx context.Context, provider wallet.Provider, token, owner, spender, amountBaseUnits string) bool {
	if strings.TrimSpace(spender) == "" || registry.IsZeroAddress(token) {
		return false
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(amountBaseUnits), 10)
	if !ok || amount.Sign() <= 0 {
		return false
	}
	return Allowance(ctx, provider, token, owner, spender).Cmp(amount) < 0
}

func hexBytes(v string) []byte {
	clean := strings.TrimPrefix(strings.TrimSpace(v), "0x")
	if len(clean)%2 != 0 {
		clean = "0" + clean
	}
	buf, err := hex.DecodeString(clean)
	if err != nil {
		return nil
	}
	return buf
}
