package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// EIP-1193 provider error codes surfaced by wallets.
const (
	CodeUserRejected      = 4001
	CodeUnrecognizedChain = 4902
)

// Provider is the minimal EIP-1193 surface the payment pipeline needs.
// Implementations must return *RPCError for wallet-level failures so callers
// can branch on the code.
type Provider interface {
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

// RPCError mirrors the EIP-1193 ProviderRpcError shape.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("wallet rpc error %d: %s", e.Code, e.Message)
}

func AsRPCError(err error) (*RPCError, bool) {
	var target *RPCError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// SwitchChainParams is the wallet_switchEthereumChain parameter object.
type SwitchChainParams struct {
	ChainID string `json:"chainId"`
}

// CallParams is the eth_call parameter object.
type CallParams struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
	Data string `json:"data"`
}

// SendTransactionParams is the eth_sendTransaction parameter object.
// Numeric fields use hex quantity encoding.
type SendTransactionParams struct {
	From     string `json:"from,omitempty"`
	To       string `json:"to"`
	Data     string `json:"data,omitempty"`
	Value    string `json:"value,omitempty"`
	Gas      string `json:"gas,omitempty"`
	GasPrice string `json:"gasPrice,omitempty"`
}

// Receipt is the subset of eth_getTransactionReceipt consumed by the
// execution engine. Status is "0x1" or "0x0".
type Receipt struct {
	TransactionHash string `json:"transactionHash"`
	Status          string `json:"status"`
	BlockNumber     string `json:"blockNumber"`
}
