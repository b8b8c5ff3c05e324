package wallet

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/payflowhq/payflow/internal/registry"
	"github.com/payflowhq/payflow/internal/wallet/signer"
)

// LocalWallet is a headless EIP-1193 provider backed by a local signing key
// and one JSON-RPC endpoint per chain. It plays the role a browser wallet
// plays for the pipeline: chain switching, calls, sends, receipts.
type LocalWallet struct {
	signer signer.Signer

	mu            sync.Mutex
	activeChainID int64
	endpoints     map[int64]string
	clients       map[int64]*ethclient.Client
}

// NewLocalWallet starts on chainID with the given endpoint table. A nil or
// empty table falls back to the registry defaults.
func NewLocalWallet(txSigner signer.Signer, chainID int64, endpoints map[int64]string) (*LocalWallet, error) {
	if txSigner == nil {
		return nil, fmt.Errorf("wallet requires a signer")
	}
	if len(endpoints) == 0 {
		endpoints = registry.DefaultRPCEndpoints()
	}
	table := make(map[int64]string, len(endpoints))
	for id, rpcURL := range endpoints {
		table[id] = rpcURL
	}
	if _, ok := table[chainID]; !ok {
		return nil, fmt.Errorf("no rpc endpoint for starting chain %d", chainID)
	}
	return &LocalWallet{
		signer:        txSigner,
		activeChainID: chainID,
		endpoints:     table,
		clients:       make(map[int64]*ethclient.Client),
	}, nil
}

func (w *LocalWallet) Address() common.Address {
	return w.signer.Address()
}

func (w *LocalWallet) ChainID() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.activeChainID
}

func (w *LocalWallet) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, client := range w.clients {
		client.Close()
	}
	w.clients = make(map[int64]*ethclient.Client)
}

func (w *LocalWallet) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	switch method {
	case "eth_chainId":
		return marshalResult(fmt.Sprintf("0x%x", w.ChainID()))
	case "eth_accounts", "eth_requestAccounts":
		return marshalResult([]string{w.signer.Address().Hex()})
	case "eth_call":
		return w.handleCall(ctx, params)
	case "eth_sendTransaction":
		return w.handleSendTransaction(ctx, params)
	case "eth_getTransactionReceipt":
		return w.handleGetReceipt(ctx, params)
	case "wallet_switchEthereumChain":
		return w.handleSwitchChain(params)
	case "wallet_addEthereumChain":
		return w.handleAddChain(params)
	default:
		return nil, &RPCError{Code: -32601, Message: fmt.Sprintf("method %s is not supported", method)}
	}
}

func (w *LocalWallet) handleSwitchChain(params []any) (json.RawMessage, error) {
	var req SwitchChainParams
	if err := decodeParam(params, 0, &req); err != nil {
		return nil, err
	}
	chainID, err := parseHexQuantity(req.ChainID)
	if err != nil {
		return nil, &RPCError{Code: -32602, Message: "invalid chainId"}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.endpoints[chainID.Int64()]; !ok {
		return nil, &RPCError{Code: CodeUnrecognizedChain, Message: fmt.Sprintf("unrecognized chain id %d", chainID.Int64())}
	}
	w.activeChainID = chainID.Int64()
	return marshalResult(nil)
}

func (w *LocalWallet) handleAddChain(params []any) (json.RawMessage, error) {
	var req registry.AddChainParams
	if err := decodeParam(params, 0, &req); err != nil {
		return nil, err
	}
	chainID, err := parseHexQuantity(req.ChainID)
	if err != nil {
		return nil, &RPCError{Code: -32602, Message: "invalid chainId"}
	}
	if len(req.RPCURLs) == 0 || strings.TrimSpace(req.RPCURLs[0]) == "" {
		return nil, &RPCError{Code: -32602, Message: "rpcUrls is required"}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.endpoints[chainID.Int64()] = strings.TrimSpace(req.RPCURLs[0])
	return marshalResult(nil)
}

func (w *LocalWallet) handleCall(ctx context.Context, params []any) (json.RawMessage, error) {
	var req CallParams
	if err := decodeParam(params, 0, &req); err != nil {
		return nil, err
	}
	client, err := w.activeClient(ctx)
	if err != nil {
		return nil, err
	}
	to := common.HexToAddress(req.To)
	data, err := decodeHexData(req.Data)
	if err != nil {
		return nil, &RPCError{Code: -32602, Message: "invalid call data"}
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	if strings.TrimSpace(req.From) != "" {
		msg.From = common.HexToAddress(req.From)
	}
	out, err := client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, &RPCError{Code: -32000, Message: err.Error()}
	}
	return marshalResult("0x" + hex.EncodeToString(out))
}

func (w *LocalWallet) handleSendTransaction(ctx context.Context, params []any) (json.RawMessage, error) {
	var req SendTransactionParams
	if err := decodeParam(params, 0, &req); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.To) == "" {
		return nil, &RPCError{Code: -32602, Message: "to is required"}
	}
	client, err := w.activeClient(ctx)
	if err != nil {
		return nil, err
	}
	chainID := big.NewInt(w.ChainID())

	to := common.HexToAddress(req.To)
	data, err := decodeHexData(req.Data)
	if err != nil {
		return nil, &RPCError{Code: -32602, Message: "invalid transaction data"}
	}
	value := big.NewInt(0)
	if strings.TrimSpace(req.Value) != "" {
		value, err = parseHexQuantity(req.Value)
		if err != nil {
			return nil, &RPCError{Code: -32602, Message: "invalid value"}
		}
	}

	msg := ethereum.CallMsg{From: w.signer.Address(), To: &to, Value: value, Data: data}
	gasLimit, err := w.resolveGasLimit(ctx, client, msg, req.Gas)
	if err != nil {
		return nil, err
	}
	tipCap, feeCap, err := w.resolveFees(ctx, client)
	if err != nil {
		return nil, err
	}
	nonce, err := client.PendingNonceAt(ctx, w.signer.Address())
	if err != nil {
		return nil, &RPCError{Code: -32000, Message: fmt.Sprintf("fetch nonce: %v", err)}
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})
	signed, err := w.signer.SignTx(chainID, tx)
	if err != nil {
		return nil, &RPCError{Code: -32000, Message: fmt.Sprintf("sign transaction: %v", err)}
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return nil, &RPCError{Code: -32000, Message: fmt.Sprintf("broadcast transaction: %v", err)}
	}
	return marshalResult(signed.Hash().Hex())
}

func (w *LocalWallet) handleGetReceipt(ctx context.Context, params []any) (json.RawMessage, error) {
	var hash string
	if err := decodeParam(params, 0, &hash); err != nil {
		return nil, err
	}
	client, err := w.activeClient(ctx)
	if err != nil {
		return nil, err
	}
	receipt, err := client.TransactionReceipt(ctx, common.HexToHash(hash))
	if err != nil {
		// Pending transactions have no receipt; EIP-1193 returns null.
		return marshalResult(nil)
	}
	status := "0x0"
	if receipt.Status == types.ReceiptStatusSuccessful {
		status = "0x1"
	}
	return marshalResult(Receipt{
		TransactionHash: receipt.TxHash.Hex(),
		Status:          status,
		BlockNumber:     fmt.Sprintf("0x%x", receipt.BlockNumber),
	})
}

func (w *LocalWallet) resolveGasLimit(ctx context.Context, client *ethclient.Client, msg ethereum.CallMsg, gasHex string) (uint64, error) {
	if strings.TrimSpace(gasHex) != "" {
		gas, err := parseHexQuantity(gasHex)
		if err == nil && gas.IsUint64() && gas.Uint64() > 0 {
			return gas.Uint64(), nil
		}
	}
	gasLimit, err := client.EstimateGas(ctx, msg)
	if err != nil {
		return 0, &RPCError{Code: -32000, Message: fmt.Sprintf("estimate gas: %v", err)}
	}
	return uint64(float64(gasLimit) * 1.2), nil
}

func (w *LocalWallet) resolveFees(ctx context.Context, client *ethclient.Client) (*big.Int, *big.Int, error) {
	tipCap, err := client.SuggestGasTipCap(ctx)
	if err != nil {
		tipCap = big.NewInt(2_000_000_000) // 2 gwei fallback
	}
	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, &RPCError{Code: -32000, Message: fmt.Sprintf("fetch latest header: %v", err)}
	}
	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = big.NewInt(1_000_000_000)
	}
	feeCap := new(big.Int).Mul(baseFee, big.NewInt(2))
	feeCap.Add(feeCap, tipCap)
	return tipCap, feeCap, nil
}

func (w *LocalWallet) activeClient(ctx context.Context) (*ethclient.Client, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	chainID := w.activeChainID
	if client, ok := w.clients[chainID]; ok {
		return client, nil
	}
	rpcURL, ok := w.endpoints[chainID]
	if !ok {
		return nil, &RPCError{Code: CodeUnrecognizedChain, Message: fmt.Sprintf("unrecognized chain id %d", chainID)}
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, &RPCError{Code: -32000, Message: fmt.Sprintf("connect rpc: %v", err)}
	}
	w.clients[chainID] = client
	return client, nil
}

func decodeParam(params []any, index int, out any) error {
	if index >= len(params) {
		return &RPCError{Code: -32602, Message: "missing parameter"}
	}
	buf, err := json.Marshal(params[index])
	if err != nil {
		return &RPCError{Code: -32602, Message: "invalid parameter"}
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return &RPCError{Code: -32602, Message: "invalid parameter"}
	}
	return nil
}

func marshalResult(v any) (json.RawMessage, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, &RPCError{Code: -32603, Message: "encode result"}
	}
	return json.RawMessage(buf), nil
}

func parseHexQuantity(v string) (*big.Int, error) {
	clean := strings.TrimSpace(v)
	clean = strings.TrimPrefix(clean, "0x")
	if clean == "" {
		return nil, fmt.Errorf("empty hex quantity")
	}
	out, ok := new(big.Int).SetString(clean, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex quantity %q", v)
	}
	return out, nil
}

func decodeHexData(v string) ([]byte, error) {
	clean := strings.TrimSpace(v)
	clean = strings.TrimPrefix(clean, "0x")
	if clean == "" {
		return []byte{}, nil
	}
	if len(clean)%2 != 0 {
		clean = "0" + clean
	}
	return hex.DecodeString(clean)
}
