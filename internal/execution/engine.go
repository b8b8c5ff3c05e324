package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync/atomic"
	"time"

	clierr "github.com/payflowhq/payflow/internal/errors"
	"github.com/payflowhq/payflow/internal/model"
	"github.com/payflowhq/payflow/internal/providers/lifi"
	"github.com/payflowhq/payflow/internal/registry"
	"github.com/payflowhq/payflow/internal/wallet"
)

// Engine drives a single payment through the wallet: network switch,
// approval, send, confirmation. Only one run may be active at a time;
// progress is delivered as a stream of immutable snapshots.
type Engine struct {
	provider wallet.Provider
	lifi     *lifi.Client
	opts     Options
	active   atomic.Bool
}

func NewEngine(provider wallet.Provider, lifiClient *lifi.Client, opts Options) *Engine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 10 * time.Minute
	}
	return &Engine{provider: provider, lifi: lifiClient, opts: opts}
}

// Execute starts the run and returns its event stream. The channel closes
// after the terminal snapshot. A second call while a run is active fails
// immediately without touching the wallet.
func (e *Engine) Execute(ctx context.Context, intent model.PaymentIntent, route model.RouteOption) (<-chan Snapshot, error) {
	if route.TransactionRequest == nil {
		return nil, clierr.New(clierr.CodeUsage, "route has no executable transaction; fetch a quote first")
	}
	if !e.active.CompareAndSwap(false, true) {
		return nil, clierr.New(clierr.CodeUsage, "a payment is already executing")
	}
	events := make(chan Snapshot, 16)
	go func() {
		defer e.active.Store(false)
		defer close(events)
		e.run(ctx, intent, route, events)
	}()
	return events, nil
}

func (e *Engine) run(ctx context.Context, intent model.PaymentIntent, route model.RouteOption, events chan<- Snapshot) {
	snap := Snapshot{State: StateIdle, Steps: buildSteps(intent, route)}
	emit := func() {
		snap.UpdatedAt = time.Now().UTC()
		events <- snap.clone()
	}

	fail := func(msg string) {
		snap.State = StateFailed
		snap.Error = msg
		markActiveStep(snap.Steps, model.StepFailed, msg)
		emit()
	}

	// Network switch.
	snap.State = StateSwitchingNetwork
	snap.Message = fmt.Sprintf("Switching to chain %d", intent.SourceChainID)
	emit()
	if err := e.switchNetwork(ctx, intent.SourceChainID); err != nil {
		fail(err.Error())
		return
	}

	deadline := time.Now().Add(e.opts.ConfirmTimeout)

	// Approval leg, only when the allowance falls short.
	if hasApprovalStep(snap.Steps) {
		snap.State = StateApproving
		snap.Message = "Checking token allowance"
		setStepStatus(snap.Steps, model.StepApproval, model.StepExecuting, "")
		emit()
		if NeedsApproval(ctx, e.provider, intent.SourceTokenAddress, intent.SourceWallet, route.ApprovalAddress, route.FromAmount) {
			amount, _ := new(big.Int).SetString(route.FromAmount, 10)
			txHash, err := Approve(ctx, e.provider, intent.SourceTokenAddress, intent.SourceWallet, route.ApprovalAddress, amount)
			if err != nil {
				fail(err.Error())
				return
			}
			setStepTx(snap.Steps, model.StepApproval, txHash, registry.ExplorerTxURL(intent.SourceChainID, txHash))
			snap.Message = "Waiting for approval confirmation"
			emit()
			receipt, timedOut, err := e.waitReceipt(ctx, txHash, deadline)
			if timedOut {
				e.timeOut(&snap, events, txHash, intent.SourceChainID)
				return
			}
			if err != nil {
				fail(err.Error())
				return
			}
			if receipt.Status == "0x0" {
				fail("Transaction reverted")
				return
			}
		}
		setStepStatus(snap.Steps, model.StepApproval, model.StepCompleted, "")
	}

	// Main transaction.
	snap.State = StateSending
	snap.Message = "Submitting transaction"
	markFirstTransferStep(snap.Steps, model.StepExecuting)
	emit()
	txHash, err := e.sendTransaction(ctx, intent, *route.TransactionRequest)
	if err != nil {
		fail(err.Error())
		return
	}
	snap.TxHash = txHash
	snap.TxLink = registry.ExplorerTxURL(intent.SourceChainID, txHash)
	setFirstTransferTx(snap.Steps, txHash, snap.TxLink)

	snap.State = StateConfirming
	snap.Message = "Waiting for confirmation"
	emit()
	receipt, timedOut, err := e.waitReceipt(ctx, txHash, deadline)
	if timedOut {
		e.timeOut(&snap, events, txHash, intent.SourceChainID)
		return
	}
	if err != nil {
		fail(err.Error())
		return
	}
	if receipt.Status == "0x0" {
		fail("Transaction reverted")
		return
	}

	// Cross-chain transfers settle on the destination chain; keep polling
	// the routing service until the funds land or the window expires.
	if intent.SourceChainID != intent.DestinationChainID && e.lifi != nil {
		snap.Message = "Waiting for destination chain settlement"
		emit()
		done, timedOut, err := e.waitSettlement(ctx, txHash, intent, route, &snap, emit, deadline)
		if timedOut {
			e.timeOut(&snap, events, txHash, intent.SourceChainID)
			return
		}
		if err != nil {
			fail(err.Error())
			return
		}
		if !done {
			fail("Transfer failed on the destination chain")
			return
		}
	}

	snap.State = StateSuccess
	snap.Message = "Payment confirmed"
	markAllSteps(snap.Steps, model.StepCompleted)
	emit()
}

func (e *Engine) timeOut(snap *Snapshot, events chan<- Snapshot, txHash string, chainID int64) {
	snap.State = StateTimedOut
	snap.Message = "Confirmation timed out. Check the block explorer for the final result."
	snap.Error = snap.Message
	if snap.TxLink == "" {
		snap.TxLink = registry.ExplorerTxURL(chainID, txHash)
	}
	snap.UpdatedAt = time.Now().UTC()
	events <- snap.clone()
}

// switchNetwork asks the wallet to change chains, registering the chain's
// metadata and retrying once when the wallet does not know it (code 4902).
func (e *Engine) switchNetwork(ctx context.Context, chainID int64) error {
	params := wallet.SwitchChainParams{ChainID: fmt.Sprintf("0x%x", chainID)}
	_, err := e.provider.Request(ctx, "wallet_switchEthereumChain", params)
	if err == nil {
		return nil
	}
	rpcErr, ok := wallet.AsRPCError(err)
	if !ok || rpcErr.Code != wallet.CodeUnrecognizedChain {
		return clierr.Wrap(clierr.CodeWallet, "switch network", err)
	}
	addParams, ok := registry.AddChainParamsFor(chainID)
	if !ok {
		return clierr.New(clierr.CodeUnsupported, fmt.Sprintf("chain %d is not supported", chainID))
	}
	if _, err := e.provider.Request(ctx, "wallet_addEthereumChain", addParams); err != nil {
		return clierr.Wrap(clierr.CodeWallet, "add network", err)
	}
	if _, err := e.provider.Request(ctx, "wallet_switchEthereumChain", params); err != nil {
		return clierr.Wrap(clierr.CodeWallet, "switch network after adding it", err)
	}
	return nil
}

func (e *Engine) sendTransaction(ctx context.Context, intent model.PaymentIntent, tx model.TransactionRequest) (string, error) {
	from := tx.From
	if strings.TrimSpace(from) == "" {
		from = intent.SourceWallet
	}
	raw, err := e.provider.Request(ctx, "eth_sendTransaction", wallet.SendTransactionParams{
		From:     from,
		To:       tx.To,
		Data:     tx.Data,
		Value:    tx.Value,
		Gas:      tx.GasLimit,
		GasPrice: tx.GasPrice,
	})
	if err != nil {
		return "", clierr.Wrap(clierr.CodeWallet, "submit transaction", err)
	}
	var txHash string
	if err := unmarshalRaw(raw, &txHash); err != nil {
		return "", clierr.Wrap(clierr.CodeWallet, "decode transaction response", err)
	}
	if strings.TrimSpace(txHash) == "" {
		return "", clierr.New(clierr.CodeWallet, "wallet returned empty transaction hash")
	}
	return txHash, nil
}

// waitReceipt polls until a receipt appears or the deadline passes. Transient
// polling errors are swallowed; only the deadline ends the wait.
func (e *Engine) waitReceipt(ctx context.Context, txHash string, deadline time.Time) (wallet.Receipt, bool, error) {
	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()
	for {
		raw, err := e.provider.Request(ctx, "eth_getTransactionReceipt", txHash)
		if err == nil {
			var receipt *wallet.Receipt
			if err := unmarshalRaw(raw, &receipt); err == nil && receipt != nil && receipt.Status != "" {
				return *receipt, false, nil
			}
		}
		if time.Now().After(deadline) {
			return wallet.Receipt{}, true, nil
		}
		select {
		case <-ctx.Done():
			return wallet.Receipt{}, false, clierr.Wrap(clierr.CodeTimeout, "confirmation cancelled", ctx.Err())
		case <-ticker.C:
		}
	}
}

// waitSettlement polls the routing service status endpoint, folding each
// answer's step progress into the snapshot. Returns (true, _, nil) on DONE,
// (false, _, nil) on FAILED/INVALID, and timedOut when the window expires.
// Cancellation is an error, not a timeout.
func (e *Engine) waitSettlement(ctx context.Context, txHash string, intent model.PaymentIntent, route model.RouteOption, snap *Snapshot, emit func(), deadline time.Time) (bool, bool, error) {
	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()
	for {
		status, err := e.lifi.Status(ctx, txHash, intent.SourceChainID, intent.DestinationChainID)
		if err == nil {
			if service := serviceProgress(route, status); mergeServiceProgress(snap.Steps, service) {
				if status.SubStatusMessage != "" {
					snap.Message = status.SubStatusMessage
				}
				emit()
			}
			switch status.Status {
			case lifi.StatusDone:
				return true, false, nil
			case lifi.StatusFailed, lifi.StatusInvalid:
				return false, false, nil
			}
		}
		if time.Now().After(deadline) {
			return false, true, nil
		}
		select {
		case <-ctx.Done():
			return false, false, clierr.Wrap(clierr.CodeTimeout, "settlement cancelled", ctx.Err())
		case <-ticker.C:
		}
	}
}

// buildSteps derives the initial pending step list from the route plan. An
// approval placeholder is added whenever the route names a spender for an
// ERC-20 source; the run skips it if the allowance already covers the send.
func buildSteps(intent model.PaymentIntent, route model.RouteOption) []model.TransactionStep {
	steps := make([]model.TransactionStep, 0, len(route.Legs)+1)
	if strings.TrimSpace(route.ApprovalAddress) != "" && !registry.IsZeroAddress(intent.SourceTokenAddress) {
		steps = append(steps, model.TransactionStep{
			ID:          "approval",
			Type:        model.StepApproval,
			FromChainID: intent.SourceChainID,
			ToChainID:   intent.SourceChainID,
			Status:      model.StepPending,
		})
	}
	for i, leg := range route.Legs {
		steps = append(steps, model.TransactionStep{
			ID:          fmt.Sprintf("leg-%d", i),
			Type:        leg.Type,
			ToolName:    leg.ToolName,
			FromChainID: leg.FromChainID,
			ToChainID:   leg.ToChainID,
			Status:      model.StepPending,
		})
	}
	if len(steps) == 0 {
		steps = append(steps, model.TransactionStep{
			ID:          "leg-0",
			Type:        model.StepTransfer,
			FromChainID: intent.SourceChainID,
			ToChainID:   intent.DestinationChainID,
			Status:      model.StepPending,
		})
	}
	return steps
}

func hasApprovalStep(steps []model.TransactionStep) bool {
	for _, step := range steps {
		if step.Type == model.StepApproval {
			return true
		}
	}
	return false
}

func setStepStatus(steps []model.TransactionStep, kind model.StepKind, status model.StepStatus, message string) {
	for i := range steps {
		if steps[i].Type == kind {
			steps[i].Status = status
			if message != "" {
				steps[i].Message = message
			}
			return
		}
	}
}

func setStepTx(steps []model.TransactionStep, kind model.StepKind, txHash, txLink string) {
	for i := range steps {
		if steps[i].Type == kind {
			steps[i].TxHash = txHash
			steps[i].TxLink = txLink
			return
		}
	}
}

func markFirstTransferStep(steps []model.TransactionStep, status model.StepStatus) {
	for i := range steps {
		if steps[i].Type != model.StepApproval {
			steps[i].Status = status
			return
		}
	}
}

func setFirstTransferTx(steps []model.TransactionStep, txHash, txLink string) {
	for i := range steps {
		if steps[i].Type != model.StepApproval {
			steps[i].TxHash = txHash
			steps[i].TxLink = txLink
			return
		}
	}
}

func markActiveStep(steps []model.TransactionStep, status model.StepStatus, message string) {
	for i := range steps {
		if steps[i].Status == model.StepExecuting || steps[i].Status == model.StepActionRequired {
			steps[i].Status = status
			steps[i].Message = message
			return
		}
	}
}

func markAllSteps(steps []model.TransactionStep, status model.StepStatus) {
	for i := range steps {
		if steps[i].Status != model.StepFailed {
			steps[i].Status = status
		}
	}
}

func unmarshalRaw(raw json.RawMessage, out any) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty response")
	}
	return json.Unmarshal(raw, out)
}
