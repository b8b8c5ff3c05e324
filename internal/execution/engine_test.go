package execution

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	clierr "github.com/payflowhq/payflow/internal/errors"
	"github.com/payflowhq/payflow/internal/httpx"
	"github.com/payflowhq/payflow/internal/model"
	"github.com/payflowhq/payflow/internal/providers/lifi"
	"github.com/payflowhq/payflow/internal/wallet"
)

// scriptedProvider answers wallet requests from a handler and records the
// methods it saw.
type scriptedProvider struct {
	mu      sync.Mutex
	methods []string
	handle  func(method string, callNum int, params []any) (json.RawMessage, error)
	counts  map[string]int
}

func newScriptedProvider(handle func(method string, callNum int, params []any) (json.RawMessage, error)) *scriptedProvider {
	return &scriptedProvider{handle: handle, counts: make(map[string]int)}
}

func (p *scriptedProvider) Request(_ context.Context, method string, params ...any) (json.RawMessage, error) {
	p.mu.Lock()
	p.methods = append(p.methods, method)
	p.counts[method]++
	n := p.counts[method]
	p.mu.Unlock()
	return p.handle(method, n, params)
}

func (p *scriptedProvider) seen(method string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[method]
}

func raw(v any) json.RawMessage {
	buf, _ := json.Marshal(v)
	return buf
}

func nativeIntent() model.PaymentIntent {
	return model.PaymentIntent{
		SourceChainID:      8453,
		SourceTokenAddress: "0x0000000000000000000000000000000000000000",
		SourceWallet:       "0x1111111111111111111111111111111111111111",
		DestinationChainID: 8453,
		DestinationToken:   "0x0000000000000000000000000000000000000000",
		DestinationAddress: "0x2222222222222222222222222222222222222222",
		AmountBaseUnits:    "1000000000000000",
		AmountMode:         model.AmountModeExactSend,
		SlippageBps:        50,
	}
}

func transferRoute() model.RouteOption {
	return model.RouteOption{
		ID:         "route-1",
		FromAmount: "1000000000000000",
		Legs: []model.RouteLeg{
			{Type: model.StepTransfer, ToolName: "relay", FromChainID: 8453, ToChainID: 8453},
		},
		TransactionRequest: &model.TransactionRequest{
			To:      "0x3333333333333333333333333333333333333333",
			Data:    "0xdeadbeef",
			Value:   "0x38d7ea4c68000",
			ChainID: 8453,
		},
	}
}

func crossChainIntent() model.PaymentIntent {
	intent := nativeIntent()
	intent.DestinationChainID = 42161
	return intent
}

func bridgeRoute() model.RouteOption {
	plan := lifi.Route{
		ID:          "route-x",
		FromChainID: 8453,
		ToChainID:   42161,
		Steps: []lifi.Step{{
			ID:          "bridge-0",
			Type:        "cross",
			Tool:        "stargate",
			ToolDetails: lifi.ToolDetails{Name: "Stargate"},
			Action:      lifi.StepAction{FromChainID: 8453, ToChainID: 42161},
		}},
	}
	buf, _ := json.Marshal(plan)
	return model.RouteOption{
		ID:         "route-x",
		FromAmount: "1000000000000000",
		Legs: []model.RouteLeg{
			{Type: model.StepBridge, ToolName: "Stargate", FromChainID: 8453, ToChainID: 42161},
		},
		ServicePlan: buf,
		TransactionRequest: &model.TransactionRequest{
			To:      "0x3333333333333333333333333333333333333333",
			Data:    "0xdeadbeef",
			Value:   "0x38d7ea4c68000",
			ChainID: 8453,
		},
	}
}

func statusClient(t *testing.T, handler http.HandlerFunc) *lifi.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return lifi.New(httpx.New(2*time.Second, 0), server.URL, "", "")
}

func happyProvider(txHash string) *scriptedProvider {
	return newScriptedProvider(func(method string, _ int, _ []any) (json.RawMessage, error) {
		switch method {
		case "wallet_switchEthereumChain":
			return raw(nil), nil
		case "eth_sendTransaction":
			return raw(txHash), nil
		case "eth_getTransactionReceipt":
			return raw(wallet.Receipt{TransactionHash: txHash, Status: "0x1"}), nil
		default:
			return nil, nil
		}
	})
}

func fastOptions() Options {
	return Options{PollInterval: 5 * time.Millisecond, ConfirmTimeout: time.Second}
}

func drain(t *testing.T, events <-chan Snapshot) []Snapshot {
	t.Helper()
	var snaps []Snapshot
	for snap := range events {
		snaps = append(snaps, snap)
	}
	if len(snaps) == 0 {
		t.Fatal("no snapshots emitted")
	}
	return snaps
}

func TestExecuteHappyPath(t *testing.T) {
	provider := newScriptedProvider(func(method string, _ int, _ []any) (json.RawMessage, error) {
		switch method {
		case "wallet_switchEthereumChain":
			return raw(nil), nil
		case "eth_sendTransaction":
			return raw("0xabc123"), nil
		case "eth_getTransactionReceipt":
			return raw(wallet.Receipt{TransactionHash: "0xabc123", Status: "0x1"}), nil
		default:
			t.Fatalf("unexpected method %s", method)
			return nil, nil
		}
	})

	engine := NewEngine(provider, nil, fastOptions())
	events, err := engine.Execute(context.Background(), nativeIntent(), transferRoute())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	snaps := drain(t, events)

	final := snaps[len(snaps)-1]
	if final.State != StateSuccess {
		t.Fatalf("expected success, got %s (%s)", final.State, final.Error)
	}
	if final.TxHash != "0xabc123" {
		t.Fatalf("unexpected tx hash: %s", final.TxHash)
	}
	if !strings.Contains(final.TxLink, "basescan.org/tx/0xabc123") {
		t.Fatalf("unexpected tx link: %s", final.TxLink)
	}

	var states []RunState
	for _, snap := range snaps {
		states = append(states, snap.State)
	}
	want := []RunState{StateSwitchingNetwork, StateSending, StateConfirming, StateSuccess}
	if len(states) != len(want) {
		t.Fatalf("unexpected state sequence: %v", states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("state %d: expected %s, got %s", i, want[i], states[i])
		}
	}
	for _, step := range final.Steps {
		if step.Status != model.StepCompleted {
			t.Fatalf("expected all steps completed, got %+v", step)
		}
	}
}

func TestExecuteAddsUnknownChain(t *testing.T) {
	provider := newScriptedProvider(func(method string, callNum int, params []any) (json.RawMessage, error) {
		switch method {
		case "wallet_switchEthereumChain":
			if callNum == 1 {
				return nil, &wallet.RPCError{Code: wallet.CodeUnrecognizedChain, Message: "unrecognized chain"}
			}
			return raw(nil), nil
		case "wallet_addEthereumChain":
			buf, _ := json.Marshal(params[0])
			if !strings.Contains(string(buf), `"0x2105"`) {
				t.Fatalf("addEthereumChain missing hex chain id: %s", buf)
			}
			return raw(nil), nil
		case "eth_sendTransaction":
			return raw("0xdef456"), nil
		case "eth_getTransactionReceipt":
			return raw(wallet.Receipt{TransactionHash: "0xdef456", Status: "0x1"}), nil
		default:
			return nil, nil
		}
	})

	engine := NewEngine(provider, nil, fastOptions())
	events, err := engine.Execute(context.Background(), nativeIntent(), transferRoute())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	snaps := drain(t, events)
	if snaps[len(snaps)-1].State != StateSuccess {
		t.Fatalf("expected success after add-chain fallback, got %s", snaps[len(snaps)-1].State)
	}
	if provider.seen("wallet_addEthereumChain") != 1 {
		t.Fatal("expected exactly one add-chain request")
	}
	if provider.seen("wallet_switchEthereumChain") != 2 {
		t.Fatal("expected the switch to be retried once")
	}
}

func TestExecuteRevertedTransaction(t *testing.T) {
	provider := newScriptedProvider(func(method string, _ int, _ []any) (json.RawMessage, error) {
		switch method {
		case "wallet_switchEthereumChain":
			return raw(nil), nil
		case "eth_sendTransaction":
			return raw("0xbad"), nil
		case "eth_getTransactionReceipt":
			return raw(wallet.Receipt{TransactionHash: "0xbad", Status: "0x0"}), nil
		default:
			return nil, nil
		}
	})

	engine := NewEngine(provider, nil, fastOptions())
	events, err := engine.Execute(context.Background(), nativeIntent(), transferRoute())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	snaps := drain(t, events)
	final := snaps[len(snaps)-1]
	if final.State != StateFailed {
		t.Fatalf("expected failed, got %s", final.State)
	}
	if final.Error != "Transaction reverted" {
		t.Fatalf("unexpected error message: %q", final.Error)
	}
}

func TestExecuteConfirmationTimeout(t *testing.T) {
	provider := newScriptedProvider(func(method string, _ int, _ []any) (json.RawMessage, error) {
		switch method {
		case "wallet_switchEthereumChain":
			return raw(nil), nil
		case "eth_sendTransaction":
			return raw("0xslow"), nil
		case "eth_getTransactionReceipt":
			// Receipt never lands.
			return raw(nil), nil
		default:
			return nil, nil
		}
	})

	engine := NewEngine(provider, nil, Options{PollInterval: 5 * time.Millisecond, ConfirmTimeout: 30 * time.Millisecond})
	events, err := engine.Execute(context.Background(), nativeIntent(), transferRoute())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	snaps := drain(t, events)
	final := snaps[len(snaps)-1]
	if final.State != StateTimedOut {
		t.Fatalf("expected timed_out, got %s", final.State)
	}
	if !strings.Contains(final.Message, "Check the block explorer") {
		t.Fatalf("unexpected timeout message: %q", final.Message)
	}
	// Callers report timeouts through the error field; it must match the
	// user-facing message rather than stay empty.
	if !strings.Contains(final.Error, "Check the block explorer") {
		t.Fatalf("timeout snapshot should surface through the error field, got %q", final.Error)
	}
	if final.TxLink == "" {
		t.Fatal("timeout snapshot should carry an explorer link")
	}
}

func TestExecuteCrossChainSettlementProgress(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	client := statusClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status":           lifi.StatusPending,
				"substatus":        "WAIT_DESTINATION_TRANSACTION",
				"substatusMessage": "Bridging to the destination chain",
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": lifi.StatusDone,
			"receiving": map[string]any{
				"txHash": "0xrecv",
				"txLink": "https://arbiscan.io/tx/0xrecv",
			},
		})
	})

	engine := NewEngine(happyProvider("0xsrc"), client, fastOptions())
	events, err := engine.Execute(context.Background(), crossChainIntent(), bridgeRoute())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	snaps := drain(t, events)

	final := snaps[len(snaps)-1]
	if final.State != StateSuccess {
		t.Fatalf("expected success, got %s (%s)", final.State, final.Error)
	}

	// The service's in-flight progress must show up on the bridge step while
	// settlement is still pending.
	sawBridging := false
	for _, snap := range snaps {
		for _, step := range snap.Steps {
			if step.Type == model.StepBridge && step.Message == "Bridging to the destination chain" {
				sawBridging = true
				if step.Status != model.StepExecuting {
					t.Fatalf("in-flight bridge step should be executing: %+v", step)
				}
			}
		}
	}
	if !sawBridging {
		t.Fatal("service settlement progress never reached the step list")
	}

	// The receiving-side transaction folds onto the bridge step once the
	// transfer lands.
	for _, step := range final.Steps {
		if step.Type != model.StepBridge {
			continue
		}
		if step.TxHash != "0xrecv" || !strings.Contains(step.TxLink, "0xrecv") {
			t.Fatalf("bridge step should carry the receiving transaction: %+v", step)
		}
	}
}

func TestExecuteSettlementCancellation(t *testing.T) {
	client := statusClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": lifi.StatusPending})
	})

	engine := NewEngine(happyProvider("0xwait"), client, fastOptions())
	ctx, cancel := context.WithCancel(context.Background())
	events, err := engine.Execute(ctx, crossChainIntent(), bridgeRoute())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	snaps := drain(t, events)

	final := snaps[len(snaps)-1]
	if final.State == StateTimedOut {
		t.Fatal("cancellation must not be reported as a confirmation timeout")
	}
	if final.State != StateFailed {
		t.Fatalf("expected failed, got %s", final.State)
	}
	if !strings.Contains(final.Error, "cancelled") {
		t.Fatalf("expected a cancellation error, got %q", final.Error)
	}
}

func TestExecuteRefusesConcurrentRuns(t *testing.T) {
	release := make(chan struct{})
	provider := newScriptedProvider(func(method string, _ int, _ []any) (json.RawMessage, error) {
		switch method {
		case "wallet_switchEthereumChain":
			<-release
			return raw(nil), nil
		case "eth_sendTransaction":
			return raw("0x1"), nil
		case "eth_getTransactionReceipt":
			return raw(wallet.Receipt{TransactionHash: "0x1", Status: "0x1"}), nil
		default:
			return nil, nil
		}
	})

	engine := NewEngine(provider, nil, fastOptions())
	events, err := engine.Execute(context.Background(), nativeIntent(), transferRoute())
	if err != nil {
		t.Fatalf("first Execute failed: %v", err)
	}

	_, err = engine.Execute(context.Background(), nativeIntent(), transferRoute())
	cErr, ok := clierr.As(err)
	if !ok || cErr.Code != clierr.CodeUsage {
		t.Fatalf("expected usage error for concurrent run, got %v", err)
	}
	if !strings.Contains(cErr.Message, "already executing") {
		t.Fatalf("unexpected message: %q", cErr.Message)
	}

	close(release)
	drain(t, events)

	// The slot frees up once the first run finishes.
	events2, err := engine.Execute(context.Background(), nativeIntent(), transferRoute())
	if err != nil {
		t.Fatalf("Execute after completion failed: %v", err)
	}
	drain(t, events2)
}

func TestExecuteRequiresTransactionRequest(t *testing.T) {
	engine := NewEngine(newScriptedProvider(func(string, int, []any) (json.RawMessage, error) {
		return nil, nil
	}), nil, fastOptions())

	route := transferRoute()
	route.TransactionRequest = nil
	_, err := engine.Execute(context.Background(), nativeIntent(), route)
	cErr, ok := clierr.As(err)
	if !ok || cErr.Code != clierr.CodeUsage {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestExecuteApprovalFlow(t *testing.T) {
	intent := nativeIntent()
	intent.SourceTokenAddress = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"

	route := transferRoute()
	route.ApprovalAddress = "0x4444444444444444444444444444444444444444"

	zeroWord := "0x" + strings.Repeat("0", 64)
	provider := newScriptedProvider(func(method string, callNum int, _ []any) (json.RawMessage, error) {
		switch method {
		case "wallet_switchEthereumChain":
			return raw(nil), nil
		case "eth_call":
			// Zero allowance forces the approval leg.
			return raw(zeroWord), nil
		case "eth_sendTransaction":
			if callNum == 1 {
				return raw("0xapproval"), nil
			}
			return raw("0xmain"), nil
		case "eth_getTransactionReceipt":
			return raw(wallet.Receipt{Status: "0x1"}), nil
		default:
			return nil, nil
		}
	})

	engine := NewEngine(provider, nil, fastOptions())
	events, err := engine.Execute(context.Background(), intent, route)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	snaps := drain(t, events)
	final := snaps[len(snaps)-1]
	if final.State != StateSuccess {
		t.Fatalf("expected success, got %s (%s)", final.State, final.Error)
	}
	if provider.seen("eth_sendTransaction") != 2 {
		t.Fatalf("expected approval plus main transaction, saw %d sends", provider.seen("eth_sendTransaction"))
	}

	sawApproving := false
	for _, snap := range snaps {
		if snap.State == StateApproving {
			sawApproving = true
		}
	}
	if !sawApproving {
		t.Fatal("expected an approving snapshot")
	}
	if final.Steps[0].Type != model.StepApproval || final.Steps[0].TxHash != "0xapproval" {
		t.Fatalf("unexpected approval step: %+v", final.Steps[0])
	}
	if final.TxHash != "0xmain" {
		t.Fatalf("unexpected main tx hash: %s", final.TxHash)
	}
}

func TestSnapshotsAreIndependentCopies(t *testing.T) {
	provider := newScriptedProvider(func(method string, _ int, _ []any) (json.RawMessage, error) {
		switch method {
		case "wallet_switchEthereumChain":
			return raw(nil), nil
		case "eth_sendTransaction":
			return raw("0xcopy"), nil
		case "eth_getTransactionReceipt":
			return raw(wallet.Receipt{Status: "0x1"}), nil
		default:
			return nil, nil
		}
	})

	engine := NewEngine(provider, nil, fastOptions())
	events, err := engine.Execute(context.Background(), nativeIntent(), transferRoute())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	snaps := drain(t, events)

	// Mutating an early snapshot's steps must not leak into later ones.
	first := snaps[0]
	first.Steps[0].Status = model.StepFailed
	final := snaps[len(snaps)-1]
	if final.Steps[0].Status == model.StepFailed {
		t.Fatal("snapshots share step slices")
	}
}
