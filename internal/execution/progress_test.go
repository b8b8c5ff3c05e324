package execution

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/payflowhq/payflow/internal/model"
	"github.com/payflowhq/payflow/internal/providers/lifi"
)

func bridgeRouteWithProgress() lifi.Route {
	return lifi.Route{
		ID:          "r1",
		FromChainID: 42161,
		ToChainID:   8453,
		Steps: []lifi.Step{
			{
				ID:          "s1",
				Type:        "cross",
				Tool:        "stargate",
				ToolDetails: lifi.ToolDetails{Key: "stargate", Name: "Stargate"},
				Action:      lifi.StepAction{FromChainID: 42161, ToChainID: 8453},
				Execution: &lifi.Execution{
					Status: "PENDING",
					Process: []lifi.Process{
						{Type: lifi.ProcessTokenAllowance, Status: lifi.ProcessStatusDone, TxHash: "0xa", TxLink: "https://arbiscan.io/tx/0xa"},
						{Type: lifi.ProcessCrossChain, Status: lifi.ProcessStatusPending, Message: "Bridging"},
						{Type: lifi.ProcessReceivingChain, Status: ""},
					},
				},
			},
			{
				ID:     "s2",
				Type:   "swap",
				Tool:   "paraswap",
				Action: lifi.StepAction{FromChainID: 8453, ToChainID: 8453},
			},
		},
	}
}

func TestFlattenProgressMapsProcessesToSteps(t *testing.T) {
	steps := FlattenProgress(bridgeRouteWithProgress())
	if len(steps) != 4 {
		t.Fatalf("expected 4 steps, got %d", len(steps))
	}

	if steps[0].Type != model.StepApproval || steps[0].Status != model.StepCompleted {
		t.Fatalf("unexpected approval step: %+v", steps[0])
	}
	if steps[0].TxHash != "0xa" || steps[0].TxLink == "" {
		t.Fatalf("approval step lost tx info: %+v", steps[0])
	}

	if steps[1].Type != model.StepBridge || steps[1].Status != model.StepExecuting {
		t.Fatalf("unexpected bridge step: %+v", steps[1])
	}
	if steps[1].Message != "Bridging" {
		t.Fatalf("bridge step lost message: %+v", steps[1])
	}

	// Absent status means the process has not started.
	if steps[2].Type != model.StepTransfer || steps[2].Status != model.StepPending {
		t.Fatalf("unexpected receiving step: %+v", steps[2])
	}

	// A step with no execution yet flattens to a single pending entry.
	if steps[3].Status != model.StepPending || steps[3].ToolName != "paraswap" {
		t.Fatalf("unexpected pending step: %+v", steps[3])
	}

	if steps[0].ToolName != "Stargate" {
		t.Fatalf("expected tool display name, got %q", steps[0].ToolName)
	}
}

func TestFlattenProgressIsIdempotent(t *testing.T) {
	route := bridgeRouteWithProgress()
	first := FlattenProgress(route)
	second := FlattenProgress(route)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("flattening the same snapshot twice diverged")
	}
}

func TestProcessStatusActionRequired(t *testing.T) {
	route := lifi.Route{Steps: []lifi.Step{{
		Action: lifi.StepAction{FromChainID: 1, ToChainID: 1},
		Execution: &lifi.Execution{Process: []lifi.Process{
			{Type: lifi.ProcessSwap, Status: lifi.ProcessStatusActionRequired},
			{Type: lifi.ProcessSwap, Status: lifi.ProcessStatusFailed},
		}},
	}}}
	steps := FlattenProgress(route)
	if steps[0].Status != model.StepActionRequired {
		t.Fatalf("expected action_required, got %s", steps[0].Status)
	}
	if steps[1].Status != model.StepFailed {
		t.Fatalf("expected failed, got %s", steps[1].Status)
	}
}

func TestServiceProgressFoldsStatusOntoPlan(t *testing.T) {
	plan := lifi.Route{Steps: []lifi.Step{{
		Tool:   "stargate",
		Action: lifi.StepAction{FromChainID: 8453, ToChainID: 42161},
	}}}
	buf, err := json.Marshal(plan)
	if err != nil {
		t.Fatalf("marshal plan: %v", err)
	}
	option := model.RouteOption{ServicePlan: buf}

	service := serviceProgress(option, lifi.StatusResponse{
		Status:           lifi.StatusPending,
		SubStatusMessage: "Bridging",
	})
	if len(service) != 1 {
		t.Fatalf("expected one folded step, got %d", len(service))
	}
	if service[0].Type != model.StepBridge || service[0].Status != model.StepExecuting || service[0].Message != "Bridging" {
		t.Fatalf("unexpected folded step: %+v", service[0])
	}

	steps := []model.TransactionStep{{Type: model.StepBridge, Status: model.StepExecuting}}
	if !mergeServiceProgress(steps, service) {
		t.Fatal("first poll should change the step list")
	}
	if steps[0].Message != "Bridging" {
		t.Fatalf("message was not folded: %+v", steps[0])
	}
	// Repeating the identical poll must be a no-op.
	if mergeServiceProgress(steps, service) {
		t.Fatal("identical poll must not report a change")
	}
}

func TestServiceProgressWithoutPlanIsEmpty(t *testing.T) {
	if got := serviceProgress(model.RouteOption{}, lifi.StatusResponse{Status: lifi.StatusDone}); got != nil {
		t.Fatalf("options without a plan have nothing to fold: %+v", got)
	}
}

func TestProcessKindFallsBackOnChainSpan(t *testing.T) {
	if processKind("UNKNOWN", 1, 137) != model.StepBridge {
		t.Fatal("cross-chain unknown process should map to bridge")
	}
	if processKind("UNKNOWN", 1, 1) != model.StepSwap {
		t.Fatal("same-chain unknown process should map to swap")
	}
}
