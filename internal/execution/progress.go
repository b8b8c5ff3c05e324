package execution

import (
	"encoding/json"
	"fmt"

	"github.com/payflowhq/payflow/internal/model"
	"github.com/payflowhq/payflow/internal/providers/lifi"
)

// FlattenProgress maps a service route with execution data onto the flat
// step list shown to the user. It is a pure function of the route snapshot:
// feeding the same snapshot twice yields the same output, so repeated
// service callbacks cannot corrupt displayed progress.
func FlattenProgress(route lifi.Route) []model.TransactionStep {
	steps := make([]model.TransactionStep, 0, len(route.Steps)*2)
	for i, step := range route.Steps {
		if step.Execution == nil || len(step.Execution.Process) == 0 {
			steps = append(steps, model.TransactionStep{
				ID:          fmt.Sprintf("step-%d", i),
				Type:        processKind("", step.Action.FromChainID, step.Action.ToChainID),
				ToolName:    stepToolName(step),
				FromChainID: step.Action.FromChainID,
				ToChainID:   step.Action.ToChainID,
				Status:      model.StepPending,
			})
			continue
		}
		for j, proc := range step.Execution.Process {
			steps = append(steps, model.TransactionStep{
				ID:          fmt.Sprintf("step-%d-%d", i, j),
				Type:        processKind(proc.Type, step.Action.FromChainID, step.Action.ToChainID),
				ToolName:    stepToolName(step),
				FromChainID: step.Action.FromChainID,
				ToChainID:   step.Action.ToChainID,
				Status:      processStatus(proc.Status),
				Message:     proc.Message,
				TxHash:      proc.TxHash,
				TxLink:      proc.TxLink,
			})
		}
	}
	return steps
}

func processKind(processType string, fromChainID, toChainID int64) model.StepKind {
	switch processType {
	case lifi.ProcessTokenAllowance:
		return model.StepApproval
	case lifi.ProcessSwap:
		return model.StepSwap
	case lifi.ProcessCrossChain:
		return model.StepBridge
	case lifi.ProcessReceivingChain, lifi.ProcessTransaction:
		return model.StepTransfer
	default:
		if fromChainID != 0 && toChainID != 0 && fromChainID != toChainID {
			return model.StepBridge
		}
		return model.StepSwap
	}
}

func processStatus(status string) model.StepStatus {
	switch status {
	case lifi.ProcessStatusStarted, lifi.ProcessStatusPending:
		return model.StepExecuting
	case lifi.ProcessStatusActionRequired:
		return model.StepActionRequired
	case lifi.ProcessStatusDone:
		return model.StepCompleted
	case lifi.ProcessStatusFailed:
		return model.StepFailed
	default:
		return model.StepPending
	}
}

func stepToolName(step lifi.Step) string {
	if step.ToolDetails.Name != "" {
		return step.ToolDetails.Name
	}
	return step.Tool
}

// serviceProgress rehydrates the option's service plan, attaches the latest
// transfer status to its cross-chain steps, and flattens the result. Returns
// nil when the option carries no usable plan.
func serviceProgress(option model.RouteOption, status lifi.StatusResponse) []model.TransactionStep {
	if len(option.ServicePlan) == 0 {
		return nil
	}
	var plan lifi.Route
	if err := json.Unmarshal(option.ServicePlan, &plan); err != nil || len(plan.Steps) == 0 {
		return nil
	}
	for i := range plan.Steps {
		step := &plan.Steps[i]
		if step.Action.FromChainID == step.Action.ToChainID {
			continue
		}
		step.Execution = &lifi.Execution{
			Status: status.Status,
			Process: []lifi.Process{{
				Type:    lifi.ProcessCrossChain,
				Status:  transferProcessStatus(status.Status),
				Message: status.SubStatusMessage,
				TxHash:  status.Receiving.TxHash,
				TxLink:  status.Receiving.TxLink,
			}},
		}
	}
	return FlattenProgress(plan)
}

func transferProcessStatus(status string) string {
	switch status {
	case lifi.StatusDone:
		return lifi.ProcessStatusDone
	case lifi.StatusFailed, lifi.StatusInvalid:
		return lifi.ProcessStatusFailed
	default:
		return lifi.ProcessStatusPending
	}
}

// mergeServiceProgress folds flattened service steps into the run's step
// list, matched by step kind. Only non-empty facts are applied, so a poll
// that repeats the previous answer is a no-op. Reports whether anything
// changed.
func mergeServiceProgress(steps, service []model.TransactionStep) bool {
	changed := false
	for _, svc := range service {
		if svc.Status == model.StepPending && svc.Message == "" && svc.TxHash == "" {
			continue
		}
		for i := range steps {
			if steps[i].Type != svc.Type {
				continue
			}
			if svc.Status != model.StepPending && steps[i].Status != svc.Status {
				steps[i].Status = svc.Status
				changed = true
			}
			if svc.Message != "" && steps[i].Message != svc.Message {
				steps[i].Message = svc.Message
				changed = true
			}
			if svc.TxHash != "" && steps[i].TxHash != svc.TxHash {
				steps[i].TxHash = svc.TxHash
				steps[i].TxLink = svc.TxLink
				changed = true
			}
			break
		}
	}
	return changed
}
