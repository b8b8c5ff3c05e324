package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"

	clierr "github.com/payflowhq/payflow/internal/errors"
	"github.com/payflowhq/payflow/internal/id"
	"github.com/payflowhq/payflow/internal/model"
	"github.com/payflowhq/payflow/internal/providers/lifi"
	"github.com/payflowhq/payflow/internal/registry"
)

var recipientPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Engine turns validated payment intents into route options. Results carry a
// monotonic request token so that a response arriving after a newer request
// is discarded instead of overwriting it.
type Engine struct {
	client      *lifi.Client
	slippageBps int64
	seq         atomic.Uint64
}

func NewEngine(client *lifi.Client, slippageBps int64) *Engine {
	if slippageBps <= 0 {
		slippageBps = 50
	}
	return &Engine{client: client, slippageBps: slippageBps}
}

// ValidateIntent rejects malformed intents before any network call.
func (e *Engine) ValidateIntent(intent model.PaymentIntent) error {
	if !registry.IsSupportedChain(intent.SourceChainID) {
		return clierr.New(clierr.CodeUnsupported, fmt.Sprintf("source chain %d is not supported", intent.SourceChainID))
	}
	if !registry.IsSupportedChain(intent.DestinationChainID) {
		return clierr.New(clierr.CodeUnsupported, fmt.Sprintf("destination chain %d is not supported", intent.DestinationChainID))
	}
	if !recipientPattern.MatchString(strings.TrimSpace(intent.DestinationAddress)) {
		return clierr.New(clierr.CodeUsage, "recipient must be a valid 0x address")
	}
	if strings.TrimSpace(intent.SourceWallet) != "" && !recipientPattern.MatchString(strings.TrimSpace(intent.SourceWallet)) {
		return clierr.New(clierr.CodeUsage, "source wallet must be a valid 0x address")
	}
	if strings.TrimSpace(intent.SourceTokenAddress) == "" {
		return clierr.New(clierr.CodeUsage, "source token is required")
	}
	if strings.TrimSpace(intent.DestinationToken) == "" {
		return clierr.New(clierr.CodeUsage, "destination token is required")
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(intent.AmountBaseUnits), 10)
	if !ok || amount.Sign() <= 0 {
		return clierr.New(clierr.CodeUsage, "amount must be a positive integer base-unit value")
	}
	switch intent.AmountMode {
	case model.AmountModeExactSend, model.AmountModeExactReceive:
	default:
		return clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown amount mode %q", intent.AmountMode))
	}
	return nil
}

// Quote fetches the single best executable quote for the intent. The result
// includes the transaction payload and approval spender.
func (e *Engine) Quote(ctx context.Context, intent model.PaymentIntent) (model.RouteOption, error) {
	if err := e.ValidateIntent(intent); err != nil {
		return model.RouteOption{}, err
	}
	token := e.seq.Add(1)

	req := lifi.QuoteRequest{
		FromChainID: intent.SourceChainID,
		ToChainID:   intent.DestinationChainID,
		FromToken:   intent.SourceTokenAddress,
		ToToken:     intent.DestinationToken,
		FromAddress: intent.SourceWallet,
		ToAddress:   intent.DestinationAddress,
		SlippageBps: e.effectiveSlippage(intent),
	}
	if intent.AmountMode == model.AmountModeExactReceive {
		req.ToAmount = intent.AmountBaseUnits
	} else {
		req.FromAmount = intent.AmountBaseUnits
	}

	resp, err := e.client.Quote(ctx, req)
	if err != nil {
		return model.RouteOption{}, err
	}
	if e.seq.Load() != token {
		return model.RouteOption{}, clierr.New(clierr.CodeStale, "quote superseded by a newer request")
	}
	option := quoteToOption(resp)
	option.Tags = []model.RouteTag{model.TagRecommended}
	return option, nil
}

// Routes fetches all route options for the intent and recomputes the tag
// set locally. Receive-exact intents fall back to the single quote endpoint
// because the route listing only prices a fixed send amount.
func (e *Engine) Routes(ctx context.Context, intent model.PaymentIntent) ([]model.RouteOption, error) {
	if err := e.ValidateIntent(intent); err != nil {
		return nil, err
	}
	if intent.AmountMode == model.AmountModeExactReceive {
		option, err := e.Quote(ctx, intent)
		if err != nil {
			return nil, err
		}
		return []model.RouteOption{option}, nil
	}
	token := e.seq.Add(1)

	routes, err := e.client.Routes(ctx, lifi.RoutesRequest{
		FromChainID: intent.SourceChainID,
		ToChainID:   intent.DestinationChainID,
		FromToken:   intent.SourceTokenAddress,
		ToToken:     intent.DestinationToken,
		FromAmount:  intent.AmountBaseUnits,
		FromAddress: intent.SourceWallet,
		ToAddress:   intent.DestinationAddress,
		SlippageBps: e.effectiveSlippage(intent),
	})
	if err != nil {
		return nil, err
	}
	if e.seq.Load() != token {
		return nil, clierr.New(clierr.CodeStale, "routes superseded by a newer request")
	}

	options := make([]model.RouteOption, 0, len(routes))
	for _, route := range routes {
		options = append(options, routeToOption(route))
	}
	applyTags(options)
	return options, nil
}

func (e *Engine) effectiveSlippage(intent model.PaymentIntent) int64 {
	if intent.SlippageBps > 0 {
		return intent.SlippageBps
	}
	return e.slippageBps
}

// applyTags recomputes RECOMMENDED, FASTEST and CHEAPEST in place. Exactly
// one option is RECOMMENDED (highest destination amount); ties keep service
// order. BEST_VALUE survives from the service's own tagging.
func applyTags(options []model.RouteOption) {
	if len(options) == 0 {
		return
	}
	best, fastest, cheapest := 0, 0, 0
	bestAmount := destinationAmount(options[0])
	for i := 1; i < len(options); i++ {
		if amt := destinationAmount(options[i]); amt.Cmp(bestAmount) > 0 {
			best = i
			bestAmount = amt
		}
		if options[i].TotalDurationSeconds < options[fastest].TotalDurationSeconds {
			fastest = i
		}
		if options[i].TotalCostUSD < options[cheapest].TotalCostUSD {
			cheapest = i
		}
	}
	options[best].Tags = append(options[best].Tags, model.TagRecommended)
	options[fastest].Tags = append(options[fastest].Tags, model.TagFastest)
	options[cheapest].Tags = append(options[cheapest].Tags, model.TagCheapest)
}

func destinationAmount(option model.RouteOption) *big.Int {
	amt, ok := new(big.Int).SetString(option.DestinationAmount, 10)
	if !ok {
		return big.NewInt(0)
	}
	return amt
}

func routeToOption(route lifi.Route) model.RouteOption {
	option := model.RouteOption{
		ID:                       route.ID,
		FromChainID:              route.FromChainID,
		ToChainID:                route.ToChainID,
		FromAmount:               route.FromAmount,
		DestinationAmount:        route.ToAmount,
		DestinationAmountMin:     route.ToAmountMin,
		DestinationDecimals:      route.ToToken.Decimals,
		DestinationAmountDecimal: id.FormatDecimal(route.ToAmount, route.ToToken.Decimals),
		StepCount:                len(route.Steps),
	}
	// BEST_VALUE is the only service tag carried through; ordering tags are
	// recomputed locally.
	for _, tag := range route.Tags {
		if strings.EqualFold(tag, string(model.TagBestValue)) {
			option.Tags = append(option.Tags, model.TagBestValue)
		}
	}
	var costUSD float64
	var duration int64
	for _, step := range route.Steps {
		option.Legs = append(option.Legs, stepToLeg(step))
		if name := toolName(step); name != "" {
			option.ToolNames = append(option.ToolNames, name)
		}
		costUSD += stepCostUSD(step)
		duration += step.Estimate.ExecutionDuration
		if step.Estimate.ApprovalAddress != "" {
			option.ApprovalAddress = step.Estimate.ApprovalAddress
		}
	}
	if gas, err := strconv.ParseFloat(route.GasCostUSD, 64); err == nil && costUSD == 0 {
		costUSD = gas
	}
	option.TotalCostUSD = costUSD
	option.TotalDurationSeconds = duration
	if buf, err := json.Marshal(route); err == nil {
		option.ServicePlan = buf
	}
	return option
}

func quoteToOption(resp lifi.QuoteResponse) model.RouteOption {
	option := model.RouteOption{
		ID:                       resp.ID,
		FromChainID:              resp.Action.FromChainID,
		ToChainID:                resp.Action.ToChainID,
		FromAmount:               resp.Estimate.FromAmount,
		DestinationAmount:        resp.Estimate.ToAmount,
		DestinationAmountMin:     resp.Estimate.ToAmountMin,
		DestinationDecimals:      resp.Action.ToToken.Decimals,
		DestinationAmountDecimal: id.FormatDecimal(resp.Estimate.ToAmount, resp.Action.ToToken.Decimals),
		TotalDurationSeconds:     resp.Estimate.ExecutionDuration,
		ApprovalAddress:          resp.Estimate.ApprovalAddress,
	}
	var costUSD float64
	for _, fee := range resp.Estimate.FeeCosts {
		if v, err := strconv.ParseFloat(fee.AmountUSD, 64); err == nil {
			costUSD += v
		}
	}
	for _, gas := range resp.Estimate.GasCosts {
		if v, err := strconv.ParseFloat(gas.AmountUSD, 64); err == nil {
			costUSD += v
		}
	}
	option.TotalCostUSD = costUSD

	if len(resp.IncludedSteps) > 0 {
		option.StepCount = len(resp.IncludedSteps)
		for _, step := range resp.IncludedSteps {
			option.Legs = append(option.Legs, stepToLeg(step))
			if name := toolName(step); name != "" {
				option.ToolNames = append(option.ToolNames, name)
			}
		}
	} else {
		option.StepCount = 1
		option.Legs = []model.RouteLeg{{
			Type:        legKind(resp.Type, resp.Action.FromChainID, resp.Action.ToChainID),
			ToolName:    firstNonEmpty(resp.ToolDetails.Name, resp.Tool),
			FromChainID: resp.Action.FromChainID,
			ToChainID:   resp.Action.ToChainID,
		}}
		option.ToolNames = []string{firstNonEmpty(resp.ToolDetails.Name, resp.Tool)}
	}

	// Quotes come back as a single executable step; reshape them into the
	// route wire format so settlement polling can fold progress onto them.
	plan := lifi.Route{
		ID:          resp.ID,
		FromChainID: resp.Action.FromChainID,
		ToChainID:   resp.Action.ToChainID,
		FromToken:   resp.Action.FromToken,
		ToToken:     resp.Action.ToToken,
		FromAmount:  resp.Estimate.FromAmount,
		ToAmount:    resp.Estimate.ToAmount,
		ToAmountMin: resp.Estimate.ToAmountMin,
		Steps:       resp.IncludedSteps,
	}
	if len(plan.Steps) == 0 {
		plan.Steps = []lifi.Step{{
			ID:          resp.ID,
			Type:        resp.Type,
			Tool:        resp.Tool,
			ToolDetails: resp.ToolDetails,
			Action:      resp.Action,
			Estimate:    resp.Estimate,
		}}
	}
	if buf, err := json.Marshal(plan); err == nil {
		option.ServicePlan = buf
	}

	if strings.TrimSpace(resp.TransactionRequest.To) != "" {
		option.TransactionRequest = &model.TransactionRequest{
			To:       resp.TransactionRequest.To,
			From:     resp.TransactionRequest.From,
			Data:     resp.TransactionRequest.Data,
			Value:    resp.TransactionRequest.Value,
			ChainID:  resp.TransactionRequest.ChainID,
			GasLimit: resp.TransactionRequest.GasLimit,
			GasPrice: resp.TransactionRequest.GasPrice,
		}
	}
	return option
}

func stepCostUSD(step lifi.Step) float64 {
	var total float64
	for _, fee := range step.Estimate.FeeCosts {
		if v, err := strconv.ParseFloat(fee.AmountUSD, 64); err == nil {
			total += v
		}
	}
	for _, gas := range step.Estimate.GasCosts {
		if v, err := strconv.ParseFloat(gas.AmountUSD, 64); err == nil {
			total += v
		}
	}
	return total
}

func stepToLeg(step lifi.Step) model.RouteLeg {
	return model.RouteLeg{
		Type:        legKind(step.Type, step.Action.FromChainID, step.Action.ToChainID),
		ToolName:    toolName(step),
		FromChainID: step.Action.FromChainID,
		ToChainID:   step.Action.ToChainID,
	}
}

func legKind(stepType string, fromChainID, toChainID int64) model.StepKind {
	if fromChainID != 0 && toChainID != 0 && fromChainID != toChainID {
		return model.StepBridge
	}
	switch strings.ToLower(strings.TrimSpace(stepType)) {
	case "swap":
		return model.StepSwap
	case "cross":
		return model.StepBridge
	default:
		return model.StepTransfer
	}
}

func toolName(step lifi.Step) string {
	return firstNonEmpty(step.ToolDetails.Name, step.Tool)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
