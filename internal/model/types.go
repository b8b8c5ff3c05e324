package model

import (
	"encoding/json"
	"time"
)

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string           `json:"request_id"`
	Timestamp time.Time        `json:"timestamp"`
	Command   string           `json:"command"`
	Providers []ProviderStatus `json:"providers,omitempty"`
	Cache     CacheStatus      `json:"cache"`
	Partial   bool             `json:"partial"`
}

type ProviderStatus struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

type CacheStatus struct {
	Status string `json:"status"`
	AgeMS  int64  `json:"age_ms"`
	Stale  bool   `json:"stale"`
}

type ProviderInfo struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	RequiresKey  bool     `json:"requires_key"`
	Capabilities []string `json:"capabilities"`
}

// AmountMode selects whether the intent amount denominates the source token
// (pay from my balance) or the destination token (recipient must receive an
// exact figure).
type AmountMode string

const (
	AmountModeExactSend    AmountMode = "exact_send"
	AmountModeExactReceive AmountMode = "exact_receive"
)

// PaymentIntent is immutable once a quote request has been issued. Amounts
// are integer base-unit strings; decimal user input is converted exactly once
// at the CLI boundary.
type PaymentIntent struct {
	SourceChainID      int64      `json:"source_chain_id"`
	SourceTokenAddress string     `json:"source_token_address"`
	SourceWallet       string     `json:"source_wallet"`
	DestinationChainID int64      `json:"destination_chain_id"`
	DestinationToken   string     `json:"destination_token_address"`
	DestinationAddress string     `json:"destination_address"`
	AmountBaseUnits    string     `json:"amount_base_units"`
	AmountMode         AmountMode `json:"amount_mode"`
	SlippageBps        int64      `json:"slippage_bps"`
}

type RouteTag string

const (
	TagRecommended RouteTag = "RECOMMENDED"
	TagFastest     RouteTag = "FASTEST"
	TagCheapest    RouteTag = "CHEAPEST"
	TagBestValue   RouteTag = "BEST_VALUE"
)

type StepKind string

const (
	StepApproval StepKind = "approval"
	StepSwap     StepKind = "swap"
	StepBridge   StepKind = "bridge"
	StepTransfer StepKind = "transfer"
)

type StepStatus string

const (
	StepPending        StepStatus = "pending"
	StepExecuting      StepStatus = "executing"
	StepActionRequired StepStatus = "action_required"
	StepCompleted      StepStatus = "completed"
	StepFailed         StepStatus = "failed"
)

// RouteLeg is one operation within a route plan.
type RouteLeg struct {
	Type        StepKind `json:"type"`
	ToolName    string   `json:"tool_name"`
	FromChainID int64    `json:"from_chain_id"`
	ToChainID   int64    `json:"to_chain_id"`
}

// TransactionRequest is the primary submittable transaction supplied by the
// routing service. Value and gas fields keep the service's hex encoding.
type TransactionRequest struct {
	To       string `json:"to"`
	From     string `json:"from,omitempty"`
	Data     string `json:"data"`
	Value    string `json:"value"`
	ChainID  int64  `json:"chain_id"`
	GasLimit string `json:"gas_limit,omitempty"`
	GasPrice string `json:"gas_price,omitempty"`
}

// RouteOption is immutable after creation; tags are computed once by the
// route engine and never mutated afterward.
type RouteOption struct {
	ID                       string              `json:"id"`
	Tags                     []RouteTag          `json:"tags"`
	ToolNames                []string            `json:"tool_names"`
	Legs                     []RouteLeg          `json:"legs"`
	StepCount                int                 `json:"step_count"`
	FromChainID              int64               `json:"from_chain_id"`
	ToChainID                int64               `json:"to_chain_id"`
	FromAmount               string              `json:"from_amount"`
	DestinationAmount        string              `json:"destination_amount"`
	DestinationAmountMin     string              `json:"destination_amount_min"`
	DestinationAmountDecimal string              `json:"destination_amount_decimal"`
	DestinationDecimals      int                 `json:"destination_decimals"`
	TotalCostUSD             float64             `json:"total_cost_usd"`
	TotalDurationSeconds     int64               `json:"total_duration_seconds"`
	ApprovalAddress          string              `json:"approval_address,omitempty"`
	TransactionRequest       *TransactionRequest `json:"transaction_request,omitempty"`

	// ServicePlan is the raw route this option was built from, in the
	// routing service's own wire format. The execution engine rehydrates it
	// to fold service-side settlement progress onto the step list.
	ServicePlan json.RawMessage `json:"-"`
}

// TransactionStep is the live progress model for one leg of an executing
// payment. It is owned exclusively by one active run.
type TransactionStep struct {
	ID          string     `json:"id"`
	Type        StepKind   `json:"type"`
	ToolName    string     `json:"tool_name"`
	FromChainID int64      `json:"from_chain_id"`
	ToChainID   int64      `json:"to_chain_id"`
	Status      StepStatus `json:"status"`
	Message     string     `json:"message,omitempty"`
	TxHash      string     `json:"tx_hash,omitempty"`
	TxLink      string     `json:"tx_link,omitempty"`
}

// WalletTokenBalance is a read-only snapshot; the inventory is re-fetched
// wholesale on demand, never incrementally patched.
type WalletTokenBalance struct {
	Symbol        string `json:"symbol"`
	Name          string `json:"name"`
	ChainID       int64  `json:"chain_id"`
	TokenAddress  string `json:"token_address"`
	AmountRaw     string `json:"amount_raw"`
	AmountDecimal string `json:"amount_decimal"`
	Decimals      int    `json:"decimals"`
	PriceUSD      string `json:"price_usd"`
}

type AmountInfo struct {
	AmountBaseUnits string `json:"amount_base_units"`
	AmountDecimal   string `json:"amount_decimal"`
	Decimals        int    `json:"decimals"`
}

// TransferStatus is the routing service's view of a cross-chain transfer.
type TransferStatus struct {
	Status           string `json:"status"`
	SubStatus        string `json:"sub_status,omitempty"`
	SubStatusMessage string `json:"sub_status_message,omitempty"`
	Tool             string `json:"tool,omitempty"`
	SendingTxHash    string `json:"sending_tx_hash,omitempty"`
	SendingTxLink    string `json:"sending_tx_link,omitempty"`
	ReceivingTxHash  string `json:"receiving_tx_hash,omitempty"`
	ReceivingTxLink  string `json:"receiving_tx_link,omitempty"`
}

// ENSProfile carries the optional text records attached to a name. Lookups
// fail soft; absent records are empty strings.
type ENSProfile struct {
	Name        string `json:"name"`
	Address     string `json:"address"`
	Avatar      string `json:"avatar,omitempty"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	Twitter     string `json:"twitter,omitempty"`
	GitHub      string `json:"github,omitempty"`
}

// ParsedInvoice is the structured result extracted from free-form invoice
// text by the parsing model.
type ParsedInvoice struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Token     string `json:"token"`
	Chain     string `json:"chain"`
	DueDate   string `json:"due_date,omitempty"`
	Memo      string `json:"memo,omitempty"`
}

type Invoice struct {
	ID          string        `json:"id"`
	RawFileName string        `json:"raw_file_name,omitempty"`
	RawFileType string        `json:"raw_file_type,omitempty"`
	Parsed      ParsedInvoice `json:"parsed"`
	Status      string        `json:"status"`
	CreatedAt   string        `json:"created_at"`
}

// PaymentRecord is emitted by the execution engine on every terminal
// outcome; the engine never reads it back mid-execution.
type PaymentRecord struct {
	ID          string `json:"id"`
	InvoiceID   string `json:"invoice_id,omitempty"`
	TxHash      string `json:"tx_hash,omitempty"`
	FromChainID int64  `json:"from_chain_id"`
	ToChainID   int64  `json:"to_chain_id"`
	FromToken   string `json:"from_token"`
	ToToken     string `json:"to_token"`
	Amount      string `json:"amount"`
	Status      string `json:"status"`
	RouteID     string `json:"route_id,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type Contact struct {
	ID           string `json:"id"`
	Address      string `json:"address"`
	ENSName      string `json:"ens_name,omitempty"`
	Name         string `json:"name,omitempty"`
	Notes        string `json:"notes,omitempty"`
	ENSAvatar    string `json:"ens_avatar,omitempty"`
	LastPaidAt   string `json:"last_paid_at,omitempty"`
	PaymentCount int64  `json:"payment_count"`
}
