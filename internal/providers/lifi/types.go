package lifi

// Raw wire shapes for the li.quest v1 API. Field names keep the service's
// camelCase; the routing engine converts these into the CLI's own model.

type TokenRef struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int    `json:"decimals"`
	ChainID  int64  `json:"chainId"`
	PriceUSD string `json:"priceUSD"`
}

type FeeCost struct {
	Name      string `json:"name"`
	AmountUSD string `json:"amountUSD"`
}

type GasCost struct {
	Type      string `json:"type"`
	AmountUSD string `json:"amountUSD"`
}

type Estimate struct {
	FromAmount        string    `json:"fromAmount"`
	ToAmount          string    `json:"toAmount"`
	ToAmountMin       string    `json:"toAmountMin"`
	ApprovalAddress   string    `json:"approvalAddress"`
	FeeCosts          []FeeCost `json:"feeCosts"`
	GasCosts          []GasCost `json:"gasCosts"`
	ExecutionDuration int64     `json:"executionDuration"`
}

type StepAction struct {
	FromChainID int64    `json:"fromChainId"`
	ToChainID   int64    `json:"toChainId"`
	FromToken   TokenRef `json:"fromToken"`
	ToToken     TokenRef `json:"toToken"`
	FromAmount  string   `json:"fromAmount"`
	FromAddress string   `json:"fromAddress"`
	ToAddress   string   `json:"toAddress"`
	Slippage    float64  `json:"slippage"`
}

type ToolDetails struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

type Step struct {
	ID          string      `json:"id"`
	Type        string      `json:"type"`
	Tool        string      `json:"tool"`
	ToolDetails ToolDetails `json:"toolDetails"`
	Action      StepAction  `json:"action"`
	Estimate    Estimate    `json:"estimate"`
	Execution   *Execution  `json:"execution,omitempty"`
}

// Execution is the service-side progress attached to a step once it starts
// running. Absent execution means the step has not been reached.
type Execution struct {
	Status  string    `json:"status"`
	Process []Process `json:"process"`
}

type Process struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Message string `json:"message"`
	TxHash  string `json:"txHash"`
	TxLink  string `json:"txLink"`
}

// Process types and statuses reported in step executions.
const (
	ProcessTokenAllowance = "TOKEN_ALLOWANCE"
	ProcessSwap           = "SWAP"
	ProcessCrossChain     = "CROSS_CHAIN"
	ProcessReceivingChain = "RECEIVING_CHAIN"
	ProcessTransaction    = "TRANSACTION"

	ProcessStatusStarted        = "STARTED"
	ProcessStatusPending        = "PENDING"
	ProcessStatusActionRequired = "ACTION_REQUIRED"
	ProcessStatusDone           = "DONE"
	ProcessStatusFailed         = "FAILED"
)

type TransactionRequest struct {
	To       string `json:"to"`
	From     string `json:"from"`
	Data     string `json:"data"`
	Value    string `json:"value"`
	ChainID  int64  `json:"chainId"`
	GasLimit string `json:"gasLimit"`
	GasPrice string `json:"gasPrice"`
}

// QuoteResponse is the /quote result: a single executable step with its
// transaction payload attached.
type QuoteResponse struct {
	ID                 string             `json:"id"`
	Type               string             `json:"type"`
	Tool               string             `json:"tool"`
	ToolDetails        ToolDetails        `json:"toolDetails"`
	Action             StepAction         `json:"action"`
	Estimate           Estimate           `json:"estimate"`
	IncludedSteps      []Step             `json:"includedSteps"`
	TransactionRequest TransactionRequest `json:"transactionRequest"`
}

// Route is one option from /advanced/routes.
type Route struct {
	ID          string   `json:"id"`
	FromChainID int64    `json:"fromChainId"`
	ToChainID   int64    `json:"toChainId"`
	FromToken   TokenRef `json:"fromToken"`
	ToToken     TokenRef `json:"toToken"`
	FromAmount  string   `json:"fromAmount"`
	ToAmount    string   `json:"toAmount"`
	ToAmountMin string   `json:"toAmountMin"`
	GasCostUSD  string   `json:"gasCostUSD"`
	Tags        []string `json:"tags"`
	Steps       []Step   `json:"steps"`
}

type routesResponse struct {
	Routes []Route `json:"routes"`
}

// StatusResponse is the /status result for a cross-chain transfer.
type StatusResponse struct {
	Status           string `json:"status"`
	SubStatus        string `json:"substatus"`
	SubStatusMessage string `json:"substatusMessage"`
	Tool             string `json:"tool"`
	Sending          struct {
		TxHash string `json:"txHash"`
		TxLink string `json:"txLink"`
	} `json:"sending"`
	Receiving struct {
		TxHash string `json:"txHash"`
		TxLink string `json:"txLink"`
	} `json:"receiving"`
}

// TokenBalance is one entry from /token/balances. Amount is a base-unit
// integer string.
type TokenBalance struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int    `json:"decimals"`
	ChainID  int64  `json:"chainId"`
	PriceUSD string `json:"priceUSD"`
	Amount   string `json:"amount"`
}

type balancesResponse struct {
	Balances []TokenBalance `json:"balances"`
}

// Transfer status values reported by /status.
const (
	StatusNotFound = "NOT_FOUND"
	StatusInvalid  = "INVALID"
	StatusPending  = "PENDING"
	StatusDone     = "DONE"
	StatusFailed   = "FAILED"
)
