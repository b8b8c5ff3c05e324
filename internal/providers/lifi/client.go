package lifi

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	clierr "github.com/payflowhq/payflow/internal/errors"
	"github.com/payflowhq/payflow/internal/httpx"
	"github.com/payflowhq/payflow/internal/model"
)

// Client talks to the li.quest v1 routing service. Construction is explicit;
// there is no package-level instance or hidden initialization.
type Client struct {
	http       *httpx.Client
	baseURL    string
	apiKey     string
	integrator string
	now        func() time.Time
}

func New(httpClient *httpx.Client, baseURL, apiKey, integrator string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://li.quest/v1"
	}
	return &Client{
		http:       httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		integrator: strings.TrimSpace(integrator),
		now:        time.Now,
	}
}

func (c *Client) Info() model.ProviderInfo {
	return model.ProviderInfo{
		Name:        "lifi",
		Type:        "routing",
		RequiresKey: false,
		Capabilities: []string{
			"payment.quote",
			"payment.routes",
			"payment.status",
			"wallet.balances",
		},
	}
}

// QuoteRequest parameterizes /quote. Exactly one of FromAmount and ToAmount
// must be set; ToAmount asks the service for a receive-exact quote.
type QuoteRequest struct {
	FromChainID int64
	ToChainID   int64
	FromToken   string
	ToToken     string
	FromAmount  string
	ToAmount    string
	FromAddress string
	ToAddress   string
	SlippageBps int64
}

func (c *Client) Quote(ctx context.Context, req QuoteRequest) (QuoteResponse, error) {
	if err := validateAmountPair(req.FromAmount, req.ToAmount); err != nil {
		return QuoteResponse{}, err
	}
	vals := url.Values{}
	vals.Set("fromChain", strconv.FormatInt(req.FromChainID, 10))
	vals.Set("toChain", strconv.FormatInt(req.ToChainID, 10))
	vals.Set("fromToken", req.FromToken)
	vals.Set("toToken", req.ToToken)
	if req.FromAmount != "" {
		vals.Set("fromAmount", req.FromAmount)
	} else {
		vals.Set("toAmount", req.ToAmount)
	}
	vals.Set("fromAddress", req.FromAddress)
	if strings.TrimSpace(req.ToAddress) != "" {
		vals.Set("toAddress", req.ToAddress)
	}
	vals.Set("slippage", formatSlippage(req.SlippageBps))
	if c.integrator != "" {
		vals.Set("integrator", c.integrator)
	}

	var resp QuoteResponse
	if err := c.get(ctx, "/quote", vals, &resp); err != nil {
		return QuoteResponse{}, err
	}
	if resp.Estimate.ToAmount == "" {
		return QuoteResponse{}, clierr.New(clierr.CodeUnavailable, "routing service quote missing output amount")
	}
	return resp, nil
}

// RoutesRequest parameterizes /advanced/routes.
type RoutesRequest struct {
	FromChainID int64
	ToChainID   int64
	FromToken   string
	ToToken     string
	FromAmount  string
	FromAddress string
	ToAddress   string
	SlippageBps int64
}

type routesRequestBody struct {
	FromChainID      int64  `json:"fromChainId"`
	ToChainID        int64  `json:"toChainId"`
	FromTokenAddress string `json:"fromTokenAddress"`
	ToTokenAddress   string `json:"toTokenAddress"`
	FromAmount       string `json:"fromAmount"`
	FromAddress      string `json:"fromAddress,omitempty"`
	ToAddress        string `json:"toAddress,omitempty"`
	Options          struct {
		Slippage   float64 `json:"slippage"`
		Integrator string  `json:"integrator,omitempty"`
	} `json:"options"`
}

func (c *Client) Routes(ctx context.Context, req RoutesRequest) ([]Route, error) {
	body := routesRequestBody{
		FromChainID:      req.FromChainID,
		ToChainID:        req.ToChainID,
		FromTokenAddress: req.FromToken,
		ToTokenAddress:   req.ToToken,
		FromAmount:       req.FromAmount,
		FromAddress:      req.FromAddress,
		ToAddress:        req.ToAddress,
	}
	body.Options.Slippage = float64(req.SlippageBps) / 10000
	body.Options.Integrator = c.integrator

	buf, err := json.Marshal(body)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "encode routes request", err)
	}
	var resp routesResponse
	if _, err := httpx.DoBodyJSON(ctx, c.http, http.MethodPost, c.baseURL+"/advanced/routes", buf, c.headers(), &resp); err != nil {
		return nil, err
	}
	// An empty route list is a normal user-facing outcome, not an error.
	return resp.Routes, nil
}

// Status polls /status for a sent transaction. fromChain/toChain narrow the
// lookup when known; zero values are omitted.
func (c *Client) Status(ctx context.Context, txHash string, fromChainID, toChainID int64) (StatusResponse, error) {
	if strings.TrimSpace(txHash) == "" {
		return StatusResponse{}, clierr.New(clierr.CodeUsage, "transaction hash is required")
	}
	vals := url.Values{}
	vals.Set("txHash", txHash)
	if fromChainID > 0 {
		vals.Set("fromChain", strconv.FormatInt(fromChainID, 10))
	}
	if toChainID > 0 {
		vals.Set("toChain", strconv.FormatInt(toChainID, 10))
	}
	var resp StatusResponse
	if err := c.get(ctx, "/status", vals, &resp); err != nil {
		return StatusResponse{}, err
	}
	return resp, nil
}

// TokenBalances fetches the wallet's holdings across the given chains.
// Failures degrade to an empty inventory rather than blocking the caller;
// zero-amount entries are dropped.
func (c *Client) TokenBalances(ctx context.Context, walletAddress string, chainIDs []int64) ([]TokenBalance, error) {
	if strings.TrimSpace(walletAddress) == "" {
		return nil, clierr.New(clierr.CodeUsage, "wallet address is required")
	}
	vals := url.Values{}
	vals.Set("walletAddress", walletAddress)
	if len(chainIDs) > 0 {
		parts := make([]string, 0, len(chainIDs))
		for _, chainID := range chainIDs {
			parts = append(parts, strconv.FormatInt(chainID, 10))
		}
		vals.Set("chains", strings.Join(parts, ","))
	}
	var resp balancesResponse
	if err := c.get(ctx, "/token/balances", vals, &resp); err != nil {
		return []TokenBalance{}, nil
	}
	out := make([]TokenBalance, 0, len(resp.Balances))
	for _, b := range resp.Balances {
		if b.Amount == "" || b.Amount == "0" {
			continue
		}
		if _, ok := new(big.Int).SetString(b.Amount, 10); !ok {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, vals url.Values, out any) error {
	reqURL := c.baseURL + path
	if len(vals) > 0 {
		reqURL += "?" + vals.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "build routing service request", err)
	}
	for k, v := range c.headers() {
		req.Header.Set(k, v)
	}
	_, err = c.http.DoJSON(ctx, req, out)
	return err
}

func (c *Client) headers() map[string]string {
	headers := map[string]string{}
	if c.apiKey != "" {
		headers["x-lifi-api-key"] = c.apiKey
	}
	return headers
}

func validateAmountPair(fromAmount, toAmount string) error {
	hasFrom := strings.TrimSpace(fromAmount) != ""
	hasTo := strings.TrimSpace(toAmount) != ""
	if hasFrom == hasTo {
		return clierr.New(clierr.CodeUsage, "provide exactly one of fromAmount or toAmount")
	}
	amount := fromAmount
	if hasTo {
		amount = toAmount
	}
	n, ok := new(big.Int).SetString(strings.TrimSpace(amount), 10)
	if !ok || n.Sign() <= 0 {
		return clierr.New(clierr.CodeUsage, "amount must be a positive integer base-unit value")
	}
	return nil
}

func formatSlippage(bps int64) string {
	if bps <= 0 {
		bps = 50
	}
	return strconv.FormatFloat(float64(bps)/10000, 'f', 6, 64)
}

// HexValueToDecimal converts the hex value field of a transaction request
// into a decimal string.
func HexValueToDecimal(v string) (string, error) {
	clean := strings.TrimSpace(v)
	if clean == "" {
		return "0", nil
	}
	clean = strings.TrimPrefix(clean, "0x")
	clean = strings.TrimPrefix(clean, "0X")
	n := new(big.Int)
	if _, ok := n.SetString(clean, 16); !ok {
		return "", fmt.Errorf("invalid hex value %q", v)
	}
	return n.String(), nil
}
