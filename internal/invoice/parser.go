package invoice

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	clierr "github.com/payflowhq/payflow/internal/errors"
	"github.com/payflowhq/payflow/internal/httpx"
	"github.com/payflowhq/payflow/internal/model"
)

// Parser extracts structured payment details from free-form invoice text
// using an OpenAI-compatible chat completions endpoint.
type Parser struct {
	http    *httpx.Client
	baseURL string
	apiKey  string
	model   string
}

func NewParser(httpClient *httpx.Client, baseURL, apiKey, modelName string) *Parser {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if strings.TrimSpace(modelName) == "" {
		modelName = "gpt-4o-mini"
	}
	return &Parser{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(apiKey),
		model:   modelName,
	}
}

const systemPrompt = `You extract payment details from invoices. Reply with only a JSON object with keys: recipient (0x address or ENS name), amount (decimal string), token (symbol like USDC), chain (name like arbitrum), due_date (ISO date or empty), memo (short description or empty). Use empty strings for anything not present.`

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *Parser) Parse(ctx context.Context, text string) (model.ParsedInvoice, error) {
	if strings.TrimSpace(text) == "" {
		return model.ParsedInvoice{}, clierr.New(clierr.CodeUsage, "invoice text is empty")
	}
	if p.apiKey == "" {
		return model.ParsedInvoice{}, clierr.New(clierr.CodeAuth, "invoice parsing requires an API key (set PAYFLOW_PARSER_API_KEY)")
	}

	req := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: text},
		},
	}
	req.ResponseFormat = &struct {
		Type string `json:"type"`
	}{Type: "json_object"}

	buf, err := json.Marshal(req)
	if err != nil {
		return model.ParsedInvoice{}, clierr.Wrap(clierr.CodeInternal, "encode parse request", err)
	}
	headers := map[string]string{"Authorization": "Bearer " + p.apiKey}

	var resp chatResponse
	if _, err := httpx.DoBodyJSON(ctx, p.http, http.MethodPost, p.baseURL+"/chat/completions", buf, headers, &resp); err != nil {
		return model.ParsedInvoice{}, err
	}
	if len(resp.Choices) == 0 {
		return model.ParsedInvoice{}, clierr.New(clierr.CodeUnavailable, "parsing model returned no output")
	}

	content := stripCodeFences(resp.Choices[0].Message.Content)
	var parsed model.ParsedInvoice
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return model.ParsedInvoice{}, clierr.Wrap(clierr.CodeUnavailable, "decode parsed invoice", err)
	}
	if strings.TrimSpace(parsed.Recipient) == "" {
		return model.ParsedInvoice{}, clierr.New(clierr.CodeUsage, "invoice has no recipient")
	}
	return parsed, nil
}

func stripCodeFences(v string) string {
	clean := strings.TrimSpace(v)
	if strings.HasPrefix(clean, "```") {
		clean = strings.TrimPrefix(clean, "```json")
		clean = strings.TrimPrefix(clean, "```")
		if idx := strings.LastIndex(clean, "```"); idx >= 0 {
			clean = clean[:idx]
		}
	}
	return strings.TrimSpace(clean)
}
