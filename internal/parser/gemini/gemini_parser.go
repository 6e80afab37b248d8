package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"

	"docxingest/internal/config"
	"docxingest/internal/parser"
	"docxingest/internal/port"
)

const providerName = "gemini"

func init() {
	parser.RegisterProvider(providerName, func(cfg *config.ParserProviderConfig) (port.FieldExtractor, error) {
		return NewParser(context.Background(), cfg)
	})
}

// Parser implements port.FieldExtractor using the Gemini API through the genai SDK.
type Parser struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewParser creates a Gemini-based field extractor.
func NewParser(ctx context.Context, cfg *config.ParserProviderConfig) (*Parser, error) {
	return newParser(ctx, cfg, "")
}

// NewParserWithEndpoint creates a parser pointing at a custom base URL (for testing).
func NewParserWithEndpoint(ctx context.Context, cfg *config.ParserProviderConfig, endpoint string) (*Parser, error) {
	return newParser(ctx, cfg, endpoint)
}

func newParser(ctx context.Context, cfg *config.ParserProviderConfig, endpoint string) (*Parser, error) {
	model := cfg.DefaultModel
	if model == "" {
		model = "gemini-2.0-flash"
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
	}
	if endpoint != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: endpoint}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini.NewParser: %w", err)
	}
	return &Parser{client: client, model: model, timeout: timeout}, nil
}

func (p *Parser) ExtractFields(ctx context.Context, input port.ExtractInput) (*port.ExtractOutput, error) {
	prompt := parser.BuildInvoicePrompt(input)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	result, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		MaxOutputTokens:  8192,
	})
	if err != nil {
		return nil, classify(err)
	}

	if len(result.Candidates) == 0 {
		return nil, fmt.Errorf("empty response from API: no candidates")
	}
	if result.Candidates[0].FinishReason == genai.FinishReasonMaxTokens {
		return nil, fmt.Errorf("output truncated (finishReason: MAX_TOKENS): response exceeded output token limit")
	}
	text := result.Text()
	if text == "" {
		return nil, fmt.Errorf("empty response from API: no parts")
	}

	return &port.ExtractOutput{
		StructuredData: json.RawMessage(text),
		ModelUsed:      p.model,
		PromptUsed:     prompt,
	}, nil
}

func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return parser.StatusError(providerName, apiErr.Code, http.Header{}, []byte(apiErr.Message))
	}
	return parser.TransportError(providerName, err)
}
