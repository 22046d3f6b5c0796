package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hubenschmidt/go-vecrag/core"
)

const (
	providerGemini         = "gemini"
	geminiDefaultBase      = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiEmbedding = "embedding-001"
	defaultGeminiModel     = "gemini-1.5-flash"
)

type geminiClient struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func newGeminiClient(cfg Config, defaultModel string) (geminiClient, error) {
	if cfg.APIKey == "" {
		return geminiClient{}, core.NewValidationError("api_key", "gemini requires an API key")
	}
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = geminiDefaultBase
	}
	model := strings.TrimPrefix(cfg.Model, "models/")
	if model == "" {
		model = defaultModel
	}
	return geminiClient{
		apiKey:  cfg.APIKey,
		baseURL: base,
		model:   model,
		client:  &http.Client{Timeout: cfg.timeout()},
	}, nil
}

// endpoint builds models/{model}:{method} with the key as a query param.
func (c geminiClient) endpoint(method string) string {
	return fmt.Sprintf("%s/models/%s:%s?key=%s", c.baseURL, c.model, method, url.QueryEscape(c.apiKey))
}

// GeminiEmbedder calls the Gemini embedContent endpoint.
type GeminiEmbedder struct {
	c geminiClient
}

func NewGeminiEmbedder(cfg Config) (*GeminiEmbedder, error) {
	c, err := newGeminiClient(cfg, defaultGeminiEmbedding)
	if err != nil {
		return nil, err
	}
	return &GeminiEmbedder{c: c}, nil
}

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	req := geminiEmbedRequest{
		Model:   "models/" + e.c.model,
		Content: geminiContent{Parts: []geminiPart{{Text: text}}},
	}

	var resp geminiEmbedResponse
	if err := postJSON(ctx, e.c.client, providerGemini, e.c.endpoint("embedContent"), nil, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding.Values) == 0 {
		return nil, &core.ProviderError{Provider: providerGemini, Err: fmt.Errorf("no embedding in response")}
	}
	return resp.Embedding.Values, nil
}

// GeminiGenerator calls the Gemini generateContent endpoint.
type GeminiGenerator struct {
	c           geminiClient
	temperature float64
	maxTokens   int
}

func NewGeminiGenerator(cfg Config) (*GeminiGenerator, error) {
	c, err := newGeminiClient(cfg, defaultGeminiModel)
	if err != nil {
		return nil, err
	}
	return &GeminiGenerator{c: c, temperature: cfg.Temperature, maxTokens: cfg.MaxTokens}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	req := geminiGenerateRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature: &g.temperature,
		},
	}
	if g.maxTokens > 0 {
		req.GenerationConfig.MaxOutputTokens = g.maxTokens
	}

	var resp geminiGenerateResponse
	if err := postJSON(ctx, g.c.client, providerGemini, g.c.endpoint("generateContent"), nil, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", &core.ProviderError{Provider: providerGemini, Err: fmt.Errorf("no candidates in response")}
	}

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiEmbedRequest struct {
	Model   string        `json:"model"`
	Content geminiContent `json:"content"`
}

type geminiEmbedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type geminiGenerateRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiGenerateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}
