package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hubenschmidt/go-vecrag/core"
)

const (
	providerOllama        = "ollama"
	defaultOllamaURL      = "http://localhost:11434"
	defaultOllamaEmbedder = "nomic-embed-text"
	defaultOllamaModel    = "llama3.2"
)

func ollamaHost(baseURL string) string {
	host := strings.TrimSuffix(baseURL, "/")
	// Handle both /v1 suffix and bare host
	host = strings.TrimSuffix(host, "/v1")
	if host == "" {
		return defaultOllamaURL
	}
	return host
}

// OllamaEmbedder uses Ollama's native /api/embed endpoint.
type OllamaEmbedder struct {
	baseURL string
	model   string
	client  *http.Client
}

func NewOllamaEmbedder(cfg Config) *OllamaEmbedder {
	model := cfg.Model
	if model == "" {
		model = defaultOllamaEmbedder
	}
	return &OllamaEmbedder{
		baseURL: ollamaHost(cfg.BaseURL),
		model:   model,
		client:  &http.Client{Timeout: cfg.timeout()},
	}
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := map[string]any{
		"model": e.model,
		"input": text,
	}

	var result ollamaEmbedResponse
	if err := postJSON(ctx, e.client, providerOllama, e.baseURL+"/api/embed", nil, reqBody, &result); err != nil {
		return nil, err
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0]) == 0 {
		return nil, &core.ProviderError{Provider: providerOllama, Err: fmt.Errorf("no embeddings in response")}
	}
	return result.Embeddings[0], nil
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// OllamaGenerator uses the non-streaming /api/generate endpoint.
type OllamaGenerator struct {
	baseURL     string
	model       string
	temperature float64
	client      *http.Client
}

func NewOllamaGenerator(cfg Config) *OllamaGenerator {
	model := cfg.Model
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaGenerator{
		baseURL:     ollamaHost(cfg.BaseURL),
		model:       model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: cfg.timeout()},
	}
}

func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":   g.model,
		"prompt":  prompt,
		"stream":  false,
		"options": map[string]any{"temperature": g.temperature},
	}

	var result struct {
		Response string `json:"response"`
	}
	if err := postJSON(ctx, g.client, providerOllama, g.baseURL+"/api/generate", nil, reqBody, &result); err != nil {
		return "", err
	}
	return result.Response, nil
}
