package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/hubenschmidt/go-vecrag/core"
)

const (
	providerOpenAI          = "openai"
	defaultOpenAIEmbedModel = "text-embedding-3-small"
	defaultOpenAIGenModel   = "gpt-4o-mini"
)

// OpenAIEmbedder embeds through langchaingo's OpenAI client. Any
// OpenAI-compatible endpoint works via BaseURL.
type OpenAIEmbedder struct {
	embedder embeddings.Embedder
	model    string
}

func NewOpenAIEmbedder(cfg Config) (*OpenAIEmbedder, error) {
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIEmbedModel
	}

	llm, err := newOpenAILLM(cfg, openai.WithEmbeddingModel(model))
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(false))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return &OpenAIEmbedder{embedder: embedder, model: model}, nil
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, classifyError(providerOpenAI, err)
	}
	if len(vec) == 0 {
		return nil, &core.ProviderError{Provider: providerOpenAI, Err: fmt.Errorf("no embedding returned for model %s", e.model)}
	}
	return vec, nil
}

// OpenAIGenerator completes prompts with an OpenAI chat model.
type OpenAIGenerator struct {
	llm         llms.Model
	temperature float64
	maxTokens   int
}

func NewOpenAIGenerator(cfg Config) (*OpenAIGenerator, error) {
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIGenModel
	}

	llm, err := newOpenAILLM(cfg, openai.WithModel(model))
	if err != nil {
		return nil, err
	}
	return &OpenAIGenerator{llm: llm, temperature: cfg.Temperature, maxTokens: cfg.MaxTokens}, nil
}

func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	opts := []llms.CallOption{llms.WithTemperature(g.temperature)}
	if g.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(g.maxTokens))
	}

	out, err := llms.GenerateFromSinglePrompt(ctx, g.llm, prompt, opts...)
	if err != nil {
		return "", classifyError(providerOpenAI, err)
	}
	return out, nil
}

func newOpenAILLM(cfg Config, extra ...openai.Option) (*openai.LLM, error) {
	if cfg.APIKey == "" {
		return nil, core.NewValidationError("api_key", "openai requires an API key")
	}

	opts := []openai.Option{openai.WithToken(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, extra...)

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}
	return llm, nil
}
