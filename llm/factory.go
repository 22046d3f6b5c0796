package llm

import (
	"fmt"
	"strings"

	"github.com/hubenschmidt/go-vecrag/core"
)

// NewEmbedder builds the embedder named by cfg.Provider.
func NewEmbedder(cfg Config) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case providerOpenAI:
		return embedderOrNil(NewOpenAIEmbedder(cfg))
	case providerGemini:
		return embedderOrNil(NewGeminiEmbedder(cfg))
	case providerOllama:
		return NewOllamaEmbedder(cfg), nil
	default:
		return nil, core.NewValidationError("embedding.provider", fmt.Sprintf("unsupported provider %q", cfg.Provider))
	}
}

// NewGenerator builds the generator named by cfg.Provider.
func NewGenerator(cfg Config) (Generator, error) {
	switch strings.ToLower(cfg.Provider) {
	case providerOpenAI:
		return generatorOrNil(NewOpenAIGenerator(cfg))
	case providerGemini:
		return generatorOrNil(NewGeminiGenerator(cfg))
	case providerOllama:
		return NewOllamaGenerator(cfg), nil
	case providerAnthropic:
		return generatorOrNil(NewAnthropicGenerator(cfg))
	default:
		return nil, core.NewValidationError("generation.provider", fmt.Sprintf("unsupported provider %q", cfg.Provider))
	}
}

// embedderOrNil avoids returning a typed nil inside the interface.
func embedderOrNil[T Embedder](e T, err error) (Embedder, error) {
	if err != nil {
		return nil, err
	}
	return e, nil
}

func generatorOrNil[T Generator](g T, err error) (Generator, error) {
	if err != nil {
		return nil, err
	}
	return g, nil
}
