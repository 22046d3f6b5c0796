// Package llm adapts embedding and generation providers to two small
// capabilities. Provider failures are classified here, once, into
// core.QuotaExceededError or core.ProviderError.
package llm

import (
	"context"
	"sync"
	"time"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator answers a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// EmbedFunc adapts a function to Embedder.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

func (f EmbedFunc) Embed(ctx context.Context, text string) ([]float32, error) {
	return f(ctx, text)
}

// LazyEmbedder builds its provider on the first Embed call. A build error
// is kept and returned from every call.
type LazyEmbedder struct {
	build func() (Embedder, error)

	once     sync.Once
	embedder Embedder
	err      error
}

func NewLazyEmbedder(build func() (Embedder, error)) *LazyEmbedder {
	return &LazyEmbedder{build: build}
}

func (l *LazyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	l.once.Do(func() {
		l.embedder, l.err = l.build()
	})
	if l.err != nil {
		return nil, l.err
	}
	return l.embedder.Embed(ctx, text)
}

// GenerateFunc adapts a function to Generator.
type GenerateFunc func(ctx context.Context, prompt string) (string, error)

func (f GenerateFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Config selects and configures a provider.
type Config struct {
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 60 * time.Second
	}
	return c.Timeout
}
