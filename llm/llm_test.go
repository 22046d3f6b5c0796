package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/go-vecrag/core"
)

func TestGeminiEmbedder(t *testing.T) {
	var gotPath, gotKey string
	var gotBody geminiEmbedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"embedding":{"values":[0.25,-0.5,1]}}`))
	}))
	defer srv.Close()

	e, err := NewGeminiEmbedder(Config{APIKey: "secret", BaseURL: srv.URL})
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "¿Cuál es la capital de Bolivia?")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -0.5, 1}, vec)
	assert.Equal(t, "/models/embedding-001:embedContent", gotPath)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "models/embedding-001", gotBody.Model)
	assert.Equal(t, "¿Cuál es la capital de Bolivia?", gotBody.Content.Parts[0].Text)
}

func TestProviderErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"code":429}}`, core.ErrQuotaExceeded},
		{"quota in body", http.StatusForbidden, `{"error":{"status":"RESOURCE_EXHAUSTED"}}`, core.ErrQuotaExceeded},
		{"unauthorized", http.StatusUnauthorized, `{"error":"bad key"}`, core.ErrProvider},
		{"server error", http.StatusInternalServerError, `boom`, core.ErrProvider},
		{"structured quota type", http.StatusForbidden, `{"error":{"message":"You exceeded your current quota","type":"insufficient_quota"}}`, core.ErrQuotaExceeded},
		{"numeric 429 code", http.StatusBadRequest, `{"error":{"code":429,"message":"slow down"}}`, core.ErrQuotaExceeded},
		{"permission denied mentioning quota", http.StatusForbidden, `{"error":{"code":403,"message":"The generativelanguage.googleapis.com API requires a quota project, which is not set by default.","status":"PERMISSION_DENIED"}}`, core.ErrProvider},
		{"plain text mentioning rate limit", http.StatusBadRequest, `invalid rate limit header`, core.ErrProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			e, err := NewGeminiEmbedder(Config{APIKey: "k", BaseURL: srv.URL})
			require.NoError(t, err)

			_, err = e.Embed(context.Background(), "text")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			assert.Equal(t, tt.want == core.ErrQuotaExceeded, core.IsTransient(err))
			if tt.want == core.ErrProvider {
				var pe *core.ProviderError
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, tt.status, pe.StatusCode)
			}
		})
	}
}

func TestTransportFailureIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	e := NewOllamaEmbedder(Config{BaseURL: srv.URL})
	_, err := e.Embed(context.Background(), "text")
	assert.ErrorIs(t, err, core.ErrProvider)
	assert.False(t, core.IsTransient(err))
}

func TestCanceledContextPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embeddings":[[1]]}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewOllamaEmbedder(Config{BaseURL: srv.URL}).Embed(ctx, "text")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOllamaEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "nomic-embed-text", body["model"])
		w.Write([]byte(`{"embeddings":[[1,2,3]]}`))
	}))
	defer srv.Close()

	vec, err := NewOllamaEmbedder(Config{BaseURL: srv.URL + "/v1"}).Embed(context.Background(), "hola")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vec)
}

func TestGeminiGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.5-flash:generateContent", r.URL.Path)
		var body geminiGenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "user", body.Contents[0].Role)
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"La capital "},{"text":"es Sucre."}]}}]}`))
	}))
	defer srv.Close()

	g, err := NewGeminiGenerator(Config{APIKey: "k", BaseURL: srv.URL, Model: "models/gemini-2.5-flash"})
	require.NoError(t, err)

	out, err := g.Generate(context.Background(), "Pregunta")
	require.NoError(t, err)
	assert.Equal(t, "La capital es Sucre.", out)
}

func TestAnthropicGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		w.Write([]byte(`{"content":[{"type":"text","text":"Sucre"}],"stop_reason":"end_turn"}`))
	}))
	defer srv.Close()

	g, err := NewAnthropicGenerator(Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)
	out, err := g.Generate(context.Background(), "capital?")
	require.NoError(t, err)
	assert.Equal(t, "Sucre", out)
}

func TestOpenAIEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.1,0.2]}],"model":"text-embedding-3-small","usage":{"prompt_tokens":1,"total_tokens":1}}`))
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(Config{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)
}

func TestOpenAIEmbedderQuota(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"You exceeded your current quota","type":"insufficient_quota"}}`))
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(Config{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, core.ErrQuotaExceeded)
}

func TestClassifyError(t *testing.T) {
	assert.Nil(t, classifyError("openai", nil))
	assert.ErrorIs(t, classifyError("openai", errors.New("API returned unexpected status code: 429")), core.ErrQuotaExceeded)
	assert.ErrorIs(t, classifyError("openai", errors.New("Rate limit reached for requests")), core.ErrQuotaExceeded)
	assert.ErrorIs(t, classifyError("openai", errors.New("API returned unexpected status code: 500")), core.ErrProvider)
	assert.ErrorIs(t, classifyError("openai", fmt.Errorf("call: %w", context.DeadlineExceeded)), context.DeadlineExceeded)

	denied := classifyError("gemini", errors.New("API returned unexpected status code: 403: requires a quota project"))
	var pe *core.ProviderError
	require.ErrorAs(t, denied, &pe)
	assert.Equal(t, http.StatusForbidden, pe.StatusCode)
	assert.False(t, core.IsTransient(denied))

	assert.ErrorIs(t, classifyError("openai", errors.New("API returned unexpected status code: 403: insufficient_quota")), core.ErrQuotaExceeded)

	already := &core.ProviderError{Provider: "x", Err: errors.New("quota words inside")}
	assert.Same(t, already, classifyError("openai", already))
}

func TestFactories(t *testing.T) {
	_, err := NewEmbedder(Config{Provider: "cohere"})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = NewEmbedder(Config{Provider: "gemini"})
	assert.ErrorIs(t, err, core.ErrValidation, "missing key")

	e, err := NewEmbedder(Config{Provider: "Ollama"})
	require.NoError(t, err)
	assert.IsType(t, &OllamaEmbedder{}, e)

	g, err := NewGenerator(Config{Provider: "anthropic", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &AnthropicGenerator{}, g)

	_, err = NewGenerator(Config{Provider: "openai"})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestFuncAdapters(t *testing.T) {
	var e Embedder = EmbedFunc(func(ctx context.Context, text string) ([]float32, error) {
		return []float32{float32(len(text))}, nil
	})
	vec, err := e.Embed(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, []float32{3}, vec)

	var g Generator = GenerateFunc(func(ctx context.Context, prompt string) (string, error) {
		return "echo: " + prompt, nil
	})
	out, err := g.Generate(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "echo: hi", out)
}

func TestLazyEmbedder(t *testing.T) {
	builds := 0
	e := NewLazyEmbedder(func() (Embedder, error) {
		builds++
		return EmbedFunc(func(ctx context.Context, text string) ([]float32, error) {
			return []float32{1}, nil
		}), nil
	})
	assert.Equal(t, 0, builds)

	for range 2 {
		vec, err := e.Embed(context.Background(), "x")
		require.NoError(t, err)
		assert.Equal(t, []float32{1}, vec)
	}
	assert.Equal(t, 1, builds)

	failing := NewLazyEmbedder(func() (Embedder, error) {
		return NewEmbedder(Config{Provider: "gemini"})
	})
	_, err := failing.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, core.ErrValidation)
	_, err = failing.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, core.ErrValidation)
}
