package vecrag

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/go-vecrag/config"
)

// ollamaStub serves /api/embed with a fixed vector per input.
func ollamaStub(t *testing.T) *httptest.Server {
	vectors := map[string][]float32{
		"A":     {1, 0, 0},
		"B":     {0, 1, 0},
		"C":     {0, 0, 1},
		"query": {0.9, 0.1, 0},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{vectors[req.Input]}})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, dsn string) *config.Config {
	cfg := config.Default()
	cfg.Database.DSN = dsn
	cfg.Collection.Dimension = 3
	cfg.Embedding.Provider = "ollama"
	cfg.Embedding.BaseURL = ollamaStub(t).URL
	cfg.Generation.Provider = "ollama"
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestAppEndToEnd(t *testing.T) {
	for name, dsn := range map[string]string{
		"memory": "memory:",
		"sqlite": filepath.Join(t.TempDir(), "vecrag.db"),
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			reg := prometheus.NewRegistry()

			app, err := NewApp(ctx, testConfig(t, dsn), nil, reg)
			require.NoError(t, err)
			defer app.Close()

			require.NoError(t, app.EnsureCollection(ctx))

			res, err := app.Assembler.IndexTexts(ctx, "documents", []string{"A", "B", "C"})
			require.NoError(t, err)
			assert.Equal(t, 3, res.Indexed)

			text, err := app.Assembler.RetrieveContext(ctx, "documents", "query", 2)
			require.NoError(t, err)
			assert.Equal(t, "A\nB", text)

			assert.Equal(t, 3.0, testutil.ToFloat64(app.Metrics.DocumentsIndexed.WithLabelValues("documents")))
		})
	}
}

func TestAppRejectsBadConfig(t *testing.T) {
	cfg := testConfig(t, "memory:")
	cfg.Collection.Metric = "manhattan"

	_, err := NewApp(context.Background(), cfg, nil, nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAppDefersEmbedderConstruction(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, "memory:")
	cfg.Embedding.Provider = "gemini"
	cfg.Embedding.APIKey = ""
	cfg.Embedding.APIKeyEnv = "VECRAG_TEST_UNSET_KEY"

	app, err := NewApp(ctx, cfg, nil, nil)
	require.NoError(t, err)
	defer app.Close()

	require.NoError(t, app.EnsureCollection(ctx))
	n, err := app.Assembler.Count(ctx, "documents")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	res, err := app.Assembler.IndexTexts(ctx, "documents", []string{"A"})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 0, res.Indexed)
}

func TestAppServer(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	app, err := NewApp(ctx, testConfig(t, "memory:"), nil, reg)
	require.NoError(t, err)
	defer app.Close()

	srv, err := app.NewServer(reg)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
