package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hubenschmidt/go-vecrag/core"
	"github.com/hubenschmidt/go-vecrag/llm"
	"github.com/hubenschmidt/go-vecrag/vector"
)

const coll = "documents"

var fixtures = map[string][]float32{
	"A":     {1, 0, 0},
	"B":     {0, 1, 0},
	"C":     {0, 0, 1},
	"query": {0.9, 0.1, 0},
}

func quotaErr() error {
	return &core.QuotaExceededError{Provider: "fake", Err: errors.New("429 Too Many Requests")}
}

// fakeEmbedder returns fixture vectors and fails for texts listed in fail.
type fakeEmbedder struct {
	mu    sync.Mutex
	fail  map[string]error
	calls []string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()

	if err, ok := f.fail[text]; ok {
		return nil, err
	}
	if v, ok := fixtures[text]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("no fixture for %q", text)
}

func setup(t *testing.T, emb llm.Embedder, opts Options) (*Assembler, *vector.MemoryStore) {
	t.Helper()
	store := vector.NewMemoryStore()
	require.NoError(t, store.EnsureCollection(context.Background(), coll, 3))

	a, err := NewAssembler(store, emb, opts)
	require.NoError(t, err)
	return a, store
}

func contents(results []vector.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Document.Content
	}
	return out
}

func TestIndexAndRetrieve(t *testing.T) {
	ctx := context.Background()
	a, store := setup(t, &fakeEmbedder{}, Options{})

	res, err := a.IndexTexts(ctx, coll, []string{"A", "B", "C"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Indexed)
	assert.Len(t, res.IDs, 3)
	assert.Less(t, res.IDs[0], res.IDs[1])
	assert.Less(t, res.IDs[1], res.IDs[2])
	for _, it := range res.Items {
		assert.Equal(t, StateIndexed, it.State)
	}

	n, err := store.Count(ctx, coll)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	results, err := a.Retrieve(ctx, coll, "query", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, contents(results))
	assert.LessOrEqual(t, results[0].Distance, results[1].Distance)

	text, err := a.RetrieveContext(ctx, coll, "query", 2)
	require.NoError(t, err)
	assert.Equal(t, "A\nB", text)
}

func TestIndexEmpty(t *testing.T) {
	emb := &fakeEmbedder{}
	a, store := setup(t, emb, Options{})

	res, err := a.IndexTexts(context.Background(), coll, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Indexed)
	assert.Empty(t, emb.calls)

	n, _ := store.Count(context.Background(), coll)
	assert.Zero(t, n)
}

func TestIndexQuotaSkip(t *testing.T) {
	obs, logs := observer.New(zapcore.WarnLevel)
	emb := &fakeEmbedder{fail: map[string]error{"B": quotaErr()}}
	a, store := setup(t, emb, Options{Logger: zap.New(obs)})

	res, err := a.IndexTexts(context.Background(), coll, []string{"A", "B", "C"})
	require.NoError(t, err, "quota failures are never raised")
	assert.Equal(t, 2, res.Indexed)
	assert.False(t, res.Aborted)
	assert.Equal(t, StateSkippedTransient, res.Items[1].State)

	skipped := res.Skipped()
	require.Len(t, skipped, 1)
	assert.Equal(t, 1, skipped[0].Index)
	assert.ErrorIs(t, skipped[0].Err, core.ErrQuotaExceeded)

	results, err := store.Nearest(context.Background(), coll, fixtures["B"], 3, vector.MetricL2)
	require.NoError(t, err)
	assert.NotContains(t, contents(results), "B")

	assert.Equal(t, 1, logs.FilterMessageSnippet("quota").Len())
}

func TestIndexQuotaAbort(t *testing.T) {
	emb := &fakeEmbedder{fail: map[string]error{"B": quotaErr()}}
	a, store := setup(t, emb, Options{QuotaPolicy: QuotaPolicyAbort})

	res, err := a.IndexTexts(context.Background(), coll, []string{"A", "B", "C"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Indexed)
	assert.True(t, res.Aborted)
	assert.Equal(t, StateNotAttempted, res.Items[2].State)
	assert.NotContains(t, emb.calls, "C")

	n, _ := store.Count(context.Background(), coll)
	assert.Equal(t, 1, n)
}

func TestIndexFatalError(t *testing.T) {
	boom := &core.ProviderError{Provider: "fake", StatusCode: 500, Err: errors.New("internal")}
	emb := &fakeEmbedder{fail: map[string]error{"B": boom}}
	a, store := setup(t, emb, Options{})

	res, err := a.IndexTexts(context.Background(), coll, []string{"A", "B", "C"})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrProvider)
	assert.Equal(t, 1, res.Indexed, "partial count is returned with the error")
	assert.Equal(t, StateFailedFatal, res.Items[1].State)
	assert.Equal(t, StateNotAttempted, res.Items[2].State)

	var opErr *core.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, 1, opErr.Context["index"])

	n, _ := store.Count(context.Background(), coll)
	assert.Equal(t, 1, n)
}

func TestIndexEmptyTextIsFatal(t *testing.T) {
	a, _ := setup(t, &fakeEmbedder{}, Options{})

	res, err := a.IndexTexts(context.Background(), coll, []string{"A", ""})
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.Equal(t, 1, res.Indexed)
}

func TestIndexDimensionMismatch(t *testing.T) {
	emb := llm.EmbedFunc(func(context.Context, string) ([]float32, error) {
		return []float32{1, 2}, nil
	})
	a, store := setup(t, emb, Options{})

	res, err := a.IndexTexts(context.Background(), coll, []string{"short"})
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	assert.Zero(t, res.Indexed)

	n, _ := store.Count(context.Background(), coll)
	assert.Zero(t, n)
}

func TestIndexCancelled(t *testing.T) {
	emb := &fakeEmbedder{}
	a, _ := setup(t, emb, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := a.IndexTexts(ctx, coll, []string{"A", "B"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.Indexed)
	assert.Empty(t, emb.calls)
	assert.Equal(t, StateNotAttempted, res.Items[0].State)
}

func TestIndexParallelKeepsInputOrder(t *testing.T) {
	ctx := context.Background()
	var inFlight, peak atomic.Int32
	emb := llm.EmbedFunc(func(_ context.Context, text string) ([]float32, error) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		return fixtures[text], nil
	})
	a, store := setup(t, emb, Options{Concurrency: 3})

	texts := []string{"C", "A", "B", "A", "C"}
	res, err := a.IndexTexts(ctx, coll, texts)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Indexed)
	assert.LessOrEqual(t, peak.Load(), int32(3))

	for i := 1; i < len(res.IDs); i++ {
		assert.Less(t, res.IDs[i-1], res.IDs[i])
	}

	// the two copies of A tie; the earlier insert wins
	results, err := store.Nearest(ctx, coll, fixtures["A"], 2, vector.MetricL2)
	require.NoError(t, err)
	assert.Equal(t, res.IDs[1], results[0].Document.ID)
	assert.Equal(t, res.IDs[3], results[1].Document.ID)
}

func countDocs(t *testing.T, store vector.Store) int {
	t.Helper()
	count, err := store.Count(context.Background(), coll)
	require.NoError(t, err)
	return count
}

func TestIndexParallelFatalStopsLaterInserts(t *testing.T) {
	boom := &core.ProviderError{Provider: "fake", StatusCode: 400, Err: errors.New("bad request")}
	emb := &fakeEmbedder{fail: map[string]error{"B": boom}}
	a, store := setup(t, emb, Options{Concurrency: 2})

	res, err := a.IndexTexts(context.Background(), coll, []string{"A", "B", "C", "A"})
	require.Error(t, err)
	assert.Equal(t, 1, res.Indexed)
	assert.Equal(t, 1, countDocs(t, store))
	assert.Equal(t, StateNotAttempted, res.Items[2].State)
	assert.Equal(t, StateNotAttempted, res.Items[3].State)
}

func TestIndexParallelQuotaSkip(t *testing.T) {
	emb := &fakeEmbedder{fail: map[string]error{"B": quotaErr()}}
	a, store := setup(t, emb, Options{Concurrency: 4})

	res, err := a.IndexTexts(context.Background(), coll, []string{"A", "B", "C"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Indexed)
	assert.Equal(t, 2, countDocs(t, store))
}

func TestRetrieveValidation(t *testing.T) {
	a, _ := setup(t, &fakeEmbedder{}, Options{})

	_, err := a.Retrieve(context.Background(), coll, "query", 0)
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = a.Retrieve(context.Background(), coll, "  ", 3)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestRetrieveUnknownCollection(t *testing.T) {
	a, _ := setup(t, &fakeEmbedder{}, Options{})

	_, err := a.Retrieve(context.Background(), "missing", "query", 3)
	assert.ErrorIs(t, err, core.ErrSchema)
	assert.ErrorIs(t, err, core.ErrCollectionNotFound)
}

func TestRetrieveContextEmptyCollection(t *testing.T) {
	a, _ := setup(t, &fakeEmbedder{}, Options{})

	text, err := a.RetrieveContext(context.Background(), coll, "query", 3)
	require.NoError(t, err)
	assert.Equal(t, "", text)
}

func TestRetrieveContextQuotaDegrades(t *testing.T) {
	emb := &fakeEmbedder{fail: map[string]error{"query": quotaErr()}}
	a, _ := setup(t, emb, Options{})

	text, err := a.RetrieveContext(context.Background(), coll, "query", 3)
	require.NoError(t, err)
	assert.Equal(t, "", text)

	_, err = a.Retrieve(context.Background(), coll, "query", 3)
	assert.ErrorIs(t, err, core.ErrQuotaExceeded, "the non-degrading form surfaces quota")
}

func TestRetrieveContextProviderError(t *testing.T) {
	emb := &fakeEmbedder{fail: map[string]error{"query": &core.ProviderError{Provider: "fake", Err: errors.New("down")}}}
	a, _ := setup(t, emb, Options{})

	_, err := a.RetrieveContext(context.Background(), coll, "query", 3)
	assert.ErrorIs(t, err, core.ErrProvider)
}

func TestRetrieveMetric(t *testing.T) {
	ctx := context.Background()
	a, _ := setup(t, &fakeEmbedder{}, Options{Metric: vector.MetricCosine})

	_, err := a.IndexTexts(ctx, coll, []string{"A", "B", "C"})
	require.NoError(t, err)

	results, err := a.Retrieve(ctx, coll, "query", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, contents(results))
}

func TestNewAssemblerValidation(t *testing.T) {
	store := vector.NewMemoryStore()
	emb := &fakeEmbedder{}

	_, err := NewAssembler(nil, emb, Options{})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = NewAssembler(store, nil, Options{})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = NewAssembler(store, emb, Options{Metric: "manhattan"})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = NewAssembler(store, emb, Options{QuotaPolicy: "retry"})
	assert.ErrorIs(t, err, core.ErrValidation)

	a, err := NewAssembler(store, emb, Options{})
	require.NoError(t, err)
	assert.Equal(t, DefaultK, a.DefaultK())
}

func TestParseQuotaPolicy(t *testing.T) {
	p, err := ParseQuotaPolicy("")
	require.NoError(t, err)
	assert.Equal(t, QuotaPolicySkip, p)

	p, err = ParseQuotaPolicy(" ABORT ")
	require.NoError(t, err)
	assert.Equal(t, QuotaPolicyAbort, p)

	_, err = ParseQuotaPolicy("retry")
	assert.Error(t, err)
}

func TestAnswer(t *testing.T) {
	ctx := context.Background()
	a, _ := setup(t, &fakeEmbedder{}, Options{})
	_, err := a.IndexTexts(ctx, coll, []string{"A", "B", "C"})
	require.NoError(t, err)

	var prompt string
	gen := llm.GenerateFunc(func(_ context.Context, p string) (string, error) {
		prompt = p
		return " A is closest \n", nil
	})

	ans, err := a.Answer(ctx, gen, coll, "query", 2)
	require.NoError(t, err)
	assert.Equal(t, "A is closest", ans.Text)
	assert.Equal(t, "A\nB", ans.Context)
	assert.Len(t, ans.Sources, 2)
	assert.False(t, ans.NoContext)
	assert.Equal(t, BuildPrompt("query", "A\nB"), prompt)
	assert.True(t, strings.HasSuffix(prompt, "Question: query"))
}

func TestAnswerNoContextSkipsGenerator(t *testing.T) {
	a, _ := setup(t, &fakeEmbedder{}, Options{})

	called := false
	gen := llm.GenerateFunc(func(context.Context, string) (string, error) {
		called = true
		return "", nil
	})

	ans, err := a.Answer(context.Background(), gen, coll, "query", 3)
	require.NoError(t, err)
	assert.True(t, ans.NoContext)
	assert.False(t, called)
}

func TestAnswerGenerationQuota(t *testing.T) {
	ctx := context.Background()
	a, _ := setup(t, &fakeEmbedder{}, Options{})
	_, err := a.IndexTexts(ctx, coll, []string{"A"})
	require.NoError(t, err)

	gen := llm.GenerateFunc(func(context.Context, string) (string, error) {
		return "", quotaErr()
	})

	ans, err := a.Answer(ctx, gen, coll, "query", 3)
	require.NoError(t, err)
	assert.True(t, ans.Degraded)
	assert.Equal(t, "A", ans.Context)
	assert.Empty(t, ans.Text)
}

func TestAnswerGenerationFailure(t *testing.T) {
	ctx := context.Background()
	a, _ := setup(t, &fakeEmbedder{}, Options{})
	_, err := a.IndexTexts(ctx, coll, []string{"A"})
	require.NoError(t, err)

	gen := llm.GenerateFunc(func(context.Context, string) (string, error) {
		return "", &core.ProviderError{Provider: "fake", StatusCode: 401, Err: errors.New("unauthorized")}
	})

	_, err = a.Answer(ctx, gen, coll, "query", 3)
	assert.ErrorIs(t, err, core.ErrProvider)
}
