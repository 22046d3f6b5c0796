// Package retrieval indexes texts into a vector store and assembles
// retrieval context for a generation step.
package retrieval

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hubenschmidt/go-vecrag/core"
	"github.com/hubenschmidt/go-vecrag/llm"
	"github.com/hubenschmidt/go-vecrag/monitor"
	"github.com/hubenschmidt/go-vecrag/vector"
)

// DefaultK is the neighbour count used when a caller does not pick one.
const DefaultK = 3

// QuotaPolicy decides what IndexTexts does after a quota failure.
type QuotaPolicy string

const (
	// QuotaPolicySkip records the omission and continues with the next text.
	QuotaPolicySkip QuotaPolicy = "skip"
	// QuotaPolicyAbort stops the batch and returns the partial count.
	QuotaPolicyAbort QuotaPolicy = "abort"
)

func ParseQuotaPolicy(s string) (QuotaPolicy, error) {
	switch QuotaPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", QuotaPolicySkip:
		return QuotaPolicySkip, nil
	case QuotaPolicyAbort:
		return QuotaPolicyAbort, nil
	}
	return "", core.NewValidationError("quota_policy", fmt.Sprintf("unknown policy %q", s))
}

// Options configures an Assembler. Zero values take defaults.
type Options struct {
	DefaultK    int
	Metric      vector.Metric
	QuotaPolicy QuotaPolicy

	// Concurrency bounds in-flight embedding requests. 1 is sequential.
	Concurrency int
	// RequestsPerSecond throttles embedding requests; 0 disables.
	RequestsPerSecond float64
	Burst             int
	// CallTimeout bounds each embedding, generation and store call.
	CallTimeout time.Duration

	Logger  *zap.Logger
	Metrics *monitor.Metrics
}

func (o Options) withDefaults() Options {
	if o.DefaultK <= 0 {
		o.DefaultK = DefaultK
	}
	if o.Metric == "" {
		o.Metric = vector.MetricL2
	}
	if o.QuotaPolicy == "" {
		o.QuotaPolicy = QuotaPolicySkip
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 30 * time.Second
	}
	if o.Burst <= 0 {
		o.Burst = max(1, int(math.Ceil(o.RequestsPerSecond)))
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Assembler bridges an Embedder and a vector Store. It is safe for
// concurrent use when the store is.
type Assembler struct {
	store    vector.Store
	embedder llm.Embedder
	opts     Options
	limiter  *rate.Limiter
	log      *zap.Logger
	metrics  *monitor.Metrics
}

func NewAssembler(store vector.Store, embedder llm.Embedder, opts Options) (*Assembler, error) {
	if store == nil {
		return nil, core.NewValidationError("store", "is required")
	}
	if embedder == nil {
		return nil, core.NewValidationError("embedder", "is required")
	}
	opts = opts.withDefaults()
	if !opts.Metric.Valid() {
		return nil, core.NewValidationError("metric", fmt.Sprintf("unknown metric %q", opts.Metric))
	}
	if _, err := ParseQuotaPolicy(string(opts.QuotaPolicy)); err != nil {
		return nil, err
	}

	a := &Assembler{
		store:    store,
		embedder: embedder,
		opts:     opts,
		log:      opts.Logger,
		metrics:  opts.Metrics,
	}
	if opts.RequestsPerSecond > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst)
	}
	return a, nil
}

// DefaultK returns the configured neighbour count.
func (a *Assembler) DefaultK() int {
	return a.opts.DefaultK
}

// EnsureCollection creates or verifies the collection.
func (a *Assembler) EnsureCollection(ctx context.Context, collection string, dimension int) error {
	start := time.Now()
	defer a.metrics.ObserveStore("ensure", start)

	if err := a.store.EnsureCollection(ctx, collection, dimension); err != nil {
		a.metrics.Error("ensure", core.Class(err))
		return err
	}
	return nil
}

// Count returns the number of documents in the collection.
func (a *Assembler) Count(ctx context.Context, collection string) (int, error) {
	start := time.Now()
	defer a.metrics.ObserveStore("count", start)
	return a.store.Count(ctx, collection)
}

// Retrieve embeds query and returns its k nearest documents. Quota
// failures are returned as errors; RetrieveContext is the degrading form.
func (a *Assembler) Retrieve(ctx context.Context, collection, query string, k int) ([]vector.Result, error) {
	if k <= 0 {
		return nil, core.NewValidationError("k", fmt.Sprintf("must be positive, got %d", k))
	}
	if strings.TrimSpace(query) == "" {
		return nil, core.NewValidationError("query", "must not be empty")
	}

	vec, err := a.embed(ctx, query)
	if err != nil {
		a.metrics.Error("retrieve", core.Class(err))
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, a.opts.CallTimeout)
	defer cancel()

	start := time.Now()
	results, err := a.store.Nearest(callCtx, collection, vec, k, a.opts.Metric)
	a.metrics.ObserveStore("nearest", start)
	if err != nil {
		a.metrics.Error("nearest", core.Class(err))
		return nil, core.NewOpError("retrieve", collection, err)
	}

	a.metrics.Retrieved(collection, len(results))
	return results, nil
}

// RetrieveContext returns the contents of the k nearest documents joined
// by newlines, closest first. A quota failure yields "" and no error.
func (a *Assembler) RetrieveContext(ctx context.Context, collection, query string, k int) (string, error) {
	results, err := a.Retrieve(ctx, collection, query, k)
	if err != nil {
		if core.IsTransient(err) {
			a.log.Warn("retrieval degraded: embedding quota exceeded",
				zap.String("collection", collection), zap.Error(err))
			return "", nil
		}
		return "", err
	}
	return JoinContents(results), nil
}

// JoinContents joins result contents with newlines, preserving order.
func JoinContents(results []vector.Result) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Document.Content
	}
	return strings.Join(parts, "\n")
}

// embed calls the provider under the rate limiter and call timeout.
func (a *Assembler) embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, core.NewValidationError("content", "must not be empty")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, a.opts.CallTimeout)
	defer cancel()

	start := time.Now()
	vec, err := a.embedder.Embed(callCtx, text)
	a.metrics.ObserveProvider("embed", start)
	if err != nil {
		return nil, err
	}
	if len(vec) == 0 {
		return nil, &core.ProviderError{Provider: "embedder", Err: fmt.Errorf("empty embedding")}
	}
	return vec, nil
}
