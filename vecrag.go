// Package vecrag stores text embeddings in a relational vector store and
// assembles retrieval context for generation.
//
// Example usage:
//
//	cfg, _ := config.Load("vecrag.yaml")
//	app, err := vecrag.NewApp(ctx, cfg, logger, prometheus.NewRegistry())
//	defer app.Close()
//
//	_ = app.EnsureCollection(ctx)
//	res, err := app.Assembler.IndexTexts(ctx, "documents", texts)
//	context, err := app.Assembler.RetrieveContext(ctx, "documents", "question", 3)
package vecrag

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hubenschmidt/go-vecrag/config"
	"github.com/hubenschmidt/go-vecrag/core"
	"github.com/hubenschmidt/go-vecrag/llm"
	"github.com/hubenschmidt/go-vecrag/monitor"
	"github.com/hubenschmidt/go-vecrag/retrieval"
	"github.com/hubenschmidt/go-vecrag/server"
	"github.com/hubenschmidt/go-vecrag/tools"
	"github.com/hubenschmidt/go-vecrag/vector"
)

// Store aliases
type (
	Store    = vector.Store
	Document = vector.Document
	Result   = vector.Result
	Metric   = vector.Metric
)

const (
	MetricL2           = vector.MetricL2
	MetricInnerProduct = vector.MetricInnerProduct
	MetricCosine       = vector.MetricCosine
)

// OpenStore opens the store named by dsn.
func OpenStore(ctx context.Context, dsn string, opts vector.Options) (Store, error) {
	return vector.Open(ctx, dsn, opts)
}

// Retrieval aliases
type (
	Assembler   = retrieval.Assembler
	Options     = retrieval.Options
	IndexResult = retrieval.IndexResult
	Answer      = retrieval.Answer
)

// NewAssembler creates a retrieval assembler over store and embedder.
func NewAssembler(store Store, embedder llm.Embedder, opts Options) (*Assembler, error) {
	return retrieval.NewAssembler(store, embedder, opts)
}

// Error sentinels
var (
	ErrValidation         = core.ErrValidation
	ErrDimensionMismatch  = core.ErrDimensionMismatch
	ErrSchema             = core.ErrSchema
	ErrCollectionNotFound = core.ErrCollectionNotFound
	ErrQuotaExceeded      = core.ErrQuotaExceeded
	ErrProvider           = core.ErrProvider
)

// App holds the components built from a Config.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *monitor.Metrics
	Store     Store
	Embedder  llm.Embedder
	Assembler *Assembler
}

// NewApp opens the store and builds the assembler. The embedding provider
// is built on first use, so store-only work needs no provider credentials.
// reg may be nil, in which case no metrics are recorded.
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var metrics *monitor.Metrics
	if reg != nil {
		metrics = monitor.NewMetrics(reg)
	}

	metric, err := vector.ParseMetric(cfg.Collection.Metric)
	if err != nil {
		return nil, err
	}
	policy, err := retrieval.ParseQuotaPolicy(cfg.Retrieval.QuotaPolicy)
	if err != nil {
		return nil, err
	}

	embedder := llm.NewLazyEmbedder(func() (llm.Embedder, error) {
		e, err := llm.NewEmbedder(cfg.Embedding.LLM())
		if err != nil {
			return nil, fmt.Errorf("embedding provider: %w", err)
		}
		return e, nil
	})

	opts := cfg.Database.VectorOptions()
	opts.Logger = logger.Named("store")
	store, err := vector.Open(ctx, cfg.Database.DSN, opts)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	assembler, err := retrieval.NewAssembler(store, embedder, retrieval.Options{
		DefaultK:          cfg.Retrieval.TopK,
		Metric:            metric,
		QuotaPolicy:       policy,
		Concurrency:       cfg.Retrieval.Concurrency,
		RequestsPerSecond: cfg.Retrieval.RequestsPerSecond,
		Burst:             cfg.Retrieval.Burst,
		CallTimeout:       cfg.Retrieval.CallTimeout,
		Logger:            logger.Named("retrieval"),
		Metrics:           metrics,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	logger.Info("vecrag ready",
		zap.String("store", storeKind(store)),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("collection", cfg.Collection.Name),
		zap.String("metric", string(metric)))

	return &App{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics,
		Store:     store,
		Embedder:  embedder,
		Assembler: assembler,
	}, nil
}

// EnsureCollection creates the configured collection if needed.
func (a *App) EnsureCollection(ctx context.Context) error {
	return a.Assembler.EnsureCollection(ctx, a.Config.Collection.Name, a.Config.Collection.Dimension)
}

// Generator builds the configured generation provider.
func (a *App) Generator() (llm.Generator, error) {
	gen, err := llm.NewGenerator(a.Config.Generation.LLM())
	if err != nil {
		return nil, fmt.Errorf("generation provider: %w", err)
	}
	return gen, nil
}

// NewServer builds the HTTP server. The generator is optional: when it
// cannot be built the ask route is disabled.
func (a *App) NewServer(gatherer prometheus.Gatherer) (*server.Server, error) {
	gen, err := a.Generator()
	if err != nil {
		a.Logger.Warn("ask route disabled", zap.Error(err))
		gen = nil
	}
	return server.New(server.Config{
		Assembler:        a.Assembler,
		Generator:        gen,
		Registry:         tools.NewRetrievalRegistry(a.Assembler, a.Config.Collection.Name),
		DefaultDimension: a.Config.Collection.Dimension,
		Gatherer:         gatherer,
		Logger:           a.Logger.Named("http"),
	})
}

func (a *App) Close() error {
	return a.Store.Close()
}

func storeKind(s Store) string {
	switch s.(type) {
	case *vector.PgVectorStore:
		return "postgres"
	case *vector.SQLiteStore:
		return "sqlite"
	case *vector.MemoryStore:
		return "memory"
	}
	return fmt.Sprintf("%T", s)
}
