// Package vector provides collection-scoped vector storage and
// nearest-neighbour search over PostgreSQL/pgvector, SQLite and memory.
package vector

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/hubenschmidt/go-vecrag/core"
)

// Document is a stored piece of text and its embedding.
// IDs are assigned by the store and increase with insertion order.
type Document struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// Result is a document paired with its distance to the query.
type Result struct {
	Document Document `json:"document"`
	Distance float64  `json:"distance"` // lower is closer for every metric
}

// Store provides collection management, insertion and nearest-neighbour search.
type Store interface {
	// EnsureCollection creates the collection or verifies its dimensionality.
	EnsureCollection(ctx context.Context, name string, dimension int) error

	// Insert persists a document and returns its assigned id.
	Insert(ctx context.Context, collection, content string, embedding []float32) (int64, error)

	// Nearest returns up to k documents closest to query, closest first.
	// Equal distances are ordered by insertion.
	Nearest(ctx context.Context, collection string, query []float32, k int, metric Metric) ([]Result, error)

	// Count returns the number of documents in the collection.
	Count(ctx context.Context, collection string) (int, error)

	// Close releases resources.
	Close() error
}

// Metric selects how distance between two embeddings is measured.
type Metric string

const (
	// MetricL2 is Euclidean distance (pgvector <->).
	MetricL2 Metric = "l2"
	// MetricInnerProduct is the negated inner product (pgvector <#>).
	MetricInnerProduct Metric = "inner_product"
	// MetricCosine is 1 - cosine similarity (pgvector <=>).
	MetricCosine Metric = "cosine"
)

// ParseMetric accepts the canonical names plus the pgvector operators.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "l2", "euclidean", "<->":
		return MetricL2, nil
	case "inner_product", "ip", "negative_inner_product", "<#>":
		return MetricInnerProduct, nil
	case "cosine", "<=>":
		return MetricCosine, nil
	}
	return "", core.NewValidationError("metric", fmt.Sprintf("unknown metric %q", s))
}

// Valid reports whether m is a supported metric.
func (m Metric) Valid() bool {
	switch m {
	case MetricL2, MetricInnerProduct, MetricCosine:
		return true
	}
	return false
}

// Distance computes the metric between a and b. Lengths must match.
func (m Metric) Distance(a, b []float32) float64 {
	switch m {
	case MetricInnerProduct:
		return NegativeInnerProduct(a, b)
	case MetricCosine:
		return CosineDistance(a, b)
	default:
		return L2Distance(a, b)
	}
}

// operator returns the pgvector ordering operator.
func (m Metric) operator() string {
	switch m {
	case MetricInnerProduct:
		return "<#>"
	case MetricCosine:
		return "<=>"
	default:
		return "<->"
	}
}

// sqlFunction returns the SQLite scalar function registered for m.
func (m Metric) sqlFunction() string {
	switch m {
	case MetricInnerProduct:
		return fnNegativeInnerProduct
	case MetricCosine:
		return fnCosineDistance
	default:
		return fnL2
	}
}

func validateDimension(dimension int) error {
	if dimension <= 0 {
		return core.NewValidationError("dimension", fmt.Sprintf("must be positive, got %d", dimension))
	}
	return nil
}

// validateInsert runs the checks every backend applies before persisting.
func validateInsert(collection, content string, embedding []float32, dimension int) error {
	if content == "" {
		return core.NewValidationError("content", "must not be empty")
	}
	if len(embedding) != dimension {
		return &core.DimensionMismatchError{Collection: collection, Expected: dimension, Got: len(embedding)}
	}
	return validateFinite(embedding)
}

func validateQuery(collection string, query []float32, k int, metric Metric, dimension int) error {
	if k <= 0 {
		return core.NewValidationError("k", fmt.Sprintf("must be positive, got %d", k))
	}
	if !metric.Valid() {
		return core.NewValidationError("metric", fmt.Sprintf("unknown metric %q", metric))
	}
	if len(query) != dimension {
		return &core.DimensionMismatchError{Collection: collection, Expected: dimension, Got: len(query)}
	}
	return validateFinite(query)
}

func validateFinite(v []float32) error {
	for i, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return core.NewValidationError("embedding", fmt.Sprintf("element %d is not finite", i))
		}
	}
	return nil
}

func dimensionConflict(name string, existing, requested int) error {
	return &core.SchemaError{
		Collection: name,
		Reason:     fmt.Sprintf("existing dimension %d conflicts with requested %d", existing, requested),
	}
}
