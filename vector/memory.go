package vector

import (
	"context"
	"sort"
	"sync"

	"github.com/hubenschmidt/go-vecrag/core"
)

type memoryCollection struct {
	dimension int
	docs      []Document // ascending by ID
	nextID    int64
}

// MemoryStore is an in-memory vector store for development and testing.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

// NewMemoryStore creates a new in-memory vector store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]*memoryCollection),
	}
}

func (s *MemoryStore) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if err := validateDimension(dimension); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[name]; ok {
		if c.dimension != dimension {
			return dimensionConflict(name, c.dimension, dimension)
		}
		return nil
	}
	s.collections[name] = &memoryCollection{dimension: dimension, nextID: 1}
	return nil
}

func (s *MemoryStore) Insert(ctx context.Context, collection, content string, embedding []float32) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		return 0, core.CollectionNotFound(collection)
	}
	if err := validateInsert(collection, content, embedding, c.dimension); err != nil {
		return 0, err
	}

	doc := Document{
		ID:        c.nextID,
		Content:   content,
		Embedding: append([]float32(nil), embedding...),
	}
	c.docs = append(c.docs, doc)
	c.nextID++
	return doc.ID, nil
}

// Nearest ranks every document by brute force.
func (s *MemoryStore) Nearest(ctx context.Context, collection string, query []float32, k int, metric Metric) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return nil, core.CollectionNotFound(collection)
	}
	if err := validateQuery(collection, query, k, metric, c.dimension); err != nil {
		return nil, err
	}

	results := make([]Result, len(c.docs))
	for i, doc := range c.docs {
		results[i] = Result{Document: cloneDocument(doc), Distance: metric.Distance(query, doc.Embedding)}
	}

	// docs are already in ID order, so a stable sort keeps insertion order on ties
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *MemoryStore) Count(ctx context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return 0, core.CollectionNotFound(collection)
	}
	return len(c.docs), nil
}

// Close is a no-op for in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

func cloneDocument(d Document) Document {
	d.Embedding = append([]float32(nil), d.Embedding...)
	return d
}
