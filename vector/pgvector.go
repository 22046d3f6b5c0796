package vector

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hubenschmidt/go-vecrag/core"
	"github.com/hubenschmidt/go-vecrag/vector/migrations"
)

const pgUndefinedTable = "42P01"

// PgVectorStore is a PostgreSQL-based vector store using pgvector.
// Each collection is a table with a fixed-width vector(N) column.
type PgVectorStore struct {
	pool *pgxpool.Pool
	log  *zap.Logger

	mu   sync.RWMutex
	dims map[string]int
}

// NewPgVectorStore connects, verifies the connection and installs the
// vector extension.
func NewPgVectorStore(ctx context.Context, dsn string, opts Options) (*PgVectorStore, error) {
	opts = opts.withDefaults()

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = opts.MaxConns
	cfg.MinConns = opts.MinConns
	cfg.MaxConnLifetime = opts.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PgVectorStore{pool: pool, log: opts.Logger, dims: make(map[string]int)}
	if err := runMigrations(ctx, migrations.Postgres, "postgres", s.exec); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s.log.Info("pgvector store ready", zap.Int32("max_conns", opts.MaxConns))
	return s, nil
}

func (s *PgVectorStore) exec(ctx context.Context, sql string) error {
	_, err := s.pool.Exec(ctx, sql)
	return err
}

// EnsureCollection creates the collection table, or accepts an existing
// table whose embedding column has the same dimension.
func (s *PgVectorStore) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if err := validateDimension(dimension); err != nil {
		return err
	}

	existing, found, err := s.columnDimension(ctx, name)
	if err != nil {
		return err
	}
	if !found {
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id BIGSERIAL PRIMARY KEY,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, pgx.Identifier{name}.Sanitize(), dimension)
		if _, err := s.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create collection %s: %w", name, err)
		}
		s.log.Info("created collection", zap.String("collection", name), zap.Int("dimension", dimension))

		// re-read: a concurrent creator may have won with another dimension
		existing, found, err = s.columnDimension(ctx, name)
		if err != nil {
			return err
		}
		if !found {
			return &core.SchemaError{Collection: name, Reason: "table created but embedding column not visible"}
		}
	}

	if existing != dimension {
		return dimensionConflict(name, existing, dimension)
	}

	s.mu.Lock()
	s.dims[name] = dimension
	s.mu.Unlock()
	return nil
}

// columnDimension reads the declared width of <name>.embedding.
func (s *PgVectorStore) columnDimension(ctx context.Context, name string) (int, bool, error) {
	var typeName string
	var typmod int32
	err := s.pool.QueryRow(ctx, `
		SELECT t.typname, a.atttypmod
		FROM pg_attribute a
		JOIN pg_type t ON t.oid = a.atttypid
		WHERE a.attrelid = to_regclass($1::text)
		  AND a.attname = 'embedding'
		  AND NOT a.attisdropped
	`, pgx.Identifier{name}.Sanitize()).Scan(&typeName, &typmod)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, s.checkTableAbsent(ctx, name)
	}
	if err != nil {
		return 0, false, fmt.Errorf("inspect collection %s: %w", name, err)
	}

	if typeName != "vector" {
		return 0, false, &core.SchemaError{Collection: name, Reason: fmt.Sprintf("embedding column has type %s, want vector", typeName)}
	}
	if typmod <= 0 {
		return 0, false, &core.SchemaError{Collection: name, Reason: "embedding column has no fixed dimension"}
	}
	return int(typmod), true, nil
}

// checkTableAbsent distinguishes "no table" from "table without embedding column".
func (s *PgVectorStore) checkTableAbsent(ctx context.Context, name string) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT to_regclass($1::text) IS NOT NULL`, pgx.Identifier{name}.Sanitize()).Scan(&exists); err != nil {
		return fmt.Errorf("inspect collection %s: %w", name, err)
	}
	if exists {
		return &core.SchemaError{Collection: name, Reason: "table exists without an embedding column"}
	}
	return nil
}

func (s *PgVectorStore) dimension(ctx context.Context, name string) (int, error) {
	s.mu.RLock()
	dim, ok := s.dims[name]
	s.mu.RUnlock()
	if ok {
		return dim, nil
	}

	if err := ValidateCollectionName(name); err != nil {
		return 0, err
	}
	dim, found, err := s.columnDimension(ctx, name)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, core.CollectionNotFound(name)
	}

	s.mu.Lock()
	s.dims[name] = dim
	s.mu.Unlock()
	return dim, nil
}

func (s *PgVectorStore) Insert(ctx context.Context, collection, content string, embedding []float32) (int64, error) {
	dim, err := s.dimension(ctx, collection)
	if err != nil {
		return 0, err
	}
	if err := validateInsert(collection, content, embedding, dim); err != nil {
		return 0, err
	}

	var id int64
	query := fmt.Sprintf(`INSERT INTO %s (content, embedding) VALUES ($1, $2::text::vector) RETURNING id`,
		pgx.Identifier{collection}.Sanitize())
	if err := s.pool.QueryRow(ctx, query, content, EncodeEmbedding(embedding)).Scan(&id); err != nil {
		return 0, s.wrapErr(collection, "insert document", err)
	}
	return id, nil
}

// Nearest ranks with the pgvector operator for metric. No ANN index is
// created, so results are exact.
func (s *PgVectorStore) Nearest(ctx context.Context, collection string, query []float32, k int, metric Metric) ([]Result, error) {
	dim, err := s.dimension(ctx, collection)
	if err != nil {
		return nil, err
	}
	if err := validateQuery(collection, query, k, metric, dim); err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(`
		SELECT id, content, embedding::text, embedding %s $1::text::vector AS distance
		FROM %s
		ORDER BY distance ASC, id ASC
		LIMIT $2
	`, metric.operator(), pgx.Identifier{collection}.Sanitize())

	rows, err := s.pool.Query(ctx, sql, EncodeEmbedding(query), k)
	if err != nil {
		return nil, s.wrapErr(collection, "query", err)
	}
	defer rows.Close()

	results := make([]Result, 0, min(k, 64))
	for rows.Next() {
		var doc Document
		var embeddingStr string
		var distance float64

		if err := rows.Scan(&doc.ID, &doc.Content, &embeddingStr, &distance); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if doc.Embedding, err = DecodeEmbedding(embeddingStr); err != nil {
			return nil, fmt.Errorf("decode row %d: %w", doc.ID, err)
		}
		results = append(results, Result{Document: doc, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrapErr(collection, "query", err)
	}
	return results, nil
}

func (s *PgVectorStore) Count(ctx context.Context, collection string) (int, error) {
	if _, err := s.dimension(ctx, collection); err != nil {
		return 0, err
	}

	var n int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, pgx.Identifier{collection}.Sanitize())
	if err := s.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, s.wrapErr(collection, "count documents", err)
	}
	return n, nil
}

// wrapErr maps a dropped table back to the not-found schema error.
func (s *PgVectorStore) wrapErr(collection, op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable {
		s.mu.Lock()
		delete(s.dims, collection)
		s.mu.Unlock()
		return core.CollectionNotFound(collection)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Close closes the connection pool.
func (s *PgVectorStore) Close() error {
	s.pool.Close()
	return nil
}
