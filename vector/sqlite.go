package vector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/hubenschmidt/go-vecrag/core"
	"github.com/hubenschmidt/go-vecrag/vector/migrations"
)

// SQLiteStore keeps each collection in its own table, with embeddings
// stored in pgvector text form and ranked by registered SQL functions.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger

	mu   sync.RWMutex
	dims map[string]int
}

// NewSQLiteStore opens (or creates) the database at path. Use ":memory:"
// for a throwaway database.
func NewSQLiteStore(ctx context.Context, path string, opts Options) (*SQLiteStore, error) {
	opts = opts.withDefaults()

	if err := registerFunctions(); err != nil {
		return nil, fmt.Errorf("register sqlite functions: %w", err)
	}

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one connection: keeps :memory: databases alive and serialises writers
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, log: opts.Logger, dims: make(map[string]int)}

	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if err := runMigrations(ctx, migrations.SQLite, "sqlite", s.exec); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s.log.Info("sqlite store ready", zap.String("path", path))
	return s, nil
}

func (s *SQLiteStore) exec(ctx context.Context, query string) error {
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *SQLiteStore) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if err := validateDimension(dimension); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existing int
	err = tx.QueryRowContext(ctx, `SELECT dimension FROM vecrag_collections WHERE name = ?`, name).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, `INSERT INTO vecrag_collections (name, dimension) VALUES (?, ?)`, name, dimension); err != nil {
			return fmt.Errorf("register collection: %w", err)
		}
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			content TEXT NOT NULL,
			embedding TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`, quoteIdent(name))
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create collection %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		s.log.Info("created collection", zap.String("collection", name), zap.Int("dimension", dimension))
	case err != nil:
		return fmt.Errorf("inspect collection %s: %w", name, err)
	case existing != dimension:
		return dimensionConflict(name, existing, dimension)
	}

	s.mu.Lock()
	s.dims[name] = dimension
	s.mu.Unlock()
	return nil
}

func (s *SQLiteStore) dimension(ctx context.Context, name string) (int, error) {
	s.mu.RLock()
	dim, ok := s.dims[name]
	s.mu.RUnlock()
	if ok {
		return dim, nil
	}

	err := s.db.QueryRowContext(ctx, `SELECT dimension FROM vecrag_collections WHERE name = ?`, name).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, core.CollectionNotFound(name)
	}
	if err != nil {
		return 0, fmt.Errorf("inspect collection %s: %w", name, err)
	}

	s.mu.Lock()
	s.dims[name] = dim
	s.mu.Unlock()
	return dim, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, collection, content string, embedding []float32) (int64, error) {
	dim, err := s.dimension(ctx, collection)
	if err != nil {
		return 0, err
	}
	if err := validateInsert(collection, content, embedding, dim); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (content, embedding) VALUES (?, ?)`, quoteIdent(collection)),
		content, EncodeEmbedding(embedding))
	if err != nil {
		return 0, fmt.Errorf("insert document: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert document: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) Nearest(ctx context.Context, collection string, query []float32, k int, metric Metric) ([]Result, error) {
	dim, err := s.dimension(ctx, collection)
	if err != nil {
		return nil, err
	}
	if err := validateQuery(collection, query, k, metric, dim); err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`
		SELECT id, content, embedding, %s(embedding, ?) AS distance
		FROM %s
		ORDER BY distance ASC, id ASC
		LIMIT ?
	`, metric.sqlFunction(), quoteIdent(collection))

	rows, err := s.db.QueryContext(ctx, q, EncodeEmbedding(query), k)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
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
	return results, rows.Err()
}

func (s *SQLiteStore) Count(ctx context.Context, collection string) (int, error) {
	if _, err := s.dimension(ctx, collection); err != nil {
		return 0, err
	}

	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quoteIdent(collection))).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// quoteIdent quotes a name already checked by ValidateCollectionName.
func quoteIdent(name string) string {
	return `"` + name + `"`
}
