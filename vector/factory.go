package vector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hubenschmidt/go-vecrag/core"
)

// Options tunes the SQL-backed stores. Zero values take defaults.
type Options struct {
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
	Logger          *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxConns <= 0 {
		o.MaxConns = 25
	}
	if o.MinConns < 0 || o.MinConns > o.MaxConns {
		o.MinConns = 0
	}
	if o.ConnMaxLifetime <= 0 {
		o.ConnMaxLifetime = 5 * time.Minute
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Open creates a store based on the DSN.
//   - postgres:// or postgresql://: PostgreSQL with pgvector
//   - memory: in-process store
//   - sqlite://path or anything else: SQLite at the given path
func Open(ctx context.Context, dsn string, opts Options) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, core.NewValidationError("dsn", "connection string is required")
	}

	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		s, err := NewPgVectorStore(ctx, dsn, opts)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return s, nil
	case dsn == "memory:" || dsn == "memory://":
		return NewMemoryStore(), nil
	default:
		s, err := NewSQLiteStore(ctx, strings.TrimPrefix(dsn, "sqlite://"), opts)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		return s, nil
	}
}
