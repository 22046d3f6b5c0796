package vector

import (
	"fmt"
	"strings"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/hubenschmidt/go-vecrag/core"
)

// EncodeEmbedding renders v in pgvector text form: "[0.1,0.2,0.3]".
func EncodeEmbedding(v []float32) string {
	return pgvector.NewVector(v).String()
}

// DecodeEmbedding parses pgvector text form back into a slice.
func DecodeEmbedding(s string) ([]float32, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, core.NewValidationError("embedding", fmt.Sprintf("malformed vector literal %q", truncate(s, 32)))
	}
	if s == "[]" {
		return []float32{}, nil
	}

	var v pgvector.Vector
	if err := v.Parse(s); err != nil {
		return nil, core.NewValidationError("embedding", fmt.Sprintf("parse vector literal: %v", err))
	}
	return v.Slice(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
