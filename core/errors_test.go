package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClasses(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		class    string
	}{
		{"validation", NewValidationError("content", "must not be empty"), ErrValidation, "validation"},
		{"dimension", &DimensionMismatchError{Collection: "docs", Expected: 3, Got: 2}, ErrDimensionMismatch, "dimension"},
		{"schema", &SchemaError{Collection: "docs", Reason: "dimension 3 != 4"}, ErrSchema, "schema"},
		{"not found", CollectionNotFound("docs"), ErrCollectionNotFound, "schema"},
		{"quota", &QuotaExceededError{Provider: "openai", Err: errors.New("429")}, ErrQuotaExceeded, "quota"},
		{"provider", &ProviderError{Provider: "gemini", StatusCode: 401, Err: errors.New("bad key")}, ErrProvider, "provider"},
		{"plain", errors.New("boom"), nil, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := NewOpError("insert", "docs", fmt.Errorf("store: %w", tt.err))
			if tt.sentinel != nil {
				assert.ErrorIs(t, wrapped, tt.sentinel)
			}
			assert.Equal(t, tt.class, Class(wrapped))
		})
	}
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(fmt.Errorf("embed: %w", &QuotaExceededError{Provider: "openai", Err: errors.New("insufficient_quota")})))
	assert.False(t, IsTransient(&ProviderError{Provider: "openai", StatusCode: 500, Err: errors.New("oops")}))
	assert.False(t, IsTransient(nil))
}

func TestOpErrorFormatting(t *testing.T) {
	err := WithContext(NewOpError("nearest", "products", ErrSchema), "k", 3)
	assert.Equal(t, "nearest [collection=products]: schema conflict", err.Error())
	assert.Equal(t, 3, err.Context["k"])
	assert.Equal(t, "ensure: schema conflict", NewOpError("ensure", "", ErrSchema).Error())

	var dm *DimensionMismatchError
	assert.True(t, errors.As(NewOpError("insert", "docs", &DimensionMismatchError{Expected: 768, Got: 1536}), &dm))
	assert.Equal(t, 768, dm.Expected)
}
