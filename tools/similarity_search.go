package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hubenschmidt/go-vecrag/retrieval"
	"github.com/hubenschmidt/go-vecrag/vector"
)

// SimilaritySearchTool returns the documents nearest to a query.
type SimilaritySearchTool struct {
	assembler  *retrieval.Assembler
	collection string
}

// NewSimilaritySearchTool creates a new similarity search tool.
func NewSimilaritySearchTool(a *retrieval.Assembler, collection string) *SimilaritySearchTool {
	return &SimilaritySearchTool{
		assembler:  a,
		collection: collection,
	}
}

func (t *SimilaritySearchTool) Name() string {
	return "similarity_search"
}

func (t *SimilaritySearchTool) Description() string {
	return "Search for documents similar to a query using semantic similarity. Returns the closest documents first."
}

func (t *SimilaritySearchTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {
				"type": "string",
				"description": "The search query to find similar documents"
			},
			"top_k": {
				"type": "integer",
				"description": "Maximum number of results to return"
			},
			"collection": {
				"type": "string",
				"description": "Collection to search (optional)"
			}
		},
		"required": ["query"]
	}`)
}

func (t *SimilaritySearchTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var req searchArgs
	if err := decodeArgs(args, &req); err != nil {
		return "", err
	}

	results, err := t.assembler.Retrieve(ctx, req.collectionOr(t.collection), req.Query, req.k(t.assembler))
	if err != nil {
		return "", err
	}

	if len(results) == 0 {
		return "No similar documents found.", nil
	}
	return formatSearchResults(results), nil
}

type searchArgs struct {
	Query      string `json:"query"`
	TopK       int    `json:"top_k"`
	Collection string `json:"collection"`
}

func (a searchArgs) k(asm *retrieval.Assembler) int {
	if a.TopK == 0 {
		return asm.DefaultK()
	}
	return a.TopK
}

func (a searchArgs) collectionOr(fallback string) string {
	if a.Collection != "" {
		return a.Collection
	}
	return fallback
}

func formatSearchResults(results []vector.Result) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d relevant documents:\n\n", len(results)))

	for i, r := range results {
		sb.WriteString(fmt.Sprintf("--- Document %d (id: %d, distance: %.4f) ---\n", i+1, r.Document.ID, r.Distance))
		sb.WriteString(r.Document.Content)
		sb.WriteString("\n\n")
	}

	return sb.String()
}

// RetrieveContextTool returns the newline-joined context for a query.
type RetrieveContextTool struct {
	assembler  *retrieval.Assembler
	collection string
}

func NewRetrieveContextTool(a *retrieval.Assembler, collection string) *RetrieveContextTool {
	return &RetrieveContextTool{assembler: a, collection: collection}
}

func (t *RetrieveContextTool) Name() string {
	return "retrieve_context"
}

func (t *RetrieveContextTool) Description() string {
	return "Retrieve background context for a question. Returns the closest documents joined by newlines, or an empty string when none are available."
}

func (t *RetrieveContextTool) Parameters() json.RawMessage {
	return (&SimilaritySearchTool{}).Parameters()
}

func (t *RetrieveContextTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var req searchArgs
	if err := decodeArgs(args, &req); err != nil {
		return "", err
	}
	return t.assembler.RetrieveContext(ctx, req.collectionOr(t.collection), req.Query, req.k(t.assembler))
}
