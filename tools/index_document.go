package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hubenschmidt/go-vecrag/core"
	"github.com/hubenschmidt/go-vecrag/retrieval"
)

// IndexDocumentTool adds documents to a collection.
type IndexDocumentTool struct {
	assembler  *retrieval.Assembler
	collection string
}

// NewIndexDocumentTool creates a new index document tool.
func NewIndexDocumentTool(a *retrieval.Assembler, collection string) *IndexDocumentTool {
	return &IndexDocumentTool{
		assembler:  a,
		collection: collection,
	}
}

func (t *IndexDocumentTool) Name() string {
	return "index_document"
}

func (t *IndexDocumentTool) Description() string {
	return "Add documents to the knowledge base for future similarity searches."
}

func (t *IndexDocumentTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"content": {
				"type": "string",
				"description": "The document content to index"
			},
			"contents": {
				"type": "array",
				"items": {"type": "string"},
				"description": "Several documents to index in order"
			},
			"collection": {
				"type": "string",
				"description": "Target collection (optional)"
			}
		}
	}`)
}

func (t *IndexDocumentTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var req struct {
		Content    string   `json:"content"`
		Contents   []string `json:"contents"`
		Collection string   `json:"collection"`
	}
	if err := decodeArgs(args, &req); err != nil {
		return "", err
	}

	texts := req.Contents
	if req.Content != "" {
		texts = append([]string{req.Content}, texts...)
	}
	if len(texts) == 0 {
		return "", core.NewValidationError("content", "must not be empty")
	}

	collection := req.Collection
	if collection == "" {
		collection = t.collection
	}

	res, err := t.assembler.IndexTexts(ctx, collection, texts)
	if err != nil {
		return "", err
	}

	msg := fmt.Sprintf("Indexed %d of %d documents into '%s'.", res.Indexed, len(texts), collection)
	if skipped := len(res.Skipped()); skipped > 0 {
		msg += fmt.Sprintf(" %d skipped: embedding quota exceeded.", skipped)
	}
	return msg, nil
}
