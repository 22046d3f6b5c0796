package server

import (
	"time"

	"github.com/hubenschmidt/go-vecrag/retrieval"
	"github.com/hubenschmidt/go-vecrag/vector"
)

type EnsureCollectionRequest struct {
	Dimension int `json:"dimension"`
}

type CollectionInfo struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Count     int    `json:"count"`
}

type IndexRequest struct {
	Texts []string `json:"texts"`
}

type IndexResponse struct {
	RunID string `json:"run_id"`
	*retrieval.IndexResult
	Error string `json:"error,omitempty"`
}

type SearchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

type SearchHit struct {
	ID       int64   `json:"id"`
	Content  string  `json:"content"`
	Distance float64 `json:"distance"`
}

type SearchResponse struct {
	Results []SearchHit `json:"results"`
}

type ContextResponse struct {
	Context string `json:"context"`
}

type AskRequest struct {
	Question string `json:"question"`
	K        int    `json:"k,omitempty"`
}

type AskResponse struct {
	Question  string      `json:"question"`
	Answer    string      `json:"answer"`
	Context   string      `json:"context"`
	Sources   []SearchHit `json:"sources"`
	NoContext bool        `json:"no_context,omitempty"`
	Degraded  bool        `json:"degraded,omitempty"`
}

type CountResponse struct {
	Collection string `json:"collection"`
	Count      int    `json:"count"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Class     string `json:"class"`
	RequestID string `json:"request_id,omitempty"`
}

// RunInfo records one indexing request.
type RunInfo struct {
	ID         string        `json:"id"`
	Collection string        `json:"collection"`
	Texts      int           `json:"texts"`
	Indexed    int           `json:"indexed"`
	Skipped    int           `json:"skipped"`
	Aborted    bool          `json:"aborted"`
	Status     string        `json:"status"` // ok | degraded | failed
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Elapsed    time.Duration `json:"elapsed_ns"`
}

func toHits(results []vector.Result) []SearchHit {
	hits := make([]SearchHit, len(results))
	for i, r := range results {
		hits[i] = SearchHit{ID: r.Document.ID, Content: r.Document.Content, Distance: r.Distance}
	}
	return hits
}
