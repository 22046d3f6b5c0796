package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hubenschmidt/go-vecrag/core"
)

const maxBodyBytes = 10 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}

func (s *Server) handleEnsure(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req EnsureCollectionRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	if req.Dimension == 0 {
		req.Dimension = s.dimension
	}

	if err := s.assembler.EnsureCollection(r.Context(), name, req.Dimension); err != nil {
		writeError(w, r, err)
		return
	}
	count, err := s.assembler.Count(r.Context(), name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CollectionInfo{Name: name, Dimension: req.Dimension, Count: count})
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	count, err := s.assembler.Count(r.Context(), name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Collection: name, Count: count})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req IndexRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	run := RunInfo{
		ID:         uuid.NewString(),
		Collection: name,
		Texts:      len(req.Texts),
		StartedAt:  time.Now(),
	}

	res, err := s.assembler.IndexTexts(r.Context(), name, req.Texts)

	run.Elapsed = time.Since(run.StartedAt)
	run.Indexed = res.Indexed
	run.Skipped = len(res.Skipped())
	run.Aborted = res.Aborted
	switch {
	case err != nil:
		run.Status = "failed"
		run.Error = err.Error()
	case run.Skipped > 0:
		run.Status = "degraded"
	default:
		run.Status = "ok"
	}
	s.runs.Add(run)

	if err != nil {
		// the partial result is still reported alongside the error
		status, _ := statusFor(err)
		writeJSON(w, status, IndexResponse{RunID: run.ID, IndexResult: res, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, IndexResponse{RunID: run.ID, IndexResult: res})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	results, err := s.assembler.Retrieve(r.Context(), r.PathValue("name"), req.Query, s.k(req.K))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: toHits(results)})
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	text, err := s.assembler.RetrieveContext(r.Context(), r.PathValue("name"), req.Query, s.k(req.K))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ContextResponse{Context: text})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if s.generator == nil {
		writeJSON(w, http.StatusNotImplemented, ErrorResponse{
			Error:     "no generation provider configured",
			Class:     "validation",
			RequestID: RequestIDFrom(r.Context()),
		})
		return
	}

	var req AskRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	ans, err := s.assembler.Answer(r.Context(), s.generator, r.PathValue("name"), req.Question, s.k(req.K))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AskResponse{
		Question:  ans.Question,
		Answer:    ans.Text,
		Context:   ans.Context,
		Sources:   toHits(ans.Sources),
		NoContext: ans.NoContext,
		Degraded:  ans.Degraded,
	})
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		writeJSON(w, http.StatusOK, []core.ToolSchema{})
		return
	}
	schemas, err := s.registry.Schemas(s.registry.List())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schemas)
}

func (s *Server) handleToolCall(w http.ResponseWriter, r *http.Request) {
	if s.registry == nil {
		http.Error(w, "no tools registered", http.StatusNotFound)
		return
	}

	var args json.RawMessage
	if !decodeBody(w, r, &args, true) {
		return
	}

	res := s.registry.Call(r.Context(), core.ToolCall{
		ID:        RequestIDFrom(r.Context()),
		Name:      r.PathValue("name"),
		Arguments: args,
	})
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRunList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.runs.List())
}

func (s *Server) handleRunGet(w http.ResponseWriter, r *http.Request) {
	run, ok := s.runs.Get(r.PathValue("id"))
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// k applies the configured default when the request omits k.
func (s *Server) k(requested int) int {
	if requested == 0 {
		return s.assembler.DefaultK()
	}
	return requested
}

// decodeBody decodes the JSON body into v. An empty body is accepted when
// optional is set.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	writeError(w, r, core.NewValidationError("body", err.Error()))
	return false
}

// statusFor maps an error class to an HTTP status.
func statusFor(err error) (int, string) {
	class := core.Class(err)
	switch {
	case errors.Is(err, core.ErrCollectionNotFound):
		return http.StatusNotFound, class
	case class == "validation":
		return http.StatusBadRequest, class
	case class == "dimension":
		return http.StatusUnprocessableEntity, class
	case class == "schema":
		return http.StatusConflict, class
	case class == "quota":
		return http.StatusTooManyRequests, class
	case class == "provider":
		return http.StatusBadGateway, class
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, class
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, class := statusFor(err)
	if status >= http.StatusInternalServerError {
		loggerFrom(r.Context()).Error("request failed", zap.String("class", class), zap.Error(err))
	}
	writeJSON(w, status, ErrorResponse{
		Error:     err.Error(),
		Class:     class,
		RequestID: RequestIDFrom(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
