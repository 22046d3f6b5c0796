package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hubenschmidt/go-vecrag/core"
	"github.com/hubenschmidt/go-vecrag/llm"
	"github.com/hubenschmidt/go-vecrag/vector"
)

const promptTemplate = "Use the following information to answer the question:\n\n%s\n\nQuestion: %s"

// BuildPrompt places the retrieved context ahead of the question.
func BuildPrompt(question, context string) string {
	return fmt.Sprintf(promptTemplate, context, question)
}

// Answer is the outcome of a retrieve-then-generate round.
type Answer struct {
	Question string          `json:"question"`
	Context  string          `json:"context"`
	Text     string          `json:"answer"`
	Sources  []vector.Result `json:"sources"`
	// NoContext is set when nothing was retrieved; the generator is not called.
	NoContext bool `json:"no_context,omitempty"`
	// Degraded is set when a quota failure cut the round short.
	Degraded bool `json:"degraded,omitempty"`
}

// Answer retrieves context for question and asks gen to answer from it.
// Quota failures on either side degrade the answer instead of failing.
func (a *Assembler) Answer(ctx context.Context, gen llm.Generator, collection, question string, k int) (*Answer, error) {
	if gen == nil {
		return nil, core.NewValidationError("generator", "is required")
	}

	ans := &Answer{Question: question, Sources: []vector.Result{}}

	results, err := a.Retrieve(ctx, collection, question, k)
	switch {
	case core.IsTransient(err):
		a.log.Warn("answer degraded: embedding quota exceeded",
			zap.String("collection", collection), zap.Error(err))
		ans.Degraded = true
		ans.NoContext = true
		return ans, nil
	case err != nil:
		return nil, err
	}

	ans.Sources = results
	ans.Context = JoinContents(results)
	if strings.TrimSpace(ans.Context) == "" {
		a.log.Info("no context available", zap.String("collection", collection))
		ans.NoContext = true
		return ans, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, a.opts.CallTimeout)
	defer cancel()

	start := time.Now()
	text, err := gen.Generate(callCtx, BuildPrompt(question, ans.Context))
	a.metrics.ObserveProvider("generate", start)
	if err != nil {
		a.metrics.Error("generate", core.Class(err))
		if core.IsTransient(err) {
			a.log.Warn("answer degraded: generation quota exceeded", zap.Error(err))
			ans.Degraded = true
			return ans, nil
		}
		return nil, core.NewOpError("answer", collection, err)
	}

	ans.Text = strings.TrimSpace(text)
	return ans, nil
}
