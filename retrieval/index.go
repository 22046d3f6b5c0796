package retrieval

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hubenschmidt/go-vecrag/core"
)

// ItemState tracks one text through IndexTexts.
type ItemState int

const (
	StatePending ItemState = iota
	StateEmbedding
	StateInserting
	StateIndexed
	StateSkippedTransient
	StateFailedFatal
	// StateNotAttempted marks texts left unprocessed after the batch stopped.
	StateNotAttempted
)

var stateNames = map[ItemState]string{
	StatePending:          "pending",
	StateEmbedding:        "embedding",
	StateInserting:        "inserting",
	StateIndexed:          "indexed",
	StateSkippedTransient: "skipped_transient",
	StateFailedFatal:      "failed_fatal",
	StateNotAttempted:     "not_attempted",
}

func (s ItemState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

func (s ItemState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ItemOutcome is the final state of one input text.
type ItemOutcome struct {
	Index int       `json:"index"`
	State ItemState `json:"state"`
	ID    int64     `json:"id,omitempty"`
	Err   error     `json:"-"`
}

// IndexResult summarises an IndexTexts call. Items is parallel to the input.
type IndexResult struct {
	Indexed int           `json:"indexed"`
	IDs     []int64       `json:"ids"`
	Items   []ItemOutcome `json:"items"`
	// Aborted is set when the abort quota policy stopped the batch.
	Aborted bool `json:"aborted,omitempty"`
}

// Skipped returns the items omitted after quota failures.
func (r *IndexResult) Skipped() []ItemOutcome {
	var out []ItemOutcome
	for _, it := range r.Items {
		if it.State == StateSkippedTransient {
			out = append(out, it)
		}
	}
	return out
}

func newIndexResult(n int) *IndexResult {
	r := &IndexResult{IDs: []int64{}, Items: make([]ItemOutcome, n)}
	for i := range r.Items {
		r.Items[i] = ItemOutcome{Index: i, State: StatePending}
	}
	return r
}

// finish marks every still-pending item as not attempted.
func (r *IndexResult) finish() {
	for i := range r.Items {
		switch r.Items[i].State {
		case StatePending, StateEmbedding:
			r.Items[i].State = StateNotAttempted
		}
	}
}

// IndexTexts embeds and inserts each text in input order.
//
// Quota failures never surface as errors: under QuotaPolicySkip the text is
// omitted and the batch continues, under QuotaPolicyAbort the batch stops
// and the partial result is returned. Any other failure stops the batch
// and is returned together with the partial result.
func (a *Assembler) IndexTexts(ctx context.Context, collection string, texts []string) (*IndexResult, error) {
	res := newIndexResult(len(texts))
	defer res.finish()

	if len(texts) == 0 {
		return res, nil
	}

	var err error
	if a.opts.Concurrency <= 1 {
		err = a.indexSequential(ctx, collection, texts, res)
	} else {
		err = a.indexParallel(ctx, collection, texts, res)
	}

	fields := []zap.Field{
		zap.String("collection", collection),
		zap.Int("texts", len(texts)),
		zap.Int("indexed", res.Indexed),
		zap.Int("skipped", len(res.Skipped())),
	}
	if err != nil {
		a.log.Error("indexing stopped", append(fields, zap.Error(err))...)
		return res, err
	}
	a.log.Info("indexing finished", append(fields, zap.Bool("aborted", res.Aborted))...)
	return res, nil
}

func (a *Assembler) indexSequential(ctx context.Context, collection string, texts []string, res *IndexResult) error {
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return err
		}

		res.Items[i].State = StateEmbedding
		vec, embedErr := a.embed(ctx, text)

		if stop, err := a.settle(ctx, collection, i, text, vec, embedErr, res); stop {
			return err
		}
	}
	return nil
}

type embedding struct {
	vec []float32
	err error
	ran bool
}

// indexParallel embeds with bounded concurrency, then settles items in
// input order so ids and tie-breaking follow the input. Once item i has
// failed fatally (or hit quota under the abort policy), no item after i
// starts its embedding call.
func (a *Assembler) indexParallel(ctx context.Context, collection string, texts []string, res *IndexResult) error {
	embedded := make([]embedding, len(texts))

	var stopAt atomic.Int64
	stopAt.Store(int64(len(texts)))
	lowerStop := func(i int) {
		for {
			cur := stopAt.Load()
			if int64(i) >= cur || stopAt.CompareAndSwap(cur, int64(i)) {
				return
			}
		}
	}

	var g errgroup.Group
	g.SetLimit(a.opts.Concurrency)

	for i, text := range texts {
		if ctx.Err() != nil || int64(i) > stopAt.Load() {
			break
		}
		g.Go(func() error {
			if int64(i) > stopAt.Load() {
				return nil
			}
			res.Items[i].State = StateEmbedding

			vec, err := a.embed(ctx, text)
			embedded[i] = embedding{vec: vec, err: err, ran: true}

			if err != nil && (!core.IsTransient(err) || a.opts.QuotaPolicy == QuotaPolicyAbort) {
				lowerStop(i)
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, text := range texts {
		if !embedded[i].ran {
			return ctx.Err()
		}
		if stop, err := a.settle(ctx, collection, i, text, embedded[i].vec, embedded[i].err, res); stop {
			return err
		}
	}
	return nil
}

// settle records the embedding outcome of item i and, when it succeeded,
// inserts the document. stop reports that the batch must end; err is set
// for fatal failures.
func (a *Assembler) settle(ctx context.Context, collection string, i int, text string, vec []float32, embedErr error, res *IndexResult) (stop bool, err error) {
	item := &res.Items[i]

	if embedErr != nil {
		item.Err = embedErr
		if core.IsTransient(embedErr) {
			item.State = StateSkippedTransient
			a.metrics.Skipped(collection, "quota", 1)
			a.log.Warn("skipping text: embedding quota exceeded",
				zap.String("collection", collection),
				zap.Int("index", i),
				zap.String("policy", string(a.opts.QuotaPolicy)),
				zap.Error(embedErr))

			if a.opts.QuotaPolicy == QuotaPolicyAbort {
				res.Aborted = true
				a.metrics.Skipped(collection, "aborted", countPending(res, i+1))
				return true, nil
			}
			return false, nil
		}

		item.State = StateFailedFatal
		a.metrics.Error("embed", core.Class(embedErr))
		return true, core.WithContext(core.NewOpError("index", collection, embedErr), "index", i)
	}

	if err := ctx.Err(); err != nil {
		item.State = StateNotAttempted
		return true, err
	}

	item.State = StateInserting
	callCtx, cancel := context.WithTimeout(ctx, a.opts.CallTimeout)
	defer cancel()

	start := time.Now()
	id, err := a.store.Insert(callCtx, collection, text, vec)
	a.metrics.ObserveStore("insert", start)
	if err != nil {
		item.State = StateFailedFatal
		item.Err = err
		a.metrics.Error("insert", core.Class(err))
		return true, core.WithContext(core.NewOpError("index", collection, err), "index", i)
	}

	item.State = StateIndexed
	item.ID = id
	res.IDs = append(res.IDs, id)
	res.Indexed++
	a.metrics.Indexed(collection)
	return false, nil
}

func countPending(res *IndexResult, from int) int {
	n := 0
	for _, it := range res.Items[from:] {
		if it.State == StatePending || it.State == StateEmbedding {
			n++
		}
	}
	return n
}
