// Package rerank implements the reranking worker described in spec §4.5
// (C7): a thin, single-goroutine serialized wrapper over a kernel.Model's
// cross-encoder scoring head. Grounded on the teacher's pkg/ai.Rerank and
// pkg/provider.RerankingModel shape, generalized from "call a remote
// reranking endpoint" to "call the shared local kernel handle."
package rerank

import (
	"context"
	"sort"

	"github.com/localrt/llmcore/pkg/kernel"
	"github.com/localrt/llmcore/pkg/llmerr"
	"github.com/localrt/llmcore/pkg/telemetry"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// scoreConcurrency bounds how many (query, document) pairs Rank scores at
// once — the kernel's ScorePair is read-only and safe to call concurrently
// (unlike Prefill/DecodeNext, which mutate the KV-cache), but an unbounded
// fan-out would still let one Rank call monopolize the kernel.
const scoreConcurrency = 4

// Worker serializes rank requests onto a single goroutine (spec §4.5:
// "these workers share the single-worker concurrency model of the chat
// worker: one request at a time, serialized, cancellable").
type Worker struct {
	model  kernel.Model
	handle kernel.Handle
	tracer telemetry.Settings

	requests chan func()
	closed   chan struct{}
}

// New constructs a Worker over model/handle. handle.HasRerankerHead must
// be true; New returns InitWorker otherwise.
func New(model kernel.Model, handle kernel.Handle, opts ...Option) (*Worker, error) {
	if !handle.HasRerankerHead {
		return nil, &llmerr.InitWorker{Reason: "model has no reranker head"}
	}

	var cfg config
	for _, o := range opts {
		o(&cfg)
	}
	w := &Worker{
		model:    model,
		handle:   handle,
		requests: make(chan func(), 16),
		closed:   make(chan struct{}),
	}
	if cfg.telemetry != nil {
		w.tracer = *cfg.telemetry
	}

	go w.run()
	return w, nil
}

// Option configures a Worker at construction.
type Option func(*config)

type config struct {
	telemetry *telemetry.Settings
}

// WithTelemetry installs tracer settings.
func WithTelemetry(s *telemetry.Settings) Option { return func(c *config) { c.telemetry = s } }

func (w *Worker) run() {
	for fn := range w.requests {
		fn()
	}
	close(w.closed)
}

// Close stops the worker goroutine once any queued requests drain.
func (w *Worker) Close() {
	close(w.requests)
	<-w.closed
}

// scored pairs a document with its cross-encoder score and original
// position, so a stable sort can break ties by input order.
type scored struct {
	doc   string
	score float32
	index int
}

// Rank scores every document against query, sorts descending, and returns
// at most limit documents (all of them if limit is -1). Ties are broken by
// input order (spec §4.5).
func (w *Worker) Rank(ctx context.Context, query string, documents []string, limit int) ([]string, error) {
	type result struct {
		docs []string
		err  error
	}
	out := make(chan result, 1)

	req := func() {
		tracer := telemetry.GetTracer(&w.tracer)
		docs, err := telemetry.RecordSpan(ctx, tracer, telemetry.SpanOptions{
			Name:        "rerank.rank",
			Attributes:  telemetry.WorkerAttributes("rerank", &w.tracer),
			EndWhenDone: true,
		}, func(ctx context.Context, _ trace.Span) ([]string, error) {
			results := make([]scored, len(documents))
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(scoreConcurrency)
			for i, doc := range documents {
				i, doc := i, doc
				g.Go(func() error {
					score, err := w.model.ScorePair(gctx, query, doc)
					if err != nil {
						return &llmerr.KernelError{Detail: "score_pair failed", Cause: err}
					}
					results[i] = scored{doc: doc, score: score, index: i}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return nil, err
			}

			sort.SliceStable(results, func(a, b int) bool {
				return results[a].score > results[b].score
			})

			n := len(results)
			if limit >= 0 && limit < n {
				n = limit
			}
			ranked := make([]string, n)
			for i := 0; i < n; i++ {
				ranked[i] = results[i].doc
			}
			return ranked, nil
		})
		out <- result{docs: docs, err: err}
	}

	select {
	case w.requests <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	r := <-out
	return r.docs, r.err
}
