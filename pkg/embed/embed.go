// Package embed implements the embedding worker described in spec §4.5
// (C7): a thin, single-goroutine serialized wrapper over a kernel.Model's
// batch-encode head. Grounded on the teacher's pkg/ai.Embed and
// pkg/provider.EmbeddingModel shape, generalized from "call a remote
// provider's embeddings endpoint" to "call the shared local kernel handle."
package embed

import (
	"context"
	"math"

	"github.com/localrt/llmcore/pkg/kernel"
	"github.com/localrt/llmcore/pkg/llmerr"
	"github.com/localrt/llmcore/pkg/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// Worker serializes encode requests onto a single goroutine, the same
// one-request-at-a-time model chatworker.Worker uses (spec §4.5: "batch
// size 1 is sufficient for the contract; concurrent calls are serialized").
type Worker struct {
	model  kernel.Model
	handle kernel.Handle
	tracer telemetry.Settings

	requests chan func()
	closed   chan struct{}
}

// New constructs a Worker over model/handle. handle.HasEmbeddingHead must
// be true; New returns InitWorker otherwise (spec §7: "the model lacks a
// required head").
func New(model kernel.Model, handle kernel.Handle, opts ...Option) (*Worker, error) {
	if !handle.HasEmbeddingHead {
		return nil, &llmerr.InitWorker{Reason: "model has no embedding head"}
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

// Encode runs text through the kernel's embedding head and L2-normalizes
// the result (spec §4.5: "the returned vector is L2-normalized").
func (w *Worker) Encode(ctx context.Context, text string) ([]float32, error) {
	type result struct {
		vec []float32
		err error
	}
	out := make(chan result, 1)

	req := func() {
		tracer := telemetry.GetTracer(&w.tracer)
		vec, err := telemetry.RecordSpan(ctx, tracer, telemetry.SpanOptions{
			Name:        "embed.encode",
			Attributes:  telemetry.WorkerAttributes("embed", &w.tracer),
			EndWhenDone: true,
		}, func(ctx context.Context, _ trace.Span) ([]float32, error) {
			vecs, err := w.model.EncodeBatch(ctx, []string{text})
			if err != nil {
				return nil, &llmerr.KernelError{Detail: "encode failed", Cause: err}
			}
			return normalize(vecs[0]), nil
		})
		out <- result{vec: vec, err: err}
	}

	select {
	case w.requests <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	r := <-out
	return r.vec, r.err
}

func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sumSq))
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

// CosineSimilarity returns the cosine similarity of a and b, in [-1, 1].
// Pure function, independent of any Worker (spec §4.5 "A companion pure
// function cosine_similarity(a, b) -> float").
func CosineSimilarity(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
