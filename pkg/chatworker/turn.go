package chatworker

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/localrt/llmcore/pkg/grammar"
	"github.com/localrt/llmcore/pkg/kernel"
	"github.com/localrt/llmcore/pkg/llmerr"
	"github.com/localrt/llmcore/pkg/message"
	"github.com/localrt/llmcore/pkg/sampler"
	"github.com/localrt/llmcore/pkg/telemetry"
	"github.com/localrt/llmcore/pkg/tool"
	"go.opentelemetry.io/otel/trace"
)

// runTurn implements the turn algorithm of spec §4.4. It runs entirely on
// the worker goroutine (called only from a closure submitted to
// w.requests), so it touches w.store/w.ctxMgr/w.tools without locking.
func (w *Worker) runTurn(ctx context.Context, userContent string, events chan<- Event) {
	tracer := telemetry.GetTracer(&w.tracer)
	ctx, span := tracer.Start(ctx, "chatworker.turn",
		trace.WithAttributes(telemetry.WorkerAttributes(w.handle.TemplateMetadata.Name, &w.tracer)...),
	)
	defer span.End()
	telemetry.AddStageAttributes(span, "turn", map[string]interface{}{
		"max_tokens":  w.maxTokens,
		"stop_words":  len(w.stopWords),
		"tools_count": len(w.tools.Descriptors()),
		"user_chars":  len(userContent),
	})

	fail := func(err error) {
		telemetry.RecordErrorOnSpan(span, err)
		events <- Event{Kind: EventError, Err: err}
	}
	done := func(text string) {
		events <- Event{Kind: EventDone, Text: text}
	}

	preTurnLen := w.store.Len()

	// Step 1: append the user message and re-render.
	if err := w.store.Append(message.User(userContent)); err != nil {
		fail(err)
		return
	}

	// Step 2: reconcile the rendered prefix against the kernel's KV-cache,
	// context-shifting first if the budget demands it.
	if _, err := w.ctxMgr.Prepare(ctx, w.store, w.tools.Descriptors()); err != nil {
		w.store.TruncateTo(preTurnLen)
		fail(err)
		return
	}

	samp, err := w.buildSampler(ctx)
	if err != nil {
		w.store.TruncateTo(preTurnLen)
		fail(err)
		return
	}

	toolsActive := len(w.tools.Descriptors()) > 0
	if toolsActive {
		automaton, err := w.buildToolAutomaton(ctx)
		if err != nil {
			w.store.TruncateTo(preTurnLen)
			fail(err)
			return
		}
		samp.SwapGrammar(automaton)
	}

	var (
		accumulated       string
		accumulatedTokens []kernel.Token
		tokensGenerated   int
	)
	eos := w.model.EndOfSequence()

	// Step 3: the sampling loop.
	for {
		logits, err := w.model.DecodeNext(ctx)
		if err != nil {
			w.store.TruncateTo(preTurnLen)
			fail(&llmerr.KernelError{Detail: "decode failed", Cause: err})
			return
		}

		tok, err := samp.Sample(ctx, logits, accumulatedTokens)
		if err != nil {
			if llmerr.IsGrammarDeadEnd(err) {
				w.commitAssistant(accumulated)
				fail(err)
				return
			}
			w.store.TruncateTo(preTurnLen)
			fail(err)
			return
		}
		samp.Accept(tok)

		if err := w.model.Prefill(ctx, []kernel.Token{tok}); err != nil {
			w.store.TruncateTo(preTurnLen)
			fail(&llmerr.KernelError{Detail: "prefilling generated token failed", Cause: err})
			return
		}
		accumulatedTokens = append(accumulatedTokens, tok)
		tokensGenerated++

		piece, err := w.model.Detokenize(ctx, []kernel.Token{tok})
		if err != nil {
			w.store.TruncateTo(preTurnLen)
			fail(&llmerr.KernelError{Detail: "detokenize failed", Cause: err})
			return
		}
		accumulated += piece
		events <- Event{Kind: EventToken, Text: piece}

		// Step 3f: stop conditions, in the spec's strict order.
		if w.cancelRequested() {
			done(w.commitAssistant(accumulated))
			return
		}
		if tokensGenerated >= w.maxTokens {
			done(w.commitAssistant(accumulated))
			return
		}
		if tok == eos {
			done(w.commitAssistant(accumulated))
			return
		}
		if stop, ok := matchStopWordSuffix(accumulated, w.stopWords); ok {
			done(w.commitAssistant(strings.TrimSuffix(accumulated, stop)))
			return
		}

		// Step 3g: tool-call interception.
		if toolsActive {
			attempt := tool.ExtractCall(w.framing, accumulated)
			if attempt.Closed {
				if _, known := w.tools.Get(attempt.Name); attempt.Malformed || attempt.Name == "" || !known {
					// The grammar's call-block alternation only ever offers
					// registered tool names (spec §9 open question on
					// unregistered names); an unparseable block or a name
					// the registry does not hold is outside that grammar,
					// so the turn ends with a dead end.
					w.commitAssistant(accumulated)
					fail(&llmerr.GrammarDeadEnd{Position: tokensGenerated})
					return
				}

				events <- Event{Kind: EventToolCallStarted, ToolName: attempt.Name}

				result, invErr := w.tools.Invoke(attempt.Name, attempt.Arguments)
				if invErr != nil {
					result = "error: " + invErr.Error()
				}

				callID := uuid.NewString()
				// Both appends below only ever violate ValidateLog's rules
				// if the worker mis-sequenced them, which it does not: a
				// ToolCall is always immediately followed by its matching
				// ToolResponse.
				_ = w.store.Append(message.ToolCall(callID, attempt.Name, attempt.Arguments))
				_ = w.store.Append(message.ToolResponse(callID, attempt.Name, result))

				events <- Event{Kind: EventToolCallFinished, ToolName: attempt.Name, ToolResult: result, Err: invErr}

				if _, err := w.ctxMgr.Prepare(ctx, w.store, w.tools.Descriptors()); err != nil {
					w.store.TruncateTo(preTurnLen)
					fail(err)
					return
				}

				accumulated = ""
				continue
			}
		}
	}
}

// commitAssistant appends text as the turn's committed Assistant message.
// Assistant messages never violate message.ValidateLog's ordering rules,
// so the append cannot fail.
func (w *Worker) commitAssistant(text string) string {
	_ = w.store.Append(message.Assistant(text))
	return text
}

// buildSampler clones the worker's sampler configuration (spec §3:
// "Sampler configuration is cloned at the start of each turn") and builds
// a fresh pipeline against the kernel's vocabulary for this turn.
func (w *Worker) buildSampler(ctx context.Context) (*sampler.Sampler, error) {
	pieces, err := w.model.TokenPieces(ctx)
	if err != nil {
		return nil, &llmerr.KernelError{Detail: "fetching token pieces failed", Cause: err}
	}
	return sampler.Build(w.model.SamplingPrimitives(), w.handle.VocabSize, pieces, w.model.EndOfSequence(), w.samplerCfg.Clone())
}

// buildToolAutomaton synthesizes this turn's tool-call grammar (spec
// §4.3) and compiles it into a token-space automaton ready for
// sampler.Sampler.SwapGrammar.
func (w *Worker) buildToolAutomaton(ctx context.Context) (kernel.GrammarAutomaton, error) {
	g, err := w.tools.BuildGrammar(w.framing, true)
	if err != nil {
		return nil, &llmerr.InvalidGrammar{Message: err.Error()}
	}
	pieces, err := w.model.TokenPieces(ctx)
	if err != nil {
		return nil, &llmerr.KernelError{Detail: "fetching token pieces failed", Cause: err}
	}
	return grammar.NewTokenAutomaton(g, pieces, w.model.EndOfSequence()), nil
}

// matchStopWordSuffix reports the longest configured word that is a
// suffix of text, if any (spec §4.4: "The longest configured stop-word is
// tracked... matching is suffix-based").
func matchStopWordSuffix(text string, words []string) (string, bool) {
	best := ""
	found := false
	for _, word := range words {
		if word == "" {
			continue
		}
		if strings.HasSuffix(text, word) && len(word) > len(best) {
			best = word
			found = true
		}
	}
	return best, found
}
