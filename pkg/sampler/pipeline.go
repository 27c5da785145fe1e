// Package sampler orchestrates the ordered logit-space stage pipeline and
// selection finalizer described in spec §3/§4.1. The stage math itself
//(softmax, top-k/top-p truncation, Mirostat bookkeeping, repetition
// windows) is delegated to kernel.SamplingPrimitives — the kernel owns the
// numerics, the sampler owns validation, ordering, grammar interception and
// per-turn state (spec §6: "so the core composes rather than reimplements
// them").
package sampler

import (
	"context"

	"github.com/localrt/llmcore/pkg/kernel"
	"github.com/localrt/llmcore/pkg/llmerr"
)

// stage is the internal, stateful runtime form of a StageConfig.
type stage interface {
	apply(p kernel.SamplingPrimitives, dist kernel.Logits, recent []kernel.Token)
	accept(token kernel.Token)
	reset()
}

// Sampler is a built, ready-to-run pipeline for one chat worker. It is
// reconfigured (via Build) per turn; mid-turn, only the grammar may be
// swapped atomically (SwapGrammar), as spec §4.1 allows.
type Sampler struct {
	primitives kernel.SamplingPrimitives
	vocabSize  int
	stages     []stage
	grammar    *grammarStage // nil if Config had no Grammar stage
	finalize   func(dist kernel.Logits) (kernel.Token, error)
	recent     []kernel.Token
	mu         []float32 // mirostat running state, len 1 if finalizer needs it
	muInit     float32
}

// Build validates cfg and compiles it into a runnable Sampler. vocabPieces
// and eos are only consulted when cfg contains a Grammar stage, to compile
// the grammar's token-level automaton (spec §4.1); callers with no grammar
// stage may pass nil/0.
func Build(primitives kernel.SamplingPrimitives, vocabSize int, vocabPieces []string, eos kernel.Token, cfg Config) (*Sampler, error) {
	if cfg.Finalizer == nil {
		return nil, &llmerr.InvalidSampler{Reason: "missing finalizer"}
	}

	s := &Sampler{primitives: primitives, vocabSize: vocabSize}

	for _, sc := range cfg.Stages {
		built, err := buildStage(sc, vocabPieces, eos)
		if err != nil {
			return nil, err
		}
		if gs, ok := built.(*grammarStage); ok {
			if s.grammar != nil {
				return nil, &llmerr.InvalidSampler{Reason: "only one grammar stage is permitted"}
			}
			s.grammar = gs
		}
		s.stages = append(s.stages, built)
	}

	if err := s.bindFinalizer(cfg.Finalizer); err != nil {
		return nil, err
	}

	return s, nil
}

// Sample applies every stage in configured order, then the finalizer.
func (s *Sampler) Sample(ctx context.Context, logits kernel.Logits, recent []kernel.Token) (kernel.Token, error) {
	dist := make(kernel.Logits, len(logits))
	copy(dist, logits)

	for _, st := range s.stages {
		st.apply(s.primitives, dist, recent)
	}

	tok, err := s.finalize(dist)
	if err != nil {
		return 0, err
	}

	if s.grammar != nil && !s.grammar.automaton.Accept(tok) {
		return 0, &llmerr.GrammarDeadEnd{}
	}

	return tok, nil
}

// Accept notifies every stateful stage that token was committed. Must be
// called for every generated token, including tool-call framing tokens
// (spec §4.1).
func (s *Sampler) Accept(token kernel.Token) {
	s.recent = append(s.recent, token)
	for _, st := range s.stages {
		st.accept(token)
	}
}

// Reset clears all per-turn stage state (recency windows, grammar
// automaton position, Mirostat mu).
func (s *Sampler) Reset() {
	s.recent = s.recent[:0]
	for _, st := range s.stages {
		st.reset()
	}
	for i := range s.mu {
		s.mu[i] = s.muInit
	}
}

// SwapGrammar atomically replaces the active grammar stage, or installs one
// if the pipeline had none, for use at a tool-call boundary (spec §4.1,
// "Grammars may be swapped atomically between turns or within a turn at a
// boundary (see §4.4 tool interception)"). Passing nil removes grammar
// constraints entirely (free-form generation).
func (s *Sampler) SwapGrammar(automaton kernel.GrammarAutomaton) {
	if automaton == nil {
		if s.grammar == nil {
			return
		}
		filtered := s.stages[:0]
		for _, st := range s.stages {
			if st != s.grammar {
				filtered = append(filtered, st)
			}
		}
		s.stages = filtered
		s.grammar = nil
		return
	}

	gs := &grammarStage{automaton: automaton}
	if s.grammar != nil {
		for i, st := range s.stages {
			if st == s.grammar {
				s.stages[i] = gs
				break
			}
		}
	} else {
		s.stages = append(s.stages, gs)
	}
	s.grammar = gs
}
