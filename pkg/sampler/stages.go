package sampler

import (
	"github.com/localrt/llmcore/pkg/grammar"
	"github.com/localrt/llmcore/pkg/kernel"
	"github.com/localrt/llmcore/pkg/llmerr"
)

func buildStage(cfg StageConfig, vocabPieces []string, eos kernel.Token) (stage, error) {
	switch c := cfg.(type) {
	case Temperature:
		return &temperatureStage{temp: c.Temp}, nil
	case TopK:
		return &topKStage{n: c.N}, nil
	case TopP:
		return &topPStage{p: c.P, minKeep: c.MinKeep}, nil
	case MinP:
		return &minPStage{p: c.P, minKeep: c.MinKeep}, nil
	case TypicalP:
		return &typicalPStage{p: c.P, minKeep: c.MinKeep}, nil
	case XTC:
		return &xtcStage{probability: c.Probability, threshold: c.Threshold, minKeep: c.MinKeep, seed: c.Seed}, nil
	case Penalties:
		return &penaltiesStage{lastN: c.LastN, repeat: c.Repeat, freq: c.Freq, present: c.Present}, nil
	case DRY:
		return &dryStage{multiplier: c.Multiplier, base: c.Base, allowedLen: c.AllowedLen, lastN: c.LastN}, nil
	case Grammar:
		g, err := grammar.Compile(c.GBNF, c.Root)
		if err != nil {
			return nil, &llmerr.InvalidGrammar{Message: err.Error()}
		}
		automaton := grammar.NewTokenAutomaton(g, vocabPieces, eos)
		return &grammarStage{automaton: automaton}, nil
	default:
		return nil, &llmerr.InvalidSampler{Reason: "unknown stage type"}
	}
}

// noopAcceptReset lets stages with no per-token state satisfy the stage
// interface without boilerplate repetition.
type noopAcceptReset struct{}

func (noopAcceptReset) accept(kernel.Token) {}
func (noopAcceptReset) reset()              {}

type temperatureStage struct {
	noopAcceptReset
	temp float32
}

func (s *temperatureStage) apply(p kernel.SamplingPrimitives, dist kernel.Logits, _ []kernel.Token) {
	p.Temperature(dist, s.temp)
}

type topKStage struct {
	noopAcceptReset
	n int
}

func (s *topKStage) apply(p kernel.SamplingPrimitives, dist kernel.Logits, _ []kernel.Token) {
	p.TopK(dist, s.n)
}

type topPStage struct {
	noopAcceptReset
	p       float32
	minKeep int
}

func (s *topPStage) apply(p kernel.SamplingPrimitives, dist kernel.Logits, _ []kernel.Token) {
	p.TopP(dist, s.p, s.minKeep)
}

type minPStage struct {
	noopAcceptReset
	p       float32
	minKeep int
}

func (s *minPStage) apply(p kernel.SamplingPrimitives, dist kernel.Logits, _ []kernel.Token) {
	p.MinP(dist, s.p, s.minKeep)
}

type typicalPStage struct {
	noopAcceptReset
	p       float32
	minKeep int
}

func (s *typicalPStage) apply(p kernel.SamplingPrimitives, dist kernel.Logits, _ []kernel.Token) {
	p.TypicalP(dist, s.p, s.minKeep)
}

type xtcStage struct {
	noopAcceptReset
	probability, threshold float32
	minKeep                int
	seed                   uint64
}

func (s *xtcStage) apply(p kernel.SamplingPrimitives, dist kernel.Logits, _ []kernel.Token) {
	p.XTC(dist, s.probability, s.threshold, s.minKeep, s.seed)
}

// penaltiesStage and dryStage are stateless across calls (they derive their
// window from the recent-tokens slice the caller threads through Sample),
// but are still distinct stage instances so Reset can clear any future
// cached state without touching unrelated stages.
type penaltiesStage struct {
	noopAcceptReset
	lastN           int
	repeat, freq, present float32
}

func (s *penaltiesStage) apply(p kernel.SamplingPrimitives, dist kernel.Logits, recent []kernel.Token) {
	window := windowTail(recent, s.lastN)
	p.RepetitionPenalties(dist, window, s.repeat, s.freq, s.present, s.lastN)
}

type dryStage struct {
	noopAcceptReset
	multiplier, base float32
	allowedLen, lastN int
}

func (s *dryStage) apply(p kernel.SamplingPrimitives, dist kernel.Logits, recent []kernel.Token) {
	window := windowTail(recent, s.lastN)
	p.DRY(dist, window, s.multiplier, s.base, s.allowedLen, s.lastN)
}

func windowTail(recent []kernel.Token, n int) []kernel.Token {
	if n <= 0 || n >= len(recent) {
		return recent
	}
	return recent[len(recent)-n:]
}

// grammarStage masks logits for tokens that cannot extend the grammar's
// accepted language. It is also tracked separately on Sampler so it can be
// swapped atomically (SwapGrammar) and so Sample can detect dead ends.
type grammarStage struct {
	automaton kernel.GrammarAutomaton
}

func (s *grammarStage) apply(_ kernel.SamplingPrimitives, dist kernel.Logits, _ []kernel.Token) {
	s.automaton.Mask(dist)
}

func (s *grammarStage) accept(token kernel.Token) {
	// Sample() already calls automaton.Accept via the dead-end check; this
	// accept hook exists so Sampler.Accept (called for tokens chosen by a
	// caller that samples outside of Sample, if ever) keeps state in sync.
}

func (s *grammarStage) reset() {
	s.automaton.Reset()
}
