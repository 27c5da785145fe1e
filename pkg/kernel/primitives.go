package kernel

// SamplingPrimitives is the set of logit-space transforms the kernel
// supplies so pkg/sampler composes rather than reimplements them (spec §6,
// "Sampling primitives"). Every method mutates dist in place; recent is the
// window of already-accepted tokens a stage needs (repetition/DRY
// penalties).
type SamplingPrimitives interface {
	Temperature(dist Logits, temp float32)
	TopK(dist Logits, k int)
	TopP(dist Logits, p float32, minKeep int)
	MinP(dist Logits, p float32, minKeep int)
	TypicalP(dist Logits, p float32, minKeep int)
	XTC(dist Logits, probability, threshold float32, minKeep int, seed uint64)
	RepetitionPenalties(dist Logits, recent []Token, repeat, freq, present float32, lastN int)
	DRY(dist Logits, recent []Token, multiplier, base float32, allowedLen, lastN int)

	// Softmax normalizes dist into a probability distribution in place.
	Softmax(dist Logits)

	// SampleGreedy returns the index of the highest-scoring entry.
	SampleGreedy(dist Logits) int

	// SampleDist draws an index from dist (already a probability
	// distribution) using the given seed.
	SampleDist(dist Logits, seed uint64) int

	// SampleMirostatV1/V2 implement the Mirostat perplexity-targeting
	// finalizers; mu is the running state the caller threads between calls
	// within a turn.
	SampleMirostatV1(dist Logits, tau, eta float32, m int, mu *float32) int
	SampleMirostatV2(dist Logits, tau, eta float32, mu *float32) int
}

// GrammarAutomaton is a compiled grammar's incremental acceptor: it masks
// logits of tokens that cannot extend any still-acceptable string, and is
// notified of every committed token so its internal state advances.
type GrammarAutomaton interface {
	// Mask sets dist[i] = -Inf for every token that would make the
	// accumulated output unacceptable.
	Mask(dist Logits)

	// Accept advances automaton state after token was selected. It reports
	// whether the token was a legal continuation; false signals a grammar
	// dead end (spec §4.1).
	Accept(token Token) bool

	// Reset returns the automaton to its start state.
	Reset()
}
