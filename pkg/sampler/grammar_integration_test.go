package sampler

import (
	"context"
	"testing"

	"github.com/localrt/llmcore/pkg/kernel"
	"github.com/localrt/llmcore/pkg/kernel/refkernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGrammarStage_MasksTokensThatCannotExtendTheGrammar builds a real
// grammar stage over refkernel's vocabulary and checks that Sample only
// ever returns tokens whose piece keeps the accepted text a valid prefix
// of "yes" or "no" — spec §8 scenario 3's grammar-constrained generation,
// reduced to its simplest form.
func TestGrammarStage_MasksTokensThatCannotExtendTheGrammar(t *testing.T) {
	k := refkernel.New()
	pieces, err := k.TokenPieces(context.Background())
	require.NoError(t, err)

	cfg := Config{
		Stages:    []StageConfig{Grammar{GBNF: `root ::= "yes" | "no"`, Root: "root"}},
		Finalizer: Greedy{},
	}
	s, err := Build(k.SamplingPrimitives(), len(pieces), pieces, k.EndOfSequence(), cfg)
	require.NoError(t, err)

	// A uniform distribution: without the grammar stage, greedy would pick
	// token 0 (the first word, "<|system|>" in refkernel's vocabulary).
	// With the grammar active, only tokens whose piece keeps the text a
	// prefix of "yes" or "no" survive masking: the byte tokens 'y' and 'n'
	// (plus pieceless special tokens), of which greedy picks 'n', the lower id.
	logits := make(kernel.Logits, len(pieces))
	for i := range logits {
		logits[i] = 0
	}

	tok, err := s.Sample(context.Background(), logits, nil)
	require.NoError(t, err)

	piece := pieces[tok]
	assert.True(t, piece == "y" || piece == "n", "expected a byte token starting \"yes\" or \"no\", got %q", piece)
}
