package sampler

import (
	"context"
	"testing"

	"github.com/localrt/llmcore/pkg/kernel"
	"github.com/localrt/llmcore/pkg/kernel/refkernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPrimitives() kernel.SamplingPrimitives {
	return refkernel.New().SamplingPrimitives()
}

func TestBuild_RejectsMissingFinalizer(t *testing.T) {
	_, err := Build(newTestPrimitives(), 16, nil, 0, Config{Stages: []StageConfig{Temperature{Temp: 1}}})
	require.Error(t, err)
}

func TestBuild_RejectsDuplicateGrammarStages(t *testing.T) {
	cfg := Config{
		Stages: []StageConfig{
			Grammar{GBNF: `root ::= "a"`, Root: "root"},
			Grammar{GBNF: `root ::= "b"`, Root: "root"},
		},
		Finalizer: Greedy{},
	}
	_, err := Build(newTestPrimitives(), 16, nil, 0, cfg)
	require.Error(t, err)
}

func TestSample_GreedyIsDeterministic(t *testing.T) {
	cfg := Config{Finalizer: Greedy{}}
	s, err := Build(newTestPrimitives(), 8, nil, 0, cfg)
	require.NoError(t, err)

	logits := kernel.Logits{0, 1, 5, 2, -1, 0, 0, 0}

	first, err := s.Sample(context.Background(), logits, nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		got, err := s.Sample(context.Background(), logits, nil)
		require.NoError(t, err)
		assert.Equal(t, first, got, "greedy sampling over the same logits must always pick the same token")
	}
	assert.EqualValues(t, 2, first)
}

func TestSample_DistWithFixedSeedIsDeterministic(t *testing.T) {
	cfg := Config{Finalizer: Dist{Seed: 42}}
	s1, err := Build(newTestPrimitives(), 8, nil, 0, cfg)
	require.NoError(t, err)
	s2, err := Build(newTestPrimitives(), 8, nil, 0, cfg)
	require.NoError(t, err)

	logits := kernel.Logits{1, 2, 3, 4, 1, 1, 1, 1}

	a, err := s1.Sample(context.Background(), logits, nil)
	require.NoError(t, err)
	b, err := s2.Sample(context.Background(), logits, nil)
	require.NoError(t, err)

	assert.Equal(t, a, b, "same seed over the same logits must reproduce the same draw")
}

func TestReset_RestoresMirostatMuToInitialValue(t *testing.T) {
	cfg := Config{Finalizer: MirostatV2{Tau: 5, Eta: 0.1, Seed: 7}}
	s, err := Build(newTestPrimitives(), 8, nil, 0, cfg)
	require.NoError(t, err)

	logits := kernel.Logits{1, 2, 3, 4, 1, 1, 1, 1}
	_, err = s.Sample(context.Background(), logits, nil)
	require.NoError(t, err)

	muAfterOneStep := s.mu[0]
	s.Reset()
	assert.NotEqual(t, muAfterOneStep, s.mu[0], "sampling should have moved mu away from its initial value")
	assert.Equal(t, s.muInit, s.mu[0], "Reset must restore mu to its initial 2*tau value")
}

func TestSwapGrammar_InstallsAndRemoves(t *testing.T) {
	cfg := Config{Finalizer: Greedy{}}
	s, err := Build(newTestPrimitives(), 8, nil, 0, cfg)
	require.NoError(t, err)
	assert.Nil(t, s.grammar)

	fake := &fakeAutomaton{}
	s.SwapGrammar(fake)
	require.NotNil(t, s.grammar)
	assert.Same(t, fake, s.grammar.automaton)

	s.SwapGrammar(nil)
	assert.Nil(t, s.grammar)
}

type fakeAutomaton struct{ accepted []kernel.Token }

func (f *fakeAutomaton) Mask(dist kernel.Logits)      {}
func (f *fakeAutomaton) Accept(t kernel.Token) bool   { f.accepted = append(f.accepted, t); return true }
func (f *fakeAutomaton) Reset()                       { f.accepted = nil }

func TestAccept_RecordsTokensInRecentWindow(t *testing.T) {
	cfg := Config{
		Stages:    []StageConfig{Penalties{LastN: 4, Repeat: 1.1}},
		Finalizer: Greedy{},
	}
	s, err := Build(newTestPrimitives(), 8, nil, 0, cfg)
	require.NoError(t, err)

	s.Accept(kernel.Token(3))
	s.Accept(kernel.Token(5))
	assert.Equal(t, []kernel.Token{3, 5}, s.recent)
}
