package rerank

import (
	"context"
	"testing"

	"github.com/localrt/llmcore/pkg/kernel/refkernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorker_RankSortsDescendingByScore(t *testing.T) {
	k := refkernel.New()
	w, err := New(k, k.Handle())
	require.NoError(t, err)
	defer w.Close()

	docs := []string{
		"the weather in Tokyo is sunny",
		"France is a country in Europe",
		"the capital of France is Paris",
	}

	ranked, err := w.Rank(context.Background(), "What is the capital of France?", docs, -1)
	require.NoError(t, err)
	require.Len(t, ranked, len(docs))

	// The document sharing the most vocabulary with the query should score
	// highest under the reference kernel's bag-of-words cosine scoring.
	assert.Equal(t, "the capital of France is Paris", ranked[0])
}

func TestWorker_RankRespectsLimit(t *testing.T) {
	k := refkernel.New()
	w, err := New(k, k.Handle())
	require.NoError(t, err)
	defer w.Close()

	docs := []string{"Paris", "Berlin", "Tokyo", "Rome", "Madrid"}
	ranked, err := w.Rank(context.Background(), "capital city", docs, 2)
	require.NoError(t, err)
	assert.Len(t, ranked, 2)
}

func TestWorker_RankLimitNegativeOneReturnsAll(t *testing.T) {
	k := refkernel.New()
	w, err := New(k, k.Handle())
	require.NoError(t, err)
	defer w.Close()

	docs := []string{"Paris", "Berlin", "Tokyo"}
	ranked, err := w.Rank(context.Background(), "capital city", docs, -1)
	require.NoError(t, err)
	assert.Len(t, ranked, len(docs))
}

func TestNew_RejectsModelWithoutRerankerHead(t *testing.T) {
	k := refkernel.New()
	handle := k.Handle()
	handle.HasRerankerHead = false

	_, err := New(k, handle)
	require.Error(t, err)
}
