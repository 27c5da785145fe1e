package embed

import (
	"context"
	"testing"

	"github.com/localrt/llmcore/pkg/kernel/refkernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorker_EncodeReturnsL2NormalizedVector(t *testing.T) {
	k := refkernel.New()
	w, err := New(k, k.Handle())
	require.NoError(t, err)
	defer w.Close()

	vec, err := w.Encode(context.Background(), "the capital of France is Paris")
	require.NoError(t, err)
	require.NotEmpty(t, vec)

	var sumSq float64
	for _, x := range vec {
		sumSq += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, sumSq, 1e-4, "encoded vector should be L2-normalized")
}

// TestCosineSimilarity_SelfIsHighestThanDistinct checks the invariant from
// spec §8: cosine_similarity(encode(x), encode(x)) >= cosine_similarity(encode(x), encode(y))
// for distinct x, y.
func TestCosineSimilarity_SelfIsHighestThanDistinct(t *testing.T) {
	k := refkernel.New()
	w, err := New(k, k.Handle())
	require.NoError(t, err)
	defer w.Close()

	ctx := context.Background()
	x, err := w.Encode(ctx, "the capital of France is Paris")
	require.NoError(t, err)
	y, err := w.Encode(ctx, "the weather in Tokyo is sunny today")
	require.NoError(t, err)

	selfSim := CosineSimilarity(x, x)
	crossSim := CosineSimilarity(x, y)

	assert.GreaterOrEqual(t, selfSim, crossSim)
	assert.InDelta(t, float32(1.0), selfSim, 1e-4)
}

func TestNew_RejectsModelWithoutEmbeddingHead(t *testing.T) {
	k := refkernel.New()
	handle := k.Handle()
	handle.HasEmbeddingHead = false

	_, err := New(k, handle)
	require.Error(t, err)
}
