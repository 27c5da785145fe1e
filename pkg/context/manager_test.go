package context

import (
	"context"
	"testing"

	"github.com/localrt/llmcore/pkg/conversation"
	"github.com/localrt/llmcore/pkg/kernel/refkernel"
	"github.com/localrt/llmcore/pkg/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepare_PrefillsOnFirstTurn(t *testing.T) {
	k := refkernel.New()
	mgr := NewManager(k, k.Handle(), 8, 2)
	store := conversation.New()
	require.NoError(t, store.Append(message.User("hello")))

	_, err := mgr.Prepare(context.Background(), store, nil)
	require.NoError(t, err)
	assert.Greater(t, k.KVLength(), 0)
}

func TestPrepare_ReconcilesIncrementally(t *testing.T) {
	k := refkernel.New()
	mgr := NewManager(k, k.Handle(), 8, 2)
	store := conversation.New()
	require.NoError(t, store.Append(message.User("hello")))

	_, err := mgr.Prepare(context.Background(), store, nil)
	require.NoError(t, err)
	firstLen := k.KVLength()

	require.NoError(t, store.Append(message.Assistant("hi there")))
	_, err = mgr.Prepare(context.Background(), store, nil)
	require.NoError(t, err)

	assert.Greater(t, k.KVLength(), firstLen, "appending a message should grow, not reset, the KV-cache")
}

func TestPrepare_ShiftsWhenOverBudget(t *testing.T) {
	k := refkernel.New()
	// A 200-token budget fits the system message and a few filler messages,
	// but not all ten, so a shift is forced.
	mgr := NewManager(k, k.Handle(), k.Handle().ContextMax-200, 1)
	store := conversation.New()
	require.NoError(t, store.Append(message.System("keep me")))
	for i := 0; i < 10; i++ {
		require.NoError(t, store.Append(message.User("a fairly long filler message to consume budget")))
	}

	_, err := mgr.Prepare(context.Background(), store, nil)
	require.NoError(t, err)

	active := store.ActiveSnapshot()
	assert.Equal(t, message.RoleSystem, active[0].Role, "system message must survive a shift")
	assert.Less(t, len(active), 11, "some messages must have been evicted from the rendered prefix")

	assert.Len(t, store.Snapshot(), 11, "get_history must still return every appended message, including shifted ones")
}
