package conversation

import (
	"context"
	"testing"

	"github.com/localrt/llmcore/pkg/kernel/refkernel"
	"github.com/localrt/llmcore/pkg/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_AppendValidatesLog(t *testing.T) {
	s := New()
	require.NoError(t, s.Append(message.System("be concise")))
	require.NoError(t, s.Append(message.User("hello")))

	err := s.Append(message.System("a second system message"))
	assert.Error(t, err, "a second system message must be rejected")
}

func TestStore_AppendRejectsOrphanToolResponse(t *testing.T) {
	s := New()
	err := s.Append(message.ToolResponse("call-1", "get_weather", "sunny"))
	assert.Error(t, err)
}

func TestStore_EvictFrontPreservesSystemMessage(t *testing.T) {
	s := New()
	require.NoError(t, s.Append(message.System("sys")))
	require.NoError(t, s.Append(message.User("one")))
	require.NoError(t, s.Append(message.User("two")))
	require.NoError(t, s.Append(message.User("three")))

	s.EvictFront(2)

	active := s.ActiveSnapshot()
	require.Len(t, active, 2)
	assert.Equal(t, message.RoleSystem, active[0].Role)
	assert.Equal(t, "three", active[1].Content)

	full := s.Snapshot()
	assert.Len(t, full, 4, "get_history must still return dropped messages")
}

func TestRender_TokenizesEachMessage(t *testing.T) {
	k := refkernel.New()
	log := []message.Message{
		message.System("be helpful"),
		message.User("what is the capital of France?"),
	}

	rendered, err := Render(context.Background(), k, log)
	require.NoError(t, err)
	require.Len(t, rendered, 2)
	assert.Equal(t, "system", rendered[0].Role)
	assert.NotEmpty(t, rendered[1].Tokens)
}
