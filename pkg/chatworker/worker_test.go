package chatworker

import (
	"context"
	"testing"
	"time"

	"github.com/localrt/llmcore/pkg/kernel/refkernel"
	"github.com/localrt/llmcore/pkg/sampler"
	"github.com/localrt/llmcore/pkg/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedResponder returns a refkernel.Responder that ignores history and
// simply emits words in order, one per DecodeNext call, then signals stop.
// Each word must tokenize to exactly one refkernel vocabulary entry so the
// reference kernel's one-token-per-call decode loop advances predictably.
func scriptedResponder(words ...string) refkernel.Responder {
	i := 0
	return func(_ string) (string, bool) {
		if i >= len(words) {
			return "", true
		}
		w := words[i]
		i++
		return w, false
	}
}

func drain(t *testing.T, events <-chan Event, timeout time.Duration) []Event {
	t.Helper()
	var out []Event
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
			if ev.Kind == EventDone || ev.Kind == EventError {
				return out
			}
		case <-deadline:
			t.Fatal("timed out waiting for turn to finish")
			return out
		}
	}
}

func greedyConfig() sampler.Config {
	return sampler.Config{Finalizer: sampler.Greedy{}}
}

// TestWorker_SimpleQuestionAnswer mirrors the capital-city-style Q&A
// scenario: a scripted answer is generated token by token and committed
// verbatim once end-of-sequence is reached.
func TestWorker_SimpleQuestionAnswer(t *testing.T) {
	k := refkernel.New().WithResponder(scriptedResponder("Paris"))

	w, err := New(k, k.Handle(), "You answer geography questions concisely.", nil, greedyConfig(), 0, false)
	require.NoError(t, err)
	defer w.Close()

	events, err := w.Ask(context.Background(), "What is the capital of France?")
	require.NoError(t, err)

	got := drain(t, events, 5*time.Second)
	require.NotEmpty(t, got)

	last := got[len(got)-1]
	require.Equal(t, EventDone, last.Kind)
	assert.Equal(t, "Paris", last.Text)

	history := w.GetHistory()
	require.Len(t, history, 3) // system, user, assistant
	assert.Equal(t, "Paris", history[2].Content)
}

// TestWorker_StopWordTruncatesCommittedText checks that a configured stop
// word is stripped from the committed assistant message once its suffix
// appears in the generated stream.
func TestWorker_StopWordTruncatesCommittedText(t *testing.T) {
	k := refkernel.New().WithResponder(scriptedResponder("the", " ", "capital", " ", "is", " ", "Paris", " ", "STOP"))

	w, err := New(k, k.Handle(), "", nil, greedyConfig(), 0, false, WithStopWords("STOP"))
	require.NoError(t, err)
	defer w.Close()

	events, err := w.Ask(context.Background(), "Tell me.")
	require.NoError(t, err)

	got := drain(t, events, 5*time.Second)
	last := got[len(got)-1]
	require.Equal(t, EventDone, last.Kind)
	assert.Equal(t, "the capital is Paris ", last.Text)
}

// TestWorker_MaxTokensStopsGeneration checks the max-tokens stop condition
// fires before end-of-sequence when the script never stops on its own.
func TestWorker_MaxTokensStopsGeneration(t *testing.T) {
	words := make([]string, 0, 50)
	for i := 0; i < 50; i++ {
		words = append(words, "the", " ")
	}
	k := refkernel.New().WithResponder(scriptedResponder(words...))

	w, err := New(k, k.Handle(), "", nil, greedyConfig(), 0, false, WithMaxTokens(4))
	require.NoError(t, err)
	defer w.Close()

	events, err := w.Ask(context.Background(), "go")
	require.NoError(t, err)

	got := drain(t, events, 5*time.Second)
	last := got[len(got)-1]
	require.Equal(t, EventDone, last.Kind)

	tokenCount := 0
	for _, ev := range got {
		if ev.Kind == EventToken {
			tokenCount++
		}
	}
	assert.Equal(t, 4, tokenCount)
}

// TestWorker_ToolCallRoundTrip drives a full tool-call interception cycle:
// the scripted stream emits a framed call, the worker invokes the
// registered callable, commits the call/response pair, and resumes
// generation to a clean end-of-sequence.
func TestWorker_ToolCallRoundTrip(t *testing.T) {
	callArgs := make(chan map[string]interface{}, 1)
	weatherTool := tool.Tool{
		Name:        "weather",
		Description: "looks up the weather",
		ParameterStruct: struct {
			Location string `tool:"location,required"`
		}{},
		Invoke: func(args map[string]interface{}) (string, error) {
			callArgs <- args
			return "sunny", nil
		},
	}

	script := scriptedResponder(
		"<tool_call>", "{", "\"", "name", "\"", ":", "\"", "weather", "\"", ",",
		"\"", "arguments", "\"", ":", "{", "\"", "location", "\"", ":", "\"", "Paris", "\"", "}", "}",
		"</tool_call>",
	)
	k := refkernel.New().WithResponder(script)

	w, err := New(k, k.Handle(), "", []tool.Tool{weatherTool}, greedyConfig(), 0, false)
	require.NoError(t, err)
	defer w.Close()

	events, err := w.Ask(context.Background(), "What's the weather in Paris?")
	require.NoError(t, err)

	got := drain(t, events, 5*time.Second)
	require.NotEmpty(t, got)

	var started, finished bool
	for _, ev := range got {
		switch ev.Kind {
		case EventToolCallStarted:
			started = true
			assert.Equal(t, "weather", ev.ToolName)
		case EventToolCallFinished:
			finished = true
			assert.Equal(t, "weather", ev.ToolName)
			assert.Equal(t, "sunny", ev.ToolResult)
			assert.NoError(t, ev.Err)
		}
	}
	assert.True(t, started, "expected a ToolCallStarted event")
	assert.True(t, finished, "expected a ToolCallFinished event")

	select {
	case args := <-callArgs:
		assert.Equal(t, "Paris", args["location"])
	default:
		t.Fatal("tool callable was never invoked")
	}

	last := got[len(got)-1]
	require.Equal(t, EventDone, last.Kind)

	history := w.GetHistory()
	require.Len(t, history, 4) // user, tool_call, tool_response, assistant
	assert.Equal(t, "weather", history[1].Name)
	assert.Equal(t, "sunny", history[2].Content)
}

// TestWorker_StopGenerationCancelsMidTurn checks that StopGeneration is
// observed at the next per-token yield point without waiting behind the
// turn it interrupts.
func TestWorker_StopGenerationCancelsMidTurn(t *testing.T) {
	words := make([]string, 0, 1000)
	for i := 0; i < 1000; i++ {
		words = append(words, "the")
	}
	k := refkernel.New().WithResponder(scriptedResponder(words...))

	w, err := New(k, k.Handle(), "", nil, greedyConfig(), 0, false, WithMaxTokens(1000))
	require.NoError(t, err)
	defer w.Close()

	events, err := w.Ask(context.Background(), "go")
	require.NoError(t, err)

	// Let a few tokens stream, then request cancellation.
	for i := 0; i < 3; i++ {
		<-events
	}
	w.StopGeneration()

	got := drain(t, events, 5*time.Second)
	require.NotEmpty(t, got)
	last := got[len(got)-1]
	require.Equal(t, EventDone, last.Kind)
	assert.Less(t, len(last.Text), len("the")*1000, "cancellation should have cut generation far short of the script")
}

// TestWorker_ContextShiftAcrossManyTurns runs enough turns to force context
// shift and checks the worker keeps operating without error, while
// get_history keeps growing and still contains every appended message.
func TestWorker_ContextShiftAcrossManyTurns(t *testing.T) {
	k := refkernel.New().WithResponder(scriptedResponder("done"))

	w, err := New(k, k.Handle(), "keep me", nil, greedyConfig(), 200, false,
		WithRetentionTail(2), WithGenerationMargin(8))
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 20; i++ {
		k.WithResponder(scriptedResponder("done"))
		events, err := w.Ask(context.Background(), "a fairly long filler message to consume budget")
		require.NoError(t, err)
		got := drain(t, events, 5*time.Second)
		last := got[len(got)-1]
		require.Equal(t, EventDone, last.Kind, "turn %d failed: %v", i, last.Err)
	}

	history := w.GetHistory()
	assert.Equal(t, 1+20*2, len(history), "every appended message must still be present, shifted or not")
	assert.Equal(t, "keep me", history[0].Content)
}
