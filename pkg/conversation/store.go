// Package conversation holds the ordered message log a chat worker turns
// into rendered, tokenized form for the kernel (spec §3 "conversation
// store", C4). Grounded on the teacher's pkg/provider/types.Message log
// plus pkg/ai.PruneMessages' "keep system, keep recent" shape (generalized
// here into pkg/context's token-budget shift, not duplicated in this
// package).
package conversation

import (
	"context"
	"fmt"
	"sync"

	"github.com/localrt/llmcore/pkg/kernel"
	"github.com/localrt/llmcore/pkg/message"
)

// Store is the append-only (until Reset/Replace) ordered log for one
// conversation. It is owned by a single chat worker goroutine; no internal
// locking is needed for that access pattern, but Store also exposes a read
// path safe to call from other goroutines inspecting worker state.
//
// dropped tracks, parallel to log, which messages context shift has
// removed from the rendered prefix (spec §3 "shift anchors" /
// ContextState). Shift is a rendering-only, one-way concern — get_history
// must still return dropped messages (spec §8 invariant), so Store keeps
// the full log and a bitmap rather than actually deleting entries.
type Store struct {
	mu      sync.RWMutex
	log     []message.Message
	dropped []bool
}

// New returns an empty store.
func New() *Store { return &Store{} }

// Append validates log+msg against message.ValidateLog before committing,
// so an invalid append (a second system message, an orphan tool response)
// never reaches the kernel.
func (s *Store) Append(msg message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := append(append([]message.Message(nil), s.log...), msg)
	if err := message.ValidateLog(candidate); err != nil {
		return err
	}
	s.log = candidate
	s.dropped = append(s.dropped, false)
	return nil
}

// Snapshot returns every message ever appended, including ones context
// shift has dropped from the rendered prefix — this is get_history (spec
// §4.4, §8: "get_history returns all appended messages, including those
// dropped from the rendered prefix by context shift").
func (s *Store) Snapshot() []message.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]message.Message(nil), s.log...)
}

// ActiveSnapshot returns only the messages still part of the rendered
// prefix — what pkg/context renders and what the kernel's KV-cache
// reflects.
func (s *Store) ActiveSnapshot() []message.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]message.Message, 0, len(s.log))
	for i, m := range s.log {
		if !s.dropped[i] {
			out = append(out, m)
		}
	}
	return out
}

// EvictFront marks up to n of the oldest not-yet-dropped, non-system
// messages as dropped from the rendered prefix. Dropping is one-way (spec
// §4.4 "shifts are one-way per turn... re-inclusion is not performed"): a
// message once marked stays marked, it is simply no longer considered
// when computing ActiveSnapshot. The system message at index 0, if any, is
// never marked. Reports how many messages were actually dropped.
func (s *Store) EvictFront(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 {
		return 0
	}
	dropped := 0
	for i := range s.log {
		if dropped >= n {
			break
		}
		if s.log[i].Role == message.RoleSystem || s.dropped[i] {
			continue
		}
		s.dropped[i] = true
		dropped++
	}
	return dropped
}

// Len reports the full history length (get_history's count).
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.log)
}

// ActiveLen reports how many messages remain part of the rendered prefix.
func (s *Store) ActiveLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, d := range s.dropped {
		if !d {
			n++
		}
	}
	return n
}

// TruncateTo discards history back to length n, used by the chat worker to
// roll back an appended user message when a turn fails before anything was
// committed (spec §4.4 "Failure": "conversation log is rolled back to the
// state before the user message was appended").
func (s *Store) TruncateTo(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 0 || n >= len(s.log) {
		return
	}
	s.log = s.log[:n]
	s.dropped = s.dropped[:n]
}

// Replace discards the current log and installs log as the new one, with
// every message starting undropped — the backing operation for
// set_history.
func (s *Store) Replace(log []message.Message) error {
	if err := message.ValidateLog(log); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append([]message.Message(nil), log...)
	s.dropped = make([]bool, len(s.log))
	return nil
}

// Reset empties the log entirely — the backing operation for reset_history.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = nil
	s.dropped = nil
}

// Render tokenizes every message's text form (serializing ToolCall and
// ToolResponse messages the way the template expects) into
// kernel.RenderedMessage values ready for kernel.Model.RenderTemplate.
func Render(ctx context.Context, model kernel.Model, log []message.Message) ([]kernel.RenderedMessage, error) {
	out := make([]kernel.RenderedMessage, len(log))
	for i, msg := range log {
		text, role := serialize(msg)
		toks, err := model.Tokenize(ctx, text, false)
		if err != nil {
			return nil, err
		}
		out[i] = kernel.RenderedMessage{Role: role, Tokens: toks}
	}
	return out, nil
}

// serialize renders a Message's text form for tokenization. ToolCall and
// ToolResponse messages are flattened into a compact representation the
// template's own delimiters (applied by kernel.RenderTemplate) will wrap;
// this function only produces what goes inside those delimiters.
func serialize(msg message.Message) (text, role string) {
	switch msg.Role {
	case message.RoleToolCall:
		return fmt.Sprintf(`{"name":%q,"arguments":%v}`, msg.Name, msg.Arguments), "tool_call"
	case message.RoleToolResponse:
		return msg.Content, "tool_response"
	default:
		return msg.Content, string(msg.Role)
	}
}
