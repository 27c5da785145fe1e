// Package context manages the rendered token prefix's relationship to the
// kernel's KV-cache: reconciling the minimal diff to prefill after a log
// change, and shifting (evicting older messages) when the full log no
// longer fits the configured budget (spec §3 "Context manager", C5).
// Grounded on the teacher's pkg/ai.PruneMessages ("keep system message,
// keep the last N, drop the middle"), generalized from a token-count
// estimate over message text to an exact token count from the kernel's
// own tokenizer, and extended with KV-cache-aware incremental reconciliation
// pkg/ai never needed (it talks to stateless remote APIs).
package context

import (
	"context"

	"github.com/localrt/llmcore/pkg/conversation"
	"github.com/localrt/llmcore/pkg/kernel"
	"github.com/localrt/llmcore/pkg/llmerr"
)

// Manager tracks one chat worker's KV-cache against its conversation
// store. Not safe for concurrent use — it is owned by the single chat
// worker goroutine that also owns the kernel.Model handle (spec §5).
type Manager struct {
	model      kernel.Model
	budget     int // max tokens the rendered prefix may occupy
	retainTail int // minimum number of most-recent messages shift must keep

	lastRendered []kernel.Token
}

// NewManager returns a Manager that keeps the rendered prefix within
// handle.ContextMax-reserveTokens tokens, shifting (but never below
// retainTail trailing messages, plus any leading system message) when it
// doesn't fit.
func NewManager(model kernel.Model, handle kernel.Handle, reserveTokens, retainTail int) *Manager {
	budget := handle.ContextMax - reserveTokens
	if budget <= 0 {
		budget = handle.ContextMax / 2
	}
	if retainTail <= 0 {
		retainTail = 1
	}
	return &Manager{model: model, budget: budget, retainTail: retainTail}
}

// Prepare renders store's current log (shifting older messages out first
// if needed to fit the budget), reconciles the kernel's KV-cache to the
// result via longest-common-prefix truncation, and returns the boundary
// offsets RenderTemplate produced — the shift anchors for interpreting them.
func (m *Manager) Prepare(ctx context.Context, store *conversation.Store, tools []kernel.ToolDescriptor) ([]int, error) {
	tokens, boundaries, err := m.renderWithShift(ctx, store, tools)
	if err != nil {
		return nil, err
	}

	if err := m.reconcile(ctx, tokens); err != nil {
		return nil, err
	}

	m.lastRendered = tokens
	return boundaries, nil
}

// renderWithShift renders the full log, evicting from the front (after any
// system message, never past retainTail trailing messages) until the
// render fits m.budget or no more can be evicted.
func (m *Manager) renderWithShift(ctx context.Context, store *conversation.Store, tools []kernel.ToolDescriptor) ([]kernel.Token, []int, error) {
	for {
		active := store.ActiveSnapshot()
		rendered, err := conversation.Render(ctx, m.model, active)
		if err != nil {
			return nil, nil, err
		}
		tokens, boundaries, err := m.model.RenderTemplate(ctx, rendered, tools)
		if err != nil {
			return nil, nil, err
		}

		if len(tokens) <= m.budget {
			return tokens, boundaries, nil
		}

		evictable := len(active) - m.retainTail
		if len(active) > 0 && active[0].Role == "system" {
			evictable-- // the system message itself never counts as evictable
		}
		if evictable <= 0 {
			return nil, nil, &llmerr.KernelError{Detail: "context budget too small to fit the retained message tail"}
		}

		if store.EvictFront(1) == 0 {
			return nil, nil, &llmerr.KernelError{Detail: "context budget too small to fit the retained message tail"}
		}
	}
}

// reconcile truncates the KV-cache to the longest prefix shared with the
// previously rendered tokens, then prefills whatever tokens follow —
// spec §3's "KV-cache reconciliation," the minimal-diff counterpart to
// re-rendering the whole log on every turn.
func (m *Manager) reconcile(ctx context.Context, tokens []kernel.Token) error {
	lcp := longestCommonPrefix(m.lastRendered, tokens)

	if m.model.KVLength() != lcp {
		if err := m.model.TruncateTo(ctx, lcp); err != nil {
			return err
		}
	}

	if lcp < len(tokens) {
		if err := m.model.Prefill(ctx, tokens[lcp:]); err != nil {
			return err
		}
	}

	return nil
}

func longestCommonPrefix(a, b []kernel.Token) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}
