package chatworker

import (
	"context"
	"sync/atomic"

	ctxmgr "github.com/localrt/llmcore/pkg/context"
	"github.com/localrt/llmcore/pkg/conversation"
	"github.com/localrt/llmcore/pkg/kernel"
	"github.com/localrt/llmcore/pkg/llmerr"
	"github.com/localrt/llmcore/pkg/message"
	"github.com/localrt/llmcore/pkg/sampler"
	"github.com/localrt/llmcore/pkg/telemetry"
	"github.com/localrt/llmcore/pkg/tool"
)

// Worker serializes every request from the host onto a single inference
// goroutine (spec §5 "Scheduling model"): it is the sole owner of the
// conversation store, context manager, tool registry and sampler for one
// conversation. Construct with New; call Close to stop the goroutine,
// which otherwise keeps running for as long as the process does.
type Worker struct {
	model  kernel.Model
	handle kernel.Handle

	store  *conversation.Store
	ctxMgr *ctxmgr.Manager
	tools  *tool.Registry
	framing tool.FramingStyle

	samplerCfg sampler.Config
	maxTokens  int
	stopWords  []string

	tracer   telemetry.Settings
	requests chan func()
	closed   chan struct{}

	cancelFlag int32 // atomic; set by StopGeneration, read at the per-token yield point
}

// New constructs a Worker around model/handle (spec §4.4 "new"). The
// worker's own goroutine starts immediately; the system prompt, if
// non-empty, is appended as the conversation's one System message before
// any turn runs.
func New(
	model kernel.Model,
	handle kernel.Handle,
	systemPrompt string,
	tools []tool.Tool,
	samplerCfg sampler.Config,
	contextSize int,
	allowThinking bool,
	opts ...Option,
) (*Worker, error) {
	_ = allowThinking // accepted but unused: neither the worker nor the RenderTemplate call it makes depends on it.

	if contextSize <= 0 {
		contextSize = handle.ContextMax
	}
	if contextSize > handle.ContextMax {
		return nil, &llmerr.InitWorker{Reason: "requested context size exceeds the model's maximum"}
	}

	cfg := DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	registry := tool.NewRegistry()
	for _, t := range tools {
		if err := registry.Register(t); err != nil {
			return nil, err
		}
	}

	w := &Worker{
		model:  model,
		handle: handle,
		store:  conversation.New(),
		ctxMgr: ctxmgr.NewManager(model, handle, handle.ContextMax-contextSize+cfg.GenerationMargin, cfg.RetentionTail),
		tools:  registry,
		framing: tool.FramingStyle{
			Open:  handle.TemplateMetadata.ToolCallOpen,
			Close: handle.TemplateMetadata.ToolCallClose,
		},
		samplerCfg: samplerCfg,
		maxTokens:  cfg.MaxTokens,
		stopWords:  cfg.StopWords,
		requests:   make(chan func(), 16),
		closed:     make(chan struct{}),
	}
	if cfg.Telemetry != nil {
		w.tracer = *cfg.Telemetry
	}

	if systemPrompt != "" {
		if err := w.store.Append(message.System(systemPrompt)); err != nil {
			return nil, &llmerr.InitWorker{Reason: "system prompt rejected: " + err.Error()}
		}
	}

	go w.run()
	return w, nil
}

// run is the worker's single inference goroutine (spec §5: "the worker
// thread is the sole entity that touches kernel state and the
// conversation log"). It processes queued closures — turns and control
// operations alike — strictly in submission order, so a mutation queued
// while a turn is running takes effect only once that turn's closure
// returns, never interrupting it (spec §5 "Ordering guarantees").
func (w *Worker) run() {
	for fn := range w.requests {
		fn()
	}
	close(w.closed)
}

// submit enqueues fn on the worker goroutine and blocks until it has run,
// for control operations that return a synchronous result.
func (w *Worker) submit(fn func()) {
	done := make(chan struct{})
	w.requests <- func() {
		fn()
		close(done)
	}
	<-done
}

// Close stops the worker goroutine once any in-flight and queued requests
// drain. A Worker must not be used after Close returns.
func (w *Worker) Close() {
	close(w.requests)
	<-w.closed
}

// SetSystemPrompt replaces (or clears, if text is empty) the conversation's
// System message. Queued like every other control operation: it takes
// effect before the next turn, never interrupting one in flight.
func (w *Worker) SetSystemPrompt(text string) error {
	var outErr error
	w.submit(func() {
		log := w.store.Snapshot()
		if len(log) > 0 && log[0].Role == message.RoleSystem {
			log = log[1:]
		}
		if text != "" {
			log = append([]message.Message{message.System(text)}, log...)
		}
		outErr = w.store.Replace(log)
	})
	return outErr
}

// SetTools replaces the worker's tool registry.
func (w *Worker) SetTools(tools []tool.Tool) error {
	var outErr error
	w.submit(func() {
		registry := tool.NewRegistry()
		for _, t := range tools {
			if err := registry.Register(t); err != nil {
				outErr = err
				return
			}
		}
		w.tools = registry
	})
	return outErr
}

// SetSampler replaces the sampler configuration used by turns starting
// after this call (spec §3 "Sampler configuration is cloned at the start
// of each turn; mid-turn changes apply only to the next turn").
func (w *Worker) SetSampler(cfg sampler.Config) {
	w.submit(func() { w.samplerCfg = cfg })
}

// SetHistory replaces the conversation log wholesale.
func (w *Worker) SetHistory(log []message.Message) error {
	var outErr error
	w.submit(func() { outErr = w.store.Replace(log) })
	return outErr
}

// GetHistory returns every appended message, including ones context shift
// has dropped from the rendered prefix (spec §8 invariant).
func (w *Worker) GetHistory() []message.Message {
	var out []message.Message
	w.submit(func() { out = w.store.Snapshot() })
	return out
}

// ResetHistory empties the conversation log entirely.
func (w *Worker) ResetHistory() {
	w.submit(func() { w.store.Reset() })
}

// StopGeneration requests cancellation of the currently running turn, if
// any. It does not go through the request queue — spec §5 requires it be
// observable at the very next per-token yield point, which would be
// impossible if it had to wait behind the turn it is meant to interrupt.
// Idempotent and safe to call when no turn is running.
func (w *Worker) StopGeneration() {
	atomic.StoreInt32(&w.cancelFlag, 1)
}

func (w *Worker) cancelRequested() bool {
	return atomic.LoadInt32(&w.cancelFlag) != 0
}

// Ask appends a user message built from promptParts (joined with "\n") and
// runs one full turn (spec §4.4), returning a channel of Events the host
// drains until a terminal EventDone or EventError arrives. The channel is
// closed after the terminal event. ctx governs only how quickly Ask itself
// is accepted onto the worker's queue, not the turn's lifetime — use
// StopGeneration to interrupt a running turn.
func (w *Worker) Ask(ctx context.Context, promptParts ...string) (<-chan Event, error) {
	content := joinParts(promptParts)
	events := make(chan Event, 8)

	req := func() {
		atomic.StoreInt32(&w.cancelFlag, 0)
		w.runTurn(ctx, content, events)
		close(events)
	}

	select {
	case w.requests <- req:
		return events, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func joinParts(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += "\n" + p
	}
	return out
}
