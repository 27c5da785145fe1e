// Package kernel defines the narrow contract llmcore requires from an
// inference backend: tokenization, template rendering, KV-cache management,
// per-stage logit transforms, and the embedding/rerank heads (spec §6). The
// kernel itself — a cgo binding over a quantized-weights forward pass, the
// way the teacher corpus's pkg/providers/ollama binds a running Ollama
// server over HTTP — is out of scope for this module; Model is only the
// seam a real backend implements and refkernel is a deterministic
// in-memory stand-in used by this module's own tests.
package kernel

import "context"

// Token is an opaque vocabulary entry ID assigned by the kernel's tokenizer.
type Token int32

// Handle is immutable metadata about a loaded model, returned once by Load
// and shared (reference-counted) by every worker built on top of it.
type Handle struct {
	VocabSize         int
	ContextMax        int
	EmbedDim          int
	HasEmbeddingHead  bool
	HasRerankerHead   bool
	TemplateMetadata  TemplateMetadata
}

// TemplateMetadata describes the model-specific chat template: the framing
// delimiters tool-call grammar synthesis must emit (spec §4.3) and whether
// the model exposes a distinct end-of-turn token from plain end-of-sequence.
type TemplateMetadata struct {
	// Name identifies the template family (e.g. "chatml", "llama3").
	Name string

	// ToolCallOpen/ToolCallClose bracket a tool-call JSON object in the
	// model's own output convention (e.g. "<tool_call>" / "</tool_call>").
	ToolCallOpen  string
	ToolCallClose string

	// AssistantEndOfTurn is the literal token text the template renderer
	// emits to close an assistant turn. The chat worker does not watch for
	// it while decoding: a turn ends on EndOfSequence, max tokens, a stop
	// word or cancellation.
	AssistantEndOfTurn string
}

// RenderedMessage is one message as the template renderer sees it — the
// core never parses template output itself, it only needs where each
// message began so context-shift can find safe drop points (spec §3,
// "shift anchors").
type RenderedMessage struct {
	Role     string
	Tokens   []Token
	// BoundaryOffset is the token index, within the full rendered prefix,
	// where this message's tokens begin.
	BoundaryOffset int
}

// ToolDescriptor is how a registered tool is presented to the template
// renderer when synthesizing the assistant turn's framing.
type ToolDescriptor struct {
	Name        string
	Description string
	// SchemaJSON is the tool's parameter_schema, already serialized to the
	// JSON-schema subset text the template expects to embed.
	SchemaJSON string
}

// Model is the kernel contract. A real backend (llama.cpp via cgo, an ONNX
// session, a batched remote inference server) implements this; llmcore only
// calls into it.
type Model interface {
	// Tokenize converts text to tokens, optionally prefixing the
	// beginning-of-sequence token.
	Tokenize(ctx context.Context, text string, addBOS bool) ([]Token, error)

	// Detokenize renders tokens back to text. Implementations must support
	// incremental calls (a growing token slice produces a growing, non
	// retokenized prefix) so the chat worker can decode one token at a time.
	Detokenize(ctx context.Context, tokens []Token) (string, error)

	// RenderTemplate renders an ordered conversation plus tool descriptors
	// into the model's chat-template text, already tokenized, with message
	// boundary offsets (spec §3 "rendered form").
	RenderTemplate(ctx context.Context, messages []RenderedMessage, tools []ToolDescriptor) ([]Token, []int, error)

	// Prefill feeds tokens into the KV-cache starting at the cache's
	// current length.
	Prefill(ctx context.Context, tokens []Token) error

	// TruncateTo discards KV-cache entries beyond the given length.
	TruncateTo(ctx context.Context, length int) error

	// DecodeNext returns the logit distribution for the position
	// immediately following the current KV-cache contents.
	DecodeNext(ctx context.Context) (Logits, error)

	// KVLength reports the kernel's current KV-cache length in tokens.
	KVLength() int

	// SamplingPrimitives exposes the per-stage logit transforms the sampler
	// pipeline composes (spec §4.1) — the kernel owns the math, the sampler
	// owns ordering and configuration.
	SamplingPrimitives() SamplingPrimitives

	// EncodeBatch runs the embedding head over a batch of texts.
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)

	// ScorePair runs the cross-encoder reranker head over a (query, document) pair.
	ScorePair(ctx context.Context, query, document string) (float32, error)

	// TokenPieces returns the decoded text for every vocabulary entry, index
	// by Token. Grammar compilation (spec §4.1) calls this once per build to
	// know, for every candidate token, what text committing it would append.
	TokenPieces(ctx context.Context) ([]string, error)

	// EndOfSequence is the token that ends generation outright (distinct
	// from TemplateMetadata.AssistantEndOfTurn, which is template-specific
	// framing text rather than the kernel's own stop token).
	EndOfSequence() Token
}

// Logits is a dense vector of unnormalized scores, one per vocabulary entry.
type Logits []float32
