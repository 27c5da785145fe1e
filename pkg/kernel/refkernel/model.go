package refkernel

import (
	"context"
	"math"
	"strings"
	"sync"

	"github.com/localrt/llmcore/pkg/kernel"
	"github.com/localrt/llmcore/pkg/llmerr"
)

// Responder lets a test script what the reference kernel "generates" next,
// given the text decoded from the current KV-cache contents. It stands in
// for a real forward pass: DecodeNext calls it once per step and turns its
// answer into a one-hot (or near one-hot) logit distribution.
type Responder func(history string) (next string, stop bool)

// EchoResponder is the default Responder: it always immediately signals
// end of sequence, so a Model built with New alone never generates
// unless the caller installs a real script via WithResponder.
func EchoResponder(_ string) (string, bool) { return "", true }

// Model is the reference kernel. It is safe for use by a single chat
// worker goroutine at a time, matching the single-threaded ownership model
// spec §5 requires of every kernel.Model implementation.
type Model struct {
	vocab     *vocabulary
	kv        []int
	responder Responder
	embedDim  int

	mu sync.Mutex
}

// New builds a reference kernel with the default vocabulary and the
// always-stop Responder. Use WithResponder to script generation.
func New() *Model {
	return &Model{vocab: newVocabulary(), responder: EchoResponder, embedDim: 32}
}

// WithResponder installs the script DecodeNext consults.
func (m *Model) WithResponder(r Responder) *Model {
	m.responder = r
	return m
}

// Handle returns this kernel's immutable metadata, the way a real Load
// implementation would after reading a model file's header.
func (m *Model) Handle() kernel.Handle {
	return kernel.Handle{
		VocabSize:        m.vocab.vocabSize,
		ContextMax:       4096,
		EmbedDim:         m.embedDim,
		HasEmbeddingHead: true,
		HasRerankerHead:  true,
		TemplateMetadata: kernel.TemplateMetadata{
			Name:                "refkernel-chatml",
			ToolCallOpen:        "<tool_call>",
			ToolCallClose:       "</tool_call>",
			AssistantEndOfTurn:  "<|assistant|>",
		},
	}
}

func (m *Model) EndOfSequence() kernel.Token { return kernel.Token(m.vocab.eos) }

func (m *Model) Tokenize(_ context.Context, text string, addBOS bool) ([]kernel.Token, error) {
	ids := m.vocab.tokenize(text)
	toks := make([]kernel.Token, 0, len(ids)+1)
	if addBOS {
		toks = append(toks, kernel.Token(m.vocab.bos))
	}
	for _, id := range ids {
		toks = append(toks, kernel.Token(id))
	}
	return toks, nil
}

func (m *Model) Detokenize(_ context.Context, tokens []kernel.Token) (string, error) {
	ids := make([]int, len(tokens))
	for i, t := range tokens {
		ids[i] = int(t)
	}
	return m.vocab.detokenize(ids), nil
}

func (m *Model) TokenPieces(_ context.Context) ([]string, error) {
	return m.vocab.pieces(), nil
}

// RenderTemplate wraps each message's already-tokenized content with a
// role delimiter pair and concatenates the result, appending an assistant
// generation prompt so the returned stream is ready to Prefill and
// DecodeNext from. Tool descriptors, if any, are rendered as a preamble
// block before the first message.
func (m *Model) RenderTemplate(ctx context.Context, messages []kernel.RenderedMessage, tools []kernel.ToolDescriptor) ([]kernel.Token, []int, error) {
	var out []kernel.Token
	boundaries := make([]int, len(messages))

	if len(tools) > 0 {
		var b strings.Builder
		b.WriteString("<|tools|>\n")
		for _, t := range tools {
			b.WriteString(t.Name)
			b.WriteString(":")
			b.WriteString(t.Description)
			b.WriteString(" ")
			b.WriteString(t.SchemaJSON)
			b.WriteString("\n")
		}
		b.WriteString("<|/tools|>\n")
		toks, err := m.Tokenize(ctx, b.String(), false)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, toks...)
	}

	for i, msg := range messages {
		open, close := roleDelimiters(msg.Role)
		openToks, err := m.Tokenize(ctx, open, false)
		if err != nil {
			return nil, nil, err
		}
		boundaries[i] = len(out)
		out = append(out, openToks...)
		out = append(out, msg.Tokens...)
		closeToks, err := m.Tokenize(ctx, close, false)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, closeToks...)
	}

	promptToks, err := m.Tokenize(ctx, "<|assistant|>\n", false)
	if err != nil {
		return nil, nil, err
	}
	out = append(out, promptToks...)

	return out, boundaries, nil
}

func roleDelimiters(role string) (open, close string) {
	switch role {
	case "system":
		return "<|system|>\n", "\n"
	case "user":
		return "<|user|>\n", "\n"
	case "tool_call":
		return "<|assistant|>\n<tool_call>", "</tool_call>\n"
	case "tool_response":
		return "<tool_response>", "</tool_response>\n"
	default:
		return "<|assistant|>\n", "\n"
	}
}

func (m *Model) Prefill(_ context.Context, tokens []kernel.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tokens {
		m.kv = append(m.kv, int(t))
	}
	return nil
}

func (m *Model) TruncateTo(_ context.Context, length int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if length < 0 || length > len(m.kv) {
		return &llmerr.KernelError{Detail: "truncate length out of range"}
	}
	m.kv = m.kv[:length]
	return nil
}

func (m *Model) KVLength() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.kv)
}

// DecodeNext consults the installed Responder for the next piece of text,
// then places a large positive logit on the token(s) that continue it and
// a near-zero logit everywhere else — a one-hot-ish distribution real
// sampler stages (temperature, top-k, penalties) can still meaningfully
// operate on, rather than a literal one-hot that would make every stage
// but the finalizer a no-op.
func (m *Model) DecodeNext(ctx context.Context) (kernel.Logits, error) {
	m.mu.Lock()
	history := m.vocab.detokenize(m.kv)
	m.mu.Unlock()

	next, stop := m.responder(history)

	dist := make(kernel.Logits, m.vocab.vocabSize)
	for i := range dist {
		dist[i] = -4
	}

	if stop || next == "" {
		dist[m.vocab.eos] = 8
		return dist, nil
	}

	ids := m.vocab.tokenize(next)
	preferred := ids[0]
	dist[preferred] = 8
	return dist, nil
}

func (m *Model) SamplingPrimitives() kernel.SamplingPrimitives { return primitives{} }

// EncodeBatch returns a deterministic bag-of-words embedding: each
// dimension accumulates a hash of one token's text, then the vector is
// L2-normalized. Semantically meaningless, but stable and non-degenerate,
// which is all CosineSimilarity-based tests need.
func (m *Model) EncodeBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = bagOfWordsEmbedding(m.vocab, text, m.embedDim)
	}
	return out, nil
}

// ScorePair returns a deterministic relevance-ish score: the cosine
// similarity of the two texts' bag-of-words embeddings, rescaled to
// resemble a cross-encoder logit.
func (m *Model) ScorePair(ctx context.Context, query, document string) (float32, error) {
	vecs, err := m.EncodeBatch(ctx, []string{query, document})
	if err != nil {
		return 0, err
	}
	sim := cosineSimilarity(vecs[0], vecs[1])
	return sim * 10, nil
}

func bagOfWordsEmbedding(v *vocabulary, text string, dim int) []float32 {
	vec := make([]float32, dim)
	for _, id := range v.tokenize(text) {
		vec[id%dim] += 1
	}
	var norm float32
	for _, x := range vec {
		norm += x * x
	}
	norm = float32(math.Sqrt(float64(norm)))
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}

func cosineSimilarity(a, b []float32) float32 {
	var dot, na, nb float32
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (float32(math.Sqrt(float64(na))) * float32(math.Sqrt(float64(nb))))
}
