// Package refkernel is a deterministic, in-memory stand-in for
// kernel.Model — a word-level tokenizer, literal template concatenation, a
// bag-of-words embedding head and a tiny deterministic scoring function —
// so the rest of this module (sampler, tool, chatworker, context) has
// something real to run its tests against. It is explicitly not an
// inference engine; a real backend (llama.cpp via cgo, an ONNX runtime
// session) implements kernel.Model the way the teacher corpus's
// pkg/providers/ollama implements provider.LanguageModel over HTTP.
package refkernel

import "sort"

// commonWords is the fixed vocabulary's multi-character entries, tried
// longest-match-first during tokenization. It deliberately covers the
// words and punctuation the module's own scenario tests exercise (spec §8
// scenarios 1-6: capital-city Q&A, a stop word, tool-call framing) plus
// the chat-template delimiters this package's RenderTemplate emits.
var commonWords = []string{
	"<|system|>", "<|user|>", "<|assistant|>", "<|tools|>", "<|/tools|>",
	"<tool_call>", "</tool_call>", "<tool_response>", "</tool_response>",
	"the", "The", "a", "an", "of", "is", "are", "was", "were",
	"what", "What", "where", "Where", "who", "Who", "how", "How",
	"capital", "Capital", "city", "country", "largest", "population",
	"France", "Paris", "Germany", "Berlin", "Japan", "Tokyo", "Italy", "Rome",
	"Spain", "Madrid", "name", "arguments", "tool", "result", "weather",
	"temperature", "location", "please", "Please", "thanks", "Thanks",
	"STOP", "stop", "done", "Done", "true", "false", "null",
	"\n", " ", "\t", "{", "}", "[", "]", "\"", ":", ",", ".", "?", "!", "-",
}

// vocabulary assigns stable, deterministic token IDs: commonWords first (in
// descending length order, longest match wins during tokenization, but IDs
// are assigned in the original declared order so they don't shift if the
// match-priority ordering logic changes), then one ID per raw byte
// (fallback for anything not in commonWords), then two special IDs.
type vocabulary struct {
	words       []string // ID -> text, for ID < len(words)
	matchOrder  []int    // indices into words, longest-first, for greedy tokenizing
	byteBase    int      // ID of byte 0x00
	bos, eos    int
	vocabSize   int
}

func newVocabulary() *vocabulary {
	v := &vocabulary{words: append([]string(nil), commonWords...)}
	v.matchOrder = make([]int, len(v.words))
	for i := range v.matchOrder {
		v.matchOrder[i] = i
	}
	sort.SliceStable(v.matchOrder, func(i, j int) bool {
		return len(v.words[v.matchOrder[i]]) > len(v.words[v.matchOrder[j]])
	})
	v.byteBase = len(v.words)
	v.bos = v.byteBase + 256
	v.eos = v.bos + 1
	v.vocabSize = v.eos + 1
	return v
}

func (v *vocabulary) piece(id int) string {
	switch {
	case id >= 0 && id < len(v.words):
		return v.words[id]
	case id >= v.byteBase && id < v.byteBase+256:
		return string([]byte{byte(id - v.byteBase)})
	default:
		return ""
	}
}

// pieces returns every vocabulary entry's decoded text, indexed by ID —
// what grammar.NewTokenAutomaton needs to compile a grammar's token-level
// automaton (spec §4.1).
func (v *vocabulary) pieces() []string {
	out := make([]string, v.vocabSize)
	for i := range out {
		out[i] = v.piece(i)
	}
	return out
}

// tokenize greedily matches the longest commonWords entry at each
// position, falling back to one raw-byte token per unmatched byte, so any
// input string tokenizes and detokenize(tokenize(s)) == s exactly.
func (v *vocabulary) tokenize(text string) []int {
	var out []int
	i := 0
	for i < len(text) {
		matched := -1
		for _, idx := range v.matchOrder {
			w := v.words[idx]
			if w == "" {
				continue
			}
			if len(text)-i >= len(w) && text[i:i+len(w)] == w {
				matched = idx
				break
			}
		}
		if matched >= 0 {
			out = append(out, matched)
			i += len(v.words[matched])
			continue
		}
		out = append(out, v.byteBase+int(text[i]))
		i++
	}
	return out
}

func (v *vocabulary) detokenize(ids []int) string {
	var b []byte
	for _, id := range ids {
		b = append(b, v.piece(id)...)
	}
	return string(b)
}
