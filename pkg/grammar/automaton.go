package grammar

import (
	"math"

	"github.com/localrt/llmcore/pkg/kernel"
)

// tokenAutomaton adapts a Grammar's string-prefix semantics to
// kernel.GrammarAutomaton's token-space Mask/Accept/Reset contract. It
// holds the vocabulary's decoded pieces once (computed by the kernel at
// compile time) and the text accepted so far this turn.
type tokenAutomaton struct {
	grammar *Grammar
	pieces  []string
	eos     kernel.Token
	accum   string
}

// NewTokenAutomaton builds a kernel.GrammarAutomaton over g, given the
// decoded text for every vocabulary entry (pieces[token] == the text
// committing that token would append) and the kernel's end-of-sequence
// token.
func NewTokenAutomaton(g *Grammar, pieces []string, eos kernel.Token) kernel.GrammarAutomaton {
	return &tokenAutomaton{grammar: g, pieces: pieces, eos: eos}
}

func (a *tokenAutomaton) Mask(dist kernel.Logits) {
	for id := range dist {
		tok := kernel.Token(id)
		if tok == a.eos {
			if !a.grammar.FullyMatches(a.accum) {
				dist[id] = float32(math.Inf(-1))
			}
			continue
		}
		piece := ""
		if int(tok) < len(a.pieces) {
			piece = a.pieces[tok]
		}
		if !a.grammar.MatchesPrefix(a.accum + piece) {
			dist[id] = float32(math.Inf(-1))
		}
	}
}

func (a *tokenAutomaton) Accept(token kernel.Token) bool {
	if token == a.eos {
		return a.grammar.FullyMatches(a.accum)
	}
	piece := ""
	if int(token) < len(a.pieces) {
		piece = a.pieces[token]
	}
	next := a.accum + piece
	if !a.grammar.MatchesPrefix(next) {
		return false
	}
	a.accum = next
	return true
}

func (a *tokenAutomaton) Reset() {
	a.accum = ""
}
