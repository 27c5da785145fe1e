// Package grammar implements a GBNF-subset grammar compiler and an
// incremental prefix automaton over it, grounded on spec §4.1/§4.3's
// description of compiling a grammar "into an automaton suitable for
// incremental masking." There is no teacher analog for formal grammar
// matching; the package follows the teacher's general style for small,
// composable text-transform packages (pkg/middleware, pkg/jsonparser) —
// plain functions and structs, no reflection, errors reported as typed
// values rather than panics.
//
// A grammar is a set of named rules, each an alternation of sequences of
// elements (literals, character classes, and rule references). Repetition
// (?, *, +) is desugared into synthetic rules at parse time, so the
// matching engine only ever deals with plain sequences and alternations.
package grammar

// Elem is one item in a rule sequence.
type Elem interface{ isElem() }

// Literal matches an exact string.
type Literal string

// CharRange is an inclusive [Lo, Hi] codepoint range within a CharClass.
type CharRange struct{ Lo, Hi rune }

// CharClass matches exactly one rune falling in (or, if Negate, outside)
// any of Ranges.
type CharClass struct {
	Ranges []CharRange
	Negate bool
}

// RuleRef matches whatever the named rule matches.
type RuleRef string

func (Literal) isElem()   {}
func (CharClass) isElem() {}
func (RuleRef) isElem()   {}

// Sequence is an ordered list of elements that must all match in order.
type Sequence []Elem

// Alternation is an ordered list of sequences; any one matching suffices.
type Alternation []Sequence

// Grammar is a compiled rule set with a distinguished root rule.
type Grammar struct {
	Rules map[string]Alternation
	Root  string
}

// Matches reports whether the CharClass accepts r.
func (c CharClass) Matches(r rune) bool {
	in := false
	for _, rg := range c.Ranges {
		if r >= rg.Lo && r <= rg.Hi {
			in = true
			break
		}
	}
	if c.Negate {
		return !in
	}
	return in
}
