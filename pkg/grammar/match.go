package grammar

// maxDepth bounds the recursion of the match engine. Tool schemas are
// capped at three nesting levels (spec §4.2 schema subset), so the
// synthetic rules quantifiers and groups produce never need anything close
// to this; it exists purely to stop a pathological hand-written grammar
// (e.g. a rule that can derive the empty string and references itself)
// from recursing forever.
const maxDepth = 256

// MatchesPrefix reports whether text could be the start of some complete
// string the grammar derives — the question Mask must answer for every
// candidate token's decoded text.
func (g *Grammar) MatchesPrefix(text string) bool {
	return altIsPrefix(g, g.Rules[g.Root], text, 0)
}

// FullyMatches reports whether text is exactly, completely, a string the
// grammar derives — the question Accept must answer to know whether
// generation may legally stop.
func (g *Grammar) FullyMatches(text string) bool {
	for _, l := range altFullLengths(g, g.Rules[g.Root], text, 0) {
		if l == len(text) {
			return true
		}
	}
	return false
}

func altIsPrefix(g *Grammar, alt Alternation, text string, depth int) bool {
	if depth > maxDepth {
		return false
	}
	for _, seq := range alt {
		if seqIsPrefix(g, seq, text, depth+1) {
			return true
		}
	}
	return false
}

func seqIsPrefix(g *Grammar, seq Sequence, text string, depth int) bool {
	if depth > maxDepth {
		return false
	}
	if len(seq) == 0 {
		return text == ""
	}
	head, rest := seq[0], seq[1:]
	if elemIsPrefix(g, head, text, depth+1) {
		return true
	}
	for _, l := range elemFullLengths(g, head, text, depth+1) {
		if seqIsPrefix(g, rest, text[l:], depth+1) {
			return true
		}
	}
	return false
}

func elemIsPrefix(g *Grammar, e Elem, text string, depth int) bool {
	if depth > maxDepth {
		return false
	}
	switch v := e.(type) {
	case Literal:
		s := string(v)
		if len(text) < len(s) {
			return text == s[:len(text)]
		}
		return false
	case CharClass:
		return text == ""
	case RuleRef:
		return altIsPrefix(g, g.Rules[string(v)], text, depth+1)
	default:
		return false
	}
}

func elemFullLengths(g *Grammar, e Elem, text string, depth int) []int {
	if depth > maxDepth {
		return nil
	}
	switch v := e.(type) {
	case Literal:
		s := string(v)
		if len(text) >= len(s) && text[:len(s)] == s {
			return []int{len(s)}
		}
		return nil
	case CharClass:
		if len(text) == 0 {
			return nil
		}
		r := []rune(text)[0]
		if v.Matches(r) {
			return []int{len(string(r))}
		}
		return nil
	case RuleRef:
		return altFullLengths(g, g.Rules[string(v)], text, depth+1)
	default:
		return nil
	}
}

func altFullLengths(g *Grammar, alt Alternation, text string, depth int) []int {
	if depth > maxDepth {
		return nil
	}
	seen := make(map[int]bool)
	var out []int
	for _, seq := range alt {
		for _, l := range seqFullLengths(g, seq, text, depth+1) {
			if !seen[l] {
				seen[l] = true
				out = append(out, l)
			}
		}
	}
	return out
}

func seqFullLengths(g *Grammar, seq Sequence, text string, depth int) []int {
	if depth > maxDepth {
		return nil
	}
	if len(seq) == 0 {
		return []int{0}
	}
	head, rest := seq[0], seq[1:]
	var out []int
	for _, l1 := range elemFullLengths(g, head, text, depth+1) {
		for _, l2 := range seqFullLengths(g, rest, text[l1:], depth+1) {
			out = append(out, l1+l2)
		}
	}
	return out
}
