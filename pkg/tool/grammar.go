package tool

import (
	"fmt"
	"sort"
	"strings"

	"github.com/localrt/llmcore/pkg/grammar"
)

// FramingStyle carries the model-specific delimiter pair a tool call must
// be wrapped in, taken from kernel.Handle.TemplateMetadata (spec §4.3).
type FramingStyle struct {
	Open  string
	Close string
}

// BuildGrammar synthesizes the GBNF-style grammar spec §4.3 describes: free
// prose (anything up to the framing opener) interleaved with zero or more
// call blocks, each a `{"name": ..., "arguments": ...}` JSON object whose
// shape is constrained per-tool by that tool's schema, terminated by EOS.
// If allowProse is false, the root only ever accepts call blocks.
func (r *Registry) BuildGrammar(framing FramingStyle, allowProse bool) (*grammar.Grammar, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.byName) == 0 {
		return nil, fmt.Errorf("tool: cannot build a grammar with no registered tools")
	}

	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names) // deterministic rule text across calls

	var b strings.Builder
	b.WriteString("call-block ::= \"")
	b.WriteString(gbnfEscape(framing.Open))
	b.WriteString("\" ws \"{\" ws \"\\\"name\\\"\" ws \":\" ws ( ")
	for i, name := range names {
		if i > 0 {
			b.WriteString(" | ")
		}
		b.WriteString(fmt.Sprintf("call-%s", sanitizeRuleName(name)))
	}
	b.WriteString(" ) ws \"}\" ws \"")
	b.WriteString(gbnfEscape(framing.Close))
	b.WriteString("\"\n")

	for _, name := range names {
		c := r.byName[name]
		b.WriteString(fmt.Sprintf(
			"call-%s ::= \"\\\"%s\\\"\" ws \",\" ws \"\\\"arguments\\\"\" ws \":\" ws %s\n",
			sanitizeRuleName(name), jsonEscapeForLiteral(name), c.gbnfRule,
		))
	}

	b.WriteString(`ws ::= [ \t\n]*` + "\n")
	b.WriteString(jsonValueRules())

	if allowProse {
		b.WriteString("root ::= prose* ( call-block prose* )*\n")
		b.WriteString(fmt.Sprintf("prose ::= [^%s]\n", gbnfEscape(firstRune(framing.Open))))
	} else {
		b.WriteString("root ::= ( call-block )+\n")
	}

	return grammar.Compile(b.String(), "root")
}

func firstRune(s string) string {
	if s == "" {
		return "\\n"
	}
	r := []rune(s)[0]
	return string(r)
}

func sanitizeRuleName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func gbnfEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

func jsonEscapeForLiteral(s string) string {
	return strings.ReplaceAll(s, `"`, `\\\"`)
}

// schemaToGBNF converts a tool's JSON-schema-subset document into a GBNF
// rule body referencing the shared json-string/json-number/etc. rules
// jsonValueRules defines, recursively for object/array types up to the
// same nesting limit schema.go enforces.
func schemaToGBNF(doc map[string]interface{}) string {
	t, _ := doc["type"].(string)
	switch t {
	case "string":
		if enum, ok := doc["enum"].([]interface{}); ok && len(enum) > 0 {
			parts := make([]string, len(enum))
			for i, v := range enum {
				parts[i] = fmt.Sprintf("\"\\\"%v\\\"\"", v)
			}
			return "( " + strings.Join(parts, " | ") + " )"
		}
		return "json-string"
	case "integer":
		return "json-integer"
	case "number":
		return "json-number"
	case "boolean":
		return "json-bool"
	case "array":
		items, _ := doc["items"].(map[string]interface{})
		elem := schemaToGBNF(items)
		return fmt.Sprintf(`( "[" ws ( %s ( ws "," ws %s )* )? ws "]" )`, elem, elem)
	case "object":
		props, _ := doc["properties"].(map[string]interface{})
		if len(props) == 0 {
			if ap, ok := doc["additionalProperties"].(map[string]interface{}); ok {
				v := schemaToGBNF(ap)
				return fmt.Sprintf(`( "{" ws ( "\"" json-string-inner "\"" ws ":" ws %s ( ws "," ws "\"" json-string-inner "\"" ws ":" ws %s )* )? ws "}" )`, v, v)
			}
			return `( "{" ws "}" )`
		}
		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		sort.Strings(names) // fixes iteration order before permuting, for deterministic rule text
		fields := make(map[string]string, len(names))
		for _, name := range names {
			child, _ := props[name].(map[string]interface{})
			fields[name] = fmt.Sprintf(`"\"%s\"" ws ":" ws %s`, name, schemaToGBNF(child))
		}

		// spec §4.3 requires fixed-key objects accept required keys "in any
		// order" — emit one alternative per key permutation rather than a
		// single fixed sequence.
		var alternatives []string
		for _, order := range permutations(names) {
			parts := make([]string, len(order))
			for i, name := range order {
				parts[i] = fields[name]
			}
			alternatives = append(alternatives, `"{" ws `+strings.Join(parts, ` ws "," ws `)+` ws "}"`)
		}
		return "( " + strings.Join(alternatives, " | ") + " )"
	default:
		return "json-string"
	}
}

// permutations returns every ordering of names. Used only for the small,
// fixed-key object case the supported schema subset allows (spec §4.2's
// ≤3-level nesting keeps real tool parameter counts small; a tool with
// enough top-level fields to make this factorial blow up is already well
// outside what the subset is meant for).
func permutations(names []string) [][]string {
	if len(names) == 0 {
		return [][]string{{}}
	}
	var out [][]string
	for i, name := range names {
		rest := make([]string, 0, len(names)-1)
		rest = append(rest, names[:i]...)
		rest = append(rest, names[i+1:]...)
		for _, tail := range permutations(rest) {
			perm := append([]string{name}, tail...)
			out = append(out, perm)
		}
	}
	return out
}

// jsonValueRules are the shared leaf rules every per-tool argument grammar
// composes: a conservative ASCII-subset JSON string, an integer, a
// floating-point number, and a boolean.
func jsonValueRules() string {
	return `json-string ::= "\"" json-string-inner "\""
json-string-inner ::= ( [^"\\] | "\\" . )*
json-integer ::= "-"? [0-9]+
json-number ::= "-"? [0-9]+ ( "." [0-9]+ )?
json-bool ::= "true" | "false"
`
}
