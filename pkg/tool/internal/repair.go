// Package internal holds the tool package's adapted copy of the teacher's
// pkg/jsonparser FixJSON/ParsePartialJSON, generalized so the chat worker
// can track "still inside an open tool call" against a framing delimiter
// pair rather than assuming the accumulated text is a bare JSON document.
package internal

import "encoding/json"

// FixJSON repairs incomplete JSON by closing whatever braces/brackets/
// strings/literals are still open at the end of jsonText, the same
// stack-based approach as the teacher's jsonparser.FixJSON.
func FixJSON(jsonText string) string {
	if jsonText == "" {
		return ""
	}

	var openStack []rune
	inString := false
	escaped := false
	lastValidIndex := -1

	for i := 0; i < len(jsonText); i++ {
		char := rune(jsonText[i])

		if escaped {
			escaped = false
			lastValidIndex = i
			continue
		}
		if char == '\\' && inString {
			escaped = true
			lastValidIndex = i
			continue
		}
		if char == '"' {
			inString = !inString
			lastValidIndex = i
			continue
		}
		if inString {
			lastValidIndex = i
			continue
		}

		switch char {
		case '{', '[':
			openStack = append(openStack, char)
			lastValidIndex = i
		case '}':
			if len(openStack) > 0 && openStack[len(openStack)-1] == '{' {
				openStack = openStack[:len(openStack)-1]
				lastValidIndex = i
			}
		case ']':
			if len(openStack) > 0 && openStack[len(openStack)-1] == '[' {
				openStack = openStack[:len(openStack)-1]
				lastValidIndex = i
			}
		case ',', ':', ' ', '\t', '\n', '\r', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9',
			'-', '.', 'e', 'E', '+', 't', 'r', 'u', 'f', 'a', 'l', 's', 'n':
			lastValidIndex = i
		}
	}

	if lastValidIndex < 0 {
		return ""
	}

	result := jsonText[:lastValidIndex+1]
	if inString {
		result += "\""
	}
	result = completeLiterals(result)

	for i := len(openStack) - 1; i >= 0; i-- {
		if openStack[i] == '{' {
			result += "}"
		} else {
			result += "]"
		}
	}

	return result
}

func completeLiterals(s string) string {
	i := len(s) - 1
	for i >= 0 && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i--
	}
	if i < 0 {
		return s
	}

	start := i
	for start > 0 && s[start-1] >= 'a' && s[start-1] <= 'z' {
		start--
	}
	if start == i+1 {
		return s
	}

	partial := s[start : i+1]
	for _, lit := range []string{"true", "false", "null"} {
		if len(partial) < len(lit) && lit[:len(partial)] == partial {
			return s[:start] + lit
		}
	}
	return s
}

// ParseState reports how a CallBlock's arguments JSON was recovered.
type ParseState string

const (
	ParseStateUndefinedInput ParseState = "undefined-input"
	ParseStateSuccessful     ParseState = "successful-parse"
	ParseStateRepaired       ParseState = "repaired-parse"
	ParseStateFailed         ParseState = "failed-parse"
)

// ParseResult is ParsePartialJSON's outcome.
type ParseResult struct {
	Value interface{}
	State ParseState
	Error error
}

// ParsePartialJSON tries jsonText as-is, then repairs it with FixJSON and
// retries, mirroring the teacher's two-phase approach.
func ParsePartialJSON(jsonText string) ParseResult {
	if jsonText == "" {
		return ParseResult{State: ParseStateUndefinedInput}
	}

	var value interface{}
	if err := json.Unmarshal([]byte(jsonText), &value); err == nil {
		return ParseResult{Value: value, State: ParseStateSuccessful}
	}

	repaired := FixJSON(jsonText)
	if repaired == "" {
		return ParseResult{State: ParseStateFailed}
	}

	if err := json.Unmarshal([]byte(repaired), &value); err == nil {
		return ParseResult{Value: value, State: ParseStateRepaired}
	}

	return ParseResult{State: ParseStateFailed}
}

// CallBlockState tracks where, within a framed tool call, accumulated
// generation output currently sits — the chat worker's extra bookkeeping
// on top of ParsePartialJSON (spec §4.4's incremental tool-call
// interception needs "still inside an open call" vs "malformed", not just
// a JSON parse outcome).
type CallBlockState struct {
	Open, Close string
}

// Extract finds the most recent call block delimited by Open/Close within
// accumulated text. ok reports whether an opener was seen at all; closed
// reports whether its matching closer has also been seen. body is the text
// between the delimiters (or, if not yet closed, everything accumulated
// after the opener so far).
func (s CallBlockState) Extract(accumulated string) (body string, ok, closed bool) {
	openIdx := lastIndex(accumulated, s.Open)
	if openIdx < 0 {
		return "", false, false
	}
	start := openIdx + len(s.Open)
	rest := accumulated[start:]
	if closeIdx := indexFrom(rest, s.Close); closeIdx >= 0 {
		return rest[:closeIdx], true, true
	}
	return rest, true, false
}

func lastIndex(s, substr string) int {
	if substr == "" {
		return -1
	}
	last := -1
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			last = i
		}
	}
	return last
}

func indexFrom(s, substr string) int {
	if substr == "" {
		return -1
	}
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
