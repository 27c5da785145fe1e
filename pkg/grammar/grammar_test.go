package grammar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_LiteralSequence(t *testing.T) {
	g, err := Compile(`root ::= "hello" " " "world"`, "root")
	require.NoError(t, err)

	assert.True(t, g.MatchesPrefix(""))
	assert.True(t, g.MatchesPrefix("hel"))
	assert.True(t, g.MatchesPrefix("hello world"))
	assert.True(t, g.FullyMatches("hello world"))
	assert.False(t, g.MatchesPrefix("goodbye"))
	assert.False(t, g.FullyMatches("hello"))
}

func TestCompile_Alternation(t *testing.T) {
	g, err := Compile(`root ::= "cat" | "dog"`, "root")
	require.NoError(t, err)

	assert.True(t, g.FullyMatches("cat"))
	assert.True(t, g.FullyMatches("dog"))
	assert.False(t, g.FullyMatches("bird"))
	assert.True(t, g.MatchesPrefix("ca"))
	assert.True(t, g.MatchesPrefix("do"))
	assert.False(t, g.MatchesPrefix("bi"))
}

func TestCompile_CharClassAndQuantifier(t *testing.T) {
	g, err := Compile(`root ::= [a-z]+`, "root")
	require.NoError(t, err)

	assert.True(t, g.MatchesPrefix("abc"))
	assert.True(t, g.FullyMatches("abc"))
	assert.False(t, g.MatchesPrefix("123"))
	// zero-length input isn't a valid *complete* derivation of a + quantifier
	assert.False(t, g.FullyMatches(""))
}

func TestCompile_OptionalAndStar(t *testing.T) {
	g, err := Compile(`root ::= "a" "b"? "c"*`, "root")
	require.NoError(t, err)

	assert.True(t, g.FullyMatches("a"))
	assert.True(t, g.FullyMatches("ab"))
	assert.True(t, g.FullyMatches("accc"))
	assert.True(t, g.FullyMatches("abccc"))
	assert.False(t, g.FullyMatches("b"))
}

func TestCompile_RuleReferenceAndGrouping(t *testing.T) {
	g, err := Compile(`
root   ::= "{" pair "}"
pair   ::= "\"k\"" ":" value
value  ::= "1" | "2" | "3"
`, "root")
	require.NoError(t, err)

	assert.True(t, g.FullyMatches(`{"k":2}`))
	assert.False(t, g.FullyMatches(`{"k":9}`))
	assert.True(t, g.MatchesPrefix(`{"k":`))
}

func TestCompile_MissingRoot(t *testing.T) {
	_, err := Compile(`foo ::= "x"`, "root")
	assert.Error(t, err)
}

func TestCompile_ToolCallFraming(t *testing.T) {
	// Mirrors the style of grammar spec §4.3 expects for a single-tool JSON
	// call: {"name":"get_weather","arguments":{...}}, arguments opaque here.
	g, err := Compile(`
root      ::= "{" ws "\"name\"" ws ":" ws name ws "}"
name      ::= "\"get_weather\"" | "\"get_time\""
ws        ::= [ \t\n]*
`, "root")
	require.NoError(t, err)

	assert.True(t, g.FullyMatches(`{"name":"get_weather"}`))
	assert.True(t, g.MatchesPrefix(`{"name":"get_w`))
	assert.False(t, g.MatchesPrefix(`{"name":"unknown_tool"`))
}
