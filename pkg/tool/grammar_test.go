package tool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildGrammar_AcceptsAWellFormedCall(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Tool{
		Name:            "get_weather",
		ParameterStruct: getWeatherArgs{},
	}))

	g, err := r.BuildGrammar(FramingStyle{Open: "<tool_call>", Close: "</tool_call>"}, true)
	require.NoError(t, err)

	call := `<tool_call>{"name":"get_weather","arguments":{"location":"Paris","unit":"celsius"}}</tool_call>`
	assert.True(t, g.FullyMatches(call))

	assert.True(t, g.MatchesPrefix(`<tool_call>{"name":"get_weather"`))
}

func TestBuildGrammar_RejectsUnknownToolName(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Tool{Name: "get_weather", ParameterStruct: getWeatherArgs{}}))

	g, err := r.BuildGrammar(FramingStyle{Open: "<tool_call>", Close: "</tool_call>"}, true)
	require.NoError(t, err)

	assert.False(t, g.MatchesPrefix(`<tool_call>{"name":"not_a_real_tool"`))
}

// TestBuildGrammar_AcceptsArgumentsInEitherKeyOrder checks spec §4.3's
// "fixed-key objects (required keys in any order)" requirement: the
// synthesized grammar must accept a call whether "unit" or "location" comes
// first in the arguments object.
func TestBuildGrammar_AcceptsArgumentsInEitherKeyOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Tool{
		Name:            "get_weather",
		ParameterStruct: getWeatherArgs{},
	}))

	g, err := r.BuildGrammar(FramingStyle{Open: "<tool_call>", Close: "</tool_call>"}, true)
	require.NoError(t, err)

	locationFirst := `<tool_call>{"name":"get_weather","arguments":{"location":"Paris","unit":"celsius"}}</tool_call>`
	unitFirst := `<tool_call>{"name":"get_weather","arguments":{"unit":"celsius","location":"Paris"}}</tool_call>`

	assert.True(t, g.MatchesPrefix(locationFirst))
	assert.True(t, g.MatchesPrefix(unitFirst))
}

func TestBuildGrammar_NoToolsIsAnError(t *testing.T) {
	r := NewRegistry()
	_, err := r.BuildGrammar(FramingStyle{Open: "<tool_call>", Close: "</tool_call>"}, true)
	assert.Error(t, err)
}

func TestBuildGrammar_ProseOnlyBeforeFirstCall(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Tool{Name: "ping", ParameterStruct: struct{}{}}))

	g, err := r.BuildGrammar(FramingStyle{Open: "<tool_call>", Close: "</tool_call>"}, true)
	require.NoError(t, err)

	assert.True(t, g.MatchesPrefix("Sure, let me check that for you. <tool_call>"))
}

func TestBuildGrammar_DisallowProseRejectsLeadingText(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Tool{Name: "ping", ParameterStruct: struct{}{}}))

	g, err := r.BuildGrammar(FramingStyle{Open: "<tool_call>", Close: "</tool_call>"}, false)
	require.NoError(t, err)

	assert.False(t, g.MatchesPrefix("Sure thing <tool_call>"))
	assert.True(t, g.MatchesPrefix("<tool_call>"))
}
