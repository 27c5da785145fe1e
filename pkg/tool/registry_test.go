package tool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type getWeatherArgs struct {
	Location string `tool:"location,required"`
	Unit     string `tool:"unit,enum=celsius|fahrenheit"`
}

func TestRegistry_RegisterFromStruct(t *testing.T) {
	r := NewRegistry()
	err := r.Register(Tool{
		Name:            "get_weather",
		Description:     "Look up the current weather for a location",
		ParameterStruct: getWeatherArgs{},
	})
	require.NoError(t, err)

	tl, ok := r.Get("get_weather")
	require.True(t, ok)
	assert.Equal(t, "get_weather", tl.Name)
}

func TestRegistry_RegisterDuplicateNameFails(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Tool{Name: "x", ParameterStruct: getWeatherArgs{}}))
	err := r.Register(Tool{Name: "x", ParameterStruct: getWeatherArgs{}})
	assert.Error(t, err)
}

func TestRegistry_RegisterRejectsSchemaTooDeep(t *testing.T) {
	type level3 struct{ V string }
	type level2 struct{ Next level3 }
	type level1 struct{ Next level2 }
	type tooDeep struct{ Next level1 }

	r := NewRegistry()
	err := r.Register(Tool{Name: "too_deep", ParameterStruct: tooDeep{}})
	assert.Error(t, err)
}

func TestRegistry_ValidateArguments(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Tool{
		Name:            "get_weather",
		ParameterStruct: getWeatherArgs{},
	}))

	err := r.ValidateArguments("get_weather", map[string]interface{}{
		"location": "Paris",
		"unit":     "celsius",
	})
	assert.NoError(t, err)

	err = r.ValidateArguments("get_weather", map[string]interface{}{
		"location": "Paris",
		"unit":     "kelvin",
	})
	assert.Error(t, err, "unit outside the declared enum must fail validation")
}

func TestRegistry_ValidateArguments_UnknownTool(t *testing.T) {
	r := NewRegistry()
	err := r.ValidateArguments("nonexistent", map[string]interface{}{})
	assert.Error(t, err)
}

func TestRegistry_Descriptors(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Tool{Name: "a", ParameterStruct: getWeatherArgs{}}))
	require.NoError(t, r.Register(Tool{Name: "b", ParameterStruct: getWeatherArgs{}}))

	descs := r.Descriptors()
	assert.Len(t, descs, 2)
}

// TestRegistry_DescriptorsAreNameSorted checks that Descriptors returns a
// stable, name-sorted order regardless of registration order or the
// underlying map's iteration order — the rendered <|tools|> preamble must
// be identical across repeated calls so the context manager's KV-cache
// reconciliation sees no spurious divergence (spec §5, §8 reproducibility).
func TestRegistry_DescriptorsAreNameSorted(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Tool{Name: "zebra", ParameterStruct: getWeatherArgs{}}))
	require.NoError(t, r.Register(Tool{Name: "apple", ParameterStruct: getWeatherArgs{}}))
	require.NoError(t, r.Register(Tool{Name: "mango", ParameterStruct: getWeatherArgs{}}))

	for i := 0; i < 5; i++ {
		descs := r.Descriptors()
		require.Len(t, descs, 3)
		assert.Equal(t, []string{"apple", "mango", "zebra"},
			[]string{descs[0].Name, descs[1].Name, descs[2].Name})
	}
}
