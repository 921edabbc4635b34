package plan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueResolve(t *testing.T) {
	input := Input{"name": "'world'", "count": "3"}

	tests := []struct {
		name  string
		value Value
		want  string
	}{
		{name: "constant", value: Constant("'world'"), want: "'world'"},
		{name: "constant wins over input", value: Value{Constant: "1", Input: "count"}, want: "1"},
		{name: "input", value: FromInput("count"), want: "3"},
		{name: "neither", value: Value{}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.value.Resolve(input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValueResolveConstantIgnoresInput(t *testing.T) {
	v := Constant("'world'")
	for _, input := range []Input{nil, {}, {"name": "'other'"}} {
		got, err := v.Resolve(input)
		require.NoError(t, err)
		assert.Equal(t, "'world'", got)
	}
}

func TestValueResolveMissingInput(t *testing.T) {
	_, err := FromInput("absent").Resolve(Input{"name": "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingInput))

	var inputErr *InputError
	require.True(t, errors.As(err, &inputErr))
	assert.Equal(t, "absent", inputErr.Key)
}

func TestValueResolveIsPure(t *testing.T) {
	input := Input{"name": "'world'"}
	v := FromInput("name")

	first, err := v.Resolve(input)
	require.NoError(t, err)
	second, err := v.Resolve(input)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, Input{"name": "'world'"}, input)
}

func TestFlattenInput(t *testing.T) {
	flat := FlattenInput(map[string]map[string]string{
		"greeting": {"name": "world", "lang": "en"},
		"search":   {"lang": "fr", "limit": "5"},
	})

	assert.Equal(t, Input{
		"greeting.name": "world",
		"greeting.lang": "en",
		"search.lang":   "fr",
		"search.limit":  "5",
		"name":          "world",
		"limit":         "5",
	}, flat)
}

func TestInputFromMap(t *testing.T) {
	input, err := InputFromMap(map[string]interface{}{
		"name":  "override",
		"group": map[string]interface{}{"name": "world", "count": "2"},
	})
	require.NoError(t, err)

	assert.Equal(t, "override", input["name"])
	assert.Equal(t, "world", input["group.name"])
	assert.Equal(t, "2", input["count"])
}

func TestInputFromMapRejectsNonStrings(t *testing.T) {
	_, err := InputFromMap(map[string]interface{}{"count": 3.0})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, KindInvalidInput, Kind(err))

	_, err = InputFromMap(map[string]interface{}{"group": map[string]interface{}{"flag": true}})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.NotErrorIs(t, err, ErrMissingInput)
}
