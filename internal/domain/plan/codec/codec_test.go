package codec

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/nbapi/internal/domain/plan"
)

func sampleService() *plan.Service {
	return &plan.Service{
		URL:   "https://example.com/notebooks/greet.ipynb",
		Input: map[string]plan.DataType{"greeting.name": "string", "count": "integer"},
		Output: map[string]plan.Artifact{
			"report": {Path: "out/report.html", Mimetype: "text/html"},
			"plot":   {Path: "out/*.png"},
		},
		Plan: []plan.Stage{
			{
				CellID: "abc",
				Vars: map[string]plan.Value{
					"name":     plan.FromInput("greeting.name"),
					"model-v2": plan.Constant("'gpt'"),
				},
			},
			{
				Source: "print(name)\nprint(count)",
				Vars:   map[string]plan.Value{"count": plan.FromInput("count")},
			},
			{CellID: "tail", Vars: map[string]plan.Value{}},
		},
	}
}

func TestForPath(t *testing.T) {
	tests := []struct {
		path string
		want Codec
	}{
		{"svc.json", Codec{Format: FormatJSON}},
		{"dir/svc.YAML", Codec{Format: FormatYAML}},
		{"svc.yml", Codec{Format: FormatYAML}},
		{"svc.toml", Codec{Format: FormatTOML}},
		{"svc.cbor", Codec{Format: FormatCBOR}},
		{"svc.json.gz", Codec{Format: FormatJSON, Compressed: true}},
		{"svc.cbor.gz", Codec{Format: FormatCBOR, Compressed: true}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := ForPath(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, path := range []string{"svc.txt", "svc", "svc.gz"} {
		_, err := ForPath(path)
		assert.True(t, errors.Is(err, ErrUnsupportedFormat), path)
	}
}

// discovered mirrors a fresh discovery: no declared inputs or outputs and a
// stage without constants.
func discovered() *plan.Service {
	return &plan.Service{
		URL:    "https://example.com/notebooks/empty.ipynb",
		Input:  map[string]plan.DataType{},
		Output: map[string]plan.Artifact{},
		Plan:   []plan.Stage{{CellID: "only", Vars: map[string]plan.Value{}}},
	}
}

func TestRoundTripKeepsEmptyMaps(t *testing.T) {
	for _, ext := range []string{".json", ".yaml", ".toml", ".cbor", ".toml.gz"} {
		t.Run(ext, func(t *testing.T) {
			c, err := ForPath("svc" + ext)
			require.NoError(t, err)

			want := discovered()
			data, err := c.Marshal(want)
			require.NoError(t, err)
			got, err := c.Unmarshal(data)
			require.NoError(t, err)

			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
			assert.NotNil(t, got.Input)
			assert.NotNil(t, got.Output)
			assert.NotNil(t, got.Plan[0].Vars)
		})
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("yml")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)

	f, err = ParseFormat("CBOR")
	require.NoError(t, err)
	assert.Equal(t, FormatCBOR, f)

	for _, name := range []string{"", "xml", "json.gz"} {
		_, err := ParseFormat(name)
		assert.ErrorIs(t, err, ErrUnsupportedFormat, name)
	}
}

func TestRoundTrip(t *testing.T) {
	for _, ext := range []string{".json", ".yaml", ".toml", ".cbor", ".json.gz", ".yaml.gz", ".toml.gz", ".cbor.gz"} {
		t.Run(ext, func(t *testing.T) {
			c, err := ForPath("svc" + ext)
			require.NoError(t, err)

			want := sampleService()
			var buf bytes.Buffer
			require.NoError(t, c.Encode(&buf, want))

			got, err := c.Decode(&buf)
			require.NoError(t, err)

			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestJSONRoundTripIsExact(t *testing.T) {
	c := Codec{Format: FormatJSON}
	want := sampleService()

	data, err := c.Marshal(want)
	require.NoError(t, err)
	got, err := c.Unmarshal(data)
	require.NoError(t, err)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestJSONFieldNames(t *testing.T) {
	data, err := Codec{Format: FormatJSON}.Marshal(sampleService())
	require.NoError(t, err)

	for _, field := range []string{`"url"`, `"input"`, `"output"`, `"plan"`, `"vars"`, `"cell_id"`, `"source"`, `"constant"`, `"path"`, `"mimetype"`} {
		assert.Contains(t, string(data), field)
	}
}

func TestValidateRejectsUnknownFields(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		data   string
	}{
		{
			name:   "json stage typo",
			format: FormatJSON,
			data:   `{"url": "u", "plan": [{"cellid": "abc"}]}`,
		},
		{
			name:   "yaml value typo",
			format: FormatYAML,
			data:   "url: u\nplan:\n  - cell_id: abc\n    vars:\n      name:\n        inputs: name\n",
		},
		{
			name:   "toml top level typo",
			format: FormatTOML,
			data:   "url = \"u\"\nouputs = {}\n",
		},
		{
			name:   "missing url",
			format: FormatJSON,
			data:   `{"plan": []}`,
		},
		{
			name:   "artifact without path",
			format: FormatJSON,
			data:   `{"url": "u", "output": {"x": {"mimetype": "text/plain"}}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.format, []byte(tt.data))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidPlan))
		})
	}
}

func TestValidateAcceptsHandEditedYAML(t *testing.T) {
	data := `url: https://example.com/nb.ipynb
input:
  name: string
output: {}
plan:
  - cell_id: abc
    vars:
      name:
        input: name
  - source: print(name)
    vars: {}
`
	require.NoError(t, Validate(FormatYAML, []byte(data)))

	svc, err := Codec{Format: FormatYAML}.Unmarshal([]byte(data))
	require.NoError(t, err)
	require.Len(t, svc.Plan, 2)
	assert.Equal(t, plan.FromInput("name"), svc.Plan[0].Vars["name"])
	assert.Equal(t, "print(name)", svc.Plan[1].Source)
}

func TestUnmarshalInvalid(t *testing.T) {
	_, err := Codec{Format: FormatJSON}.Unmarshal([]byte(`{"url": 5}`))
	assert.True(t, errors.Is(err, ErrInvalidPlan))

	_, err = Codec{Format: FormatCBOR}.Unmarshal([]byte{0xff, 0x00})
	assert.True(t, errors.Is(err, ErrInvalidPlan))

	_, err = Codec{Format: FormatJSON, Compressed: true}.Unmarshal([]byte(`{"url": "u"}`))
	assert.Error(t, err)
}

func TestReadWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "svc.toml.gz")
	want := sampleService()

	require.NoError(t, WriteFile(path, want))
	got, err := ReadFile(path)
	require.NoError(t, err)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("file round trip mismatch (-want +got):\n%s", diff)
	}
}
