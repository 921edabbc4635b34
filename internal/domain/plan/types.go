package plan

import "sort"

// DataType describes a declared service input. It is opaque to the executor.
type DataType = string

// Value is a parameter value: a literal constant or a reference to caller input.
type Value struct {
	Input    string `json:"input,omitempty" yaml:"input,omitempty" toml:"input,omitempty" cbor:"input,omitempty"`
	Constant string `json:"constant,omitempty" yaml:"constant,omitempty" toml:"constant,omitempty" cbor:"constant,omitempty"`
}

// Constant returns a Value emitting token verbatim.
func Constant(token string) Value {
	return Value{Constant: token}
}

// FromInput returns a Value read from the caller input under key.
func FromInput(key string) Value {
	return Value{Input: key}
}

// Stage is one unit of a plan. It targets a notebook cell, literal source, or both.
type Stage struct {
	Vars   map[string]Value `json:"vars" yaml:"vars" toml:"vars" cbor:"vars"`
	CellID string           `json:"cell_id,omitempty" yaml:"cell_id,omitempty" toml:"cell_id,omitempty" cbor:"cell_id,omitempty"`
	Source string           `json:"source,omitempty" yaml:"source,omitempty" toml:"source,omitempty" cbor:"source,omitempty"`
}

// IsNoop reports whether the stage targets nothing.
func (s Stage) IsNoop() bool {
	return s.CellID == "" && s.Source == ""
}

// Artifact is an expected service output.
type Artifact struct {
	Path     string `json:"path" yaml:"path" toml:"path" cbor:"path"`
	Mimetype string `json:"mimetype,omitempty" yaml:"mimetype,omitempty" toml:"mimetype,omitempty" cbor:"mimetype,omitempty"`
}

// Service is a notebook published as an invocable plan.
type Service struct {
	// URL is fetched again on every execution.
	URL    string              `json:"url" yaml:"url" toml:"url" cbor:"url"`
	Input  map[string]DataType `json:"input" yaml:"input" toml:"input" cbor:"input"`
	Output map[string]Artifact `json:"output" yaml:"output" toml:"output" cbor:"output"`
	Plan   []Stage             `json:"plan" yaml:"plan" toml:"plan" cbor:"plan"`
}

// CellIDs returns the cell ids referenced by the plan, in plan order.
func (s *Service) CellIDs() []string {
	ids := make([]string, 0, len(s.Plan))
	for _, stage := range s.Plan {
		if stage.CellID != "" {
			ids = append(ids, stage.CellID)
		}
	}
	return ids
}

// InputKeys returns the sorted distinct input keys referenced by stage values.
func (s *Service) InputKeys() []string {
	seen := make(map[string]bool)
	var keys []string
	for _, stage := range s.Plan {
		for _, v := range stage.Vars {
			if v.Constant != "" || v.Input == "" || seen[v.Input] {
				continue
			}
			seen[v.Input] = true
			keys = append(keys, v.Input)
		}
	}
	sort.Strings(keys)
	return keys
}
