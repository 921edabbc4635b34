package plan

import (
	"fmt"
	"sort"
)

// Input is the flat caller input, keyed by Value.Input references.
type Input map[string]string

// Resolve returns the literal text to substitute for v.
//
// A non-empty constant wins. Otherwise a non-empty input key is looked up in
// input and an absent key is an *InputError. A value with neither resolves to "".
// Resolve never modifies input.
func (v Value) Resolve(input Input) (string, error) {
	if v.Constant != "" {
		return v.Constant, nil
	}
	if v.Input != "" {
		value, ok := input[v.Input]
		if !ok {
			return "", &InputError{Key: v.Input}
		}
		return value, nil
	}
	return "", nil
}

// FlattenInput turns grouped input into the flat shape the executor reads.
//
// Every parameter is reachable as "group.param". A bare "param" key is added
// when exactly one group defines that parameter; ambiguous bare names are left
// out so a lookup fails instead of picking a group at random.
func FlattenInput(groups map[string]map[string]string) Input {
	flat := make(Input)
	owners := make(map[string]int)
	for group, params := range groups {
		for name, value := range params {
			flat[group+"."+name] = value
			owners[name]++
		}
	}
	for _, params := range groups {
		for name, value := range params {
			if owners[name] == 1 {
				flat[name] = value
			}
		}
	}
	return flat
}

// InputFromMap accepts a decoded request body where each entry is either a
// string (a flat key) or an object of strings (a group). Flat keys take
// precedence over bare names derived from groups.
func InputFromMap(raw map[string]interface{}) (Input, error) {
	groups := make(map[string]map[string]string)
	flat := make(Input)

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		switch v := raw[key].(type) {
		case string:
			flat[key] = v
		case map[string]interface{}:
			group := make(map[string]string, len(v))
			for name, inner := range v {
				s, ok := inner.(string)
				if !ok {
					return nil, fmt.Errorf("%w: %s.%s must be a string, got %T", ErrInvalidInput, key, name, inner)
				}
				group[name] = s
			}
			groups[key] = group
		default:
			return nil, fmt.Errorf("%w: %s must be a string or an object of strings, got %T", ErrInvalidInput, key, raw[key])
		}
	}

	merged := FlattenInput(groups)
	for k, v := range flat {
		merged[k] = v
	}
	return merged, nil
}
