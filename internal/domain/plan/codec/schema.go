package codec

import (
	"bytes"
	_ "embed"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed service.schema.json
var schemaJSON []byte

const schemaURL = "schema://service.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = compiler.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Schema returns the embedded JSON schema document for services.
func Schema() []byte {
	return schemaJSON
}

// Validate checks a text-encoded service against the service schema.
func Validate(format Format, data []byte) error {
	var tree interface{}
	var err error
	switch format {
	case FormatJSON:
		err = sonic.Unmarshal(data, &tree)
	case FormatYAML:
		err = yaml.Unmarshal(data, &tree)
	case FormatTOML:
		err = toml.Unmarshal(data, &tree)
	default:
		return fmt.Errorf("%w: %q has no schema check", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrInvalidPlan, format, err)
	}

	s, err := compiled()
	if err != nil {
		return fmt.Errorf("compile service schema: %w", err)
	}
	if err := s.Validate(tree); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	return nil
}
