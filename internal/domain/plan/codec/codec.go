// Package codec persists services in the interchange formats operators edit.
//
// The format is chosen by file extension: .json, .yaml/.yml, .toml and .cbor,
// each optionally followed by .gz. Text formats are checked against the
// embedded service schema before decoding, so a misspelled field in a
// hand-edited plan is reported instead of silently dropped.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/fxamacker/cbor/v2"
	"github.com/goccy/go-yaml"
	"github.com/klauspost/compress/gzip"
	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/nbapi/internal/domain/plan"
)

// Format is a serialization format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatCBOR Format = "cbor"
)

const gzipExt = ".gz"

var (
	ErrUnsupportedFormat = errors.New("unsupported plan format")
	ErrInvalidPlan       = errors.New("invalid plan")
)

// Codec encodes and decodes services in one format.
type Codec struct {
	Format     Format
	Compressed bool
}

// ForPath picks the codec for a file name.
func ForPath(path string) (Codec, error) {
	name := strings.ToLower(filepath.Base(path))
	var c Codec
	if strings.HasSuffix(name, gzipExt) {
		c.Compressed = true
		name = strings.TrimSuffix(name, gzipExt)
	}

	switch filepath.Ext(name) {
	case ".json":
		c.Format = FormatJSON
	case ".yaml", ".yml":
		c.Format = FormatYAML
	case ".toml":
		c.Format = FormatTOML
	case ".cbor":
		c.Format = FormatCBOR
	default:
		return Codec{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	return c, nil
}

// ParseFormat parses a format name such as "yaml" or "yml".
func ParseFormat(name string) (Format, error) {
	c, err := ForPath("plan." + name)
	if err != nil || c.Compressed {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
	return c.Format, nil
}

// IsPlanFile reports whether path has an extension ForPath accepts.
func IsPlanFile(path string) bool {
	_, err := ForPath(path)
	return err == nil
}

// Ext returns the file extension for the codec, compression included.
func (c Codec) Ext() string {
	ext := "." + string(c.Format)
	if c.Compressed {
		ext += gzipExt
	}
	return ext
}

// Marshal encodes svc.
func (c Codec) Marshal(svc *plan.Service) ([]byte, error) {
	data, err := c.marshal(svc)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.Format, err)
	}
	if !c.Compressed {
		return data, nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	return buf.Bytes(), nil
}

func (c Codec) marshal(svc *plan.Service) ([]byte, error) {
	switch c.Format {
	case FormatJSON:
		return sonic.MarshalIndent(svc, "", "  ")
	case FormatYAML:
		return yaml.Marshal(svc)
	case FormatTOML:
		return toml.Marshal(svc)
	case FormatCBOR:
		em, err := cbor.CoreDetEncOptions().EncMode()
		if err != nil {
			return nil, err
		}
		return em.Marshal(svc)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, c.Format)
	}
}

// Unmarshal decodes a service, validating text formats first.
func (c Codec) Unmarshal(data []byte) (*plan.Service, error) {
	if c.Compressed {
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decompress: %w", err)
		}
		defer zr.Close()
		if data, err = io.ReadAll(zr); err != nil {
			return nil, fmt.Errorf("decompress: %w", err)
		}
	}

	if c.Format != FormatCBOR {
		if err := Validate(c.Format, data); err != nil {
			return nil, err
		}
	}

	var svc plan.Service
	var err error
	switch c.Format {
	case FormatJSON:
		err = sonic.Unmarshal(data, &svc)
	case FormatYAML:
		err = yaml.Unmarshal(data, &svc)
	case FormatTOML:
		err = toml.Unmarshal(data, &svc)
	case FormatCBOR:
		err = cbor.Unmarshal(data, &svc)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, c.Format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidPlan, c.Format, err)
	}
	normalize(&svc)
	return &svc, nil
}

// normalize replaces nil maps with empty ones. TOML decodes an empty table to a
// nil map, the other formats keep it empty.
func normalize(svc *plan.Service) {
	if svc.Input == nil {
		svc.Input = map[string]plan.DataType{}
	}
	if svc.Output == nil {
		svc.Output = map[string]plan.Artifact{}
	}
	for i := range svc.Plan {
		if svc.Plan[i].Vars == nil {
			svc.Plan[i].Vars = map[string]plan.Value{}
		}
	}
}

// Encode writes svc to w.
func (c Codec) Encode(w io.Writer, svc *plan.Service) error {
	data, err := c.Marshal(svc)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Decode reads a service from r.
func (c Codec) Decode(r io.Reader) (*plan.Service, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return c.Unmarshal(data)
}

// ReadFile loads the service stored at path.
func ReadFile(path string) (*plan.Service, error) {
	c, err := ForPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	svc, err := c.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return svc, nil
}

// WriteFile stores svc at path, creating parent directories.
func WriteFile(path string, svc *plan.Service) error {
	c, err := ForPath(path)
	if err != nil {
		return err
	}
	data, err := c.Marshal(svc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
