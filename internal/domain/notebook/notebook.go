// Package notebook models notebook documents in the nbformat v4 interchange format.
//
// Only the parts this service needs are decoded: the ordered cell list, each
// cell's type, source and metadata, and the kernelspec used to pick an
// interpreter backend.
package notebook

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"golang.org/x/crypto/blake2b"
)

// CellType discriminates notebook cells.
type CellType string

const (
	CellCode     CellType = "code"
	CellMarkdown CellType = "markdown"
	CellRaw      CellType = "raw"
)

var ErrInvalidDocument = errors.New("invalid notebook document")

// Document is a parsed notebook.
type Document struct {
	Cells      []Cell
	Kernelspec Kernelspec
	Format     int
	// Digest is the hex blake2b-256 of the raw payload.
	Digest string
}

// Kernelspec names the interpreter a notebook was written for.
type Kernelspec struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Language    string `json:"language"`
}

// Cell is one notebook cell.
type Cell struct {
	Type     CellType
	Source   string
	Metadata map[string]interface{}
}

// ID returns the stable identifier stored in the cell metadata.
func (c Cell) ID() (string, bool) {
	if c.Metadata == nil {
		return "", false
	}
	id, ok := c.Metadata["id"].(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// IsCode reports whether the cell holds executable code.
func (c Cell) IsCode() bool {
	return c.Type == CellCode
}

// CodeCell is an identified code cell and its position in the document.
type CodeCell struct {
	ID    string
	Index int
	Cell  Cell
}

// CodeCells returns the identified code cells in document order. Non-code cells
// and code cells without a metadata id are left out.
func (d *Document) CodeCells() []CodeCell {
	cells := make([]CodeCell, 0, len(d.Cells))
	for i, cell := range d.Cells {
		if !cell.IsCode() {
			continue
		}
		id, ok := cell.ID()
		if !ok {
			continue
		}
		cells = append(cells, CodeCell{ID: id, Index: i, Cell: cell})
	}
	return cells
}

// Index maps identified code cells by id. A repeated id keeps its last cell.
func (d *Document) Index() map[string]CodeCell {
	index := make(map[string]CodeCell)
	for _, cell := range d.CodeCells() {
		index[cell.ID] = cell
	}
	return index
}

// Language returns the kernelspec language in lower case.
func (d *Document) Language() string {
	return strings.ToLower(d.Kernelspec.Language)
}

type rawDocument struct {
	Cells    []rawCell `json:"cells"`
	Metadata struct {
		Kernelspec   Kernelspec `json:"kernelspec"`
		LanguageInfo struct {
			Name string `json:"name"`
		} `json:"language_info"`
	} `json:"metadata"`
	Format int `json:"nbformat"`
}

type rawCell struct {
	CellType CellType               `json:"cell_type"`
	Source   interface{}            `json:"source"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Parse decodes an nbformat v4 JSON payload.
func Parse(data []byte) (*Document, error) {
	var raw rawDocument
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if raw.Cells == nil {
		return nil, fmt.Errorf("%w: missing cells", ErrInvalidDocument)
	}

	doc := &Document{
		Cells:      make([]Cell, 0, len(raw.Cells)),
		Kernelspec: raw.Metadata.Kernelspec,
		Format:     raw.Format,
		Digest:     Digest(data),
	}
	if doc.Kernelspec.Language == "" {
		doc.Kernelspec.Language = raw.Metadata.LanguageInfo.Name
	}

	for i, rc := range raw.Cells {
		source, err := joinSource(rc.Source)
		if err != nil {
			return nil, fmt.Errorf("%w: cell %d: %v", ErrInvalidDocument, i, err)
		}
		doc.Cells = append(doc.Cells, Cell{
			Type:     rc.CellType,
			Source:   source,
			Metadata: rc.Metadata,
		})
	}
	return doc, nil
}

// joinSource accepts both source encodings allowed by nbformat: a single string
// or a list of line strings that already carry their newlines.
func joinSource(v interface{}) (string, error) {
	switch s := v.(type) {
	case nil:
		return "", nil
	case string:
		return s, nil
	case []interface{}:
		var sb strings.Builder
		for _, line := range s {
			str, ok := line.(string)
			if !ok {
				return "", fmt.Errorf("source line is %T, not string", line)
			}
			sb.WriteString(str)
		}
		return sb.String(), nil
	default:
		return "", fmt.Errorf("source is %T", v)
	}
}

// Digest returns the hex blake2b-256 of data.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}
