// Package artifact resolves the outputs a service declares once a run succeeds.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gabriel-vasile/mimetype"

	"github.com/GriffinCanCode/nbapi/internal/domain/plan"
)

var ErrMissing = errors.New("declared output not produced")

// File is one file matching an output pattern.
type File struct {
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Mimetype string `json:"mimetype"`
}

// Collected is a resolved output.
type Collected struct {
	Name  string `json:"name"`
	Files []File `json:"files"`
}

// Collect expands every declared output relative to baseDir. Patterns use
// doublestar syntax and must match at least one regular file. Results are
// ordered by output name, files by path.
func Collect(baseDir string, outputs map[string]plan.Artifact) ([]Collected, error) {
	names := make([]string, 0, len(outputs))
	for name := range outputs {
		names = append(names, name)
	}
	sort.Strings(names)

	fsys := os.DirFS(baseDir)
	collected := make([]Collected, 0, len(names))
	for _, name := range names {
		art := outputs[name]
		files, err := resolve(fsys, baseDir, art)
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", name, err)
		}
		collected = append(collected, Collected{Name: name, Files: files})
	}
	return collected, nil
}

func resolve(fsys fs.FS, baseDir string, art plan.Artifact) ([]File, error) {
	pattern := path.Clean(filepath.ToSlash(art.Path))
	if filepath.IsAbs(art.Path) || pattern == ".." || len(pattern) > 2 && pattern[:3] == "../" {
		return nil, fmt.Errorf("path %q must be relative to the working directory", art.Path)
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", art.Path)
	}

	matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	files := make([]File, 0, len(matches))
	for _, m := range matches {
		full := filepath.Join(baseDir, filepath.FromSlash(m))
		info, err := os.Stat(full)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		mt := art.Mimetype
		if mt == "" {
			detected, err := mimetype.DetectFile(full)
			if err != nil {
				return nil, fmt.Errorf("detect %s: %w", m, err)
			}
			mt = detected.String()
		}
		files = append(files, File{Path: m, Size: info.Size(), Mimetype: mt})
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissing, art.Path)
	}
	return files, nil
}
