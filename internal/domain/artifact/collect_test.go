package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/nbapi/internal/domain/plan"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func writeFile(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, data, 0o644))
}

func TestCollect(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "out/report.html", []byte("<html><body>hi</body></html>"))
	writeFile(t, dir, "out/plots/b.png", pngHeader)
	writeFile(t, dir, "out/plots/nested/a.png", pngHeader)
	writeFile(t, dir, "out/data.csv", []byte("a,b\n1,2\n"))

	got, err := Collect(dir, map[string]plan.Artifact{
		"report": {Path: "out/report.html"},
		"plots":  {Path: "out/**/*.png"},
		"table":  {Path: "out/*.csv", Mimetype: "text/csv; header=present"},
	})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "plots", got[0].Name)
	require.Len(t, got[0].Files, 2)
	assert.Equal(t, "out/plots/b.png", got[0].Files[0].Path)
	assert.Equal(t, "out/plots/nested/a.png", got[0].Files[1].Path)
	assert.Equal(t, "image/png", got[0].Files[0].Mimetype)
	assert.Equal(t, int64(len(pngHeader)), got[0].Files[0].Size)

	assert.Equal(t, "report", got[1].Name)
	assert.Contains(t, got[1].Files[0].Mimetype, "text/html")

	assert.Equal(t, "table", got[2].Name)
	assert.Equal(t, "text/csv; header=present", got[2].Files[0].Mimetype)
}

func TestCollectMissing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "out/a.txt", []byte("x"))

	_, err := Collect(dir, map[string]plan.Artifact{"plot": {Path: "out/*.png"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissing))
	assert.Contains(t, err.Error(), "output plot")
}

func TestCollectDirectoriesDoNotCount(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "out", "x.png"), 0o755))

	_, err := Collect(dir, map[string]plan.Artifact{"plot": {Path: "out/*.png"}})
	assert.True(t, errors.Is(err, ErrMissing))
}

func TestCollectRejectsEscapingPaths(t *testing.T) {
	dir := t.TempDir()
	for _, p := range []string{"../secret.txt", "/etc/passwd", "out/../../x"} {
		_, err := Collect(dir, map[string]plan.Artifact{"x": {Path: p}})
		assert.Error(t, err, p)
		assert.False(t, errors.Is(err, ErrMissing), p)
	}
}

func TestCollectNoOutputs(t *testing.T) {
	got, err := Collect(t.TempDir(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
