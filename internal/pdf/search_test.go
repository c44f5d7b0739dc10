package pdf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
}

func TestSearch_FindPDFs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "生化", "111年_第一次", "題目1111生化.pdf"), 64)
	writeFile(t, filepath.Join(root, "生化", "111年_第一次", "答案1111生化.pdf"), 64)
	writeFile(t, filepath.Join(root, "生化", "111年_第一次", "readme.txt"), 64)
	writeFile(t, filepath.Join(root, "生化", "empty.pdf"), 0)
	writeFile(t, filepath.Join(root, ".cache", "hidden.pdf"), 64)

	search := NewSearch(1024)
	files, err := search.FindPDFs(root)
	require.NoError(t, err)
	require.Len(t, files, 2)

	// byte order: 答 (U+7B54) sorts before 題 (U+984C)
	assert.Equal(t, "答案1111生化.pdf", files[0].Name)
	assert.Equal(t, "題目1111生化.pdf", files[1].Name)
	for _, f := range files {
		assert.True(t, filepath.IsAbs(f.Path))
		assert.Equal(t, int64(64), f.Size)
		assert.NotEmpty(t, f.ModifiedTime)
	}
}

func TestSearch_FindPDFsErrors(t *testing.T) {
	search := NewSearch(1024)

	_, err := search.FindPDFs("")
	assert.Error(t, err)

	_, err = search.FindPDFs(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestWithinDirectory(t *testing.T) {
	root := t.TempDir()
	inside := filepath.Join(root, "a", "b.pdf")
	writeFile(t, inside, 8)

	tests := []struct {
		name     string
		path     string
		expected bool
	}{
		{name: "file inside", path: inside, expected: true},
		{name: "root itself", path: root, expected: true},
		{name: "dot-dot escape", path: filepath.Join(root, "..", "other.pdf"), expected: false},
		{name: "sibling prefix", path: root + "-evil/x.pdf", expected: false},
		{name: "missing file inside", path: filepath.Join(root, "new.pdf"), expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := WithinDirectory(root, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ok)
		})
	}
}
