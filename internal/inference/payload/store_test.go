package payload

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "cat.jpg")
	require.NoError(t, os.WriteFile(src, []byte("jpeg bytes"), 0o644))

	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ref, err := PutFile(context.Background(), store, src)
	require.NoError(t, err)
	assert.Equal(t, ".jpg", filepath.Ext(ref))

	_, err = PutFile(context.Background(), store, filepath.Join(t.TempDir(), "nope.jpg"))
	assert.Error(t, err)
}

func TestContentRef(t *testing.T) {
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592.jpeg", ContentRef([]byte("hello"), ".JPEG"))
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", ContentRef(nil, ""))
}

func TestMIMEType(t *testing.T) {
	assert.Equal(t, "image/png", MIMEType("a.png", nil))
	assert.Equal(t, "image/jpeg", MIMEType("a.jpg", nil))
	assert.Equal(t, "image/png", MIMEType("noext", []byte("\x89PNG\r\n\x1a\n0000")))
}

func TestFindFiles(t *testing.T) {
	tmpDir := t.TempDir()

	//   tmpDir/
	//     a.png
	//     b.jpg
	//     nested/
	//       c.png
	//     dir.png/
	//     link.png -> a.png
	a := filepath.Join(tmpDir, "a.png")
	b := filepath.Join(tmpDir, "b.jpg")
	nested := filepath.Join(tmpDir, "nested")
	c := filepath.Join(nested, "c.png")

	require.NoError(t, os.WriteFile(a, []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("b"), 0o644))
	require.NoError(t, os.Mkdir(nested, 0o755))
	require.NoError(t, os.WriteFile(c, []byte("c"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(tmpDir, "dir.png"), 0o755))
	require.NoError(t, os.Symlink(a, filepath.Join(tmpDir, "link.png")))

	tests := []struct {
		name     string
		patterns []string
		want     []string
	}{
		{"single file", []string{a}, []string{a}},
		{"wildcard skips directories and symlinks", []string{filepath.Join(tmpDir, "*.png")}, []string{a}},
		{"recursive", []string{filepath.Join(tmpDir, "**/*.png")}, []string{a, c}},
		{"multiple patterns", []string{filepath.Join(tmpDir, "*.jpg"), c}, []string{b, c}},
		{"no matches", []string{filepath.Join(tmpDir, "*.gif")}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindFiles(tt.patterns)
			require.NoError(t, err)
			assert.ElementsMatch(t, tt.want, got)
		})
	}
}
