package attach

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTempfile_UsesInjectedNamer(t *testing.T) {
	tmpDir := filepath.Join(t.TempDir(), "spool")
	r := newTestRegistry(t,
		WithTempDir(tmpDir),
		WithTempNamer(func(base, ext string) string { return base + "-fixed" + ext }),
	)
	ctx := context.Background()
	src := loadNamed(t, r, []byte("%PDF-1.4"), "report.pdf")

	path, err := src.Tempfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmpDir, "report-fixed.pdf"), path)

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	// The namer collides; the existing file is not replaced.
	_, err = src.Tempfile(ctx)
	assert.Error(t, err)
}

func TestTempfile_NamerCannotEscapeTempDir(t *testing.T) {
	tmpDir := filepath.Join(t.TempDir(), "spool")
	r := newTestRegistry(t,
		WithTempDir(tmpDir),
		WithTempNamer(func(base, ext string) string { return "../../" + base + ext }),
	)
	src := loadNamed(t, r, []byte("x"), "evil.txt")

	path, err := src.Tempfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmpDir, "evil.txt"), path)
}

func TestDefaultTempNamer(t *testing.T) {
	a := DefaultTempNamer("photo", ".jpg")
	b := DefaultTempNamer("photo", ".jpg")

	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "photo-"))
	assert.True(t, strings.HasSuffix(a, ".jpg"))
	assert.Len(t, a, len("photo-")+36+len(".jpg"))
}

func TestTempfile_UnnamedPayload(t *testing.T) {
	r := newTestRegistry(t, WithTempNamer(func(base, ext string) string { return base + ext }))
	src, err := r.Load(context.Background(), Bytes("x"), Metadata{})
	require.NoError(t, err)

	path, err := src.Tempfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "attachment", filepath.Base(path))
}
