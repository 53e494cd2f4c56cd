package attach

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile_BitmapRoundTrip(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	dir := t.TempDir()

	data := bitmap(37, 40)
	require.Len(t, data, 4534)
	in := filepath.Join(dir, "pixel.bmp")
	require.NoError(t, os.WriteFile(in, data, 0o644))
	f, err := os.Open(in)
	require.NoError(t, err)
	defer f.Close()

	src, err := r.Load(ctx, File{File: f}, Metadata{})
	require.NoError(t, err)
	loaded, err := src.Metadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, Digest(data), loaded.Digest())

	uri := fileURI(filepath.Join(dir, "stored", "pixel.bmp"))
	stored, err := r.Store(ctx, src, uri)
	require.NoError(t, err)
	assert.Equal(t, uri, stored.URI())

	reloaded, err := r.Reload(ctx, uri, Metadata{})
	require.NoError(t, err)
	require.True(t, reloaded.Valid(ctx))
	md, err := reloaded.Metadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4534), md.Size())
	assert.Equal(t, loaded.Digest(), md.Digest())
	assert.Equal(t, "image/bmp", md.MimeType())
	assert.Equal(t, "pixel.bmp", md.Filename())

	blob, err := reloaded.Blob(ctx)
	require.NoError(t, err)
	assert.Equal(t, data, blob)
}

func TestFile_StoreNeverOverwrites(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	uri := fileURI(filepath.Join(t.TempDir(), "a", "b", "note.txt"))

	first, err := r.Load(ctx, Bytes("first"), Metadata{})
	require.NoError(t, err)
	_, err = r.Store(ctx, first, uri)
	require.NoError(t, err)

	second, err := r.Load(ctx, Bytes("second"), Metadata{})
	require.NoError(t, err)
	_, err = r.Store(ctx, second, uri)
	assert.ErrorIs(t, err, ErrStorageConflict)

	data, err := os.ReadFile(uri.Path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	fi, err := os.Stat(uri.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), fi.Mode().Perm())
	di, err := os.Stat(filepath.Dir(uri.Path))
	require.NoError(t, err)
	assert.True(t, di.IsDir())
}

func TestFile_ReloadMissing(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Reload(context.Background(), fileURI(filepath.Join(t.TempDir(), "nope.txt")), Metadata{})
	assert.ErrorIs(t, err, ErrMissingSource)

	_, err = r.Reload(context.Background(), mustURI(t, "file://localhost"), Metadata{})
	assert.ErrorIs(t, err, ErrInvalidSource)
}

func TestFile_Destroy(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "gone.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	a, err := r.Reload(ctx, fileURI(path), Metadata{})
	require.NoError(t, err)
	b, err := r.Reload(ctx, fileURI(path), Metadata{})
	require.NoError(t, err)

	require.NoError(t, r.Destroy(ctx, a))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, r.Destroy(ctx, b))
	assert.ErrorIs(t, b.Err(), ErrDestroyed)
}

func TestFile_ReadOnly(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can write any file")
	}
	r := newTestRegistry(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "locked.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o444))

	src, err := r.Reload(ctx, fileURI(path), Metadata{})
	require.NoError(t, err)
	assert.True(t, src.ReadOnly())

	require.NoError(t, os.Chmod(path, 0o644))
	assert.False(t, src.ReadOnly())
}

func TestFile_PublicURI(t *testing.T) {
	public := t.TempDir()
	r := newTestRegistry(t, WithPublicRoot(public))
	ctx := context.Background()

	inside := filepath.Join(public, "images", "logo.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(inside), 0o755))
	require.NoError(t, os.WriteFile(inside, []byte("x"), 0o644))
	src, err := r.Reload(ctx, fileURI(inside), Metadata{})
	require.NoError(t, err)
	require.NotNil(t, src.PublicURI())
	assert.Equal(t, "/images/logo.png", src.PublicURI().String())

	outside := filepath.Join(t.TempDir(), "private.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o644))
	src, err = r.Reload(ctx, fileURI(outside), Metadata{})
	require.NoError(t, err)
	assert.Nil(t, src.PublicURI())
}

func TestLocalAsset_IsImmortal(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	path := filepath.Join(r.assetRoot, "images", "logo.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, encodeImage(t, 4, 4, imaging.PNG), 0o644))

	src, err := r.Load(ctx, Reference{URI: mustURI(t, "images/logo.png")}, Metadata{})
	require.NoError(t, err)
	assert.True(t, src.Valid(ctx))
	assert.True(t, src.Persistent())
	assert.True(t, src.ReadOnly())
	assert.Equal(t, "images/logo.png", src.URI().String())
	require.NotNil(t, src.PublicURI())
	assert.Equal(t, "/images/logo.png", src.PublicURI().String())

	md, err := src.Metadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, "image/png", md.MimeType())

	require.NoError(t, r.Destroy(ctx, src))
	_, err = os.Stat(path)
	assert.NoError(t, err, "asset must survive destroy")
	assert.ErrorIs(t, src.Err(), ErrDestroyed)

	rooted, err := r.Reload(ctx, mustURI(t, "/images/logo.png"), Metadata{})
	require.NoError(t, err)
	assert.True(t, rooted.Valid(ctx))
}

func TestLocalAsset_RejectsEscape(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Reload(context.Background(), mustURI(t, "../secrets.txt"), Metadata{})
	assert.ErrorIs(t, err, ErrInvalidSource)
}

func TestLocalAsset_MissingIsInvalid(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	src, err := r.Reload(ctx, mustURI(t, "images/none.png"), Metadata{})
	require.NoError(t, err)
	assert.False(t, src.Valid(ctx))
	assert.ErrorIs(t, src.Err(), ErrMissingSource)
}

func TestLocalAsset_StoreWithoutScheme(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	src, err := r.Load(ctx, Bytes("local"), Metadata{})
	require.NoError(t, err)

	stored, err := r.Store(ctx, src, mustURI(t, "uploads/local.txt"))
	require.NoError(t, err)
	assert.IsType(t, &LocalAssetSource{}, stored)
	assert.True(t, stored.Valid(ctx))

	data, err := os.ReadFile(filepath.Join(r.assetRoot, "uploads", "local.txt"))
	require.NoError(t, err)
	assert.Equal(t, "local", string(data))

	_, err = r.Store(ctx, src, mustURI(t, "uploads/local.txt"))
	assert.ErrorIs(t, err, ErrStorageConflict)
}

func TestFile_FailedDestroyCanBeRetried(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root can delete from read-only directories")
	}
	r := newTestRegistry(t)
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "locked")
	path := filepath.Join(dir, "doc.txt")

	src, err := r.Load(ctx, Bytes("keep me"), Metadata{})
	require.NoError(t, err)
	stored, err := r.Store(ctx, src, fileURI(path))
	require.NoError(t, err)

	require.NoError(t, os.Chmod(dir, 0o555))
	defer func() { _ = os.Chmod(dir, 0o755) }()
	err = r.Destroy(ctx, stored)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMissingSource)
	assert.FileExists(t, path)

	require.NoError(t, os.Chmod(dir, 0o755))
	require.NoError(t, r.Destroy(ctx, stored))
	assert.NoFileExists(t, path)
	assert.True(t, stored.ReadOnly())
}
