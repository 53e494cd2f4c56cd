package attach

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata_KeepsInsertionOrder(t *testing.T) {
	var md Metadata
	md.Set(KeySize, 10)
	md.Set(KeyFilename, "a.txt")
	md.Set(KeyMimeType, "text/plain")
	md.Set(KeySize, 20) // existing keys keep their position

	assert.Equal(t, []Key{KeySize, KeyFilename, KeyMimeType}, md.Keys())
	assert.Equal(t, int64(20), md.Size())

	md.Delete(KeyFilename)
	assert.Equal(t, []Key{KeySize, KeyMimeType}, md.Keys())
	assert.False(t, md.Has(KeyFilename))
	assert.Equal(t, 2, md.Len())
}

func TestMetadata_SetDefaultAndMerges(t *testing.T) {
	var md Metadata
	assert.True(t, md.SetDefault(KeyFilename, "first.txt"))
	assert.False(t, md.SetDefault(KeyFilename, "second.txt"))
	assert.Equal(t, "first.txt", md.Filename())

	var other Metadata
	other.Set(KeyFilename, "other.txt")
	other.Set(KeyMimeType, "text/csv")

	rev := md.Clone()
	rev.ReverseMerge(other)
	assert.Equal(t, "first.txt", rev.Filename())
	assert.Equal(t, "text/csv", rev.MimeType())

	fwd := md.Clone()
	fwd.Merge(other)
	assert.Equal(t, "other.txt", fwd.Filename())
	assert.Equal(t, []Key{KeyFilename, KeyMimeType}, fwd.Keys())
}

func TestMetadata_CloneIsIndependent(t *testing.T) {
	var md Metadata
	md.Set(KeyDigest, []byte{1, 2, 3})
	c := md.Clone()
	c.Digest()[0] = 9
	c.Set(KeyFilename, "x")

	assert.Equal(t, []byte{1, 2, 3}, md.Digest())
	assert.False(t, md.Has(KeyFilename))
}

func TestMetadata_NormalizesIntegers(t *testing.T) {
	var md Metadata
	md.Set(KeySize, 42)
	md.Set(KeyWidth, int64(640))
	md.Set(KeyHeight, uint32(480))

	assert.Equal(t, int64(42), md.Size())
	assert.Equal(t, 640, md.Width())
	assert.Equal(t, 480, md.Height())
}

func TestMetadata_ZeroValueGetters(t *testing.T) {
	var md Metadata
	assert.Empty(t, md.MimeType())
	assert.Zero(t, md.Size())
	assert.Nil(t, md.Digest())
	assert.True(t, md.CapturedAt().IsZero())
	assert.Empty(t, md.Keys())
	_, ok := md.Get(KeyWidth)
	assert.False(t, ok)
}

func TestMetadata_JSON(t *testing.T) {
	captured := time.Date(2021, 7, 4, 18, 15, 0, 0, time.UTC)
	var md Metadata
	md.Set(KeyFilename, "pic.jpg")
	md.Set(KeyMimeType, "image/jpeg")
	md.Set(KeySize, 4534)
	md.Set(KeyDigest, []byte{0xde, 0xad, 0xbe, 0xef})
	md.Set(KeyWidth, 320)
	md.Set(KeyCapturedAt, captured)
	md.Set(Key("album"), "holidays")

	data, err := json.Marshal(md)
	require.NoError(t, err)
	assert.Equal(t,
		`{"filename":"pic.jpg","mimeType":"image/jpeg","size":4534,"digest":"3q2+7w==","width":320,"capturedAt":"2021-07-04T18:15:00Z","album":"holidays"}`,
		string(data))

	var back Metadata
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, md.Keys(), back.Keys())
	assert.Equal(t, int64(4534), back.Size())
	assert.Equal(t, 320, back.Width())
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, back.Digest())
	assert.True(t, captured.Equal(back.CapturedAt()))
	v, _ := back.Get("album")
	assert.Equal(t, "holidays", v)

	assert.Error(t, json.Unmarshal([]byte(`["not","an","object"]`), &back))
}
