package validation

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memFile struct {
	*bytes.Reader
}

func (memFile) Close() error { return nil }

func newMemFile(b []byte) memFile {
	return memFile{bytes.NewReader(b)}
}

func mp4Header(brand string) []byte {
	header := []byte{0x00, 0x00, 0x00, 0x20}
	header = append(header, []byte("ftyp")...)
	header = append(header, []byte(brand)...)
	return append(header, make([]byte, 64)...)
}

func TestIsAllowedExtension(t *testing.T) {
	assert.True(t, IsAllowedExtension("clip.mp4"))
	assert.True(t, IsAllowedExtension("clip.MOV"))
	assert.True(t, IsAllowedExtension("clip.webm"))
	assert.False(t, IsAllowedExtension("clip.avi"))
	assert.False(t, IsAllowedExtension("clip"))
	assert.False(t, IsAllowedExtension(""))
}

func TestDetectVideoType_MP4(t *testing.T) {
	got, err := DetectVideoType(newMemFile(mp4Header("isom")))
	require.NoError(t, err)
	assert.Equal(t, FileTypeMP4, got)
}

func TestDetectVideoType_MOV(t *testing.T) {
	got, err := DetectVideoType(newMemFile(mp4Header("qt  ")))
	require.NoError(t, err)
	assert.Equal(t, FileTypeMOV, got)
}

func TestDetectVideoType_WebM(t *testing.T) {
	header := append([]byte{0x1A, 0x45, 0xDF, 0xA3}, make([]byte, 32)...)
	got, err := DetectVideoType(newMemFile(header))
	require.NoError(t, err)
	assert.Equal(t, FileTypeWebM, got)
}

func TestDetectVideoType_Unknown(t *testing.T) {
	_, err := DetectVideoType(newMemFile([]byte("GIF89a not a video")))
	assert.ErrorIs(t, err, ErrInvalidFileType)
}

func TestDetectVideoType_Empty(t *testing.T) {
	_, err := DetectVideoType(newMemFile(nil))
	assert.ErrorIs(t, err, ErrInvalidFileType)
}

func TestDetectVideoType_RewindsReader(t *testing.T) {
	file := newMemFile(mp4Header("isom"))
	_, err := DetectVideoType(file)
	require.NoError(t, err)

	rest, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Len(t, rest, 76, "sniffing must leave the reader at the start")
}
