package validation

import (
	"bytes"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
)

type FileType string

const (
	FileTypeMP4  FileType = "mp4"
	FileTypeMOV  FileType = "mov"
	FileTypeWebM FileType = "webm"
)

var allowedExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".webm": true,
}

// ebmlHeader opens every WebM/Matroska file.
var ebmlHeader = []byte{0x1A, 0x45, 0xDF, 0xA3}

// IsAllowedExtension reports whether the filename carries a supported video
// extension.
func IsAllowedExtension(filename string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// DetectVideoType sniffs the container from the file header and rewinds the
// reader.
func DetectVideoType(file multipart.File) (FileType, error) {
	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	header := buffer[:n]

	if bytes.HasPrefix(header, ebmlHeader) {
		return FileTypeWebM, nil
	}

	// ISO BMFF: size (4 bytes) then "ftyp" and a major brand.
	if len(header) >= 12 && bytes.Equal(header[4:8], []byte("ftyp")) {
		if bytes.Equal(header[8:12], []byte("qt  ")) {
			return FileTypeMOV, nil
		}
		return FileTypeMP4, nil
	}

	return "", ErrInvalidFileType
}
