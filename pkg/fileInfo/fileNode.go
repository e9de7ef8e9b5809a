package fileInfo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rescp17/peerlink/pkg/transfer"
)

const defaultMimeType = "application/octet-stream"

var ErrNotRegularFile = errors.New("only regular files can be shared")

// Describe stats the file at path and builds the metadata record that is
// announced to the relay and sent ahead of the chunks. When withChecksum is
// set the whole file is hashed first.
func Describe(path string, withChecksum bool) (transfer.FileMetadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return transfer.FileMetadata{}, err
	}
	if !info.Mode().IsRegular() {
		return transfer.FileMetadata{}, fmt.Errorf("%w: %s", ErrNotRegularFile, path)
	}

	meta := transfer.FileMetadata{
		Name:     filepath.Base(path),
		Size:     info.Size(),
		MimeType: detectMimeType(path),
	}
	if withChecksum {
		sum, err := calculateSHA256(path)
		if err != nil {
			return transfer.FileMetadata{}, fmt.Errorf("failed to checksum %s: %w", path, err)
		}
		meta.Checksum = sum
	}
	return meta, nil
}

func detectMimeType(path string) string {
	mime, err := mimetype.DetectFile(path)
	if err != nil {
		return defaultMimeType
	}
	return mime.String()
}
