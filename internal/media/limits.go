package media

import (
	"bytes"
	"fmt"
	"io"
)

const (
	// MaxAssetBytes caps a single downloaded resource. Lark message
	// resources are at most 100 MiB.
	MaxAssetBytes int64 = 100 * 1024 * 1024
)

// ReadAllWithLimit buffers reader in memory and fails with ErrAssetTooLarge
// once more than maxBytes have been read.
func ReadAllWithLimit(reader io.Reader, maxBytes int64) ([]byte, error) {
	if reader == nil {
		return nil, fmt.Errorf("reader is required")
	}
	if maxBytes <= 0 {
		return nil, fmt.Errorf("max bytes must be greater than 0")
	}
	var buf bytes.Buffer
	if _, err := copyWithLimit(&buf, reader, maxBytes); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// copyWithLimit streams reader into w and fails once more than maxBytes
// have been read.
func copyWithLimit(w io.Writer, reader io.Reader, maxBytes int64) (int64, error) {
	if maxBytes <= 0 {
		return io.Copy(w, reader)
	}
	n, err := io.Copy(w, io.LimitReader(reader, maxBytes+1))
	if err != nil {
		return n, err
	}
	if n > maxBytes {
		return n, fmt.Errorf("%w: max %d bytes", ErrAssetTooLarge, maxBytes)
	}
	return n, nil
}
