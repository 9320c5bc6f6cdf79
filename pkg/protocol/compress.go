package protocol

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// DefaultMaxFrameSize caps a frame after inflation.
const DefaultMaxFrameSize int64 = 16 << 20

// IsGzip reports whether data starts with the gzip magic 0x1F 0x8B.
func IsGzip(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b
}

// MaybeInflate is MaybeInflateLimit with DefaultMaxFrameSize.
func MaybeInflate(data []byte) ([]byte, error) {
	return MaybeInflateLimit(data, DefaultMaxFrameSize)
}

// MaybeInflateLimit decompresses gzip data and returns anything else
// unchanged. Output larger than limit bytes is a MalformedFrame; limit <= 0
// means DefaultMaxFrameSize.
func MaybeInflateLimit(data []byte, limit int64) ([]byte, error) {
	if !IsGzip(data) {
		return data, nil
	}
	if limit <= 0 {
		limit = DefaultMaxFrameSize
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.WithMessagef(ErrMalformedFrame, "gzip header: %v", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, limit+1))
	if err != nil {
		return nil, errors.WithMessagef(ErrMalformedFrame, "gzip body: %v", err)
	}
	if int64(len(out)) > limit {
		return nil, errors.WithMessagef(ErrMalformedFrame, "inflated frame exceeds %d bytes", limit)
	}
	return out, nil
}

// Deflate gzip-compresses data. The client never compresses requests; the
// mock gateway and tests use this to build server frames.
func Deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, errors.Wrap(err, "gzip write")
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "gzip close")
	}
	return buf.Bytes(), nil
}
