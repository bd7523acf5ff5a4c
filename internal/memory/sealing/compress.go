package sealing

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"
)

// compressionMinBytes and compressionRatioCeiling gate when compression
// is worth paying decompression cost for on every read: short content
// rarely compresses well, and content that doesn't shrink below this
// ratio isn't worth the CPU.
const (
	compressionMinBytes     = 500
	compressionRatioCeiling = 0.7
)

// maybeCompress deflates data when it's large enough and the result is
// small enough to be worth it. Returns the (possibly unchanged) bytes and
// whether compression was applied.
func maybeCompress(data []byte) ([]byte, bool, error) {
	if len(data) < compressionMinBytes {
		return data, false, nil
	}

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, false, fmt.Errorf("create flate writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, false, fmt.Errorf("deflate content: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, false, fmt.Errorf("close flate writer: %w", err)
	}

	ratio := float64(buf.Len()) / float64(len(data))
	if ratio >= compressionRatioCeiling {
		return data, false, nil
	}
	return buf.Bytes(), true, nil
}

// decompress inflates data previously compressed by maybeCompress.
func decompress(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("inflate content: %w", err)
	}
	return out, nil
}
