package protocol

import (
	"bytes"
	"compress/gzip"
	"io"
	"testing"
)

func TestGzipCompressorProducesValidGzipStream(t *testing.T) {
	var c GzipCompressor
	compressed, err := c.Compress([]byte("hello world, hello world, hello world"))
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}

	r, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read decompressed: %v", err)
	}
	want := "hello world, hello world, hello world"
	if string(out) != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestCodecAppliesConfiguredCompressor(t *testing.T) {
	codec := NewCodec()
	codec.SetCompression(CompressionGzip, GzipCompressor{})

	msg := &Message{
		Type:      MessageTypeFullClient,
		Flags:     NewFlags(FlagNoSequence, true),
		Event:     EventStartSession,
		SessionID: "sess-1",
		Payload:   []byte(`{"hello":"world"}`),
	}
	frame, err := codec.Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// The codec never auto-decompresses; decode sees the compressed payload
	// bytes as-is, matching the "decoder never invokes it automatically"
	// contract documented on Compressor.
	decoded, err := codec.Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if bytes.Equal(decoded.Payload, msg.Payload) {
		t.Error("expected payload to be compressed on the wire, got identical bytes")
	}

	r, err := gzip.NewReader(bytes.NewReader(decoded.Payload))
	if err != nil {
		t.Fatalf("gzip.NewReader on decoded payload: %v", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read decompressed payload: %v", err)
	}
	if string(out) != string(msg.Payload) {
		t.Errorf("got %q, want %q", out, msg.Payload)
	}
}
