// Package playback implements the jitter buffer that decouples variable-rate
// downstream audio arrival from the fixed-rate output device: a bounded
// ring of float32 samples plus a parallel diagnostic byte trail, guarded by
// one mutex so any worker may push, drain, or flush concurrently.
package playback

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
)

// Buffer is a bounded FIFO of float32 samples fed by downstream audio
// frames and drained by the playback worker at the device block rate.
type Buffer struct {
	mu         sync.Mutex
	samples    []float32
	diagnostic []byte
	maxSamples int
	suppressed func() bool
}

// New creates a buffer capped at sampleRate*100 samples (100 seconds of
// audio). suppressed, if non-nil, is consulted on every PushBytes call —
// while it returns true, pushes are dropped rather than buffered, mirroring
// the ChatTTSText suppression rule.
func New(sampleRate int, suppressed func() bool) *Buffer {
	return &Buffer{
		maxSamples: sampleRate * 100,
		suppressed: suppressed,
	}
}

// PushBytes interprets data as a contiguous stream of little-endian float32
// samples and appends them, dropping the oldest samples if the bound would
// be exceeded. The raw bytes are also retained for diagnostic dump. A no-op
// while the suppression predicate is true.
func (b *Buffer) PushBytes(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.suppressed != nil && b.suppressed() {
		return
	}

	n := len(data) / 4
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(data[i*4 : i*4+4])
		b.samples = append(b.samples, math.Float32frombits(bits))
	}
	if overflow := len(b.samples) - b.maxSamples; overflow > 0 {
		b.samples = b.samples[overflow:]
	}

	b.diagnostic = append(b.diagnostic, data...)
}

// Drain copies up to len(into) samples into into in FIFO order, zero-fills
// any remainder, and removes the copied samples from the buffer. It
// returns the number of real samples copied.
func (b *Buffer) Drain(into []float32) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := copy(into, b.samples)
	b.samples = b.samples[n:]
	for i := n; i < len(into); i++ {
		into[i] = 0
	}
	return n
}

// Flush empties both the sample sequence and the diagnostic byte sequence.
func (b *Buffer) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = nil
	b.diagnostic = nil
}

// Len returns the number of buffered samples, for tests and diagnostics.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// DumpDiagnostic atomically writes the accumulated diagnostic bytes to path
// as raw PCM. No-op if nothing has been buffered since the last flush.
func (b *Buffer) DumpDiagnostic(path string) error {
	b.mu.Lock()
	data := append([]byte(nil), b.diagnostic...)
	b.mu.Unlock()

	if len(data) == 0 {
		return nil
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".pcm-dump-*")
	if err != nil {
		return fmt.Errorf("playback: create diagnostic temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("playback: write diagnostic data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("playback: close diagnostic temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("playback: rename diagnostic file: %w", err)
	}
	return nil
}
