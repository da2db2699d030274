package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// Playback parameters: 32-bit float PCM, 24kHz, mono, ~21ms blocks.
const (
	PlaybackSampleRate = 24000
	PlaybackFrameSize  = 512
)

// Output is a blocking speaker playback stream.
type Output struct {
	stream *portaudio.Stream
	buf    []float32
}

// OpenOutput opens the default output device at PlaybackSampleRate/PlaybackFrameSize.
func OpenOutput() (*Output, error) {
	buf := make([]float32, PlaybackFrameSize)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(PlaybackSampleRate), PlaybackFrameSize, buf)
	if err != nil {
		return nil, fmt.Errorf("audio: open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("audio: start output stream: %w", err)
	}
	return &Output{stream: stream, buf: buf}, nil
}

// Write blocks until one PlaybackFrameSize block has drained to the
// device. src must have length PlaybackFrameSize.
func (out *Output) Write(src []float32) error {
	copy(out.buf, src)
	if err := out.stream.Write(); err != nil {
		return fmt.Errorf("audio: output write: %w", err)
	}
	return nil
}

// Close stops and releases the output stream.
func (out *Output) Close() error {
	if err := out.stream.Stop(); err != nil {
		_ = out.stream.Close()
		return fmt.Errorf("audio: stop output stream: %w", err)
	}
	return out.stream.Close()
}
