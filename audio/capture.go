package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// Capture parameters: signed 16-bit PCM, 16kHz, mono, 10ms blocks.
const (
	CaptureSampleRate = 16000
	CaptureFrameSize  = 160
)

// Input is a blocking microphone capture stream.
type Input struct {
	stream *portaudio.Stream
	buf    []int16
}

// OpenInput opens the default input device at CaptureSampleRate/CaptureFrameSize.
func OpenInput() (*Input, error) {
	buf := make([]int16, CaptureFrameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(CaptureSampleRate), CaptureFrameSize, buf)
	if err != nil {
		return nil, fmt.Errorf("audio: open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("audio: start input stream: %w", err)
	}
	return &Input{stream: stream, buf: buf}, nil
}

// Read blocks until one CaptureFrameSize block has been captured and copies
// it into dst, which must have length CaptureFrameSize.
func (in *Input) Read(dst []int16) error {
	if err := in.stream.Read(); err != nil {
		return fmt.Errorf("audio: input read: %w", err)
	}
	copy(dst, in.buf)
	return nil
}

// Close stops and releases the input stream.
func (in *Input) Close() error {
	if err := in.stream.Stop(); err != nil {
		_ = in.stream.Close()
		return fmt.Errorf("audio: stop input stream: %w", err)
	}
	return in.stream.Close()
}
