// Package audio wraps the native PortAudio bindings as two independent
// blocking PCM streams: microphone capture (int16) and speaker playback
// (float32). Device errors are surfaced to the caller without retrying.
package audio

import "github.com/gordonklaus/portaudio"

// Initialize must be called once before opening any stream, and Terminate
// once on process shutdown, per PortAudio's own lifecycle contract.
func Initialize() error { return portaudio.Initialize() }

// Terminate releases PortAudio's global resources.
func Terminate() error { return portaudio.Terminate() }
