// Package diagnostic names the shutdown-time PCM dump as its own component,
// mirroring the spec's component table even though the behavior it wraps
// lives in the playback buffer.
package diagnostic

import "github.com/room4-2/voicedialog/playback"

// Sink writes a session's accumulated downstream audio to disk on shutdown.
type Sink struct {
	buf  *playback.Buffer
	path string
}

// NewSink binds a buffer to the path its diagnostic trail will be written
// to when Dump is called.
func NewSink(buf *playback.Buffer, path string) *Sink {
	return &Sink{buf: buf, path: path}
}

// Dump atomically writes the buffer's diagnostic trail to the sink's path.
// A no-op if nothing was buffered since the last flush.
func (s *Sink) Dump() error {
	return s.buf.DumpDiagnostic(s.path)
}
