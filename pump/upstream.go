// Package pump implements the two background workers that move audio in
// each direction once a session is established: RunUpstream pulls PCM off
// the microphone and frames it upstream, RunDownstream receives frames and
// dispatches them to the playback buffer or the session's state flags.
//
// Neither function imports package dialog — they accept the minimal
// Sender/Receiver/Flags interfaces they need, which *transport.Transport
// and *dialog.Flags already satisfy structurally. This keeps dialog free
// to import pump without creating a cycle.
package pump

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/room4-2/voicedialog/audio"
	"github.com/room4-2/voicedialog/protocol"
)

// Sender is the subset of *transport.Transport the upstream pump needs.
type Sender interface {
	Send(frame []byte) error
}

// RunUpstream captures microphone audio in CaptureFrameSize blocks and sends
// each as an AudioOnlyClient frame (event=200, raw serialization, no
// sequence) until ctx is cancelled or the device read fails. On every exit
// path, including a failed device open, it sends one FinishSession frame,
// best-effort, before returning; an opened input device is closed first.
func RunUpstream(ctx context.Context, codec *protocol.Codec, sender Sender, sessionID string) error {
	defer func() {
		finish := &protocol.Message{
			Type:      protocol.MessageTypeFullClient,
			Flags:     protocol.NewFlags(protocol.FlagNoSequence, true),
			Event:     protocol.EventFinishSession,
			SessionID: sessionID,
			Payload:   []byte("{}"),
		}
		if frame, encErr := codec.Encode(finish); encErr == nil {
			_ = sender.Send(frame)
		}
	}()

	in, err := audio.OpenInput()
	if err != nil {
		return fmt.Errorf("pump: open input: %w", err)
	}

	buf := make([]int16, audio.CaptureFrameSize)
	pcm := make([]byte, audio.CaptureFrameSize*2)

	var readErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		default:
		}

		if err := in.Read(buf); err != nil {
			readErr = fmt.Errorf("pump: capture read: %w", err)
			break loop
		}

		for i, s := range buf {
			binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
		}

		msg := &protocol.Message{
			Type:      protocol.MessageTypeAudioOnlyClient,
			Flags:     protocol.NewFlags(protocol.FlagNoSequence, true),
			Event:     protocol.EventAudioChunk,
			SessionID: sessionID,
			Payload:   append([]byte(nil), pcm...),
		}
		// Tagged explicitly per frame rather than via a persistent
		// codec-wide mode switch: JSON control frames (handshake,
		// ChatTTSText, FinishConnection) may be encoded concurrently by
		// the session controller while this loop runs, and a shared
		// mutable serialization setting would race between the two.
		frame, err := codec.EncodeWithSerialization(msg, protocol.SerializationRaw)
		if err != nil {
			readErr = fmt.Errorf("pump: encode audio chunk: %w", err)
			break loop
		}
		if err := sender.Send(frame); err != nil {
			readErr = fmt.Errorf("pump: send audio chunk: %w", err)
			break loop
		}
	}

	_ = in.Close()

	return readErr
}
