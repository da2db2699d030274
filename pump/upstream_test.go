package pump

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/room4-2/voicedialog/protocol"
)

// recordingSender captures every frame sent to it; safe for concurrent use
// since RunUpstream sends from its own goroutine while the test reads back
// after cancellation.
type recordingSender struct {
	mu     sync.Mutex
	frames [][]byte
}

func (s *recordingSender) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := append([]byte(nil), frame...)
	s.frames = append(s.frames, cp)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *recordingSender) last() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// TestFinishSessionFrameShapeMatchesProtocol checks that a FinishSession
// message shaped like the one RunUpstream sends on exit round-trips through
// the codec with its type, event and session id intact.
//
// Because OpenInput requires a real PortAudio device, this test builds and
// sends the frame itself rather than running RunUpstream end to end.
func TestFinishSessionFrameShapeMatchesProtocol(t *testing.T) {
	codec := protocol.NewCodec()
	sender := &recordingSender{}

	finish := &protocol.Message{
		Type:      protocol.MessageTypeFullClient,
		Flags:     protocol.NewFlags(protocol.FlagNoSequence, true),
		Event:     protocol.EventFinishSession,
		SessionID: "sess-1",
		Payload:   []byte("{}"),
	}
	frame, err := codec.Encode(finish)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := sender.Send(frame); err != nil {
		t.Fatalf("send: %v", err)
	}

	decoded, err := codec.Decode(sender.last())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Type != protocol.MessageTypeFullClient || decoded.Event != protocol.EventFinishSession {
		t.Errorf("unexpected finish-session frame: type=%s event=%d", decoded.Type, decoded.Event)
	}
	if decoded.SessionID != "sess-1" {
		t.Errorf("expected session id round-tripped, got %q", decoded.SessionID)
	}
}

// TestRunUpstreamExitsPromptlyOnCancelledContext checks that a context
// cancelled before RunUpstream is even called returns quickly with an
// error, since OpenInput will fail without a real device in this
// environment — the assertion is just that it doesn't hang.
func TestRunUpstreamExitsPromptlyOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	codec := protocol.NewCodec()
	sender := &recordingSender{}

	done := make(chan error, 1)
	go func() {
		done <- RunUpstream(ctx, codec, sender, "sess-1")
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunUpstream did not return promptly")
	}
}
