package dialog

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/room4-2/voicedialog/protocol"
)

// fakeConn is an in-memory Conn: frames written via Send are decoded and
// matched against a scripted responder, which enqueues the next frame(s)
// for Receive to return. This lets controller tests exercise the handshake
// and shutdown sequences without a real WebSocket.
type fakeConn struct {
	mu     sync.Mutex
	codec  *protocol.Codec
	inbox  [][]byte
	sent   []*protocol.Message
	onSend func(msg *protocol.Message, fc *fakeConn)
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{codec: protocol.NewCodec()}
}

func (f *fakeConn) Send(frame []byte) error {
	msg, err := f.codec.Decode(frame)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	onSend := f.onSend
	f.mu.Unlock()
	if onSend != nil {
		onSend(msg, f)
	}
	return nil
}

func (f *fakeConn) Receive() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inbox) == 0 {
		return nil, errors.New("fakeConn: no queued frame")
	}
	frame := f.inbox[0]
	f.inbox = f.inbox[1:]
	return frame, nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) enqueue(t *testing.T, msg *protocol.Message) {
	t.Helper()
	frame, err := f.codec.Encode(msg)
	if err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	f.mu.Lock()
	f.inbox = append(f.inbox, frame)
	f.mu.Unlock()
}

func TestHandshakeParsesConnectAndDialogIDs(t *testing.T) {
	conn := newFakeConn()

	conn.onSend = func(msg *protocol.Message, fc *fakeConn) {
		switch msg.Event {
		case protocol.EventStartConnection:
			fc.enqueue(t, &protocol.Message{
				Type:      protocol.MessageTypeFullServer,
				Flags:     protocol.NewFlags(protocol.FlagNoSequence, true),
				Event:     protocol.EventConnectionStarted,
				ConnectID: "connect-abc",
				Payload:   []byte("{}"),
			})
		case protocol.EventStartSession:
			body, _ := json.Marshal(map[string]string{"dialog_id": "dialog-xyz"})
			fc.enqueue(t, &protocol.Message{
				Type:      protocol.MessageTypeFullServer,
				Flags:     protocol.NewFlags(protocol.FlagNoSequence, true),
				Event:     protocol.EventSessionStarted,
				SessionID: msg.SessionID,
				Payload:   body,
			})
		}
	}

	ctrl := NewController(conn, DefaultConfig(), nil, 1)
	ctrl.SetSessionID("session-1")

	if err := ctrl.handshake(context.Background()); err != nil {
		t.Fatalf("handshake: %v", err)
	}

	if ctrl.connectID != "connect-abc" {
		t.Errorf("expected connectID %q, got %q", "connect-abc", ctrl.connectID)
	}
	if ctrl.flags.DialogID() != "dialog-xyz" {
		t.Errorf("expected dialogID %q, got %q", "dialog-xyz", ctrl.flags.DialogID())
	}

	var sawSayHello bool
	for _, sent := range conn.sent {
		if sent.Event == protocol.EventSayHello {
			sawSayHello = true
		}
	}
	if !sawSayHello {
		t.Error("expected SayHello to be sent after handshake completes")
	}
}

func TestHandshakeFailsOnUnexpectedReply(t *testing.T) {
	conn := newFakeConn()
	conn.enqueue(t, &protocol.Message{
		Type:    protocol.MessageTypeError,
		Flags:   protocol.NewFlags(protocol.FlagNoSequence, false),
		Payload: []byte("nope"),
	})

	ctrl := NewController(conn, DefaultConfig(), nil, 1)
	ctrl.SetSessionID("session-1")

	if err := ctrl.handshake(context.Background()); err == nil {
		t.Fatal("expected handshake to fail on unexpected reply type")
	}
}

func TestChatTTSTextGuardAbortsWhileUserQuerying(t *testing.T) {
	conn := newFakeConn()
	ctrl := NewController(conn, DefaultConfig(), nil, 1)
	ctrl.SetSessionID("session-1")
	ctrl.flags.SetUserQuerying(true)

	ctrl.sendChatTTSTextBurst()

	conn.mu.Lock()
	defer conn.mu.Unlock()
	for _, sent := range conn.sent {
		if sent.Event == protocol.EventChatTTSText {
			t.Fatal("expected no ChatTTSText frames while userQuerying=true")
		}
	}
	if ctrl.flags.SendingChatTTSText() {
		t.Error("expected sendingChatTTSText to remain false when guard aborts")
	}
}

func TestMaybeTriggerChatTTSTextRespectsProbabilityZero(t *testing.T) {
	conn := newFakeConn()
	cfg := DefaultConfig()
	cfg.ChatTTSProbability = 0
	ctrl := NewController(conn, cfg, nil, 42)
	ctrl.SetSessionID("session-1")

	ctrl.maybeTriggerChatTTSText()

	time.Sleep(50 * time.Millisecond)
	conn.mu.Lock()
	defer conn.mu.Unlock()
	for _, sent := range conn.sent {
		if sent.Event == protocol.EventChatTTSText {
			t.Fatal("expected no ChatTTSText burst when probability is 0")
		}
	}
}
