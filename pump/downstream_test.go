package pump

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/room4-2/voicedialog/playback"
	"github.com/room4-2/voicedialog/protocol"
)

// fakeReceiver replays a fixed queue of frames, then returns errClosed.
type fakeReceiver struct {
	frames [][]byte
	pos    int
}

var errClosed = errors.New("fake receiver: closed")

func (f *fakeReceiver) Receive() ([]byte, error) {
	if f.pos >= len(f.frames) {
		return nil, errClosed
	}
	frame := f.frames[f.pos]
	f.pos++
	return frame, nil
}

type fakeFlags struct {
	userQuerying       bool
	sendingChatTTSText bool
	signalled          int
}

func (f *fakeFlags) UserQuerying() bool           { return f.userQuerying }
func (f *fakeFlags) SetUserQuerying(v bool)       { f.userQuerying = v }
func (f *fakeFlags) SendingChatTTSText() bool     { return f.sendingChatTTSText }
func (f *fakeFlags) SetSendingChatTTSText(v bool) { f.sendingChatTTSText = v }
func (f *fakeFlags) Signal()                      { f.signalled++ }

func encodeForTest(t *testing.T, codec *protocol.Codec, msg *protocol.Message) []byte {
	t.Helper()
	frame, err := codec.Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return frame
}

func TestDownstreamSessionFinishedEndsCleanly(t *testing.T) {
	codec := protocol.NewCodec()
	msg := &protocol.Message{
		Type:      protocol.MessageTypeFullServer,
		Flags:     protocol.NewFlags(protocol.FlagNoSequence, true),
		Event:     protocol.EventSessionFinished,
		SessionID: "sess-1",
		Payload:   []byte("{}"),
	}
	recv := &fakeReceiver{frames: [][]byte{encodeForTest(t, codec, msg)}}
	buf := playback.New(100, nil)
	flags := &fakeFlags{}

	err := RunDownstream(context.Background(), codec, recv, buf, flags, Hooks{})
	if err != nil {
		t.Fatalf("expected nil error on orderly finish, got %v", err)
	}
}

func TestDownstreamASRInfoSignalsAndFlushesBuffer(t *testing.T) {
	codec := protocol.NewCodec()
	buf := playback.New(100, nil)
	buf.PushBytes(floatsToBytesForTest([]float32{1, 2, 3}))

	asrInfo := &protocol.Message{
		Type:      protocol.MessageTypeFullServer,
		Flags:     protocol.NewFlags(protocol.FlagNoSequence, true),
		Event:     protocol.EventASRInfo,
		SessionID: "sess-1",
		Payload:   []byte("{}"),
	}
	finished := &protocol.Message{
		Type:      protocol.MessageTypeFullServer,
		Flags:     protocol.NewFlags(protocol.FlagNoSequence, true),
		Event:     protocol.EventSessionFinished,
		SessionID: "sess-1",
		Payload:   []byte("{}"),
	}
	recv := &fakeReceiver{frames: [][]byte{
		encodeForTest(t, codec, asrInfo),
		encodeForTest(t, codec, finished),
	}}
	flags := &fakeFlags{}

	if err := RunDownstream(context.Background(), codec, recv, buf, flags, Hooks{}); err != nil {
		t.Fatalf("RunDownstream: %v", err)
	}

	if buf.Len() != 0 {
		t.Errorf("expected playback buffer flushed on ASRInfo, got %d samples", buf.Len())
	}
	if flags.signalled != 1 {
		t.Errorf("expected query signal fired once, got %d", flags.signalled)
	}
	if !flags.userQuerying {
		t.Errorf("expected userQuerying=true after ASRInfo")
	}
}

func TestDownstreamUserQueryFinishedClearsFlagAndTriggers(t *testing.T) {
	codec := protocol.NewCodec()
	buf := playback.New(100, nil)

	userQueryFinished := &protocol.Message{
		Type:      protocol.MessageTypeFullServer,
		Flags:     protocol.NewFlags(protocol.FlagNoSequence, true),
		Event:     protocol.EventUserQueryFinished,
		SessionID: "sess-1",
		Payload:   []byte("{}"),
	}
	finished := &protocol.Message{
		Type:      protocol.MessageTypeFullServer,
		Flags:     protocol.NewFlags(protocol.FlagNoSequence, true),
		Event:     protocol.EventSessionFinished,
		SessionID: "sess-1",
		Payload:   []byte("{}"),
	}
	recv := &fakeReceiver{frames: [][]byte{
		encodeForTest(t, codec, userQueryFinished),
		encodeForTest(t, codec, finished),
	}}
	flags := &fakeFlags{userQuerying: true}
	triggered := 0

	err := RunDownstream(context.Background(), codec, recv, buf, flags, Hooks{
		MaybeTriggerChatTTS: func() { triggered++ },
	})
	if err != nil {
		t.Fatalf("RunDownstream: %v", err)
	}
	if flags.userQuerying {
		t.Errorf("expected userQuerying cleared")
	}
	if triggered != 1 {
		t.Errorf("expected ChatTTSText trigger called once, got %d", triggered)
	}
}

func TestDownstreamTTSTypeClearsSuppressionOnMatch(t *testing.T) {
	codec := protocol.NewCodec()
	buf := playback.New(100, nil)

	payload, _ := json.Marshal(map[string]string{"tts_type": "chat_tts_text"})
	ttsType := &protocol.Message{
		Type:      protocol.MessageTypeFullServer,
		Flags:     protocol.NewFlags(protocol.FlagNoSequence, true),
		Event:     protocol.EventTTSType,
		SessionID: "sess-1",
		Payload:   payload,
	}
	finished := &protocol.Message{
		Type:      protocol.MessageTypeFullServer,
		Flags:     protocol.NewFlags(protocol.FlagNoSequence, true),
		Event:     protocol.EventSessionFinished,
		SessionID: "sess-1",
		Payload:   []byte("{}"),
	}
	recv := &fakeReceiver{frames: [][]byte{
		encodeForTest(t, codec, ttsType),
		encodeForTest(t, codec, finished),
	}}
	flags := &fakeFlags{sendingChatTTSText: true}

	if err := RunDownstream(context.Background(), codec, recv, buf, flags, Hooks{}); err != nil {
		t.Fatalf("RunDownstream: %v", err)
	}
	if flags.sendingChatTTSText {
		t.Errorf("expected sendingChatTTSText cleared on matching tts_type")
	}
}

func TestDownstreamAudioSuppressedWhileSendingChatTTSText(t *testing.T) {
	codec := protocol.NewCodec()
	buf := playback.New(100, func() bool { return true })

	audioMsg := &protocol.Message{
		Type:      protocol.MessageTypeAudioOnlyServer,
		Flags:     protocol.NewFlags(protocol.FlagNoSequence, false),
		SessionID: "sess-1",
		Payload:   floatsToBytesForTest([]float32{1, 2, 3}),
	}
	finished := &protocol.Message{
		Type:      protocol.MessageTypeFullServer,
		Flags:     protocol.NewFlags(protocol.FlagNoSequence, true),
		Event:     protocol.EventSessionFinished,
		SessionID: "sess-1",
		Payload:   []byte("{}"),
	}
	recv := &fakeReceiver{frames: [][]byte{
		encodeForTest(t, codec, audioMsg),
		encodeForTest(t, codec, finished),
	}}
	flags := &fakeFlags{sendingChatTTSText: true}

	if err := RunDownstream(context.Background(), codec, recv, buf, flags, Hooks{}); err != nil {
		t.Fatalf("RunDownstream: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected audio dropped while suppressed, got %d samples", buf.Len())
	}
}

func TestDownstreamErrorMessageTerminatesSession(t *testing.T) {
	codec := protocol.NewCodec()
	buf := playback.New(100, nil)

	errMsg := &protocol.Message{
		Type:      protocol.MessageTypeError,
		Flags:     protocol.NewFlags(protocol.FlagNoSequence, false),
		ErrorCode: 500,
		Payload:   []byte("boom"),
	}
	recv := &fakeReceiver{frames: [][]byte{encodeForTest(t, codec, errMsg)}}
	flags := &fakeFlags{}

	err := RunDownstream(context.Background(), codec, recv, buf, flags, Hooks{})
	if err == nil {
		t.Fatal("expected error from server error message")
	}
}

func floatsToBytesForTest(values []float32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}
