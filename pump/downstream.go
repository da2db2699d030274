package pump

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/room4-2/voicedialog/playback"
	"github.com/room4-2/voicedialog/protocol"
)

// Receiver is the subset of *transport.Transport the downstream pump needs.
type Receiver interface {
	Receive() ([]byte, error)
}

// Flags is the subset of *dialog.Flags the downstream pump touches
// directly, without importing package dialog.
type Flags interface {
	UserQuerying() bool
	SetUserQuerying(bool)
	SendingChatTTSText() bool
	SetSendingChatTTSText(bool)
	Signal()
}

// Hooks lets the session controller hook into events the downstream pump
// cannot fully resolve on its own — session lifecycle and the ChatTTSText
// trigger, which needs the controller's codec, transport, config, and
// shared rand source.
type Hooks struct {
	OnSessionStarted    func(dialogID string)
	MaybeTriggerChatTTS func()
}

type ttsTypePayload struct {
	TTSType string `json:"tts_type"`
}

type sessionStartedPayload struct {
	DialogID string `json:"dialog_id"`
}

// RunDownstream decodes and dispatches frames until the session ends in an
// orderly way (SessionFinished), an unrecoverable transport or protocol
// error occurs, or ctx is cancelled. It returns nil on an orderly finish or
// cancellation, and a non-nil error otherwise.
func RunDownstream(ctx context.Context, codec *protocol.Codec, receiver Receiver, buf *playback.Buffer, flags Flags, hooks Hooks) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		raw, err := receiver.Receive()
		if err != nil {
			return fmt.Errorf("pump: receive: %w", err)
		}

		msg, err := codec.Decode(raw)
		if err != nil {
			return fmt.Errorf("pump: decode: %w", err)
		}

		switch msg.Type {
		case protocol.MessageTypeFullServer:
			switch msg.Event {
			case protocol.EventSessionStarted:
				var payload sessionStartedPayload
				if jsonErr := json.Unmarshal(msg.Payload, &payload); jsonErr == nil && hooks.OnSessionStarted != nil {
					hooks.OnSessionStarted(payload.DialogID)
				}

			case protocol.EventSessionFinished, protocol.EventSessionFinishedAlt:
				return nil

			case protocol.EventTTSType:
				if flags.SendingChatTTSText() {
					var payload ttsTypePayload
					if jsonErr := json.Unmarshal(msg.Payload, &payload); jsonErr == nil && payload.TTSType == "chat_tts_text" {
						buf.Flush()
						flags.SetSendingChatTTSText(false)
					}
				}

			case protocol.EventASRInfo:
				buf.Flush()
				flags.Signal()
				flags.SetUserQuerying(true)

			case protocol.EventUserQueryFinished:
				flags.SetUserQuerying(false)
				if hooks.MaybeTriggerChatTTS != nil {
					hooks.MaybeTriggerChatTTS()
				}

			default:
				log.Printf("ℹ️ unhandled FullServer event=%d payload=%s", msg.Event, msg.Payload)
			}

		case protocol.MessageTypeAudioOnlyServer:
			buf.PushBytes(msg.Payload)

		case protocol.MessageTypeError:
			return fmt.Errorf("pump: server error %d: %s", msg.ErrorCode, msg.Payload)

		default:
			return fmt.Errorf("pump: unexpected message type %s in steady state", msg.Type)
		}
	}
}
