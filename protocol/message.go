// Package protocol implements the length-delimited binary frame codec used to
// talk to the realtime speech-dialog service: header bit-packing, typed
// sub-fields, and the event/sequence/error rules from the wire contract.
package protocol

// MessageType is the high nibble of the second header byte.
type MessageType uint8

const (
	MessageTypeFullClient           MessageType = 0b0001
	MessageTypeAudioOnlyClient      MessageType = 0b0010
	MessageTypeFullServer           MessageType = 0b1001
	MessageTypeAudioOnlyServer      MessageType = 0b1011 // alias ServerACK
	MessageTypeFrontEndResultServer MessageType = 0b1100
	MessageTypeError                MessageType = 0b1111
)

func (t MessageType) valid() bool {
	switch t {
	case MessageTypeFullClient, MessageTypeAudioOnlyClient, MessageTypeFullServer,
		MessageTypeAudioOnlyServer, MessageTypeFrontEndResultServer, MessageTypeError:
		return true
	default:
		return false
	}
}

func (t MessageType) String() string {
	switch t {
	case MessageTypeFullClient:
		return "FullClient"
	case MessageTypeAudioOnlyClient:
		return "AudioOnlyClient"
	case MessageTypeFullServer:
		return "FullServer"
	case MessageTypeAudioOnlyServer:
		return "AudioOnlyServer"
	case MessageTypeFrontEndResultServer:
		return "FrontEndResultServer"
	case MessageTypeError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Flags is the low nibble of the second header byte: the low two bits carry
// one of four mutually-exclusive sequence states, bit 2 carries the
// independent with-event marker.
type Flags uint8

const (
	FlagNoSequence       Flags = 0b00
	FlagPositiveSequence Flags = 0b01
	FlagLastNoSequence   Flags = 0b10
	FlagNegativeSequence Flags = 0b11
	FlagWithEvent        Flags = 0b100

	flagSequenceMask Flags = 0b011
)

// NewFlags combines a sequence state with the with-event marker.
func NewFlags(sequenceState Flags, withEvent bool) Flags {
	f := sequenceState & flagSequenceMask
	if withEvent {
		f |= FlagWithEvent
	}
	return f
}

// HasEvent reports whether the with-event bit is set.
func (f Flags) HasEvent() bool { return f&FlagWithEvent != 0 }

// SequenceState returns the low two bits in isolation.
func (f Flags) SequenceState() Flags { return f & flagSequenceMask }

// Event numbers used on the wire (see the event registry).
const (
	EventStartConnection    int32 = 1
	EventFinishConnection   int32 = 2
	EventConnectionStarted  int32 = 50
	EventConnectionFailed   int32 = 51 // part of the connect-id set; no steady-state use in this client
	EventConnectionFinished int32 = 52
	EventStartSession       int32 = 100
	EventFinishSession      int32 = 102
	EventSessionStarted     int32 = 150
	EventSessionFinished    int32 = 152
	EventSessionFinishedAlt int32 = 153
	EventAudioChunk         int32 = 200
	EventSayHello           int32 = 300
	EventTTSType            int32 = 350
	EventASRInfo            int32 = 450
	EventUserQueryFinished  int32 = 459
	EventChatTTSText        int32 = 500
)

// noSessionIDEvents carries events for which the session-id sub-field is
// omitted even though with-event is set.
var noSessionIDEvents = map[int32]bool{
	EventStartConnection:    true,
	EventFinishConnection:   true,
	EventConnectionStarted:  true,
	EventConnectionFailed:   true,
	EventConnectionFinished: true,
}

// connectIDEvents carries events for which the connect-id sub-field is present.
var connectIDEvents = map[int32]bool{
	EventConnectionStarted:  true,
	EventConnectionFailed:   true,
	EventConnectionFinished: true,
}

// Message is a self-describing record exchanged over the wire in one
// direction. A Message is constructed fresh per send or per receive; it is
// never reused across the wire boundary.
type Message struct {
	Type      MessageType
	Flags     Flags
	Event     int32
	SessionID string
	ConnectID string
	Sequence  int32
	ErrorCode uint32
	Payload   []byte
}

// hasSessionID reports whether this message's (Flags, Event) combination
// carries a session-id sub-field on the wire.
func (m *Message) hasSessionID() bool {
	return m.Flags.HasEvent() && !noSessionIDEvents[m.Event]
}

// hasConnectID reports whether this message's (Flags, Event) combination
// carries a connect-id sub-field on the wire.
func (m *Message) hasConnectID() bool {
	return m.Flags.HasEvent() && connectIDEvents[m.Event]
}
