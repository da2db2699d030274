package dialog

import "sync/atomic"

// querySignalCapacity is the query-signal channel's bound (spec requires
// capacity >= 10).
const querySignalCapacity = 10

// Flags is the process-wide dialog state: two atomically readable booleans,
// a dialog id set once, and a bounded, drop-oldest query-signal channel.
// There is exactly one Flags per session, by contract — it is never
// replicated per request.
type Flags struct {
	dialogID           atomic.Value // string
	userQuerying       atomic.Bool
	sendingChatTTSText atomic.Bool
	querySignal        chan struct{}
}

// NewFlags returns a zeroed Flags ready for one session.
func NewFlags() *Flags {
	return &Flags{querySignal: make(chan struct{}, querySignalCapacity)}
}

// SetDialogID records the server-assigned dialog id. Called once, after the
// StartSession handshake completes.
func (f *Flags) SetDialogID(id string) { f.dialogID.Store(id) }

// DialogID returns the recorded dialog id, or "" if none has been set yet.
func (f *Flags) DialogID() string {
	v, _ := f.dialogID.Load().(string)
	return v
}

// UserQuerying reports whether the server has signalled that the user is
// mid-utterance.
func (f *Flags) UserQuerying() bool { return f.userQuerying.Load() }

// SetUserQuerying updates the user-querying flag.
func (f *Flags) SetUserQuerying(v bool) { f.userQuerying.Store(v) }

// SendingChatTTSText reports whether a client-injected TTS burst is in flight.
func (f *Flags) SendingChatTTSText() bool { return f.sendingChatTTSText.Load() }

// SetSendingChatTTSText updates the TTS-suppression flag.
func (f *Flags) SetSendingChatTTSText(v bool) { f.sendingChatTTSText.Store(v) }

// Signal enqueues one unit value, dropping the oldest queued value first if
// the channel is already at capacity.
func (f *Flags) Signal() {
	select {
	case f.querySignal <- struct{}{}:
		return
	default:
	}
	select {
	case <-f.querySignal:
	default:
	}
	select {
	case f.querySignal <- struct{}{}:
	default:
	}
}

// QuerySignal returns the receive side of the query-signal channel.
func (f *Flags) QuerySignal() <-chan struct{} { return f.querySignal }
