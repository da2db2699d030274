// Package dialog implements the session controller: the handshake, the
// steady-state orchestration of the upstream/downstream pumps and the
// silence-prompt timer, the ChatTTSText injection burst, and the shutdown
// sequence. It is grounded on the teacher's session.Session lifecycle
// (Start / setupGeminiCallbacks / Close) generalized to this protocol.
package dialog

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/room4-2/voicedialog/audio"
	"github.com/room4-2/voicedialog/diagnostic"
	"github.com/room4-2/voicedialog/playback"
	"github.com/room4-2/voicedialog/protocol"
	"github.com/room4-2/voicedialog/pump"
)

// shutdownTimeout bounds how long Run waits for background workers to exit
// on their own before abandoning them.
const shutdownTimeout = 5 * time.Second

// Conn is the duplex frame transport the controller needs: send one frame,
// receive one frame, close. *transport.Transport satisfies this
// structurally, so dialog never needs to import package transport — tests
// substitute an in-memory fake instead of a real WebSocket.
type Conn interface {
	Send(frame []byte) error
	Receive() ([]byte, error)
	Close() error
}

// Controller owns one session end to end: handshake, steady state, and
// shutdown. It is not reused across sessions.
type Controller struct {
	codec       *protocol.Codec
	transport   Conn
	flags       *Flags
	playbackBuf *playback.Buffer
	sink        *diagnostic.Sink
	config      Config
	registry    *Registry

	sessionID string
	connectID string
	logID     string

	rngMu sync.Mutex
	rng   *rand.Rand

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewController builds a controller over an already-dialed transport. seed
// sets up this process's shared rand.Source; callers construct it once
// (e.g. from a time-based seed) and hand it in rather than the controller
// reaching for a package-global source.
func NewController(tr Conn, cfg Config, registry *Registry, seed int64) *Controller {
	flags := NewFlags()
	buf := playback.New(audio.PlaybackSampleRate, flags.SendingChatTTSText)
	return &Controller{
		codec:       protocol.NewCodec(),
		transport:   tr,
		flags:       flags,
		playbackBuf: buf,
		sink:        diagnostic.NewSink(buf, cfg.PCMDumpPath),
		config:      cfg,
		registry:    registry,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// SetLogID records the X-Tt-Logid response header value, if the caller
// captured one during the WebSocket upgrade, for inclusion in the shutdown
// log line.
func (c *Controller) SetLogID(id string) { c.logID = id }

// SetSessionID sets the session id the handshake and every session-scoped
// frame will use. The controller does not generate one itself, so callers
// set it before Run.
func (c *Controller) SetSessionID(id string) { c.sessionID = id }

// Run performs the handshake, then runs the steady-state workers until one
// of them terminates the session or ctx is cancelled, then shuts down.
// It returns the error that ended the session, or nil for an orderly finish.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.handshake(ctx); err != nil {
		return fmt.Errorf("dialog: handshake: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	downstreamErr := make(chan error, 1)
	upstreamErr := make(chan error, 1)
	playbackErr := make(chan error, 1)

	c.wg.Add(3)
	go func() {
		defer c.wg.Done()
		downstreamErr <- pump.RunDownstream(runCtx, c.codec, c.transport, c.playbackBuf, c.flags, pump.Hooks{
			OnSessionStarted:    c.onSessionStarted,
			MaybeTriggerChatTTS: c.maybeTriggerChatTTSText,
		})
	}()
	go func() {
		defer c.wg.Done()
		upstreamErr <- pump.RunUpstream(runCtx, c.codec, c.transport, c.sessionID)
	}()
	go func() {
		defer c.wg.Done()
		playbackErr <- c.runPlaybackWorker(runCtx)
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.runSilencePrompt(runCtx)
	}()

	var runErr error
	select {
	case runErr = <-downstreamErr:
	case runErr = <-upstreamErr:
	case runErr = <-playbackErr:
	case <-ctx.Done():
		runErr = ctx.Err()
	}

	cancel()
	c.awaitWorkers()
	c.finishConnectionBestEffort()
	_ = c.transport.Close()

	if err := c.sink.Dump(); err != nil {
		log.Printf("❌ [%s] diagnostic dump failed: %v", c.shortID(), err)
	}

	log.Printf("🔌 [%s] session finished dialogId=%s logId=%s", c.shortID(), c.flags.DialogID(), c.logID)

	return runErr
}

func (c *Controller) shortID() string {
	if len(c.sessionID) >= 8 {
		return c.sessionID[:8]
	}
	return c.sessionID
}

// handshake runs StartConnection -> StartSession -> SayHello in sequence
// before any background worker starts. StartConnection and StartSession each
// send and then await their reply synchronously; SayHello is sent without
// awaiting an ack. Only the handshake reads the transport directly; once it
// completes, the downstream pump becomes the sole reader.
func (c *Controller) handshake(ctx context.Context) error {
	if err := c.sendStartConnection(); err != nil {
		return err
	}
	started, err := c.receiveExpect(protocol.MessageTypeFullServer, protocol.EventConnectionStarted)
	if err != nil {
		return err
	}
	c.connectID = started.ConnectID

	if err := c.sendStartSession(); err != nil {
		return err
	}
	sessionStarted, err := c.receiveExpect(protocol.MessageTypeFullServer, protocol.EventSessionStarted)
	if err != nil {
		return err
	}
	var payload sessionStartedPayload
	if err := json.Unmarshal(sessionStarted.Payload, &payload); err != nil {
		return fmt.Errorf("parse session-started payload: %w", err)
	}
	c.flags.SetDialogID(payload.DialogID)
	c.mirrorToRegistry()

	return c.sendSayHello(c.config.InitialGreeting)
}

type sessionStartedPayload struct {
	DialogID string `json:"dialog_id"`
}

func (c *Controller) receiveExpect(wantType protocol.MessageType, wantEvent int32) (*protocol.Message, error) {
	raw, err := c.transport.Receive()
	if err != nil {
		return nil, fmt.Errorf("receive: %w", err)
	}
	msg, err := c.codec.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if msg.Type != wantType || msg.Event != wantEvent {
		return nil, fmt.Errorf("expected type=%s event=%d, got type=%s event=%d", wantType, wantEvent, msg.Type, msg.Event)
	}
	return msg, nil
}

func (c *Controller) sendMessage(msg *protocol.Message) error {
	frame, err := c.codec.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err := c.transport.Send(frame); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

func (c *Controller) sendStartConnection() error {
	return c.sendMessage(&protocol.Message{
		Type:    protocol.MessageTypeFullClient,
		Flags:   protocol.NewFlags(protocol.FlagNoSequence, true),
		Event:   protocol.EventStartConnection,
		Payload: []byte("{}"),
	})
}

type audioConfigJSON struct {
	Channel    int    `json:"channel"`
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate"`
}

type ttsConfigJSON struct {
	AudioConfig audioConfigJSON `json:"audio_config"`
}

type dialogProfileJSON struct {
	BotName       string         `json:"bot_name"`
	SystemRole    string         `json:"system_role"`
	SpeakingStyle string         `json:"speaking_style"`
	Extra         map[string]any `json:"extra"`
}

type startSessionJSON struct {
	TTS    ttsConfigJSON     `json:"tts"`
	Dialog dialogProfileJSON `json:"dialog"`
}

func (c *Controller) sendStartSession() error {
	payload := startSessionJSON{
		TTS: ttsConfigJSON{AudioConfig: audioConfigJSON{
			Channel:    1,
			Format:     "pcm",
			SampleRate: audio.PlaybackSampleRate,
		}},
		Dialog: dialogProfileJSON{
			BotName:       c.config.Profile.BotName,
			SystemRole:    c.config.Profile.SystemRole,
			SpeakingStyle: c.config.Profile.SpeakingStyle,
			Extra:         c.config.Profile.Extra,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal start-session payload: %w", err)
	}
	return c.sendMessage(&protocol.Message{
		Type:      protocol.MessageTypeFullClient,
		Flags:     protocol.NewFlags(protocol.FlagNoSequence, true),
		Event:     protocol.EventStartSession,
		SessionID: c.sessionID,
		Payload:   body,
	})
}

func (c *Controller) sendSayHello(content string) error {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("marshal say-hello payload: %w", err)
	}
	return c.sendMessage(&protocol.Message{
		Type:      protocol.MessageTypeFullClient,
		Flags:     protocol.NewFlags(protocol.FlagNoSequence, true),
		Event:     protocol.EventSayHello,
		SessionID: c.sessionID,
		Payload:   body,
	})
}

// onSessionStarted is the pump.Hooks callback for a FullServer/150 seen
// outside the handshake. In the steady state this never fires in practice
// (150 is consumed synchronously during handshake) but the dispatch stays
// wired for the event-table symmetry the spec describes.
func (c *Controller) onSessionStarted(dialogID string) {
	c.flags.SetDialogID(dialogID)
	c.mirrorToRegistry()
}

func (c *Controller) mirrorToRegistry() {
	if c.registry == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c.registry.Mirror(ctx, c.connectID, c.flags.DialogID(), c.flags.UserQuerying(), c.flags.SendingChatTTSText())
}

// runPlaybackWorker pulls from the jitter buffer and pushes to the output
// device at the device's own block rate; no condition variable is needed
// because the blocking device Write already paces the loop.
func (c *Controller) runPlaybackWorker(ctx context.Context) error {
	out, err := audio.OpenOutput()
	if err != nil {
		return fmt.Errorf("dialog: open output: %w", err)
	}
	defer out.Close()

	frame := make([]float32, audio.PlaybackFrameSize)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		c.playbackBuf.Drain(frame)
		if err := out.Write(frame); err != nil {
			return fmt.Errorf("dialog: playback write: %w", err)
		}
	}
}

// runSilencePrompt resends the follow-up greeting whenever SilenceTimeout
// elapses with no query-signal activity, restarting its wait on either
// event, until ctx is cancelled.
func (c *Controller) runSilencePrompt(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.flags.QuerySignal():
		case <-time.After(c.config.SilenceTimeout):
			if err := c.sendSayHello(c.config.FollowUpGreeting); err != nil {
				log.Printf("⚠️ [%s] follow-up greeting failed: %v", c.shortID(), err)
			}
		}
	}
}

// maybeTriggerChatTTSText rolls the configured probability and, on success,
// spawns the ChatTTSText burst in the background so the downstream pump's
// dispatch loop is never blocked by it.
func (c *Controller) maybeTriggerChatTTSText() {
	c.rngMu.Lock()
	roll := c.rng.Float64()
	c.rngMu.Unlock()

	if roll >= c.config.ChatTTSProbability {
		return
	}
	go c.sendChatTTSTextBurst()
}

// sendChatTTSTextBurst sends two rounds of {start, end} ChatTTSText
// messages with a configured gap between them. It aborts without sending
// anything if userQuerying has become true since the trigger — the
// authoritative guard the spec's ChatTTSText-guard property describes.
func (c *Controller) sendChatTTSTextBurst() {
	if c.flags.UserQuerying() {
		log.Printf("⚠️ [%s] ChatTTSText guard tripped, aborting burst", c.shortID())
		return
	}

	c.flags.SetSendingChatTTSText(true)

	if !c.sendChatTTSRound(c.config.ChatTTSRoundOne) {
		c.flags.SetSendingChatTTSText(false)
		return
	}

	time.Sleep(c.config.ChatTTSRoundGap)

	if !c.sendChatTTSRound(c.config.ChatTTSRoundTwo) {
		c.flags.SetSendingChatTTSText(false)
		return
	}
	// sendingChatTtsText is cleared by the downstream pump when the server
	// echoes back a TTSType(tts_type="chat_tts_text") frame, or left to a
	// future clear if the server never does (matching the spec, which
	// names no timeout for this case).
}

func (c *Controller) sendChatTTSRound(round ChatTTSRound) bool {
	for _, frame := range []struct {
		start, end bool
		content    string
	}{
		{true, false, round.StartContent},
		{false, true, round.EndContent},
	} {
		body, err := json.Marshal(map[string]any{
			"start":   frame.start,
			"end":     frame.end,
			"content": frame.content,
		})
		if err != nil {
			log.Printf("❌ [%s] marshal chat-tts-text payload: %v", c.shortID(), err)
			return false
		}
		err = c.sendMessage(&protocol.Message{
			Type:      protocol.MessageTypeFullClient,
			Flags:     protocol.NewFlags(protocol.FlagNoSequence, true),
			Event:     protocol.EventChatTTSText,
			SessionID: c.sessionID,
			Payload:   body,
		})
		if err != nil {
			log.Printf("❌ [%s] ChatTTSText send failed: %v", c.shortID(), err)
			return false
		}
	}
	return true
}

func (c *Controller) awaitWorkers() {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		log.Printf("⚠️ [%s] workers did not exit within %s, abandoning", c.shortID(), shutdownTimeout)
	}
}

// finishConnectionBestEffort sends FinishConnection and awaits its
// ConnectionFinished ack. FinishSession is not sent here: the upstream
// pump already sends one on every exit path, whether cancelled or failed.
func (c *Controller) finishConnectionBestEffort() {
	err := c.sendMessage(&protocol.Message{
		Type:    protocol.MessageTypeFullClient,
		Flags:   protocol.NewFlags(protocol.FlagNoSequence, true),
		Event:   protocol.EventFinishConnection,
		Payload: []byte("{}"),
	})
	if err != nil {
		log.Printf("❌ [%s] finish-connection send failed: %v", c.shortID(), err)
		return
	}

	raw, err := c.transport.Receive()
	if err != nil {
		log.Printf("❌ [%s] finish-connection ack receive failed: %v", c.shortID(), err)
		return
	}
	reply, err := c.codec.Decode(raw)
	if err != nil {
		log.Printf("❌ [%s] finish-connection ack decode failed: %v", c.shortID(), err)
		return
	}
	if reply.Type != protocol.MessageTypeFullServer || reply.Event != protocol.EventConnectionFinished {
		log.Printf("⚠️ [%s] unexpected finish-connection ack type=%s event=%d", c.shortID(), reply.Type, reply.Event)
	}
}
