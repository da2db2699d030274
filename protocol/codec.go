package protocol

import (
	"bytes"
	"encoding/binary"
	"sync"
)

// Version is the protocol version nibble.
type Version uint8

const (
	Version1 Version = 1
	Version2 Version = 2
	Version3 Version = 3
	Version4 Version = 4
)

// HeaderSize is the header size in 4-byte units (1..4), not in bytes.
type HeaderSize uint8

const (
	HeaderSize4  HeaderSize = 1
	HeaderSize8  HeaderSize = 2
	HeaderSize12 HeaderSize = 3
	HeaderSize16 HeaderSize = 4
)

// Bytes returns the header size in bytes.
func (h HeaderSize) Bytes() int { return int(h) * 4 }

// SerializationMethod is the high nibble of the third header byte.
type SerializationMethod uint8

const (
	SerializationRaw    SerializationMethod = 0x0
	SerializationJSON   SerializationMethod = 0x1
	SerializationThrift SerializationMethod = 0x3
	SerializationCustom SerializationMethod = 0xF
)

func (s SerializationMethod) valid() bool {
	switch s {
	case SerializationRaw, SerializationJSON, SerializationThrift, SerializationCustom:
		return true
	default:
		return false
	}
}

// CompressionMethod is the low nibble of the third header byte.
type CompressionMethod uint8

const (
	CompressionNone   CompressionMethod = 0x0
	CompressionGzip   CompressionMethod = 0x1
	CompressionCustom CompressionMethod = 0xF
)

func (c CompressionMethod) valid() bool {
	switch c {
	case CompressionNone, CompressionGzip, CompressionCustom:
		return true
	default:
		return false
	}
}

// Compressor is a pluggable payload compressor. The decoder never invokes
// it automatically; callers that configure one know when to apply the
// inverse themselves.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
}

// Settings are the four nibble-encoded configuration values carried in the
// fixed header prefix.
type Settings struct {
	Version       Version
	HeaderSize    HeaderSize
	Serialization SerializationMethod
	Compression   CompressionMethod
	Compressor    Compressor
}

// DefaultSettings returns version=1, header-size=4 bytes, serialization=JSON,
// compression=none — the reference session configuration.
func DefaultSettings() Settings {
	return Settings{
		Version:       Version1,
		HeaderSize:    HeaderSize4,
		Serialization: SerializationJSON,
		Compression:   CompressionNone,
	}
}

// Codec encodes and decodes Messages under a shared, mutable Settings
// configuration. It is safe for concurrent use: every Encode and Decode
// copies the settings under a mutex before working. The session never
// flips the stored Serialization while running; audio frames are tagged
// Raw per frame through EncodeWithSerialization instead.
type Codec struct {
	mu               sync.Mutex
	settings         Settings
	containsSequence ContainsSequenceFunc
}

// NewCodec returns a codec with DefaultSettings and DefaultContainsSequence.
func NewCodec() *Codec {
	return &Codec{
		settings:         DefaultSettings(),
		containsSequence: DefaultContainsSequence,
	}
}

// Settings returns a copy of the current configuration.
func (c *Codec) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// SetVersion masks only the version nibble.
func (c *Codec) SetVersion(v Version) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings.Version = v
}

// SetHeaderSize masks only the header-size nibble.
func (c *Codec) SetHeaderSize(h HeaderSize) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings.HeaderSize = h
}

// SetSerialization masks only the serialization nibble, leaving compression intact.
func (c *Codec) SetSerialization(s SerializationMethod) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings.Serialization = s
}

// SetCompression masks only the compression nibble, leaving serialization intact.
func (c *Codec) SetCompression(m CompressionMethod, compressor Compressor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings.Compression = m
	c.settings.Compressor = compressor
}

// SetContainsSequence overrides the sequence-presence predicate.
func (c *Codec) SetContainsSequence(fn ContainsSequenceFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.containsSequence = fn
}

// Encode serializes msg into a self-contained frame under the codec's
// current settings.
func (c *Codec) Encode(msg *Message) ([]byte, error) {
	c.mu.Lock()
	settings := c.settings
	predicate := c.containsSequence
	c.mu.Unlock()

	return encodeWithSettings(msg, settings, predicate)
}

// EncodeWithSerialization encodes msg tagged with an explicit serialization
// method, without reading or mutating the codec's stored Settings. Callers
// that need to stamp one particular frame as JSON or Raw while other
// goroutines are concurrently encoding frames under the codec's persistent
// mode (e.g. a control-frame sender alongside a running audio pump) should
// use this instead of SetSerialization, which would otherwise race with
// those other encodes.
func (c *Codec) EncodeWithSerialization(msg *Message, serialization SerializationMethod) ([]byte, error) {
	c.mu.Lock()
	settings := c.settings
	predicate := c.containsSequence
	c.mu.Unlock()

	settings.Serialization = serialization
	return encodeWithSettings(msg, settings, predicate)
}

func encodeWithSettings(msg *Message, settings Settings, predicate ContainsSequenceFunc) ([]byte, error) {
	headerBytes := settings.HeaderSize.Bytes()
	header := make([]byte, headerBytes)
	header[0] = byte(settings.Version)<<4 | byte(settings.HeaderSize)
	header[1] = byte(msg.Type)<<4 | byte(msg.Flags)
	header[2] = byte(settings.Serialization)<<4 | byte(settings.Compression)

	var body bytes.Buffer

	if predicate(msg.Flags) {
		writeInt32(&body, msg.Sequence)
	}
	if msg.Type == MessageTypeError {
		writeUint32(&body, msg.ErrorCode)
	}
	if msg.Flags.HasEvent() {
		writeInt32(&body, msg.Event)
	}
	if msg.hasSessionID() {
		writeLengthPrefixed(&body, []byte(msg.SessionID))
	}
	if msg.hasConnectID() {
		writeLengthPrefixed(&body, []byte(msg.ConnectID))
	}

	payload := msg.Payload
	if settings.Compression != CompressionNone && settings.Compressor != nil && len(payload) > 0 {
		compressed, err := settings.Compressor.Compress(payload)
		if err != nil {
			return nil, err
		}
		payload = compressed
	}
	writeLengthPrefixed(&body, payload)

	return append(header, body.Bytes()...), nil
}

// Decode parses a complete frame produced by Encode (or by the remote
// peer). It consumes exactly the whole input; any residual byte is
// ErrRedundantBytes.
func (c *Codec) Decode(b []byte) (*Message, error) {
	c.mu.Lock()
	predicate := c.containsSequence
	c.mu.Unlock()

	if len(b) < 1 {
		return nil, ErrMissingHeader
	}
	version := Version(b[0] >> 4)
	headerSize := HeaderSize(b[0] & 0x0F)
	headerBytes := headerSize.Bytes()
	if headerBytes < 3 || len(b) < headerBytes {
		return nil, ErrShortHeader
	}

	msgType := MessageType(b[1] >> 4)
	if !msgType.valid() {
		return nil, ErrUnknownMessageType
	}
	flags := Flags(b[1] & 0x0F)

	serialization := SerializationMethod(b[2] >> 4)
	if !serialization.valid() {
		return nil, ErrUnknownSerialization
	}
	compression := CompressionMethod(b[2] & 0x0F)
	if !compression.valid() {
		return nil, ErrUnknownCompression
	}
	_ = version // carried through for symmetry; no version-gated behavior defined

	body := b[headerBytes:]
	r := bytesReader{buf: body}

	msg := &Message{Type: msgType, Flags: flags}

	if predicate(flags) {
		v, err := r.readInt32(ErrShortSequence)
		if err != nil {
			return nil, err
		}
		msg.Sequence = v
	}

	if msgType == MessageTypeError {
		v, err := r.readUint32(ErrShortErrorCode)
		if err != nil {
			return nil, err
		}
		msg.ErrorCode = v
	}

	if flags.HasEvent() {
		v, err := r.readInt32(ErrShortEvent)
		if err != nil {
			return nil, err
		}
		msg.Event = v
	}

	if msg.hasSessionID() {
		v, err := r.readLengthPrefixed(ErrShortSessionIDLength, ErrShortSessionIDBody)
		if err != nil {
			return nil, err
		}
		msg.SessionID = string(v)
	}

	if msg.hasConnectID() {
		v, err := r.readLengthPrefixed(ErrShortConnectIDLength, ErrShortConnectIDBody)
		if err != nil {
			return nil, err
		}
		msg.ConnectID = string(v)
	}

	payload, err := r.readLengthPrefixed(ErrShortPayloadLength, ErrShortPayloadBody)
	if err != nil {
		return nil, err
	}
	msg.Payload = payload

	if r.pos != len(body) {
		return nil, ErrRedundantBytes
	}

	return msg, nil
}

func writeInt32(buf *bytes.Buffer, v int32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(v))
	buf.Write(tmp[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func writeLengthPrefixed(buf *bytes.Buffer, data []byte) {
	writeUint32(buf, uint32(len(data)))
	buf.Write(data)
}

// bytesReader is a minimal cursor over a decode buffer, used instead of
// bytes.Reader so each truncation point can report its own sentinel error.
type bytesReader struct {
	buf []byte
	pos int
}

func (r *bytesReader) readInt32(shortErr error) (int32, error) {
	v, err := r.readUint32(shortErr)
	return int32(v), err
}

func (r *bytesReader) readUint32(shortErr error) (uint32, error) {
	if len(r.buf)-r.pos < 4 {
		return 0, shortErr
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *bytesReader) readLengthPrefixed(lengthErr, bodyErr error) ([]byte, error) {
	length, err := r.readUint32(lengthErr)
	if err != nil {
		return nil, err
	}
	n := int(length)
	if len(r.buf)-r.pos < n {
		return nil, bodyErr
	}
	v := r.buf[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}
