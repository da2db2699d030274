// Package transport adapts a *websocket.Conn into the duplex "send one
// frame atomically / receive one frame" capability the session controller
// depends on.
package transport

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Transport sends and receives whole binary frames over a duplex
// connection, serializing concurrent writers.
type Transport struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// New wraps an already-dialed WebSocket connection.
func New(conn *websocket.Conn) *Transport {
	return &Transport{conn: conn}
}

// Send writes one binary frame. Concurrent calls are serialized so that all
// bytes of a single logical frame reach the wire contiguously.
func (t *Transport) Send(frame []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// Receive blocks until one full binary message has been reassembled by the
// underlying connection and returns its bytes. It returns the transport's
// own error (typically a close error) when the peer hangs up.
func (t *Transport) Receive() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Close closes the underlying connection. No close handshake is attempted;
// callers that want a clean WebSocket close should send a close frame
// before calling Close.
func (t *Transport) Close() error {
	return t.conn.Close()
}
