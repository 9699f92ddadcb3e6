package connection

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"classboard/pkg/interfaces"
)

// WebSocketDialer is the production dialer over gorilla/websocket.
type WebSocketDialer struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

func NewWebSocketDialer() *WebSocketDialer {
	return &WebSocketDialer{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}

func (d *WebSocketDialer) Dial(ctx context.Context, endpoint string) (interfaces.Socket, error) {
	dialer := websocket.Dialer{HandshakeTimeout: d.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return &webSocket{conn: conn, writeTimeout: d.WriteTimeout}, nil
}

// webSocket adapts a gorilla connection to the Socket interface. Gorilla
// permits one concurrent writer, hence the write lock.
type webSocket struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex
}

func (s *webSocket) ReadMessage() ([]byte, error) {
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType == websocket.TextMessage {
			return data, nil
		}
		// Control frames are handled by gorilla; other frame types are
		// not part of the protocol and get skipped.
	}
}

func (s *webSocket) WriteMessage(data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *webSocket) Close() error {
	return s.conn.Close()
}
