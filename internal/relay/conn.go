package relay

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"classboard/pkg/types"
)

// transport is the subset of *websocket.Conn the relay connection uses;
// tests substitute an in-memory implementation.
type transport interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

const (
	connWriteTimeout = 5 * time.Second
	connBufferSize   = 100
)

// Conn is one participant's connection as seen by the relay. All writes
// are serialized through a single writer goroutine.
type Conn struct {
	ws          transport
	classroomID string
	userID      int
	role        types.Role

	writeCh   chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func NewConn(ws transport, classroomID string, userID int, role types.Role) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		ws:          ws,
		classroomID: classroomID,
		userID:      userID,
		role:        role,
		writeCh:     make(chan []byte, connBufferSize),
		ctx:         ctx,
		cancel:      cancel,
	}
	go c.writeLoop()
	return c
}

func (c *Conn) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// Write queues one message for delivery. Non-blocking: a slow consumer
// drops messages rather than stalling the hub.
func (c *Conn) Write(data []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrConnClosed
	default:
	}
	select {
	case c.writeCh <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnClosed
	default:
		return ErrSendBufferFull
	}
}

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) ClassroomID() string { return c.classroomID }
func (c *Conn) UserID() int         { return c.userID }
func (c *Conn) Role() types.Role    { return c.role }

// Done is closed once the connection shuts down.
func (c *Conn) Done() <-chan struct{} { return c.ctx.Done() }
