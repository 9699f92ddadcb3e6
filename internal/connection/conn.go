package connection

import (
	"sync"
	"sync/atomic"
	"time"

	"classboard/pkg/interfaces"
)

// State is the lifecycle state of one connection.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

const writeTimeout = 5 * time.Second

// Conn wraps one live socket. A fresh Conn is created per dial attempt and
// discarded on close; a closed Conn is never mutated back into a live one.
// Writes go through a single writer goroutine.
type Conn struct {
	sock      interfaces.Socket
	state     atomic.Int32
	clean     atomic.Bool
	writeCh   chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(sock interfaces.Socket) *Conn {
	c := &Conn{
		sock:    sock,
		writeCh: make(chan []byte, 100),
		done:    make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))
	go c.writeLoop()
	return c
}

func (c *Conn) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.sock.WriteMessage(data); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) markOpen() {
	c.state.Store(int32(StateOpen))
}

// State returns the connection's current lifecycle state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// WasClean reports whether the close was a locally requested shutdown
// rather than a transport failure.
func (c *Conn) WasClean() bool {
	return c.clean.Load()
}

// Write queues one message for the writer goroutine.
func (c *Conn) Write(data []byte) error {
	if c.State() != StateOpen {
		return ErrConnClosed
	}
	select {
	case c.writeCh <- data:
		return nil
	case <-c.done:
		return ErrConnClosed
	case <-time.After(writeTimeout):
		return ErrWriteTimeout
	}
}

// close shuts the connection down exactly once. clean marks a locally
// requested shutdown; a transport failure passes clean=false so the close
// handler triggers reconnection.
func (c *Conn) close(clean bool) {
	c.closeOnce.Do(func() {
		if clean {
			c.clean.Store(true)
		}
		c.state.Store(int32(StateClosing))
		close(c.done)
		_ = c.sock.Close()
		c.state.Store(int32(StateClosed))
	})
}
