// Package connection owns the socket lifecycle of the classroom client:
// connect, detect failure, reconnect with exponential backoff, and resume
// immediately on a network-online signal. Failures never propagate to
// callers; they funnel into the reconnect path or a terminal offline
// notice once the attempt budget is exhausted.
package connection

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"classboard/pkg/interfaces"
	"classboard/pkg/wire"
)

// Config bounds the reconnection behavior.
type Config struct {
	// InitialBackoff is the first reconnect delay; each further attempt
	// doubles it up to MaxBackoff.
	InitialBackoff time.Duration
	// MaxBackoff caps the per-attempt delay.
	MaxBackoff time.Duration
	// MaxAttempts is the automatic reconnect budget. Once spent, only a
	// network-online signal resumes the cycle.
	MaxAttempts int
	// Watchdog is the one-shot deadline for the connection to first reach
	// open; it covers hung handshakes that fire neither open nor close.
	Watchdog time.Duration
}

func DefaultConfig() Config {
	return Config{
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		MaxAttempts:    10,
		Watchdog:       30 * time.Second,
	}
}

// Manager drives one client's connection to the relay.
type Manager struct {
	cfg       Config
	endpoint  string
	dialer    interfaces.Dialer
	notifier  interfaces.Notifier
	onMessage func(data []byte)
	log       zerolog.Logger

	mu             sync.Mutex
	ctx            context.Context
	cancel         context.CancelFunc
	conn           *Conn
	attempt        int
	reconnectTimer *time.Timer
	watchdog       *time.Timer
	wasOpen        bool
	terminal       bool
	stopped        bool
}

func NewManager(endpoint string, dialer interfaces.Dialer, notifier interfaces.Notifier, cfg Config, log zerolog.Logger) *Manager {
	if cfg.InitialBackoff <= 0 {
		cfg = DefaultConfig()
	}
	return &Manager{
		cfg:      cfg,
		endpoint: endpoint,
		dialer:   dialer,
		notifier: notifier,
		log:      log.With().Str("component", "connection").Logger(),
	}
}

// OnMessage sets the inbound message callback. Must be called before
// Start; the callback runs on the single read loop, so one message is
// processed to completion before the next.
func (m *Manager) OnMessage(fn func(data []byte)) {
	m.onMessage = fn
}

// Start dials the relay and arms the open watchdog.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.watchdog = time.AfterFunc(m.cfg.Watchdog, m.watchdogFired)
	m.mu.Unlock()

	go m.dial()
}

// Stop closes the current connection cleanly and cancels all timers. No
// reconnection follows a clean shutdown.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	if m.watchdog != nil {
		m.watchdog.Stop()
		m.watchdog = nil
	}
	if m.cancel != nil {
		m.cancel()
	}
	c := m.conn
	m.conn = nil
	m.mu.Unlock()

	if c != nil {
		c.close(true)
	}
}

// State returns the current connection state, StateClosed when none exists.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return StateClosed
	}
	return m.conn.State()
}

// WriteEnvelope encodes and sends one envelope. Best-effort: a write while
// disconnected returns ErrNotConnected and is otherwise dropped.
func (m *Manager) WriteEnvelope(env *wire.Envelope) error {
	data, err := wire.Encode(env)
	if err != nil {
		return err
	}

	m.mu.Lock()
	c := m.conn
	m.mu.Unlock()

	if c == nil || c.State() != StateOpen {
		m.log.Debug().Str("request_type", env.RequestType).Msg("dropping outbound envelope while disconnected")
		return ErrNotConnected
	}
	return c.Write(data)
}

// NotifyOnline handles the host's network-online transition: if no live
// connection exists, any pending backoff timer is cancelled and a new
// attempt starts immediately with the budget reset. This path is exempt
// from the attempt budget and can resume the cycle indefinitely.
func (m *Manager) NotifyOnline() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	if m.conn != nil && m.conn.State() == StateOpen {
		m.mu.Unlock()
		return
	}
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	m.attempt = 0
	m.terminal = false
	m.mu.Unlock()

	m.log.Info().Msg("network online, reconnecting immediately")
	go m.dial()
}

func (m *Manager) dial() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	ctx := m.ctx
	m.mu.Unlock()

	sock, err := m.dialer.Dial(ctx, m.endpoint)
	if err != nil {
		m.log.Warn().Err(err).Str("endpoint", m.endpoint).Msg("dial failed")
		m.scheduleReconnect()
		return
	}

	c := newConn(sock)
	c.markOpen()

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		c.close(true)
		return
	}
	superseded := m.conn
	m.conn = c
	reconnected := m.wasOpen
	m.wasOpen = true
	m.attempt = 0
	m.terminal = false
	if m.watchdog != nil {
		m.watchdog.Stop()
		m.watchdog = nil
	}
	m.mu.Unlock()

	// A hung dial can complete after the watchdog already forced another
	// attempt; the replaced connection must not keep feeding onMessage.
	if superseded != nil {
		superseded.close(true)
	}

	m.log.Info().Bool("reconnect", reconnected).Msg("connection open")
	if reconnected && m.notifier != nil {
		m.notifier.ConnectionRestored()
	}

	go m.readLoop(c)
}

// readLoop pumps inbound messages until the transport fails or the
// connection is closed. Dispatch happens inline, so envelope processing is
// serialized per connection.
func (m *Manager) readLoop(c *Conn) {
	for {
		data, err := c.sock.ReadMessage()
		if err != nil {
			break
		}
		if m.onMessage != nil {
			m.onMessage(data)
		}
	}

	// Force-close on transport error so the close path runs exactly once;
	// a locally requested shutdown already marked the conn clean.
	c.close(false)
	m.handleClose(c)
}

func (m *Manager) handleClose(c *Conn) {
	m.mu.Lock()
	if m.conn != c {
		// A stale connection's close must not disturb its replacement.
		m.mu.Unlock()
		return
	}
	m.conn = nil
	stopped := m.stopped
	m.mu.Unlock()

	if stopped || c.WasClean() {
		return
	}
	m.log.Warn().Msg("connection lost")
	m.scheduleReconnect()
}

// scheduleReconnect arms the next backoff attempt. Rescheduling is
// idempotent: a pending timer is cancelled first, so timers never stack.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	if m.attempt >= m.cfg.MaxAttempts {
		m.terminal = true
		m.mu.Unlock()
		m.log.Error().Int("attempts", m.cfg.MaxAttempts).Msg("reconnect budget exhausted, going offline")
		if m.notifier != nil {
			m.notifier.ConnectionOffline()
		}
		return
	}
	delay := backoffDelay(m.attempt, m.cfg.InitialBackoff, m.cfg.MaxBackoff)
	m.attempt++
	m.reconnectTimer = time.AfterFunc(delay, func() { m.dial() })
	m.mu.Unlock()

	m.log.Info().Dur("delay", delay).Msg("reconnect scheduled")
}

func (m *Manager) watchdogFired() {
	m.mu.Lock()
	if m.wasOpen || m.stopped {
		m.mu.Unlock()
		return
	}
	c := m.conn
	m.mu.Unlock()

	m.log.Warn().Msg("connection never opened before watchdog deadline")
	if c != nil {
		c.close(false)
	}
	m.scheduleReconnect()
}

// backoffDelay is initial*2^attempt capped at max.
func backoffDelay(attempt int, initial, max time.Duration) time.Duration {
	if attempt >= 63 {
		return max
	}
	d := initial << uint(attempt)
	if d <= 0 || d > max {
		return max
	}
	return d
}
