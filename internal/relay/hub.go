// Package relay implements the message relay the classroom clients
// consume: it accepts websocket connections, resolves each envelope's
// receivers to live connections, and fans the encoded message out.
// Delivery is best-effort; the relay keeps no per-recipient retry state.
package relay

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"classboard/pkg/interfaces"
	"classboard/pkg/types"
	"classboard/pkg/wire"
)

type inbound struct {
	env    *wire.Envelope
	sender *Conn
}

// Hub coordinates registration, deregistration, and delivery on a single
// goroutine so routing decisions never race connection bookkeeping.
type Hub struct {
	registerCh   chan *Conn
	unregisterCh chan *Conn
	deliverCh    chan inbound
	shutdownCh   chan struct{}

	registry *Registry
	store    interfaces.EnvelopeStore
	log      zerolog.Logger

	mu      sync.RWMutex
	running bool
}

// NewHub creates a hub. store may be nil to run without an envelope log.
func NewHub(registry *Registry, store interfaces.EnvelopeStore, log zerolog.Logger) *Hub {
	return &Hub{
		registerCh:   make(chan *Conn, 100),
		unregisterCh: make(chan *Conn, 100),
		deliverCh:    make(chan inbound, 1000),
		shutdownCh:   make(chan struct{}),
		registry:     registry,
		store:        store,
		log:          log.With().Str("component", "hub").Logger(),
	}
}

func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()

	go h.run(ctx)
	return nil
}

func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false

	select {
	case <-h.shutdownCh:
	default:
		close(h.shutdownCh)
	}
	return nil
}

func (h *Hub) Register(conn *Conn) error {
	return h.enqueueConn(h.registerCh, conn)
}

func (h *Hub) Unregister(conn *Conn) error {
	return h.enqueueConn(h.unregisterCh, conn)
}

// Deliver queues one inbound envelope for routing.
func (h *Hub) Deliver(env *wire.Envelope, sender *Conn) error {
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()
	if !running {
		return ErrHubNotRunning
	}

	select {
	case h.deliverCh <- inbound{env: env, sender: sender}:
		return nil
	default:
		return ErrChannelFull
	}
}

func (h *Hub) enqueueConn(ch chan *Conn, conn *Conn) error {
	if conn == nil {
		return ErrNilConnection
	}
	h.mu.RLock()
	running := h.running
	h.mu.RUnlock()
	if !running {
		return ErrHubNotRunning
	}

	select {
	case ch <- conn:
		return nil
	default:
		return ErrChannelFull
	}
}

func (h *Hub) run(ctx context.Context) {
	defer h.log.Info().Msg("hub stopped")

	for {
		select {
		case conn := <-h.registerCh:
			h.handleRegister(conn)
		case conn := <-h.unregisterCh:
			h.handleUnregister(conn)
		case in := <-h.deliverCh:
			h.handleDeliver(ctx, in)
		case <-h.shutdownCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) handleRegister(conn *Conn) {
	if err := h.registry.Register(conn); err != nil {
		h.log.Error().Err(err).Msg("registration failed")
		_ = conn.Close()
		return
	}
	h.log.Info().
		Str("classroom", conn.ClassroomID()).
		Int("user_id", conn.UserID()).
		Str("role", string(conn.Role())).
		Msg("connected")

	if conn.Role() == types.RoleStudent {
		h.sendRoster(conn, wire.RequestUserEnter)
	}
}

func (h *Hub) handleUnregister(conn *Conn) {
	h.registry.Unregister(conn)
	h.log.Info().
		Str("classroom", conn.ClassroomID()).
		Int("user_id", conn.UserID()).
		Msg("disconnected")

	if conn.Role() == types.RoleStudent {
		h.sendRoster(conn, wire.RequestUserLeave)
	}
}

// sendRoster notifies the classroom's teacher that a student joined or
// left. On enter the teacher may reload if the joining user is unknown.
func (h *Hub) sendRoster(conn *Conn, requestType string) {
	teacher := h.registry.Teacher(conn.ClassroomID())
	if teacher == nil {
		return
	}

	env := &wire.Envelope{
		RequestType: requestType,
		Data:        map[string]interface{}{"user_id": conn.UserID()},
		Receivers:   wire.ToTeacher(),
		MessageID:   uuid.NewString(),
		SenderID:    conn.UserID(),
	}
	data, err := wire.Encode(env)
	if err != nil {
		h.log.Error().Err(err).Msg("encode roster envelope")
		return
	}
	if err := teacher.Write(data); err != nil {
		h.log.Warn().Err(err).Msg("roster notification not delivered")
	}
}

func (h *Hub) handleDeliver(ctx context.Context, in inbound) {
	env := in.env

	// The sender id is relay truth: whatever the client sent is replaced
	// by the authenticated connection's id.
	env.SenderID = in.sender.UserID()
	if env.MessageID == "" {
		env.MessageID = uuid.NewString()
	}

	if h.store != nil {
		if err := h.store.LogEnvelope(ctx, in.sender.ClassroomID(), env); err != nil {
			// Logging failures must not block delivery.
			h.log.Warn().Err(err).Str("request_type", env.RequestType).Msg("envelope log failed")
		}
	}

	recipients := h.resolveRecipients(env, in.sender)
	if len(recipients) == 0 {
		h.log.Debug().
			Str("request_type", env.RequestType).
			Int("sender_id", env.SenderID).
			Msg("no recipients resolved")
		return
	}

	data, err := wire.Encode(env)
	if err != nil {
		h.log.Error().Err(err).Msg("encode envelope")
		return
	}
	for _, conn := range recipients {
		if err := conn.Write(data); err != nil {
			// Keep delivering to the remaining recipients.
			h.log.Warn().Err(err).Int("user_id", conn.UserID()).Msg("delivery failed")
		}
	}
}

// resolveRecipients maps the envelope's receivers field to live
// connections in the sender's classroom, excluding the sender itself.
func (h *Hub) resolveRecipients(env *wire.Envelope, sender *Conn) []*Conn {
	classroomID := sender.ClassroomID()

	var candidates []*Conn
	switch env.Receivers.Target {
	case wire.TargetTeacher:
		if t := h.registry.Teacher(classroomID); t != nil {
			candidates = []*Conn{t}
		}
	case wire.TargetStudent:
		candidates = h.registry.Students(classroomID)
	case wire.TargetAll:
		if t := h.registry.Teacher(classroomID); t != nil {
			candidates = append(candidates, t)
		}
		candidates = append(candidates, h.registry.Students(classroomID)...)
	default:
		for _, id := range env.Receivers.IDs {
			if s := h.registry.Student(classroomID, id); s != nil {
				candidates = append(candidates, s)
			}
		}
	}

	recipients := candidates[:0]
	for _, c := range candidates {
		if c != sender {
			recipients = append(recipients, c)
		}
	}
	return recipients
}
