package relay

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"classboard/pkg/types"
	"classboard/pkg/wire"
)

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is a deployment concern; the relay itself
		// accepts any origin.
		return true
	},
}

// HandlerConfig bounds the per-connection heartbeat.
type HandlerConfig struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
}

func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
	}
}

// Handler upgrades websocket requests and pumps inbound messages into the
// hub.
type Handler struct {
	hub *Hub
	cfg HandlerConfig
	log zerolog.Logger
}

func NewHandler(hub *Hub, cfg HandlerConfig, log zerolog.Logger) *Handler {
	if cfg.PingInterval <= 0 {
		cfg = DefaultHandlerConfig()
	}
	return &Handler{
		hub: hub,
		cfg: cfg,
		log: log.With().Str("component", "ws-handler").Logger(),
	}
}

// HandleWS validates the connection parameters, upgrades, and registers
// the participant. Validation happens before the upgrade so rejected
// requests get proper HTTP status codes.
func (h *Handler) HandleWS(w http.ResponseWriter, r *http.Request) {
	classroomID := r.URL.Query().Get("classroom_id")
	rawUserID := r.URL.Query().Get("user_id")
	role := types.Role(r.URL.Query().Get("role"))

	if classroomID == "" || rawUserID == "" {
		http.Error(w, "missing required query parameters: classroom_id, user_id, role", http.StatusBadRequest)
		return
	}
	userID, err := strconv.Atoi(rawUserID)
	if err != nil || userID <= 0 {
		http.Error(w, "user_id must be a positive integer", http.StatusBadRequest)
		return
	}
	if !role.Valid() {
		http.Error(w, "role must be 'teacher' or 'student'", http.StatusBadRequest)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := NewConn(ws, classroomID, userID, role)
	if err := h.hub.Register(conn); err != nil {
		h.log.Error().Err(err).Msg("registration rejected")
		_ = conn.Close()
		return
	}

	go h.readPump(conn)
}

// readPump reads inbound messages until the connection drops, keeping the
// heartbeat alive with ping/pong.
func (h *Handler) readPump(conn *Conn) {
	defer func() {
		_ = h.hub.Unregister(conn)
		_ = conn.Close()
	}()

	if err := conn.ws.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout)); err != nil {
		return
	}
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
	})

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(connWriteTimeout)); err != nil {
					return
				}
			case <-conn.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Int("user_id", conn.UserID()).Msg("read failed")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		env, err := wire.Decode(data)
		if err != nil {
			// A malformed client message is dropped, not fatal.
			h.log.Warn().Err(err).Int("user_id", conn.UserID()).Msg("discarding undecodable message")
			continue
		}
		if err := h.hub.Deliver(env, conn); err != nil {
			h.log.Warn().Err(err).Msg("delivery enqueue failed")
		}
	}
}
