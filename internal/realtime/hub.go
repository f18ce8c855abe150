package realtime

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// Identity authenticated principal owning a connection
type Identity struct {
	UserID   int64
	Nickname string
}

// Authenticator turns a credential token into an Identity or an AuthError
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Identity, *AuthError)
}

// PresenceNotifier observes identity online/offline transitions. Delivery
// targeting never depends on it; it only mirrors presence outward.
type PresenceNotifier interface {
	Connected(userID int64)
	Disconnected(userID int64)
	Heartbeat(userID int64)
}

// Hub owns the connection lifecycle: authentication, registration, the
// per-connection read loop, and idempotent teardown.
type Hub struct {
	registry     *Registry
	router       *Router
	authn        Authenticator
	presence     PresenceNotifier // optional
	authTimeout  time.Duration
	writeTimeout time.Duration
	queueSize    int
}

// NewHub creates a Hub. presence may be nil.
func NewHub(registry *Registry, router *Router, authn Authenticator, presence PresenceNotifier, authTimeout, writeTimeout time.Duration, queueSize int) *Hub {
	return &Hub{
		registry:     registry,
		router:       router,
		authn:        authn,
		presence:     presence,
		authTimeout:  authTimeout,
		writeTimeout: writeTimeout,
		queueSize:    queueSize,
	}
}

// Serve drives one connection from PENDING to CLOSED. It blocks until the
// transport drops and is intended to run in the websocket handler goroutine,
// which makes it the single-threaded actor for this connection's events.
func (h *Hub) Serve(wc Conn, token string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Hub] recovered from connection panic: %v", r)
		}
	}()

	conn, aerr := h.accept(wc, token)
	if aerr != nil {
		// REJECTED is terminal: the identity never entered the registry
		h.refuse(wc, aerr)
		return
	}

	log.Printf("[Hub] connected: user=%d conn=%s", conn.UserID, conn.ID)
	defer h.teardown(conn)

	for {
		_, data, err := wc.ReadMessage()
		if err != nil {
			return
		}

		var evt InboundEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			h.sendError(conn, &ValidationError{Field: "event", Reason: "malformed frame"})
			continue
		}

		if evt.Type == EventTypePing {
			// client pings double as presence keepalives
			if h.presence != nil {
				h.presence.Heartbeat(conn.UserID)
			}
			conn.EnqueueEvent(&OutboundEvent{Type: EventTypePong, Timestamp: time.Now()})
			continue
		}

		// the next frame is not read until this event's persist-and-deliver
		// sequence completes, preserving per-connection order
		if err := h.router.Dispatch(conn.Context(), conn, &evt); err != nil {
			h.sendError(conn, err)
		}
	}
}

// accept runs the PENDING stage: bounded authentication, then registration
func (h *Hub) accept(wc Conn, token string) (*Connection, *AuthError) {
	ctx, cancel := context.WithTimeout(context.Background(), h.authTimeout)
	defer cancel()

	identity, aerr := h.authn.Authenticate(ctx, token)
	if aerr != nil {
		return nil, aerr
	}
	if ctx.Err() != nil {
		// an overrun auth window takes the same path as a bad token
		return nil, &AuthError{Reason: ReasonInvalidToken}
	}

	conn := newConnection(identity.UserID, identity.Nickname, wc, h.queueSize, h.writeTimeout)
	conn.markActive()

	if first := h.registry.Register(conn); first && h.presence != nil {
		h.presence.Connected(conn.UserID)
	}

	go conn.writePump()
	return conn, nil
}

// teardown deregisters and releases a connection. Safe against duplicate
// termination signals; cleanup errors are logged and swallowed.
func (h *Hub) teardown(conn *Connection) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Hub] recovered from teardown panic: %v", r)
		}
	}()

	if last := h.registry.Deregister(conn); last && h.presence != nil {
		h.presence.Disconnected(conn.UserID)
	}
	conn.close()
	log.Printf("[Hub] disconnected: user=%d conn=%s", conn.UserID, conn.ID)
}

// refuse writes a structured auth rejection and closes the raw transport
func (h *Hub) refuse(wc Conn, aerr *AuthError) {
	frame := &OutboundEvent{
		Type:      EventTypeError,
		Timestamp: time.Now(),
		Payload:   ErrorPayload{Code: "AUTH_ERROR", Reason: string(aerr.Reason)},
	}
	if data, err := json.Marshal(frame); err == nil {
		_ = wc.WriteMessage(websocket.TextMessage, data)
	}
	_ = wc.Close()
}

// sendError reports an event failure to the originating connection only
func (h *Hub) sendError(conn *Connection, err error) {
	payload := ErrorPayload{Code: "VALIDATION_ERROR"}
	switch e := err.(type) {
	case *ValidationError:
		payload.Field = e.Field
		payload.Reason = e.Reason
	case *PersistenceError:
		payload.Code = "PERSISTENCE_ERROR"
		payload.Reason = "message could not be stored, please retry"
	default:
		payload.Reason = err.Error()
	}

	conn.EnqueueEvent(&OutboundEvent{
		Type:      EventTypeError,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}
