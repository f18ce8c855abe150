package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

// Connection liveness states
const (
	StatePending int32 = iota
	StateActive
	StateClosing
	StateClosed
)

// Conn transport-level session, satisfied by *websocket.Conn
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Connection one live authenticated session. An identity may own several
// concurrent connections (multi-device); each has its own send queue drained
// by a single writer goroutine so outbound frames are never interleaved.
type Connection struct {
	ID        string
	UserID    int64
	Nickname  string
	CreatedAt time.Time

	wc           Conn
	send         chan []byte
	state        atomic.Int32
	writeTimeout time.Duration

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newConnection(userID int64, nickname string, wc Conn, queueSize int, writeTimeout time.Duration) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		ID:           uuid.NewString(),
		UserID:       userID,
		Nickname:     nickname,
		CreatedAt:    time.Now(),
		wc:           wc,
		send:         make(chan []byte, queueSize),
		writeTimeout: writeTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
	c.state.Store(StatePending)
	return c
}

// State current liveness state
func (c *Connection) State() int32 {
	return c.state.Load()
}

// markActive transitions PENDING -> ACTIVE; only ACTIVE connections process events
func (c *Connection) markActive() bool {
	return c.state.CompareAndSwap(StatePending, StateActive)
}

// Context is cancelled when the connection starts closing; in-flight event
// processing stops at the next safe checkpoint.
func (c *Connection) Context() context.Context {
	return c.ctx
}

// Enqueue queues a frame for delivery. Best-effort: when the queue is full the
// frame is dropped rather than blocking the sender's fan-out.
func (c *Connection) Enqueue(data []byte) bool {
	if c.state.Load() != StateActive {
		return false
	}
	select {
	case c.send <- data:
		return true
	case <-c.ctx.Done():
		return false
	default:
		log.Printf("[Conn %s] send queue full, dropping frame", c.ID)
		return false
	}
}

// EnqueueEvent marshals and queues an outbound event
func (c *Connection) EnqueueEvent(evt *OutboundEvent) bool {
	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("[Conn %s] failed to marshal event: %v", c.ID, err)
		return false
	}
	return c.Enqueue(data)
}

// writePump drains the send queue onto the transport. One per connection.
func (c *Connection) writePump() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if c.writeTimeout > 0 {
				_ = c.wc.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			}
			if err := c.wc.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("[Conn %s] write failed: %v", c.ID, err)
				return
			}
		}
	}
}

// close tears the transport down exactly once, regardless of how many
// termination signals fire for this connection.
func (c *Connection) close() {
	c.closeOnce.Do(func() {
		c.state.Store(StateClosing)
		c.cancel()
		if err := c.wc.Close(); err != nil {
			// cleanup errors never propagate back into the transport layer
			log.Printf("[Conn %s] close: %v", c.ID, err)
		}
		c.state.Store(StateClosed)
	})
}
