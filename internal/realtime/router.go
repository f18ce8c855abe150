package realtime

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

var validate = validator.New()

// Store durable persistence boundary. The core never retries writes; failures
// surface to the sender as PersistenceError.
type Store interface {
	PersistMessage(ctx context.Context, conversationID, senderID int64, body string) (persistedID string, createdAt time.Time, err error)
	MarkRead(ctx context.Context, conversationID, userID int64) error
}

// MembershipReader authorization facts owned by the external data layer
type MembershipReader interface {
	IsMember(ctx context.Context, conversationID, userID int64) (bool, error)
	MemberIDs(ctx context.Context, conversationID int64) ([]int64, error)
}

// Router validates and dispatches one inbound event at a time per connection.
// Per-connection ordering is guaranteed by the caller: the connection's read
// loop does not read the next frame until Dispatch returns.
type Router struct {
	registry *Registry
	store    Store
	members  MembershipReader
}

// NewRouter creates a Router. The Registry is injected, never ambient.
func NewRouter(registry *Registry, store Store, members MembershipReader) *Router {
	return &Router{
		registry: registry,
		store:    store,
		members:  members,
	}
}

// Dispatch routes a single inbound event from an active connection.
// Failures are sender-only: ValidationError or PersistenceError.
func (rt *Router) Dispatch(ctx context.Context, conn *Connection, evt *InboundEvent) error {
	switch evt.Type {
	case EventTypeMessage:
		return rt.handleMessage(ctx, conn, evt)
	case EventTypeTyping, EventTypeStopTyping:
		return rt.handleTyping(ctx, conn, evt)
	case EventTypeJoin:
		return rt.handleJoin(ctx, conn, evt)
	default:
		return &ValidationError{Field: "type", Reason: "unknown event type"}
	}
}

// handleMessage validates, persists, then fans out. Delivery is never
// attempted before the durable write acknowledges success.
func (rt *Router) handleMessage(ctx context.Context, conn *Connection, evt *InboundEvent) error {
	conversationID, err := rt.targetConversation(ctx, conn, evt)
	if err != nil {
		return err
	}

	var payload MessagePayload
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		return &ValidationError{Field: "payload", Reason: "malformed message payload"}
	}
	if err := validate.Struct(payload); err != nil {
		return validationErrorFrom(err)
	}

	persistedID, createdAt, err := rt.store.PersistMessage(ctx, conversationID, conn.UserID, payload.Body)
	if err != nil {
		return &PersistenceError{Err: err}
	}

	// safe checkpoint: persisted, not yet delivered. A closing connection
	// skips its own fan-out; delivery is best-effort and not an error state.
	select {
	case <-ctx.Done():
		return nil
	default:
	}

	out := &OutboundEvent{
		Type:        EventTypeMessage,
		SenderID:    strconv.FormatInt(conn.UserID, 10),
		PersistedID: persistedID,
		Timestamp:   createdAt,
		Payload: ChatPayload{
			ConversationID: conversationID,
			Body:           payload.Body,
			SenderNickname: conn.Nickname,
		},
	}
	return rt.Broadcast(ctx, conversationID, out)
}

// handleTyping fans an ephemeral event out to the other members. No durable
// write, no persistedId; the persist-before-deliver invariant applies to
// message events only.
func (rt *Router) handleTyping(ctx context.Context, conn *Connection, evt *InboundEvent) error {
	conversationID, err := rt.targetConversation(ctx, conn, evt)
	if err != nil {
		return err
	}

	out := &OutboundEvent{
		Type:      evt.Type,
		SenderID:  strconv.FormatInt(conn.UserID, 10),
		Timestamp: time.Now(),
		Payload: TypingPayload{
			ConversationID: conversationID,
			UserID:         conn.UserID,
			Nickname:       conn.Nickname,
		},
	}

	memberIDs, err := rt.members.MemberIDs(ctx, conversationID)
	if err != nil {
		return &PersistenceError{Err: err}
	}
	// typing indicators are not echoed back to the typist's own devices
	recipients := lo.Without(lo.Uniq(memberIDs), conn.UserID)
	rt.deliver(recipients, out)
	return nil
}

// handleJoin moves the sender's read cursor in the target conversation
func (rt *Router) handleJoin(ctx context.Context, conn *Connection, evt *InboundEvent) error {
	conversationID, err := rt.targetConversation(ctx, conn, evt)
	if err != nil {
		return err
	}
	if err := rt.store.MarkRead(ctx, conversationID, conn.UserID); err != nil {
		return &PersistenceError{Err: err}
	}
	return nil
}

// Broadcast pushes an event to every live connection of every member of the
// conversation. Offline members simply miss live delivery; they catch up via
// the message history endpoints.
func (rt *Router) Broadcast(ctx context.Context, conversationID int64, out *OutboundEvent) error {
	memberIDs, err := rt.members.MemberIDs(ctx, conversationID)
	if err != nil {
		return &PersistenceError{Err: err}
	}
	rt.deliver(lo.Uniq(memberIDs), out)
	return nil
}

// NotifyUser pushes an event to one identity's live connections (likes,
// comments, invitations). Push-only: the caller owns any durable record.
func (rt *Router) NotifyUser(userID int64, out *OutboundEvent) {
	rt.deliver([]int64{userID}, out)
}

func (rt *Router) deliver(userIDs []int64, out *OutboundEvent) {
	conns := rt.registry.LookupMany(userIDs)
	if len(conns) == 0 {
		return
	}

	data, err := json.Marshal(out)
	if err != nil {
		return
	}
	for _, c := range conns {
		c.Enqueue(data)
	}
}

// targetConversation parses the target id and checks sender membership
func (rt *Router) targetConversation(ctx context.Context, conn *Connection, evt *InboundEvent) (int64, error) {
	conversationID, err := strconv.ParseInt(evt.TargetID, 10, 64)
	if err != nil || conversationID <= 0 {
		return 0, &ValidationError{Field: "targetId", Reason: "must be a conversation id"}
	}

	ok, err := rt.members.IsMember(ctx, conversationID, conn.UserID)
	if err != nil {
		return 0, &PersistenceError{Err: err}
	}
	if !ok {
		return 0, &ValidationError{Field: "targetId", Reason: "sender is not a member of this conversation"}
	}
	return conversationID, nil
}

// validationErrorFrom maps the first validator failure onto the wire taxonomy
func validationErrorFrom(err error) error {
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		return &ValidationError{Field: errs[0].Field(), Reason: "failed " + errs[0].Tag() + " validation"}
	}
	return &ValidationError{Field: "payload", Reason: err.Error()}
}
