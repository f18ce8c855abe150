package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func messageEvent(target, body string) *InboundEvent {
	payload, _ := json.Marshal(MessagePayload{Body: body})
	return &InboundEvent{Type: EventTypeMessage, TargetID: target, Payload: payload}
}

func TestDispatchMessageDeliversToAllMemberConnections(t *testing.T) {
	registry := NewRegistry()
	store := newFakeStore(map[int64][]int64{10: {1, 2}})
	router := NewRouter(registry, store, store)

	s1 := activeConn(1, "alice", 8)
	s2 := activeConn(1, "alice", 8)
	r1 := activeConn(2, "bob", 8)
	registry.Register(s1)
	registry.Register(s2)
	registry.Register(r1)

	err := router.Dispatch(context.Background(), s1, messageEvent("10", "hello"))
	require.NoError(t, err)
	require.Equal(t, []string{"hello"}, store.persisted)

	// every live connection of every member sees the event, sender included
	for _, c := range []*Connection{s1, s2, r1} {
		events := drain(c)
		require.Len(t, events, 1)
		require.Equal(t, EventTypeMessage, events[0].Type)
		require.Equal(t, "1", events[0].SenderID)
		require.NotEmpty(t, events[0].PersistedID)
	}
}

func TestDispatchMessageSamePersistedIDEverywhere(t *testing.T) {
	registry := NewRegistry()
	store := newFakeStore(map[int64][]int64{10: {1, 2}})
	router := NewRouter(registry, store, store)

	sender := activeConn(1, "alice", 8)
	receiver := activeConn(2, "bob", 8)
	registry.Register(sender)
	registry.Register(receiver)

	require.NoError(t, router.Dispatch(context.Background(), sender, messageEvent("10", "hi")))

	senderEvents := drain(sender)
	receiverEvents := drain(receiver)
	require.Len(t, senderEvents, 1)
	require.Len(t, receiverEvents, 1)
	require.Equal(t, senderEvents[0].PersistedID, receiverEvents[0].PersistedID)
}

func TestDispatchMessageNonMemberRejected(t *testing.T) {
	registry := NewRegistry()
	store := newFakeStore(map[int64][]int64{10: {2, 3}})
	router := NewRouter(registry, store, store)

	outsider := activeConn(1, "mallory", 8)
	registry.Register(outsider)

	err := router.Dispatch(context.Background(), outsider, messageEvent("10", "let me in"))

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "targetId", verr.Field)
	require.Empty(t, store.persisted, "nothing persisted for rejected events")
	require.Empty(t, drain(outsider))
}

func TestDispatchMessagePersistenceFailureSenderOnly(t *testing.T) {
	registry := NewRegistry()
	store := newFakeStore(map[int64][]int64{10: {1, 2}})
	store.persistErr = errors.New("db down")
	router := NewRouter(registry, store, store)

	sender := activeConn(1, "alice", 8)
	receiver := activeConn(2, "bob", 8)
	registry.Register(sender)
	registry.Register(receiver)

	err := router.Dispatch(context.Background(), sender, messageEvent("10", "hello"))

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	require.Empty(t, drain(receiver), "no delivery before a successful persist")
}

func TestDispatchMessageEmptyBodyRejected(t *testing.T) {
	registry := NewRegistry()
	store := newFakeStore(map[int64][]int64{10: {1}})
	router := NewRouter(registry, store, store)

	sender := activeConn(1, "alice", 8)
	registry.Register(sender)

	err := router.Dispatch(context.Background(), sender, messageEvent("10", ""))

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "Body", verr.Field)
	require.Empty(t, store.persisted)
}

func TestDispatchMessageBadTargetRejected(t *testing.T) {
	registry := NewRegistry()
	store := newFakeStore(map[int64][]int64{})
	router := NewRouter(registry, store, store)
	sender := activeConn(1, "alice", 8)

	for _, target := range []string{"", "abc", "-3"} {
		err := router.Dispatch(context.Background(), sender, messageEvent(target, "hello"))
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		require.Equal(t, "targetId", verr.Field)
	}
}

func TestDispatchUnknownEventTypeRejected(t *testing.T) {
	registry := NewRegistry()
	store := newFakeStore(map[int64][]int64{})
	router := NewRouter(registry, store, store)
	sender := activeConn(1, "alice", 8)

	err := router.Dispatch(context.Background(), sender, &InboundEvent{Type: "teleport", TargetID: "10"})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "type", verr.Field)
}

func TestDispatchCancelledAfterPersistIsNotAnError(t *testing.T) {
	registry := NewRegistry()
	store := newFakeStore(map[int64][]int64{10: {1, 2}})
	router := NewRouter(registry, store, store)

	sender := activeConn(1, "alice", 8)
	receiver := activeConn(2, "bob", 8)
	registry.Register(sender)
	registry.Register(receiver)

	ctx, cancel := context.WithCancel(context.Background())
	store.onPersist = cancel

	err := router.Dispatch(ctx, sender, messageEvent("10", "last words"))

	require.NoError(t, err, "persisted-but-undelivered is not a failure")
	require.Equal(t, []string{"last words"}, store.persisted)
	require.Empty(t, drain(receiver))
}

func TestDispatchTypingExcludesSender(t *testing.T) {
	registry := NewRegistry()
	store := newFakeStore(map[int64][]int64{10: {1, 2}})
	router := NewRouter(registry, store, store)

	s1 := activeConn(1, "alice", 8)
	s2 := activeConn(1, "alice", 8)
	receiver := activeConn(2, "bob", 8)
	registry.Register(s1)
	registry.Register(s2)
	registry.Register(receiver)

	err := router.Dispatch(context.Background(), s1, &InboundEvent{Type: EventTypeTyping, TargetID: "10"})
	require.NoError(t, err)

	require.Empty(t, store.persisted, "typing events are never persisted")
	require.Empty(t, drain(s1))
	require.Empty(t, drain(s2), "the typist's other devices are excluded too")

	events := drain(receiver)
	require.Len(t, events, 1)
	require.Equal(t, EventTypeTyping, events[0].Type)
}

func TestDispatchJoinMovesReadCursor(t *testing.T) {
	registry := NewRegistry()
	store := newFakeStore(map[int64][]int64{10: {1}})
	router := NewRouter(registry, store, store)

	sender := activeConn(1, "alice", 8)
	registry.Register(sender)

	err := router.Dispatch(context.Background(), sender, &InboundEvent{Type: EventTypeJoin, TargetID: "10"})
	require.NoError(t, err)
	require.Equal(t, []int64{10}, store.readMarks)
}

func TestDispatchPreservesPerConnectionOrder(t *testing.T) {
	registry := NewRegistry()
	store := newFakeStore(map[int64][]int64{10: {1, 2}})
	router := NewRouter(registry, store, store)

	sender := activeConn(1, "alice", 8)
	receiver := activeConn(2, "bob", 8)
	registry.Register(sender)
	registry.Register(receiver)

	require.NoError(t, router.Dispatch(context.Background(), sender, messageEvent("10", "first")))
	require.NoError(t, router.Dispatch(context.Background(), sender, messageEvent("10", "second")))

	events := drain(receiver)
	require.Len(t, events, 2)
	first, _ := events[0].Payload.(map[string]interface{})
	second, _ := events[1].Payload.(map[string]interface{})
	require.Equal(t, "first", first["body"])
	require.Equal(t, "second", second["body"])
}

func TestNotifyUserReachesOnlyThatIdentity(t *testing.T) {
	registry := NewRegistry()
	store := newFakeStore(map[int64][]int64{})
	router := NewRouter(registry, store, store)

	target := activeConn(7, "carol", 8)
	other := activeConn(8, "dave", 8)
	registry.Register(target)
	registry.Register(other)

	router.NotifyUser(7, &OutboundEvent{Type: "notification"})

	require.Len(t, drain(target), 1)
	require.Empty(t, drain(other))
}

func TestBroadcastDropsFramesWhenQueueFull(t *testing.T) {
	registry := NewRegistry()
	store := newFakeStore(map[int64][]int64{10: {1}})
	router := NewRouter(registry, store, store)

	// queue of one: the second frame must be dropped, not block
	slow := activeConn(1, "alice", 1)
	registry.Register(slow)

	require.NoError(t, router.Broadcast(context.Background(), 10, &OutboundEvent{Type: EventTypeMessage}))
	require.NoError(t, router.Broadcast(context.Background(), 10, &OutboundEvent{Type: EventTypeMessage}))

	require.Len(t, drain(slow), 1)
}
