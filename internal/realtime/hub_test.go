package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeAuthn token -> identity table
type fakeAuthn struct {
	identities map[string]Identity
	reasons    map[string]AuthReason
}

func (a *fakeAuthn) Authenticate(ctx context.Context, token string) (Identity, *AuthError) {
	if token == "" {
		return Identity{}, &AuthError{Reason: ReasonMissingToken}
	}
	if reason, ok := a.reasons[token]; ok {
		return Identity{}, &AuthError{Reason: reason}
	}
	if id, ok := a.identities[token]; ok {
		return id, nil
	}
	return Identity{}, &AuthError{Reason: ReasonInvalidToken}
}

// fakePresence counts notifier transitions
type fakePresence struct {
	mu           sync.Mutex
	connected    []int64
	disconnected []int64
	heartbeats   []int64
}

func (p *fakePresence) Connected(userID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = append(p.connected, userID)
}

func (p *fakePresence) Disconnected(userID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnected = append(p.disconnected, userID)
}

func (p *fakePresence) Heartbeat(userID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.heartbeats = append(p.heartbeats, userID)
}

func newTestHub(registry *Registry, presence PresenceNotifier) *Hub {
	store := newFakeStore(map[int64][]int64{10: {1, 2}})
	router := NewRouter(registry, store, store)
	authn := &fakeAuthn{
		identities: map[string]Identity{"good-token": {UserID: 1, Nickname: "alice"}},
		reasons:    map[string]AuthReason{"stale-token": ReasonExpiredToken},
	}
	return NewHub(registry, router, authn, presence, time.Second, time.Second, 8)
}

func authFrame(t *testing.T, wc *fakeConn) ErrorPayload {
	t.Helper()
	frames := wc.writtenFrames()
	require.Len(t, frames, 1)

	var evt struct {
		Type    string       `json:"type"`
		Payload ErrorPayload `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(frames[0], &evt))
	require.Equal(t, EventTypeError, evt.Type)
	return evt.Payload
}

func TestServeMissingTokenRefused(t *testing.T) {
	registry := NewRegistry()
	hub := newTestHub(registry, nil)
	wc := newFakeConn()

	hub.Serve(wc, "")

	payload := authFrame(t, wc)
	require.Equal(t, "AUTH_ERROR", payload.Code)
	require.Equal(t, string(ReasonMissingToken), payload.Reason)
	require.True(t, wc.closed)
	require.Equal(t, 0, registry.ConnectionCount(), "rejected connections are never registered")
}

func TestServeInvalidTokenRefused(t *testing.T) {
	registry := NewRegistry()
	hub := newTestHub(registry, nil)
	wc := newFakeConn()

	hub.Serve(wc, "garbage")

	payload := authFrame(t, wc)
	require.Equal(t, string(ReasonInvalidToken), payload.Reason)
	require.Equal(t, 0, registry.ConnectionCount())
}

func TestServeExpiredTokenRefused(t *testing.T) {
	registry := NewRegistry()
	hub := newTestHub(registry, nil)
	wc := newFakeConn()

	hub.Serve(wc, "stale-token")

	payload := authFrame(t, wc)
	require.Equal(t, string(ReasonExpiredToken), payload.Reason)
	require.Equal(t, 0, registry.ConnectionCount())
}

func TestServeLifecycleRegistersAndTearsDown(t *testing.T) {
	registry := NewRegistry()
	presence := &fakePresence{}
	hub := newTestHub(registry, presence)

	frame, _ := json.Marshal(messageEvent("10", "hello"))
	wc := newFakeConn(frame)

	hub.Serve(wc, "good-token")

	// transport exhausted: connection fully torn down
	require.Equal(t, 0, registry.ConnectionCount())
	require.True(t, wc.closed)
	require.Equal(t, []int64{1}, presence.connected)
	require.Equal(t, []int64{1}, presence.disconnected)
}

func TestServePingRefreshesPresence(t *testing.T) {
	registry := NewRegistry()
	presence := &fakePresence{}
	hub := newTestHub(registry, presence)

	ping, _ := json.Marshal(InboundEvent{Type: EventTypePing})
	wc := newFakeConn(ping, ping)

	hub.Serve(wc, "good-token")

	// each client ping keeps the presence mirror alive while connected
	require.Equal(t, []int64{1, 1}, presence.heartbeats)
	require.Equal(t, []int64{1}, presence.connected)
	require.Equal(t, []int64{1}, presence.disconnected)
}

func TestServeMalformedFrameContinues(t *testing.T) {
	registry := NewRegistry()
	hub := newTestHub(registry, nil)

	good, _ := json.Marshal(messageEvent("10", "after the bad one"))
	wc := newFakeConn([]byte("{not json"), good)

	hub.Serve(wc, "good-token")

	// the malformed frame did not kill the connection; the good frame persisted
	require.Equal(t, 0, registry.ConnectionCount())
	require.True(t, wc.closed)
}

func TestTeardownIdempotent(t *testing.T) {
	registry := NewRegistry()
	presence := &fakePresence{}
	hub := newTestHub(registry, presence)

	conn := activeConn(1, "alice", 8)
	registry.Register(conn)
	presence.Connected(conn.UserID)

	hub.teardown(conn)
	hub.teardown(conn)

	require.Equal(t, 0, registry.ConnectionCount())
	require.Equal(t, []int64{1}, presence.disconnected, "duplicate teardown notifies once")
}

func TestAcceptSecondConnectionSameIdentity(t *testing.T) {
	registry := NewRegistry()
	presence := &fakePresence{}
	hub := newTestHub(registry, presence)

	c1, aerr := hub.accept(newFakeConn(), "good-token")
	require.Nil(t, aerr)
	c2, aerr := hub.accept(newFakeConn(), "good-token")
	require.Nil(t, aerr)

	require.Equal(t, 2, registry.ConnectionCount())
	require.Equal(t, []int64{1}, presence.connected, "presence fires on the first connection only")

	hub.teardown(c1)
	require.Empty(t, presence.disconnected, "identity still online on another device")
	hub.teardown(c2)
	require.Equal(t, []int64{1}, presence.disconnected)
}
