package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"
)

// fakeConn scripted transport for tests
type fakeConn struct {
	mu        sync.Mutex
	reads     [][]byte
	written   [][]byte
	deadlines int
	closed    bool
}

func newFakeConn(frames ...[]byte) *fakeConn {
	return &fakeConn{reads: frames}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reads) == 0 {
		return 0, nil, io.EOF
	}
	frame := f.reads[0]
	f.reads = f.reads[1:]
	return 1, frame, nil
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, data)
	return nil
}

func (f *fakeConn) SetWriteDeadline(t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadlines++
	return nil
}

func (f *fakeConn) deadlineCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deadlines
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) writtenFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.written))
	copy(out, f.written)
	return out
}

// fakeStore in-memory Store and MembershipReader
type fakeStore struct {
	mu         sync.Mutex
	members    map[int64][]int64 // conversationID -> member user IDs
	persisted  []string
	nextID     int64
	persistErr error
	onPersist  func() // runs after a successful persist, before returning
	readMarks  []int64
}

func newFakeStore(members map[int64][]int64) *fakeStore {
	return &fakeStore{members: members, nextID: 100}
}

func (s *fakeStore) PersistMessage(ctx context.Context, conversationID, senderID int64, body string) (string, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persistErr != nil {
		return "", time.Time{}, s.persistErr
	}
	s.nextID++
	id := s.nextID
	s.persisted = append(s.persisted, body)
	if s.onPersist != nil {
		s.onPersist()
	}
	return itoa(id), time.Now(), nil
}

func (s *fakeStore) MarkRead(ctx context.Context, conversationID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readMarks = append(s.readMarks, conversationID)
	return nil
}

func (s *fakeStore) IsMember(ctx context.Context, conversationID, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.members[conversationID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) MemberIDs(ctx context.Context, conversationID int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, ok := s.members[conversationID]
	if !ok {
		return nil, errors.New("unknown conversation")
	}
	return ids, nil
}

func itoa(n int64) string {
	data, _ := json.Marshal(n)
	return string(data)
}

// activeConn builds a registered-ready connection without a writer goroutine;
// tests read its queue directly
func activeConn(userID int64, nickname string, queueSize int) *Connection {
	c := newConnection(userID, nickname, newFakeConn(), queueSize, 0)
	c.markActive()
	return c
}

// drain reads every frame currently queued on a connection
func drain(c *Connection) []OutboundEvent {
	var events []OutboundEvent
	for {
		select {
		case data := <-c.send:
			var evt OutboundEvent
			_ = json.Unmarshal(data, &evt)
			events = append(events, evt)
		default:
			return events
		}
	}
}
