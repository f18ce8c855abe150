package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnectionStateTransitions(t *testing.T) {
	c := newConnection(1, "alice", newFakeConn(), 8, 0)
	require.Equal(t, StatePending, c.State())

	require.True(t, c.markActive())
	require.Equal(t, StateActive, c.State())

	require.False(t, c.markActive(), "only PENDING transitions to ACTIVE")
}

func TestConnectionEnqueueWhilePendingDropped(t *testing.T) {
	c := newConnection(1, "alice", newFakeConn(), 8, 0)

	require.False(t, c.Enqueue([]byte("frame")), "PENDING connections receive nothing")
	require.Empty(t, drain(c))
}

func TestConnectionEnqueueDropsWhenFull(t *testing.T) {
	c := activeConn(1, "alice", 2)

	require.True(t, c.Enqueue([]byte("one")))
	require.True(t, c.Enqueue([]byte("two")))
	require.False(t, c.Enqueue([]byte("three")), "full queue drops instead of blocking")

	require.Len(t, drain(c), 2)
}

func TestConnectionCloseIdempotent(t *testing.T) {
	wc := newFakeConn()
	c := newConnection(1, "alice", wc, 8, 0)
	c.markActive()

	c.close()
	c.close()

	require.Equal(t, StateClosed, c.State())
	require.True(t, wc.closed)

	select {
	case <-c.Context().Done():
	default:
		t.Fatal("context should be cancelled after close")
	}

	require.False(t, c.Enqueue([]byte("late")), "closed connections accept nothing")
}

func TestWritePumpAppliesWriteDeadline(t *testing.T) {
	wc := newFakeConn()
	c := newConnection(1, "alice", wc, 8, time.Second)
	c.markActive()

	go c.writePump()
	defer c.close()

	require.True(t, c.Enqueue([]byte("frame")))
	require.Eventually(t, func() bool {
		return len(wc.writtenFrames()) == 1
	}, time.Second, 10*time.Millisecond)

	require.Equal(t, 1, wc.deadlineCount(), "a deadline is armed before each write")
}

func TestWritePumpSkipsDeadlineWhenDisabled(t *testing.T) {
	wc := newFakeConn()
	c := newConnection(1, "alice", wc, 8, 0)
	c.markActive()

	go c.writePump()
	defer c.close()

	require.True(t, c.Enqueue([]byte("frame")))
	require.Eventually(t, func() bool {
		return len(wc.writtenFrames()) == 1
	}, time.Second, 10*time.Millisecond)

	require.Zero(t, wc.deadlineCount())
}
