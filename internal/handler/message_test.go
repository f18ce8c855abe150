package handler

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"postit-backend/internal/presence"
)

func convAt(id int64, at time.Time) ConversationResponse {
	resp := ConversationResponse{ID: id}
	if !at.IsZero() {
		resp.LastMessage = &MessageResponse{CreatedAt: at.Format(time.RFC3339)}
		resp.lastAt = at
	}
	return resp
}

func TestLaterActivityComparesInstants(t *testing.T) {
	// same day, but the offset timestamp is the earlier instant even though
	// its formatted string sorts after the UTC one
	seoul := time.FixedZone("KST", 9*3600)
	earlier := time.Date(2026, 8, 27, 12, 0, 0, 0, seoul) // 03:00 UTC
	later := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)

	a := convAt(1, earlier)
	b := convAt(2, later)

	require.True(t, laterActivity(b, a))
	require.False(t, laterActivity(a, b))
}

func TestLaterActivitySortsEmptyConversationsLast(t *testing.T) {
	now := time.Now()
	responses := []ConversationResponse{
		convAt(1, time.Time{}),
		convAt(2, now.Add(-time.Hour)),
		convAt(3, now),
	}

	sort.Slice(responses, func(i, j int) bool {
		return laterActivity(responses[i], responses[j])
	})

	require.Equal(t, int64(3), responses[0].ID)
	require.Equal(t, int64(2), responses[1].ID)
	require.Equal(t, int64(1), responses[2].ID, "conversations without messages sort last")
}

func TestOnlineMembersFiltersByPresence(t *testing.T) {
	members := []UserResponse{{ID: 1}, {ID: 2}, {ID: 3}}
	presenceMap := map[int64]*presence.Data{
		1: {UserID: 1, Status: presence.StatusOnline},
		3: {UserID: 3, Status: presence.StatusOffline},
	}

	require.Equal(t, []int64{1}, onlineMembers(members, presenceMap))
}

func TestOnlineMembersEmptyMap(t *testing.T) {
	members := []UserResponse{{ID: 1}, {ID: 2}}
	require.Empty(t, onlineMembers(members, map[int64]*presence.Data{}))
}
