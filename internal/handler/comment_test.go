package handler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"postit-backend/internal/model"
)

func ptr(n int64) *int64 { return &n }

func TestBuildCommentTreeDeepReplies(t *testing.T) {
	comments := []model.Comment{
		{ID: 1, PostID: 7, Content: "root"},
		{ID: 2, PostID: 7, ParentID: ptr(1), Content: "reply"},
		{ID: 3, PostID: 7, ParentID: ptr(2), Content: "reply to reply"},
	}

	roots := buildCommentTree(comments)

	require.Len(t, roots, 1)
	require.Equal(t, int64(1), roots[0].ID)
	require.Len(t, roots[0].Children, 1)
	require.Equal(t, int64(2), roots[0].Children[0].ID)
	require.Len(t, roots[0].Children[0].Children, 1, "third-level reply must stay attached")
	require.Equal(t, int64(3), roots[0].Children[0].Children[0].ID)
}

func TestBuildCommentTreeSiblingsKeepOrder(t *testing.T) {
	comments := []model.Comment{
		{ID: 1, PostID: 7, Content: "first root"},
		{ID: 2, PostID: 7, Content: "second root"},
		{ID: 3, PostID: 7, ParentID: ptr(1), Content: "older reply"},
		{ID: 4, PostID: 7, ParentID: ptr(1), Content: "newer reply"},
	}

	roots := buildCommentTree(comments)

	require.Len(t, roots, 2)
	require.Equal(t, int64(1), roots[0].ID)
	require.Equal(t, int64(2), roots[1].ID)
	require.Len(t, roots[0].Children, 2)
	require.Equal(t, int64(3), roots[0].Children[0].ID)
	require.Equal(t, int64(4), roots[0].Children[1].ID)
	require.Empty(t, roots[1].Children)
}

func TestBuildCommentTreeOrphanSurfacesAtTopLevel(t *testing.T) {
	// parent 99 was deleted; its reply must not vanish from the listing
	comments := []model.Comment{
		{ID: 1, PostID: 7, Content: "root"},
		{ID: 2, PostID: 7, ParentID: ptr(99), Content: "orphaned reply"},
	}

	roots := buildCommentTree(comments)

	require.Len(t, roots, 2)
	require.Equal(t, int64(2), roots[1].ID)
}
