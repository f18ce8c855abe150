package handler

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"postit-backend/internal/auth"
	"postit-backend/internal/model"
	"postit-backend/internal/realtime"
)

// CommentHandler comment endpoints
type CommentHandler struct {
	db     *gorm.DB
	router *realtime.Router
}

// NewCommentHandler creates a CommentHandler
func NewCommentHandler(db *gorm.DB, router *realtime.Router) *CommentHandler {
	return &CommentHandler{db: db, router: router}
}

// CreateCommentRequest new comment, optionally nested under a parent
type CreateCommentRequest struct {
	PostID   int64  `json:"post_id" validate:"required"`
	ParentID *int64 `json:"parent_id"`
	Content  string `json:"content" validate:"required,max=2000"`
}

// CommentResponse comment shape with nested replies
type CommentResponse struct {
	ID        int64              `json:"id"`
	PostID    int64              `json:"post_id"`
	ParentID  *int64             `json:"parent_id,omitempty"`
	Content   string             `json:"content"`
	CreatedAt string             `json:"created_at"`
	Author    *UserResponse      `json:"author,omitempty"`
	Children  []*CommentResponse `json:"children,omitempty"`
}

// CreateComment creates a comment and notifies the post author
func (h *CommentHandler) CreateComment(c *fiber.Ctx) error {
	claims, err := auth.GetClaimsFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "authentication required",
		})
	}

	var req CreateCommentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": validationMessage(err),
		})
	}

	var post model.Post
	if err := h.db.First(&post, req.PostID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "post not found",
		})
	}

	if req.ParentID != nil {
		var parent model.Comment
		if err := h.db.First(&parent, *req.ParentID).Error; err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "parent comment not found",
			})
		}
		if parent.PostID != post.ID {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "parent comment belongs to another post",
			})
		}
	}

	comment := model.Comment{
		PostID:   post.ID,
		AuthorID: claims.UserID,
		ParentID: req.ParentID,
		Content:  req.Content,
	}
	if err := h.db.Create(&comment).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to create comment",
		})
	}
	h.db.Preload("Author").First(&comment, comment.ID)

	if h.router != nil && post.AuthorID != claims.UserID {
		h.router.NotifyUser(post.AuthorID, &realtime.OutboundEvent{
			Type:      "notification",
			SenderID:  strconv.FormatInt(claims.UserID, 10),
			Timestamp: time.Now(),
			Payload: NotificationPayload{
				Kind:      "post_commented",
				PostID:    post.ID,
				PostTitle: post.Title,
				Actor:     &UserResponse{ID: claims.UserID, Nickname: claims.Nickname},
			},
		})
	}

	return c.Status(fiber.StatusCreated).JSON(toCommentResponse(&comment))
}

// GetPostComments lists a post's comments as a nested tree
func (h *CommentHandler) GetPostComments(c *fiber.Ctx) error {
	postID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid post id",
		})
	}

	var comments []model.Comment
	if err := h.db.Preload("Author").
		Where("post_id = ?", postID).
		Order("created_at ASC").
		Find(&comments).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to get comments",
		})
	}

	return c.JSON(fiber.Map{"comments": buildCommentTree(comments)})
}

// buildCommentTree links replies under their parents at any depth. Nodes are
// shared pointers so a reply placed before its own children still carries them.
func buildCommentTree(comments []model.Comment) []*CommentResponse {
	byID := make(map[int64]*CommentResponse, len(comments))
	for i := range comments {
		resp := toCommentResponse(&comments[i])
		byID[resp.ID] = &resp
	}

	roots := make([]*CommentResponse, 0, len(comments))
	for i := range comments {
		node := byID[comments[i].ID]
		if comments[i].ParentID == nil {
			roots = append(roots, node)
			continue
		}
		if parent, ok := byID[*comments[i].ParentID]; ok {
			parent.Children = append(parent.Children, node)
		} else {
			// reply whose parent was deleted surfaces at the top level
			roots = append(roots, node)
		}
	}
	return roots
}

// DeleteComment removes the caller's own comment and its replies
func (h *CommentHandler) DeleteComment(c *fiber.Ctx) error {
	claims, err := auth.GetClaimsFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "authentication required",
		})
	}

	commentID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid comment id",
		})
	}

	var comment model.Comment
	if err := h.db.First(&comment, commentID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "comment not found",
		})
	}
	if comment.AuthorID != claims.UserID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "you can only delete your own comments",
		})
	}

	if err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("parent_id = ?", comment.ID).Delete(&model.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&comment).Error
	}); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to delete comment",
		})
	}

	return c.JSON(fiber.Map{"message": "comment deleted"})
}

func toCommentResponse(comment *model.Comment) CommentResponse {
	resp := CommentResponse{
		ID:        comment.ID,
		PostID:    comment.PostID,
		ParentID:  comment.ParentID,
		Content:   comment.Content,
		CreatedAt: comment.CreatedAt.Format(time.RFC3339),
	}
	if comment.Author.ID != 0 {
		author := toUserResponse(&comment.Author)
		resp.Author = &author
	}
	return resp
}
