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

// PostHandler post endpoints
type PostHandler struct {
	db     *gorm.DB
	router *realtime.Router
}

// NewPostHandler creates a PostHandler
func NewPostHandler(db *gorm.DB, router *realtime.Router) *PostHandler {
	return &PostHandler{db: db, router: router}
}

// CreatePostRequest new post
type CreatePostRequest struct {
	Title   string `json:"title" validate:"required,max=200"`
	Content string `json:"content" validate:"required,max=10000"`
}

// PostResponse post shape
type PostResponse struct {
	ID           int64         `json:"id"`
	Title        string        `json:"title"`
	Content      string        `json:"content"`
	LikeCount    int64         `json:"like_count"`
	CommentCount int64         `json:"comment_count"`
	Liked        bool          `json:"liked"`
	CreatedAt    string        `json:"created_at"`
	EditedAt     *string       `json:"edited_at,omitempty"`
	Author       *UserResponse `json:"author,omitempty"`
}

// NotificationPayload realtime push for likes and comments
type NotificationPayload struct {
	Kind      string        `json:"kind"` // post_liked, post_commented
	PostID    int64         `json:"post_id"`
	PostTitle string        `json:"post_title"`
	Actor     *UserResponse `json:"actor,omitempty"`
}

// CreatePost creates a post
func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	claims, err := auth.GetClaimsFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "authentication required",
		})
	}

	var req CreatePostRequest
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

	post := model.Post{
		AuthorID: claims.UserID,
		Title:    req.Title,
		Content:  req.Content,
	}
	if err := h.db.Create(&post).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to create post",
		})
	}

	h.db.Preload("Author").First(&post, post.ID)
	return c.Status(fiber.StatusCreated).JSON(h.toPostResponse(&post, claims.UserID))
}

// GetPosts lists posts, newest first
func (h *PostHandler) GetPosts(c *fiber.Ctx) error {
	claims, err := auth.GetClaimsFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "authentication required",
		})
	}

	limit := c.QueryInt("limit", 20)
	if limit > 100 {
		limit = 100
	}
	offset := c.QueryInt("offset", 0)

	var posts []model.Post
	query := h.db.Preload("Author").Order("created_at DESC").Limit(limit).Offset(offset)

	// optional author filter
	if authorID := c.QueryInt("author", 0); authorID > 0 {
		query = query.Where("author_id = ?", authorID)
	}

	if err := query.Find(&posts).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to get posts",
		})
	}

	responses := make([]PostResponse, len(posts))
	for i, p := range posts {
		responses[i] = h.toPostResponse(&p, claims.UserID)
	}
	return c.JSON(fiber.Map{"posts": responses})
}

// GetPost fetches one post
func (h *PostHandler) GetPost(c *fiber.Ctx) error {
	claims, err := auth.GetClaimsFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "authentication required",
		})
	}

	postID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid post id",
		})
	}

	var post model.Post
	if err := h.db.Preload("Author").First(&post, postID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "post not found",
		})
	}

	return c.JSON(h.toPostResponse(&post, claims.UserID))
}

// DeletePost removes the caller's own post
func (h *PostHandler) DeletePost(c *fiber.Ctx) error {
	claims, err := auth.GetClaimsFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "authentication required",
		})
	}

	postID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid post id",
		})
	}

	var post model.Post
	if err := h.db.First(&post, postID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "post not found",
		})
	}
	if post.AuthorID != claims.UserID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "you can only delete your own posts",
		})
	}

	// likes and comments go with the post
	if err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", post.ID).Delete(&model.PostLike{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", post.ID).Delete(&model.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&post).Error
	}); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to delete post",
		})
	}

	return c.JSON(fiber.Map{"message": "post deleted"})
}

// LikePost likes a post once per user and notifies the author
func (h *PostHandler) LikePost(c *fiber.Ctx) error {
	claims, err := auth.GetClaimsFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "authentication required",
		})
	}

	postID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid post id",
		})
	}

	var post model.Post
	if err := h.db.First(&post, postID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "post not found",
		})
	}

	like := model.PostLike{PostID: post.ID, UserID: claims.UserID}
	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&like).Error; err != nil {
			return err
		}
		return tx.Model(&post).UpdateColumn("like_count", gorm.Expr("like_count + 1")).Error
	})
	if err != nil {
		// unique index makes a second like a conflict, not a double count
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "already liked",
		})
	}

	if h.router != nil && post.AuthorID != claims.UserID {
		h.router.NotifyUser(post.AuthorID, &realtime.OutboundEvent{
			Type:      "notification",
			SenderID:  strconv.FormatInt(claims.UserID, 10),
			Timestamp: time.Now(),
			Payload: NotificationPayload{
				Kind:      "post_liked",
				PostID:    post.ID,
				PostTitle: post.Title,
				Actor:     &UserResponse{ID: claims.UserID, Nickname: claims.Nickname},
			},
		})
	}

	return c.JSON(fiber.Map{"message": "liked"})
}

// UnlikePost removes the caller's like
func (h *PostHandler) UnlikePost(c *fiber.Ctx) error {
	claims, err := auth.GetClaimsFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "authentication required",
		})
	}

	postID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid post id",
		})
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("post_id = ? AND user_id = ?", postID, claims.UserID).Delete(&model.PostLike{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Model(&model.Post{}).Where("id = ?", postID).
			UpdateColumn("like_count", gorm.Expr("like_count - 1")).Error
	})
	if err == gorm.ErrRecordNotFound {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "not liked",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to unlike post",
		})
	}

	return c.JSON(fiber.Map{"message": "unliked"})
}

func (h *PostHandler) toPostResponse(post *model.Post, viewerID int64) PostResponse {
	var commentCount int64
	h.db.Model(&model.Comment{}).Where("post_id = ?", post.ID).Count(&commentCount)

	var liked int64
	h.db.Model(&model.PostLike{}).
		Where("post_id = ? AND user_id = ?", post.ID, viewerID).
		Count(&liked)

	resp := PostResponse{
		ID:           post.ID,
		Title:        post.Title,
		Content:      post.Content,
		LikeCount:    post.LikeCount,
		CommentCount: commentCount,
		Liked:        liked > 0,
		CreatedAt:    post.CreatedAt.Format(time.RFC3339),
	}
	if post.EditedAt != nil {
		edited := post.EditedAt.Format(time.RFC3339)
		resp.EditedAt = &edited
	}
	if post.Author.ID != 0 {
		author := toUserResponse(&post.Author)
		resp.Author = &author
	}
	return resp
}
