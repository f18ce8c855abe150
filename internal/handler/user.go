package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"postit-backend/internal/auth"
	"postit-backend/internal/model"
	"postit-backend/internal/presence"
)

// UserHandler user endpoints
type UserHandler struct {
	db          *gorm.DB
	presenceMgr *presence.Manager // optional
}

// NewUserHandler creates a UserHandler. presenceMgr may be nil.
func NewUserHandler(db *gorm.DB, presenceMgr *presence.Manager) *UserHandler {
	return &UserHandler{db: db, presenceMgr: presenceMgr}
}

// ProfileResponse user profile with activity counts
type ProfileResponse struct {
	UserResponse
	PostCount int64  `json:"post_count"`
	Status    string `json:"status"` // ONLINE, OFFLINE, UNKNOWN
}

// UpdateMeRequest profile update
type UpdateMeRequest struct {
	Nickname  *string `json:"nickname" validate:"omitempty,min=3,max=30"`
	Biography *string `json:"biography" validate:"omitempty,max=250"`
}

// SearchUsersResponse user search result
type SearchUsersResponse struct {
	Users []UserResponse `json:"users"`
	Total int64          `json:"total"`
}

// GetUser fetches one profile by id
func (h *UserHandler) GetUser(c *fiber.Ctx) error {
	userID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid user id",
		})
	}

	var user model.User
	if err := h.db.First(&user, userID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "user not found",
		})
	}

	var postCount int64
	h.db.Model(&model.Post{}).Where("author_id = ?", user.ID).Count(&postCount)

	status := "UNKNOWN"
	if h.presenceMgr != nil {
		if data, err := h.presenceMgr.Get(user.ID); err == nil {
			status = string(presence.StatusOffline)
			if data != nil {
				status = string(data.Status)
			}
		}
	}

	return c.JSON(ProfileResponse{
		UserResponse: toUserResponse(&user),
		PostCount:    postCount,
		Status:       status,
	})
}

// UpdateMe updates the authenticated user's profile
func (h *UserHandler) UpdateMe(c *fiber.Ctx) error {
	claims, err := auth.GetClaimsFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "authentication required",
		})
	}

	var req UpdateMeRequest
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

	var user model.User
	if err := h.db.First(&user, claims.UserID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "user not found",
		})
	}

	if req.Nickname != nil {
		nickname := strings.TrimSpace(*req.Nickname)
		var count int64
		h.db.Model(&model.User{}).
			Where("nickname = ? AND id != ?", nickname, user.ID).
			Count(&count)
		if count > 0 {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "nickname already taken",
			})
		}
		user.Nickname = nickname
	}
	if req.Biography != nil {
		user.Biography = req.Biography
	}

	if err := h.db.Save(&user).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to update user",
		})
	}

	return c.JSON(toUserResponse(&user))
}

// SearchUsers searches by nickname or email, excluding the caller
func (h *UserHandler) SearchUsers(c *fiber.Ctx) error {
	claims, err := auth.GetClaimsFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "authentication required",
		})
	}

	query := strings.TrimSpace(c.Query("q"))
	if len(query) < 2 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "search query must be at least 2 characters",
		})
	}

	searchPattern := "%" + query + "%"

	var users []model.User
	var total int64

	result := h.db.Model(&model.User{}).
		Where("id != ?", claims.UserID).
		Where("nickname ILIKE ? OR email ILIKE ?", searchPattern, searchPattern).
		Count(&total)
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to search users",
		})
	}

	result = h.db.
		Where("id != ?", claims.UserID).
		Where("nickname ILIKE ? OR email ILIKE ?", searchPattern, searchPattern).
		Limit(10).
		Find(&users)
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to search users",
		})
	}

	responses := make([]UserResponse, len(users))
	for i, u := range users {
		responses[i] = toUserResponse(&u)
	}

	return c.JSON(SearchUsersResponse{Users: responses, Total: total})
}
