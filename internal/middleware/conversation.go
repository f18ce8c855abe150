package middleware

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"postit-backend/internal/auth"
	"postit-backend/internal/service"
)

// ConversationMiddleware membership guard for conversation routes
type ConversationMiddleware struct {
	convService *service.ConversationService
}

// NewConversationMiddleware creates a ConversationMiddleware
func NewConversationMiddleware(convService *service.ConversationService) *ConversationMiddleware {
	return &ConversationMiddleware{convService: convService}
}

func conversationIDFromParams(c *fiber.Ctx) (int64, error) {
	idStr := c.Params("id")
	if idStr == "" {
		return 0, fiber.NewError(fiber.StatusBadRequest, "conversation ID is required")
	}
	return strconv.ParseInt(idStr, 10, 64)
}

// RequireMembership rejects callers who are not active members of the
// conversation named in the route
func (m *ConversationMiddleware) RequireMembership() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := auth.GetClaimsFromContext(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}

		conversationID, err := conversationIDFromParams(c)
		if err != nil || conversationID <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid conversation ID",
			})
		}

		if !m.convService.IsMember(conversationID, claims.UserID) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "not a member of this conversation",
			})
		}

		c.Locals("conversationID", conversationID)
		return c.Next()
	}
}
