package handler

import (
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"postit-backend/internal/auth"
	"postit-backend/internal/cache"
	"postit-backend/internal/model"
	"postit-backend/internal/presence"
	"postit-backend/internal/realtime"
	"postit-backend/internal/service"
	"postit-backend/internal/storage"
)

// MessageHandler conversation and message endpoints
type MessageHandler struct {
	db          *gorm.DB
	store       *storage.MessageStore
	router      *realtime.Router
	convSvc     *service.ConversationService
	cache       *cache.RedisClient // optional
	presenceMgr *presence.Manager  // optional
}

// NewMessageHandler creates a MessageHandler. cacheClient and presenceMgr may be nil.
func NewMessageHandler(db *gorm.DB, store *storage.MessageStore, router *realtime.Router, convSvc *service.ConversationService, cacheClient *cache.RedisClient, presenceMgr *presence.Manager) *MessageHandler {
	return &MessageHandler{db: db, store: store, router: router, convSvc: convSvc, cache: cacheClient, presenceMgr: presenceMgr}
}

// OpenDMRequest target user for a direct conversation
type OpenDMRequest struct {
	UserID int64 `json:"user_id" validate:"required"`
}

// SendMessageRequest message body for the REST send path
type SendMessageRequest struct {
	Body string `json:"body" validate:"required,max=2000"`
}

// CreateGroupRequest new group conversation
type CreateGroupRequest struct {
	Title     string  `json:"title" validate:"required,max=200"`
	MemberIDs []int64 `json:"member_ids" validate:"required,min=1"`
}

// AddMemberRequest user to add to a group
type AddMemberRequest struct {
	UserID int64 `json:"user_id" validate:"required"`
}

// ConversationResponse conversation list entry
type ConversationResponse struct {
	ID            int64            `json:"id"`
	Type          string           `json:"type"`
	Title         *string          `json:"title,omitempty"`
	Members       []UserResponse   `json:"members"`
	OnlineUserIDs []int64          `json:"online_user_ids,omitempty"`
	LastMessage   *MessageResponse `json:"last_message,omitempty"`
	UnreadCount   int64            `json:"unread_count"`

	lastAt time.Time // sort key, not serialized
}

// MessageResponse message shape
type MessageResponse struct {
	ID             int64  `json:"id"`
	ConversationID int64  `json:"conversation_id"`
	SenderID       *int64 `json:"sender_id,omitempty"`
	Body           string `json:"body"`
	Type           string `json:"type"`
	CreatedAt      string `json:"created_at"`
}

// GetConversations lists the caller's conversations with last message and
// unread count, most recent activity first
func (h *MessageHandler) GetConversations(c *fiber.Ctx) error {
	claims, err := auth.GetClaimsFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "authentication required",
		})
	}

	var memberships []model.ConversationMember
	if err := h.db.
		Preload("Conversation").
		Preload("Conversation.Members", "status = ?", model.MemberStatusActive.String()).
		Preload("Conversation.Members.User").
		Where("user_id = ? AND status = ?", claims.UserID, model.MemberStatusActive.String()).
		Find(&memberships).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to get conversations",
		})
	}

	responses := make([]ConversationResponse, 0, len(memberships))
	for _, m := range memberships {
		conv := m.Conversation

		members := make([]UserResponse, 0, len(conv.Members))
		for _, cm := range conv.Members {
			members = append(members, toUserResponse(&cm.User))
		}

		resp := ConversationResponse{
			ID:      conv.ID,
			Type:    conv.Type,
			Title:   conv.Title,
			Members: members,
		}

		var last model.Message
		if err := h.db.
			Where("conversation_id = ?", conv.ID).
			Order("created_at DESC").
			First(&last).Error; err == nil {
			lastResp := toMessageResponse(&last)
			resp.LastMessage = &lastResp
			resp.lastAt = last.CreatedAt
		}

		unreadQuery := h.db.Model(&model.Message{}).
			Where("conversation_id = ?", conv.ID)
		if m.LastReadAt != nil {
			unreadQuery = unreadQuery.Where("created_at > ?", *m.LastReadAt)
		}
		unreadQuery.Count(&resp.UnreadCount)

		responses = append(responses, resp)
	}

	if h.presenceMgr != nil && len(responses) > 0 {
		var allIDs []int64
		for _, r := range responses {
			for _, member := range r.Members {
				allIDs = append(allIDs, member.ID)
			}
		}
		if presenceMap, err := h.presenceMgr.GetMulti(lo.Uniq(allIDs)); err == nil {
			for i := range responses {
				responses[i].OnlineUserIDs = onlineMembers(responses[i].Members, presenceMap)
			}
		}
	}

	// most recent activity first, conversations without messages last
	sort.Slice(responses, func(i, j int) bool {
		return laterActivity(responses[i], responses[j])
	})

	return c.JSON(fiber.Map{"conversations": responses})
}

// OpenDM finds or creates the direct conversation between the caller and
// another user
func (h *MessageHandler) OpenDM(c *fiber.Ctx) error {
	claims, err := auth.GetClaimsFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "authentication required",
		})
	}

	var req OpenDMRequest
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
	if req.UserID == claims.UserID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "cannot open a conversation with yourself",
		})
	}

	var peer model.User
	if err := h.db.First(&peer, req.UserID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "user not found",
		})
	}

	// existing DM shared by exactly these two users
	var convID int64
	row := h.db.Raw(`
		SELECT cm1.conversation_id
		FROM conversation_members cm1
		JOIN conversation_members cm2 ON cm1.conversation_id = cm2.conversation_id
		JOIN conversations c ON c.id = cm1.conversation_id
		WHERE c.type = ? AND cm1.user_id = ? AND cm2.user_id = ?
		LIMIT 1`,
		model.ConversationTypeDM.String(), claims.UserID, req.UserID).Row()
	if err := row.Scan(&convID); err == nil && convID > 0 {
		return h.respondConversation(c, convID, fiber.StatusOK)
	}

	conv := model.Conversation{Type: model.ConversationTypeDM.String()}
	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&conv).Error; err != nil {
			return err
		}
		members := []model.ConversationMember{
			{ConversationID: conv.ID, UserID: claims.UserID, Status: model.MemberStatusActive.String()},
			{ConversationID: conv.ID, UserID: req.UserID, Status: model.MemberStatusActive.String()},
		}
		return tx.Create(&members).Error
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to create conversation",
		})
	}

	return h.respondConversation(c, conv.ID, fiber.StatusCreated)
}

// GetMessages returns a conversation's messages, oldest first. Membership is
// enforced by the route middleware; recent pages come from the cache when it
// covers the request.
func (h *MessageHandler) GetMessages(c *fiber.Ctx) error {
	conversationID, ok := c.Locals("conversationID").(int64)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid conversation id",
		})
	}

	limit := c.QueryInt("limit", 50)
	if limit > 100 {
		limit = 100
	}
	before := c.QueryInt("before", 0)

	// cache only serves the newest page
	if h.cache != nil && before == 0 {
		if cached, err := h.cache.GetRecent(c.Context(), conversationID, int64(limit)); err == nil && len(cached) == limit {
			responses := make([]MessageResponse, len(cached))
			for i, m := range cached {
				senderID := m.SenderID
				responses[i] = MessageResponse{
					ID:             m.ID,
					ConversationID: m.ConversationID,
					SenderID:       &senderID,
					Body:           m.Body,
					Type:           model.MessageTypeText.String(),
					CreatedAt:      m.CreatedAt.Format(time.RFC3339),
				}
			}
			return c.JSON(fiber.Map{"messages": responses, "cached": true})
		}
	}

	query := h.db.
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit)
	if before > 0 {
		query = query.Where("id < ?", before)
	}

	var messages []model.Message
	if err := query.Find(&messages).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to get messages",
		})
	}

	// fetched newest-first for the limit, returned oldest-first
	responses := make([]MessageResponse, len(messages))
	for i, m := range messages {
		responses[len(messages)-1-i] = toMessageResponse(&m)
	}
	return c.JSON(fiber.Map{"messages": responses})
}

// SendMessage persists a message over REST and fans it out through the
// realtime core, same ordering guarantee as the socket path
func (h *MessageHandler) SendMessage(c *fiber.Ctx) error {
	claims, err := auth.GetClaimsFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "authentication required",
		})
	}

	conversationID, ok := c.Locals("conversationID").(int64)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid conversation id",
		})
	}

	var req SendMessageRequest
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

	persistedID, createdAt, err := h.store.PersistMessage(c.Context(), conversationID, claims.UserID, req.Body)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to send message",
		})
	}

	out := &realtime.OutboundEvent{
		Type:        realtime.EventTypeMessage,
		SenderID:    strconv.FormatInt(claims.UserID, 10),
		PersistedID: persistedID,
		Timestamp:   createdAt,
		Payload: realtime.ChatPayload{
			ConversationID: conversationID,
			Body:           req.Body,
			SenderNickname: claims.Nickname,
		},
	}
	if err := h.router.Broadcast(c.Context(), conversationID, out); err != nil {
		// persisted but not delivered; history endpoints cover the gap
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"id":        persistedID,
			"delivered": false,
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":        persistedID,
		"delivered": true,
	})
}

// MarkRead moves the caller's read cursor in a conversation
func (h *MessageHandler) MarkRead(c *fiber.Ctx) error {
	claims, err := auth.GetClaimsFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "authentication required",
		})
	}

	conversationID, ok := c.Locals("conversationID").(int64)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid conversation id",
		})
	}

	if err := h.store.MarkRead(c.Context(), conversationID, claims.UserID); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to mark as read",
		})
	}
	return c.JSON(fiber.Map{"message": "marked as read"})
}

// CreateGroup creates a group conversation
func (h *MessageHandler) CreateGroup(c *fiber.Ctx) error {
	claims, err := auth.GetClaimsFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "authentication required",
		})
	}

	var req CreateGroupRequest
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

	conv, sysMsg, err := h.convSvc.CreateGroup(claims.UserID, req.Title, req.MemberIDs)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	h.broadcastSystem(c, conv.ID, sysMsg)
	return h.respondConversation(c, conv.ID, fiber.StatusCreated)
}

// AddMember adds a user to a group conversation
func (h *MessageHandler) AddMember(c *fiber.Ctx) error {
	claims, err := auth.GetClaimsFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "authentication required",
		})
	}

	conversationID, ok := c.Locals("conversationID").(int64)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid conversation id",
		})
	}

	var req AddMemberRequest
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

	sysMsg, err := h.convSvc.AddMember(conversationID, claims.UserID, req.UserID)
	switch err {
	case nil:
	case service.ErrNotGroup, service.ErrAlreadyMember:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	case service.ErrNotMember:
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": err.Error(),
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to add member",
		})
	}

	h.broadcastSystem(c, conversationID, sysMsg)
	return c.JSON(fiber.Map{"message": "member added"})
}

// LeaveConversation removes the caller from a group conversation
func (h *MessageHandler) LeaveConversation(c *fiber.Ctx) error {
	claims, err := auth.GetClaimsFromContext(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "authentication required",
		})
	}

	conversationID, ok := c.Locals("conversationID").(int64)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid conversation id",
		})
	}

	sysMsg, err := h.convSvc.Leave(conversationID, claims.UserID)
	switch err {
	case nil:
	case service.ErrNotGroup:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	case service.ErrNotMember:
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": err.Error(),
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to leave conversation",
		})
	}

	h.broadcastSystem(c, conversationID, sysMsg)

	// an emptied group keeps its rows but loses its hot cache
	if h.cache != nil && h.convSvc.ActiveMemberCount(conversationID) == 0 {
		if err := h.cache.DeleteConversation(c.Context(), conversationID); err != nil {
			log.Printf("[Message] failed to drop cache for conversation %d: %v", conversationID, err)
		}
	}
	return c.JSON(fiber.Map{"message": "left conversation"})
}

// broadcastSystem pushes a SYSTEM message to the remaining live members
func (h *MessageHandler) broadcastSystem(c *fiber.Ctx, conversationID int64, sysMsg *model.Message) {
	if sysMsg == nil {
		return
	}
	out := &realtime.OutboundEvent{
		Type:        realtime.EventTypeMessage,
		PersistedID: strconv.FormatInt(sysMsg.ID, 10),
		Timestamp:   sysMsg.CreatedAt,
		Payload: realtime.ChatPayload{
			ConversationID: conversationID,
			Body:           sysMsg.Body,
		},
	}
	_ = h.router.Broadcast(c.Context(), conversationID, out)
}

func (h *MessageHandler) respondConversation(c *fiber.Ctx, conversationID int64, status int) error {
	var conv model.Conversation
	if err := h.db.
		Preload("Members", "status = ?", model.MemberStatusActive.String()).
		Preload("Members.User").
		First(&conv, conversationID).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load conversation",
		})
	}

	members := make([]UserResponse, 0, len(conv.Members))
	for _, cm := range conv.Members {
		members = append(members, toUserResponse(&cm.User))
	}

	return c.Status(status).JSON(ConversationResponse{
		ID:      conv.ID,
		Type:    conv.Type,
		Title:   conv.Title,
		Members: members,
	})
}

func toMessageResponse(m *model.Message) MessageResponse {
	return MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Body:           m.Body,
		Type:           m.Type,
		CreatedAt:      m.CreatedAt.Format(time.RFC3339),
	}
}

func laterActivity(a, b ConversationResponse) bool {
	if a.lastAt.IsZero() {
		return false
	}
	if b.lastAt.IsZero() {
		return true
	}
	return a.lastAt.After(b.lastAt)
}

// onlineMembers filters a member list down to the identities the presence
// mirror reports as online
func onlineMembers(members []UserResponse, presenceMap map[int64]*presence.Data) []int64 {
	var online []int64
	for _, m := range members {
		if data, ok := presenceMap[m.ID]; ok && data != nil && data.Status == presence.StatusOnline {
			online = append(online, m.ID)
		}
	}
	return online
}
