package storage

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"postit-backend/internal/cache"
	"postit-backend/internal/model"
)

// MessageStore GORM-backed persistence for the realtime core. Implements the
// router's Store and MembershipReader boundaries; it is the single source of
// truth for message durability.
type MessageStore struct {
	db    *gorm.DB
	cache *cache.RedisClient // optional recent-message cache
}

// NewMessageStore creates a MessageStore. cacheClient may be nil.
func NewMessageStore(db *gorm.DB, cacheClient *cache.RedisClient) *MessageStore {
	return &MessageStore{db: db, cache: cacheClient}
}

// PersistMessage durably stores one message and returns its persisted id.
// No internal retries: a failed write surfaces to the caller.
func (s *MessageStore) PersistMessage(ctx context.Context, conversationID, senderID int64, body string) (string, time.Time, error) {
	msg := model.Message{
		ConversationID: conversationID,
		SenderID:       &senderID,
		Body:           body,
		Type:           model.MessageTypeText.String(),
	}

	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return "", time.Time{}, err
	}

	// cache write-through is best-effort and off the hot path
	if s.cache != nil {
		go func() {
			cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			entry := &cache.RecentMessage{
				ID:             msg.ID,
				ConversationID: conversationID,
				SenderID:       senderID,
				Body:           body,
				CreatedAt:      msg.CreatedAt,
			}
			if err := s.cache.AddRecent(cctx, conversationID, entry); err != nil {
				log.Printf("[MessageStore] recent-message cache write failed: %v", err)
			}
		}()
	}

	return strconv.FormatInt(msg.ID, 10), msg.CreatedAt, nil
}

// MarkRead moves a member's read cursor to now
func (s *MessageStore) MarkRead(ctx context.Context, conversationID, userID int64) error {
	return s.db.WithContext(ctx).
		Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ? AND status = ?", conversationID, userID, model.MemberStatusActive.String()).
		Update("last_read_at", time.Now()).Error
}

// IsMember reports whether the user is an active member of the conversation
func (s *MessageStore) IsMember(ctx context.Context, conversationID, userID int64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ? AND status = ?", conversationID, userID, model.MemberStatusActive.String()).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// MemberIDs returns the active member identity set of a conversation
func (s *MessageStore) MemberIDs(ctx context.Context, conversationID int64) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).
		Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND status = ?", conversationID, model.MemberStatusActive.String()).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return lo.Uniq(ids), nil
}
