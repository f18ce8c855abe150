package service

import (
	"errors"
	"fmt"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"postit-backend/internal/model"
)

var (
	ErrNotMember     = errors.New("not a member of this conversation")
	ErrNotGroup      = errors.New("conversation is not a group")
	ErrAlreadyMember = errors.New("user is already a member")
)

// ConversationService membership business logic for group conversations.
// DMs have a fixed member pair; only groups grow and shrink.
type ConversationService struct {
	db *gorm.DB
}

// NewConversationService creates a ConversationService
func NewConversationService(db *gorm.DB) *ConversationService {
	return &ConversationService{db: db}
}

// IsMember reports active membership
func (s *ConversationService) IsMember(conversationID, userID int64) bool {
	var count int64
	s.db.Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ? AND status = ?", conversationID, userID, model.MemberStatusActive.String()).
		Count(&count)
	return count > 0
}

// ActiveMemberCount number of active members in a conversation
func (s *ConversationService) ActiveMemberCount(conversationID int64) int64 {
	var count int64
	s.db.Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND status = ?", conversationID, model.MemberStatusActive.String()).
		Count(&count)
	return count
}

// CreateGroup creates a group conversation with the creator and the given
// members, and records a SYSTEM message announcing it
func (s *ConversationService) CreateGroup(creatorID int64, title string, memberIDs []int64) (*model.Conversation, *model.Message, error) {
	ids := lo.Uniq(append(memberIDs, creatorID))
	if len(ids) < 2 {
		return nil, nil, errors.New("a group needs at least two members")
	}

	conv := model.Conversation{
		Type:  model.ConversationTypeGroup.String(),
		Title: &title,
	}
	var sysMsg model.Message

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&conv).Error; err != nil {
			return err
		}

		members := make([]model.ConversationMember, len(ids))
		for i, id := range ids {
			members[i] = model.ConversationMember{
				ConversationID: conv.ID,
				UserID:         id,
				Status:         model.MemberStatusActive.String(),
			}
		}
		if err := tx.Create(&members).Error; err != nil {
			return err
		}

		sysMsg = model.Message{
			ConversationID: conv.ID,
			Body:           fmt.Sprintf("group %q created", title),
			Type:           model.MessageTypeSystem.String(),
		}
		return tx.Create(&sysMsg).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &conv, &sysMsg, nil
}

// AddMember adds a user to a group. The actor must be an active member; a
// member who previously left is reactivated.
func (s *ConversationService) AddMember(conversationID, actorID, userID int64) (*model.Message, error) {
	var conv model.Conversation
	if err := s.db.First(&conv, conversationID).Error; err != nil {
		return nil, err
	}
	if conv.Type != model.ConversationTypeGroup.String() {
		return nil, ErrNotGroup
	}
	if !s.IsMember(conversationID, actorID) {
		return nil, ErrNotMember
	}

	var user model.User
	if err := s.db.First(&user, userID).Error; err != nil {
		return nil, err
	}

	var sysMsg model.Message
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing model.ConversationMember
		err := tx.Where("conversation_id = ? AND user_id = ?", conversationID, userID).First(&existing).Error
		switch {
		case err == nil && existing.Status == model.MemberStatusActive.String():
			return ErrAlreadyMember
		case err == nil:
			if err := tx.Model(&existing).Update("status", model.MemberStatusActive.String()).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			member := model.ConversationMember{
				ConversationID: conversationID,
				UserID:         userID,
				Status:         model.MemberStatusActive.String(),
			}
			if err := tx.Create(&member).Error; err != nil {
				return err
			}
		default:
			return err
		}

		sysMsg = model.Message{
			ConversationID: conversationID,
			Body:           fmt.Sprintf("%s joined the conversation", user.Nickname),
			Type:           model.MessageTypeSystem.String(),
		}
		return tx.Create(&sysMsg).Error
	})
	if err != nil {
		return nil, err
	}
	return &sysMsg, nil
}

// Leave marks a member as LEFT. Leaving a conversation you are not in is a
// no-op error; the membership row stays so history access can be audited.
func (s *ConversationService) Leave(conversationID, userID int64) (*model.Message, error) {
	var conv model.Conversation
	if err := s.db.First(&conv, conversationID).Error; err != nil {
		return nil, err
	}
	if conv.Type != model.ConversationTypeGroup.String() {
		return nil, ErrNotGroup
	}

	var user model.User
	if err := s.db.First(&user, userID).Error; err != nil {
		return nil, err
	}

	var sysMsg model.Message
	err := s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.ConversationMember{}).
			Where("conversation_id = ? AND user_id = ? AND status = ?", conversationID, userID, model.MemberStatusActive.String()).
			Update("status", model.MemberStatusLeft.String())
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotMember
		}

		sysMsg = model.Message{
			ConversationID: conversationID,
			Body:           fmt.Sprintf("%s left the conversation", user.Nickname),
			Type:           model.MessageTypeSystem.String(),
		}
		return tx.Create(&sysMsg).Error
	})
	if err != nil {
		return nil, err
	}
	return &sysMsg, nil
}
