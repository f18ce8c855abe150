package model

import (
	"time"
)

// User account
type User struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Nickname     string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"nickname"`
	PasswordHash *string   `gorm:"type:varchar(255)" json:"-"`
	Biography    *string   `gorm:"type:varchar(250)" json:"biography,omitempty"`
	ProfileImg   *string   `gorm:"type:text" json:"profile_img,omitempty"`
	Provider     *string   `gorm:"type:varchar(50)" json:"provider,omitempty"`
	ProviderID   *string   `gorm:"type:varchar(255)" json:"provider_id,omitempty"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Posts         []Post               `gorm:"foreignKey:AuthorID" json:"posts,omitempty"`
	Conversations []ConversationMember `gorm:"foreignKey:UserID" json:"conversations,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// Post user-authored post
type Post struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	AuthorID  int64      `gorm:"not null;index" json:"author_id"`
	Title     string     `gorm:"type:varchar(200);not null" json:"title"`
	Content   string     `gorm:"type:text;not null" json:"content"`
	LikeCount int64      `gorm:"default:0" json:"like_count"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`

	// Relations
	Author   User       `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Comments []Comment  `gorm:"foreignKey:PostID" json:"comments,omitempty"`
	Likes    []PostLike `gorm:"foreignKey:PostID" json:"likes,omitempty"`
}

func (Post) TableName() string {
	return "posts"
}

// PostLike one like per user per post
type PostLike struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PostID    int64     `gorm:"not null;uniqueIndex:idx_post_likes_post_user" json:"post_id"`
	UserID    int64     `gorm:"not null;uniqueIndex:idx_post_likes_post_user" json:"user_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Post Post `gorm:"foreignKey:PostID" json:"post,omitempty"`
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (PostLike) TableName() string {
	return "post_likes"
}

// Comment post comment, optionally nested under a parent comment
type Comment struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	PostID    int64      `gorm:"not null;index" json:"post_id"`
	AuthorID  int64      `gorm:"not null" json:"author_id"`
	ParentID  *int64     `json:"parent_id,omitempty"`
	Content   string     `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`

	// Relations
	Post     Post      `gorm:"foreignKey:PostID" json:"post,omitempty"`
	Author   User      `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Children []Comment `gorm:"foreignKey:ParentID" json:"children,omitempty"`
}

func (Comment) TableName() string {
	return "comments"
}

// Conversation DM or group chat channel
type Conversation struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Type      string    `gorm:"type:varchar(20);not null" json:"type"` // DM, GROUP
	Title     *string   `gorm:"type:varchar(200)" json:"title,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Members  []ConversationMember `gorm:"foreignKey:ConversationID" json:"members,omitempty"`
	Messages []Message            `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// ConversationMember membership row, checked before any fan-out
type ConversationMember struct {
	ID             int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID int64      `gorm:"not null;uniqueIndex:idx_conversation_members_conv_user" json:"conversation_id"`
	UserID         int64      `gorm:"not null;uniqueIndex:idx_conversation_members_conv_user" json:"user_id"`
	Status         string     `gorm:"type:varchar(20);default:'ACTIVE'" json:"status"` // ACTIVE, LEFT
	JoinedAt       time.Time  `gorm:"autoCreateTime" json:"joined_at"`
	LastReadAt     *time.Time `json:"last_read_at,omitempty"` // unread count cursor

	// Relations
	Conversation Conversation `gorm:"foreignKey:ConversationID" json:"conversation,omitempty"`
	User         User         `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (ConversationMember) TableName() string {
	return "conversation_members"
}

// Message persisted chat message
type Message struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID int64     `gorm:"not null;index:idx_messages_conv_created" json:"conversation_id"`
	SenderID       *int64    `json:"sender_id,omitempty"` // nil for SYSTEM messages
	Body           string    `gorm:"type:text;not null" json:"body"`
	Type           string    `gorm:"type:varchar(20);not null;default:'TEXT'" json:"type"` // TEXT, SYSTEM
	CreatedAt      time.Time `gorm:"autoCreateTime;index:idx_messages_conv_created" json:"created_at"`

	// Relations
	Conversation Conversation `gorm:"foreignKey:ConversationID" json:"conversation,omitempty"`
	Sender       *User        `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
}

func (Message) TableName() string {
	return "messages"
}
