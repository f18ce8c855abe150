package model

// MemberStatus conversation membership state
type MemberStatus string

const (
	MemberStatusActive MemberStatus = "ACTIVE"
	MemberStatusLeft   MemberStatus = "LEFT"
)

func (s MemberStatus) String() string {
	return string(s)
}

// ConversationType conversation kind
type ConversationType string

const (
	ConversationTypeDM    ConversationType = "DM"
	ConversationTypeGroup ConversationType = "GROUP"
)

func (c ConversationType) String() string {
	return string(c)
}

// MessageType message kind
type MessageType string

const (
	MessageTypeText   MessageType = "TEXT"
	MessageTypeSystem MessageType = "SYSTEM"
)

func (m MessageType) String() string {
	return string(m)
}
