package core

import (
	"time"
)

// Message is a chat message posted into an event channel
// mutable until deleted for everyone
type Message struct {
	ID         string     `json:"id" gorm:"primaryKey;type:char(36)"`
	EventID    string     `json:"eventId" gorm:"type:char(36);index:idx_message_event_cdate,priority:1;not null"`
	Author     string     `json:"author" gorm:"type:char(42);index;not null"`
	Content    string     `json:"content" gorm:"type:text"`
	CreatedAt  time.Time  `json:"createdAt" gorm:"index:idx_message_event_cdate,priority:2,sort:desc;not null"`
	EditedAt   *time.Time `json:"editedAt" gorm:"default:null"`
	DeletedAt  *time.Time `json:"deletedAt" gorm:"default:null"`
	ReplyTo    *string    `json:"replyTo" gorm:"type:char(36);default:null"`
	DeletedFor []string   `json:"deletedFor" gorm:"-"`

	Profile *UserProfile  `json:"profile,omitempty" gorm:"-"`
	Reply   *ReplyPreview `json:"reply,omitempty" gorm:"-"`
}

func (Message) TableName() string {
	return "chat_messages"
}

// IsDeleted reports whether the message was deleted for everyone
func (m Message) IsDeleted() bool {
	return m.DeletedAt != nil
}

// MessageDeletion records that a viewer hid a message for themselves.
// Rows are only ever inserted.
type MessageDeletion struct {
	MessageID string    `json:"messageId" gorm:"primaryKey;type:char(36)"`
	Wallet    string    `json:"wallet" gorm:"primaryKey;type:char(42)"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
}

func (MessageDeletion) TableName() string {
	return "chat_message_deletions"
}

// ReplyPreview is the resolved parent of a reply
type ReplyPreview struct {
	ID        string       `json:"id"`
	Author    string       `json:"author"`
	Content   string       `json:"content"`
	DeletedAt *time.Time   `json:"deletedAt"`
	Profile   *UserProfile `json:"profile,omitempty"`
}

// ChannelActivity is the denormalized pointer to the latest message of a channel.
// Maintained best-effort.
type ChannelActivity struct {
	EventID       string    `json:"eventId" gorm:"primaryKey;type:char(36)"`
	LastMessageID string    `json:"lastMessageId" gorm:"type:char(36)"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}

func (ChannelActivity) TableName() string {
	return "chat_channel_activities"
}

// Event is owned by the ticketing side of the storefront and read-only here
type Event struct {
	ID               string    `json:"id" gorm:"primaryKey;type:char(36)"`
	Name             string    `json:"name" gorm:"type:text"`
	ContractAddress  *string   `json:"contractAddress" gorm:"type:char(42);default:null"`
	OrganizerAddress string    `json:"organizerAddress" gorm:"type:char(42);index"`
	ChainID          int64     `json:"chainId"`
	StartsAt         time.Time `json:"startsAt"`
	ImageURL         string    `json:"imageUrl" gorm:"type:text"`
	CreatedAt        time.Time `json:"createdAt" gorm:"->;<-:create;autoCreateTime"`
}

func (Event) TableName() string {
	return "events"
}

// HasContract reports whether the ticket contract of the event is deployed
func (e Event) HasContract() bool {
	return e.ContractAddress != nil && *e.ContractAddress != ""
}

// Ticket is an ownership record mirrored from the chain by the marketplace indexer
type Ticket struct {
	ID           uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	EventID      string `json:"eventId" gorm:"type:char(36);index"`
	TokenID      string `json:"tokenId" gorm:"type:text"`
	OwnerAddress string `json:"ownerAddress" gorm:"type:char(42);index"`
	IsListed     bool   `json:"isListed"`
}

func (Ticket) TableName() string {
	return "tickets"
}

// UserProfile is read-only enrichment for message authors
type UserProfile struct {
	WalletAddress string `json:"walletAddress" gorm:"primaryKey;type:char(42)"`
	Username      string `json:"username" gorm:"type:text"`
	DisplayName   string `json:"displayName" gorm:"type:text"`
	AvatarURL     string `json:"avatarUrl" gorm:"type:text"`
}

func (UserProfile) TableName() string {
	return "profiles"
}
