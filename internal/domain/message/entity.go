package message

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeText   Type = "text"
	TypeImage  Type = "image"
	TypeFile   Type = "file"
	TypeSystem Type = "system"
)

func (t Type) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeFile, TypeSystem:
		return true
	}
	return false
}

// HasAttachment reports whether messages of this type carry blob metadata.
func (t Type) HasAttachment() bool {
	return t == TypeImage || t == TypeFile
}

// Attachment is metadata for a blob uploaded out of band.
type Attachment struct {
	URL  string
	Name string
	Size int64
	Mime string
}

func (a Attachment) IsZero() bool {
	return a == Attachment{}
}

// Message represents the messages table
type Message struct {
	ID         uuid.UUID     `gorm:"type:uuid;primaryKey"`
	ChatID     uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:idx_messages_chat_seq,priority:1"`
	Seq        int64         `gorm:"not null;uniqueIndex:idx_messages_chat_seq,priority:2"`
	SenderID   uuid.UUID     `gorm:"type:uuid;not null"`
	Content    string        `gorm:"type:text"`
	Type       Type          `gorm:"type:varchar(16);not null"`
	Attachment Attachment    `gorm:"embedded;embeddedPrefix:attachment_"`
	ReplyToID  uuid.NullUUID `gorm:"type:uuid"`
	IsEdited   bool
	EditedAt   sql.NullTime
	IsDeleted  bool `gorm:"not null;default:false"`
	DeletedAt  sql.NullTime
	CreatedAt  time.Time

	// ReadBy is derived from member read pointers, never stored.
	ReadBy []ReadReceipt `gorm:"-"`
}

// ReadReceipt is one member's read state for a message.
type ReadReceipt struct {
	StaffID uuid.UUID
	ReadAt  time.Time
}

func (Message) TableName() string {
	return "messages"
}
