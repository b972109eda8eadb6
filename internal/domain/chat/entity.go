package chat

import (
	"database/sql"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindOneToOne Kind = "one_to_one"
	KindGroup    Kind = "group"
)

func (k Kind) Valid() bool {
	return k == KindOneToOne || k == KindGroup
}

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Chat represents the chats table
type Chat struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Kind        Kind      `gorm:"type:varchar(16);not null"`
	Name        string
	Description string
	Avatar      string
	CreatedBy   uuid.UUID `gorm:"type:uuid;not null"`
	// PairKey is set for one_to_one chats only; unique among active chats.
	PairKey       sql.NullString `gorm:"type:varchar(80)"`
	IsActive      bool           `gorm:"not null"`
	LastSeq       int64          `gorm:"not null;default:0"`
	LastMessageID uuid.NullUUID  `gorm:"type:uuid"`
	LastMessageAt sql.NullTime
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// Relationships
	Members []Member `gorm:"foreignKey:ChatID"`
}

// Member represents the chat_members table
type Member struct {
	ChatID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	StaffID           uuid.UUID `gorm:"type:uuid;primaryKey;index"`
	Role              Role      `gorm:"type:varchar(16);not null"`
	JoinedAt          time.Time
	LastReadMessageID uuid.NullUUID `gorm:"type:uuid"`
	LastReadSeq       int64         `gorm:"not null;default:0"`
	LastReadAt        sql.NullTime
	Muted             bool `gorm:"not null;default:false"`
}

func (Chat) TableName() string {
	return "chats"
}

func (Member) TableName() string {
	return "chat_members"
}

// Member returns the membership of staffID, or nil.
func (c *Chat) Member(staffID uuid.UUID) *Member {
	for i := range c.Members {
		if c.Members[i].StaffID == staffID {
			return &c.Members[i]
		}
	}
	return nil
}

func (c *Chat) HasMember(staffID uuid.UUID) bool {
	return c.Member(staffID) != nil
}

func (c *Chat) IsAdmin(staffID uuid.UUID) bool {
	m := c.Member(staffID)
	return m != nil && m.Role == RoleAdmin
}

// Admins is derived from member roles.
func (c *Chat) Admins() []uuid.UUID {
	var out []uuid.UUID
	for _, m := range c.Members {
		if m.Role == RoleAdmin {
			out = append(out, m.StaffID)
		}
	}
	return out
}

func (c *Chat) AdminCount() int {
	return len(c.Admins())
}

func (c *Chat) MemberIDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(c.Members))
	for _, m := range c.Members {
		out = append(out, m.StaffID)
	}
	return out
}

// PairKeyFor is the order-independent identity of a one_to_one chat.
func PairKeyFor(a, b uuid.UUID) string {
	ids := []string{a.String(), b.String()}
	sort.Strings(ids)
	return strings.Join(ids, ":")
}
