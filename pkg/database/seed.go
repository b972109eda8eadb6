package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"salon-chat/internal/domain/chat"
	"salon-chat/internal/domain/message"
	"salon-chat/internal/domain/staff"
	"salon-chat/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SeedConfig holds configuration for seeding a development database
type SeedConfig struct {
	StaffCount      int
	MessagesPerChat int
}

// DefaultSeedConfig returns default seed configuration
func DefaultSeedConfig() *SeedConfig {
	return &SeedConfig{
		StaffCount:      5,
		MessagesPerChat: 20,
	}
}

// SeedResult holds the result of the seeding operation
type SeedResult struct {
	Staff    []staff.Staff
	Chats    []chat.Chat
	Messages int
}

var seedNames = []string{"Ana", "Bruno", "Carla", "Diego", "Elena", "Fabio", "Gina", "Hugo"}

// SeedDevelopment creates a staff roster, one group chat with everyone,
// a direct chat between the first two staff members and some history.
// The staff table is normally owned by the business backend; it is created
// here only when missing.
func SeedDevelopment(ctx context.Context, db *gorm.DB, cfg *SeedConfig) (*SeedResult, error) {
	if cfg == nil {
		cfg = DefaultSeedConfig()
	}
	if cfg.StaffCount < 2 {
		return nil, fmt.Errorf("seed needs at least 2 staff, got %d", cfg.StaffCount)
	}

	if !db.Migrator().HasTable(&staff.Staff{}) {
		if err := db.AutoMigrate(&staff.Staff{}); err != nil {
			return nil, fmt.Errorf("create staff table: %w", err)
		}
	}
	if err := repository.InitSchema(db); err != nil {
		return nil, err
	}

	log.Println("Starting database seeding...")
	result := &SeedResult{}

	for i := 0; i < cfg.StaffCount; i++ {
		s := staff.Staff{
			ID:       uuid.New(),
			Name:     seedNames[i%len(seedNames)],
			Role:     "stylist",
			IsActive: true,
		}
		if i == 0 {
			s.Role = "manager"
		}
		if err := db.WithContext(ctx).Create(&s).Error; err != nil {
			return nil, fmt.Errorf("seed staff: %w", err)
		}
		result.Staff = append(result.Staff, s)
	}

	chats := repository.NewChatRepository(db)
	messages := repository.NewMessageRepository(db)
	now := time.Now().UTC()

	group := chat.Chat{
		ID:        uuid.New(),
		Kind:      chat.KindGroup,
		Name:      "Front desk",
		CreatedBy: result.Staff[0].ID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, s := range result.Staff {
		role := chat.RoleMember
		if i == 0 {
			role = chat.RoleAdmin
		}
		group.Members = append(group.Members, chat.Member{ChatID: group.ID, StaffID: s.ID, Role: role, JoinedAt: now})
	}

	a, b := result.Staff[0].ID, result.Staff[1].ID
	direct := chat.Chat{
		ID:        uuid.New(),
		Kind:      chat.KindOneToOne,
		CreatedBy: a,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
		Members: []chat.Member{
			{StaffID: a, Role: chat.RoleMember, JoinedAt: now},
			{StaffID: b, Role: chat.RoleMember, JoinedAt: now},
		},
	}
	direct.PairKey.String, direct.PairKey.Valid = chat.PairKeyFor(a, b), true
	for i := range direct.Members {
		direct.Members[i].ChatID = direct.ID
	}

	for _, c := range []*chat.Chat{&group, &direct} {
		if err := chats.Create(ctx, c); err != nil {
			return nil, fmt.Errorf("seed chat: %w", err)
		}
		for i := 0; i < cfg.MessagesPerChat; i++ {
			sender := c.Members[i%len(c.Members)].StaffID
			m := message.Message{
				ID:        uuid.New(),
				ChatID:    c.ID,
				SenderID:  sender,
				Content:   fmt.Sprintf("seed message %d", i+1),
				Type:      message.TypeText,
				CreatedAt: now.Add(time.Duration(i) * time.Second),
			}
			if err := messages.Append(ctx, &m); err != nil {
				return nil, fmt.Errorf("seed message: %w", err)
			}
			result.Messages++
		}
		result.Chats = append(result.Chats, *c)
	}

	log.Printf("Seeded %d staff, %d chats, %d messages", len(result.Staff), len(result.Chats), result.Messages)
	return result, nil
}
