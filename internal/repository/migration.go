package repository

import (
	"fmt"

	"salon-chat/internal/domain/chat"
	"salon-chat/internal/domain/message"

	"gorm.io/gorm"
)

// InitSchema migrates the tables owned by the messaging core. The staff
// table belongs to the business backend and is only read.
func InitSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(&chat.Chat{}, &chat.Member{}, &message.Message{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	indexes := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_chats_active_pair
			ON chats (pair_key) WHERE is_active AND pair_key IS NOT NULL;`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat_visible
			ON messages (chat_id, seq) WHERE NOT is_deleted;`,
	}
	for _, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}
