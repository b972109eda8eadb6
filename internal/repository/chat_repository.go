package repository

import (
	"context"
	"time"

	"salon-chat/internal/domain/chat"
	salon_errors "salon-chat/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PostgresChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) ChatRepository {
	return &PostgresChatRepository{db: db}
}

func preloadMembers(db *gorm.DB) *gorm.DB {
	return db.Preload("Members", func(tx *gorm.DB) *gorm.DB {
		return tx.Order("joined_at ASC, staff_id ASC")
	})
}

func (r *PostgresChatRepository) Create(ctx context.Context, c *chat.Chat) error {
	return translate(r.db.WithContext(ctx).Create(c).Error)
}

func (r *PostgresChatRepository) GetByID(ctx context.Context, id uuid.UUID) (chat.Chat, error) {
	var c chat.Chat
	err := preloadMembers(r.db.WithContext(ctx)).
		Where("id = ?", id).
		First(&c).Error
	if err != nil {
		return chat.Chat{}, translate(err)
	}
	return c, nil
}

func (r *PostgresChatRepository) GetActiveByPairKey(ctx context.Context, pairKey string) (chat.Chat, error) {
	var c chat.Chat
	err := preloadMembers(r.db.WithContext(ctx)).
		Where("pair_key = ? AND is_active = ?", pairKey, true).
		First(&c).Error
	if err != nil {
		return chat.Chat{}, translate(err)
	}
	return c, nil
}

func (r *PostgresChatRepository) Update(ctx context.Context, c chat.Chat) error {
	res := r.db.WithContext(ctx).
		Model(&chat.Chat{}).
		Where("id = ?", c.ID).
		Updates(map[string]interface{}{
			"name":        c.Name,
			"description": c.Description,
			"avatar":      c.Avatar,
			"is_active":   c.IsActive,
			"updated_at":  time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return salon_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresChatRepository) ListActiveForStaff(ctx context.Context, staffID uuid.UUID) ([]chat.Chat, error) {
	var chats []chat.Chat

	subQuery := r.db.Model(&chat.Member{}).
		Select("chat_id").
		Where("staff_id = ?", staffID)

	err := preloadMembers(r.db.WithContext(ctx)).
		Where("id IN (?) AND is_active = ?", subQuery, true).
		Order("last_message_at DESC NULLS LAST, created_at DESC").
		Find(&chats).Error
	if err != nil {
		return nil, err
	}
	return chats, nil
}

func (r *PostgresChatRepository) ActiveChatIDsForStaff(ctx context.Context, staffID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&chat.Member{}).
		Joins("JOIN chats ON chats.id = chat_members.chat_id").
		Where("chat_members.staff_id = ? AND chats.is_active = ?", staffID, true).
		Pluck("chat_members.chat_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *PostgresChatRepository) AddMembers(ctx context.Context, members []chat.Member) error {
	if len(members) == 0 {
		return nil
	}
	return translate(r.db.WithContext(ctx).Create(&members).Error)
}

func (r *PostgresChatRepository) RemoveMember(ctx context.Context, chatID, staffID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Delete(&chat.Member{}, "chat_id = ? AND staff_id = ?", chatID, staffID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return salon_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresChatRepository) UpdateMember(ctx context.Context, m chat.Member) error {
	res := r.db.WithContext(ctx).
		Model(&chat.Member{}).
		Where("chat_id = ? AND staff_id = ?", m.ChatID, m.StaffID).
		Updates(map[string]interface{}{
			"role":  m.Role,
			"muted": m.Muted,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return salon_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresChatRepository) GetMember(ctx context.Context, chatID, staffID uuid.UUID) (chat.Member, error) {
	var m chat.Member
	err := r.db.WithContext(ctx).
		Where("chat_id = ? AND staff_id = ?", chatID, staffID).
		First(&m).Error
	if err != nil {
		return chat.Member{}, translate(err)
	}
	return m, nil
}

func (r *PostgresChatRepository) AdvanceReadPointer(ctx context.Context, chatID, staffID, messageID uuid.UUID, seq int64, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&chat.Member{}).
		Where("chat_id = ? AND staff_id = ? AND last_read_seq < ?", chatID, staffID, seq).
		Updates(map[string]interface{}{
			"last_read_message_id": messageID,
			"last_read_seq":        seq,
			"last_read_at":         at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
