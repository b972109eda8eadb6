package repository

import (
	"context"
	"time"

	"salon-chat/internal/domain/chat"
	"salon-chat/internal/domain/message"
	salon_errors "salon-chat/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresMessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &PostgresMessageRepository{db: db}
}

func (r *PostgresMessageRepository) Append(ctx context.Context, m *message.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c chat.Chat
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "last_seq").
			Where("id = ?", m.ChatID).
			First(&c).Error
		if err != nil {
			return translate(err)
		}

		m.Seq = c.LastSeq + 1
		if err := tx.Create(m).Error; err != nil {
			return translate(err)
		}

		return tx.Model(&chat.Chat{}).
			Where("id = ?", m.ChatID).
			Updates(map[string]interface{}{
				"last_seq":        m.Seq,
				"last_message_id": m.ID,
				"last_message_at": m.CreatedAt,
				"updated_at":      time.Now(),
			}).Error
	})
}

func (r *PostgresMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (message.Message, error) {
	var m message.Message
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if err != nil {
		return message.Message{}, translate(err)
	}
	return m, nil
}

func (r *PostgresMessageRepository) Update(ctx context.Context, m message.Message) error {
	res := r.db.WithContext(ctx).
		Model(&message.Message{}).
		Where("id = ?", m.ID).
		Updates(map[string]interface{}{
			"content":    m.Content,
			"is_edited":  m.IsEdited,
			"edited_at":  m.EditedAt,
			"is_deleted": m.IsDeleted,
			"deleted_at": m.DeletedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return salon_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresMessageRepository) visible(ctx context.Context, chatID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&message.Message{}).
		Where("chat_id = ? AND is_deleted = ?", chatID, false)
}

func (r *PostgresMessageRepository) CountVisible(ctx context.Context, chatID uuid.UUID) (int64, error) {
	var total int64
	if err := r.visible(ctx, chatID).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (r *PostgresMessageRepository) ListVisible(ctx context.Context, chatID uuid.UUID, offset, limit int) ([]message.Message, error) {
	var messages []message.Message
	err := r.visible(ctx, chatID).
		Order("seq ASC").
		Offset(offset).
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *PostgresMessageRepository) ListVisibleBefore(ctx context.Context, chatID uuid.UUID, beforeSeq int64, limit int) ([]message.Message, error) {
	var messages []message.Message
	err := r.visible(ctx, chatID).
		Where("seq < ?", beforeSeq).
		Order("seq DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *PostgresMessageRepository) LatestVisible(ctx context.Context, chatID uuid.UUID) (message.Message, error) {
	var m message.Message
	err := r.visible(ctx, chatID).Order("seq DESC").First(&m).Error
	if err != nil {
		return message.Message{}, translate(err)
	}
	return m, nil
}

func (r *PostgresMessageRepository) CountUnread(ctx context.Context, chatID, staffID uuid.UUID, afterSeq int64) (int64, error) {
	var total int64
	err := r.visible(ctx, chatID).
		Where("seq > ? AND sender_id <> ?", afterSeq, staffID).
		Count(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}
