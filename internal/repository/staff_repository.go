package repository

import (
	"context"

	"salon-chat/internal/domain/staff"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PostgresStaffDirectory struct {
	db *gorm.DB
}

func NewStaffDirectory(db *gorm.DB) StaffDirectory {
	return &PostgresStaffDirectory{db: db}
}

// Lookup returns the staff records that exist; missing ids are absent from
// the map.
func (r *PostgresStaffDirectory) Lookup(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]staff.Staff, error) {
	out := make(map[uuid.UUID]staff.Staff, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []staff.Staff
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, s := range rows {
		out[s.ID] = s
	}
	return out, nil
}
