package staff

import "github.com/google/uuid"

// Staff is the read-only view of the business backend's staff table.
type Staff struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name     string
	Role     string
	IsActive bool
}

func (Staff) TableName() string {
	return "staff"
}
