package schema

import (
	"time"
)

// UserAllocation represents the user_allocations table - per-group, per-user
// allocation aggregate. The row is deleted when the allocation returns to
// zero, so unique participants can be counted from this table.
type UserAllocation struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// GroupID references the launch group
	GroupID string `gorm:"column:group_id;not null;type:text;uniqueIndex:idx_user_allocations_group_user,priority:1"`
	// UserID is the backend-assigned user identity
	UserID string `gorm:"column:user_id;not null;type:text;uniqueIndex:idx_user_allocations_group_user,priority:2"`
	// ParticipationCount is the number of live participations (participation_count policy)
	ParticipationCount int64 `gorm:"column:participation_count;not null;default:0"`
	// TokenAmount is the cumulative live token amount in base units (user_token_amount policy)
	TokenAmount string `gorm:"column:token_amount;not null;default:0;type:numeric(78,0)"`
	// CreatedAt / UpdatedAt are record timestamps
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the UserAllocation model
func (UserAllocation) TableName() string {
	return "user_allocations"
}
