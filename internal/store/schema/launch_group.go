package schema

import (
	"time"
)

// LaunchGroup represents the launch_groups table - one independently
// configured sub-sale with its own window, currencies, and allocation rules
type LaunchGroup struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// GroupID is the opaque 32-byte group identifier, unique within the launch
	GroupID string `gorm:"column:group_id;not null;uniqueIndex;type:text"`
	// FinalizesAtParticipation selects the finalization policy: true means
	// every accepted participation settles immediately
	FinalizesAtParticipation bool `gorm:"column:finalizes_at_participation;not null;default:false"`
	// AllocationPolicy selects which per-user ceiling applies (participation_count, user_token_amount)
	AllocationPolicy string `gorm:"column:allocation_policy;not null;type:text"`
	// StartsAt and EndsAt bound the participation window
	StartsAt time.Time `gorm:"column:starts_at;not null;type:timestamptz"`
	EndsAt   time.Time `gorm:"column:ends_at;not null;type:timestamptz"`
	// MaxParticipants caps unique participants (participation_count policy)
	MaxParticipants int64 `gorm:"column:max_participants;not null;default:0"`
	// MaxParticipationsPerUser caps live participations per user (participation_count policy)
	MaxParticipationsPerUser int64 `gorm:"column:max_participations_per_user;not null;default:0"`
	// MinTokenAmountPerUser / MaxTokenAmountPerUser bound the cumulative
	// per-user token amount (user_token_amount policy); base units
	MinTokenAmountPerUser string `gorm:"column:min_token_amount_per_user;not null;default:0;type:numeric(78,0)"`
	MaxTokenAmountPerUser string `gorm:"column:max_token_amount_per_user;not null;default:0;type:numeric(78,0)"`
	// MaxTokenAllocation caps total finalized tokens for the group
	MaxTokenAllocation string `gorm:"column:max_token_allocation;not null;type:numeric(78,0)"`
	// Status is the lifecycle state (pending, active, paused, completed)
	Status string `gorm:"column:status;not null;type:text"`
	// TokensSold is the finalized token total for the group
	TokensSold string `gorm:"column:tokens_sold;not null;default:0;type:numeric(78,0)"`
	// CreatedAt / UpdatedAt are record timestamps
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`

	// Associations
	Currencies []GroupCurrency `gorm:"foreignKey:GroupID;references:GroupID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for the LaunchGroup model
func (LaunchGroup) TableName() string {
	return "launch_groups"
}
