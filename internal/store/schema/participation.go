package schema

import (
	"time"
)

// Participation represents the participations table - one funded commitment
// record tied to one user and one group. Records are zeroed, never deleted,
// preserving the audit trail.
type Participation struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// ParticipationID is the opaque 32-byte identifier, globally unique
	ParticipationID string `gorm:"column:participation_id;not null;uniqueIndex;type:text"`
	// GroupID references the launch group
	GroupID string `gorm:"column:group_id;not null;type:text;index:idx_participations_group_user,priority:1"`
	// UserID is the backend-assigned identity, the authoritative key for allocation limits
	UserID string `gorm:"column:user_id;not null;type:text;index:idx_participations_group_user,priority:2"`
	// UserAddress is the funding wallet (one user may fund from multiple wallets)
	UserAddress string `gorm:"column:user_address;not null;type:text"`
	// Currency is the payment token contract address
	Currency string `gorm:"column:currency;not null;type:text"`
	// TokenAmount is the committed sale token amount in base units
	TokenAmount string `gorm:"column:token_amount;not null;default:0;type:numeric(78,0)"`
	// CurrencyAmount is the computed payment due in base units
	CurrencyAmount string `gorm:"column:currency_amount;not null;default:0;type:numeric(78,0)"`
	// Finalized marks the record as settled, withdrawable revenue
	Finalized bool `gorm:"column:finalized;not null;default:false"`
	// CreatedAt / UpdatedAt are record timestamps
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Participation model
func (Participation) TableName() string {
	return "participations"
}
