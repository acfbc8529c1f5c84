package schema

import (
	"time"
)

// WithdrawableBalance represents the withdrawable_balances table - finalized
// revenue per currency. Credited only by finalization, debited only by
// treasury withdrawal; cancellations and refunds never touch it.
type WithdrawableBalance struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// Currency is the payment token contract address
	Currency string `gorm:"column:currency;not null;uniqueIndex;type:text"`
	// Amount is the withdrawable total in base units
	Amount string `gorm:"column:amount;not null;default:0;type:numeric(78,0)"`
	// CreatedAt / UpdatedAt are record timestamps
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the WithdrawableBalance model
func (WithdrawableBalance) TableName() string {
	return "withdrawable_balances"
}
