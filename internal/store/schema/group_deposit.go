package schema

import (
	"time"
)

// GroupDeposit represents the group_deposits table - outstanding currency
// deposits per group and currency, including unfinalized refundable amounts
type GroupDeposit struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// GroupID references the launch group
	GroupID string `gorm:"column:group_id;not null;type:text;uniqueIndex:idx_group_deposits_group_currency,priority:1"`
	// Currency is the payment token contract address
	Currency string `gorm:"column:currency;not null;type:text;uniqueIndex:idx_group_deposits_group_currency,priority:2"`
	// Amount is the outstanding deposit total in base units
	Amount string `gorm:"column:amount;not null;default:0;type:numeric(78,0)"`
	// CreatedAt / UpdatedAt are record timestamps
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the GroupDeposit model
func (GroupDeposit) TableName() string {
	return "group_deposits"
}
