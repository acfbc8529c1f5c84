package schema

import (
	"time"
)

// GroupCurrency represents the launch_group_currencies table - per-group
// pricing and enablement for one payment currency
type GroupCurrency struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// GroupID references the launch group
	GroupID string `gorm:"column:group_id;not null;type:text;uniqueIndex:idx_group_currencies_group_currency,priority:1"`
	// Currency is the payment token contract address (EIP-55 normalized)
	Currency string `gorm:"column:currency;not null;type:text;uniqueIndex:idx_group_currencies_group_currency,priority:2"`
	// TokenPriceBps is the price of one sale token unit, scaled by currency decimals
	TokenPriceBps string `gorm:"column:token_price_bps;not null;type:numeric(78,0)"`
	// MinAmount / MaxAmount bound the computed payment amount
	MinAmount string `gorm:"column:min_amount;not null;default:0;type:numeric(78,0)"`
	MaxAmount string `gorm:"column:max_amount;not null;default:0;type:numeric(78,0)"`
	// Enabled gates use of the currency in new participations
	Enabled bool `gorm:"column:enabled;not null;default:false"`
	// CreatedAt / UpdatedAt are record timestamps
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the GroupCurrency model
func (GroupCurrency) TableName() string {
	return "launch_group_currencies"
}
