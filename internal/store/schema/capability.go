package schema

import (
	"time"
)

// Capability represents the capabilities table - one (identity, role) grant.
// Role-admin relationships are explicit rows, not inherited behavior.
type Capability struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// Identity is the address holding the capability (EIP-55 normalized)
	Identity string `gorm:"column:identity;not null;type:text;uniqueIndex:idx_capabilities_identity_role,priority:1"`
	// Role is the capability role (manager, operator, signer, withdrawal, admin)
	Role string `gorm:"column:role;not null;type:text;uniqueIndex:idx_capabilities_identity_role,priority:2"`
	// CreatedAt is the grant timestamp
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the Capability model
func (Capability) TableName() string {
	return "capabilities"
}
