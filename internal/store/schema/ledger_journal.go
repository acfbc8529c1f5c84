package schema

import (
	"time"

	"gorm.io/datatypes"
)

// JournalEntryType identifies the ledger transition recorded by a journal row
type JournalEntryType string

const (
	JournalParticipationCreated   JournalEntryType = "participation_created"
	JournalParticipationUpdated   JournalEntryType = "participation_updated"
	JournalParticipationCancelled JournalEntryType = "participation_cancelled"
	JournalRefund                 JournalEntryType = "refund"
	JournalFinalized              JournalEntryType = "finalized"
	JournalWithdrawal             JournalEntryType = "withdrawal"
	JournalGroupCreated           JournalEntryType = "group_created"
	JournalGroupUpdated           JournalEntryType = "group_updated"
)

// LedgerJournal represents the ledger_journal table - append-only audit log
// of every committed ledger transition
type LedgerJournal struct {
	// Cursor is an auto-incrementing sequence number for ordering
	Cursor int64 `gorm:"column:cursor;primaryKey;autoIncrement"`
	// EntryType identifies the transition
	EntryType JournalEntryType `gorm:"column:entry_type;not null;type:text"`
	// GroupID / ParticipationID / UserID / Currency scope the entry
	GroupID         string `gorm:"column:group_id;type:text;index"`
	ParticipationID string `gorm:"column:participation_id;type:text;index"`
	UserID          string `gorm:"column:user_id;type:text"`
	Currency        string `gorm:"column:currency;type:text"`
	// Meta contains before/after amounts and other context as JSON
	Meta datatypes.JSON `gorm:"column:meta;type:jsonb"`
	// CreatedAt is the transition timestamp
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the LedgerJournal model
func (LedgerJournal) TableName() string {
	return "ledger_journal"
}
