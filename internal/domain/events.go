package domain

import (
	"time"
)

// LedgerEventType represents the type of ledger event published to NATS
type LedgerEventType string

const (
	EventParticipationRegistered LedgerEventType = "participation_registered"
	EventParticipationUpdated    LedgerEventType = "participation_updated"
	EventParticipationCancelled  LedgerEventType = "participation_cancelled"
	EventRefundClaimed           LedgerEventType = "refund_claimed"
	EventWinnerFinalized         LedgerEventType = "winner_finalized"
	EventWithdrawal              LedgerEventType = "withdrawal"
	EventGroupCreated            LedgerEventType = "group_created"
	EventGroupStatusChanged      LedgerEventType = "group_status_changed"
)

// LedgerEvent is the normalized record published after a committed ledger
// mutation. EventID is a ULID, so events sort by emission time.
type LedgerEvent struct {
	EventID         string          `json:"event_id"`
	EventType       LedgerEventType `json:"event_type"`
	LaunchID        ID32            `json:"launch_id"`
	GroupID         ID32            `json:"group_id,omitempty"`
	ParticipationID ID32            `json:"participation_id,omitempty"`
	// PreviousParticipationID is set on participation_updated events
	PreviousParticipationID ID32   `json:"previous_participation_id,omitempty"`
	UserID                  string `json:"user_id,omitempty"`
	UserAddress             string `json:"user_address,omitempty"`
	Currency                string `json:"currency,omitempty"`
	// TokenAmount and CurrencyAmount are decimal strings in base units
	TokenAmount    string    `json:"token_amount,omitempty"`
	CurrencyAmount string    `json:"currency_amount,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
