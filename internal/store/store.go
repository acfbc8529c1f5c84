package store

import (
	"context"

	"github.com/feral-file/launch-ledger/internal/store/schema"
)

// Store defines the interface for ledger persistence.
//
// Transaction runs fn against a transactional view of the store; every
// mutation inside either commits as a whole or is discarded. The ledger
// wraps each state-mutating operation in exactly one transaction.
//
//go:generate mockgen -source=store.go -destination=../mocks/store.go -package=mocks -mock_names=Store=MockStore
type Store interface {
	// Transaction executes fn atomically
	Transaction(ctx context.Context, fn func(tx Store) error) error

	// CreateLaunchGroup inserts a new launch group
	CreateLaunchGroup(ctx context.Context, group *schema.LaunchGroup) error
	// GetLaunchGroup retrieves a launch group by its group identifier (nil if absent)
	GetLaunchGroup(ctx context.Context, groupID string) (*schema.LaunchGroup, error)
	// ListLaunchGroups retrieves every launch group of the launch
	ListLaunchGroups(ctx context.Context) ([]*schema.LaunchGroup, error)
	// SaveLaunchGroup persists settings, status, and aggregate changes
	SaveLaunchGroup(ctx context.Context, group *schema.LaunchGroup) error

	// UpsertGroupCurrency creates or replaces a per-group currency config
	UpsertGroupCurrency(ctx context.Context, cc *schema.GroupCurrency) error
	// GetGroupCurrency retrieves a currency config (nil if absent)
	GetGroupCurrency(ctx context.Context, groupID, currency string) (*schema.GroupCurrency, error)
	// ListGroupCurrencies retrieves all currency configs for a group
	ListGroupCurrencies(ctx context.Context, groupID string) ([]*schema.GroupCurrency, error)

	// CreateParticipation inserts a new participation record
	CreateParticipation(ctx context.Context, p *schema.Participation) error
	// GetParticipation retrieves a participation by its identifier (nil if absent)
	GetParticipation(ctx context.Context, participationID string) (*schema.Participation, error)
	// SaveParticipation persists mutations to an existing record
	SaveParticipation(ctx context.Context, p *schema.Participation) error
	// ListGroupParticipations retrieves participations in a group, optionally
	// filtered by user. Unbounded result sets; read surface only.
	ListGroupParticipations(ctx context.Context, groupID, userID string, limit, offset int) ([]*schema.Participation, error)
	// ListRefundableParticipations retrieves non-finalized records with
	// nonzero amounts in a group
	ListRefundableParticipations(ctx context.Context, groupID string, limit int) ([]*schema.Participation, error)

	// GetUserAllocation retrieves the per-user aggregate (nil if absent)
	GetUserAllocation(ctx context.Context, groupID, userID string) (*schema.UserAllocation, error)
	// SaveUserAllocation persists the per-user aggregate
	SaveUserAllocation(ctx context.Context, a *schema.UserAllocation) error
	// DeleteUserAllocation removes the per-user aggregate row
	DeleteUserAllocation(ctx context.Context, groupID, userID string) error
	// CountGroupParticipants counts users with a live allocation in the group
	CountGroupParticipants(ctx context.Context, groupID string) (int64, error)

	// GetGroupDeposit retrieves the outstanding-deposit aggregate (nil if absent)
	GetGroupDeposit(ctx context.Context, groupID, currency string) (*schema.GroupDeposit, error)
	// SaveGroupDeposit persists the outstanding-deposit aggregate
	SaveGroupDeposit(ctx context.Context, d *schema.GroupDeposit) error

	// GetWithdrawableBalance retrieves the finalized-revenue aggregate (nil if absent)
	GetWithdrawableBalance(ctx context.Context, currency string) (*schema.WithdrawableBalance, error)
	// SaveWithdrawableBalance persists the finalized-revenue aggregate
	SaveWithdrawableBalance(ctx context.Context, b *schema.WithdrawableBalance) error
	// ListWithdrawableBalances retrieves all currency balances
	ListWithdrawableBalances(ctx context.Context) ([]*schema.WithdrawableBalance, error)

	// HasCapability checks an (identity, role) grant
	HasCapability(ctx context.Context, identity, role string) (bool, error)
	// GrantCapability records an (identity, role) grant; idempotent
	GrantCapability(ctx context.Context, identity, role string) error
	// RevokeCapability removes an (identity, role) grant
	RevokeCapability(ctx context.Context, identity, role string) error

	// GetFlag retrieves a boolean ledger flag (false if unset)
	GetFlag(ctx context.Context, key string) (bool, error)
	// SetFlag stores a boolean ledger flag
	SetFlag(ctx context.Context, key string, value bool) error

	// AppendJournal appends an audit journal entry
	AppendJournal(ctx context.Context, entry *schema.LedgerJournal) error
	// ListJournal retrieves journal entries for a group in cursor order
	ListJournal(ctx context.Context, groupID string, limit, offset int) ([]*schema.LedgerJournal, error)
}
