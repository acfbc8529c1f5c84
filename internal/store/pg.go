package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/feral-file/launch-ledger/internal/store/schema"
)

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// AutoMigrate creates or updates the ledger schema
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&schema.LaunchGroup{},
		&schema.GroupCurrency{},
		&schema.Participation{},
		&schema.UserAllocation{},
		&schema.GroupDeposit{},
		&schema.WithdrawableBalance{},
		&schema.Capability{},
		&schema.KeyValueStore{},
		&schema.LedgerJournal{},
	)
}

// ConfigureConnectionPool configures the connection pool settings for a GORM
// database connection. Zero values fall back to safe defaults.
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// Transaction executes fn atomically
func (s *pgStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&pgStore{db: tx})
	})
}

// CreateLaunchGroup inserts a new launch group
func (s *pgStore) CreateLaunchGroup(ctx context.Context, group *schema.LaunchGroup) error {
	if err := s.db.WithContext(ctx).Create(group).Error; err != nil {
		return fmt.Errorf("failed to create launch group: %w", err)
	}
	return nil
}

// GetLaunchGroup retrieves a launch group by its group identifier
func (s *pgStore) GetLaunchGroup(ctx context.Context, groupID string) (*schema.LaunchGroup, error) {
	var group schema.LaunchGroup
	err := s.db.WithContext(ctx).Where("group_id = ?", groupID).First(&group).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get launch group: %w", err)
	}
	return &group, nil
}

// ListLaunchGroups retrieves every launch group of the launch
func (s *pgStore) ListLaunchGroups(ctx context.Context) ([]*schema.LaunchGroup, error) {
	var groups []*schema.LaunchGroup
	err := s.db.WithContext(ctx).Order("created_at ASC").Find(&groups).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list launch groups: %w", err)
	}
	return groups, nil
}

// SaveLaunchGroup persists settings, status, and aggregate changes
func (s *pgStore) SaveLaunchGroup(ctx context.Context, group *schema.LaunchGroup) error {
	if err := s.db.WithContext(ctx).Save(group).Error; err != nil {
		return fmt.Errorf("failed to save launch group: %w", err)
	}
	return nil
}

// UpsertGroupCurrency creates or replaces a per-group currency config
func (s *pgStore) UpsertGroupCurrency(ctx context.Context, cc *schema.GroupCurrency) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "group_id"}, {Name: "currency"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"token_price_bps", "min_amount", "max_amount", "enabled", "updated_at",
		}),
	}).Create(cc).Error
	if err != nil {
		return fmt.Errorf("failed to upsert group currency: %w", err)
	}
	return nil
}

// GetGroupCurrency retrieves a currency config
func (s *pgStore) GetGroupCurrency(ctx context.Context, groupID, currency string) (*schema.GroupCurrency, error) {
	var cc schema.GroupCurrency
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND currency = ?", groupID, currency).
		First(&cc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get group currency: %w", err)
	}
	return &cc, nil
}

// ListGroupCurrencies retrieves all currency configs for a group
func (s *pgStore) ListGroupCurrencies(ctx context.Context, groupID string) ([]*schema.GroupCurrency, error) {
	var ccs []*schema.GroupCurrency
	err := s.db.WithContext(ctx).Where("group_id = ?", groupID).Find(&ccs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list group currencies: %w", err)
	}
	return ccs, nil
}

// CreateParticipation inserts a new participation record
func (s *pgStore) CreateParticipation(ctx context.Context, p *schema.Participation) error {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("failed to create participation: %w", err)
	}
	return nil
}

// GetParticipation retrieves a participation by its identifier
func (s *pgStore) GetParticipation(ctx context.Context, participationID string) (*schema.Participation, error) {
	var p schema.Participation
	err := s.db.WithContext(ctx).Where("participation_id = ?", participationID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get participation: %w", err)
	}
	return &p, nil
}

// SaveParticipation persists mutations to an existing record
func (s *pgStore) SaveParticipation(ctx context.Context, p *schema.Participation) error {
	if err := s.db.WithContext(ctx).Save(p).Error; err != nil {
		return fmt.Errorf("failed to save participation: %w", err)
	}
	return nil
}

// ListGroupParticipations retrieves participations in a group
func (s *pgStore) ListGroupParticipations(ctx context.Context, groupID, userID string, limit, offset int) ([]*schema.Participation, error) {
	q := s.db.WithContext(ctx).Where("group_id = ?", groupID)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}

	var ps []*schema.Participation
	if err := q.Order("id ASC").Find(&ps).Error; err != nil {
		return nil, fmt.Errorf("failed to list participations: %w", err)
	}
	return ps, nil
}

// ListRefundableParticipations retrieves non-finalized records with nonzero amounts
func (s *pgStore) ListRefundableParticipations(ctx context.Context, groupID string, limit int) ([]*schema.Participation, error) {
	q := s.db.WithContext(ctx).
		Where("group_id = ? AND finalized = ? AND token_amount > 0 AND currency_amount > 0", groupID, false)
	if limit > 0 {
		q = q.Limit(limit)
	}

	var ps []*schema.Participation
	if err := q.Order("id ASC").Find(&ps).Error; err != nil {
		return nil, fmt.Errorf("failed to list refundable participations: %w", err)
	}
	return ps, nil
}

// GetUserAllocation retrieves the per-user aggregate
func (s *pgStore) GetUserAllocation(ctx context.Context, groupID, userID string) (*schema.UserAllocation, error) {
	var a schema.UserAllocation
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user allocation: %w", err)
	}
	return &a, nil
}

// SaveUserAllocation persists the per-user aggregate
func (s *pgStore) SaveUserAllocation(ctx context.Context, a *schema.UserAllocation) error {
	if err := s.db.WithContext(ctx).Save(a).Error; err != nil {
		return fmt.Errorf("failed to save user allocation: %w", err)
	}
	return nil
}

// DeleteUserAllocation removes the per-user aggregate row
func (s *pgStore) DeleteUserAllocation(ctx context.Context, groupID, userID string) error {
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Delete(&schema.UserAllocation{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete user allocation: %w", err)
	}
	return nil
}

// CountGroupParticipants counts users with a live allocation in the group
func (s *pgStore) CountGroupParticipants(ctx context.Context, groupID string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&schema.UserAllocation{}).
		Where("group_id = ?", groupID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count group participants: %w", err)
	}
	return count, nil
}

// GetGroupDeposit retrieves the outstanding-deposit aggregate
func (s *pgStore) GetGroupDeposit(ctx context.Context, groupID, currency string) (*schema.GroupDeposit, error) {
	var d schema.GroupDeposit
	err := s.db.WithContext(ctx).
		Where("group_id = ? AND currency = ?", groupID, currency).
		First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get group deposit: %w", err)
	}
	return &d, nil
}

// SaveGroupDeposit persists the outstanding-deposit aggregate
func (s *pgStore) SaveGroupDeposit(ctx context.Context, d *schema.GroupDeposit) error {
	if err := s.db.WithContext(ctx).Save(d).Error; err != nil {
		return fmt.Errorf("failed to save group deposit: %w", err)
	}
	return nil
}

// GetWithdrawableBalance retrieves the finalized-revenue aggregate
func (s *pgStore) GetWithdrawableBalance(ctx context.Context, currency string) (*schema.WithdrawableBalance, error) {
	var b schema.WithdrawableBalance
	err := s.db.WithContext(ctx).Where("currency = ?", currency).First(&b).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get withdrawable balance: %w", err)
	}
	return &b, nil
}

// SaveWithdrawableBalance persists the finalized-revenue aggregate
func (s *pgStore) SaveWithdrawableBalance(ctx context.Context, b *schema.WithdrawableBalance) error {
	if err := s.db.WithContext(ctx).Save(b).Error; err != nil {
		return fmt.Errorf("failed to save withdrawable balance: %w", err)
	}
	return nil
}

// ListWithdrawableBalances retrieves all currency balances
func (s *pgStore) ListWithdrawableBalances(ctx context.Context) ([]*schema.WithdrawableBalance, error) {
	var bs []*schema.WithdrawableBalance
	if err := s.db.WithContext(ctx).Find(&bs).Error; err != nil {
		return nil, fmt.Errorf("failed to list withdrawable balances: %w", err)
	}
	return bs, nil
}

// HasCapability checks an (identity, role) grant
func (s *pgStore) HasCapability(ctx context.Context, identity, role string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&schema.Capability{}).
		Where("identity = ? AND role = ?", identity, role).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check capability: %w", err)
	}
	return count > 0, nil
}

// GrantCapability records an (identity, role) grant; idempotent
func (s *pgStore) GrantCapability(ctx context.Context, identity, role string) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identity"}, {Name: "role"}},
		DoNothing: true,
	}).Create(&schema.Capability{Identity: identity, Role: role}).Error
	if err != nil {
		return fmt.Errorf("failed to grant capability: %w", err)
	}
	return nil
}

// RevokeCapability removes an (identity, role) grant
func (s *pgStore) RevokeCapability(ctx context.Context, identity, role string) error {
	err := s.db.WithContext(ctx).
		Where("identity = ? AND role = ?", identity, role).
		Delete(&schema.Capability{}).Error
	if err != nil {
		return fmt.Errorf("failed to revoke capability: %w", err)
	}
	return nil
}

// GetFlag retrieves a boolean ledger flag
func (s *pgStore) GetFlag(ctx context.Context, key string) (bool, error) {
	var kv schema.KeyValueStore
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&kv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get flag: %w", err)
	}
	return kv.Value == "true", nil
}

// SetFlag stores a boolean ledger flag
func (s *pgStore) SetFlag(ctx context.Context, key string, value bool) error {
	v := "false"
	if value {
		v = "true"
	}
	if err := s.db.WithContext(ctx).Save(&schema.KeyValueStore{Key: key, Value: v}).Error; err != nil {
		return fmt.Errorf("failed to set flag: %w", err)
	}
	return nil
}

// AppendJournal appends an audit journal entry
func (s *pgStore) AppendJournal(ctx context.Context, entry *schema.LedgerJournal) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}
	return nil
}

// ListJournal retrieves journal entries for a group in cursor order
func (s *pgStore) ListJournal(ctx context.Context, groupID string, limit, offset int) ([]*schema.LedgerJournal, error) {
	q := s.db.WithContext(ctx).Where("group_id = ?", groupID)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}

	var entries []*schema.LedgerJournal
	if err := q.Order("\"cursor\" ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}
	return entries, nil
}
