package ledger

import (
	"context"
	"fmt"

	"github.com/feral-file/launch-ledger/internal/domain"
	"github.com/feral-file/launch-ledger/internal/store"
	"github.com/feral-file/launch-ledger/internal/store/schema"
)

// CreateLaunchGroup registers a new launch group in PENDING status.
// Manager capability required.
func (l *Ledger) CreateLaunchGroup(ctx context.Context, caller string, groupID domain.ID32, settings *domain.LaunchGroupSettings) (*schema.LaunchGroup, error) {
	release, err := l.admit(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := l.requireRole(ctx, caller, domain.RoleManager); err != nil {
		return nil, err
	}
	if !groupID.Valid() {
		return nil, fmt.Errorf("%w: invalid group id %q", domain.ErrInvalidRequest, groupID)
	}
	groupID = groupID.Normalize()

	// Groups are born PENDING; status moves through SetGroupStatus only
	settings.Status = domain.GroupStatusPending
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidRequest, err)
	}

	group := &schema.LaunchGroup{
		GroupID:                  groupID.String(),
		FinalizesAtParticipation: settings.FinalizesAtParticipation,
		AllocationPolicy:         string(settings.AllocationPolicy),
		StartsAt:                 settings.StartsAt,
		EndsAt:                   settings.EndsAt,
		MaxParticipants:          int64(settings.MaxParticipants),
		MaxParticipationsPerUser: int64(settings.MaxParticipationsPerUser),
		MinTokenAmountPerUser:    domain.AmountString(settings.MinTokenAmountPerUser),
		MaxTokenAmountPerUser:    domain.AmountString(settings.MaxTokenAmountPerUser),
		MaxTokenAllocation:       domain.AmountString(settings.MaxTokenAllocation),
		Status:                   string(domain.GroupStatusPending),
		TokensSold:               "0",
	}

	err = l.store.Transaction(ctx, func(tx store.Store) error {
		existing, err := tx.GetLaunchGroup(ctx, groupID.String())
		if err != nil {
			return err
		}
		if existing != nil {
			return &domain.LedgerError{Err: domain.ErrInvalidRequest, GroupID: groupID, Actual: "group already exists"}
		}
		if err := tx.CreateLaunchGroup(ctx, group); err != nil {
			return err
		}
		return l.journal(ctx, tx, &schema.LedgerJournal{
			EntryType: schema.JournalGroupCreated,
			GroupID:   groupID.String(),
		}, map[string]interface{}{
			"allocation_policy":          group.AllocationPolicy,
			"finalizes_at_participation": group.FinalizesAtParticipation,
			"max_token_allocation":       group.MaxTokenAllocation,
		})
	})
	if err != nil {
		return nil, err
	}

	l.emit(ctx, &domain.LedgerEvent{
		EventType: domain.EventGroupCreated,
		GroupID:   groupID,
	})
	return group, nil
}

// SetGroupSettings replaces the mutable configuration of a group. The
// finalization policy and allocation policy freeze once the group leaves
// PENDING; window, ceilings and bounds stay mutable. Manager capability
// required.
func (l *Ledger) SetGroupSettings(ctx context.Context, caller string, groupID domain.ID32, settings *domain.LaunchGroupSettings) (*schema.LaunchGroup, error) {
	release, err := l.admit(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := l.requireRole(ctx, caller, domain.RoleManager); err != nil {
		return nil, err
	}

	var group *schema.LaunchGroup
	err = l.store.Transaction(ctx, func(tx store.Store) error {
		group, err = loadGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}

		settings.Status = domain.LaunchGroupStatus(group.Status)
		if err := settings.Validate(); err != nil {
			return fmt.Errorf("%w: %s", domain.ErrInvalidRequest, err)
		}

		if domain.LaunchGroupStatus(group.Status) != domain.GroupStatusPending {
			if settings.FinalizesAtParticipation != group.FinalizesAtParticipation ||
				string(settings.AllocationPolicy) != group.AllocationPolicy {
				return &domain.LedgerError{
					Err:      domain.ErrInvalidGroupStatus,
					GroupID:  groupID,
					Expected: string(domain.GroupStatusPending),
					Actual:   group.Status,
				}
			}
		}

		group.FinalizesAtParticipation = settings.FinalizesAtParticipation
		group.AllocationPolicy = string(settings.AllocationPolicy)
		group.StartsAt = settings.StartsAt
		group.EndsAt = settings.EndsAt
		group.MaxParticipants = int64(settings.MaxParticipants)
		group.MaxParticipationsPerUser = int64(settings.MaxParticipationsPerUser)
		group.MinTokenAmountPerUser = domain.AmountString(settings.MinTokenAmountPerUser)
		group.MaxTokenAmountPerUser = domain.AmountString(settings.MaxTokenAmountPerUser)
		group.MaxTokenAllocation = domain.AmountString(settings.MaxTokenAllocation)

		if err := tx.SaveLaunchGroup(ctx, group); err != nil {
			return err
		}
		return l.journal(ctx, tx, &schema.LedgerJournal{
			EntryType: schema.JournalGroupUpdated,
			GroupID:   group.GroupID,
		}, map[string]interface{}{
			"max_token_allocation": group.MaxTokenAllocation,
			"starts_at":            group.StartsAt,
			"ends_at":              group.EndsAt,
		})
	})
	if err != nil {
		return nil, err
	}
	return group, nil
}

// SetGroupStatus drives the group lifecycle machine. PENDING may move to
// any other state; no state ever returns to PENDING. Manager capability
// required.
func (l *Ledger) SetGroupStatus(ctx context.Context, caller string, groupID domain.ID32, status domain.LaunchGroupStatus) (*schema.LaunchGroup, error) {
	release, err := l.admit(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := l.requireRole(ctx, caller, domain.RoleManager); err != nil {
		return nil, err
	}

	var group *schema.LaunchGroup
	err = l.store.Transaction(ctx, func(tx store.Store) error {
		group, err = loadGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		from := domain.LaunchGroupStatus(group.Status)
		if !domain.CanTransitionGroupStatus(from, status) {
			return &domain.LedgerError{
				Err:      domain.ErrInvalidGroupStatus,
				GroupID:  groupID,
				Expected: string(from),
				Actual:   string(status),
			}
		}
		group.Status = string(status)
		if err := tx.SaveLaunchGroup(ctx, group); err != nil {
			return err
		}
		return l.journal(ctx, tx, &schema.LedgerJournal{
			EntryType: schema.JournalGroupUpdated,
			GroupID:   group.GroupID,
		}, map[string]interface{}{
			"status_from": string(from),
			"status_to":   string(status),
		})
	})
	if err != nil {
		return nil, err
	}

	l.emit(ctx, &domain.LedgerEvent{
		EventType: domain.EventGroupStatusChanged,
		GroupID:   groupID.Normalize(),
	})
	return group, nil
}

// SetGroupCurrency creates or replaces a payment-currency configuration on
// a group. The price must be nonzero at set time; participation against a
// disabled currency is rejected separately at participate time. Manager
// capability required.
func (l *Ledger) SetGroupCurrency(ctx context.Context, caller string, groupID domain.ID32, cfg *domain.CurrencyConfig) (*schema.GroupCurrency, error) {
	release, err := l.admit(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := l.requireRole(ctx, caller, domain.RoleManager); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidRequest, err)
	}

	cc := &schema.GroupCurrency{
		GroupID:       groupID.Normalize().String(),
		Currency:      domain.NormalizeAddress(cfg.Currency),
		TokenPriceBps: domain.AmountString(cfg.TokenPriceBps),
		MinAmount:     domain.AmountString(cfg.MinAmount),
		MaxAmount:     domain.AmountString(cfg.MaxAmount),
		Enabled:       cfg.IsEnabled,
	}

	err = l.store.Transaction(ctx, func(tx store.Store) error {
		if _, err := loadGroup(ctx, tx, groupID); err != nil {
			return err
		}
		if err := tx.UpsertGroupCurrency(ctx, cc); err != nil {
			return err
		}
		return l.journal(ctx, tx, &schema.LedgerJournal{
			EntryType: schema.JournalGroupUpdated,
			GroupID:   cc.GroupID,
			Currency:  cc.Currency,
		}, map[string]interface{}{
			"token_price_bps": cc.TokenPriceBps,
			"min_amount":      cc.MinAmount,
			"max_amount":      cc.MaxAmount,
			"enabled":         cc.Enabled,
		})
	})
	if err != nil {
		return nil, err
	}
	return cc, nil
}
