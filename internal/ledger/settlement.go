package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/feral-file/launch-ledger/internal/domain"
	"github.com/feral-file/launch-ledger/internal/signing"
	"github.com/feral-file/launch-ledger/internal/store"
	"github.com/feral-file/launch-ledger/internal/store/schema"
)

// FinalizeWinners marks the selected participations as settled revenue.
// The batch is all-or-nothing: if the running token total would exceed the
// group allocation cap, or any candidate is empty or already settled, the
// whole batch fails and no record changes. Operator capability required.
func (l *Ledger) FinalizeWinners(ctx context.Context, caller string, groupID domain.ID32, participationIDs []domain.ID32) error {
	release, err := l.admit(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := l.requireRole(ctx, caller, domain.RoleOperator); err != nil {
		return err
	}
	if len(participationIDs) == 0 {
		return fmt.Errorf("%w: empty winner batch", domain.ErrInvalidRequest)
	}

	var events []*domain.LedgerEvent
	err = l.store.Transaction(ctx, func(tx store.Store) error {
		group, err := loadGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if domain.LaunchGroupStatus(group.Status) != domain.GroupStatusActive {
			return &domain.LedgerError{
				Err:      domain.ErrInvalidGroupStatus,
				GroupID:  groupID,
				Expected: string(domain.GroupStatusActive),
				Actual:   group.Status,
			}
		}
		if group.FinalizesAtParticipation {
			return &domain.LedgerError{Err: domain.ErrUpdateNotAllowed, GroupID: groupID, Actual: "group finalizes at participation"}
		}

		sold, err := domain.ParseAmount(group.TokensSold)
		if err != nil {
			return err
		}
		allocationCap, err := domain.ParseAmount(group.MaxTokenAllocation)
		if err != nil {
			return err
		}

		for _, id := range participationIDs {
			id = id.Normalize()
			record, err := tx.GetParticipation(ctx, id.String())
			if err != nil {
				return err
			}
			if record == nil || record.GroupID != group.GroupID {
				return &domain.LedgerError{Err: domain.ErrParticipationNotFound, GroupID: groupID, ParticipationID: id}
			}
			if record.Finalized {
				return &domain.LedgerError{Err: domain.ErrAlreadyFinalized, GroupID: groupID, ParticipationID: id}
			}
			tokens, err := domain.ParseAmount(record.TokenAmount)
			if err != nil {
				return err
			}
			currencyAmount, err := domain.ParseAmount(record.CurrencyAmount)
			if err != nil {
				return err
			}
			if tokens.Sign() == 0 || currencyAmount.Sign() == 0 {
				// Zeroed means cancelled or refunded; there is no deposit
				// left to settle into revenue
				return &domain.LedgerError{Err: domain.ErrRefundInvalid, GroupID: groupID, ParticipationID: id, Actual: "record already zeroed"}
			}

			sold.Add(sold, tokens)
			if sold.Cmp(allocationCap) > 0 {
				return &domain.LedgerError{
					Err:      domain.ErrAllocationExceeded,
					GroupID:  groupID,
					Expected: group.MaxTokenAllocation,
					Actual:   sold.String(),
				}
			}

			record.Finalized = true
			if err := tx.SaveParticipation(ctx, record); err != nil {
				return err
			}
			// The deposit stops being refundable and becomes revenue
			if err := adjustDeposit(ctx, tx, group.GroupID, record.Currency, new(big.Int).Neg(currencyAmount)); err != nil {
				return err
			}
			if err := adjustWithdrawable(ctx, tx, record.Currency, currencyAmount); err != nil {
				return err
			}

			if err := l.journal(ctx, tx, &schema.LedgerJournal{
				EntryType:       schema.JournalFinalized,
				GroupID:         group.GroupID,
				ParticipationID: record.ParticipationID,
				UserID:          record.UserID,
				Currency:        record.Currency,
			}, map[string]interface{}{
				"token_amount":    record.TokenAmount,
				"currency_amount": record.CurrencyAmount,
			}); err != nil {
				return err
			}

			events = append(events, &domain.LedgerEvent{
				EventType:       domain.EventWinnerFinalized,
				GroupID:         groupID,
				ParticipationID: id,
				UserID:          record.UserID,
				Currency:        record.Currency,
				TokenAmount:     record.TokenAmount,
				CurrencyAmount:  record.CurrencyAmount,
			})
		}

		group.TokensSold = domain.AmountString(sold)
		return tx.SaveLaunchGroup(ctx, group)
	})
	if err != nil {
		return err
	}

	for _, event := range events {
		l.emit(ctx, event)
	}
	return nil
}

// ClaimRefund refunds a non-finalized participation once its group reached
// COMPLETED. Idempotence comes from the zero-amount check: a record can
// only be emptied once.
func (l *Ledger) ClaimRefund(ctx context.Context, caller string, req *signing.ClaimRefundRequest, signature string) error {
	release, err := l.admit(ctx)
	if err != nil {
		return err
	}
	defer release()

	groupID := domain.ID32(req.GroupID).Normalize()
	participationID := domain.ID32(req.ParticipationID).Normalize()
	if !groupID.Valid() || !participationID.Valid() || req.UserID == "" {
		return fmt.Errorf("%w: malformed identifiers", domain.ErrInvalidRequest)
	}
	if err := l.validateEnvelope(req.LaunchID, req.ChainID, req.UserAddress, caller, req.RequestExpiresAt); err != nil {
		return err
	}
	if _, err := l.verifier.Verify(ctx, req, signature); err != nil {
		return err
	}

	var event *domain.LedgerEvent
	err = l.store.Transaction(ctx, func(tx store.Store) error {
		group, err := loadGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if domain.LaunchGroupStatus(group.Status) != domain.GroupStatusCompleted {
			return &domain.LedgerError{
				Err:      domain.ErrInvalidGroupStatus,
				GroupID:  groupID,
				Expected: string(domain.GroupStatusCompleted),
				Actual:   group.Status,
			}
		}

		record, err := tx.GetParticipation(ctx, participationID.String())
		if err != nil {
			return err
		}
		if record == nil || record.GroupID != group.GroupID {
			return &domain.LedgerError{Err: domain.ErrParticipationNotFound, GroupID: groupID, ParticipationID: participationID}
		}
		if record.Finalized {
			return &domain.LedgerError{Err: domain.ErrAlreadyFinalized, GroupID: groupID, ParticipationID: participationID}
		}
		if record.UserID != req.UserID {
			return &domain.LedgerError{Err: domain.ErrUserMismatch, ParticipationID: participationID, Expected: record.UserID, Actual: req.UserID}
		}

		refund, tokens, err := releaseAllocation(ctx, tx, group.GroupID, record)
		if err != nil {
			return err
		}

		if err := l.journal(ctx, tx, &schema.LedgerJournal{
			EntryType:       schema.JournalRefund,
			GroupID:         group.GroupID,
			ParticipationID: record.ParticipationID,
			UserID:          record.UserID,
			Currency:        record.Currency,
		}, map[string]interface{}{
			"token_amount":    domain.AmountString(tokens),
			"currency_amount": domain.AmountString(refund),
		}); err != nil {
			return err
		}

		event = &domain.LedgerEvent{
			EventType:       domain.EventRefundClaimed,
			GroupID:         groupID,
			ParticipationID: participationID,
			UserID:          record.UserID,
			UserAddress:     record.UserAddress,
			Currency:        record.Currency,
			TokenAmount:     domain.AmountString(tokens),
			CurrencyAmount:  domain.AmountString(refund),
		}

		return l.custody.TransferOut(ctx, record.Currency, record.UserAddress, refund)
	})
	if err != nil {
		return err
	}

	l.emit(ctx, event)
	return nil
}

// BatchRefund refunds many non-finalized participations of a COMPLETED
// group in one atomic transaction. No per-item signature is needed; the
// operator capability substitutes for per-user consent, since a
// non-finalized record in a completed group is owed a refund by
// definition. Any invalid candidate fails the whole batch.
func (l *Ledger) BatchRefund(ctx context.Context, caller string, groupID domain.ID32, participationIDs []domain.ID32) error {
	release, err := l.admit(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := l.requireRole(ctx, caller, domain.RoleOperator); err != nil {
		return err
	}
	if len(participationIDs) == 0 {
		return fmt.Errorf("%w: empty refund batch", domain.ErrInvalidRequest)
	}

	type payout struct {
		currency string
		to       string
		amount   *big.Int
	}
	var payouts []payout
	var events []*domain.LedgerEvent

	err = l.store.Transaction(ctx, func(tx store.Store) error {
		group, err := loadGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if domain.LaunchGroupStatus(group.Status) != domain.GroupStatusCompleted {
			return &domain.LedgerError{
				Err:      domain.ErrInvalidGroupStatus,
				GroupID:  groupID,
				Expected: string(domain.GroupStatusCompleted),
				Actual:   group.Status,
			}
		}

		for _, id := range participationIDs {
			id = id.Normalize()
			record, err := tx.GetParticipation(ctx, id.String())
			if err != nil {
				return err
			}
			if record == nil || record.GroupID != group.GroupID {
				return &domain.LedgerError{Err: domain.ErrParticipationNotFound, GroupID: groupID, ParticipationID: id}
			}
			if record.Finalized {
				return &domain.LedgerError{Err: domain.ErrAlreadyFinalized, GroupID: groupID, ParticipationID: id}
			}

			refund, tokens, err := releaseAllocation(ctx, tx, group.GroupID, record)
			if err != nil {
				return err
			}

			if err := l.journal(ctx, tx, &schema.LedgerJournal{
				EntryType:       schema.JournalRefund,
				GroupID:         group.GroupID,
				ParticipationID: record.ParticipationID,
				UserID:          record.UserID,
				Currency:        record.Currency,
			}, map[string]interface{}{
				"token_amount":    domain.AmountString(tokens),
				"currency_amount": domain.AmountString(refund),
				"batch":           true,
			}); err != nil {
				return err
			}

			payouts = append(payouts, payout{currency: record.Currency, to: record.UserAddress, amount: refund})
			events = append(events, &domain.LedgerEvent{
				EventType:       domain.EventRefundClaimed,
				GroupID:         groupID,
				ParticipationID: id,
				UserID:          record.UserID,
				UserAddress:     record.UserAddress,
				Currency:        record.Currency,
				TokenAmount:     domain.AmountString(tokens),
				CurrencyAmount:  domain.AmountString(refund),
			})
		}

		// All bookkeeping done; external transfers last
		for _, p := range payouts {
			if err := l.custody.TransferOut(ctx, p.currency, p.to, p.amount); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, event := range events {
		l.emit(ctx, event)
	}
	return nil
}

// Withdraw moves finalized revenue out of custody to the configured
// treasury destination. Requires every group of the launch to be
// COMPLETED: while any group remains open its deposits are still subject
// to refund. Withdrawal capability required.
func (l *Ledger) Withdraw(ctx context.Context, caller, currency string, amount *big.Int) error {
	release, err := l.admit(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := l.requireRole(ctx, caller, domain.RoleWithdrawal); err != nil {
		return err
	}
	if !domain.IsValidAddress(currency) {
		return fmt.Errorf("%w: invalid currency address %q", domain.ErrInvalidRequest, currency)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: withdrawal amount must be positive", domain.ErrInvalidRequest)
	}
	currency = domain.NormalizeAddress(currency)

	err = l.store.Transaction(ctx, func(tx store.Store) error {
		groups, err := tx.ListLaunchGroups(ctx)
		if err != nil {
			return err
		}
		for _, group := range groups {
			if domain.LaunchGroupStatus(group.Status) != domain.GroupStatusCompleted {
				return &domain.LedgerError{
					Err:      domain.ErrInvalidGroupStatus,
					GroupID:  domain.ID32(group.GroupID),
					Expected: string(domain.GroupStatusCompleted),
					Actual:   group.Status,
				}
			}
		}

		if err := adjustWithdrawable(ctx, tx, currency, new(big.Int).Neg(amount)); err != nil {
			return err
		}

		if err := l.journal(ctx, tx, &schema.LedgerJournal{
			EntryType: schema.JournalWithdrawal,
			Currency:  currency,
		}, map[string]interface{}{
			"amount":      domain.AmountString(amount),
			"destination": l.cfg.WithdrawalAddress,
		}); err != nil {
			return err
		}

		return l.custody.TransferOut(ctx, currency, l.cfg.WithdrawalAddress, amount)
	})
	if err != nil {
		return err
	}

	l.emit(ctx, &domain.LedgerEvent{
		EventType:      domain.EventWithdrawal,
		Currency:       currency,
		CurrencyAmount: domain.AmountString(amount),
	})
	return nil
}
