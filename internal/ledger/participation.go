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

// Participate admits a new funded participation into a group. The whole
// operation is one store transaction; the incoming custody transfer runs
// last inside it, so a failed transfer leaves no ledger trace.
func (l *Ledger) Participate(ctx context.Context, caller string, req *signing.ParticipationRequest, signature string) (*schema.Participation, error) {
	release, err := l.admit(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	groupID := domain.ID32(req.GroupID).Normalize()
	participationID := domain.ID32(req.ParticipationID).Normalize()
	if !groupID.Valid() || !participationID.Valid() || req.UserID == "" {
		return nil, fmt.Errorf("%w: malformed identifiers", domain.ErrInvalidRequest)
	}
	tokenAmount, err := domain.ParseAmount(req.TokenAmount)
	if err != nil || tokenAmount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: token amount must be positive", domain.ErrInvalidRequest)
	}
	if !domain.IsValidAddress(req.Currency) {
		return nil, fmt.Errorf("%w: invalid currency address %q", domain.ErrInvalidRequest, req.Currency)
	}
	if err := l.validateEnvelope(req.LaunchID, req.ChainID, req.UserAddress, caller, req.RequestExpiresAt); err != nil {
		return nil, err
	}
	if _, err := l.verifier.Verify(ctx, req, signature); err != nil {
		return nil, err
	}

	currency := domain.NormalizeAddress(req.Currency)
	userAddress := domain.NormalizeAddress(req.UserAddress)
	var record *schema.Participation

	err = l.store.Transaction(ctx, func(tx store.Store) error {
		group, err := loadGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if err := l.requireActiveWithinWindow(group, true); err != nil {
			return err
		}

		cc, err := tx.GetGroupCurrency(ctx, group.GroupID, currency)
		if err != nil {
			return err
		}
		if cc == nil || !cc.Enabled {
			return &domain.LedgerError{Err: domain.ErrCurrencyDisabled, GroupID: groupID, Currency: currency}
		}

		existing, err := tx.GetParticipation(ctx, participationID.String())
		if err != nil {
			return err
		}
		if existing != nil {
			return &domain.LedgerError{Err: domain.ErrParticipationExists, GroupID: groupID, ParticipationID: participationID}
		}

		alloc, err := tx.GetUserAllocation(ctx, group.GroupID, req.UserID)
		if err != nil {
			return err
		}
		policy, err := policyFor(group)
		if err != nil {
			return err
		}
		if err := policy.admitCreate(ctx, tx, group, alloc, tokenAmount); err != nil {
			return err
		}

		currencyAmount, err := l.priceWithinBounds(cc, tokenAmount)
		if err != nil {
			return err
		}

		if group.FinalizesAtParticipation {
			sold, err := domain.ParseAmount(group.TokensSold)
			if err != nil {
				return err
			}
			cap, err := domain.ParseAmount(group.MaxTokenAllocation)
			if err != nil {
				return err
			}
			next := new(big.Int).Add(sold, tokenAmount)
			if next.Cmp(cap) > 0 {
				return &domain.LedgerError{
					Err:      domain.ErrAllocationExceeded,
					GroupID:  groupID,
					Expected: group.MaxTokenAllocation,
					Actual:   next.String(),
				}
			}
			group.TokensSold = domain.AmountString(next)
			if err := tx.SaveLaunchGroup(ctx, group); err != nil {
				return err
			}
			if err := adjustWithdrawable(ctx, tx, currency, currencyAmount); err != nil {
				return err
			}
		} else {
			if err := adjustDeposit(ctx, tx, group.GroupID, currency, currencyAmount); err != nil {
				return err
			}
		}

		if alloc == nil {
			alloc = &schema.UserAllocation{GroupID: group.GroupID, UserID: req.UserID, TokenAmount: "0"}
		}
		allocTokens, err := domain.ParseAmount(alloc.TokenAmount)
		if err != nil {
			return err
		}
		alloc.ParticipationCount++
		alloc.TokenAmount = domain.AmountString(allocTokens.Add(allocTokens, tokenAmount))
		if err := tx.SaveUserAllocation(ctx, alloc); err != nil {
			return err
		}

		record = &schema.Participation{
			ParticipationID: participationID.String(),
			GroupID:         group.GroupID,
			UserID:          req.UserID,
			UserAddress:     userAddress,
			Currency:        currency,
			TokenAmount:     domain.AmountString(tokenAmount),
			CurrencyAmount:  domain.AmountString(currencyAmount),
			Finalized:       group.FinalizesAtParticipation,
		}
		if err := tx.CreateParticipation(ctx, record); err != nil {
			return err
		}

		if err := l.journal(ctx, tx, &schema.LedgerJournal{
			EntryType:       schema.JournalParticipationCreated,
			GroupID:         group.GroupID,
			ParticipationID: record.ParticipationID,
			UserID:          record.UserID,
			Currency:        currency,
		}, map[string]interface{}{
			"token_amount":    record.TokenAmount,
			"currency_amount": record.CurrencyAmount,
			"finalized":       record.Finalized,
		}); err != nil {
			return err
		}

		// External call last: a transfer failure rolls back everything above
		return l.custody.TransferIn(ctx, currency, userAddress, currencyAmount)
	})
	if err != nil {
		return nil, err
	}

	l.emit(ctx, &domain.LedgerEvent{
		EventType:       domain.EventParticipationRegistered,
		GroupID:         groupID,
		ParticipationID: participationID,
		UserID:          req.UserID,
		UserAddress:     userAddress,
		Currency:        currency,
		TokenAmount:     record.TokenAmount,
		CurrencyAmount:  record.CurrencyAmount,
	})
	if record.Finalized {
		l.emit(ctx, &domain.LedgerEvent{
			EventType:       domain.EventWinnerFinalized,
			GroupID:         groupID,
			ParticipationID: participationID,
			UserID:          req.UserID,
			Currency:        currency,
			TokenAmount:     record.TokenAmount,
			CurrencyAmount:  record.CurrencyAmount,
		})
	}
	return record, nil
}

// UpdateParticipation supersedes a live participation with a new record
// under a new identifier, settling only the payment difference. The
// previous record's amounts are zeroed, never deleted.
func (l *Ledger) UpdateParticipation(ctx context.Context, caller string, req *signing.UpdateParticipationRequest, signature string) (*schema.Participation, error) {
	release, err := l.admit(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	groupID := domain.ID32(req.GroupID).Normalize()
	prevID := domain.ID32(req.PrevParticipationID).Normalize()
	newID := domain.ID32(req.NewParticipationID).Normalize()
	if !groupID.Valid() || !prevID.Valid() || !newID.Valid() || req.UserID == "" {
		return nil, fmt.Errorf("%w: malformed identifiers", domain.ErrInvalidRequest)
	}
	newTokens, err := domain.ParseAmount(req.TokenAmount)
	if err != nil || newTokens.Sign() <= 0 {
		return nil, fmt.Errorf("%w: token amount must be positive", domain.ErrInvalidRequest)
	}
	if !domain.IsValidAddress(req.Currency) {
		return nil, fmt.Errorf("%w: invalid currency address %q", domain.ErrInvalidRequest, req.Currency)
	}
	if err := l.validateEnvelope(req.LaunchID, req.ChainID, req.UserAddress, caller, req.RequestExpiresAt); err != nil {
		return nil, err
	}
	if _, err := l.verifier.Verify(ctx, req, signature); err != nil {
		return nil, err
	}

	currency := domain.NormalizeAddress(req.Currency)
	userAddress := domain.NormalizeAddress(req.UserAddress)
	var record *schema.Participation

	err = l.store.Transaction(ctx, func(tx store.Store) error {
		group, err := loadGroup(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if err := l.requireActiveWithinWindow(group, false); err != nil {
			return err
		}
		if group.FinalizesAtParticipation {
			return &domain.LedgerError{Err: domain.ErrUpdateNotAllowed, GroupID: groupID, Actual: "group finalizes at participation"}
		}

		prev, err := tx.GetParticipation(ctx, prevID.String())
		if err != nil {
			return err
		}
		if prev == nil || prev.GroupID != group.GroupID {
			return &domain.LedgerError{Err: domain.ErrParticipationNotFound, GroupID: groupID, ParticipationID: prevID}
		}
		if prev.Finalized {
			return &domain.LedgerError{Err: domain.ErrAlreadyFinalized, GroupID: groupID, ParticipationID: prevID}
		}
		if prev.UserID != req.UserID {
			return &domain.LedgerError{Err: domain.ErrUserMismatch, ParticipationID: prevID, Expected: prev.UserID, Actual: req.UserID}
		}
		if prev.Currency != currency {
			return &domain.LedgerError{Err: domain.ErrCurrencyMismatch, ParticipationID: prevID, Expected: prev.Currency, Actual: currency}
		}
		prevTokens, err := domain.ParseAmount(prev.TokenAmount)
		if err != nil {
			return err
		}
		prevCurrency, err := domain.ParseAmount(prev.CurrencyAmount)
		if err != nil {
			return err
		}
		if prevTokens.Sign() == 0 && prevCurrency.Sign() == 0 {
			// Already cancelled or refunded; nothing left to supersede
			return &domain.LedgerError{Err: domain.ErrUpdateNotAllowed, GroupID: groupID, ParticipationID: prevID, Actual: "record already zeroed"}
		}

		existing, err := tx.GetParticipation(ctx, newID.String())
		if err != nil {
			return err
		}
		if existing != nil {
			return &domain.LedgerError{Err: domain.ErrParticipationExists, GroupID: groupID, ParticipationID: newID}
		}

		cc, err := tx.GetGroupCurrency(ctx, group.GroupID, currency)
		if err != nil {
			return err
		}
		if cc == nil || !cc.Enabled {
			return &domain.LedgerError{Err: domain.ErrCurrencyDisabled, GroupID: groupID, Currency: currency}
		}

		alloc, err := tx.GetUserAllocation(ctx, group.GroupID, req.UserID)
		if err != nil {
			return err
		}
		policy, err := policyFor(group)
		if err != nil {
			return err
		}
		if err := policy.admitUpdate(group, alloc, prevTokens, newTokens); err != nil {
			return err
		}

		newCurrency, err := l.priceWithinBounds(cc, newTokens)
		if err != nil {
			return err
		}

		// Per-user aggregate moves by the token delta; count is unchanged
		if alloc == nil {
			return &domain.LedgerError{Err: domain.ErrAggregateUnderflow, GroupID: groupID, UserID: req.UserID, Actual: "no allocation for live participation"}
		}
		allocTokens, err := domain.ParseAmount(alloc.TokenAmount)
		if err != nil {
			return err
		}
		allocTokens.Sub(allocTokens, prevTokens)
		allocTokens.Add(allocTokens, newTokens)
		if allocTokens.Sign() < 0 {
			return &domain.LedgerError{Err: domain.ErrAggregateUnderflow, GroupID: groupID, UserID: req.UserID}
		}
		alloc.TokenAmount = domain.AmountString(allocTokens)
		if err := tx.SaveUserAllocation(ctx, alloc); err != nil {
			return err
		}

		diff := new(big.Int).Sub(newCurrency, prevCurrency)
		if err := adjustDeposit(ctx, tx, group.GroupID, currency, diff); err != nil {
			return err
		}

		prev.TokenAmount = "0"
		prev.CurrencyAmount = "0"
		if err := tx.SaveParticipation(ctx, prev); err != nil {
			return err
		}

		record = &schema.Participation{
			ParticipationID: newID.String(),
			GroupID:         group.GroupID,
			UserID:          req.UserID,
			UserAddress:     userAddress,
			Currency:        currency,
			TokenAmount:     domain.AmountString(newTokens),
			CurrencyAmount:  domain.AmountString(newCurrency),
		}
		if err := tx.CreateParticipation(ctx, record); err != nil {
			return err
		}

		if err := l.journal(ctx, tx, &schema.LedgerJournal{
			EntryType:       schema.JournalParticipationUpdated,
			GroupID:         group.GroupID,
			ParticipationID: record.ParticipationID,
			UserID:          record.UserID,
			Currency:        currency,
		}, map[string]interface{}{
			"previous_participation_id": prev.ParticipationID,
			"prev_token_amount":         domain.AmountString(prevTokens),
			"token_amount":              record.TokenAmount,
			"prev_currency_amount":      domain.AmountString(prevCurrency),
			"currency_amount":           record.CurrencyAmount,
		}); err != nil {
			return err
		}

		// Settle only the difference, external call last
		switch diff.Sign() {
		case 1:
			return l.custody.TransferIn(ctx, currency, userAddress, diff)
		case -1:
			return l.custody.TransferOut(ctx, currency, prev.UserAddress, new(big.Int).Neg(diff))
		default:
			return nil
		}
	})
	if err != nil {
		return nil, err
	}

	l.emit(ctx, &domain.LedgerEvent{
		EventType:               domain.EventParticipationUpdated,
		GroupID:                 groupID,
		ParticipationID:         newID,
		PreviousParticipationID: prevID,
		UserID:                  req.UserID,
		UserAddress:             userAddress,
		Currency:                currency,
		TokenAmount:             record.TokenAmount,
		CurrencyAmount:          record.CurrencyAmount,
	})
	return record, nil
}

// CancelParticipation refunds a live participation in full and zeroes the
// record, releasing the user's allocation
func (l *Ledger) CancelParticipation(ctx context.Context, caller string, req *signing.CancelParticipationRequest, signature string) error {
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
		if err := l.requireActiveWithinWindow(group, false); err != nil {
			return err
		}
		if group.FinalizesAtParticipation {
			return &domain.LedgerError{Err: domain.ErrUpdateNotAllowed, GroupID: groupID, Actual: "group finalizes at participation"}
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
			EntryType:       schema.JournalParticipationCancelled,
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
			EventType:       domain.EventParticipationCancelled,
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

// releaseAllocation zeroes a live record and unwinds its aggregates: the
// per-user allocation (deleting the row at zero) and the outstanding
// deposit. Returns the refundable currency amount and the token amount.
// Shared by cancel and refund, which differ only in their admission gates.
func releaseAllocation(ctx context.Context, tx store.Store, groupID string, record *schema.Participation) (*big.Int, *big.Int, error) {
	refund, err := domain.ParseAmount(record.CurrencyAmount)
	if err != nil {
		return nil, nil, err
	}
	tokens, err := domain.ParseAmount(record.TokenAmount)
	if err != nil {
		return nil, nil, err
	}
	if refund.Sign() == 0 || tokens.Sign() == 0 {
		return nil, nil, &domain.LedgerError{
			Err:             domain.ErrRefundInvalid,
			GroupID:         domain.ID32(groupID),
			ParticipationID: domain.ID32(record.ParticipationID),
			Actual:          "record already zeroed",
		}
	}

	alloc, err := tx.GetUserAllocation(ctx, groupID, record.UserID)
	if err != nil {
		return nil, nil, err
	}
	if alloc == nil || alloc.ParticipationCount < 1 {
		return nil, nil, &domain.LedgerError{Err: domain.ErrAggregateUnderflow, GroupID: domain.ID32(groupID), UserID: record.UserID}
	}
	allocTokens, err := domain.ParseAmount(alloc.TokenAmount)
	if err != nil {
		return nil, nil, err
	}
	allocTokens.Sub(allocTokens, tokens)
	if allocTokens.Sign() < 0 {
		return nil, nil, &domain.LedgerError{Err: domain.ErrAggregateUnderflow, GroupID: domain.ID32(groupID), UserID: record.UserID}
	}
	alloc.ParticipationCount--
	alloc.TokenAmount = domain.AmountString(allocTokens)
	if alloc.ParticipationCount == 0 && allocTokens.Sign() == 0 {
		if err := tx.DeleteUserAllocation(ctx, groupID, record.UserID); err != nil {
			return nil, nil, err
		}
	} else if err := tx.SaveUserAllocation(ctx, alloc); err != nil {
		return nil, nil, err
	}

	if err := adjustDeposit(ctx, tx, groupID, record.Currency, new(big.Int).Neg(refund)); err != nil {
		return nil, nil, err
	}

	record.TokenAmount = "0"
	record.CurrencyAmount = "0"
	if err := tx.SaveParticipation(ctx, record); err != nil {
		return nil, nil, err
	}
	return refund, tokens, nil
}

// requireActiveWithinWindow gates user mutations on group status ACTIVE and
// the participation window. Creation requires the window to have opened;
// update and cancel are allowed any time before it closes.
func (l *Ledger) requireActiveWithinWindow(group *schema.LaunchGroup, requireStarted bool) error {
	if domain.LaunchGroupStatus(group.Status) != domain.GroupStatusActive {
		return &domain.LedgerError{
			Err:      domain.ErrInvalidGroupStatus,
			GroupID:  domain.ID32(group.GroupID),
			Expected: string(domain.GroupStatusActive),
			Actual:   group.Status,
		}
	}
	now := l.clock.Now()
	if requireStarted && now.Before(group.StartsAt) {
		return &domain.LedgerError{Err: domain.ErrOutsideWindow, GroupID: domain.ID32(group.GroupID), Expected: group.StartsAt.String(), Actual: now.String()}
	}
	if now.After(group.EndsAt) {
		return &domain.LedgerError{Err: domain.ErrOutsideWindow, GroupID: domain.ID32(group.GroupID), Expected: group.EndsAt.String(), Actual: now.String()}
	}
	return nil
}

// priceWithinBounds computes the payment due for tokenAmount and checks it
// against the currency's configured bounds
func (l *Ledger) priceWithinBounds(cc *schema.GroupCurrency, tokenAmount *big.Int) (*big.Int, error) {
	price, err := domain.ParseAmount(cc.TokenPriceBps)
	if err != nil {
		return nil, err
	}
	amount := domain.CurrencyAmount(price, tokenAmount, l.cfg.TokenDecimals)

	min, err := domain.ParseAmount(cc.MinAmount)
	if err != nil {
		return nil, err
	}
	max, err := domain.ParseAmount(cc.MaxAmount)
	if err != nil {
		return nil, err
	}
	if amount.Cmp(min) < 0 || amount.Cmp(max) > 0 {
		return nil, &domain.LedgerError{
			Err:      domain.ErrCurrencyAmountOutOfRange,
			GroupID:  domain.ID32(cc.GroupID),
			Currency: cc.Currency,
			Expected: fmt.Sprintf("[%s, %s]", cc.MinAmount, cc.MaxAmount),
			Actual:   amount.String(),
		}
	}
	return amount, nil
}
