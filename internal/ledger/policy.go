package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/feral-file/launch-ledger/internal/domain"
	"github.com/feral-file/launch-ledger/internal/store"
	"github.com/feral-file/launch-ledger/internal/store/schema"
)

// allocationPolicy is the per-group ceiling rule selected by the group's
// allocation_policy setting. Exactly one policy applies per group; the
// two variants enforce different ceilings over the same aggregates.
type allocationPolicy interface {
	// admitCreate validates a new participation. alloc is nil when the
	// user has no live allocation in the group.
	admitCreate(ctx context.Context, tx store.Store, group *schema.LaunchGroup, alloc *schema.UserAllocation, tokenAmount *big.Int) error
	// admitUpdate validates the superseding token amount of an update
	admitUpdate(group *schema.LaunchGroup, alloc *schema.UserAllocation, prevTokens, newTokens *big.Int) error
}

// policyFor selects the allocation policy configured on a group
func policyFor(group *schema.LaunchGroup) (allocationPolicy, error) {
	switch domain.AllocationPolicy(group.AllocationPolicy) {
	case domain.PolicyParticipationCount:
		return participationCountPolicy{}, nil
	case domain.PolicyUserTokenAmount:
		return userTokenAmountPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown allocation policy %q on group %s", group.AllocationPolicy, group.GroupID)
	}
}

// participationCountPolicy caps live participations per user and, on a
// user's first participation, unique participants per group
type participationCountPolicy struct{}

func (participationCountPolicy) admitCreate(ctx context.Context, tx store.Store, group *schema.LaunchGroup, alloc *schema.UserAllocation, tokenAmount *big.Int) error {
	if alloc != nil {
		if alloc.ParticipationCount >= group.MaxParticipationsPerUser {
			return &domain.LedgerError{
				Err:      domain.ErrMaxUserParticipations,
				GroupID:  domain.ID32(group.GroupID),
				UserID:   alloc.UserID,
				Expected: fmt.Sprintf("< %d", group.MaxParticipationsPerUser),
				Actual:   fmt.Sprintf("%d", alloc.ParticipationCount),
			}
		}
		return nil
	}

	// First participation by this user; the participant ceiling applies
	participants, err := tx.CountGroupParticipants(ctx, group.GroupID)
	if err != nil {
		return err
	}
	if participants >= group.MaxParticipants {
		return &domain.LedgerError{
			Err:      domain.ErrMaxParticipantsReached,
			GroupID:  domain.ID32(group.GroupID),
			Expected: fmt.Sprintf("< %d", group.MaxParticipants),
			Actual:   fmt.Sprintf("%d", participants),
		}
	}
	return nil
}

func (participationCountPolicy) admitUpdate(group *schema.LaunchGroup, alloc *schema.UserAllocation, prevTokens, newTokens *big.Int) error {
	// An update replaces one live record with another; the count is
	// unchanged, so there is nothing to enforce.
	return nil
}

// userTokenAmountPolicy bounds the user's cumulative live token amount
// within the group's per-user range
type userTokenAmountPolicy struct{}

func (userTokenAmountPolicy) admitCreate(ctx context.Context, tx store.Store, group *schema.LaunchGroup, alloc *schema.UserAllocation, tokenAmount *big.Int) error {
	cumulative := new(big.Int).Set(tokenAmount)
	if alloc != nil {
		// A second live participation must go through update in
		// finalize-later groups, so the superseded record is zeroed
		// rather than duplicated.
		if !group.FinalizesAtParticipation {
			return &domain.LedgerError{
				Err:     domain.ErrMaxUserParticipations,
				GroupID: domain.ID32(group.GroupID),
				UserID:  alloc.UserID,
			}
		}
		existing, err := domain.ParseAmount(alloc.TokenAmount)
		if err != nil {
			return err
		}
		cumulative.Add(cumulative, existing)
	}
	return checkUserTokenBounds(group, cumulative)
}

func (userTokenAmountPolicy) admitUpdate(group *schema.LaunchGroup, alloc *schema.UserAllocation, prevTokens, newTokens *big.Int) error {
	cumulative := new(big.Int).Set(newTokens)
	if alloc != nil {
		existing, err := domain.ParseAmount(alloc.TokenAmount)
		if err != nil {
			return err
		}
		cumulative.Add(cumulative, existing)
		cumulative.Sub(cumulative, prevTokens)
	}
	return checkUserTokenBounds(group, cumulative)
}

func checkUserTokenBounds(group *schema.LaunchGroup, cumulative *big.Int) error {
	min, err := domain.ParseAmount(group.MinTokenAmountPerUser)
	if err != nil {
		return err
	}
	max, err := domain.ParseAmount(group.MaxTokenAmountPerUser)
	if err != nil {
		return err
	}
	if cumulative.Cmp(min) < 0 || cumulative.Cmp(max) > 0 {
		return &domain.LedgerError{
			Err:      domain.ErrUserTokenAmountOutOfRange,
			GroupID:  domain.ID32(group.GroupID),
			Expected: fmt.Sprintf("[%s, %s]", group.MinTokenAmountPerUser, group.MaxTokenAmountPerUser),
			Actual:   cumulative.String(),
		}
	}
	return nil
}
