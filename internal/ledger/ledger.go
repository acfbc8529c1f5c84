package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/feral-file/launch-ledger/internal/access"
	"github.com/feral-file/launch-ledger/internal/adapter"
	"github.com/feral-file/launch-ledger/internal/custody"
	"github.com/feral-file/launch-ledger/internal/domain"
	"github.com/feral-file/launch-ledger/internal/logger"
	"github.com/feral-file/launch-ledger/internal/messaging"
	"github.com/feral-file/launch-ledger/internal/signing"
	"github.com/feral-file/launch-ledger/internal/store"
	"github.com/feral-file/launch-ledger/internal/store/schema"
)

// Config holds the per-launch configuration of a ledger instance
type Config struct {
	// LaunchID is the launch this ledger instance serves
	LaunchID domain.ID32
	// Chain is the execution chain in CAIP-2 form
	Chain domain.Chain
	// TokenDecimals is the sale token's decimal precision, used in price
	// computation
	TokenDecimals uint8
	// WithdrawalAddress is the treasury destination for withdrawals
	WithdrawalAddress string
}

// Ledger is the launch participation ledger. One instance serves one
// launch; all state lives in the store, none in the process.
//
// Every state-mutating operation runs fully serialized under mu, acquired
// with TryLock so a reentrant call through the custody adapter fails fast
// instead of deadlocking. Each mutation is a single store transaction with
// the custody transfer invoked last, so a failed transfer discards every
// ledger effect.
type Ledger struct {
	cfg       Config
	store     store.Store
	custody   custody.Custody
	gate      access.CapabilityGate
	pause     access.PauseGate
	verifier  *signing.Verifier
	publisher messaging.Publisher
	clock     adapter.Clock

	mu sync.Mutex
}

// New creates a ledger instance for one launch
func New(
	cfg Config,
	s store.Store,
	c custody.Custody,
	gate access.CapabilityGate,
	pause access.PauseGate,
	verifier *signing.Verifier,
	publisher messaging.Publisher,
	clock adapter.Clock,
) (*Ledger, error) {
	if !cfg.LaunchID.Valid() {
		return nil, fmt.Errorf("invalid launch id %q", cfg.LaunchID)
	}
	if !domain.IsValidChain(cfg.Chain) {
		return nil, fmt.Errorf("invalid chain %q", cfg.Chain)
	}
	if !domain.IsValidAddress(cfg.WithdrawalAddress) {
		return nil, fmt.Errorf("invalid withdrawal address %q", cfg.WithdrawalAddress)
	}
	cfg.LaunchID = cfg.LaunchID.Normalize()
	cfg.WithdrawalAddress = domain.NormalizeAddress(cfg.WithdrawalAddress)

	return &Ledger{
		cfg:       cfg,
		store:     s,
		custody:   c,
		gate:      gate,
		pause:     pause,
		verifier:  verifier,
		publisher: publisher,
		clock:     clock,
	}, nil
}

// Store exposes the underlying store for the read-only API surface
func (l *Ledger) Store() store.Store {
	return l.store
}

// LaunchID returns the launch this instance serves
func (l *Ledger) LaunchID() domain.ID32 {
	return l.cfg.LaunchID
}

// admit is the shared admission gate of every mutating entry point: the
// reentrancy lock first, then the global pause flag. The returned release
// must be deferred immediately.
func (l *Ledger) admit(ctx context.Context) (func(), error) {
	if !l.mu.TryLock() {
		return nil, domain.ErrReentrantCall
	}
	release := l.mu.Unlock

	paused, err := l.pause.IsPaused(ctx)
	if err != nil {
		release()
		return nil, err
	}
	if paused {
		release()
		return nil, domain.ErrPaused
	}
	return release, nil
}

// requireRole rejects callers lacking a capability role
func (l *Ledger) requireRole(ctx context.Context, caller string, role domain.Role) error {
	ok, err := l.gate.HasRole(ctx, caller, role)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s requires role %s", domain.ErrUnauthorized, caller, role)
	}
	return nil
}

// validateEnvelope runs the cheap pre-signature checks shared by every
// signed user request: launch id, chain id, caller address, and expiry
func (l *Ledger) validateEnvelope(launchID, chainID, userAddress, caller string, expiresAt int64) error {
	if domain.ID32(launchID).Normalize() != l.cfg.LaunchID {
		return &domain.LedgerError{
			Err:      domain.ErrInvalidRequest,
			Expected: string(l.cfg.LaunchID),
			Actual:   launchID,
		}
	}
	if domain.Chain(chainID) != l.cfg.Chain {
		return &domain.LedgerError{
			Err:      domain.ErrInvalidRequest,
			Expected: string(l.cfg.Chain),
			Actual:   chainID,
		}
	}
	if !domain.IsValidAddress(userAddress) {
		return fmt.Errorf("%w: invalid user address %q", domain.ErrInvalidRequest, userAddress)
	}
	if domain.NormalizeAddress(caller) != domain.NormalizeAddress(userAddress) {
		return &domain.LedgerError{
			Err:      domain.ErrInvalidRequest,
			Expected: domain.NormalizeAddress(userAddress),
			Actual:   domain.NormalizeAddress(caller),
		}
	}
	if !time.Unix(expiresAt, 0).After(l.clock.Now()) {
		return domain.ErrRequestExpired
	}
	return nil
}

// loadGroup retrieves a group, mapping absence to the not-found sentinel
func loadGroup(ctx context.Context, tx store.Store, groupID domain.ID32) (*schema.LaunchGroup, error) {
	group, err := tx.GetLaunchGroup(ctx, groupID.Normalize().String())
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, &domain.LedgerError{Err: domain.ErrGroupNotFound, GroupID: groupID}
	}
	return group, nil
}

// emit publishes a ledger event after the enclosing transaction committed.
// Publishing is best effort: the state change already holds, so a broker
// failure is logged and swallowed.
func (l *Ledger) emit(ctx context.Context, event *domain.LedgerEvent) {
	if l.publisher == nil {
		return
	}
	event.EventID = ulid.Make().String()
	event.LaunchID = l.cfg.LaunchID
	event.Timestamp = l.clock.Now().UTC()

	if err := l.publisher.PublishEvent(ctx, event); err != nil {
		logger.ErrorCtx(ctx, err,
			zap.String("event_type", string(event.EventType)),
			zap.String("group_id", event.GroupID.String()),
			zap.String("participation_id", event.ParticipationID.String()))
	}
}

// journal appends an audit entry inside the enclosing transaction
func (l *Ledger) journal(ctx context.Context, tx store.Store, entry *schema.LedgerJournal, meta map[string]interface{}) error {
	if meta != nil {
		raw, err := adapter.NewJSON().Marshal(meta)
		if err != nil {
			return fmt.Errorf("failed to marshal journal meta: %w", err)
		}
		entry.Meta = raw
	}
	return tx.AppendJournal(ctx, entry)
}

// adjustDeposit applies a signed delta to the outstanding-deposit
// aggregate of (group, currency), failing on underflow
func adjustDeposit(ctx context.Context, tx store.Store, groupID, currency string, delta *big.Int) error {
	deposit, err := tx.GetGroupDeposit(ctx, groupID, currency)
	if err != nil {
		return err
	}
	if deposit == nil {
		deposit = &schema.GroupDeposit{GroupID: groupID, Currency: currency, Amount: "0"}
	}
	current, err := domain.ParseAmount(deposit.Amount)
	if err != nil {
		return err
	}
	next := new(big.Int).Add(current, delta)
	if next.Sign() < 0 {
		return &domain.LedgerError{
			Err:      domain.ErrAggregateUnderflow,
			GroupID:  domain.ID32(groupID),
			Currency: currency,
			Expected: domain.AmountString(new(big.Int).Neg(delta)),
			Actual:   deposit.Amount,
		}
	}
	deposit.Amount = domain.AmountString(next)
	return tx.SaveGroupDeposit(ctx, deposit)
}

// adjustWithdrawable applies a signed delta to the withdrawable balance of
// a currency, failing if the debit exceeds the balance
func adjustWithdrawable(ctx context.Context, tx store.Store, currency string, delta *big.Int) error {
	balance, err := tx.GetWithdrawableBalance(ctx, currency)
	if err != nil {
		return err
	}
	if balance == nil {
		balance = &schema.WithdrawableBalance{Currency: currency, Amount: "0"}
	}
	current, err := domain.ParseAmount(balance.Amount)
	if err != nil {
		return err
	}
	next := new(big.Int).Add(current, delta)
	if next.Sign() < 0 {
		return &domain.LedgerError{
			Err:      domain.ErrInsufficientWithdrawable,
			Currency: currency,
			Expected: domain.AmountString(new(big.Int).Neg(delta)),
			Actual:   balance.Amount,
		}
	}
	balance.Amount = domain.AmountString(next)
	return tx.SaveWithdrawableBalance(ctx, balance)
}

// Pause sets the global pause flag; admin capability required. The pause
// toggle itself bypasses the pause admission gate, otherwise an unpause
// would be impossible.
func (l *Ledger) Pause(ctx context.Context, caller string, paused bool) error {
	if !l.mu.TryLock() {
		return domain.ErrReentrantCall
	}
	defer l.mu.Unlock()

	if err := l.requireRole(ctx, caller, domain.RoleAdmin); err != nil {
		return err
	}
	if err := l.pause.SetPaused(ctx, paused); err != nil {
		return err
	}
	logger.InfoCtx(ctx, "ledger pause flag changed",
		zap.Bool("paused", paused),
		zap.String("caller", caller))
	return nil
}

// GrantCapability grants a role to an identity; admin capability required
func (l *Ledger) GrantCapability(ctx context.Context, caller, identity string, role domain.Role) error {
	if err := l.requireRole(ctx, caller, domain.RoleAdmin); err != nil {
		return err
	}
	return l.gate.Grant(ctx, identity, role)
}

// RevokeCapability revokes a role from an identity; admin capability required
func (l *Ledger) RevokeCapability(ctx context.Context, caller, identity string, role domain.Role) error {
	if err := l.requireRole(ctx, caller, domain.RoleAdmin); err != nil {
		return err
	}
	return l.gate.Revoke(ctx, identity, role)
}
