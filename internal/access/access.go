package access

import (
	"context"
	"fmt"

	"github.com/feral-file/launch-ledger/internal/domain"
	"github.com/feral-file/launch-ledger/internal/store"
)

// pauseFlagKey is the key of the global pause flag in the key-value store
const pauseFlagKey = "ledger.paused"

// CapabilityGate answers whether an identity holds a capability role.
// The ledger injects a gate rather than reading grants itself, so tests
// and alternative deployments can swap the authority source.
//
//go:generate mockgen -source=access.go -destination=../mocks/access.go -package=mocks -mock_names=CapabilityGate=MockCapabilityGate,PauseGate=MockPauseGate
type CapabilityGate interface {
	// HasRole checks if identity holds role
	HasRole(ctx context.Context, identity string, role domain.Role) (bool, error)
	// Grant records a capability grant; idempotent
	Grant(ctx context.Context, identity string, role domain.Role) error
	// Revoke removes a capability grant
	Revoke(ctx context.Context, identity string, role domain.Role) error
}

// PauseGate exposes the global emergency-stop flag
type PauseGate interface {
	// IsPaused reports the current pause flag
	IsPaused(ctx context.Context) (bool, error)
	// SetPaused toggles the pause flag
	SetPaused(ctx context.Context, paused bool) error
}

type storeGate struct {
	store store.Store
}

// NewStoreGate creates a CapabilityGate backed by the capabilities table
func NewStoreGate(s store.Store) CapabilityGate {
	return &storeGate{store: s}
}

func (g *storeGate) HasRole(ctx context.Context, identity string, role domain.Role) (bool, error) {
	ok, err := g.store.HasCapability(ctx, domain.NormalizeAddress(identity), string(role))
	if err != nil {
		return false, fmt.Errorf("failed to check capability: %w", err)
	}
	return ok, nil
}

func (g *storeGate) Grant(ctx context.Context, identity string, role domain.Role) error {
	if !domain.IsValidAddress(identity) {
		return fmt.Errorf("%w: invalid identity address %q", domain.ErrInvalidRequest, identity)
	}
	return g.store.GrantCapability(ctx, domain.NormalizeAddress(identity), string(role))
}

func (g *storeGate) Revoke(ctx context.Context, identity string, role domain.Role) error {
	return g.store.RevokeCapability(ctx, domain.NormalizeAddress(identity), string(role))
}

type storePauseGate struct {
	store store.Store
}

// NewStorePauseGate creates a PauseGate backed by the key-value store
func NewStorePauseGate(s store.Store) PauseGate {
	return &storePauseGate{store: s}
}

func (g *storePauseGate) IsPaused(ctx context.Context) (bool, error) {
	paused, err := g.store.GetFlag(ctx, pauseFlagKey)
	if err != nil {
		return false, fmt.Errorf("failed to read pause flag: %w", err)
	}
	return paused, nil
}

func (g *storePauseGate) SetPaused(ctx context.Context, paused bool) error {
	return g.store.SetFlag(ctx, pauseFlagKey, paused)
}
