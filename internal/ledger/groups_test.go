package ledger_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/launch-ledger/internal/domain"
)

func TestCreateLaunchGroup(t *testing.T) {
	e := setupLedger(t)
	ctx := context.Background()
	groupID := tid(0x01)

	t.Run("requires manager capability", func(t *testing.T) {
		_, err := e.ledger.CreateLaunchGroup(ctx, testUserAddr, groupID, defaultSettings())
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("groups are born pending", func(t *testing.T) {
		settings := defaultSettings()
		settings.Status = domain.GroupStatusActive // ignored
		group, err := e.ledger.CreateLaunchGroup(ctx, testManager, groupID, settings)
		require.NoError(t, err)
		assert.Equal(t, string(domain.GroupStatusPending), group.Status)
		assert.Equal(t, "0", group.TokensSold)
	})

	t.Run("duplicate rejected", func(t *testing.T) {
		_, err := e.ledger.CreateLaunchGroup(ctx, testManager, groupID, defaultSettings())
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	})

	t.Run("malformed id rejected", func(t *testing.T) {
		_, err := e.ledger.CreateLaunchGroup(ctx, testManager, "0x123", defaultSettings())
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	})

	t.Run("inverted window rejected", func(t *testing.T) {
		settings := defaultSettings()
		settings.StartsAt, settings.EndsAt = settings.EndsAt, settings.StartsAt
		_, err := e.ledger.CreateLaunchGroup(ctx, testManager, tid(0x02), settings)
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	})
}

func TestSetGroupStatus(t *testing.T) {
	e := setupLedger(t)
	ctx := context.Background()
	groupID := tid(0x01)
	_, err := e.ledger.CreateLaunchGroup(ctx, testManager, groupID, defaultSettings())
	require.NoError(t, err)

	group, err := e.ledger.SetGroupStatus(ctx, testManager, groupID, domain.GroupStatusActive)
	require.NoError(t, err)
	assert.Equal(t, string(domain.GroupStatusActive), group.Status)

	group, err = e.ledger.SetGroupStatus(ctx, testManager, groupID, domain.GroupStatusPaused)
	require.NoError(t, err)
	assert.Equal(t, string(domain.GroupStatusPaused), group.Status)

	// Nothing ever returns to pending
	_, err = e.ledger.SetGroupStatus(ctx, testManager, groupID, domain.GroupStatusPending)
	assert.ErrorIs(t, err, domain.ErrInvalidGroupStatus)

	// Completed groups can reopen; closing a sale is an operational act,
	// not a terminal one
	_, err = e.ledger.SetGroupStatus(ctx, testManager, groupID, domain.GroupStatusCompleted)
	require.NoError(t, err)
	_, err = e.ledger.SetGroupStatus(ctx, testManager, groupID, domain.GroupStatusActive)
	require.NoError(t, err)

	_, err = e.ledger.SetGroupStatus(ctx, testManager, tid(0xff), domain.GroupStatusActive)
	assert.ErrorIs(t, err, domain.ErrGroupNotFound)
}

func TestSetGroupSettings(t *testing.T) {
	e := setupLedger(t)
	ctx := context.Background()
	groupID := tid(0x01)
	_, err := e.ledger.CreateLaunchGroup(ctx, testManager, groupID, defaultSettings())
	require.NoError(t, err)

	t.Run("mutable while pending", func(t *testing.T) {
		settings := defaultSettings()
		settings.FinalizesAtParticipation = true
		settings.MaxTokenAllocation = big.NewInt(900)
		group, err := e.ledger.SetGroupSettings(ctx, testManager, groupID, settings)
		require.NoError(t, err)
		assert.True(t, group.FinalizesAtParticipation)
		assert.Equal(t, "900", group.MaxTokenAllocation)
	})

	t.Run("policies freeze after leaving pending", func(t *testing.T) {
		_, err := e.ledger.SetGroupStatus(ctx, testManager, groupID, domain.GroupStatusActive)
		require.NoError(t, err)

		settings := defaultSettings()
		settings.FinalizesAtParticipation = false // differs from the frozen value
		_, err = e.ledger.SetGroupSettings(ctx, testManager, groupID, settings)
		assert.ErrorIs(t, err, domain.ErrInvalidGroupStatus)

		// The window stays mutable on an active group
		settings.FinalizesAtParticipation = true
		settings.EndsAt = testNow.Add(48 * time.Hour)
		group, err := e.ledger.SetGroupSettings(ctx, testManager, groupID, settings)
		require.NoError(t, err)
		assert.Equal(t, testNow.Add(48*time.Hour), group.EndsAt)
	})
}

func TestSetGroupCurrency(t *testing.T) {
	e := setupLedger(t)
	ctx := context.Background()
	groupID := tid(0x01)
	_, err := e.ledger.CreateLaunchGroup(ctx, testManager, groupID, defaultSettings())
	require.NoError(t, err)

	t.Run("zero price rejected", func(t *testing.T) {
		_, err := e.ledger.SetGroupCurrency(ctx, testManager, groupID, &domain.CurrencyConfig{
			Currency:      testCurrency,
			TokenPriceBps: big.NewInt(0),
			MinAmount:     big.NewInt(0),
			MaxAmount:     big.NewInt(100),
			IsEnabled:     true,
		})
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	})

	t.Run("upsert replaces the config", func(t *testing.T) {
		cfg := &domain.CurrencyConfig{
			Currency:      testCurrency,
			TokenPriceBps: big.NewInt(5),
			MinAmount:     big.NewInt(0),
			MaxAmount:     big.NewInt(100),
			IsEnabled:     true,
		}
		_, err := e.ledger.SetGroupCurrency(ctx, testManager, groupID, cfg)
		require.NoError(t, err)

		cfg.TokenPriceBps = big.NewInt(7)
		cfg.IsEnabled = false
		cc, err := e.ledger.SetGroupCurrency(ctx, testManager, groupID, cfg)
		require.NoError(t, err)
		assert.Equal(t, "7", cc.TokenPriceBps)

		stored, err := e.store.GetGroupCurrency(ctx, groupID.String(), testCurrency)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, "7", stored.TokenPriceBps)
		assert.False(t, stored.Enabled)
	})

	t.Run("unknown group rejected", func(t *testing.T) {
		_, err := e.ledger.SetGroupCurrency(ctx, testManager, tid(0xff), &domain.CurrencyConfig{
			Currency:      testCurrency,
			TokenPriceBps: big.NewInt(5),
			MinAmount:     big.NewInt(0),
			MaxAmount:     big.NewInt(100),
			IsEnabled:     true,
		})
		assert.ErrorIs(t, err, domain.ErrGroupNotFound)
	})
}
