package ledger_test

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/launch-ledger/internal/access"
	"github.com/feral-file/launch-ledger/internal/domain"
	"github.com/feral-file/launch-ledger/internal/ledger"
	"github.com/feral-file/launch-ledger/internal/logger"
	"github.com/feral-file/launch-ledger/internal/mocks"
	"github.com/feral-file/launch-ledger/internal/signing"
	"github.com/feral-file/launch-ledger/internal/store"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}

var (
	testNow       = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	testLaunchID  = tid(0xfa)
	testChain     = domain.ChainEthereumSepolia
	testCurrency  = domain.NormalizeAddress("0x00000000000000000000000000000000000000aa")
	testUserAddr  = domain.NormalizeAddress("0x1000000000000000000000000000000000000001")
	testUser2Addr = domain.NormalizeAddress("0x1000000000000000000000000000000000000002")
	testManager   = domain.NormalizeAddress("0x2000000000000000000000000000000000000001")
	testOperator  = domain.NormalizeAddress("0x2000000000000000000000000000000000000002")
	testAdmin     = domain.NormalizeAddress("0x2000000000000000000000000000000000000003")
	testTreasurer = domain.NormalizeAddress("0x2000000000000000000000000000000000000004")
	testVault     = domain.NormalizeAddress("0x3000000000000000000000000000000000000001")
)

// tid builds a deterministic 32-byte identifier from one repeated byte
func tid(b byte) domain.ID32 {
	return domain.ID32("0x" + strings.Repeat(fmt.Sprintf("%02x", b), 32))
}

// env bundles the ledger under test with its collaborators
type env struct {
	ctrl      *gomock.Controller
	store     *store.MemoryStore
	custody   *mocks.MockCustody
	publisher *mocks.MockPublisher
	clock     *mocks.MockClock
	ledger    *ledger.Ledger
	sign      func(payload interface{}) string
}

func setupLedger(t *testing.T) *env {
	ctrl := gomock.NewController(t)
	ctx := context.Background()

	ms := store.NewMemoryStore()
	gate := access.NewStoreGate(ms)
	pauseGate := access.NewStorePauseGate(ms)

	signerKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	signerAddr := crypto.PubkeyToAddress(signerKey.PublicKey).String()

	require.NoError(t, gate.Grant(ctx, signerAddr, domain.RoleSigner))
	require.NoError(t, gate.Grant(ctx, testManager, domain.RoleManager))
	require.NoError(t, gate.Grant(ctx, testOperator, domain.RoleOperator))
	require.NoError(t, gate.Grant(ctx, testAdmin, domain.RoleAdmin))
	require.NoError(t, gate.Grant(ctx, testTreasurer, domain.RoleWithdrawal))

	custodian := mocks.NewMockCustody(ctrl)
	publisher := mocks.NewMockPublisher(ctrl)
	publisher.EXPECT().PublishEvent(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	clock := mocks.NewMockClock(ctrl)
	clock.EXPECT().Now().Return(testNow).AnyTimes()

	l, err := ledger.New(ledger.Config{
		LaunchID:          testLaunchID,
		Chain:             testChain,
		TokenDecimals:     0,
		WithdrawalAddress: testVault,
	}, ms, custodian, gate, pauseGate, signing.NewVerifier(gate), publisher, clock)
	require.NoError(t, err)

	return &env{
		ctrl:      ctrl,
		store:     ms,
		custody:   custodian,
		publisher: publisher,
		clock:     clock,
		ledger:    l,
		sign: func(payload interface{}) string {
			sig, err := signing.Sign(payload, signerKey)
			require.NoError(t, err)
			return sig
		},
	}
}

// defaultSettings builds a participation-count group open around testNow
func defaultSettings() *domain.LaunchGroupSettings {
	return &domain.LaunchGroupSettings{
		AllocationPolicy:         domain.PolicyParticipationCount,
		StartsAt:                 testNow.Add(-time.Hour),
		EndsAt:                   testNow.Add(time.Hour),
		MaxParticipants:          10,
		MaxParticipationsPerUser: 2,
		MaxTokenAllocation:       big.NewInt(500),
	}
}

// createActiveGroup creates a group, attaches the test currency at the
// given bps price, and moves it to ACTIVE
func createActiveGroup(t *testing.T, e *env, groupID domain.ID32, settings *domain.LaunchGroupSettings, price int64) {
	createActiveGroupWithBounds(t, e, groupID, settings, price, 0, 1_000_000)
}

// createActiveGroupWithBounds is createActiveGroup with explicit
// per-currency payment bounds
func createActiveGroupWithBounds(t *testing.T, e *env, groupID domain.ID32, settings *domain.LaunchGroupSettings, price, minAmount, maxAmount int64) {
	ctx := context.Background()
	_, err := e.ledger.CreateLaunchGroup(ctx, testManager, groupID, settings)
	require.NoError(t, err)
	_, err = e.ledger.SetGroupCurrency(ctx, testManager, groupID, &domain.CurrencyConfig{
		Currency:      testCurrency,
		TokenPriceBps: big.NewInt(price),
		MinAmount:     big.NewInt(minAmount),
		MaxAmount:     big.NewInt(maxAmount),
		IsEnabled:     true,
	})
	require.NoError(t, err)
	_, err = e.ledger.SetGroupStatus(ctx, testManager, groupID, domain.GroupStatusActive)
	require.NoError(t, err)
}

func participateReq(groupID, participationID domain.ID32, userID string, tokens int64) *signing.ParticipationRequest {
	return &signing.ParticipationRequest{
		ChainID:          string(testChain),
		LaunchID:         string(testLaunchID),
		GroupID:          string(groupID),
		ParticipationID:  string(participationID),
		UserID:           userID,
		UserAddress:      testUserAddr,
		TokenAmount:      fmt.Sprintf("%d", tokens),
		Currency:         testCurrency,
		RequestExpiresAt: testNow.Add(10 * time.Minute).Unix(),
	}
}

func TestParticipate(t *testing.T) {
	e := setupLedger(t)
	ctx := context.Background()
	groupID := tid(0x01)
	createActiveGroup(t, e, groupID, defaultSettings(), 2)

	req := participateReq(groupID, tid(0x11), "user-1", 100)
	e.custody.EXPECT().
		TransferIn(ctx, testCurrency, testUserAddr, big.NewInt(200)).
		Return(nil)

	record, err := e.ledger.Participate(ctx, testUserAddr, req, e.sign(req))
	require.NoError(t, err)
	assert.Equal(t, "100", record.TokenAmount)
	assert.Equal(t, "200", record.CurrencyAmount)
	assert.False(t, record.Finalized)

	// Per-user aggregate tracks the live record
	alloc, err := e.store.GetUserAllocation(ctx, groupID.String(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, alloc)
	assert.Equal(t, int64(1), alloc.ParticipationCount)
	assert.Equal(t, "100", alloc.TokenAmount)

	// The payment sits in the refundable deposit, not in revenue
	deposit, err := e.store.GetGroupDeposit(ctx, groupID.String(), testCurrency)
	require.NoError(t, err)
	require.NotNil(t, deposit)
	assert.Equal(t, "200", deposit.Amount)
	balance, err := e.store.GetWithdrawableBalance(ctx, testCurrency)
	require.NoError(t, err)
	assert.Nil(t, balance)

	journal, err := e.store.ListJournal(ctx, groupID.String(), 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, journal)
}

func TestParticipateReplayRejected(t *testing.T) {
	e := setupLedger(t)
	ctx := context.Background()
	groupID := tid(0x01)
	createActiveGroup(t, e, groupID, defaultSettings(), 2)

	req := participateReq(groupID, tid(0x11), "user-1", 100)
	sig := e.sign(req)
	e.custody.EXPECT().TransferIn(ctx, testCurrency, testUserAddr, big.NewInt(200)).Return(nil)
	_, err := e.ledger.Participate(ctx, testUserAddr, req, sig)
	require.NoError(t, err)

	// Same participation id again; no custody call expected
	_, err = e.ledger.Participate(ctx, testUserAddr, req, sig)
	assert.ErrorIs(t, err, domain.ErrParticipationExists)
}

func TestParticipateEnvelopeValidation(t *testing.T) {
	e := setupLedger(t)
	ctx := context.Background()
	groupID := tid(0x01)
	createActiveGroup(t, e, groupID, defaultSettings(), 2)

	t.Run("expired request", func(t *testing.T) {
		req := participateReq(groupID, tid(0x12), "user-1", 100)
		req.RequestExpiresAt = testNow.Add(-time.Second).Unix()
		_, err := e.ledger.Participate(ctx, testUserAddr, req, e.sign(req))
		assert.ErrorIs(t, err, domain.ErrRequestExpired)
	})

	t.Run("wrong launch", func(t *testing.T) {
		req := participateReq(groupID, tid(0x12), "user-1", 100)
		req.LaunchID = string(tid(0xdd))
		_, err := e.ledger.Participate(ctx, testUserAddr, req, e.sign(req))
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	})

	t.Run("wrong chain", func(t *testing.T) {
		req := participateReq(groupID, tid(0x12), "user-1", 100)
		req.ChainID = string(domain.ChainEthereumMainnet)
		_, err := e.ledger.Participate(ctx, testUserAddr, req, e.sign(req))
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	})

	t.Run("caller is not the participant", func(t *testing.T) {
		req := participateReq(groupID, tid(0x12), "user-1", 100)
		_, err := e.ledger.Participate(ctx, testUser2Addr, req, e.sign(req))
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	})

	t.Run("tampered payload", func(t *testing.T) {
		req := participateReq(groupID, tid(0x12), "user-1", 100)
		sig := e.sign(req)
		req.TokenAmount = "101"
		_, err := e.ledger.Participate(ctx, testUserAddr, req, sig)
		assert.ErrorIs(t, err, domain.ErrInvalidSignature)
	})

	t.Run("unauthorized signer", func(t *testing.T) {
		req := participateReq(groupID, tid(0x12), "user-1", 100)
		rogueKey, err := crypto.GenerateKey()
		require.NoError(t, err)
		sig, err := signing.Sign(req, rogueKey)
		require.NoError(t, err)
		_, err = e.ledger.Participate(ctx, testUserAddr, req, sig)
		assert.ErrorIs(t, err, domain.ErrInvalidSignature)
	})
}

func TestParticipateWindowAndStatus(t *testing.T) {
	e := setupLedger(t)
	ctx := context.Background()

	t.Run("group not active", func(t *testing.T) {
		groupID := tid(0x02)
		_, err := e.ledger.CreateLaunchGroup(ctx, testManager, groupID, defaultSettings())
		require.NoError(t, err)
		req := participateReq(groupID, tid(0x21), "user-1", 100)
		_, err = e.ledger.Participate(ctx, testUserAddr, req, e.sign(req))
		assert.ErrorIs(t, err, domain.ErrInvalidGroupStatus)
	})

	t.Run("window not open yet", func(t *testing.T) {
		groupID := tid(0x03)
		settings := defaultSettings()
		settings.StartsAt = testNow.Add(time.Minute)
		settings.EndsAt = testNow.Add(time.Hour)
		createActiveGroup(t, e, groupID, settings, 2)
		req := participateReq(groupID, tid(0x31), "user-1", 100)
		_, err := e.ledger.Participate(ctx, testUserAddr, req, e.sign(req))
		assert.ErrorIs(t, err, domain.ErrOutsideWindow)
	})

	t.Run("window closed", func(t *testing.T) {
		groupID := tid(0x04)
		settings := defaultSettings()
		settings.StartsAt = testNow.Add(-2 * time.Hour)
		settings.EndsAt = testNow.Add(-time.Hour)
		createActiveGroup(t, e, groupID, settings, 2)
		req := participateReq(groupID, tid(0x41), "user-1", 100)
		_, err := e.ledger.Participate(ctx, testUserAddr, req, e.sign(req))
		assert.ErrorIs(t, err, domain.ErrOutsideWindow)
	})

	t.Run("disabled currency", func(t *testing.T) {
		groupID := tid(0x05)
		createActiveGroup(t, e, groupID, defaultSettings(), 2)
		_, err := e.ledger.SetGroupCurrency(ctx, testManager, groupID, &domain.CurrencyConfig{
			Currency:      testCurrency,
			TokenPriceBps: big.NewInt(2),
			MinAmount:     big.NewInt(0),
			MaxAmount:     big.NewInt(1_000_000),
			IsEnabled:     false,
		})
		require.NoError(t, err)
		req := participateReq(groupID, tid(0x51), "user-1", 100)
		_, err = e.ledger.Participate(ctx, testUserAddr, req, e.sign(req))
		assert.ErrorIs(t, err, domain.ErrCurrencyDisabled)
	})
}

func TestParticipateTransferFailureRollsBack(t *testing.T) {
	e := setupLedger(t)
	ctx := context.Background()
	groupID := tid(0x01)
	createActiveGroup(t, e, groupID, defaultSettings(), 2)

	req := participateReq(groupID, tid(0x11), "user-1", 100)
	e.custody.EXPECT().
		TransferIn(ctx, testCurrency, testUserAddr, big.NewInt(200)).
		Return(fmt.Errorf("%w: reverted", domain.ErrTransferFailed))

	_, err := e.ledger.Participate(ctx, testUserAddr, req, e.sign(req))
	assert.ErrorIs(t, err, domain.ErrTransferFailed)

	// The failed transfer must leave no ledger trace
	record, err := e.store.GetParticipation(ctx, tid(0x11).String())
	require.NoError(t, err)
	assert.Nil(t, record)
	alloc, err := e.store.GetUserAllocation(ctx, groupID.String(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, alloc)
	deposit, err := e.store.GetGroupDeposit(ctx, groupID.String(), testCurrency)
	require.NoError(t, err)
	assert.Nil(t, deposit)
}

func TestUpdateParticipation(t *testing.T) {
	e := setupLedger(t)
	ctx := context.Background()
	groupID := tid(0x01)
	createActiveGroup(t, e, groupID, defaultSettings(), 2)

	req := participateReq(groupID, tid(0x11), "user-1", 100)
	e.custody.EXPECT().TransferIn(ctx, testCurrency, testUserAddr, big.NewInt(200)).Return(nil)
	_, err := e.ledger.Participate(ctx, testUserAddr, req, e.sign(req))
	require.NoError(t, err)

	update := &signing.UpdateParticipationRequest{
		ChainID:             string(testChain),
		LaunchID:            string(testLaunchID),
		GroupID:             string(groupID),
		PrevParticipationID: string(tid(0x11)),
		NewParticipationID:  string(tid(0x12)),
		UserID:              "user-1",
		UserAddress:         testUserAddr,
		TokenAmount:         "150",
		Currency:            testCurrency,
		RequestExpiresAt:    testNow.Add(10 * time.Minute).Unix(),
	}
	// Only the difference moves: 150*2 - 100*2 = 100 more in
	e.custody.EXPECT().TransferIn(ctx, testCurrency, testUserAddr, big.NewInt(100)).Return(nil)
	record, err := e.ledger.UpdateParticipation(ctx, testUserAddr, update, e.sign(update))
	require.NoError(t, err)
	assert.Equal(t, tid(0x12).String(), record.ParticipationID)
	assert.Equal(t, "150", record.TokenAmount)
	assert.Equal(t, "300", record.CurrencyAmount)

	// The superseded record stays, zeroed
	prev, err := e.store.GetParticipation(ctx, tid(0x11).String())
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, "0", prev.TokenAmount)
	assert.Equal(t, "0", prev.CurrencyAmount)

	// Count unchanged, tokens moved by the delta
	alloc, err := e.store.GetUserAllocation(ctx, groupID.String(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, alloc)
	assert.Equal(t, int64(1), alloc.ParticipationCount)
	assert.Equal(t, "150", alloc.TokenAmount)

	deposit, err := e.store.GetGroupDeposit(ctx, groupID.String(), testCurrency)
	require.NoError(t, err)
	assert.Equal(t, "300", deposit.Amount)

	// Downgrade pays the difference back out
	downgrade := &signing.UpdateParticipationRequest{
		ChainID:             string(testChain),
		LaunchID:            string(testLaunchID),
		GroupID:             string(groupID),
		PrevParticipationID: string(tid(0x12)),
		NewParticipationID:  string(tid(0x13)),
		UserID:              "user-1",
		UserAddress:         testUserAddr,
		TokenAmount:         "50",
		Currency:            testCurrency,
		RequestExpiresAt:    testNow.Add(10 * time.Minute).Unix(),
	}
	e.custody.EXPECT().TransferOut(ctx, testCurrency, testUserAddr, big.NewInt(200)).Return(nil)
	record, err = e.ledger.UpdateParticipation(ctx, testUserAddr, downgrade, e.sign(downgrade))
	require.NoError(t, err)
	assert.Equal(t, "100", record.CurrencyAmount)

	deposit, err = e.store.GetGroupDeposit(ctx, groupID.String(), testCurrency)
	require.NoError(t, err)
	assert.Equal(t, "100", deposit.Amount)
}

func TestCurrencyAmountBounds(t *testing.T) {
	e := setupLedger(t)
	ctx := context.Background()
	groupID := tid(0x01)
	// Price 1 makes the payment equal the token amount, so the bounds
	// can be probed one base unit at a time
	createActiveGroupWithBounds(t, e, groupID, defaultSettings(), 1, 100, 200)

	t.Run("below minimum rejected", func(t *testing.T) {
		req := participateReq(groupID, tid(0x11), "user-1", 99)
		_, err := e.ledger.Participate(ctx, testUserAddr, req, e.sign(req))
		assert.ErrorIs(t, err, domain.ErrCurrencyAmountOutOfRange)
		record, err := e.store.GetParticipation(ctx, tid(0x11).String())
		require.NoError(t, err)
		assert.Nil(t, record)
	})

	t.Run("at minimum admitted", func(t *testing.T) {
		req := participateReq(groupID, tid(0x12), "user-1", 100)
		e.custody.EXPECT().TransferIn(ctx, testCurrency, testUserAddr, big.NewInt(100)).Return(nil)
		record, err := e.ledger.Participate(ctx, testUserAddr, req, e.sign(req))
		require.NoError(t, err)
		assert.Equal(t, "100", record.CurrencyAmount)
	})

	t.Run("above maximum rejected", func(t *testing.T) {
		req := participateReq(groupID, tid(0x13), "user-2", 201)
		_, err := e.ledger.Participate(ctx, testUserAddr, req, e.sign(req))
		assert.ErrorIs(t, err, domain.ErrCurrencyAmountOutOfRange)
	})

	t.Run("at maximum admitted", func(t *testing.T) {
		req := participateReq(groupID, tid(0x14), "user-2", 200)
		e.custody.EXPECT().TransferIn(ctx, testCurrency, testUserAddr, big.NewInt(200)).Return(nil)
		record, err := e.ledger.Participate(ctx, testUserAddr, req, e.sign(req))
		require.NoError(t, err)
		assert.Equal(t, "200", record.CurrencyAmount)
	})

	t.Run("update above maximum rejected", func(t *testing.T) {
		update := &signing.UpdateParticipationRequest{
			ChainID:             string(testChain),
			LaunchID:            string(testLaunchID),
			GroupID:             string(groupID),
			PrevParticipationID: string(tid(0x12)),
			NewParticipationID:  string(tid(0x15)),
			UserID:              "user-1",
			UserAddress:         testUserAddr,
			TokenAmount:         "201",
			Currency:            testCurrency,
			RequestExpiresAt:    testNow.Add(10 * time.Minute).Unix(),
		}
		_, err := e.ledger.UpdateParticipation(ctx, testUserAddr, update, e.sign(update))
		assert.ErrorIs(t, err, domain.ErrCurrencyAmountOutOfRange)

		// The rejected update must leave the previous record live
		prev, err := e.store.GetParticipation(ctx, tid(0x12).String())
		require.NoError(t, err)
		require.NotNil(t, prev)
		assert.Equal(t, "100", prev.TokenAmount)
	})

	t.Run("update below minimum rejected", func(t *testing.T) {
		update := &signing.UpdateParticipationRequest{
			ChainID:             string(testChain),
			LaunchID:            string(testLaunchID),
			GroupID:             string(groupID),
			PrevParticipationID: string(tid(0x12)),
			NewParticipationID:  string(tid(0x16)),
			UserID:              "user-1",
			UserAddress:         testUserAddr,
			TokenAmount:         "99",
			Currency:            testCurrency,
			RequestExpiresAt:    testNow.Add(10 * time.Minute).Unix(),
		}
		_, err := e.ledger.UpdateParticipation(ctx, testUserAddr, update, e.sign(update))
		assert.ErrorIs(t, err, domain.ErrCurrencyAmountOutOfRange)
	})

	t.Run("update at maximum admitted", func(t *testing.T) {
		update := &signing.UpdateParticipationRequest{
			ChainID:             string(testChain),
			LaunchID:            string(testLaunchID),
			GroupID:             string(groupID),
			PrevParticipationID: string(tid(0x12)),
			NewParticipationID:  string(tid(0x17)),
			UserID:              "user-1",
			UserAddress:         testUserAddr,
			TokenAmount:         "200",
			Currency:            testCurrency,
			RequestExpiresAt:    testNow.Add(10 * time.Minute).Unix(),
		}
		e.custody.EXPECT().TransferIn(ctx, testCurrency, testUserAddr, big.NewInt(100)).Return(nil)
		record, err := e.ledger.UpdateParticipation(ctx, testUserAddr, update, e.sign(update))
		require.NoError(t, err)
		assert.Equal(t, "200", record.CurrencyAmount)
	})
}

func TestUpdateSameAmountIsNeutral(t *testing.T) {
	e := setupLedger(t)
	ctx := context.Background()
	groupID := tid(0x01)
	createActiveGroup(t, e, groupID, defaultSettings(), 2)

	req := participateReq(groupID, tid(0x11), "user-1", 100)
	e.custody.EXPECT().TransferIn(ctx, testCurrency, testUserAddr, big.NewInt(200)).Return(nil)
	_, err := e.ledger.Participate(ctx, testUserAddr, req, e.sign(req))
	require.NoError(t, err)

	// Same token amount: zero payment delta, so no custody transfer is
	// expected in either direction (the mock controller rejects any)
	update := &signing.UpdateParticipationRequest{
		ChainID:             string(testChain),
		LaunchID:            string(testLaunchID),
		GroupID:             string(groupID),
		PrevParticipationID: string(tid(0x11)),
		NewParticipationID:  string(tid(0x12)),
		UserID:              "user-1",
		UserAddress:         testUserAddr,
		TokenAmount:         "100",
		Currency:            testCurrency,
		RequestExpiresAt:    testNow.Add(10 * time.Minute).Unix(),
	}
	record, err := e.ledger.UpdateParticipation(ctx, testUserAddr, update, e.sign(update))
	require.NoError(t, err)
	assert.Equal(t, "100", record.TokenAmount)
	assert.Equal(t, "200", record.CurrencyAmount)

	// Aggregates are exactly where they started
	deposit, err := e.store.GetGroupDeposit(ctx, groupID.String(), testCurrency)
	require.NoError(t, err)
	require.NotNil(t, deposit)
	assert.Equal(t, "200", deposit.Amount)
	alloc, err := e.store.GetUserAllocation(ctx, groupID.String(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, alloc)
	assert.Equal(t, int64(1), alloc.ParticipationCount)
	assert.Equal(t, "100", alloc.TokenAmount)

	// Only the record identity moved
	prev, err := e.store.GetParticipation(ctx, tid(0x11).String())
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, "0", prev.TokenAmount)
	assert.Equal(t, "0", prev.CurrencyAmount)
}

func TestUpdateSupersededRecordRejected(t *testing.T) {
	e := setupLedger(t)
	ctx := context.Background()
	groupID := tid(0x01)
	createActiveGroup(t, e, groupID, defaultSettings(), 2)

	req := participateReq(groupID, tid(0x11), "user-1", 100)
	e.custody.EXPECT().TransferIn(ctx, testCurrency, testUserAddr, big.NewInt(200)).Return(nil)
	_, err := e.ledger.Participate(ctx, testUserAddr, req, e.sign(req))
	require.NoError(t, err)

	update := &signing.UpdateParticipationRequest{
		ChainID:             string(testChain),
		LaunchID:            string(testLaunchID),
		GroupID:             string(groupID),
		PrevParticipationID: string(tid(0x11)),
		NewParticipationID:  string(tid(0x12)),
		UserID:              "user-1",
		UserAddress:         testUserAddr,
		TokenAmount:         "100",
		Currency:            testCurrency,
		RequestExpiresAt:    testNow.Add(10 * time.Minute).Unix(),
	}
	e.custody.EXPECT().TransferIn(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	e.custody.EXPECT().TransferOut(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	_, err = e.ledger.UpdateParticipation(ctx, testUserAddr, update, e.sign(update))
	require.NoError(t, err)

	// Updating the zeroed predecessor again must fail
	update.NewParticipationID = string(tid(0x13))
	_, err = e.ledger.UpdateParticipation(ctx, testUserAddr, update, e.sign(update))
	assert.ErrorIs(t, err, domain.ErrUpdateNotAllowed)
}

func TestCancelParticipation(t *testing.T) {
	e := setupLedger(t)
	ctx := context.Background()
	groupID := tid(0x01)
	createActiveGroup(t, e, groupID, defaultSettings(), 2)

	req := participateReq(groupID, tid(0x11), "user-1", 100)
	e.custody.EXPECT().TransferIn(ctx, testCurrency, testUserAddr, big.NewInt(200)).Return(nil)
	_, err := e.ledger.Participate(ctx, testUserAddr, req, e.sign(req))
	require.NoError(t, err)

	cancel := &signing.CancelParticipationRequest{
		ChainID:          string(testChain),
		LaunchID:         string(testLaunchID),
		GroupID:          string(groupID),
		ParticipationID:  string(tid(0x11)),
		UserID:           "user-1",
		UserAddress:      testUserAddr,
		RequestExpiresAt: testNow.Add(10 * time.Minute).Unix(),
	}
	e.custody.EXPECT().TransferOut(ctx, testCurrency, testUserAddr, big.NewInt(200)).Return(nil)
	require.NoError(t, e.ledger.CancelParticipation(ctx, testUserAddr, cancel, e.sign(cancel)))

	record, err := e.store.GetParticipation(ctx, tid(0x11).String())
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "0", record.TokenAmount)
	assert.Equal(t, "0", record.CurrencyAmount)

	// The allocation row is gone once fully released
	alloc, err := e.store.GetUserAllocation(ctx, groupID.String(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, alloc)
	deposit, err := e.store.GetGroupDeposit(ctx, groupID.String(), testCurrency)
	require.NoError(t, err)
	assert.Equal(t, "0", deposit.Amount)

	// Cancelling an already zeroed record must fail
	err = e.ledger.CancelParticipation(ctx, testUserAddr, cancel, e.sign(cancel))
	assert.ErrorIs(t, err, domain.ErrRefundInvalid)
}

func TestCancelWrongUserRejected(t *testing.T) {
	e := setupLedger(t)
	ctx := context.Background()
	groupID := tid(0x01)
	createActiveGroup(t, e, groupID, defaultSettings(), 2)

	req := participateReq(groupID, tid(0x11), "user-1", 100)
	e.custody.EXPECT().TransferIn(ctx, testCurrency, testUserAddr, big.NewInt(200)).Return(nil)
	_, err := e.ledger.Participate(ctx, testUserAddr, req, e.sign(req))
	require.NoError(t, err)

	cancel := &signing.CancelParticipationRequest{
		ChainID:          string(testChain),
		LaunchID:         string(testLaunchID),
		GroupID:          string(groupID),
		ParticipationID:  string(tid(0x11)),
		UserID:           "user-2",
		UserAddress:      testUserAddr,
		RequestExpiresAt: testNow.Add(10 * time.Minute).Unix(),
	}
	err = e.ledger.CancelParticipation(ctx, testUserAddr, cancel, e.sign(cancel))
	assert.ErrorIs(t, err, domain.ErrUserMismatch)
}

func TestFinalizeAtParticipation(t *testing.T) {
	e := setupLedger(t)
	ctx := context.Background()
	groupID := tid(0x01)
	settings := defaultSettings()
	settings.FinalizesAtParticipation = true
	createActiveGroup(t, e, groupID, settings, 2)

	req := participateReq(groupID, tid(0x11), "user-1", 100)
	e.custody.EXPECT().TransferIn(ctx, testCurrency, testUserAddr, big.NewInt(200)).Return(nil)
	record, err := e.ledger.Participate(ctx, testUserAddr, req, e.sign(req))
	require.NoError(t, err)
	assert.True(t, record.Finalized)

	// Revenue is immediately withdrawable; no refundable deposit exists
	balance, err := e.store.GetWithdrawableBalance(ctx, testCurrency)
	require.NoError(t, err)
	require.NotNil(t, balance)
	assert.Equal(t, "200", balance.Amount)
	deposit, err := e.store.GetGroupDeposit(ctx, groupID.String(), testCurrency)
	require.NoError(t, err)
	assert.Nil(t, deposit)

	group, err := e.store.GetLaunchGroup(ctx, groupID.String())
	require.NoError(t, err)
	assert.Equal(t, "100", group.TokensSold)

	// The allocation cap binds at participate time: 100 sold, 500 cap,
	// 450 more would overshoot
	over := participateReq(groupID, tid(0x12), "user-1", 450)
	_, err = e.ledger.Participate(ctx, testUserAddr, over, e.sign(over))
	assert.ErrorIs(t, err, domain.ErrAllocationExceeded)

	// No mutation path exists for finalized records
	update := &signing.UpdateParticipationRequest{
		ChainID:             string(testChain),
		LaunchID:            string(testLaunchID),
		GroupID:             string(groupID),
		PrevParticipationID: string(tid(0x11)),
		NewParticipationID:  string(tid(0x13)),
		UserID:              "user-1",
		UserAddress:         testUserAddr,
		TokenAmount:         "50",
		Currency:            testCurrency,
		RequestExpiresAt:    testNow.Add(10 * time.Minute).Unix(),
	}
	_, err = e.ledger.UpdateParticipation(ctx, testUserAddr, update, e.sign(update))
	assert.ErrorIs(t, err, domain.ErrUpdateNotAllowed)

	cancel := &signing.CancelParticipationRequest{
		ChainID:          string(testChain),
		LaunchID:         string(testLaunchID),
		GroupID:          string(groupID),
		ParticipationID:  string(tid(0x11)),
		UserID:           "user-1",
		UserAddress:      testUserAddr,
		RequestExpiresAt: testNow.Add(10 * time.Minute).Unix(),
	}
	err = e.ledger.CancelParticipation(ctx, testUserAddr, cancel, e.sign(cancel))
	assert.ErrorIs(t, err, domain.ErrUpdateNotAllowed)
}

func TestFinalizeCancelledRecordRejected(t *testing.T) {
	e := setupLedger(t)
	ctx := context.Background()
	groupID := tid(0x01)
	createActiveGroup(t, e, groupID, defaultSettings(), 2)

	req1 := participateReq(groupID, tid(0x11), "user-1", 100)
	e.custody.EXPECT().TransferIn(ctx, testCurrency, testUserAddr, big.NewInt(200)).Return(nil)
	_, err := e.ledger.Participate(ctx, testUserAddr, req1, e.sign(req1))
	require.NoError(t, err)
	req2 := participateReq(groupID, tid(0x12), "user-2", 50)
	e.custody.EXPECT().TransferIn(ctx, testCurrency, testUserAddr, big.NewInt(100)).Return(nil)
	_, err = e.ledger.Participate(ctx, testUserAddr, req2, e.sign(req2))
	require.NoError(t, err)

	cancel := &signing.CancelParticipationRequest{
		ChainID:          string(testChain),
		LaunchID:         string(testLaunchID),
		GroupID:          string(groupID),
		ParticipationID:  string(tid(0x11)),
		UserID:           "user-1",
		UserAddress:      testUserAddr,
		RequestExpiresAt: testNow.Add(10 * time.Minute).Unix(),
	}
	e.custody.EXPECT().TransferOut(ctx, testCurrency, testUserAddr, big.NewInt(200)).Return(nil)
	require.NoError(t, e.ledger.CancelParticipation(ctx, testUserAddr, cancel, e.sign(cancel)))

	// A cancelled record has no deposit left to settle; the whole batch
	// fails and the live candidate stays unfinalized
	err = e.ledger.FinalizeWinners(ctx, testOperator, groupID, []domain.ID32{tid(0x11), tid(0x12)})
	assert.ErrorIs(t, err, domain.ErrRefundInvalid)
	live, err := e.store.GetParticipation(ctx, tid(0x12).String())
	require.NoError(t, err)
	require.NotNil(t, live)
	assert.False(t, live.Finalized)

	// The live record alone finalizes fine
	require.NoError(t, e.ledger.FinalizeWinners(ctx, testOperator, groupID, []domain.ID32{tid(0x12)}))
}

func TestFinalizeWinners(t *testing.T) {
	e := setupLedger(t)
	ctx := context.Background()
	groupID := tid(0x01)
	createActiveGroup(t, e, groupID, defaultSettings(), 2)

	e.custody.EXPECT().TransferIn(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	req1 := participateReq(groupID, tid(0x11), "user-1", 200)
	_, err := e.ledger.Participate(ctx, testUserAddr, req1, e.sign(req1))
	require.NoError(t, err)
	req2 := participateReq(groupID, tid(0x12), "user-2", 300)
	req2.UserAddress = testUser2Addr
	_, err = e.ledger.Participate(ctx, testUser2Addr, req2, e.sign(req2))
	require.NoError(t, err)

	t.Run("requires operator capability", func(t *testing.T) {
		err := e.ledger.FinalizeWinners(ctx, testUserAddr, groupID, []domain.ID32{tid(0x11)})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("settles deposits into revenue", func(t *testing.T) {
		require.NoError(t, e.ledger.FinalizeWinners(ctx, testOperator, groupID, []domain.ID32{tid(0x11), tid(0x12)}))

		group, err := e.store.GetLaunchGroup(ctx, groupID.String())
		require.NoError(t, err)
		assert.Equal(t, "500", group.TokensSold)

		// Both deposits became withdrawable revenue
		deposit, err := e.store.GetGroupDeposit(ctx, groupID.String(), testCurrency)
		require.NoError(t, err)
		assert.Equal(t, "0", deposit.Amount)
		balance, err := e.store.GetWithdrawableBalance(ctx, testCurrency)
		require.NoError(t, err)
		assert.Equal(t, "1000", balance.Amount)

		// Finalization keeps the recorded amounts
		record, err := e.store.GetParticipation(ctx, tid(0x11).String())
		require.NoError(t, err)
		assert.True(t, record.Finalized)
		assert.Equal(t, "200", record.TokenAmount)
	})

	t.Run("already finalized rejected", func(t *testing.T) {
		err := e.ledger.FinalizeWinners(ctx, testOperator, groupID, []domain.ID32{tid(0x11)})
		assert.ErrorIs(t, err, domain.ErrAlreadyFinalized)
	})
}

func TestFinalizeWinnersBatchIsAtomic(t *testing.T) {
	e := setupLedger(t)
	ctx := context.Background()
	groupID := tid(0x01)
	createActiveGroup(t, e, groupID, defaultSettings(), 2)

	e.custody.EXPECT().TransferIn(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	req1 := participateReq(groupID, tid(0x11), "user-1", 300)
	_, err := e.ledger.Participate(ctx, testUserAddr, req1, e.sign(req1))
	require.NoError(t, err)
	req2 := participateReq(groupID, tid(0x12), "user-2", 300)
	req2.UserAddress = testUser2Addr
	_, err = e.ledger.Participate(ctx, testUser2Addr, req2, e.sign(req2))
	require.NoError(t, err)

	// 300 + 300 = 600 would overshoot the 500 cap; the whole batch fails
	err = e.ledger.FinalizeWinners(ctx, testOperator, groupID, []domain.ID32{tid(0x11), tid(0x12)})
	assert.ErrorIs(t, err, domain.ErrAllocationExceeded)

	// Neither record changed, including the first that fit individually
	record, err := e.store.GetParticipation(ctx, tid(0x11).String())
	require.NoError(t, err)
	assert.False(t, record.Finalized)
	group, err := e.store.GetLaunchGroup(ctx, groupID.String())
	require.NoError(t, err)
	assert.Equal(t, "0", group.TokensSold)
	balance, err := e.store.GetWithdrawableBalance(ctx, testCurrency)
	require.NoError(t, err)
	assert.Nil(t, balance)
}

func TestClaimRefund(t *testing.T) {
	e := setupLedger(t)
	ctx := context.Background()
	groupID := tid(0x01)
	createActiveGroup(t, e, groupID, defaultSettings(), 2)

	e.custody.EXPECT().TransferIn(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	req := participateReq(groupID, tid(0x11), "user-1", 100)
	_, err := e.ledger.Participate(ctx, testUserAddr, req, e.sign(req))
	require.NoError(t, err)

	claim := &signing.ClaimRefundRequest{
		ChainID:          string(testChain),
		LaunchID:         string(testLaunchID),
		GroupID:          string(groupID),
		ParticipationID:  string(tid(0x11)),
		UserID:           "user-1",
		UserAddress:      testUserAddr,
		RequestExpiresAt: testNow.Add(10 * time.Minute).Unix(),
	}

	// Refunds only open once the group completes
	err = e.ledger.ClaimRefund(ctx, testUserAddr, claim, e.sign(claim))
	assert.ErrorIs(t, err, domain.ErrInvalidGroupStatus)

	_, err = e.ledger.SetGroupStatus(ctx, testManager, groupID, domain.GroupStatusCompleted)
	require.NoError(t, err)

	e.custody.EXPECT().TransferOut(ctx, testCurrency, testUserAddr, big.NewInt(200)).Return(nil)
	require.NoError(t, e.ledger.ClaimRefund(ctx, testUserAddr, claim, e.sign(claim)))

	deposit, err := e.store.GetGroupDeposit(ctx, groupID.String(), testCurrency)
	require.NoError(t, err)
	assert.Equal(t, "0", deposit.Amount)

	// A second claim hits the zeroed record
	err = e.ledger.ClaimRefund(ctx, testUserAddr, claim, e.sign(claim))
	assert.ErrorIs(t, err, domain.ErrRefundInvalid)
}

func TestBatchRefund(t *testing.T) {
	e := setupLedger(t)
	ctx := context.Background()
	groupID := tid(0x01)
	createActiveGroup(t, e, groupID, defaultSettings(), 2)

	e.custody.EXPECT().TransferIn(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	req1 := participateReq(groupID, tid(0x11), "user-1", 100)
	_, err := e.ledger.Participate(ctx, testUserAddr, req1, e.sign(req1))
	require.NoError(t, err)
	req2 := participateReq(groupID, tid(0x12), "user-2", 50)
	req2.UserAddress = testUser2Addr
	_, err = e.ledger.Participate(ctx, testUser2Addr, req2, e.sign(req2))
	require.NoError(t, err)

	_, err = e.ledger.SetGroupStatus(ctx, testManager, groupID, domain.GroupStatusCompleted)
	require.NoError(t, err)

	e.custody.EXPECT().TransferOut(ctx, testCurrency, testUserAddr, big.NewInt(200)).Return(nil)
	e.custody.EXPECT().TransferOut(ctx, testCurrency, testUser2Addr, big.NewInt(100)).Return(nil)
	require.NoError(t, e.ledger.BatchRefund(ctx, testOperator, groupID, []domain.ID32{tid(0x11), tid(0x12)}))

	deposit, err := e.store.GetGroupDeposit(ctx, groupID.String(), testCurrency)
	require.NoError(t, err)
	assert.Equal(t, "0", deposit.Amount)

	// Re-running the same batch fails on the zeroed records
	err = e.ledger.BatchRefund(ctx, testOperator, groupID, []domain.ID32{tid(0x11)})
	assert.ErrorIs(t, err, domain.ErrRefundInvalid)
}

func TestWithdraw(t *testing.T) {
	e := setupLedger(t)
	ctx := context.Background()
	groupID := tid(0x01)
	createActiveGroup(t, e, groupID, defaultSettings(), 2)

	e.custody.EXPECT().TransferIn(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	req := participateReq(groupID, tid(0x11), "user-1", 100)
	_, err := e.ledger.Participate(ctx, testUserAddr, req, e.sign(req))
	require.NoError(t, err)
	require.NoError(t, e.ledger.FinalizeWinners(ctx, testOperator, groupID, []domain.ID32{tid(0x11)}))

	t.Run("requires withdrawal capability", func(t *testing.T) {
		err := e.ledger.Withdraw(ctx, testOperator, testCurrency, big.NewInt(100))
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("blocked while a group is open", func(t *testing.T) {
		err := e.ledger.Withdraw(ctx, testTreasurer, testCurrency, big.NewInt(100))
		assert.ErrorIs(t, err, domain.ErrInvalidGroupStatus)
	})

	_, err = e.ledger.SetGroupStatus(ctx, testManager, groupID, domain.GroupStatusCompleted)
	require.NoError(t, err)

	t.Run("pays out to the configured treasury", func(t *testing.T) {
		e.custody.EXPECT().TransferOut(ctx, testCurrency, testVault, big.NewInt(150)).Return(nil)
		require.NoError(t, e.ledger.Withdraw(ctx, testTreasurer, testCurrency, big.NewInt(150)))

		balance, err := e.store.GetWithdrawableBalance(ctx, testCurrency)
		require.NoError(t, err)
		assert.Equal(t, "50", balance.Amount)
	})

	t.Run("overdraw rejected", func(t *testing.T) {
		err := e.ledger.Withdraw(ctx, testTreasurer, testCurrency, big.NewInt(51))
		assert.ErrorIs(t, err, domain.ErrInsufficientWithdrawable)
	})
}

func TestPauseBlocksMutations(t *testing.T) {
	e := setupLedger(t)
	ctx := context.Background()
	groupID := tid(0x01)
	createActiveGroup(t, e, groupID, defaultSettings(), 2)

	require.NoError(t, e.ledger.Pause(ctx, testAdmin, true))

	req := participateReq(groupID, tid(0x11), "user-1", 100)
	_, err := e.ledger.Participate(ctx, testUserAddr, req, e.sign(req))
	assert.ErrorIs(t, err, domain.ErrPaused)

	// Unpause goes through even while paused
	require.NoError(t, e.ledger.Pause(ctx, testAdmin, false))
	e.custody.EXPECT().TransferIn(ctx, testCurrency, testUserAddr, big.NewInt(200)).Return(nil)
	_, err = e.ledger.Participate(ctx, testUserAddr, req, e.sign(req))
	require.NoError(t, err)
}

func TestPauseRequiresAdmin(t *testing.T) {
	e := setupLedger(t)
	err := e.ledger.Pause(context.Background(), testManager, true)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestReentrantCallRejected(t *testing.T) {
	e := setupLedger(t)
	ctx := context.Background()
	groupID := tid(0x01)
	createActiveGroup(t, e, groupID, defaultSettings(), 2)

	req := participateReq(groupID, tid(0x11), "user-1", 100)
	e.custody.EXPECT().
		TransferIn(ctx, testCurrency, testUserAddr, big.NewInt(200)).
		DoAndReturn(func(ctx context.Context, currency, from string, amount *big.Int) error {
			// A custody implementation calling back into the ledger must
			// bounce off the reentrancy guard, not deadlock
			err := e.ledger.FinalizeWinners(ctx, testOperator, groupID, []domain.ID32{tid(0x11)})
			assert.ErrorIs(t, err, domain.ErrReentrantCall)
			return nil
		})
	_, err := e.ledger.Participate(ctx, testUserAddr, req, e.sign(req))
	require.NoError(t, err)
}

func TestCapabilityAdministration(t *testing.T) {
	e := setupLedger(t)
	ctx := context.Background()
	newOperator := domain.NormalizeAddress("0x4000000000000000000000000000000000000009")

	err := e.ledger.GrantCapability(ctx, testManager, newOperator, domain.RoleOperator)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, e.ledger.GrantCapability(ctx, testAdmin, newOperator, domain.RoleOperator))
	ok, err := e.store.HasCapability(ctx, newOperator, string(domain.RoleOperator))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, e.ledger.RevokeCapability(ctx, testAdmin, newOperator, domain.RoleOperator))
	ok, err = e.store.HasCapability(ctx, newOperator, string(domain.RoleOperator))
	require.NoError(t, err)
	assert.False(t, ok)
}
