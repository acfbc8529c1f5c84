package sweeper_test

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
	"github.com/feral-file/launch-ledger/internal/sweeper"
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
	swNow      = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	swLaunchID = domain.ID32("0x" + strings.Repeat("fa", 32))
	swGroupID  = domain.ID32("0x" + strings.Repeat("11", 32))
	swChain    = domain.ChainEthereumSepolia
	swCurrency = domain.NormalizeAddress("0x00000000000000000000000000000000000000aa")
	swUserAddr = domain.NormalizeAddress("0x1000000000000000000000000000000000000001")
	swManager  = domain.NormalizeAddress("0x2000000000000000000000000000000000000001")
	swOperator = domain.NormalizeAddress("0x2000000000000000000000000000000000000002")
)

type sweeperEnv struct {
	store   *store.MemoryStore
	custody *mocks.MockCustody
	clock   *mocks.MockClock
	ledger  *ledger.Ledger
	sweeper sweeper.Sweeper
}

// setupSweeper provisions a completed group carrying two leftover
// participations (200 and 300 currency units), plus a sweeper wired to
// refund them under the operator capability
func setupSweeper(t *testing.T) *sweeperEnv {
	ctrl := gomock.NewController(t)
	ctx := context.Background()

	ms := store.NewMemoryStore()
	gate := access.NewStoreGate(ms)
	pauseGate := access.NewStorePauseGate(ms)

	signerKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	signerAddr := crypto.PubkeyToAddress(signerKey.PublicKey).String()
	require.NoError(t, gate.Grant(ctx, signerAddr, domain.RoleSigner))
	require.NoError(t, gate.Grant(ctx, swManager, domain.RoleManager))
	require.NoError(t, gate.Grant(ctx, swOperator, domain.RoleOperator))

	custodian := mocks.NewMockCustody(ctrl)
	publisher := mocks.NewMockPublisher(ctrl)
	publisher.EXPECT().PublishEvent(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	clock := mocks.NewMockClock(ctrl)
	clock.EXPECT().Now().Return(swNow).AnyTimes()

	l, err := ledger.New(ledger.Config{
		LaunchID:          swLaunchID,
		Chain:             swChain,
		TokenDecimals:     0,
		WithdrawalAddress: domain.NormalizeAddress("0x3000000000000000000000000000000000000001"),
	}, ms, custodian, gate, pauseGate, signing.NewVerifier(gate), publisher, clock)
	require.NoError(t, err)

	_, err = l.CreateLaunchGroup(ctx, swManager, swGroupID, &domain.LaunchGroupSettings{
		AllocationPolicy:         domain.PolicyParticipationCount,
		StartsAt:                 swNow.Add(-time.Hour),
		EndsAt:                   swNow.Add(time.Hour),
		MaxParticipants:          10,
		MaxParticipationsPerUser: 2,
		MaxTokenAllocation:       big.NewInt(500),
	})
	require.NoError(t, err)
	_, err = l.SetGroupCurrency(ctx, swManager, swGroupID, &domain.CurrencyConfig{
		Currency:      swCurrency,
		TokenPriceBps: big.NewInt(2),
		MinAmount:     big.NewInt(0),
		MaxAmount:     big.NewInt(1_000_000),
		IsEnabled:     true,
	})
	require.NoError(t, err)
	_, err = l.SetGroupStatus(ctx, swManager, swGroupID, domain.GroupStatusActive)
	require.NoError(t, err)

	participate := func(idByte byte, tokens int64) {
		req := &signing.ParticipationRequest{
			ChainID:          string(swChain),
			LaunchID:         string(swLaunchID),
			GroupID:          string(swGroupID),
			ParticipationID:  "0x" + strings.Repeat(fmt.Sprintf("%02x", idByte), 32),
			UserID:           "user-1",
			UserAddress:      swUserAddr,
			TokenAmount:      fmt.Sprintf("%d", tokens),
			Currency:         swCurrency,
			RequestExpiresAt: swNow.Add(10 * time.Minute).Unix(),
		}
		sig, err := signing.Sign(req, signerKey)
		require.NoError(t, err)
		custodian.EXPECT().
			TransferIn(gomock.Any(), swCurrency, swUserAddr, big.NewInt(tokens*2)).
			Return(nil)
		_, err = l.Participate(ctx, swUserAddr, req, sig)
		require.NoError(t, err)
	}
	participate(0x21, 100)
	participate(0x22, 150)

	_, err = l.SetGroupStatus(ctx, swManager, swGroupID, domain.GroupStatusCompleted)
	require.NoError(t, err)

	sw := sweeper.NewRefundSweeper(&sweeper.RefundSweeperConfig{
		BatchSize:       10,
		WorkerPoolSize:  2,
		OperatorAddress: swOperator,
	}, ms, l, clock)

	return &sweeperEnv{
		store:   ms,
		custody: custodian,
		clock:   clock,
		ledger:  l,
		sweeper: sw,
	}
}

func TestRefundSweeperRefundsLeftovers(t *testing.T) {
	e := setupSweeper(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The first cycle runs immediately; the sweeper then sleeps on a
	// channel that never fires until Stop is called
	e.clock.EXPECT().After(gomock.Any()).Return(make(chan time.Time)).AnyTimes()

	e.custody.EXPECT().
		TransferOut(gomock.Any(), swCurrency, swUserAddr, big.NewInt(200)).
		Return(nil)
	e.custody.EXPECT().
		TransferOut(gomock.Any(), swCurrency, swUserAddr, big.NewInt(300)).
		Return(nil)

	done := make(chan error, 1)
	go func() {
		done <- e.sweeper.Start(ctx)
	}()

	require.Eventually(t, func() bool {
		records, err := e.store.ListRefundableParticipations(ctx, string(swGroupID), 10)
		return err == nil && len(records) == 0
	}, 3*time.Second, 10*time.Millisecond, "leftover participations were not refunded")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	require.NoError(t, e.sweeper.Stop(stopCtx))
	require.NoError(t, <-done)

	// Deposits drained, records zeroed but preserved
	deposit, err := e.store.GetGroupDeposit(ctx, string(swGroupID), swCurrency)
	require.NoError(t, err)
	if deposit != nil {
		assert.Equal(t, "0", deposit.Amount)
	}
	all, err := e.store.ListGroupParticipations(ctx, string(swGroupID), "", 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	for _, p := range all {
		assert.Equal(t, "0", p.TokenAmount)
		assert.Equal(t, "0", p.CurrencyAmount)
	}
}

func TestRefundSweeperStartIsExclusive(t *testing.T) {
	e := setupSweeper(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e.clock.EXPECT().After(gomock.Any()).Return(make(chan time.Time)).AnyTimes()
	e.custody.EXPECT().TransferOut(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	done := make(chan error, 1)
	go func() {
		done <- e.sweeper.Start(ctx)
	}()

	// Wait for the first cycle to take effect, proving the loop is live
	require.Eventually(t, func() bool {
		records, err := e.store.ListRefundableParticipations(ctx, string(swGroupID), 10)
		return err == nil && len(records) == 0
	}, 3*time.Second, 10*time.Millisecond)

	assert.Error(t, e.sweeper.Start(ctx), "second Start is refused while running")

	cancel()
	require.NoError(t, <-done)
}
