package signing_test

import (
	"context"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/launch-ledger/internal/domain"
	"github.com/feral-file/launch-ledger/internal/mocks"
	"github.com/feral-file/launch-ledger/internal/signing"
)

func testRequest() *signing.ParticipationRequest {
	return &signing.ParticipationRequest{
		ChainID:          "eip155:11155111",
		LaunchID:         "0x" + strings.Repeat("aa", 32),
		GroupID:          "0x1111111111111111111111111111111111111111111111111111111111111111",
		ParticipationID:  "0x2222222222222222222222222222222222222222222222222222222222222222",
		UserID:           "user-1",
		UserAddress:      "0x1000000000000000000000000000000000000001",
		TokenAmount:      "100",
		Currency:         "0x00000000000000000000000000000000000000aa",
		RequestExpiresAt: 1773576000,
	}
}

func TestDigestDeterministic(t *testing.T) {
	req := testRequest()
	d1, err := signing.Digest(req)
	require.NoError(t, err)
	d2, err := signing.Digest(req)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	assert.Len(t, d1, 32)

	// Any field change changes the digest
	req.TokenAmount = "101"
	d3, err := signing.Digest(req)
	require.NoError(t, err)
	assert.NotEqual(t, d1, d3)
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	ctrl := gomock.NewController(t)
	gate := mocks.NewMockCapabilityGate(ctrl)
	verifier := signing.NewVerifier(gate)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signerAddr := crypto.PubkeyToAddress(key.PublicKey).String()

	req := testRequest()
	sig, err := signing.Sign(req, key)
	require.NoError(t, err)

	gate.EXPECT().HasRole(gomock.Any(), signerAddr, domain.RoleSigner).Return(true, nil)
	recovered, err := verifier.Verify(context.Background(), req, sig)
	require.NoError(t, err)
	assert.Equal(t, signerAddr, recovered)
}

func TestVerifyRejectsTamperedPayload(t *testing.T) {
	ctrl := gomock.NewController(t)
	gate := mocks.NewMockCapabilityGate(ctrl)
	verifier := signing.NewVerifier(gate)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signerAddr := crypto.PubkeyToAddress(key.PublicKey).String()

	req := testRequest()
	sig, err := signing.Sign(req, key)
	require.NoError(t, err)
	req.UserAddress = "0x1000000000000000000000000000000000000099"

	// Recovery over a different digest yields some other address, which
	// the gate reports as unauthorized
	gate.EXPECT().HasRole(gomock.Any(), gomock.Not(signerAddr), domain.RoleSigner).Return(false, nil)
	_, err = verifier.Verify(context.Background(), req, sig)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestVerifyRejectsUnauthorizedSigner(t *testing.T) {
	ctrl := gomock.NewController(t)
	gate := mocks.NewMockCapabilityGate(ctrl)
	verifier := signing.NewVerifier(gate)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signerAddr := crypto.PubkeyToAddress(key.PublicKey).String()

	req := testRequest()
	sig, err := signing.Sign(req, key)
	require.NoError(t, err)

	gate.EXPECT().HasRole(gomock.Any(), signerAddr, domain.RoleSigner).Return(false, nil)
	_, err = verifier.Verify(context.Background(), req, sig)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestVerifyRejectsMalformedSignature(t *testing.T) {
	ctrl := gomock.NewController(t)
	gate := mocks.NewMockCapabilityGate(ctrl)
	verifier := signing.NewVerifier(gate)

	req := testRequest()

	cases := []struct {
		name string
		sig  string
	}{
		{"not hex", "0xzz"},
		{"too short", "0x1234"},
		{"bad recovery id", "0x" + strings.Repeat("11", 64) + "05"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := verifier.Verify(context.Background(), req, tc.sig)
			assert.ErrorIs(t, err, domain.ErrInvalidSignature)
		})
	}
}
