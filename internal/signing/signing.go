package signing

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gowebpki/jcs"

	"github.com/feral-file/launch-ledger/internal/access"
	"github.com/feral-file/launch-ledger/internal/domain"
)

// ParticipationRequest is the signed payload admitting a new participation
type ParticipationRequest struct {
	ChainID          string `json:"chain_id"`
	LaunchID         string `json:"launch_id"`
	GroupID          string `json:"group_id"`
	ParticipationID  string `json:"participation_id"`
	UserID           string `json:"user_id"`
	UserAddress      string `json:"user_address"`
	TokenAmount      string `json:"token_amount"`
	Currency         string `json:"currency"`
	RequestExpiresAt int64  `json:"request_expires_at"`
}

// UpdateParticipationRequest supersedes a previous participation with a new
// record under a new identifier
type UpdateParticipationRequest struct {
	ChainID             string `json:"chain_id"`
	LaunchID            string `json:"launch_id"`
	GroupID             string `json:"group_id"`
	PrevParticipationID string `json:"prev_participation_id"`
	NewParticipationID  string `json:"new_participation_id"`
	UserID              string `json:"user_id"`
	UserAddress         string `json:"user_address"`
	TokenAmount         string `json:"token_amount"`
	Currency            string `json:"currency"`
	RequestExpiresAt    int64  `json:"request_expires_at"`
}

// CancelParticipationRequest cancels a live participation and refunds it
type CancelParticipationRequest struct {
	ChainID          string `json:"chain_id"`
	LaunchID         string `json:"launch_id"`
	GroupID          string `json:"group_id"`
	ParticipationID  string `json:"participation_id"`
	UserID           string `json:"user_id"`
	UserAddress      string `json:"user_address"`
	RequestExpiresAt int64  `json:"request_expires_at"`
}

// ClaimRefundRequest claims the refund of a non-finalized participation in
// a completed group
type ClaimRefundRequest struct {
	ChainID          string `json:"chain_id"`
	LaunchID         string `json:"launch_id"`
	GroupID          string `json:"group_id"`
	ParticipationID  string `json:"participation_id"`
	UserID           string `json:"user_id"`
	UserAddress      string `json:"user_address"`
	RequestExpiresAt int64  `json:"request_expires_at"`
}

// Digest computes the canonical message hash of a request payload: JCS
// (RFC 8785) canonical JSON, then the EIP-191 personal-message prefix over
// Keccak-256. Any change to any field changes the digest.
func Digest(payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize payload: %w", err)
	}
	return accounts.TextHash(canonical), nil
}

// Sign signs a request payload with a secp256k1 private key. Used by tests
// and tooling; the production signer is an external authority.
func Sign(payload interface{}, key *ecdsa.PrivateKey) (string, error) {
	digest, err := Digest(payload)
	if err != nil {
		return "", err
	}
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return "", fmt.Errorf("failed to sign digest: %w", err)
	}
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// Verifier recovers the signer of a request payload and checks it against
// the authorized-signer capability
type Verifier struct {
	gate access.CapabilityGate
}

// NewVerifier creates a Verifier backed by the given capability gate
func NewVerifier(gate access.CapabilityGate) *Verifier {
	return &Verifier{gate: gate}
}

// Verify recovers the signing address from signature over the canonical
// digest of payload and checks it holds the signer role. Returns the
// recovered address on success.
func (v *Verifier) Verify(ctx context.Context, payload interface{}, signature string) (string, error) {
	digest, err := Digest(payload)
	if err != nil {
		return "", err
	}

	sig, err := decodeSignature(signature)
	if err != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidSignature, err)
	}

	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return "", fmt.Errorf("%w: recovery failed", domain.ErrInvalidSignature)
	}
	signer := crypto.PubkeyToAddress(*pub).String()

	authorized, err := v.gate.HasRole(ctx, signer, domain.RoleSigner)
	if err != nil {
		return "", err
	}
	if !authorized {
		return "", fmt.Errorf("%w: recovered signer %s not authorized", domain.ErrInvalidSignature, signer)
	}
	return signer, nil
}

// decodeSignature parses a 65-byte hex signature, normalizing the recovery
// id from the Ethereum convention (27/28) to 0/1
func decodeSignature(signature string) ([]byte, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return nil, fmt.Errorf("malformed hex: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("expected %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	out := make([]byte, crypto.SignatureLength)
	copy(out, sig)
	if out[64] >= 27 {
		out[64] -= 27
	}
	if out[64] != 0 && out[64] != 1 {
		return nil, fmt.Errorf("invalid recovery id %d", sig[64])
	}
	return out, nil
}
