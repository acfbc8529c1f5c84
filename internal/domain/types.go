package domain

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Chain represents the blockchain network identifier using CAIP-2 format
type Chain string

const (
	ChainEthereumMainnet Chain = "eip155:1"
	ChainEthereumSepolia Chain = "eip155:11155111"
	ChainBaseMainnet     Chain = "eip155:8453"
	ChainBaseSepolia     Chain = "eip155:84532"
)

// IsValidChain checks if a chain is valid
func IsValidChain(chain Chain) bool {
	return chain == ChainEthereumMainnet ||
		chain == ChainEthereumSepolia ||
		chain == ChainBaseMainnet ||
		chain == ChainBaseSepolia
}

// NumericChainID extracts the numeric chain id from the CAIP-2 identifier
func (c Chain) NumericChainID() (uint64, bool) {
	parts := strings.Split(string(c), ":")
	if len(parts) != 2 || parts[0] != "eip155" {
		return 0, false
	}
	id := new(big.Int)
	if _, ok := id.SetString(parts[1], 10); !ok {
		return 0, false
	}
	return id.Uint64(), true
}

// LaunchGroupStatus represents the lifecycle status of a launch group
type LaunchGroupStatus string

const (
	GroupStatusPending   LaunchGroupStatus = "pending"
	GroupStatusActive    LaunchGroupStatus = "active"
	GroupStatusPaused    LaunchGroupStatus = "paused"
	GroupStatusCompleted LaunchGroupStatus = "completed"
)

// IsValidGroupStatus checks if a status is one of the known lifecycle states
func IsValidGroupStatus(s LaunchGroupStatus) bool {
	return s == GroupStatusPending ||
		s == GroupStatusActive ||
		s == GroupStatusPaused ||
		s == GroupStatusCompleted
}

// CanTransitionGroupStatus checks a status transition against the group
// lifecycle machine: pending -> {active, paused, completed}, then free
// movement among the non-pending states. Nothing ever returns to pending.
func CanTransitionGroupStatus(from, to LaunchGroupStatus) bool {
	if !IsValidGroupStatus(to) || to == GroupStatusPending {
		return false
	}
	return IsValidGroupStatus(from)
}

// AllocationPolicy selects which per-user ceiling a launch group enforces
type AllocationPolicy string

const (
	// PolicyParticipationCount limits the number of participations per user
	// and the number of unique participants per group
	PolicyParticipationCount AllocationPolicy = "participation_count"
	// PolicyUserTokenAmount limits the cumulative token amount per user
	PolicyUserTokenAmount AllocationPolicy = "user_token_amount"
)

// IsValidAllocationPolicy checks if a policy identifier is known
func IsValidAllocationPolicy(p AllocationPolicy) bool {
	return p == PolicyParticipationCount || p == PolicyUserTokenAmount
}

// Role represents a capability role checked by the access gate
type Role string

const (
	// RoleManager may create launch groups and mutate group settings
	RoleManager Role = "manager"
	// RoleOperator may finalize winners and run batch refunds
	RoleOperator Role = "operator"
	// RoleSigner is the off-chain authority whose signature admits requests
	RoleSigner Role = "signer"
	// RoleWithdrawal may move finalized funds out of custody
	RoleWithdrawal Role = "withdrawal"
	// RoleAdmin may grant and revoke capabilities and toggle the pause flag
	RoleAdmin Role = "admin"
)

var id32Pattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// ID32 is an opaque fixed-size identifier (launch, group, participation),
// carried as 0x-prefixed hex of 32 bytes
type ID32 string

// Valid checks if the identifier is well formed
func (id ID32) Valid() bool {
	return id32Pattern.MatchString(string(id))
}

// String returns the string representation of the identifier
func (id ID32) String() string {
	return string(id)
}

// Normalize lowercases the hex body of the identifier
func (id ID32) Normalize() ID32 {
	return ID32(strings.ToLower(string(id)))
}

// NewID32 builds an identifier from a 32-byte hash
func NewID32(h common.Hash) ID32 {
	return ID32(strings.ToLower(h.Hex()))
}

// NormalizeAddress normalizes an address to EIP-55 checksum format
func NormalizeAddress(address string) string {
	return common.HexToAddress(address).String()
}

// IsValidAddress checks if a string is a well-formed hex address
func IsValidAddress(address string) bool {
	return common.IsHexAddress(address)
}

// LaunchGroupSettings carries the mutable configuration of a launch group.
// Which allocation fields apply depends on AllocationPolicy.
type LaunchGroupSettings struct {
	FinalizesAtParticipation bool              `json:"finalizes_at_participation"`
	AllocationPolicy         AllocationPolicy  `json:"allocation_policy"`
	StartsAt                 time.Time         `json:"starts_at"`
	EndsAt                   time.Time         `json:"ends_at"`
	MaxParticipants          uint64            `json:"max_participants"`
	MaxParticipationsPerUser uint64            `json:"max_participations_per_user"`
	MinTokenAmountPerUser    *big.Int          `json:"min_token_amount_per_user"`
	MaxTokenAmountPerUser    *big.Int          `json:"max_token_amount_per_user"`
	MaxTokenAllocation       *big.Int          `json:"max_token_allocation"`
	Status                   LaunchGroupStatus `json:"status"`
}

// Validate checks internal consistency of the settings
func (s *LaunchGroupSettings) Validate() error {
	if !IsValidGroupStatus(s.Status) {
		return fmt.Errorf("invalid group status %q", s.Status)
	}
	if !IsValidAllocationPolicy(s.AllocationPolicy) {
		return fmt.Errorf("invalid allocation policy %q", s.AllocationPolicy)
	}
	if !s.EndsAt.After(s.StartsAt) {
		return fmt.Errorf("participation window ends (%s) before it starts (%s)", s.EndsAt, s.StartsAt)
	}
	if s.MaxTokenAllocation == nil || s.MaxTokenAllocation.Sign() <= 0 {
		return fmt.Errorf("max token allocation must be positive")
	}
	switch s.AllocationPolicy {
	case PolicyParticipationCount:
		if s.MaxParticipants == 0 || s.MaxParticipationsPerUser == 0 {
			return fmt.Errorf("participation-count policy requires nonzero participant ceilings")
		}
	case PolicyUserTokenAmount:
		if s.MinTokenAmountPerUser == nil || s.MaxTokenAmountPerUser == nil {
			return fmt.Errorf("user-token-amount policy requires per-user token bounds")
		}
		if s.MinTokenAmountPerUser.Sign() < 0 || s.MaxTokenAmountPerUser.Cmp(s.MinTokenAmountPerUser) < 0 {
			return fmt.Errorf("per-user token bounds are inverted")
		}
	}
	return nil
}

// CurrencyConfig carries per-group pricing for one payment currency
type CurrencyConfig struct {
	Currency      string   `json:"currency"`
	TokenPriceBps *big.Int `json:"token_price_bps"`
	MinAmount     *big.Int `json:"min_amount"`
	MaxAmount     *big.Int `json:"max_amount"`
	IsEnabled     bool     `json:"is_enabled"`
}

// Validate checks the currency configuration
func (c *CurrencyConfig) Validate() error {
	if !IsValidAddress(c.Currency) {
		return fmt.Errorf("invalid currency address %q", c.Currency)
	}
	if c.TokenPriceBps == nil || c.TokenPriceBps.Sign() <= 0 {
		return fmt.Errorf("token price must be nonzero")
	}
	if c.MinAmount == nil || c.MaxAmount == nil || c.MinAmount.Sign() < 0 || c.MaxAmount.Cmp(c.MinAmount) < 0 {
		return fmt.Errorf("currency amount bounds are inverted")
	}
	return nil
}
