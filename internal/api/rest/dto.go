package rest

import (
	"encoding/json"
	"time"

	"github.com/feral-file/launch-ledger/internal/domain"
	"github.com/feral-file/launch-ledger/internal/signing"
	"github.com/feral-file/launch-ledger/internal/store/schema"
)

// GroupSettingsDTO is the wire form of launch group settings; amounts are
// decimal strings in base units
type GroupSettingsDTO struct {
	FinalizesAtParticipation bool      `json:"finalizes_at_participation"`
	AllocationPolicy         string    `json:"allocation_policy" binding:"required"`
	StartsAt                 time.Time `json:"starts_at" binding:"required"`
	EndsAt                   time.Time `json:"ends_at" binding:"required"`
	MaxParticipants          uint64    `json:"max_participants"`
	MaxParticipationsPerUser uint64    `json:"max_participations_per_user"`
	MinTokenAmountPerUser    string    `json:"min_token_amount_per_user"`
	MaxTokenAmountPerUser    string    `json:"max_token_amount_per_user"`
	MaxTokenAllocation       string    `json:"max_token_allocation" binding:"required"`
}

// ToSettings converts the DTO into domain settings
func (d *GroupSettingsDTO) ToSettings() (*domain.LaunchGroupSettings, error) {
	minPerUser, err := domain.ParseAmount(d.MinTokenAmountPerUser)
	if err != nil {
		return nil, err
	}
	maxPerUser, err := domain.ParseAmount(d.MaxTokenAmountPerUser)
	if err != nil {
		return nil, err
	}
	maxAllocation, err := domain.ParseAmount(d.MaxTokenAllocation)
	if err != nil {
		return nil, err
	}
	return &domain.LaunchGroupSettings{
		FinalizesAtParticipation: d.FinalizesAtParticipation,
		AllocationPolicy:         domain.AllocationPolicy(d.AllocationPolicy),
		StartsAt:                 d.StartsAt,
		EndsAt:                   d.EndsAt,
		MaxParticipants:          d.MaxParticipants,
		MaxParticipationsPerUser: d.MaxParticipationsPerUser,
		MinTokenAmountPerUser:    minPerUser,
		MaxTokenAmountPerUser:    maxPerUser,
		MaxTokenAllocation:       maxAllocation,
	}, nil
}

// CurrencyConfigDTO is the wire form of a per-group currency configuration
type CurrencyConfigDTO struct {
	TokenPriceBps string `json:"token_price_bps" binding:"required"`
	MinAmount     string `json:"min_amount"`
	MaxAmount     string `json:"max_amount" binding:"required"`
	IsEnabled     bool   `json:"is_enabled"`
}

// ToConfig converts the DTO into a domain currency config for the given
// currency address
func (d *CurrencyConfigDTO) ToConfig(currency string) (*domain.CurrencyConfig, error) {
	price, err := domain.ParseAmount(d.TokenPriceBps)
	if err != nil {
		return nil, err
	}
	minAmount, err := domain.ParseAmount(d.MinAmount)
	if err != nil {
		return nil, err
	}
	maxAmount, err := domain.ParseAmount(d.MaxAmount)
	if err != nil {
		return nil, err
	}
	return &domain.CurrencyConfig{
		Currency:      currency,
		TokenPriceBps: price,
		MinAmount:     minAmount,
		MaxAmount:     maxAmount,
		IsEnabled:     d.IsEnabled,
	}, nil
}

// SignedRequest wraps a signed user payload with its signature
type SignedRequest[T any] struct {
	Request   T      `json:"request" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// ParticipateBody is the POST /participations body
type ParticipateBody = SignedRequest[signing.ParticipationRequest]

// UpdateParticipationBody is the PUT /participations body
type UpdateParticipationBody = SignedRequest[signing.UpdateParticipationRequest]

// CancelParticipationBody is the POST /participations/cancel body
type CancelParticipationBody = SignedRequest[signing.CancelParticipationRequest]

// ClaimRefundBody is the POST /refunds/claim body
type ClaimRefundBody = SignedRequest[signing.ClaimRefundRequest]

// FinalizeBody is the POST /groups/:group_id/finalize body
type FinalizeBody struct {
	ParticipationIDs []string `json:"participation_ids" binding:"required"`
}

// BatchRefundBody is the POST /groups/:group_id/refunds/batch body
type BatchRefundBody struct {
	ParticipationIDs []string `json:"participation_ids" binding:"required"`
}

// WithdrawBody is the POST /treasury/withdraw body
type WithdrawBody struct {
	Currency string `json:"currency" binding:"required"`
	Amount   string `json:"amount" binding:"required"`
}

// CapabilityBody names an (identity, role) grant
type CapabilityBody struct {
	Identity string `json:"identity" binding:"required"`
	Role     string `json:"role" binding:"required"`
}

// PauseBody toggles the global pause flag
type PauseBody struct {
	Paused *bool `json:"paused" binding:"required"`
}

// LaunchGroupDTO is the wire form of a launch group
type LaunchGroupDTO struct {
	GroupID                  string    `json:"group_id"`
	FinalizesAtParticipation bool      `json:"finalizes_at_participation"`
	AllocationPolicy         string    `json:"allocation_policy"`
	StartsAt                 time.Time `json:"starts_at"`
	EndsAt                   time.Time `json:"ends_at"`
	MaxParticipants          int64     `json:"max_participants"`
	MaxParticipationsPerUser int64     `json:"max_participations_per_user"`
	MinTokenAmountPerUser    string    `json:"min_token_amount_per_user"`
	MaxTokenAmountPerUser    string    `json:"max_token_amount_per_user"`
	MaxTokenAllocation       string    `json:"max_token_allocation"`
	Status                   string    `json:"status"`
	TokensSold               string    `json:"tokens_sold"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// NewLaunchGroupDTO maps a stored group onto the wire form
func NewLaunchGroupDTO(g *schema.LaunchGroup) *LaunchGroupDTO {
	return &LaunchGroupDTO{
		GroupID:                  g.GroupID,
		FinalizesAtParticipation: g.FinalizesAtParticipation,
		AllocationPolicy:         g.AllocationPolicy,
		StartsAt:                 g.StartsAt,
		EndsAt:                   g.EndsAt,
		MaxParticipants:          g.MaxParticipants,
		MaxParticipationsPerUser: g.MaxParticipationsPerUser,
		MinTokenAmountPerUser:    g.MinTokenAmountPerUser,
		MaxTokenAmountPerUser:    g.MaxTokenAmountPerUser,
		MaxTokenAllocation:       g.MaxTokenAllocation,
		Status:                   g.Status,
		TokensSold:               g.TokensSold,
		CreatedAt:                g.CreatedAt,
		UpdatedAt:                g.UpdatedAt,
	}
}

// GroupCurrencyDTO is the wire form of a per-group currency configuration
type GroupCurrencyDTO struct {
	GroupID       string `json:"group_id"`
	Currency      string `json:"currency"`
	TokenPriceBps string `json:"token_price_bps"`
	MinAmount     string `json:"min_amount"`
	MaxAmount     string `json:"max_amount"`
	Enabled       bool   `json:"enabled"`
}

// NewGroupCurrencyDTO maps a stored currency config onto the wire form
func NewGroupCurrencyDTO(cc *schema.GroupCurrency) *GroupCurrencyDTO {
	return &GroupCurrencyDTO{
		GroupID:       cc.GroupID,
		Currency:      cc.Currency,
		TokenPriceBps: cc.TokenPriceBps,
		MinAmount:     cc.MinAmount,
		MaxAmount:     cc.MaxAmount,
		Enabled:       cc.Enabled,
	}
}

// ParticipationDTO is the wire form of a participation record
type ParticipationDTO struct {
	ParticipationID string    `json:"participation_id"`
	GroupID         string    `json:"group_id"`
	UserID          string    `json:"user_id"`
	UserAddress     string    `json:"user_address"`
	Currency        string    `json:"currency"`
	TokenAmount     string    `json:"token_amount"`
	CurrencyAmount  string    `json:"currency_amount"`
	Finalized       bool      `json:"finalized"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewParticipationDTO maps a stored participation onto the wire form
func NewParticipationDTO(p *schema.Participation) *ParticipationDTO {
	return &ParticipationDTO{
		ParticipationID: p.ParticipationID,
		GroupID:         p.GroupID,
		UserID:          p.UserID,
		UserAddress:     p.UserAddress,
		Currency:        p.Currency,
		TokenAmount:     p.TokenAmount,
		CurrencyAmount:  p.CurrencyAmount,
		Finalized:       p.Finalized,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

// UserAllocationDTO is the wire form of a per-user allocation aggregate
type UserAllocationDTO struct {
	GroupID            string `json:"group_id"`
	UserID             string `json:"user_id"`
	ParticipationCount int64  `json:"participation_count"`
	TokenAmount        string `json:"token_amount"`
}

// NewUserAllocationDTO maps a stored allocation onto the wire form. A nil
// allocation maps onto an explicit zero, not a 404: absence of a row means
// a zero allocation.
func NewUserAllocationDTO(groupID, userID string, a *schema.UserAllocation) *UserAllocationDTO {
	if a == nil {
		return &UserAllocationDTO{GroupID: groupID, UserID: userID, TokenAmount: "0"}
	}
	return &UserAllocationDTO{
		GroupID:            a.GroupID,
		UserID:             a.UserID,
		ParticipationCount: a.ParticipationCount,
		TokenAmount:        a.TokenAmount,
	}
}

// WithdrawableBalanceDTO is the wire form of a treasury balance
type WithdrawableBalanceDTO struct {
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
}

// NewWithdrawableBalanceDTO maps a stored balance onto the wire form; nil
// means no revenue has been finalized in that currency yet
func NewWithdrawableBalanceDTO(currency string, b *schema.WithdrawableBalance) *WithdrawableBalanceDTO {
	if b == nil {
		return &WithdrawableBalanceDTO{Currency: currency, Amount: "0"}
	}
	return &WithdrawableBalanceDTO{Currency: b.Currency, Amount: b.Amount}
}

// JournalEntryDTO is the wire form of an audit journal entry
type JournalEntryDTO struct {
	Cursor          int64           `json:"cursor"`
	EntryType       string          `json:"entry_type"`
	GroupID         string          `json:"group_id,omitempty"`
	ParticipationID string          `json:"participation_id,omitempty"`
	UserID          string          `json:"user_id,omitempty"`
	Currency        string          `json:"currency,omitempty"`
	Meta            json.RawMessage `json:"meta,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// NewJournalEntryDTO maps a stored journal entry onto the wire form
func NewJournalEntryDTO(e *schema.LedgerJournal) *JournalEntryDTO {
	return &JournalEntryDTO{
		Cursor:          e.Cursor,
		EntryType:       string(e.EntryType),
		GroupID:         e.GroupID,
		ParticipationID: e.ParticipationID,
		UserID:          e.UserID,
		Currency:        e.Currency,
		Meta:            json.RawMessage(e.Meta),
		CreatedAt:       e.CreatedAt,
	}
}
