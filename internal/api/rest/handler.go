package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/feral-file/launch-ledger/internal/api/middleware"
	"github.com/feral-file/launch-ledger/internal/domain"
	"github.com/feral-file/launch-ledger/internal/ledger"
)

// Handler defines the interface for REST API handlers
// This interface allows for easy mocking and testing
//
//go:generate mockgen -source=handler.go -destination=../../mocks/api_handler.go -package=mocks -mock_names=Handler=MockAPIHandler
type Handler interface {
	// ListGroups retrieves every launch group
	// GET /api/v1/groups
	ListGroups(c *gin.Context)

	// GetGroup retrieves one launch group
	// GET /api/v1/groups/:group_id
	GetGroup(c *gin.Context)

	// ListGroupCurrencies retrieves the currency configs of a group
	// GET /api/v1/groups/:group_id/currencies
	ListGroupCurrencies(c *gin.Context)

	// GetGroupCurrency retrieves one currency config
	// GET /api/v1/groups/:group_id/currencies/:currency
	GetGroupCurrency(c *gin.Context)

	// ListGroupParticipations retrieves participations of a group
	// GET /api/v1/groups/:group_id/participations?user_id=<id>&limit=<limit>&offset=<offset>
	// Unbounded-size listing; read surface only, never used inside mutations
	ListGroupParticipations(c *gin.Context)

	// GetParticipation retrieves one participation record
	// GET /api/v1/participations/:participation_id
	GetParticipation(c *gin.Context)

	// GetUserAllocation retrieves a per-group, per-user allocation aggregate
	// GET /api/v1/groups/:group_id/users/:user_id/allocation
	GetUserAllocation(c *gin.Context)

	// ListJournal retrieves the audit journal of a group
	// GET /api/v1/groups/:group_id/journal?limit=<limit>&offset=<offset>
	ListJournal(c *gin.Context)

	// GetWithdrawableBalance retrieves the treasury balance of one currency
	// GET /api/v1/treasury/withdrawable/:currency
	GetWithdrawableBalance(c *gin.Context)

	// ListWithdrawableBalances retrieves all treasury balances
	// GET /api/v1/treasury/withdrawable
	ListWithdrawableBalances(c *gin.Context)

	// Participate admits a new signed participation
	// POST /api/v1/participations
	Participate(c *gin.Context)

	// UpdateParticipation supersedes a participation with a new record
	// PUT /api/v1/participations
	UpdateParticipation(c *gin.Context)

	// CancelParticipation cancels and refunds a live participation
	// POST /api/v1/participations/cancel
	CancelParticipation(c *gin.Context)

	// ClaimRefund refunds a leftover participation in a completed group
	// POST /api/v1/refunds/claim
	ClaimRefund(c *gin.Context)

	// CreateGroup registers a new launch group (manager capability)
	// POST /api/v1/groups
	CreateGroup(c *gin.Context)

	// SetGroupSettings replaces group settings (manager capability)
	// PUT /api/v1/groups/:group_id/settings
	SetGroupSettings(c *gin.Context)

	// SetGroupStatus drives the group lifecycle (manager capability)
	// PUT /api/v1/groups/:group_id/status
	SetGroupStatus(c *gin.Context)

	// SetGroupCurrency configures a payment currency (manager capability)
	// PUT /api/v1/groups/:group_id/currencies/:currency
	SetGroupCurrency(c *gin.Context)

	// FinalizeWinners settles selected participations (operator capability)
	// POST /api/v1/groups/:group_id/finalize
	FinalizeWinners(c *gin.Context)

	// BatchRefund refunds many participations at once (operator capability)
	// POST /api/v1/groups/:group_id/refunds/batch
	BatchRefund(c *gin.Context)

	// Withdraw moves finalized revenue to the treasury (withdrawal capability)
	// POST /api/v1/treasury/withdraw
	Withdraw(c *gin.Context)

	// GrantCapability grants a role to an identity (admin capability)
	// POST /api/v1/capabilities
	GrantCapability(c *gin.Context)

	// RevokeCapability revokes a role from an identity (admin capability)
	// DELETE /api/v1/capabilities
	RevokeCapability(c *gin.Context)

	// SetPause toggles the global pause flag (admin capability)
	// PUT /api/v1/pause
	SetPause(c *gin.Context)

	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)
}

// handler implements the Handler interface
type handler struct {
	ledger *ledger.Ledger
}

// NewHandler creates a new REST API handler over a ledger instance
func NewHandler(l *ledger.Ledger) Handler {
	return &handler{ledger: l}
}

func (h *handler) ListGroups(c *gin.Context) {
	groups, err := h.ledger.Store().ListLaunchGroups(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "Failed to list launch groups")
		return
	}
	out := make([]*LaunchGroupDTO, 0, len(groups))
	for _, g := range groups {
		out = append(out, NewLaunchGroupDTO(g))
	}
	c.JSON(http.StatusOK, gin.H{"groups": out})
}

func (h *handler) GetGroup(c *gin.Context) {
	groupID := domain.ID32(c.Param("group_id")).Normalize()
	if !groupID.Valid() {
		respondBadRequest(c, "Invalid group id")
		return
	}
	group, err := h.ledger.Store().GetLaunchGroup(c.Request.Context(), groupID.String())
	if err != nil {
		respondInternalError(c, err, "Failed to get launch group")
		return
	}
	if group == nil {
		respondNotFound(c, "Launch group not found")
		return
	}
	c.JSON(http.StatusOK, NewLaunchGroupDTO(group))
}

func (h *handler) ListGroupCurrencies(c *gin.Context) {
	groupID := domain.ID32(c.Param("group_id")).Normalize()
	if !groupID.Valid() {
		respondBadRequest(c, "Invalid group id")
		return
	}
	ccs, err := h.ledger.Store().ListGroupCurrencies(c.Request.Context(), groupID.String())
	if err != nil {
		respondInternalError(c, err, "Failed to list group currencies")
		return
	}
	out := make([]*GroupCurrencyDTO, 0, len(ccs))
	for _, cc := range ccs {
		out = append(out, NewGroupCurrencyDTO(cc))
	}
	c.JSON(http.StatusOK, gin.H{"currencies": out})
}

func (h *handler) GetGroupCurrency(c *gin.Context) {
	groupID := domain.ID32(c.Param("group_id")).Normalize()
	currency := c.Param("currency")
	if !groupID.Valid() || !domain.IsValidAddress(currency) {
		respondBadRequest(c, "Invalid group id or currency address")
		return
	}
	cc, err := h.ledger.Store().GetGroupCurrency(c.Request.Context(), groupID.String(), domain.NormalizeAddress(currency))
	if err != nil {
		respondInternalError(c, err, "Failed to get group currency")
		return
	}
	if cc == nil {
		respondNotFound(c, "Currency not configured for group")
		return
	}
	c.JSON(http.StatusOK, NewGroupCurrencyDTO(cc))
}

func (h *handler) ListGroupParticipations(c *gin.Context) {
	groupID := domain.ID32(c.Param("group_id")).Normalize()
	if !groupID.Valid() {
		respondBadRequest(c, "Invalid group id")
		return
	}
	limit, offset, ok := paginationParams(c)
	if !ok {
		return
	}
	ps, err := h.ledger.Store().ListGroupParticipations(c.Request.Context(), groupID.String(), c.Query("user_id"), limit, offset)
	if err != nil {
		respondInternalError(c, err, "Failed to list participations")
		return
	}
	out := make([]*ParticipationDTO, 0, len(ps))
	for _, p := range ps {
		out = append(out, NewParticipationDTO(p))
	}
	c.JSON(http.StatusOK, gin.H{"participations": out})
}

func (h *handler) GetParticipation(c *gin.Context) {
	participationID := domain.ID32(c.Param("participation_id")).Normalize()
	if !participationID.Valid() {
		respondBadRequest(c, "Invalid participation id")
		return
	}
	p, err := h.ledger.Store().GetParticipation(c.Request.Context(), participationID.String())
	if err != nil {
		respondInternalError(c, err, "Failed to get participation")
		return
	}
	if p == nil {
		respondNotFound(c, "Participation not found")
		return
	}
	c.JSON(http.StatusOK, NewParticipationDTO(p))
}

func (h *handler) GetUserAllocation(c *gin.Context) {
	groupID := domain.ID32(c.Param("group_id")).Normalize()
	userID := c.Param("user_id")
	if !groupID.Valid() || userID == "" {
		respondBadRequest(c, "Invalid group id or user id")
		return
	}
	a, err := h.ledger.Store().GetUserAllocation(c.Request.Context(), groupID.String(), userID)
	if err != nil {
		respondInternalError(c, err, "Failed to get user allocation")
		return
	}
	c.JSON(http.StatusOK, NewUserAllocationDTO(groupID.String(), userID, a))
}

func (h *handler) ListJournal(c *gin.Context) {
	groupID := domain.ID32(c.Param("group_id")).Normalize()
	if !groupID.Valid() {
		respondBadRequest(c, "Invalid group id")
		return
	}
	limit, offset, ok := paginationParams(c)
	if !ok {
		return
	}
	entries, err := h.ledger.Store().ListJournal(c.Request.Context(), groupID.String(), limit, offset)
	if err != nil {
		respondInternalError(c, err, "Failed to list journal entries")
		return
	}
	out := make([]*JournalEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, NewJournalEntryDTO(e))
	}
	c.JSON(http.StatusOK, gin.H{"entries": out})
}

func (h *handler) GetWithdrawableBalance(c *gin.Context) {
	currency := c.Param("currency")
	if !domain.IsValidAddress(currency) {
		respondBadRequest(c, "Invalid currency address")
		return
	}
	currency = domain.NormalizeAddress(currency)
	b, err := h.ledger.Store().GetWithdrawableBalance(c.Request.Context(), currency)
	if err != nil {
		respondInternalError(c, err, "Failed to get withdrawable balance")
		return
	}
	c.JSON(http.StatusOK, NewWithdrawableBalanceDTO(currency, b))
}

func (h *handler) ListWithdrawableBalances(c *gin.Context) {
	bs, err := h.ledger.Store().ListWithdrawableBalances(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "Failed to list withdrawable balances")
		return
	}
	out := make([]*WithdrawableBalanceDTO, 0, len(bs))
	for _, b := range bs {
		out = append(out, NewWithdrawableBalanceDTO(b.Currency, b))
	}
	c.JSON(http.StatusOK, gin.H{"balances": out})
}

func (h *handler) Participate(c *gin.Context) {
	var body ParticipateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}
	record, err := h.ledger.Participate(c.Request.Context(), middleware.CallerAddress(c), &body.Request, body.Signature)
	if err != nil {
		respondLedgerError(c, err)
		return
	}
	c.JSON(http.StatusCreated, NewParticipationDTO(record))
}

func (h *handler) UpdateParticipation(c *gin.Context) {
	var body UpdateParticipationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}
	record, err := h.ledger.UpdateParticipation(c.Request.Context(), middleware.CallerAddress(c), &body.Request, body.Signature)
	if err != nil {
		respondLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewParticipationDTO(record))
}

func (h *handler) CancelParticipation(c *gin.Context) {
	var body CancelParticipationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}
	if err := h.ledger.CancelParticipation(c.Request.Context(), middleware.CallerAddress(c), &body.Request, body.Signature); err != nil {
		respondLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (h *handler) ClaimRefund(c *gin.Context) {
	var body ClaimRefundBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}
	if err := h.ledger.ClaimRefund(c.Request.Context(), middleware.CallerAddress(c), &body.Request, body.Signature); err != nil {
		respondLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "refunded"})
}

func (h *handler) CreateGroup(c *gin.Context) {
	var body struct {
		GroupID  string           `json:"group_id" binding:"required"`
		Settings GroupSettingsDTO `json:"settings" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}
	settings, err := body.Settings.ToSettings()
	if err != nil {
		respondBadRequest(c, "Invalid settings", err.Error())
		return
	}
	group, err := h.ledger.CreateLaunchGroup(c.Request.Context(), middleware.CallerAddress(c), domain.ID32(body.GroupID), settings)
	if err != nil {
		respondLedgerError(c, err)
		return
	}
	c.JSON(http.StatusCreated, NewLaunchGroupDTO(group))
}

func (h *handler) SetGroupSettings(c *gin.Context) {
	var body GroupSettingsDTO
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}
	settings, err := body.ToSettings()
	if err != nil {
		respondBadRequest(c, "Invalid settings", err.Error())
		return
	}
	group, err := h.ledger.SetGroupSettings(c.Request.Context(), middleware.CallerAddress(c), domain.ID32(c.Param("group_id")), settings)
	if err != nil {
		respondLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewLaunchGroupDTO(group))
}

func (h *handler) SetGroupStatus(c *gin.Context) {
	var body struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}
	group, err := h.ledger.SetGroupStatus(c.Request.Context(), middleware.CallerAddress(c), domain.ID32(c.Param("group_id")), domain.LaunchGroupStatus(body.Status))
	if err != nil {
		respondLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewLaunchGroupDTO(group))
}

func (h *handler) SetGroupCurrency(c *gin.Context) {
	var body CurrencyConfigDTO
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}
	cfg, err := body.ToConfig(c.Param("currency"))
	if err != nil {
		respondBadRequest(c, "Invalid currency config", err.Error())
		return
	}
	cc, err := h.ledger.SetGroupCurrency(c.Request.Context(), middleware.CallerAddress(c), domain.ID32(c.Param("group_id")), cfg)
	if err != nil {
		respondLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewGroupCurrencyDTO(cc))
}

func (h *handler) FinalizeWinners(c *gin.Context) {
	var body FinalizeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}
	ids := make([]domain.ID32, 0, len(body.ParticipationIDs))
	for _, id := range body.ParticipationIDs {
		ids = append(ids, domain.ID32(id))
	}
	if err := h.ledger.FinalizeWinners(c.Request.Context(), middleware.CallerAddress(c), domain.ID32(c.Param("group_id")), ids); err != nil {
		respondLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"finalized": len(ids)})
}

func (h *handler) BatchRefund(c *gin.Context) {
	var body BatchRefundBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}
	ids := make([]domain.ID32, 0, len(body.ParticipationIDs))
	for _, id := range body.ParticipationIDs {
		ids = append(ids, domain.ID32(id))
	}
	if err := h.ledger.BatchRefund(c.Request.Context(), middleware.CallerAddress(c), domain.ID32(c.Param("group_id")), ids); err != nil {
		respondLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refunded": len(ids)})
}

func (h *handler) Withdraw(c *gin.Context) {
	var body WithdrawBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}
	amount, err := domain.ParseAmount(body.Amount)
	if err != nil {
		respondBadRequest(c, "Invalid amount", err.Error())
		return
	}
	if err := h.ledger.Withdraw(c.Request.Context(), middleware.CallerAddress(c), body.Currency, amount); err != nil {
		respondLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "withdrawn"})
}

func (h *handler) GrantCapability(c *gin.Context) {
	var body CapabilityBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}
	if err := h.ledger.GrantCapability(c.Request.Context(), middleware.CallerAddress(c), body.Identity, domain.Role(body.Role)); err != nil {
		respondLedgerError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "granted"})
}

func (h *handler) RevokeCapability(c *gin.Context) {
	var body CapabilityBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}
	if err := h.ledger.RevokeCapability(c.Request.Context(), middleware.CallerAddress(c), body.Identity, domain.Role(body.Role)); err != nil {
		respondLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}

func (h *handler) SetPause(c *gin.Context) {
	var body PauseBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}
	if err := h.ledger.Pause(c.Request.Context(), middleware.CallerAddress(c), *body.Paused); err != nil {
		respondLedgerError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": *body.Paused})
}

func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"launch_id": h.ledger.LaunchID().String(),
	})
}

// paginationParams parses limit/offset query parameters, responding with a
// bad request on malformed values
func paginationParams(c *gin.Context) (int, int, bool) {
	limit := 0
	offset := 0
	var err error
	if v := c.Query("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 0 {
			respondBadRequest(c, "Invalid limit")
			return 0, 0, false
		}
	}
	if v := c.Query("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			respondBadRequest(c, "Invalid offset")
			return 0, 0, false
		}
	}
	return limit, offset, true
}
