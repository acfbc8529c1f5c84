package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the ledger error taxonomy. Callers match with
// errors.Is; the LedgerError wrapper adds per-operation context.
var (
	// Admission errors
	ErrPaused            = errors.New("ledger is paused")
	ErrReentrantCall     = errors.New("reentrant call")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrRequestExpired    = errors.New("request expired")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrUnauthorized      = errors.New("missing capability")
	ErrGroupNotFound     = errors.New("launch group not found")
	ErrInvalidGroupStatus = errors.New("invalid launch group status")
	ErrOutsideWindow     = errors.New("outside participation window")
	ErrCurrencyDisabled  = errors.New("currency not enabled")

	// Allocation errors
	ErrMaxParticipantsReached  = errors.New("max participants reached")
	ErrMaxUserParticipations   = errors.New("max participations per user reached")
	ErrUserTokenAmountOutOfRange = errors.New("user token amount out of range")
	ErrCurrencyAmountOutOfRange  = errors.New("currency amount out of range")
	ErrAllocationExceeded        = errors.New("max token allocation exceeded")

	// Replay / state errors
	ErrParticipationExists    = errors.New("participation already exists")
	ErrParticipationNotFound  = errors.New("participation not found")
	ErrAlreadyFinalized       = errors.New("participation already finalized")
	ErrRefundInvalid          = errors.New("participation not refundable")
	ErrUpdateNotAllowed       = errors.New("participation mutation not allowed")
	ErrCurrencyMismatch       = errors.New("currency mismatch")
	ErrUserMismatch           = errors.New("user mismatch")

	// Accounting-consistency errors. Reaching one of these indicates a
	// ledger bug, not a bad request.
	ErrAggregateUnderflow = errors.New("aggregate underflow")
	ErrInsufficientWithdrawable = errors.New("insufficient withdrawable balance")

	// External-transfer errors
	ErrTransferFailed = errors.New("custody transfer failed")
)

// LedgerError wraps a sentinel error with the identifiers and values an
// off-chain consumer needs to diagnose a rejected operation.
type LedgerError struct {
	Err             error
	GroupID         ID32
	ParticipationID ID32
	UserID          string
	Currency        string
	Expected        string
	Actual          string
}

func (e *LedgerError) Error() string {
	parts := []string{e.Err.Error()}
	if e.GroupID != "" {
		parts = append(parts, fmt.Sprintf("group=%s", e.GroupID))
	}
	if e.ParticipationID != "" {
		parts = append(parts, fmt.Sprintf("participation=%s", e.ParticipationID))
	}
	if e.UserID != "" {
		parts = append(parts, fmt.Sprintf("user=%s", e.UserID))
	}
	if e.Currency != "" {
		parts = append(parts, fmt.Sprintf("currency=%s", e.Currency))
	}
	if e.Expected != "" {
		parts = append(parts, fmt.Sprintf("expected=%s", e.Expected))
	}
	if e.Actual != "" {
		parts = append(parts, fmt.Sprintf("actual=%s", e.Actual))
	}
	return strings.Join(parts, " ")
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}
