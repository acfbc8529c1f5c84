package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/feral-file/launch-ledger/internal/domain"
	"github.com/feral-file/launch-ledger/internal/logger"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Client errors (4xx)
	errCodeBadRequest       ErrorCode = "bad_request"
	errCodeNotFound         ErrorCode = "not_found"
	errCodeValidationFailed ErrorCode = "validation_failed"
	errCodeUnauthorized     ErrorCode = "unauthorized"
	errCodeForbidden        ErrorCode = "forbidden"
	errCodeConflict         ErrorCode = "conflict"

	// Server errors (5xx)
	errCodeInternalError ErrorCode = "internal_error"
	errCodeServiceError  ErrorCode = "service_error"
)

// errorResponse represents a standardized error response
type errorResponse struct {
	Error errorDetail `json:"error"`
}

// errorDetail contains error information
type errorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

// respondWithError sends a standardized error response
func respondWithError(c *gin.Context, statusCode int, code ErrorCode, message string, details ...string) {
	response := errorResponse{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	}

	if len(details) > 0 {
		response.Error.Details = details[0]
	}

	c.JSON(statusCode, response)
}

// respondBadRequest sends a 400 Bad Request response
func respondBadRequest(c *gin.Context, message string, details ...string) {
	respondWithError(c, http.StatusBadRequest, errCodeBadRequest, message, details...)
}

// respondNotFound sends a 404 Not Found response
func respondNotFound(c *gin.Context, message string, details ...string) {
	respondWithError(c, http.StatusNotFound, errCodeNotFound, message, details...)
}

// respondInternalError sends a 500 Internal Server Error response and logs the error
func respondInternalError(c *gin.Context, err error, message string, fields ...zap.Field) {
	logger.Error(err, fields...)
	respondWithError(c, http.StatusInternalServerError, errCodeInternalError, message)
}

// respondLedgerError maps a ledger error onto the error envelope. The
// sentinel picks status and code; the wrapped message carries the
// diagnostic context.
func respondLedgerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrRequestExpired):
		respondWithError(c, http.StatusBadRequest, errCodeBadRequest, err.Error())

	case errors.Is(err, domain.ErrInvalidSignature):
		respondWithError(c, http.StatusUnauthorized, errCodeUnauthorized, err.Error())

	case errors.Is(err, domain.ErrUnauthorized):
		respondWithError(c, http.StatusForbidden, errCodeForbidden, err.Error())

	case errors.Is(err, domain.ErrGroupNotFound),
		errors.Is(err, domain.ErrParticipationNotFound):
		respondWithError(c, http.StatusNotFound, errCodeNotFound, err.Error())

	case errors.Is(err, domain.ErrMaxParticipantsReached),
		errors.Is(err, domain.ErrMaxUserParticipations),
		errors.Is(err, domain.ErrUserTokenAmountOutOfRange),
		errors.Is(err, domain.ErrCurrencyAmountOutOfRange),
		errors.Is(err, domain.ErrAllocationExceeded):
		respondWithError(c, http.StatusUnprocessableEntity, errCodeValidationFailed, err.Error())

	case errors.Is(err, domain.ErrPaused),
		errors.Is(err, domain.ErrReentrantCall),
		errors.Is(err, domain.ErrInvalidGroupStatus),
		errors.Is(err, domain.ErrOutsideWindow),
		errors.Is(err, domain.ErrCurrencyDisabled),
		errors.Is(err, domain.ErrParticipationExists),
		errors.Is(err, domain.ErrAlreadyFinalized),
		errors.Is(err, domain.ErrRefundInvalid),
		errors.Is(err, domain.ErrUpdateNotAllowed),
		errors.Is(err, domain.ErrCurrencyMismatch),
		errors.Is(err, domain.ErrUserMismatch),
		errors.Is(err, domain.ErrInsufficientWithdrawable):
		respondWithError(c, http.StatusConflict, errCodeConflict, err.Error())

	case errors.Is(err, domain.ErrTransferFailed):
		logger.Error(err)
		respondWithError(c, http.StatusBadGateway, errCodeServiceError, err.Error())

	default:
		// Includes aggregate underflows: a ledger bug, not a bad request
		respondInternalError(c, err, "Internal server error")
	}
}
