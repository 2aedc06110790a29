package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nfturvy/market-ledger/internal/domain"
	"github.com/nfturvy/market-ledger/internal/logger"
)

// ErrorResponse is the error envelope returned by every failing endpoint
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries the machine-readable code and human-readable message
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// domainStatus maps a domain error to its HTTP status and stable error code.
// Unrecognized errors fall through to 500.
func domainStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidPrice):
		return http.StatusBadRequest, "invalid_price"
	case errors.Is(err, domain.ErrFeeMismatch):
		return http.StatusBadRequest, "fee_mismatch"
	case errors.Is(err, domain.ErrPaymentMismatch):
		return http.StatusBadRequest, "payment_mismatch"
	case errors.Is(err, domain.ErrUnknownListing):
		return http.StatusNotFound, "unknown_listing"
	case errors.Is(err, domain.ErrAlreadySold):
		return http.StatusConflict, "already_sold"
	case errors.Is(err, domain.ErrTransferRejected):
		return http.StatusConflict, "transfer_rejected"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// abortWithError writes the error envelope for a domain or internal error.
// Internal errors are logged and returned without details to avoid leaking
// storage or registry internals.
func abortWithError(c *gin.Context, err error) {
	status, code := domainStatus(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.ErrorCtx(c.Request.Context(), err)
		message = "internal server error"
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// abortWithBadRequest writes the error envelope for a malformed request
func abortWithBadRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Error: ErrorDetail{
			Code:    "bad_request",
			Message: "invalid request",
			Details: err.Error(),
		},
	})
}
