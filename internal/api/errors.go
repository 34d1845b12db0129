package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/borglife/wealthd/internal/gateway"
	"github.com/borglife/wealthd/internal/guard"
	"github.com/borglife/wealthd/internal/ledger"
	"github.com/borglife/wealthd/internal/transfer"
)

// classify maps the error taxonomy onto HTTP statuses and kind tags.
func classify(err error) (status int, kind string) {
	var violation *guard.ViolationError
	var resolution *transfer.ResolutionError
	var submission *transfer.SubmissionError
	var inconsistency *ledger.InconsistencyError

	switch {
	case errors.Is(err, ledger.ErrInvalidAmount) || errors.Is(err, transfer.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusPaymentRequired, "insufficient_funds"
	case errors.As(err, &violation):
		return http.StatusForbidden, "security_violation"
	case errors.Is(err, gateway.ErrRateLimitExceeded):
		return http.StatusTooManyRequests, "rate_limit_exceeded"
	case errors.As(err, &resolution):
		return http.StatusNotFound, "address_resolution_failure"
	case errors.Is(err, transfer.ErrCredentialMismatch):
		return http.StatusForbidden, "credential_mismatch"
	case errors.Is(err, transfer.ErrTimeout):
		return http.StatusGatewayTimeout, "transfer_timeout"
	case errors.As(err, &submission):
		return http.StatusBadGateway, "transfer_submission_failure"
	case errors.As(err, &inconsistency):
		return http.StatusInternalServerError, "ledger_inconsistency"
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout, "cancelled"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
