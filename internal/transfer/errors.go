package transfer

import (
	"errors"
	"net/http"
)

var (
	ErrValidation              = errors.New("validation failed")
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrSignatureInvalid        = errors.New("invalid signature")
	ErrTransferExpired         = errors.New("transfer expired")
	ErrQuoteUnavailable        = errors.New("quote unavailable")
	ErrQuoteMissing            = errors.New("quote reference missing")
	ErrQuoteMismatch           = errors.New("quote reference does not match the signed terms")
	ErrTermsMismatch           = errors.New("request does not match the signed terms")
	ErrSenderNotFound          = errors.New("sender account not found")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrTransferAlreadyExecuted = errors.New("transfer already executed")
	ErrStoreUnavailable        = errors.New("store unavailable")
)

// StatusCode maps an engine error to the HTTP status it is reported with.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrSignatureInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, ErrSenderNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTransferAlreadyExecuted):
		return http.StatusConflict
	case errors.Is(err, ErrQuoteUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrTransferExpired),
		errors.Is(err, ErrQuoteMissing),
		errors.Is(err, ErrQuoteMismatch),
		errors.Is(err, ErrTermsMismatch),
		errors.Is(err, ErrInsufficientBalance):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the error text safe to return to callers. Server-side
// failures are collapsed to their sentinel so driver details stay in the logs.
func PublicMessage(err error) string {
	switch StatusCode(err) {
	case http.StatusInternalServerError:
		return ErrStoreUnavailable.Error()
	case http.StatusBadGateway:
		return ErrQuoteUnavailable.Error()
	default:
		return err.Error()
	}
}
