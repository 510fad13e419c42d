package helpers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"youthexchange/internal/domain"
)

type errorMapping struct {
	target error
	status int
	code   string
	// guest is shown to guardians instead of the error text.
	guest string
}

var errorMappings = []errorMapping{
	{domain.ErrSignUpRejected, http.StatusBadRequest, ErrCodeBadRequest, "We could not create an account with these details."},
	{domain.ErrValidation, http.StatusBadRequest, ErrCodeBadRequest, ""},
	{domain.ErrInvalidToken, http.StatusNotFound, ErrCodeInvalidToken, "This invite link is not valid."},
	{domain.ErrRevoked, http.StatusGone, ErrCodeRevoked, "This invite has been revoked."},
	{domain.ErrAlreadyClaimed, http.StatusConflict, ErrCodeAlreadyClaimed, "This invite is already linked to another account."},
	{domain.ErrNotOwner, http.StatusForbidden, ErrCodeNotOwner, "This invite belongs to another account."},
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, ErrCodeUnauthorized, "Incorrect email or password."},
	{domain.ErrUnauthorized, http.StatusUnauthorized, ErrCodeUnauthorized, "Please sign in to continue."},
	{domain.ErrForbidden, http.StatusForbidden, ErrCodeForbidden, "You are not allowed to do that."},
	{domain.ErrDuplicateEmail, http.StatusConflict, ErrCodeConflict, "An account with this email already exists."},
	{domain.ErrAlreadyExists, http.StatusConflict, ErrCodeConflict, "This record already exists."},
	{domain.ErrNotFound, http.StatusNotFound, ErrCodeNotFound, "Not found."},
	{domain.ErrIllegalTransition, http.StatusConflict, ErrCodeIllegalTransition, "That change is not allowed."},
	{domain.ErrStoreUnavailable, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "The service is temporarily unavailable. Please try again."},
	{context.DeadlineExceeded, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "The service is temporarily unavailable. Please try again."},
}

const guestFallback = "Something went wrong. Please try again."

func lookupError(err error) (errorMapping, bool) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m, true
		}
	}
	return errorMapping{}, false
}

// WriteError maps a service error onto the response envelope for administrative endpoints.
// Unmapped errors are logged and reported as 500.
func WriteError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	m, ok := lookupError(err)
	if !ok {
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		WriteJSONError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	if m.status == http.StatusServiceUnavailable {
		logger.WarnContext(r.Context(), "store unavailable", "path", r.URL.Path, "method", r.Method, "err", err)
	}
	WriteJSONError(w, m.status, m.code, err.Error())
}

// GuestError returns the status, code and a message that is safe to show a guardian. Internal
// details such as store errors or token values never reach the message.
func GuestError(err error) (status int, code, message string) {
	m, ok := lookupError(err)
	if !ok {
		return http.StatusInternalServerError, ErrCodeInternalError, guestFallback
	}
	if m.target == domain.ErrValidation {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			return m.status, m.code, verr.Error()
		}
		return m.status, m.code, "Some fields are invalid."
	}
	return m.status, m.code, m.guest
}

// WriteGuestError writes GuestError(err) and logs anything that is not an expected guest outcome.
func WriteGuestError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, code, message := GuestError(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "guest request failed", "path", r.Pattern, "method", r.Method, "err", err)
	}
	WriteJSONError(w, status, code, message)
}
