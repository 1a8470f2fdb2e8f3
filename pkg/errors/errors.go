package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard sentinel errors for the account service.
var (
	ErrNotFound             = errors.New("resource not found")
	ErrDuplicateEmail       = errors.New("email already in use")
	ErrDuplicateUsername    = errors.New("username already taken")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrInvalidResetToken    = errors.New("invalid reset token")
	ErrExpiredResetToken    = errors.New("reset token expired")
	ErrInvalidOTP           = errors.New("invalid otp")
	ErrExpiredOTP           = errors.New("otp expired")
	ErrInvalidExternalToken = errors.New("external token verification failed")
	ErrInvalidToken         = errors.New("invalid session token")
	ErrExpiredToken         = errors.New("session token expired")
	ErrInvalidInput         = errors.New("invalid input")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrInternal             = errors.New("internal error")
)

// AppError is a structured application error with an HTTP status mapping.
// Handlers serialize Code and Message to the caller; Err carries the sentinel
// so services and tests can match with errors.Is.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound creates a 404 error for a missing account.
func NotFound(resource, key string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, key),
		Status:  http.StatusNotFound,
		Err:     ErrNotFound,
	}
}

// DuplicateEmail creates a 409 error for a registration email conflict.
func DuplicateEmail(email string) *AppError {
	return &AppError{
		Code:    "DUPLICATE_EMAIL",
		Message: fmt.Sprintf("email %q is already in use", email),
		Status:  http.StatusConflict,
		Err:     ErrDuplicateEmail,
	}
}

// DuplicateUsername creates a 409 error for a registration username conflict.
func DuplicateUsername(username string) *AppError {
	return &AppError{
		Code:    "DUPLICATE_USERNAME",
		Message: fmt.Sprintf("username %q is already taken", username),
		Status:  http.StatusConflict,
		Err:     ErrDuplicateUsername,
	}
}

// InvalidCredentials creates a 401 error for a failed login. The message is
// identical whether the account is absent or the password is wrong, so callers
// cannot enumerate registered emails.
func InvalidCredentials() *AppError {
	return &AppError{
		Code:    "INVALID_CREDENTIALS",
		Message: "invalid email or password",
		Status:  http.StatusUnauthorized,
		Err:     ErrInvalidCredentials,
	}
}

// InvalidResetToken creates a 400 error for an unknown or consumed reset token.
func InvalidResetToken() *AppError {
	return &AppError{
		Code:    "INVALID_TOKEN",
		Message: "invalid reset token",
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidResetToken,
	}
}

// ExpiredResetToken creates a 400 error for a reset token past its window.
func ExpiredResetToken() *AppError {
	return &AppError{
		Code:    "EXPIRED_TOKEN",
		Message: "reset token has expired",
		Status:  http.StatusBadRequest,
		Err:     ErrExpiredResetToken,
	}
}

// InvalidOTP creates a 400 error for a missing or mismatched OTP code.
func InvalidOTP() *AppError {
	return &AppError{
		Code:    "INVALID_OTP",
		Message: "invalid OTP",
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidOTP,
	}
}

// ExpiredOTP creates a 400 error for an OTP past its window.
func ExpiredOTP() *AppError {
	return &AppError{
		Code:    "EXPIRED_OTP",
		Message: "OTP has expired",
		Status:  http.StatusBadRequest,
		Err:     ErrExpiredOTP,
	}
}

// InvalidExternalToken creates a 401 error for a social token that failed
// provider verification.
func InvalidExternalToken(provider string) *AppError {
	return &AppError{
		Code:    "INVALID_EXTERNAL_TOKEN",
		Message: fmt.Sprintf("%s authentication failed", provider),
		Status:  http.StatusUnauthorized,
		Err:     ErrInvalidExternalToken,
	}
}

// InvalidToken creates a 401 error for a malformed or badly signed session token.
func InvalidToken() *AppError {
	return &AppError{
		Code:    "INVALID_SESSION_TOKEN",
		Message: "invalid session token",
		Status:  http.StatusUnauthorized,
		Err:     ErrInvalidToken,
	}
}

// ExpiredToken creates a 401 error for a session token past its expiry.
func ExpiredToken() *AppError {
	return &AppError{
		Code:    "EXPIRED_SESSION_TOKEN",
		Message: "session token has expired",
		Status:  http.StatusUnauthorized,
		Err:     ErrExpiredToken,
	}
}

// InvalidInput creates a 400 error for malformed input.
func InvalidInput(message string) *AppError {
	return &AppError{
		Code:    "INVALID_INPUT",
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     ErrInvalidInput,
	}
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     ErrUnauthorized,
	}
}

// Forbidden creates a 403 error.
func Forbidden(message string) *AppError {
	return &AppError{
		Code:    "FORBIDDEN",
		Message: message,
		Status:  http.StatusForbidden,
		Err:     ErrForbidden,
	}
}

// Internal creates a 500 error wrapping the underlying cause.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateEmail), errors.Is(err, ErrDuplicateUsername):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrInvalidResetToken), errors.Is(err, ErrExpiredResetToken),
		errors.Is(err, ErrInvalidOTP), errors.Is(err, ErrExpiredOTP):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrInvalidExternalToken),
		errors.Is(err, ErrInvalidToken), errors.Is(err, ErrExpiredToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
