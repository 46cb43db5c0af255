// AngelaMos | 2026
// errors.go

package core

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrConflict     = errors.New("version conflict")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	ErrTokenExpired = errors.New("token expired")
	ErrTokenRevoked = errors.New("token revoked")
	ErrTokenInvalid = errors.New("token invalid")
)

const (
	CodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	CodeValidationFailed     = "VALIDATION_FAILED"
	CodeConfigurationError   = "CONFIGURATION_ERROR"
	CodeUpstreamError        = "UPSTREAM_ERROR"
	CodeUpstreamTimeout      = "UPSTREAM_TIMEOUT"
	CodeStoreError           = "STORE_ERROR"
	CodeNotFound             = "NOT_FOUND"
	CodeForbidden            = "FORBIDDEN"
	CodeRateLimited          = "RATE_LIMITED"
	CodeTokenExpired         = "TOKEN_EXPIRED"
	CodeTokenRevoked         = "TOKEN_REVOKED"
	CodeTokenInvalid         = "TOKEN_INVALID"
	CodeInternal             = "INTERNAL_ERROR"
)

// AppError is an error that knows how it should be rendered to a client.
// Message and Details are client-visible; Err never is.
type AppError struct {
	Status  int
	Code    string
	Message string
	Details []string
	Err     error
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

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func UnauthorizedError(message string) *AppError {
	return &AppError{
		Status:  http.StatusUnauthorized,
		Code:    CodeAuthenticationFailed,
		Message: message,
	}
}

func ForbiddenError(message string) *AppError {
	return &AppError{
		Status:  http.StatusForbidden,
		Code:    CodeForbidden,
		Message: message,
	}
}

func ValidationError(message string, details ...string) *AppError {
	return &AppError{
		Status:  http.StatusBadRequest,
		Code:    CodeValidationFailed,
		Message: message,
		Details: details,
	}
}

func NotFoundError(resource string) *AppError {
	return &AppError{
		Status:  http.StatusNotFound,
		Code:    CodeNotFound,
		Message: resource + " not found",
	}
}

// ConfigurationError never carries the cause to the client.
func ConfigurationError(err error) *AppError {
	return &AppError{
		Status:  http.StatusInternalServerError,
		Code:    CodeConfigurationError,
		Message: "service is not configured",
		Err:     err,
	}
}

func UpstreamError(message string, details []string, err error) *AppError {
	return &AppError{
		Status:  http.StatusBadGateway,
		Code:    CodeUpstreamError,
		Message: message,
		Details: details,
		Err:     err,
	}
}

func UpstreamTimeoutError(err error) *AppError {
	return &AppError{
		Status:  http.StatusGatewayTimeout,
		Code:    CodeUpstreamTimeout,
		Message: "upstream provider timed out",
		Err:     err,
	}
}

func StoreError(err error) *AppError {
	return &AppError{
		Status:  http.StatusInternalServerError,
		Code:    CodeStoreError,
		Message: "failed to persist changes",
		Err:     err,
	}
}

func TokenExpiredError() *AppError {
	return &AppError{
		Status:  http.StatusUnauthorized,
		Code:    CodeTokenExpired,
		Message: "token has expired",
	}
}

func TokenRevokedError() *AppError {
	return &AppError{
		Status:  http.StatusUnauthorized,
		Code:    CodeTokenRevoked,
		Message: "token has been revoked",
	}
}

func TokenInvalidError() *AppError {
	return &AppError{
		Status:  http.StatusUnauthorized,
		Code:    CodeTokenInvalid,
		Message: "token is invalid",
	}
}
