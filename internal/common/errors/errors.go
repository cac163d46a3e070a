package errors

import (
	"fmt"
	"net/http"
)

// Error codes
const (
	// 4xx Client Errors
	CodeNonceInvalid         = "NONCE_INVALID"
	CodeMalformedRequest     = "MALFORMED_REQUEST"
	CodeIncompletePayload    = "INCOMPLETE_PAYLOAD"
	CodeNonceMismatch        = "NONCE_MISMATCH"
	CodeSignatureInvalid     = "SIGNATURE_INVALID"
	CodeTokenGateFailed      = "TOKEN_GATE_FAILED"
	CodeRegistrationDisabled = "REGISTRATION_DISABLED"

	// 5xx Server Errors
	CodeRPCError           = "RPC_ERROR"
	CodeConfigurationError = "CONFIGURATION_ERROR"
	CodeInternal           = "INTERNAL_ERROR"
	CodeDBError            = "DB_ERROR"
)

// AppError represents a structured application error
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	StatusCode int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
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

func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// Error constructors. Messages are short and fixed so that auth
// failures never reveal internal detail to the client; specifics go
// to the logs.

func NonceInvalid() *AppError {
	return &AppError{
		Code:       CodeNonceInvalid,
		Message:    "Nonce verification failed",
		StatusCode: http.StatusForbidden,
	}
}

func MalformedRequest() *AppError {
	return &AppError{
		Code:       CodeMalformedRequest,
		Message:    "Malformed authentication request",
		StatusCode: http.StatusBadRequest,
	}
}

func IncompletePayload() *AppError {
	return &AppError{
		Code:       CodeIncompletePayload,
		Message:    "Incomplete authentication request",
		StatusCode: http.StatusBadRequest,
	}
}

func NonceMismatch() *AppError {
	return &AppError{
		Code:       CodeNonceMismatch,
		Message:    "Nonce validation failed",
		StatusCode: http.StatusForbidden,
	}
}

func SignatureInvalid() *AppError {
	return &AppError{
		Code:       CodeSignatureInvalid,
		Message:    "Message validation failed",
		StatusCode: http.StatusUnauthorized,
	}
}

func TokenGateFailed() *AppError {
	return &AppError{
		Code:       CodeTokenGateFailed,
		Message:    "Token validation failed",
		StatusCode: http.StatusForbidden,
	}
}

func RegistrationDisabled() *AppError {
	return &AppError{
		Code:       CodeRegistrationDisabled,
		Message:    "User registration is disabled",
		StatusCode: http.StatusForbidden,
	}
}

func RPCError(err error) *AppError {
	return &AppError{
		Code:       CodeRPCError,
		Message:    "Chain query failed",
		StatusCode: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func ConfigurationError(message string) *AppError {
	return &AppError{
		Code:       CodeConfigurationError,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func Internal(message string) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

func DBError(err error) *AppError {
	return &AppError{
		Code:       CodeDBError,
		Message:    "Database error occurred",
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}
