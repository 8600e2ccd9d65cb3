package models

import (
	"errors"
	"fmt"
)

// ErrorCode is the machine-readable category carried in every failed envelope
type ErrorCode string

const (
	ErrInvalidRequest       ErrorCode = "invalid_request"
	ErrUnauthorized         ErrorCode = "unauthorized"
	ErrForbidden            ErrorCode = "forbidden"
	ErrRateLimited          ErrorCode = "rate_limited"
	ErrQueryDenied          ErrorCode = "query_denied"
	ErrExecution            ErrorCode = "execution_error"
	ErrNotFound             ErrorCode = "not_found"
	ErrBackupFailed         ErrorCode = "backup_failed"
	ErrFileWrite            ErrorCode = "file_write_error"
	ErrPathEscape           ErrorCode = "path_escape"
	ErrFileExists           ErrorCode = "file_exists"
	ErrValidationFailed     ErrorCode = "validation_failed"
	ErrConfigurationInvalid ErrorCode = "configuration_invalid"
	ErrUnknownMethod        ErrorCode = "unknown_method"
	ErrInternal             ErrorCode = "internal_error"
)

// GatewayError wraps an error with its code and a caller-facing message
type GatewayError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// WithDetail attaches a detail value and returns the same error for chaining
func (e *GatewayError) WithDetail(key string, value interface{}) *GatewayError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func NewError(code ErrorCode, msg string) *GatewayError { return &GatewayError{Code: code, Message: msg} }
func WrapError(code ErrorCode, msg string, err error) *GatewayError {
	return &GatewayError{Code: code, Message: msg, Err: err}
}

// CodeOf returns the code of the first GatewayError in err's chain, or internal_error
func CodeOf(err error) ErrorCode {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Code
	}
	return ErrInternal
}

// AsGatewayError converts any error into a GatewayError; unknown errors become internal_error
func AsGatewayError(err error) *GatewayError {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr
	}
	return WrapError(ErrInternal, "internal error", err)
}
