package models

import (
	"time"
)

// EnvelopeError is the structured error part of a BridgeEnvelope
type EnvelopeError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// BridgeEnvelope is the uniform response shape returned for every method call
type BridgeEnvelope struct {
	Success   bool           `json:"success"`
	Method    string         `json:"method"`
	Result    interface{}    `json:"result,omitempty"`
	Error     *EnvelopeError `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	RequestID string         `json:"request_id,omitempty"`
}

// NewSuccessEnvelope wraps a handler result
func NewSuccessEnvelope(method string, result interface{}, now time.Time) BridgeEnvelope {
	return BridgeEnvelope{
		Success:   true,
		Method:    method,
		Result:    result,
		Timestamp: now,
	}
}

// NewErrorEnvelope wraps a failure. Result may carry a partial outcome (e.g. a rolled back mutation).
func NewErrorEnvelope(method string, err error, result interface{}, now time.Time) BridgeEnvelope {
	gwErr := AsGatewayError(err)

	// Internal faults never leak their underlying message
	message := gwErr.Message
	if gwErr.Code != ErrInternal && gwErr.Err != nil {
		message = gwErr.Message + ": " + gwErr.Err.Error()
	}

	return BridgeEnvelope{
		Success: false,
		Method:  method,
		Result:  result,
		Error: &EnvelopeError{
			Code:    gwErr.Code,
			Message: message,
			Details: gwErr.Details,
		},
		Timestamp: now,
	}
}

// ErrorCode returns the envelope's error code, or "" on success
func (e BridgeEnvelope) ErrorCode() ErrorCode {
	if e.Error == nil {
		return ""
	}
	return e.Error.Code
}
