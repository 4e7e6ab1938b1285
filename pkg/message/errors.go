package message

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

// ErrorType represents the category of a StatusError.
type ErrorType string

const (
	ErrorTypeServerError     ErrorType = "server_error"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeUnauthorized    ErrorType = "unauthorized"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeTooManyRequests ErrorType = "too_many_requests"
	ErrorTypeTimeout         ErrorType = "timeout"
	ErrorTypeUpstream        ErrorType = "upstream_error"
)

// StatusError is an error that carries the HTTP status the transport
// adapter should answer with when it reaches the top of the chain
// unhandled. Message is safe to show to clients; Err is not serialized.
// Header is added to the rendered response.
type StatusError struct {
	Status  int       `json:"-"`
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Header  Header    `json:"-"`
	Err     error     `json:"-"`
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause.
func (e *StatusError) Unwrap() error { return e.Err }

// ErrorResponse wraps a StatusError for JSON serialization.
type ErrorResponse struct {
	Error *StatusError `json:"error"`
}

// Response renders e as a JSON error response.
func (e *StatusError) Response() *Response {
	resp, err := JSON(e.Status, ErrorResponse{Error: e})
	if err != nil {
		// Only string fields are encoded, so this is unreachable in practice.
		resp = Text(e.Status, e.Message)
	}
	for name, values := range e.Header.All() {
		resp = resp.WithHeader(name, values...)
	}
	return resp
}

// NewStatusError creates a StatusError with the given status, type and message.
func NewStatusError(status int, typ ErrorType, message string) *StatusError {
	return &StatusError{Status: status, Type: typ, Message: message}
}

// NewServerError creates a 500 error.
func NewServerError(message string) *StatusError {
	return NewStatusError(http.StatusInternalServerError, ErrorTypeServerError, message)
}

// NewInvalidRequestError creates a 400 error.
func NewInvalidRequestError(message string) *StatusError {
	return NewStatusError(http.StatusBadRequest, ErrorTypeInvalidRequest, message)
}

// NewUnauthorizedError creates a 401 error.
func NewUnauthorizedError(message string) *StatusError {
	return NewStatusError(http.StatusUnauthorized, ErrorTypeUnauthorized, message)
}

// NewNotFoundError creates a 404 error.
func NewNotFoundError(message string) *StatusError {
	return NewStatusError(http.StatusNotFound, ErrorTypeNotFound, message)
}

// NewTooManyRequestsError creates a 429 error.
func NewTooManyRequestsError(message string) *StatusError {
	return NewStatusError(http.StatusTooManyRequests, ErrorTypeTooManyRequests, message)
}

// NewTimeoutError creates a 504 error.
func NewTimeoutError(message string) *StatusError {
	return NewStatusError(http.StatusGatewayTimeout, ErrorTypeTimeout, message)
}

// NewBadGatewayError creates a 502 error wrapping the upstream failure.
func NewBadGatewayError(message string, cause error) *StatusError {
	e := NewStatusError(http.StatusBadGateway, ErrorTypeUpstream, message)
	e.Err = cause
	return e
}

// AsStatusError returns the StatusError in err's chain. Any other error,
// and a StatusError whose Status is not a 4xx or 5xx code, becomes a
// generic 500 that does not leak the original message.
func AsStatusError(err error) *StatusError {
	var se *StatusError
	if errors.As(err, &se) && se.Status >= 400 && se.Status <= 599 {
		return se
	}
	return &StatusError{
		Status:  http.StatusInternalServerError,
		Type:    ErrorTypeServerError,
		Message: "internal server error",
		Err:     err,
	}
}

// StatusClass returns the status class label for code, e.g. "2xx".
func StatusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}
