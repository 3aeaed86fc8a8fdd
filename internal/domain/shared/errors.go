package shared

import "errors"

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target carries the same error code, so that
// errors.Is(err, shared.ErrNotFound) matches any NOT_FOUND error.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Error codes
const (
	CodeNotFound           = "NOT_FOUND"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeInvalidState       = "INVALID_STATE"
	CodeInvalidSlide       = "INVALID_SLIDE"
	CodeConfigurationError = "CONFIGURATION_ERROR"
	CodeNotWritable        = "NOT_WRITABLE"
	CodeUpstreamError      = "UPSTREAM_ERROR"
	CodeUnauthorized       = "UNAUTHORIZED"
)

// Common domain errors
var (
	ErrNotFound      = NewDomainError(CodeNotFound, "Resource not found")
	ErrInvalidInput  = NewDomainError(CodeInvalidInput, "Invalid input provided")
	ErrInvalidState  = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
	ErrInvalidSlide  = NewDomainError(CodeInvalidSlide, "Images do not form a valid slide")
	ErrConfiguration = NewDomainError(CodeConfigurationError, "Invalid configuration")
	ErrNotWritable   = NewDomainError(CodeNotWritable, "Store is not writable")
	ErrUpstream      = NewDomainError(CodeUpstreamError, "Image archive request failed")
	ErrUnauthorized  = NewDomainError(CodeUnauthorized, "Not authorized to perform this action")
)
