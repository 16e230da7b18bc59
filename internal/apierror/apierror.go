// Package apierror defines the typed error taxonomy shared by the query
// pipeline and the HTTP surface. Every error that crosses a component
// boundary carries a stable code, an HTTP status, and recovery suggestions
// so that the HTTP layer can render the common envelope in one place.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies an error class in the taxonomy.
type Code string

const (
	CodeValidation           Code = "ValidationError"
	CodeProductNotFound      Code = "ProductNotFound"
	CodeQueryProcessing      Code = "QueryProcessingError"
	CodeInvalidQuery         Code = "InvalidQueryError"
	CodeDatabase             Code = "DatabaseError"
	CodeConfiguration        Code = "ConfigurationError"
	CodeRateLimit            Code = "RateLimitError"
	CodeRequestTooLarge      Code = "RequestTooLarge"
	CodeUnsupportedMediaType Code = "UnsupportedMediaType"
)

// Error is a typed API error.
type Error struct {
	Code        Code
	Status      int
	Message     string
	Suggestions []string
	Err         error // wrapped cause, not serialised
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// WithSuggestions returns a copy of the error with the given suggestions attached.
func (e *Error) WithSuggestions(suggestions ...string) *Error {
	clone := *e
	clone.Suggestions = append(append([]string{}, e.Suggestions...), suggestions...)
	return &clone
}

// Validation builds a 400 ValidationError.
func Validation(message string, suggestions ...string) *Error {
	return &Error{Code: CodeValidation, Status: http.StatusBadRequest, Message: message, Suggestions: suggestions}
}

// ProductNotFound builds a 404 with the canonical recovery hints.
func ProductNotFound(product string) *Error {
	return &Error{
		Code:    CodeProductNotFound,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("no products matched %q", product),
		Suggestions: []string{
			"broaden the product name",
			"check the spelling",
			"try a category instead of a specific product",
		},
	}
}

// QueryProcessing builds a 500 for an executor abort after recovery was exhausted.
func QueryProcessing(message string, cause error, suggestions ...string) *Error {
	return &Error{Code: CodeQueryProcessing, Status: http.StatusInternalServerError, Message: message, Suggestions: suggestions, Err: cause}
}

// InvalidQuery builds a 400 for candidate SQL that failed safety validation.
func InvalidQuery(message string) *Error {
	return &Error{
		Code:    CodeInvalidQuery,
		Status:  http.StatusBadRequest,
		Message: message,
		Suggestions: []string{
			"describe what you want in plain language",
			"avoid SQL keywords in the query text",
		},
	}
}

// Database builds a 503 for pool exhaustion, deadlocks, or broken connections.
func Database(message string, cause error) *Error {
	return &Error{Code: CodeDatabase, Status: http.StatusServiceUnavailable, Message: message, Err: cause}
}

// RateLimit builds a 429.
func RateLimit(retryAfterSeconds int) *Error {
	return &Error{
		Code:        CodeRateLimit,
		Status:      http.StatusTooManyRequests,
		Message:     "rate limit exceeded",
		Suggestions: []string{fmt.Sprintf("retry after %d seconds", retryAfterSeconds)},
	}
}

// RequestTooLarge builds a 413.
func RequestTooLarge(limitBytes int64) *Error {
	return &Error{
		Code:    CodeRequestTooLarge,
		Status:  http.StatusRequestEntityTooLarge,
		Message: fmt.Sprintf("request body exceeds %d bytes", limitBytes),
	}
}

// UnsupportedMediaType builds a 415.
func UnsupportedMediaType(contentType string) *Error {
	return &Error{
		Code:        CodeUnsupportedMediaType,
		Status:      http.StatusUnsupportedMediaType,
		Message:     fmt.Sprintf("unsupported content type %q", contentType),
		Suggestions: []string{"use application/json"},
	}
}

// From normalises any error to a typed *Error. Unexpected errors become
// QueryProcessingError with a generic message so internals never leak.
func From(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &Error{
		Code:        CodeQueryProcessing,
		Status:      http.StatusInternalServerError,
		Message:     "the query could not be processed",
		Suggestions: []string{"try rephrasing the question", "retry in a moment"},
		Err:         err,
	}
}
