package apierror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromPassesTypedErrorsThrough(t *testing.T) {
	orig := Validation("bad input", "fix it")
	got := From(fmt.Errorf("wrapped: %w", orig))
	assert.Equal(t, CodeValidation, got.Code)
	assert.Equal(t, http.StatusBadRequest, got.Status)
	assert.Equal(t, orig.Message, got.Message)
}

func TestFromWrapsUnknownErrors(t *testing.T) {
	got := From(errors.New("sql: database is locked"))
	assert.Equal(t, CodeQueryProcessing, got.Code)
	assert.Equal(t, http.StatusInternalServerError, got.Status)
	// Internals never leak into the message
	assert.NotContains(t, got.Message, "sql")
	assert.NotEmpty(t, got.Suggestions)
}

func TestWithSuggestionsDoesNotMutateOriginal(t *testing.T) {
	orig := ProductNotFound("onion")
	before := len(orig.Suggestions)

	clone := orig.WithSuggestions("try fruits instead")
	assert.Len(t, orig.Suggestions, before)
	require.Len(t, clone.Suggestions, before+1)
	assert.Equal(t, "try fruits instead", clone.Suggestions[before])
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := QueryProcessing("failed", cause)
	assert.True(t, errors.Is(err, cause))
}

func TestStatusCodes(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, ProductNotFound("x").Status)
	assert.Equal(t, http.StatusBadRequest, InvalidQuery("x").Status)
	assert.Equal(t, http.StatusServiceUnavailable, Database("x", nil).Status)
	assert.Equal(t, http.StatusTooManyRequests, RateLimit(60).Status)
	assert.Equal(t, http.StatusRequestEntityTooLarge, RequestTooLarge(1).Status)
	assert.Equal(t, http.StatusUnsupportedMediaType, UnsupportedMediaType("text/xml").Status)
}
