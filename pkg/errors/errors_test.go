package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("match: %w", ErrDocumentNotFound), http.StatusNotFound},
		{"duplicate id", fmt.Errorf("%w: 3", ErrDuplicateID), http.StatusConflict},
		{"negative id", ErrInvalidID, http.StatusBadRequest},
		{"bad position", ErrIndexOutOfRange, http.StatusBadRequest},
		{"control char", fmt.Errorf("%w: %q", ErrInvalidCharacter, "a\x01"), http.StatusBadRequest},
		{"lonely minus", ErrEmptyMinusWord, http.StatusBadRequest},
		{"empty word", fmt.Errorf("%w at position 0", ErrEmptyWord), http.StatusBadRequest},
		{"double minus", ErrDoubleMinusPrefix, http.StatusBadRequest},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"timeout", ErrTimeout, http.StatusServiceUnavailable},
		{"no broker", fmt.Errorf("publish: %w", ErrUnavailable), http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
		{"app error wins", New(ErrDocumentNotFound, http.StatusGone, "gone"), http.StatusGone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrInvalidInput, http.StatusBadRequest, "field %s", "text")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, "invalid input: field text", err.Error())
}

func TestIsQueryError(t *testing.T) {
	assert.True(t, IsQueryError(fmt.Errorf("parse: %w", ErrEmptyMinusWord)))
	assert.True(t, IsQueryError(ErrEmptyWord))
	assert.ErrorIs(t, ErrEmptyWord, ErrInvalidInput)
	assert.False(t, IsQueryError(ErrDuplicateID))
}
