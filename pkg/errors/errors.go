// Package errors defines the sentinel errors shared by the search core and
// the service layer, plus an AppError wrapper that carries an HTTP status.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidID         = errors.New("invalid document id")
	ErrDuplicateID       = errors.New("document id already exists")
	ErrInvalidCharacter  = errors.New("word contains invalid characters")
	ErrEmptyMinusWord    = errors.New("minus word is empty")
	ErrDoubleMinusPrefix = errors.New("word has double minus prefix")
	ErrIndexOutOfRange   = errors.New("document index out of range")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrTimeout           = errors.New("operation timed out")
	ErrUnavailable       = errors.New("dependency unavailable")
	ErrInternal          = errors.New("internal error")

	// ErrEmptyWord marks an empty query word, as produced by a leading,
	// trailing or doubled space.
	ErrEmptyWord = fmt.Errorf("query word is empty: %w", ErrInvalidInput)
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// IsQueryError reports whether err was caused by malformed query text.
func IsQueryError(err error) bool {
	return errors.Is(err, ErrEmptyWord) ||
		errors.Is(err, ErrInvalidCharacter) ||
		errors.Is(err, ErrEmptyMinusWord) ||
		errors.Is(err, ErrDoubleMinusPrefix)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateID):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidID),
		errors.Is(err, ErrIndexOutOfRange),
		errors.Is(err, ErrInvalidInput),
		IsQueryError(err):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
