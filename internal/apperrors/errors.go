// Package apperrors classifies pipeline failures so collaborators can map
// them to transport-level responses.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type Category string

const (
	// CategoryConfiguration marks a malformed plugin registration, config value or bundled profile.
	CategoryConfiguration Category = "configuration"
	// CategoryUnsupportedFormat marks a mime type or extension no plugin handles.
	CategoryUnsupportedFormat Category = "unsupported_format"
	// CategoryCorruptInput marks bytes a decoder explicitly rejected.
	CategoryCorruptInput Category = "corrupt_input"
	// CategoryUnknownTransformation marks a transformation name that was never registered.
	CategoryUnknownTransformation Category = "unknown_transformation"
	// CategoryInvalidParams marks transformation params that cannot be used.
	CategoryInvalidParams Category = "invalid_params"
	// CategoryTransformation marks a failure raised while a transformation ran.
	CategoryTransformation Category = "transformation"
	// CategoryPluginContract marks a plugin that returned a malformed result.
	CategoryPluginContract Category = "plugin_contract"
)

type Error struct {
	Category Category
	Op       string
	Err      error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("[%s] %v", e.Category, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// StatusCode reports the HTTP status a request handler should answer with.
func (e *Error) StatusCode() int {
	switch e.Category {
	case CategoryUnsupportedFormat, CategoryCorruptInput:
		return http.StatusUnsupportedMediaType
	case CategoryUnknownTransformation, CategoryInvalidParams:
		return http.StatusBadRequest
	case CategoryTransformation:
		// A transformation rejecting its own params is still the client's fault.
		var inner *Error
		if errors.As(e.Err, &inner) {
			return inner.StatusCode()
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func New(category Category, op string, err error) *Error {
	return &Error{Category: category, Op: op, Err: err}
}

func Errorf(category Category, op, format string, args ...any) *Error {
	return &Error{Category: category, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap returns nil when err is nil.
func Wrap(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	return New(category, op, err)
}

func IsCategory(err error, category Category) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Category == category
	}
	return false
}

// CategoryOf returns the outermost category in err's chain.
func CategoryOf(err error) (Category, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Category, true
	}
	return "", false
}

// StatusCode falls back to 500 for uncategorized errors.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode()
	}
	return http.StatusInternalServerError
}

// IsClientError reports whether retrying err with the same input can never succeed.
func IsClientError(err error) bool {
	status := StatusCode(err)
	return status >= 400 && status < 500
}
