package contents

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is returned when the path does not exist
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the server refuses access
	ErrForbidden = errors.New("forbidden")
	// ErrConflict is returned when the destination already exists
	ErrConflict = errors.New("already exists")
	// ErrChunkingUnsupported is returned by Save for a chunked model on a
	// backend that cannot assemble chunks
	ErrChunkingUnsupported = errors.New("chunked save not supported")
)

// StatusError is a failed content store request.
type StatusError struct {
	Op      string // "get", "save", "rename", ...
	Path    string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d %s: %s", e.Op, e.Path, e.Code, http.StatusText(e.Code), e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Op, e.Path, e.Code, http.StatusText(e.Code))
}

// StatusCode returns the HTTP status of the failure.
func (e *StatusError) StatusCode() int {
	return e.Code
}

// Unwrap maps well-known statuses onto the package sentinels.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusForbidden, http.StatusUnauthorized:
		return ErrForbidden
	case http.StatusConflict:
		return ErrConflict
	}
	return nil
}

// IsNotFound reports whether err means the path does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsForbidden reports whether err is an authorization failure.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsConflict reports whether err means the destination already exists.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
