package store

import (
	"net/http"
)

// Kind classifies a storage failure.
type Kind uint8

// Storage failure kinds.
const (
	KindNotFound Kind = iota + 1
	KindExists
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindExists:
		return "already exists"
	default:
		return "storage error"
	}
}

// Error reports a storage failure, optionally for a specific key or row.
// errors.Is matches on Kind alone, so keyed errors match the sentinels.
type Error struct {
	Kind Kind
	Key  string
}

func (e *Error) Error() string {
	if e.Key == "" {
		return e.Kind.String()
	}
	return e.Key + ": " + e.Kind.String()
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// HTTPCode returns the HTTP status the failure maps to.
func (e *Error) HTTPCode() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Sentinels for errors.Is.
var (
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrAlreadyExists = &Error{Kind: KindExists}
)

// NotFound reports a missing key.
func NotFound(key string) error {
	return &Error{Kind: KindNotFound, Key: key}
}

// Exists reports a key that Create refused to overwrite.
func Exists(key string) error {
	return &Error{Kind: KindExists, Key: key}
}
