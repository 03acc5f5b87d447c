package pokeapi

import (
	"errors"
	"fmt"
)

// Sentinel errors for PokeAPI operations.
var (
	ErrNotFound    = errors.New("pokeapi: not found")
	ErrRateLimited = errors.New("pokeapi: rate limited by server")
	ErrBadRequest  = errors.New("pokeapi: bad request")
	ErrServer      = errors.New("pokeapi: server error")
	ErrDecode      = errors.New("pokeapi: malformed response")
	ErrTooLarge    = errors.New("pokeapi: response too large")
)

// Error wraps an underlying error with operation context.
type Error struct {
	Op       string // Operation: "listPokemon", "getPokemon", "getType", "listTypes"
	Resource string // Path or key, if applicable
	Err      error
}

func (e *Error) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("pokeapi %s [%s]: %v", e.Op, e.Resource, e.Err)
	}
	return fmt.Sprintf("pokeapi %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// wrapError creates an Error with context.
func wrapError(op, resource string, err error) error {
	return &Error{
		Op:       op,
		Resource: resource,
		Err:      err,
	}
}

// IsNotFound reports whether err means the resource does not exist upstream.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsNetworkFailure reports whether err is a failed remote call: a non-2xx
// status other than 404, a transport error or an undecodable body. Not-found
// and caller cancellation are not network failures.
func IsNetworkFailure(err error) bool {
	if err == nil || IsNotFound(err) {
		return false
	}
	var apiErr *Error
	return errors.As(err, &apiErr)
}
