package errors

import stderrors "errors"

// Registry error kinds. Every failing registry operation returns one of these
// (possibly wrapped with context) before it touches state.
var (
	ErrAlreadyRegistered = stderrors.New("registry: account already registered")
	ErrInvalidInput      = stderrors.New("registry: invalid input")
	ErrUnauthorized      = stderrors.New("registry: unauthorized")
	ErrNotFound          = stderrors.New("registry: not found")
	ErrClosed            = stderrors.New("registry: request closed")
	ErrUnknownProvider   = stderrors.New("registry: unknown provider")
	ErrInvalidState      = stderrors.New("registry: invalid state transition")
)

// Kind returns the sentinel that err wraps, or nil when err is not a registry
// error.
func Kind(err error) error {
	for _, kind := range []error{
		ErrAlreadyRegistered,
		ErrInvalidInput,
		ErrUnauthorized,
		ErrNotFound,
		ErrClosed,
		ErrUnknownProvider,
		ErrInvalidState,
	} {
		if stderrors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
