package cache

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrBackendUnavailable indicates a connection to the backing store could
// not be established. It is the only failure a backend surfaces as an
// error; test for it with errors.Is. Everything else — constraint
// violations, malformed payloads, missing rows — is absorbed and
// reflected through each operation's documented default return value.
var ErrBackendUnavailable = errors.New("cache backend unavailable")

type unavailableError struct {
	variant string
	cause   error
}

func (e *unavailableError) Error() string {
	return fmt.Sprintf("%s cache could not connect to database: %v", e.variant, e.cause)
}

func (e *unavailableError) Unwrap() error { return e.cause }

func (e *unavailableError) Is(target error) bool { return target == ErrBackendUnavailable }

// unavailable wraps a connection failure so callers can both inspect the
// underlying cause and match ErrBackendUnavailable.
func unavailable(err error, variant string) error {
	return &unavailableError{variant: variant, cause: err}
}
