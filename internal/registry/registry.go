// Package registry resolves game-server log secrets to active matches.
// The data is owned by the external match coordinator; this package only
// reads it. The storage engine behind the lookup is deliberately hidden
// behind the Lookup interface.
package registry

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a secret does not belong to any active match.
// Entries disappear when a match ends, so this is routine, not a fault.
var ErrNotFound = errors.New("no active match for secret")

// Lookup resolves an authentication secret to a match id. Implementations
// must be safe for concurrent use and cheap to call at packet rate.
type Lookup interface {
	LookupMatchBySecret(ctx context.Context, secret string) (string, error)
}
