package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/traumwelt-mud/traumwelt/pkg/gamedb"
)

// Failure taxonomy for the slot manager and puppet binder. All of these are
// recoverable by the caller; the command layer maps each to one user-facing
// message and never retries internally.
var (
	ErrQuotaExceeded     = errors.New("character quota exceeded")
	ErrNotFound          = errors.New("no matching character")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrAlreadyControlled = errors.New("character is already controlled by another connection")
	ErrNoSelector        = errors.New("no character selector and no last puppet")
)

// AmbiguousError reports multiple candidates for a selector that must match
// exactly one. Candidates carries every match so the caller can enumerate
// them instead of guessing.
type AmbiguousError struct {
	Selector   string
	Candidates []*gamedb.Object
}

func (e *AmbiguousError) Error() string {
	names := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		names[i] = fmt.Sprintf("%s(#%d)", c.Name, c.Ref)
	}
	return fmt.Sprintf("ambiguous match for %q: %s", e.Selector, strings.Join(names, ", "))
}
