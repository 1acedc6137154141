package gqlcache

import (
	"errors"
	"fmt"
	"strings"

	"github.com/unkn0wn-root/gqlcache/normalize"
	"github.com/unkn0wn-root/gqlcache/recordstore"
)

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("gqlcache: store closed")

	// ErrMiss matches errors from Denormalize when data is not cached.
	// Store reads report misses as ok=false instead.
	ErrMiss = normalize.ErrMiss

	// ErrCorrupt matches errors raised when data does not fit the selection
	// it is read or written with.
	ErrCorrupt = normalize.ErrCorrupt

	// ErrStoreClosed is returned by a record store after its Close.
	ErrStoreClosed = recordstore.ErrClosed
)

type (
	MissError       = normalize.MissError
	CorruptionError = normalize.CorruptionError
)

// RemoveError reports the records a remove could not delete from the
// record store. Records that were deleted stay deleted.
type RemoveError struct {
	Keys []string
	Errs []error
}

func (e *RemoveError) Error() string {
	switch len(e.Keys) {
	case 0:
		return "remove: unknown error"
	case 1:
		return fmt.Sprintf("remove %q failed: %v", e.Keys[0], e.Errs[0])
	default:
		return fmt.Sprintf("remove failed for %d records (%s): %v",
			len(e.Keys), strings.Join(e.Keys, ", "), errors.Join(e.Errs...))
	}
}

func (e *RemoveError) Unwrap() []error {
	return e.Errs
}
