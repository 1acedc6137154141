package normalize

import (
	"errors"
	"fmt"
)

var (
	// ErrMiss marks reads that could not be satisfied from the records.
	ErrMiss = errors.New("gqlcache: cache miss")
	// ErrCorrupt marks stored or supplied data whose shape contradicts the
	// selection (e.g. a list where an object is selected). It points at a
	// mismatch between the selection description and the data, not at a
	// runtime condition.
	ErrCorrupt = errors.New("gqlcache: data shape mismatch")
)

// MissError reports the record, and optionally the field, that was missing.
type MissError struct {
	Key   string
	Field string // empty when the whole record is missing
}

func (e *MissError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("gqlcache: record %q not found", e.Key)
	}
	return fmt.Sprintf("gqlcache: field %q missing on record %q", e.Field, e.Key)
}

func (e *MissError) Is(target error) bool { return target == ErrMiss }

// CorruptionError reports where data of the wrong shape was found.
type CorruptionError struct {
	Key    string
	Field  string
	Reason string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("gqlcache: %s at %s.%s", e.Reason, e.Key, e.Field)
}

func (e *CorruptionError) Is(target error) bool { return target == ErrCorrupt }
