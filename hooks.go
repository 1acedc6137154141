package gqlcache

import (
	"github.com/google/uuid"

	"github.com/unkn0wn-root/gqlcache/recordstore"
)

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The store calls them on hot paths, some while holding its lock.
//
// Hooks also satisfy recordstore.Events, so the same value can be handed to
// a ProviderStore.
type Hooks interface {
	// A committed write changed records.
	RecordsMerged(records, fields int)

	// An optimistic patch was pushed or rolled back.
	OptimisticPushed(mutationID uuid.UUID, records int)
	OptimisticRolledBack(mutationID uuid.UUID, records int)

	// Records were removed, directly or by cascade.
	RecordsRemoved(count int, cascade bool)

	// A read could not be satisfied from the cache.
	// reason ∈ {"record", "field"}
	CacheMiss(operation, reason string)

	// An entry was deleted by the record store on read.
	// reason ∈ {"corrupt", "key_mismatch", "codec_mismatch", "value_decode"}
	CorruptRecord(storageKey, reason string)

	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(storageKey string)

	// A watcher re-read its operation after a publish.
	WatcherRefreshed(operation string, changed bool)

	// The record store failed an operation.
	// op ∈ {"read", "write", "remove", "dump", "clear", "close"}
	BackendError(op string, err error)
}

var _ recordstore.Events = Hooks(nil)

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) RecordsMerged(int, int)              {}
func (NopHooks) OptimisticPushed(uuid.UUID, int)     {}
func (NopHooks) OptimisticRolledBack(uuid.UUID, int) {}
func (NopHooks) RecordsRemoved(int, bool)            {}
func (NopHooks) CacheMiss(string, string)            {}
func (NopHooks) CorruptRecord(string, string)        {}
func (NopHooks) ProviderSetRejected(string)          {}
func (NopHooks) WatcherRefreshed(string, bool)       {}
func (NopHooks) BackendError(string, error)          {}
