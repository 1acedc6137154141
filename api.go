package gqlcache

import (
	"context"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/gqlcache/normalize"
	"github.com/unkn0wn-root/gqlcache/record"
	"github.com/unkn0wn-root/gqlcache/recordstore"
	"github.com/unkn0wn-root/gqlcache/selection"
)

// Data is a response tree: maps, lists and JSON scalars keyed by response
// name.
type Data = map[string]any

// Store is the normalized cache: a record table, an optimistic layer over
// it and the watchers reading through both.
//
// Reads see the base records overlaid by every live optimistic patch. All
// methods are safe for concurrent use. Writes take effect atomically with
// respect to reads; watchers are notified after the write commits.
type Store interface {
	// ReadOperation rebuilds op's response from the cache. A miss is
	// (nil, false, nil); errors are reserved for corrupt data and backend
	// failures.
	ReadOperation(ctx context.Context, op *selection.Operation) (Data, bool, error)
	// WriteOperation normalizes data for op into the base records and
	// returns the fields that changed. publish=false defers notification.
	WriteOperation(ctx context.Context, op *selection.Operation, data Data, publish bool) (record.Changes, error)

	// Fragments read and write starting at an arbitrary record key.
	ReadFragment(ctx context.Context, frag *selection.Fragment, key string) (Data, bool, error)
	WriteFragment(ctx context.Context, frag *selection.Fragment, key string, data Data, publish bool) (record.Changes, error)

	// Normalize and Denormalize expose the conversion without committing.
	// Denormalize reads the current view starting at rootKey and, unlike
	// ReadOperation, reports misses as errors matching ErrMiss.
	Normalize(op *selection.Operation, data Data) (*normalize.Normalized, error)
	Denormalize(ctx context.Context, op *selection.Operation, rootKey string) (*normalize.Denormalized, error)

	// WriteOptimisticUpdates stacks data as a patch tagged mutationID. With
	// updateCacheBeforeNetwork=false the patch is visible to reads but
	// watchers are not told until the next publish touching its keys.
	WriteOptimisticUpdates(ctx context.Context, op *selection.Operation, data Data, mutationID uuid.UUID, updateCacheBeforeNetwork bool) (record.Changes, error)
	// RollbackOptimisticUpdates drops the patch for mutationID. Unknown ids
	// are a no-op.
	RollbackOptimisticUpdates(ctx context.Context, mutationID uuid.UUID, publish bool) (record.Changes, error)

	// MergeRecords writes records directly into the base store.
	MergeRecords(ctx context.Context, recs []*record.Record, publish bool) (record.Changes, error)
	// ReadRecord returns a copy of the overlaid record for key.
	ReadRecord(ctx context.Context, key string) (*record.Record, bool, error)

	// Remove deletes key from the base store and every patch. With cascade
	// it also deletes every record reachable from key by references,
	// whether or not other records still point at them.
	Remove(ctx context.Context, key string, cascade bool) (bool, error)
	RemoveAll(ctx context.Context, keys []string, cascade bool) (int, error)

	// Watch streams op's data; see Watcher.
	Watch(ctx context.Context, op *selection.Operation) (*Watcher, error)
	// Publish notifies watchers depending on any of keys.
	Publish(keys ...string)

	// Clear drops every record and patch and notifies every watcher.
	Clear(ctx context.Context) error
	// Dump returns every table: one per record-store tier, keyed by its
	// name, plus "optimistic/<mutationID>" per live patch. record.Dump
	// renders it.
	Dump(ctx context.Context) (map[string]map[string]*record.Record, error)

	// Close cancels watchers and closes the record store.
	Close(ctx context.Context) error
}

// Options tune the store. The zero value is a usable in-memory cache keyed
// by response paths.
type Options struct {
	Records          recordstore.RecordStore    // nil => recordstore.NewMemory
	KeyResolver      normalize.KeyResolver      // nil => normalize.PathResolver
	FieldKeyResolver normalize.FieldKeyResolver // optional read-side redirects
	Merger           record.Merger              // nil => record.DefaultMerger
	Logger           Logger                     // nil => NopLogger
	Hooks            Hooks                      // nil => NopHooks
}

func New(opts Options) (Store, error) {
	return newStore(opts)
}
