// Package recordstore holds the base record table of the cache.
//
// A RecordStore maps record keys to records and applies incoming records
// through a record.Merger. Memory is the reference implementation;
// ProviderStore persists records in any provider.Provider; Chain layers
// several stores into one read-through table.
//
// Records returned by Load are owned by the store and must be treated as
// read-only. Stores never modify a record in place: Merge replaces it.
package recordstore

import (
	"context"
	"errors"

	"github.com/unkn0wn-root/gqlcache/record"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("gqlcache: record store closed")

// RecordStore is the base table behind the cache façade.
// Implementations must be safe for concurrent use.
type RecordStore interface {
	// Name labels the store in dumps.
	Name() string

	// Load returns (record, true, nil) on hit; (nil, false, nil) on miss.
	Load(ctx context.Context, key string) (*record.Record, bool, error)

	// LoadMany returns the records found among keys. Missing keys are absent
	// from the result.
	LoadMany(ctx context.Context, keys []string) (map[string]*record.Record, error)

	// Merge merges each record into the stored one with m and returns the
	// changed field keys per record key. A record that did not exist before
	// is reported even when it carries no fields.
	Merge(ctx context.Context, recs []*record.Record, m record.Merger) (record.Changes, error)

	// Remove deletes key. The bool reports whether it existed.
	Remove(ctx context.Context, key string) (bool, error)

	// Dump returns every stored record.
	Dump(ctx context.Context) (map[string]*record.Record, error)

	// Clear deletes every record.
	Clear(ctx context.Context) error

	Close(ctx context.Context) error
}

// MergerAware is implemented by stores that merge outside Merge calls, such
// as a Chain promoting read hits. The owning cache hands them its merger.
type MergerAware interface {
	UseMerger(m record.Merger)
}

// Tiered is implemented by stores composed of other stores so dumps can
// show each tier separately.
type Tiered interface {
	Tiers() []RecordStore
}

// Events receives store-level incidents. Implementations must be cheap and
// non-blocking. The root package's Hooks satisfy it.
type Events interface {
	// CorruptRecord reports an entry deleted on read.
	// reason ∈ {"corrupt", "key_mismatch", "codec_mismatch", "value_decode"}
	CorruptRecord(storageKey, reason string)

	// ProviderSetRejected reports a write refused by the provider under pressure.
	ProviderSetRejected(storageKey string)
}

type nopEvents struct{}

func (nopEvents) CorruptRecord(string, string) {}
func (nopEvents) ProviderSetRejected(string)   {}

// mergeOne applies one incoming record against existing and reports the
// change into c. It returns the record to store and whether a write is
// needed.
func mergeOne(c record.Changes, m record.Merger, existing, in *record.Record) (*record.Record, bool) {
	merged, fs := m.Merge(existing, in)
	if existing == nil {
		c.AddSet(in.Key(), fs)
		return merged, true
	}
	if len(fs) == 0 {
		return existing, false
	}
	c.AddSet(in.Key(), fs)
	return merged, true
}
