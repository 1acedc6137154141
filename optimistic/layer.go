// Package optimistic keeps speculative record patches on top of a base
// store. Each patch is tagged with the mutation that produced it and can be
// rolled back on its own, in any order, without disturbing the base records
// or the other patches.
//
// A Layer is not safe for concurrent use; callers guard it together with the
// base store it overlays.
package optimistic

import (
	"sort"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/gqlcache/record"
)

// Patch is the set of records written by one optimistic mutation.
type Patch struct {
	ID      uuid.UUID
	Records map[string]*record.Record
}

// Layer is an ordered stack of patches. Later patches win field by field.
type Layer struct {
	merger  record.Merger
	patches []*Patch
}

// New returns an empty layer. A nil merger uses record.DefaultMerger.
func New(m record.Merger) *Layer {
	if m == nil {
		m = record.DefaultMerger
	}
	return &Layer{merger: m}
}

func (l *Layer) find(id uuid.UUID) int {
	for i, p := range l.patches {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// Push stacks records under id. Pushing an id that is already live merges
// the records into that patch in place; it keeps its position in the stack.
// The returned changes list every field the patch now overrides for the
// pushed records.
func (l *Layer) Push(id uuid.UUID, recs []*record.Record) record.Changes {
	var p *Patch
	if i := l.find(id); i >= 0 {
		p = l.patches[i]
	} else {
		p = &Patch{ID: id, Records: make(map[string]*record.Record, len(recs))}
		l.patches = append(l.patches, p)
	}

	changes := make(record.Changes)
	for _, in := range recs {
		if in == nil {
			continue
		}
		merged, _ := l.merger.Merge(p.Records[in.Key()], in)
		p.Records[in.Key()] = merged
		changes.Add(in.Key(), in.Fields()...)
	}
	return changes
}

// Rollback drops the patch for id wherever it sits in the stack and returns
// the fields it overrode. The bool is false when id is not live.
func (l *Layer) Rollback(id uuid.UUID) (record.Changes, bool) {
	i := l.find(id)
	if i < 0 {
		return nil, false
	}
	p := l.patches[i]
	l.patches = append(l.patches[:i], l.patches[i+1:]...)

	changes := make(record.Changes, len(p.Records))
	for k, r := range p.Records {
		changes.Add(k, r.Fields()...)
	}
	return changes, true
}

// Overlay returns base with every patch applied in stack order. base may be
// nil; the bool reports whether any record exists for key at all. The
// result may be base itself and must be treated as read-only.
func (l *Layer) Overlay(key string, base *record.Record) (*record.Record, bool) {
	out := base
	for _, p := range l.patches {
		if r, ok := p.Records[key]; ok {
			out, _ = l.merger.Merge(out, r)
		}
	}
	return out, out != nil
}

// Has reports whether any patch holds key.
func (l *Layer) Has(key string) bool {
	for _, p := range l.patches {
		if _, ok := p.Records[key]; ok {
			return true
		}
	}
	return false
}

// Keys returns every key held by some patch, sorted.
func (l *Layer) Keys() []string {
	seen := make(map[string]struct{})
	for _, p := range l.patches {
		for k := range p.Records {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Patches returns the live mutation ids in stack order.
func (l *Layer) Patches() []uuid.UUID {
	out := make([]uuid.UUID, len(l.patches))
	for i, p := range l.patches {
		out[i] = p.ID
	}
	return out
}

func (l *Layer) Len() int { return len(l.patches) }

// Remove drops key from every patch. Emptied patches stay live so a later
// rollback of their id still succeeds.
func (l *Layer) Remove(key string) bool {
	removed := false
	for _, p := range l.patches {
		if _, ok := p.Records[key]; ok {
			delete(p.Records, key)
			removed = true
		}
	}
	return removed
}

// Clear drops every patch and returns the keys they held.
func (l *Layer) Clear() record.Changes {
	changes := make(record.Changes)
	for _, p := range l.patches {
		for k := range p.Records {
			changes.Add(k)
		}
	}
	l.patches = nil
	return changes
}

// Dump returns one table per live patch, named "optimistic/<id>".
func (l *Layer) Dump() map[string]map[string]*record.Record {
	out := make(map[string]map[string]*record.Record, len(l.patches))
	for _, p := range l.patches {
		recs := make(map[string]*record.Record, len(p.Records))
		for k, r := range p.Records {
			recs[k] = r.Clone()
		}
		out["optimistic/"+p.ID.String()] = recs
	}
	return out
}
