package record

import "sort"

// FieldSet is a set of field keys.
type FieldSet map[string]struct{}

func (s FieldSet) Add(field string) { s[field] = struct{}{} }

func (s FieldSet) Has(field string) bool {
	_, ok := s[field]
	return ok
}

// Sorted returns the members in lexical order.
func (s FieldSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Merger combines an incoming record into an existing one.
//
// Implementations must not mutate either argument. existing may be nil when
// the store holds no record for the key.
type Merger interface {
	Merge(existing, incoming *Record) (*Record, FieldSet)
}

// MergerFunc adapts a function to Merger.
type MergerFunc func(existing, incoming *Record) (*Record, FieldSet)

func (f MergerFunc) Merge(existing, incoming *Record) (*Record, FieldSet) {
	return f(existing, incoming)
}

// DefaultMerger is the additive field-by-field merge.
var DefaultMerger Merger = MergerFunc(Merge)

// Merge writes every field of incoming that is absent from existing or
// structurally different, and reports those field keys. Fields present only
// in existing are kept. A null overwrites a non-null value and counts as a
// change. Neither argument is modified; when nothing changed the returned
// record is existing itself.
func Merge(existing, incoming *Record) (*Record, FieldSet) {
	changed := make(FieldSet)
	if incoming == nil {
		return existing, changed
	}
	if existing == nil {
		out := incoming.Clone()
		for _, f := range out.order {
			changed.Add(f)
		}
		return out, changed
	}

	for _, f := range incoming.order {
		nv := incoming.fields[f]
		if ov, ok := existing.fields[f]; ok && ov.Equal(nv) {
			continue
		}
		changed.Add(f)
	}
	if len(changed) == 0 {
		return existing, changed
	}

	out := existing.Clone()
	for _, f := range incoming.order {
		if changed.Has(f) {
			out.Set(f, incoming.fields[f].clone())
		}
	}
	return out, changed
}

// Changes maps record keys to the field keys that changed in them. A record
// key with an empty field set means the record as a whole changed (it was
// created empty or removed).
type Changes map[string]FieldSet

// Add records a change on key, optionally narrowed to fields.
func (c Changes) Add(key string, fields ...string) {
	s, ok := c[key]
	if !ok {
		s = make(FieldSet, len(fields))
		c[key] = s
	}
	for _, f := range fields {
		s.Add(f)
	}
}

// AddSet records every field in fs as changed on key.
func (c Changes) AddSet(key string, fs FieldSet) {
	c.Add(key)
	for f := range fs {
		c[key].Add(f)
	}
}

// Merge unions o into c.
func (c Changes) Merge(o Changes) {
	for k, fs := range o {
		c.AddSet(k, fs)
	}
}

func (c Changes) Contains(key string) bool {
	_, ok := c[key]
	return ok
}

func (c Changes) Len() int { return len(c) }

// Keys returns the changed record keys in lexical order.
func (c Changes) Keys() []string {
	out := make([]string, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// FieldKeys returns "recordKey.fieldKey" for every changed field, sorted.
// Records changed as a whole contribute their bare key.
func (c Changes) FieldKeys() []string {
	var out []string
	for k, fs := range c {
		if len(fs) == 0 {
			out = append(out, k)
			continue
		}
		for f := range fs {
			out = append(out, k+"."+f)
		}
	}
	sort.Strings(out)
	return out
}
