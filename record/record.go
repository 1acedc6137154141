// Package record defines the flat storage unit of the normalized cache: a
// Record is a key plus an ordered map of field key -> Value. Object-typed
// fields are always stored as references to other records, never embedded,
// so the record table may contain arbitrary cycles between keys.
package record

import "sort"

// Well-known root keys.
const (
	QueryRoot        = "QUERY_ROOT"
	MutationRoot     = "MUTATION_ROOT"
	SubscriptionRoot = "SUBSCRIPTION_ROOT"
)

// TypenameField is the field key under which the runtime GraphQL type of a
// record is kept.
const TypenameField = "__typename"

// CacheKey identifies one record.
type CacheKey string

func (k CacheKey) String() string { return string(k) }

// Ref returns the storage-side encoding of k.
func (k CacheKey) Ref() Value { return Ref(string(k)) }

// Record is a key plus ordered fields.
//
// Records held by a store are owned by that store. Callers build fresh
// records with New and Set; stored records change only through a Merger.
type Record struct {
	key    string
	fields map[string]Value
	order  []string
}

// New returns an empty record for key.
func New(key string) *Record {
	return &Record{key: key, fields: make(map[string]Value)}
}

func (r *Record) Key() string { return r.key }

func (r *Record) Len() int { return len(r.order) }

// Get returns the value for a field key.
func (r *Record) Get(field string) (Value, bool) {
	v, ok := r.fields[field]
	return v, ok
}

// Set writes a field. Intended for records under construction; the new
// value replaces any previous one and keeps the original field position.
func (r *Record) Set(field string, v Value) {
	if _, ok := r.fields[field]; !ok {
		r.order = append(r.order, field)
	}
	r.fields[field] = v
}

// Fields returns field keys in insertion order.
func (r *Record) Fields() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// SortedFields returns field keys in lexical order.
func (r *Record) SortedFields() []string {
	out := r.Fields()
	sort.Strings(out)
	return out
}

// Typename returns the stored __typename, if any.
func (r *Record) Typename() (string, bool) {
	v, ok := r.fields[TypenameField]
	if !ok {
		return "", false
	}
	s, ok := v.Interface().(string)
	return s, ok
}

// References returns every key referenced from this record, in field order,
// including references nested in lists. Duplicates are kept.
func (r *Record) References() []string {
	var out []string
	for _, f := range r.order {
		out = r.fields[f].References(out)
	}
	return out
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := &Record{
		key:    r.key,
		fields: make(map[string]Value, len(r.fields)),
		order:  make([]string, len(r.order)),
	}
	copy(c.order, r.order)
	for k, v := range r.fields {
		c.fields[k] = v.clone()
	}
	return c
}

// Equal reports whether both records carry the same key and field values.
// Field order is ignored.
func (r *Record) Equal(o *Record) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.key != o.key || len(r.fields) != len(o.fields) {
		return false
	}
	for k, v := range r.fields {
		ov, ok := o.fields[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

