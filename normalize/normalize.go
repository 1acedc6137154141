// Package normalize converts between nested response data and the flat
// record table: Normalize splits a response into records linked by
// references, Denormalize rebuilds the response shape by following them.
//
// Both walk the data together with its selection description, so the same
// selections that wrote a tree can read it back.
package normalize

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/unkn0wn-root/gqlcache/record"
	"github.com/unkn0wn-root/gqlcache/selection"
)

// Normalized is the outcome of Normalize.
type Normalized struct {
	RootKey string
	Records map[string]*record.Record
}

// List returns the records ordered by key.
func (n *Normalized) List() []*record.Record {
	out := make([]*record.Record, 0, len(n.Records))
	for _, k := range sortedKeys(n.Records) {
		out = append(out, n.Records[k])
	}
	return out
}

// Normalize walks data under sels and returns the records it produces.
// Root fields attach to rootKey. Composite values become records keyed by
// resolver, or by path (parentKey.fieldKey, with .index per list level) when
// the resolver declines; the parent holds a reference to them. Response keys
// absent from data are not written; explicit nulls are.
func Normalize(data map[string]any, rootKey, rootType string, sels []selection.Selection, vars map[string]any, resolver KeyResolver) (*Normalized, error) {
	if resolver == nil {
		resolver = PathResolver
	}
	n := &normalizer{
		vars:     vars,
		resolver: resolver,
		records:  make(map[string]*record.Record),
	}
	if err := n.object(rootKey, rootType, data, sels); err != nil {
		return nil, err
	}
	return &Normalized{RootKey: rootKey, Records: n.records}, nil
}

type normalizer struct {
	vars     map[string]any
	resolver KeyResolver
	records  map[string]*record.Record
}

func (n *normalizer) object(key, static string, obj map[string]any, sels []selection.Selection) error {
	runtime, _ := obj[record.TypenameField].(string)
	parentType := runtime
	if parentType == "" {
		parentType = static
	}

	rec := record.New(key)
	if runtime != "" {
		rec.Set(record.TypenameField, record.String(runtime))
	}
	for _, f := range selection.Collect(sels, n.vars, runtime, static) {
		raw, ok := obj[f.ResponseName()]
		if !ok {
			continue
		}
		fk := selection.FieldKey(f, n.vars)
		v, err := n.value(key, parentType, f, fk, key+"."+fk, raw)
		if err != nil {
			return err
		}
		rec.Set(fk, v)
	}

	if prev, ok := n.records[key]; ok {
		rec, _ = record.Merge(prev, rec)
	}
	n.records[key] = rec
	return nil
}

func (n *normalizer) value(parentKey, parentType string, f *selection.Field, fk, path string, raw any) (record.Value, error) {
	if raw == nil {
		return record.Null(), nil
	}
	if !f.Composite() {
		return n.scalar(parentKey, fk, raw)
	}

	switch t := raw.(type) {
	case map[string]any:
		key := path
		typeName, _ := t[record.TypenameField].(string)
		if typeName == "" {
			typeName = f.Type
		}
		if k, ok := n.resolver.ResolveKey(KeyContext{
			ParentType: parentType,
			FieldName:  f.Name,
			Arguments:  selection.ResolveArguments(f, n.vars),
			TypeName:   typeName,
			Object:     t,
		}); ok {
			key = string(k)
		}
		if err := n.object(key, f.Type, t, f.Selections); err != nil {
			return record.Value{}, err
		}
		return record.Ref(key), nil
	}

	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.Slice {
		return record.Value{}, &CorruptionError{Key: parentKey, Field: fk, Reason: fmt.Sprintf("expected object or list, got %T", raw)}
	}
	elems := make([]record.Value, rv.Len())
	for i := range elems {
		v, err := n.value(parentKey, parentType, f, fk, path+"."+strconv.Itoa(i), rv.Index(i).Interface())
		if err != nil {
			return record.Value{}, err
		}
		elems[i] = v
	}
	return record.List(elems...), nil
}

func (n *normalizer) scalar(parentKey, fk string, raw any) (record.Value, error) {
	if rv := reflect.ValueOf(raw); rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
		elems := make([]record.Value, rv.Len())
		for i := range elems {
			e := rv.Index(i).Interface()
			if e == nil {
				elems[i] = record.Null()
				continue
			}
			v, err := n.scalar(parentKey, fk, e)
			if err != nil {
				return record.Value{}, err
			}
			elems[i] = v
		}
		return record.List(elems...), nil
	}
	v, err := record.Scalar(raw)
	if err != nil {
		return record.Value{}, &CorruptionError{Key: parentKey, Field: fk, Reason: err.Error()}
	}
	return v, nil
}
