package normalize

import (
	"fmt"
	"strconv"

	"github.com/unkn0wn-root/gqlcache/record"
)

// KeyContext is what a KeyResolver sees for one composite value.
type KeyContext struct {
	// ParentType is the runtime (or static) type of the object holding the field.
	ParentType string
	FieldName  string
	// Arguments are fully resolved (variables substituted).
	Arguments map[string]any
	// TypeName is the candidate object's __typename, or the field's static
	// type when the data carries none.
	TypeName string
	Object   map[string]any
}

// KeyResolver maps a would-be-embedded object to a record key. Returning
// false stores the object as an anonymous record keyed by its path.
//
// Implementations must be pure and stable: the same logical entity must map
// to the same key on every call. The cache does not detect violations.
type KeyResolver interface {
	ResolveKey(KeyContext) (record.CacheKey, bool)
}

// KeyResolverFunc adapts a function to KeyResolver.
type KeyResolverFunc func(KeyContext) (record.CacheKey, bool)

func (f KeyResolverFunc) ResolveKey(c KeyContext) (record.CacheKey, bool) { return f(c) }

// PathResolver never resolves; every object is keyed by its path.
var PathResolver KeyResolver = KeyResolverFunc(func(KeyContext) (record.CacheKey, bool) { return "", false })

// IDResolver keys objects by the value of idField ("id" when empty). Objects
// without a usable id fall back to path keys.
func IDResolver(idField string) KeyResolver {
	if idField == "" {
		idField = "id"
	}
	return KeyResolverFunc(func(c KeyContext) (record.CacheKey, bool) {
		id, ok := idString(c.Object[idField])
		if !ok {
			return "", false
		}
		return record.CacheKey(id), true
	})
}

// TypeIDResolver keys objects as "Type:id" so ids only need to be unique
// per type. Objects without a type name or id fall back to path keys.
func TypeIDResolver(idField string) KeyResolver {
	if idField == "" {
		idField = "id"
	}
	return KeyResolverFunc(func(c KeyContext) (record.CacheKey, bool) {
		id, ok := idString(c.Object[idField])
		if !ok || c.TypeName == "" {
			return "", false
		}
		return record.CacheKey(c.TypeName + ":" + id), true
	})
}

func idString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, t != ""
	case int, int32, int64, uint, uint32, uint64:
		return fmt.Sprint(t), true
	case float64:
		// JSON-decoded ids arrive as float64; key 1e6 as "1000000" like
		// the stored id field renders.
		return strconv.FormatFloat(t, 'f', -1, 64), true
	default:
		return "", false
	}
}

// FieldKeyResolver resolves a field to a record key from its arguments
// alone, letting reads find entities written by other operations, e.g.
// droid(id: "2001") -> "2001" even though no droid(...) field was ever
// stored on QUERY_ROOT.
type FieldKeyResolver interface {
	ResolveFieldKey(parentType, fieldName string, args map[string]any) (record.CacheKey, bool)
}

// FieldKeyResolverFunc adapts a function to FieldKeyResolver.
type FieldKeyResolverFunc func(parentType, fieldName string, args map[string]any) (record.CacheKey, bool)

func (f FieldKeyResolverFunc) ResolveFieldKey(parentType, fieldName string, args map[string]any) (record.CacheKey, bool) {
	return f(parentType, fieldName, args)
}

// ArgumentResolver resolves any field carrying an argument named arg to the
// key given by that argument's value.
func ArgumentResolver(arg string) FieldKeyResolver {
	return FieldKeyResolverFunc(func(_, _ string, args map[string]any) (record.CacheKey, bool) {
		id, ok := idString(args[arg])
		if !ok {
			return "", false
		}
		return record.CacheKey(id), true
	})
}
