package record

import (
	"reflect"
	"testing"
)

func rec(key string, kv ...any) *Record {
	r := New(key)
	for i := 0; i < len(kv); i += 2 {
		r.Set(kv[i].(string), kv[i+1].(Value))
	}
	return r
}

// TestMergeDisjointIsUnion: merging two records with disjoint fields into an
// empty base yields the union.
func TestMergeDisjointIsUnion(t *testing.T) {
	a := rec("k", "field1", String("value1"))
	b := rec("k", "field2", String("value2"))

	m, ch := Merge(nil, a)
	if len(ch) != 1 || !ch.Has("field1") {
		t.Fatalf("first merge changed=%v", ch.Sorted())
	}
	m, ch = Merge(m, b)
	if got := ch.Sorted(); !reflect.DeepEqual(got, []string{"field2"}) {
		t.Fatalf("second merge changed=%v", got)
	}
	if m.Len() != 2 {
		t.Fatalf("merged record has %d fields, want 2", m.Len())
	}
	if v, _ := m.Get("field1"); !v.Equal(String("value1")) {
		t.Fatalf("field1=%v", v)
	}
	if v, _ := m.Get("field2"); !v.Equal(String("value2")) {
		t.Fatalf("field2=%v", v)
	}
}

// TestMergeIdempotent: merging the same record twice reports nothing the
// second time and returns the existing record untouched.
func TestMergeIdempotent(t *testing.T) {
	in := rec("2001", "id", String("2001"), "friends", List(Ref("1000"), Ref("1002")))
	first, ch := Merge(nil, in)
	if len(ch) != 2 {
		t.Fatalf("first merge changed=%v", ch.Sorted())
	}
	second, ch := Merge(first, in.Clone())
	if len(ch) != 0 {
		t.Fatalf("idempotent merge changed=%v", ch.Sorted())
	}
	if second != first {
		t.Fatalf("no-op merge should return the existing record")
	}
}

// TestMergeNullIsValue: null overwrites and is reported, never deletes.
func TestMergeNullIsValue(t *testing.T) {
	base := rec("k", "field1", String("value1"), "field2", String("x"))
	m, ch := Merge(base, rec("k", "field2", Null()))
	if !ch.Has("field2") || len(ch) != 1 {
		t.Fatalf("changed=%v", ch.Sorted())
	}
	v, ok := m.Get("field2")
	if !ok || !v.IsNull() {
		t.Fatalf("field2 should be present and null, got %v ok=%v", v, ok)
	}
	if _, ok := m.Get("field1"); !ok {
		t.Fatalf("field1 lost")
	}
	// existing must not be mutated
	if v, _ := base.Get("field2"); !v.Equal(String("x")) {
		t.Fatalf("base mutated: %v", v)
	}
}

func TestMergeNestedListDifference(t *testing.T) {
	base := rec("k", "grid", List(List(Int(1), Int(2)), List(Int(3))))
	_, ch := Merge(base, rec("k", "grid", List(List(Int(1), Int(2)), List(Int(3)))))
	if len(ch) != 0 {
		t.Fatalf("equal nested lists reported change: %v", ch.Sorted())
	}
	_, ch = Merge(base, rec("k", "grid", List(List(Int(1), Int(2)), List(Int(4)))))
	if !ch.Has("grid") {
		t.Fatalf("nested list difference not reported")
	}
}

func TestMergeKindChange(t *testing.T) {
	base := rec("k", "hero", Ref("2001"))
	_, ch := Merge(base, rec("k", "hero", String("2001")))
	if !ch.Has("hero") {
		t.Fatalf("reference -> scalar must be a change")
	}
}

func TestChangesFieldKeys(t *testing.T) {
	c := make(Changes)
	c.Add("2001", "name")
	c.Add("QUERY_ROOT.hero", "id", "name")
	c.Add("gone")

	o := make(Changes)
	o.Add("2001", "id")
	c.Merge(o)

	want := []string{"2001.id", "2001.name", "QUERY_ROOT.hero.id", "QUERY_ROOT.hero.name", "gone"}
	if got := c.FieldKeys(); !reflect.DeepEqual(got, want) {
		t.Fatalf("FieldKeys=%v want %v", got, want)
	}
	if got := c.Keys(); !reflect.DeepEqual(got, []string{"2001", "QUERY_ROOT.hero", "gone"}) {
		t.Fatalf("Keys=%v", got)
	}
}

func TestCustomMergerFunc(t *testing.T) {
	// appends list items instead of replacing them
	appendLists := MergerFunc(func(existing, incoming *Record) (*Record, FieldSet) {
		if existing == nil {
			return Merge(nil, incoming)
		}
		patched := incoming.Clone()
		for _, f := range incoming.Fields() {
			nv, _ := incoming.Get(f)
			ov, ok := existing.Get(f)
			if ok && ov.IsList() && nv.IsList() {
				patched.Set(f, List(append(append([]Value{}, ov.Elems()...), nv.Elems()...)...))
			}
		}
		return Merge(existing, patched)
	})

	base := rec("QUERY_ROOT", "feed", List(Ref("p1")))
	m, ch := appendLists.Merge(base, rec("QUERY_ROOT", "feed", List(Ref("p2"))))
	if !ch.Has("feed") {
		t.Fatalf("feed not reported")
	}
	if v, _ := m.Get("feed"); v.String() != "[Ref(p1), Ref(p2)]" {
		t.Fatalf("feed=%s", v)
	}
}
