package record

import "testing"

func TestDumpGolden(t *testing.T) {
	root := New(QueryRoot)
	root.Set(`hero({"episode":"JEDI"})`, Ref("2001"))

	r2 := New("2001")
	r2.Set("name", String("R2-D2"))
	r2.Set("id", String("2001"))
	r2.Set("friends", List(Ref("1000")))

	luke := New("1000")
	luke.Set("id", String("1000"))
	luke.Set("name", String("Luke Skywalker"))

	got := Dump(map[string]map[string]*Record{
		"MemoryStore": {QueryRoot: root, "2001": r2, "1000": luke},
		"Empty":       {},
	})
	want := `Empty {
}
MemoryStore {
  1000 {
    id : "1000"
    name : "Luke Skywalker"
  }
  2001 {
    friends : [Ref(1000)]
    id : "2001"
    name : "R2-D2"
  }
  QUERY_ROOT {
    hero({"episode":"JEDI"}) : Ref(2001)
  }
}
`
	if got != want {
		t.Fatalf("dump mismatch\n--- got ---\n%s--- want ---\n%s", got, want)
	}
}
