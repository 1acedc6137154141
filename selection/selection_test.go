package selection

import (
	"errors"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const starWarsSchema = `
schema { query: Query mutation: Mutation }

enum Episode { NEWHOPE EMPIRE JEDI }

interface Character {
  id: ID!
  name: String!
  friends: [Character]
}

type Human implements Character {
  id: ID!
  name: String!
  friends: [Character]
  homePlanet: String
}

type Droid implements Character {
  id: ID!
  name: String!
  friends: [Character]
  primaryFunction: String
}

input ReviewInput { stars: Int! commentary: String }

type Review { stars: Int! commentary: String }

type Query {
  hero(episode: Episode): Character
  droid(id: ID!): Droid
}

type Mutation {
  createReview(episode: Episode, review: ReviewInput!): Review
}
`

func TestFieldKeyCanonicalArguments(t *testing.T) {
	f := &Field{Name: "search", Arguments: map[string]any{
		"text":   Variable{Name: "q"},
		"filter": map[string]any{"z": 1, "a": []any{Variable{Name: "tag"}, "x"}},
	}}
	vars := map[string]any{"q": "r2", "tag": "droid"}
	want := `search({"filter":{"a":["droid","x"],"z":1},"text":"r2"})`
	if got := FieldKey(f, vars); got != want {
		t.Fatalf("FieldKey=%s, want %s", got, want)
	}

	// same arguments spelled in a different literal order
	g := &Field{Name: "search", Arguments: map[string]any{
		"filter": map[string]any{"a": []any{"droid", "x"}, "z": 1},
		"text":   "r2",
	}}
	if got := FieldKey(g, nil); got != want {
		t.Fatalf("reordered literal keyed as %s", got)
	}
}

func TestFieldKeyOmitsUnboundVariables(t *testing.T) {
	f := &Field{Name: "hero", Arguments: map[string]any{"episode": Variable{Name: "ep"}}}
	if got := FieldKey(f, nil); got != "hero" {
		t.Fatalf("unbound: %s", got)
	}
	if got := FieldKey(f, map[string]any{"ep": "JEDI"}); got != `hero({"episode":"JEDI"})` {
		t.Fatalf("bound: %s", got)
	}
}

func fieldNames(sels []Selection) []string {
	out := []string{}
	for _, s := range sels {
		out = append(out, s.(*Field).Name)
	}
	return out
}

func TestParseWithoutSchema(t *testing.T) {
	op, err := Parse(`
		query Hero($ep: Episode = JEDI) {
			hero(episode: $ep) { id name friends { id name } }
		}`, Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if op.Name != "Hero" || op.Kind != Query || op.RootKey() != "QUERY_ROOT" {
		t.Fatalf("name=%q kind=%v root=%q", op.Name, op.Kind, op.RootKey())
	}
	if op.Variables["ep"] != "JEDI" {
		t.Fatalf("default variable not applied: %v", op.Variables)
	}

	if len(op.Selections) != 1 {
		t.Fatalf("selections=%d", len(op.Selections))
	}
	hero := op.Selections[0].(*Field)
	if got := FieldKey(hero, op.Variables); got != `hero({"episode":"JEDI"})` {
		t.Fatalf("hero key=%s", got)
	}
	if hero.NonNull {
		t.Fatalf("fields are nullable without a schema")
	}

	// __typename is added to composite sets
	if diff := cmp.Diff([]string{"__typename", "id", "name", "friends"}, fieldNames(hero.Selections)); diff != "" {
		t.Fatalf("hero selections (-want +got):\n%s", diff)
	}
}

func TestParseWithSchema(t *testing.T) {
	op, err := Parse(`
		query {
			hero(episode: EMPIRE) {
				name
				... on Droid { primaryFunction }
				...HumanBits
			}
		}
		fragment HumanBits on Human { homePlanet }`, Options{Schema: starWarsSchema, NoTypename: true})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	hero := op.Selections[0].(*Field)
	if hero.Type != "Character" {
		t.Fatalf("hero type=%q", hero.Type)
	}
	if name := hero.Selections[0].(*Field); !name.NonNull {
		t.Fatalf("name should be non-null")
	}
	if droid := hero.Selections[1].(*InlineFragment); droid.TypeCondition != "Droid" {
		t.Fatalf("droid condition=%q", droid.TypeCondition)
	}
	human := hero.Selections[2].(*InlineFragment)
	if human.TypeCondition != "Human" || human.Selections[0].(*Field).Name != "homePlanet" {
		t.Fatalf("named fragment not inlined: %+v", human)
	}
}

func TestParseValidationFailure(t *testing.T) {
	if _, err := Parse(`{ hero { nope } }`, Options{Schema: starWarsSchema}); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestParsePicksOperation(t *testing.T) {
	doc := `query A { hero { id } } mutation B { createReview(review: {stars: 5}) { stars } }`
	if _, err := Parse(doc, Options{}); !errors.Is(err, ErrNoOperation) {
		t.Fatalf("expected ErrNoOperation, got %v", err)
	}

	op, err := Parse(doc, Options{OperationName: "B"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if op.Kind != Mutation || op.RootKey() != "MUTATION_ROOT" {
		t.Fatalf("kind=%v root=%q", op.Kind, op.RootKey())
	}
	f := op.Selections[0].(*Field)
	if got := FieldKey(f, nil); got != `createReview({"review":{"stars":5}})` {
		t.Fatalf("key=%s", got)
	}
}

func TestParseFragmentAbstractPossibleTypes(t *testing.T) {
	frag, err := ParseFragment(`fragment C on Character { id name }`, "C", Options{Schema: starWarsSchema})
	if err != nil {
		t.Fatalf("ParseFragment: %v", err)
	}
	if frag.TypeCondition != "Character" {
		t.Fatalf("condition=%q", frag.TypeCondition)
	}
	possible := append([]string(nil), frag.PossibleTypes...)
	sort.Strings(possible)
	if diff := cmp.Diff([]string{"Droid", "Human"}, possible); diff != "" {
		t.Fatalf("possible types (-want +got):\n%s", diff)
	}
	if name := frag.Selections[0].(*Field).Name; name != "__typename" {
		t.Fatalf("first selection=%q", name)
	}
}

func responseNames(fields []*Field) []string {
	var out []string
	for _, f := range fields {
		out = append(out, f.ResponseName())
	}
	return out
}

func TestCollectMergesAndFilters(t *testing.T) {
	op := MustParse(`
		query($withFriends: Boolean!) {
			hero {
				name
				friends @include(if: $withFriends) { id }
				... on Droid { primaryFunction friends { name } }
				... on Human { homePlanet }
			}
		}`, Options{NoTypename: true})
	hero := op.Selections[0].(*Field)

	fields := Collect(hero.Selections, map[string]any{"withFriends": true}, "Droid", "")
	if diff := cmp.Diff([]string{"name", "friends", "primaryFunction"}, responseNames(fields)); diff != "" {
		t.Fatalf("droid fields (-want +got):\n%s", diff)
	}
	if n := len(fields[1].Selections); n != 2 {
		t.Fatalf("friends sub-selections from both occurrences: got %d", n)
	}

	fields = Collect(hero.Selections, map[string]any{"withFriends": false}, "Human", "")
	if diff := cmp.Diff([]string{"name", "homePlanet"}, responseNames(fields)); diff != "" {
		t.Fatalf("human fields (-want +got):\n%s", diff)
	}
}

func TestApplies(t *testing.T) {
	cases := []struct {
		cond     string
		possible []string
		runtime  string
		static   string
		want     bool
	}{
		{"", nil, "Droid", "", true},
		{"Character", nil, "Droid", "Character", true},
		{"Character", []string{"Droid", "Human"}, "Droid", "", true},
		{"Human", nil, "Droid", "Character", false},
		{"Human", nil, "", "Character", false},
	}
	for _, tc := range cases {
		if got := Applies(tc.cond, tc.possible, tc.runtime, tc.static); got != tc.want {
			t.Fatalf("Applies(%q, %v, %q, %q)=%v", tc.cond, tc.possible, tc.runtime, tc.static, got)
		}
	}
}
