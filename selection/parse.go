package selection

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// ErrNoOperation is returned when a document has no operation matching the
// requested name, or several operations and no name.
var ErrNoOperation = errors.New("selection: operation not found")

// Options tune Parse and ParseFragment.
type Options struct {
	// Schema is optional SDL. When set, operations are validated against it
	// and fields carry their static type and nullability; possible types of
	// abstract fragment conditions are filled in.
	Schema string
	// OperationName picks an operation from a multi-operation document.
	OperationName string
	// Variables are bound to the operation. Defaults declared in the
	// document fill in anything missing.
	Variables map[string]any
	// NoTypename disables adding __typename to composite selection sets.
	NoTypename bool
}

// Parse builds an Operation from GraphQL text. Named fragments are inlined.
func Parse(query string, opts Options) (*Operation, error) {
	b, doc, err := load(query, opts)
	if err != nil {
		return nil, err
	}
	if opts.Schema != "" {
		if _, errs := gqlparser.LoadQuery(b.schema, query); len(errs) > 0 {
			return nil, fmt.Errorf("selection: validate: %w", errs)
		}
	}

	op, err := pickOperation(doc, opts.OperationName)
	if err != nil {
		return nil, err
	}

	out := &Operation{Name: op.Name, Variables: boundVariables(op.VariableDefinitions, opts.Variables)}
	switch op.Operation {
	case ast.Mutation:
		out.Kind = Mutation
	case ast.Subscription:
		out.Kind = Subscription
	default:
		out.Kind = Query
	}

	out.Selections, err = b.selectionSet(op.SelectionSet, b.rootType(out), false)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MustParse is like Parse but panics on error. Handy for package-level
// operations in tests and examples.
func MustParse(query string, opts Options) *Operation {
	op, err := Parse(query, opts)
	if err != nil {
		panic(err)
	}
	return op
}

// ParseFragment builds the named fragment from a document holding fragment
// definitions. The document is not validated.
func ParseFragment(doc, name string, opts Options) (*Fragment, error) {
	b, qd, err := load(doc, opts)
	if err != nil {
		return nil, err
	}
	def := qd.Fragments.ForName(name)
	if def == nil {
		return nil, fmt.Errorf("selection: fragment %q not found", name)
	}
	sels, err := b.selectionSet(def.SelectionSet, def.TypeCondition, true)
	if err != nil {
		return nil, err
	}
	return &Fragment{
		Name:          def.Name,
		TypeCondition: def.TypeCondition,
		PossibleTypes: b.possibleTypes(def.TypeCondition),
		Variables:     opts.Variables,
		Selections:    sels,
	}, nil
}

func load(text string, opts Options) (*builder, *ast.QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Name: "document.graphql", Input: text})
	if err != nil {
		return nil, nil, fmt.Errorf("selection: parse: %w", err)
	}
	b := &builder{doc: doc, typename: !opts.NoTypename, visiting: make(map[string]bool)}
	if opts.Schema != "" {
		schema, err := gqlparser.LoadSchema(&ast.Source{Name: "schema.graphql", Input: opts.Schema})
		if err != nil {
			return nil, nil, fmt.Errorf("selection: schema: %w", err)
		}
		b.schema = schema
	}
	return b, doc, nil
}

func pickOperation(doc *ast.QueryDocument, name string) (*ast.OperationDefinition, error) {
	if name == "" {
		if len(doc.Operations) != 1 {
			return nil, fmt.Errorf("%w: document has %d operations", ErrNoOperation, len(doc.Operations))
		}
		return doc.Operations[0], nil
	}
	for _, op := range doc.Operations {
		if op.Name == name {
			return op, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNoOperation, name)
}

func boundVariables(defs ast.VariableDefinitionList, vars map[string]any) map[string]any {
	out := make(map[string]any, len(vars)+len(defs))
	for k, v := range vars {
		out[k] = v
	}
	for _, d := range defs {
		if _, ok := out[d.Variable]; ok || d.DefaultValue == nil {
			continue
		}
		if v, err := convertValue(d.DefaultValue); err == nil {
			out[d.Variable] = v
		}
	}
	return out
}

type builder struct {
	doc      *ast.QueryDocument
	schema   *ast.Schema
	typename bool
	visiting map[string]bool
}

func (b *builder) selectionSet(set ast.SelectionSet, parentType string, composite bool) ([]Selection, error) {
	out := make([]Selection, 0, len(set)+1)
	hasTypename := false
	for _, s := range set {
		switch t := s.(type) {
		case *ast.Field:
			f, err := b.field(t, parentType)
			if err != nil {
				return nil, err
			}
			if f.Name == "__typename" && f.Alias == "" {
				hasTypename = true
			}
			out = append(out, f)
		case *ast.InlineFragment:
			cond := t.TypeCondition
			if cond == "" {
				cond = parentType
			}
			sels, err := b.selectionSet(t.SelectionSet, cond, false)
			if err != nil {
				return nil, err
			}
			conds, err := conditions(t.Directives)
			if err != nil {
				return nil, err
			}
			out = append(out, &InlineFragment{
				TypeCondition: cond,
				PossibleTypes: b.possibleTypes(cond),
				Selections:    sels,
				Conditions:    conds,
			})
		case *ast.FragmentSpread:
			def := b.doc.Fragments.ForName(t.Name)
			if def == nil {
				return nil, fmt.Errorf("selection: unknown fragment %q", t.Name)
			}
			if b.visiting[t.Name] {
				return nil, fmt.Errorf("selection: fragment %q spreads itself", t.Name)
			}
			b.visiting[t.Name] = true
			sels, err := b.selectionSet(def.SelectionSet, def.TypeCondition, false)
			delete(b.visiting, t.Name)
			if err != nil {
				return nil, err
			}
			conds, err := conditions(t.Directives)
			if err != nil {
				return nil, err
			}
			out = append(out, &InlineFragment{
				TypeCondition: def.TypeCondition,
				PossibleTypes: b.possibleTypes(def.TypeCondition),
				Selections:    sels,
				Conditions:    conds,
			})
		}
	}
	if composite && b.typename && !hasTypename {
		out = append([]Selection{&Field{Name: "__typename", Type: "String"}}, out...)
	}
	return out, nil
}

func (b *builder) rootType(op *Operation) string {
	if b.schema != nil {
		var def *ast.Definition
		switch op.Kind {
		case Mutation:
			def = b.schema.Mutation
		case Subscription:
			def = b.schema.Subscription
		default:
			def = b.schema.Query
		}
		if def != nil {
			return def.Name
		}
	}
	return op.RootType()
}

func (b *builder) field(f *ast.Field, parentType string) (*Field, error) {
	out := &Field{Name: f.Name}
	if f.Alias != "" && f.Alias != f.Name {
		out.Alias = f.Alias
	}
	if def := b.fieldDefinition(f, parentType); def != nil && def.Type != nil {
		out.Type = def.Type.Name()
		out.NonNull = def.Type.NonNull
	}
	if len(f.Arguments) > 0 {
		out.Arguments = make(map[string]any, len(f.Arguments))
		for _, a := range f.Arguments {
			v, err := convertValue(a.Value)
			if err != nil {
				return nil, fmt.Errorf("selection: argument %s.%s: %w", f.Name, a.Name, err)
			}
			out.Arguments[a.Name] = v
		}
	}
	conds, err := conditions(f.Directives)
	if err != nil {
		return nil, err
	}
	out.Conditions = conds
	if len(f.SelectionSet) > 0 {
		sels, err := b.selectionSet(f.SelectionSet, out.Type, true)
		if err != nil {
			return nil, err
		}
		out.Selections = sels
	}
	return out, nil
}

func (b *builder) fieldDefinition(f *ast.Field, parentType string) *ast.FieldDefinition {
	if f.Definition != nil {
		return f.Definition
	}
	if b.schema == nil {
		return nil
	}
	parent := b.schema.Types[parentType]
	if parent == nil {
		return nil
	}
	return parent.Fields.ForName(f.Name)
}

func (b *builder) possibleTypes(name string) []string {
	if b.schema == nil || name == "" {
		return nil
	}
	def := b.schema.Types[name]
	if def == nil || !def.IsAbstractType() {
		return nil
	}
	var out []string
	for _, p := range b.schema.GetPossibleTypes(def) {
		out = append(out, p.Name)
	}
	return out
}

func conditions(dirs ast.DirectiveList) ([]Condition, error) {
	var out []Condition
	for _, d := range dirs {
		if d.Name != "include" && d.Name != "skip" {
			continue
		}
		arg := d.Arguments.ForName("if")
		if arg == nil || arg.Value == nil {
			return nil, fmt.Errorf("selection: @%s without if argument", d.Name)
		}
		c := Condition{Inverted: d.Name == "skip"}
		switch arg.Value.Kind {
		case ast.Variable:
			c.Variable = arg.Value.Raw
		case ast.BooleanValue:
			lit := arg.Value.Raw == "true"
			c.Literal = &lit
		default:
			return nil, fmt.Errorf("selection: @%s(if:) must be a boolean", d.Name)
		}
		out = append(out, c)
	}
	return out, nil
}

func convertValue(v *ast.Value) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch v.Kind {
	case ast.Variable:
		return Variable{Name: v.Raw}, nil
	case ast.IntValue:
		return strconv.ParseInt(v.Raw, 10, 64)
	case ast.FloatValue:
		return strconv.ParseFloat(v.Raw, 64)
	case ast.StringValue, ast.BlockValue, ast.EnumValue:
		return v.Raw, nil
	case ast.BooleanValue:
		return v.Raw == "true", nil
	case ast.NullValue:
		return nil, nil
	case ast.ListValue:
		out := make([]any, 0, len(v.Children))
		for _, c := range v.Children {
			e, err := convertValue(c.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		return out, nil
	case ast.ObjectValue:
		out := make(map[string]any, len(v.Children))
		for _, c := range v.Children {
			e, err := convertValue(c.Value)
			if err != nil {
				return nil, err
			}
			out[c.Name] = e
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value kind %d", v.Kind)
	}
}
