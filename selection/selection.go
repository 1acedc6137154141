// Package selection describes what an operation selects: field names,
// aliases, arguments, sub-selections and type conditions. It is the contract
// between the cache and whatever produced the operation (generated code or
// the Parse helper in this package). The cache never parses GraphQL itself.
package selection

import "github.com/unkn0wn-root/gqlcache/record"

// Kind is the operation type.
type Kind uint8

const (
	Query Kind = iota
	Mutation
	Subscription
)

func (k Kind) String() string {
	switch k {
	case Mutation:
		return "mutation"
	case Subscription:
		return "subscription"
	default:
		return "query"
	}
}

// Selection is a *Field or an *InlineFragment.
type Selection interface {
	selection()
}

// Variable is an argument value bound to an operation variable.
type Variable struct {
	Name string
}

// Condition models @include(if: $Variable) and, when Inverted, @skip.
// A Literal condition carries a constant instead of a variable.
type Condition struct {
	Variable string
	Literal  *bool
	Inverted bool
}

// Field is one selected field.
type Field struct {
	Name  string
	Alias string
	// Type is the static named type of the field (e.g. "Character"). Optional;
	// used as the type of objects that carry no __typename.
	Type string
	// NonNull marks fields whose absence invalidates the parent object.
	NonNull    bool
	Arguments  map[string]any
	Selections []Selection
	Conditions []Condition
}

func (*Field) selection() {}

// ResponseName is the key the field has in response data.
func (f *Field) ResponseName() string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}

// Composite reports whether the field selects sub-fields.
func (f *Field) Composite() bool { return len(f.Selections) > 0 }

// InlineFragment applies its selections only to objects whose runtime type
// satisfies TypeCondition.
type InlineFragment struct {
	TypeCondition string
	// PossibleTypes lists concrete types satisfying an abstract condition.
	PossibleTypes []string
	Selections    []Selection
	Conditions    []Condition
}

func (*InlineFragment) selection() {}

// Operation is a query, mutation or subscription with bound variables.
type Operation struct {
	Name       string
	Kind       Kind
	Variables  map[string]any
	Selections []Selection
}

// RootKey is the record key root fields attach to.
func (o *Operation) RootKey() string {
	switch o.Kind {
	case Mutation:
		return record.MutationRoot
	case Subscription:
		return record.SubscriptionRoot
	default:
		return record.QueryRoot
	}
}

// RootType is the GraphQL root type name.
func (o *Operation) RootType() string {
	switch o.Kind {
	case Mutation:
		return "Mutation"
	case Subscription:
		return "Subscription"
	default:
		return "Query"
	}
}

// WithVariables returns a shallow copy of o bound to vars.
func (o *Operation) WithVariables(vars map[string]any) *Operation {
	c := *o
	c.Variables = vars
	return &c
}

// Fragment is a selection set rooted at an arbitrary record.
type Fragment struct {
	Name          string
	TypeCondition string
	PossibleTypes []string
	Variables     map[string]any
	Selections    []Selection
}

// Included evaluates @include/@skip conditions against vars. Conditions
// bound to an undefined variable evaluate as false.
func Included(conds []Condition, vars map[string]any) bool {
	for _, c := range conds {
		var v bool
		if c.Literal != nil {
			v = *c.Literal
		} else {
			b, _ := vars[c.Variable].(bool)
			v = b
		}
		if c.Inverted {
			v = !v
		}
		if !v {
			return false
		}
	}
	return true
}

// Applies reports whether a fragment with the given type condition applies
// to an object. runtime is the object's __typename ("" when unknown) and
// static is the type the enclosing field declares; a condition on the static
// type always applies.
func Applies(cond string, possible []string, runtime, static string) bool {
	if cond == "" || cond == static {
		return true
	}
	if runtime == "" {
		return false
	}
	if cond == runtime {
		return true
	}
	for _, p := range possible {
		if p == runtime {
			return true
		}
	}
	return false
}
