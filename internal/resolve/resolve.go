// Package resolve finds the values an identifier may hold at a call site by
// walking outward through the enclosing scopes of a syntax tree.
//
// Resolution is flow-insensitive: every declaration and simple assignment of
// the name in the nearest block that mentions it contributes, in source
// order, regardless of branching.
package resolve

import (
	"strings"

	"github.com/phobologic/sprocscan/internal/model"
	"github.com/phobologic/sprocscan/internal/syntax"
)

// maxDepth bounds chained variable-to-variable resolution.
const maxDepth = 32

// Outcome classifies a Result.
type Outcome uint8

const (
	Unresolved Outcome = iota
	Literal
	Pending
)

func (o Outcome) String() string {
	switch o {
	case Literal:
		return "literal"
	case Pending:
		return "pending"
	default:
		return "unresolved"
	}
}

// Result is what an identifier resolved to. Values are distinct literals in
// source order. Refs are method parameters whose values come from the
// method's call sites.
type Result struct {
	Values []string
	Refs   []*model.PendingRef
}

// Outcome reports Literal when any value was found, Pending when only
// method references were, and Unresolved otherwise.
func (r Result) Outcome() Outcome {
	switch {
	case len(r.Values) > 0:
		return Literal
	case len(r.Refs) > 0:
		return Pending
	default:
		return Unresolved
	}
}

// Text joins Values with the alternative separator.
func (r Result) Text() string {
	return strings.Join(r.Values, model.AltSep)
}

func (r *Result) addValue(v string) {
	if v == "" {
		return
	}
	for _, e := range r.Values {
		if e == v {
			return
		}
	}
	r.Values = append(r.Values, v)
}

func (r *Result) addRef(ref *model.PendingRef) {
	key := ref.String()
	for _, e := range r.Refs {
		if e.String() == key {
			return
		}
	}
	r.Refs = append(r.Refs, ref)
}

func (r *Result) merge(o Result) {
	for _, v := range o.Values {
		r.addValue(v)
	}
	for _, ref := range o.Refs {
		r.addRef(ref)
	}
}

func (r Result) empty() bool {
	return len(r.Values) == 0 && len(r.Refs) == 0
}

// Resolver resolves identifiers within one tree. It only reads the tree.
type Resolver struct {
	tree *syntax.Tree
}

// New returns a Resolver over tree.
func New(tree *syntax.Tree) *Resolver {
	return &Resolver{tree: tree}
}

type visit struct {
	name  string
	scope syntax.NodeID
}

// Resolve resolves name as seen from node from.
func (r *Resolver) Resolve(name string, from syntax.NodeID) Result {
	return r.resolve(syntax.StripName(name), from, 0, map[visit]bool{})
}

func (r *Resolver) resolve(name string, from syntax.NodeID, depth int, seen map[visit]bool) Result {
	if name == "" || from == syntax.NoNode || depth > maxDepth {
		return Result{}
	}
	t := r.tree
	for cur := from; cur != syntax.NoNode; cur = t.Node(cur).Parent {
		switch t.Kind(cur) {
		case syntax.KindBlock:
			key := visit{name: name, scope: cur}
			if seen[key] {
				return Result{}
			}
			seen[key] = true
			res := r.block(name, cur, depth, seen)
			delete(seen, key)
			if !res.empty() {
				return res
			}
		case syntax.KindType:
			if v, ok := r.member(name, cur); ok {
				return Result{Values: []string{v}}
			}
		case syntax.KindMethod:
			if ref := r.param(name, cur); ref != nil {
				return Result{Refs: []*model.PendingRef{ref}}
			}
		}
	}
	return Result{}
}

// block collects every declaration and simple assignment of name inside
// the block, in document order.
func (r *Resolver) block(name string, block syntax.NodeID, depth int, seen map[visit]bool) Result {
	t := r.tree
	var res Result
	t.Walk(block, func(id syntax.NodeID) bool {
		n := t.Node(id)
		var rhs syntax.NodeID
		switch n.Kind {
		case syntax.KindDeclarator:
			if n.Name != name {
				return true
			}
			rhs = n.Right
		case syntax.KindAssignment:
			if syntax.StripName(t.Text(n.Left)) != name {
				return true
			}
			rhs = n.Right
		default:
			return true
		}
		res.merge(r.value(rhs, block, depth, seen))
		return true
	})
	return res
}

// value evaluates the right-hand side of a declaration or assignment.
// Literals are values; names are resolved again from the block that held
// the assignment. Anything else contributes nothing.
func (r *Resolver) value(rhs, block syntax.NodeID, depth int, seen map[visit]bool) Result {
	t := r.tree
	switch t.Kind(rhs) {
	case syntax.KindLiteral:
		var res Result
		res.addValue(t.Node(rhs).Value)
		return res
	case syntax.KindIdentifier:
		return r.resolve(t.Node(rhs).Name, block, depth+1, seen)
	case syntax.KindMemberAccess:
		return r.resolve(syntax.StripName(t.Text(rhs)), block, depth+1, seen)
	}
	return Result{}
}

// member looks name up among the literal-initialized fields and properties
// declared directly in the type. A leading "this." or "TypeName." is
// dropped first.
func (r *Resolver) member(name string, typ syntax.NodeID) (string, bool) {
	t := r.tree
	tn := t.Node(typ)
	name = strings.TrimPrefix(name, "this.")
	if tn.Name != "" {
		name = strings.TrimPrefix(name, tn.Name+".")
	}
	if strings.Contains(name, ".") {
		return "", false
	}

	var (
		val   string
		found bool
	)
	t.Walk(typ, func(id syntax.NodeID) bool {
		if found {
			return false
		}
		if id == typ {
			return true
		}
		n := t.Node(id)
		switch n.Kind {
		case syntax.KindType, syntax.KindMethod, syntax.KindBlock:
			return false
		case syntax.KindDeclarator, syntax.KindProperty:
			if n.Name == name && t.Kind(n.Right) == syntax.KindLiteral {
				if v := t.Node(n.Right).Value; v != "" {
					val, found = v, true
				}
			}
		}
		return true
	})
	return val, found
}

// param returns a pending reference when name is a parameter of method.
func (r *Resolver) param(name string, method syntax.NodeID) *model.PendingRef {
	t := r.tree
	m := t.Node(method)
	for i, p := range m.Params {
		if p != name {
			continue
		}
		return &model.PendingRef{
			Classes:   r.classes(method),
			Method:    m.Name,
			Param:     i,
			Namespace: t.Namespace(method),
		}
	}
	return nil
}

// classes returns the enclosing type name followed by its declared bases.
func (r *Resolver) classes(id syntax.NodeID) []string {
	t := r.tree
	typ := t.Enclosing(id, syntax.KindType)
	if typ == syntax.NoNode {
		return nil
	}
	n := t.Node(typ)
	return append([]string{n.Name}, n.Bases...)
}

// QualifiedLiterals maps the qualified name of every literal-initialized
// variable, field and property in tree to its literal. The qualifier is the
// chain of enclosing type names; the namespace is not part of it. The first
// declaration of a name wins.
func QualifiedLiterals(tree *syntax.Tree) map[string]string {
	out := make(map[string]string)
	tree.Walk(tree.Root(), func(id syntax.NodeID) bool {
		n := tree.Node(id)
		if n.Kind != syntax.KindDeclarator && n.Kind != syntax.KindProperty {
			return true
		}
		if n.Name == "" || tree.Kind(n.Right) != syntax.KindLiteral {
			return true
		}
		v := tree.Node(n.Right).Value
		if v == "" {
			return true
		}
		key := strings.Join(append(tree.TypeChain(id), n.Name), ".")
		if _, ok := out[key]; !ok {
			out[key] = v
		}
		return true
	})
	return out
}
