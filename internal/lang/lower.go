package lang

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/sprocscan/internal/syntax"
)

// spanKey identifies a tree-sitter node independently of the *sitter.Node
// wrapper, which is not guaranteed to be pointer-stable.
type spanKey struct {
	start, end uint32
	typ        string
}

func keyOf(n *sitter.Node) spanKey {
	return spanKey{start: n.StartByte(), end: n.EndByte(), typ: n.Type()}
}

// builder carries lowering state for one file.
type builder struct {
	tree *syntax.Tree
	src  []byte
	ids  map[spanKey]syntax.NodeID
}

// id returns the lowered node for a tree-sitter node, or NoNode when n is
// nil or was not lowered (anonymous tokens, comments).
func (b *builder) id(n *sitter.Node) syntax.NodeID {
	if n == nil {
		return syntax.NoNode
	}
	if id, ok := b.ids[keyOf(n)]; ok {
		return id
	}
	return syntax.NoNode
}

func (b *builder) node(id syntax.NodeID) *syntax.Node {
	return b.tree.Node(id)
}

func (b *builder) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return NodeText(n, b.src)
}

// Lower converts a tree-sitter parse tree into a syntax.Tree. Only named
// nodes are kept; comments are dropped. The walk uses an explicit stack so
// deeply nested sources cannot exhaust the goroutine stack.
func (l *Language) Lower(root *sitter.Node, source []byte, path string) *syntax.Tree {
	b := &builder{
		tree: syntax.NewTree(path, source),
		src:  source,
		ids:  make(map[spanKey]syntax.NodeID),
	}
	if root == nil {
		return b.tree
	}

	type frame struct {
		n      *sitter.Node
		parent syntax.NodeID
	}
	type lowered struct {
		id syntax.NodeID
		n  *sitter.Node
	}

	var order []lowered
	stack := []frame{{n: root, parent: syntax.NoNode}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		kind := l.kinds[f.n.Type()]
		if f.parent == syntax.NoNode {
			kind = syntax.KindRoot
		}
		id := b.tree.Add(syntax.Node{
			Kind:   kind,
			Parent: f.parent,
			Start:  f.n.StartByte(),
			End:    f.n.EndByte(),
		})
		b.ids[keyOf(f.n)] = id
		order = append(order, lowered{id: id, n: f.n})

		for i := int(f.n.NamedChildCount()) - 1; i >= 0; i-- {
			c := f.n.NamedChild(i)
			if c == nil || c.Type() == "comment" {
				continue
			}
			stack = append(stack, frame{n: c, parent: id})
		}
	}

	if l.attach != nil {
		for _, lw := range order {
			l.attach(b, lw.id, lw.n)
		}
	}
	return b.tree
}

// namedChildren returns the named children of n.
func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, n.NamedChildCount())
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// firstNamedOfType returns the first named child of n with one of the types.
func firstNamedOfType(n *sitter.Node, types ...string) *sitter.Node {
	for _, c := range namedChildren(n) {
		for _, t := range types {
			if c.Type() == t {
				return c
			}
		}
	}
	return nil
}

// lastNamedOfType returns the last named child of n with one of the types.
func lastNamedOfType(n *sitter.Node, types ...string) *sitter.Node {
	var found *sitter.Node
	for _, c := range namedChildren(n) {
		for _, t := range types {
			if c.Type() == t {
				found = c
			}
		}
	}
	return found
}

// lastNamed returns the last named child of n.
func lastNamed(n *sitter.Node) *sitter.Node {
	if n == nil || n.NamedChildCount() == 0 {
		return nil
	}
	return n.NamedChild(int(n.NamedChildCount()) - 1)
}

// afterEquals returns the first named child that follows an anonymous "="
// token, which is how initializers appear across grammar versions that do
// not name the field.
func afterEquals(n *sitter.Node) *sitter.Node {
	seen := false
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c == nil {
			continue
		}
		if !c.IsNamed() {
			if c.Type() == "=" {
				seen = true
			}
			continue
		}
		if seen {
			return c
		}
	}
	return nil
}

// field returns the child of n under the given field name, falling back to
// fallback when the grammar does not name it.
func field(n *sitter.Node, name string, fallback func(*sitter.Node) *sitter.Node) *sitter.Node {
	if c := n.ChildByFieldName(name); c != nil {
		return c
	}
	if fallback != nil {
		return fallback(n)
	}
	return nil
}

// assignOperator returns the operator token of an assignment expression.
func assignOperator(b *builder, n *sitter.Node) string {
	if op := n.ChildByFieldName("operator"); op != nil {
		return b.text(op)
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c != nil && !c.IsNamed() {
			return c.Type()
		}
	}
	return ""
}
