// Package syntax holds the language-neutral syntax tree the analysis runs on.
//
// A Tree is an arena: nodes live in one slice and refer to each other by
// NodeID. Node kinds form a closed set; language front ends lower their
// concrete syntax into these kinds and leave everything else as KindOther.
package syntax

import (
	"sort"
	"strings"
)

// NodeID indexes a node inside its Tree.
type NodeID int32

// NoNode marks an absent node reference.
const NoNode NodeID = -1

// Kind is the syntactic category of a node.
type Kind uint8

const (
	KindOther Kind = iota
	KindRoot
	KindNamespace
	KindImport
	KindType
	KindMethod
	KindParameter
	KindBlock
	KindField
	KindProperty
	KindDeclaration
	KindDeclarator
	KindAssignment
	KindInvocation
	KindMemberAccess
	KindObjectCreation
	KindInitializer
	KindArgument
	KindLiteral
	KindIdentifier
	KindThis
)

var kindNames = [...]string{
	KindOther:          "other",
	KindRoot:           "root",
	KindNamespace:      "namespace",
	KindImport:         "import",
	KindType:           "type",
	KindMethod:         "method",
	KindParameter:      "parameter",
	KindBlock:          "block",
	KindField:          "field",
	KindProperty:       "property",
	KindDeclaration:    "declaration",
	KindDeclarator:     "declarator",
	KindAssignment:     "assignment",
	KindInvocation:     "invocation",
	KindMemberAccess:   "member_access",
	KindObjectCreation: "object_creation",
	KindInitializer:    "initializer",
	KindArgument:       "argument",
	KindLiteral:        "literal",
	KindIdentifier:     "identifier",
	KindThis:           "this",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Node is one syntax node. Which of the optional fields are set depends on
// Kind:
//
//	Namespace       Name, FileScoped
//	Import          Name
//	Type            Name, Bases
//	Method          Name, Params
//	Parameter       Name, Type
//	Field           Type (when the language has no separate declaration node)
//	Property        Name, Type, Right
//	Declaration     Type
//	Declarator      Name, Right
//	Assignment      Left, Right
//	Invocation      Name, Callee, Object, Args
//	MemberAccess    Name, Object
//	ObjectCreation  Type, Args, Initializer
//	Literal         Value
//	Identifier      Name
type Node struct {
	Kind     Kind
	Parent   NodeID
	Children []NodeID
	Start    uint32
	End      uint32

	Name       string
	Type       string
	Value      string
	Callee     string
	Bases      []string
	Params     []string
	FileScoped bool

	Left        NodeID
	Right       NodeID
	Object      NodeID
	Initializer NodeID
	Args        []NodeID
}

// Tree is the lowered syntax tree of one source file.
type Tree struct {
	Path   string
	Source []byte
	Nodes  []Node

	lineStarts []uint32
}

// NewTree returns an empty tree over source.
func NewTree(path string, source []byte) *Tree {
	t := &Tree{Path: path, Source: source, lineStarts: []uint32{0}}
	for i, b := range source {
		if b == '\n' {
			t.lineStarts = append(t.lineStarts, uint32(i+1))
		}
	}
	return t
}

// Add appends n to the arena and links it under n.Parent.
func (t *Tree) Add(n Node) NodeID {
	id := NodeID(len(t.Nodes))
	n.Left, n.Right, n.Object, n.Initializer = orNone(n.Left), orNone(n.Right), orNone(n.Object), orNone(n.Initializer)
	t.Nodes = append(t.Nodes, n)
	if n.Parent != NoNode {
		p := &t.Nodes[n.Parent]
		p.Children = append(p.Children, id)
	}
	return id
}

// orNone maps the zero NodeID of an unset role link to NoNode. Role links
// are never allowed to point at the root, which is always node 0.
func orNone(id NodeID) NodeID {
	if id == 0 {
		return NoNode
	}
	return id
}

// Root returns the root node, or NoNode for an empty tree.
func (t *Tree) Root() NodeID {
	if len(t.Nodes) == 0 {
		return NoNode
	}
	return 0
}

// Node returns the node with the given id.
func (t *Tree) Node(id NodeID) *Node {
	return &t.Nodes[id]
}

// Kind returns the kind of id, or KindOther for NoNode.
func (t *Tree) Kind(id NodeID) Kind {
	if id == NoNode {
		return KindOther
	}
	return t.Nodes[id].Kind
}

// Text returns the source text spanned by id.
func (t *Tree) Text(id NodeID) string {
	if id == NoNode {
		return ""
	}
	n := &t.Nodes[id]
	return string(t.Source[n.Start:n.End])
}

// Line returns the 1-based line on which id starts.
func (t *Tree) Line(id NodeID) int {
	return t.LineAt(t.Nodes[id].Start)
}

// LineAt returns 1 plus the number of line breaks before offset.
func (t *Tree) LineAt(offset uint32) int {
	return sort.Search(len(t.lineStarts), func(i int) bool {
		return t.lineStarts[i] > offset
	})
}

// Walk visits the subtree rooted at id in document order. When fn returns
// false the children of the visited node are skipped.
func (t *Tree) Walk(id NodeID, fn func(NodeID) bool) {
	if id == NoNode {
		return
	}
	stack := []NodeID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(cur) {
			continue
		}
		children := t.Nodes[cur].Children
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
}

// Collect returns every node of the given kind under id, in document order.
func (t *Tree) Collect(id NodeID, kind Kind) []NodeID {
	var out []NodeID
	t.Walk(id, func(n NodeID) bool {
		if t.Nodes[n].Kind == kind {
			out = append(out, n)
		}
		return true
	})
	return out
}

// Enclosing returns the nearest strict ancestor of id with the given kind.
func (t *Tree) Enclosing(id NodeID, kind Kind) NodeID {
	for cur := t.Nodes[id].Parent; cur != NoNode; cur = t.Nodes[cur].Parent {
		if t.Nodes[cur].Kind == kind {
			return cur
		}
	}
	return NoNode
}

// TypeChain returns the names of the types enclosing id, outermost first.
func (t *Tree) TypeChain(id NodeID) []string {
	var names []string
	for cur := t.Nodes[id].Parent; cur != NoNode; cur = t.Nodes[cur].Parent {
		if n := &t.Nodes[cur]; n.Kind == KindType && n.Name != "" {
			names = append(names, n.Name)
		}
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return names
}

// Namespace returns the qualified namespace enclosing id. Block namespaces
// are searched first, then file-scoped namespace or package declarations.
func (t *Tree) Namespace(id NodeID) string {
	if ns := t.Enclosing(id, KindNamespace); ns != NoNode {
		return t.QualifiedNamespace(ns)
	}
	if fs := t.FileNamespaces(); len(fs) > 0 {
		return t.Nodes[fs[0]].Name
	}
	return ""
}

// QualifiedNamespace joins the names of the namespace declaration ns and
// every namespace declaration enclosing it, outermost first.
func (t *Tree) QualifiedNamespace(ns NodeID) string {
	var names []string
	for cur := ns; cur != NoNode; cur = t.Nodes[cur].Parent {
		if n := &t.Nodes[cur]; n.Kind == KindNamespace && n.Name != "" {
			names = append(names, n.Name)
		}
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return strings.Join(names, ".")
}

// FileNamespaces returns the file-scoped namespace declarations of the tree.
// Their declarations are siblings rather than children, so they apply to
// the whole file.
func (t *Tree) FileNamespaces() []NodeID {
	root := t.Root()
	if root == NoNode {
		return nil
	}
	var out []NodeID
	for _, c := range t.Nodes[root].Children {
		if n := &t.Nodes[c]; n.Kind == KindNamespace && n.FileScoped {
			out = append(out, c)
		}
	}
	return out
}

// TypeName normalizes a written type for matching: generic arguments,
// array and nullable suffixes, and a global:: alias are removed.
func TypeName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "global::")
	if i := strings.IndexAny(s, "<["); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimRight(s, "?* \t")
	return strings.Join(strings.Fields(s), "")
}

// LastSegment returns the part of a dotted name after its final dot.
func LastSegment(s string) string {
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// StripName removes whitespace from a written name, so "this . x" and
// "this.x" compare equal.
func StripName(s string) string {
	return strings.Join(strings.Fields(s), "")
}
