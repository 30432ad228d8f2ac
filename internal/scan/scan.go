// Package scan finds call sites matched by the argument map and extracts
// the command text flowing into their configured argument positions.
package scan

import (
	"sort"

	"github.com/phobologic/sprocscan/internal/argmap"
	"github.com/phobologic/sprocscan/internal/lang"
	"github.com/phobologic/sprocscan/internal/model"
	"github.com/phobologic/sprocscan/internal/resolve"
	"github.com/phobologic/sprocscan/internal/syntax"
)

// anyType keys the initializer property used for types without their own.
const anyType = "*"

// Options tunes call-site matching.
type Options struct {
	// InitializerProperties maps a constructed type to the property whose
	// object-initializer assignment carries command text. The "*" entry
	// applies to every type.
	InitializerProperties map[string]string

	// SkipReceivers lists receivers whose member accesses are never command
	// text, e.g. CommandType.StoredProcedure in an overload whose argument
	// at the configured position is an enum.
	SkipReceivers []string
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		InitializerProperties: map[string]string{anyType: "CommandText"},
		SkipReceivers:         []string{"CommandType"},
	}
}

func (o Options) initializerProperty(typ string) string {
	if p, ok := o.InitializerProperties[typ]; ok {
		return p
	}
	if p, ok := o.InitializerProperties[syntax.LastSegment(typ)]; ok {
		return p
	}
	return o.InitializerProperties[anyType]
}

// Scanner matches call sites against an argument map.
type Scanner struct {
	m    *argmap.Map
	opts Options
	skip map[string]bool
}

// New returns a Scanner for m.
func New(m *argmap.Map, opts Options) *Scanner {
	skip := make(map[string]bool, len(opts.SkipReceivers))
	for _, r := range opts.SkipReceivers {
		skip[r] = true
	}
	return &Scanner{m: m, opts: opts, skip: skip}
}

// Scan returns the records extracted from tree, ordered by line then text.
func (s *Scanner) Scan(tree *syntax.Tree) []model.Record {
	f := &fileScan{
		Scanner: s,
		tree:    tree,
		res:     resolve.New(tree),
		decls:   indexDecls(tree),
	}
	tree.Walk(tree.Root(), func(id syntax.NodeID) bool {
		switch tree.Kind(id) {
		case syntax.KindInvocation:
			f.invocation(id)
		case syntax.KindObjectCreation:
			f.creation(id)
		}
		return true
	})
	sort.SliceStable(f.out, func(i, j int) bool {
		if f.out[i].Line != f.out[j].Line {
			return f.out[i].Line < f.out[j].Line
		}
		return f.out[i].Text < f.out[j].Text
	})
	return f.out
}

type fileScan struct {
	*Scanner
	tree  *syntax.Tree
	res   *resolve.Resolver
	decls map[string][]decl
	out   []model.Record
}

// decl is a declared name with its written type.
type decl struct {
	start uint32
	typ   string
}

// indexDecls indexes locals, fields, parameters and properties by name.
func indexDecls(t *syntax.Tree) map[string][]decl {
	idx := make(map[string][]decl)
	t.Walk(t.Root(), func(id syntax.NodeID) bool {
		n := t.Node(id)
		var typ string
		switch n.Kind {
		case syntax.KindDeclarator:
			if p := n.Parent; p != syntax.NoNode {
				typ = t.Node(p).Type
			}
			if (typ == "var" || typ == "") && t.Kind(n.Right) == syntax.KindObjectCreation {
				typ = t.Node(n.Right).Type
			}
		case syntax.KindParameter, syntax.KindProperty:
			typ = n.Type
		default:
			return true
		}
		if n.Name != "" {
			idx[n.Name] = append(idx[n.Name], decl{start: n.Start, typ: typ})
		}
		return true
	})
	return idx
}

// declaredType returns the type of the declaration of name nearest before
// offset, falling back to the first declaration in the file.
func (f *fileScan) declaredType(name string, offset uint32) string {
	ds := f.decls[name]
	if len(ds) == 0 {
		return ""
	}
	best := -1
	for i, d := range ds {
		if d.start < offset {
			best = i
		}
	}
	if best < 0 {
		best = 0
	}
	return ds[best].typ
}

// candidateKeys returns the argument map keys an invocation may match.
func (f *fileScan) candidateKeys(id syntax.NodeID) []string {
	t := f.tree
	n := t.Node(id)
	if n.Name == "" {
		return nil
	}
	var keys []string
	add := func(k string) {
		for _, e := range keys {
			if e == k {
				return
			}
		}
		keys = append(keys, k)
	}

	if n.Object == syntax.NoNode {
		add(n.Name)
		for _, typ := range t.TypeChain(id) {
			add(typ + "." + n.Name)
		}
		return keys
	}

	add(n.Callee)
	add(syntax.StripName(t.Text(n.Object)) + "." + n.Name)

	obj := t.Node(n.Object)
	var recv string
	switch obj.Kind {
	case syntax.KindThis:
		for _, typ := range t.TypeChain(id) {
			add(typ + "." + n.Name)
		}
	case syntax.KindIdentifier:
		recv = obj.Name
	case syntax.KindMemberAccess:
		if t.Kind(obj.Object) == syntax.KindThis {
			recv = obj.Name
		}
	}
	if recv != "" {
		if typ := f.declaredType(recv, n.Start); typ != "" {
			add(typ + "." + n.Name)
			add(syntax.LastSegment(typ) + "." + n.Name)
		}
	}
	return keys
}

// rules unions the rules of every key across both key spaces.
func (f *fileScan) rules(keys []string) []model.Rule {
	var out []model.Rule
	seen := make(map[model.Rule]bool)
	for _, k := range keys {
		for _, pending := range []bool{false, true} {
			for _, r := range f.m.Lookup(argmap.Key{Pending: pending, Name: k}) {
				if !seen[r] {
					seen[r] = true
					out = append(out, r)
				}
			}
		}
	}
	return out
}

func (f *fileScan) invocation(id syntax.NodeID) {
	rules := f.rules(f.candidateKeys(id))
	f.arguments(id, f.tree.Node(id).Args, rules)
}

func (f *fileScan) creation(id syntax.NodeID) {
	t := f.tree
	n := t.Node(id)
	if n.Type == "" {
		return
	}
	keys := []string{n.Type}
	if last := syntax.LastSegment(n.Type); last != n.Type {
		keys = append(keys, last)
	}
	rules := f.rules(keys)
	visible := f.arguments(id, n.Args, rules)
	if !visible || n.Initializer == syntax.NoNode {
		return
	}

	prop := f.opts.initializerProperty(n.Type)
	if prop == "" {
		return
	}
	for _, c := range t.Node(n.Initializer).Children {
		a := t.Node(c)
		if a.Kind != syntax.KindAssignment || syntax.StripName(t.Text(a.Left)) != prop {
			continue
		}
		if a.Right != syntax.NoNode {
			f.candidate(a.Right)
		}
	}
}

// arguments extracts the configured argument of each rule whose namespace
// is visible from the call site. It reports whether any rule was visible.
func (f *fileScan) arguments(call syntax.NodeID, args []syntax.NodeID, rules []model.Rule) bool {
	visible := false
	done := make(map[int]bool)
	for _, r := range rules {
		if r.Namespace != "" && !f.namespaceVisible(r.Namespace, call) {
			continue
		}
		visible = true
		if done[r.ArgIndex] || r.ArgIndex >= len(args) {
			continue
		}
		done[r.ArgIndex] = true
		if args[r.ArgIndex] != syntax.NoNode {
			f.candidate(args[r.ArgIndex])
		}
	}
	return visible
}

// namespaceVisible reports whether ns is declared by or imported into any
// scope enclosing id, including file-scoped namespace declarations.
func (f *fileScan) namespaceVisible(ns string, id syntax.NodeID) bool {
	t := f.tree
	imports := func(scope syntax.NodeID) bool {
		for _, c := range t.Node(scope).Children {
			if n := t.Node(c); n.Kind == syntax.KindImport && n.Name == ns {
				return true
			}
		}
		return false
	}
	for cur := id; cur != syntax.NoNode; cur = t.Node(cur).Parent {
		n := t.Node(cur)
		if n.Kind == syntax.KindNamespace && t.QualifiedNamespace(cur) == ns {
			return true
		}
		if (n.Kind == syntax.KindNamespace || n.Kind == syntax.KindRoot) && imports(cur) {
			return true
		}
	}
	for _, fs := range t.FileNamespaces() {
		if t.Node(fs).Name == ns || imports(fs) {
			return true
		}
	}
	return false
}

// candidate turns the expression at a configured position into records.
func (f *fileScan) candidate(expr syntax.NodeID) {
	t := f.tree
	n := t.Node(expr)
	line := t.Line(expr)

	switch n.Kind {
	case syntax.KindLiteral:
		if n.Value != "" {
			f.emit(model.Record{Line: line, Text: n.Value})
		}
	case syntax.KindIdentifier:
		f.resolved(n.Name, expr, line)
	case syntax.KindMemberAccess:
		if n.Object != syntax.NoNode {
			if recv := t.Node(n.Object); recv.Kind == syntax.KindIdentifier && f.skip[recv.Name] {
				return
			}
		}
		f.resolved(syntax.StripName(t.Text(expr)), expr, line)
	default:
		if text := lang.CollapseWhitespace(t.Text(expr)); text != "" {
			f.emit(model.Record{Line: line, Text: text, Unresolved: true})
		}
	}
}

func (f *fileScan) resolved(name string, at syntax.NodeID, line int) {
	res := f.res.Resolve(name, at)
	if res.Outcome() == resolve.Unresolved {
		f.emit(model.Record{Line: line, Text: name, Unresolved: true})
		return
	}
	if len(res.Values) > 0 {
		f.emit(model.Record{Line: line, Text: res.Text()})
	}
	for _, ref := range res.Refs {
		f.emit(model.Record{Line: line, Text: ref.String(), Ref: ref})
	}
}

func (f *fileScan) emit(r model.Record) {
	r.File = f.tree.Path
	f.out = append(f.out, r)
}
