package lang

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/sprocscan/internal/syntax"
)

func lower(t *testing.T, name, src string) *syntax.Tree {
	t.Helper()
	l := Languages[name]
	require.NotNil(t, l, "language %s not registered", name)
	p := l.NewParser()
	defer p.Close()
	st, err := p.ParseCtx(context.Background(), nil, []byte(src))
	require.NoError(t, err)
	defer st.Close()
	return l.Lower(st.RootNode(), []byte(src), "test")
}

func first(t *testing.T, tree *syntax.Tree, kind syntax.Kind) *syntax.Node {
	t.Helper()
	ids := tree.Collect(tree.Root(), kind)
	require.NotEmpty(t, ids, "no %s node", kind)
	return tree.Node(ids[0])
}

func TestForExtension(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ext  string
		want string
	}{
		{".cs", "csharp"},
		{".CS", "csharp"},
		{".java", "java"},
		{".py", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ForExtension(tt.ext))
		})
	}
}

func TestLanguagesRegistered(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"csharp", "java"} {
		l, ok := Languages[name]
		require.True(t, ok, "%s not registered", name)
		assert.NotNil(t, l.NewParser())
	}
}

const csharpSample = `using System.Data.SqlClient;

namespace Acme.Data
{
    public class Repo : BaseRepo, IRepo
    {
        private const string Proc = "usp_Get";

        public string Name { get; set; } = "usp_Name";

        public void Run(string sql, int n)
        {
            var cmd = new SqlCommand("usp_Run", conn) { CommandText = @"usp_""q""" };
            this.helper.Execute(sql, 2);
            Foo(null);
        }
    }
}
`

func TestLowerCSharp(t *testing.T) {
	t.Parallel()
	tree := lower(t, "csharp", csharpSample)

	assert.Equal(t, syntax.KindRoot, tree.Kind(tree.Root()))
	assert.Equal(t, "System.Data.SqlClient", first(t, tree, syntax.KindImport).Name)

	ns := first(t, tree, syntax.KindNamespace)
	assert.Equal(t, "Acme.Data", ns.Name)
	assert.False(t, ns.FileScoped)

	typ := first(t, tree, syntax.KindType)
	assert.Equal(t, "Repo", typ.Name)
	assert.Equal(t, []string{"BaseRepo", "IRepo"}, typ.Bases)

	m := first(t, tree, syntax.KindMethod)
	assert.Equal(t, "Run", m.Name)
	assert.Equal(t, []string{"sql", "n"}, m.Params)

	prop := first(t, tree, syntax.KindProperty)
	assert.Equal(t, "Name", prop.Name)
	require.NotEqual(t, syntax.NoNode, prop.Right)
	assert.Equal(t, "usp_Name", tree.Node(prop.Right).Value)

	var decls []*syntax.Node
	for _, id := range tree.Collect(tree.Root(), syntax.KindDeclarator) {
		decls = append(decls, tree.Node(id))
	}
	require.Len(t, decls, 2)
	assert.Equal(t, "Proc", decls[0].Name)
	assert.Equal(t, "usp_Get", tree.Node(decls[0].Right).Value)
	assert.Equal(t, "cmd", decls[1].Name)
	assert.Equal(t, syntax.KindObjectCreation, tree.Kind(decls[1].Right))

	oc := first(t, tree, syntax.KindObjectCreation)
	assert.Equal(t, "SqlCommand", oc.Type)
	require.Len(t, oc.Args, 2)
	assert.Equal(t, "usp_Run", tree.Node(oc.Args[0]).Value)
	assert.Equal(t, syntax.KindIdentifier, tree.Kind(oc.Args[1]))
	require.NotEqual(t, syntax.NoNode, oc.Initializer)

	asg := tree.Collect(oc.Initializer, syntax.KindAssignment)
	require.Len(t, asg, 1)
	a := tree.Node(asg[0])
	assert.Equal(t, "CommandText", tree.Text(a.Left))
	assert.Equal(t, `usp_"q"`, tree.Node(a.Right).Value)

	invs := tree.Collect(tree.Root(), syntax.KindInvocation)
	require.Len(t, invs, 2)
	exec := tree.Node(invs[0])
	assert.Equal(t, "Execute", exec.Name)
	assert.Equal(t, "this.helper.Execute", exec.Callee)
	assert.Equal(t, "this.helper", tree.Text(exec.Object))
	assert.Equal(t, syntax.KindMemberAccess, tree.Kind(exec.Object))
	require.Len(t, exec.Args, 2)
	assert.Equal(t, "sql", tree.Node(exec.Args[0]).Name)

	foo := tree.Node(invs[1])
	assert.Equal(t, "Foo", foo.Name)
	assert.Equal(t, syntax.NoNode, foo.Object)
	assert.Equal(t, "", tree.Node(foo.Args[0]).Value)

	assert.Equal(t, 14, tree.Line(invs[0]))
}

func TestLowerCSharpFileScopedNamespace(t *testing.T) {
	t.Parallel()
	tree := lower(t, "csharp", "namespace Acme.Data;\n\nclass A { void M() { Run(\"x\"); } }\n")

	ns := first(t, tree, syntax.KindNamespace)
	assert.True(t, ns.FileScoped)
	assert.Equal(t, "Acme.Data", ns.Name)

	inv := tree.Collect(tree.Root(), syntax.KindInvocation)
	require.Len(t, inv, 1)
	assert.Equal(t, "Acme.Data", tree.Namespace(inv[0]))
}

const javaSample = `package com.acme.data;

import java.sql.Connection;
import java.util.*;

public class Repo extends Base implements IRepo {
    private static final String PROC = "{call usp_Get}";

    public void run(Connection conn, String sql) {
        CallableStatement cs = conn.prepareCall(sql);
        helper.execute("usp_" + sql);
    }
}
`

func TestLowerJava(t *testing.T) {
	t.Parallel()
	tree := lower(t, "java", javaSample)

	ns := first(t, tree, syntax.KindNamespace)
	assert.Equal(t, "com.acme.data", ns.Name)
	assert.True(t, ns.FileScoped)

	var imports []string
	for _, id := range tree.Collect(tree.Root(), syntax.KindImport) {
		imports = append(imports, tree.Node(id).Name)
	}
	assert.Equal(t, []string{"java.sql", "java.util"}, imports)

	typ := first(t, tree, syntax.KindType)
	assert.Equal(t, "Repo", typ.Name)
	assert.Equal(t, []string{"Base", "IRepo"}, typ.Bases)

	m := first(t, tree, syntax.KindMethod)
	assert.Equal(t, "run", m.Name)
	assert.Equal(t, []string{"conn", "sql"}, m.Params)

	d := tree.Node(tree.Collect(tree.Root(), syntax.KindDeclarator)[0])
	assert.Equal(t, "PROC", d.Name)
	assert.Equal(t, "{call usp_Get}", tree.Node(d.Right).Value)

	decl := first(t, tree, syntax.KindDeclaration)
	assert.Equal(t, "CallableStatement", decl.Type)

	invs := tree.Collect(tree.Root(), syntax.KindInvocation)
	require.Len(t, invs, 2)
	pc := tree.Node(invs[0])
	assert.Equal(t, "prepareCall", pc.Name)
	assert.Equal(t, "conn.prepareCall", pc.Callee)
	assert.Equal(t, "conn", tree.Node(pc.Object).Name)
	require.Len(t, pc.Args, 1)
	assert.Equal(t, syntax.KindIdentifier, tree.Kind(pc.Args[0]))

	ex := tree.Node(invs[1])
	require.Len(t, ex.Args, 1)
	assert.Equal(t, syntax.KindOther, tree.Kind(ex.Args[0]))
}

func TestLiteralValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ, text, want string
	}{
		{"string_literal", `"usp_Get"`, "usp_Get"},
		{"string_literal", `"a\tb"`, "a\tb"},
		{"verbatim_string_literal", `@"C:\x ""y"""`, `C:\x "y"`},
		{"raw_string_literal", `"""  usp_Raw  """`, "usp_Raw"},
		{"null_literal", "null", ""},
		{"integer_literal", "42", "42"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, literalValue(tt.typ, tt.text))
		})
	}
}

func TestWhitespaceHelpers(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "a.b.c", StripWhitespace("a .\n b. c"))
	assert.Equal(t, "a b c", CollapseWhitespace("  a\n\tb   c "))
}
