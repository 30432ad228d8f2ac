package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/sprocscan/internal/model"
	"github.com/phobologic/sprocscan/internal/parse"
	"github.com/phobologic/sprocscan/internal/syntax"
)

func parseCS(t *testing.T, src string) *syntax.Tree {
	t.Helper()
	tree, err := parse.New().Parse(context.Background(), "Test.cs", []byte(src))
	require.NoError(t, err)
	return tree
}

// argOf returns the first argument of the first call to method.
func argOf(t *testing.T, tree *syntax.Tree, method string) syntax.NodeID {
	t.Helper()
	for _, id := range tree.Collect(tree.Root(), syntax.KindInvocation) {
		n := tree.Node(id)
		if n.Name == method && len(n.Args) > 0 {
			return n.Args[0]
		}
	}
	t.Fatalf("no call to %s", method)
	return syntax.NoNode
}

func resolveArg(t *testing.T, src, method string) Result {
	t.Helper()
	tree := parseCS(t, src)
	arg := argOf(t, tree, method)
	return New(tree).Resolve(tree.Text(arg), arg)
}

func TestResolveLocal(t *testing.T) {
	t.Parallel()

	res := resolveArg(t, `class A {
    void M() {
        string sql = "usp_Local";
        Exec(sql);
    }
}`, "Exec")
	assert.Equal(t, Literal, res.Outcome())
	assert.Equal(t, []string{"usp_Local"}, res.Values)
}

func TestResolveBranchMerge(t *testing.T) {
	t.Parallel()

	res := resolveArg(t, `class A {
    void M(bool b) {
        string sql = "usp_A";
        if (b) { sql = "usp_B"; } else { sql = "usp_A"; }
        sql += "_suffix";
        Exec(sql);
    }
}`, "Exec")
	assert.Equal(t, "usp_A|usp_B", res.Text())
}

func TestResolveChainedVariables(t *testing.T) {
	t.Parallel()

	res := resolveArg(t, `class A {
    void M() {
        string inner = "usp_Inner";
        string outer = inner;
        Exec(outer);
    }
}`, "Exec")
	assert.Equal(t, []string{"usp_Inner"}, res.Values)
}

func TestResolveCycleTerminates(t *testing.T) {
	t.Parallel()

	res := resolveArg(t, `class A {
    void M() {
        string a = b;
        string b = a;
        Exec(a);
    }
}`, "Exec")
	assert.Equal(t, Unresolved, res.Outcome())
}

func TestResolveOuterBlock(t *testing.T) {
	t.Parallel()

	res := resolveArg(t, `class A {
    void M(bool b) {
        string sql = "usp_Outer";
        if (b) {
            Exec(sql);
        }
    }
}`, "Exec")
	assert.Equal(t, []string{"usp_Outer"}, res.Values)
}

func TestResolveFieldAndProperty(t *testing.T) {
	t.Parallel()

	src := `class Repo {
    private const string Proc = "usp_Field";
    public string Name { get; } = "usp_Prop";
    void M() {
        Exec(this.Proc);
        Exec2(Repo.Proc);
        Exec3(Name);
    }
}`
	tree := parseCS(t, src)
	r := New(tree)

	for method, want := range map[string]string{"Exec": "usp_Field", "Exec2": "usp_Field", "Exec3": "usp_Prop"} {
		arg := argOf(t, tree, method)
		res := r.Resolve(tree.Text(arg), arg)
		assert.Equal(t, []string{want}, res.Values, method)
	}
}

func TestResolveParameterIsPending(t *testing.T) {
	t.Parallel()

	res := resolveArg(t, `namespace Acme.Data {
    class Repo : BaseRepo, IRepo {
        public void Run(int timeout, string proc) {
            Exec(proc);
        }
    }
}`, "Exec")
	require.Equal(t, Pending, res.Outcome())
	require.Len(t, res.Refs, 1)
	assert.Equal(t, &model.PendingRef{
		Classes:   []string{"Repo", "BaseRepo", "IRepo"},
		Method:    "Run",
		Param:     1,
		Namespace: "Acme.Data",
	}, res.Refs[0])
}

func TestResolveLocalShadowsParameter(t *testing.T) {
	t.Parallel()

	res := resolveArg(t, `class Repo {
    void Run(string proc) {
        proc = "usp_Override";
        Exec(proc);
    }
}`, "Exec")
	assert.Equal(t, Literal, res.Outcome())
	assert.Equal(t, []string{"usp_Override"}, res.Values)
}

func TestResolveUnknown(t *testing.T) {
	t.Parallel()

	res := resolveArg(t, `class A { void M() { Exec(Other.Proc); } }`, "Exec")
	assert.Equal(t, Unresolved, res.Outcome())
	assert.Equal(t, "unresolved", res.Outcome().String())
}

func TestResolveNullIgnored(t *testing.T) {
	t.Parallel()

	res := resolveArg(t, `class A {
    void M() {
        string sql = null;
        sql = "usp_Real";
        Exec(sql);
    }
}`, "Exec")
	assert.Equal(t, []string{"usp_Real"}, res.Values)
}

func TestQualifiedLiterals(t *testing.T) {
	t.Parallel()

	tree := parseCS(t, `namespace N {
    class Consts {
        public const string Proc = "usp_Const";
        public const string Proc2 = "usp_Second";
        public static string Name { get; } = "usp_Name";
        class Inner {
            public const string Proc = "usp_Inner";
        }
    }
    class Consts2 {
        public const int Timeout = 30;
        string notLiteral = Consts.Proc;
    }
}`)
	got := QualifiedLiterals(tree)
	assert.Equal(t, map[string]string{
		"Consts.Proc":       "usp_Const",
		"Consts.Proc2":      "usp_Second",
		"Consts.Name":       "usp_Name",
		"Consts.Inner.Proc": "usp_Inner",
		"Consts2.Timeout":   "30",
	}, got)
}
