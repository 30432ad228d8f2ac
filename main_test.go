package main

import (
	"bytes"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// sampleRepo lays out a code root with a direct call, a call through a
// method parameter and a constant declared in another file.
func sampleRepo(t *testing.T) (root, argMap string) {
	t.Helper()
	root = t.TempDir()
	writeTestFile(t, root, "Program.cs", `class Program {
    void Main() {
        var f = new Foo();
        f.Bar("sp_Example");
    }
}
`)
	writeTestFile(t, root, "Data/OrderRepository.cs", `namespace Shop.Data {
    class OrderRepository {
        public void Load(string proc) {
            Db.Exec(proc);
        }
        void All() {
            Db.Exec(Procs.All);
        }
    }
}
`)
	writeTestFile(t, root, "Web/OrdersPage.cs", `using Shop.Data;
class OrdersPage {
    private OrderRepository repo;
    void Show() { repo.Load("[dbo].[usp_GetOrders]"); }
}
`)
	writeTestFile(t, root, "Data/Procs.cs", `namespace Shop.Data {
    class Procs { public const string All = "usp_AllOrders"; }
}
`)
	writeTestFile(t, root, "obj/Generated.cs", `class Generated { void M() { Db.Exec("usp_Generated"); } }`)

	argMap = writeTestFile(t, t.TempDir(), "argMap.txt", "// rules\nFoo.Bar,0\nDb.Exec,0\n")
	return root, argMap
}

func TestRunUsage(t *testing.T) {
	t.Parallel()

	for _, args := range [][]string{nil, {"a", "b", "c"}} {
		var stdout, stderr bytes.Buffer
		require.NoError(t, run(args, &stdout, &stderr))
		assert.Equal(t, usage+"\n", stdout.String())
	}
}

func TestRunMissingDirectory(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "nope")
	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{missing}, &stdout, &stderr))
	assert.Equal(t, "Directory "+missing+" does not exist. Please retry.\n", stdout.String())
}

func TestRunVersion(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{"--version"}, &stdout, &stderr))
	assert.Equal(t, "sprocscan dev\n", stdout.String())
}

func TestRunEndToEnd(t *testing.T) {
	t.Parallel()
	root, argMap := sampleRepo(t)
	out := filepath.Join(t.TempDir(), "storedprocs.csv")

	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{root, "--argmap", argMap, "--out", out}, &stdout, &stderr), stderr.String())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "File,LineNumber,CommandText,IsVariable,ErrorMsg\n"+
		filepath.Join(root, "Data/OrderRepository.cs")+",7,usp_AllOrders,False,\n"+
		filepath.Join(root, "Program.cs")+",4,sp_Example,False,\n"+
		filepath.Join(root, "Web/OrdersPage.cs")+",4,usp_GetOrders,False,\n", string(data))

	logs := stderr.String()
	assert.Contains(t, logs, "run_id=")
	assert.Contains(t, logs, "msg=analysis.complete")
	assert.Contains(t, logs, "rows=3")
}

func TestRunGlobNarrowsTargets(t *testing.T) {
	t.Parallel()
	root, argMap := sampleRepo(t)
	out := filepath.Join(t.TempDir(), "out.csv")

	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{root, "Program.cs", "--argmap", argMap, "--out", out}, &stdout, &stderr), stderr.String())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "sp_Example")
}

func TestRunTOONWithSQLiteAndMetrics(t *testing.T) {
	t.Parallel()
	root, argMap := sampleRepo(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "out.toon")
	db := filepath.Join(dir, "out.db")
	prom := filepath.Join(dir, "sprocscan.prom")

	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{
		root, "--argmap", argMap, "--out", out, "--format", "toon",
		"--sqlite", db, "--metrics-file", prom, "--workers", "2",
	}, &stdout, &stderr), stderr.String())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "commands[3]{file,line,command_text,is_variable,error}:")

	conn, err := sql.Open("sqlite3", db)
	require.NoError(t, err)
	defer conn.Close()
	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM command_texts`).Scan(&n))
	assert.Equal(t, 3, n)

	metrics, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "sprocscan_pass_files_scanned_total")
}

func TestRunSettingsFile(t *testing.T) {
	t.Parallel()
	root, argMap := sampleRepo(t)
	out := filepath.Join(t.TempDir(), "from-settings.toon")
	writeTestFile(t, root, "sprocscan.yaml", "argmap: "+argMap+"\noutput: "+out+"\nformat: toon\nexclude_dirs: []\n")

	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{root}, &stdout, &stderr), stderr.String())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "usp_Generated")
}

func TestRunFlagOverridesSettings(t *testing.T) {
	t.Parallel()
	root, argMap := sampleRepo(t)
	writeTestFile(t, root, "sprocscan.yaml", "format: toon\n")
	out := filepath.Join(t.TempDir(), "out.csv")

	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{root, "--argmap", argMap, "--out", out, "--format", "csv"}, &stdout, &stderr))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "File,LineNumber,"))
}

func TestRunInvalidArgMapLines(t *testing.T) {
	t.Parallel()
	root, _ := sampleRepo(t)
	dir := t.TempDir()
	argMap := writeTestFile(t, dir, "argMap.txt", "Foo.Bar,zero\nFoo.Bar,0\n")
	out := filepath.Join(dir, "out.csv")

	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{root, "--argmap", argMap, "--out", out}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "argmap.invalid_line")
	assert.Contains(t, stderr.String(), "line=1")

	bad := writeTestFile(t, dir, "bad.txt", "Foo.Bar\n")
	err := run([]string{root, "--argmap", bad, "--out", out}, &stdout, &stderr)
	assert.ErrorContains(t, err, "has no rules")
}

func TestRunErrors(t *testing.T) {
	t.Parallel()
	root, argMap := sampleRepo(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing argmap", []string{root, "--argmap", filepath.Join(t.TempDir(), "none.txt")}, "opening argument map"},
		{"bad format", []string{root, "--argmap", argMap, "--format", "xml"}, "unknown format"},
		{"bad max hops", []string{root, "--argmap", argMap, "--max-hops", "0"}, "max_hops"},
		{"unwritable output", []string{root, "--argmap", argMap, "--out", filepath.Join(t.TempDir(), "no", "such", "dir.csv")}, "creating report"},
		{"bad glob", []string{root, "[", "--argmap", argMap}, "file glob"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var stdout, stderr bytes.Buffer
			err := run(tt.args, &stdout, &stderr)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}
