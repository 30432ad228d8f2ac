package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

const (
	sentinelStart = "// sprocscan:start"
	sentinelEnd   = "// sprocscan:end"
)

// defaultRules covers the ADO.NET command types, the Microsoft Data
// Application Block helpers and JDBC callable statements.
var defaultRules = []string{
	"SqlCommand,0",
	"SqlDataAdapter,0",
	"OleDbCommand,0",
	"OdbcCommand,0",
	"SqlHelper.ExecuteReader,1",
	"SqlHelper.ExecuteReader,2",
	"SqlHelper.ExecuteNonQuery,1",
	"SqlHelper.ExecuteNonQuery,2",
	"SqlHelper.ExecuteDataset,1",
	"SqlHelper.ExecuteDataset,2",
	"SqlHelper.ExecuteScalar,1",
	"SqlHelper.ExecuteScalar,2",
	"Connection.prepareCall,0,java.sql",
}

func newInitCmd(stdout, stderr io.Writer) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "init [path-to-argMap.txt]",
		Short: "Write a starter argument map",
		Long: `Write the default rules to an argument map file. The rules are wrapped in
sentinel comments so they can be updated in place on later runs without
touching rules added around them. Creates the file if it does not exist.

The path defaults to ./argMap.txt.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(args, dryRun, stdout, stderr)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print what would be written without modifying the file")
	return cmd
}

func runInit(args []string, dryRun bool, stdout, stderr io.Writer) error {
	section := generateSection()

	// --dry-run with no path: just print the section itself.
	if dryRun && len(args) == 0 {
		_, _ = fmt.Fprintln(stdout, section)
		return nil
	}

	path := defaultArgMap
	if len(args) > 0 {
		path = args[0]
	}

	existing, _ := os.ReadFile(path)
	updated := applySection(string(existing), section)

	if dryRun {
		_, _ = fmt.Fprint(stdout, updated)
		return nil
	}

	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	_, _ = fmt.Fprintf(stderr, "wrote default rules to %s\n", path)
	return nil
}

// generateSection returns the sentinel-wrapped block of default rules.
func generateSection() string {
	var b strings.Builder
	b.WriteString(sentinelStart + "\n")
	b.WriteString("// Qualifier.Method,ArgIndex[,Namespace]. A bare type name matches its constructor.\n")
	b.WriteString("// Rules outside this block are kept by `sprocscan init`.\n")
	for _, r := range defaultRules {
		b.WriteString(r + "\n")
	}
	b.WriteString(sentinelEnd)
	return b.String()
}

// applySection inserts section into content, replacing an existing sentinel
// block if present or appending if not. It is a pure function for easy testing.
func applySection(content, section string) string {
	start := strings.Index(content, sentinelStart)
	end := strings.Index(content, sentinelEnd)

	if start >= 0 && end > start {
		return content[:start] + section + content[end+len(sentinelEnd):]
	}

	// Append, ensuring a blank line separator.
	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if len(content) == 0 {
		return section + "\n"
	}
	return content + "\n" + section + "\n"
}
