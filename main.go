// sprocscan extracts the stored procedure names and command texts passed to
// data-access calls in a C# or Java code base.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/phobologic/sprocscan/internal/argmap"
	"github.com/phobologic/sprocscan/internal/config"
	"github.com/phobologic/sprocscan/internal/discover"
	"github.com/phobologic/sprocscan/internal/metrics"
	"github.com/phobologic/sprocscan/internal/model"
	"github.com/phobologic/sprocscan/internal/parse"
	"github.com/phobologic/sprocscan/internal/pipeline"
	"github.com/phobologic/sprocscan/internal/report"
	"github.com/phobologic/sprocscan/internal/scan"
)

var version = "dev"

const (
	usage          = "Usage: sprocscan <code-root-path> [file-glob]"
	defaultArgMap  = "argMap.txt"
	missingRootMsg = "Directory %s does not exist. Please retry.\n"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if args == nil {
		// cobra reads os.Args when given nil
		args = []string{}
	}
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

type flags struct {
	argMap      string
	out         string
	format      string
	sqlite      string
	configPath  string
	metricsFile string
	workers     int
	maxHops     int
	verbose     bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "sprocscan <code-root-path> [file-glob]",
		Short: "Extract stored procedure command texts from C# and Java sources",
		Long: `sprocscan scans the source files under a code root for calls described by an
argument map and writes every command text passed to them. Values held in
variables are traced through assignments, fields and the call sites of the
enclosing method.`,
		Args:          cobra.ArbitraryArgs,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return analyze(cmd, args, &f, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetVersionTemplate("sprocscan {{.Version}}\n")
	cmd.CompletionOptions.DisableDefaultCmd = true

	fl := cmd.Flags()
	fl.StringVar(&f.argMap, "argmap", "", "argument map file (default argMap.txt next to the executable, then the working directory)")
	fl.StringVarP(&f.out, "out", "o", "", "report file (default storedprocs.csv)")
	fl.StringVar(&f.format, "format", "", "report format: csv or toon")
	fl.StringVar(&f.sqlite, "sqlite", "", "also write the report to this SQLite database")
	fl.StringVar(&f.configPath, "config", "", "settings file (default <code-root>/"+config.FileName+" when present)")
	fl.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics in textfile format to this path")
	fl.IntVar(&f.workers, "workers", 0, "files scanned in parallel (default GOMAXPROCS)")
	fl.IntVar(&f.maxHops, "max-hops", 0, "rounds of caller propagation (default 1)")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "log every file")

	cmd.AddCommand(newInitCmd(stdout, stderr))
	return cmd
}

func analyze(cmd *cobra.Command, args []string, f *flags, stdout, stderr io.Writer) error {
	if len(args) == 0 || len(args) > 2 {
		_, _ = fmt.Fprintln(stdout, usage)
		return nil
	}
	root := args[0]
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		_, _ = fmt.Fprintf(stdout, missingRootMsg, root)
		return nil
	}
	var glob string
	if len(args) == 2 {
		glob = args[1]
	}

	settings, err := loadSettings(cmd, f, root)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	level := slog.LevelInfo
	if f.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})).With("run_id", runID)
	start := time.Now()
	ctx := cmd.Context()

	m, err := loadArgMap(settings.ArgMap, logger)
	if err != nil {
		return err
	}

	targets, err := sourceFiles(root, glob, settings)
	if err != nil {
		return err
	}
	corpus, err := sourceFiles(root, "", settings)
	if err != nil {
		return err
	}
	logger.Info("analysis.start", "root", root, "glob", glob, "targets", len(targets), "corpus", len(corpus), "rules", m.Len())

	reg := metrics.New()
	p := pipeline.New(pipeline.Options{
		Workers: settings.Workers,
		MaxHops: settings.MaxHops,
		Logger:  logger,
		Metrics: reg,
		Parser: parse.New(
			parse.WithMaxFileSize(settings.MaxFileSize),
			parse.WithCache(settings.CacheTrees),
			parse.WithLogger(logger),
		),
		Scan: scan.Options{
			InitializerProperties: settings.InitializerProperties,
			SkipReceivers:         settings.SkipReceivers,
		},
	})
	res, err := p.Run(ctx, pipeline.Input{Targets: targets, Corpus: corpus, Map: m})
	if err != nil {
		return fmt.Errorf("analysis: %w", err)
	}

	rows := report.Aggregate(res.Records, settings.StripPrefixes)
	if err := writeReport(settings.Output, settings.Format, root, rows); err != nil {
		return err
	}
	if settings.SQLite != "" {
		if err := report.WriteSQLite(ctx, settings.SQLite, runID, rows); err != nil {
			return fmt.Errorf("writing %s: %w", settings.SQLite, err)
		}
	}
	if settings.MetricsFile != "" {
		if err := reg.WriteFile(settings.MetricsFile); err != nil {
			return err
		}
	}

	logger.Info("analysis.complete",
		"rows", len(rows),
		"unresolved", res.Stats.Unresolved,
		"file_errors", res.Stats.FileErrors,
		"output", settings.Output,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

// loadSettings reads the settings file and lays explicitly set flags over it.
func loadSettings(cmd *cobra.Command, f *flags, root string) (*config.Settings, error) {
	var (
		s   *config.Settings
		err error
	)
	if f.configPath != "" {
		s, err = config.Load(f.configPath)
	} else {
		s, err = config.LoadDir(root)
	}
	if err != nil {
		return nil, err
	}

	fl := cmd.Flags()
	if fl.Changed("argmap") {
		s.ArgMap = f.argMap
	}
	if fl.Changed("out") {
		s.Output = f.out
	}
	if fl.Changed("format") {
		s.Format = f.format
	}
	if fl.Changed("sqlite") {
		s.SQLite = f.sqlite
	}
	if fl.Changed("metrics-file") {
		s.MetricsFile = f.metricsFile
	}
	if fl.Changed("workers") {
		s.Workers = f.workers
	}
	if fl.Changed("max-hops") {
		s.MaxHops = f.maxHops
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// loadArgMap loads the argument map and logs each malformed line.
func loadArgMap(path string, logger *slog.Logger) (*argmap.Map, error) {
	if path == "" {
		path = findArgMap()
	}
	m, cerrs, err := argmap.LoadFile(path)
	if err != nil {
		return nil, err
	}
	for _, ce := range cerrs {
		logger.Warn("argmap.invalid_line", "path", path, "line", ce.Line, "text", ce.Text, "err", ce.Err)
	}
	if m.Len() == 0 {
		return nil, fmt.Errorf("argument map %s has no rules", path)
	}
	return m, nil
}

// findArgMap looks for argMap.txt next to the executable, then falls back
// to the working directory.
func findArgMap() string {
	if exe, err := os.Executable(); err == nil {
		path := filepath.Join(filepath.Dir(exe), defaultArgMap)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return defaultArgMap
}

func sourceFiles(root, glob string, s *config.Settings) ([]string, error) {
	entries, err := discover.Files(root, discover.Options{
		Glob:        glob,
		ExcludeDirs: s.ExcludeDirs,
		Extensions:  s.Extensions,
	})
	if err != nil {
		return nil, fmt.Errorf("discovering files: %w", err)
	}
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = filepath.Join(root, e.Path)
	}
	return paths, nil
}

func writeReport(path, format, root string, rows []model.Row) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating report: %w", err)
	}
	defer func() {
		err = errors.Join(err, out.Close())
	}()

	switch format {
	case "toon":
		return report.WriteTOON(out, filepath.Base(root), rows)
	default:
		return report.WriteCSV(out, rows)
	}
}
