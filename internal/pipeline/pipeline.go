// Package pipeline drives the extraction passes over a corpus.
//
// Pass 1 scans the target files with the user's argument map. Pass 2 turns
// the pending method references found so far into derived rules and
// rescans the whole corpus for the methods' call sites. Pass 3 resolves the
// remaining unresolved names against literal declarations anywhere in the
// corpus. Work inside a pass runs in parallel; state shared between passes
// is only touched between passes, and results keep corpus order.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/phobologic/sprocscan/internal/argmap"
	"github.com/phobologic/sprocscan/internal/metrics"
	"github.com/phobologic/sprocscan/internal/model"
	"github.com/phobologic/sprocscan/internal/parse"
	"github.com/phobologic/sprocscan/internal/resolve"
	"github.com/phobologic/sprocscan/internal/scan"
)

const (
	passTargets  = "1"
	passCallers  = "2"
	passLiterals = "3"
)

// Options configures a Pipeline. Zero values pick defaults.
type Options struct {
	Workers int // defaults to GOMAXPROCS
	MaxHops int // rounds of caller propagation, defaults to 1

	Logger  *slog.Logger
	Tracer  trace.Tracer
	Metrics *metrics.Metrics
	Parser  *parse.Parser
	Scan    scan.Options
}

// Input is what one run analyzes.
type Input struct {
	Targets []string // files matching the user's glob
	Corpus  []string // every source file under the code root
	Map     *argmap.Map
}

// Stats summarizes a run.
type Stats struct {
	Targets    int
	Corpus     int
	Derived    int // distinct pending references turned into rules
	Hops       int // caller-propagation rounds that ran
	Flipped    int // unresolved records resolved by pass 3
	Unresolved int // records still unresolved at the end
	FileErrors int
}

// Result holds the records of a run. Pending references are already
// removed.
type Result struct {
	Records []model.Record
	Stats   Stats
}

// Pipeline runs the passes.
type Pipeline struct {
	opts Options
	log  *slog.Logger
}

// New returns a Pipeline.
func New(opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.MaxHops <= 0 {
		opts.MaxHops = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer("sprocscan/pipeline")
	}
	if opts.Parser == nil {
		opts.Parser = parse.New(parse.WithLogger(opts.Logger))
	}
	if opts.Scan.InitializerProperties == nil && opts.Scan.SkipReceivers == nil {
		opts.Scan = scan.DefaultOptions()
	}
	return &Pipeline{opts: opts, log: opts.Logger}
}

// Run executes every pass and returns the extracted records.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Result, error) {
	ctx, span := p.opts.Tracer.Start(ctx, "pipeline.Run", trace.WithAttributes(
		attribute.Int("targets", len(in.Targets)),
		attribute.Int("corpus", len(in.Corpus)),
	))
	defer span.End()

	if in.Map == nil || in.Map.Len() == 0 {
		return nil, fmt.Errorf("argument map is empty")
	}
	res := &Result{Stats: Stats{Targets: len(in.Targets), Corpus: len(in.Corpus)}}

	records, err := p.pass(ctx, passTargets, in.Targets, in.Map)
	if err != nil {
		return nil, err
	}

	records, err = p.propagate(ctx, in.Corpus, records, &res.Stats)
	if err != nil {
		return nil, err
	}

	if err := p.lookupLiterals(ctx, in.Corpus, records, &res.Stats); err != nil {
		return nil, err
	}

	out := records[:0]
	for _, r := range records {
		switch {
		case r.IsPending():
			continue
		case r.Err != "":
			res.Stats.FileErrors++
		case r.Unresolved:
			res.Stats.Unresolved++
		}
		out = append(out, r)
	}
	res.Records = out
	p.opts.Metrics.SetUnresolved(res.Stats.Unresolved)
	span.SetAttributes(attribute.Int("records", len(out)), attribute.Int("unresolved", res.Stats.Unresolved))
	return res, nil
}

// propagate runs pass 2: pending references become derived rules and the
// corpus is rescanned for their call sites. Each reference is derived once;
// references found by a round seed the next, up to MaxHops rounds.
func (p *Pipeline) propagate(ctx context.Context, corpus []string, records []model.Record, st *Stats) ([]model.Record, error) {
	seen := make(map[string]bool)
	frontier := records
	for hop := 0; hop < p.opts.MaxHops; hop++ {
		derived := argmap.New()
		for _, r := range frontier {
			if r.Ref == nil || seen[r.Ref.String()] {
				continue
			}
			seen[r.Ref.String()] = true
			derived.AddPending(r.Ref)
			st.Derived++
		}
		if derived.Len() == 0 {
			if hop == 0 {
				p.log.Info("pass.skip", "pass", passCallers, "reason", "no referenced methods")
			}
			break
		}
		p.log.Info("pass.derived", "pass", passCallers, "hop", hop+1, "rules", derived.Len())

		found, err := p.pass(ctx, passCallers, corpus, derived)
		if err != nil {
			return nil, err
		}
		st.Hops++
		records = append(records, found...)
		frontier = found
	}
	return records, nil
}

// pass scans files in parallel with m and returns their records in file
// order. A file that cannot be read or parsed yields one error record.
func (p *Pipeline) pass(ctx context.Context, pass string, files []string, m *argmap.Map) ([]model.Record, error) {
	ctx, span := p.opts.Tracer.Start(ctx, "pipeline.pass"+pass, trace.WithAttributes(
		attribute.Int("files", len(files)),
		attribute.Int("rules", m.Len()),
	))
	defer span.End()
	start := time.Now()
	p.log.Info("pass.start", "pass", pass, "files", len(files))

	sc := scan.New(m, p.opts.Scan)
	perFile := make([][]model.Record, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p.log.Debug("pass.file", "pass", pass, "file", path)
			tree, err := p.opts.Parser.ParseFile(gctx, path)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				p.log.Warn("pass.file.err", "pass", pass, "file", path, "err", err)
				p.opts.Metrics.FileError(pass)
				perFile[i] = []model.Record{{File: path, Err: err.Error()}}
				return nil
			}
			perFile[i] = sc.Scan(tree)
			p.opts.Metrics.FileScanned(pass)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("pass %s: %w", pass, err)
	}

	var out []model.Record
	for _, recs := range perFile {
		out = append(out, recs...)
	}
	p.countKinds(pass, out)

	elapsed := time.Since(start)
	p.opts.Metrics.PassDone(pass, elapsed)
	span.SetAttributes(attribute.Int("records", len(out)))
	p.log.Info("pass.done", "pass", pass, "records", len(out), "elapsed", elapsed)
	return out, nil
}

func (p *Pipeline) countKinds(pass string, recs []model.Record) {
	var literal, unresolved, pending, failed int
	for _, r := range recs {
		switch {
		case r.IsPending():
			pending++
		case r.Err != "":
			failed++
		case r.Unresolved:
			unresolved++
		default:
			literal++
		}
	}
	p.opts.Metrics.Records(pass, "literal", literal)
	p.opts.Metrics.Records(pass, "unresolved", unresolved)
	p.opts.Metrics.Records(pass, "pending", pending)
	p.opts.Metrics.Records(pass, "error", failed)
}

// lookupLiterals runs pass 3. It reads the corpus in chunks, building the
// project-wide map from qualified variable name to literal, and resolves
// unresolved records in place. The first declaration in corpus order wins.
// It stops once every unresolved record is resolved.
func (p *Pipeline) lookupLiterals(ctx context.Context, corpus []string, records []model.Record, st *Stats) error {
	wanted := make(map[string][]int)
	for i, r := range records {
		if r.Unresolved && !r.IsPending() && r.Err == "" {
			wanted[r.Text] = append(wanted[r.Text], i)
		}
	}
	if len(wanted) == 0 {
		p.log.Info("pass.skip", "pass", passLiterals, "reason", "no variables to lookup")
		return nil
	}

	ctx, span := p.opts.Tracer.Start(ctx, "pipeline.pass"+passLiterals, trace.WithAttributes(
		attribute.Int("files", len(corpus)),
		attribute.Int("names", len(wanted)),
	))
	defer span.End()
	start := time.Now()
	p.log.Info("pass.start", "pass", passLiterals, "files", len(corpus), "names", len(wanted))

	chunk := p.opts.Workers * 4
	scanned := 0
	for lo := 0; lo < len(corpus) && len(wanted) > 0; lo += chunk {
		hi := min(lo+chunk, len(corpus))
		lits, err := p.literals(ctx, corpus[lo:hi])
		if err != nil {
			return err
		}
		for _, fileLits := range lits {
			for name, idxs := range wanted {
				v, ok := fileLits[name]
				if !ok {
					continue
				}
				for _, i := range idxs {
					records[i].Text = v
					records[i].Unresolved = false
					st.Flipped++
				}
				delete(wanted, name)
			}
		}
		scanned = hi
	}

	elapsed := time.Since(start)
	p.opts.Metrics.PassDone(passLiterals, elapsed)
	span.SetAttributes(attribute.Int("resolved", st.Flipped), attribute.Int("scanned", scanned))
	p.log.Info("pass.done", "pass", passLiterals, "resolved", st.Flipped, "files", scanned, "elapsed", elapsed)
	return nil
}

// literals returns the qualified literal map of each file, in file order.
func (p *Pipeline) literals(ctx context.Context, files []string) ([]map[string]string, error) {
	out := make([]map[string]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p.log.Debug("pass.file", "pass", passLiterals, "file", path)
			tree, err := p.opts.Parser.ParseFile(gctx, path)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				p.log.Warn("pass.file.err", "pass", passLiterals, "file", path, "err", err)
				p.opts.Metrics.FileError(passLiterals)
				return nil
			}
			out[i] = resolve.QualifiedLiterals(tree)
			p.opts.Metrics.FileScanned(passLiterals)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("pass %s: %w", passLiterals, err)
	}
	return out, nil
}
