// Package parse turns source files into lowered syntax trees using pooled
// tree-sitter parsers and an optional content-hash tree cache.
package parse

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/zeebo/xxh3"

	"github.com/phobologic/sprocscan/internal/lang"
	"github.com/phobologic/sprocscan/internal/syntax"
)

// Parser parses files of every registered language. It is safe for
// concurrent use; each call borrows a tree-sitter parser from a
// per-language pool.
type Parser struct {
	maxFileSize int64
	logger      *slog.Logger
	pools       map[string]*sync.Pool

	cacheOn bool
	mu      sync.Mutex
	cache   map[string]cached
}

type cached struct {
	sum  uint64
	tree *syntax.Tree
}

// Option configures a Parser.
type Option func(*Parser)

// WithMaxFileSize rejects files larger than n bytes. Zero means no limit.
func WithMaxFileSize(n int64) Option {
	return func(p *Parser) { p.maxFileSize = n }
}

// WithCache keeps lowered trees keyed by path and content hash, so later
// passes over an unchanged file skip parsing.
func WithCache(on bool) Option {
	return func(p *Parser) { p.cacheOn = on }
}

// WithLogger sets the logger used for parse warnings.
func WithLogger(l *slog.Logger) Option {
	return func(p *Parser) { p.logger = l }
}

// New returns a Parser.
func New(opts ...Option) *Parser {
	p := &Parser{
		logger: slog.Default(),
		pools:  make(map[string]*sync.Pool),
		cache:  make(map[string]cached),
	}
	for _, o := range opts {
		o(p)
	}
	for name, l := range lang.Languages {
		p.pools[name] = &sync.Pool{New: func() any { return l.NewParser() }}
	}
	return p
}

// ParseFile reads and parses the file at path.
func (p *Parser) ParseFile(ctx context.Context, path string) (*syntax.Tree, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if p.maxFileSize > 0 && info.Size() > p.maxFileSize {
		return nil, fmt.Errorf("%s: %d bytes exceeds limit of %d", path, info.Size(), p.maxFileSize)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return p.Parse(ctx, path, src)
}

// Parse parses src as the language selected by the extension of path.
func (p *Parser) Parse(ctx context.Context, path string, src []byte) (*syntax.Tree, error) {
	name := lang.ForExtension(filepath.Ext(path))
	if name == "" {
		return nil, fmt.Errorf("%s: unsupported file type", path)
	}

	var sum uint64
	if p.cacheOn {
		sum = xxh3.Hash(src)
		p.mu.Lock()
		c, ok := p.cache[path]
		p.mu.Unlock()
		if ok && c.sum == sum {
			return c.tree, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l := lang.Languages[name]
	pool := p.pools[name]
	sp := pool.Get().(*sitter.Parser)
	// A pooled parser never sees a cancellable context: a cancellation
	// observed after the parse finished would stick to the parser.
	st, err := sp.ParseCtx(context.Background(), nil, src)
	pool.Put(sp)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	defer st.Close()

	root := st.RootNode()
	if root.HasError() {
		// tree-sitter recovers; the lowered tree is still usable.
		p.logger.Warn("parse.syntax_error", "file", path)
	}
	tree := l.Lower(root, src, path)

	if p.cacheOn {
		p.mu.Lock()
		p.cache[path] = cached{sum: sum, tree: tree}
		p.mu.Unlock()
	}
	return tree, nil
}

// cachedTrees returns the number of trees held in the cache.
func (p *Parser) cachedTrees() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cache)
}
