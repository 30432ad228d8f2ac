// Package argmap holds the argument map: which positional argument of which
// call carries command text. It loads user rules from the line-oriented
// argument map file and carries rules derived from pending method references.
package argmap

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/phobologic/sprocscan/internal/model"
)

var (
	ErrFieldCount = errors.New("want Qualifier.Method,ArgIndex[,Namespace]")
	ErrArgIndex   = errors.New("argument index must be a non-negative integer")
	ErrMethod     = errors.New("method name is empty")
)

// ConfigError describes one malformed argument map line. The line is
// skipped; the rest of the file still loads.
type ConfigError struct {
	Line int
	Text string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("argmap line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Key addresses the map. Pending keys are derived from method references
// and never collide with a user rule of the same name.
type Key struct {
	Pending bool
	Name    string
}

func (k Key) String() string {
	if k.Pending {
		return "pending:" + k.Name
	}
	return k.Name
}

// Map is a multimap from Key to rules.
type Map struct {
	entries map[Key][]model.Rule
}

// New returns an empty map.
func New() *Map {
	return &Map{entries: make(map[Key][]model.Rule)}
}

// Add stores r under k. An identical rule already under k is not added again.
func (m *Map) Add(k Key, r model.Rule) {
	for _, existing := range m.entries[k] {
		if existing == r {
			return
		}
	}
	m.entries[k] = append(m.entries[k], r)
}

// Lookup returns the rules under k, or nil.
func (m *Map) Lookup(k Key) []model.Rule {
	if m == nil {
		return nil
	}
	return m.entries[k]
}

// Len returns the number of keys.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Keys returns every key, ordinary keys first, each group sorted by name.
func (m *Map) Keys() []Key {
	keys := make([]Key, 0, m.Len())
	if m == nil {
		return keys
	}
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Pending != keys[j].Pending {
			return !keys[i].Pending
		}
		return keys[i].Name < keys[j].Name
	})
	return keys
}

// AddPending registers a derived rule for each Class.Method key of ref and
// returns the number of keys added to.
func (m *Map) AddPending(ref *model.PendingRef) int {
	n := 0
	for _, name := range ref.Keys() {
		m.Add(Key{Pending: true, Name: name}, model.Rule{
			Key:       name,
			ArgIndex:  ref.Param,
			Namespace: ref.Namespace,
			Derived:   true,
		})
		n++
	}
	return n
}

// LoadFile reads an argument map file. A non-nil error means the file could
// not be read; malformed lines are reported through the ConfigError slice.
func LoadFile(path string) (*Map, []*ConfigError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening argument map: %w", err)
	}
	defer f.Close()

	m, cerrs, err := Parse(f)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return m, cerrs, nil
}

// Parse reads argument map lines from r.
func Parse(r io.Reader) (*Map, []*ConfigError, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, nil, err
	}
	m, cerrs := ParseLines(lines)
	return m, cerrs, nil
}

// ParseLines builds a map from argument map lines of the form
//
//	Qualifier.Method,ArgIndex[,Namespace]
//
// The qualifier may list alternatives separated by "|"; each gets its own
// key. A line without a qualifier yields a bare key.
func ParseLines(lines []string) (*Map, []*ConfigError) {
	m := New()
	var cerrs []*ConfigError
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "//") {
			continue
		}
		rules, err := parseLine(trimmed)
		if err != nil {
			cerrs = append(cerrs, &ConfigError{Line: i + 1, Text: line, Err: err})
			continue
		}
		for _, r := range rules {
			m.Add(Key{Name: r.Key}, r)
		}
	}
	return m, cerrs
}

func parseLine(line string) ([]model.Rule, error) {
	parts := strings.Split(line, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return nil, ErrFieldCount
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	idx, err := strconv.Atoi(parts[1])
	if err != nil || idx < 0 {
		return nil, ErrArgIndex
	}
	var ns string
	if len(parts) == 3 {
		ns = parts[2]
	}

	expr := parts[0]
	qualifier, method := "", expr
	if i := strings.LastIndexByte(expr, '.'); i >= 0 {
		qualifier, method = strings.TrimSpace(expr[:i]), strings.TrimSpace(expr[i+1:])
	}
	if method == "" {
		return nil, ErrMethod
	}

	if qualifier == "" {
		return []model.Rule{{Key: method, ArgIndex: idx, Namespace: ns}}, nil
	}
	var rules []model.Rule
	for _, q := range strings.Split(qualifier, model.AltSep) {
		if q = strings.TrimSpace(q); q == "" {
			continue
		}
		key := q + "." + method
		rules = append(rules, model.Rule{Key: key, ArgIndex: idx, Namespace: ns})
	}
	if len(rules) == 0 {
		return nil, ErrMethod
	}
	return rules, nil
}
