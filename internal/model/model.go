// Package model defines the core data structures shared by the scanner, the
// pass orchestration and the report writers.
package model

import (
	"strconv"
	"strings"
)

// AltSep separates alternative values merged into one command text.
const AltSep = "|"

// Rule says which positional argument of a call carries command text.
// Namespace, when set, restricts the rule to call sites whose file declares
// or imports it. Derived rules come from pending method references rather
// than the user's configuration.
type Rule struct {
	Key       string
	ArgIndex  int
	Namespace string
	Derived   bool
}

// PendingRef names a method parameter whose value is only known at the
// method's call sites. Classes holds the declaring type followed by its
// declared base types.
type PendingRef struct {
	Classes   []string
	Method    string
	Param     int
	Namespace string
}

// String renders the reference as Class|Base.Method:index:namespace.
func (p *PendingRef) String() string {
	return strings.Join(p.Classes, AltSep) + "." + p.Method + ":" + strconv.Itoa(p.Param) + ":" + p.Namespace
}

// Keys returns the Class.Method keys under which the reference is looked up.
func (p *PendingRef) Keys() []string {
	keys := make([]string, 0, len(p.Classes))
	for _, c := range p.Classes {
		if c == "" {
			continue
		}
		keys = append(keys, c+"."+p.Method)
	}
	return keys
}

// Record is one extracted occurrence. Text is a literal value, the
// AltSep-joined alternatives of a resolved variable, or the raw source text
// of an unresolved expression. A record whose Ref is set stands for a
// pending method reference and never reaches the final report.
type Record struct {
	File       string
	Line       int
	Text       string
	Unresolved bool
	Err        string
	Ref        *PendingRef
}

// IsPending reports whether r defers to the call sites of a method.
func (r *Record) IsPending() bool {
	return r.Ref != nil
}

// Alternatives splits Text on AltSep.
func (r *Record) Alternatives() []string {
	return strings.Split(r.Text, AltSep)
}

// RecordKey identifies a record for deduplication.
type RecordKey struct {
	File       string
	Line       int
	Text       string
	Unresolved bool
	Err        string
	Ref        string
}

// Key returns the deduplication key of r.
func (r *Record) Key() RecordKey {
	k := RecordKey{File: r.File, Line: r.Line, Text: r.Text, Unresolved: r.Unresolved, Err: r.Err}
	if r.Ref != nil {
		k.Ref = r.Ref.String()
	}
	return k
}

// Row is one line of the final report.
type Row struct {
	File        string
	LineNumber  int
	CommandText string
	IsVariable  bool
	ErrorMsg    string
}
