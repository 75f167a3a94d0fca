// Package query models searches over the triple store and translates them
// into SQL against the Keys and Values relations.
package query

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	storeerrors "github.com/arkilian/nanostore/internal/errors"
)

// Column selects which part of a Values row a predicate tests.
type Column int

const (
	ColumnKey       Column = iota // document identifier
	ColumnAttribute               // key path
	ColumnValue                   // leaf value
)

func (c Column) String() string {
	switch c {
	case ColumnKey:
		return "key"
	case ColumnAttribute:
		return "attribute"
	case ColumnValue:
		return "value"
	default:
		return "unknown"
	}
}

// MatchType is the comparison a predicate applies.
type MatchType int

const (
	EqualTo MatchType = iota
	BeginsWith
	Contains
	EndsWith
	InsensitiveEqualTo
	InsensitiveBeginsWith
	InsensitiveContains
	InsensitiveEndsWith
	GreaterThan
	LessThan
	NotEqualTo
)

var matchTypeNames = map[MatchType]string{
	EqualTo:               "equalTo",
	BeginsWith:            "beginsWith",
	Contains:              "contains",
	EndsWith:              "endsWith",
	InsensitiveEqualTo:    "insensitiveEqualTo",
	InsensitiveBeginsWith: "insensitiveBeginsWith",
	InsensitiveContains:   "insensitiveContains",
	InsensitiveEndsWith:   "insensitiveEndsWith",
	GreaterThan:           "greaterThan",
	LessThan:              "lessThan",
	NotEqualTo:            "notEqualTo",
}

func (m MatchType) String() string {
	if name, ok := matchTypeNames[m]; ok {
		return name
	}
	return "unknown"
}

// ParseMatchType returns the match type named name, ignoring case.
func ParseMatchType(name string) (MatchType, error) {
	for m, n := range matchTypeNames {
		if strings.EqualFold(n, name) {
			return m, nil
		}
	}
	return 0, storeerrors.NewConfigurationError(storeerrors.CodeInvalidParameter,
		fmt.Sprintf("query: unknown match type %q", name))
}

// Valid reports whether m is a known match type.
func (m MatchType) Valid() bool {
	_, ok := matchTypeNames[m]
	return ok
}

// insensitive reports whether m ignores case.
func (m MatchType) insensitive() bool {
	return m >= InsensitiveEqualTo && m <= InsensitiveEndsWith
}

// pattern reports whether m is a substring match.
func (m MatchType) pattern() bool {
	switch m {
	case BeginsWith, Contains, EndsWith, InsensitiveBeginsWith, InsensitiveContains, InsensitiveEndsWith:
		return true
	}
	return false
}

type nullValue struct{}

func (nullValue) String() string { return "NULL" }

// MarshalJSON renders the sentinel as JSON null.
func (nullValue) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// Null is the operand that matches null leaves. A nil operand is treated
// the same way.
var Null = nullValue{}

func isNull(v any) bool {
	if v == nil {
		return true
	}
	_, ok := v.(nullValue)
	return ok
}

// Predicate is a single comparison against one column of a Values row.
type Predicate struct {
	Column Column
	Match  MatchType
	Value  any
}

// NewPredicate returns a predicate testing column with match against value.
func NewPredicate(column Column, match MatchType, value any) *Predicate {
	return &Predicate{Column: column, Match: match, Value: value}
}

func (p *Predicate) String() string {
	return fmt.Sprintf("%s %s %v", p.Column, p.Match, p.Value)
}

func (p *Predicate) describe() map[string]any {
	return map[string]any{
		"column": p.Column.String(),
		"match":  p.Match.String(),
		"value":  describeValue(p.Value),
	}
}

// JSONDescription renders the predicate as indented JSON.
func (p *Predicate) JSONDescription() (string, error) {
	return describeJSON(p.describe())
}

func describeValue(v any) any {
	if isNull(v) {
		return nil
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	return v
}

func describeJSON(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("query: marshal description: %w", err)
	}
	return string(b), nil
}
