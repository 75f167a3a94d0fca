package query

import (
	"fmt"
	"strings"
	"time"

	storeerrors "github.com/arkilian/nanostore/internal/errors"
)

// ReturnType selects what a search returns.
type ReturnType int

const (
	ReturnObjects ReturnType = iota // hydrated documents
	ReturnKeys                      // identifiers only
)

func (r ReturnType) String() string {
	if r == ReturnKeys {
		return "keys"
	}
	return "objects"
}

// SortDescriptor orders object results by the value at an attribute path.
type SortDescriptor struct {
	Attribute string
	Ascending bool
}

// NewSortDescriptor returns a descriptor sorting by attribute.
func NewSortDescriptor(attribute string, ascending bool) SortDescriptor {
	return SortDescriptor{Attribute: attribute, Ascending: ascending}
}

func (d SortDescriptor) String() string {
	dir := "DESC"
	if d.Ascending {
		dir = "ASC"
	}
	return d.Attribute + " " + dir
}

// KeySet is anything enumerating document identifiers, such as a bag.
type KeySet interface {
	Keys() []string
}

// Aggregate is a scalar function computed over one attribute.
type Aggregate int

const (
	AggregateAverage Aggregate = iota
	AggregateCount
	AggregateMax
	AggregateMin
	AggregateTotal
)

var aggregateFuncs = map[Aggregate]string{
	AggregateAverage: "avg",
	AggregateCount:   "count",
	AggregateMax:     "max",
	AggregateMin:     "min",
	AggregateTotal:   "total",
}

func (a Aggregate) String() string {
	if fn, ok := aggregateFuncs[a]; ok {
		return fn
	}
	return "unknown"
}

// ParseAggregate maps a function name to its Aggregate.
func ParseAggregate(name string) (Aggregate, error) {
	for a, fn := range aggregateFuncs {
		if strings.EqualFold(fn, name) || (a == AggregateTotal && strings.EqualFold(name, "sum")) {
			return a, nil
		}
	}
	return 0, storeerrors.NewConfigurationError(storeerrors.CodeInvalidParameter,
		fmt.Sprintf("query: unknown aggregate %q", name))
}

// DateMatch selects how the added date of a document is compared.
type DateMatch int

const (
	AddedBefore DateMatch = iota
	AddedOn
	AddedAfter
)

// Search describes one query. The zero value is not ready for use; call
// NewSearch or Reset.
type Search struct {
	// Simple search: any of Key, Attribute and Value, tested on the same
	// Values row. Ignored when Expressions is non-empty.
	Key       string
	Attribute string
	Value     any
	Match     MatchType

	// Expressions combine with OR.
	Expressions []*Expression

	// AttributesToBeReturned limits object results to these top-level
	// attributes.
	AttributesToBeReturned []string

	// SortDescriptors apply to object results in priority order.
	SortDescriptors []SortDescriptor

	FilterClass string
	GroupValues bool
	Limit       int
	Offset      int

	// Bag restricts matches to its members. A bag with no members matches
	// nothing.
	Bag KeySet

	ReturnType ReturnType
}

// NewSearch returns a search with default settings.
func NewSearch() *Search {
	s := &Search{}
	s.Reset()
	return s
}

// Reset restores every setting to its default.
func (s *Search) Reset() {
	*s = Search{Match: Contains, ReturnType: ReturnObjects}
}

// hasSimpleFilter reports whether any simple search field is set.
func (s *Search) hasSimpleFilter() bool {
	return s.Key != "" || s.Attribute != "" || s.Value != nil
}

// Validate checks the search configuration without touching storage.
func (s *Search) Validate() error {
	if !s.Match.Valid() {
		return storeerrors.NewConfigurationError(storeerrors.CodeInvalidParameter,
			fmt.Sprintf("query: unknown match type %d", s.Match))
	}
	if s.Limit < 0 || s.Offset < 0 {
		return storeerrors.NewConfigurationError(storeerrors.CodeInvalidParameter,
			fmt.Sprintf("query: limit and offset must not be negative (limit=%d, offset=%d)", s.Limit, s.Offset))
	}
	if s.ReturnType != ReturnObjects && s.ReturnType != ReturnKeys {
		return storeerrors.NewConfigurationError(storeerrors.CodeInvalidParameter,
			fmt.Sprintf("query: unknown return type %d", s.ReturnType))
	}
	for i, e := range s.Expressions {
		if e == nil {
			return storeerrors.NewConfigurationError(storeerrors.CodeInvalidParameter,
				fmt.Sprintf("query: expression %d is nil", i))
		}
		if err := e.Validate(); err != nil {
			return err
		}
	}
	for _, d := range s.SortDescriptors {
		if d.Attribute == "" {
			return storeerrors.NewConfigurationError(storeerrors.CodeInvalidParameter, "query: sort descriptor without attribute")
		}
	}
	return nil
}

func (s *Search) String() string {
	var parts []string
	if len(s.Expressions) > 0 {
		exprs := make([]string, len(s.Expressions))
		for i, e := range s.Expressions {
			exprs[i] = "[" + e.String() + "]"
		}
		parts = append(parts, "expressions="+strings.Join(exprs, " OR "))
	} else if s.hasSimpleFilter() {
		parts = append(parts, fmt.Sprintf("key=%q attribute=%q value=%v match=%s", s.Key, s.Attribute, s.Value, s.Match))
	}
	if s.FilterClass != "" {
		parts = append(parts, "class="+s.FilterClass)
	}
	if len(s.SortDescriptors) > 0 {
		sorts := make([]string, len(s.SortDescriptors))
		for i, d := range s.SortDescriptors {
			sorts[i] = d.String()
		}
		parts = append(parts, "sort="+strings.Join(sorts, ","))
	}
	if s.Limit > 0 || s.Offset > 0 {
		parts = append(parts, fmt.Sprintf("limit=%d offset=%d", s.Limit, s.Offset))
	}
	parts = append(parts, "returns="+s.ReturnType.String())
	return "Search{" + strings.Join(parts, " ") + "}"
}

// JSONDescription renders the search as indented JSON.
func (s *Search) JSONDescription() (string, error) {
	exprs := make([]any, len(s.Expressions))
	for i, e := range s.Expressions {
		if e != nil {
			exprs[i] = e.describe()
		}
	}
	sorts := make([]map[string]any, len(s.SortDescriptors))
	for i, d := range s.SortDescriptors {
		sorts[i] = map[string]any{"attribute": d.Attribute, "ascending": d.Ascending}
	}
	out := map[string]any{
		"key":                    s.Key,
		"attribute":              s.Attribute,
		"value":                  describeValue(s.Value),
		"match":                  s.Match.String(),
		"expressions":            exprs,
		"attributesToBeReturned": s.AttributesToBeReturned,
		"sortDescriptors":        sorts,
		"filterClass":            s.FilterClass,
		"groupValues":            s.GroupValues,
		"limit":                  s.Limit,
		"offset":                 s.Offset,
		"bagScoped":              s.Bag != nil,
		"returnType":             s.ReturnType.String(),
	}
	return describeJSON(out)
}

// dateBound is the added-date restriction of BuildAddedDate.
type dateBound struct {
	match DateMatch
	date  time.Time
}
