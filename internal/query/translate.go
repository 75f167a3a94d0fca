package query

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	storeerrors "github.com/arkilian/nanostore/internal/errors"
	"github.com/arkilian/nanostore/pkg/types"
)

// Statement is a parameterized SQL statement produced by the Translator.
type Statement struct {
	SQL  string
	Args []any

	// Attributes lists the attribute paths the filter tests, for usage
	// statistics.
	Attributes []string
}

// Translator converts searches into SQL against the triple store.
type Translator struct {
	indexed map[string]bool
}

// NewTranslator returns a translator. Attribute paths listed in indexed
// carry a partial index; predicates on them are emitted with the path
// inlined so the index is usable.
func NewTranslator(indexed ...string) *Translator {
	t := &Translator{indexed: make(map[string]bool, len(indexed))}
	for _, a := range indexed {
		t.indexed[a] = true
	}
	return t
}

// sqlBuilder accumulates SQL text and its arguments.
type sqlBuilder struct {
	args       []any
	attributes map[string]bool
}

func (b *sqlBuilder) bind(v any) string {
	b.args = append(b.args, v)
	return "?"
}

func (b *sqlBuilder) noteAttribute(path string) {
	if b.attributes == nil {
		b.attributes = make(map[string]bool)
	}
	b.attributes[path] = true
}

func (b *sqlBuilder) attributeList() []string {
	out := make([]string, 0, len(b.attributes))
	for a := range b.attributes {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Build translates a search into a statement returning either identifiers
// (column NSFKey) or the columns hydration needs.
func (t *Translator) Build(s *Search) (Statement, error) {
	return t.build(s, nil)
}

// BuildAddedDate translates a search further restricted to documents added
// before, on or after date.
func (t *Translator) BuildAddedDate(s *Search, match DateMatch, date time.Time) (Statement, error) {
	if match < AddedBefore || match > AddedAfter {
		return Statement{}, storeerrors.NewConfigurationError(storeerrors.CodeInvalidParameter,
			fmt.Sprintf("query: unknown date match %d", match))
	}
	return t.build(s, &dateBound{match: match, date: date})
}

func (t *Translator) build(s *Search, bound *dateBound) (Statement, error) {
	if err := s.Validate(); err != nil {
		return Statement{}, err
	}

	b := &sqlBuilder{}
	where, err := t.keyConditions(b, s, bound)
	if err != nil {
		return Statement{}, err
	}

	var sql strings.Builder
	if s.ReturnType == ReturnKeys {
		sql.WriteString("SELECT k.NSFKey FROM NSFKeys k")
	} else {
		sql.WriteString("SELECT k.NSFKey, k.NSFKeyedArchive, k.NSFObjectClass FROM NSFKeys k")
	}
	if len(where) > 0 {
		sql.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	sql.WriteString(" ORDER BY k.ROWID")
	if s.Limit > 0 || s.Offset > 0 {
		limit := s.Limit
		if limit == 0 {
			limit = -1
		}
		sql.WriteString(" LIMIT " + b.bind(limit) + " OFFSET " + b.bind(s.Offset))
	}

	return Statement{SQL: sql.String(), Args: b.args, Attributes: b.attributeList()}, nil
}

// BuildAggregate translates a scalar aggregate over attribute, scoped by the
// filter of s. Sort, limit and offset do not apply. With an empty attribute
// only AggregateCount is allowed and counts the matching documents.
func (t *Translator) BuildAggregate(s *Search, fn Aggregate, attribute string) (Statement, error) {
	if err := s.Validate(); err != nil {
		return Statement{}, err
	}
	name, ok := aggregateFuncs[fn]
	if !ok {
		return Statement{}, storeerrors.NewConfigurationError(storeerrors.CodeInvalidParameter,
			fmt.Sprintf("query: unknown aggregate %d", fn))
	}

	b := &sqlBuilder{}
	where, err := t.keyConditions(b, s, nil)
	if err != nil {
		return Statement{}, err
	}

	if attribute == "" {
		if fn != AggregateCount {
			return Statement{}, storeerrors.NewConfigurationError(storeerrors.CodeInvalidParameter,
				fmt.Sprintf("query: aggregate %s needs an attribute", name))
		}
		sql := "SELECT count(*) FROM NSFKeys k"
		if len(where) > 0 {
			sql += " WHERE " + strings.Join(where, " AND ")
		}
		return Statement{SQL: sql, Args: b.args, Attributes: b.attributeList()}, nil
	}

	var column string
	switch {
	case fn == AggregateCount && s.GroupValues:
		column = "count(DISTINCT v.NSFKey)"
	case fn == AggregateCount:
		column = "count(*)"
	default:
		column = name + "(v.NSFValue)"
	}

	// The aggregate scope is bound after the filter arguments, so the filter
	// goes in a sub-select placed last.
	agg := &sqlBuilder{}
	conds := []string{t.attributeEquals(agg, "v.NSFAttribute", attribute)}
	agg.noteAttribute(attribute)
	if fn != AggregateCount {
		conds = append(conds, "v.NSFDatatype = 'REAL'")
	}
	if len(where) > 0 {
		conds = append(conds, "v.NSFKey IN (SELECT k.NSFKey FROM NSFKeys k WHERE "+strings.Join(where, " AND ")+")")
		agg.args = append(agg.args, b.args...)
		for a := range b.attributes {
			agg.noteAttribute(a)
		}
	}

	sql := fmt.Sprintf("SELECT %s FROM NSFValues v WHERE %s", column, strings.Join(conds, " AND "))
	return Statement{SQL: sql, Args: agg.args, Attributes: agg.attributeList()}, nil
}

// keyConditions returns the conditions on alias k (NSFKeys) implementing
// the search filter, class restriction, bag scope and date bound.
func (t *Translator) keyConditions(b *sqlBuilder, s *Search, bound *dateBound) ([]string, error) {
	var where []string

	filter, err := t.filter(b, s)
	if err != nil {
		return nil, err
	}
	if filter != "" {
		where = append(where, filter)
	}

	if s.FilterClass != "" {
		where = append(where, "k.NSFObjectClass = "+b.bind(s.FilterClass))
	}

	if s.Bag != nil {
		keys := s.Bag.Keys()
		if len(keys) == 0 {
			where = append(where, "1 = 0")
		} else {
			marks := make([]string, len(keys))
			for i, k := range keys {
				marks[i] = b.bind(k)
			}
			where = append(where, "k.NSFKey IN ("+strings.Join(marks, ", ")+")")
		}
	}

	if bound != nil {
		formatted := types.FormatDate(bound.date)
		switch bound.match {
		case AddedBefore:
			where = append(where, "k.NSFCalendarDate < "+b.bind(formatted))
		case AddedAfter:
			where = append(where, "k.NSFCalendarDate > "+b.bind(formatted))
		case AddedOn:
			where = append(where, "substr(k.NSFCalendarDate, 1, 10) = "+b.bind(formatted[:10]))
		}
	}

	return where, nil
}

// filterGroup is one rendered expression. Key-only groups test alias k
// directly so documents without Values rows can match.
type filterGroup struct {
	sql     string
	keyOnly bool
}

// filter returns the condition on alias k implementing the search filter,
// or "" when the search has none. Groups combine with OR.
func (t *Translator) filter(b *sqlBuilder, s *Search) (string, error) {
	groups, err := t.filterGroups(b, s)
	if err != nil || len(groups) == 0 {
		return "", err
	}

	anyKeyOnly := false
	for _, g := range groups {
		anyKeyOnly = anyKeyOnly || g.keyOnly
	}
	if !anyKeyOnly {
		rows := make([]string, len(groups))
		for i, g := range groups {
			rows[i] = g.sql
		}
		return "k.NSFKey IN (SELECT v.NSFKey FROM NSFValues v WHERE " + joinOr(rows) + ")", nil
	}

	conds := make([]string, len(groups))
	for i, g := range groups {
		if g.keyOnly {
			conds[i] = g.sql
		} else {
			conds[i] = "k.NSFKey IN (SELECT v.NSFKey FROM NSFValues v WHERE " + g.sql + ")"
		}
	}
	return joinOr(conds), nil
}

func joinOr(conds []string) string {
	if len(conds) == 1 {
		return conds[0]
	}
	return "(" + strings.Join(conds, " OR ") + ")"
}

// filterGroups renders each expression, or the simple filter fields as a
// single expression.
func (t *Translator) filterGroups(b *sqlBuilder, s *Search) ([]filterGroup, error) {
	if len(s.Expressions) > 0 {
		groups := make([]filterGroup, len(s.Expressions))
		for i, e := range s.Expressions {
			keyOnly := true
			for _, p := range e.Predicates() {
				keyOnly = keyOnly && p.Column == ColumnKey
			}
			g, err := t.expression(b, e, keyOnly)
			if err != nil {
				return nil, err
			}
			groups[i] = filterGroup{sql: g, keyOnly: keyOnly}
		}
		return groups, nil
	}

	if !s.hasSimpleFilter() {
		return nil, nil
	}

	// The match type applies to the most specific field given; the others
	// must be equal.
	var preds []*Predicate
	matchFor := func(c Column) MatchType {
		switch {
		case s.Value != nil:
			if c == ColumnValue {
				return s.Match
			}
		case s.Attribute != "":
			if c == ColumnAttribute {
				return s.Match
			}
		default:
			if c == ColumnKey {
				return s.Match
			}
		}
		return EqualTo
	}
	if s.Key != "" {
		preds = append(preds, NewPredicate(ColumnKey, matchFor(ColumnKey), s.Key))
	}
	if s.Attribute != "" {
		preds = append(preds, NewPredicate(ColumnAttribute, matchFor(ColumnAttribute), s.Attribute))
	}
	if s.Value != nil {
		preds = append(preds, NewPredicate(ColumnValue, matchFor(ColumnValue), s.Value))
	}

	e := NewExpression(preds[0])
	for _, p := range preds[1:] {
		e.AddPredicate(p, And)
	}
	keyOnly := s.Attribute == "" && s.Value == nil
	g, err := t.expression(b, e, keyOnly)
	if err != nil {
		return nil, err
	}
	return []filterGroup{{sql: g, keyOnly: keyOnly}}, nil
}

// expression folds the chain left to right: ((p1 op p2) op p3) ... Key
// predicates test k.NSFKey when onKeys is set and v.NSFKey otherwise.
func (t *Translator) expression(b *sqlBuilder, e *Expression, onKeys bool) (string, error) {
	preds := e.Predicates()
	ops := e.Operators()

	acc, err := t.predicate(b, preds[0], onKeys)
	if err != nil {
		return "", err
	}
	for i, p := range preds[1:] {
		next, err := t.predicate(b, p, onKeys)
		if err != nil {
			return "", err
		}
		acc = "(" + acc + " " + ops[i].String() + " " + next + ")"
	}
	if len(preds) == 1 {
		acc = "(" + acc + ")"
	}
	return acc, nil
}

func (t *Translator) predicate(b *sqlBuilder, p *Predicate, onKeys bool) (string, error) {
	switch p.Column {
	case ColumnKey:
		s, err := textOperand(p)
		if err != nil {
			return "", err
		}
		column := "v.NSFKey"
		if onKeys {
			column = "k.NSFKey"
		}
		return textMatch(b, column, p.Match, s), nil
	case ColumnAttribute:
		s, err := textOperand(p)
		if err != nil {
			return "", err
		}
		if p.Match == EqualTo {
			b.noteAttribute(s)
			return t.attributeEquals(b, "v.NSFAttribute", s), nil
		}
		return textMatch(b, "v.NSFAttribute", p.Match, s), nil
	case ColumnValue:
		return t.valuePredicate(b, p)
	}
	return "", storeerrors.NewConfigurationError(storeerrors.CodeInvalidParameter,
		fmt.Sprintf("query: unknown column %d", p.Column))
}

// attributeEquals inlines indexed attribute paths as literals so their
// partial index applies; other paths are bound.
func (t *Translator) attributeEquals(b *sqlBuilder, column, attribute string) string {
	if t.indexed[attribute] {
		return column + " = '" + strings.ReplaceAll(attribute, "'", "''") + "'"
	}
	return column + " = " + b.bind(attribute)
}

func textOperand(p *Predicate) (string, error) {
	switch v := p.Value.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		if !isNull(v) {
			return v.String(), nil
		}
	}
	return "", storeerrors.NewConfigurationError(storeerrors.CodeInvalidParameter,
		fmt.Sprintf("query: %s predicates need a text operand, got %T", p.Column, p.Value))
}

// textMatch renders a text comparison. Case-sensitive patterns use GLOB,
// case-insensitive ones LIKE.
func textMatch(b *sqlBuilder, column string, m MatchType, s string) string {
	switch m {
	case EqualTo:
		return column + " = " + b.bind(s)
	case NotEqualTo:
		return column + " <> " + b.bind(s)
	case InsensitiveEqualTo:
		return column + " = " + b.bind(s) + " COLLATE NOCASE"
	case GreaterThan:
		return column + " > " + b.bind(s)
	case LessThan:
		return column + " < " + b.bind(s)
	case BeginsWith:
		return column + " GLOB " + b.bind(escapeGlob(s)+"*")
	case Contains:
		return column + " GLOB " + b.bind("*"+escapeGlob(s)+"*")
	case EndsWith:
		return column + " GLOB " + b.bind("*"+escapeGlob(s))
	case InsensitiveBeginsWith:
		return column + ` LIKE ` + b.bind(escapeLike(s)+"%") + ` ESCAPE '\'`
	case InsensitiveContains:
		return column + ` LIKE ` + b.bind("%"+escapeLike(s)+"%") + ` ESCAPE '\'`
	case InsensitiveEndsWith:
		return column + ` LIKE ` + b.bind("%"+escapeLike(s)) + ` ESCAPE '\'`
	}
	return "1 = 0"
}

// escapeGlob makes GLOB wildcards in s literal.
func escapeGlob(s string) string {
	var out strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[':
			out.WriteString("[" + string(r) + "]")
		default:
			out.WriteRune(r)
		}
	}
	return out.String()
}

// escapeLike makes LIKE wildcards in s literal under ESCAPE '\'.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// valuePredicate compares leaf values with type awareness: numbers compare
// numerically against REAL rows, dates against DATE rows, and text matches
// never see BLOB rows.
func (t *Translator) valuePredicate(b *sqlBuilder, p *Predicate) (string, error) {
	const col = "v.NSFValue"

	if isNull(p.Value) {
		switch p.Match {
		case EqualTo:
			return "v.NSFDatatype = 'NULL'", nil
		case NotEqualTo:
			return col + " IS NOT NULL", nil
		}
		return "", storeerrors.NewConfigurationError(storeerrors.CodeInvalidParameter,
			fmt.Sprintf("query: %s cannot match null", p.Match))
	}

	stored, dt, err := operand(p.Value)
	if err != nil {
		return "", err
	}

	switch dt {
	case types.DatatypeNumber:
		switch p.Match {
		case EqualTo:
			return "(v.NSFDatatype = 'REAL' AND " + col + " = " + b.bind(stored) + ")", nil
		case NotEqualTo:
			return col + " <> " + b.bind(stored), nil
		case GreaterThan:
			return "(v.NSFDatatype = 'REAL' AND " + col + " > " + b.bind(stored) + ")", nil
		case LessThan:
			return "(v.NSFDatatype = 'REAL' AND " + col + " < " + b.bind(stored) + ")", nil
		}
		return "(v.NSFDatatype <> 'BLOB' AND " + textMatch(b, col, p.Match, fmt.Sprint(stored)) + ")", nil

	case types.DatatypeDate:
		s := stored.(string)
		if p.Match == NotEqualTo {
			return col + " <> " + b.bind(s), nil
		}
		return "(v.NSFDatatype = 'DATE' AND " + textMatch(b, col, p.Match, s) + ")", nil

	case types.DatatypeData:
		switch p.Match {
		case EqualTo:
			return col + " = " + b.bind(stored), nil
		case NotEqualTo:
			return col + " <> " + b.bind(stored), nil
		}
		return "", storeerrors.NewConfigurationError(storeerrors.CodeUnsupportedType,
			fmt.Sprintf("query: %s cannot match binary values", p.Match))
	}

	// Text and locators.
	s := stored.(string)
	switch p.Match {
	case NotEqualTo:
		return col + " <> " + b.bind(s), nil
	case GreaterThan, LessThan:
		return "(v.NSFDatatype IN ('TEXT', 'DATE', 'URL') AND " + textMatch(b, col, p.Match, s) + ")", nil
	}
	return "(v.NSFDatatype <> 'BLOB' AND " + textMatch(b, col, p.Match, s) + ")", nil
}

// operand converts a predicate value into its storage form.
func operand(v any) (any, types.Datatype, error) {
	if u, ok := v.(url.URL); ok {
		v = &u
	}
	stored, dt, err := types.ToStorage(v)
	if err != nil {
		return nil, types.DatatypeUnknown, fmt.Errorf("query: operand %v: %w", v, err)
	}
	return stored, dt, nil
}
