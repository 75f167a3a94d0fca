package query

import (
	"fmt"
	"strings"

	storeerrors "github.com/arkilian/nanostore/internal/errors"
)

// hydrationColumns lists the columns each return type needs, in order.
var hydrationColumns = map[ReturnType][]string{
	ReturnObjects: {"NSFKey", "NSFKeyedArchive", "NSFObjectClass"},
	ReturnKeys:    {"NSFKey"},
}

// FixColumns rewrites the select list of a caller-supplied SELECT so its
// rows can be hydrated as rt. Everything after the select list is kept
// verbatim. A statement already selecting the required columns is returned
// unchanged. A statement that does not read NSFKeys is wrapped so the
// snapshot columns come from NSFKeys for the identifiers it selects.
func FixColumns(sql string, rt ReturnType) (string, error) {
	required, ok := hydrationColumns[rt]
	if !ok {
		return "", storeerrors.NewConfigurationError(storeerrors.CodeInvalidParameter,
			fmt.Sprintf("query: unknown return type %d", rt))
	}

	tokens := NewLexer(sql).Tokenize()
	if last := tokens[len(tokens)-1]; last.Type == TokenError {
		return "", storeerrors.NewConfigurationError(storeerrors.CodeInvalidParameter,
			fmt.Sprintf("query: cannot parse statement at %d: %s", last.Pos, last.Literal))
	}
	if !tokens[0].is("SELECT") {
		return "", storeerrors.NewConfigurationError(storeerrors.CodeInvalidParameter,
			"query: only SELECT statements can return documents")
	}

	listStart := 1
	for listStart < len(tokens) && (tokens[listStart].is("DISTINCT") || tokens[listStart].is("ALL")) {
		listStart++
	}

	from := -1
	depth := 0
	for i := listStart; i < len(tokens); i++ {
		switch tok := tokens[i]; {
		case tok.Type == TokenLParen:
			depth++
		case tok.Type == TokenRParen:
			depth--
		case depth == 0 && tok.is("FROM"):
			from = i
		}
		if from >= 0 {
			break
		}
	}
	if from < 0 || from == listStart {
		return "", storeerrors.NewConfigurationError(storeerrors.CodeInvalidParameter,
			"query: statement has no select list or FROM clause")
	}

	if selectsColumns(tokens[listStart:from], required) {
		return sql, nil
	}

	qualifier, readsKeys := keysQualifier(tokens[from+1:])
	if !readsKeys {
		// Select the identifiers of the caller's statement and read the
		// snapshots from NSFKeys.
		inner := "SELECT NSFKey " + sql[tokens[from].Pos:]
		inner = strings.TrimRight(strings.TrimSpace(inner), ";")
		return fmt.Sprintf("SELECT %s FROM NSFKeys WHERE NSFKey IN (%s)", strings.Join(required, ", "), inner), nil
	}

	cols := make([]string, len(required))
	for i, c := range required {
		if qualifier != "" {
			cols[i] = qualifier + "." + c
		} else {
			cols[i] = c
		}
	}
	head := sql[:tokens[listStart].Pos]
	return head + strings.Join(cols, ", ") + " " + sql[tokens[from].Pos:], nil
}

// selectsColumns reports whether the select list names exactly the required
// columns, in order, ignoring table qualifiers and case.
func selectsColumns(list []Token, required []string) bool {
	var names []string
	var current []Token
	flush := func() bool {
		// A column item is IDENT or QUALIFIER . IDENT.
		switch {
		case len(current) == 1 && current[0].Type == TokenIdent:
			names = append(names, current[0].Literal)
		case len(current) == 3 && current[0].Type == TokenIdent && current[1].Type == TokenDot && current[2].Type == TokenIdent:
			names = append(names, current[2].Literal)
		default:
			return false
		}
		current = current[:0]
		return true
	}
	for _, tok := range list {
		if tok.Type == TokenComma {
			if !flush() {
				return false
			}
			continue
		}
		current = append(current, tok)
	}
	if !flush() || len(names) != len(required) {
		return false
	}
	for i := range names {
		if !strings.EqualFold(names[i], required[i]) {
			return false
		}
	}
	return true
}

// keysQualifier looks for NSFKeys among the top-level FROM sources and
// returns the name to qualify its columns with. The qualifier is empty when
// NSFKeys is the only source.
func keysQualifier(rest []Token) (string, bool) {
	depth := 0
	sources := 0
	qualifier := ""
	found := false
	expectSource := true

	for i := 0; i < len(rest); i++ {
		tok := rest[i]
		switch {
		case tok.Type == TokenLParen:
			depth++
			continue
		case tok.Type == TokenRParen:
			depth--
			if depth == 0 && expectSource {
				// parenthesized sub-select as a source
				sources++
				expectSource = false
			}
			continue
		}
		if depth > 0 {
			continue
		}
		if tok.is("WHERE") || tok.is("GROUP") || tok.is("ORDER") || tok.is("LIMIT") ||
			tok.is("HAVING") || tok.is("UNION") || tok.is("EXCEPT") || tok.is("INTERSECT") || tok.is("WINDOW") {
			break
		}
		if tok.Type == TokenComma || tok.is("JOIN") {
			expectSource = true
			continue
		}
		if expectSource && tok.Type == TokenIdent {
			expectSource = false
			sources++
			if strings.EqualFold(tok.Literal, "NSFKeys") {
				found = true
				qualifier = tok.Literal
				next := i + 1
				if next < len(rest) && rest[next].is("AS") {
					next++
				}
				if next < len(rest) && rest[next].Type == TokenIdent {
					qualifier = rest[next].Literal
				}
			}
		}
	}
	if !found {
		return "", false
	}
	if sources == 1 {
		return "", true
	}
	return qualifier, true
}
