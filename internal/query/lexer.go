package query

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenType represents the type of a lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenError
	TokenIdent
	TokenKeyword
	TokenNumber
	TokenString
	TokenComma
	TokenLParen
	TokenRParen
	TokenDot
	TokenStar
	TokenOperator
	TokenSemicolon
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenError:
		return "ERROR"
	case TokenIdent:
		return "IDENT"
	case TokenKeyword:
		return "KEYWORD"
	case TokenNumber:
		return "NUMBER"
	case TokenString:
		return "STRING"
	case TokenComma:
		return ","
	case TokenLParen:
		return "("
	case TokenRParen:
		return ")"
	case TokenDot:
		return "."
	case TokenStar:
		return "*"
	case TokenOperator:
		return "OPERATOR"
	case TokenSemicolon:
		return ";"
	default:
		return "UNKNOWN"
	}
}

// Token is a lexical token. Pos and End delimit its text in the input.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int
	End     int
}

func (t Token) String() string {
	return fmt.Sprintf("Token{%s, %q, %d}", t.Type, t.Literal, t.Pos)
}

// is reports whether t is the keyword kw.
func (t Token) is(kw string) bool {
	return t.Type == TokenKeyword && t.Literal == kw
}

// keywords recognized by the column fixer. Literals of keyword tokens are
// upper-cased.
var keywords = map[string]bool{
	"SELECT": true, "DISTINCT": true, "ALL": true, "FROM": true, "WHERE": true,
	"GROUP": true, "ORDER": true, "BY": true, "LIMIT": true, "OFFSET": true,
	"HAVING": true, "AS": true, "ON": true, "USING": true, "JOIN": true,
	"INNER": true, "LEFT": true, "RIGHT": true, "FULL": true, "OUTER": true,
	"CROSS": true, "NATURAL": true, "UNION": true, "EXCEPT": true,
	"INTERSECT": true, "WINDOW": true, "AND": true, "OR": true, "NOT": true,
	"IN": true, "IS": true, "NULL": true, "LIKE": true, "GLOB": true,
	"BETWEEN": true, "WITH": true, "INDEXED": true,
}

var twoCharOperators = map[string]bool{
	"<=": true, ">=": true, "<>": true, "!=": true, "==": true, "||": true, "<<": true, ">>": true,
}

// Lexer tokenizes SQL input.
type Lexer struct {
	input   string
	pos     int
	readPos int
	ch      byte
}

// NewLexer creates a new Lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
}

func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

// skipWhitespace skips whitespace and comments.
func (l *Lexer) skipWhitespace() {
	for {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r':
			l.readChar()
		case l.ch == '-' && l.peekChar() == '-':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		case l.ch == '/' && l.peekChar() == '*':
			l.readChar()
			l.readChar()
			for l.ch != 0 && !(l.ch == '*' && l.peekChar() == '/') {
				l.readChar()
			}
			if l.ch != 0 {
				l.readChar()
				l.readChar()
			}
		default:
			return
		}
	}
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()
	start := l.pos

	switch l.ch {
	case 0:
		return Token{Type: TokenEOF, Pos: start, End: start}
	case ',':
		return l.single(TokenComma)
	case '(':
		return l.single(TokenLParen)
	case ')':
		return l.single(TokenRParen)
	case '.':
		if isDigit(l.peekChar()) {
			return l.readNumber()
		}
		return l.single(TokenDot)
	case '*':
		return l.single(TokenStar)
	case ';':
		return l.single(TokenSemicolon)
	case '\'':
		return l.readQuoted('\'', TokenString)
	case '"':
		return l.readQuoted('"', TokenIdent)
	case '`':
		return l.readQuoted('`', TokenIdent)
	case '[':
		return l.readQuoted(']', TokenIdent)
	}

	if isLetter(l.ch) || l.ch == '_' {
		return l.readIdentifier()
	}
	if isDigit(l.ch) {
		return l.readNumber()
	}
	if strings.IndexByte("=<>!+-/%|&~?:@$", l.ch) >= 0 {
		l.readChar()
		if start+2 <= len(l.input) && twoCharOperators[l.input[start:start+2]] {
			l.readChar()
		}
		return Token{Type: TokenOperator, Literal: l.input[start:l.pos], Pos: start, End: l.pos}
	}

	l.readChar()
	return Token{Type: TokenError, Literal: l.input[start:l.pos], Pos: start, End: l.pos}
}

func (l *Lexer) single(t TokenType) Token {
	start := l.pos
	l.readChar()
	return Token{Type: t, Literal: l.input[start:l.pos], Pos: start, End: l.pos}
}

func (l *Lexer) readIdentifier() Token {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' || l.ch == '$' {
		l.readChar()
	}
	literal := l.input[start:l.pos]
	if upper := strings.ToUpper(literal); keywords[upper] {
		return Token{Type: TokenKeyword, Literal: upper, Pos: start, End: l.pos}
	}
	return Token{Type: TokenIdent, Literal: literal, Pos: start, End: l.pos}
}

func (l *Lexer) readNumber() Token {
	start := l.pos
	hasDecimal := false
	for isDigit(l.ch) || (l.ch == '.' && !hasDecimal) {
		if l.ch == '.' {
			hasDecimal = true
		}
		l.readChar()
	}
	return Token{Type: TokenNumber, Literal: l.input[start:l.pos], Pos: start, End: l.pos}
}

// readQuoted reads a literal closed by quote. A doubled closing quote is an
// escaped quote.
func (l *Lexer) readQuoted(quote byte, t TokenType) Token {
	start := l.pos
	l.readChar()
	var b strings.Builder
	for {
		if l.ch == 0 {
			return Token{Type: TokenError, Literal: "unterminated literal", Pos: start, End: l.pos}
		}
		if l.ch == quote {
			if quote != ']' && l.peekChar() == quote {
				b.WriteByte(quote)
				l.readChar()
				l.readChar()
				continue
			}
			l.readChar()
			break
		}
		b.WriteByte(l.ch)
		l.readChar()
	}
	return Token{Type: t, Literal: b.String(), Pos: start, End: l.pos}
}

// Tokenize returns all tokens from the input, ending with EOF or the first
// error.
func (l *Lexer) Tokenize() []Token {
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			break
		}
	}
	return tokens
}

func isLetter(ch byte) bool {
	return ch >= 0x80 || unicode.IsLetter(rune(ch))
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
