package query

import (
	"testing"

	storeerrors "github.com/arkilian/nanostore/internal/errors"
)

func TestFixColumns(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		rt   ReturnType
		want string
	}{
		{
			name: "already correct",
			sql:  "SELECT NSFKey, NSFKeyedArchive, NSFObjectClass FROM NSFKeys WHERE NSFObjectClass = 'Person'",
			rt:   ReturnObjects,
			want: "SELECT NSFKey, NSFKeyedArchive, NSFObjectClass FROM NSFKeys WHERE NSFObjectClass = 'Person'",
		},
		{
			name: "star replaced",
			sql:  "select * from NSFKeys where NSFObjectClass = 'a, FROM b'",
			rt:   ReturnObjects,
			want: "select NSFKey, NSFKeyedArchive, NSFObjectClass from NSFKeys where NSFObjectClass = 'a, FROM b'",
		},
		{
			name: "keys only",
			sql:  "SELECT DISTINCT NSFObjectClass FROM NSFKeys ORDER BY ROWID",
			rt:   ReturnKeys,
			want: "SELECT DISTINCT NSFKey FROM NSFKeys ORDER BY ROWID",
		},
		{
			name: "nested select list untouched",
			sql:  "SELECT (SELECT count(*) FROM NSFValues) AS n FROM NSFKeys",
			rt:   ReturnKeys,
			want: "SELECT NSFKey FROM NSFKeys",
		},
		{
			name: "join qualifies with alias",
			sql:  "SELECT v.NSFValue FROM NSFValues v JOIN NSFKeys AS k ON k.NSFKey = v.NSFKey WHERE v.NSFAttribute = 'a'",
			rt:   ReturnObjects,
			want: "SELECT k.NSFKey, k.NSFKeyedArchive, k.NSFObjectClass FROM NSFValues v JOIN NSFKeys AS k ON k.NSFKey = v.NSFKey WHERE v.NSFAttribute = 'a'",
		},
		{
			name: "values only is wrapped",
			sql:  "SELECT NSFValue FROM NSFValues WHERE NSFAttribute = 'LastName';",
			rt:   ReturnObjects,
			want: "SELECT NSFKey, NSFKeyedArchive, NSFObjectClass FROM NSFKeys WHERE NSFKey IN (SELECT NSFKey FROM NSFValues WHERE NSFAttribute = 'LastName')",
		},
		{
			name: "qualified columns accepted",
			sql:  "SELECT k.NSFKey FROM NSFKeys k",
			rt:   ReturnKeys,
			want: "SELECT k.NSFKey FROM NSFKeys k",
		},
	}
	for _, tt := range tests {
		got, err := FixColumns(tt.sql, tt.rt)
		if err != nil {
			t.Errorf("%s: FixColumns failed: %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s:\n got %s\nwant %s", tt.name, got, tt.want)
		}
	}
}

func TestFixColumns_Rejects(t *testing.T) {
	for _, sql := range []string{
		"DELETE FROM NSFKeys",
		"SELECT 1",
		"SELECT 'unterminated FROM NSFKeys",
		"SELECT FROM NSFKeys",
	} {
		if _, err := FixColumns(sql, ReturnObjects); !storeerrors.IsCategory(err, storeerrors.ErrCategoryConfiguration) {
			t.Errorf("%q: expected configuration error, got %v", sql, err)
		}
	}
}

func TestLexer_Tokens(t *testing.T) {
	tokens := NewLexer(`SELECT "a b", x.y -- comment
		FROM t WHERE c >= 1.5 AND d <> 'it''s'`).Tokenize()
	want := []TokenType{
		TokenKeyword, TokenIdent, TokenComma, TokenIdent, TokenDot, TokenIdent,
		TokenKeyword, TokenIdent, TokenKeyword, TokenIdent, TokenOperator, TokenNumber,
		TokenKeyword, TokenIdent, TokenOperator, TokenString, TokenEOF,
	}
	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(tokens), len(want), tokens)
	}
	for i, tt := range want {
		if tokens[i].Type != tt {
			t.Errorf("token %d = %s, want %s", i, tokens[i], tt)
		}
	}
	if tokens[1].Literal != "a b" || tokens[15].Literal != "it's" || tokens[10].Literal != ">=" {
		t.Errorf("unexpected literals: %v %v %v", tokens[1], tokens[15], tokens[10])
	}
}

func TestParseMatchType(t *testing.T) {
	m, err := ParseMatchType("insensitivecontains")
	if err != nil || m != InsensitiveContains {
		t.Errorf("ParseMatchType = (%v, %v)", m, err)
	}
	if _, err := ParseMatchType("like"); err == nil {
		t.Error("expected error for unknown match type")
	}
}
