package reason

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qtune/internal/domain"
)

func TestExtractSQL(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{
			name: "sql fenced block",
			text: "Here you go:\n```sql\nSELECT a FROM t\n```\nThis prunes columns.",
			want: "SELECT a FROM t",
			ok:   true,
		},
		{
			name: "plain fenced block with query",
			text: "```\nWITH c AS (SELECT 1) SELECT * FROM c\n```",
			want: "WITH c AS (SELECT 1) SELECT * FROM c",
			ok:   true,
		},
		{
			name: "bare select",
			text: "SELECT a, b FROM t WHERE x = 1",
			want: "SELECT a, b FROM t WHERE x = 1",
			ok:   true,
		},
		{
			name: "prose only",
			text: "I could not find a better rewrite.",
			ok:   false,
		},
		{
			name: "empty",
			text: "",
			ok:   false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractSQL(tc.text)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestValidateCandidate(t *testing.T) {
	valid := []string{
		"SELECT a FROM t",
		"select a from t;",
		"WITH c AS (SELECT a FROM t) SELECT * FROM c",
	}
	for _, sqlText := range valid {
		assert.NoError(t, ValidateCandidate(sqlText), sqlText)
	}

	invalid := []struct {
		name string
		sql  string
	}{
		{"empty", "   "},
		{"two statements", "SELECT 1; SELECT 2"},
		{"not a query", "EXPLAIN SELECT 1"},
		{"insert", "INSERT INTO t VALUES (1)"},
		{"select with drop", "SELECT a FROM t; DROP TABLE t"},
		{"mutating cte", "WITH d AS (DELETE FROM t RETURNING *) SELECT * FROM d"},
	}
	for _, tc := range invalid {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateCandidate(tc.sql)
			require.Error(t, err)
			var candErr *domain.CandidateError
			assert.ErrorAs(t, err, &candErr)
		})
	}
}

func TestTableRefs(t *testing.T) {
	refs := TableRefs("SELECT * FROM a JOIN b ON a.id=b.id JOIN main.c ON c.id=a.id WHERE a.x=1")
	assert.Equal(t, []string{"a", "b", "main.c"}, refs)

	// De-dup is case-insensitive and order-preserving.
	refs = TableRefs("SELECT 1 FROM t JOIN T ON 1=1")
	assert.Equal(t, []string{"t"}, refs)

	assert.Empty(t, TableRefs("SELECT 1"))
}
