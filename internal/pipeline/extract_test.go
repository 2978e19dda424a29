package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractSQL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "fenced block",
			in:   "Here is the query:\n```sql\nSELECT * FROM customers;\n```\nHope it helps.",
			want: "SELECT * FROM customers;",
		},
		{
			name: "fenced block with dialect tag",
			in:   "```postgresql\nSELECT count(*) FROM orders;\n```",
			want: "SELECT count(*) FROM orders;",
		},
		{
			name: "untagged fence",
			in:   "```\nSELECT 1;\n```",
			want: "SELECT 1;",
		},
		{
			name: "fence keeps comment lines",
			in:   "```sql\n-- count orders\nSELECT count(*) FROM orders;\n```",
			want: "-- count orders\nSELECT count(*) FROM orders;",
		},
		{
			name: "fenced CTE is kept whole",
			in:   "```sql\nWITH recent AS (SELECT * FROM orders) SELECT count(*) FROM recent;\n```",
			want: "WITH recent AS (SELECT * FROM orders) SELECT count(*) FROM recent;",
		},
		{
			name: "fenced script keeps every statement",
			in:   "```sql\nSELECT 1;\nSELECT 2;\n```",
			want: "SELECT 1;\nSELECT 2;",
		},
		{
			name: "statement keyword up to semicolon",
			in:   "Sure! select name from customers where id = 1; This returns the name.",
			want: "select name from customers where id = 1;",
		},
		{
			name: "statement keyword to end of text",
			in:   "The answer is SELECT name FROM customers",
			want: "SELECT name FROM customers",
		},
		{
			name: "multi-line statement",
			in:   "SELECT id,\n  name\nFROM customers\nWHERE id > 2;",
			want: "SELECT id,\n  name\nFROM customers\nWHERE id > 2;",
		},
		{
			name: "no keyword falls back to trimmed text",
			in:   "   I cannot answer that.  \n",
			want: "I cannot answer that.",
		},
		{
			name: "keyword must be a whole word",
			in:   "selection is not a statement",
			want: "selection is not a statement",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractSQL(tt.in))
		})
	}
}

func TestExtractSQL_Idempotent(t *testing.T) {
	inputs := []string{
		"```sql\nSELECT * FROM customers;\n```",
		"Sure! select name from customers; extra",
		"no statement at all",
		"```sql\nUPDATE t SET a = 1 WHERE b = 2;\n```",
		"",
		"DELETE FROM t WHERE a = 'x;y';",
	}

	for _, in := range inputs {
		once := ExtractSQL(in)
		assert.Equal(t, once, ExtractSQL(once), "input %q", in)
	}
}

func TestExtractDocumentQuery(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "json fence",
			in:   "```json\n{\"collection\": \"movies\", \"operation\": \"find\"}\n```",
			want: `{"collection": "movies", "operation": "find"}`,
		},
		{
			name: "bare object in prose",
			in:   `Use this: {"collection": "movies", "operation": "count", "filter": {"year": 1999}} and done`,
			want: `{"collection": "movies", "operation": "count", "filter": {"year": 1999}}`,
		},
		{
			name: "braces inside strings",
			in:   `{"collection": "c", "operation": "find", "filter": {"name": "a}b\"{"}}`,
			want: `{"collection": "c", "operation": "find", "filter": {"name": "a}b\"{"}}`,
		},
		{
			name: "no object",
			in:   "  nothing here ",
			want: "nothing here",
		},
		{
			name: "unbalanced object",
			in:   `{"collection": "c"`,
			want: `{"collection": "c"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractDocumentQuery(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, ExtractDocumentQuery(got))
		})
	}
}
