package ingest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/kartoza/kartoza-nl2sql/internal/store"
)

const (
	// SampleRows is the number of leading rows inspected to infer types
	SampleRows = 2
	// ShortTextLimit is the longest value stored as short text
	ShortTextLimit = 255
)

var (
	integerPattern = regexp.MustCompile(`^[+-]?\d+$`)
	decimalPattern = regexp.MustCompile(`^[+-]?(?:\d+\.\d*|\.\d+)$`)
)

var dateLayouts = []string{"2006-01-02", "2006/01/02", "01/02/2006"}

// InferColumns derives a column definition for every column of t from the
// first SampleRows rows. Column names are sanitized and made unique.
func InferColumns(t *Table) []store.ColumnDef {
	names := UniqueNames(t.Columns)
	defs := make([]store.ColumnDef, len(names))

	sample := t.Rows
	if len(sample) > SampleRows {
		sample = sample[:SampleRows]
	}

	for col, name := range names {
		typ, seen := store.TypeShortText, false
		for _, row := range sample {
			if row[col] == "" {
				continue
			}
			cell := ClassifyValue(row[col])
			if !seen {
				typ, seen = cell, true
				continue
			}
			typ = widen(typ, cell)
		}
		defs[col] = store.ColumnDef{Name: name, Type: typ}
	}
	return defs
}

// ClassifyValue applies the rule table to a single non-empty value
func ClassifyValue(v string) store.ColumnType {
	v = strings.TrimSpace(v)
	switch {
	case integerPattern.MatchString(v):
		if _, err := strconv.ParseInt(v, 10, 64); err == nil {
			return store.TypeInteger
		}
		return store.TypeDecimal
	case decimalPattern.MatchString(v):
		return store.TypeDecimal
	case parseDate(v) != nil:
		return store.TypeDate
	case utf8.RuneCountInString(v) > ShortTextLimit:
		return store.TypeLongText
	default:
		return store.TypeShortText
	}
}

// widen returns the narrowest type that can hold values of both a and b
func widen(a, b store.ColumnType) store.ColumnType {
	switch {
	case a == b:
		return a
	case isNumeric(a) && isNumeric(b):
		return store.TypeDecimal
	case a == store.TypeLongText || b == store.TypeLongText:
		return store.TypeLongText
	default:
		return store.TypeShortText
	}
}

func isNumeric(t store.ColumnType) bool {
	return t == store.TypeInteger || t == store.TypeDecimal
}

func parseDate(v string) *time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return &t
		}
	}
	return nil
}

// ConvertValue turns a cell into the value bound for a column of type t.
// Empty cells become nil. Values that do not parse as t are passed through
// as strings and left for the store to accept or reject.
func ConvertValue(v string, t store.ColumnType) any {
	if v == "" {
		return nil
	}
	switch t {
	case store.TypeInteger:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	case store.TypeDecimal:
		if f, err := strconv.ParseFloat(v, 64); err == nil && decimalOrInteger(v) {
			return f
		}
	case store.TypeDate:
		if d := parseDate(v); d != nil {
			return *d
		}
	}
	return v
}

func decimalOrInteger(v string) bool {
	return integerPattern.MatchString(v) || decimalPattern.MatchString(v)
}

// ConvertRows converts every row of t with the column types in defs
func ConvertRows(t *Table, defs []store.ColumnDef) [][]any {
	rows := make([][]any, len(t.Rows))
	for i, row := range t.Rows {
		out := make([]any, len(defs))
		for j, def := range defs {
			out[j] = ConvertValue(row[j], def.Type)
		}
		rows[i] = out
	}
	return rows
}

// SanitizeName lowercases name and replaces every run of characters other
// than letters, digits and underscores with a single underscore. Names that
// would start with a digit are prefixed with "c_".
func SanitizeName(name string) string {
	var sb strings.Builder
	underscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			underscore = r == '_'
			continue
		}
		if !underscore {
			sb.WriteByte('_')
			underscore = true
		}
	}

	out := strings.Trim(sb.String(), "_")
	if out == "" {
		return ""
	}
	if r, _ := utf8.DecodeRuneInString(out); unicode.IsDigit(r) {
		out = "c_" + out
	}
	return out
}

// UniqueNames sanitizes column names, naming blank ones column_N and
// suffixing duplicates with _2, _3, ...
func UniqueNames(columns []string) []string {
	names := make([]string, len(columns))
	seen := make(map[string]int, len(columns))
	for i, c := range columns {
		name := SanitizeName(c)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s_%d", name, n)
			seen[name]++
		}
		names[i] = name
	}
	return names
}
