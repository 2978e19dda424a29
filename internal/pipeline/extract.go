package pipeline

import (
	"regexp"
	"strings"
)

// sqlFence matches a fenced block tagged with an SQL dialect, or untagged
var sqlFence = regexp.MustCompile("(?is)```(?:sql|mysql|postgresql|postgres|pgsql|sqlite|plsql|tsql)?[ \\t]*\\r?\\n(.*?)```")

// documentFence matches a fenced block tagged as JSON or a MongoDB shell
var documentFence = regexp.MustCompile("(?is)```(?:json|jsonc|mongodb|mongo|javascript|js)?[ \\t]*\\r?\\n(.*?)```")

// statementStart matches the first statement keyword and everything up to
// the first semicolon (inclusive) or the end of the text
var statementStart = regexp.MustCompile(`(?is)\b(?:select|insert|update|delete|create|alter|drop|truncate|grant|revoke|merge|replace|call|explain)\b.*?(?:;|$)`)

// ExtractSQL pulls the query out of a model completion:
//
//  1. the contents of a fenced ```sql block, trimmed and otherwise as
//     written (comments, CTEs and multi-statement scripts are kept whole);
//  2. from the first statement keyword up to and including the first ";",
//     or to the end of the text;
//  3. otherwise the whole completion, trimmed.
//
// Output of step 1 for a single statement, and of step 2, is unchanged by
// a second ExtractSQL.
func ExtractSQL(text string) string {
	if m := sqlFence.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if stmt := statementStart.FindString(text); stmt != "" {
		return strings.TrimSpace(stmt)
	}
	return strings.TrimSpace(text)
}

// ExtractDocumentQuery pulls a JSON query document out of a model
// completion: a fenced json block if present, then the first balanced JSON
// object, otherwise the whole completion trimmed.
func ExtractDocumentQuery(text string) string {
	candidate := text
	if m := documentFence.FindStringSubmatch(text); m != nil {
		candidate = m[1]
	}
	if obj := firstObject(candidate); obj != "" {
		return obj
	}
	return strings.TrimSpace(candidate)
}

// firstObject returns the first balanced {...} span, honouring string
// literals and escapes, or "" if there is none
func firstObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
