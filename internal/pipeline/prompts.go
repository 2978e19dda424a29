package pipeline

import (
	"strings"
	"text/template"

	"github.com/MakeNowJust/heredoc"

	"github.com/kartoza/kartoza-nl2sql/internal/store"
)

var classifyTemplate = template.Must(template.New("classify").Parse(heredoc.Doc(`
	You decide whether a question can only be answered by querying the database
	described below.

	Database schema:
	{{.Schema}}

	Question: {{.Question}}

	Reply with exactly one word: "true" if answering requires querying the
	database, "false" otherwise. Do not add any other text.
`)))

var sqlTemplate = template.Must(template.New("sql").Parse(heredoc.Doc(`
	You are an expert {{.Dialect}} developer. Translate the question into a single
	{{.Dialect}} statement that answers it, using only the tables and columns in
	the schema below.

	Database schema:
	{{.Schema}}

	Question: {{.Question}}
	{{- if .ErrorContext}}

	The previous attempt failed.
	Failed query:
	{{.PreviousQuery}}
	Error message:
	{{.ErrorContext}}

	Fix the query so that it runs without this error.
	{{- end}}

	Return only the SQL statement, terminated by a semicolon, with no
	explanation.
`)))

var documentTemplate = template.Must(template.New("document").Parse(heredoc.Doc(`
	You are an expert MongoDB developer. Translate the question into a single
	read-only query document against the collections described below.

	Collections:
	{{.Schema}}

	Question: {{.Question}}
	{{- if .ErrorContext}}

	The previous attempt failed.
	Failed query:
	{{.PreviousQuery}}
	Error message:
	{{.ErrorContext}}

	Fix the query so that it runs without this error.
	{{- end}}

	The query document is a JSON object with these fields:
	- "collection": the collection name (required)
	- "operation": one of "find", "aggregate", "count", "distinct" (required)
	- "filter": a query filter object (find, count, distinct)
	- "projection", "sort", "limit", "skip": find options
	- "pipeline": an array of aggregation stages (aggregate)
	- "field": the field name (distinct)

	Example: {"collection": "movies", "operation": "find", "filter": {"year": {"$gte": 2000}}, "sort": {"year": -1}, "limit": 10}

	$where, $function, $accumulator, $out and $merge are not allowed.
	Return only the JSON object, with no explanation.
`)))

var answerTemplate = template.Must(template.New("answer").Parse(heredoc.Doc(`
	Answer the user's question using only the data below. If the data reports
	an error, explain briefly that the question could not be answered and why.
	If the data says no database query was needed, answer from general
	knowledge.

	Question: {{.Question}}

	Data:
	{{.Data}}

	Answer concisely in the language of the question.
`)))

func render(t *template.Template, data any) string {
	var sb strings.Builder
	// The templates are static and only reference fields that exist
	_ = t.Execute(&sb, data)
	return sb.String()
}

func classifyPrompt(question, schema string) string {
	return render(classifyTemplate, struct{ Question, Schema string }{question, schema})
}

func synthesisPrompt(req QueryRequest) string {
	if req.Kind == store.Document {
		return render(documentTemplate, req)
	}
	if req.Dialect == "" {
		req.Dialect = "SQL"
	}
	return render(sqlTemplate, req)
}

func answerPrompt(question, data string) string {
	return render(answerTemplate, struct{ Question, Data string }{question, data})
}
